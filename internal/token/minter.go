package token

import (
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/rsa"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/bridgewatchhq/bridgewatch/internal/keys"
)

var (
	// ErrUnsupportedKey indicates the private key's type has no matching
	// signing algorithm accepted by the channel API.
	ErrUnsupportedKey = errors.New("unsupported private key type")
	// ErrSigning indicates the signature operation itself failed.
	ErrSigning = errors.New("token signing failed")
)

// Minter builds short-lived signed assertions for bridge accounts.
type Minter struct {
	// Validity is the window between a token's issued-at and expiry.
	Validity time.Duration

	// Now and NewID are test overrides for the clock and the jti claim.
	Now   func() time.Time
	NewID func() string
}

// Mint signs an assertion with subject = username, issuer and key taken from
// the identity, and expiry Validity after issuance. The signing algorithm is
// fixed by the key type since it must match what the channel API verifies.
func (m *Minter) Mint(identity keys.Identity, username string) (string, error) {
	if identity.PrivateKey == nil {
		return "", fmt.Errorf("%w: no private key", ErrUnsupportedKey)
	}
	if identity.Issuer == "" {
		return "", fmt.Errorf("%w: no issuer", ErrSigning)
	}

	method, err := signingMethod(identity)
	if err != nil {
		return "", err
	}

	now := time.Now
	if m.Now != nil {
		now = m.Now
	}
	newID := uuid.NewString
	if m.NewID != nil {
		newID = m.NewID
	}

	issuedAt := now().UTC()
	claims := jwt.RegisteredClaims{
		Issuer:    identity.Issuer,
		Subject:   username,
		IssuedAt:  jwt.NewNumericDate(issuedAt),
		ExpiresAt: jwt.NewNumericDate(issuedAt.Add(m.Validity)),
		ID:        newID(),
	}

	signed, err := jwt.NewWithClaims(method, claims).SignedString(identity.PrivateKey)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrSigning, err)
	}
	return signed, nil
}

func signingMethod(identity keys.Identity) (jwt.SigningMethod, error) {
	switch key := identity.PrivateKey.(type) {
	case *rsa.PrivateKey:
		return jwt.SigningMethodRS256, nil
	case *ecdsa.PrivateKey:
		switch key.Curve {
		case elliptic.P256():
			return jwt.SigningMethodES256, nil
		case elliptic.P384():
			return jwt.SigningMethodES384, nil
		case elliptic.P521():
			return jwt.SigningMethodES512, nil
		default:
			return nil, fmt.Errorf("%w: ECDSA curve %s", ErrUnsupportedKey, key.Curve.Params().Name)
		}
	case ed25519.PrivateKey:
		return jwt.SigningMethodEdDSA, nil
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnsupportedKey, key)
	}
}
