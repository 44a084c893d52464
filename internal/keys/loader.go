package keys

import (
	"crypto"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

var (
	// ErrMissingKey indicates the private-key file for a username is absent.
	ErrMissingKey = errors.New("private key file not found")
	// ErrMissingIssuer indicates the issuer file for a username is absent.
	ErrMissingIssuer = errors.New("issuer file not found")
	// ErrUnreadable indicates key material exists but could not be parsed.
	ErrUnreadable = errors.New("key material unreadable")
)

// Identity is the signing material for one bridge account: the private key
// used to sign channel tokens and the issuer identifier registered with the
// channel API.
type Identity struct {
	PrivateKey crypto.Signer
	Issuer     string
}

// Loader resolves the signing identity for a username. Implementations must
// reflect current backing-store contents on every call so key rotation needs
// no process restart.
type Loader interface {
	Load(username string) (Identity, error)
}

// DirLoader reads identities from a directory holding one
// <username>.pem / <username>.txt pair per managed account.
type DirLoader struct {
	Dir string
}

func (l DirLoader) Load(username string) (Identity, error) {
	if username == "" {
		return Identity{}, fmt.Errorf("%w: empty username", ErrMissingKey)
	}

	keyPath := filepath.Join(l.Dir, username+".pem")
	keyPEM, err := os.ReadFile(keyPath)
	if err != nil {
		if os.IsNotExist(err) {
			return Identity{}, fmt.Errorf("%w: %s", ErrMissingKey, keyPath)
		}
		return Identity{}, fmt.Errorf("read %s: %w", keyPath, err)
	}

	issuerPath := filepath.Join(l.Dir, username+".txt")
	issuerRaw, err := os.ReadFile(issuerPath)
	if err != nil {
		if os.IsNotExist(err) {
			return Identity{}, fmt.Errorf("%w: %s", ErrMissingIssuer, issuerPath)
		}
		return Identity{}, fmt.Errorf("read %s: %w", issuerPath, err)
	}

	issuer := strings.TrimSpace(string(issuerRaw))
	if issuer == "" {
		return Identity{}, fmt.Errorf("%w: %s is empty", ErrUnreadable, issuerPath)
	}

	key, err := parsePrivateKey(keyPEM)
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %s: %v", ErrUnreadable, keyPath, err)
	}

	return Identity{PrivateKey: key, Issuer: issuer}, nil
}

func parsePrivateKey(data []byte) (crypto.Signer, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, errors.New("no PEM block found")
	}

	if key, err := x509.ParsePKCS8PrivateKey(block.Bytes); err == nil {
		signer, ok := key.(crypto.Signer)
		if !ok {
			return nil, fmt.Errorf("PKCS#8 key type %T cannot sign", key)
		}
		return signer, nil
	}
	if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return key, nil
	}
	if key, err := x509.ParseECPrivateKey(block.Bytes); err == nil {
		return key, nil
	}

	return nil, errors.New("not a PKCS#1, PKCS#8, or SEC1 private key")
}
