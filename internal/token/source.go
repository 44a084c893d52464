package token

import (
	"fmt"

	"github.com/bridgewatchhq/bridgewatch/internal/keys"
)

// Source composes a key loader and a minter into a per-username token
// factory. Identities are re-read from the loader on every call, so rotated
// key material takes effect on the next renewal.
type Source struct {
	Loader keys.Loader
	Minter *Minter
}

func (s Source) Token(username string) (string, error) {
	identity, err := s.Loader.Load(username)
	if err != nil {
		return "", fmt.Errorf("load identity for %q: %w", username, err)
	}
	signed, err := s.Minter.Mint(identity, username)
	if err != nil {
		return "", fmt.Errorf("mint token for %q: %w", username, err)
	}
	return signed, nil
}
