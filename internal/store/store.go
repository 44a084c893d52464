package store

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/bridgewatchhq/bridgewatch/internal/bridge"
)

// ErrNoConnector indicates a renewal target has no managed connector entry in
// the configuration file.
var ErrNoConnector = errors.New("no managed connector for username")

// TokenSource mints a fresh credential for a username.
type TokenSource interface {
	Token(username string) (string, error)
}

// Store renews connector tokens inside the bridge's JSON configuration file.
// All substitutions for a renewal batch are staged in memory and written in a
// single atomic replace; a failure for any target leaves the file untouched.
type Store struct {
	// Path is the configured bridge config location. When empty, the
	// status-reported path passed to RenewTokens is used instead.
	Path   string
	Tokens TokenSource
	Logger *log.Logger
}

// RenewTokens replaces the token field of every managed connector whose
// username is in the target set. Only those token fields change; every other
// byte of the document is preserved. pathHint is the config location the
// bridge reported in its last status snapshot, if any.
func (s *Store) RenewTokens(ctx context.Context, usernames []string, pathHint string) error {
	if len(usernames) == 0 {
		return nil
	}
	logger := s.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}

	path := s.Path
	if path == "" {
		path = pathHint
	}
	if path == "" {
		return errors.New("bridge config path neither configured nor reported by the bridge")
	}

	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("stat bridge config %q: %w", path, err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read bridge config %q: %w", path, err)
	}
	if !gjson.ValidBytes(data) {
		return fmt.Errorf("bridge config %q is not valid JSON", path)
	}

	paths := connectorPaths(data)

	staged := data
	for _, username := range usernames {
		if err := ctx.Err(); err != nil {
			return err
		}

		targets := paths[username]
		if len(targets) == 0 {
			return fmt.Errorf("%w: %q in %s", ErrNoConnector, username, path)
		}

		token, err := s.Tokens.Token(username)
		if err != nil {
			return err
		}

		for _, target := range targets {
			staged, err = sjson.SetBytes(staged, target+".token", token)
			if err != nil {
				return fmt.Errorf("substitute token for %q: %w", username, err)
			}
		}
		logger.Printf("staged fresh token for %q (%d connector(s))", username, len(targets))
	}

	if err := writeAtomic(path, staged, info.Mode().Perm()); err != nil {
		return fmt.Errorf("persist bridge config: %w", err)
	}
	logger.Printf("bridge config updated: %s", path)
	return nil
}

// connectorPaths maps each managed connector's username to the gjson paths of
// its entries. The bridge nests connectors under links[].connectors[]; a flat
// top-level connectors[] array is accepted too.
func connectorPaths(data []byte) map[string][]string {
	doc := gjson.ParseBytes(data)
	paths := make(map[string][]string)

	appendConnectors := func(prefix string, connectors gjson.Result) {
		i := 0
		connectors.ForEach(func(_, connector gjson.Result) bool {
			defer func() { i++ }()
			if connector.Get("type").String() != bridge.ConnectorTypeChannelAPI {
				return true
			}
			username := connector.Get("username").String()
			if username == "" {
				return true
			}
			paths[username] = append(paths[username], prefix+strconv.Itoa(i))
			return true
		})
	}

	if links := doc.Get("links"); links.IsArray() {
		j := 0
		links.ForEach(func(_, link gjson.Result) bool {
			if connectors := link.Get("connectors"); connectors.IsArray() {
				appendConnectors("links."+strconv.Itoa(j)+".connectors.", connectors)
			}
			j++
			return true
		})
	}
	if connectors := doc.Get("connectors"); connectors.IsArray() {
		appendConnectors("connectors.", connectors)
	}

	return paths
}

func writeAtomic(path string, data []byte, perm os.FileMode) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, perm); err != nil {
		return fmt.Errorf("write temp config %q: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("commit config %q: %w", path, err)
	}
	return nil
}
