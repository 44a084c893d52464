package bridge

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
)

// ConnectorTypeChannelAPI tags the connectors whose tokens this watchdog
// manages.
const ConnectorTypeChannelAPI = "zello-channel-api"

// StatusSnapshot is the bridge's reported state for one poll. It is transient
// and discarded after classification.
type StatusSnapshot struct {
	// ConfigFile, when reported, names the configuration file the bridge is
	// currently running from.
	ConfigFile string            `json:"config_file,omitempty"`
	Connectors []ConnectorStatus `json:"connectors"`
}

// ConnectorStatus is one connector's health as reported by the bridge.
// LastError 0 means healthy.
type ConnectorStatus struct {
	Type      string `json:"type"`
	Name      string `json:"name,omitempty"`
	Username  string `json:"username"`
	LastError int    `json:"last_error"`
}

// UnmarshalJSON flattens the two status shapes the bridge emits: connectors
// either directly under "connectors" or nested per link under
// "links[].connectors".
func (s *StatusSnapshot) UnmarshalJSON(data []byte) error {
	var body struct {
		ConfigFile string            `json:"config_file"`
		Connectors []ConnectorStatus `json:"connectors"`
		Links      []struct {
			Connectors []ConnectorStatus `json:"connectors"`
		} `json:"links"`
	}
	if err := json.Unmarshal(data, &body); err != nil {
		return err
	}
	s.ConfigFile = body.ConfigFile
	s.Connectors = body.Connectors
	for _, link := range body.Links {
		s.Connectors = append(s.Connectors, link.Connectors...)
	}
	return nil
}

// UnmarshalJSON accepts last_error both as a bare code and wrapped in an
// object with a "code" field, which is how older bridges report it.
func (c *ConnectorStatus) UnmarshalJSON(data []byte) error {
	var body struct {
		Type      string          `json:"type"`
		Name      string          `json:"name"`
		Username  string          `json:"username"`
		LastError json.RawMessage `json:"last_error"`
	}
	if err := json.Unmarshal(data, &body); err != nil {
		return err
	}
	c.Type = body.Type
	c.Name = body.Name
	c.Username = body.Username
	c.LastError = 0

	raw := bytes.TrimSpace(body.LastError)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil
	}
	if raw[0] == '{' {
		var wrapped struct {
			Code int `json:"code"`
		}
		if err := json.Unmarshal(raw, &wrapped); err != nil {
			return fmt.Errorf("decode last_error object: %w", err)
		}
		c.LastError = wrapped.Code
		return nil
	}
	if err := json.Unmarshal(raw, &c.LastError); err != nil {
		return fmt.Errorf("decode last_error: %w", err)
	}
	return nil
}

// Classify returns the usernames of managed connectors whose last error is in
// the credential-failure code set, sorted and de-duplicated. Healthy
// connectors, unmanaged connector types, and non-credential error codes are
// all ignored here.
func Classify(snapshot StatusSnapshot, credentialCodes []int) []string {
	codes := make(map[int]struct{}, len(credentialCodes))
	for _, code := range credentialCodes {
		codes[code] = struct{}{}
	}

	seen := make(map[string]struct{})
	var usernames []string
	for _, connector := range snapshot.Connectors {
		if connector.Type != ConnectorTypeChannelAPI {
			continue
		}
		if connector.Username == "" {
			continue
		}
		if _, failing := codes[connector.LastError]; !failing {
			continue
		}
		if _, dup := seen[connector.Username]; dup {
			continue
		}
		seen[connector.Username] = struct{}{}
		usernames = append(usernames, connector.Username)
	}

	sort.Strings(usernames)
	return usernames
}
