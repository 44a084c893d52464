package diag

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/bridgewatchhq/bridgewatch/internal/keys"
)

type fakeLoader struct {
	err error
}

func (l fakeLoader) Load(string) (keys.Identity, error) {
	return keys.Identity{}, l.err
}

func runDiag(t *testing.T, configYAML string, loaderErr error, client *http.Client) Report {
	t.Helper()
	dir := t.TempDir()
	configPath := filepath.Join(dir, "bridgewatch.yaml")
	if err := os.WriteFile(configPath, []byte(configYAML), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	outputPath := filepath.Join(dir, "report.json")

	deps := Dependencies{
		HTTPClient: client,
		Loader:     func(string) keys.Loader { return fakeLoader{err: loaderErr} },
	}
	args := []string{"--config", configPath, "--output", outputPath}
	if err := Run(context.Background(), args, deps); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	data, err := os.ReadFile(outputPath)
	if err != nil {
		t.Fatalf("read report: %v", err)
	}
	var report Report
	if err := json.Unmarshal(data, &report); err != nil {
		t.Fatalf("decode report: %v", err)
	}
	return report
}

func TestRunHealthyBridge(t *testing.T) {
	dir := t.TempDir()
	bridgeConfig := filepath.Join(dir, "bridge.json")
	content := `{"links": [{"connectors": [{"type": "zello-channel-api", "username": "alice", "token": "t"}]}]}`
	if err := os.WriteFile(bridgeConfig, []byte(content), 0o640); err != nil {
		t.Fatalf("write bridge config: %v", err)
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"config_file": %q, "connectors": [{"type": "zello-channel-api", "username": "alice", "last_error": 0}]}`, bridgeConfig)
	}))
	defer server.Close()

	configYAML := fmt.Sprintf("bridge:\n  url: %s\n  config_file: %s\n", server.URL, bridgeConfig)
	report := runDiag(t, configYAML, nil, server.Client())

	if !report.Bridge.Reachable {
		t.Fatalf("expected bridge reachable, warnings: %v", report.Warnings)
	}
	if !report.ConfigFile.Exists || !report.ConfigFile.ValidJSON {
		t.Fatalf("expected config file report healthy: %+v", report.ConfigFile)
	}
	if report.ConfigFile.Managed != 1 {
		t.Fatalf("expected 1 managed connector, got %d", report.ConfigFile.Managed)
	}
	if len(report.Accounts) != 1 || !report.Accounts[0].MaterialOK {
		t.Fatalf("expected alice's key material ok: %+v", report.Accounts)
	}
	if len(report.Warnings) != 0 {
		t.Fatalf("expected no warnings, got %v", report.Warnings)
	}
}

func TestRunUnreachableBridge(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	server.Close()

	configYAML := fmt.Sprintf("bridge:\n  url: %s\n", server.URL)
	report := runDiag(t, configYAML, nil, &http.Client{})

	if report.Bridge.Reachable {
		t.Fatalf("expected bridge unreachable")
	}
	if len(report.Warnings) == 0 {
		t.Fatalf("expected warnings for unreachable bridge")
	}
}

func TestRunFlagsMissingKeyMaterial(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"connectors": [{"type": "zello-channel-api", "username": "alice", "last_error": 3001}]}`)
	}))
	defer server.Close()

	configYAML := fmt.Sprintf("bridge:\n  url: %s\n  key_dir: /nonexistent\n", server.URL)
	report := runDiag(t, configYAML, keys.ErrMissingKey, server.Client())

	if len(report.Accounts) != 1 {
		t.Fatalf("expected one account, got %+v", report.Accounts)
	}
	if report.Accounts[0].MaterialOK {
		t.Fatalf("expected key material flagged missing")
	}
	if len(report.Warnings) == 0 {
		t.Fatalf("expected warning for missing key material")
	}
}
