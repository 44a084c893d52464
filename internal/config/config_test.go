package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

const sampleYAML = `
bridge:
  url: http://127.0.0.1:8810
  config_file: /etc/zellobridge/bridge.json
  key_dir: /etc/zellobridge/keys
  poll_interval: 2s
  cooldown: 90s
  error_codes: [3001, 3002, 3010]
token:
  validity: 5m
monitoring:
  addr: 127.0.0.1:9999
`

func TestLoad(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	path := filepath.Join(dir, "bridgewatch.yaml")

	if err := os.WriteFile(path, []byte(sampleYAML), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(ctx, path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Bridge.ConfigFile != "/etc/zellobridge/bridge.json" {
		t.Fatalf("unexpected config_file: %s", cfg.Bridge.ConfigFile)
	}
	if cfg.Bridge.PollInterval != 2*time.Second {
		t.Fatalf("unexpected poll_interval: %s", cfg.Bridge.PollInterval)
	}
	if cfg.Bridge.Cooldown != 90*time.Second {
		t.Fatalf("unexpected cooldown: %s", cfg.Bridge.Cooldown)
	}
	if len(cfg.Bridge.ErrorCodes) != 3 || cfg.Bridge.ErrorCodes[2] != 3010 {
		t.Fatalf("unexpected error_codes: %#v", cfg.Bridge.ErrorCodes)
	}
	if cfg.Token.Validity != 5*time.Minute {
		t.Fatalf("unexpected token validity: %s", cfg.Token.Validity)
	}
	if cfg.Monitoring.Addr != "127.0.0.1:9999" {
		t.Fatalf("unexpected monitoring addr: %s", cfg.Monitoring.Addr)
	}
}

func TestLoadAppliesDefaults(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	path := filepath.Join(dir, "bridgewatch.yaml")

	minimal := "bridge:\n  config_file: /tmp/bridge.json\n"
	if err := os.WriteFile(path, []byte(minimal), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(ctx, path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Bridge.URL != defaultBridgeURL {
		t.Fatalf("unexpected default URL: %s", cfg.Bridge.URL)
	}
	if cfg.Bridge.PollInterval != defaultPollInterval {
		t.Fatalf("unexpected default poll interval: %s", cfg.Bridge.PollInterval)
	}
	if len(cfg.Bridge.ErrorCodes) != 2 || cfg.Bridge.ErrorCodes[0] != 3001 || cfg.Bridge.ErrorCodes[1] != 3002 {
		t.Fatalf("unexpected default error codes: %#v", cfg.Bridge.ErrorCodes)
	}
	if cfg.Token.Validity != defaultTokenValidity {
		t.Fatalf("unexpected default validity: %s", cfg.Token.Validity)
	}
}

func TestPathFromEnv(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	path := filepath.Join(dir, "bridgewatch.yaml")

	if err := os.WriteFile(path, []byte(sampleYAML), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	t.Setenv(envConfigPath, "")
	if got := PathFromEnv(); got != DefaultConfigPath {
		t.Fatalf("PathFromEnv with unset env = %s, want %s", got, DefaultConfigPath)
	}

	t.Setenv(envConfigPath, path)
	if got := PathFromEnv(); got != path {
		t.Fatalf("PathFromEnv = %s, want %s", got, path)
	}

	cfg, err := Load(ctx, PathFromEnv())
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Bridge.KeyDir != "/etc/zellobridge/keys" {
		t.Fatalf("unexpected key dir: %s", cfg.Bridge.KeyDir)
	}
}
