package main

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/bridgewatchhq/bridgewatch/internal/config"
)

func TestSplitUsernames(t *testing.T) {
	tests := []struct {
		raw  string
		want []string
	}{
		{"", nil},
		{"alice", []string{"alice"}},
		{"alice,bob", []string{"alice", "bob"}},
		{" alice , bob ,, ", []string{"alice", "bob"}},
	}

	for _, tc := range tests {
		if got := splitUsernames(tc.raw); !reflect.DeepEqual(got, tc.want) {
			t.Fatalf("splitUsernames(%q) = %v, want %v", tc.raw, got, tc.want)
		}
	}
}

func TestResolveKeyDir(t *testing.T) {
	cfg := config.Default()
	cfg.Bridge.KeyDir = "/etc/zellobridge/keys"
	cfg.Bridge.ConfigFile = "/etc/zellobridge/bridge.json"
	if got := resolveKeyDir(cfg); got != "/etc/zellobridge/keys" {
		t.Fatalf("expected configured key dir, got %q", got)
	}

	cfg.Bridge.KeyDir = ""
	if got := resolveKeyDir(cfg); got != "/etc/zellobridge" {
		t.Fatalf("expected config-file directory, got %q", got)
	}

	cfg.Bridge.ConfigFile = ""
	if got := resolveKeyDir(cfg); got != "." {
		t.Fatalf("expected current directory fallback, got %q", got)
	}
}

func TestLoadOrDefaultFallsBackAtDefaultPathOnly(t *testing.T) {
	ctx := context.Background()

	cfg, err := loadOrDefault(ctx, config.DefaultConfigPath)
	if err != nil {
		t.Fatalf("expected defaults when default config is absent, got %v", err)
	}
	if cfg.Bridge.URL == "" {
		t.Fatalf("expected defaults applied")
	}

	missing := filepath.Join(t.TempDir(), "nope.yaml")
	if _, err := loadOrDefault(ctx, missing); err == nil {
		t.Fatalf("expected error for missing explicit config path")
	}
}

func TestConfigEnvOverrideReachesLoad(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "bridgewatch.yaml")
	content := "bridge:\n  url: http://127.0.0.1:9002\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	t.Setenv("BRIDGEWATCH_CONFIG", path)

	cfg, err := loadOrDefault(ctx, config.PathFromEnv())
	if err != nil {
		t.Fatalf("loadOrDefault returned error: %v", err)
	}
	if cfg.Bridge.URL != "http://127.0.0.1:9002" {
		t.Fatalf("env-selected config not loaded, URL = %s", cfg.Bridge.URL)
	}

	// An env-selected path that does not exist is an error, not a silent
	// fall-back to defaults.
	t.Setenv("BRIDGEWATCH_CONFIG", filepath.Join(t.TempDir(), "nope.yaml"))
	if _, err := loadOrDefault(ctx, config.PathFromEnv()); err == nil {
		t.Fatalf("expected error for missing env-selected config path")
	}
}

func TestLoadOrDefaultReadsExplicitConfig(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "bridgewatch.yaml")
	content := "bridge:\n  url: http://127.0.0.1:9001\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := loadOrDefault(ctx, path)
	if err != nil {
		t.Fatalf("loadOrDefault returned error: %v", err)
	}
	if cfg.Bridge.URL != "http://127.0.0.1:9001" {
		t.Fatalf("unexpected bridge URL: %s", cfg.Bridge.URL)
	}
}
