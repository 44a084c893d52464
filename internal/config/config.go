package config

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	envConfigPath     = "BRIDGEWATCH_CONFIG"
	DefaultConfigPath = "/etc/bridgewatch/bridgewatch.yaml"
)

const (
	defaultBridgeURL       = "http://127.0.0.1:8810"
	defaultPollInterval    = time.Second
	defaultCooldown        = time.Minute
	defaultRequestTimeout  = 5 * time.Second
	defaultTokenValidity   = 2 * time.Minute
	defaultMinRestartSpace = 30 * time.Second
	defaultMonitorAddr     = "127.0.0.1:9410"
)

// defaultErrorCodes are the bridge error codes denoting an expired (3001) or
// rejected (3002) channel token.
var defaultErrorCodes = []int{3001, 3002}

type Config struct {
	Bridge     BridgeConfig     `yaml:"bridge"`
	Token      TokenConfig      `yaml:"token"`
	Monitoring MonitoringConfig `yaml:"monitoring"`
}

type BridgeConfig struct {
	URL            string        `yaml:"url"`
	ConfigFile     string        `yaml:"config_file"`
	KeyDir         string        `yaml:"key_dir"`
	PollInterval   time.Duration `yaml:"poll_interval"`
	Cooldown       time.Duration `yaml:"cooldown"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	ErrorCodes     []int         `yaml:"error_codes"`
	// MinRestartSpacing is the floor between two restart commands issued to
	// the bridge, independent of how often renewal triggers.
	MinRestartSpacing time.Duration `yaml:"min_restart_spacing"`
}

type TokenConfig struct {
	Validity time.Duration `yaml:"validity"`
}

type MonitoringConfig struct {
	Addr string `yaml:"addr"`
}

func Load(ctx context.Context, path string) (Config, error) {
	var cfg Config

	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return cfg, fmt.Errorf("open config %q: %w", path, err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return cfg, fmt.Errorf("read config %q: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %q: %w", path, err)
	}

	cfg.applyDefaults()
	return cfg, nil
}

// PathFromEnv returns the config path named by the BRIDGEWATCH_CONFIG
// environment variable, or DefaultConfigPath when it is unset. Subcommands use
// it as their --config default so the env override applies everywhere.
func PathFromEnv() string {
	if path := os.Getenv(envConfigPath); path != "" {
		return path
	}
	return DefaultConfigPath
}

// Default returns a configuration with every knob at its baseline value, for
// running without a config file.
func Default() Config {
	var cfg Config
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.Bridge.URL == "" {
		c.Bridge.URL = defaultBridgeURL
	}
	if c.Bridge.PollInterval <= 0 {
		c.Bridge.PollInterval = defaultPollInterval
	}
	if c.Bridge.Cooldown <= 0 {
		c.Bridge.Cooldown = defaultCooldown
	}
	if c.Bridge.RequestTimeout <= 0 {
		c.Bridge.RequestTimeout = defaultRequestTimeout
	}
	if len(c.Bridge.ErrorCodes) == 0 {
		c.Bridge.ErrorCodes = append([]int{}, defaultErrorCodes...)
	}
	if c.Bridge.MinRestartSpacing <= 0 {
		c.Bridge.MinRestartSpacing = defaultMinRestartSpace
	}
	if c.Token.Validity <= 0 {
		c.Token.Validity = defaultTokenValidity
	}
	if c.Monitoring.Addr == "" {
		c.Monitoring.Addr = defaultMonitorAddr
	}
}
