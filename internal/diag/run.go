// Package diag implements the support-bundle command: a one-shot health
// report covering the watchdog configuration, the bridge's status endpoint,
// the bridge config file, and the key material for every managed connector.
package diag

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/tidwall/gjson"

	"github.com/bridgewatchhq/bridgewatch/internal/bridge"
	"github.com/bridgewatchhq/bridgewatch/internal/config"
	"github.com/bridgewatchhq/bridgewatch/internal/keys"
)

// Dependencies provides optional overrides for testing.
type Dependencies struct {
	Now        func() time.Time
	HTTPClient *http.Client
	Loader     func(dir string) keys.Loader
}

// Report is the diagnostics output, written as indented JSON.
type Report struct {
	GeneratedAt string           `json:"generated_at"`
	ConfigPath  string           `json:"config_path"`
	BridgeURL   string           `json:"bridge_url"`
	Bridge      BridgeReport     `json:"bridge"`
	ConfigFile  ConfigFileReport `json:"bridge_config"`
	Accounts    []AccountReport  `json:"accounts"`
	Warnings    []string         `json:"warnings"`
}

type BridgeReport struct {
	Reachable  bool                     `json:"reachable"`
	Error      string                   `json:"error,omitempty"`
	Connectors []bridge.ConnectorStatus `json:"connectors,omitempty"`
}

type ConfigFileReport struct {
	Path      string `json:"path,omitempty"`
	Exists    bool   `json:"exists"`
	ValidJSON bool   `json:"valid_json"`
	Managed   int    `json:"managed_connectors"`
}

type AccountReport struct {
	Username   string `json:"username"`
	MaterialOK bool   `json:"material_ok"`
	Error      string `json:"error,omitempty"`
}

// Run executes the diagnostics workflow and writes the report.
func Run(ctx context.Context, args []string, deps Dependencies) error {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Loader == nil {
		deps.Loader = func(dir string) keys.Loader { return keys.DirLoader{Dir: dir} }
	}

	fs := flag.NewFlagSet("diag", flag.ContinueOnError)
	configPath := fs.String("config", config.PathFromEnv(), "Path to watchdog configuration file")
	outputPath := fs.String("output", "", "Write the report to a file instead of stdout")
	timeout := fs.Duration("timeout", 3*time.Second, "HTTP timeout for the bridge status probe")

	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := config.Load(ctx, *configPath)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) || *configPath != config.DefaultConfigPath {
			return err
		}
		cfg = config.Default()
	}

	httpClient := deps.HTTPClient
	if httpClient == nil {
		httpClient = bridge.NewHTTPClient(*timeout)
	}

	report := Report{
		GeneratedAt: deps.Now().UTC().Format(time.RFC3339),
		ConfigPath:  *configPath,
		BridgeURL:   cfg.Bridge.URL,
		Warnings:    []string{},
	}

	snapshot := probeBridge(ctx, cfg, httpClient, &report)
	examineConfigFile(cfg, snapshot, &report)
	examineAccounts(cfg, &report, deps.Loader)

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	data = append(data, '\n')

	if *outputPath == "" {
		_, err = os.Stdout.Write(data)
		return err
	}
	if err := os.WriteFile(*outputPath, data, 0o640); err != nil {
		return fmt.Errorf("write report %q: %w", *outputPath, err)
	}
	return nil
}

func probeBridge(ctx context.Context, cfg config.Config, httpClient *http.Client, report *Report) bridge.StatusSnapshot {
	client, err := bridge.NewClient(
		bridge.Config{BridgeURL: cfg.Bridge.URL},
		bridge.Dependencies{HTTPClient: httpClient},
	)
	if err != nil {
		report.Bridge.Error = err.Error()
		report.Warnings = append(report.Warnings, "bridge client: "+err.Error())
		return bridge.StatusSnapshot{}
	}

	snapshot, err := client.Status(ctx)
	if err != nil {
		report.Bridge.Error = err.Error()
		report.Warnings = append(report.Warnings, "bridge unreachable: "+err.Error())
		return bridge.StatusSnapshot{}
	}
	report.Bridge.Reachable = true
	report.Bridge.Connectors = snapshot.Connectors
	return snapshot
}

func examineConfigFile(cfg config.Config, snapshot bridge.StatusSnapshot, report *Report) {
	path := cfg.Bridge.ConfigFile
	if path == "" {
		path = snapshot.ConfigFile
	}
	report.ConfigFile.Path = path
	if path == "" {
		report.Warnings = append(report.Warnings, "bridge config path neither configured nor reported")
		return
	}

	data, err := os.ReadFile(path)
	if err != nil {
		report.Warnings = append(report.Warnings, "bridge config: "+err.Error())
		return
	}
	report.ConfigFile.Exists = true
	if !gjson.ValidBytes(data) {
		report.Warnings = append(report.Warnings, "bridge config is not valid JSON")
		return
	}
	report.ConfigFile.ValidJSON = true
	report.ConfigFile.Managed = countManaged(data)
}

func countManaged(data []byte) int {
	count := 0
	tally := func(connectors gjson.Result) {
		connectors.ForEach(func(_, connector gjson.Result) bool {
			if connector.Get("type").String() == bridge.ConnectorTypeChannelAPI {
				count++
			}
			return true
		})
	}
	doc := gjson.ParseBytes(data)
	doc.Get("links").ForEach(func(_, link gjson.Result) bool {
		tally(link.Get("connectors"))
		return true
	})
	tally(doc.Get("connectors"))
	return count
}

// examineAccounts checks that each managed connector the bridge reports has
// loadable key material.
func examineAccounts(cfg config.Config, report *Report, newLoader func(string) keys.Loader) {
	keyDir := cfg.Bridge.KeyDir
	if keyDir == "" && report.ConfigFile.Path != "" {
		keyDir = filepath.Dir(report.ConfigFile.Path)
	}
	if keyDir == "" {
		keyDir = "."
	}
	loader := newLoader(keyDir)

	seen := map[string]struct{}{}
	for _, connector := range report.Bridge.Connectors {
		if connector.Type != bridge.ConnectorTypeChannelAPI || connector.Username == "" {
			continue
		}
		if _, dup := seen[connector.Username]; dup {
			continue
		}
		seen[connector.Username] = struct{}{}

		account := AccountReport{Username: connector.Username}
		if _, err := loader.Load(connector.Username); err != nil {
			account.Error = err.Error()
			report.Warnings = append(report.Warnings, connector.Username+": "+err.Error())
		} else {
			account.MaterialOK = true
		}
		report.Accounts = append(report.Accounts, account)
	}
}
