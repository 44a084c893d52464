package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/bridgewatchhq/bridgewatch/internal/bridge"
	"github.com/bridgewatchhq/bridgewatch/internal/config"
	"github.com/bridgewatchhq/bridgewatch/internal/diag"
	"github.com/bridgewatchhq/bridgewatch/internal/events"
	"github.com/bridgewatchhq/bridgewatch/internal/keys"
	"github.com/bridgewatchhq/bridgewatch/internal/logging"
	"github.com/bridgewatchhq/bridgewatch/internal/metrics"
	"github.com/bridgewatchhq/bridgewatch/internal/store"
	"github.com/bridgewatchhq/bridgewatch/internal/supervisor"
	"github.com/bridgewatchhq/bridgewatch/internal/token"
)

func main() {
	ctx := context.Background()

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	var err error

	switch cmd {
	case "run":
		err = run(ctx, os.Args[2:])
	case "mint":
		err = mint(ctx, os.Args[2:])
	case "renew":
		err = renew(ctx, os.Args[2:])
	case "diag":
		err = diag.Run(ctx, os.Args[2:], diag.Dependencies{})
	case "-h", "--help", "help":
		printUsage()
		return
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", cmd)
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "command %s failed: %v\n", cmd, err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("ZelloBridge watchdog")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  bridgewatch run [--config /etc/bridgewatch/bridgewatch.yaml]")
	fmt.Println("  bridgewatch mint --username NAME [--config path] [--validity 2m]")
	fmt.Println("  bridgewatch renew --usernames a,b [--config path]")
	fmt.Println("  bridgewatch diag [--config path] [--output file]")
}

func run(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	configPath := fs.String("config", config.PathFromEnv(), "Path to watchdog configuration file")

	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := loadOrDefault(ctx, *configPath)
	if err != nil {
		return err
	}

	logger := logging.New()
	logger.Printf("watchdog starting (bridge=%s config=%s)", cfg.Bridge.URL, displayPath(cfg.Bridge.ConfigFile))

	metricsStore, err := metrics.NewStore()
	if err != nil {
		return fmt.Errorf("init metrics: %w", err)
	}
	journal := events.NewRing(256)
	recorder := events.NewMulti(journal, events.LogRecorder{Logger: logging.Component(logger, "event")})

	client, err := bridge.NewClient(
		bridge.Config{BridgeURL: cfg.Bridge.URL},
		bridge.Dependencies{
			HTTPClient: bridge.NewHTTPClient(cfg.Bridge.RequestTimeout),
			Logger:     logging.Component(logger, "bridge"),
		},
	)
	if err != nil {
		return fmt.Errorf("init bridge client: %w", err)
	}

	storeLogger := logging.Component(logger, "store")
	configStore := &store.Store{
		Path:   cfg.Bridge.ConfigFile,
		Tokens: tokenSource(cfg, storeLogger),
		Logger: storeLogger,
	}

	sup, err := supervisor.New(
		supervisor.Config{
			PollInterval: cfg.Bridge.PollInterval,
			Cooldown:     cfg.Bridge.Cooldown,
			ErrorCodes:   cfg.Bridge.ErrorCodes,
		},
		supervisor.Dependencies{
			Monitor:        client,
			Renewer:        configStore,
			Logger:         logger,
			Metrics:        metricsStore,
			Events:         recorder,
			RestartLimiter: rate.NewLimiter(rate.Every(cfg.Bridge.MinRestartSpacing), 1),
		},
	)
	if err != nil {
		return fmt.Errorf("init supervisor: %w", err)
	}

	runCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	grp, groupCtx := errgroup.WithContext(runCtx)

	grp.Go(func() error {
		if err := sup.Run(groupCtx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})

	grp.Go(func() error {
		return serveMonitoring(groupCtx, cfg.Monitoring.Addr, metricsStore, sup, journal, logger)
	})

	if err := grp.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		stop()
		return err
	}

	logger.Printf("watchdog stopped")
	return nil
}

func mint(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("mint", flag.ContinueOnError)
	configPath := fs.String("config", config.PathFromEnv(), "Path to watchdog configuration file")
	username := fs.String("username", "", "Account to mint a token for")
	validity := fs.Duration("validity", 0, "Override the configured token validity")

	if err := fs.Parse(args); err != nil {
		return err
	}
	if *username == "" {
		return fmt.Errorf("--username is required")
	}

	cfg, err := loadOrDefault(ctx, *configPath)
	if err != nil {
		return err
	}
	if *validity > 0 {
		cfg.Token.Validity = *validity
	}

	signed, err := tokenSource(cfg, nil).Token(*username)
	if err != nil {
		return err
	}

	fmt.Println(signed)
	return nil
}

func renew(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("renew", flag.ContinueOnError)
	configPath := fs.String("config", config.PathFromEnv(), "Path to watchdog configuration file")
	usernames := fs.String("usernames", "", "Comma-separated accounts to renew")

	if err := fs.Parse(args); err != nil {
		return err
	}

	targets := splitUsernames(*usernames)
	if len(targets) == 0 {
		return fmt.Errorf("--usernames is required")
	}

	cfg, err := loadOrDefault(ctx, *configPath)
	if err != nil {
		return err
	}
	if cfg.Bridge.ConfigFile == "" {
		return fmt.Errorf("bridge config_file must be configured for one-shot renewal")
	}

	logger := logging.New()
	configStore := &store.Store{
		Path:   cfg.Bridge.ConfigFile,
		Tokens: tokenSource(cfg, logger),
		Logger: logger,
	}
	return configStore.RenewTokens(ctx, targets, "")
}

// tokenSource wires the key loader and minter for the configured key
// directory. With no key_dir configured, key material is expected beside the
// bridge config file, matching how operators lay the files out.
func tokenSource(cfg config.Config, logger *log.Logger) store.TokenSource {
	keyDir := resolveKeyDir(cfg)
	if logger != nil {
		logger.Printf("loading key material from %s", keyDir)
	}
	return token.Source{
		Loader: keys.DirLoader{Dir: keyDir},
		Minter: &token.Minter{Validity: cfg.Token.Validity},
	}
}

func resolveKeyDir(cfg config.Config) string {
	if cfg.Bridge.KeyDir != "" {
		return cfg.Bridge.KeyDir
	}
	if cfg.Bridge.ConfigFile != "" {
		return filepath.Dir(cfg.Bridge.ConfigFile)
	}
	return "."
}

// loadOrDefault falls back to built-in defaults when the config file at the
// default location does not exist; an explicitly unreadable file is an error.
func loadOrDefault(ctx context.Context, path string) (config.Config, error) {
	cfg, err := config.Load(ctx, path)
	if err == nil {
		return cfg, nil
	}
	if errors.Is(err, os.ErrNotExist) && path == config.DefaultConfigPath {
		return config.Default(), nil
	}
	return config.Config{}, err
}

func displayPath(path string) string {
	if path == "" {
		return "(from bridge status)"
	}
	return path
}

func serveMonitoring(ctx context.Context, addr string, store *metrics.Store, sup *supervisor.Supervisor, journal *events.Ring, logger *log.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", store.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, "state=%s\n", sup.State())
	})
	mux.HandleFunc("/events", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(journal.Recent())
	})

	srv := &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Printf("monitoring listening on http://%s", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if err == nil || errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func splitUsernames(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
