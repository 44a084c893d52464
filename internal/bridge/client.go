package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"
)

const (
	defaultStatusPath  = "/status"
	defaultRestartPath = "/restart"
)

// Config holds the static configuration for a bridge control-endpoint client.
type Config struct {
	BridgeURL string
}

// Dependencies allow test overrides for HTTP client, clock, and logging.
type Dependencies struct {
	HTTPClient  *http.Client
	Logger      *log.Logger
	StatusPath  string
	RestartPath string
}

// Client talks to the bridge's local control endpoint: read-only status polls
// and the restart command.
type Client struct {
	httpClient *http.Client
	statusURL  string
	restartURL string
	logger     *log.Logger
}

// NewClient builds a bridge client from configuration and dependencies.
func NewClient(cfg Config, deps Dependencies) (*Client, error) {
	if cfg.BridgeURL == "" {
		return nil, fmt.Errorf("bridge URL is required")
	}
	httpClient := deps.HTTPClient
	if httpClient == nil {
		return nil, fmt.Errorf("HTTP client is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	statusPath := deps.StatusPath
	if statusPath == "" {
		statusPath = defaultStatusPath
	}
	restartPath := deps.RestartPath
	if restartPath == "" {
		restartPath = defaultRestartPath
	}

	return &Client{
		httpClient: httpClient,
		statusURL:  joinURL(cfg.BridgeURL, statusPath),
		restartURL: joinURL(cfg.BridgeURL, restartPath),
		logger:     logger,
	}, nil
}

// Status fetches the bridge's current connector status. Any transport failure
// or non-2xx response is returned as an error; callers treat those as the
// bridge being transiently unavailable.
func (c *Client) Status(ctx context.Context) (StatusSnapshot, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.statusURL, nil)
	if err != nil {
		return StatusSnapshot{}, fmt.Errorf("build status request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return StatusSnapshot{}, fmt.Errorf("fetch status: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return StatusSnapshot{}, fmt.Errorf("read status response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return StatusSnapshot{}, fmt.Errorf("status fetch failed: status %s", resp.Status)
	}

	var snapshot StatusSnapshot
	if err := json.Unmarshal(body, &snapshot); err != nil {
		return StatusSnapshot{}, fmt.Errorf("decode status snapshot: %w", err)
	}
	return snapshot, nil
}

// Restart commands the bridge to restart so it reloads its configuration.
// Any 2xx response is success.
func (c *Client) Restart(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.restartURL, nil)
	if err != nil {
		return fmt.Errorf("build restart request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send restart: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("restart failed: status %s", resp.Status)
	}

	c.logger.Printf("restart command accepted: %s", resp.Status)
	return nil
}

func joinURL(base, path string) string {
	if base == "" {
		return path
	}
	base = strings.TrimRight(base, "/")
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return base + path
}

// NewHTTPClient returns the http.Client used for bridge control requests,
// bounded so a wedged endpoint cannot hang the watchdog.
func NewHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			Proxy:               nil,
			MaxIdleConnsPerHost: 2,
		},
	}
}
