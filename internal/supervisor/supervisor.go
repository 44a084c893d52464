package supervisor

import (
	"context"
	"fmt"
	"io"
	"log"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/bridgewatchhq/bridgewatch/internal/bridge"
	"github.com/bridgewatchhq/bridgewatch/internal/events"
	"github.com/bridgewatchhq/bridgewatch/internal/metrics"
)

// State is the supervisor's position in its renewal cycle.
type State string

const (
	StatePolling    State = "polling"
	StateRenewing   State = "renewing"
	StateRestarting State = "restarting"
	StateCooldown   State = "cooldown"
)

// Monitor is the bridge control surface the supervisor drives: status polls
// and the restart command.
type Monitor interface {
	Status(ctx context.Context) (bridge.StatusSnapshot, error)
	Restart(ctx context.Context) error
}

// Renewer persists fresh tokens for a set of usernames. pathHint carries the
// config location the bridge reported, if any.
type Renewer interface {
	RenewTokens(ctx context.Context, usernames []string, pathHint string) error
}

// Config holds the static tuning for a supervisor.
type Config struct {
	PollInterval time.Duration
	Cooldown     time.Duration
	// ErrorCodes are the bridge error codes treated as credential failures.
	ErrorCodes []int
}

// Dependencies allow test overrides for the monitor, renewer, clock, limiter,
// and observability sinks.
type Dependencies struct {
	Monitor Monitor
	Renewer Renewer
	Logger  *log.Logger
	Metrics *metrics.Store
	Events  events.Recorder
	Now     func() time.Time
	// RestartLimiter, when set, caps how often restart commands reach the
	// bridge. A suppressed restart is logged and retried on a later cycle.
	RestartLimiter *rate.Limiter
}

// Supervisor runs the watchdog loop: poll the bridge, classify credential
// failures, renew tokens, restart the bridge, cool down, repeat. Transport
// errors never leave the polling state; nothing here is fatal.
type Supervisor struct {
	pollInterval time.Duration
	cooldown     time.Duration
	errorCodes   []int

	monitor  Monitor
	renewer  Renewer
	logger   *log.Logger
	metrics  *metrics.Store
	recorder events.Recorder
	now      func() time.Time
	limiter  *rate.Limiter

	mu    sync.Mutex
	state State
}

// New builds a supervisor from configuration and dependencies.
func New(cfg Config, deps Dependencies) (*Supervisor, error) {
	if deps.Monitor == nil {
		return nil, fmt.Errorf("monitor is required")
	}
	if deps.Renewer == nil {
		return nil, fmt.Errorf("renewer is required")
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = time.Minute
	}
	logger := deps.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	recorder := deps.Events
	if recorder == nil {
		recorder = events.NoopRecorder{}
	}

	return &Supervisor{
		pollInterval: cfg.PollInterval,
		cooldown:     cfg.Cooldown,
		errorCodes:   append([]int{}, cfg.ErrorCodes...),
		monitor:      deps.Monitor,
		renewer:      deps.Renewer,
		logger:       logger,
		metrics:      deps.Metrics,
		recorder:     recorder,
		now:          now,
		limiter:      deps.RestartLimiter,
		state:        StatePolling,
	}, nil
}

// State reports the supervisor's current position in the cycle.
func (s *Supervisor) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Supervisor) setState(next State) {
	s.mu.Lock()
	s.state = next
	s.mu.Unlock()
}

// Run drives the loop until the context is cancelled. There is no terminal
// state.
func (s *Supervisor) Run(ctx context.Context) error {
	s.logger.Printf("supervisor started (poll=%s cooldown=%s codes=%v)", s.pollInterval, s.cooldown, s.errorCodes)

	timer := time.NewTimer(s.pollInterval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
		wait := s.cycle(ctx)
		timer.Reset(wait)
	}
}

// cycle executes one pass of the state machine and returns how long to wait
// before the next poll: the poll interval normally, the cooldown after a
// successful restart.
func (s *Supervisor) cycle(ctx context.Context) time.Duration {
	s.setState(StatePolling)

	snapshot, err := s.monitor.Status(ctx)
	if err != nil {
		s.logger.Printf("status poll failed: %v", err)
		s.observePoll(metrics.OutcomeError)
		s.record(events.KindPollFailed, err.Error())
		return s.pollInterval
	}
	s.observePoll(metrics.OutcomeOK)
	if s.metrics != nil {
		s.metrics.SetLastSuccessfulPoll(float64(s.now().Unix()))
	}

	usernames := bridge.Classify(snapshot, s.errorCodes)
	if s.metrics != nil {
		s.metrics.SetConnectorsFailing(len(usernames))
	}
	if len(usernames) == 0 {
		return s.pollInterval
	}

	s.setState(StateRenewing)
	s.logger.Printf("credential failure reported for %v, renewing tokens", usernames)
	s.record(events.KindCredentialFailure, strings.Join(usernames, ","))
	if err := s.renewer.RenewTokens(ctx, usernames, snapshot.ConfigFile); err != nil {
		s.logger.Printf("token renewal failed: %v", err)
		s.observeRenewal(metrics.OutcomeError)
		s.record(events.KindRenewalFailed, err.Error())
		return s.pollInterval
	}
	s.observeRenewal(metrics.OutcomeOK)
	s.record(events.KindRenewalSucceeded, strings.Join(usernames, ","))

	s.setState(StateRestarting)
	if s.limiter != nil && !s.limiter.Allow() {
		s.logger.Printf("restart suppressed by rate limit, will retry on a later cycle")
		s.observeRestart(metrics.OutcomeSuppressed)
		s.record(events.KindRestartSuppressed, "")
		return s.pollInterval
	}
	if err := s.monitor.Restart(ctx); err != nil {
		// Not retried within this cycle: the next poll re-detects the
		// failure and re-runs the whole renewal.
		s.logger.Printf("restart command failed: %v", err)
		s.observeRestart(metrics.OutcomeError)
		s.record(events.KindRestartFailed, err.Error())
		return s.pollInterval
	}
	s.observeRestart(metrics.OutcomeOK)
	s.record(events.KindRestartIssued, "")

	s.setState(StateCooldown)
	s.logger.Printf("bridge restarting, cooling down for %s", s.cooldown)
	if s.metrics != nil {
		s.metrics.ObserveCooldown()
	}
	return s.cooldown
}

func (s *Supervisor) observePoll(outcome string) {
	if s.metrics != nil {
		s.metrics.ObservePoll(outcome)
	}
}

func (s *Supervisor) observeRenewal(outcome string) {
	if s.metrics != nil {
		s.metrics.ObserveRenewal(outcome)
	}
}

func (s *Supervisor) observeRestart(outcome string) {
	if s.metrics != nil {
		s.metrics.ObserveRestart(outcome)
	}
}

func (s *Supervisor) record(kind events.Kind, detail string) {
	s.recorder.Record(events.Event{Time: s.now().UTC(), Kind: kind, Detail: detail})
}
