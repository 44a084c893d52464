package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Store exposes Prometheus metrics for the watchdog loop.
type Store struct {
	registry *prometheus.Registry

	polls         *prometheus.CounterVec
	renewals      *prometheus.CounterVec
	restarts      *prometheus.CounterVec
	cooldowns     prometheus.Counter
	failingGauge  prometheus.Gauge
	lastPollGauge prometheus.Gauge
}

// Outcome labels for loop counters.
const (
	OutcomeOK         = "ok"
	OutcomeError      = "error"
	OutcomeSuppressed = "suppressed"
)

// NewStore constructs a Store with a private registry.
func NewStore() (*Store, error) {
	registry := prometheus.NewRegistry()

	polls := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "bridgewatch",
		Subsystem: "supervisor",
		Name:      "polls_total",
		Help:      "Total status polls, by outcome.",
	}, []string{"outcome"})

	renewals := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "bridgewatch",
		Subsystem: "supervisor",
		Name:      "renewals_total",
		Help:      "Total token renewal batches, by outcome.",
	}, []string{"outcome"})

	restarts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "bridgewatch",
		Subsystem: "supervisor",
		Name:      "restarts_total",
		Help:      "Total bridge restart commands, by outcome.",
	}, []string{"outcome"})

	cooldowns := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "bridgewatch",
		Subsystem: "supervisor",
		Name:      "cooldowns_total",
		Help:      "Total cooldown periods entered after a restart.",
	})

	failingGauge := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "bridgewatch",
		Subsystem: "bridge",
		Name:      "connectors_failing",
		Help:      "Managed connectors reporting a credential failure in the last poll.",
	})

	lastPollGauge := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "bridgewatch",
		Subsystem: "bridge",
		Name:      "last_successful_poll_timestamp_seconds",
		Help:      "Unix time of the last successful status poll.",
	})

	for _, collector := range []prometheus.Collector{
		polls, renewals, restarts, cooldowns, failingGauge, lastPollGauge,
	} {
		if err := registry.Register(collector); err != nil {
			return nil, err
		}
	}

	return &Store{
		registry:      registry,
		polls:         polls,
		renewals:      renewals,
		restarts:      restarts,
		cooldowns:     cooldowns,
		failingGauge:  failingGauge,
		lastPollGauge: lastPollGauge,
	}, nil
}

// Handler returns an HTTP handler exposing the registry.
func (s *Store) Handler() http.Handler {
	return promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})
}

func (s *Store) ObservePoll(outcome string) {
	s.polls.WithLabelValues(outcome).Inc()
}

func (s *Store) ObserveRenewal(outcome string) {
	s.renewals.WithLabelValues(outcome).Inc()
}

func (s *Store) ObserveRestart(outcome string) {
	s.restarts.WithLabelValues(outcome).Inc()
}

func (s *Store) ObserveCooldown() {
	s.cooldowns.Inc()
}

func (s *Store) SetConnectorsFailing(n int) {
	s.failingGauge.Set(float64(n))
}

func (s *Store) SetLastSuccessfulPoll(unixSeconds float64) {
	s.lastPollGauge.Set(unixSeconds)
}
