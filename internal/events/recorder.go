package events

import (
	"log"
	"sync"
	"time"
)

// Kind labels a watchdog action worth keeping in the journal.
type Kind string

const (
	KindPollFailed        Kind = "poll_failed"
	KindCredentialFailure Kind = "credential_failure"
	KindRenewalSucceeded  Kind = "renewal_succeeded"
	KindRenewalFailed     Kind = "renewal_failed"
	KindRestartIssued     Kind = "restart_issued"
	KindRestartFailed     Kind = "restart_failed"
	KindRestartSuppressed Kind = "restart_suppressed"
)

// Event is one recorded watchdog action.
type Event struct {
	Time   time.Time `json:"time"`
	Kind   Kind      `json:"kind"`
	Detail string    `json:"detail,omitempty"`
}

// Recorder accepts watchdog events.
type Recorder interface {
	Record(event Event)
}

// NoopRecorder discards everything.
type NoopRecorder struct{}

func (NoopRecorder) Record(Event) {}

// Ring keeps the most recent events in a fixed-capacity buffer so the
// monitoring endpoint and diagnostics bundles can show what the watchdog has
// been doing without a log file.
type Ring struct {
	mu       sync.Mutex
	capacity int
	buf      []Event
	next     int
	full     bool
}

// NewRing constructs a ring holding up to capacity events.
func NewRing(capacity int) *Ring {
	if capacity <= 0 {
		capacity = 128
	}
	return &Ring{
		capacity: capacity,
		buf:      make([]Event, capacity),
	}
}

func (r *Ring) Record(event Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.buf[r.next] = event
	r.next = (r.next + 1) % r.capacity
	if r.next == 0 {
		r.full = true
	}
}

// Recent returns the recorded events oldest-first.
func (r *Ring) Recent() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.full {
		out := make([]Event, r.next)
		copy(out, r.buf[:r.next])
		return out
	}
	out := make([]Event, 0, r.capacity)
	out = append(out, r.buf[r.next:]...)
	out = append(out, r.buf[:r.next]...)
	return out
}

// Multi fans events out to several recorders.
type Multi struct {
	recorders []Recorder
}

func NewMulti(recorders ...Recorder) Multi {
	return Multi{recorders: recorders}
}

func (m Multi) Record(event Event) {
	for _, rec := range m.recorders {
		if rec != nil {
			rec.Record(event)
		}
	}
}

// LogRecorder writes each event as a grep-friendly audit line, one kind and
// detail per line, beside whatever narrative logging the producer does.
type LogRecorder struct {
	Logger *log.Logger
}

func (l LogRecorder) Record(event Event) {
	if l.Logger == nil {
		return
	}
	if event.Detail == "" {
		l.Logger.Printf("%s", event.Kind)
		return
	}
	l.Logger.Printf("%s %s", event.Kind, event.Detail)
}
