// Package breaker implements the circuit breaker guarding calls to the
// downstream compute backend.
//
// The state machine has three states:
//
//   - Closed (initial): calls pass through. Consecutive failures are
//     counted; reaching the threshold opens the circuit. Any success
//     resets the counter to zero.
//   - Open: calls fail fast with ErrOpen without touching the backend.
//     After the reset timeout elapses the next caller is promoted to a
//     half-open trial.
//   - HalfOpen: exactly one in-flight trial call is allowed. Success
//     closes the circuit and resets the counter; failure reopens it and
//     restarts the cooldown. Other callers fail fast while the trial runs.
//
// A Breaker instance is a process-wide singleton per downstream dependency:
// constructed once at startup, shared by reference into every request
// handler, with all state mutation under a single mutex so concurrent
// failures cannot race the counter past the threshold.
package breaker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// ErrOpen is returned when the circuit rejects a call without invoking the
// wrapped dependency. Callers should surface it as a retry-later condition.
var ErrOpen = errors.New("circuit breaker open")

// State enumerates breaker states.
type State int

const (
	Closed State = iota
	Open
	HalfOpen
)

// String returns the conventional lowercase state name.
func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

var (
	// breakerState exposes the current state per breaker (0=closed, 1=open,
	// 2=half_open) so dashboards can alert on stuck-open circuits.
	breakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Current circuit breaker state (0=closed, 1=open, 2=half_open).",
		},
		[]string{"name"},
	)

	// breakerRejects counts fast-failed calls that never reached the
	// dependency.
	breakerRejects = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_rejected_total",
			Help: "Total calls rejected while the circuit was open.",
		},
		[]string{"name"},
	)
)

func init() {
	prometheus.MustRegister(breakerState, breakerRejects)
}

// Breaker wraps calls to a single named downstream dependency. Safe for
// concurrent use.
type Breaker struct {
	name         string
	threshold    int
	resetTimeout time.Duration
	now          func() time.Time

	mu          sync.Mutex
	state       State
	failures    int
	lastFailure time.Time
	trialActive bool
}

// Option customizes a Breaker.
type Option func(*Breaker)

// WithClock overrides the time source (tests).
func WithClock(now func() time.Time) Option {
	return func(b *Breaker) { b.now = now }
}

// New constructs a closed Breaker for the named dependency. threshold is
// the consecutive-failure count that opens the circuit; resetTimeout is the
// cooldown before a half-open trial is permitted.
func New(name string, threshold int, resetTimeout time.Duration, opts ...Option) *Breaker {
	b := &Breaker{
		name:         name,
		threshold:    threshold,
		resetTimeout: resetTimeout,
		now:          time.Now,
		state:        Closed,
	}
	for _, o := range opts {
		o(b)
	}
	breakerState.WithLabelValues(name).Set(float64(Closed))
	return b
}

// State reports the current state, promoting Open to HalfOpen when the
// cooldown has elapsed (observation does not consume the trial slot).
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == Open && b.now().Sub(b.lastFailure) >= b.resetTimeout {
		return HalfOpen
	}
	return b.state
}

// Execute runs fn under the breaker's admission policy. When the circuit is
// open (or a half-open trial is already in flight) it returns ErrOpen
// without calling fn; otherwise fn's own error is returned unchanged and
// accounted as the call outcome.
func (b *Breaker) Execute(ctx context.Context, fn func(context.Context) error) error {
	if err := b.acquire(); err != nil {
		breakerRejects.WithLabelValues(b.name).Inc()
		return err
	}
	err := fn(ctx)
	b.record(err == nil)
	return err
}

// acquire decides whether a call may proceed and performs the
// open → half-open promotion. Must not be held across fn.
func (b *Breaker) acquire() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case Closed:
		return nil
	case Open:
		if b.now().Sub(b.lastFailure) < b.resetTimeout {
			return ErrOpen
		}
		b.setState(HalfOpen)
		b.trialActive = true
		return nil
	case HalfOpen:
		if b.trialActive {
			return ErrOpen
		}
		b.trialActive = true
		return nil
	}
	return nil
}

// record applies the call outcome to the state machine.
func (b *Breaker) record(success bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == HalfOpen {
		b.trialActive = false
		if success {
			b.setState(Closed)
			b.failures = 0
		} else {
			b.setState(Open)
			b.lastFailure = b.now()
		}
		return
	}

	if success {
		b.failures = 0
		return
	}
	b.failures++
	if b.failures >= b.threshold {
		b.setState(Open)
		b.lastFailure = b.now()
	}
}

// setState transitions state and mirrors it to the metric. Caller holds mu.
func (b *Breaker) setState(s State) {
	b.state = s
	breakerState.WithLabelValues(b.name).Set(float64(s))
}
