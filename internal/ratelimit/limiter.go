// Package ratelimit implements the per-user request quota against a shared
// Redis counter store.
//
// The algorithm is a fixed window: each (user, window-start) pair maps to a
// Redis key that is atomically incremented on every request and expires
// with the window. Atomicity is delegated to Redis: INCR is single-threaded
// on the server, so two simultaneous requests can never both observe a
// stale count.
//
// Store unavailability is a deliberate policy knob: fail-open admits
// traffic when Redis is down (the limiter is cost protection, not
// authorization), fail-closed rejects it. Every fail-open admission is
// counted so the degradation is visible on dashboards.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
)

var rateDecisions = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "rate_limit_decisions_total",
		Help: "Rate limiter decisions by outcome (allowed, denied, error_open, error_closed).",
	},
	[]string{"outcome"},
)

func init() {
	prometheus.MustRegister(rateDecisions)
}

// Result is the outcome of a quota check.
type Result struct {
	// Allowed reports whether the request may proceed.
	Allowed bool
	// Remaining is the quota left in the current window (0 when denied).
	Remaining int
	// RetryAfter is the time until the current window rolls, populated on
	// denials so handlers can emit a Retry-After header.
	RetryAfter time.Duration
}

// Limiter bounds request volume per user id. Safe for concurrent use; a
// single instance is shared across all request handlers.
type Limiter struct {
	rdb      redis.Cmdable
	limit    int
	window   time.Duration
	failOpen bool
	now      func() time.Time
}

// Option customizes a Limiter.
type Option func(*Limiter)

// WithClock overrides the time source (tests).
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) { l.now = now }
}

// New constructs a Limiter allowing limit requests per window per user.
// failOpen selects the admission policy when the counter store errors.
func New(rdb redis.Cmdable, limit int, window time.Duration, failOpen bool, opts ...Option) *Limiter {
	l := &Limiter{
		rdb:      rdb,
		limit:    limit,
		window:   window,
		failOpen: failOpen,
		now:      time.Now,
	}
	for _, o := range opts {
		o(l)
	}
	return l
}

// Allow atomically increments the user's counter for the current window and
// compares it to the configured limit. The error is non-nil only when the
// counter store failed; Result.Allowed then reflects the fail-open policy
// and callers should log the error rather than surface it.
func (l *Limiter) Allow(ctx context.Context, userID string) (Result, error) {
	now := l.now()
	windowStart := now.Truncate(l.window)
	key := fmt.Sprintf("ratelimit:%s:%d", userID, windowStart.Unix())

	pipe := l.rdb.TxPipeline()
	incr := pipe.Incr(ctx, key)
	// Expire keeps abandoned windows from accumulating; a second window of
	// slack covers clients still draining at the boundary.
	pipe.Expire(ctx, key, 2*l.window)
	if _, err := pipe.Exec(ctx); err != nil {
		if l.failOpen {
			rateDecisions.WithLabelValues("error_open").Inc()
			return Result{Allowed: true, Remaining: l.limit}, err
		}
		rateDecisions.WithLabelValues("error_closed").Inc()
		return Result{Allowed: false}, err
	}

	count := int(incr.Val())
	if count > l.limit {
		rateDecisions.WithLabelValues("denied").Inc()
		return Result{
			Allowed:    false,
			RetryAfter: windowStart.Add(l.window).Sub(now),
		}, nil
	}
	rateDecisions.WithLabelValues("allowed").Inc()
	return Result{Allowed: true, Remaining: l.limit - count}, nil
}
