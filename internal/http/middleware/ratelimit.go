// Package middleware contains the shared Gin middleware of the HTTP layer.
//
// This file implements the edge rate limiter: a process-local, per-IP token
// bucket applied before authentication. It is abuse control for the
// unauthenticated surface (token endpoint, probes, garbage traffic); the
// authoritative per-user quota lives in the Redis-backed limiter applied
// after authentication.
//
// Buckets are created on demand and idle ones are garbage-collected
// opportunistically during lookups so memory stays bounded.
package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// keyFunc maps a request to its bucket identity.
type keyFunc func(*gin.Context) string

// KeyByClientIP keys buckets by the client IP address.
func KeyByClientIP() keyFunc {
	return func(c *gin.Context) string {
		return "ip:" + c.ClientIP()
	}
}

// visitor pairs a bucket with its last activity for idle eviction.
type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// EdgeLimiter is a per-key token-bucket limiter. Safe for concurrent use.
type EdgeLimiter struct {
	rps   rate.Limit
	burst int
	keyFn keyFunc

	mu       sync.Mutex
	visitors map[string]*visitor
	ttl      time.Duration
	lookups  uint64
}

// NewEdgeLimiter constructs an EdgeLimiter replenishing rps tokens per
// second with the given burst (coerced to at least 1), keyed by keyFn.
func NewEdgeLimiter(rps float64, burst int, keyFn keyFunc) *EdgeLimiter {
	if burst <= 0 {
		burst = 1
	}
	return &EdgeLimiter{
		rps:      rate.Limit(rps),
		burst:    burst,
		keyFn:    keyFn,
		visitors: make(map[string]*visitor),
		ttl:      10 * time.Minute,
	}
}

// getVisitor fetches or creates the bucket for key. Every ~5000 lookups it
// sweeps idle entries; the sweep runs before the fetch so a stale bucket is
// evicted even when it is the one being requested.
func (el *EdgeLimiter) getVisitor(key string) *rate.Limiter {
	now := time.Now()

	el.mu.Lock()
	defer el.mu.Unlock()

	el.lookups++
	if el.lookups >= 5000 {
		for k, v := range el.visitors {
			if now.Sub(v.lastSeen) >= el.ttl {
				delete(el.visitors, k)
			}
		}
		el.lookups = 0
	}

	if v, ok := el.visitors[key]; ok {
		v.lastSeen = now
		return v.limiter
	}
	lim := rate.NewLimiter(el.rps, el.burst)
	el.visitors[key] = &visitor{limiter: lim, lastSeen: now}
	return lim
}

// Handler returns the enforcement middleware. Over-limit requests receive a
// 429 envelope with a minimal Retry-After. This limiter runs before
// authentication, so the idempotent-replay bypass does not apply here; it
// lives in the per-user quota layer where the replay flag is known.
func (el *EdgeLimiter) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if el.getVisitor(el.keyFn(c)).Allow() {
			c.Next()
			return
		}
		c.Header("Retry-After", "1")
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
			"request_id": RequestIDFrom(c),
			"code":       "too_many_requests",
			"message":    "rate limit exceeded, retry later",
		})
	}
}
