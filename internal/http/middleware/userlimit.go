// Package middleware contains the shared Gin middleware of the HTTP layer.
//
// This file enforces the per-user quota. It runs after RequireAuth (the
// identity is the bucket key) and consults the Redis-backed fixed-window
// limiter shared across all gateway instances. Counter-store failures are
// logged and resolved by the limiter's configured fail-open policy; they
// never surface as 5xx to the client.
package middleware

import (
	"math"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/mgeorgiou/go-imagegen-gateway/internal/ratelimit"
)

// UserRateLimit returns a middleware enforcing limiter's per-user quota for
// authenticated requests. Idempotent replays bypass the check so a retried
// request is never charged twice.
func UserRateLimit(limiter *ratelimit.Limiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if IsRateBypass(c) {
			c.Next()
			return
		}
		uid := UserIDFrom(c)
		if uid == "" {
			// RequireAuth did not run; nothing to key the quota on.
			c.Next()
			return
		}

		res, err := limiter.Allow(c.Request.Context(), uid)
		if err != nil {
			LoggerFrom(c).Error().Err(err).Bool("allowed", res.Allowed).
				Msg("rate limit store unavailable")
		}
		if res.Allowed {
			c.Next()
			return
		}

		if res.RetryAfter > 0 {
			secs := int(math.Ceil(res.RetryAfter.Seconds()))
			if secs < 1 {
				secs = 1
			}
			c.Header("Retry-After", strconv.Itoa(secs))
		}
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
			"request_id": RequestIDFrom(c),
			"code":       "too_many_requests",
			"message":    "rate limit exceeded, retry later",
		})
	}
}
