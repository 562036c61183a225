// Package middleware contains the shared Gin middleware of the HTTP layer.
//
// This file implements Idempotency-Key support for the submission endpoint.
// The middleware validates the header shape, stashes the normalized key for
// the handler, and (when a lookup is supplied) probes the submission ledger
// so that a detected replay can bypass rate limiting. Serving the replay
// payload itself remains the handler's job.
package middleware

import (
	"context"
	"net/http"
	"regexp"
	"time"

	"github.com/gin-gonic/gin"
)

// HeaderIdempotencyKey is the request header clients use to deduplicate
// retried submissions. The value must be stable per semantic operation.
const HeaderIdempotencyKey = "Idempotency-Key"

const (
	ctxKeyIdemKey    = "idem.key"
	ctxKeyIdemReplay = "idem.replay"
	ctxKeyRateBypass = "rate.bypass"
)

// GetIdempotencyKey returns the validated key stashed by
// IdempotencyValidator. The bool reports presence.
func GetIdempotencyKey(c *gin.Context) (string, bool) {
	v, ok := c.Get(ctxKeyIdemKey)
	if !ok {
		return "", false
	}
	s, _ := v.(string)
	return s, s != ""
}

// IsReplay reports whether the middleware found a stored result for this
// request's key.
func IsReplay(c *gin.Context) bool {
	v, ok := c.Get(ctxKeyIdemReplay)
	if !ok {
		return false
	}
	b, _ := v.(bool)
	return b
}

// IsRateBypass reports whether rate limiting should be skipped for this
// request (set when a replay was detected).
func IsRateBypass(c *gin.Context) bool {
	v, ok := c.Get(ctxKeyRateBypass)
	if !ok {
		return false
	}
	b, _ := v.(bool)
	return b
}

// IdempotencyOptions configures header validation.
type IdempotencyOptions struct {
	// MaxLen caps the accepted key length; values <= 0 default to 200.
	MaxLen int
	// Pattern restricts allowed characters; nil defaults to a conservative
	// token pattern: ^[A-Za-z0-9._~\-:]+$
	Pattern *regexp.Regexp
}

// IdempotencyLookup reports whether a replayable submission exists for
// (userID, key) at now. Lookup failures must not block processing; return
// exists=false and let the handler run the request normally.
type IdempotencyLookup func(ctx context.Context, userID, key string, now time.Time) (exists bool, err error)

// IdempotencyValidator validates the Idempotency-Key header when present,
// stashes the key, and marks replay plus rate-limit bypass when lookup
// finds a stored result. Absent headers make the middleware a no-op;
// malformed ones are rejected with 400. Run it after RequireAuth so the
// lookup sees the authenticated identity.
func IdempotencyValidator(opts IdempotencyOptions, lookup IdempotencyLookup) gin.HandlerFunc {
	maxLen := opts.MaxLen
	if maxLen <= 0 {
		maxLen = 200
	}
	pat := opts.Pattern
	if pat == nil {
		pat = regexp.MustCompile(`^[A-Za-z0-9._~\-:]+$`)
	}

	return func(c *gin.Context) {
		key := c.GetHeader(HeaderIdempotencyKey)
		if key == "" {
			c.Next()
			return
		}
		if len(key) > maxLen || !pat.MatchString(key) {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"request_id": RequestIDFrom(c),
				"code":       "bad_request",
				"message":    "invalid Idempotency-Key",
			})
			return
		}

		c.Set(ctxKeyIdemKey, key)

		if lookup != nil {
			if uid := UserIDFrom(c); uid != "" {
				if exists, _ := lookup(c.Request.Context(), uid, key, time.Now().UTC()); exists {
					c.Set(ctxKeyIdemReplay, true)
					c.Set(ctxKeyRateBypass, true)
				}
			}
		}

		c.Next()
	}
}
