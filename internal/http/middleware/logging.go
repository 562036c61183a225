// Package middleware contains the shared Gin middleware of the HTTP layer:
// correlation IDs, access logging with redaction, panic recovery, metrics,
// authentication, rate limiting, idempotency, and security headers.
//
// This file provides the correlation and recovery primitives. Compose them
// early in the chain (RequestID first, then the access logger, then
// Recovery) so that every log line and error body carries the request id.
package middleware

import (
	"net/http"
	"runtime/debug"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	// requestIDKey is the Gin context key holding the correlation id.
	requestIDKey = "requestID"
	// requestIDHeader propagates the correlation id to clients and proxies.
	requestIDHeader = "X-Request-ID"
	// loggerKey is the Gin context key holding the request-scoped logger.
	loggerKey = "logger"
)

// RequestID reuses an incoming X-Request-ID or generates a UUIDv4, stores it
// in the Gin context, and echoes it on the response.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		rid := c.GetHeader(requestIDHeader)
		if rid == "" {
			rid = uuid.NewString()
		}
		c.Set(requestIDKey, rid)
		c.Writer.Header().Set(requestIDHeader, rid)
		c.Next()
	}
}

// RequestIDFrom returns the correlation id stored by RequestID, or "".
func RequestIDFrom(c *gin.Context) string {
	v, _ := c.Get(requestIDKey)
	return asString(v)
}

// Recovery converts panics into JSON 500 responses. The panic value and
// stack are logged with the correlation id; the client sees only a generic
// envelope.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if rec := recover(); rec != nil {
				rid := RequestIDFrom(c)
				log.Error().
					Interface("panic", rec).
					Bytes("stack", debug.Stack()).
					Str("request_id", rid).
					Msg("panic recovered")

				if !c.Writer.Written() {
					c.Header(requestIDHeader, rid)
					c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
						"request_id": rid,
						"code":       "internal_error",
						"message":    "internal server error",
					})
					return
				}
				c.AbortWithStatus(http.StatusInternalServerError)
			}
		}()
		c.Next()
	}
}

// LoggerFrom returns the request-scoped zerolog.Logger attached by the
// access logger, or the global logger when none is attached. Never nil.
func LoggerFrom(c *gin.Context) *zerolog.Logger {
	if v, ok := c.Get(loggerKey); ok {
		if lg, ok := v.(*zerolog.Logger); ok {
			return lg
		}
	}
	l := log.With().Logger()
	return &l
}

// asString narrows a context value to string, "" for anything else.
func asString(v interface{}) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}
