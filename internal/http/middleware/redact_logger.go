// Package middleware contains the shared Gin middleware of the HTTP layer.
//
// This file implements the access logger. Request metadata is scrubbed
// before it reaches the log stream: bearer tokens and cookies are fully
// masked, and email addresses and UUID-shaped identifiers are replaced in
// query strings and header values. Bodies are never logged; prompts stay
// out of the log stream entirely.
package middleware

import (
	"regexp"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// maxQueryLogBytes caps the logged query string.
const maxQueryLogBytes = 2048

// RedactOptions configures additional scrubbing for RedactingLogger.
// MaskHeaders lists extra header names (case-insensitive) whose values are
// replaced with "[REDACTED]", merged with the built-in Authorization,
// Cookie, and Set-Cookie masks.
type RedactOptions struct {
	MaskHeaders []string
}

var (
	uuidRE  = regexp.MustCompile(`(?i)\b[0-9a-f]{8}-[0-9a-f]{4}-[1-5][0-9a-f]{3}-[89ab][0-9a-f]{3}-[0-9a-f]{12}\b`)
	emailRE = regexp.MustCompile(`(?i)\b[a-z0-9._%+\-]+@[a-z0-9.\-]+\.[a-z]{2,}\b`)
)

// redact masks identifier-shaped substrings. UUIDs go first so the email
// pattern never sees their hex segments.
func redact(s string) string {
	if s == "" {
		return s
	}
	s = uuidRE.ReplaceAllString(s, "[REDACTED:id]")
	return emailRE.ReplaceAllString(s, "[REDACTED:email]")
}

// RedactingLogger returns the access-log middleware. It also attaches a
// request-scoped logger (retrievable via LoggerFrom) carrying the request
// id, method, and route, so handlers can emit correlated log lines without
// rebuilding the context fields.
//
// Severity follows the response: error for 5xx, warn for 4xx, info
// otherwise.
func RedactingLogger(opts RedactOptions) gin.HandlerFunc {
	masked := map[string]struct{}{
		"authorization": {},
		"cookie":        {},
		"set-cookie":    {},
	}
	for _, h := range opts.MaskHeaders {
		if h = strings.ToLower(strings.TrimSpace(h)); h != "" {
			masked[h] = struct{}{}
		}
	}

	return func(c *gin.Context) {
		start := time.Now()

		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		safeQuery := redact(truncateBytes(c.Request.URL.RawQuery, maxQueryLogBytes))

		safeHeaders := make(map[string]string, len(c.Request.Header))
		for k, vv := range c.Request.Header {
			if _, hide := masked[strings.ToLower(k)]; hide {
				safeHeaders[k] = "[REDACTED]"
				continue
			}
			safeHeaders[k] = redact(strings.Join(vv, ", "))
		}

		rid := RequestIDFrom(c)
		reqLogger := log.With().
			Str("request_id", rid).
			Str("method", c.Request.Method).
			Str("path", path).
			Logger()
		c.Set(loggerKey, &reqLogger)

		c.Next()

		status := c.Writer.Status()
		ev := log.Info()
		switch {
		case status >= 500:
			ev = log.Error()
		case status >= 400:
			ev = log.Warn()
		}
		ev.
			Str("request_id", rid).
			Str("method", c.Request.Method).
			Str("path", path).
			Str("query", safeQuery).
			Str("remote_ip", c.ClientIP()).
			Int("status", status).
			Int("bytes", c.Writer.Size()).
			Dur("latency", time.Since(start)).
			Interface("headers", safeHeaders).
			Msg("http_request")
	}
}

// truncateBytes clips s to max bytes. Byte-level clipping is acceptable for
// log output.
func truncateBytes(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	return s[:max] + "…"
}
