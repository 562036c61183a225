// Package middleware contains the shared Gin middleware of the HTTP layer.
//
// This file provides SecurityHeaders, a hardening middleware for JSON APIs
// behind a reverse proxy. HSTS is opt-in and only emitted on HTTPS
// requests; there is no CSP since the gateway never serves HTML.
package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

// SecurityOptions configures SecurityHeaders.
type SecurityOptions struct {
	// EnableHSTS emits Strict-Transport-Security on HTTPS requests. Enable
	// only when traffic is HTTPS end to end, proxy hop included.
	EnableHSTS bool
	// HSTSMaxAge is the HSTS lifetime; values <= 0 default to 180 days.
	HSTSMaxAge time.Duration
	// NoStore adds Cache-Control: no-store for sensitive responses.
	NoStore bool
	// EnablePolicy includes browser feature policies (harmless for
	// non-browser clients).
	EnablePolicy bool
}

// SecurityHeaders returns a middleware adding a conservative header set:
// nosniff, frame denial, referrer suppression, optional feature policies,
// optional no-store caching, and optional HSTS. It also exposes
// X-Request-ID to browser clients when present.
func SecurityHeaders(opt SecurityOptions) gin.HandlerFunc {
	maxAge := int(opt.HSTSMaxAge.Seconds())
	if maxAge <= 0 {
		maxAge = int((180 * 24 * time.Hour).Seconds())
	}
	hstsValue := "max-age=" + strconv.Itoa(maxAge) + "; includeSubDomains; preload"

	return func(c *gin.Context) {
		h := c.Writer.Header()

		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Referrer-Policy", "no-referrer")

		if opt.EnablePolicy {
			h.Set("Permissions-Policy", "geolocation=(), microphone=(), camera=(), payment=()")
			h.Set("X-Permitted-Cross-Domain-Policies", "none")
		}
		if opt.NoStore {
			h.Set("Cache-Control", "no-store")
			h.Set("Pragma", "no-cache")
			h.Set("Expires", "0")
		}
		if opt.EnableHSTS && isHTTPS(c.Request) {
			h.Set("Strict-Transport-Security", hstsValue)
		}

		if rid := h.Get(requestIDHeader); rid != "" {
			const hdr = "Access-Control-Expose-Headers"
			if cur := h.Get(hdr); cur == "" {
				h.Set(hdr, requestIDHeader)
			} else if !strings.Contains(cur, requestIDHeader) {
				h.Set(hdr, cur+", "+requestIDHeader)
			}
		}

		c.Next()
	}
}

// isHTTPS reports whether the request arrived over TLS directly or via a
// proxy that set X-Forwarded-Proto.
func isHTTPS(r *http.Request) bool {
	if r.TLS != nil {
		return true
	}
	return strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https")
}
