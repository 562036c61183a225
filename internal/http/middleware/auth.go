// Package middleware contains the shared Gin middleware of the HTTP layer.
//
// This file implements bearer-token authentication. Every failure mode
// (missing header, malformed scheme, bad signature, expiry) collapses to
// the same 401 envelope for clients; logs record which mode occurred so
// operators can tell expiry storms from credential abuse.
package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/mgeorgiou/go-imagegen-gateway/internal/auth"
)

const (
	// userIDKey is the Gin context key holding the authenticated identity.
	userIDKey = "userID"
	// bearerPrefix is the accepted Authorization scheme (case-insensitive).
	bearerPrefix = "bearer "
)

// UserIDFrom returns the authenticated user id set by RequireAuth, or "".
func UserIDFrom(c *gin.Context) string {
	v, _ := c.Get(userIDKey)
	return asString(v)
}

// RequireAuth returns a middleware that verifies the Authorization bearer
// token against verifier and stores the resolved user id in the context.
// Requests without a valid token are aborted with 401.
func RequireAuth(verifier *auth.Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			LoggerFrom(c).Warn().Msg("authorization header absent")
			unauthorized(c)
			return
		}
		if len(header) < len(bearerPrefix) || !strings.EqualFold(header[:len(bearerPrefix)], bearerPrefix) {
			LoggerFrom(c).Warn().Msg("authorization scheme not bearer")
			unauthorized(c)
			return
		}
		token := strings.TrimSpace(header[len(bearerPrefix):])

		claims, err := verifier.Verify(token)
		if err != nil {
			// Expiry vs invalid matters for logs only; the client response
			// stays identical either way.
			LoggerFrom(c).Warn().Err(err).Msg("token rejected")
			unauthorized(c)
			return
		}

		c.Set(userIDKey, claims.UserID)
		c.Next()
	}
}

// unauthorized aborts with the standard 401 envelope.
func unauthorized(c *gin.Context) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"request_id": RequestIDFrom(c),
		"code":       "unauthorized",
		"message":    "missing or invalid token",
	})
}
