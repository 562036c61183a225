// Package handlers implements the HTTP endpoints of the public API.
//
// This file defines the response utilities shared by every endpoint: the
// error envelope, the single mapping from service-layer error kinds to
// HTTP statuses, and small success helpers. Handlers never inspect raw
// errors themselves; classification happens once, here, so a given failure
// kind always produces the same status and code regardless of endpoint.
//
// Example error response:
//
//	HTTP/1.1 503 Service Unavailable
//	{
//	  "request_id": "123e4567-e89b-12d3-a456-426614174000",
//	  "code": "service_unavailable",
//	  "message": "image generation is temporarily unavailable, retry later"
//	}
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mgeorgiou/go-imagegen-gateway/internal/http/middleware"
	"github.com/mgeorgiou/go-imagegen-gateway/internal/services"
)

// ErrorResponse is the standard error envelope returned by all endpoints.
type ErrorResponse struct {
	// RequestID correlates server logs with client-side errors.
	RequestID string `json:"request_id,omitempty" example:"123e4567-e89b-12d3-a456-426614174000"`
	// Code is the stable machine-readable code (see errors.go).
	Code string `json:"code" example:"bad_request"`
	// Message is safe to display to users.
	Message string `json:"message" example:"prompt must not be empty"`
}

// fail aborts the request with a structured error envelope. Server errors
// (>= 500) are additionally logged with the request-scoped logger.
func fail(c *gin.Context, status int, code, msg string) {
	resp := ErrorResponse{
		RequestID: c.Writer.Header().Get("X-Request-ID"),
		Code:      code,
		Message:   msg,
	}
	if status >= http.StatusInternalServerError {
		middleware.LoggerFrom(c).Error().
			Int("status", status).
			Str("code", code).
			Str("message", msg).
			Msg("api error")
	}
	c.AbortWithStatusJSON(status, resp)
}

// Fail is the exported variant of fail for router-level fallbacks.
func Fail(c *gin.Context, status int, code, msg string) { fail(c, status, code, msg) }

// failFromErr classifies a service-layer error into its HTTP response.
// This is the only place the error taxonomy meets HTTP. The cause inside
// the error is logged by the service that built it; only the user-safe
// message travels to the client.
func failFromErr(c *gin.Context, err error) {
	msg := services.UserMessage(err)
	switch services.KindOf(err) {
	case services.KindValidation:
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, msg)
	case services.KindAuth:
		fail(c, http.StatusUnauthorized, ErrCodeUnauthorized, msg)
	case services.KindRateLimit:
		c.Header("Retry-After", "1")
		fail(c, http.StatusTooManyRequests, ErrCodeRateLimited, msg)
	case services.KindInference:
		fail(c, http.StatusBadGateway, ErrCodeInferenceFailed, msg)
	case services.KindUnavailable:
		fail(c, http.StatusServiceUnavailable, ErrCodeServiceUnavailable, msg)
	default:
		middleware.LoggerFrom(c).Error().Err(err).Msg("unclassified error")
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "internal error")
	}
}

// ok writes a success JSON response.
func ok(c *gin.Context, status int, body any) {
	c.JSON(status, body)
}
