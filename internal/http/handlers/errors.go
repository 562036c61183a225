// Package handlers defines the HTTP-layer error codes used across all API
// endpoints.
//
// Codes are lowercase snake_case strings that clients branch on
// programmatically; the accompanying message is for humans. Every error
// response carries exactly one of these codes next to its HTTP status.
package handlers

const (
	ErrCodeBadRequest         = "bad_request"
	ErrCodeUnauthorized       = "unauthorized"
	ErrCodeNotFound           = "not_found"
	ErrCodeMethodNotAllowed   = "method_not_allowed"
	ErrCodeRateLimited        = "too_many_requests"
	ErrCodeInferenceFailed    = "inference_failed"
	ErrCodeServiceUnavailable = "service_unavailable"
	ErrCodeInternal           = "internal_error"
)
