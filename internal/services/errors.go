// Package services implements the job orchestration logic: submission,
// status resolution, and the error taxonomy shared with the HTTP layer.
//
// This file defines the taxonomy. Every externally visible failure is
// classified into exactly one Kind at the point where it is detected, and
// carries two messages: a short user-safe one (served to clients) and a
// wrapped log-only cause (never serialized into responses). Handlers map
// kinds to HTTP statuses in one place instead of re-interpreting arbitrary
// errors per endpoint.
package services

import (
	"errors"
	"fmt"
)

// Kind classifies an externally visible failure.
type Kind int

const (
	// KindUnclassified is the catch-all for unexpected failures.
	KindUnclassified Kind = iota
	// KindValidation rejects malformed or out-of-bounds input before any
	// side effect occurs.
	KindValidation
	// KindAuth rejects missing, invalid, or expired credentials.
	KindAuth
	// KindRateLimit rejects over-quota requests; safe to retry after the
	// window rolls.
	KindRateLimit
	// KindInference reports a backend call that failed while the circuit
	// was closed.
	KindInference
	// KindUnavailable reports a dependency that was not attempted or not
	// reachable (open breaker, storage outage); safe to retry later.
	KindUnavailable
)

// String returns the stable taxonomy name.
func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindAuth:
		return "auth"
	case KindRateLimit:
		return "rate_limit"
	case KindInference:
		return "inference"
	case KindUnavailable:
		return "service_unavailable"
	default:
		return "unclassified"
	}
}

// Error is the taxonomy-carrying error returned across service boundaries.
type Error struct {
	Kind    Kind
	Message string // user-safe, served to clients verbatim
	Err     error  // log-only cause, never serialized
}

// Error renders the full detail for logs.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap exposes the cause for errors.Is/As chains.
func (e *Error) Unwrap() error { return e.Err }

// Constructors for the kinds services produce. Auth and rate-limit
// rejections happen in middleware before any service runs, so those kinds
// have no constructor here; the handler mapping still covers them.

// Validation builds a side-effect-free input rejection.
func Validation(msg string) *Error {
	return &Error{Kind: KindValidation, Message: msg}
}

// Inference builds a backend-call failure.
func Inference(msg string, cause error) *Error {
	return &Error{Kind: KindInference, Message: msg, Err: cause}
}

// Unavailable builds a dependency-not-attempted/unreachable failure.
func Unavailable(msg string, cause error) *Error {
	return &Error{Kind: KindUnavailable, Message: msg, Err: cause}
}

// Unclassified wraps anything unexpected behind a generic message.
func Unclassified(cause error) *Error {
	return &Error{Kind: KindUnclassified, Message: "internal error", Err: cause}
}

// KindOf extracts the taxonomy kind from an error chain, defaulting to
// KindUnclassified for foreign errors.
func KindOf(err error) Kind {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	return KindUnclassified
}

// UserMessage extracts the user-safe message from an error chain. Foreign
// errors collapse to a generic message so internal detail cannot leak.
func UserMessage(err error) string {
	var se *Error
	if errors.As(err, &se) {
		return se.Message
	}
	return "internal error"
}
