// Package apperr defines the tagged error kinds shared by the source
// adapters, the resilience layer, and the core services.
//
// Every failure that crosses a package boundary carries a Kind so that
// policy decisions (retry, circuit accounting, HTTP status mapping) match
// on the tag rather than on error text.
package apperr

import (
	"errors"
	"fmt"
	"time"
)

// Kind classifies a failure for policy purposes.
type Kind string

const (
	// KindNetwork covers transport failures: DNS, connection reset, timeout.
	KindNetwork Kind = "NETWORK"
	// KindTimeout is a deadline exceeded on an outbound call or task.
	KindTimeout Kind = "TIMEOUT"
	// KindRateLimited is an upstream HTTP 429.
	KindRateLimited Kind = "RATE_LIMITED"
	// KindUpstreamClient is an upstream 4xx other than 429. Terminal.
	KindUpstreamClient Kind = "UPSTREAM_4XX"
	// KindUpstreamServer is an upstream 5xx. Retryable.
	KindUpstreamServer Kind = "UPSTREAM_5XX"
	// KindParse means the upstream response could not be decoded.
	KindParse Kind = "PARSE"
	// KindCircuitOpen means the adapter's circuit breaker rejected the call.
	KindCircuitOpen Kind = "CIRCUIT_OPEN"
	// KindValidationInput is a bad input to a core operation.
	KindValidationInput Kind = "VALIDATION_INPUT"
	// KindNotFound means a process, candidate, or shortlist does not exist.
	KindNotFound Kind = "NOT_FOUND"
	// KindConflictState means the operation is incompatible with current state.
	KindConflictState Kind = "CONFLICT_STATE"
)

// Error is a failure tagged with a Kind.
type Error struct {
	Kind   Kind
	Source string // adapter source id, empty for core errors
	Msg    string
	Err    error // wrapped cause, may be nil

	// RetryAfter is the upstream-provided backoff hint for KindRateLimited.
	// Zero when the upstream sent none.
	RetryAfter time.Duration

	// NextAttempt is when an open circuit will admit its half-open probe.
	// Set only for KindCircuitOpen.
	NextAttempt time.Time
}

func (e *Error) Error() string {
	prefix := string(e.Kind)
	if e.Source != "" {
		prefix = e.Source + ": " + prefix
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", prefix, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

// New creates a tagged error.
func New(kind Kind, source, msg string) *Error {
	return &Error{Kind: kind, Source: source, Msg: msg}
}

// Wrap creates a tagged error around a cause.
func Wrap(kind Kind, source, msg string, err error) *Error {
	return &Error{Kind: kind, Source: source, Msg: msg, Err: err}
}

// KindOf extracts the Kind from err, unwrapping as needed.
// Untagged errors report the empty Kind.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// Retryable reports whether the default retry policy should retry err:
// network failures, upstream 5xx, and 429.
func Retryable(err error) bool {
	switch KindOf(err) {
	case KindNetwork, KindTimeout, KindUpstreamServer, KindRateLimited:
		return true
	default:
		return false
	}
}

// CountsForBreaker reports whether err should count against the circuit
// breaker. Expected errors (4xx other than 429, parse failures, bad input)
// do not indicate an unhealthy upstream.
func CountsForBreaker(err error) bool {
	switch KindOf(err) {
	case KindNetwork, KindTimeout, KindUpstreamServer:
		return true
	default:
		return false
	}
}

// RetryAfterOf returns the upstream backoff hint carried by err, or zero.
func RetryAfterOf(err error) time.Duration {
	var e *Error
	if errors.As(err, &e) {
		return e.RetryAfter
	}
	return 0
}
