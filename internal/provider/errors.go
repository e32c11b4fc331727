package provider

import (
	"context"
	"errors"
	"fmt"
)

// ErrorKind classifies a provider failure for retry purposes.
type ErrorKind string

const (
	// KindTransient covers rate limits, overload, and 5xx-equivalents.
	// Transient failures are retried with backoff.
	KindTransient ErrorKind = "transient"
	// KindPermanent covers invalid requests and authorization failures.
	// Permanent failures are never retried.
	KindPermanent ErrorKind = "permanent"
	// KindTimeout covers per-call deadline expiry. Timeouts are retried
	// like transient failures at the assignment level.
	KindTimeout ErrorKind = "timeout"
)

// Error is a provider failure tagged with its retry class.
type Error struct {
	// Kind is the retry classification.
	Kind ErrorKind
	// Provider is the backend name that produced the failure.
	Provider string
	// Err is the underlying cause.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("provider %s: %s: %v", e.Provider, e.Kind, e.Err)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Transient wraps err as a retryable provider failure.
func Transient(provider string, err error) *Error {
	return &Error{Kind: KindTransient, Provider: provider, Err: err}
}

// Permanent wraps err as a non-retryable provider failure.
func Permanent(provider string, err error) *Error {
	return &Error{Kind: KindPermanent, Provider: provider, Err: err}
}

// Timeout wraps err as a deadline failure.
func Timeout(provider string, err error) *Error {
	return &Error{Kind: KindTimeout, Provider: provider, Err: err}
}

// Classify returns the retry class of err. Deadline expiry maps to
// timeout, tagged errors keep their kind, and anything unclassified is
// treated as transient so that network-level blips get a retry.
func Classify(err error) ErrorKind {
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return KindTransient
}

// Retryable returns true if err may be retried at the assignment level.
func Retryable(err error) bool {
	return Classify(err) != KindPermanent
}
