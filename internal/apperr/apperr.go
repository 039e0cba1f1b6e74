// Package apperr defines the stable, enumerable error kinds surfaced to
// webhook callers and logs, per spec.md §7.
package apperr

import (
	"errors"
	"fmt"
)

// Kind is a stable error classification. Kinds are never renamed once
// shipped since they appear in response envelopes.
type Kind string

const (
	SignatureMissing   Kind = "SignatureMissing"
	SignatureMalformed Kind = "SignatureMalformed"
	SignatureStale     Kind = "SignatureStale"
	SignatureMismatch  Kind = "SignatureMismatch"
	PayloadSchema      Kind = "PayloadSchema"
	PayloadTooLarge    Kind = "PayloadTooLarge"
	DeadlineExceeded   Kind = "DeadlineExceeded"
	UpstreamUnavailable Kind = "UpstreamUnavailable"
	UpstreamRateLimited Kind = "UpstreamRateLimited"
	InvalidLLMOutput   Kind = "InvalidLLMOutput"
	StoreUnavailable   Kind = "StoreUnavailable"
	StoreConflict      Kind = "StoreConflict"
	ProfileUnavailable Kind = "ProfileUnavailable"
	QueueOverflow      Kind = "QueueOverflow"
	Internal           Kind = "Internal"
)

// HTTPStatus returns the status code the webhook dispatcher maps this kind
// to. Kinds not listed map to 500.
func (k Kind) HTTPStatus() int {
	switch k {
	case SignatureMissing, SignatureMalformed, SignatureStale, SignatureMismatch:
		return 401
	case PayloadSchema:
		return 400
	case PayloadTooLarge:
		return 413
	case UpstreamRateLimited:
		return 429
	case StoreUnavailable, UpstreamUnavailable:
		return 503
	default:
		return 500
	}
}

// Error wraps an underlying cause with a stable Kind and a human message.
type Error struct {
	kind    Kind
	message string
	cause   error
}

// New constructs an Error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{kind: kind, message: message}
}

// Wrap constructs an Error of the given kind, chaining cause via %w so
// errors.Is/As continue to work against the original cause.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{kind: kind, message: message, cause: cause}
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.kind, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.kind, e.message)
}

func (e *Error) Unwrap() error { return e.cause }

// Kind returns the error's stable classification.
func (e *Error) Kind() Kind { return e.kind }

// KindOf extracts the Kind from err if it (or something it wraps) is an
// *Error, otherwise returns Internal.
func KindOf(err error) Kind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.kind
	}
	return Internal
}

// IsTransient reports whether an error kind should be retried by the job
// scheduler (timeouts, 5xx, rate limiting) versus treated as deterministic
// (schema violations, size caps).
func IsTransient(err error) bool {
	switch KindOf(err) {
	case UpstreamUnavailable, UpstreamRateLimited, DeadlineExceeded, StoreUnavailable:
		return true
	default:
		return false
	}
}
