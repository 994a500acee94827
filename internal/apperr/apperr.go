// Package apperr defines the error taxonomy shared by the provider layer
// and its callers. Errors carry a Kind so callers can decide whether to
// fall back (retrieval path) or fail the request (chat path) without
// inspecting message strings.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies an error for dispatch decisions and API responses.
type Kind string

const (
	// KindConfiguration marks missing or invalid required settings.
	// Fatal to the operation, no retry.
	KindConfiguration Kind = "configuration_error"

	// KindValidation marks invalid client input (e.g. a blank chat message).
	// The operation is rejected before any provider call.
	KindValidation Kind = "validation_error"

	// KindTransport marks a network or timeout failure reaching a provider.
	KindTransport Kind = "transport_error"

	// KindProvider marks a non-success response from a provider.
	KindProvider Kind = "provider_error"

	// KindNotSupported marks a capability gap (e.g. text query on a
	// vector-only backend). Expected branch, not a failure to end callers.
	KindNotSupported Kind = "not_supported"

	// KindData marks a malformed or unexpected response shape.
	KindData Kind = "data_error"
)

// Error is a classified error value. Providers return *Error (usually
// wrapped further up with fmt.Errorf %w) so callers can pattern-match
// on Kind via KindOf or Is.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// New creates a classified error with a formatted message.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates a classified error wrapping an underlying cause.
func Wrap(kind Kind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

// KindOf returns the Kind of err if it is (or wraps) an *Error,
// or KindProvider as a conservative default for unclassified errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindProvider
}

// Is reports whether err is (or wraps) an *Error of the given kind.
func Is(err error, kind Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}

// Message returns the classified message of err without the wrapped
// cause chain, suitable for client-facing responses. Falls back to
// err.Error() for unclassified errors.
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return err.Error()
}
