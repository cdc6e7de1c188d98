// Package gerr defines the abstract error kinds surfaced by the broker,
// topology manager, and out-of-process transport (spec.md §7).
package gerr

import (
	"errors"
	"fmt"
)

// Kind classifies an error into one of the abstract categories spec.md §7
// enumerates. Kind is comparable and safe to switch on.
type Kind int

const (
	Internal Kind = iota
	InvalidArgument
	NotFound
	Duplicate
	ResourceExhaustion
	TransportFailure
	DecodeFailure
	RemoteRejected
	Timeout
)

func (k Kind) String() string {
	switch k {
	case InvalidArgument:
		return "invalid-argument"
	case NotFound:
		return "not-found"
	case Duplicate:
		return "duplicate"
	case ResourceExhaustion:
		return "resource-exhaustion"
	case TransportFailure:
		return "transport-failure"
	case DecodeFailure:
		return "decode-failure"
	case RemoteRejected:
		return "remote-rejected"
	case Timeout:
		return "timeout"
	default:
		return "internal"
	}
}

// Error is a kinded, wrappable error. Callers compare kinds with Is, not
// string matching.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// New builds an *Error of the given kind.
func New(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap builds an *Error of the given kind, chaining cause for errors.Unwrap.
func Wrap(kind Kind, cause error, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// Is reports whether err (or any error it wraps) has the given Kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// KindOf extracts the Kind carried by err, or Internal if err does not wrap
// a *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Internal
}
