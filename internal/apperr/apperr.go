// Package apperr defines the error taxonomy the dispatch/lifecycle core
// surfaces to its callers. It is a deliberately small cousin of the
// service-wide error package: this core has exactly six kinds, and every
// caller branches on kind via errors.Is rather than on an HTTP status or a
// string code.
package apperr

import (
	"errors"
	"fmt"
)

// Kind identifies one of the six error categories the core can return.
type Kind string

const (
	KindNotFound     Kind = "not_found"
	KindForbidden    Kind = "forbidden"
	KindInvalidState Kind = "invalid_state"
	KindConflict     Kind = "conflict"
	KindCancelled    Kind = "cancelled"
	KindTransport    Kind = "transport"
)

// sentinels, one per Kind, so errors.Is(err, apperr.ErrNotFound) works
// regardless of which constructor produced the wrapped error.
var (
	ErrNotFound     = errors.New("not found")
	ErrForbidden    = errors.New("forbidden")
	ErrInvalidState = errors.New("invalid state")
	ErrConflict     = errors.New("conflict")
	ErrCancelled    = errors.New("cancelled")
	ErrTransport    = errors.New("transport")
)

func sentinelFor(k Kind) error {
	switch k {
	case KindNotFound:
		return ErrNotFound
	case KindForbidden:
		return ErrForbidden
	case KindInvalidState:
		return ErrInvalidState
	case KindConflict:
		return ErrConflict
	case KindCancelled:
		return ErrCancelled
	case KindTransport:
		return ErrTransport
	default:
		return errors.New(string(k))
	}
}

// Error is the concrete error type returned by core operations.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return sentinelFor(e.Kind)
}

func newf(k Kind, format string, args ...any) *Error {
	return &Error{Kind: k, Message: fmt.Sprintf(format, args...)}
}

// NotFound builds a NotFound error naming the missing resource and id.
func NotFound(resource, id string) *Error {
	return newf(KindNotFound, "%s %s not found", resource, id)
}

// Forbidden builds a Forbidden error with a free-form reason.
func Forbidden(reason string) *Error {
	return newf(KindForbidden, "%s", reason)
}

// InvalidState builds an InvalidState error describing the violated
// precondition.
func InvalidState(reason string) *Error {
	return newf(KindInvalidState, "%s", reason)
}

// Conflict builds a Conflict error, used once a serialization-conflict
// retry budget has been exhausted.
func Conflict(reason string) *Error {
	return newf(KindConflict, "%s", reason)
}

// Cancelled builds a Cancelled error for cooperative cancellation.
func Cancelled(reason string) *Error {
	return newf(KindCancelled, "%s", reason)
}

// Transport wraps a dispatch-channel send failure.
func Transport(err error) *Error {
	return &Error{Kind: KindTransport, Message: "dispatch channel send failed", Err: err}
}

// Is reports whether err carries the given Kind, at any wrap depth.
func Is(err error, k Kind) bool {
	return errors.Is(err, sentinelFor(k))
}

// KindOf extracts the Kind from err if it is (or wraps) an *Error.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}
