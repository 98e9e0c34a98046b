// Package apperr defines the error kinds surfaced to API callers and the
// mapping from kinds to HTTP status codes. Components wrap store errors with
// fmt.Errorf("...: %w", err); the outermost handler classifies with Kind.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an error for the caller.
type Kind int

const (
	KindInternal Kind = iota
	KindBadRequest
	KindUnauthorized
	KindForbidden
	KindNotFound
	KindConflict
	KindTransient
)

// Error carries a kind and a caller-safe message alongside the wrapped cause.
type Error struct {
	kind Kind
	msg  string
	err  error
}

func (e *Error) Error() string {
	if e.err != nil {
		return e.msg + ": " + e.err.Error()
	}
	return e.msg
}

func (e *Error) Unwrap() error { return e.err }

// New creates an error of the given kind.
func New(kind Kind, msg string) error {
	return &Error{kind: kind, msg: msg}
}

// Newf creates an error of the given kind with a formatted message.
func Newf(kind Kind, format string, args ...any) error {
	return &Error{kind: kind, msg: fmt.Sprintf(format, args...)}
}

// Wrap attaches a kind and message to an underlying error.
func Wrap(kind Kind, msg string, err error) error {
	return &Error{kind: kind, msg: msg, err: err}
}

// BadRequest is shorthand for New(KindBadRequest, msg).
func BadRequest(msg string) error { return New(KindBadRequest, msg) }

// Unauthorized is shorthand for New(KindUnauthorized, msg).
func Unauthorized(msg string) error { return New(KindUnauthorized, msg) }

// Forbidden is shorthand for New(KindForbidden, msg).
func Forbidden(msg string) error { return New(KindForbidden, msg) }

// NotFound is shorthand for New(KindNotFound, msg). Callers use the same kind
// for "does not exist" and "outside the caller's scope" so the two are
// indistinguishable on the wire.
func NotFound(msg string) error { return New(KindNotFound, msg) }

// Conflict is shorthand for New(KindConflict, msg).
func Conflict(msg string) error { return New(KindConflict, msg) }

// Transient is shorthand for Wrap(KindTransient, msg, err).
func Transient(msg string, err error) error { return Wrap(KindTransient, msg, err) }

// KindOf returns the kind of err, or KindInternal if err carries none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.kind
	}
	return KindInternal
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// Message returns the caller-safe message of err, or a generic message for
// unclassified errors (internals are logged, not leaked).
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.msg
	}
	return "internal error"
}

// HTTPStatus maps an error kind to its HTTP status code.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindBadRequest:
		return http.StatusBadRequest
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindTransient:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Code returns the machine-readable error code used in the JSON envelope.
func Code(err error) string {
	switch KindOf(err) {
	case KindBadRequest:
		return "bad_request"
	case KindUnauthorized:
		return "unauthorized"
	case KindForbidden:
		return "forbidden"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindTransient:
		return "unavailable"
	default:
		return "internal"
	}
}
