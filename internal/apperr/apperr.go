// Package apperr defines the error kinds shared by the ledger, the credential
// verifier and the gateway bridge.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind is a stable, machine-checkable error category.
type Kind string

const (
	InvalidAmount      Kind = "invalid_amount"
	InsufficientFunds  Kind = "insufficient_funds"
	NotFound           Kind = "not_found"
	InvalidOperation   Kind = "invalid_operation"
	Unauthenticated    Kind = "unauthenticated"
	Forbidden          Kind = "forbidden"
	GatewayUnavailable Kind = "gateway_unavailable"
	StoreUnavailable   Kind = "store_unavailable"
	DuplicateEvent     Kind = "duplicate_event"
	Conflict           Kind = "conflict"
	// Transient marks failures the caller may retry as-is (lock wait exceeded,
	// deadlock victim, serialization failure).
	Transient Kind = "transient"
	Internal  Kind = "internal"
)

// Error carries a Kind plus a human-readable detail naming the offending
// field, permission or resource.
type Error struct {
	Kind   Kind
	Detail string
	Err    error
}

// New builds an Error of the given kind.
func New(kind Kind, detail string) *Error {
	return &Error{Kind: kind, Detail: detail}
}

// Newf builds an Error with a formatted detail.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Detail: fmt.Sprintf(format, args...)}
}

// Wrap attaches a kind and detail to an underlying cause.
func Wrap(kind Kind, detail string, err error) *Error {
	return &Error{Kind: kind, Detail: detail, Err: err}
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Detail, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches another *Error with the same kind and detail so package level
// sentinels work with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && (t.Detail == "" || t.Detail == e.Detail)
}

// KindOf reports the kind of err, or Internal when err carries none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Internal
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// DetailOf returns the detail of err, falling back to err.Error().
func DetailOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Detail
	}
	return err.Error()
}

// HTTPStatus maps a kind onto the status code returned to API callers.
func HTTPStatus(kind Kind) int {
	switch kind {
	case InvalidAmount, InvalidOperation, InsufficientFunds:
		return http.StatusBadRequest
	case NotFound:
		return http.StatusNotFound
	case Unauthenticated:
		return http.StatusUnauthorized
	case Forbidden:
		return http.StatusForbidden
	case Conflict:
		return http.StatusConflict
	case GatewayUnavailable:
		return http.StatusBadGateway
	case StoreUnavailable, Transient:
		return http.StatusServiceUnavailable
	case DuplicateEvent:
		return http.StatusOK
	default:
		return http.StatusInternalServerError
	}
}
