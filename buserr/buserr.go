// Package buserr classifies bus errors into kinds that map onto HTTP
// status codes at the API boundary. Components surface known kinds
// unchanged and wrap everything else as KindUnknown.
package buserr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind identifies a class of failure.
type Kind string

// Error kinds recognised across the bus.
const (
	KindValidation    Kind = "validation"
	KindAuthorization Kind = "authorization"
	KindNotFound      Kind = "not_found"
	KindConflict      Kind = "conflict"
	KindConfiguration Kind = "configuration"
	KindDatabase      Kind = "database"
	KindStorage       Kind = "storage"
	KindQueue         Kind = "queue"
	KindModel         Kind = "model"
	KindNoMatch       Kind = "no_match"
	KindMatching      Kind = "matching"
	KindUnknown       Kind = "unknown"
)

// Error is a classified bus error. It wraps an optional cause so
// errors.Is/As see through it.
type Error struct {
	Kind    Kind
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.cause
}

// New creates a classified error without a cause.
func New(kind Kind, message string) error {
	return &Error{Kind: kind, Message: message}
}

// Newf creates a classified error with a formatted message.
func Newf(kind Kind, format string, args ...any) error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap classifies an existing error. A nil cause returns nil.
func Wrap(kind Kind, message string, cause error) error {
	if cause == nil {
		return nil
	}
	return &Error{Kind: kind, Message: message, cause: cause}
}

// KindOf extracts the kind from an error chain. Unclassified errors
// report KindUnknown; nil reports the empty kind.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var be *Error
	if errors.As(err, &be) {
		return be.Kind
	}
	return KindUnknown
}

// Is reports whether any error in the chain carries the given kind.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// HTTPStatus maps a kind to its HTTP status code.
func HTTPStatus(kind Kind) int {
	switch kind {
	case KindValidation:
		return http.StatusBadRequest
	case KindAuthorization:
		return http.StatusForbidden
	case KindNotFound, KindNoMatch:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindModel:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// StatusOf maps an error to the HTTP status of its kind.
func StatusOf(err error) int {
	return HTTPStatus(KindOf(err))
}
