package errs

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an error into the closed set the API surface exposes.
type Kind string

const (
	KindValidation        Kind = "validation"
	KindCacheUnavailable  Kind = "cache_unavailable"
	KindSQLSafetyRejected Kind = "sql_safety_rejected"
	KindInvalidTransition Kind = "invalid_transition"
	KindExternalFailure   Kind = "external_failure"
	KindNotFound          Kind = "not_found"
)

// Error carries a kind plus a human-readable message. The wrapped cause, if
// any, is kept for logs but never serialized to clients.
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

func (e *Error) Unwrap() error { return e.Err }

// New creates an error of the given kind.
func New(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap annotates a cause with a kind and message.
func Wrap(kind Kind, err error, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

// KindOf extracts the kind from err, or KindExternalFailure when err does not
// carry one.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindExternalFailure
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// MessageOf returns the user-facing message for err.
func MessageOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return err.Error()
}

// HTTPStatus maps an error kind to the status code the HTTP surface returns.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindValidation, KindSQLSafetyRejected:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindInvalidTransition:
		return http.StatusConflict
	case KindCacheUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusBadGateway
	}
}
