package domain

import (
	"errors"
	"net/http"
)

// Kind classifies a domain error. Transport adapters map it to a status.
type Kind string

const (
	KindInternal        Kind = "INTERNAL"
	KindValidation      Kind = "VALIDATION_FAILED"
	KindUnauthenticated Kind = "UNAUTHENTICATED"
	KindForbidden       Kind = "FORBIDDEN"
	KindNotFound        Kind = "NOT_FOUND"
	KindConflict        Kind = "CONFLICT"
	KindTooManyRequests Kind = "TOO_MANY_REQUESTS"
)

// HTTPStatus returns the HTTP status code used for the kind.
func (k Kind) HTTPStatus() int {
	switch k {
	case KindValidation:
		return http.StatusUnprocessableEntity
	case KindUnauthenticated:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindTooManyRequests:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// FieldError describes one rejected input field.
type FieldError struct {
	Field   string
	Message string
}

// Error is the tagged error carried from the core to the adapters.
type Error struct {
	Kind    Kind
	Message string
	Fields  []FieldError
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil && e.Kind == KindInternal {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches any *Error of the same kind, so sentinels work with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// --- CONSTRUCTORS ---

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// Validation builds a KindValidation error with its field details.
func Validation(message string, fields ...FieldError) *Error {
	return &Error{Kind: KindValidation, Message: message, Fields: fields}
}

// Internal wraps an unexpected failure. Its message never reaches clients.
func Internal(message string, cause error) *Error {
	return Wrap(KindInternal, message, cause)
}

// KindOf returns the kind of err, KindInternal when err is not a domain error.
func KindOf(err error) Kind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return KindInternal
}

// --- SENTINELS ---

var (
	ErrUserNotFound       = New(KindNotFound, "User not found.")
	ErrPostNotFound       = New(KindNotFound, "Could not find post.")
	ErrEmailAlreadyExists = New(KindConflict, "User exists already!")
	ErrInvalidCredentials = New(KindUnauthenticated, "Invalid email or password.")
	ErrUnauthenticated    = New(KindUnauthenticated, "Not authenticated.")
	ErrInvalidToken       = New(KindUnauthenticated, "Invalid or expired token.")
	ErrNotAuthorized      = New(KindForbidden, "Not authorized.")
)
