// Package apierr defines the operational error taxonomy surfaced to API
// clients. Every expected failure carries an HTTP status, a stable
// user-facing message, and optionally field-level validation detail.
// Anything that is not an *Error is treated as an internal fault and
// reported as a generic 500.
package apierr

import (
	"errors"
	"net/http"
)

// FieldError describes a single invalid input field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Error is an operational, user-facing error.
type Error struct {
	Status  int
	Message string
	Fields  []FieldError

	// cause is the underlying error, kept for logging; never serialized.
	cause error
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.cause
}

// WithCause attaches the underlying error for logging purposes.
func (e *Error) WithCause(err error) *Error {
	e.cause = err
	return e
}

// New constructs an operational error with the given status and message.
func New(status int, message string) *Error {
	return &Error{Status: status, Message: message}
}

// BadRequest is a 400 validation failure, optionally with field detail.
func BadRequest(message string, fields ...FieldError) *Error {
	return &Error{Status: http.StatusBadRequest, Message: message, Fields: fields}
}

// Unauthorized is a 401 missing/invalid credential failure.
func Unauthorized(message string) *Error {
	return New(http.StatusUnauthorized, message)
}

// Forbidden is a 403, used for the expired-access-token case so clients
// can distinguish it from a generic 401 and trigger a refresh.
func Forbidden(message string) *Error {
	return New(http.StatusForbidden, message)
}

// NotFound is a 404 unknown user/resource failure.
func NotFound(message string) *Error {
	return New(http.StatusNotFound, message)
}

// Conflict is a 409 duplicate username/email failure.
func Conflict(message string) *Error {
	return New(http.StatusConflict, message)
}

// Internal is a 500 downstream failure (store, email).
func Internal(message string, cause error) *Error {
	return &Error{Status: http.StatusInternalServerError, Message: message, cause: cause}
}

// From coerces any error to an *Error. Non-operational errors become a
// generic 500 so internals never leak to clients.
func From(err error) *Error {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr
	}
	return Internal("Something went wrong! Please try again later.", err)
}
