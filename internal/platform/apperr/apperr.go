// Package apperr defines the error taxonomy shared by services and handlers.
// Services return these typed errors; the HTTP layer maps them to status
// codes without inspecting message text.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Code identifies an error category. Values are stable and appear verbatim
// in API responses.
type Code string

const (
	CodeNotFound   Code = "not_found"
	CodeConflict   Code = "conflict"
	CodeForbidden  Code = "forbidden"
	CodeValidation Code = "validation"
	CodeInternal   Code = "internal"
)

// Error is a categorized application error.
type Error struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
	err     error
}

func (e *Error) Error() string {
	if e.err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.err }

// HTTPStatus maps the error category to an HTTP status code.
func (e *Error) HTTPStatus() int {
	switch e.Code {
	case CodeNotFound:
		return http.StatusNotFound
	case CodeConflict:
		return http.StatusConflict
	case CodeForbidden:
		return http.StatusForbidden
	case CodeValidation:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func NotFound(format string, args ...interface{}) *Error {
	return &Error{Code: CodeNotFound, Message: fmt.Sprintf(format, args...)}
}

func Conflict(format string, args ...interface{}) *Error {
	return &Error{Code: CodeConflict, Message: fmt.Sprintf(format, args...)}
}

func Forbidden(format string, args ...interface{}) *Error {
	return &Error{Code: CodeForbidden, Message: fmt.Sprintf(format, args...)}
}

func Validation(format string, args ...interface{}) *Error {
	return &Error{Code: CodeValidation, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a cause to an existing categorized error.
func Wrap(e *Error, cause error) *Error {
	return &Error{Code: e.Code, Message: e.Message, err: cause}
}

// Internal wraps an unexpected failure so handlers can still render a
// structured body without leaking internals.
func Internal(cause error) *Error {
	return &Error{Code: CodeInternal, Message: "internal error", err: cause}
}

// As extracts an *Error from an error chain.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// IsCode reports whether err carries the given category.
func IsCode(err error, code Code) bool {
	e, ok := As(err)
	return ok && e.Code == code
}
