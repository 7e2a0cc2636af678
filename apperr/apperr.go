// Package apperr defines the caller-correctable error shape shared by the
// core engine and its transport adapters. Every rejection the engine can
// produce carries an HTTP-ish status code and a message specific enough for
// an operator to act on; infrastructure failures stay plain wrapped errors.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Error is a typed, recoverable rejection.
type Error struct {
	Status  int
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

// BadRequest returns a 400 validation error.
func BadRequest(format string, args ...interface{}) *Error {
	return &Error{Status: http.StatusBadRequest, Message: fmt.Sprintf(format, args...)}
}

// Conflict returns a 409 conflict error.
func Conflict(format string, args ...interface{}) *Error {
	return &Error{Status: http.StatusConflict, Message: fmt.Sprintf(format, args...)}
}

// NotFound returns a 404 not-found error.
func NotFound(format string, args ...interface{}) *Error {
	return &Error{Status: http.StatusNotFound, Message: fmt.Sprintf(format, args...)}
}

// StatusOf maps an error to an HTTP status code. Untyped errors are
// treated as internal failures.
func StatusOf(err error) int {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Status
	}
	return http.StatusInternalServerError
}
