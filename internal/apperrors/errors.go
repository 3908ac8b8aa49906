package apperrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Code classifies an application error for callers and the transport layer.
type Code string

const (
	ErrCodeInvalidTransition Code = "INVALID_TRANSITION"
	ErrCodeForbidden         Code = "FORBIDDEN"
	ErrCodeAlreadyDecided    Code = "ALREADY_DECIDED"
	ErrCodeNotFound          Code = "NOT_FOUND"
	ErrCodeInvalidInput      Code = "INVALID_INPUT"
	ErrCodeConflict          Code = "CONFLICT"
	ErrCodeInternal          Code = "INTERNAL"
)

// Error is a coded application error. All workflow failures are deterministic
// given the same inputs and stored state; none should be retried by callers.
type Error struct {
	Code    Code
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// New creates a coded error.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Newf creates a coded error with a formatted message.
func Newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code and message to an underlying error.
func Wrap(err error, code Code, message string) *Error {
	return &Error{Code: code, Message: message, cause: err}
}

// NotFound reports an unknown resource id.
func NotFound(resource, id string) *Error {
	return Newf(ErrCodeNotFound, "%s %q not found", resource, id)
}

// Forbidden reports a legal operation attempted by an unauthorized actor.
func Forbidden(message string) *Error {
	return New(ErrCodeForbidden, message)
}

// InvalidInput reports a malformed or missing request field.
func InvalidInput(field, message string) *Error {
	return Newf(ErrCodeInvalidInput, "%s: %s", field, message)
}

// InvalidTransition reports an illegal edge in the deal status graph,
// naming both the current and the requested status.
func InvalidTransition(from, to string) *Error {
	return Newf(ErrCodeInvalidTransition, "cannot transition deal from %q to %q", from, to)
}

// AlreadyDecided reports a lost race on an approval decision. The caller
// should refetch current state rather than retry the same decision.
func AlreadyDecided(approvalID string) *Error {
	return Newf(ErrCodeAlreadyDecided, "approval %q is no longer pending", approvalID)
}

// CodeOf extracts the code from an error, or ErrCodeInternal for uncoded errors.
func CodeOf(err error) Code {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ErrCodeInternal
}

// HTTPStatus maps an error code to an HTTP response status.
func HTTPStatus(err error) int {
	switch CodeOf(err) {
	case ErrCodeInvalidInput:
		return http.StatusBadRequest
	case ErrCodeForbidden:
		return http.StatusForbidden
	case ErrCodeNotFound:
		return http.StatusNotFound
	case ErrCodeInvalidTransition, ErrCodeAlreadyDecided, ErrCodeConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
