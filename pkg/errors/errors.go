package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Error represents a typed domain error with HTTP awareness.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"status"`
	Err     error  `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the wrapped error.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is reports whether target carries the same code, so clones still match the predefined kinds.
func (e *Error) Is(target error) bool {
	if e == nil {
		return false
	}
	var t *Error
	if !errors.As(target, &t) || t == nil {
		return false
	}
	return e.Code == t.Code
}

// New creates a new Error instance.
func New(code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message}
}

// Wrap attaches context to an existing error.
func Wrap(err error, code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message, Err: err}
}

// Predefined errors for common scenarios.
var (
	ErrNotFound     = New("NOT_FOUND", http.StatusNotFound, "resource not found")
	ErrForbidden    = New("FORBIDDEN", http.StatusForbidden, "forbidden")
	ErrUnauthorized = New("UNAUTHORIZED", http.StatusUnauthorized, "unauthorized")
	ErrConflict     = New("CONFLICT", http.StatusConflict, "conflict")
	ErrValidation   = New("VALIDATION_ERROR", http.StatusBadRequest, "validation failed")
	ErrInternal     = New("INTERNAL_ERROR", http.StatusInternalServerError, "internal server error")
	ErrCacheMiss    = New("CACHE_MISS", http.StatusNotFound, "cache miss")
)

// Enrollment capacity error kinds.
var (
	ErrGroupNotFound         = New("GROUP_NOT_FOUND", http.StatusNotFound, "course group not found")
	ErrEnrollmentNotFound    = New("ENROLLMENT_NOT_FOUND", http.StatusNotFound, "enrollment not found")
	ErrGroupClosed           = New("GROUP_CLOSED", http.StatusConflict, "course group is closed for enrollment")
	ErrCapacityExceeded      = New("CAPACITY_EXCEEDED", http.StatusConflict, "course group is full")
	ErrAlreadyEnrolled       = New("ALREADY_ENROLLED", http.StatusConflict, "student already enrolled in course group")
	ErrIllegalTransition     = New("ILLEGAL_TRANSITION", http.StatusUnprocessableEntity, "illegal enrollment status transition")
	ErrCapacityBelowEnrolled = New("CAPACITY_BELOW_ENROLLED", http.StatusConflict, "capacity below current enrollment count")
	ErrHasActiveEnrollments  = New("HAS_ACTIVE_ENROLLMENTS", http.StatusConflict, "course group has active enrollments")
	ErrUnavailable           = New("UNAVAILABLE", http.StatusServiceUnavailable, "service temporarily unavailable")
)

// FromError normalises any error into an *Error.
func FromError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Wrap(err, ErrInternal.Code, ErrInternal.Status, ErrInternal.Message)
}

// Clone returns a copy of the error allowing for message overrides.
func Clone(err *Error, message string) *Error {
	if err == nil {
		return nil
	}
	clone := *err
	if message != "" {
		clone.Message = message
	}
	return &clone
}

// WrapKind attaches a cause to a copy of one of the predefined kinds.
func WrapKind(kind *Error, err error, message string) *Error {
	clone := Clone(kind, message)
	if clone != nil {
		clone.Err = err
	}
	return clone
}
