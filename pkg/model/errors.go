package model

import (
	"errors"
	"fmt"
)

// ErrorCode represents a structured error code.
type ErrorCode string

const (
	ErrArgument   ErrorCode = "ARGUMENT_ERROR"
	ErrLifecycle  ErrorCode = "LIFECYCLE_ERROR"
	ErrValidation ErrorCode = "VALIDATION_ERROR"
	ErrNotFound   ErrorCode = "NOT_FOUND"
	ErrInternal   ErrorCode = "INTERNAL_ERROR"
)

// APIError is a structured error returned by the diagnostics API.
type APIError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewNotFoundError creates a NOT_FOUND APIError.
func NewNotFoundError(resource, id string) *APIError {
	return &APIError{
		Code:    ErrNotFound,
		Message: fmt.Sprintf("%s '%s' not found", resource, id),
	}
}

// NewInternalError creates an INTERNAL_ERROR APIError.
func NewInternalError(msg string) *APIError {
	return &APIError{Code: ErrInternal, Message: msg}
}

// NewValidationError creates a VALIDATION_ERROR APIError.
func NewValidationError(format string, args ...any) *APIError {
	return &APIError{Code: ErrValidation, Message: fmt.Sprintf(format, args...)}
}

// ToAPIError converts err to an APIError, keeping the code of a
// SchedulerError and reporting anything else as internal.
func ToAPIError(err error) *APIError {
	var se *SchedulerError
	if errors.As(err, &se) {
		return &APIError{Code: se.Code, Message: se.Error()}
	}
	return NewInternalError(err.Error())
}

// SchedulerError is returned synchronously by scheduling primitives.
// Only argument and lifecycle errors are surfaced this way; failures inside
// a scheduled thread are reported as Outcomes.
type SchedulerError struct {
	Code    ErrorCode
	Op      string
	Message string
}

func (e *SchedulerError) Error() string {
	return fmt.Sprintf("%s: %s", e.Op, e.Message)
}

// NewArgumentError reports caller misuse (wrong type or range).
func NewArgumentError(op, format string, args ...any) *SchedulerError {
	return &SchedulerError{Code: ErrArgument, Op: op, Message: fmt.Sprintf(format, args...)}
}

// NewLifecycleError reports an operation that is invalid for the thread's
// current status.
func NewLifecycleError(op, format string, args ...any) *SchedulerError {
	return &SchedulerError{Code: ErrLifecycle, Op: op, Message: fmt.Sprintf(format, args...)}
}

// IsArgumentError reports whether err is (or wraps) an argument error.
func IsArgumentError(err error) bool {
	return hasCode(err, ErrArgument)
}

// IsLifecycleError reports whether err is (or wraps) a lifecycle error.
func IsLifecycleError(err error) bool {
	return hasCode(err, ErrLifecycle)
}

func hasCode(err error, code ErrorCode) bool {
	var se *SchedulerError
	if errors.As(err, &se) {
		return se.Code == code
	}
	return false
}

// InvalidTransitionError is returned when a status transition is invalid.
type InvalidTransitionError struct {
	ID   TaskID
	From TaskStatus
	To   TaskStatus
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid task status transition: %s → %s (task %d)", e.From, e.To, e.ID)
}
