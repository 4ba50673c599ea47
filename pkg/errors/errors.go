package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Standard error types
var (
	ErrUnknownRegion      = errors.New("unknown region")
	ErrStorageUnavailable = errors.New("storage unavailable")
	ErrNotFound           = errors.New("resource not found")
	ErrValidation         = errors.New("validation error")
	ErrConflict           = errors.New("resource conflict")
	ErrBadRequest         = errors.New("bad request")
	ErrInternal           = errors.New("internal error")
)

// AppError represents an application error with context
type AppError struct {
	Err        error             `json:"-"`
	Message    string            `json:"message"`
	Code       string            `json:"code"`
	StatusCode int               `json:"status_code"`
	Details    map[string]string `json:"details,omitempty"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the wrapped error
func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates a new AppError
func New(code string, message string, statusCode int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		StatusCode: statusCode,
	}
}

// Wrap wraps an error with additional context
func Wrap(err error, code string, message string, statusCode int) *AppError {
	return &AppError{
		Err:        err,
		Code:       code,
		Message:    message,
		StatusCode: statusCode,
	}
}

// WithDetails adds details to an AppError
func (e *AppError) WithDetails(details map[string]string) *AppError {
	e.Details = details
	return e
}

// Common error constructors

// UnknownRegion reports a region code with no configured storage endpoint.
// Never retried: the caller is holding a bad region code.
func UnknownRegion(region string) *AppError {
	return &AppError{
		Err:        ErrUnknownRegion,
		Code:       "UNKNOWN_REGION",
		Message:    fmt.Sprintf("no storage configured for region %q", region),
		StatusCode: http.StatusBadRequest,
	}
}

// StorageUnavailable reports a transient connectivity failure to a
// region's storage. Safe to retry with backoff.
func StorageUnavailable(err error) *AppError {
	return &AppError{
		Err:        errors.Join(ErrStorageUnavailable, err),
		Code:       "STORAGE_UNAVAILABLE",
		Message:    "region storage is unavailable",
		StatusCode: http.StatusServiceUnavailable,
	}
}

func NotFound(resource string) *AppError {
	return &AppError{
		Err:        ErrNotFound,
		Code:       "NOT_FOUND",
		Message:    fmt.Sprintf("%s not found", resource),
		StatusCode: http.StatusNotFound,
	}
}

// ValidationRejected reports an input that was net-empty or invalid after
// filtering. Terminal: the caller must fix the request.
func ValidationRejected(details map[string]string) *AppError {
	return &AppError{
		Err:        ErrValidation,
		Code:       "VALIDATION_REJECTED",
		Message:    "validation failed",
		StatusCode: http.StatusBadRequest,
		Details:    details,
	}
}

func Conflict(message string) *AppError {
	return &AppError{
		Err:        ErrConflict,
		Code:       "CONFLICT",
		Message:    message,
		StatusCode: http.StatusConflict,
	}
}

func BadRequest(message string) *AppError {
	return &AppError{
		Err:        ErrBadRequest,
		Code:       "BAD_REQUEST",
		Message:    message,
		StatusCode: http.StatusBadRequest,
	}
}

func Internal(message string) *AppError {
	return &AppError{
		Err:        ErrInternal,
		Code:       "INTERNAL_ERROR",
		Message:    message,
		StatusCode: http.StatusInternalServerError,
	}
}

// StepError marks the failing sub-step of a multi-write operation whose
// earlier writes already committed. The caller decides whether to retry
// the step or compensate; the completed steps are never rolled back.
type StepError struct {
	Step string
	Err  error
}

// Error implements the error interface
func (e *StepError) Error() string {
	return fmt.Sprintf("step %q failed: %v", e.Step, e.Err)
}

// Unwrap returns the wrapped error
func (e *StepError) Unwrap() error {
	return e.Err
}

// Step wraps err with the name of the failed sub-step
func Step(step string, err error) *StepError {
	return &StepError{Step: step, Err: err}
}

// Is checks if the error matches a target error
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As attempts to convert an error to a specific type
func As(err error, target any) bool {
	return errors.As(err, target)
}
