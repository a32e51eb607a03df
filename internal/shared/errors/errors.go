package errors

import (
	"errors"
	"fmt"
)

// Error types for the storage layer
type ErrorType string

const (
	ErrorTypeValidation         ErrorType = "VALIDATION_ERROR"
	ErrorTypeNotFound           ErrorType = "NOT_FOUND_ERROR"
	ErrorTypeConflict           ErrorType = "CONFLICT_ERROR"
	ErrorTypeUnavailable        ErrorType = "UNAVAILABLE_ERROR"
	ErrorTypeConnectionTimeout  ErrorType = "CONNECTION_TIMEOUT"
	ErrorTypeReconnectExhausted ErrorType = "RECONNECT_EXHAUSTED"
	ErrorTypeInfrastructure     ErrorType = "INFRASTRUCTURE_ERROR"
	ErrorTypeInternal           ErrorType = "INTERNAL_ERROR"
)

// Common storage errors
var (
	ErrNotFound           = errors.New("resource not found")
	ErrConflict           = errors.New("resource conflict")
	ErrInvalidInput       = errors.New("invalid input")
	ErrStorageUnavailable = errors.New("storage unavailable")
	ErrConnectionTimeout  = errors.New("connection timeout")
	ErrReconnectExhausted = errors.New("reconnection attempts exhausted")
	ErrNotConnected       = errors.New("database not connected")
)

// AppError represents a custom application error with context
type AppError struct {
	Type      ErrorType              `json:"type"`
	Message   string                 `json:"message"`
	Code      string                 `json:"code,omitempty"`
	Details   map[string]interface{} `json:"details,omitempty"`
	Cause     error                  `json:"-"`
	Component string                 `json:"component,omitempty"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap returns the wrapped error
func (e *AppError) Unwrap() error {
	return e.Cause
}

// NewAppError creates a new application error
func NewAppError(errorType ErrorType, message string) *AppError {
	return &AppError{
		Type:    errorType,
		Message: message,
		Details: make(map[string]interface{}),
	}
}

// WithCode adds an error code
func (e *AppError) WithCode(code string) *AppError {
	e.Code = code
	return e
}

// WithCause adds the underlying cause
func (e *AppError) WithCause(cause error) *AppError {
	e.Cause = cause
	return e
}

// WithComponent adds the component name
func (e *AppError) WithComponent(component string) *AppError {
	e.Component = component
	return e
}

// WithDetail adds a detail field
func (e *AppError) WithDetail(key string, value interface{}) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// NewValidationError creates a validation error
func NewValidationError(message string) *AppError {
	return NewAppError(ErrorTypeValidation, message).WithCause(ErrInvalidInput)
}

// NewNotFoundError creates a not found error
func NewNotFoundError(resource string) *AppError {
	return NewAppError(ErrorTypeNotFound, fmt.Sprintf("%s not found", resource)).WithCause(ErrNotFound)
}

// NewConflictError creates a conflict error, typically from a unique index violation
func NewConflictError(message string) *AppError {
	return NewAppError(ErrorTypeConflict, message).WithCause(ErrConflict)
}

// NewUnavailableError signals that the remote store cannot serve the request
func NewUnavailableError(message string) *AppError {
	return NewAppError(ErrorTypeUnavailable, message).WithCause(ErrStorageUnavailable)
}

// NewConnectionTimeoutError is returned when connection establishment exceeds its deadline
func NewConnectionTimeoutError(message string) *AppError {
	return NewAppError(ErrorTypeConnectionTimeout, message).WithCause(ErrConnectionTimeout)
}

// NewReconnectExhaustedError is fatal: no further automatic retries are scheduled
func NewReconnectExhaustedError(attempts int) *AppError {
	return NewAppError(ErrorTypeReconnectExhausted,
		fmt.Sprintf("gave up after %d connection attempts", attempts)).
		WithCause(ErrReconnectExhausted).
		WithDetail("attempts", attempts)
}

// NewInfrastructureError creates an infrastructure error
func NewInfrastructureError(message string) *AppError {
	return NewAppError(ErrorTypeInfrastructure, message)
}

// NewInternalError creates an internal error
func NewInternalError(message string) *AppError {
	return NewAppError(ErrorTypeInternal, message)
}

// WrapError wraps an error with context
func WrapError(err error, message string) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return NewInternalError(message).WithCause(err)
}

func hasType(err error, t ErrorType) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Type == t
	}
	return false
}

// IsNotFound checks if an error is a not found error
func IsNotFound(err error) bool {
	return hasType(err, ErrorTypeNotFound) || errors.Is(err, ErrNotFound)
}

// IsValidation checks if an error is a validation error
func IsValidation(err error) bool {
	return hasType(err, ErrorTypeValidation) || errors.Is(err, ErrInvalidInput)
}

// IsConflict checks if an error is a conflict error
func IsConflict(err error) bool {
	return hasType(err, ErrorTypeConflict) || errors.Is(err, ErrConflict)
}

// IsUnavailable reports whether callers should degrade to the fallback store.
// Timeouts, exhausted reconnects and a missing connection all count.
func IsUnavailable(err error) bool {
	return hasType(err, ErrorTypeUnavailable) ||
		hasType(err, ErrorTypeConnectionTimeout) ||
		hasType(err, ErrorTypeReconnectExhausted) ||
		errors.Is(err, ErrStorageUnavailable) ||
		errors.Is(err, ErrConnectionTimeout) ||
		errors.Is(err, ErrReconnectExhausted) ||
		errors.Is(err, ErrNotConnected)
}

// IsFatal reports whether the error requires a process restart
func IsFatal(err error) bool {
	return hasType(err, ErrorTypeReconnectExhausted) || errors.Is(err, ErrReconnectExhausted)
}
