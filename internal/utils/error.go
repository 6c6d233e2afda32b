package utils

import (
	"errors"
	"fmt"
	"net/http"
)

// Error codes with HTTP status mapping
const (
	// General errors
	ErrCodeInvalidRequest     = "INVALID_REQUEST"
	ErrCodeValidationFailed   = "VALIDATION_ERROR"
	ErrCodeUnauthorized       = "UNAUTHORIZED"
	ErrCodeInternalError      = "INTERNAL_ERROR"
	ErrCodeServiceUnavailable = "SERVICE_UNAVAILABLE"
	ErrCodeRateLimitExceeded  = "RATE_LIMIT_EXCEEDED"

	// Database errors
	ErrCodeConnectionFailed = "CONNECTION_FAILED"
	ErrCodeQueryFailed      = "QUERY_FAILED"
	ErrCodeQueryTimeout     = "QUERY_TIMEOUT"

	// SQL generation errors
	ErrCodeExtractionFailed = "EXTRACTION_FAILED"
	ErrCodeUnsafeSQL        = "UNSAFE_SQL"
)

// HTTPStatus maps error codes to HTTP status codes
var HTTPStatus = map[string]int{
	ErrCodeInvalidRequest:     http.StatusBadRequest,
	ErrCodeValidationFailed:   http.StatusUnprocessableEntity,
	ErrCodeUnauthorized:       http.StatusUnauthorized,
	ErrCodeInternalError:      http.StatusInternalServerError,
	ErrCodeServiceUnavailable: http.StatusServiceUnavailable,
	ErrCodeRateLimitExceeded:  http.StatusTooManyRequests,

	ErrCodeConnectionFailed: http.StatusServiceUnavailable,
	ErrCodeQueryFailed:      http.StatusInternalServerError,
	ErrCodeQueryTimeout:     http.StatusInternalServerError,

	ErrCodeExtractionFailed: http.StatusUnprocessableEntity,
	ErrCodeUnsafeSQL:        http.StatusUnprocessableEntity,
}

// AppError represents an application error with additional context
type AppError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
	Cause   error  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s - %s", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// ErrorBuilder provides a fluent interface for creating errors
type ErrorBuilder struct {
	code    string
	message string
	details string
	cause   error
}

// NewErrorBuilder creates a new error builder
func NewErrorBuilder(code string) *ErrorBuilder {
	return &ErrorBuilder{code: code}
}

func (eb *ErrorBuilder) WithMessage(message string) *ErrorBuilder {
	eb.message = message
	return eb
}

func (eb *ErrorBuilder) WithDetails(details string) *ErrorBuilder {
	eb.details = details
	return eb
}

func (eb *ErrorBuilder) WithCause(cause error) *ErrorBuilder {
	eb.cause = cause
	return eb
}

// Build constructs the final AppError
func (eb *ErrorBuilder) Build() *AppError {
	if eb.message == "" {
		eb.message = getDefaultMessage(eb.code)
	}

	return &AppError{
		Code:    eb.code,
		Message: eb.message,
		Details: eb.details,
		Cause:   eb.cause,
	}
}

func getDefaultMessage(code string) string {
	messages := map[string]string{
		ErrCodeInvalidRequest:     "The request is invalid",
		ErrCodeValidationFailed:   "Validation failed",
		ErrCodeUnauthorized:       "Unauthorized access",
		ErrCodeInternalError:      "Internal server error",
		ErrCodeServiceUnavailable: "Service temporarily unavailable",
		ErrCodeRateLimitExceeded:  "Rate limit exceeded",

		ErrCodeConnectionFailed: "Database connection failed",
		ErrCodeQueryFailed:      "Query execution failed",
		ErrCodeQueryTimeout:     "Query timeout",

		ErrCodeExtractionFailed: "could not extract SQL",
		ErrCodeUnsafeSQL:        "Only SELECT and WITH statements can be executed",
	}

	if msg, exists := messages[code]; exists {
		return msg
	}
	return "Unknown error"
}

// Convenience functions for common error types

func NewValidationError(message string, details string) *AppError {
	return NewErrorBuilder(ErrCodeValidationFailed).
		WithMessage(message).
		WithDetails(details).
		Build()
}

func NewServiceUnavailableError(message string, cause error) *AppError {
	b := NewErrorBuilder(ErrCodeServiceUnavailable).
		WithMessage(message).
		WithCause(cause)
	if cause != nil {
		b = b.WithDetails(cause.Error())
	}
	return b.Build()
}

func NewConnectionError(cause error) *AppError {
	b := NewErrorBuilder(ErrCodeConnectionFailed).WithCause(cause)
	if cause != nil {
		b = b.WithDetails(cause.Error())
	}
	return b.Build()
}

func NewQueryError(cause error) *AppError {
	b := NewErrorBuilder(ErrCodeQueryFailed).WithCause(cause)
	if cause != nil {
		b = b.WithDetails(cause.Error())
	}
	return b.Build()
}

func NewExtractionError(details string) *AppError {
	return NewErrorBuilder(ErrCodeExtractionFailed).
		WithDetails(details).
		Build()
}

func NewUnsafeSQLError(details string) *AppError {
	return NewErrorBuilder(ErrCodeUnsafeSQL).
		WithDetails(details).
		Build()
}

// AsAppError returns the first AppError in err's chain, wrapping anything
// else as an internal error.
func AsAppError(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return NewErrorBuilder(ErrCodeInternalError).
		WithDetails(err.Error()).
		WithCause(err).
		Build()
}

// IsErrorType checks if an error matches a specific error code
func IsErrorType(err error, code string) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}

// GetErrorStatus returns the HTTP status code for an error
func GetErrorStatus(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		if status, exists := HTTPStatus[appErr.Code]; exists {
			return status
		}
	}
	return http.StatusInternalServerError
}
