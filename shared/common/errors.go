package common

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorCode represents different types of replication errors
type ErrorCode string

const (
	// General errors
	ErrCodeConfiguration      ErrorCode = "CONFIGURATION"
	ErrCodeServiceUnavailable ErrorCode = "SERVICE_UNAVAILABLE"

	// Database errors
	ErrCodeDatabaseConnection     ErrorCode = "DATABASE_CONNECTION"
	ErrCodeDatabaseQuery          ErrorCode = "DATABASE_QUERY"
	ErrCodeDatabaseConstraint     ErrorCode = "DATABASE_CONSTRAINT"
	ErrCodeInsufficientPrivileges ErrorCode = "INSUFFICIENT_PRIVILEGES"
)

// AppError represents a structured application error
type AppError struct {
	Code       ErrorCode              `json:"code"`
	Message    string                 `json:"message"`
	Details    string                 `json:"details,omitempty"`
	Cause      error                  `json:"-"`
	StatusCode int                    `json:"-"`
	Context    map[string]interface{} `json:"context,omitempty"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.Details != "" {
		msg = fmt.Sprintf("%s (%s)", msg, e.Details)
	}
	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

// Unwrap returns the underlying cause error
func (e *AppError) Unwrap() error {
	return e.Cause
}

// WithContext adds context to the error
func (e *AppError) WithContext(key string, value interface{}) *AppError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// NewAppError creates a new application error
func NewAppError(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		StatusCode: getHTTPStatusCode(code),
	}
}

// NewAppErrorWithDetails creates a new application error with details
func NewAppErrorWithDetails(code ErrorCode, message, details string) *AppError {
	appErr := NewAppError(code, message)
	appErr.Details = details
	return appErr
}

// WrapError wraps an existing error with application error context.
// An error that already carries an AppError is returned unchanged.
func WrapError(err error, code ErrorCode, message string) error {
	if err == nil {
		return nil
	}

	var appErr *AppError
	if errors.As(err, &appErr) {
		return err
	}

	return &AppError{
		Code:       code,
		Message:    message,
		Cause:      err,
		StatusCode: getHTTPStatusCode(code),
	}
}

func getHTTPStatusCode(code ErrorCode) int {
	switch code {
	case ErrCodeInsufficientPrivileges:
		return http.StatusForbidden
	case ErrCodeServiceUnavailable, ErrCodeDatabaseConnection:
		return http.StatusServiceUnavailable
	case ErrCodeDatabaseConstraint:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// GetAppError extracts AppError from error chain
func GetAppError(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return nil
}

// HasErrorCode checks if the error has a specific error code
func HasErrorCode(err error, code ErrorCode) bool {
	if appErr := GetAppError(err); appErr != nil {
		return appErr.Code == code
	}
	return false
}

// IsFatal reports whether err should abort the run for the current schema
// rather than be tallied as a per-record failure.
func IsFatal(err error) bool {
	return HasErrorCode(err, ErrCodeInsufficientPrivileges) ||
		HasErrorCode(err, ErrCodeConfiguration) ||
		HasErrorCode(err, ErrCodeDatabaseConnection)
}

// ErrConfiguration creates a configuration error
func ErrConfiguration(details string) *AppError {
	return NewAppErrorWithDetails(ErrCodeConfiguration, "invalid configuration", details)
}

// ErrDatabaseConnection creates a database connection error
func ErrDatabaseConnection(cause error) *AppError {
	appErr := NewAppError(ErrCodeDatabaseConnection, "database connection failed")
	appErr.Cause = cause
	return appErr
}

// ErrInsufficientPrivileges creates a missing privilege error
func ErrInsufficientPrivileges(cause error) *AppError {
	appErr := NewAppError(ErrCodeInsufficientPrivileges, "insufficient database privileges")
	appErr.Cause = cause
	return appErr
}

// ValidationError represents a field validation error
type ValidationError struct {
	Field   string      `json:"field"`
	Message string      `json:"message"`
	Value   interface{} `json:"value,omitempty"`
}

// ValidationErrors represents multiple validation errors
type ValidationErrors []ValidationError

// Error implements the error interface for ValidationErrors
func (ve ValidationErrors) Error() string {
	switch len(ve) {
	case 0:
		return "validation failed"
	case 1:
		return fmt.Sprintf("validation failed: %s %s", ve[0].Field, ve[0].Message)
	default:
		return fmt.Sprintf("validation failed with %d errors: %s %s", len(ve), ve[0].Field, ve[0].Message)
	}
}

// ToAppError converts ValidationErrors to a configuration AppError
func (ve ValidationErrors) ToAppError() *AppError {
	if len(ve) == 0 {
		return nil
	}

	appErr := ErrConfiguration(ve.Error())
	appErr.WithContext("validation_errors", []ValidationError(ve))
	return appErr
}

// Add adds a validation error
func (ve *ValidationErrors) Add(field, message string, value interface{}) {
	*ve = append(*ve, ValidationError{Field: field, Message: message, Value: value})
}

// HasErrors returns true if there are validation errors
func (ve ValidationErrors) HasErrors() bool {
	return len(ve) > 0
}
