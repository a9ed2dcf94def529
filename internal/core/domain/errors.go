package domain

import (
	"fmt"
	"net/http"
)

// ErrorCode categorizes endpoint failures. The codes are stable and drive
// the HTTP status of the user-visible response.
type ErrorCode string

const (
	// ErrCodeConfig marks an ambiguous or unresolvable IdP selection.
	ErrCodeConfig ErrorCode = "config_error"
	// ErrCodeValidation marks a missing or engine-rejected response payload.
	ErrCodeValidation ErrorCode = "validation_error"
	// ErrCodeAuthFailed marks a validated message for which no local
	// principal could be resolved. Deliberately rendered as a 200-class
	// diagnostic page so the browser flow stays alive.
	ErrCodeAuthFailed ErrorCode = "auth_failed"
	// ErrCodeContract marks engine output missing a field this layer
	// depends on. Fatal for the request.
	ErrCodeContract ErrorCode = "contract_violation"
	// ErrCodeNotFound marks the logout responder being invoked with
	// neither expected parameter.
	ErrCodeNotFound ErrorCode = "not_found"
	// ErrCodeSessionInvalid marks an endpoint that requires an
	// authenticated session being reached without one.
	ErrCodeSessionInvalid ErrorCode = "session_invalid"
	// ErrCodeService marks an internal failure, e.g. session persistence.
	ErrCodeService ErrorCode = "service_error"
)

// String returns the error code as a string.
func (c ErrorCode) String() string {
	return string(c)
}

// HTTPStatus returns the HTTP status code for this error code.
func (c ErrorCode) HTTPStatus() int {
	switch c {
	case ErrCodeValidation:
		return http.StatusBadRequest
	case ErrCodeAuthFailed:
		return http.StatusOK
	case ErrCodeNotFound:
		return http.StatusNotFound
	case ErrCodeSessionInvalid:
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

// Title returns a user-friendly title for this error code.
func (c ErrorCode) Title() string {
	switch c {
	case ErrCodeConfig:
		return "Configuration Error"
	case ErrCodeValidation:
		return "Invalid Request"
	case ErrCodeAuthFailed:
		return "Authentication Failed"
	case ErrCodeContract:
		return "Protocol Error"
	case ErrCodeNotFound:
		return "Not Found"
	case ErrCodeSessionInvalid:
		return "Session Required"
	default:
		return "Error"
	}
}

// AppError is a structured error with code, message, and optional cause.
type AppError struct {
	Code    ErrorCode
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *AppError) Error() string {
	return e.Message
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *AppError) Unwrap() error {
	return e.Cause
}

// ConfigError creates a configuration error.
func ConfigError(message string, cause error) *AppError {
	return &AppError{Code: ErrCodeConfig, Message: message, Cause: cause}
}

// ValidationError creates a validation error.
func ValidationError(message string, cause error) *AppError {
	return &AppError{Code: ErrCodeValidation, Message: message, Cause: cause}
}

// AuthError creates an authentication error.
func AuthError(message string, cause error) *AppError {
	return &AppError{Code: ErrCodeAuthFailed, Message: message, Cause: cause}
}

// ContractViolation creates a protocol contract violation for engine output
// missing a required field.
func ContractViolation(field string) *AppError {
	return &AppError{
		Code:    ErrCodeContract,
		Message: fmt.Sprintf("protocol engine response is missing %s", field),
	}
}

// NotFoundError creates a not-found error.
func NotFoundError(message string) *AppError {
	return &AppError{Code: ErrCodeNotFound, Message: message}
}

// SessionRequiredError creates an error for unauthenticated access to an
// authenticated-only endpoint.
func SessionRequiredError() *AppError {
	return &AppError{Code: ErrCodeSessionInvalid, Message: "An authenticated session is required"}
}

// ServiceError creates an internal service error.
func ServiceError(message string, cause error) *AppError {
	return &AppError{Code: ErrCodeService, Message: message, Cause: cause}
}
