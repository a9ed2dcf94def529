package samlspflow

import (
	"github.com/philiph/saml-sp-flow/internal/core/domain"
)

// Re-export error types from the domain package so callers do not need to
// import internal packages.
type ErrorCode = domain.ErrorCode
type AppError = domain.AppError

// Re-export error code constants
const (
	ErrCodeConfig         = domain.ErrCodeConfig
	ErrCodeValidation     = domain.ErrCodeValidation
	ErrCodeAuthFailed     = domain.ErrCodeAuthFailed
	ErrCodeContract       = domain.ErrCodeContract
	ErrCodeNotFound       = domain.ErrCodeNotFound
	ErrCodeSessionInvalid = domain.ErrCodeSessionInvalid
	ErrCodeService        = domain.ErrCodeService
)

// Re-export error constructors
var (
	ConfigError          = domain.ConfigError
	ValidationError      = domain.ValidationError
	AuthError            = domain.AuthError
	ContractViolation    = domain.ContractViolation
	NotFoundError        = domain.NotFoundError
	SessionRequiredError = domain.SessionRequiredError
	ServiceError         = domain.ServiceError
)
