package services

import (
	"errors"
	"fmt"
)

// ErrorType represents the type/category of error
type ErrorType string

const (
	ErrorTypeNotFound           ErrorType = "not_found"
	ErrorTypeValidation         ErrorType = "validation"
	ErrorTypeUnauthorized       ErrorType = "unauthorized"
	ErrorTypeForbidden          ErrorType = "forbidden"
	ErrorTypeConflict           ErrorType = "conflict"
	ErrorTypeInvariantViolation ErrorType = "invariant_violation"
	ErrorTypeCredential         ErrorType = "credential"
	ErrorTypeRateLimit          ErrorType = "rate_limit"
	ErrorTypeInternal           ErrorType = "internal"
	ErrorTypeExternal           ErrorType = "external"
)

// CredentialReason qualifies a credential error
type CredentialReason string

const (
	CredentialNotConfigured        CredentialReason = "not_configured"
	CredentialMissingConfiguration CredentialReason = "missing_configuration"
	CredentialUpstreamUnavailable  CredentialReason = "upstream_unavailable"
)

// DomainError represents a structured error with additional context
type DomainError struct {
	Type    ErrorType
	Message string
	Err     error
	Details map[string]interface{}
}

// Error implements the error interface
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap implements errors.Unwrap
func (e *DomainError) Unwrap() error {
	return e.Err
}

// Is implements errors.Is
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Type == t.Type
}

// WithDetail adds a detail to the error
func (e *DomainError) WithDetail(key string, value interface{}) *DomainError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// NewDomainError creates a new domain error
func NewDomainError(errType ErrorType, message string, err error) *DomainError {
	return &DomainError{
		Type:    errType,
		Message: message,
		Err:     err,
		Details: make(map[string]interface{}),
	}
}

// Sentinels for errors.Is comparisons. Never attach details to these; build a
// fresh error with one of the constructors below instead.
var (
	ErrNotFound           = NewDomainError(ErrorTypeNotFound, "resource not found", nil)
	ErrUserNotFound       = NewDomainError(ErrorTypeNotFound, "user not found", nil)
	ErrCredentialNotFound = NewDomainError(ErrorTypeNotFound, "credentials not found", nil)

	ErrInvalidInput    = NewDomainError(ErrorTypeValidation, "invalid input", nil)
	ErrInvalidProvider = NewDomainError(ErrorTypeValidation, "invalid provider specified", nil)

	ErrUnauthorized       = NewDomainError(ErrorTypeUnauthorized, "unauthorized", nil)
	ErrInvalidCredentials = NewDomainError(ErrorTypeUnauthorized, "Invalid username or password", nil)
	ErrAccountDisabled    = NewDomainError(ErrorTypeUnauthorized, "Account is disabled", nil)

	ErrForbidden               = NewDomainError(ErrorTypeForbidden, "access forbidden", nil)
	ErrInsufficientPermissions = NewDomainError(ErrorTypeForbidden, "insufficient permissions", nil)

	ErrDuplicateUsername = NewDomainError(ErrorTypeConflict, "username already exists", nil)
	ErrDuplicateEmail    = NewDomainError(ErrorTypeConflict, "email already exists", nil)

	ErrLastSuperAdmin = NewDomainError(ErrorTypeInvariantViolation, "at least one active super admin must exist", nil)

	ErrRateLimitExceeded = NewDomainError(ErrorTypeRateLimit, "rate limit exceeded", nil)

	ErrInternal = NewDomainError(ErrorTypeInternal, "internal server error", nil)

	ErrProviderUnavailable = NewDomainError(ErrorTypeExternal, "cloud provider unavailable", nil)
)

// NewValidationError returns a fresh validation error
func NewValidationError(message string) *DomainError {
	return NewDomainError(ErrorTypeValidation, message, nil)
}

// NewNotFoundError returns a fresh not found error
func NewNotFoundError(message string) *DomainError {
	return NewDomainError(ErrorTypeNotFound, message, nil)
}

// NewForbiddenError returns a fresh authorization error
func NewForbiddenError(message string) *DomainError {
	return NewDomainError(ErrorTypeForbidden, message, nil)
}

// NewUnauthorizedError returns a fresh authentication error
func NewUnauthorizedError(message string, err error) *DomainError {
	return NewDomainError(ErrorTypeUnauthorized, message, err)
}

// NewConflictError returns a fresh conflict error
func NewConflictError(message string) *DomainError {
	return NewDomainError(ErrorTypeConflict, message, nil)
}

// NewInvariantViolation returns a fresh invariant violation error
func NewInvariantViolation(message string) *DomainError {
	return NewDomainError(ErrorTypeInvariantViolation, message, nil)
}

// NewCredentialError returns a credential error tagged with its reason
func NewCredentialError(reason CredentialReason, message string, err error) *DomainError {
	return NewDomainError(ErrorTypeCredential, message, err).WithDetail("reason", string(reason))
}

// Error type checking helper functions

func hasType(err error, errType ErrorType) bool {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Type == errType
	}
	return false
}

// IsNotFoundError checks if an error is a not found error
func IsNotFoundError(err error) bool {
	return hasType(err, ErrorTypeNotFound)
}

// IsValidationError checks if an error is a validation error
func IsValidationError(err error) bool {
	return hasType(err, ErrorTypeValidation)
}

// IsUnauthorizedError checks if an error is an unauthorized error
func IsUnauthorizedError(err error) bool {
	return hasType(err, ErrorTypeUnauthorized)
}

// IsForbiddenError checks if an error is a forbidden error
func IsForbiddenError(err error) bool {
	return hasType(err, ErrorTypeForbidden)
}

// IsConflictError checks if an error is a conflict error
func IsConflictError(err error) bool {
	return hasType(err, ErrorTypeConflict)
}

// IsInvariantViolation checks if an error is an invariant violation
func IsInvariantViolation(err error) bool {
	return hasType(err, ErrorTypeInvariantViolation)
}

// IsCredentialError checks if an error is a credential resolution error
func IsCredentialError(err error) bool {
	return hasType(err, ErrorTypeCredential)
}

// IsRateLimitError checks if an error is a rate limit error
func IsRateLimitError(err error) bool {
	return hasType(err, ErrorTypeRateLimit)
}

// IsInternalError checks if an error is an internal error
func IsInternalError(err error) bool {
	return hasType(err, ErrorTypeInternal)
}

// IsExternalError checks if an error is an external provider error
func IsExternalError(err error) bool {
	return hasType(err, ErrorTypeExternal)
}

// GetCredentialReason returns the reason of a credential error, or empty string
func GetCredentialReason(err error) CredentialReason {
	var domainErr *DomainError
	if errors.As(err, &domainErr) && domainErr.Type == ErrorTypeCredential {
		if reason, ok := domainErr.Details["reason"].(string); ok {
			return CredentialReason(reason)
		}
	}
	return ""
}

// GetErrorType returns the ErrorType of a domain error, or empty string if not a domain error
func GetErrorType(err error) ErrorType {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Type
	}
	return ""
}

// GetErrorMessage returns the human message of a domain error without the wrapped cause
func GetErrorMessage(err error) string {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Message
	}
	return err.Error()
}

// GetErrorDetails returns the details map of a domain error, or nil if not a domain error
func GetErrorDetails(err error) map[string]interface{} {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Details
	}
	return nil
}

// WrapError wraps an error with additional context
func WrapError(errType ErrorType, message string, err error) error {
	return NewDomainError(errType, message, err)
}

// WrapInternal wraps an error as an internal error
func WrapInternal(message string, err error) error {
	return NewDomainError(ErrorTypeInternal, message, err)
}

// WrapExternal wraps an error as an external provider error
func WrapExternal(message string, err error) error {
	return NewDomainError(ErrorTypeExternal, message, err)
}
