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
	ErrorTypeConflict           ErrorType = "conflict"
	ErrorTypeNoEligibleProvider ErrorType = "no_eligible_provider"
	ErrorTypeInternal           ErrorType = "internal"
	ErrorTypeExternal           ErrorType = "external"
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

// WithDetail adds a detail to the error.
// Call it on errors built with NewDomainError, never on the package-level sentinels.
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

// Domain error variables

var (
	// Not Found Errors
	ErrPlatformNotFound = NewDomainError(ErrorTypeNotFound, "platform not found", nil)
	ErrProviderNotFound = NewDomainError(ErrorTypeNotFound, "provider not found", nil)

	// Validation Errors
	ErrInvalidInput          = NewDomainError(ErrorTypeValidation, "invalid input", nil)
	ErrInvalidProviderConfig = NewDomainError(ErrorTypeValidation, "invalid provider configuration", nil)
	ErrInvalidSettings       = NewDomainError(ErrorTypeValidation, "invalid settings", nil)

	// Authorization Errors
	ErrUnauthorized = NewDomainError(ErrorTypeUnauthorized, "unauthorized", nil)
	ErrInvalidToken = NewDomainError(ErrorTypeUnauthorized, "invalid authentication token", nil)

	// Conflict Errors
	ErrConcurrentSweepRejected = NewDomainError(ErrorTypeConflict, "sweep already in progress", nil)

	// Routing Errors
	ErrNoEligibleProvider = NewDomainError(ErrorTypeNoEligibleProvider, "no eligible provider", nil)

	// Internal Errors
	ErrInternal      = NewDomainError(ErrorTypeInternal, "internal server error", nil)
	ErrDatabaseError = NewDomainError(ErrorTypeInternal, "database error", nil)

	// External Errors
	ErrProviderSourceUnavailable = NewDomainError(ErrorTypeExternal, "provider configuration source unavailable", nil)
)

// Error type checking helper functions

func isType(err error, errType ErrorType) bool {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Type == errType
	}
	return false
}

// IsNotFoundError checks if an error is a not found error
func IsNotFoundError(err error) bool {
	return isType(err, ErrorTypeNotFound)
}

// IsValidationError checks if an error is a validation error
func IsValidationError(err error) bool {
	return isType(err, ErrorTypeValidation)
}

// IsUnauthorizedError checks if an error is an unauthorized error
func IsUnauthorizedError(err error) bool {
	return isType(err, ErrorTypeUnauthorized)
}

// IsConflictError checks if an error is a conflict error
func IsConflictError(err error) bool {
	return isType(err, ErrorTypeConflict)
}

// IsNoEligibleProviderError checks if routing found nothing to select
func IsNoEligibleProviderError(err error) bool {
	return isType(err, ErrorTypeNoEligibleProvider)
}

// IsInternalError checks if an error is an internal error
func IsInternalError(err error) bool {
	return isType(err, ErrorTypeInternal)
}

// IsExternalError checks if an error is an external collaborator error
func IsExternalError(err error) bool {
	return isType(err, ErrorTypeExternal)
}

// GetErrorType returns the ErrorType of a domain error, or empty string if not a domain error
func GetErrorType(err error) ErrorType {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Type
	}
	return ""
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

// WrapExternal wraps an error as an external collaborator error
func WrapExternal(message string, err error) error {
	return NewDomainError(ErrorTypeExternal, message, err)
}

// NotFound builds a not-found error naming the missing resource
func NotFound(message string, details map[string]interface{}) *DomainError {
	e := NewDomainError(ErrorTypeNotFound, message, nil)
	for k, v := range details {
		e.WithDetail(k, v)
	}
	return e
}

// Invalid builds a validation error wrapping the underlying cause
func Invalid(message string, err error) *DomainError {
	return NewDomainError(ErrorTypeValidation, message, err)
}
