package services

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDomainError(t *testing.T) {
	baseErr := errors.New("base error")
	domainErr := NewDomainError(ErrorTypeNotFound, "resource not found", baseErr)

	assert.Equal(t, ErrorTypeNotFound, domainErr.Type)
	assert.Equal(t, "resource not found", domainErr.Message)
	assert.Equal(t, baseErr, domainErr.Err)
	assert.NotNil(t, domainErr.Details)
}

func TestDomainError_Error(t *testing.T) {
	tests := []struct {
		name    string
		err     *DomainError
		wantMsg string
	}{
		{
			name: "error with wrapped error",
			err: &DomainError{
				Type:    ErrorTypeNotFound,
				Message: "provider not found",
				Err:     errors.New("db error"),
			},
			wantMsg: "not_found: provider not found (db error)",
		},
		{
			name: "error without wrapped error",
			err: &DomainError{
				Type:    ErrorTypeValidation,
				Message: "invalid input",
			},
			wantMsg: "validation: invalid input",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantMsg, tt.err.Error())
		})
	}
}

func TestDomainError_Unwrap(t *testing.T) {
	baseErr := errors.New("base error")
	domainErr := NewDomainError(ErrorTypeInternal, "internal error", baseErr)

	assert.Equal(t, baseErr, errors.Unwrap(domainErr))
	assert.True(t, errors.Is(domainErr, baseErr))
}

func TestDomainError_Is(t *testing.T) {
	err := NotFound("provider 9 not found", map[string]interface{}{"provider_id": int64(9)})

	assert.True(t, errors.Is(err, ErrProviderNotFound))
	assert.True(t, errors.Is(err, ErrPlatformNotFound), "matching is by type")
	assert.False(t, errors.Is(err, ErrInvalidInput))

	wrapped := fmt.Errorf("handler: %w", err)
	assert.True(t, IsNotFoundError(wrapped))
	assert.Equal(t, int64(9), GetErrorDetails(wrapped)["provider_id"])
}

func TestErrorTypeHelpers(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		check func(error) bool
	}{
		{"not found", ErrProviderNotFound, IsNotFoundError},
		{"validation", Invalid("bad provider", errors.New("url")), IsValidationError},
		{"unauthorized", ErrInvalidToken, IsUnauthorizedError},
		{"conflict", ErrConcurrentSweepRejected, IsConflictError},
		{"no eligible", ErrNoEligibleProvider, IsNoEligibleProviderError},
		{"internal", WrapInternal("boom", errors.New("x")), IsInternalError},
		{"external", WrapExternal("db down", errors.New("x")), IsExternalError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.True(t, tt.check(tt.err))
			assert.False(t, tt.check(errors.New("plain")))
		})
	}
}

func TestGetErrorType(t *testing.T) {
	assert.Equal(t, ErrorTypeConflict, GetErrorType(ErrConcurrentSweepRejected))
	assert.Equal(t, ErrorType(""), GetErrorType(errors.New("plain")))
	assert.Nil(t, GetErrorDetails(errors.New("plain")))
}

func TestWithDetail(t *testing.T) {
	err := NewDomainError(ErrorTypeValidation, "bad", nil)
	err.Details = nil
	err.WithDetail("field", "api_url")
	require.NotNil(t, err.Details)
	assert.Equal(t, "api_url", err.Details["field"])
}
