package services

import (
	"errors"
	"fmt"
)

// ErrorType represents the type/category of error
type ErrorType string

const (
	ErrorTypeNotFound      ErrorType = "not_found"
	ErrorTypeValidation    ErrorType = "validation"
	ErrorTypeQuotaExceeded ErrorType = "quota_exceeded"
	ErrorTypeProvider      ErrorType = "provider"
	ErrorTypeParse         ErrorType = "parse"
	ErrorTypeConfiguration ErrorType = "configuration"
	ErrorTypeCancelled     ErrorType = "cancelled"
	ErrorTypeConflict      ErrorType = "conflict"
	ErrorTypeInternal      ErrorType = "internal"
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

// Domain error variables

var (
	// Not Found Errors
	ErrRoleNotFound         = NewDomainError(ErrorTypeNotFound, "role not found", nil)
	ErrNoModelAssigned      = NewDomainError(ErrorTypeNotFound, "no model assigned to role", nil)
	ErrOrganizationNotFound = NewDomainError(ErrorTypeNotFound, "organization not found", nil)
	ErrSubscriptionNotFound = NewDomainError(ErrorTypeNotFound, "subscription not found", nil)
	ErrModelConfigNotFound  = NewDomainError(ErrorTypeNotFound, "model config not found", nil)
	ErrTaskNotFound         = NewDomainError(ErrorTypeNotFound, "task not found", nil)
	ErrOrchestratorNotFound = NewDomainError(ErrorTypeNotFound, "orchestrator role not found", nil)
	ErrNoSpecialistRoles    = NewDomainError(ErrorTypeNotFound, "no specialist roles available", nil)

	// Validation Errors
	ErrInvalidInput    = NewDomainError(ErrorTypeValidation, "invalid input", nil)
	ErrEmptyMessages   = NewDomainError(ErrorTypeValidation, "messages cannot be empty", nil)
	ErrTaskWithoutRole = NewDomainError(ErrorTypeValidation, "task has no assigned role", nil)

	// Quota Errors
	ErrQuotaExceeded = NewDomainError(ErrorTypeQuotaExceeded, "token quota exceeded", nil)

	// Provider Errors
	ErrProviderUnavailable = NewDomainError(ErrorTypeProvider, "LLM provider unavailable", nil)
	ErrProviderCall        = NewDomainError(ErrorTypeProvider, "LLM provider call failed", nil)
	ErrEmptyCompletion     = NewDomainError(ErrorTypeProvider, "empty completion from provider", nil)

	// Parse Errors
	ErrNoJSONFound    = NewDomainError(ErrorTypeParse, "no JSON object found in response", nil)
	ErrMalformedJSON  = NewDomainError(ErrorTypeParse, "malformed JSON in response", nil)

	// Configuration Errors
	ErrMissingAPIKey      = NewDomainError(ErrorTypeConfiguration, "no API key configured for provider", nil)
	ErrUnknownProvider    = NewDomainError(ErrorTypeConfiguration, "unknown provider", nil)
	ErrProviderNotWired   = NewDomainError(ErrorTypeConfiguration, "provider not registered", nil)

	// Cancellation Errors
	ErrCallCancelled = NewDomainError(ErrorTypeCancelled, "provider call cancelled or timed out", nil)

	// Conflict Errors
	ErrTaskAlreadyRunning = NewDomainError(ErrorTypeConflict, "task is already running or completed", nil)

	// Internal Errors
	ErrInternal      = NewDomainError(ErrorTypeInternal, "internal error", nil)
	ErrDatabaseError = NewDomainError(ErrorTypeInternal, "database error", nil)
)

// Error type checking helper functions

// IsNotFoundError checks if an error is a not found error
func IsNotFoundError(err error) bool {
	return GetErrorType(err) == ErrorTypeNotFound
}

// IsValidationError checks if an error is a validation error
func IsValidationError(err error) bool {
	return GetErrorType(err) == ErrorTypeValidation
}

// IsQuotaExceededError checks if an error is a quota error
func IsQuotaExceededError(err error) bool {
	return GetErrorType(err) == ErrorTypeQuotaExceeded
}

// IsProviderError checks if an error is a provider error
func IsProviderError(err error) bool {
	return GetErrorType(err) == ErrorTypeProvider
}

// IsParseError checks if an error is a parse error
func IsParseError(err error) bool {
	return GetErrorType(err) == ErrorTypeParse
}

// IsConfigurationError checks if an error is a configuration error
func IsConfigurationError(err error) bool {
	return GetErrorType(err) == ErrorTypeConfiguration
}

// IsCancelledError checks if an error is a cancellation error
func IsCancelledError(err error) bool {
	return GetErrorType(err) == ErrorTypeCancelled
}

// IsConflictError checks if an error is a conflict error
func IsConflictError(err error) bool {
	return GetErrorType(err) == ErrorTypeConflict
}

// IsInternalError checks if an error is an internal error
func IsInternalError(err error) bool {
	return GetErrorType(err) == ErrorTypeInternal
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

// WrapProvider wraps an error as a provider error
func WrapProvider(message string, err error) error {
	return NewDomainError(ErrorTypeProvider, message, err)
}
