package services

import (
	"errors"
	"fmt"

	"github.com/upb/omniagent/internal/router"
	"github.com/upb/omniagent/internal/shared"
)

// ErrorType represents the type/category of error
type ErrorType string

const (
	ErrorTypeNotFound    ErrorType = "not_found"
	ErrorTypeValidation  ErrorType = "validation"
	ErrorTypeConflict    ErrorType = "conflict"
	ErrorTypeQuota       ErrorType = "quota"
	ErrorTypeTimeout     ErrorType = "timeout"
	ErrorTypeUnavailable ErrorType = "unavailable"
	ErrorTypeCanceled    ErrorType = "canceled"
	ErrorTypeInternal    ErrorType = "internal"
	ErrorTypeExternal    ErrorType = "external"
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

// Clone returns a copy with its own details map, so package-level errors
// can be decorated per request.
func (e *DomainError) Clone() *DomainError {
	c := *e
	c.Details = make(map[string]interface{}, len(e.Details))
	for k, v := range e.Details {
		c.Details[k] = v
	}
	return &c
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
	ErrSessionNotFound    = NewDomainError(ErrorTypeNotFound, "session not found", nil)
	ErrEventLogNotEnabled = NewDomainError(ErrorTypeNotFound, "routing event log is not enabled", nil)

	// Validation Errors
	ErrInvalidInput       = NewDomainError(ErrorTypeValidation, "invalid input", nil)
	ErrEmptyPrompt        = NewDomainError(ErrorTypeValidation, "Please provide a valid input.", nil)
	ErrInvalidPrivacyMode = NewDomainError(ErrorTypeValidation, "privacy mode must be Normal or High", nil)
	ErrInvalidImage       = NewDomainError(ErrorTypeValidation, "image must be base64 encoded", nil)

	// Conflict Errors
	ErrSessionBusy = NewDomainError(ErrorTypeConflict, "session is processing another request", nil)

	// Internal Errors
	ErrInternal      = NewDomainError(ErrorTypeInternal, "internal server error", nil)
	ErrDatabaseError = NewDomainError(ErrorTypeInternal, "database error", nil)

	// External Provider Errors
	ErrProviderUnavailable = NewDomainError(ErrorTypeUnavailable, "LLM backend unavailable", nil)
	ErrProviderTimeout     = NewDomainError(ErrorTypeTimeout, "LLM backend timeout", nil)
	ErrProviderError       = NewDomainError(ErrorTypeExternal, "LLM backend error", nil)
	ErrProviderQuota       = NewDomainError(ErrorTypeQuota, "LLM backend quota exceeded", nil)
	ErrRequestCanceled     = NewDomainError(ErrorTypeCanceled, "request canceled", nil)
)

// FromOutcome converts a failed invocation into a DomainError carrying the
// error kind and remediation text. It returns nil for a successful outcome.
func FromOutcome(outcome router.InvocationOutcome) *DomainError {
	if outcome.Succeeded {
		return nil
	}

	var errType ErrorType
	var message string
	switch outcome.ErrorKind {
	case shared.KindInvocationTimeout:
		errType, message = ErrorTypeTimeout, "backend call timed out"
	case shared.KindInvocationQuotaExceeded:
		errType, message = ErrorTypeQuota, "backend quota exceeded"
	case shared.KindBackendUnavailable:
		errType, message = ErrorTypeUnavailable, "backend unavailable"
	case shared.KindCanceled:
		errType, message = ErrorTypeCanceled, "request canceled"
	default:
		errType, message = ErrorTypeExternal, "backend call failed"
	}

	de := NewDomainError(errType, message, outcome.Err).
		WithDetail("error_kind", string(outcome.ErrorKind)).
		WithDetail("backend", outcome.Decision.TargetBackend).
		WithDetail("used_fallback", outcome.UsedFallback)
	if outcome.Remediation != "" {
		de.WithDetail("remediation", outcome.Remediation)
	}
	if outcome.CloudErrorKind != shared.KindNone {
		de.WithDetail("cloud_error_kind", string(outcome.CloudErrorKind))
	}
	return de
}

// Error type checking helper functions

// IsNotFoundError checks if an error is a not found error
func IsNotFoundError(err error) bool {
	return GetErrorType(err) == ErrorTypeNotFound
}

// IsValidationError checks if an error is a validation error
func IsValidationError(err error) bool {
	return GetErrorType(err) == ErrorTypeValidation
}

// IsConflictError checks if an error is a conflict error
func IsConflictError(err error) bool {
	return GetErrorType(err) == ErrorTypeConflict
}

// IsInternalError checks if an error is an internal error
func IsInternalError(err error) bool {
	return GetErrorType(err) == ErrorTypeInternal
}

// IsExternalError checks if an error came from a backend call
func IsExternalError(err error) bool {
	switch GetErrorType(err) {
	case ErrorTypeExternal, ErrorTypeTimeout, ErrorTypeQuota, ErrorTypeUnavailable:
		return true
	}
	return false
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

// WrapInternal wraps an error as an internal error
func WrapInternal(message string, err error) error {
	return NewDomainError(ErrorTypeInternal, message, err)
}
