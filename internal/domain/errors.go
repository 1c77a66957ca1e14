package domain

import (
	"errors"
	"fmt"
)

// Error types for domain-specific errors
type ErrorType string

const (
	ErrorTypeSourceUnavailable  ErrorType = "source_unavailable"
	ErrorTypeRenderFailure      ErrorType = "render_failure"
	ErrorTypeTransientService   ErrorType = "transient_service"
	ErrorTypeMalformedResponse  ErrorType = "malformed_response"
	ErrorTypeRejected           ErrorType = "rejected"
	ErrorTypePersistenceFailure ErrorType = "persistence_failure"
	ErrorTypeFatalJob           ErrorType = "fatal_job"
	ErrorTypeValidation         ErrorType = "validation"
	ErrorTypeConfig             ErrorType = "config"
	ErrorTypeIO                 ErrorType = "io"
)

// DomainError represents a domain-specific error with context
type DomainError struct {
	Type    ErrorType
	Message string
	Err     error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Type, e.Message)
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewError creates a new domain error
func NewError(errType ErrorType, message string, err error) *DomainError {
	return &DomainError{
		Type:    errType,
		Message: message,
		Err:     err,
	}
}

// IsType reports whether err carries a DomainError of the given type anywhere in its chain.
func IsType(err error, errType ErrorType) bool {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Type == errType
	}
	return false
}

// TypeOf returns the ErrorType of err, or "" when err is not a DomainError.
func TypeOf(err error) ErrorType {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Type
	}
	return ""
}

// Common error constructors
func SourceUnavailableError(message string, err error) *DomainError {
	return NewError(ErrorTypeSourceUnavailable, message, err)
}

func RenderError(message string, err error) *DomainError {
	return NewError(ErrorTypeRenderFailure, message, err)
}

func TransientError(message string, err error) *DomainError {
	return NewError(ErrorTypeTransientService, message, err)
}

func MalformedResponseError(message string, err error) *DomainError {
	return NewError(ErrorTypeMalformedResponse, message, err)
}

// RejectedError marks a non-retryable service answer (unexpected HTTP status, empty candidates).
func RejectedError(message string, err error) *DomainError {
	return NewError(ErrorTypeRejected, message, err)
}

func PersistenceError(message string, err error) *DomainError {
	return NewError(ErrorTypePersistenceFailure, message, err)
}

func FatalJobError(message string, err error) *DomainError {
	return NewError(ErrorTypeFatalJob, message, err)
}

func ValidationError(message string, err error) *DomainError {
	return NewError(ErrorTypeValidation, message, err)
}

func ConfigError(message string, err error) *DomainError {
	return NewError(ErrorTypeConfig, message, err)
}

func IOError(message string, err error) *DomainError {
	return NewError(ErrorTypeIO, message, err)
}
