package errors

import (
	stderrors "errors"
	"fmt"
	"time"
)

// ErrorType represents the category of error
type ErrorType string

const (
	// ErrorTypeGraph represents ancestry graph store errors
	ErrorTypeGraph ErrorType = "graph"
	// ErrorTypeAncestry represents integrity violations in the ancestry data itself
	ErrorTypeAncestry ErrorType = "ancestry"
	// ErrorTypeRecord represents record store errors
	ErrorTypeRecord ErrorType = "record"
	// ErrorTypeCache represents snapshot cache errors (never escalated to callers)
	ErrorTypeCache ErrorType = "cache"
	// ErrorTypeConfig represents configuration errors
	ErrorTypeConfig ErrorType = "config"
	// ErrorTypeContext represents context cancellation/timeout errors
	ErrorTypeContext ErrorType = "context"
)

// BaseError is the base error type with common fields
type BaseError struct {
	Type      ErrorType
	Message   string
	Timestamp time.Time
	Err       error // Wrapped error
}

// Error implements the error interface
func (e *BaseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Type, e.Message)
}

// Unwrap returns the wrapped error for error unwrapping
func (e *BaseError) Unwrap() error {
	return e.Err
}

// ErrorType reports the category. Promoted to every error embedding BaseError.
func (e *BaseError) ErrorType() ErrorType {
	return e.Type
}

// NewBaseError creates a new base error
func NewBaseError(errType ErrorType, message string, err error) *BaseError {
	return &BaseError{
		Type:      errType,
		Message:   message,
		Timestamp: time.Now(),
		Err:       err,
	}
}

// Graph Errors

// ErrGraphUnavailable is returned when the graph store cannot be reached or a
// call to it times out. Callers may retry.
type ErrGraphUnavailable struct {
	*BaseError
	Operation string
}

func NewGraphUnavailable(operation string, err error) *ErrGraphUnavailable {
	return &ErrGraphUnavailable{
		BaseError: NewBaseError(ErrorTypeGraph, fmt.Sprintf("graph unavailable during %s", operation), err),
		Operation: operation,
	}
}

// ErrCyclicAncestry is returned when an ancestry edge set contains a cycle.
// It is fatal to the computation that found it.
type ErrCyclicAncestry struct {
	*BaseError
	PersonID string
}

func NewCyclicAncestry(personID string) *ErrCyclicAncestry {
	return &ErrCyclicAncestry{
		BaseError: NewBaseError(ErrorTypeAncestry, fmt.Sprintf("cyclic ancestry detected at %s", personID), nil),
		PersonID:  personID,
	}
}

// Record Errors

// ErrNotFound is returned when a person or family is absent from the record store
type ErrNotFound struct {
	*BaseError
	Kind string
	ID   string
}

func NewNotFound(kind, id string) *ErrNotFound {
	return &ErrNotFound{
		BaseError: NewBaseError(ErrorTypeRecord, fmt.Sprintf("%s not found: %s", kind, id), nil),
		Kind:      kind,
		ID:        id,
	}
}

// ErrRecordQueryFailed is returned when the record store rejects a statement
type ErrRecordQueryFailed struct {
	*BaseError
	Operation string
}

func NewRecordQueryFailed(operation string, err error) *ErrRecordQueryFailed {
	return &ErrRecordQueryFailed{
		BaseError: NewBaseError(ErrorTypeRecord, fmt.Sprintf("record store %s failed", operation), err),
		Operation: operation,
	}
}

// Context Errors

// ErrContextCancelled is returned when context is cancelled
type ErrContextCancelled struct {
	*BaseError
	Operation string
}

func NewContextCancelled(operation string, err error) *ErrContextCancelled {
	return &ErrContextCancelled{
		BaseError: NewBaseError(ErrorTypeContext, fmt.Sprintf("context cancelled: %s", operation), err),
		Operation: operation,
	}
}

// Config Errors

// ErrConfigValidationFailed is returned when configuration validation fails
type ErrConfigValidationFailed struct {
	*BaseError
	Field  string
	Reason string
}

func NewConfigValidationFailed(field, reason string) *ErrConfigValidationFailed {
	return &ErrConfigValidationFailed{
		BaseError: NewBaseError(ErrorTypeConfig, fmt.Sprintf("config validation failed: %s - %s", field, reason), nil),
		Field:     field,
		Reason:    reason,
	}
}

// ErrConfigMissingRequired is returned when a required config value is missing
type ErrConfigMissingRequired struct {
	*BaseError
	Field string
}

func NewConfigMissingRequired(field string) *ErrConfigMissingRequired {
	return &ErrConfigMissingRequired{
		BaseError: NewBaseError(ErrorTypeConfig, fmt.Sprintf("missing required config: %s", field), nil),
		Field:     field,
	}
}

// Helper functions

type typed interface {
	ErrorType() ErrorType
}

// IsErrorType checks if err, or anything it wraps, is of errType
func IsErrorType(err error, errType ErrorType) bool {
	for err != nil {
		var t typed
		if !stderrors.As(err, &t) {
			return false
		}
		if t.ErrorType() == errType {
			return true
		}
		inner, ok := t.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = inner.Unwrap()
	}
	return false
}

// IsGraphUnavailable reports whether err is (or wraps) ErrGraphUnavailable
func IsGraphUnavailable(err error) bool {
	var target *ErrGraphUnavailable
	return stderrors.As(err, &target)
}

// IsCyclicAncestry reports whether err is (or wraps) ErrCyclicAncestry
func IsCyclicAncestry(err error) bool {
	var target *ErrCyclicAncestry
	return stderrors.As(err, &target)
}

// IsNotFound reports whether err is (or wraps) ErrNotFound
func IsNotFound(err error) bool {
	var target *ErrNotFound
	return stderrors.As(err, &target)
}

// IsRetryable checks if an error is retryable
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	// Data integrity problems do not go away on retry
	if IsCyclicAncestry(err) || IsNotFound(err) {
		return false
	}
	if IsErrorType(err, ErrorTypeContext) {
		return false
	}
	return IsGraphUnavailable(err)
}
