package utils

import (
	"errors"
	"fmt"
)

// ValidationError represents an error in request or configuration input.
type ValidationError struct {
	Field   string
	Message string
}

// Error returns the error message string.
func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// NewValidationError creates a new ValidationError for a named input field.
//
// Parameters:
//   - field: The offending field, may be empty.
//   - message: The validation error message.
//
// Returns:
//   - An error interface wrapping the ValidationError.
func NewValidationError(field, message string) error {
	return &ValidationError{
		Field:   field,
		Message: message,
	}
}

// ErrorKind classifies a failure in the forecasting pipeline.
type ErrorKind string

const (
	// InsufficientData means the history is empty or shorter than the minimum record count.
	InsufficientData ErrorKind = "insufficient_data"
	// ValidationFailed means structural data issues aborted selection for a scope.
	ValidationFailed ErrorKind = "validation_failed"
	// AlgorithmUnavailable means a strategy could not fit the given series.
	AlgorithmUnavailable ErrorKind = "algorithm_unavailable"
	// PersistenceConflict means concurrent writers raced on the same (scope, algorithm) key.
	PersistenceConflict ErrorKind = "persistence_conflict"
	// TransientInfrastructure means a cache or notification sink was unreachable.
	TransientInfrastructure ErrorKind = "transient_infrastructure"
)

// Sentinel errors, one per kind, so callers can test with errors.Is.
var (
	ErrInsufficientData        = errors.New("insufficient history")
	ErrValidationFailed        = errors.New("series validation failed")
	ErrAlgorithmUnavailable    = errors.New("algorithm unavailable")
	ErrPersistenceConflict     = errors.New("persistence conflict")
	ErrTransientInfrastructure = errors.New("transient infrastructure failure")
)

var kindSentinels = map[ErrorKind]error{
	InsufficientData:        ErrInsufficientData,
	ValidationFailed:        ErrValidationFailed,
	AlgorithmUnavailable:    ErrAlgorithmUnavailable,
	PersistenceConflict:     ErrPersistenceConflict,
	TransientInfrastructure: ErrTransientInfrastructure,
}

// ForecastError carries the context needed to diagnose a per-scope failure offline.
type ForecastError struct {
	Kind  ErrorKind
	Scope string
	Stage string
	Err   error
}

// NewForecastError creates a ForecastError for the given scope and pipeline stage.
//
// Parameters:
//   - kind: The failure classification.
//   - scope: The "product/warehouse" scope the failure belongs to.
//   - stage: The pipeline stage that failed.
//   - err: The underlying cause, may be nil.
//
// Returns:
//   - A pointer to the ForecastError.
func NewForecastError(kind ErrorKind, scope, stage string, err error) *ForecastError {
	return &ForecastError{Kind: kind, Scope: scope, Stage: stage, Err: err}
}

// Error returns the error message string.
func (e *ForecastError) Error() string {
	msg := fmt.Sprintf("%s at %s for scope %s", e.Kind, e.Stage, e.Scope)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap exposes the underlying cause.
func (e *ForecastError) Unwrap() error {
	return e.Err
}

// Is lets errors.Is match a ForecastError against the sentinel of its kind.
func (e *ForecastError) Is(target error) bool {
	sentinel, ok := kindSentinels[e.Kind]
	return ok && sentinel == target
}

// KindOf returns the kind of the first ForecastError in err's chain.
func KindOf(err error) (ErrorKind, bool) {
	var fe *ForecastError
	if errors.As(err, &fe) {
		return fe.Kind, true
	}
	return "", false
}
