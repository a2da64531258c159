package sat

import (
	"errors"
	"fmt"
)

// RuntimeError represents an operational error that should lead to exit code 2
// Examples include configuration errors, missing tools, compile failures, etc.
type RuntimeError struct {
	Err error
}

func (e *RuntimeError) Error() string {
	return fmt.Sprintf("runtime error: %v", e.Err)
}

// Unwrap implements the errors.Unwrap interface
func (e *RuntimeError) Unwrap() error {
	return e.Err
}

// NewRuntimeError creates a new RuntimeError
func NewRuntimeError(err error) *RuntimeError {
	return &RuntimeError{Err: err}
}

// IsRuntimeError checks if the error is or wraps a RuntimeError
func IsRuntimeError(err error) bool {
	var runtimeErr *RuntimeError
	return err != nil && errors.As(err, &runtimeErr)
}

// RegressionFailureError represents a regression where one or more scenarios
// did not pass (exit code 1)
type RegressionFailureError struct {
	Message string
}

func (e *RegressionFailureError) Error() string {
	return fmt.Sprintf("regression failure: %s", e.Message)
}

// NewRegressionFailureError creates a new RegressionFailureError
func NewRegressionFailureError(message string) *RegressionFailureError {
	return &RegressionFailureError{Message: message}
}

// IsRegressionFailureError checks if the error is or wraps a RegressionFailureError
func IsRegressionFailureError(err error) bool {
	var regErr *RegressionFailureError
	return err != nil && errors.As(err, &regErr)
}
