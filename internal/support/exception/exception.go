// Package exception provides the error type used across the scorefold
// pipeline. Errors are classified so the engine can tell transient
// infrastructure failures apart from malformed input data: the former may be
// retried by the owning lane, the latter never are.
package exception

import (
	"errors"
	"fmt"
)

// BatchError is the error type surfaced by pipeline components. It carries
// the module the error originated in, a message, the wrapped cause, and a
// classification.
type BatchError struct {
	Module  string
	Message string
	Cause   error

	retryable bool
	dataError bool
}

// NewBatchError creates a transient (retryable capable) or fatal
// infrastructure error depending on the retryable flag.
func NewBatchError(module, message string, cause error, retryable bool) *BatchError {
	return &BatchError{
		Module:    module,
		Message:   message,
		Cause:     cause,
		retryable: retryable,
	}
}

// NewDataError creates an error classifying the input itself as malformed.
// Data errors are never retried and are fatal for the chunk that carries the
// offending record.
func NewDataError(module, message string, cause error) *BatchError {
	return &BatchError{
		Module:    module,
		Message:   message,
		Cause:     cause,
		dataError: true,
	}
}

// Error implements the error interface.
func (e *BatchError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Module, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Module, e.Message)
}

// Unwrap returns the wrapped cause.
func (e *BatchError) Unwrap() error {
	return e.Cause
}

// IsRetryable reports whether the engine may re-attempt the failed operation.
func (e *BatchError) IsRetryable() bool {
	return e.retryable
}

// IsDataError reports whether the error classifies the input as malformed.
func (e *BatchError) IsDataError() bool {
	return e.dataError
}

// IsRetryable reports whether err (anywhere in its chain) is a retryable
// BatchError. Non-BatchError values are treated as not retryable.
func IsRetryable(err error) bool {
	var be *BatchError
	if errors.As(err, &be) {
		return be.IsRetryable()
	}
	return false
}

// IsDataError reports whether err (anywhere in its chain) is a data error.
func IsDataError(err error) bool {
	var be *BatchError
	if errors.As(err, &be) {
		return be.IsDataError()
	}
	return false
}
