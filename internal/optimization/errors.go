package optimization

import (
	"errors"
	"fmt"
)

// Sentinel error kinds recognized across the optimization core. Callers test
// for them with errors.Is; the surrounding context is carried by Error.
var (
	// ErrDimensionMismatch reports sample or observation dimensions that
	// disagree with the declared or first-seen dimensions. Fatal to the
	// current call.
	ErrDimensionMismatch = errors.New("dimension mismatch")

	// ErrNonPositiveDefinite reports a Gram matrix whose Cholesky
	// factorization failed even after the jitter ladder. The previous
	// fitted state is retained.
	ErrNonPositiveDefinite = errors.New("covariance matrix is not positive definite")

	// ErrIncrementalUpdateFailed reports a rank-one Cholesky extension that
	// produced a non-positive diagonal. The caller must recompute from
	// scratch.
	ErrIncrementalUpdateFailed = errors.New("incremental cholesky update failed")

	// ErrHyperparamDiverged reports NaN or Inf in the log-likelihood or its
	// gradient during hyperparameter optimization. The previous
	// hyperparameters are retained.
	ErrHyperparamDiverged = errors.New("hyperparameter optimization diverged")

	// ErrBlacklisted is returned (possibly wrapped) by an objective to
	// signal a forbidden input. It is not a failure: the optimizer routes
	// the point to the blacklist store.
	ErrBlacklisted = errors.New("input is blacklisted")
)

// Error represents an optimization error with context
// that can be wrapped with additional information.
type Error struct {
	// Message describes the error that occurred.
	Message string
	// Op is the operation that caused the error.
	Op string
	// Component is the component where the error occurred.
	Component string
	// Err is the underlying error that triggered this one, if any.
	Err error
}

// Error returns the string representation of the error.
func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	var prefix string
	if e.Component != "" && e.Op != "" {
		prefix = fmt.Sprintf("%s: %s", e.Component, e.Op)
	} else if e.Component != "" {
		prefix = e.Component
	} else if e.Op != "" {
		prefix = e.Op
	}

	if e.Err != nil {
		if prefix != "" {
			return fmt.Sprintf("%s: %s: %v", prefix, e.Message, e.Err)
		}
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}

	if prefix != "" {
		return fmt.Sprintf("%s: %s", prefix, e.Message)
	}
	return e.Message
}

// Unwrap returns the underlying error, if any.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// WithOperation adds operation context to the error.
func (e *Error) WithOperation(op string) *Error {
	e.Op = op
	return e
}

// WithComponent adds component context to the error.
func (e *Error) WithComponent(component string) *Error {
	e.Component = component
	return e
}

// NewError creates a new optimization error with the given message.
func NewError(message string) *Error {
	return &Error{
		Message: message,
	}
}

// NewErrorf creates a new optimization error with formatted message.
func NewErrorf(format string, args ...interface{}) *Error {
	return &Error{
		Message: fmt.Sprintf(format, args...),
	}
}

// WrapError wraps an existing error with additional context.
// If err is nil, WrapError returns nil.
func WrapError(err error, message string) *Error {
	if err == nil {
		return nil
	}
	return &Error{
		Message: message,
		Err:     err,
	}
}

// WrapErrorf wraps an existing error with additional formatted context.
// If err is nil, WrapErrorf returns nil.
func WrapErrorf(err error, format string, args ...interface{}) *Error {
	if err == nil {
		return nil
	}
	return &Error{
		Message: fmt.Sprintf(format, args...),
		Err:     err,
	}
}

// IsOptimizationError checks if an error is of type Error.
// If the error is an optimization error, it returns the error and true.
// Otherwise, it returns nil and false.
func IsOptimizationError(err error) (*Error, bool) {
	if err == nil {
		return nil, false
	}
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}
