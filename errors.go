package pgadapt

import (
	"errors"
	"fmt"
	"strings"
)

// Standard sentinel errors for common operations.
var (
	// ErrUnsupportedOperation is returned when an operation has no
	// equivalent on an established PostgreSQL connection, such as
	// creating a database.
	ErrUnsupportedOperation = errors.New("pgadapt: unsupported operation")

	// ErrInvalidReturnMode is returned when an execution is requested
	// with an unknown return mode.
	ErrInvalidReturnMode = errors.New("pgadapt: invalid return mode")
)

// ExecutionError records a statement that failed to execute, together
// with its bound arguments for diagnostics.
type ExecutionError struct {
	Query string // Statement text as sent to the engine.
	Args  []any  // Bound arguments, after normalization.
	Err   error  // Underlying engine error.
}

// Error returns the error string.
func (e *ExecutionError) Error() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "pgadapt: execution failed: %v", e.Err)
	if e.Query != "" {
		fmt.Fprintf(&sb, " (query: %s)", e.Query)
	}
	if len(e.Args) > 0 {
		fmt.Fprintf(&sb, " (args: %v)", e.Args)
	}
	return sb.String()
}

// Unwrap returns the underlying engine error.
func (e *ExecutionError) Unwrap() error {
	return e.Err
}

// NewExecutionError returns a new ExecutionError for the given statement.
func NewExecutionError(query string, args []any, err error) *ExecutionError {
	return &ExecutionError{Query: query, Args: args, Err: err}
}

// IsExecutionError returns true if the error is an ExecutionError.
func IsExecutionError(err error) bool {
	if err == nil {
		return false
	}
	var e *ExecutionError
	return errors.As(err, &e)
}

// UnsupportedOperationError represents an operation that the PostgreSQL
// dialect cannot perform.
type UnsupportedOperationError struct {
	op string
}

// Error returns the error string.
func (e *UnsupportedOperationError) Error() string {
	return fmt.Sprintf("pgadapt: unsupported operation: %s", e.op)
}

// Is reports whether the target error matches UnsupportedOperationError.
// This allows errors.Is(err, ErrUnsupportedOperation) to return true.
func (e *UnsupportedOperationError) Is(err error) bool {
	return err == ErrUnsupportedOperation
}

// Op returns the name of the unsupported operation.
func (e *UnsupportedOperationError) Op() string {
	return e.op
}

// NewUnsupportedOperationError returns a new UnsupportedOperationError
// for the given operation name.
func NewUnsupportedOperationError(op string) *UnsupportedOperationError {
	return &UnsupportedOperationError{op: op}
}

// IsUnsupportedOperation returns true if the error reports an unsupported operation.
func IsUnsupportedOperation(err error) bool {
	if err == nil {
		return false
	}
	var e *UnsupportedOperationError
	return errors.As(err, &e) || errors.Is(err, ErrUnsupportedOperation)
}

// IsInvalidReturnMode returns true if the error reports an unknown return mode.
func IsInvalidReturnMode(err error) bool {
	return errors.Is(err, ErrInvalidReturnMode)
}
