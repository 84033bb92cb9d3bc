package types

import (
	"errors"
	"fmt"
	"time"
)

// Predefined errors
var (
	// ErrInvalidCapacity indicates a queue was configured with a non-positive capacity
	ErrInvalidCapacity = errors.New("queue capacity must be positive")

	// ErrAlreadyStarted indicates Start was called more than once
	ErrAlreadyStarted = errors.New("already started")

	// ErrNotStarted indicates an operation that requires a running orchestrator
	ErrNotStarted = errors.New("not started")

	// ErrJoinTimeout indicates the producer or consumer did not exit in time
	ErrJoinTimeout = errors.New("timeout waiting for workers to exit")

	// ErrNilSource indicates a missing task source
	ErrNilSource = errors.New("source cannot be nil")

	// ErrNilSink indicates a missing task sink
	ErrNilSink = errors.New("sink cannot be nil")
)

// TaskError represents a failure while handling a single task
type TaskError[T any] struct {
	// Operation is the name of the operation where the error occurred
	Operation string

	// Task is the task that caused the error
	Task T

	// Cause is the underlying error
	Cause error

	// Context contains error context information
	Context map[string]interface{}
}

// Error implements the error interface
func (e *TaskError[T]) Error() string {
	return fmt.Sprintf("%s %v: %v", e.Operation, e.Task, e.Cause)
}

// Unwrap returns the underlying error
func (e *TaskError[T]) Unwrap() error {
	return e.Cause
}

// Is checks if the error is a specific error
func (e *TaskError[T]) Is(target error) bool {
	return errors.Is(e.Cause, target)
}

// NewTaskError creates a new task error
func NewTaskError[T any](operation string, task T, cause error) *TaskError[T] {
	return &TaskError[T]{
		Operation: operation,
		Task:      task,
		Cause:     cause,
		Context:   make(map[string]interface{}),
	}
}

// WithContext adds error context
func (e *TaskError[T]) WithContext(key string, value interface{}) *TaskError[T] {
	e.Context[key] = value
	return e
}

// RetryableError represents a retryable error
type RetryableError struct {
	// Err is the underlying error
	Err error

	// Retryable indicates whether the error is retryable
	Retryable bool

	// RetryAfter is the suggested retry delay
	RetryAfter time.Duration
}

// Error implements the error interface
func (e *RetryableError) Error() string {
	return e.Err.Error()
}

// Unwrap returns the underlying error
func (e *RetryableError) Unwrap() error {
	return e.Err
}

// NewRetryableError marks err as safe to retry
func NewRetryableError(err error) *RetryableError {
	return &RetryableError{Err: err, Retryable: true}
}

// IsRetryable checks if an error is retryable
func IsRetryable(err error) bool {
	var retryableErr *RetryableError
	if errors.As(err, &retryableErr) {
		return retryableErr.Retryable
	}
	return false
}

// GetRetryDelay returns the suggested retry delay
func GetRetryDelay(err error) time.Duration {
	var retryableErr *RetryableError
	if errors.As(err, &retryableErr) {
		return retryableErr.RetryAfter
	}
	return 0
}

// InvariantError reports a broken internal invariant. It is raised with panic:
// the state it describes cannot be recovered from.
type InvariantError struct {
	Component string
	Detail    string
}

// Error implements the error interface
func (e *InvariantError) Error() string {
	return fmt.Sprintf("%s: invariant violated: %s", e.Component, e.Detail)
}
