package orchestrator

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation indicates a batch was rejected before execution.
	ErrValidation = errors.New("batch validation failed")
	// ErrScopeInaccessible indicates a task targets a scope that cannot be used.
	ErrScopeInaccessible = errors.New("scope inaccessible")
	// ErrNoExecutor indicates the engine was started without a work executor.
	ErrNoExecutor = errors.New("no work executor configured")
	// ErrBatchActive indicates a caller-supplied batch ID is already running.
	ErrBatchActive = errors.New("batch already active")
)

// ValidationError reports an invalid batch field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s %s", ErrValidation, e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// BatchTooLargeError reports a batch with more tasks than allowed.
type BatchTooLargeError struct {
	Size  int
	Limit int
}

func (e *BatchTooLargeError) Error() string {
	return fmt.Sprintf("batch has %d tasks, limit is %d", e.Size, e.Limit)
}

func (e *BatchTooLargeError) Unwrap() error {
	return ErrValidation
}

// ScopeError reports a target repository that failed the access check.
type ScopeError struct {
	Scope string
}

func (e *ScopeError) Error() string {
	return fmt.Sprintf("%s: %s", ErrScopeInaccessible, e.Scope)
}

func (e *ScopeError) Unwrap() error {
	return ErrScopeInaccessible
}
