package graph

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrCycleDetected indicates a circular dependency was found in the task graph.
	ErrCycleDetected = errors.New("circular dependency detected")
	// ErrUnknownDependency indicates a task depends on an ID missing from the batch.
	ErrUnknownDependency = errors.New("unknown dependency")
	// ErrDuplicateTask indicates two tasks share an ID.
	ErrDuplicateTask = errors.New("duplicate task id")
	// ErrEmptyBatch indicates the task list was empty.
	ErrEmptyBatch = errors.New("no tasks to build")
)

// DependencyResolutionError reports a dependency on a task ID that is not in the batch.
type DependencyResolutionError struct {
	TaskID    string
	MissingID string
}

func (e *DependencyResolutionError) Error() string {
	return fmt.Sprintf("task %s depends on unknown task %s", e.TaskID, e.MissingID)
}

func (e *DependencyResolutionError) Unwrap() error {
	return ErrUnknownDependency
}

// CircularDependencyError reports a dependency cycle.
// Cycle lists the nodes on the cycle in traversal order, ending with the
// node it started from. When the cycle was found by the ordering pass it
// holds every node that could not be ordered instead.
type CircularDependencyError struct {
	Cycle []string
}

func (e *CircularDependencyError) Error() string {
	return fmt.Sprintf("%s: %s", ErrCycleDetected, strings.Join(e.Cycle, " -> "))
}

func (e *CircularDependencyError) Unwrap() error {
	return ErrCycleDetected
}

// DuplicateTaskError reports a task ID used more than once in a batch.
type DuplicateTaskError struct {
	TaskID string
}

func (e *DuplicateTaskError) Error() string {
	return fmt.Sprintf("%s: %s", ErrDuplicateTask, e.TaskID)
}

func (e *DuplicateTaskError) Unwrap() error {
	return ErrDuplicateTask
}
