// Package agent provides the work executors that run batch tasks.
package agent

import (
	"context"
	"time"

	"github.com/ivan-andreyev/agent-orchestra/internal/graph"
)

// WorkResult is the outcome of executing one task node.
type WorkResult struct {
	// Success indicates whether the task completed successfully.
	Success bool
	// Output contains the captured output of the work.
	Output string
	// Error contains the error message if execution failed.
	Error string
	// Duration is how long the execution took.
	Duration time.Duration
}

// WorkExecutor runs a single task node. A returned error and a result with
// Success=false both mean the task failed. Implementations should honor ctx
// cancellation.
type WorkExecutor interface {
	Execute(ctx context.Context, node *graph.TaskNode) (*WorkResult, error)
}

// WorkExecutorFunc adapts a function to the WorkExecutor interface.
type WorkExecutorFunc func(ctx context.Context, node *graph.TaskNode) (*WorkResult, error)

// Execute calls f(ctx, node).
func (f WorkExecutorFunc) Execute(ctx context.Context, node *graph.TaskNode) (*WorkResult, error) {
	return f(ctx, node)
}

// ScopeChecker reports whether a task's execution scope can be used.
type ScopeChecker interface {
	IsScopeAccessible(ctx context.Context, scope string) bool
}

// ScopeCheckerFunc adapts a function to the ScopeChecker interface.
type ScopeCheckerFunc func(ctx context.Context, scope string) bool

// IsScopeAccessible calls f(ctx, scope).
func (f ScopeCheckerFunc) IsScopeAccessible(ctx context.Context, scope string) bool {
	return f(ctx, scope)
}
