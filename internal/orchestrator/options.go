package orchestrator

import (
	"github.com/ivan-andreyev/agent-orchestra/internal/agent"
)

// Default batch admission limits.
const (
	DefaultMaxBatchSize        = 100
	DefaultMaxConcurrencyLimit = 20
	DefaultConcurrency         = 4
)

// RequiredConfig contains the minimal required configuration for a BatchTaskExecutor.
type RequiredConfig struct {
	// Executor runs individual tasks.
	Executor agent.WorkExecutor
	// Registry tracks active batches. It is shared with whatever cancels
	// batches from outside, such as the signal watcher. A private registry
	// is created when nil.
	Registry *Registry
}

// Option configures a BatchTaskExecutor. Use With* functions to create Options.
type Option func(*executorOptions)

// executorOptions holds all optional configuration.
type executorOptions struct {
	scopeChecker        agent.ScopeChecker
	history             HistoryRecorder
	logger              *DebugLogger
	maxBatchSize        int
	maxConcurrencyLimit int
	defaultConcurrency  int
	priorityOrdering    bool
}

func defaultExecutorOptions() *executorOptions {
	return &executorOptions{
		maxBatchSize:        DefaultMaxBatchSize,
		maxConcurrencyLimit: DefaultMaxConcurrencyLimit,
		defaultConcurrency:  DefaultConcurrency,
	}
}

// WithScopeChecker sets the accessibility check run for every distinct
// target repository before a batch starts.
func WithScopeChecker(c agent.ScopeChecker) Option {
	return func(o *executorOptions) { o.scopeChecker = c }
}

// WithHistory records every finished batch.
func WithHistory(h HistoryRecorder) Option {
	return func(o *executorOptions) { o.history = h }
}

// WithLogger sets the debug logger.
func WithLogger(l *DebugLogger) Option {
	return func(o *executorOptions) { o.logger = l }
}

// WithMaxBatchSize sets the largest accepted batch.
func WithMaxBatchSize(n int) Option {
	return func(o *executorOptions) {
		if n > 0 {
			o.maxBatchSize = n
		}
	}
}

// WithMaxConcurrencyLimit sets the upper bound for BatchOptions.MaxConcurrency.
func WithMaxConcurrencyLimit(n int) Option {
	return func(o *executorOptions) {
		if n > 0 {
			o.maxConcurrencyLimit = n
		}
	}
}

// WithDefaultConcurrency sets the concurrency used when a batch leaves
// MaxConcurrency at zero.
func WithDefaultConcurrency(n int) Option {
	return func(o *executorOptions) {
		if n > 0 {
			o.defaultConcurrency = n
		}
	}
}

// WithPriorityOrdering dispatches ready tasks by descending priority instead
// of submission order.
func WithPriorityOrdering() Option {
	return func(o *executorOptions) { o.priorityOrdering = true }
}
