package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/google/uuid"

	"github.com/ivan-andreyev/agent-orchestra/internal/agent"
	"github.com/ivan-andreyev/agent-orchestra/internal/graph"
	"github.com/ivan-andreyev/agent-orchestra/pkg/models"
)

// HistoryRecorder persists finished batches.
type HistoryRecorder interface {
	RecordBatch(ctx context.Context, result *models.BatchExecutionResult) error
}

// BatchTaskExecutor validates batches, orders them and runs them on the engine.
type BatchTaskExecutor struct {
	executor agent.WorkExecutor
	registry *Registry
	engine   *Engine
	builder  *graph.Builder
	opts     *executorOptions
	logger   *DebugLogger
}

// NewBatchTaskExecutor creates a BatchTaskExecutor.
func NewBatchTaskExecutor(req RequiredConfig, opts ...Option) *BatchTaskExecutor {
	o := defaultExecutorOptions()
	for _, opt := range opts {
		opt(o)
	}
	if o.defaultConcurrency > o.maxConcurrencyLimit {
		o.defaultConcurrency = o.maxConcurrencyLimit
	}

	logger := o.logger
	if logger == nil {
		logger = NopLogger()
	} else {
		setPackageLogger(logger)
	}

	registry := req.Registry
	if registry == nil {
		registry = NewRegistry()
	}

	builderOpts := []graph.BuilderOption{graph.WithDebugLog(logger.Log)}
	if o.priorityOrdering {
		builderOpts = append(builderOpts, graph.WithPriorityOrdering())
	}

	return &BatchTaskExecutor{
		executor: req.Executor,
		registry: registry,
		engine:   NewEngine(req.Executor, logger),
		builder:  graph.NewBuilder(builderOpts...),
		opts:     o,
		logger:   logger,
	}
}

// Registry returns the active-batch registry.
func (b *BatchTaskExecutor) Registry() *Registry {
	return b.registry
}

// plan is a validated batch ready to run.
type plan struct {
	graph   *graph.ExecutionGraph
	order   []*graph.TaskNode
	options models.BatchOptions
}

// ExecuteBatch validates tasks, runs them and returns the consolidated
// result. A non-nil error means the batch was rejected and no task ran;
// task failures and cancellation are reported in the result.
func (b *BatchTaskExecutor) ExecuteBatch(ctx context.Context, tasks []models.TaskRequest, opts models.BatchOptions, sink ProgressSink) (*models.BatchExecutionResult, error) {
	if b.executor == nil {
		return nil, ErrNoExecutor
	}

	p, err := b.prepare(tasks, opts)
	if err != nil {
		log.Printf("[batch] rejected batch of %d tasks: %v", len(tasks), err)
		return nil, err
	}
	if err := b.checkScopes(ctx, p.order); err != nil {
		log.Printf("[batch] rejected batch of %d tasks: %v", len(tasks), err)
		return nil, err
	}

	batchID := p.options.BatchID
	if batchID == "" {
		batchID = uuid.New().String()
	}
	tctx := NewTaskExecutionContext(ctx, batchID, p.graph.Len(), p.options)
	defer tctx.Cancel()

	if !b.registry.TryRegister(tctx) {
		return nil, fmt.Errorf("%w: %s", ErrBatchActive, batchID)
	}
	defer b.registry.Remove(batchID)

	log.Printf("[batch] starting batch %s: %d tasks, concurrency %d", batchID, p.graph.Len(), p.options.MaxConcurrency)
	result, err := b.engine.Execute(ctx, p.graph, p.order, tctx, sink)
	if err != nil {
		return nil, fmt.Errorf("execute batch %s: %w", batchID, err)
	}
	result.Label = p.options.Label

	succeeded, failed, skipped := result.Counts()
	log.Printf("[batch] batch %s done: %d succeeded, %d failed, %d skipped, cancelled=%v",
		batchID, succeeded, failed, skipped, result.Cancelled)

	if b.opts.history != nil {
		if err := b.opts.history.RecordBatch(context.WithoutCancel(ctx), result); err != nil {
			log.Printf("[batch] WARNING: failed to record batch %s: %v", batchID, err)
		}
	}
	return result, nil
}

// Run is ExecuteBatch returning a tagged outcome instead of (result, error).
func (b *BatchTaskExecutor) Run(ctx context.Context, tasks []models.TaskRequest, opts models.BatchOptions, sink ProgressSink) models.BatchOutcome {
	result, err := b.ExecuteBatch(ctx, tasks, opts, sink)
	if err != nil {
		return models.RejectedOutcome(err)
	}
	return models.OutcomeOf(result)
}

// ValidateBatch reports whether tasks would be accepted with default options.
// It runs validation, graph construction and the cycle check without
// executing anything or touching the registry.
func (b *BatchTaskExecutor) ValidateBatch(_ context.Context, tasks []models.TaskRequest) bool {
	_, err := b.prepare(tasks, models.BatchOptions{})
	return err == nil
}

// ValidateBatchDetailed is ValidateBatch returning the rejection reason.
func (b *BatchTaskExecutor) ValidateBatchDetailed(_ context.Context, tasks []models.TaskRequest, opts models.BatchOptions) error {
	_, err := b.prepare(tasks, opts)
	return err
}

// Plan validates tasks and returns the order they would be released in.
func (b *BatchTaskExecutor) Plan(tasks []models.TaskRequest, opts models.BatchOptions) ([]*graph.TaskNode, error) {
	p, err := b.prepare(tasks, opts)
	if err != nil {
		return nil, err
	}
	return p.order, nil
}

// CancelBatch requests cancellation of a running batch. Unknown or already
// finished batches are ignored.
func (b *BatchTaskExecutor) CancelBatch(batchID string) {
	if !b.registry.Cancel(batchID) {
		b.logger.Log("[batch] cancel requested for inactive batch %s", batchID)
	}
}

// ActiveBatches returns the IDs of the batches currently running.
func (b *BatchTaskExecutor) ActiveBatches() []string {
	return b.registry.Active()
}

// prepare validates the request and computes the execution order.
func (b *BatchTaskExecutor) prepare(tasks []models.TaskRequest, opts models.BatchOptions) (*plan, error) {
	opts, err := b.validate(tasks, opts)
	if err != nil {
		return nil, err
	}

	g, err := b.builder.Build(tasks)
	if err != nil {
		return nil, fmt.Errorf("build dependency graph: %w", err)
	}
	if err := b.builder.ValidateNoCyclicDependencies(g); err != nil {
		return nil, err
	}
	order, err := b.builder.CalculateTopologicalOrder(g)
	if err != nil {
		return nil, err
	}
	return &plan{graph: g, order: order, options: opts}, nil
}

// validate checks the request shape and resolves the default concurrency.
func (b *BatchTaskExecutor) validate(tasks []models.TaskRequest, opts models.BatchOptions) (models.BatchOptions, error) {
	if len(tasks) == 0 {
		return opts, &ValidationError{Field: "tasks", Reason: "must not be empty"}
	}
	if len(tasks) > b.opts.maxBatchSize {
		return opts, &BatchTooLargeError{Size: len(tasks), Limit: b.opts.maxBatchSize}
	}

	if opts.MaxConcurrency == 0 {
		opts.MaxConcurrency = b.opts.defaultConcurrency
	}
	if opts.MaxConcurrency < 1 || opts.MaxConcurrency > b.opts.maxConcurrencyLimit {
		return opts, &ValidationError{
			Field:  "max_concurrency",
			Reason: fmt.Sprintf("must be between 1 and %d, got %d", b.opts.maxConcurrencyLimit, opts.MaxConcurrency),
		}
	}

	for i, t := range tasks {
		if strings.TrimSpace(t.TargetRepository) == "" {
			return opts, &ValidationError{Field: taskField(i, t, "repository"), Reason: "must not be empty"}
		}
		if !t.Priority.Valid() {
			return opts, &ValidationError{Field: taskField(i, t, "priority"), Reason: fmt.Sprintf("unknown value %d", t.Priority)}
		}
		if t.EstimatedDuration < 0 {
			return opts, &ValidationError{Field: taskField(i, t, "estimated_duration"), Reason: "must not be negative"}
		}
	}
	return opts, nil
}

// checkScopes asks the scope checker about every distinct target repository.
func (b *BatchTaskExecutor) checkScopes(ctx context.Context, order []*graph.TaskNode) error {
	if b.opts.scopeChecker == nil {
		return nil
	}
	seen := make(map[string]bool)
	for _, n := range order {
		if seen[n.TargetRepository] {
			continue
		}
		seen[n.TargetRepository] = true
		if !b.opts.scopeChecker.IsScopeAccessible(ctx, n.TargetRepository) {
			return &ScopeError{Scope: n.TargetRepository}
		}
	}
	return nil
}

func taskField(i int, t models.TaskRequest, field string) string {
	if t.ID != "" {
		return fmt.Sprintf("tasks[%s].%s", t.ID, field)
	}
	return fmt.Sprintf("tasks[%d].%s", i, field)
}

// IsRejection reports whether err means a batch was refused before running.
func IsRejection(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, graph.ErrCycleDetected) ||
		errors.Is(err, graph.ErrUnknownDependency) ||
		errors.Is(err, graph.ErrDuplicateTask) ||
		errors.Is(err, ErrScopeInaccessible) ||
		errors.Is(err, ErrBatchActive)
}
