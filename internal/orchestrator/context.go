package orchestrator

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/ivan-andreyev/agent-orchestra/pkg/models"
)

// TaskExecutionContext is the per-batch runtime state shared by the engine
// and the registry. A task ID is never in both the completed and failed sets.
type TaskExecutionContext struct {
	BatchID        string
	TotalTaskCount int
	Options        models.BatchOptions

	ctx     context.Context
	cancel  context.CancelFunc
	limiter *semaphore.Weighted
	started time.Time

	mu        sync.Mutex
	completed map[string]struct{}
	failed    map[string]struct{}
}

// NewTaskExecutionContext creates the context for one batch. The returned
// context is cancelled when parent is done or Cancel is called.
// opts.MaxConcurrency must already be resolved to a positive value.
func NewTaskExecutionContext(parent context.Context, batchID string, total int, opts models.BatchOptions) *TaskExecutionContext {
	ctx, cancel := context.WithCancel(parent)
	limit := opts.MaxConcurrency
	if limit < 1 {
		limit = 1
	}
	return &TaskExecutionContext{
		BatchID:        batchID,
		TotalTaskCount: total,
		Options:        opts,
		ctx:            ctx,
		cancel:         cancel,
		limiter:        semaphore.NewWeighted(int64(limit)),
		started:        time.Now(),
		completed:      make(map[string]struct{}),
		failed:         make(map[string]struct{}),
	}
}

// Context returns the batch cancellation context.
func (c *TaskExecutionContext) Context() context.Context {
	return c.ctx
}

// Cancel requests cancellation of the batch. It is safe to call more than once.
func (c *TaskExecutionContext) Cancel() {
	c.cancel()
}

// Done returns a channel closed when the batch is cancelled.
func (c *TaskExecutionContext) Done() <-chan struct{} {
	return c.ctx.Done()
}

// Cancelled returns true once cancellation was requested.
func (c *TaskExecutionContext) Cancelled() bool {
	return c.ctx.Err() != nil
}

// Limiter returns the semaphore bounding in-flight tasks.
func (c *TaskExecutionContext) Limiter() *semaphore.Weighted {
	return c.limiter
}

// StartedAt returns when the context was created.
func (c *TaskExecutionContext) StartedAt() time.Time {
	return c.started
}

// Elapsed returns the time since the context was created.
func (c *TaskExecutionContext) Elapsed() time.Duration {
	return time.Since(c.started)
}

// MarkCompleted records a successful task. It returns false if the task was
// already recorded as completed or failed.
func (c *TaskExecutionContext) MarkCompleted(taskID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.recordedLocked(taskID) {
		debugLog("[context] batch %s: task %s already recorded, ignoring completion", c.BatchID, taskID)
		return false
	}
	c.completed[taskID] = struct{}{}
	return true
}

// MarkFailed records a failed task. It returns false if the task was
// already recorded as completed or failed.
func (c *TaskExecutionContext) MarkFailed(taskID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.recordedLocked(taskID) {
		debugLog("[context] batch %s: task %s already recorded, ignoring failure", c.BatchID, taskID)
		return false
	}
	c.failed[taskID] = struct{}{}
	return true
}

func (c *TaskExecutionContext) recordedLocked(taskID string) bool {
	_, done := c.completed[taskID]
	_, failed := c.failed[taskID]
	return done || failed
}

// IsCompleted returns true if the task was recorded as completed.
func (c *TaskExecutionContext) IsCompleted(taskID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.completed[taskID]
	return ok
}

// IsFailed returns true if the task was recorded as failed.
func (c *TaskExecutionContext) IsFailed(taskID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.failed[taskID]
	return ok
}

// CompletedCount returns the number of completed tasks.
func (c *TaskExecutionContext) CompletedCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.completed)
}

// FailedCount returns the number of failed tasks.
func (c *TaskExecutionContext) FailedCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.failed)
}
