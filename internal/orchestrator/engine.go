package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/sourcegraph/conc"
	"github.com/sourcegraph/conc/panics"

	"github.com/ivan-andreyev/agent-orchestra/internal/agent"
	"github.com/ivan-andreyev/agent-orchestra/internal/graph"
	"github.com/ivan-andreyev/agent-orchestra/pkg/models"
)

// Engine runs the tasks of an execution graph with bounded concurrency.
// A single coordinator goroutine owns all per-task state; workers only run
// the executor and report back over a channel.
type Engine struct {
	executor agent.WorkExecutor
	logger   *DebugLogger
}

// NewEngine creates an Engine that runs tasks with executor.
func NewEngine(executor agent.WorkExecutor, logger *DebugLogger) *Engine {
	if logger == nil {
		logger = NopLogger()
	}
	return &Engine{executor: executor, logger: logger}
}

// completion is sent by a worker when its task returns.
type completion struct {
	node     *graph.TaskNode
	result   *agent.WorkResult
	err      error
	duration time.Duration
}

// Execute runs every node of g. order must be a topological order of g; it
// also decides which ready task is dispatched first. Task failures are
// reported in the result, never as an error. The returned error is non-nil
// only when the engine cannot start.
func (e *Engine) Execute(ctx context.Context, g *graph.ExecutionGraph, order []*graph.TaskNode, tctx *TaskExecutionContext, sink ProgressSink) (*models.BatchExecutionResult, error) {
	if e.executor == nil {
		return nil, ErrNoExecutor
	}
	if len(order) != g.Len() {
		return nil, fmt.Errorf("execution order has %d tasks, graph has %d", len(order), g.Len())
	}
	if sink == nil {
		sink = NopSink{}
	}

	runCtx, stop := context.WithCancel(tctx.Context())
	defer stop()
	stopAfter := context.AfterFunc(ctx, stop)
	defer stopAfter()

	r := newBatchRun(e, g, order, tctx, sink)
	r.run(runCtx)
	return r.result, nil
}

// batchRun holds the coordinator state of one Execute call.
type batchRun struct {
	engine *Engine
	graph  *graph.ExecutionGraph
	order  []*graph.TaskNode
	tctx   *TaskExecutionContext
	sink   ProgressSink
	logf   func(format string, args ...interface{})

	position    map[string]int
	state       map[string]models.TaskState
	pendingDeps map[string]int
	ready       []*graph.TaskNode
	running     map[string]bool

	succeeded, failed, skipped int
	result                     *models.BatchExecutionResult
}

func newBatchRun(e *Engine, g *graph.ExecutionGraph, order []*graph.TaskNode, tctx *TaskExecutionContext, sink ProgressSink) *batchRun {
	r := &batchRun{
		engine:      e,
		graph:       g,
		order:       order,
		tctx:        tctx,
		sink:        sink,
		logf:        e.logger.Prefixed(fmt.Sprintf("[engine] batch %s:", tctx.BatchID)),
		position:    make(map[string]int, len(order)),
		state:       make(map[string]models.TaskState, len(order)),
		pendingDeps: make(map[string]int, len(order)),
		running:     make(map[string]bool),
		result: &models.BatchExecutionResult{
			BatchID:         tctx.BatchID,
			TotalTasks:      len(order),
			SuccessfulTasks: []models.TaskSuccess{},
			FailedTasks:     []models.TaskFailure{},
			SkippedTasks:    []models.TaskSkip{},
			StartedAt:       tctx.StartedAt(),
		},
	}

	for i, n := range order {
		r.position[n.TaskID] = i
		r.state[n.TaskID] = models.TaskStatePending
		r.pendingDeps[n.TaskID] = len(g.Dependencies(n.TaskID))
	}
	for _, n := range order {
		if r.pendingDeps[n.TaskID] == 0 {
			r.markReady(n)
		}
	}
	return r
}

func (r *batchRun) run(runCtx context.Context) {
	done := make(chan completion, len(r.order))
	limiter := r.tctx.Limiter()
	cancelCh := runCtx.Done()

	var wg conc.WaitGroup
	inflight := 0
	stopping := false

	for {
		if !stopping && runCtx.Err() != nil {
			stopping = true
			r.result.Cancelled = true
			cancelCh = nil
			log.Printf("[engine] batch %s cancelled, %d tasks in flight", r.tctx.BatchID, inflight)
		}

		for !stopping && len(r.ready) > 0 && limiter.TryAcquire(1) {
			n := r.ready[0]
			r.ready = r.ready[1:]
			r.dispatch(runCtx, &wg, n, done)
			inflight++
		}

		if inflight == 0 {
			break
		}

		select {
		case c := <-done:
			inflight--
			limiter.Release(1)
			if r.complete(runCtx, c) && r.tctx.Options.FailFast && !stopping {
				stopping = true
				log.Printf("[engine] batch %s: fail-fast after task %s failed", r.tctx.BatchID, c.node.TaskID)
			}
		case <-cancelCh:
			// Handled at the top of the loop.
			cancelCh = nil
		}
	}

	wg.Wait()

	for _, n := range r.order {
		if !r.state[n.TaskID].Terminal() {
			r.skip(n, models.SkipReasonCancelled)
		}
	}

	r.result.Duration = r.tctx.Elapsed()
	log.Printf("[engine] batch %s finished: %d succeeded, %d failed, %d skipped in %s",
		r.tctx.BatchID, r.succeeded, r.failed, r.skipped, r.result.Duration.Round(time.Millisecond))
}

// dispatch starts n on a worker goroutine.
func (r *batchRun) dispatch(runCtx context.Context, wg *conc.WaitGroup, n *graph.TaskNode, done chan<- completion) {
	r.state[n.TaskID] = models.TaskStateRunning
	r.running[n.TaskID] = true
	r.logf("dispatch %s", n.TaskID)
	r.report(n, models.TaskStateRunning)

	executor := r.engine.executor
	wg.Go(func() {
		start := time.Now()
		var (
			res     *agent.WorkResult
			err     error
			catcher panics.Catcher
		)
		catcher.Try(func() {
			res, err = executor.Execute(runCtx, n)
		})
		if rec := catcher.Recovered(); rec != nil {
			res, err = nil, fmt.Errorf("task %s panicked: %w", n.TaskID, rec.AsError())
		}
		done <- completion{node: n, result: res, err: err, duration: time.Since(start)}
	})
}

// complete records a finished task and releases its dependents. It returns
// true if the task failed.
func (r *batchRun) complete(runCtx context.Context, c completion) bool {
	id := c.node.TaskID
	delete(r.running, id)

	ok := c.err == nil && c.result != nil && c.result.Success
	if ok {
		r.tctx.MarkCompleted(id)
		r.state[id] = models.TaskStateSucceeded
		r.succeeded++
		r.result.SuccessfulTasks = append(r.result.SuccessfulTasks, models.TaskSuccess{
			TaskID:   id,
			Output:   c.result.Output,
			Duration: c.duration,
		})
		r.logf("%s succeeded in %s", id, c.duration)
		r.report(c.node, models.TaskStateSucceeded)
		r.release(c.node)
		return false
	}

	if runCtx.Err() != nil && errors.Is(c.err, context.Canceled) {
		// Interrupted by batch cancellation, not a task failure.
		r.skip(c.node, models.SkipReasonCancelled)
		return false
	}

	msg := failureMessage(c)
	r.tctx.MarkFailed(id)
	r.state[id] = models.TaskStateFailed
	r.failed++
	r.result.FailedTasks = append(r.result.FailedTasks, models.TaskFailure{
		TaskID:   id,
		Error:    msg,
		Duration: c.duration,
	})
	log.Printf("[engine] batch %s: task %s failed: %s", r.tctx.BatchID, id, msg)
	r.report(c.node, models.TaskStateFailed)
	r.release(c.node)
	return true
}

// release re-evaluates the dependents of a node that reached a terminal
// state. Dependents whose edge requires success are skipped when the node
// did not succeed, transitively.
func (r *batchRun) release(from *graph.TaskNode) {
	queue := []*graph.TaskNode{from}
	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]

		for _, edge := range r.graph.Dependents(n.TaskID) {
			to := edge.To
			if r.state[to.TaskID] != models.TaskStatePending {
				continue
			}
			if edge.RequiresSuccess && r.state[n.TaskID] != models.TaskStateSucceeded {
				r.skip(to, models.SkipReasonDependencyFailed(n.TaskID))
				queue = append(queue, to)
				continue
			}
			r.pendingDeps[to.TaskID]--
			if r.pendingDeps[to.TaskID] == 0 {
				r.markReady(to)
			}
		}
	}
}

// markReady inserts n into the ready list, kept in execution order.
func (r *batchRun) markReady(n *graph.TaskNode) {
	r.state[n.TaskID] = models.TaskStateReady
	pos := r.position[n.TaskID]
	i := sort.Search(len(r.ready), func(i int) bool {
		return r.position[r.ready[i].TaskID] > pos
	})
	r.ready = append(r.ready, nil)
	copy(r.ready[i+1:], r.ready[i:])
	r.ready[i] = n
}

func (r *batchRun) skip(n *graph.TaskNode, reason string) {
	delete(r.running, n.TaskID)
	r.state[n.TaskID] = models.TaskStateSkipped
	r.skipped++
	r.result.SkippedTasks = append(r.result.SkippedTasks, models.TaskSkip{TaskID: n.TaskID, Reason: reason})
	r.logf("%s skipped (%s)", n.TaskID, reason)
	r.report(n, models.TaskStateSkipped)
}

func (r *batchRun) report(last *graph.TaskNode, st models.TaskState) {
	running := make([]string, 0, len(r.running))
	for id := range r.running {
		running = append(running, id)
	}
	sort.Slice(running, func(i, j int) bool {
		return r.position[running[i]] < r.position[running[j]]
	})

	r.sink.Report(models.BatchProgress{
		BatchID:        r.tctx.BatchID,
		CompletedCount: r.succeeded,
		FailedCount:    r.failed,
		SkippedCount:   r.skipped,
		TotalCount:     len(r.order),
		RunningTaskIDs: running,
		LastTaskID:     last.TaskID,
		LastState:      st,
		Elapsed:        r.tctx.Elapsed(),
	})
}

func failureMessage(c completion) string {
	switch {
	case c.err != nil:
		return c.err.Error()
	case c.result == nil:
		return "executor returned no result"
	case c.result.Error != "":
		return c.result.Error
	default:
		return "task reported failure"
	}
}
