package orchestrator

import (
	"context"
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/ivan-andreyev/agent-orchestra/internal/agent"
	"github.com/ivan-andreyev/agent-orchestra/internal/graph"
	"github.com/ivan-andreyev/agent-orchestra/pkg/models"
)

// fakeExecutor runs a per-task function and records what it saw.
type fakeExecutor struct {
	mu    sync.Mutex
	calls []string

	running    atomic.Int32
	maxRunning atomic.Int32

	// fn decides the outcome. A nil fn succeeds with output "ok:<id>".
	fn func(ctx context.Context, node *graph.TaskNode) (*agent.WorkResult, error)
}

func (f *fakeExecutor) Execute(ctx context.Context, node *graph.TaskNode) (*agent.WorkResult, error) {
	f.mu.Lock()
	f.calls = append(f.calls, node.TaskID)
	f.mu.Unlock()

	n := f.running.Add(1)
	defer f.running.Add(-1)
	for {
		peak := f.maxRunning.Load()
		if n <= peak || f.maxRunning.CompareAndSwap(peak, n) {
			break
		}
	}

	if f.fn == nil {
		return &agent.WorkResult{Success: true, Output: "ok:" + node.TaskID}, nil
	}
	return f.fn(ctx, node)
}

func (f *fakeExecutor) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.calls))
	copy(out, f.calls)
	return out
}

// failIDs makes the listed tasks fail and every other task succeed.
func failIDs(ids ...string) func(context.Context, *graph.TaskNode) (*agent.WorkResult, error) {
	fail := make(map[string]bool, len(ids))
	for _, id := range ids {
		fail[id] = true
	}
	return func(_ context.Context, node *graph.TaskNode) (*agent.WorkResult, error) {
		if fail[node.TaskID] {
			return &agent.WorkResult{Success: false, Error: node.TaskID + " broke"}, nil
		}
		return &agent.WorkResult{Success: true}, nil
	}
}

func req(id string, deps ...string) models.TaskRequest {
	return models.TaskRequest{
		ID:                      id,
		Command:                 "run " + id,
		TargetRepository:        "/repo",
		Priority:                models.PriorityNormal,
		RequiresPreviousSuccess: true,
		DependsOn:               deps,
	}
}

// recordingSink keeps every report in order.
type recordingSink struct {
	mu      sync.Mutex
	reports []models.BatchProgress
}

func (s *recordingSink) Report(p models.BatchProgress) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reports = append(s.reports, p)
}

func (s *recordingSink) Reports() []models.BatchProgress {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.BatchProgress, len(s.reports))
	copy(out, s.reports)
	return out
}

// fakeHistory captures recorded results.
type fakeHistory struct {
	mu      sync.Mutex
	results []*models.BatchExecutionResult
	err     error
}

func (h *fakeHistory) RecordBatch(_ context.Context, r *models.BatchExecutionResult) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.results = append(h.results, r)
	return h.err
}

func newTestExecutor(exec agent.WorkExecutor, opts ...Option) *BatchTaskExecutor {
	return NewBatchTaskExecutor(RequiredConfig{Executor: exec}, opts...)
}

func mustExecute(t *testing.T, b *BatchTaskExecutor, tasks []models.TaskRequest, opts models.BatchOptions, sink ProgressSink) *models.BatchExecutionResult {
	t.Helper()
	result, err := b.ExecuteBatch(context.Background(), tasks, opts, sink)
	if err != nil {
		t.Fatalf("ExecuteBatch failed: %v", err)
	}
	assertConserved(t, result)
	return result
}

// assertConserved checks that every task is accounted for exactly once.
func assertConserved(t *testing.T, r *models.BatchExecutionResult) {
	t.Helper()
	s, f, k := r.Counts()
	if s+f+k != r.TotalTasks {
		t.Fatalf("counts %d+%d+%d != total %d", s, f, k, r.TotalTasks)
	}
	seen := make(map[string]bool)
	add := func(id string) {
		if seen[id] {
			t.Errorf("task %s reported twice", id)
		}
		seen[id] = true
	}
	for _, x := range r.SuccessfulTasks {
		add(x.TaskID)
	}
	for _, x := range r.FailedTasks {
		add(x.TaskID)
	}
	for _, x := range r.SkippedTasks {
		add(x.TaskID)
	}
}

func successIDs(r *models.BatchExecutionResult) []string {
	ids := make([]string, 0, len(r.SuccessfulTasks))
	for _, s := range r.SuccessfulTasks {
		ids = append(ids, s.TaskID)
	}
	sort.Strings(ids)
	return ids
}

func skipReasons(r *models.BatchExecutionResult) map[string]string {
	m := make(map[string]string, len(r.SkippedTasks))
	for _, s := range r.SkippedTasks {
		m[s.TaskID] = s.Reason
	}
	return m
}

func waitOrCancelled(ctx context.Context, ch <-chan struct{}) error {
	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

var errBoom = errors.New("boom")
