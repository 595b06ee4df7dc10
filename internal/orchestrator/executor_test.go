package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ivan-andreyev/agent-orchestra/internal/agent"
	"github.com/ivan-andreyev/agent-orchestra/internal/graph"
	"github.com/ivan-andreyev/agent-orchestra/pkg/models"
)

func TestExecuteBatch_IndependentTasksRunConcurrently(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// Each task waits until all three are running, which only happens when
	// the engine runs them concurrently.
	var started sync.WaitGroup
	started.Add(3)
	allStarted := make(chan struct{})
	go func() {
		started.Wait()
		close(allStarted)
	}()

	exec := &fakeExecutor{fn: func(ctx context.Context, node *graph.TaskNode) (*agent.WorkResult, error) {
		started.Done()
		if err := waitOrCancelled(ctx, allStarted); err != nil {
			return nil, err
		}
		return &agent.WorkResult{Success: true, Output: node.TaskID}, nil
	}}
	b := newTestExecutor(exec)

	result, err := b.ExecuteBatch(ctx, []models.TaskRequest{req("a"), req("b"), req("c")}, models.BatchOptions{MaxConcurrency: 3}, nil)
	if err != nil {
		t.Fatalf("ExecuteBatch failed: %v", err)
	}
	assertConserved(t, result)

	if len(result.SuccessfulTasks) != 3 {
		t.Fatalf("expected 3 successes, got %+v", result)
	}
	if exec.maxRunning.Load() != 3 {
		t.Errorf("expected 3 tasks in flight at once, saw %d", exec.maxRunning.Load())
	}
	if !result.Succeeded() || result.BatchID == "" {
		t.Errorf("unexpected result: %+v", result)
	}
}

func TestExecuteBatch_FailedDependencySkipsDependent(t *testing.T) {
	exec := &fakeExecutor{fn: failIDs("A")}
	b := newTestExecutor(exec)

	result := mustExecute(t, b, []models.TaskRequest{req("A"), req("B", "A")}, models.BatchOptions{MaxConcurrency: 2}, nil)

	if len(result.FailedTasks) != 1 || result.FailedTasks[0].TaskID != "A" {
		t.Errorf("FailedTasks = %+v, want [A]", result.FailedTasks)
	}
	if result.FailedTasks[0].Error != "A broke" {
		t.Errorf("failure message = %q", result.FailedTasks[0].Error)
	}
	if len(result.SkippedTasks) != 1 || result.SkippedTasks[0].TaskID != "B" {
		t.Fatalf("SkippedTasks = %+v, want [B]", result.SkippedTasks)
	}
	if result.SkippedTasks[0].Reason != models.SkipReasonDependencyFailed("A") {
		t.Errorf("skip reason = %q", result.SkippedTasks[0].Reason)
	}
	for _, id := range exec.Calls() {
		if id == "B" {
			t.Error("B must not be executed")
		}
	}
}

func TestExecuteBatch_DependentRunsWhenSuccessNotRequired(t *testing.T) {
	exec := &fakeExecutor{fn: failIDs("A")}
	b := newTestExecutor(exec)

	tasks := []models.TaskRequest{req("A"), req("B", "A")}
	tasks[1].RequiresPreviousSuccess = false
	result := mustExecute(t, b, tasks, models.BatchOptions{MaxConcurrency: 2}, nil)

	if got := successIDs(result); len(got) != 1 || got[0] != "B" {
		t.Errorf("successes = %v, want [B]", got)
	}
	calls := exec.Calls()
	if len(calls) != 2 || calls[0] != "A" || calls[1] != "B" {
		t.Errorf("calls = %v, want [A B]", calls)
	}
}

func TestExecuteBatch_SkipPropagatesTransitively(t *testing.T) {
	exec := &fakeExecutor{fn: failIDs("A")}
	b := newTestExecutor(exec)

	tasks := []models.TaskRequest{
		req("A"),
		req("B", "A"),
		req("C", "B"),
		req("D"),
		req("E", "D", "A"),
	}
	result := mustExecute(t, b, tasks, models.BatchOptions{MaxConcurrency: 4}, nil)

	reasons := skipReasons(result)
	want := map[string]string{
		"B": models.SkipReasonDependencyFailed("A"),
		"C": models.SkipReasonDependencyFailed("B"),
		"E": models.SkipReasonDependencyFailed("A"),
	}
	for id, reason := range want {
		if reasons[id] != reason {
			t.Errorf("%s skip reason = %q, want %q", id, reasons[id], reason)
		}
	}
	if got := successIDs(result); len(got) != 1 || got[0] != "D" {
		t.Errorf("successes = %v, want [D]", got)
	}
	if result.Succeeded() {
		t.Error("batch with failures must not report success")
	}
}

func TestExecuteBatch_CycleRejectedBeforeExecution(t *testing.T) {
	exec := &fakeExecutor{}
	b := newTestExecutor(exec)
	tasks := []models.TaskRequest{req("A", "B"), req("B", "A"), req("free")}

	if b.ValidateBatch(context.Background(), tasks) {
		t.Error("ValidateBatch should reject a cycle")
	}

	_, err := b.ExecuteBatch(context.Background(), tasks, models.BatchOptions{}, nil)
	var cycErr *graph.CircularDependencyError
	if !errors.As(err, &cycErr) {
		t.Fatalf("expected CircularDependencyError, got %v", err)
	}
	if !IsRejection(err) {
		t.Error("cycle should be classified as a rejection")
	}
	if calls := exec.Calls(); len(calls) != 0 {
		t.Errorf("executor invoked for %v", calls)
	}
	if b.Registry().Len() != 0 {
		t.Error("rejected batch must not be registered")
	}
}

func TestExecuteBatch_UnknownDependency(t *testing.T) {
	exec := &fakeExecutor{}
	b := newTestExecutor(exec)

	_, err := b.ExecuteBatch(context.Background(), []models.TaskRequest{req("A"), req("C", "X")}, models.BatchOptions{}, nil)
	var resErr *graph.DependencyResolutionError
	if !errors.As(err, &resErr) {
		t.Fatalf("expected DependencyResolutionError, got %v", err)
	}
	if resErr.TaskID != "C" || resErr.MissingID != "X" {
		t.Errorf("error names %s/%s, want C/X", resErr.TaskID, resErr.MissingID)
	}
	if !strings.Contains(err.Error(), "X") || !strings.Contains(err.Error(), "C") {
		t.Errorf("message %q should name both tasks", err.Error())
	}
}

func TestExecuteBatch_TooLargeRejectedBeforeGraph(t *testing.T) {
	exec := &fakeExecutor{}
	b := newTestExecutor(exec)

	tasks := make([]models.TaskRequest, 101)
	for i := range tasks {
		tasks[i] = req(fmt.Sprintf("t%d", i))
	}
	// A cycle would be reported if the graph were built first.
	tasks[0].DependsOn = []string{"t0"}

	_, err := b.ExecuteBatch(context.Background(), tasks, models.BatchOptions{}, nil)
	var sizeErr *BatchTooLargeError
	if !errors.As(err, &sizeErr) {
		t.Fatalf("expected BatchTooLargeError, got %v", err)
	}
	if sizeErr.Size != 101 || sizeErr.Limit != DefaultMaxBatchSize {
		t.Errorf("error = %+v", sizeErr)
	}
	if !errors.Is(err, ErrValidation) {
		t.Error("BatchTooLargeError should match ErrValidation")
	}
	if len(exec.Calls()) != 0 {
		t.Error("executor must not be invoked")
	}
}

func TestExecuteBatch_CancelAfterTwoComplete(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	exec := &fakeExecutor{fn: func(ctx context.Context, node *graph.TaskNode) (*agent.WorkResult, error) {
		if node.TaskID == "t1" || node.TaskID == "t2" {
			return &agent.WorkResult{Success: true}, nil
		}
		<-ctx.Done()
		return nil, ctx.Err()
	}}
	b := newTestExecutor(exec)

	var once sync.Once
	sink := ProgressFunc(func(p models.BatchProgress) {
		if p.CompletedCount == 2 {
			once.Do(func() { b.CancelBatch(p.BatchID) })
		}
	})

	tasks := []models.TaskRequest{req("t1"), req("t2"), req("t3"), req("t4"), req("t5")}
	result, err := b.ExecuteBatch(ctx, tasks, models.BatchOptions{MaxConcurrency: 5}, sink)
	if err != nil {
		t.Fatalf("cancellation must not be an error: %v", err)
	}
	assertConserved(t, result)

	if got := successIDs(result); len(got) != 2 || got[0] != "t1" || got[1] != "t2" {
		t.Errorf("successes = %v, want [t1 t2]", got)
	}
	if len(result.SkippedTasks) != 3 {
		t.Fatalf("expected 3 skipped, got %+v", result.SkippedTasks)
	}
	for _, s := range result.SkippedTasks {
		if s.Reason != models.SkipReasonCancelled {
			t.Errorf("%s skip reason = %q, want cancelled", s.TaskID, s.Reason)
		}
	}
	if !result.Cancelled {
		t.Error("result should be marked cancelled")
	}
	if got := models.OutcomeOf(result).Kind; got != models.OutcomeCancelled {
		t.Errorf("outcome = %s, want cancelled", got)
	}
	if len(b.ActiveBatches()) != 0 {
		t.Error("batch should be removed from the registry")
	}
}

func TestExecuteBatch_CancelStopsDispatch(t *testing.T) {
	exec := &fakeExecutor{}
	b := newTestExecutor(exec)

	var once sync.Once
	sink := ProgressFunc(func(p models.BatchProgress) {
		if p.CompletedCount == 1 {
			once.Do(func() { b.CancelBatch(p.BatchID) })
		}
	})

	tasks := []models.TaskRequest{req("t1"), req("t2"), req("t3"), req("t4"), req("t5")}
	result := mustExecute(t, b, tasks, models.BatchOptions{MaxConcurrency: 1}, sink)

	if calls := exec.Calls(); len(calls) != 1 {
		t.Errorf("expected a single dispatch, got %v", calls)
	}
	if len(result.SkippedTasks) != 4 || !result.Cancelled {
		t.Errorf("result = %+v", result)
	}
}

func TestExecuteBatch_CallerContextCancelled(t *testing.T) {
	exec := &fakeExecutor{}
	b := newTestExecutor(exec)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := b.ExecuteBatch(ctx, []models.TaskRequest{req("a"), req("b", "a")}, models.BatchOptions{}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	assertConserved(t, result)
	if len(result.SkippedTasks) != 2 || !result.Cancelled {
		t.Errorf("result = %+v", result)
	}
	if len(exec.Calls()) != 0 {
		t.Error("no task should run after cancellation")
	}
}

func TestExecuteBatch_CancelUnknownBatchIsNoop(t *testing.T) {
	b := newTestExecutor(&fakeExecutor{})
	b.CancelBatch("does-not-exist")
	b.CancelBatch("")
}

func TestExecuteBatch_ConcurrencyBound(t *testing.T) {
	exec := &fakeExecutor{fn: func(_ context.Context, _ *graph.TaskNode) (*agent.WorkResult, error) {
		time.Sleep(5 * time.Millisecond)
		return &agent.WorkResult{Success: true}, nil
	}}
	b := newTestExecutor(exec)

	tasks := make([]models.TaskRequest, 12)
	for i := range tasks {
		tasks[i] = req(fmt.Sprintf("t%02d", i))
	}
	result := mustExecute(t, b, tasks, models.BatchOptions{MaxConcurrency: 3}, nil)

	if len(result.SuccessfulTasks) != 12 {
		t.Errorf("expected 12 successes, got %d", len(result.SuccessfulTasks))
	}
	if peak := exec.maxRunning.Load(); peak > 3 {
		t.Errorf("observed %d tasks in flight, limit is 3", peak)
	}
}

func TestExecuteBatch_DependencyOrder(t *testing.T) {
	exec := &fakeExecutor{}
	b := newTestExecutor(exec)

	tasks := []models.TaskRequest{
		req("deploy", "test", "lint"),
		req("test", "build"),
		req("lint", "build"),
		req("build"),
	}
	mustExecute(t, b, tasks, models.BatchOptions{MaxConcurrency: 1}, nil)

	calls := exec.Calls()
	want := []string{"build", "test", "lint", "deploy"}
	if strings.Join(calls, ",") != strings.Join(want, ",") {
		t.Errorf("calls = %v, want %v", calls, want)
	}
}

func TestExecuteBatch_PriorityOrdering(t *testing.T) {
	exec := &fakeExecutor{}
	b := newTestExecutor(exec, WithPriorityOrdering())

	tasks := []models.TaskRequest{req("low"), req("crit"), req("normal")}
	tasks[0].Priority = models.PriorityLow
	tasks[1].Priority = models.PriorityCritical
	mustExecute(t, b, tasks, models.BatchOptions{MaxConcurrency: 1}, nil)

	if got := strings.Join(exec.Calls(), ","); got != "crit,normal,low" {
		t.Errorf("calls = %s, want crit,normal,low", got)
	}
}

func TestExecuteBatch_FailFast(t *testing.T) {
	exec := &fakeExecutor{fn: failIDs("a")}
	b := newTestExecutor(exec)

	tasks := []models.TaskRequest{req("a"), req("b"), req("c")}
	result := mustExecute(t, b, tasks, models.BatchOptions{MaxConcurrency: 1, FailFast: true}, nil)

	if calls := exec.Calls(); len(calls) != 1 {
		t.Errorf("fail-fast should stop after the first failure, ran %v", calls)
	}
	reasons := skipReasons(result)
	if reasons["b"] != models.SkipReasonCancelled || reasons["c"] != models.SkipReasonCancelled {
		t.Errorf("skip reasons = %v", reasons)
	}
	if result.Cancelled {
		t.Error("fail-fast is not an external cancellation")
	}
}

func TestExecuteBatch_ExecutorErrorAndPanic(t *testing.T) {
	exec := &fakeExecutor{fn: func(_ context.Context, node *graph.TaskNode) (*agent.WorkResult, error) {
		switch node.TaskID {
		case "err":
			return nil, errBoom
		case "panic":
			panic("executor exploded")
		}
		return &agent.WorkResult{Success: true}, nil
	}}
	b := newTestExecutor(exec)

	result := mustExecute(t, b, []models.TaskRequest{req("err"), req("panic"), req("ok")}, models.BatchOptions{MaxConcurrency: 3}, nil)

	failures := make(map[string]string)
	for _, f := range result.FailedTasks {
		failures[f.TaskID] = f.Error
	}
	if failures["err"] != "boom" {
		t.Errorf("err failure = %q", failures["err"])
	}
	if !strings.Contains(failures["panic"], "executor exploded") {
		t.Errorf("panic failure = %q", failures["panic"])
	}
	if got := successIDs(result); len(got) != 1 || got[0] != "ok" {
		t.Errorf("successes = %v", got)
	}
}

func TestExecuteBatch_ScopeCheck(t *testing.T) {
	exec := &fakeExecutor{}
	var mu sync.Mutex
	checked := make(map[string]int)
	checker := agent.ScopeCheckerFunc(func(_ context.Context, scope string) bool {
		mu.Lock()
		defer mu.Unlock()
		checked[scope]++
		return scope != "/forbidden"
	})
	b := newTestExecutor(exec, WithScopeChecker(checker))

	tasks := []models.TaskRequest{req("a"), req("b"), req("c")}
	tasks[2].TargetRepository = "/forbidden"

	_, err := b.ExecuteBatch(context.Background(), tasks, models.BatchOptions{}, nil)
	var scopeErr *ScopeError
	if !errors.As(err, &scopeErr) || scopeErr.Scope != "/forbidden" {
		t.Fatalf("expected ScopeError for /forbidden, got %v", err)
	}
	if checked["/repo"] != 1 {
		t.Errorf("each distinct scope should be checked once, /repo checked %d times", checked["/repo"])
	}
	if len(exec.Calls()) != 0 {
		t.Error("executor must not be invoked")
	}

	// Validation is a dry run and does not consult the scope checker.
	if !b.ValidateBatch(context.Background(), tasks) {
		t.Error("ValidateBatch should accept the batch")
	}
}

func TestExecuteBatch_Validation(t *testing.T) {
	tests := []struct {
		name  string
		tasks []models.TaskRequest
		opts  models.BatchOptions
		field string
	}{
		{"empty", nil, models.BatchOptions{}, "tasks"},
		{"concurrency too high", []models.TaskRequest{req("a")}, models.BatchOptions{MaxConcurrency: 21}, "max_concurrency"},
		{"concurrency negative", []models.TaskRequest{req("a")}, models.BatchOptions{MaxConcurrency: -1}, "max_concurrency"},
		{"missing repository", []models.TaskRequest{req("a"), {ID: "b", Command: "x"}}, models.BatchOptions{}, "tasks[b].repository"},
		{"bad priority", []models.TaskRequest{{ID: "a", TargetRepository: "/r", Priority: 9}}, models.BatchOptions{}, "tasks[a].priority"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := newTestExecutor(&fakeExecutor{})
			err := b.ValidateBatchDetailed(context.Background(), tt.tasks, tt.opts)

			var vErr *ValidationError
			if !errors.As(err, &vErr) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
			if vErr.Field != tt.field {
				t.Errorf("field = %q, want %q", vErr.Field, tt.field)
			}
			if !IsRejection(err) {
				t.Error("validation error should be a rejection")
			}
		})
	}
}

func TestExecuteBatch_DefaultConcurrency(t *testing.T) {
	exec := &fakeExecutor{}
	b := newTestExecutor(exec, WithDefaultConcurrency(2))

	p, err := b.prepare([]models.TaskRequest{req("a")}, models.BatchOptions{})
	if err != nil {
		t.Fatalf("prepare failed: %v", err)
	}
	if p.options.MaxConcurrency != 2 {
		t.Errorf("MaxConcurrency = %d, want default 2", p.options.MaxConcurrency)
	}
}

func TestValidateBatch_Idempotent(t *testing.T) {
	exec := &fakeExecutor{}
	history := &fakeHistory{}
	b := newTestExecutor(exec, WithHistory(history))

	good := []models.TaskRequest{req("a"), req("b", "a")}
	bad := []models.TaskRequest{req("a", "b"), req("b", "a")}
	for i := 0; i < 3; i++ {
		if !b.ValidateBatch(context.Background(), good) {
			t.Fatalf("run %d: valid batch rejected", i)
		}
		if b.ValidateBatch(context.Background(), bad) {
			t.Fatalf("run %d: cyclic batch accepted", i)
		}
	}
	if len(exec.Calls()) != 0 || b.Registry().Len() != 0 || len(history.results) != 0 {
		t.Error("validation must not execute, register or record anything")
	}
	if good[1].ID != "b" || len(good[1].DependsOn) != 1 {
		t.Error("validation must not modify the input")
	}
}

func TestExecuteBatch_RegistryLifecycle(t *testing.T) {
	var b *BatchTaskExecutor
	var during []string
	exec := &fakeExecutor{fn: func(_ context.Context, _ *graph.TaskNode) (*agent.WorkResult, error) {
		during = b.ActiveBatches()
		return &agent.WorkResult{Success: true}, nil
	}}
	b = newTestExecutor(exec)

	result := mustExecute(t, b, []models.TaskRequest{req("a")}, models.BatchOptions{MaxConcurrency: 1}, nil)

	if len(during) != 1 || during[0] != result.BatchID {
		t.Errorf("active during run = %v, want [%s]", during, result.BatchID)
	}
	if len(b.ActiveBatches()) != 0 {
		t.Errorf("active after run = %v", b.ActiveBatches())
	}
}

func TestExecuteBatch_CallerBatchID(t *testing.T) {
	b := newTestExecutor(&fakeExecutor{})

	result := mustExecute(t, b, []models.TaskRequest{req("a")}, models.BatchOptions{BatchID: "nightly-1", Label: "nightly"}, nil)
	if result.BatchID != "nightly-1" || result.Label != "nightly" {
		t.Errorf("result id/label = %s/%s", result.BatchID, result.Label)
	}

	busy := NewTaskExecutionContext(context.Background(), "busy", 1, models.BatchOptions{MaxConcurrency: 1})
	b.Registry().Register(busy)
	_, err := b.ExecuteBatch(context.Background(), []models.TaskRequest{req("a")}, models.BatchOptions{BatchID: "busy"}, nil)
	if !errors.Is(err, ErrBatchActive) {
		t.Errorf("expected ErrBatchActive, got %v", err)
	}
	if b.Registry().Lookup("busy") != busy {
		t.Error("existing batch must stay registered")
	}
}

func TestExecuteBatch_RecordsHistory(t *testing.T) {
	history := &fakeHistory{err: errBoom}
	b := newTestExecutor(&fakeExecutor{}, WithHistory(history))

	result := mustExecute(t, b, []models.TaskRequest{req("a")}, models.BatchOptions{Label: "docs"}, nil)

	if len(history.results) != 1 || history.results[0] != result {
		t.Fatalf("history = %+v", history.results)
	}
	if history.results[0].Label != "docs" {
		t.Errorf("label = %q", history.results[0].Label)
	}
}

func TestExecuteBatch_NoExecutor(t *testing.T) {
	b := NewBatchTaskExecutor(RequiredConfig{})
	if _, err := b.ExecuteBatch(context.Background(), []models.TaskRequest{req("a")}, models.BatchOptions{}, nil); !errors.Is(err, ErrNoExecutor) {
		t.Errorf("expected ErrNoExecutor, got %v", err)
	}
}

func TestRun_Outcomes(t *testing.T) {
	b := newTestExecutor(&fakeExecutor{fn: failIDs("bad")})

	tests := []struct {
		name  string
		tasks []models.TaskRequest
		want  models.OutcomeKind
	}{
		{"completed", []models.TaskRequest{req("a")}, models.OutcomeCompleted},
		{"with failures", []models.TaskRequest{req("bad"), req("b", "bad")}, models.OutcomeCompletedWithFailures},
		{"rejected", []models.TaskRequest{req("a", "a")}, models.OutcomeRejected},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := b.Run(context.Background(), tt.tasks, models.BatchOptions{}, nil)
			if out.Kind != tt.want {
				t.Errorf("kind = %s, want %s (err=%v)", out.Kind, tt.want, out.Err)
			}
			if out.Rejected() != (out.Result == nil) {
				t.Errorf("rejected outcome must carry no result: %+v", out)
			}
		})
	}
}

func TestPlan(t *testing.T) {
	b := newTestExecutor(&fakeExecutor{})
	order, err := b.Plan([]models.TaskRequest{req("b", "a"), req("a")}, models.BatchOptions{})
	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}
	if order[0].TaskID != "a" || order[1].TaskID != "b" {
		t.Errorf("order = %s,%s", order[0].TaskID, order[1].TaskID)
	}
}
