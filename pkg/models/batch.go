package models

import "time"

// BatchOptions controls how a batch is executed.
type BatchOptions struct {
	// MaxConcurrency is the maximum number of in-flight tasks.
	MaxConcurrency int `json:"max_concurrency" yaml:"max_concurrency"`
	// FailFast stops dispatching new tasks after the first failure.
	// The default keeps running independent branches.
	FailFast bool `json:"fail_fast" yaml:"fail_fast"`
	// BatchID is an optional caller-chosen ID. A fresh one is generated when empty.
	BatchID string `json:"batch_id,omitempty" yaml:"batch_id,omitempty"`
	// Label is a human-readable name carried into the result and history.
	Label string `json:"label,omitempty" yaml:"name,omitempty"`
}

// BatchProgress is an incremental snapshot reported while a batch runs.
type BatchProgress struct {
	BatchID        string        `json:"batch_id"`
	CompletedCount int           `json:"completed_count"`
	FailedCount    int           `json:"failed_count"`
	SkippedCount   int           `json:"skipped_count"`
	TotalCount     int           `json:"total_count"`
	RunningTaskIDs []string      `json:"running_task_ids"`
	LastTaskID     string        `json:"last_task_id,omitempty"`
	LastState      TaskState     `json:"last_state,omitempty"`
	Elapsed        time.Duration `json:"elapsed"`
}

// Remaining returns the number of tasks not yet in a terminal state.
func (p BatchProgress) Remaining() int {
	return p.TotalCount - p.CompletedCount - p.FailedCount - p.SkippedCount
}

// TaskSuccess records a task that completed successfully.
type TaskSuccess struct {
	TaskID   string        `json:"task_id"`
	Output   string        `json:"output,omitempty"`
	Duration time.Duration `json:"duration"`
}

// TaskFailure records a task that ran and failed.
type TaskFailure struct {
	TaskID   string        `json:"task_id"`
	Error    string        `json:"error"`
	Duration time.Duration `json:"duration"`
}

// TaskSkip records a task that was never attempted.
type TaskSkip struct {
	TaskID string `json:"task_id"`
	// Reason is SkipReasonCancelled or a SkipReasonDependencyFailed value.
	Reason string `json:"reason"`
}

// BatchExecutionResult is the final report of a batch run.
type BatchExecutionResult struct {
	BatchID         string        `json:"batch_id"`
	Label           string        `json:"label,omitempty"`
	TotalTasks      int           `json:"total_tasks"`
	SuccessfulTasks []TaskSuccess `json:"successful_tasks"`
	FailedTasks     []TaskFailure `json:"failed_tasks"`
	SkippedTasks    []TaskSkip    `json:"skipped_tasks"`
	StartedAt       time.Time     `json:"started_at"`
	Duration        time.Duration `json:"duration"`
	Cancelled       bool          `json:"cancelled"`
}

// Succeeded returns true when every task ran and succeeded.
// Skipped tasks count against success even when nothing failed.
func (r *BatchExecutionResult) Succeeded() bool {
	return len(r.FailedTasks) == 0 && len(r.SkippedTasks) == 0 && len(r.SuccessfulTasks) == r.TotalTasks
}

// Counts returns the number of successful, failed and skipped tasks.
func (r *BatchExecutionResult) Counts() (succeeded, failed, skipped int) {
	return len(r.SuccessfulTasks), len(r.FailedTasks), len(r.SkippedTasks)
}

// OutcomeKind distinguishes a rejected batch from one that ran.
type OutcomeKind string

const (
	// OutcomeRejected means the batch never started (validation or structural error).
	OutcomeRejected OutcomeKind = "rejected"
	// OutcomeCompleted means every task succeeded.
	OutcomeCompleted OutcomeKind = "completed"
	// OutcomeCompletedWithFailures means the batch ran but some tasks failed or were skipped.
	OutcomeCompletedWithFailures OutcomeKind = "completed_with_failures"
	// OutcomeCancelled means the batch was cancelled while running.
	OutcomeCancelled OutcomeKind = "cancelled"
)

// BatchOutcome is the tagged result of submitting a batch.
// Err is set only for OutcomeRejected; Result is set for every other kind.
type BatchOutcome struct {
	Kind   OutcomeKind
	Err    error
	Result *BatchExecutionResult
}

// Rejected returns true if the batch never ran.
func (o BatchOutcome) Rejected() bool {
	return o.Kind == OutcomeRejected
}

// OutcomeOf classifies a finished result.
func OutcomeOf(result *BatchExecutionResult) BatchOutcome {
	kind := OutcomeCompletedWithFailures
	switch {
	case result.Cancelled:
		kind = OutcomeCancelled
	case result.Succeeded():
		kind = OutcomeCompleted
	}
	return BatchOutcome{Kind: kind, Result: result}
}

// RejectedOutcome wraps an error that prevented the batch from running.
func RejectedOutcome(err error) BatchOutcome {
	return BatchOutcome{Kind: OutcomeRejected, Err: err}
}
