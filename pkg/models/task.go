package models

import (
	"fmt"
	"strings"
	"time"
)

// Priority orders tasks that become ready at the same time.
type Priority int

const (
	// PriorityLow is for background work that can wait.
	PriorityLow Priority = iota
	// PriorityNormal is the default priority.
	PriorityNormal
	// PriorityHigh is for work that should start ahead of normal tasks.
	PriorityHigh
	// PriorityCritical is for work that should start before anything else.
	PriorityCritical
)

// String returns the lowercase name of the priority.
func (p Priority) String() string {
	switch p {
	case PriorityLow:
		return "low"
	case PriorityNormal:
		return "normal"
	case PriorityHigh:
		return "high"
	case PriorityCritical:
		return "critical"
	default:
		return fmt.Sprintf("priority(%d)", int(p))
	}
}

// Valid returns true if the priority is a known value.
func (p Priority) Valid() bool {
	return p >= PriorityLow && p <= PriorityCritical
}

// ParsePriority converts a name to a Priority. An empty name is PriorityNormal.
func ParsePriority(s string) (Priority, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "low":
		return PriorityLow, nil
	case "", "normal":
		return PriorityNormal, nil
	case "high":
		return PriorityHigh, nil
	case "critical":
		return PriorityCritical, nil
	default:
		return PriorityNormal, fmt.Errorf("unknown priority %q", s)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (p Priority) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *Priority) UnmarshalText(text []byte) error {
	parsed, err := ParsePriority(string(text))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// TaskState is the lifecycle state of a task inside a batch run.
type TaskState string

const (
	// TaskStatePending indicates the task is waiting on dependencies.
	TaskStatePending TaskState = "pending"
	// TaskStateReady indicates every dependency has resolved.
	TaskStateReady TaskState = "ready"
	// TaskStateRunning indicates the task has been dispatched.
	TaskStateRunning TaskState = "running"
	// TaskStateSucceeded indicates the task completed successfully.
	TaskStateSucceeded TaskState = "succeeded"
	// TaskStateFailed indicates the task ran and failed.
	TaskStateFailed TaskState = "failed"
	// TaskStateSkipped indicates the task was never run.
	TaskStateSkipped TaskState = "skipped"
)

// Valid returns true if the state is a known value.
func (s TaskState) Valid() bool {
	switch s {
	case TaskStatePending, TaskStateReady, TaskStateRunning,
		TaskStateSucceeded, TaskStateFailed, TaskStateSkipped:
		return true
	default:
		return false
	}
}

// Terminal returns true once the task can no longer change state.
func (s TaskState) Terminal() bool {
	return s == TaskStateSucceeded || s == TaskStateFailed || s == TaskStateSkipped
}

// SkipReasonCancelled marks tasks that were never dispatched because the batch was cancelled.
const SkipReasonCancelled = "cancelled"

// SkipReasonDependencyFailed builds the skip reason for a task blocked by a failed dependency.
func SkipReasonDependencyFailed(depID string) string {
	return "dependency_failed:" + depID
}

// TaskRequest is one unit of work submitted as part of a batch.
type TaskRequest struct {
	// ID is the caller-supplied task ID. One is generated when empty.
	ID string `json:"id,omitempty" yaml:"id,omitempty"`
	// Command is the work description handed to the work executor.
	Command string `json:"command" yaml:"command"`
	// TargetRepository identifies the scope the task runs in.
	TargetRepository string `json:"target_repository" yaml:"repository"`
	// Priority orders tasks that become ready together.
	Priority Priority `json:"priority" yaml:"priority"`
	// EstimatedDuration is informational only and never enforced.
	EstimatedDuration time.Duration `json:"estimated_duration,omitempty" yaml:"estimated_duration,omitempty"`
	// RequiresPreviousSuccess prevents the task from running when a dependency failed.
	RequiresPreviousSuccess bool `json:"requires_previous_success" yaml:"requires_previous_success"`
	// DependsOn lists task IDs that must reach a terminal state first.
	DependsOn []string `json:"depends_on,omitempty" yaml:"depends_on,omitempty"`
}
