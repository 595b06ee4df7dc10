package models

import (
	"encoding/json"
	"testing"
)

func TestPriority_Ordering(t *testing.T) {
	if !(PriorityLow < PriorityNormal && PriorityNormal < PriorityHigh && PriorityHigh < PriorityCritical) {
		t.Fatal("priorities are not ordered low < normal < high < critical")
	}
}

func TestParsePriority(t *testing.T) {
	tests := []struct {
		in      string
		want    Priority
		wantErr bool
	}{
		{"low", PriorityLow, false},
		{"Normal", PriorityNormal, false},
		{"", PriorityNormal, false},
		{" HIGH ", PriorityHigh, false},
		{"critical", PriorityCritical, false},
		{"urgent", PriorityNormal, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParsePriority(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParsePriority(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParsePriority(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestPriority_JSONUsesNames(t *testing.T) {
	req := TaskRequest{ID: "a", Priority: PriorityHigh}
	data, err := json.Marshal(req)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var decoded TaskRequest
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded.Priority != PriorityHigh {
		t.Errorf("Priority = %v, want high", decoded.Priority)
	}

	var raw map[string]any
	_ = json.Unmarshal(data, &raw)
	if raw["priority"] != "high" {
		t.Errorf("priority encoded as %v, want \"high\"", raw["priority"])
	}
}

func TestTaskState_Terminal(t *testing.T) {
	tests := []struct {
		state TaskState
		want  bool
	}{
		{TaskStatePending, false},
		{TaskStateReady, false},
		{TaskStateRunning, false},
		{TaskStateSucceeded, true},
		{TaskStateFailed, true},
		{TaskStateSkipped, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.state), func(t *testing.T) {
			if !tt.state.Valid() {
				t.Errorf("%q should be valid", tt.state)
			}
			if got := tt.state.Terminal(); got != tt.want {
				t.Errorf("Terminal() = %v, want %v", got, tt.want)
			}
		})
	}

	if TaskState("unknown").Valid() {
		t.Error("unknown state should be invalid")
	}
}

func TestSkipReasonDependencyFailed(t *testing.T) {
	if got := SkipReasonDependencyFailed("build"); got != "dependency_failed:build" {
		t.Errorf("got %q", got)
	}
}
