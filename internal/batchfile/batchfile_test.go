package batchfile

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ivan-andreyev/agent-orchestra/pkg/models"
)

const sample = `
name: nightly
max_concurrency: 3
fail_fast: true
tasks:
  - id: build
    command: make build
    repository: /repos/api
  - id: test
    command: make test
    repository: /repos/api
    priority: high
    estimated_duration: 5m
    depends_on: [build]
  - id: docs
    command: make docs
    repository: /repos/docs
    requires_previous_success: false
    depends_on: [build]
`

func TestParse(t *testing.T) {
	b, err := Parse([]byte(sample))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	if b.Name != "nightly" || b.Options.Label != "nightly" {
		t.Errorf("name = %q, label = %q", b.Name, b.Options.Label)
	}
	if b.Options.MaxConcurrency != 3 || !b.Options.FailFast {
		t.Errorf("options = %+v", b.Options)
	}
	if len(b.Tasks) != 3 {
		t.Fatalf("expected 3 tasks, got %d", len(b.Tasks))
	}

	build, test, docs := b.Tasks[0], b.Tasks[1], b.Tasks[2]
	if build.Priority != models.PriorityNormal || !build.RequiresPreviousSuccess {
		t.Errorf("build defaults wrong: %+v", build)
	}
	if test.Priority != models.PriorityHigh || test.EstimatedDuration != 5*time.Minute {
		t.Errorf("test = %+v", test)
	}
	if len(test.DependsOn) != 1 || test.DependsOn[0] != "build" {
		t.Errorf("test deps = %v", test.DependsOn)
	}
	if docs.RequiresPreviousSuccess {
		t.Error("docs should not require previous success")
	}
	if docs.TargetRepository != "/repos/docs" {
		t.Errorf("docs repository = %q", docs.TargetRepository)
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want string
	}{
		{"empty", "", "empty"},
		{"unknown field", "name: x\nretries: 3\n", "retries"},
		{"unknown task field", "tasks:\n  - id: a\n    timeout: 1m\n", "timeout"},
		{"bad priority", "tasks:\n  - id: a\n    priority: urgent\n", "urgent"},
		{"bad duration", "tasks:\n  - id: a\n    estimated_duration: soon\n", "estimated_duration"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.doc))
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q should mention %q", err, tt.want)
			}
		})
	}
}

func TestLoadResolvesRelativeRepositories(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "batch.yaml")
	doc := "tasks:\n  - id: a\n    command: ls\n    repository: services/api\n  - id: b\n    command: ls\n    repository: /abs\n"
	if err := os.WriteFile(path, []byte(doc), 0644); err != nil {
		t.Fatal(err)
	}

	b, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if got := b.Tasks[0].TargetRepository; got != filepath.Join(dir, "services", "api") {
		t.Errorf("relative repository resolved to %q", got)
	}
	if got := b.Tasks[1].TargetRepository; got != "/abs" {
		t.Errorf("absolute repository changed to %q", got)
	}
}

func TestLoadMissing(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestMarshalParses(t *testing.T) {
	b, err := Parse([]byte(sample))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	data, err := Marshal(b)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}

	again, err := Parse(data)
	if err != nil {
		t.Fatalf("re-Parse failed: %v\n%s", err, data)
	}
	if len(again.Tasks) != 3 || again.Tasks[2].RequiresPreviousSuccess || again.Tasks[1].Priority != models.PriorityHigh {
		t.Errorf("marshalled batch lost data:\n%s", data)
	}
}
