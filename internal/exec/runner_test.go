package exec

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestRunShell_CapturesOutput(t *testing.T) {
	r := NewRunner()
	res, err := r.RunShell(context.Background(), t.TempDir(), "echo out; echo err 1>&2")
	if err != nil {
		t.Fatalf("RunShell failed: %v", err)
	}
	if strings.TrimSpace(res.Stdout) != "out" {
		t.Errorf("Stdout = %q, want out", res.Stdout)
	}
	if strings.TrimSpace(res.Stderr) != "err" {
		t.Errorf("Stderr = %q, want err", res.Stderr)
	}
	if res.CombinedOutput() != "out\nerr" {
		t.Errorf("CombinedOutput = %q", res.CombinedOutput())
	}
}

func TestRunShell_NonZeroExit(t *testing.T) {
	r := NewRunner()
	res, err := r.RunShell(context.Background(), "", "echo broken 1>&2; exit 3")

	var exitErr *ExitError
	if !errors.As(err, &exitErr) {
		t.Fatalf("expected ExitError, got %v", err)
	}
	if exitErr.ExitCode != 3 || res.ExitCode != 3 {
		t.Errorf("exit code = %d/%d, want 3", exitErr.ExitCode, res.ExitCode)
	}
	if !strings.Contains(err.Error(), "broken") {
		t.Errorf("error should carry stderr: %v", err)
	}
}

func TestRun_WorkDir(t *testing.T) {
	dir := t.TempDir()
	r := NewRunner()
	res, err := r.Run(context.Background(), dir, "pwd")
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if !strings.HasSuffix(strings.TrimSpace(res.Stdout), strings.TrimPrefix(dir, "/private")) {
		t.Errorf("pwd = %q, want %q", res.Stdout, dir)
	}
}

func TestRun_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := NewRunner().RunShell(ctx, "", "sleep 5")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded, got %v", err)
	}
}

func TestRun_Env(t *testing.T) {
	r := &ExecRunner{Env: []string{"ORCHESTRA_TEST_VAR=hello"}}
	res, err := r.RunShell(context.Background(), "", "echo $ORCHESTRA_TEST_VAR")
	if err != nil {
		t.Fatalf("RunShell failed: %v", err)
	}
	if strings.TrimSpace(res.Stdout) != "hello" {
		t.Errorf("Stdout = %q, want hello", res.Stdout)
	}
}
