package agent

import (
	"context"
	"fmt"
	"strings"

	iexec "github.com/ivan-andreyev/agent-orchestra/internal/exec"
	"github.com/ivan-andreyev/agent-orchestra/internal/graph"
)

// DefaultAllowedTools lets Claude Code work without interactive permission prompts.
// A repository's .claude/settings.json can still deny specific patterns.
const DefaultAllowedTools = "Read,Write,Edit,Bash,Glob,Grep,WebFetch"

// ClaudeCLIExecutor runs each task as a one-shot Claude Code invocation
// inside the task's target repository.
type ClaudeCLIExecutor struct {
	runner       iexec.CommandRunner
	binary       string
	model        string
	allowedTools string
}

// ClaudeCLIConfig configures a ClaudeCLIExecutor.
type ClaudeCLIConfig struct {
	// Binary is the claude executable. Defaults to "claude".
	Binary string
	// Model is passed as --model when set.
	Model string
	// AllowedTools is passed as --allowedTools. Defaults to DefaultAllowedTools.
	AllowedTools string
}

// NewClaudeCLIExecutor creates a ClaudeCLIExecutor.
func NewClaudeCLIExecutor(runner iexec.CommandRunner, cfg ClaudeCLIConfig) *ClaudeCLIExecutor {
	if cfg.Binary == "" {
		cfg.Binary = "claude"
	}
	if cfg.AllowedTools == "" {
		cfg.AllowedTools = DefaultAllowedTools
	}
	return &ClaudeCLIExecutor{
		runner:       runner,
		binary:       cfg.Binary,
		model:        cfg.Model,
		allowedTools: cfg.AllowedTools,
	}
}

// Args returns the command-line arguments used for a prompt.
func (e *ClaudeCLIExecutor) Args(prompt string) []string {
	args := []string{
		"--print",
		"--output-format", "text",
		"--allowedTools", e.allowedTools,
	}
	if e.model != "" {
		args = append(args, "--model", e.model)
	}
	// Prompt goes last.
	return append(args, prompt)
}

// Execute implements WorkExecutor.
func (e *ClaudeCLIExecutor) Execute(ctx context.Context, node *graph.TaskNode) (*WorkResult, error) {
	res, err := e.runner.Run(ctx, node.TargetRepository, e.binary, e.Args(node.Command)...)
	return commandResult(res, err)
}

// ShellExecutor runs each task's command through "sh -c" inside the task's
// target repository.
type ShellExecutor struct {
	runner iexec.CommandRunner
}

// NewShellExecutor creates a ShellExecutor.
func NewShellExecutor(runner iexec.CommandRunner) *ShellExecutor {
	return &ShellExecutor{runner: runner}
}

// Execute implements WorkExecutor.
func (e *ShellExecutor) Execute(ctx context.Context, node *graph.TaskNode) (*WorkResult, error) {
	if strings.TrimSpace(node.Command) == "" {
		return nil, fmt.Errorf("task %s has no command", node.TaskID)
	}
	res, err := e.runner.RunShell(ctx, node.TargetRepository, node.Command)
	return commandResult(res, err)
}

func commandResult(res *iexec.Result, err error) (*WorkResult, error) {
	if res == nil {
		return nil, err
	}
	out := &WorkResult{
		Success:  err == nil,
		Output:   strings.TrimSpace(res.Stdout),
		Duration: res.Duration,
	}
	if err != nil {
		out.Error = err.Error()
	}
	return out, err
}

// Compile-time verification that the command executors implement WorkExecutor.
var (
	_ WorkExecutor = (*ClaudeCLIExecutor)(nil)
	_ WorkExecutor = (*ShellExecutor)(nil)
)
