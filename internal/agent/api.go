package agent

import (
	"context"
	"fmt"
	"time"

	"github.com/ivan-andreyev/agent-orchestra/internal/api"
	"github.com/ivan-andreyev/agent-orchestra/internal/graph"
)

// taskSystemPrompt frames each task for the model.
const taskSystemPrompt = "You are executing one task of a batch against the repository at %s. " +
	"Complete the task and reply with the result only."

// Completer sends a single prompt to a model.
type Completer interface {
	Complete(ctx context.Context, system, prompt string) (string, error)
}

// APIExecutor runs each task as a single Messages API request.
type APIExecutor struct {
	client Completer
}

// NewAPIExecutor creates an APIExecutor. *api.Client satisfies Completer.
func NewAPIExecutor(client Completer) *APIExecutor {
	return &APIExecutor{client: client}
}

// Execute implements WorkExecutor.
func (e *APIExecutor) Execute(ctx context.Context, node *graph.TaskNode) (*WorkResult, error) {
	start := time.Now()
	out, err := e.client.Complete(ctx, fmt.Sprintf(taskSystemPrompt, node.TargetRepository), node.Command)
	result := &WorkResult{
		Success:  err == nil,
		Output:   out,
		Duration: time.Since(start),
	}
	if err != nil {
		result.Error = err.Error()
		return result, err
	}
	return result, nil
}

var (
	_ WorkExecutor = (*APIExecutor)(nil)
	_ Completer    = (*api.Client)(nil)
)
