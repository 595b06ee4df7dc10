package agent

import (
	"context"
	"time"

	"github.com/ivan-andreyev/agent-orchestra/internal/graph"
)

// WithTimeout bounds each Execute call of inner by d.
func WithTimeout(inner WorkExecutor, d time.Duration) WorkExecutor {
	return WorkExecutorFunc(func(ctx context.Context, node *graph.TaskNode) (*WorkResult, error) {
		ctx, cancel := context.WithTimeout(ctx, d)
		defer cancel()
		return inner.Execute(ctx, node)
	})
}
