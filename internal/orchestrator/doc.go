// Package orchestrator runs batches of interdependent tasks.
//
// A BatchTaskExecutor accepts a list of models.TaskRequest values and:
//   - validates the request (size, concurrency, target repositories)
//   - builds the dependency graph and rejects cycles
//   - computes a topological execution order
//   - registers the batch in the Registry so it can be cancelled by ID
//   - hands the graph to the Engine, which dispatches ready tasks to an
//     agent.WorkExecutor with at most MaxConcurrency in flight
//
// A task whose dependency failed is skipped when it requires previous
// success; tasks still waiting when the batch is cancelled are skipped with
// reason "cancelled". Task failures are reported in the
// models.BatchExecutionResult and never returned as errors.
//
// Example usage:
//
//	exec := orchestrator.NewBatchTaskExecutor(orchestrator.RequiredConfig{
//		Executor: agent.NewShellExecutor(iexec.NewRunner()),
//	})
//	result, err := exec.ExecuteBatch(ctx, tasks, models.BatchOptions{MaxConcurrency: 4}, nil)
package orchestrator
