// Package tui provides the terminal progress view for batch runs.
//
// The view is read-only. Pressing q or ctrl+c while a batch runs asks the
// batch to cancel; once it has finished the same keys exit.
//
// Usage:
//
//	program, _ := tui.NewProgressProgram("nightly", len(tasks), cancel)
//	go func() {
//	    result, err := executor.ExecuteBatch(ctx, tasks, opts,
//	        orchestrator.ProgressFunc(func(p models.BatchProgress) {
//	            program.Send(tui.ProgressMsg{Progress: p})
//	        }))
//	    program.Send(tui.DoneMsg{Result: result, Err: err})
//	}()
//	program.Run()
package tui
