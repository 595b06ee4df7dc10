package main

import (
	"fmt"
	"time"

	"github.com/fatih/color"

	"github.com/ivan-andreyev/agent-orchestra/pkg/models"
)

// printStatus prints a status line with a colored symbol.
func printStatus(symbol, message string, colorAttr color.Attribute) {
	c := color.New(colorAttr)
	fmt.Printf("  %s %s\n", c.Sprint(symbol), message)
}

// exitCodeFor maps a batch outcome to a process exit code: 0 when every
// task succeeded, 2 when the batch was rejected and 1 otherwise.
func exitCodeFor(o models.BatchOutcome) int {
	switch o.Kind {
	case models.OutcomeCompleted:
		return 0
	case models.OutcomeRejected:
		return 2
	default:
		return 1
	}
}

// printResult prints a per-task summary of a finished batch.
func printResult(r *models.BatchExecutionResult) {
	title := r.BatchID
	if r.Label != "" {
		title = fmt.Sprintf("%s (%s)", r.Label, r.BatchID)
	}
	fmt.Printf("\nBatch %s\n\n", color.New(color.Bold).Sprint(title))

	for _, s := range r.SuccessfulTasks {
		printStatus("✓", fmt.Sprintf("%s  %s", s.TaskID, formatDuration(s.Duration)), color.FgGreen)
	}
	for _, f := range r.FailedTasks {
		printStatus("✗", fmt.Sprintf("%s  %s  %s", f.TaskID, formatDuration(f.Duration), f.Error), color.FgRed)
	}
	for _, s := range r.SkippedTasks {
		printStatus("-", fmt.Sprintf("%s  skipped: %s", s.TaskID, s.Reason), color.FgYellow)
	}

	succeeded, failed, skipped := r.Counts()
	fmt.Printf("\n%d succeeded, %d failed, %d skipped of %d in %s\n",
		succeeded, failed, skipped, r.TotalTasks, formatDuration(r.Duration))

	switch models.OutcomeOf(r).Kind {
	case models.OutcomeCompleted:
		fmt.Printf("%s Batch completed\n", color.GreenString("✓"))
	case models.OutcomeCancelled:
		fmt.Printf("%s Batch cancelled\n", color.YellowString("⚠"))
	default:
		fmt.Printf("%s Batch completed with failures\n", color.RedString("✗"))
	}
}

// formatDuration rounds a duration for display.
func formatDuration(d time.Duration) string {
	switch {
	case d < time.Second:
		return d.Round(time.Millisecond).String()
	case d < time.Minute:
		return d.Round(100 * time.Millisecond).String()
	default:
		return d.Round(time.Second).String()
	}
}
