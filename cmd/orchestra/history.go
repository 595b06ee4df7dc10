package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/ivan-andreyev/agent-orchestra/internal/state"
	"github.com/ivan-andreyev/agent-orchestra/pkg/models"
)

var (
	historyLimit int
	historyPurge time.Duration
)

var (
	headerStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("15"))
	completedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("34"))
	failedStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	cancelledStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	dimStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
)

var historyCmd = &cobra.Command{
	Use:   "history [batch-id]",
	Short: "Show finished batches",
	Long: `Without arguments, list recent batches, newest first.
With a batch ID, show the final state of each of its tasks.

Use --purge to delete batches older than a duration, e.g. --purge 720h.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runHistory,
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "Number of batches to list (0 for all)")
	historyCmd.Flags().DurationVar(&historyPurge, "purge", 0, "Delete batches older than this duration")
}

func runHistory(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	db, err := openHistory(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	ctx := context.Background()
	if historyPurge > 0 {
		n, err := db.PurgeOlderThan(ctx, historyPurge)
		if err != nil {
			return err
		}
		fmt.Printf("Deleted %d batch(es) older than %s\n", n, historyPurge)
		return nil
	}

	if len(args) == 1 {
		return showBatch(ctx, db, args[0])
	}

	records, err := db.ListBatches(ctx, historyLimit)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		fmt.Println("No batches recorded yet. Run 'orchestra run <batch-file>' to start.")
		return nil
	}

	fmt.Println(headerStyle.Render(fmt.Sprintf("%-36s  %-24s  %-19s  %5s  %5s  %5s  %s",
		"ID", "STATUS", "STARTED", "OK", "FAIL", "SKIP", "NAME")))
	for _, r := range records {
		fmt.Printf("%-36s  %s  %-19s  %5d  %5d  %5d  %s\n",
			r.ID,
			statusStyle(r.Status).Width(24).Render(string(r.Status)),
			r.StartedAt.Local().Format("2006-01-02 15:04:05"),
			r.Succeeded, r.Failed, r.Skipped, r.Name)
	}
	return nil
}

func showBatch(ctx context.Context, db *state.DB, id string) error {
	rec, err := db.GetBatch(ctx, id)
	if errors.Is(err, state.ErrNotFound) {
		return fmt.Errorf("no batch %s in history", id)
	}
	if err != nil {
		return err
	}

	var b strings.Builder
	b.WriteString(headerStyle.Render("Batch " + rec.ID))
	b.WriteString("\n")
	if rec.Name != "" {
		fmt.Fprintf(&b, "Name:     %s\n", rec.Name)
	}
	fmt.Fprintf(&b, "Status:   %s\n", statusStyle(rec.Status).Render(string(rec.Status)))
	fmt.Fprintf(&b, "Started:  %s\n", rec.StartedAt.Local().Format(time.RFC1123))
	fmt.Fprintf(&b, "Duration: %s\n", formatDuration(rec.Duration))
	fmt.Fprintf(&b, "Tasks:    %d succeeded, %d failed, %d skipped of %d\n\n",
		rec.Succeeded, rec.Failed, rec.Skipped, rec.Total)
	fmt.Print(b.String())

	tasks, err := db.ListBatchTasks(ctx, id)
	if err != nil {
		return err
	}
	for _, t := range tasks {
		switch t.State {
		case models.TaskStateSucceeded:
			fmt.Printf("  %s %s %s\n", completedStyle.Render("✓"), t.TaskID, dimStyle.Render(formatDuration(t.Duration)))
		case models.TaskStateFailed:
			fmt.Printf("  %s %s %s\n", failedStyle.Render("✗"), t.TaskID, dimStyle.Render(t.Error))
		default:
			fmt.Printf("  %s %s %s\n", cancelledStyle.Render("-"), t.TaskID, dimStyle.Render(t.Reason))
		}
	}
	return nil
}

// statusStyle picks the color for a batch status.
func statusStyle(kind models.OutcomeKind) lipgloss.Style {
	switch kind {
	case models.OutcomeCompleted:
		return completedStyle
	case models.OutcomeCancelled:
		return cancelledStyle
	default:
		return failedStyle
	}
}
