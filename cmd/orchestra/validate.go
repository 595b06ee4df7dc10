package main

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ivan-andreyev/agent-orchestra/internal/batchfile"
)

var validateCmd = &cobra.Command{
	Use:   "validate <batch-file>",
	Short: "Check a batch file without running it",
	Long: `Validate a batch file: task fields, batch size, dependency references
and cycles. On success the order in which tasks would be released is
printed. Nothing is executed and repositories are not checked.`,
	Args: cobra.ExactArgs(1),
	RunE: runValidate,
}

func runValidate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	batch, err := batchfile.Load(args[0])
	if err != nil {
		return &exitError{code: 2, err: err}
	}

	s, err := newSession(cfg, sessionOptions{})
	if err != nil {
		return err
	}
	defer s.Close()

	order, err := s.executor.Plan(batch.Tasks, batch.Options)
	if err != nil {
		printStatus("✗", err.Error(), color.FgRed)
		return &exitError{code: 2}
	}

	printStatus("✓", fmt.Sprintf("%d tasks, no cycles", len(order)), color.FgGreen)
	fmt.Println("\nExecution order:")
	for i, n := range order {
		line := fmt.Sprintf("  %3d. %s", i+1, n.TaskID)
		if len(n.DependencyIDs) > 0 {
			line += color.New(color.FgHiBlack).Sprintf("  after %s", strings.Join(n.DependencyIDs, ", "))
		}
		fmt.Println(line)
	}
	return nil
}
