package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ivan-andreyev/agent-orchestra/internal/signals"
)

var cancelAll bool

var cancelCmd = &cobra.Command{
	Use:   "cancel [batch-id]",
	Short: "Cancel a running batch",
	Long: `Ask a running batch to stop. Tasks already running are told to stop
and tasks not yet started are skipped.

The request is delivered through .orchestra/signals in the current
directory, so run this from the directory the batch was started in.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		root, err := os.Getwd()
		if err != nil {
			return fmt.Errorf("get working directory: %w", err)
		}
		dir := signals.DefaultDir(root)

		switch {
		case cancelAll && len(args) > 0:
			return fmt.Errorf("use either a batch ID or --all")
		case cancelAll:
			if err := signals.SendCancelAll(dir); err != nil {
				return err
			}
			fmt.Println("Requested cancellation of all running batches")
		case len(args) == 1:
			if err := signals.SendCancel(dir, args[0]); err != nil {
				return err
			}
			fmt.Printf("Requested cancellation of batch %s\n", args[0])
		default:
			return fmt.Errorf("a batch ID or --all is required")
		}
		return nil
	},
}

func init() {
	cancelCmd.Flags().BoolVar(&cancelAll, "all", false, "Cancel every running batch")
}
