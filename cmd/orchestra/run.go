package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/ivan-andreyev/agent-orchestra/internal/batchfile"
	"github.com/ivan-andreyev/agent-orchestra/internal/orchestrator"
	"github.com/ivan-andreyev/agent-orchestra/internal/signals"
	"github.com/ivan-andreyev/agent-orchestra/internal/tui"
	"github.com/ivan-andreyev/agent-orchestra/pkg/models"
)

var (
	runConcurrency int
	runFailFast    bool
	runTUI         bool
	runNoHistory   bool
	runBatchID     string
)

var runCmd = &cobra.Command{
	Use:   "run <batch-file>",
	Short: "Run a batch of tasks",
	Long: `Run every task in a batch file, respecting declared dependencies.

Independent tasks run in parallel up to the batch's max_concurrency.
A task whose dependency failed is skipped unless it sets
requires_previous_success: false.

The batch can be cancelled with ctrl+c, with q in the --tui view, or from
another terminal with 'orchestra cancel <batch-id>'.

Exit status is 0 when every task succeeded, 1 when a task failed, was
skipped or the batch was cancelled, and 2 when the batch was rejected.`,
	Args: cobra.ExactArgs(1),
	RunE: runBatch,
}

func init() {
	runCmd.Flags().IntVarP(&runConcurrency, "concurrency", "c", 0, "Maximum tasks in flight (overrides the batch file)")
	runCmd.Flags().BoolVar(&runFailFast, "fail-fast", false, "Stop dispatching after the first failure")
	runCmd.Flags().BoolVar(&runTUI, "tui", false, "Show a live progress view")
	runCmd.Flags().BoolVar(&runNoHistory, "no-history", false, "Do not record the batch in the history database")
	runCmd.Flags().StringVar(&runBatchID, "id", "", "Batch ID to use instead of a generated one")
}

// applyRunFlags overrides batch file options with command line flags.
func applyRunFlags(cmd *cobra.Command, opts models.BatchOptions) models.BatchOptions {
	if cmd.Flags().Changed("concurrency") {
		opts.MaxConcurrency = runConcurrency
	}
	if runFailFast {
		opts.FailFast = true
	}
	if runBatchID != "" {
		opts.BatchID = runBatchID
	}
	if opts.BatchID == "" {
		opts.BatchID = uuid.New().String()
	}
	return opts
}

func runBatch(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	batch, err := batchfile.Load(args[0])
	if err != nil {
		return &exitError{code: 2, err: err}
	}
	opts := applyRunFlags(cmd, batch.Options)

	s, err := newSession(cfg, sessionOptions{work: true, history: !runNoHistory})
	if err != nil {
		return err
	}
	defer s.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	watcher := signals.NewWatcher(signals.DefaultDir(s.root), s.executor.Registry())
	if err := watcher.Start(ctx); err != nil {
		log.Printf("[run] WARNING: cancel signals disabled: %v", err)
	} else {
		defer watcher.Stop()
	}

	var outcome models.BatchOutcome
	if runTUI {
		outcome, err = runBatchWithTUI(ctx, s.executor, batch, opts)
		if err != nil {
			return err
		}
	} else {
		fmt.Printf("Running batch %s (%d tasks)\n", color.CyanString(opts.BatchID), len(batch.Tasks))
		fmt.Printf("Cancel from another terminal with: orchestra cancel %s\n\n", opts.BatchID)
		outcome = s.executor.Run(ctx, batch.Tasks, opts, lineProgress(len(batch.Tasks)))
	}

	if outcome.Rejected() {
		return &exitError{code: exitCodeFor(outcome), err: fmt.Errorf("batch rejected: %w", outcome.Err)}
	}
	printResult(outcome.Result)
	if code := exitCodeFor(outcome); code != 0 {
		return &exitError{code: code}
	}
	return nil
}

// lineProgress prints one line per task that reaches a terminal state.
func lineProgress(total int) orchestrator.ProgressSink {
	return orchestrator.ProgressFunc(func(p models.BatchProgress) {
		if p.LastTaskID == "" || !p.LastState.Terminal() {
			return
		}
		done := p.CompletedCount + p.FailedCount + p.SkippedCount
		prefix := fmt.Sprintf("[%d/%d]", done, total)
		switch p.LastState {
		case models.TaskStateSucceeded:
			fmt.Printf("%s %s %s\n", prefix, color.GreenString("✓"), p.LastTaskID)
		case models.TaskStateFailed:
			fmt.Printf("%s %s %s\n", prefix, color.RedString("✗"), p.LastTaskID)
		case models.TaskStateSkipped:
			fmt.Printf("%s %s %s\n", prefix, color.YellowString("-"), p.LastTaskID)
		}
	})
}

// runBatchWithTUI runs the batch behind the progress view.
func runBatchWithTUI(ctx context.Context, executor *orchestrator.BatchTaskExecutor, batch *batchfile.Batch, opts models.BatchOptions) (models.BatchOutcome, error) {
	// Log output corrupts the display while the view is active.
	originalOutput := log.Writer()
	log.SetOutput(io.Discard)
	defer log.SetOutput(originalOutput)

	title := batch.Name
	if title == "" {
		title = opts.BatchID
	}
	program, _ := tui.NewProgressProgram(title, len(batch.Tasks), func() {
		executor.CancelBatch(opts.BatchID)
	})

	outcomeCh := make(chan models.BatchOutcome, 1)
	go func() {
		sink := orchestrator.ProgressFunc(func(p models.BatchProgress) {
			program.Send(tui.ProgressMsg{Progress: p})
		})
		outcome := executor.Run(ctx, batch.Tasks, opts, sink)
		program.Send(tui.DoneMsg{Result: outcome.Result, Err: outcome.Err})
		outcomeCh <- outcome
	}()

	if _, err := program.Run(); err != nil {
		executor.CancelBatch(opts.BatchID)
		<-outcomeCh
		return models.BatchOutcome{}, fmt.Errorf("progress view: %w", err)
	}
	return <-outcomeCh, nil
}
