package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/ivan-andreyev/agent-orchestra/internal/batchfile"
	"github.com/ivan-andreyev/agent-orchestra/internal/orchestrator"
	"github.com/ivan-andreyev/agent-orchestra/internal/schedule"
	"github.com/ivan-andreyev/agent-orchestra/internal/signals"
)

var (
	scheduleCron string
	scheduleNow  bool
)

var scheduleCmd = &cobra.Command{
	Use:   "schedule <batch-file>",
	Short: "Run a batch on a cron schedule",
	Long: `Run a batch file repeatedly on a cron expression until interrupted.

The file is re-read on every tick, so edits take effect on the next run.
A tick that fires while the previous run is still going is skipped.

Examples:
  orchestra schedule nightly.yaml --cron "0 2 * * *"
  orchestra schedule checks.yaml --cron "@every 15m" --now`,
	Args: cobra.ExactArgs(1),
	RunE: runSchedule,
}

func init() {
	scheduleCmd.Flags().StringVar(&scheduleCron, "cron", "", "Cron expression or descriptor (required)")
	scheduleCmd.Flags().BoolVar(&scheduleNow, "now", false, "Also run once immediately")
	scheduleCmd.MarkFlagRequired("cron")
}

// scheduledRun returns the job that loads and runs the batch file once.
func scheduledRun(executor *orchestrator.BatchTaskExecutor, path string) schedule.Job {
	return func(ctx context.Context) {
		batch, err := batchfile.Load(path)
		if err != nil {
			log.Printf("[schedule] skipping run: %v", err)
			return
		}
		opts := batch.Options
		opts.BatchID = uuid.New().String()

		fmt.Printf("\n%s starting batch %s\n", time.Now().Format("2006-01-02 15:04:05"), opts.BatchID)
		outcome := executor.Run(ctx, batch.Tasks, opts, lineProgress(len(batch.Tasks)))
		if outcome.Rejected() {
			log.Printf("[schedule] batch rejected: %v", outcome.Err)
			return
		}
		printResult(outcome.Result)
	}
}

func runSchedule(cmd *cobra.Command, args []string) error {
	if err := schedule.Validate(scheduleCron); err != nil {
		return &exitError{code: 2, err: err}
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	// Fail early on a broken file rather than on the first tick.
	if _, err := batchfile.Load(args[0]); err != nil {
		return &exitError{code: 2, err: err}
	}

	s, err := newSession(cfg, sessionOptions{work: true, history: true})
	if err != nil {
		return err
	}
	defer s.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	watcher := signals.NewWatcher(signals.DefaultDir(s.root), s.executor.Registry())
	if err := watcher.Start(ctx); err != nil {
		log.Printf("[schedule] WARNING: cancel signals disabled: %v", err)
	} else {
		defer watcher.Stop()
	}

	sched := schedule.New()
	name := args[0]
	if err := sched.Add(scheduleCron, name, scheduledRun(s.executor, args[0])); err != nil {
		return err
	}
	sched.Start()
	fmt.Printf("Scheduled %s on %q. Press ctrl+c to stop.\n", name, scheduleCron)

	if scheduleNow {
		go sched.RunNow(name)
	}

	<-ctx.Done()
	fmt.Println("\nStopping scheduler...")
	s.executor.Registry().CancelAll()

	stopCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return sched.Stop(stopCtx)
}

