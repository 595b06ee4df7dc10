package main

import (
	"errors"
	"fmt"
	"os"
	"os/exec"

	"github.com/spf13/cobra"

	"github.com/ivan-andreyev/agent-orchestra/internal/config"
)

var (
	configPath string
	debugFlag  bool
)

// exitError carries a process exit code through cobra.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	if e.err == nil {
		return fmt.Sprintf("exit status %d", e.code)
	}
	return e.err.Error()
}

func (e *exitError) Unwrap() error {
	return e.err
}

// CheckExecutor verifies that the configured executor binary is available
// in PATH. Only the claude executor depends on an external binary.
func CheckExecutor(cfg *config.Config) error {
	if cfg.Executor.Kind != config.ExecutorClaude && cfg.Executor.Kind != "" {
		return nil
	}
	if _, err := exec.LookPath(cfg.Executor.ClaudePath); err != nil {
		return fmt.Errorf("%s not found in PATH\n\n"+
			"The claude executor requires the Claude Code CLI.\n\n"+
			"Install it with:\n"+
			"  npm install -g @anthropic-ai/claude-code\n\n"+
			"or select another executor:\n"+
			"  orchestra config executor.kind shell", cfg.Executor.ClaudePath)
	}
	return nil
}

var rootCmd = &cobra.Command{
	Use:   "orchestra",
	Short: "Dependency-aware batch task runner",
	Long: `Orchestra runs a batch of tasks described in a YAML file.

Tasks declare dependencies on each other. Independent tasks run in parallel
up to a concurrency limit, and a task whose dependency failed is skipped.

Tasks are executed by the Claude Code CLI, a shell, or the Anthropic API,
depending on executor.kind in the configuration.

Running batches can be cancelled from another terminal with
'orchestra cancel <batch-id>'.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		var ee *exitError
		if errors.As(err, &ee) {
			if ee.err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", ee.err)
			}
			os.Exit(ee.code)
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig loads the configuration chain, or a single file when --config
// was given, and validates it.
func loadConfig() (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if configPath != "" {
		cfg, err = config.LoadFromPath(configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if debugFlag {
		cfg.Logging.DebugLog = true
	}
	return cfg, nil
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Use this config file instead of the default lookup")
	rootCmd.PersistentFlags().BoolVar(&debugFlag, "debug", false, "Write a debug log to .orchestra/logs")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(cancelCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(scheduleCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)
}
