package main

import (
	"fmt"
	"os"

	"github.com/ivan-andreyev/agent-orchestra/internal/agent"
	"github.com/ivan-andreyev/agent-orchestra/internal/config"
	"github.com/ivan-andreyev/agent-orchestra/internal/orchestrator"
	"github.com/ivan-andreyev/agent-orchestra/internal/state"
)

// session bundles what a command needs to run batches.
type session struct {
	cfg      *config.Config
	root     string
	executor *orchestrator.BatchTaskExecutor
	history  *state.DB
	logger   *orchestrator.DebugLogger
}

// sessionOptions selects the optional parts of a session.
type sessionOptions struct {
	// work creates a WorkExecutor; validation-only commands skip it.
	work bool
	// history opens the history database.
	history bool
}

// executorOptions translates configuration into orchestrator options.
func executorOptions(cfg *config.Config) []orchestrator.Option {
	opts := []orchestrator.Option{
		orchestrator.WithMaxBatchSize(cfg.Batch.MaxBatchSize),
		orchestrator.WithMaxConcurrencyLimit(cfg.Batch.MaxConcurrencyLimit),
		orchestrator.WithDefaultConcurrency(cfg.Batch.DefaultConcurrency),
		orchestrator.WithScopeChecker(agent.RepoScopeChecker{}),
	}
	if cfg.Batch.PriorityOrdering {
		opts = append(opts, orchestrator.WithPriorityOrdering())
	}
	return opts
}

// openHistory opens and migrates the history database.
func openHistory(cfg *config.Config) (*state.DB, error) {
	db, err := state.Open(cfg.Storage.Driver, cfg.HistoryPath())
	if err != nil {
		return nil, fmt.Errorf("open history: %w", err)
	}
	if err := db.Migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate history: %w", err)
	}
	return db, nil
}

// newSession wires configuration, executor, history and logging together.
func newSession(cfg *config.Config, so sessionOptions) (*session, error) {
	root, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("get working directory: %w", err)
	}
	s := &session{cfg: cfg, root: root}

	var work agent.WorkExecutor
	if so.work {
		if err := CheckExecutor(cfg); err != nil {
			return nil, err
		}
		work, err = agent.NewExecutorFromConfig(cfg)
		if err != nil {
			return nil, fmt.Errorf("create executor: %w", err)
		}
	}

	opts := executorOptions(cfg)
	if cfg.Logging.DebugLog {
		s.logger = orchestrator.NewDebugLoggerForRepo(root)
		opts = append(opts, orchestrator.WithLogger(s.logger))
	}
	if so.history {
		s.history, err = openHistory(cfg)
		if err != nil {
			s.Close()
			return nil, err
		}
		opts = append(opts, orchestrator.WithHistory(s.history))
	}

	s.executor = orchestrator.NewBatchTaskExecutor(orchestrator.RequiredConfig{
		Executor: work,
		Registry: orchestrator.NewRegistry(),
	}, opts...)
	return s, nil
}

// Close releases the history database and the debug log.
func (s *session) Close() {
	if s.history != nil {
		s.history.Close()
	}
	s.logger.Close()
}
