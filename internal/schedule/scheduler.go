// Package schedule runs named jobs on cron expressions. A job that is
// still running when its next tick fires is skipped for that tick.
package schedule

import (
	"context"
	"fmt"
	"log"
	"os"
	"sort"
	"sync"

	"github.com/robfig/cron/v3"
)

// Job is the work run on each tick. ctx is cancelled when the scheduler
// stops.
type Job func(ctx context.Context)

// parser accepts standard five-field expressions, an optional leading
// seconds field and descriptors such as @hourly or @every 5m.
var parser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Validate reports whether expr is a cron expression the scheduler accepts.
func Validate(expr string) error {
	if _, err := parser.Parse(expr); err != nil {
		return fmt.Errorf("invalid cron expression %q: %w", expr, err)
	}
	return nil
}

// Scheduler runs named jobs on cron expressions.
type Scheduler struct {
	cron    *cron.Cron
	entries map[string]cron.EntryID
	mu      sync.RWMutex

	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a Scheduler. Call Start to begin firing jobs.
func New() *Scheduler {
	logger := cron.PrintfLogger(log.New(os.Stderr, "[schedule] ", log.LstdFlags))
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron: cron.New(
			cron.WithParser(parser),
			cron.WithLogger(logger),
			cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
		),
		entries: make(map[string]cron.EntryID),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Add registers job under name on expr.
func (s *Scheduler) Add(expr, name string, job Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.entries[name]; exists {
		return fmt.Errorf("job %s already scheduled", name)
	}
	if err := Validate(expr); err != nil {
		return err
	}

	id, err := s.cron.AddFunc(expr, func() { job(s.ctx) })
	if err != nil {
		return fmt.Errorf("schedule job %s: %w", name, err)
	}
	s.entries[name] = id
	log.Printf("[schedule] registered %s on %q", name, expr)
	return nil
}

// Remove unregisters a job. It returns false if name is not scheduled.
func (s *Scheduler) Remove(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, exists := s.entries[name]
	if !exists {
		return false
	}
	s.cron.Remove(id)
	delete(s.entries, name)
	return true
}

// RunNow runs a job once through the same chain used for scheduled ticks,
// so it is skipped if the job is already running.
func (s *Scheduler) RunNow(name string) error {
	s.mu.RLock()
	id, exists := s.entries[name]
	s.mu.RUnlock()
	if !exists {
		return fmt.Errorf("job %s is not scheduled", name)
	}

	entry := s.cron.Entry(id)
	if !entry.Valid() {
		return fmt.Errorf("job %s is not scheduled", name)
	}
	entry.WrappedJob.Run()
	return nil
}

// Jobs returns the scheduled job names, sorted.
func (s *Scheduler) Jobs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.entries))
	for name := range s.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Start begins firing jobs in the background.
func (s *Scheduler) Start() {
	s.cron.Start()
	log.Println("[schedule] started")
}

// Stop stops firing new ticks, cancels the context of running jobs and
// waits for them to return or for ctx to end.
func (s *Scheduler) Stop(ctx context.Context) error {
	stopped := s.cron.Stop()
	s.cancel()

	select {
	case <-stopped.Done():
		log.Println("[schedule] stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
