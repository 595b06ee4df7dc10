// Package signals lets other processes cancel running batches by dropping
// files into a shared signals directory.
//
// A file named cancel-<batch-id> cancels that batch. A file named
// cancel-all cancels every batch of the process that sees it. Signal files
// are removed once a batch was actually cancelled because of them.
package signals

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

const (
	cancelPrefix = "cancel-"
	cancelAll    = "cancel-all"

	// DefaultRescanInterval is how often the directory is re-read to catch
	// signals whose batch registered after the file appeared.
	DefaultRescanInterval = time.Second
)

// Canceller is the set of active batches a Watcher acts on.
type Canceller interface {
	Cancel(batchID string) bool
	CancelAll() int
}

// DefaultDir returns the signals directory for a project root.
func DefaultDir(root string) string {
	return filepath.Join(root, ".orchestra", "signals")
}

// SendCancel writes a cancel signal for one batch.
func SendCancel(dir, batchID string) error {
	if batchID == "" || strings.ContainsAny(batchID, `/\`) || batchID == "all" {
		return fmt.Errorf("invalid batch id %q", batchID)
	}
	return writeSignal(dir, cancelPrefix+batchID)
}

// SendCancelAll writes a signal that cancels every running batch.
func SendCancelAll(dir string) error {
	return writeSignal(dir, cancelAll)
}

func writeSignal(dir, name string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create signals directory: %w", err)
	}
	path := filepath.Join(dir, name)
	return os.WriteFile(path, []byte(time.Now().Format(time.RFC3339)), 0644)
}

// Watcher watches a signals directory and forwards cancel signals to a
// Canceller.
type Watcher struct {
	dir       string
	canceller Canceller
	rescan    time.Duration

	mu      sync.Mutex
	watcher *fsnotify.Watcher
	done    chan struct{}
	wg      sync.WaitGroup
}

// WatcherOption configures a Watcher.
type WatcherOption func(*Watcher)

// WithRescanInterval overrides DefaultRescanInterval. Zero disables rescans.
func WithRescanInterval(d time.Duration) WatcherOption {
	return func(w *Watcher) { w.rescan = d }
}

// NewWatcher creates a Watcher for dir. Call Start to begin watching.
func NewWatcher(dir string, canceller Canceller, opts ...WatcherOption) *Watcher {
	w := &Watcher{
		dir:       dir,
		canceller: canceller,
		rescan:    DefaultRescanInterval,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Dir returns the watched directory.
func (w *Watcher) Dir() string {
	return w.dir
}

// Start creates the directory if needed, clears a stale cancel-all left by
// an earlier run, handles cancel files already present and then watches
// for new ones until ctx is done or Stop is called.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.watcher != nil {
		return errors.New("watcher already started")
	}
	if err := os.MkdirAll(w.dir, 0755); err != nil {
		return fmt.Errorf("create signals directory: %w", err)
	}
	os.Remove(filepath.Join(w.dir, cancelAll))

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create file watcher: %w", err)
	}
	if err := fw.Add(w.dir); err != nil {
		fw.Close()
		return fmt.Errorf("watch %s: %w", w.dir, err)
	}

	w.watcher = fw
	w.done = make(chan struct{})
	w.scan()

	w.wg.Add(1)
	go w.loop(ctx, fw, w.done)
	return nil
}

// Stop ends watching and waits for the watch loop to exit.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	fw := w.watcher
	if fw == nil {
		w.mu.Unlock()
		return nil
	}
	close(w.done)
	w.watcher = nil
	w.mu.Unlock()

	err := fw.Close()
	w.wg.Wait()
	return err
}

func (w *Watcher) loop(ctx context.Context, fw *fsnotify.Watcher, done <-chan struct{}) {
	defer w.wg.Done()

	var tick <-chan time.Time
	if w.rescan > 0 {
		ticker := time.NewTicker(w.rescan)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-done:
			return
		case <-ctx.Done():
			return
		case event, ok := <-fw.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) != 0 {
				w.handle(filepath.Base(event.Name))
			}
		case err, ok := <-fw.Errors:
			if !ok {
				return
			}
			log.Printf("[signals] watcher error: %v", err)
		case <-tick:
			w.scan()
		}
	}
}

// scan handles every per-batch cancel file currently in the directory.
func (w *Watcher) scan() {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		log.Printf("[signals] read %s: %v", w.dir, err)
		return
	}
	for _, e := range entries {
		if e.IsDir() || e.Name() == cancelAll {
			continue
		}
		w.handle(e.Name())
	}
}

func (w *Watcher) handle(name string) {
	switch {
	case name == cancelAll:
		if n := w.canceller.CancelAll(); n > 0 {
			log.Printf("[signals] cancel-all signal cancelled %d batch(es)", n)
			w.consume(name)
		}
	case strings.HasPrefix(name, cancelPrefix):
		id := strings.TrimPrefix(name, cancelPrefix)
		if id == "" {
			return
		}
		if w.canceller.Cancel(id) {
			log.Printf("[signals] cancelled batch %s", id)
			w.consume(name)
		}
	}
}

func (w *Watcher) consume(name string) {
	if err := os.Remove(filepath.Join(w.dir, name)); err != nil && !os.IsNotExist(err) {
		log.Printf("[signals] remove %s: %v", name, err)
	}
}
