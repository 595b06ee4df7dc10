package orchestrator

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// pkgLogger is the package-level debug logger used by orchestrator components.
var pkgLogger *DebugLogger
var pkgLoggerMu sync.RWMutex

// setPackageLogger sets the package-level logger.
func setPackageLogger(l *DebugLogger) {
	pkgLoggerMu.Lock()
	defer pkgLoggerMu.Unlock()
	pkgLogger = l
}

// debugLog writes a message using the package-level logger.
// Components without their own logger, such as TaskExecutionContext, use it.
func debugLog(format string, args ...interface{}) {
	pkgLoggerMu.RLock()
	l := pkgLogger
	pkgLoggerMu.RUnlock()

	l.Log(format, args...)
}

// DebugLogger writes timestamped debug lines for batch execution.
// The zero value and a nil *DebugLogger discard everything.
type DebugLogger struct {
	mu     sync.Mutex
	w      io.Writer
	closer io.Closer
}

// NewDebugLogger creates a logger appending to the file at logPath,
// creating parent directories as needed. An empty path gives a no-op logger.
func NewDebugLogger(logPath string) (*DebugLogger, error) {
	if logPath == "" {
		return &DebugLogger{}, nil
	}

	if err := os.MkdirAll(filepath.Dir(logPath), 0755); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}
	f, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}

	logger := &DebugLogger{w: f, closer: f}
	logger.Log("=== Orchestra Debug Log Started at %s ===", time.Now().Format(time.RFC3339))
	return logger, nil
}

// NewWriterLogger creates a logger writing to w. Close does not close w.
func NewWriterLogger(w io.Writer) *DebugLogger {
	return &DebugLogger{w: w}
}

// DebugLogPath returns the debug log location under root.
func DebugLogPath(root string) string {
	return filepath.Join(root, ".orchestra", "logs", "orchestra-debug.log")
}

// NewDebugLoggerForRepo creates a debug logger in the repo's .orchestra/logs directory.
// Returns a no-op logger if the directory cannot be created.
func NewDebugLoggerForRepo(repoPath string) *DebugLogger {
	logger, err := NewDebugLogger(DebugLogPath(repoPath))
	if err != nil {
		return &DebugLogger{}
	}
	return logger
}

// NopLogger returns a no-op logger for testing or when logging is disabled.
func NopLogger() *DebugLogger {
	return &DebugLogger{}
}

// Log writes a timestamped message.
func (l *DebugLogger) Log(format string, args ...interface{}) {
	if l == nil || l.w == nil {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	fmt.Fprintf(l.w, "[%s] %s\n", time.Now().Format("15:04:05.000"), fmt.Sprintf(format, args...))
	if f, ok := l.w.(*os.File); ok {
		f.Sync()
	}
}

// Prefixed returns a log function that starts every message with prefix.
func (l *DebugLogger) Prefixed(prefix string) func(format string, args ...interface{}) {
	return func(format string, args ...interface{}) {
		l.Log(prefix+" "+format, args...)
	}
}

// Close closes the underlying file, if the logger owns one.
func (l *DebugLogger) Close() error {
	if l == nil || l.closer == nil {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	err := l.closer.Close()
	l.w, l.closer = nil, nil
	return err
}
