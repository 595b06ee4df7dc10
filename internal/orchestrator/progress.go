package orchestrator

import (
	"log"
	"sync/atomic"
	"time"

	"github.com/ivan-andreyev/agent-orchestra/pkg/models"
)

// ProgressSink receives progress snapshots while a batch runs. Report is
// called from a single goroutine per batch, in state transition order, and
// must not block for long.
type ProgressSink interface {
	Report(p models.BatchProgress)
}

// ProgressFunc adapts a function to the ProgressSink interface.
type ProgressFunc func(p models.BatchProgress)

// Report calls f(p).
func (f ProgressFunc) Report(p models.BatchProgress) {
	f(p)
}

// NopSink discards every report.
type NopSink struct{}

// Report implements ProgressSink.
func (NopSink) Report(models.BatchProgress) {}

// MultiSink fans a report out to several sinks in order.
type MultiSink []ProgressSink

// Report implements ProgressSink.
func (m MultiSink) Report(p models.BatchProgress) {
	for _, s := range m {
		if s != nil {
			s.Report(p)
		}
	}
}

// progressSendTimeout is how long ChannelSink waits on a full buffer.
const progressSendTimeout = 100 * time.Millisecond

// ChannelSink delivers reports on a buffered channel. When the buffer is
// full it waits briefly for the receiver, then drops the report.
type ChannelSink struct {
	ch           chan models.BatchProgress
	droppedCount atomic.Uint64
}

// NewChannelSink creates a ChannelSink with the given buffer size.
func NewChannelSink(bufferSize int) *ChannelSink {
	return &ChannelSink{
		ch: make(chan models.BatchProgress, bufferSize),
	}
}

// Report implements ProgressSink.
func (s *ChannelSink) Report(p models.BatchProgress) {
	select {
	case s.ch <- p:
		return
	default:
	}

	select {
	case s.ch <- p:
	case <-time.After(progressSendTimeout):
		count := s.droppedCount.Add(1)
		if count%10 == 1 {
			log.Printf("[progress] WARNING: progress channel full, dropped update (total dropped: %d): batch=%s", count, p.BatchID)
		}
	}
}

// Updates returns the channel reports are delivered on.
func (s *ChannelSink) Updates() <-chan models.BatchProgress {
	return s.ch
}

// DroppedCount returns the number of reports dropped so far.
func (s *ChannelSink) DroppedCount() uint64 {
	return s.droppedCount.Load()
}

// Close closes the channel. Report must not be called afterwards.
func (s *ChannelSink) Close() {
	close(s.ch)
}
