package orchestrator

import (
	"log"
	"sort"
	"sync"
)

// Registry tracks the execution context of every running batch so that
// batches can be cancelled by ID. It is safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	batches map[string]*TaskExecutionContext
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		batches: make(map[string]*TaskExecutionContext),
	}
}

// Register stores tctx under its BatchID, replacing any previous entry.
func (r *Registry) Register(tctx *TaskExecutionContext) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.batches[tctx.BatchID] = tctx
}

// TryRegister stores tctx only if no batch with the same ID is active.
func (r *Registry) TryRegister(tctx *TaskExecutionContext) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.batches[tctx.BatchID]; exists {
		return false
	}
	r.batches[tctx.BatchID] = tctx
	return true
}

// Lookup returns the context for batchID, or nil if it is not active.
func (r *Registry) Lookup(batchID string) *TaskExecutionContext {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.batches[batchID]
}

// Remove forgets batchID. Removing an unknown batch is a no-op.
func (r *Registry) Remove(batchID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.batches, batchID)
}

// Cancel requests cancellation of batchID and reports whether it was active.
func (r *Registry) Cancel(batchID string) bool {
	tctx := r.Lookup(batchID)
	if tctx == nil {
		return false
	}
	log.Printf("[registry] cancelling batch %s", batchID)
	tctx.Cancel()
	return true
}

// CancelAll requests cancellation of every active batch and returns how
// many were signalled.
func (r *Registry) CancelAll() int {
	r.mu.RLock()
	active := make([]*TaskExecutionContext, 0, len(r.batches))
	for _, tctx := range r.batches {
		active = append(active, tctx)
	}
	r.mu.RUnlock()

	for _, tctx := range active {
		tctx.Cancel()
	}
	if len(active) > 0 {
		log.Printf("[registry] cancelled %d active batches", len(active))
	}
	return len(active)
}

// Active returns the IDs of all active batches, sorted.
func (r *Registry) Active() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.batches))
	for id := range r.batches {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Len returns the number of active batches.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.batches)
}
