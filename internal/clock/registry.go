// Package clock implements the Clock & Timer Registry (spec §4.1): an
// at-most-one-timer-per-discussion scheduler with atomic cancel-then-set
// semantics, grounded on the teacher's ticker+stopCh goroutine idiom
// (agent/lifecycle.Manager.cleanupLoop, orchestrator/scheduler.processLoop).
package clock

import (
	"sync"
	"time"
)

// Callback is invoked when a scheduled timer fires. It MUST re-check the
// discussion's current status before acting — the discussion may have
// transitioned between scheduling and firing.
type Callback func(discussionID string)

// Registry guarantees at most one outstanding timer per discussion id.
// Scheduling a new timer while one exists atomically cancels the previous.
type Registry struct {
	mu     sync.Mutex
	timers map[string]*time.Timer
}

// NewRegistry constructs an empty timer registry.
func NewRegistry() *Registry {
	return &Registry{timers: make(map[string]*time.Timer)}
}

// Schedule arms a one-shot timer for discussionID, cancelling any existing
// one first. The callback runs on its own goroutine (the worker pool, in
// spec terms); a panic or error inside it must not be allowed to escape —
// callers are responsible for recovering within their callback if needed.
func (r *Registry) Schedule(discussionID string, d time.Duration, cb Callback) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.timers[discussionID]; ok {
		existing.Stop()
		delete(r.timers, discussionID)
	}

	var self *time.Timer
	self = time.AfterFunc(d, func() {
		r.mu.Lock()
		// Only fire if we're still the current timer for this id; a
		// subsequent Schedule/Cancel may have already replaced us.
		cur, ok := r.timers[discussionID]
		r.mu.Unlock()
		if !ok || cur != self {
			return
		}
		cb(discussionID)
		r.mu.Lock()
		if r.timers[discussionID] == self {
			delete(r.timers, discussionID)
		}
		r.mu.Unlock()
	})
	r.timers[discussionID] = self
}

// Cancel stops and removes discussionID's timer, if any. Idempotent:
// cancelling a non-existent timer is a no-op.
func (r *Registry) Cancel(discussionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t, ok := r.timers[discussionID]; ok {
		t.Stop()
		delete(r.timers, discussionID)
	}
}

// Has reports whether discussionID currently has an outstanding timer.
func (r *Registry) Has(discussionID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.timers[discussionID]
	return ok
}

// Now returns the current monotonic-backed time. Exposed so callers depend
// on the registry for time, not a bare time.Now() call, keeping tests able
// to substitute a fake registry if ever needed.
func (r *Registry) Now() time.Time {
	return time.Now()
}
