package session

import (
	"sync"
	"sync/atomic"
)

// Registry tracks active stream sessions and supports graceful draining.
// When draining, new sessions are rejected while connected ones finish
// naturally.
//
// The mutex makes the draining check and wg.Add atomic in Add, so no session
// can slip in between StartDraining and Wait.
type Registry struct {
	mu       sync.Mutex
	draining bool
	wg       sync.WaitGroup
	count    atomic.Int64
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Add registers a new active session. Returns false if the registry is
// draining and the session must be refused.
func (r *Registry) Add() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.draining {
		return false
	}
	r.wg.Add(1)
	r.count.Add(1)
	return true
}

// Done marks a session as finished. Must be called exactly once per
// successful Add.
func (r *Registry) Done() {
	r.count.Add(-1)
	r.wg.Done()
}

// StartDraining makes all future Add calls return false.
func (r *Registry) StartDraining() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.draining = true
}

// IsDraining reports whether the registry is refusing new sessions.
func (r *Registry) IsDraining() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.draining
}

// ActiveCount returns the number of currently connected sessions.
func (r *Registry) ActiveCount() int64 {
	return r.count.Load()
}

// Wait blocks until every active session has finished.
func (r *Registry) Wait() {
	r.wg.Wait()
}
