package ws

import "sync"

// Presence tracks the set of online display handles in the global room.
// Plain set semantics: duplicate connections from one identity collapse to
// a single membership, so the last disconnecting duplicate removes the
// handle even if another connection from the same identity remains.
type Presence struct {
	mu      sync.Mutex
	handles map[string]struct{}
}

// NewPresence creates an empty presence registry.
func NewPresence() *Presence {
	return &Presence{handles: make(map[string]struct{})}
}

// Add records a handle as online and returns the new count.
func (p *Presence) Add(handle string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.handles[handle] = struct{}{}
	return len(p.handles)
}

// Remove marks a handle offline and returns the new count. Idempotent.
func (p *Presence) Remove(handle string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.handles, handle)
	return len(p.handles)
}

// Count returns the number of online handles.
func (p *Presence) Count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.handles)
}
