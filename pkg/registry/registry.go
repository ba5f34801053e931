package registry

import (
	"sync"

	"github.com/dockhand/dockhand/pkg/bus"
	"github.com/dockhand/dockhand/pkg/protocol"
)

// Key is the (node_id, password) pair that is both the authentication
// credential and the routing key. Equality is byte-exact.
type Key struct {
	NodeID   string
	Password string
}

// Registry tracks which nodes are currently authenticated and holds the
// per-node event bus that fans node-originated envelopes out to
// WebSocket observers.
//
// A key maps to at most one event bus. A second authentication with
// identical credentials overwrites the prior entry (last-writer-wins);
// the displaced session keeps draining its own stream but loses
// routing.
type Registry struct {
	mu    sync.RWMutex
	nodes map[Key]*bus.Broadcaster[*protocol.Envelope]
}

// New creates an empty presence registry.
func New() *Registry {
	return &Registry{nodes: make(map[Key]*bus.Broadcaster[*protocol.Envelope])}
}

// Register inserts the event bus for key, overwriting any prior entry.
func (r *Registry) Register(key Key, events *bus.Broadcaster[*protocol.Envelope]) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nodes[key] = events
}

// Lookup returns the event bus registered for key.
func (r *Registry) Lookup(key Key) (*bus.Broadcaster[*protocol.Envelope], bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	events, ok := r.nodes[key]
	return events, ok
}

// Remove deletes the entry for key. Called once by the owning session
// on exit; no-op when the key is already absent.
func (r *Registry) Remove(key Key) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.nodes, key)
}

// Len returns the number of registered nodes.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.nodes)
}
