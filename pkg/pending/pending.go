package pending

import (
	"sync"

	"github.com/dockhand/dockhand/pkg/protocol"
)

// Key identifies one outstanding request. Request ids are UUIDv4, so
// collisions across concurrent callers are assumed impossible.
type Key struct {
	RequestID string
	Type      protocol.RequestType
}

// Table is the coordinator's sole correlation mechanism between
// dispatched commands and node replies. Each entry is a one-shot reply
// slot: the facade inserts before publishing the command, and either
// the session ingress resolves it with the matching reply or the facade
// removes it on its own error paths.
//
// Removal on timeout is mandatory. An entry nobody removes leaks its
// slot until process exit; it never blocks a node.
type Table struct {
	mu    sync.Mutex
	slots map[Key]chan *protocol.Envelope
}

// NewTable creates an empty pending table.
func NewTable() *Table {
	return &Table{slots: make(map[Key]chan *protocol.Envelope)}
}

// Insert allocates a reply slot for key and returns its receive side.
// It refuses duplicate keys.
func (t *Table) Insert(key Key) (<-chan *protocol.Envelope, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, exists := t.slots[key]; exists {
		return nil, false
	}
	ch := make(chan *protocol.Envelope, 1)
	t.slots[key] = ch
	return ch, true
}

// Resolve removes the slot for key and delivers env to its waiter.
// A missing key is not an error: the waiter may have timed out already
// and the reply is then treated as spontaneous by the caller.
func (t *Table) Resolve(key Key, env *protocol.Envelope) bool {
	t.mu.Lock()
	ch, ok := t.slots[key]
	if ok {
		delete(t.slots, key)
	}
	t.mu.Unlock()
	if !ok {
		return false
	}
	ch <- env
	close(ch)
	return true
}

// Remove drops the slot for key without delivering anything. The waiter
// observes a closed channel. No-op when the key is absent.
func (t *Table) Remove(key Key) bool {
	t.mu.Lock()
	ch, ok := t.slots[key]
	if ok {
		delete(t.slots, key)
	}
	t.mu.Unlock()
	if ok {
		close(ch)
	}
	return ok
}

// Len returns the number of outstanding entries.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.slots)
}
