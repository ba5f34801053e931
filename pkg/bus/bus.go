package bus

import (
	"errors"
	"sync"
	"sync/atomic"

	"github.com/dockhand/dockhand/pkg/protocol"
)

// ErrClosed is returned by Publish after the broadcaster has been closed.
var ErrClosed = errors.New("bus: broadcaster closed")

// OutboundRequest is a user-originated command addressed to one node.
// Every active node session subscribes to the command bus and filters
// by matching credentials; a request nobody matches is silently lost
// and surfaces to the caller as a reply timeout.
type OutboundRequest struct {
	NodeID   string
	Password string
	Envelope *protocol.Envelope
}

// Broadcaster is a single-producer many-consumer fan-out with bounded
// per-subscriber buffers. Publish never blocks: a subscriber whose
// buffer is full loses the message and its drop counter is incremented.
// Slow consumers are shed rather than allowed to stall the producer.
type Broadcaster[T any] struct {
	mu       sync.RWMutex
	subs     map[*Subscription[T]]struct{}
	capacity int
	closed   bool
}

// Subscription is one consumer's view of a broadcaster. Receive from C;
// the channel is closed when the subscription is cancelled or the
// broadcaster shuts down.
type Subscription[T any] struct {
	C <-chan T

	ch      chan T
	dropped atomic.Uint64
	b       *Broadcaster[T]
}

// New creates a broadcaster whose subscribers buffer up to capacity
// messages each.
func New[T any](capacity int) *Broadcaster[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &Broadcaster[T]{
		subs:     make(map[*Subscription[T]]struct{}),
		capacity: capacity,
	}
}

// Subscribe registers a new consumer. A subscription created after
// Close is returned already-closed.
func (b *Broadcaster[T]) Subscribe() *Subscription[T] {
	s := &Subscription[T]{
		ch: make(chan T, b.capacity),
		b:  b,
	}
	s.C = s.ch

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(s.ch)
		return s
	}
	b.subs[s] = struct{}{}
	return s
}

// Publish delivers v to every live subscriber without blocking.
// Subscribers with full buffers miss the message.
func (b *Broadcaster[T]) Publish(v T) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return ErrClosed
	}
	for s := range b.subs {
		select {
		case s.ch <- v:
		default:
			s.dropped.Add(1)
		}
	}
	return nil
}

// Close shuts the broadcaster down and closes every subscriber channel.
// Later Publish calls return ErrClosed.
func (b *Broadcaster[T]) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for s := range b.subs {
		close(s.ch)
		delete(b.subs, s)
	}
}

// Subscribers returns the number of live subscriptions.
func (b *Broadcaster[T]) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Cancel detaches the subscription and closes its channel. Safe to call
// more than once and after the broadcaster itself has closed.
func (s *Subscription[T]) Cancel() {
	s.b.mu.Lock()
	defer s.b.mu.Unlock()
	if _, ok := s.b.subs[s]; !ok {
		return
	}
	delete(s.b.subs, s)
	close(s.ch)
}

// Dropped returns the total number of messages this subscriber has lost
// to a full buffer. Observers use it to log lag and keep going.
func (s *Subscription[T]) Dropped() uint64 {
	return s.dropped.Load()
}
