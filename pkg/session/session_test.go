package session

import (
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/dockhand/dockhand/pkg/bus"
	"github.com/dockhand/dockhand/pkg/pending"
	"github.com/dockhand/dockhand/pkg/protocol"
	"github.com/dockhand/dockhand/pkg/registry"
)

// chanTransport is an in-memory Transport driven by the test acting as
// the node.
type chanTransport struct {
	toSession   chan *protocol.Envelope
	fromSession chan *protocol.Envelope
	closed      chan struct{}
	once        sync.Once
}

func newChanTransport() *chanTransport {
	return &chanTransport{
		toSession:   make(chan *protocol.Envelope, 16),
		fromSession: make(chan *protocol.Envelope, 16),
		closed:      make(chan struct{}),
	}
}

func (t *chanTransport) ReadEnvelope() (*protocol.Envelope, error) {
	select {
	case env, ok := <-t.toSession:
		if !ok {
			return nil, io.EOF
		}
		return env, nil
	case <-t.closed:
		return nil, io.EOF
	}
}

func (t *chanTransport) WriteEnvelope(env *protocol.Envelope) error {
	select {
	case t.fromSession <- env:
		return nil
	case <-t.closed:
		return errors.New("transport closed")
	}
}

func (t *chanTransport) Close() error {
	t.once.Do(func() { close(t.closed) })
	return nil
}

// disconnect ends the node side of the stream.
func (t *chanTransport) disconnect() {
	close(t.toSession)
}

type harness struct {
	registry *registry.Registry
	pending  *pending.Table
	commands *bus.Broadcaster[bus.OutboundRequest]
	server   *Server
}

func newHarness() *harness {
	reg := registry.New()
	pend := pending.NewTable()
	commands := bus.New[bus.OutboundRequest](64)
	srv := NewServer(Config{OutboundCapacity: 8, EventBusCapacity: 8},
		reg, pend, commands, zerolog.Nop())
	return &harness{registry: reg, pending: pend, commands: commands, server: srv}
}

func (h *harness) start(t *testing.T) (*chanTransport, chan struct{}) {
	t.Helper()
	tr := newChanTransport()
	finished := make(chan struct{})
	go func() {
		h.server.NewSession().Run(tr)
		close(finished)
	}()
	return tr, finished
}

func waitRegistered(t *testing.T, reg *registry.Registry, key registry.Key) {
	t.Helper()
	require.Eventually(t, func() bool {
		_, ok := reg.Lookup(key)
		return ok
	}, time.Second, 5*time.Millisecond, "node never appeared in the registry")
}

func TestAuthRegistersPresence(t *testing.T) {
	h := newHarness()
	tr, finished := h.start(t)

	tr.toSession <- protocol.AuthEnvelope("n1", "pw")
	waitRegistered(t, h.registry, registry.Key{NodeID: "n1", Password: "pw"})

	tr.disconnect()
	<-finished
	_, ok := h.registry.Lookup(registry.Key{NodeID: "n1", Password: "pw"})
	require.False(t, ok, "presence entry must be gone after disconnect")
}

func TestRepeatedAuthIsIgnored(t *testing.T) {
	h := newHarness()
	tr, finished := h.start(t)
	defer func() { tr.disconnect(); <-finished }()

	tr.toSession <- protocol.AuthEnvelope("n1", "pw")
	waitRegistered(t, h.registry, registry.Key{NodeID: "n1", Password: "pw"})

	// A node cannot change identity mid-stream.
	tr.toSession <- protocol.AuthEnvelope("n2", "other")
	tr.toSession <- &protocol.Envelope{ServerCommand: &protocol.ServerCommand{
		GetServerStatus: &protocol.GetServerStatus{},
	}}

	env := <-tr.fromSession // proves the second auth was processed and skipped
	require.NotNil(t, env.ServerResponse)
	_, ok := h.registry.Lookup(registry.Key{NodeID: "n2", Password: "other"})
	require.False(t, ok, "second auth must not register a new identity")
}

func TestServerStatusRequiresAuth(t *testing.T) {
	h := newHarness()
	tr, finished := h.start(t)

	statusQuery := &protocol.Envelope{ServerCommand: &protocol.ServerCommand{
		GetServerStatus: &protocol.GetServerStatus{},
	}}

	tr.toSession <- statusQuery // unauthenticated: no reply
	tr.toSession <- protocol.AuthEnvelope("n1", "pw")
	tr.toSession <- statusQuery

	env := <-tr.fromSession
	require.NotNil(t, env.ServerResponse)
	require.NotNil(t, env.ServerResponse.ServerStatus)
	require.Equal(t, "running", env.ServerResponse.ServerStatus.Status)
	require.Regexp(t, `^\d+h \d{2}m \d{2}s$`, env.ServerResponse.ServerStatus.Uptime)

	select {
	case extra := <-tr.fromSession:
		t.Fatalf("unexpected second reply: %+v", extra)
	case <-time.After(50 * time.Millisecond):
	}

	tr.disconnect()
	<-finished
}

func TestEgressFiltersByCredentials(t *testing.T) {
	h := newHarness()
	tr, finished := h.start(t)
	defer func() { tr.disconnect(); <-finished }()

	tr.toSession <- protocol.AuthEnvelope("n1", "good")
	waitRegistered(t, h.registry, registry.Key{NodeID: "n1", Password: "good"})

	mismatch := protocol.CommandEnvelope(&protocol.NodeCommand{
		GetNodeContainers: &protocol.GetNodeContainers{RequestID: "r-bad"},
	})
	match := protocol.CommandEnvelope(&protocol.NodeCommand{
		GetNodeContainers: &protocol.GetNodeContainers{RequestID: "r-good"},
	})

	require.NoError(t, h.commands.Publish(bus.OutboundRequest{
		NodeID: "n1", Password: "bad", Envelope: mismatch,
	}))
	require.NoError(t, h.commands.Publish(bus.OutboundRequest{
		NodeID: "n1", Password: "good", Envelope: match,
	}))

	env := <-tr.fromSession
	require.NotNil(t, env.NodeCommand)
	require.Equal(t, "r-good", env.NodeCommand.GetNodeContainers.RequestID,
		"the mismatched command must never reach the node")
}

func TestReplyResolvesPendingEntry(t *testing.T) {
	h := newHarness()
	tr, finished := h.start(t)
	defer func() { tr.disconnect(); <-finished }()

	tr.toSession <- protocol.AuthEnvelope("n1", "pw")
	waitRegistered(t, h.registry, registry.Key{NodeID: "n1", Password: "pw"})

	key := pending.Key{RequestID: "r1", Type: protocol.RequestGetContainers}
	replyCh, ok := h.pending.Insert(key)
	require.True(t, ok)

	tr.toSession <- protocol.ResponseEnvelope(&protocol.NodeResponse{
		NodeContainers: &protocol.NodeContainers{
			Containers: []string{"alpha", "beta"},
			RequestKey: protocol.ValueKey(protocol.RequestGetContainers, "r1"),
		},
	})

	select {
	case env := <-replyCh:
		require.Equal(t, []string{"alpha", "beta"}, env.NodeResponse.NodeContainers.Containers)
	case <-time.After(time.Second):
		t.Fatal("reply never reached the pending waiter")
	}
	require.Equal(t, 0, h.pending.Len())
}

func TestLateReplyGoesToEventBus(t *testing.T) {
	h := newHarness()
	tr, finished := h.start(t)
	defer func() { tr.disconnect(); <-finished }()

	tr.toSession <- protocol.AuthEnvelope("n1", "pw")
	waitRegistered(t, h.registry, registry.Key{NodeID: "n1", Password: "pw"})

	events, ok := h.registry.Lookup(registry.Key{NodeID: "n1", Password: "pw"})
	require.True(t, ok)
	sub := events.Subscribe()
	defer sub.Cancel()

	// No pending entry exists for this id: the reply is late.
	tr.toSession <- protocol.ResponseEnvelope(&protocol.NodeResponse{
		NodeContainers: &protocol.NodeContainers{
			Containers: []string{"gamma"},
			RequestKey: protocol.ValueKey(protocol.RequestGetContainers, "expired"),
		},
	})
	// Spontaneous updates always go to the event bus.
	tr.toSession <- protocol.ResponseEnvelope(&protocol.NodeResponse{
		NodeContainers: &protocol.NodeContainers{
			Containers: []string{"gamma", "delta"},
			RequestKey: protocol.UnspecificKey(protocol.RequestUpdateContainerInfo),
		},
	})

	first := <-sub.C
	require.Equal(t, []string{"gamma"}, first.NodeResponse.NodeContainers.Containers)
	second := <-sub.C
	require.Equal(t, []string{"gamma", "delta"}, second.NodeResponse.NodeContainers.Containers)
}

func TestDisconnectClosesEventBus(t *testing.T) {
	h := newHarness()
	tr, finished := h.start(t)

	tr.toSession <- protocol.AuthEnvelope("n1", "pw")
	waitRegistered(t, h.registry, registry.Key{NodeID: "n1", Password: "pw"})

	events, _ := h.registry.Lookup(registry.Key{NodeID: "n1", Password: "pw"})
	sub := events.Subscribe()

	tr.disconnect()
	<-finished

	_, open := <-sub.C
	require.False(t, open, "event bus must close when the session ends")
}
