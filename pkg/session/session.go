package session

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/dockhand/dockhand/pkg/bus"
	"github.com/dockhand/dockhand/pkg/metrics"
	"github.com/dockhand/dockhand/pkg/pending"
	"github.com/dockhand/dockhand/pkg/protocol"
	"github.com/dockhand/dockhand/pkg/registry"
)

// Session owns one node RPC stream. It runs three cooperating tasks:
//
//   - ingress: reads envelopes from the node, handles authentication
//     and status queries, correlates replies through the pending table,
//     and publishes spontaneous updates to the node's event bus;
//   - egress: subscribes to the command bus and forwards commands whose
//     credentials match this session's auth state;
//   - writer: the single goroutine allowed to write to the transport.
//
// When ingress exits (stream end or transport error) it deregisters the
// node and tears the other two tasks down. Exit is deterministic: after
// Run returns, the presence entry is gone.
type Session struct {
	registry *registry.Registry
	pending  *pending.Table
	commands *bus.Broadcaster[bus.OutboundRequest]
	started  time.Time
	cfg      Config
	log      zerolog.Logger

	auth authState
	// events is the node's event bus, created on authentication.
	// Only the ingress task touches it.
	events *bus.Broadcaster[*protocol.Envelope]
}

// Run drives the session until the node stream ends. It blocks.
func (s *Session) Run(t Transport) {
	metrics.SessionsActive.Inc()
	defer metrics.SessionsActive.Dec()

	out := make(chan *protocol.Envelope, s.cfg.OutboundCapacity)
	done := make(chan struct{})
	var wg sync.WaitGroup

	// Writer: sole owner of the transport's write side. A write failure
	// closes the transport, which unblocks ingress with a read error.
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case env := <-out:
				if err := t.WriteEnvelope(env); err != nil {
					s.log.Warn().Err(err).Msg("outbound write failed")
					t.Close()
					return
				}
			case <-done:
				return
			}
		}
	}()

	// Egress: command bus -> node. Filters by credential match.
	sub := s.commands.Subscribe()
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer sub.Cancel()
		for {
			select {
			case req, ok := <-sub.C:
				if !ok {
					return
				}
				if req.Envelope == nil || req.Envelope.NodeCommand == nil {
					continue
				}
				if !s.auth.matches(req.NodeID, req.Password) {
					continue
				}
				select {
				case out <- req.Envelope:
					metrics.CommandsRouted.WithLabelValues(commandLabel(req.Envelope.NodeCommand)).Inc()
				default:
					metrics.CommandsDropped.Inc()
					s.log.Warn().Msg("outbound channel full, dropping command")
				}
			case <-done:
				return
			}
		}
	}()

	// Ingress: node -> coordinator, on this goroutine.
	for {
		env, err := t.ReadEnvelope()
		if err != nil {
			s.log.Debug().Err(err).Msg("node stream ended")
			break
		}
		s.handleEnvelope(env, out)
	}

	if id, password, ok := s.auth.take(); ok {
		s.registry.Remove(registry.Key{NodeID: id, Password: password})
		metrics.NodesRegistered.Dec()
		if s.events != nil {
			s.events.Close()
		}
		s.log.Info().Str("node_id", id).Msg("node disconnected and removed")
	}

	close(done)
	wg.Wait()
	t.Close()
}

func (s *Session) handleEnvelope(env *protocol.Envelope, out chan<- *protocol.Envelope) {
	switch {
	case env == nil || !env.HasPayload():
		// Empty envelopes are dropped.

	case env.ServerCommand != nil:
		s.handleServerCommand(env.ServerCommand, out)

	case env.NodeResponse != nil:
		if !s.auth.authenticated() {
			return
		}
		s.handleNodeResponse(env)

	default:
		// Nodes have no business sending ServerResponse or NodeCommand
		// payloads; ignore them.
	}
}

func (s *Session) handleServerCommand(cmd *protocol.ServerCommand, out chan<- *protocol.Envelope) {
	if req := cmd.AuthRequest; req != nil {
		if !s.auth.authenticate(req.NodeID, req.Password) {
			return // repeated auth is a no-op
		}
		s.events = bus.New[*protocol.Envelope](s.cfg.EventBusCapacity)
		s.registry.Register(registry.Key{NodeID: req.NodeID, Password: req.Password}, s.events)
		metrics.NodesRegistered.Inc()
		s.log.Info().Str("node_id", req.NodeID).Msg("node authenticated")
		return
	}

	if cmd.GetServerStatus != nil && s.auth.authenticated() {
		s.sendOutbound(out, protocol.ServerStatusEnvelope("running", formatUptime(time.Since(s.started))))
	}
}

func (s *Session) handleNodeResponse(env *protocol.Envelope) {
	if key := env.NodeResponse.Key(); key.IsValue() {
		resolved := s.pending.Resolve(pending.Key{
			RequestID: key.RequestID,
			Type:      key.RequestType,
		}, env)
		if resolved {
			metrics.PendingRequests.Dec()
			return
		}
		// Late reply: the waiter is gone. Fall through and publish it
		// like a spontaneous update.
	}

	if s.events != nil {
		if err := s.events.Publish(env); err == nil {
			metrics.EventsForwarded.Inc()
		}
	}
}

// sendOutbound hands an envelope to the writer without blocking; the
// coordinator never stalls ingress behind a slow node.
func (s *Session) sendOutbound(out chan<- *protocol.Envelope, env *protocol.Envelope) {
	select {
	case out <- env:
	default:
		s.log.Warn().Msg("outbound channel full, dropping server response")
	}
}

func commandLabel(cmd *protocol.NodeCommand) string {
	switch {
	case cmd.GetNodeContainers != nil:
		return string(protocol.RequestGetContainers)
	case cmd.GetNodeContainersWithStatus != nil:
		return string(protocol.RequestGetContainersWithStatus)
	case cmd.GetContainerStatus != nil:
		return string(protocol.RequestGetContainerStatus)
	case cmd.StartContainer != nil:
		return string(protocol.RequestStartContainer)
	case cmd.StopContainer != nil:
		return string(protocol.RequestStopContainer)
	case cmd.DeleteContainer != nil:
		return string(protocol.RequestDeleteContainer)
	case cmd.GetContainerLogs != nil:
		return string(protocol.RequestGetContainerLogs)
	}
	return "unknown"
}

func formatUptime(d time.Duration) string {
	secs := int64(d.Seconds())
	return fmt.Sprintf("%dh %02dm %02ds", secs/3600, (secs%3600)/60, secs%60)
}
