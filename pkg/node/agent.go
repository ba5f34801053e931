package node

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/dockhand/dockhand/pkg/protocol"
)

// Reconnect backoff: start at one second, double up to thirty, with a
// little jitter so a fleet of nodes does not reconnect in lockstep.
const (
	backoffInitial = time.Second
	backoffMax     = 30 * time.Second
)

// outboundCapacity bounds the agent's reply channel toward the
// coordinator.
const outboundCapacity = 32

// AgentConfig identifies the node and where its coordinator lives.
type AgentConfig struct {
	// CoordinatorURL is the websocket endpoint, e.g.
	// ws://coordinator:50051/rpc.
	CoordinatorURL string
	NodeID         string
	Password       string
}

// Agent maintains one stream to the coordinator, executes the commands
// arriving on it against the local engine, and pushes container-list
// updates when the engine reports changes. It reconnects with backoff
// until its context ends.
type Agent struct {
	cfg    AgentConfig
	engine Engine
	log    zerolog.Logger
}

// NewAgent creates an agent over the given engine.
func NewAgent(cfg AgentConfig, engine Engine, logger zerolog.Logger) *Agent {
	return &Agent{cfg: cfg, engine: engine, log: logger}
}

// Run connects and serves until ctx is cancelled. Each dropped
// connection is retried with exponential backoff; a connection that
// authenticated resets the backoff.
func (a *Agent) Run(ctx context.Context) error {
	backoff := backoffInitial
	for {
		connectedAt := time.Now()
		err := a.runOnce(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if time.Since(connectedAt) > backoffMax {
			backoff = backoffInitial
		}

		wait := backoff + time.Duration(rand.Int63n(int64(backoff/4+1)))
		a.log.Warn().Err(err).Dur("retry_in", wait).Msg("coordinator stream lost, reconnecting")
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return ctx.Err()
		}
		if backoff *= 2; backoff > backoffMax {
			backoff = backoffMax
		}
	}
}

// runOnce drives a single connection to the coordinator.
func (a *Agent) runOnce(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, a.cfg.CoordinatorURL, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	a.log.Info().Str("coordinator", a.cfg.CoordinatorURL).Msg("connected")

	connCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Unblock the read loop when the context ends.
	go func() {
		<-connCtx.Done()
		conn.Close()
	}()

	out := make(chan *protocol.Envelope, outboundCapacity)
	var wg sync.WaitGroup

	// Writer: sole owner of the connection's write side.
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case env := <-out:
				if err := conn.WriteJSON(env); err != nil {
					a.log.Warn().Err(err).Msg("write to coordinator failed")
					conn.Close()
					return
				}
			case <-connCtx.Done():
				return
			}
		}
	}()

	out <- protocol.AuthEnvelope(a.cfg.NodeID, a.cfg.Password)
	out <- &protocol.Envelope{ServerCommand: &protocol.ServerCommand{
		GetServerStatus: &protocol.GetServerStatus{},
	}}

	wg.Add(1)
	go func() {
		defer wg.Done()
		a.watchContainers(connCtx, out)
	}()

	// Read loop. Each command runs in its own goroutine so a slow
	// engine call never blocks the stream.
	var readErr error
	for {
		var env protocol.Envelope
		if err := conn.ReadJSON(&env); err != nil {
			readErr = err
			break
		}
		a.handleEnvelope(connCtx, &env, out)
	}

	cancel()
	wg.Wait()
	if errors.Is(readErr, context.Canceled) {
		return nil
	}
	return readErr
}

func (a *Agent) handleEnvelope(ctx context.Context, env *protocol.Envelope, out chan<- *protocol.Envelope) {
	switch {
	case env.NodeCommand != nil:
		cmd := env.NodeCommand
		go func() {
			if reply := handleCommand(ctx, a.engine, cmd); reply != nil {
				a.send(ctx, out, reply)
			}
		}()

	case env.ServerResponse != nil && env.ServerResponse.ServerStatus != nil:
		st := env.ServerResponse.ServerStatus
		a.log.Info().Str("status", st.Status).Str("uptime", st.Uptime).Msg("coordinator status")
	}
}

// watchContainers pushes a fresh container list whenever the engine
// reports a lifecycle change.
func (a *Agent) watchContainers(ctx context.Context, out chan<- *protocol.Envelope) {
	signal, err := a.engine.WatchContainers(ctx)
	if err != nil {
		a.log.Warn().Err(err).Msg("container watch unavailable, spontaneous updates disabled")
		return
	}
	for {
		select {
		case _, ok := <-signal:
			if !ok {
				return
			}
			containers, err := a.engine.ListContainers(ctx)
			if err != nil {
				a.log.Warn().Err(err).Msg("failed to list containers for update")
				continue
			}
			a.send(ctx, out, protocol.ResponseEnvelope(&protocol.NodeResponse{
				NodeContainers: &protocol.NodeContainers{
					Containers: containers,
					RequestKey: protocol.UnspecificKey(protocol.RequestUpdateContainerInfo),
				},
			}))
		case <-ctx.Done():
			return
		}
	}
}

func (a *Agent) send(ctx context.Context, out chan<- *protocol.Envelope, env *protocol.Envelope) {
	select {
	case out <- env:
	case <-ctx.Done():
	}
}
