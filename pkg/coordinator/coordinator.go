package coordinator

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/dockhand/dockhand/pkg/bus"
	"github.com/dockhand/dockhand/pkg/config"
	"github.com/dockhand/dockhand/pkg/gateway"
	"github.com/dockhand/dockhand/pkg/pending"
	"github.com/dockhand/dockhand/pkg/registry"
	"github.com/dockhand/dockhand/pkg/session"
)

// Coordinator assembles the routing core and both listeners: the RPC
// endpoint nodes dial and the HTTP facade users call.
type Coordinator struct {
	cfg config.Config
	log zerolog.Logger

	registry *registry.Registry
	pending  *pending.Table
	commands *bus.Broadcaster[bus.OutboundRequest]

	ready    chan struct{}
	rpcAddr  net.Addr
	httpAddr net.Addr
}

// New builds a coordinator from cfg. Zero capacities fall back to the
// defaults.
func New(cfg config.Config, logger zerolog.Logger) *Coordinator {
	if cfg.RPC.Addr == "" {
		cfg.RPC.Addr = config.DefaultRPCAddr
	}
	if cfg.API.Addr == "" {
		cfg.API.Addr = config.DefaultAPIAddr
	}
	if cfg.Channels.CommandBus <= 0 {
		cfg.Channels.CommandBus = config.DefaultCommandBusCapacity
	}
	return &Coordinator{
		cfg:      cfg,
		log:      logger,
		registry: registry.New(),
		pending:  pending.NewTable(),
		commands: bus.New[bus.OutboundRequest](cfg.Channels.CommandBus),
		ready:    make(chan struct{}),
	}
}

// Ready is closed once both listeners are bound. RPCAddr and APIAddr
// are valid after that; useful when binding to port 0.
func (c *Coordinator) Ready() <-chan struct{} { return c.ready }

// RPCAddr returns the bound address of the node RPC listener.
func (c *Coordinator) RPCAddr() net.Addr { return c.rpcAddr }

// APIAddr returns the bound address of the HTTP facade listener.
func (c *Coordinator) APIAddr() net.Addr { return c.httpAddr }

// Run binds both listeners and serves until ctx is cancelled or either
// listener fails. It blocks.
func (c *Coordinator) Run(ctx context.Context) error {
	rpcLn, err := net.Listen("tcp", c.cfg.RPC.Addr)
	if err != nil {
		return fmt.Errorf("failed to bind rpc listener on %s: %w", c.cfg.RPC.Addr, err)
	}
	defer rpcLn.Close()

	apiLn, err := net.Listen("tcp", c.cfg.API.Addr)
	if err != nil {
		return fmt.Errorf("failed to bind api listener on %s: %w", c.cfg.API.Addr, err)
	}
	defer apiLn.Close()

	c.rpcAddr = rpcLn.Addr()
	c.httpAddr = apiLn.Addr()

	rpcServer := &http.Server{
		Handler: session.NewServer(session.Config{
			OutboundCapacity: c.cfg.Channels.Outbound,
			EventBusCapacity: c.cfg.Channels.EventBus,
		}, c.registry, c.pending, c.commands, c.log.With().Str("component", "rpc").Logger()).Handler(),
	}
	apiServer := &http.Server{
		Handler: gateway.New(gateway.Config{},
			c.registry, c.pending, c.commands,
			c.log.With().Str("component", "api").Logger()).Router(),
	}

	errCh := make(chan error, 2)
	go func() {
		c.log.Info().Str("addr", c.rpcAddr.String()).Msg("rpc listener started")
		errCh <- rpcServer.Serve(rpcLn)
	}()
	go func() {
		c.log.Info().Str("addr", c.httpAddr.String()).Msg("api listener started")
		errCh <- apiServer.Serve(apiLn)
	}()

	close(c.ready)

	var cause error
	select {
	case <-ctx.Done():
		cause = ctx.Err()
		c.log.Info().Msg("shutting down")
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			cause = err
			c.log.Error().Err(err).Msg("listener failed")
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	apiServer.Shutdown(shutdownCtx)
	rpcServer.Shutdown(shutdownCtx)
	c.commands.Close()

	if cause == context.Canceled {
		return nil
	}
	return cause
}
