package session

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/dockhand/dockhand/pkg/bus"
	"github.com/dockhand/dockhand/pkg/config"
	"github.com/dockhand/dockhand/pkg/pending"
	"github.com/dockhand/dockhand/pkg/registry"
)

// RPCPath is the websocket endpoint node agents dial on the RPC
// listener.
const RPCPath = "/rpc"

// Config bounds the per-session channels.
type Config struct {
	// OutboundCapacity bounds the coordinator -> node channel; a full
	// channel drops commands instead of blocking egress.
	OutboundCapacity int
	// EventBusCapacity bounds the node's event bus created on
	// authentication.
	EventBusCapacity int
}

// DefaultConfig returns the standard channel bounds.
func DefaultConfig() Config {
	return Config{
		OutboundCapacity: config.DefaultOutboundCapacity,
		EventBusCapacity: config.DefaultEventBusCapacity,
	}
}

// Server accepts node RPC streams and runs a Session per connection.
type Server struct {
	cfg      Config
	registry *registry.Registry
	pending  *pending.Table
	commands *bus.Broadcaster[bus.OutboundRequest]
	started  time.Time
	log      zerolog.Logger

	upgrader websocket.Upgrader
}

// NewServer creates the node-facing RPC server. The three handles are
// shared with the REST/WS facade.
func NewServer(cfg Config, reg *registry.Registry, pend *pending.Table,
	commands *bus.Broadcaster[bus.OutboundRequest], logger zerolog.Logger) *Server {
	if cfg.OutboundCapacity <= 0 {
		cfg.OutboundCapacity = config.DefaultOutboundCapacity
	}
	if cfg.EventBusCapacity <= 0 {
		cfg.EventBusCapacity = config.DefaultEventBusCapacity
	}
	return &Server{
		cfg:      cfg,
		registry: reg,
		pending:  pend,
		commands: commands,
		started:  time.Now(),
		log:      logger,
		upgrader: websocket.Upgrader{
			// Node agents are not browsers; origin checks do not apply.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// NewSession creates a session bound to this server's shared state.
// Exposed for tests that drive a session over an in-memory transport.
func (s *Server) NewSession() *Session {
	return &Session{
		registry: s.registry,
		pending:  s.pending,
		commands: s.commands,
		started:  s.started,
		cfg:      s.cfg,
		log:      s.log,
	}
}

// Handler returns the HTTP handler for the RPC listener.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(RPCPath, s.handleRPC)
	return mux
}

func (s *Server) handleRPC(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn().Err(err).Str("remote", r.RemoteAddr).Msg("websocket upgrade failed")
		return
	}
	s.log.Debug().Str("remote", r.RemoteAddr).Msg("node stream opened")
	s.NewSession().Run(NewWSTransport(conn))
}
