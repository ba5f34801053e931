package gateway

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/dockhand/dockhand/pkg/bus"
	"github.com/dockhand/dockhand/pkg/metrics"
	"github.com/dockhand/dockhand/pkg/pending"
	"github.com/dockhand/dockhand/pkg/registry"
)

// Deadlines holds the per-operation reply deadlines. Zero fields fall
// back to the defaults.
type Deadlines struct {
	List   time.Duration
	Status time.Duration
	Action time.Duration
	Logs   time.Duration
}

// DefaultDeadlines returns the standard reply deadlines: 10s for list,
// lifecycle, and log operations, 5s for a single-container status
// probe.
func DefaultDeadlines() Deadlines {
	return Deadlines{
		List:   10 * time.Second,
		Status: 5 * time.Second,
		Action: 10 * time.Second,
		Logs:   10 * time.Second,
	}
}

func (d Deadlines) withDefaults() Deadlines {
	def := DefaultDeadlines()
	if d.List <= 0 {
		d.List = def.List
	}
	if d.Status <= 0 {
		d.Status = def.Status
	}
	if d.Action <= 0 {
		d.Action = def.Action
	}
	if d.Logs <= 0 {
		d.Logs = def.Logs
	}
	return d
}

// Config carries the facade's tunables.
type Config struct {
	Deadlines Deadlines
}

// Gateway is the user-facing HTTP surface: the REST container API and
// the /observe-containers websocket. It shares the presence registry,
// pending table, and command bus with the node RPC server.
type Gateway struct {
	deadlines Deadlines
	registry  *registry.Registry
	pending   *pending.Table
	commands  *bus.Broadcaster[bus.OutboundRequest]
	log       zerolog.Logger
	upgrader  websocket.Upgrader
}

// New creates the HTTP facade over the coordinator's shared state.
func New(cfg Config, reg *registry.Registry, pend *pending.Table,
	commands *bus.Broadcaster[bus.OutboundRequest], logger zerolog.Logger) *Gateway {
	return &Gateway{
		deadlines: cfg.Deadlines.withDefaults(),
		registry:  reg,
		pending:   pend,
		commands:  commands,
		log:       logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// Router builds the gin engine with all facade routes mounted.
func (g *Gateway) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), observeRequest)

	api := r.Group("/api")
	{
		api.GET("/containers", g.listContainers)
		api.GET("/containers/with-status", g.listContainersWithStatus)
		api.GET("/containers/:container_id/status", g.containerStatus)
		api.POST("/containers/:container_id/start", g.containerAction("start", startCommand))
		api.POST("/containers/:container_id/stop", g.containerAction("stop", stopCommand))
		api.DELETE("/containers/:container_id", g.containerAction("delete", deleteCommand))
		api.GET("/containers/:container_id/logs", g.containerLogs)
	}

	r.GET("/observe-containers", g.observeContainers)
	r.GET("/healthz", g.healthz)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func (g *Gateway) healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"nodes":  g.registry.Len(),
	})
}

// observeRequest records request counts and latency per method.
func observeRequest(c *gin.Context) {
	start := time.Now()
	c.Next()
	metrics.APIRequestDuration.WithLabelValues(c.Request.Method).
		Observe(time.Since(start).Seconds())
	metrics.APIRequestsTotal.WithLabelValues(c.Request.Method,
		strconv.Itoa(c.Writer.Status())).Inc()
}
