package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// Session metrics
	SessionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "dockhand_sessions_active",
			Help: "Number of open node RPC sessions (authenticated or not)",
		},
	)

	NodesRegistered = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "dockhand_nodes_registered",
			Help: "Number of authenticated nodes in the presence registry",
		},
	)

	// Routing metrics
	CommandsRouted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dockhand_commands_routed_total",
			Help: "Commands forwarded to a node session by request type",
		},
		[]string{"type"},
	)

	CommandsDropped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "dockhand_commands_dropped_total",
			Help: "Commands dropped because a session outbound channel was full",
		},
	)

	PendingRequests = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "dockhand_pending_requests",
			Help: "Outstanding request/reply correlations",
		},
	)

	EventsForwarded = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "dockhand_node_events_forwarded_total",
			Help: "Node-originated envelopes published to event buses",
		},
	)

	// API metrics
	APIRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dockhand_api_requests_total",
			Help: "Total number of API requests by method and status",
		},
		[]string{"method", "status"},
	)

	APIRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dockhand_api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)

	WSObservers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "dockhand_ws_observers",
			Help: "Connected /observe-containers WebSocket clients",
		},
	)
)

func init() {
	prometheus.MustRegister(
		SessionsActive,
		NodesRegistered,
		CommandsRouted,
		CommandsDropped,
		PendingRequests,
		EventsForwarded,
		APIRequestsTotal,
		APIRequestDuration,
		WSObservers,
	)
}
