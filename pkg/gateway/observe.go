package gateway

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/dockhand/dockhand/pkg/bus"
	"github.com/dockhand/dockhand/pkg/metrics"
	"github.com/dockhand/dockhand/pkg/protocol"
	"github.com/dockhand/dockhand/pkg/registry"
)

// containersFrame is the only frame shape /observe-containers emits.
type containersFrame struct {
	Containers []string `json:"containers"`
}

// observeContainers streams the node's container list to a websocket
// client: one frame for the primed initial snapshot, then one per
// spontaneous update pushed by the node.
func (g *Gateway) observeContainers(c *gin.Context) {
	nodeID, password, ok := credentials(c)
	if !ok {
		return
	}

	conn, err := g.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		g.log.Warn().Err(err).Msg("observer upgrade failed")
		return
	}
	defer conn.Close()

	events, ok := g.registry.Lookup(registry.Key{NodeID: nodeID, Password: password})
	if !ok {
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "unknown node"))
		return
	}

	sub := events.Subscribe()
	defer sub.Cancel()

	metrics.WSObservers.Inc()
	defer metrics.WSObservers.Dec()

	// Prime an initial snapshot. No pending entry is registered, so the
	// reply falls through correlation and arrives on the event bus.
	g.commands.Publish(bus.OutboundRequest{
		NodeID:   nodeID,
		Password: password,
		Envelope: protocol.CommandEnvelope(&protocol.NodeCommand{
			GetNodeContainers: &protocol.GetNodeContainers{RequestID: uuid.NewString()},
		}),
	})

	// Read pump: drains control frames (the default ping handler pongs)
	// and detects the client going away.
	clientGone := make(chan struct{})
	go func() {
		defer close(clientGone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	var seenDrops uint64
	for {
		select {
		case env, open := <-sub.C:
			if !open {
				// Node disconnected; the session closed its event bus.
				conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "node disconnected"))
				return
			}
			if dropped := sub.Dropped(); dropped > seenDrops {
				g.log.Warn().Uint64("dropped", dropped-seenDrops).
					Str("node_id", nodeID).Msg("observer lagging, updates dropped")
				seenDrops = dropped
			}
			frame, ok := containerList(env)
			if !ok {
				continue
			}
			if err := conn.WriteJSON(frame); err != nil {
				g.log.Debug().Err(err).Msg("observer write failed")
				return
			}

		case <-clientGone:
			return
		}
	}
}

// containerList extracts the container list from envelopes the observer
// cares about: NodeContainers replies to a list request and spontaneous
// container-info updates. Everything else is skipped.
func containerList(env *protocol.Envelope) (containersFrame, bool) {
	if env == nil || env.NodeResponse == nil || env.NodeResponse.NodeContainers == nil {
		return containersFrame{}, false
	}
	nc := env.NodeResponse.NodeContainers
	if nc.RequestKey == nil {
		return containersFrame{}, false
	}
	switch nc.RequestKey.RequestType {
	case protocol.RequestGetContainers, protocol.RequestUpdateContainerInfo:
		return containersFrame{Containers: nc.Containers}, true
	}
	return containersFrame{}, false
}
