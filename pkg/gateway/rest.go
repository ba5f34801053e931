package gateway

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/dockhand/dockhand/pkg/bus"
	"github.com/dockhand/dockhand/pkg/metrics"
	"github.com/dockhand/dockhand/pkg/pending"
	"github.com/dockhand/dockhand/pkg/protocol"
)

// apiError is the error body shared by all failure responses that
// carry a request id.
type apiError struct {
	ReqUUID string       `json:"req_uuid"`
	Error   errorDetails `json:"error"`
}

type errorDetails struct {
	Message string `json:"message"`
	Detail  string `json:"detail,omitempty"`
}

// credentials extracts the mandatory node_id/password query pair,
// answering 400 itself when either is missing.
func credentials(c *gin.Context) (nodeID, password string, ok bool) {
	nodeID = c.Query("node_id")
	password = c.Query("password")
	if nodeID == "" || password == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "node_id and password query parameters are required",
		})
		return "", "", false
	}
	return nodeID, password, true
}

// roundTrip runs the common request/reply cycle: allocate a request id,
// register a pending slot, publish the command, and await the node's
// reply within the deadline. It writes the HTTP error response itself
// on every failure path and returns ok=false; the caller only renders
// the success body.
func (g *Gateway) roundTrip(c *gin.Context, typ protocol.RequestType,
	deadline time.Duration, build func(requestID string) *protocol.NodeCommand,
) (reply *protocol.NodeResponse, requestID string, ok bool) {
	nodeID, password, ok := credentials(c)
	if !ok {
		return nil, "", false
	}

	requestID = uuid.NewString()
	key := pending.Key{RequestID: requestID, Type: typ}
	replyCh, inserted := g.pending.Insert(key)
	if !inserted {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to send request to server"})
		return nil, requestID, false
	}
	metrics.PendingRequests.Inc()

	err := g.commands.Publish(bus.OutboundRequest{
		NodeID:   nodeID,
		Password: password,
		Envelope: protocol.CommandEnvelope(build(requestID)),
	})
	if err != nil {
		g.pending.Remove(key)
		metrics.PendingRequests.Dec()
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to send request to server"})
		return nil, requestID, false
	}

	timer := time.NewTimer(deadline)
	defer timer.Stop()

	select {
	case env, open := <-replyCh:
		if !open {
			// The slot was torn down without a reply.
			c.JSON(http.StatusInternalServerError, apiError{
				ReqUUID: requestID,
				Error: errorDetails{
					Message: "Response channel closed",
					Detail:  "Node dropped oneshot channel",
				},
			})
			return nil, requestID, false
		}
		resp := env.NodeResponse
		if resp != nil && resp.Error != nil {
			c.JSON(http.StatusBadRequest, apiError{
				ReqUUID: requestID,
				Error:   errorDetails{Message: "Node error", Detail: resp.Error.Message},
			})
			return nil, requestID, false
		}
		return resp, requestID, true

	case <-timer.C:
		g.pending.Remove(key)
		metrics.PendingRequests.Dec()
		c.JSON(http.StatusRequestTimeout, apiError{
			ReqUUID: requestID,
			Error: errorDetails{
				Message: "Timeout waiting for node response",
				Detail:  fmt.Sprintf("node %q did not reply within %s", nodeID, deadline),
			},
		})
		return nil, requestID, false
	}
}

// unexpectedReply answers 500 when the node sent a reply of the wrong
// kind for the request it correlates to.
func unexpectedReply(c *gin.Context, requestID string) {
	c.JSON(http.StatusInternalServerError, apiError{
		ReqUUID: requestID,
		Error:   errorDetails{Message: "Unexpected node response"},
	})
}

func (g *Gateway) listContainers(c *gin.Context) {
	reply, id, ok := g.roundTrip(c, protocol.RequestGetContainers, g.deadlines.List,
		func(requestID string) *protocol.NodeCommand {
			return &protocol.NodeCommand{
				GetNodeContainers: &protocol.GetNodeContainers{RequestID: requestID},
			}
		})
	if !ok {
		return
	}
	if reply == nil || reply.NodeContainers == nil {
		unexpectedReply(c, id)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"id":         id,
		"containers": reply.NodeContainers.Containers,
	})
}

func (g *Gateway) listContainersWithStatus(c *gin.Context) {
	reply, id, ok := g.roundTrip(c, protocol.RequestGetContainersWithStatus, g.deadlines.List,
		func(requestID string) *protocol.NodeCommand {
			return &protocol.NodeCommand{
				GetNodeContainersWithStatus: &protocol.GetNodeContainersWithStatus{RequestID: requestID},
			}
		})
	if !ok {
		return
	}
	if reply == nil || reply.NodeContainersWithStatus == nil {
		unexpectedReply(c, id)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"id":         id,
		"containers": reply.NodeContainersWithStatus.Containers,
	})
}

func (g *Gateway) containerStatus(c *gin.Context) {
	containerID := c.Param("container_id")
	reply, id, ok := g.roundTrip(c, protocol.RequestGetContainerStatus, g.deadlines.Status,
		func(requestID string) *protocol.NodeCommand {
			return &protocol.NodeCommand{
				GetContainerStatus: &protocol.GetContainerStatus{
					RequestID:   requestID,
					ContainerID: containerID,
				},
			}
		})
	if !ok {
		return
	}
	if reply == nil || reply.ContainerStatus == nil {
		unexpectedReply(c, id)
		return
	}
	st := reply.ContainerStatus
	c.JSON(http.StatusOK, gin.H{
		"id":           id,
		"container_id": containerID,
		"status": gin.H{
			"status":      st.Status,
			"created":     st.Created,
			"started_at":  st.StartedAt,
			"finished_at": st.FinishedAt,
			"exit_code":   st.ExitCode,
		},
	})
}

func startCommand(requestID, containerID string) *protocol.NodeCommand {
	return &protocol.NodeCommand{
		StartContainer: &protocol.StartContainer{RequestID: requestID, ContainerID: containerID},
	}
}

func stopCommand(requestID, containerID string) *protocol.NodeCommand {
	return &protocol.NodeCommand{
		StopContainer: &protocol.StopContainer{RequestID: requestID, ContainerID: containerID},
	}
}

func deleteCommand(requestID, containerID string) *protocol.NodeCommand {
	return &protocol.NodeCommand{
		DeleteContainer: &protocol.DeleteContainer{RequestID: requestID, ContainerID: containerID},
	}
}

var actionTypes = map[string]protocol.RequestType{
	"start":  protocol.RequestStartContainer,
	"stop":   protocol.RequestStopContainer,
	"delete": protocol.RequestDeleteContainer,
}

// containerAction builds the shared handler for start/stop/delete.
func (g *Gateway) containerAction(action string,
	build func(requestID, containerID string) *protocol.NodeCommand) gin.HandlerFunc {
	typ := actionTypes[action]
	return func(c *gin.Context) {
		containerID := c.Param("container_id")
		reply, id, ok := g.roundTrip(c, typ, g.deadlines.Action,
			func(requestID string) *protocol.NodeCommand {
				return build(requestID, containerID)
			})
		if !ok {
			return
		}
		if reply == nil || reply.ContainerAction == nil {
			unexpectedReply(c, id)
			return
		}
		act := reply.ContainerAction
		c.JSON(http.StatusOK, gin.H{
			"id":           id,
			"container_id": containerID,
			"action":       action,
			"result": gin.H{
				"container_id": act.ContainerID,
				"action":       act.Action,
				"message":      act.Message,
			},
		})
	}
}

func (g *Gateway) containerLogs(c *gin.Context) {
	containerID := c.Param("container_id")

	tail := 100
	if raw := c.Query("tail"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "tail must be a non-negative integer"})
			return
		}
		tail = n
	}
	follow := false
	if raw := c.Query("follow"); raw != "" {
		b, err := strconv.ParseBool(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "follow must be a boolean"})
			return
		}
		follow = b
	}
	since := c.Query("since")

	reply, id, ok := g.roundTrip(c, protocol.RequestGetContainerLogs, g.deadlines.Logs,
		func(requestID string) *protocol.NodeCommand {
			return &protocol.NodeCommand{
				GetContainerLogs: &protocol.GetContainerLogs{
					RequestID:   requestID,
					ContainerID: containerID,
					Tail:        tail,
					Follow:      follow,
					Since:       since,
				},
			}
		})
	if !ok {
		return
	}
	if reply == nil || reply.ContainerLogs == nil {
		unexpectedReply(c, id)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"id":           id,
		"container_id": containerID,
		"logs": gin.H{
			"container_id": reply.ContainerLogs.ContainerID,
			"logs":         reply.ContainerLogs.Logs,
		},
	})
}
