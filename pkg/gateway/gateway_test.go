package gateway

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/dockhand/dockhand/pkg/bus"
	"github.com/dockhand/dockhand/pkg/pending"
	"github.com/dockhand/dockhand/pkg/protocol"
	"github.com/dockhand/dockhand/pkg/registry"
	"github.com/dockhand/dockhand/pkg/session"
)

// stack wires a real RPC server and the HTTP facade over shared state,
// with fake nodes connecting over an actual websocket.
type stack struct {
	registry *registry.Registry
	pending  *pending.Table
	commands *bus.Broadcaster[bus.OutboundRequest]
	gateway  *Gateway
	rpcURL   string
}

func newStack(t *testing.T, d Deadlines) *stack {
	t.Helper()
	reg := registry.New()
	pend := pending.NewTable()
	commands := bus.New[bus.OutboundRequest](64)

	rpc := httptest.NewServer(session.NewServer(
		session.Config{OutboundCapacity: 8, EventBusCapacity: 8},
		reg, pend, commands, zerolog.Nop()).Handler())
	t.Cleanup(rpc.Close)

	return &stack{
		registry: reg,
		pending:  pend,
		commands: commands,
		gateway:  New(Config{Deadlines: d}, reg, pend, commands, zerolog.Nop()),
		rpcURL:   "ws" + strings.TrimPrefix(rpc.URL, "http") + session.RPCPath,
	}
}

// connectNode dials the RPC endpoint and authenticates, then answers
// every incoming command with handle until the connection closes.
func (s *stack) connectNode(t *testing.T, nodeID, password string,
	handle func(cmd *protocol.NodeCommand) *protocol.NodeResponse) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(s.rpcURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	require.NoError(t, conn.WriteJSON(protocol.AuthEnvelope(nodeID, password)))
	require.Eventually(t, func() bool {
		_, ok := s.registry.Lookup(registry.Key{NodeID: nodeID, Password: password})
		return ok
	}, 2*time.Second, 5*time.Millisecond, "node never authenticated")

	if handle != nil {
		go func() {
			for {
				var env protocol.Envelope
				if err := conn.ReadJSON(&env); err != nil {
					return
				}
				if env.NodeCommand == nil {
					continue
				}
				if resp := handle(env.NodeCommand); resp != nil {
					if err := conn.WriteJSON(protocol.ResponseEnvelope(resp)); err != nil {
						return
					}
				}
			}
		}()
	}
	return conn
}

func do(t *testing.T, g *Gateway, method, path string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, nil)
	g.Router().ServeHTTP(w, req)
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body), "body: %s", w.Body.String())
	return w, body
}

func TestListContainers(t *testing.T) {
	s := newStack(t, Deadlines{})
	s.connectNode(t, "n1", "pw", func(cmd *protocol.NodeCommand) *protocol.NodeResponse {
		require.NotNil(t, cmd.GetNodeContainers)
		return &protocol.NodeResponse{NodeContainers: &protocol.NodeContainers{
			Containers: []string{"alpha", "beta"},
			RequestKey: protocol.ValueKey(protocol.RequestGetContainers, cmd.GetNodeContainers.RequestID),
		}}
	})

	w, body := do(t, s.gateway, http.MethodGet, "/api/containers?node_id=n1&password=pw")
	require.Equal(t, http.StatusOK, w.Code)
	require.NotEmpty(t, body["id"])
	require.Equal(t, []any{"alpha", "beta"}, body["containers"])
	require.Equal(t, 0, s.pending.Len())
}

func TestUnknownNodeTimesOut(t *testing.T) {
	s := newStack(t, Deadlines{List: 100 * time.Millisecond})

	start := time.Now()
	w, body := do(t, s.gateway, http.MethodGet, "/api/containers?node_id=ghost&password=x")
	elapsed := time.Since(start)

	require.Equal(t, http.StatusRequestTimeout, w.Code)
	require.NotEmpty(t, body["req_uuid"])
	errObj := body["error"].(map[string]any)
	require.Equal(t, "Timeout waiting for node response", errObj["message"])
	require.GreaterOrEqual(t, elapsed, 100*time.Millisecond)
	require.Less(t, elapsed, time.Second)
	require.Equal(t, 0, s.pending.Len(), "timed-out entry must be removed")
}

func TestNodeErrorMapsTo400(t *testing.T) {
	s := newStack(t, Deadlines{})
	s.connectNode(t, "n1", "pw", func(cmd *protocol.NodeCommand) *protocol.NodeResponse {
		require.NotNil(t, cmd.StartContainer)
		return &protocol.NodeResponse{Error: &protocol.NodeError{
			Message:    "no such container",
			RequestKey: protocol.ValueKey(protocol.RequestStartContainer, cmd.StartContainer.RequestID),
		}}
	})

	w, body := do(t, s.gateway, http.MethodPost, "/api/containers/c1/start?node_id=n1&password=pw")
	require.Equal(t, http.StatusBadRequest, w.Code)
	errObj := body["error"].(map[string]any)
	require.Equal(t, "Node error", errObj["message"])
	require.Equal(t, "no such container", errObj["detail"])
}

func TestContainerStatusBody(t *testing.T) {
	s := newStack(t, Deadlines{})
	s.connectNode(t, "n1", "pw", func(cmd *protocol.NodeCommand) *protocol.NodeResponse {
		require.NotNil(t, cmd.GetContainerStatus)
		require.Equal(t, "c1", cmd.GetContainerStatus.ContainerID)
		return &protocol.NodeResponse{ContainerStatus: &protocol.ContainerStatus{
			ContainerID: "c1",
			Status:      "running",
			Created:     1700000000,
			StartedAt:   1700000100,
			ExitCode:    0,
			RequestKey:  protocol.ValueKey(protocol.RequestGetContainerStatus, cmd.GetContainerStatus.RequestID),
		}}
	})

	w, body := do(t, s.gateway, http.MethodGet, "/api/containers/c1/status?node_id=n1&password=pw")
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "c1", body["container_id"])
	st := body["status"].(map[string]any)
	require.Equal(t, "running", st["status"])
	require.EqualValues(t, 1700000000, st["created"])
	require.EqualValues(t, 1700000100, st["started_at"])
}

func TestStopActionBody(t *testing.T) {
	s := newStack(t, Deadlines{})
	s.connectNode(t, "n1", "pw", func(cmd *protocol.NodeCommand) *protocol.NodeResponse {
		require.NotNil(t, cmd.StopContainer)
		return &protocol.NodeResponse{ContainerAction: &protocol.ContainerAction{
			ContainerID: "c1",
			Action:      "stop",
			Message:     "Container stopped successfully",
			RequestKey:  protocol.ValueKey(protocol.RequestStopContainer, cmd.StopContainer.RequestID),
		}}
	})

	w, body := do(t, s.gateway, http.MethodPost, "/api/containers/c1/stop?node_id=n1&password=pw")
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "stop", body["action"])
	result := body["result"].(map[string]any)
	require.Equal(t, "Container stopped successfully", result["message"])
}

func TestContainerLogsPassesOptions(t *testing.T) {
	s := newStack(t, Deadlines{})
	s.connectNode(t, "n1", "pw", func(cmd *protocol.NodeCommand) *protocol.NodeResponse {
		require.NotNil(t, cmd.GetContainerLogs)
		require.Equal(t, 7, cmd.GetContainerLogs.Tail)
		require.Equal(t, "2026-01-01T00:00:00Z", cmd.GetContainerLogs.Since)
		return &protocol.NodeResponse{ContainerLogs: &protocol.ContainerLogs{
			ContainerID: "c1",
			Logs:        []string{"line one", "line two"},
			RequestKey:  protocol.ValueKey(protocol.RequestGetContainerLogs, cmd.GetContainerLogs.RequestID),
		}}
	})

	w, body := do(t, s.gateway, http.MethodGet,
		"/api/containers/c1/logs?node_id=n1&password=pw&tail=7&since=2026-01-01T00:00:00Z")
	require.Equal(t, http.StatusOK, w.Code)
	logs := body["logs"].(map[string]any)
	require.Equal(t, []any{"line one", "line two"}, logs["logs"])
}

func TestMissingCredentials(t *testing.T) {
	s := newStack(t, Deadlines{})
	w, body := do(t, s.gateway, http.MethodGet, "/api/containers")
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Contains(t, body["error"], "node_id")
}

func TestObserveContainers(t *testing.T) {
	s := newStack(t, Deadlines{})

	nodeConn := s.connectNode(t, "n1", "pw", func(cmd *protocol.NodeCommand) *protocol.NodeResponse {
		if cmd.GetNodeContainers == nil {
			return nil
		}
		return &protocol.NodeResponse{NodeContainers: &protocol.NodeContainers{
			Containers: []string{"alpha"},
			RequestKey: protocol.ValueKey(protocol.RequestGetContainers, cmd.GetNodeContainers.RequestID),
		}}
	})

	web := httptest.NewServer(s.gateway.Router())
	defer web.Close()
	wsURL := "ws" + strings.TrimPrefix(web.URL, "http") + "/observe-containers?node_id=n1&password=pw"

	client, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer client.Close()

	client.SetReadDeadline(time.Now().Add(2 * time.Second))
	var snapshot containersFrame
	require.NoError(t, client.ReadJSON(&snapshot))
	require.Equal(t, []string{"alpha"}, snapshot.Containers)

	// The node pushes a spontaneous update.
	require.NoError(t, nodeConn.WriteJSON(protocol.ResponseEnvelope(&protocol.NodeResponse{
		NodeContainers: &protocol.NodeContainers{
			Containers: []string{"alpha", "beta"},
			RequestKey: protocol.UnspecificKey(protocol.RequestUpdateContainerInfo),
		},
	})))

	var update containersFrame
	require.NoError(t, client.ReadJSON(&update))
	require.Equal(t, []string{"alpha", "beta"}, update.Containers)
}

func TestObserveUnknownNodeCloses(t *testing.T) {
	s := newStack(t, Deadlines{})
	web := httptest.NewServer(s.gateway.Router())
	defer web.Close()
	wsURL := "ws" + strings.TrimPrefix(web.URL, "http") + "/observe-containers?node_id=ghost&password=x"

	client, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer client.Close()

	client.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err = client.ReadMessage()
	require.Error(t, err, "server must close the stream for an unknown node")
	require.True(t, websocket.IsCloseError(err, websocket.ClosePolicyViolation))
}

func TestHealthz(t *testing.T) {
	s := newStack(t, Deadlines{})
	w, body := do(t, s.gateway, http.MethodGet, "/healthz")
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "ok", body["status"])
}
