package coordinator

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/dockhand/dockhand/pkg/config"
	"github.com/dockhand/dockhand/pkg/protocol"
	"github.com/dockhand/dockhand/pkg/session"
)

func startCoordinator(t *testing.T) *Coordinator {
	t.Helper()
	cfg := config.Default()
	cfg.RPC.Addr = "127.0.0.1:0"
	cfg.API.Addr = "127.0.0.1:0"

	coord := New(cfg, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	finished := make(chan error, 1)
	go func() { finished <- coord.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case err := <-finished:
			require.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Error("coordinator did not shut down")
		}
	})

	select {
	case <-coord.Ready():
	case <-time.After(5 * time.Second):
		t.Fatal("coordinator never became ready")
	}
	return coord
}

func TestEndToEndListRoundTrip(t *testing.T) {
	coord := startCoordinator(t)

	rpcURL := fmt.Sprintf("ws://%s%s", coord.RPCAddr(), session.RPCPath)
	node, _, err := websocket.DefaultDialer.Dial(rpcURL, nil)
	require.NoError(t, err)
	defer node.Close()

	require.NoError(t, node.WriteJSON(protocol.AuthEnvelope("n1", "pw")))
	go func() {
		for {
			var env protocol.Envelope
			if err := node.ReadJSON(&env); err != nil {
				return
			}
			if env.NodeCommand == nil || env.NodeCommand.GetNodeContainers == nil {
				continue
			}
			node.WriteJSON(protocol.ResponseEnvelope(&protocol.NodeResponse{
				NodeContainers: &protocol.NodeContainers{
					Containers: []string{"alpha", "beta"},
					RequestKey: protocol.ValueKey(protocol.RequestGetContainers,
						env.NodeCommand.GetNodeContainers.RequestID),
				},
			}))
		}
	}()

	apiURL := fmt.Sprintf("http://%s/api/containers?node_id=n1&password=pw", coord.APIAddr())

	// The session registers presence asynchronously after auth; retry
	// until the round trip succeeds.
	var body map[string]any
	require.Eventually(t, func() bool {
		resp, err := http.Get(apiURL)
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return false
		}
		return json.NewDecoder(resp.Body).Decode(&body) == nil
	}, 5*time.Second, 100*time.Millisecond)

	require.Equal(t, []any{"alpha", "beta"}, body["containers"])
	require.NotEmpty(t, body["id"])
}

func TestHealthEndpointServed(t *testing.T) {
	coord := startCoordinator(t)

	resp, err := http.Get(fmt.Sprintf("http://%s/healthz", coord.APIAddr()))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestBindFailureSurfacesError(t *testing.T) {
	cfg := config.Default()
	cfg.RPC.Addr = "127.0.0.1:0"
	cfg.API.Addr = "256.256.256.256:0" // unparseable host

	err := New(cfg, zerolog.Nop()).Run(context.Background())
	require.Error(t, err)
}
