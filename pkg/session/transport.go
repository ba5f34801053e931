package session

import (
	"github.com/gorilla/websocket"

	"github.com/dockhand/dockhand/pkg/protocol"
)

// Transport abstracts the node-facing bidirectional stream so the
// session logic can be exercised without a network in tests. Within one
// transport, messages in each direction are delivered in order.
//
// ReadEnvelope blocks until a message arrives or the stream ends.
// WriteEnvelope must only be called from a single goroutine.
type Transport interface {
	ReadEnvelope() (*protocol.Envelope, error)
	WriteEnvelope(env *protocol.Envelope) error
	Close() error
}

type wsTransport struct {
	conn *websocket.Conn
}

// NewWSTransport wraps a websocket connection as a JSON envelope stream.
func NewWSTransport(conn *websocket.Conn) Transport {
	return &wsTransport{conn: conn}
}

func (t *wsTransport) ReadEnvelope() (*protocol.Envelope, error) {
	var env protocol.Envelope
	if err := t.conn.ReadJSON(&env); err != nil {
		return nil, err
	}
	return &env, nil
}

func (t *wsTransport) WriteEnvelope(env *protocol.Envelope) error {
	return t.conn.WriteJSON(env)
}

func (t *wsTransport) Close() error {
	return t.conn.Close()
}
