package session

import (
	"context"
	"errors"

	"nhooyr.io/websocket"
)

// ErrClosed is returned by Transport.Read once the peer has closed the
// connection normally.
var ErrClosed = errors.New("session: transport closed")

// Transport is the minimal connection surface Router needs. Abstracting
// it away from *websocket.Conn lets router tests drive the dispatch
// logic (spec.md §8 invariants 9-10, scenario E) against an in-memory
// fake instead of a real socket; the end-to-end scenarios still exercise
// the real wsTransport over httptest.
type Transport interface {
	Read(ctx context.Context) ([]byte, error)
	Write(ctx context.Context, data []byte) error
}

// wsTransport adapts a *websocket.Conn (nhooyr.io/websocket, the
// teacher's transport library) to Transport.
type wsTransport struct {
	conn *websocket.Conn
}

// NewWSTransport wraps an accepted WebSocket connection for use with Router.Serve.
func NewWSTransport(conn *websocket.Conn) Transport {
	return wsTransport{conn: conn}
}

func (t wsTransport) Read(ctx context.Context) ([]byte, error) {
	_, data, err := t.conn.Read(ctx)
	if err != nil {
		status := websocket.CloseStatus(err)
		if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
			return nil, ErrClosed
		}
		return nil, err
	}
	return data, nil
}

func (t wsTransport) Write(ctx context.Context, data []byte) error {
	return t.conn.Write(ctx, websocket.MessageText, data)
}
