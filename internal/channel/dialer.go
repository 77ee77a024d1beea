package channel

import (
	"context"

	"github.com/gorilla/websocket"
)

// Conn is the subset of a websocket connection the client needs.
type Conn interface {
	ReadMessage() ([]byte, error)
	WriteJSON(v any) error
	Close() error
}

// Dialer opens the channel. Injected so the state machine is testable
// without network I/O.
type Dialer interface {
	Dial(ctx context.Context, url string) (Conn, error)
}

// WebsocketDialer is the production Dialer backed by gorilla/websocket.
type WebsocketDialer struct{}

// Dial opens a websocket connection to url.
func (WebsocketDialer) Dial(ctx context.Context, url string) (Conn, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, err
	}
	return wsConn{conn}, nil
}

type wsConn struct {
	*websocket.Conn
}

// ReadMessage drops the websocket frame type; the protocol is all text.
func (c wsConn) ReadMessage() ([]byte, error) {
	_, data, err := c.Conn.ReadMessage()
	return data, err
}
