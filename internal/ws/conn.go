package ws

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"nhooyr.io/websocket"
)

type Conn struct {
	ws  *websocket.Conn
	out chan []byte
	id  string
}

// Accept upgrades HTTP to websocket (allow all origins)
func Accept(w http.ResponseWriter, r *http.Request) (*websocket.Conn, error) {
	return websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns:  []string{"*"},
		CompressionMode: websocket.CompressionDisabled,
	})
}

// NewConn wraps a WS connection with a buffered outbound queue and a
// unique connection id used by the presence tracker.
func NewConn(ws *websocket.Conn) *Conn {
	return &Conn{
		ws:  ws,
		out: make(chan []byte, 256),
		id:  uuid.NewString(),
	}
}

// ID is the connection identity the participant counter is keyed on.
func (c *Conn) ID() string { return c.id }

// Read blocks until it receives a text/binary message
// Returns false if connection is closed
func (c *Conn) Read(ctx context.Context) ([]byte, bool) {
	for {
		typ, data, err := c.ws.Read(ctx)
		if err != nil {
			return nil, false
		}
		if typ == websocket.MessageText || typ == websocket.MessageBinary {
			return []byte(data), true
		}
	}
}

// WriteLoop sends outbound messages + periodic pings
// Exits when ctx is cancelled
func (c *Conn) WriteLoop(ctx context.Context) {
	p := 20 * time.Second
	t := time.NewTicker(p)
	defer t.Stop()

	for {
		select {
		case b := <-c.out:
			_ = c.ws.Write(ctx, websocket.MessageText, b)
		case <-t.C:
			_ = c.ws.Ping(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// Close closes the WS connection normally
func (c *Conn) Close() error { return c.ws.Close(websocket.StatusNormalClosure, "bye") }
