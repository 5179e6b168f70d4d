package session

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

const (
	handshakeTimeout = 10 * time.Second
	readLimit        = 16 * 1024 * 1024 // audio clips arrive as single binary frames
	writeTimeout     = 10 * time.Second
)

// Conn is one realtime connection handle. *websocket.Conn satisfies it.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

// Dialer opens connection handles
type Dialer interface {
	Dial(ctx context.Context, url string) (Conn, error)
}

// WebsocketDialer dials with gorilla/websocket
type WebsocketDialer struct {
	dialer *websocket.Dialer
	header http.Header
}

// NewWebsocketDialer creates a dialer with compression enabled
func NewWebsocketDialer(header http.Header) *WebsocketDialer {
	dialer := *websocket.DefaultDialer
	dialer.HandshakeTimeout = handshakeTimeout
	dialer.ReadBufferSize = 64 * 1024 // 64KB for audio chunks
	dialer.WriteBufferSize = 64 * 1024
	dialer.EnableCompression = true

	return &WebsocketDialer{
		dialer: &dialer,
		header: header,
	}
}

// Dial connects to url and returns the connection handle
func (d *WebsocketDialer) Dial(ctx context.Context, url string) (Conn, error) {
	conn, resp, err := d.dialer.DialContext(ctx, url, d.header)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}

	conn.SetReadLimit(readLimit)
	return conn, nil
}

// readPump forwards every frame of conn to the event loop until the
// connection fails. It never touches controller state directly.
func (c *Controller) readPump(gen uint64, conn Conn) {
	for {
		kind, data, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.post(connErrored{gen: gen, err: &TransportError{Op: "read", Err: err}})
			}
			c.post(connClosed{gen: gen, err: err})
			return
		}
		c.post(frameReceived{gen: gen, kind: kind, data: data})
	}
}

// write sends one frame on the live connection
func (c *Controller) write(kind int, data []byte) error {
	if c.conn == nil {
		return &TransportError{Op: "write", Err: websocket.ErrCloseSent}
	}
	_ = c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	if err := c.conn.WriteMessage(kind, data); err != nil {
		return &TransportError{Op: "write", Err: err}
	}
	return nil
}
