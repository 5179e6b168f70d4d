package server

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/room4-2/voicechat/messages"
)

const (
	writeBufferSize = 256
	writeTimeout    = 10 * time.Second
	maxMessageSize  = 512 * 1024
	maxHistoryTurns = 40
	inboxSize       = 16
)

type outbound struct {
	kind int
	data []byte
}

type inbound struct {
	kind int
	data []byte
}

// Connection represents a single chat client on /ws
type Connection struct {
	ID           string
	Conn         *websocket.Conn
	CreatedAt    time.Time
	LastActivity time.Time

	history   []messages.Turn
	keepAlive time.Duration

	// Use channels for non-blocking writes
	writeChan chan outbound
	// frames waiting for the handler, read on while it works
	inbox chan inbound

	mu        sync.RWMutex
	closed    bool
	CloseChan chan struct{}
	ctx       context.Context
	cancel    context.CancelFunc
}

// NewConnection wraps an upgraded websocket
func NewConnection(id string, conn *websocket.Conn, keepAlive time.Duration) *Connection {
	ctx, cancel := context.WithCancel(context.Background())

	conn.SetReadLimit(maxMessageSize)
	conn.EnableWriteCompression(true)

	return &Connection{
		ID:           id,
		Conn:         conn,
		CreatedAt:    time.Now(),
		LastActivity: time.Now(),
		keepAlive:    keepAlive,
		writeChan:    make(chan outbound, writeBufferSize),
		inbox:        make(chan inbound, inboxSize),
		CloseChan:    make(chan struct{}),
		ctx:          ctx,
		cancel:       cancel,
	}
}

// Start runs the write pump, the read loop and the handler worker until
// the client goes away. handle is called for every frame, one at a time
// and in arrival order, while the read loop keeps answering keep-alives.
func (c *Connection) Start(handle func(ctx context.Context, kind int, data []byte)) {
	go c.writePump()
	go c.worker(handle)
	go c.readLoop()
}

func (c *Connection) readLoop() {
	defer c.Close()

	if c.keepAlive > 0 {
		c.extendDeadline()
		c.Conn.SetPongHandler(func(string) error {
			c.extendDeadline()
			return nil
		})
	}

	for {
		kind, data, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Printf("❌ [%s] Read error: %v", c.ID[:8], err)
			}
			return
		}
		c.touch()
		if c.keepAlive > 0 {
			c.extendDeadline()
		}

		select {
		case c.inbox <- inbound{kind: kind, data: data}:
		case <-c.CloseChan:
			return
		}
	}
}

// worker runs the handler for queued frames in order
func (c *Connection) worker(handle func(ctx context.Context, kind int, data []byte)) {
	for {
		select {
		case <-c.CloseChan:
			return
		case frame := <-c.inbox:
			handle(c.ctx, frame.kind, frame.data)
		}
	}
}

func (c *Connection) extendDeadline() {
	_ = c.Conn.SetReadDeadline(time.Now().Add(2 * c.keepAlive))
}

// writePump handles all outgoing frames in a single goroutine
func (c *Connection) writePump() {
	var ping <-chan time.Time
	if c.keepAlive > 0 {
		ticker := time.NewTicker(c.keepAlive)
		defer ticker.Stop()
		ping = ticker.C
	}

	defer func() {
		// Send close message before exiting
		_ = c.Conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		_ = c.Conn.WriteMessage(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		)
		c.Conn.Close()
	}()

	for {
		select {
		case <-c.CloseChan:
			return
		case <-ping:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.Close()
				return
			}
		case msg := <-c.writeChan:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.Conn.WriteMessage(msg.kind, msg.data); err != nil {
				c.Close()
				return
			}
		}
	}
}

// Send queues a JSON frame (non-blocking)
func (c *Connection) Send(v any) {
	data, err := messages.Encode(v)
	if err != nil {
		log.Printf("❌ [%s] %v", c.ID[:8], err)
		return
	}
	c.queue(outbound{kind: websocket.TextMessage, data: data})
}

// SendBinary queues a raw audio frame (non-blocking)
func (c *Connection) SendBinary(data []byte) {
	c.queue(outbound{kind: websocket.BinaryMessage, data: data})
}

func (c *Connection) queue(msg outbound) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return
	}
	select {
	case c.writeChan <- msg:
	default:
		log.Printf("⚠️ [%s] Write queue full, dropping frame", c.ID[:8])
	}
}

func (c *Connection) touch() {
	c.mu.Lock()
	c.LastActivity = time.Now()
	c.mu.Unlock()
}

// IdleSince returns the time of the last frame received
func (c *Connection) IdleSince() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.LastActivity
}

// History returns a copy of the conversation so far
func (c *Connection) History() []messages.Turn {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]messages.Turn(nil), c.history...)
}

// Remember appends an exchange, dropping the oldest turns past the limit
func (c *Connection) Remember(userText, agentText string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.history = append(c.history,
		messages.Turn{Role: messages.TurnUser, Text: userText},
		messages.Turn{Role: messages.TurnAgent, Text: agentText},
	)
	if over := len(c.history) - maxHistoryTurns; over > 0 {
		c.history = c.history[over:]
	}
}

// IsClosed reports whether Close was called
func (c *Connection) IsClosed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.closed
}

// Close terminates the connection, the write pump sends the close frame
func (c *Connection) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	c.cancel()

	// Signal close (for other goroutines waiting on this)
	close(c.CloseChan)
	return nil
}
