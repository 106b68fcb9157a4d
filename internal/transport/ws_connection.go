package transport

import (
	"context"
	"log/slog"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/nextlevelbuilder/convoke/pkg/protocol"
)

// sendQueueDepth bounds the per-connection outbound queue; a slow reader
// eventually blocks Send rather than growing memory unboundedly.
const sendQueueDepth = 256

// wsConnection is a single duplex websocket connection. Writes go through
// a single writer goroutine draining a channel.
type wsConnection struct {
	conn   *websocket.Conn
	logger *slog.Logger

	outbox chan protocol.Envelope

	mu            sync.Mutex
	closed        bool
	onMessage     Handler
	onClose       CloseHandler
	participantID string
}

func newWSConnection(conn *websocket.Conn, logger *slog.Logger) *wsConnection {
	wc := &wsConnection{
		conn:   conn,
		logger: logger,
		outbox: make(chan protocol.Envelope, sendQueueDepth),
	}
	go wc.writeLoop()
	return wc
}

func (c *wsConnection) OnMessage(h Handler)    { c.onMessage = h }
func (c *wsConnection) OnClose(h CloseHandler) { c.onClose = h }

func (c *wsConnection) Send(ctx context.Context, env protocol.Envelope) error {
	select {
	case c.outbox <- env:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *wsConnection) writeLoop() {
	for env := range c.outbox {
		data, err := protocol.Marshal(env)
		if err != nil {
			c.logger.Error("failed to marshal outbound envelope", "error", err)
			continue
		}
		c.mu.Lock()
		closed := c.closed
		c.mu.Unlock()
		if closed {
			return
		}
		if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			c.logger.Warn("websocket write failed", "error", err)
			return
		}
	}
}

// readLoop parses inbound frames and delivers them to the registered
// handler until the connection closes, then signals the close handler.
func (c *wsConnection) readLoop() {
	defer c.teardown()
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		env, err := protocol.Unmarshal(data)
		if err != nil {
			c.logger.Warn("dropping malformed frame", "error", err)
			continue
		}
		if c.participantID == "" {
			c.participantID = env.Sender
		}
		if c.onMessage != nil {
			c.onMessage(env)
		}
	}
}

func (c *wsConnection) teardown() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()
	close(c.outbox)
	c.conn.Close()
	if c.onClose != nil {
		c.onClose(c.participantID)
	}
}

func (c *wsConnection) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()
	return c.conn.Close()
}

func (c *wsConnection) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.closed
}
