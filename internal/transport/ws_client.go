package transport

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nextlevelbuilder/convoke/pkg/protocol"
)

// reconnect policy: exponential backoff, base 1s doubling,
// capped at ten attempts.
const (
	reconnectBase    = time.Second
	reconnectMaxTries = 10
)

// Client is the client-side Transport wrapper: it owns reconnect/backoff
// and exposes the same Transport interface as a server-accepted
// connection, so agent/participant code need not distinguish the two.
type Client struct {
	url    string
	logger *slog.Logger

	mu        sync.Mutex
	conn      *wsConnection
	closed    bool
	onMessage Handler
	onClose   CloseHandler
}

// NewClient dials url and begins the reconnect-supervised connection.
func NewClient(ctx context.Context, url string, logger *slog.Logger) (*Client, error) {
	c := &Client{url: url, logger: logger}
	if err := c.dial(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Client) dial(ctx context.Context) error {
	raw, _, err := websocket.DefaultDialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return err
	}
	conn := newWSConnection(raw, c.logger)
	conn.OnMessage(func(env protocol.Envelope) {
		c.mu.Lock()
		h := c.onMessage
		c.mu.Unlock()
		if h != nil {
			h(env)
		}
	})
	conn.OnClose(func(participantID string) {
		c.mu.Lock()
		closed := c.closed
		c.mu.Unlock()
		if closed {
			return
		}
		c.logger.Warn("client connection dropped, reconnecting", "url", c.url)
		go c.reconnectLoop()
		if c.onClose != nil {
			c.onClose(participantID)
		}
	})
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	go conn.readLoop()
	return nil
}

func (c *Client) reconnectLoop() {
	delay := reconnectBase
	for attempt := 0; attempt < reconnectMaxTries; attempt++ {
		c.mu.Lock()
		closed := c.closed
		c.mu.Unlock()
		if closed {
			return
		}
		time.Sleep(delay)
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		err := c.dial(ctx)
		cancel()
		if err == nil {
			c.logger.Info("client reconnected", "url", c.url, "attempt", attempt+1)
			return
		}
		c.logger.Warn("reconnect attempt failed", "url", c.url, "attempt", attempt+1, "error", err)
		delay *= 2
	}
	c.logger.Error("client exhausted reconnect attempts, giving up", "url", c.url)
}

func (c *Client) Send(ctx context.Context, env protocol.Envelope) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return websocket.ErrCloseSent
	}
	return conn.Send(ctx, env)
}

func (c *Client) OnMessage(h Handler)    { c.mu.Lock(); c.onMessage = h; c.mu.Unlock() }
func (c *Client) OnClose(h CloseHandler) { c.mu.Lock(); c.onClose = h; c.mu.Unlock() }

// Close permanently closes the client and inhibits further reconnects.
func (c *Client) Close() error {
	c.mu.Lock()
	c.closed = true
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return nil
	}
	return conn.Close()
}

func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil && c.conn.IsConnected()
}
