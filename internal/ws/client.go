package ws

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Client is one websocket connection. Outbound frames are queued on a
// bounded buffer and written by WritePump; Hub never writes to the socket.
type Client struct {
	conn *websocket.Conn
	info ConnInfo
	send chan []byte

	mu     sync.Mutex
	closed bool
}

// NewClient wraps conn with a send buffer of the given size.
func NewClient(conn *websocket.Conn, info ConnInfo, buffer int) *Client {
	return &Client{conn: conn, info: info, send: make(chan []byte, buffer)}
}

// ID returns the connection id.
func (c *Client) ID() string { return c.info.ConnID }

// Info returns the connection metadata.
func (c *Client) Info() ConnInfo { return c.info }

// enqueue queues payload without blocking; false means the buffer is full or
// the client is closed.
func (c *Client) enqueue(payload []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- payload:
		return true
	default:
		return false
	}
}

func (c *Client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

// WritePump writes queued frames and pings until the send buffer is closed
// or a write fails. Every write is bounded by writeWait.
func (c *Client) WritePump(writeWait, pingPeriod time.Duration) error {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case payload, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				// Unblocks the read loop so the session is torn down.
				return c.conn.Close()
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return err
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return err
			}
		}
	}
}

// ReadLoop reads frames until the peer goes away, handing each to handle.
// Commands of one connection are therefore processed strictly in order.
func (c *Client) ReadLoop(pongWait time.Duration, maxMessageSize int64, handle func([]byte)) error {
	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		_, payload, err := c.conn.ReadMessage()
		if err != nil {
			return err
		}
		handle(payload)
	}
}
