package ws

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10

	// base64 attachments ride inside the frame
	maxMessageSize = 10 << 20

	sendBufferSize = 256
)

// ConnInfo carries connection metadata for observability events.
type ConnInfo struct {
	ConnID      string
	IP          string
	RequestID   string
	TraceID     string
	ConnectedAt time.Time
}

// Client is one session: a physical connection bound to an identity and a
// group (or the global room). It lives exactly as long as the connection.
type Client struct {
	conn     *websocket.Conn
	send     chan []byte
	userID   int64
	username string
	groupID  int64
	global   bool
	info     ConnInfo
	onClose  func()

	mu          sync.Mutex
	closed      bool
	closeReason string
}

func newClient(conn *websocket.Conn, userID int64, username string, groupID int64, global bool, info ConnInfo) *Client {
	return &Client{
		conn:     conn,
		send:     make(chan []byte, sendBufferSize),
		userID:   userID,
		username: username,
		groupID:  groupID,
		global:   global,
		info:     info,
	}
}

// Anonymous reports whether the session has no authenticated identity.
func (c *Client) Anonymous() bool {
	return c.userID == 0
}

func (c *Client) kind() string {
	if c.global {
		return "room"
	}
	return "group"
}

// setCloseReason records why the session is ending. The first recorded
// reason wins; later teardown paths keep it.
func (c *Client) setCloseReason(reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closeReason == "" {
		c.closeReason = reason
	}
}

// CloseReason reports why the session ended, or "" when unknown.
func (c *Client) CloseReason() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closeReason
}

// enqueue hands a serialized event to the session's write pump without
// blocking. Returns false when the session is closed or its buffer is full.
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

// Close tears the session down: the send channel and connection are closed
// and the registered teardown hook runs. Safe to call multiple times.
func (c *Client) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	c.mu.Unlock()

	if c.conn != nil {
		c.conn.Close()
	}
	if c.onClose != nil {
		c.onClose()
	}
}

// readPump reads one frame at a time and dispatches it synchronously, so
// mutations from one client are serialized. It returns when the connection
// drops for any reason; teardown is unconditional.
func (c *Client) readPump(ctx context.Context, dispatch func(context.Context, *Client, []byte)) {
	defer c.Close()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			c.setCloseReason(err.Error())
			return
		}
		dispatch(ctx, c, raw)
	}
}

// writePump drains the send buffer onto the connection and keeps the
// connection alive with pings.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case payload, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
