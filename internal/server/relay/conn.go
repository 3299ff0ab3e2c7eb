package relay

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/dmitrijs2005/keyrelay/internal/logging"
	"github.com/dmitrijs2005/keyrelay/internal/server/models"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	// Time allowed to write a frame to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong from the peer.
	pongWait = 60 * time.Second

	// Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Largest inbound frame accepted.
	maxMessageSize = 512 * 1024

	DefaultSendBuffer = 256
)

// conn is one authenticated WebSocket. Only writePump writes to ws and only
// the router's read loop reads from it.
type conn struct {
	id     string
	userID string
	ws     *websocket.Conn
	send   chan []byte
	done   chan struct{}
	once   sync.Once
	log    logging.Logger
}

func newConn(userID string, ws *websocket.Conn, buffer int, log logging.Logger) *conn {
	id := uuid.NewString()
	return &conn{
		id:     id,
		userID: userID,
		ws:     ws,
		send:   make(chan []byte, buffer),
		done:   make(chan struct{}),
		log:    log.With("user_id", userID, "conn_id", id),
	}
}

func (c *conn) ID() string { return c.id }

// Deliver queues a MESSAGE frame without blocking. A peer that cannot keep
// up with its buffer is disconnected.
func (c *conn) Deliver(env models.Envelope) bool {
	data, err := json.Marshal(messageFrame(env))
	if err != nil {
		c.log.Error(context.Background(), "encode message frame", "error", err)
		return false
	}
	return c.offer(data)
}

func (c *conn) offer(data []byte) bool {
	if c.closed() {
		return false
	}
	select {
	case c.send <- data:
		return true
	case <-c.done:
		return false
	default:
		c.log.Warn(context.Background(), "send buffer full, closing slow connection")
		c.close()
		return false
	}
}

// push queues data, waiting for buffer space until the connection closes or
// ctx is done.
func (c *conn) push(ctx context.Context, v any) bool {
	data, err := json.Marshal(v)
	if err != nil {
		c.log.Error(ctx, "encode frame", "error", err)
		return false
	}
	if c.closed() {
		return false
	}
	select {
	case c.send <- data:
		return true
	case <-c.done:
		return false
	case <-ctx.Done():
		return false
	}
}

func (c *conn) close() {
	c.once.Do(func() { close(c.done) })
}

func (c *conn) closed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

// writePump owns all writes to the socket. It exits when the connection is
// closed or a write fails, and closes the socket on the way out so the read
// loop unblocks.
func (c *conn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.ws.Close()
	}()

	for {
		select {
		case data := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
				c.log.Debug(context.Background(), "write failed", "error", err)
				c.close()
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.close()
				return
			}
		case <-c.done:
			_ = c.ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait))
			return
		}
	}
}
