package relay

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/dmitrijs2005/keyrelay/internal/common"
	"github.com/dmitrijs2005/keyrelay/internal/logging"
	"github.com/dmitrijs2005/keyrelay/internal/server/models"
	"github.com/gorilla/websocket"
)

const drainTimeout = 10 * time.Second

// Drainer hands over every queued message for a recipient, oldest first.
type Drainer interface {
	Drain(ctx context.Context, recipientID string) ([]models.Envelope, error)
}

// Submitter schedules an offline copy of a message without blocking.
type Submitter interface {
	Submit(recipientID string, env models.Envelope) bool
}

// Router accepts relay connections and routes SEND frames between them.
type Router struct {
	auth      *Authenticator
	registry  *Registry
	drainer   Drainer
	persister Submitter
	upgrader  websocket.Upgrader
	log       logging.Logger
	metrics   *Metrics
	now       func() time.Time
	buffer    int

	mu    sync.Mutex
	conns map[*conn]struct{}
	wg    sync.WaitGroup
}

type RouterOption func(*Router)

func WithRouterMetrics(m *Metrics) RouterOption {
	return func(r *Router) { r.metrics = m }
}

func WithRouterClock(now func() time.Time) RouterOption {
	return func(r *Router) { r.now = now }
}

func WithSendBuffer(n int) RouterOption {
	return func(r *Router) {
		if n > 0 {
			r.buffer = n
		}
	}
}

func NewRouter(auth *Authenticator, registry *Registry, drainer Drainer, persister Submitter, log logging.Logger, opts ...RouterOption) *Router {
	r := &Router{
		auth:      auth,
		registry:  registry,
		drainer:   drainer,
		persister: persister,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
		},
		log:    log.With("module", "relay"),
		now:    time.Now,
		buffer: DefaultSendBuffer,
		conns:  make(map[*conn]struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// ServeHTTP authenticates the request before upgrading it. A rejected
// request gets a plain HTTP error and never sees a WebSocket handshake.
// For accepted requests it blocks for the lifetime of the connection.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	ctx := req.Context()

	userID, err := r.auth.Authenticate(req)
	if err != nil {
		r.reject(ctx, w, err)
		return
	}

	ws, err := r.upgrader.Upgrade(w, req, nil)
	if err != nil {
		// Upgrade has already replied to the client.
		r.log.Warn(ctx, "websocket upgrade failed", "user_id", userID, "error", err)
		return
	}

	c := newConn(userID, ws, r.buffer, r.log)
	if !r.track(c) {
		ws.Close()
		return
	}
	defer r.untrack(c)

	if old := r.registry.Register(userID, c); old != nil {
		r.metrics.connReplaced()
		c.log.Info(ctx, "connection replaced", "previous_conn_id", old.ID())
	}
	r.metrics.connOpened()
	c.log.Info(ctx, "client connected")

	defer func() {
		r.registry.Unregister(userID, c)
		c.close()
		r.metrics.connClosed()
		c.log.Info(context.Background(), "client disconnected")
	}()

	go c.writePump()
	go r.forwardQueued(c)

	r.readLoop(c)
}

func (r *Router) reject(ctx context.Context, w http.ResponseWriter, err error) {
	status, reason := http.StatusUnauthorized, "unauthorized"
	if errors.Is(err, common.ErrStoreUnavailable) || errors.Is(err, context.DeadlineExceeded) {
		status, reason = http.StatusServiceUnavailable, "store_unavailable"
		r.log.Error(ctx, "session lookup failed", "error", err)
	} else {
		r.log.Debug(ctx, "handshake rejected", "error", err)
	}
	r.metrics.recordAuthRejected(reason)

	w.Header().Set("Connection", "close")
	http.Error(w, http.StatusText(status), status)
}

// forwardQueued drains the user's offline queue and writes the messages in
// order. Messages already taken from the queue are lost if the connection
// closes before they are written.
func (r *Router) forwardQueued(c *conn) {
	ctx, cancel := context.WithTimeout(context.Background(), drainTimeout)
	msgs, err := r.drainer.Drain(ctx, c.userID)
	cancel()
	r.metrics.recordDrain(len(msgs), err)
	if err != nil {
		c.log.Error(context.Background(), "offline drain failed", "error", err)
		return
	}
	if len(msgs) == 0 {
		return
	}

	for i, env := range msgs {
		if !c.push(context.Background(), messageFrame(env)) {
			lost := len(msgs) - i
			r.metrics.recordUndelivered(lost)
			c.log.Warn(context.Background(), "connection closed during offline delivery", "undelivered", lost)
			return
		}
	}
	c.log.Debug(context.Background(), "offline messages forwarded", "count", len(msgs))
}

func (r *Router) readLoop(c *conn) {
	c.ws.SetReadLimit(maxMessageSize)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.Debug(context.Background(), "read failed", "error", err)
			}
			return
		}
		_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))

		if !c.push(context.Background(), r.handleFrame(c, data)) {
			return
		}
	}
}

// handleFrame processes one inbound frame and returns its ACK. Frames that
// are not JSON get "Malformed JSON"; JSON without a known string type gets
// "Unknown type".
func (r *Router) handleFrame(c *conn, data []byte) AckFrame {
	if !json.Valid(data) {
		r.metrics.recordFrame("", "malformed")
		return nack(AckMalformedJSON)
	}

	switch frameType(data) {
	case FrameSend:
		return r.handleSend(c, data)
	default:
		r.metrics.recordFrame("unknown", "rejected")
		return nack(AckUnknownType)
	}
}

func (r *Router) handleSend(c *conn, data []byte) AckFrame {
	f, ok := parseSend(data)
	if !ok {
		r.metrics.recordFrame(FrameSend, "invalid")
		return nack(AckInvalidPayload)
	}

	env := models.NewEnvelope(c.userID, f.Ciphertext, r.now())

	if peer, ok := r.registry.Get(f.RecipientID); ok && peer.Deliver(env) {
		r.metrics.recordDirect()
	}
	r.persister.Submit(f.RecipientID, env)

	r.metrics.recordFrame(FrameSend, "ok")
	return ack()
}

func (r *Router) track(c *conn) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.conns == nil {
		return false
	}
	r.conns[c] = struct{}{}
	r.wg.Add(1)
	return true
}

func (r *Router) untrack(c *conn) {
	r.mu.Lock()
	delete(r.conns, c)
	r.mu.Unlock()
	r.wg.Done()
}

// Close disconnects every client and waits for their handlers to return.
// Connections arriving afterwards are refused.
func (r *Router) Close(ctx context.Context) error {
	r.mu.Lock()
	conns := r.conns
	r.conns = nil
	r.mu.Unlock()

	for c := range conns {
		c.close()
	}

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// active returns the number of connections being served.
func (r *Router) active() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.conns)
}
