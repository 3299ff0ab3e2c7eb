package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/gorilla/websocket"
)

// Frame is any frame the relay sends: MESSAGE or ACK.
type Frame struct {
	Type       string          `json:"type"`
	Sender     string          `json:"sender,omitempty"`
	Ciphertext json.RawMessage `json:"ciphertext,omitempty"`
	Timestamp  string          `json:"timestamp,omitempty"`
	OK         bool            `json:"ok,omitempty"`
	Error      string          `json:"error,omitempty"`
}

// Conn is an open relay connection. Send may be called concurrently with
// Read.
type Conn struct {
	ws *websocket.Conn
	mu sync.Mutex
}

func (c *Client) wsURL() string {
	switch {
	case strings.HasPrefix(c.base, "https://"):
		return "wss://" + strings.TrimPrefix(c.base, "https://") + "/ws"
	case strings.HasPrefix(c.base, "http://"):
		return "ws://" + strings.TrimPrefix(c.base, "http://") + "/ws"
	default:
		return c.base + "/ws"
	}
}

// Dial opens the relay connection. A rejected session is reported as
// ErrUnauthorized.
func (c *Client) Dial(ctx context.Context) (*Conn, error) {
	h := http.Header{}
	if c.token != "" {
		h.Set("Authorization", "Bearer "+c.token)
	}

	ws, resp, err := websocket.DefaultDialer.DialContext(ctx, c.wsURL(), h)
	if resp != nil && resp.Body != nil {
		defer resp.Body.Close()
	}
	if err != nil {
		if resp != nil {
			switch resp.StatusCode {
			case http.StatusUnauthorized:
				return nil, ErrUnauthorized
			case http.StatusServiceUnavailable:
				return nil, ErrUnavailable
			}
			return nil, fmt.Errorf("relay handshake: %s", resp.Status)
		}
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	return &Conn{ws: ws}, nil
}

// Send writes a SEND frame. ciphertext must be valid JSON; it is forwarded
// untouched.
func (c *Conn) Send(recipientID string, ciphertext json.RawMessage) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ws.WriteJSON(map[string]any{
		"type":        "SEND",
		"recipientId": recipientID,
		"ciphertext":  ciphertext,
	})
}

// Read blocks for the next frame.
func (c *Conn) Read() (*Frame, error) {
	var f Frame
	if err := c.ws.ReadJSON(&f); err != nil {
		return nil, err
	}
	return &f, nil
}

// Close sends a close frame and closes the socket.
func (c *Conn) Close() error {
	c.mu.Lock()
	_ = c.ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	c.mu.Unlock()
	return c.ws.Close()
}
