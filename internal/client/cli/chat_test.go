package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/dmitrijs2005/keyrelay/internal/client/client"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sent struct {
	to   string
	text string
}

type fakeConn struct {
	mu     sync.Mutex
	sent   []sent
	frames chan *client.Frame
	closed bool
}

func newFakeConn() *fakeConn {
	return &fakeConn{frames: make(chan *client.Frame, 8)}
}

func (f *fakeConn) Send(to string, ct json.RawMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	var text string
	_ = json.Unmarshal(ct, &text)
	f.sent = append(f.sent, sent{to: to, text: text})
	return nil
}

func (f *fakeConn) Read() (*client.Frame, error) {
	fr, ok := <-f.frames
	if !ok {
		return nil, errors.New("closed")
	}
	return fr, nil
}

func (f *fakeConn) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.closed {
		f.closed = true
		close(f.frames)
	}
	return nil
}

func TestRunChat_SendsToCurrentRecipient(t *testing.T) {
	conn := newFakeConn()
	in := strings.NewReader(strings.Join([]string{
		"orphan line",
		"/to bob",
		"hello bob",
		"",
		"/to carol",
		"hi carol",
		"/quit",
		"never sent",
	}, "\n"))
	var out bytes.Buffer

	require.NoError(t, runChat(context.Background(), conn, in, &out, ""))

	assert.Equal(t, []sent{{"bob", "hello bob"}, {"carol", "hi carol"}}, conn.sent)
	assert.Contains(t, out.String(), "no recipient, use /to <user>")
	assert.Contains(t, out.String(), "Bye!")
}

func TestRunChat_InitialRecipient(t *testing.T) {
	conn := newFakeConn()
	var out bytes.Buffer

	require.NoError(t, runChat(context.Background(), conn, strings.NewReader("yo\n"), &out, "dave"))
	assert.Equal(t, []sent{{"dave", "yo"}}, conn.sent)
}

func TestRunChat_ConnectionLost(t *testing.T) {
	conn := newFakeConn()
	conn.frames <- &client.Frame{Type: "MESSAGE", Sender: "bob", Ciphertext: json.RawMessage(`"ping"`), Timestamp: "t"}
	_ = conn.Close()

	// An input that never ends keeps the loop waiting on the connection.
	pr, pw := io.Pipe()
	defer pw.Close()

	var out syncBuffer
	err := runChat(context.Background(), conn, pr, &out, "bob")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "relay connection lost")
	assert.Contains(t, out.String(), "[t] bob: ping")
}

type syncBuffer struct {
	mu sync.Mutex
	b  bytes.Buffer
}

func (s *syncBuffer) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.b.Write(p)
}

func (s *syncBuffer) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.b.String()
}
