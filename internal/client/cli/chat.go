package cli

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/dmitrijs2005/keyrelay/internal/client/client"
)

// chatConn is the relay surface the chat loop needs.
type chatConn interface {
	Send(recipientID string, ciphertext json.RawMessage) error
	Read() (*client.Frame, error)
	Close() error
}

// closeOnDone closes c when ctx is canceled. The returned func stops the
// watcher and closes c.
func closeOnDone(ctx context.Context, c io.Closer) func() {
	var once sync.Once
	closeConn := func() { once.Do(func() { _ = c.Close() }) }

	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			closeConn()
		case <-done:
		}
	}()
	return func() {
		close(done)
		closeConn()
	}
}

// lockedWriter serializes output from the reader goroutine and the prompt.
type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}

// runChat reads lines from in until EOF or /quit. Plain lines are sent to
// the current recipient; incoming frames are printed as they arrive.
//
//	/to <user>   switch recipient
//	/help        list commands
//	/quit        leave
func runChat(ctx context.Context, conn chatConn, in io.Reader, out io.Writer, to string) error {
	w := &lockedWriter{w: out}

	readErr := make(chan error, 1)
	go func() {
		for {
			f, err := conn.Read()
			if err != nil {
				readErr <- err
				return
			}
			printFrame(w, f)
		}
	}()

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	fmt.Fprintln(w, "type /help for commands")
	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-readErr:
			return fmt.Errorf("relay connection lost: %w", err)
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}

			cmd, arg, _ := strings.Cut(line, " ")
			switch cmd {
			case "/quit", "/exit":
				fmt.Fprintln(w, "Bye!")
				return nil
			case "/help":
				fmt.Fprintln(w, "Available commands: /to <user>, /quit; anything else is sent to the current recipient")
			case "/to":
				to = strings.TrimSpace(arg)
				fmt.Fprintf(w, "now chatting with %s\n", to)
			default:
				if to == "" {
					fmt.Fprintln(w, "no recipient, use /to <user>")
					continue
				}
				ct, _ := json.Marshal(line)
				if err := conn.Send(to, ct); err != nil {
					return fmt.Errorf("send: %w", err)
				}
			}
		}
	}
}
