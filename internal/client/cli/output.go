package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/dmitrijs2005/keyrelay/internal/client/client"
)

// ciphertextArg turns a command-line message into the JSON value sent as
// ciphertext. Text is sent as a JSON string unless raw is set, in which
// case it must already be valid JSON.
func ciphertextArg(text string, raw bool) (json.RawMessage, error) {
	if raw {
		if !json.Valid([]byte(text)) {
			return nil, fmt.Errorf("--raw message is not valid JSON")
		}
		return json.RawMessage(text), nil
	}
	return json.Marshal(text)
}

// printFrame writes a human readable line for f.
func printFrame(w io.Writer, f *client.Frame) {
	switch f.Type {
	case "MESSAGE":
		var text string
		body := string(f.Ciphertext)
		if json.Unmarshal(f.Ciphertext, &text) == nil {
			body = text
		}
		fmt.Fprintf(w, "[%s] %s: %s\n", f.Timestamp, f.Sender, body)
	case "ACK":
		if !f.OK {
			fmt.Fprintf(w, "! rejected: %s\n", f.Error)
		}
	default:
		fmt.Fprintf(w, "? unexpected frame %q\n", f.Type)
	}
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
