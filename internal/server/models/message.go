package models

import (
	"encoding/json"
	"time"
)

// TimestampLayout is ISO-8601 UTC with millisecond precision.
const TimestampLayout = "2006-01-02T15:04:05.000Z07:00"

// Envelope is a relayed message as seen by its recipient. Ciphertext is
// opaque JSON forwarded byte for byte. It is also the element type of the
// offline queue.
type Envelope struct {
	Sender     string          `json:"sender"`
	Ciphertext json.RawMessage `json:"ciphertext"`
	Timestamp  string          `json:"timestamp"`
}

// NewEnvelope stamps a message from sender with the given receive time.
func NewEnvelope(sender string, ciphertext json.RawMessage, at time.Time) Envelope {
	return Envelope{
		Sender:     sender,
		Ciphertext: ciphertext,
		Timestamp:  at.UTC().Format(TimestampLayout),
	}
}
