package relay

import (
	"bytes"
	"encoding/json"

	"github.com/dmitrijs2005/keyrelay/internal/server/models"
)

// Frame types.
const (
	FrameSend    = "SEND"
	FrameMessage = "MESSAGE"
	FrameAck     = "ACK"
)

// Negative ACK reasons.
const (
	AckInvalidPayload = "Invalid payload"
	AckUnknownType    = "Unknown type"
	AckMalformedJSON  = "Malformed JSON"
)

// SendFrame is the only frame a client sends.
type SendFrame struct {
	Type        string          `json:"type"`
	RecipientID string          `json:"recipientId"`
	Ciphertext  json.RawMessage `json:"ciphertext"`
}

// MessageFrame carries a relayed ciphertext to its recipient.
type MessageFrame struct {
	Type       string          `json:"type"`
	Sender     string          `json:"sender"`
	Ciphertext json.RawMessage `json:"ciphertext"`
	Timestamp  string          `json:"timestamp"`
}

// AckFrame answers every inbound frame, in arrival order.
type AckFrame struct {
	Type  string `json:"type"`
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

func ack() AckFrame {
	return AckFrame{Type: FrameAck, OK: true}
}

func nack(reason string) AckFrame {
	return AckFrame{Type: FrameAck, OK: false, Error: reason}
}

func messageFrame(env models.Envelope) MessageFrame {
	return MessageFrame{
		Type:       FrameMessage,
		Sender:     env.Sender,
		Ciphertext: env.Ciphertext,
		Timestamp:  env.Timestamp,
	}
}

// frameType returns the string "type" member of a JSON object frame, or ""
// when data is valid JSON but not an object or has no string type.
func frameType(data []byte) string {
	var head struct {
		Type json.RawMessage `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return ""
	}
	var t string
	if err := json.Unmarshal(head.Type, &t); err != nil {
		return ""
	}
	return t
}

// parseSend decodes a SEND frame. ok is false when recipientId is not a
// non-empty string or ciphertext is missing, null or an empty string.
func parseSend(data []byte) (f SendFrame, ok bool) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return f, false
	}
	f.Type = FrameSend
	if err := json.Unmarshal(fields["recipientId"], &f.RecipientID); err != nil || f.RecipientID == "" {
		return f, false
	}
	f.Ciphertext = fields["ciphertext"]
	return f, hasValue(f.Ciphertext)
}

// hasValue reports whether a raw JSON field was present and is neither null
// nor the empty string.
func hasValue(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) > 0 &&
		!bytes.Equal(trimmed, []byte("null")) &&
		!bytes.Equal(trimmed, []byte(`""`))
}
