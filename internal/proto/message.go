package proto

import (
	"encoding/json"

	"github.com/collabroom/collabroom-server/internal/assistant"
)

// Inbound is the envelope for messages coming from the client.
type Inbound struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

const (
	InboundTypeMsg = "msg"

	OutboundTypeEvent = "event"
	OutboundTypeError = "error"

	EventNameMessage   = "project-message"
	EventNameAssistant = "assistant-message"
)

// MsgData is a chat message from the client. Sender is the client's display
// value and is informational only; identity comes from the credential.
type MsgData struct {
	Text   string `json:"text"`
	Sender string `json:"sender,omitempty"`
}

// Outbound is the envelope for messages sent to the client.
type Outbound struct {
	Type  string `json:"type"`
	Event string `json:"event,omitempty"`
	Data  any    `json:"data,omitempty"`
	Error *Error `json:"error,omitempty"`
}

// EventMessage is emitted to room members for a user message.
type EventMessage struct {
	ID     int64  `json:"id,omitempty"`
	Text   string `json:"text"`
	Sender string `json:"sender"`
	TS     int64  `json:"ts,omitempty"`
}

// EventAssistantMessage is emitted to the full room for an assistant reply.
// Text carries the structured result, not a plain string.
type EventAssistantMessage struct {
	Text   *assistant.Result `json:"text"`
	Sender string            `json:"sender"`
}

// Error describes a protocol-level error response.
type Error struct {
	Code string `json:"code"`
	Msg  string `json:"msg"`
}
