package core

import (
	"time"

	"github.com/collabroom/collabroom-server/internal/assistant"
)

// EventKind is a notification the core emits to clients.
type EventKind int

const (
	// EventRoomMessage notifies clients about a user chat message in a room.
	EventRoomMessage EventKind = iota
	// EventAssistantMessage delivers an assistant reply to a room.
	EventAssistantMessage
	// EventError notifies clients about a domain error as an in-room notice.
	EventError
)

// Message is the core's view of a chat message for delivery purposes.
type Message struct {
	ID        int64
	ProjectID int64
	From      string
	Text      string
	CreatedAt time.Time
}

// Event is sent to clients to describe what happened in the room.
type Event struct {
	Kind    EventKind
	Message Message
	// Reply is non-nil for EventAssistantMessage.
	Reply *assistant.Result
	// From is the assistant display name for EventAssistantMessage.
	From  string
	Error *CoreError
}
