package chat

import (
	"github.com/arangkita/arang-chat/internal/domain"
	"github.com/google/uuid"
)

// EventType classifies room events pushed to the connected client
type EventType string

const (
	// EventMessage: a new entry was appended to the visible list. The
	// sender's own optimistic entries arrive with pending=true.
	EventMessage EventType = "message"
	// EventReconciled: an optimistic entry was replaced by its
	// server-confirmed row; temp_id names the entry to swap in place.
	EventReconciled EventType = "reconciled"
	// EventRollback: a send failed and its optimistic entry was removed.
	EventRollback EventType = "rollback"
	// EventAlert: a message from the other party arrived; play a cue.
	EventAlert EventType = "alert"
	// EventError: transient connectivity problem on the live feed.
	EventError EventType = "error"
)

// MessageView is the display model: a message plus the sender name
// resolved from the viewer's perspective. Names are computed per render,
// never stored on the message.
type MessageView struct {
	domain.Message
	SenderName string `json:"sender_name"`
}

// Event is a single room update
type Event struct {
	Type    EventType    `json:"type"`
	Message *MessageView `json:"message,omitempty"`
	TempID  uuid.UUID    `json:"temp_id,omitempty"`
	Error   string       `json:"error,omitempty"`
}
