package domain

import (
	"time"

	"github.com/google/uuid"
)

// SenderType identifies which side of the conversation authored a message
type SenderType string

const (
	SenderCustomer SenderType = "customer"
	SenderAdmin    SenderType = "admin"
)

// OtherSide returns the opposite party.
func (s SenderType) OtherSide() SenderType {
	if s == SenderCustomer {
		return SenderAdmin
	}
	return SenderCustomer
}

// OrderInfo is an optional pinned-order reference attached by the sender
type OrderInfo struct {
	OrderID    string  `json:"order_id"`
	OrderTotal float64 `json:"order_total"`
}

// Message represents a chat message. Messages are append-only; the read
// flag is the only mutable field.
type Message struct {
	ID         uuid.UUID  `json:"id"`
	SessionID  uuid.UUID  `json:"session_id"`
	SenderID   uuid.UUID  `json:"sender_id"`
	SenderType SenderType `json:"sender_type"`
	Content    string     `json:"content"`
	CreatedAt  time.Time  `json:"created_at"`
	OrderInfo  *OrderInfo `json:"order_info,omitempty"`

	// Read is tri-state: true, false, or nil for legacy rows that predate
	// the column. nil counts as unread.
	Read *bool `json:"read,omitempty"`

	// Pending marks a locally-appended optimistic entry that has not been
	// confirmed by the store yet. Never persisted.
	Pending bool `json:"pending,omitempty"`
}

// Unread reports whether the message counts as unread. Absent read flags
// on legacy rows count the same as explicit false.
func (m *Message) Unread() bool {
	return m.Read == nil || !*m.Read
}

// Row encodes the message for the persistence gateway. The id and
// created_at fields are omitted; the gateway assigns both on insert.
func (m *Message) Row() map[string]any {
	row := map[string]any{
		"session_id":  m.SessionID.String(),
		"sender_id":   m.SenderID.String(),
		"sender_type": string(m.SenderType),
		"content":     m.Content,
	}
	if m.OrderInfo != nil {
		row["order_info"] = map[string]any{
			"order_id":    m.OrderInfo.OrderID,
			"order_total": m.OrderInfo.OrderTotal,
		}
	}
	if m.Read != nil {
		row["read"] = *m.Read
	}
	return row
}

// MessageFromRow maps a gateway row into a Message.
func MessageFromRow(row map[string]any) (*Message, error) {
	id, err := rowUUID(row, "id")
	if err != nil {
		return nil, err
	}
	sessionID, err := rowUUID(row, "session_id")
	if err != nil {
		return nil, err
	}
	senderID, err := rowUUID(row, "sender_id")
	if err != nil {
		return nil, err
	}

	m := &Message{
		ID:         id,
		SessionID:  sessionID,
		SenderID:   senderID,
		SenderType: SenderType(rowString(row, "sender_type")),
		Content:    rowString(row, "content"),
	}
	if t, ok := rowTime(row, "created_at"); ok {
		m.CreatedAt = t
	}
	if v, ok := row["read"]; ok {
		if b, ok := v.(bool); ok {
			m.Read = &b
		}
	}
	if v, ok := row["order_info"].(map[string]any); ok {
		m.OrderInfo = &OrderInfo{
			OrderID:    rowString(v, "order_id"),
			OrderTotal: rowFloat(v, "order_total"),
		}
	}
	return m, nil
}
