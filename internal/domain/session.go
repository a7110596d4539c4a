package domain

import (
	"time"

	"github.com/google/uuid"
)

// SessionStatus represents the lifecycle state of a chat session
type SessionStatus string

const (
	SessionOpen    SessionStatus = "open"
	SessionPending SessionStatus = "pending"
	SessionActive  SessionStatus = "active"
	SessionClosed  SessionStatus = "closed"
)

// Live reports whether the session still accepts traffic. Closed sessions
// are excluded from find queries but never hard-deleted.
func (s SessionStatus) Live() bool {
	return s == SessionOpen || s == SessionPending || s == SessionActive
}

// LiveStatuses is the set of statuses a resolvable session may carry.
// At most one session per customer holds one of these at any time.
var LiveStatuses = []SessionStatus{SessionOpen, SessionPending, SessionActive}

// ChatSession represents a conversation between a customer and the admin pool
type ChatSession struct {
	ID            uuid.UUID     `json:"id"`
	CustomerID    uuid.UUID     `json:"customer_id"`
	AdminID       *uuid.UUID    `json:"admin_id,omitempty"` // nil until an admin claims the session
	Status        SessionStatus `json:"status"`
	Topic         string        `json:"topic"`
	CreatedAt     time.Time     `json:"created_at"`
	LastMessageAt *time.Time    `json:"last_message_at,omitempty"`
}

// Assigned reports whether an admin has claimed this session.
func (s *ChatSession) Assigned() bool {
	return s.AdminID != nil
}

// Row encodes the session for the persistence gateway. Unset optional
// fields are omitted so the store keeps them absent rather than null-typed.
func (s *ChatSession) Row() map[string]any {
	row := map[string]any{
		"id":          s.ID.String(),
		"customer_id": s.CustomerID.String(),
		"status":      string(s.Status),
		"topic":       s.Topic,
		"created_at":  s.CreatedAt,
	}
	if s.AdminID != nil {
		row["admin_id"] = s.AdminID.String()
	}
	if s.LastMessageAt != nil {
		row["last_message_at"] = *s.LastMessageAt
	}
	return row
}

// SessionFromRow maps a gateway row into a ChatSession. Rows arrive with
// duck-typed values (store decode vs. feed JSON round-trip), so field
// coercion is deliberately lenient.
func SessionFromRow(row map[string]any) (*ChatSession, error) {
	id, err := rowUUID(row, "id")
	if err != nil {
		return nil, err
	}
	customerID, err := rowUUID(row, "customer_id")
	if err != nil {
		return nil, err
	}

	s := &ChatSession{
		ID:         id,
		CustomerID: customerID,
		Status:     SessionStatus(rowString(row, "status")),
		Topic:      rowString(row, "topic"),
	}
	if t, ok := rowTime(row, "created_at"); ok {
		s.CreatedAt = t
	}
	if t, ok := rowTime(row, "last_message_at"); ok {
		s.LastMessageAt = &t
	}
	if adminID, err := rowUUID(row, "admin_id"); err == nil {
		s.AdminID = &adminID
	}
	return s, nil
}
