package domain

import (
	"time"

	"github.com/google/uuid"
)

// ChatUserSummary is the admin-inbox view of one customer conversation.
// Derived on each aggregation pass; never persisted.
type ChatUserSummary struct {
	CustomerID            uuid.UUID  `json:"customer_id"`
	DisplayName           string     `json:"display_name"`
	LastMessage           string     `json:"last_message"`
	LastMessageAt         *time.Time `json:"last_message_at,omitempty"`
	LastMessageSenderName string     `json:"last_message_sender_name"`
	Unread                bool       `json:"unread"`

	// IsMostRecentGlobally pins the customer whose last customer-authored
	// message is the newest across the whole roster to the top of the
	// inbox, ahead of raw timestamp ordering.
	IsMostRecentGlobally bool `json:"is_most_recent_globally"`

	// LastCustomerAt backs the global-recency computation; not serialized.
	LastCustomerAt *time.Time `json:"-"`
	// LastSenderType backs the customer-before-admin tie-break.
	LastSenderType SenderType `json:"-"`
}
