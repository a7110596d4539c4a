package chat

import (
	"context"
	"fmt"
	"time"

	"github.com/arangkita/arang-chat/internal/domain"
	"github.com/arangkita/arang-chat/internal/gateway"
	"github.com/google/uuid"
)

const (
	sessionsTable = "chat_sessions"
	messagesTable = "chat_messages"
	usersTable    = "users"
)

// DefaultTopic labels sessions created by a customer's first interaction.
const DefaultTopic = "Bantuan pelanggan"

// SessionResolver produces exactly one usable ChatSession for a
// (customer, viewer-role) pair and owns the status transitions.
type SessionResolver struct {
	gw    gateway.Gateway
	topic string
}

// NewSessionResolver creates a session resolver
func NewSessionResolver(gw gateway.Gateway) *SessionResolver {
	return &SessionResolver{gw: gw, topic: DefaultTopic}
}

func liveSessionFilter(customerID uuid.UUID) gateway.Filter {
	statuses := make([]any, len(domain.LiveStatuses))
	for i, s := range domain.LiveStatuses {
		statuses[i] = string(s)
	}
	return gateway.Filter{
		"customer_id": customerID.String(),
		"status":      gateway.In(statuses...),
	}
}

// findLive returns the customer's single live session, or nil.
func (r *SessionResolver) findLive(ctx context.Context, customerID uuid.UUID) (*domain.ChatSession, error) {
	rows, err := r.gw.Find(ctx, sessionsTable, liveSessionFilter(customerID),
		&gateway.Order{Field: "last_message_at", Desc: true}, 1)
	if err != nil {
		return nil, fmt.Errorf("failed to find session: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return domain.SessionFromRow(rows[0])
}

// ResolveForCustomer finds the customer's live session or creates a fresh
// open one. Find-or-create keeps the at-most-one-live-session invariant.
func (r *SessionResolver) ResolveForCustomer(ctx context.Context, customerID uuid.UUID) (*domain.ChatSession, error) {
	session, err := r.findLive(ctx, customerID)
	if err != nil {
		return nil, err
	}
	if session != nil {
		return session, nil
	}

	row := gateway.Row{
		"customer_id": customerID.String(),
		"status":      string(domain.SessionOpen),
		"topic":       r.topic,
	}
	inserted, err := r.gw.Insert(ctx, sessionsTable, row)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	if inserted == nil {
		// The store accepted the write but hid the row from us. Without a
		// session id the caller cannot proceed.
		return nil, domain.ErrSessionCreationFailed
	}
	return domain.SessionFromRow(inserted)
}

// ResolveForAdmin joins the admin to the customer's live session, claiming
// it when still unassigned. Admins never originate sessions.
func (r *SessionResolver) ResolveForAdmin(ctx context.Context, adminID, customerID uuid.UUID) (*domain.ChatSession, error) {
	session, err := r.findLive(ctx, customerID)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, domain.ErrNoActiveSession
	}
	if session.Assigned() {
		return session, nil
	}

	// Claim: the filter re-checks that the session is still unassigned so
	// concurrent claims cannot both win. A first message may already have
	// moved the status from open to active, so the claim keys on the
	// missing admin, not on the status.
	claimed, err := r.gw.Update(ctx, sessionsTable,
		gateway.Filter{
			"id":       session.ID.String(),
			"admin_id": gateway.Exists(false),
		},
		gateway.Row{
			"admin_id": adminID.String(),
			"status":   string(domain.SessionActive),
		})
	if err != nil {
		return nil, fmt.Errorf("failed to claim session: %w", err)
	}
	if claimed != nil {
		return domain.SessionFromRow(claimed)
	}

	// Lost the claim race, or the row is hidden from us. Re-read: a
	// session already claimed by another admin is returned as-is; a row
	// that is still unassigned means the update genuinely failed.
	rows, err := r.gw.Find(ctx, sessionsTable, gateway.Filter{"id": session.ID.String()}, nil, 1)
	if err != nil {
		return nil, fmt.Errorf("failed to re-read session after claim: %w", err)
	}
	if len(rows) > 0 {
		refetched, err := domain.SessionFromRow(rows[0])
		if err == nil && refetched.Assigned() {
			return refetched, nil
		}
	}
	return nil, domain.ErrSessionClaimFailed
}

// TouchSession refreshes last_message_at and moves the session to active.
// Called from the send path as a fire-and-forget side effect.
func (r *SessionResolver) TouchSession(ctx context.Context, sessionID uuid.UUID) error {
	updated, err := r.gw.Update(ctx, sessionsTable,
		gateway.Filter{"id": sessionID.String()},
		gateway.Row{
			"last_message_at": time.Now().UTC(),
			"status":          string(domain.SessionActive),
		})
	if err != nil {
		return fmt.Errorf("failed to touch session: %w", err)
	}
	if updated == nil {
		return fmt.Errorf("session %s not visible for touch", sessionID)
	}
	return nil
}
