package chat

import (
	"context"
	"fmt"
	"strings"

	"github.com/arangkita/arang-chat/internal/domain"
	"github.com/arangkita/arang-chat/internal/gateway"
	"github.com/arangkita/arang-chat/internal/notify"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// resolveFor routes to the role-appropriate session lookup. partnerID is
// the customer to join and only meaningful for admin viewers.
func resolveFor(ctx context.Context, resolver *SessionResolver, viewer domain.Identity, partnerID uuid.UUID) (*domain.ChatSession, error) {
	if viewer.Role == domain.RoleAdmin {
		return resolver.ResolveForAdmin(ctx, viewer.ID, partnerID)
	}
	return resolver.ResolveForCustomer(ctx, viewer.ID)
}

// Deliver posts a single message outside a live room binding. The REST
// send path has no optimistic list to reconcile, so the flow reduces to
// insert, notify, touch.
func Deliver(ctx context.Context, gw gateway.Gateway, resolver *SessionResolver, notifier notify.Notifier, viewer domain.Identity, partnerID uuid.UUID, content string, orderInfo *domain.OrderInfo) (*domain.Message, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, domain.ErrEmptyMessage
	}

	session, err := resolveFor(ctx, resolver, viewer, partnerID)
	if err != nil {
		return nil, err
	}

	msg := domain.Message{
		SessionID:  session.ID,
		SenderID:   viewer.ID,
		SenderType: viewer.Role.SenderType(),
		Content:    content,
		OrderInfo:  orderInfo,
	}
	inserted, err := gw.Insert(ctx, messagesTable, msg.Row())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrSendFailed, err)
	}
	if inserted == nil {
		return nil, domain.ErrSendFailed
	}
	confirmed, err := domain.MessageFromRow(inserted)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrSendFailed, err)
	}

	if confirmed.SenderType == domain.SenderCustomer && notifier != nil {
		if !notifier.NotifyAdminsOfCustomerMessage(ctx, *confirmed) {
			log.Warn().Str("session_id", confirmed.SessionID.String()).Msg("Admin notification was not delivered")
		}
	}
	if err := resolver.TouchSession(ctx, confirmed.SessionID); err != nil {
		log.Warn().Err(err).Str("session_id", confirmed.SessionID.String()).Msg("Failed to refresh session after send")
	}
	return confirmed, nil
}

// History resolves the viewer's session and returns its transcript,
// oldest first.
func History(ctx context.Context, gw gateway.Gateway, resolver *SessionResolver, viewer domain.Identity, partnerID uuid.UUID) (*domain.ChatSession, []domain.Message, error) {
	session, err := resolveFor(ctx, resolver, viewer, partnerID)
	if err != nil {
		return nil, nil, err
	}

	rows, err := gw.Find(ctx, messagesTable,
		gateway.Filter{"session_id": session.ID.String()},
		&gateway.Order{Field: "created_at"}, 0)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load history: %w", err)
	}

	messages := make([]domain.Message, 0, len(rows))
	for _, row := range rows {
		m, err := domain.MessageFromRow(row)
		if err != nil {
			log.Warn().Err(err).Msg("Skipping malformed message row")
			continue
		}
		messages = append(messages, *m)
	}
	return session, messages, nil
}
