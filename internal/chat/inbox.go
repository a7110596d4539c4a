package chat

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/arangkita/arang-chat/internal/domain"
	"github.com/arangkita/arang-chat/internal/gateway"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const inboxUpdateBuffer = 16

// InboxAggregator builds the admin's ranked list of customer
// conversations and keeps it live off the global message feed. All roster
// state is owned by the instance; Refresh is the only entry point that
// recomputes it.
type InboxAggregator struct {
	mu        sync.Mutex
	gw        gateway.Gateway
	viewer    domain.Identity
	summaries []domain.ChatUserSummary
	sub       gateway.Subscription
	updates   chan []domain.ChatUserSummary
}

// NewInboxAggregator creates an aggregator for an admin viewer
func NewInboxAggregator(gw gateway.Gateway, viewer domain.Identity) *InboxAggregator {
	return &InboxAggregator{
		gw:      gw,
		viewer:  viewer,
		updates: make(chan []domain.ChatUserSummary, inboxUpdateBuffer),
	}
}

// Start runs the initial aggregation pass and subscribes to every message
// insert, session-agnostic, re-aggregating on each event.
func (a *InboxAggregator) Start(ctx context.Context) error {
	if _, err := a.Refresh(ctx); err != nil {
		return err
	}

	sub, err := a.gw.Subscribe(ctx, messagesTable, nil, func(gateway.Row) {
		list, err := a.Refresh(ctx)
		if err != nil {
			log.Warn().Err(err).Msg("Inbox refresh after feed event failed")
			return
		}
		select {
		case a.updates <- list:
		default:
			log.Warn().Msg("Inbox update buffer full, dropping refresh")
		}
	})
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrSubscription, err)
	}
	a.sub = sub
	return nil
}

// Updates streams the re-ranked list after each live refresh.
func (a *InboxAggregator) Updates() <-chan []domain.ChatUserSummary {
	return a.updates
}

// Summaries returns the last computed ranking.
func (a *InboxAggregator) Summaries() []domain.ChatUserSummary {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]domain.ChatUserSummary, len(a.summaries))
	copy(out, a.summaries)
	return out
}

// Refresh recomputes the full ranking from the message history join.
func (a *InboxAggregator) Refresh(ctx context.Context) ([]domain.ChatUserSummary, error) {
	userRows, err := a.gw.Find(ctx, usersTable, nil, nil, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to load user roster: %w", err)
	}

	names := map[uuid.UUID]string{}
	var customers []domain.User
	for _, row := range userRows {
		u, err := domain.UserFromRow(row)
		if err != nil {
			log.Warn().Err(err).Msg("Skipping malformed user row")
			continue
		}
		names[u.ID] = u.DisplayName
		if u.Role == domain.RoleCustomer {
			customers = append(customers, *u)
		}
	}

	summaries := make([]domain.ChatUserSummary, 0, len(customers))
	for _, c := range customers {
		msgs, err := a.customerMessages(ctx, c.ID)
		if err != nil {
			return nil, err
		}
		summaries = append(summaries, buildSummary(c, msgs, names))
	}

	markMostRecentGlobally(summaries)
	sortSummaries(summaries)

	a.mu.Lock()
	a.summaries = summaries
	a.mu.Unlock()

	out := make([]domain.ChatUserSummary, len(summaries))
	copy(out, summaries)
	return out, nil
}

// customerMessages fetches every message in the customer's sessions,
// newest first.
func (a *InboxAggregator) customerMessages(ctx context.Context, customerID uuid.UUID) ([]domain.Message, error) {
	sessionRows, err := a.gw.Find(ctx, sessionsTable,
		gateway.Filter{"customer_id": customerID.String()}, nil, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to load sessions for %s: %w", customerID, err)
	}
	if len(sessionRows) == 0 {
		return nil, nil
	}

	sessionIDs := make([]any, 0, len(sessionRows))
	for _, row := range sessionRows {
		if id, ok := row["id"].(string); ok {
			sessionIDs = append(sessionIDs, id)
		}
	}

	msgRows, err := a.gw.Find(ctx, messagesTable,
		gateway.Filter{"session_id": gateway.In(sessionIDs...)},
		&gateway.Order{Field: "created_at", Desc: true}, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to load messages for %s: %w", customerID, err)
	}

	msgs := make([]domain.Message, 0, len(msgRows))
	for _, row := range msgRows {
		m, err := domain.MessageFromRow(row)
		if err != nil {
			log.Warn().Err(err).Msg("Skipping malformed message row")
			continue
		}
		msgs = append(msgs, *m)
	}
	return msgs, nil
}

// buildSummary selects the displayed last message for one customer:
// the most recent unread customer-authored message wins over a newer
// admin reply; then the most recent customer-authored one; then the most
// recent of any author. msgs must be newest first.
func buildSummary(customer domain.User, msgs []domain.Message, names map[uuid.UUID]string) domain.ChatUserSummary {
	summary := domain.ChatUserSummary{
		CustomerID:  customer.ID,
		DisplayName: customer.DisplayName,
	}
	if len(msgs) == 0 {
		return summary
	}

	var lastCustomer, lastUnreadCustomer *domain.Message
	for i := range msgs {
		m := &msgs[i]
		if m.SenderType != domain.SenderCustomer {
			continue
		}
		if lastCustomer == nil {
			lastCustomer = m
		}
		if lastUnreadCustomer == nil && m.Unread() {
			lastUnreadCustomer = m
		}
		if lastCustomer != nil && lastUnreadCustomer != nil {
			break
		}
	}

	display := &msgs[0]
	if lastUnreadCustomer != nil {
		display = lastUnreadCustomer
	} else if lastCustomer != nil {
		display = lastCustomer
	}

	summary.Unread = lastUnreadCustomer != nil
	summary.LastMessage = display.Content
	t := display.CreatedAt
	summary.LastMessageAt = &t
	summary.LastSenderType = display.SenderType
	if name, ok := names[display.SenderID]; ok && name != "" {
		summary.LastMessageSenderName = name
	}
	if lastCustomer != nil {
		ct := lastCustomer.CreatedAt
		summary.LastCustomerAt = &ct
	}
	return summary
}

// markMostRecentGlobally flags the customer(s) whose last customer-authored
// message timestamp equals the roster-wide maximum.
func markMostRecentGlobally(summaries []domain.ChatUserSummary) {
	var max *domain.ChatUserSummary
	for i := range summaries {
		s := &summaries[i]
		if s.LastCustomerAt == nil {
			continue
		}
		if max == nil || s.LastCustomerAt.After(*max.LastCustomerAt) {
			max = s
		}
	}
	if max == nil {
		return
	}
	for i := range summaries {
		s := &summaries[i]
		s.IsMostRecentGlobally = s.LastCustomerAt != nil && s.LastCustomerAt.Equal(*max.LastCustomerAt)
	}
}

// sortSummaries applies the layered comparator: global-recency pin,
// displayed timestamp (nil last), customer-before-admin on exact ties,
// unread first, then name.
func sortSummaries(summaries []domain.ChatUserSummary) {
	sort.SliceStable(summaries, func(i, j int) bool {
		a, b := summaries[i], summaries[j]

		if a.IsMostRecentGlobally != b.IsMostRecentGlobally {
			return a.IsMostRecentGlobally
		}
		switch {
		case a.LastMessageAt == nil && b.LastMessageAt == nil:
			// fall through to name
		case a.LastMessageAt == nil:
			return false
		case b.LastMessageAt == nil:
			return true
		case !a.LastMessageAt.Equal(*b.LastMessageAt):
			return a.LastMessageAt.After(*b.LastMessageAt)
		default:
			if (a.LastSenderType == domain.SenderCustomer) != (b.LastSenderType == domain.SenderCustomer) {
				return a.LastSenderType == domain.SenderCustomer
			}
			if a.Unread != b.Unread {
				return a.Unread
			}
		}
		return strings.ToLower(a.DisplayName) < strings.ToLower(b.DisplayName)
	})
}

// MarkAsRead flips one message's read flag. Failures are non-fatal to the
// inbox: the caller warns and state stays unchanged. Legacy rows lacking
// the read column are expected and tolerated.
func (a *InboxAggregator) MarkAsRead(ctx context.Context, messageID uuid.UUID) error {
	updated, err := a.gw.Update(ctx, messagesTable,
		gateway.Filter{"id": messageID.String()},
		gateway.Row{"read": true})
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrMarkReadFailed, err)
	}
	if updated == nil {
		return fmt.Errorf("%w: message %s not visible", domain.ErrMarkReadFailed, messageID)
	}
	return nil
}

// MarkAllAsRead flips every customer-authored message that is unread.
// Explicit-false and legacy-absent read flags are flipped in two separate
// passes so the operation stays portable to stores that cannot express
// "false or missing" in one predicate.
func (a *InboxAggregator) MarkAllAsRead(ctx context.Context) error {
	passes := []gateway.Filter{
		{"sender_type": string(domain.SenderCustomer), "read": false},
		{"sender_type": string(domain.SenderCustomer), "read": gateway.Exists(false)},
	}
	for _, filter := range passes {
		// A nil row here just means nothing matched the pass.
		if _, err := a.gw.Update(ctx, messagesTable, filter, gateway.Row{"read": true}); err != nil {
			return fmt.Errorf("%w: %v", domain.ErrMarkReadFailed, err)
		}
	}
	if _, err := a.Refresh(ctx); err != nil {
		log.Warn().Err(err).Msg("Inbox refresh after mark-all-read failed")
	}
	return nil
}

// Close releases the global feed subscription.
func (a *InboxAggregator) Close() {
	if a.sub != nil {
		if err := a.sub.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close inbox subscription")
		}
		a.sub = nil
	}
}
