package chat

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/arangkita/arang-chat/internal/domain"
	"github.com/arangkita/arang-chat/internal/gateway"
	"github.com/arangkita/arang-chat/internal/notify"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// DefaultEchoTolerance bounds the self-echo suppression window: a feed
// event for the viewer's own message is dropped when a pending optimistic
// entry matches its content within this interval.
const DefaultEchoTolerance = 2 * time.Second

const sideEffectTimeout = 10 * time.Second

// Synchronizer maintains one session's consistent, de-duplicated,
// time-ordered message list across three sources: the initial bulk load,
// the viewer's own sends, and the live change feed.
//
// The central hazard is the optimistic-send / feed-echo race: one logical
// send produces two representations, collapsed by the dedup-by-id and
// dedup-by-(sender,content,time-window) rules. Only the initial load is
// sorted; feed events append in arrival order.
type Synchronizer struct {
	mu       sync.Mutex
	gw       gateway.Gateway
	resolver *SessionResolver
	notifier notify.Notifier

	viewer      domain.Identity
	partnerName string
	session     *domain.ChatSession

	visible []domain.Message
	pending map[uuid.UUID]domain.Message // optimistic entries by temp id

	echoTolerance time.Duration
	emit          func(Event)
}

func newSynchronizer(
	gw gateway.Gateway,
	resolver *SessionResolver,
	notifier notify.Notifier,
	viewer domain.Identity,
	session *domain.ChatSession,
	partnerName string,
	echoTolerance time.Duration,
	emit func(Event),
) *Synchronizer {
	if echoTolerance <= 0 {
		echoTolerance = DefaultEchoTolerance
	}
	if emit == nil {
		emit = func(Event) {}
	}
	return &Synchronizer{
		gw:            gw,
		resolver:      resolver,
		notifier:      notifier,
		viewer:        viewer,
		partnerName:   partnerName,
		session:       session,
		pending:       map[uuid.UUID]domain.Message{},
		echoTolerance: echoTolerance,
		emit:          emit,
	}
}

// LoadHistory fetches the session's full history, oldest first. Must run
// before the live subscription is attached.
func (s *Synchronizer) LoadHistory(ctx context.Context) error {
	rows, err := s.gw.Find(ctx, messagesTable,
		gateway.Filter{"session_id": s.session.ID.String()},
		&gateway.Order{Field: "created_at"}, 0)
	if err != nil {
		return fmt.Errorf("failed to load history: %w", err)
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

	s.mu.Lock()
	s.visible = messages
	s.mu.Unlock()
	return nil
}

// Messages returns the visible list as display models.
func (s *Synchronizer) Messages() []MessageView {
	s.mu.Lock()
	defer s.mu.Unlock()

	views := make([]MessageView, len(s.visible))
	for i, m := range s.visible {
		views[i] = s.view(m)
	}
	return views
}

// view resolves the sender name from the viewer's perspective.
func (s *Synchronizer) view(m domain.Message) MessageView {
	name := s.partnerName
	if m.SenderType == s.viewer.Role.SenderType() {
		name = s.viewer.DisplayName
	}
	return MessageView{Message: m, SenderName: name}
}

// Send appends an optimistic entry immediately, submits the insert, and
// reconciles the entry with the server-confirmed row. On failure the
// optimistic entry is rolled back and the message counts as not sent.
func (s *Synchronizer) Send(ctx context.Context, content string, orderInfo *domain.OrderInfo) (MessageView, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return MessageView{}, domain.ErrEmptyMessage
	}

	tempID := uuid.New()
	optimistic := domain.Message{
		ID:         tempID,
		SessionID:  s.session.ID,
		SenderID:   s.viewer.ID,
		SenderType: s.viewer.Role.SenderType(),
		Content:    content,
		CreatedAt:  time.Now().UTC(),
		OrderInfo:  orderInfo,
		Pending:    true,
	}

	s.mu.Lock()
	s.visible = append(s.visible, optimistic)
	s.pending[tempID] = optimistic
	s.mu.Unlock()

	pendingView := s.view(optimistic)
	s.emit(Event{Type: EventMessage, Message: &pendingView})

	// The real payload carries no temp id; the gateway assigns id and
	// created_at on confirmation.
	inserted, err := s.gw.Insert(ctx, messagesTable, optimistic.Row())
	if err != nil || inserted == nil {
		s.removeOptimistic(tempID)
		s.emit(Event{Type: EventRollback, TempID: tempID})
		if err != nil {
			return MessageView{}, fmt.Errorf("%w: %v", domain.ErrSendFailed, err)
		}
		return MessageView{}, domain.ErrSendFailed
	}

	confirmed, err := domain.MessageFromRow(inserted)
	if err != nil {
		s.removeOptimistic(tempID)
		s.emit(Event{Type: EventRollback, TempID: tempID})
		return MessageView{}, fmt.Errorf("%w: %v", domain.ErrSendFailed, err)
	}

	s.confirmOptimistic(tempID, *confirmed)
	confirmedView := s.view(*confirmed)
	s.emit(Event{Type: EventReconciled, TempID: tempID, Message: &confirmedView})

	go s.afterSend(*confirmed)

	return confirmedView, nil
}

// afterSend runs the fire-and-forget side effects. Failures warn and
// never unwind the send.
func (s *Synchronizer) afterSend(m domain.Message) {
	ctx, cancel := context.WithTimeout(context.Background(), sideEffectTimeout)
	defer cancel()

	if m.SenderType == domain.SenderCustomer && s.notifier != nil {
		if !s.notifier.NotifyAdminsOfCustomerMessage(ctx, m) {
			log.Warn().Str("session_id", m.SessionID.String()).Msg("Admin notification was not delivered")
		}
	}
	if err := s.resolver.TouchSession(ctx, m.SessionID); err != nil {
		log.Warn().Err(err).Str("session_id", m.SessionID.String()).Msg("Failed to refresh session after send")
	}
}

// removeOptimistic rolls back a failed send. No-op when the entry is gone,
// e.g. the room was closed and reopened meanwhile.
func (s *Synchronizer) removeOptimistic(tempID uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.pending, tempID)
	for i, m := range s.visible {
		if m.ID == tempID {
			s.visible = append(s.visible[:i], s.visible[i+1:]...)
			return
		}
	}
}

// confirmOptimistic swaps the optimistic entry for the server-confirmed
// row, keeping its list position. If the feed echo already delivered the
// confirmed row, the optimistic entry is dropped instead. No-op when
// neither exists anymore.
func (s *Synchronizer) confirmOptimistic(tempID uuid.UUID, confirmed domain.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.pending, tempID)

	tempIdx, confirmedIdx := -1, -1
	for i, m := range s.visible {
		if m.ID == tempID {
			tempIdx = i
		}
		if m.ID == confirmed.ID {
			confirmedIdx = i
		}
	}

	switch {
	case confirmedIdx >= 0 && tempIdx >= 0:
		s.visible = append(s.visible[:tempIdx], s.visible[tempIdx+1:]...)
	case tempIdx >= 0:
		s.visible[tempIdx] = confirmed
	}
}

// HandleRemoteInsert processes one change-feed event. The feed echoes all
// writes including the viewer's own, so the dedup rules run first:
// discard on id match, then discard self-echoes matching a pending
// optimistic entry by content within the tolerance window. Everything
// else appends in arrival order.
func (s *Synchronizer) HandleRemoteInsert(row gateway.Row) {
	m, err := domain.MessageFromRow(row)
	if err != nil {
		log.Warn().Err(err).Msg("Dropping malformed feed event")
		return
	}

	s.mu.Lock()
	if m.SessionID != s.session.ID {
		s.mu.Unlock()
		return
	}
	for _, existing := range s.visible {
		if existing.ID == m.ID {
			s.mu.Unlock()
			return
		}
	}
	if m.SenderID == s.viewer.ID {
		for _, p := range s.pending {
			if p.Content == m.Content && absDuration(m.CreatedAt.Sub(p.CreatedAt)) <= s.echoTolerance {
				s.mu.Unlock()
				return
			}
		}
	}
	s.visible = append(s.visible, *m)
	s.mu.Unlock()

	v := s.view(*m)
	s.emit(Event{Type: EventMessage, Message: &v})

	if m.SenderID != s.viewer.ID && m.SenderType == s.viewer.Role.SenderType().OtherSide() {
		s.emit(Event{Type: EventAlert, Message: &v})
	}
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
