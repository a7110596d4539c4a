package chat

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/arangkita/arang-chat/internal/domain"
	"github.com/arangkita/arang-chat/internal/gateway"
	"github.com/arangkita/arang-chat/internal/notify"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSynchronizer(g *fakeGateway, viewer domain.Identity, session *domain.ChatSession, rec *eventRecorder, notifier notify.Notifier) *Synchronizer {
	if notifier == nil {
		notifier = notify.Nop{}
	}
	emit := func(Event) {}
	if rec != nil {
		emit = rec.record
	}
	return newSynchronizer(g, NewSessionResolver(g), notifier, viewer, session, "Admin Arang", DefaultEchoTolerance, emit)
}

func feedRow(m domain.Message) gateway.Row {
	row := m.Row()
	row["id"] = m.ID.String()
	row["created_at"] = m.CreatedAt
	return row
}

// The feed echo of the viewer's own insert can arrive before Insert
// returns. The pending optimistic entry must absorb it: one send, one
// visible message.
func TestSendReconcilesWithImmediateEcho(t *testing.T) {
	g := newFakeGateway()
	customer := seedUser(g, "Budi", domain.RoleCustomer)
	session := seedSession(g, customer.ID, domain.SessionOpen)
	rec := &eventRecorder{}
	s := newTestSynchronizer(g, identityOf(customer), &session, rec, nil)

	_, err := g.Subscribe(context.Background(), messagesTable,
		gateway.Filter{"session_id": session.ID.String()}, s.HandleRemoteInsert)
	require.NoError(t, err)

	view, err := s.Send(context.Background(), "Halo, stok tersedia?", nil)
	require.NoError(t, err)
	assert.False(t, view.Pending)

	views := s.Messages()
	require.Len(t, views, 1)
	assert.Equal(t, view.ID, views[0].ID)
	assert.False(t, views[0].Pending)

	// One optimistic message event, then the reconciliation; the echo
	// produced nothing.
	assert.Equal(t, 1, rec.count(EventMessage))
	assert.Equal(t, 1, rec.count(EventReconciled))
	assert.True(t, rec.events[0].Message.Pending)
}

// The opposite ordering: confirmation first, echo later. The echo is
// dropped by the id match.
func TestSendEchoAfterConfirmIsDeduped(t *testing.T) {
	g := newFakeGateway()
	g.autoEmit = false
	customer := seedUser(g, "Budi", domain.RoleCustomer)
	session := seedSession(g, customer.ID, domain.SessionOpen)
	rec := &eventRecorder{}
	s := newTestSynchronizer(g, identityOf(customer), &session, rec, nil)

	_, err := g.Subscribe(context.Background(), messagesTable,
		gateway.Filter{"session_id": session.ID.String()}, s.HandleRemoteInsert)
	require.NoError(t, err)

	view, err := s.Send(context.Background(), "Halo, stok tersedia?", nil)
	require.NoError(t, err)

	stored := g.rows(messagesTable)
	require.Len(t, stored, 1)
	g.Emit(messagesTable, stored[0])

	views := s.Messages()
	require.Len(t, views, 1)
	assert.Equal(t, view.ID, views[0].ID)
	assert.Equal(t, 1, rec.count(EventMessage))
}

func TestSendFailureRollsBackOptimisticEntry(t *testing.T) {
	g := newFakeGateway()
	g.insertErr = errors.New("connection reset")
	customer := seedUser(g, "Budi", domain.RoleCustomer)
	session := seedSession(g, customer.ID, domain.SessionOpen)
	rec := &eventRecorder{}
	s := newTestSynchronizer(g, identityOf(customer), &session, rec, nil)

	_, err := s.Send(context.Background(), "Halo", nil)
	assert.ErrorIs(t, err, domain.ErrSendFailed)
	assert.Empty(t, s.Messages())
	assert.Equal(t, 1, rec.count(EventRollback))
}

func TestSendRejectedInsertRollsBack(t *testing.T) {
	g := newFakeGateway()
	g.rejectInsert[messagesTable] = true
	customer := seedUser(g, "Budi", domain.RoleCustomer)
	session := seedSession(g, customer.ID, domain.SessionOpen)
	rec := &eventRecorder{}
	s := newTestSynchronizer(g, identityOf(customer), &session, rec, nil)

	_, err := s.Send(context.Background(), "Halo", nil)
	assert.ErrorIs(t, err, domain.ErrSendFailed)
	assert.Empty(t, s.Messages())
	assert.Equal(t, 1, rec.count(EventRollback))
}

func TestSendRejectsEmptyContent(t *testing.T) {
	g := newFakeGateway()
	customer := seedUser(g, "Budi", domain.RoleCustomer)
	session := seedSession(g, customer.ID, domain.SessionOpen)
	rec := &eventRecorder{}
	s := newTestSynchronizer(g, identityOf(customer), &session, rec, nil)

	_, err := s.Send(context.Background(), "   ", nil)
	assert.ErrorIs(t, err, domain.ErrEmptyMessage)
	assert.Empty(t, rec.types())
	assert.Empty(t, g.rows(messagesTable))
}

// A same-content echo with a timestamp outside the tolerance window is a
// genuine repeat message, not an echo, and must be kept.
func TestEchoOutsideToleranceIsKept(t *testing.T) {
	g := newFakeGateway()
	g.autoEmit = false
	customer := seedUser(g, "Budi", domain.RoleCustomer)
	session := seedSession(g, customer.ID, domain.SessionOpen)
	s := newTestSynchronizer(g, identityOf(customer), &session, nil, nil)

	g.insertHook = func(string, gateway.Row) {
		repeat := domain.Message{
			ID:         uuid.New(),
			SessionID:  session.ID,
			SenderID:   customer.ID,
			SenderType: domain.SenderCustomer,
			Content:    "Halo",
			CreatedAt:  time.Now().UTC().Add(3 * time.Second),
		}
		s.HandleRemoteInsert(feedRow(repeat))
	}

	_, err := s.Send(context.Background(), "Halo", nil)
	require.NoError(t, err)
	assert.Len(t, s.Messages(), 2)
}

func TestEchoInsideToleranceIsDropped(t *testing.T) {
	g := newFakeGateway()
	g.autoEmit = false
	customer := seedUser(g, "Budi", domain.RoleCustomer)
	session := seedSession(g, customer.ID, domain.SessionOpen)
	s := newTestSynchronizer(g, identityOf(customer), &session, nil, nil)

	g.insertHook = func(string, gateway.Row) {
		echo := domain.Message{
			ID:         uuid.New(),
			SessionID:  session.ID,
			SenderID:   customer.ID,
			SenderType: domain.SenderCustomer,
			Content:    "Halo",
			CreatedAt:  time.Now().UTC(),
		}
		s.HandleRemoteInsert(feedRow(echo))
	}

	view, err := s.Send(context.Background(), "Halo", nil)
	require.NoError(t, err)

	views := s.Messages()
	require.Len(t, views, 1)
	assert.Equal(t, view.ID, views[0].ID)
}

func TestRemoteInsertDedupesById(t *testing.T) {
	g := newFakeGateway()
	customer := seedUser(g, "Budi", domain.RoleCustomer)
	admin := seedUser(g, "Sari", domain.RoleAdmin)
	session := seedSession(g, customer.ID, domain.SessionActive)
	rec := &eventRecorder{}
	s := newTestSynchronizer(g, identityOf(customer), &session, rec, nil)

	m := domain.Message{
		ID:         uuid.New(),
		SessionID:  session.ID,
		SenderID:   admin.ID,
		SenderType: domain.SenderAdmin,
		Content:    "Ya, tersedia",
		CreatedAt:  time.Now().UTC(),
	}
	s.HandleRemoteInsert(feedRow(m))
	s.HandleRemoteInsert(feedRow(m))

	assert.Len(t, s.Messages(), 1)
	assert.Equal(t, 1, rec.count(EventMessage))
}

func TestRemoteInsertIgnoresOtherSessions(t *testing.T) {
	g := newFakeGateway()
	customer := seedUser(g, "Budi", domain.RoleCustomer)
	session := seedSession(g, customer.ID, domain.SessionActive)
	s := newTestSynchronizer(g, identityOf(customer), &session, nil, nil)

	stray := domain.Message{
		ID:         uuid.New(),
		SessionID:  uuid.New(),
		SenderID:   uuid.New(),
		SenderType: domain.SenderAdmin,
		Content:    "salah kamar",
		CreatedAt:  time.Now().UTC(),
	}
	s.HandleRemoteInsert(feedRow(stray))
	assert.Empty(t, s.Messages())
}

func TestAlertOnlyForOtherParty(t *testing.T) {
	g := newFakeGateway()
	customer := seedUser(g, "Budi", domain.RoleCustomer)
	admin := seedUser(g, "Sari", domain.RoleAdmin)
	session := seedSession(g, customer.ID, domain.SessionActive)
	rec := &eventRecorder{}
	s := newTestSynchronizer(g, identityOf(customer), &session, rec, nil)

	fromAdmin := domain.Message{
		ID: uuid.New(), SessionID: session.ID, SenderID: admin.ID,
		SenderType: domain.SenderAdmin, Content: "Ya", CreatedAt: time.Now().UTC(),
	}
	s.HandleRemoteInsert(feedRow(fromAdmin))
	assert.Equal(t, 1, rec.count(EventAlert))

	sameSide := domain.Message{
		ID: uuid.New(), SessionID: session.ID, SenderID: uuid.New(),
		SenderType: domain.SenderCustomer, Content: "Halo juga", CreatedAt: time.Now().UTC(),
	}
	s.HandleRemoteInsert(feedRow(sameSide))
	assert.Equal(t, 1, rec.count(EventAlert))
	assert.Equal(t, 2, rec.count(EventMessage))
}

func TestLoadHistorySortedWithSenderNames(t *testing.T) {
	g := newFakeGateway()
	customer := seedUser(g, "Budi", domain.RoleCustomer)
	admin := seedUser(g, "Sari", domain.RoleAdmin)
	session := seedSession(g, customer.ID, domain.SessionActive)
	base := time.Now().UTC().Add(-time.Hour)
	seedMessage(g, session.ID, admin, "kedua", base.Add(2*time.Minute), nil)
	seedMessage(g, session.ID, customer, "pertama", base, nil)
	seedMessage(g, session.ID, customer, "ketiga", base.Add(4*time.Minute), nil)

	s := newTestSynchronizer(g, identityOf(customer), &session, nil, nil)
	require.NoError(t, s.LoadHistory(context.Background()))

	views := s.Messages()
	require.Len(t, views, 3)
	assert.Equal(t, "pertama", views[0].Content)
	assert.Equal(t, "kedua", views[1].Content)
	assert.Equal(t, "ketiga", views[2].Content)
	assert.Equal(t, "Budi", views[0].SenderName)
	assert.Equal(t, "Admin Arang", views[1].SenderName)
}

func TestSendSideEffectsForCustomer(t *testing.T) {
	g := newFakeGateway()
	customer := seedUser(g, "Budi", domain.RoleCustomer)
	session := seedSession(g, customer.ID, domain.SessionOpen)
	notifier := &recordingNotifier{}
	s := newTestSynchronizer(g, identityOf(customer), &session, nil, notifier)

	_, err := s.Send(context.Background(), "Halo", nil)
	require.NoError(t, err)

	// Admin notification and session touch run fire-and-forget.
	assert.Eventually(t, func() bool { return notifier.count() == 1 }, time.Second, 5*time.Millisecond)
	assert.Eventually(t, func() bool {
		rows := g.rows(sessionsTable)
		return len(rows) == 1 && rows[0]["status"] == string(domain.SessionActive)
	}, time.Second, 5*time.Millisecond)
}

func TestSendSideEffectsForAdmin(t *testing.T) {
	g := newFakeGateway()
	customer := seedUser(g, "Budi", domain.RoleCustomer)
	admin := seedUser(g, "Sari", domain.RoleAdmin)
	session := seedSession(g, customer.ID, domain.SessionActive)
	notifier := &recordingNotifier{}
	s := newTestSynchronizer(g, identityOf(admin), &session, nil, notifier)

	_, err := s.Send(context.Background(), "Ya, tersedia", nil)
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		rows := g.rows(sessionsTable)
		if len(rows) != 1 {
			return false
		}
		_, touched := rows[0]["last_message_at"].(time.Time)
		return touched
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, 0, notifier.count())
}
