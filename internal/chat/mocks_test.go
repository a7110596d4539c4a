package chat

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/arangkita/arang-chat/internal/domain"
	"github.com/arangkita/arang-chat/internal/gateway"
	"github.com/google/uuid"
)

// fakeGateway is an in-memory Gateway with a synchronous change feed.
// Inserts echo back to matching subscribers on the caller's goroutine
// before Insert returns, which is the worst-case ordering for the
// optimistic-send reconciliation.
type fakeGateway struct {
	mu     sync.Mutex
	tables map[string][]gateway.Row
	subs   []*fakeSub

	autoEmit     bool
	insertErr    error
	rejectInsert map[string]bool
	rejectUpdate bool
	subscribeErr error

	// insertHook runs at the top of Insert, before the row is stored.
	insertHook func(table string, row gateway.Row)
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		tables:       map[string][]gateway.Row{},
		autoEmit:     true,
		rejectInsert: map[string]bool{},
	}
}

type fakeSub struct {
	gw     *fakeGateway
	table  string
	filter gateway.Filter
	fn     func(gateway.Row)
	closed bool
}

func (s *fakeSub) Close() error {
	s.gw.mu.Lock()
	s.closed = true
	s.gw.mu.Unlock()
	return nil
}

func cloneRow(row gateway.Row) gateway.Row {
	out := make(gateway.Row, len(row))
	for k, v := range row {
		out[k] = v
	}
	return out
}

func (g *fakeGateway) Find(_ context.Context, table string, filter gateway.Filter, order *gateway.Order, limit int) ([]gateway.Row, error) {
	g.mu.Lock()
	var out []gateway.Row
	for _, row := range g.tables[table] {
		if gateway.Match(filter, row) {
			out = append(out, cloneRow(row))
		}
	}
	g.mu.Unlock()

	if order != nil {
		sort.SliceStable(out, func(i, j int) bool {
			a, aok := rowSortTime(out[i], order.Field)
			b, bok := rowSortTime(out[j], order.Field)
			switch {
			case !aok:
				return false
			case !bok:
				return true
			case order.Desc:
				return a.After(b)
			default:
				return a.Before(b)
			}
		})
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func rowSortTime(row gateway.Row, field string) (time.Time, bool) {
	switch v := row[field].(type) {
	case time.Time:
		return v, true
	case string:
		t, err := time.Parse(time.RFC3339Nano, v)
		return t, err == nil
	default:
		return time.Time{}, false
	}
}

func (g *fakeGateway) Insert(_ context.Context, table string, row gateway.Row) (gateway.Row, error) {
	if g.insertHook != nil {
		g.insertHook(table, row)
	}
	if g.insertErr != nil {
		return nil, g.insertErr
	}
	if g.rejectInsert[table] {
		return nil, nil
	}

	stored := cloneRow(row)
	if _, ok := stored["id"]; !ok {
		stored["id"] = uuid.NewString()
	}
	if _, ok := stored["created_at"]; !ok {
		stored["created_at"] = time.Now().UTC()
	}

	g.mu.Lock()
	g.tables[table] = append(g.tables[table], stored)
	g.mu.Unlock()

	if g.autoEmit {
		g.Emit(table, stored)
	}
	return cloneRow(stored), nil
}

func (g *fakeGateway) Update(_ context.Context, table string, filter gateway.Filter, patch gateway.Row) (gateway.Row, error) {
	if g.rejectUpdate {
		return nil, nil
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	var first gateway.Row
	for _, row := range g.tables[table] {
		if !gateway.Match(filter, row) {
			continue
		}
		for k, v := range patch {
			row[k] = v
		}
		if first == nil {
			first = cloneRow(row)
		}
	}
	return first, nil
}

func (g *fakeGateway) Subscribe(_ context.Context, table string, filter gateway.Filter, onInsert func(gateway.Row)) (gateway.Subscription, error) {
	if g.subscribeErr != nil {
		return nil, g.subscribeErr
	}
	sub := &fakeSub{gw: g, table: table, filter: filter, fn: onInsert}
	g.mu.Lock()
	g.subs = append(g.subs, sub)
	g.mu.Unlock()
	return sub, nil
}

// Emit delivers a row to the live subscribers whose filter matches.
func (g *fakeGateway) Emit(table string, row gateway.Row) {
	g.mu.Lock()
	var targets []func(gateway.Row)
	for _, sub := range g.subs {
		if sub.closed || sub.table != table {
			continue
		}
		if gateway.Match(sub.filter, row) {
			targets = append(targets, sub.fn)
		}
	}
	g.mu.Unlock()
	for _, fn := range targets {
		fn(cloneRow(row))
	}
}

func (g *fakeGateway) openSubs(table string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	n := 0
	for _, sub := range g.subs {
		if !sub.closed && sub.table == table {
			n++
		}
	}
	return n
}

func (g *fakeGateway) rows(table string) []gateway.Row {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]gateway.Row, 0, len(g.tables[table]))
	for _, row := range g.tables[table] {
		out = append(out, cloneRow(row))
	}
	return out
}

// seed* helpers write straight into the store without touching the feed.

func seedUser(g *fakeGateway, name string, role domain.Role) domain.User {
	u := domain.User{
		ID:          uuid.New(),
		Email:       strings.ToLower(name) + "@arangkita.id",
		DisplayName: name,
		Role:        role,
		CreatedAt:   time.Now().UTC(),
	}
	g.mu.Lock()
	g.tables[usersTable] = append(g.tables[usersTable], u.Row())
	g.mu.Unlock()
	return u
}

func seedSession(g *fakeGateway, customerID uuid.UUID, status domain.SessionStatus) domain.ChatSession {
	s := domain.ChatSession{
		ID:         uuid.New(),
		CustomerID: customerID,
		Status:     status,
		Topic:      DefaultTopic,
		CreatedAt:  time.Now().UTC(),
	}
	g.mu.Lock()
	g.tables[sessionsTable] = append(g.tables[sessionsTable], s.Row())
	g.mu.Unlock()
	return s
}

func seedMessage(g *fakeGateway, sessionID uuid.UUID, sender domain.User, content string, at time.Time, read *bool) domain.Message {
	m := domain.Message{
		ID:         uuid.New(),
		SessionID:  sessionID,
		SenderID:   sender.ID,
		SenderType: sender.Role.SenderType(),
		Content:    content,
		CreatedAt:  at,
		Read:       read,
	}
	row := m.Row()
	row["id"] = m.ID.String()
	row["created_at"] = at
	g.mu.Lock()
	g.tables[messagesTable] = append(g.tables[messagesTable], row)
	g.mu.Unlock()
	return m
}

func boolPtr(b bool) *bool { return &b }

func identityOf(u domain.User) domain.Identity {
	return domain.Identity{ID: u.ID, Role: u.Role, DisplayName: u.DisplayName}
}

// recordingNotifier counts admin alerts triggered by the send path.
type recordingNotifier struct {
	mu    sync.Mutex
	calls []domain.Message
}

func (n *recordingNotifier) NotifyAdminsOfCustomerMessage(_ context.Context, m domain.Message) bool {
	n.mu.Lock()
	n.calls = append(n.calls, m)
	n.mu.Unlock()
	return true
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.calls)
}

// eventRecorder captures synchronizer events for assertion.
type eventRecorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *eventRecorder) record(e Event) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
}

func (r *eventRecorder) types() []EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]EventType, len(r.events))
	for i, e := range r.events {
		out[i] = e.Type
	}
	return out
}

func (r *eventRecorder) count(t EventType) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.Type == t {
			n++
		}
	}
	return n
}
