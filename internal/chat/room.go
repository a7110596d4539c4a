package chat

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/arangkita/arang-chat/internal/domain"
	"github.com/arangkita/arang-chat/internal/gateway"
	"github.com/arangkita/arang-chat/internal/notify"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// ErrRoomNotOpen is returned when Send or Messages is called before Open.
var ErrRoomNotOpen = errors.New("chat room is not open")

const roomEventBuffer = 256

// Room binds a session resolver and a message synchronizer to one mounted
// conversation view. The live-feed handle is owned by the room and
// released exactly once per Open/Close pairing; reopening with a
// different partner closes the prior binding first.
type Room struct {
	gw            gateway.Gateway
	resolver      *SessionResolver
	notifier      notify.Notifier
	viewer        domain.Identity
	echoTolerance time.Duration

	sync   *Synchronizer
	sub    gateway.Subscription
	events chan Event
}

// NewRoom creates an unopened room for the viewer
func NewRoom(gw gateway.Gateway, resolver *SessionResolver, notifier notify.Notifier, viewer domain.Identity, echoTolerance time.Duration) *Room {
	return &Room{
		gw:            gw,
		resolver:      resolver,
		notifier:      notifier,
		viewer:        viewer,
		echoTolerance: echoTolerance,
		events:        make(chan Event, roomEventBuffer),
	}
}

// Open resolves the session, loads history, then attaches the live
// subscription, strictly in that order. The dedup rules make the
// subscription idempotent against events for rows already in the history
// load. partnerID is the customer to join when the viewer is an admin and
// is ignored for customers.
func (r *Room) Open(ctx context.Context, partnerID uuid.UUID) (*domain.ChatSession, error) {
	r.Close()

	var (
		session *domain.ChatSession
		err     error
	)
	if r.viewer.Role == domain.RoleAdmin {
		session, err = r.resolver.ResolveForAdmin(ctx, r.viewer.ID, partnerID)
	} else {
		session, err = r.resolver.ResolveForCustomer(ctx, r.viewer.ID)
	}
	if err != nil {
		return nil, err
	}

	partnerName := r.partnerDisplayName(ctx, session)
	s := newSynchronizer(r.gw, r.resolver, r.notifier, r.viewer, session, partnerName, r.echoTolerance, r.emit)

	if err := s.LoadHistory(ctx); err != nil {
		return nil, err
	}

	sub, err := r.gw.Subscribe(ctx, messagesTable,
		gateway.Filter{"session_id": session.ID.String()},
		s.HandleRemoteInsert)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrSubscription, err)
	}

	r.sync = s
	r.sub = sub
	return session, nil
}

// partnerDisplayName caches the other party's name for per-render sender
// resolution. Falls back to a generic label when the partner is unknown
// (e.g. no admin has claimed the session yet).
func (r *Room) partnerDisplayName(ctx context.Context, session *domain.ChatSession) string {
	var partnerID uuid.UUID
	fallback := "Admin Arang"
	if r.viewer.Role == domain.RoleAdmin {
		partnerID = session.CustomerID
		fallback = "Pelanggan"
	} else if session.AdminID != nil {
		partnerID = *session.AdminID
	} else {
		return fallback
	}

	rows, err := r.gw.Find(ctx, usersTable, gateway.Filter{"id": partnerID.String()}, nil, 1)
	if err != nil || len(rows) == 0 {
		return fallback
	}
	user, err := domain.UserFromRow(rows[0])
	if err != nil || user.DisplayName == "" {
		return fallback
	}
	return user.DisplayName
}

// Send submits a message through the synchronizer.
func (r *Room) Send(ctx context.Context, content string, orderInfo *domain.OrderInfo) (MessageView, error) {
	if r.sync == nil {
		return MessageView{}, ErrRoomNotOpen
	}
	return r.sync.Send(ctx, content, orderInfo)
}

// Messages returns the visible list for the current binding.
func (r *Room) Messages() ([]MessageView, error) {
	if r.sync == nil {
		return nil, ErrRoomNotOpen
	}
	return r.sync.Messages(), nil
}

// Session returns the currently bound session, or nil.
func (r *Room) Session() *domain.ChatSession {
	if r.sync == nil {
		return nil
	}
	return r.sync.session
}

// Events is the room's update stream. The channel survives reopen.
func (r *Room) Events() <-chan Event {
	return r.events
}

// Close releases the feed subscription. Safe to call on every exit path,
// including when nothing is open; in-flight sends that resolve afterwards
// reconcile against the detached synchronizer as a no-op.
func (r *Room) Close() {
	if r.sub != nil {
		if err := r.sub.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close room subscription")
		}
		r.sub = nil
	}
	r.sync = nil
}

// emit pushes an event without blocking the feed goroutine. A saturated
// consumer loses events rather than stalling delivery.
func (r *Room) emit(e Event) {
	select {
	case r.events <- e:
	default:
		log.Warn().Str("type", string(e.Type)).Msg("Room event buffer full, dropping event")
	}
}
