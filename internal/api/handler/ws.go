package handler

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/arangkita/arang-chat/internal/api/middleware"
	"github.com/arangkita/arang-chat/internal/api/response"
	"github.com/arangkita/arang-chat/internal/chat"
	"github.com/arangkita/arang-chat/internal/domain"
	"github.com/arangkita/arang-chat/internal/gateway"
	"github.com/arangkita/arang-chat/internal/notify"
	"github.com/arangkita/arang-chat/internal/security"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const (
	wsWriteWait      = 10 * time.Second
	wsPongWait       = 60 * time.Second
	wsPingPeriod     = (wsPongWait * 9) / 10
	wsMaxMessageSize = 4096
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The mobile client connects from an app scheme, not a browser page.
	CheckOrigin: func(*http.Request) bool { return true },
}

// WSHandler streams conversations and the admin inbox over websockets
type WSHandler struct {
	gw            gateway.Gateway
	resolver      *chat.SessionResolver
	notifier      notify.Notifier
	guard         *security.ContentGuard
	echoTolerance time.Duration
}

// NewWSHandler creates a new websocket handler
func NewWSHandler(gw gateway.Gateway, resolver *chat.SessionResolver, notifier notify.Notifier, guard *security.ContentGuard, echoTolerance time.Duration) *WSHandler {
	return &WSHandler{
		gw:            gw,
		resolver:      resolver,
		notifier:      notifier,
		guard:         guard,
		echoTolerance: echoTolerance,
	}
}

// wsCommand is the client-to-server frame
type wsCommand struct {
	Type      string            `json:"type"`
	Content   string            `json:"content,omitempty"`
	OrderInfo *domain.OrderInfo `json:"order_info,omitempty"`
}

// Chat mounts one conversation on a websocket. The room is opened before
// the upgrade so resolution errors still return proper HTTP statuses.
func (h *WSHandler) Chat(w http.ResponseWriter, r *http.Request) {
	identity, ok := middleware.GetIdentity(r.Context())
	if !ok {
		response.Unauthorized(w, "unauthorized")
		return
	}

	partnerID := uuid.Nil
	if identity.Role == domain.RoleAdmin {
		if id, ok := middleware.GetCustomerID(r.Context()); ok {
			partnerID = id
		} else {
			parsed, err := uuid.Parse(r.URL.Query().Get("customer_id"))
			if err != nil {
				response.BadRequest(w, "missing customer ID")
				return
			}
			partnerID = parsed
		}
	}

	room := chat.NewRoom(h.gw, h.resolver, h.notifier, identity, h.echoTolerance)
	session, err := room.Open(r.Context(), partnerID)
	if err != nil {
		chatError(w, err)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		room.Close()
		log.Warn().Err(err).Msg("Chat websocket upgrade failed")
		return
	}

	history, _ := room.Messages()

	ctx, cancel := context.WithCancel(context.Background())
	client := &wsChatClient{conn: conn, room: room, local: make(chan chat.Event, 8)}
	go client.writePump(ctx, session, history)
	client.readPump(ctx, cancel, h.guard)

	room.Close()
	conn.Close()
}

type wsChatClient struct {
	conn  *websocket.Conn
	room  *chat.Room
	local chan chat.Event // handler-side events, e.g. validation failures
}

func (c *wsChatClient) readPump(ctx context.Context, cancel context.CancelFunc, guard *security.ContentGuard) {
	defer cancel()
	c.conn.SetReadLimit(wsMaxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	for {
		var cmd wsCommand
		if err := c.conn.ReadJSON(&cmd); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Warn().Err(err).Msg("Chat websocket closed unexpectedly")
			}
			return
		}

		switch cmd.Type {
		case "send":
			content := security.Sanitize(cmd.Content)
			if err := guard.Validate(content); err != nil {
				c.pushError(err)
				continue
			}
			if _, err := c.room.Send(ctx, content, cmd.OrderInfo); err != nil {
				c.pushError(err)
			}
		default:
			c.pushError(fmt.Errorf("unknown command %q", cmd.Type))
		}
	}
}

func (c *wsChatClient) pushError(err error) {
	select {
	case c.local <- chat.Event{Type: chat.EventError, Error: err.Error()}:
	default:
	}
}

func (c *wsChatClient) writePump(ctx context.Context, session *domain.ChatSession, history []chat.MessageView) {
	ticker := time.NewTicker(wsPingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	if err := c.writeJSON(map[string]any{
		"type":     "history",
		"session":  session,
		"messages": history,
	}); err != nil {
		return
	}

	for {
		select {
		case <-ctx.Done():
			c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		case e := <-c.room.Events():
			if err := c.writeJSON(e); err != nil {
				return
			}
		case e := <-c.local:
			if err := c.writeJSON(e); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *wsChatClient) writeJSON(v any) error {
	c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	return c.conn.WriteJSON(v)
}

// Inbox streams the ranked conversation roster to an admin client,
// pushing a fresh ranking after every message insert.
func (h *WSHandler) Inbox(w http.ResponseWriter, r *http.Request) {
	identity, ok := middleware.GetIdentity(r.Context())
	if !ok {
		response.Unauthorized(w, "unauthorized")
		return
	}

	aggregator := chat.NewInboxAggregator(h.gw, identity)
	if err := aggregator.Start(r.Context()); err != nil {
		response.InternalError(w, err.Error())
		return
	}
	defer aggregator.Close()

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("Inbox websocket upgrade failed")
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Reader only services pongs and close frames; the inbox has no
	// client commands.
	go func() {
		defer cancel()
		conn.SetReadLimit(wsMaxMessageSize)
		conn.SetReadDeadline(time.Now().Add(wsPongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(wsPongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	writeRoster := func(list []domain.ChatUserSummary) error {
		conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
		return conn.WriteJSON(map[string]any{
			"type":          "inbox",
			"conversations": list,
		})
	}

	if err := writeRoster(aggregator.Summaries()); err != nil {
		return
	}

	ticker := time.NewTicker(wsPingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case list := <-aggregator.Updates():
			if err := writeRoster(list); err != nil {
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
