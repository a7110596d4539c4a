package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/arangkita/arang-chat/internal/api/middleware"
	"github.com/arangkita/arang-chat/internal/api/response"
	"github.com/arangkita/arang-chat/internal/chat"
	"github.com/arangkita/arang-chat/internal/domain"
	"github.com/arangkita/arang-chat/internal/gateway"
	"github.com/arangkita/arang-chat/internal/notify"
	"github.com/arangkita/arang-chat/internal/security"
	"github.com/google/uuid"
)

// ChatHandler exposes the REST surface of the chat subsystem. Live
// streaming goes through the websocket handler; these endpoints serve
// clients that poll or send one-off messages.
type ChatHandler struct {
	gw       gateway.Gateway
	resolver *chat.SessionResolver
	notifier notify.Notifier
	guard    *security.ContentGuard
}

// NewChatHandler creates a new chat handler
func NewChatHandler(gw gateway.Gateway, resolver *chat.SessionResolver, notifier notify.Notifier, guard *security.ContentGuard) *ChatHandler {
	return &ChatHandler{
		gw:       gw,
		resolver: resolver,
		notifier: notifier,
		guard:    guard,
	}
}

type sendRequest struct {
	Content   string            `json:"content"`
	OrderInfo *domain.OrderInfo `json:"order_info,omitempty"`
}

// Session resolves (or creates) the caller's conversation
func (h *ChatHandler) Session(w http.ResponseWriter, r *http.Request) {
	identity, ok := middleware.GetIdentity(r.Context())
	if !ok {
		response.Unauthorized(w, "unauthorized")
		return
	}

	session, err := h.resolver.ResolveForCustomer(r.Context(), identity.ID)
	if err != nil {
		chatError(w, err)
		return
	}
	response.OK(w, session)
}

// History returns the caller's transcript, oldest first
func (h *ChatHandler) History(w http.ResponseWriter, r *http.Request) {
	identity, ok := middleware.GetIdentity(r.Context())
	if !ok {
		response.Unauthorized(w, "unauthorized")
		return
	}
	h.history(w, r, identity, uuid.Nil)
}

// Send posts one message into the caller's conversation
func (h *ChatHandler) Send(w http.ResponseWriter, r *http.Request) {
	identity, ok := middleware.GetIdentity(r.Context())
	if !ok {
		response.Unauthorized(w, "unauthorized")
		return
	}
	h.send(w, r, identity, uuid.Nil)
}

// AdminSession joins the admin to a customer's conversation, claiming it
// when unassigned
func (h *ChatHandler) AdminSession(w http.ResponseWriter, r *http.Request) {
	identity, customerID, ok := adminScope(w, r)
	if !ok {
		return
	}

	session, err := h.resolver.ResolveForAdmin(r.Context(), identity.ID, customerID)
	if err != nil {
		chatError(w, err)
		return
	}
	response.OK(w, session)
}

// AdminHistory returns a customer's transcript for the admin view
func (h *ChatHandler) AdminHistory(w http.ResponseWriter, r *http.Request) {
	identity, customerID, ok := adminScope(w, r)
	if !ok {
		return
	}
	h.history(w, r, identity, customerID)
}

// AdminSend posts an admin reply into a customer's conversation
func (h *ChatHandler) AdminSend(w http.ResponseWriter, r *http.Request) {
	identity, customerID, ok := adminScope(w, r)
	if !ok {
		return
	}
	h.send(w, r, identity, customerID)
}

func (h *ChatHandler) history(w http.ResponseWriter, r *http.Request, identity domain.Identity, partnerID uuid.UUID) {
	session, messages, err := chat.History(r.Context(), h.gw, h.resolver, identity, partnerID)
	if err != nil {
		chatError(w, err)
		return
	}
	response.OK(w, map[string]any{
		"session":  session,
		"messages": messages,
	})
}

func (h *ChatHandler) send(w http.ResponseWriter, r *http.Request, identity domain.Identity, partnerID uuid.UUID) {
	var input sendRequest
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		response.BadRequest(w, "invalid request body")
		return
	}

	content := security.Sanitize(input.Content)
	if err := h.guard.Validate(content); err != nil {
		response.BadRequest(w, err.Error())
		return
	}

	msg, err := chat.Deliver(r.Context(), h.gw, h.resolver, h.notifier, identity, partnerID, content, input.OrderInfo)
	if err != nil {
		chatError(w, err)
		return
	}
	response.Created(w, msg)
}

func adminScope(w http.ResponseWriter, r *http.Request) (domain.Identity, uuid.UUID, bool) {
	identity, ok := middleware.GetIdentity(r.Context())
	if !ok {
		response.Unauthorized(w, "unauthorized")
		return domain.Identity{}, uuid.Nil, false
	}
	customerID, ok := middleware.GetCustomerID(r.Context())
	if !ok {
		response.BadRequest(w, "missing customer ID")
		return domain.Identity{}, uuid.Nil, false
	}
	return identity, customerID, true
}

// chatError maps domain errors onto HTTP statuses
func chatError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrEmptyMessage):
		response.BadRequest(w, err.Error())
	case errors.Is(err, domain.ErrNoActiveSession):
		response.NotFound(w, err.Error())
	case errors.Is(err, domain.ErrSessionClaimFailed):
		response.Error(w, http.StatusConflict, err.Error())
	case errors.Is(err, domain.ErrSendFailed),
		errors.Is(err, domain.ErrSessionCreationFailed):
		response.Error(w, http.StatusBadGateway, err.Error())
	default:
		response.InternalError(w, err.Error())
	}
}
