package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/arangkita/arang-chat/internal/api/middleware"
	"github.com/arangkita/arang-chat/internal/api/response"
	"github.com/arangkita/arang-chat/internal/chat"
	"github.com/arangkita/arang-chat/internal/domain"
	"github.com/arangkita/arang-chat/internal/gateway"
	"github.com/google/uuid"
)

// InboxHandler serves the admin inbox over REST. Each request computes a
// fresh ranking; the websocket handler owns the live-updating variant.
type InboxHandler struct {
	gw gateway.Gateway
}

// NewInboxHandler creates a new inbox handler
func NewInboxHandler(gw gateway.Gateway) *InboxHandler {
	return &InboxHandler{gw: gw}
}

// List returns the ranked conversation roster. The optional q parameter
// filters by customer display name, case-insensitive.
func (h *InboxHandler) List(w http.ResponseWriter, r *http.Request) {
	identity, ok := middleware.GetIdentity(r.Context())
	if !ok {
		response.Unauthorized(w, "unauthorized")
		return
	}

	aggregator := chat.NewInboxAggregator(h.gw, identity)
	summaries, err := aggregator.Refresh(r.Context())
	if err != nil {
		response.InternalError(w, err.Error())
		return
	}

	if q := strings.TrimSpace(r.URL.Query().Get("q")); q != "" {
		q = strings.ToLower(q)
		filtered := summaries[:0]
		for _, s := range summaries {
			if strings.Contains(strings.ToLower(s.DisplayName), q) {
				filtered = append(filtered, s)
			}
		}
		summaries = filtered
	}

	response.OK(w, summaries)
}

// MarkRead flips one message's read flag
func (h *InboxHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	identity, ok := middleware.GetIdentity(r.Context())
	if !ok {
		response.Unauthorized(w, "unauthorized")
		return
	}

	var input struct {
		MessageID uuid.UUID `json:"message_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil || input.MessageID == uuid.Nil {
		response.BadRequest(w, "invalid request body")
		return
	}

	aggregator := chat.NewInboxAggregator(h.gw, identity)
	if err := aggregator.MarkAsRead(r.Context(), input.MessageID); err != nil {
		if errors.Is(err, domain.ErrMarkReadFailed) {
			response.Error(w, http.StatusBadGateway, err.Error())
			return
		}
		response.InternalError(w, err.Error())
		return
	}
	response.NoContent(w)
}

// MarkAllRead flips every unread customer message
func (h *InboxHandler) MarkAllRead(w http.ResponseWriter, r *http.Request) {
	identity, ok := middleware.GetIdentity(r.Context())
	if !ok {
		response.Unauthorized(w, "unauthorized")
		return
	}

	aggregator := chat.NewInboxAggregator(h.gw, identity)
	if err := aggregator.MarkAllAsRead(r.Context()); err != nil {
		response.Error(w, http.StatusBadGateway, err.Error())
		return
	}
	response.OK(w, aggregator.Summaries())
}
