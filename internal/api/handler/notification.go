package handler

import (
	"encoding/json"
	"net/http"

	"github.com/arangkita/arang-chat/internal/api/middleware"
	"github.com/arangkita/arang-chat/internal/api/response"
	"github.com/arangkita/arang-chat/internal/notify"
)

// NotificationHandler manages push notification tokens
type NotificationHandler struct {
	tokens *notify.TokenStore
}

// NewNotificationHandler creates a new notification handler
func NewNotificationHandler(tokens *notify.TokenStore) *NotificationHandler {
	return &NotificationHandler{tokens: tokens}
}

// RegisterToken stores or refreshes the caller's device token
func (h *NotificationHandler) RegisterToken(w http.ResponseWriter, r *http.Request) {
	identity, ok := middleware.GetIdentity(r.Context())
	if !ok {
		response.Unauthorized(w, "unauthorized")
		return
	}

	var input struct {
		Token string `json:"token" validate:"required"`
	}
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		response.BadRequest(w, "invalid request body")
		return
	}
	if err := validate.Struct(input); err != nil {
		response.BadRequest(w, err.Error())
		return
	}

	if err := h.tokens.Register(r.Context(), identity.ID, identity.Role, input.Token); err != nil {
		response.InternalError(w, err.Error())
		return
	}
	response.NoContent(w)
}
