package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mhg840372-dotcom/quickchatx-backend-sub000/internal/api/middleware"
	"github.com/mhg840372-dotcom/quickchatx-backend-sub000/internal/models"
)

// GetPresence handles reading another user's presence (fast path).
func (h *Handler) GetPresence(w http.ResponseWriter, r *http.Request) {
	p, err := h.presence.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.Fail(w, err)
		return
	}
	h.JSON(w, http.StatusOK, p)
}

// SetStatusRequest is the explicit status change request body.
type SetStatusRequest struct {
	Status string `json:"status"`
}

// SetStatus handles an explicit presence status change.
func (h *Handler) SetStatus(w http.ResponseWriter, r *http.Request) {
	id := middleware.GetIdentityFromContext(r.Context())

	var req SetStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	if err := h.presence.SetStatus(r.Context(), id.UserID, models.PresenceStatus(req.Status)); err != nil {
		h.Fail(w, err)
		return
	}
	h.JSON(w, http.StatusOK, map[string]string{"status": req.Status})
}

// SetTypingRequest is the typing heartbeat request body.
type SetTypingRequest struct {
	PeerID   string `json:"peer_id"`
	IsTyping bool   `json:"is_typing"`
}

// SetTyping handles a typing indicator heartbeat over HTTP. Most clients
// send these over the socket instead.
func (h *Handler) SetTyping(w http.ResponseWriter, r *http.Request) {
	id := middleware.GetIdentityFromContext(r.Context())

	var req SetTypingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	conversationID := models.ConversationID(id.UserID, req.PeerID)
	if err := h.presence.SetTyping(r.Context(), id.UserID, conversationID, req.IsTyping); err != nil {
		h.Fail(w, err)
		return
	}
	h.JSON(w, http.StatusOK, map[string]bool{"is_typing": req.IsTyping})
}
