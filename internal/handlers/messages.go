package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mhg840372-dotcom/quickchatx-backend-sub000/internal/api/middleware"
	"github.com/mhg840372-dotcom/quickchatx-backend-sub000/internal/chat"
	"github.com/mhg840372-dotcom/quickchatx-backend-sub000/internal/models"
)

// SendMessageRequest is the send message request body.
type SendMessageRequest struct {
	RecipientID string `json:"recipient_id"`
	Body        string `json:"body"`
	MediaRef    string `json:"media_ref"`
	Kind        string `json:"kind"`
}

// SendMessage handles sending a message to another user.
func (h *Handler) SendMessage(w http.ResponseWriter, r *http.Request) {
	id := middleware.GetIdentityFromContext(r.Context())

	var req SendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	msg, err := h.chat.Send(r.Context(), id.UserID, req.RecipientID, chat.SendInput{
		Body:     req.Body,
		MediaRef: req.MediaRef,
		Kind:     models.MessageKind(req.Kind),
	})
	if err != nil {
		h.Fail(w, err)
		return
	}

	h.JSON(w, http.StatusCreated, msg)
}

// History handles reading conversation history with another user.
func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	id := middleware.GetIdentityFromContext(r.Context())
	peerID := chi.URLParam(r, "peerID")

	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	if limit > 200 {
		limit = 200
	}
	includeDeleted := r.URL.Query().Get("include_deleted") == "true"

	messages, err := h.chat.History(r.Context(), id.UserID, peerID, limit, includeDeleted)
	if err != nil {
		h.Fail(w, err)
		return
	}

	h.JSON(w, http.StatusOK, map[string]interface{}{
		"conversation_id": models.ConversationID(id.UserID, peerID),
		"messages":        messages,
	})
}

// MarkRead handles flagging a conversation's unread messages as read.
func (h *Handler) MarkRead(w http.ResponseWriter, r *http.Request) {
	id := middleware.GetIdentityFromContext(r.Context())
	peerID := chi.URLParam(r, "peerID")

	receipt, err := h.chat.MarkRead(r.Context(), models.ConversationID(id.UserID, peerID), id.UserID)
	if err != nil {
		h.Fail(w, err)
		return
	}

	h.JSON(w, http.StatusOK, receipt)
}

// DeleteMessage handles soft-deleting a message.
func (h *Handler) DeleteMessage(w http.ResponseWriter, r *http.Request) {
	id := middleware.GetIdentityFromContext(r.Context())

	receipt, err := h.chat.SoftDelete(r.Context(), chi.URLParam(r, "id"), id.UserID)
	if err != nil {
		h.Fail(w, err)
		return
	}

	h.JSON(w, http.StatusOK, receipt)
}

// RestoreMessage handles restoring a soft-deleted message.
func (h *Handler) RestoreMessage(w http.ResponseWriter, r *http.Request) {
	id := middleware.GetIdentityFromContext(r.Context())

	msg, err := h.chat.Restore(r.Context(), chi.URLParam(r, "id"), id.UserID)
	if err != nil {
		h.Fail(w, err)
		return
	}

	h.JSON(w, http.StatusOK, msg)
}

// Search handles searching the caller's recent messages.
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	id := middleware.GetIdentityFromContext(r.Context())

	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 100 {
			limit = n
		}
	}

	results, err := h.chat.Search(r.Context(), id.UserID, r.URL.Query().Get("q"), limit)
	if err != nil {
		h.Fail(w, err)
		return
	}

	h.JSON(w, http.StatusOK, map[string]interface{}{"messages": results})
}

// PurgeDeleted handles the maintenance purge of old soft-deleted messages.
// It sits on the maintenance surface, not the request path clients use.
func (h *Handler) PurgeDeleted(w http.ResponseWriter, r *http.Request) {
	days := 30
	if v := r.URL.Query().Get("older_than_days"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			days = n
		}
	}

	count, err := h.chat.PurgeDeleted(r.Context(), time.Now().UTC().AddDate(0, 0, -days))
	if err != nil {
		h.Fail(w, err)
		return
	}

	h.JSON(w, http.StatusOK, map[string]int64{"purged": count})
}
