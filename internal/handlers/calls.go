package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/mhg840372-dotcom/quickchatx-backend-sub000/internal/api/middleware"
	"github.com/mhg840372-dotcom/quickchatx-backend-sub000/internal/models"
)

// StartCallRequest is the start call request body.
type StartCallRequest struct {
	ReceiverID string `json:"receiver_id"`
	Kind       string `json:"kind"`
}

// StartCall handles starting a call.
func (h *Handler) StartCall(w http.ResponseWriter, r *http.Request) {
	id := middleware.GetIdentityFromContext(r.Context())

	var req StartCallRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	c, err := h.calls.Start(r.Context(), id.UserID, req.ReceiverID, models.CallKind(req.Kind))
	if err != nil {
		h.Fail(w, err)
		return
	}

	h.JSON(w, http.StatusCreated, c)
}

// AcceptCall handles accepting a ringing call.
func (h *Handler) AcceptCall(w http.ResponseWriter, r *http.Request) {
	id := middleware.GetIdentityFromContext(r.Context())

	c, err := h.calls.Accept(r.Context(), chi.URLParam(r, "id"), id.UserID)
	if err != nil {
		h.Fail(w, err)
		return
	}
	h.JSON(w, http.StatusOK, c)
}

// RejectCall handles rejecting a ringing call.
func (h *Handler) RejectCall(w http.ResponseWriter, r *http.Request) {
	id := middleware.GetIdentityFromContext(r.Context())

	c, err := h.calls.Reject(r.Context(), chi.URLParam(r, "id"), id.UserID)
	if err != nil {
		h.Fail(w, err)
		return
	}
	h.JSON(w, http.StatusOK, c)
}

// CancelCall handles the caller withdrawing a ringing call.
func (h *Handler) CancelCall(w http.ResponseWriter, r *http.Request) {
	id := middleware.GetIdentityFromContext(r.Context())

	c, err := h.calls.Cancel(r.Context(), chi.URLParam(r, "id"), id.UserID)
	if err != nil {
		h.Fail(w, err)
		return
	}
	h.JSON(w, http.StatusOK, c)
}

// EndCall handles ending an active call.
func (h *Handler) EndCall(w http.ResponseWriter, r *http.Request) {
	id := middleware.GetIdentityFromContext(r.Context())

	c, err := h.calls.End(r.Context(), chi.URLParam(r, "id"), id.UserID)
	if err != nil {
		h.Fail(w, err)
		return
	}
	h.JSON(w, http.StatusOK, c)
}

// MissCall marks a ringing call as missed. Maintenance surface: driven by
// the external ring-timeout policy.
func (h *Handler) MissCall(w http.ResponseWriter, r *http.Request) {
	c, err := h.calls.MarkMissed(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.Fail(w, err)
		return
	}
	h.JSON(w, http.StatusOK, c)
}

// CallHistory handles listing the caller's terminal call records.
func (h *Handler) CallHistory(w http.ResponseWriter, r *http.Request) {
	id := middleware.GetIdentityFromContext(r.Context())

	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 200 {
			limit = n
		}
	}

	records, err := h.calls.History(r.Context(), id.UserID, limit)
	if err != nil {
		h.Fail(w, err)
		return
	}
	h.JSON(w, http.StatusOK, map[string]interface{}{"calls": records})
}
