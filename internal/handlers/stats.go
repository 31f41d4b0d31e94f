package handlers

import (
	"net/http"
)

// StatsResponse is the aggregate stats response.
type StatsResponse struct {
	Messages    int64 `json:"messages"`
	Calls       int64 `json:"calls"`
	OnlineUsers int   `json:"online_users"`
	Connections int   `json:"connections"`
}

// Stats handles the aggregate counters endpoint. Online figures cover this
// process only; cross-node aggregation belongs to the metrics pipeline.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	messages, err := h.db.CountMessages(r.Context())
	if err != nil {
		h.Error(w, http.StatusServiceUnavailable, "store unavailable")
		return
	}
	calls, err := h.db.CountCalls(r.Context())
	if err != nil {
		h.Error(w, http.StatusServiceUnavailable, "store unavailable")
		return
	}

	h.JSON(w, http.StatusOK, StatsResponse{
		Messages:    messages,
		Calls:       calls,
		OnlineUsers: h.registry.OnlineUsers(),
		Connections: h.registry.Connections(),
	})
}
