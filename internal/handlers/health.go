package handlers

import (
	"net/http"
	"time"
)

// HealthResponse reports component health.
type HealthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
	Time   string            `json:"time"`
}

// Health handles the health check. The broker being down degrades rather
// than fails the check: durable correctness does not depend on it.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	checks := map[string]string{}
	status := "ok"
	code := http.StatusOK

	if err := h.db.Ping(r.Context()); err != nil {
		checks["store"] = "down"
		status = "unhealthy"
		code = http.StatusServiceUnavailable
	} else {
		checks["store"] = "ok"
	}

	if err := h.broker.Ping(r.Context()); err != nil {
		checks["broker"] = "down"
		if status == "ok" {
			status = "degraded"
		}
	} else {
		checks["broker"] = "ok"
	}

	h.JSON(w, code, HealthResponse{
		Status: status,
		Checks: checks,
		Time:   time.Now().UTC().Format(time.RFC3339),
	})
}
