package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/mhg840372-dotcom/quickchatx-backend-sub000/internal/bus"
	"github.com/mhg840372-dotcom/quickchatx-backend-sub000/internal/call"
	"github.com/mhg840372-dotcom/quickchatx-backend-sub000/internal/chat"
	"github.com/mhg840372-dotcom/quickchatx-backend-sub000/internal/errs"
	"github.com/mhg840372-dotcom/quickchatx-backend-sub000/internal/presence"
	"github.com/mhg840372-dotcom/quickchatx-backend-sub000/internal/store"
)

// Handler contains shared dependencies for all HTTP handlers.
type Handler struct {
	chat     *chat.Service
	presence *presence.Service
	calls    *call.Service
	registry *bus.Registry
	db       store.DataStore
	broker   store.Broker
	logger   zerolog.Logger
}

// NewHandler creates a new Handler with the given services.
func NewHandler(
	chatSvc *chat.Service,
	presenceSvc *presence.Service,
	callSvc *call.Service,
	registry *bus.Registry,
	db store.DataStore,
	broker store.Broker,
	logger zerolog.Logger,
) *Handler {
	return &Handler{
		chat:     chatSvc,
		presence: presenceSvc,
		calls:    callSvc,
		registry: registry,
		db:       db,
		broker:   broker,
		logger:   logger,
	}
}

// JSON sends a JSON response with the given status code.
func (h *Handler) JSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// Error sends a JSON error response with the given status code.
func (h *Handler) Error(w http.ResponseWriter, status int, message string) {
	h.JSON(w, status, map[string]string{"error": message})
}

// Fail maps a service error onto an HTTP response by its code.
func (h *Handler) Fail(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch errs.CodeOf(err) {
	case errs.CodeInvalidArgument:
		status = http.StatusBadRequest
	case errs.CodeNotFound:
		status = http.StatusNotFound
	case errs.CodePermissionDenied:
		status = http.StatusForbidden
	case errs.CodeFailedPrecondition:
		status = http.StatusConflict
	case errs.CodeUnavailable:
		status = http.StatusServiceUnavailable
	}
	if status == http.StatusInternalServerError || status == http.StatusServiceUnavailable {
		h.logger.Error().Err(err).Msg("request failed")
	}
	h.Error(w, status, err.Error())
}
