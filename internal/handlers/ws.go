package handlers

import (
	"context"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/mhg840372-dotcom/quickchatx-backend-sub000/internal/api/middleware"
	"github.com/mhg840372-dotcom/quickchatx-backend-sub000/internal/models"
	"github.com/mhg840372-dotcom/quickchatx-backend-sub000/internal/ws"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// Cross-origin policy is the fronting proxy's concern; identities are
	// already resolved before this handler runs.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Connect upgrades the request to a websocket, registers the connection
// under the requested channel and drives it until disconnect. Disconnect
// deregisters the connection and, when it was the user's last one, runs the
// presence offline transition.
func (h *Handler) Connect(w http.ResponseWriter, r *http.Request) {
	id := middleware.GetIdentityFromContext(r.Context())

	channel := models.Channel(r.URL.Query().Get("channel"))
	if channel == "" {
		channel = models.ChannelMessaging
	}
	if !channel.Valid() {
		h.Error(w, http.StatusBadRequest, "unknown channel")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	client := ws.NewClient(conn, h.logger)
	connID := h.registry.Register(id.UserID, channel, client)

	// Registration makes the user reachable; flip presence before any
	// event can race the connect.
	ctx := r.Context()
	if err := h.presence.HandleConnect(ctx, id.UserID); err != nil {
		h.logger.Warn().Err(err).Str("user_id", id.UserID).Msg("presence connect transition failed")
	}

	h.logger.Info().
		Str("user_id", id.UserID).
		Str("channel", string(channel)).
		Str("conn_id", connID).
		Msg("connection registered")

	client.Run(func(in ws.Inbound) {
		h.handleInbound(id.UserID, connID, in)
	})

	userID, last := h.registry.Deregister(connID)
	if last && userID != "" {
		// A disconnect cancels nothing in flight; it only drives the
		// presence transition.
		if err := h.presence.HandleDisconnect(ctx, userID); err != nil {
			h.logger.Warn().Err(err).Str("user_id", userID).Msg("presence disconnect transition failed")
		}
	}

	h.logger.Info().
		Str("user_id", id.UserID).
		Str("conn_id", connID).
		Msg("connection closed")
}

// handleInbound dispatches a client frame received over the socket.
func (h *Handler) handleInbound(userID, connID string, in ws.Inbound) {
	ctx := context.Background()

	switch in.Action {
	case "join":
		if h.canJoin(userID, in.Room) {
			h.registry.JoinRoom(in.Room, connID)
		}
	case "leave":
		h.registry.LeaveRoom(in.Room, connID)
	case "typing":
		if err := h.presence.SetTyping(ctx, userID, in.ConversationID, in.IsTyping); err != nil {
			h.logger.Debug().Err(err).Msg("typing update rejected")
		}
	case "status":
		if err := h.presence.SetStatus(ctx, userID, models.PresenceStatus(in.Status)); err != nil {
			h.logger.Debug().Err(err).Msg("status update rejected")
		}
	}
}

// canJoin restricts room subscriptions to the global presence room and the
// caller's own conversations.
func (h *Handler) canJoin(userID, room string) bool {
	if room == models.PresenceRoom {
		return true
	}
	a, b, ok := models.ConversationParticipants(room)
	return ok && (userID == a || userID == b)
}
