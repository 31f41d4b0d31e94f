package presence

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog"

	"github.com/mhg840372-dotcom/quickchatx-backend-sub000/internal/errs"
	"github.com/mhg840372-dotcom/quickchatx-backend-sub000/internal/metrics"
	"github.com/mhg840372-dotcom/quickchatx-backend-sub000/internal/models"
	"github.com/mhg840372-dotcom/quickchatx-backend-sub000/internal/store"
)

// Deliverer fans events out to live connections across all processes.
type Deliverer interface {
	DeliverToUser(ctx context.Context, userID, event string, payload interface{})
	DeliverToRoom(ctx context.Context, roomID, event string, payload interface{})
}

// TTLs configures how long broker copies of presence state live.
type TTLs struct {
	Online time.Duration // TTL while online
	Status time.Duration // TTL for away/busy/offline
	Typing time.Duration // typing indicator self-healing window
}

// DefaultTTLs returns the standard decay windows.
func DefaultTTLs() TTLs {
	return TTLs{
		Online: 1200 * time.Second,
		Status: 300 * time.Second,
		Typing: 10 * time.Second,
	}
}

// Service owns status, typing and connection-driven presence transitions.
// Durable snapshots are the system of record; TTL'd broker copies serve fast
// reads and decay to offline when not refreshed. All broker writes here are
// fire-and-forget: a broker failure degrades fast-read availability, never
// correctness.
type Service struct {
	db     store.DataStore
	broker store.Broker
	bus    Deliverer
	ttls   TTLs
	logger zerolog.Logger
	now    func() time.Time
}

// NewService creates the presence manager.
func NewService(db store.DataStore, broker store.Broker, bus Deliverer, ttls TTLs, logger zerolog.Logger) *Service {
	return &Service{
		db:     db,
		broker: broker,
		bus:    bus,
		ttls:   ttls,
		logger: logger.With().Str("component", "presence").Logger(),
		now:    time.Now,
	}
}

func presenceKey(userID string) string { return "presence:" + userID }

func typingKey(conversationID, userID string) string {
	return "typing:" + conversationID + ":" + userID
}

func inCallKey(userID string) string { return "incall:" + userID }

func (s *Service) fail(op string, err error) {
	metrics.BrokerFailures.WithLabelValues(op).Inc()
	s.logger.Warn().Err(err).Str("op", op).Msg("presence fast path degraded")
}

func (s *Service) statusTTL(status models.PresenceStatus) time.Duration {
	if status == models.StatusOnline {
		return s.ttls.Online
	}
	return s.ttls.Status
}

// write persists the durable snapshot, refreshes the broker copy and
// broadcasts presence.updated. The durable write is authoritative and its
// failure propagates; the broker refresh is fire-and-forget.
func (s *Service) write(ctx context.Context, p *models.UserPresence) error {
	if err := s.db.UpsertPresence(ctx, p); err != nil {
		return errs.Unavailable("presence store unavailable", err)
	}

	if data, err := json.Marshal(p); err == nil {
		if err := s.broker.Set(ctx, presenceKey(p.UserID), string(data), s.statusTTL(p.Status)); err != nil {
			s.fail("presence_set", err)
		}
	}

	s.bus.DeliverToUser(ctx, p.UserID, models.EventPresenceUpdated, p)
	s.bus.DeliverToRoom(ctx, models.PresenceRoom, models.EventPresenceUpdated, p)

	metrics.PresenceUpdates.WithLabelValues(string(p.Status)).Inc()
	return nil
}

// HandleConnect transitions a user online when a connection registers.
func (s *Service) HandleConnect(ctx context.Context, userID string) error {
	if userID == "" {
		return errs.InvalidArg("user id is required")
	}
	now := s.now().UTC()
	return s.write(ctx, &models.UserPresence{
		UserID:     userID,
		Status:     models.StatusOnline,
		LastSeen:   now,
		LastOnline: now,
	})
}

// HandleDisconnect transitions a user offline after their last connection
// deregistered, clearing any typing and current-call ephemeral state.
func (s *Service) HandleDisconnect(ctx context.Context, userID string) error {
	if userID == "" {
		return errs.InvalidArg("user id is required")
	}

	if err := s.broker.Del(ctx, inCallKey(userID)); err != nil {
		s.fail("incall_clear", err)
	}

	now := s.now().UTC()
	prev, err := s.db.GetPresence(ctx, userID)
	if err != nil {
		return errs.Unavailable("presence store unavailable", err)
	}
	lastOnline := now
	if prev != nil {
		lastOnline = prev.LastOnline
	}
	return s.write(ctx, &models.UserPresence{
		UserID:     userID,
		Status:     models.StatusOffline,
		LastSeen:   now,
		LastOnline: lastOnline,
	})
}

// SetStatus applies an explicit status change from the client.
func (s *Service) SetStatus(ctx context.Context, userID string, status models.PresenceStatus) error {
	if userID == "" {
		return errs.InvalidArg("user id is required")
	}
	if !status.Valid() {
		return errs.InvalidArg("unknown presence status")
	}

	now := s.now().UTC()
	prev, err := s.db.GetPresence(ctx, userID)
	if err != nil {
		return errs.Unavailable("presence store unavailable", err)
	}
	lastOnline := now
	if status != models.StatusOnline && prev != nil {
		lastOnline = prev.LastOnline
	}
	return s.write(ctx, &models.UserPresence{
		UserID:     userID,
		Status:     status,
		LastSeen:   now,
		LastOnline: lastOnline,
	})
}

// Get reads a user's presence. The TTL'd broker copy is the fast path; a
// missing or expired copy reports offline regardless of the durable
// snapshot, with the durable LastSeen/LastOnline attached for history. The
// durable record is never used to resurrect a live status.
func (s *Service) Get(ctx context.Context, userID string) (*models.UserPresence, error) {
	if userID == "" {
		return nil, errs.InvalidArg("user id is required")
	}

	if raw, ok, err := s.broker.Get(ctx, presenceKey(userID)); err != nil {
		s.fail("presence_get", err)
	} else if ok {
		p := &models.UserPresence{}
		if err := json.Unmarshal([]byte(raw), p); err == nil {
			return p, nil
		}
	}

	p := &models.UserPresence{UserID: userID, Status: models.StatusOffline}
	durable, err := s.db.GetPresence(ctx, userID)
	if err != nil {
		return nil, errs.Unavailable("presence store unavailable", err)
	}
	if durable != nil {
		p.LastSeen = durable.LastSeen
		p.LastOnline = durable.LastOnline
	}
	return p, nil
}

// TypingState is the typing.updated event payload.
type TypingState struct {
	ConversationID string `json:"conversation_id"`
	UserID         string `json:"user_id"`
	IsTyping       bool   `json:"is_typing"`
}

// SetTyping records a purely ephemeral typing indicator: a TTL'd broker key
// on true, deleted on false. A client that stops heartbeating decays within
// the TTL without an explicit stop event. No durable record is ever created.
func (s *Service) SetTyping(ctx context.Context, userID, conversationID string, isTyping bool) error {
	a, b, ok := models.ConversationParticipants(conversationID)
	if !ok {
		return errs.InvalidArg("malformed conversation id")
	}
	if userID != a && userID != b {
		return errs.Forbidden("not a conversation participant")
	}

	if isTyping {
		if err := s.broker.Set(ctx, typingKey(conversationID, userID), "1", s.ttls.Typing); err != nil {
			s.fail("typing_set", err)
		}
	} else {
		if err := s.broker.Del(ctx, typingKey(conversationID, userID)); err != nil {
			s.fail("typing_clear", err)
		}
	}

	s.bus.DeliverToRoom(ctx, conversationID, models.EventTypingUpdated, &TypingState{
		ConversationID: conversationID,
		UserID:         userID,
		IsTyping:       isTyping,
	})
	return nil
}

// IsTyping reports whether a user's typing indicator is currently live.
func (s *Service) IsTyping(ctx context.Context, userID, conversationID string) bool {
	_, ok, err := s.broker.Get(ctx, typingKey(conversationID, userID))
	if err != nil {
		s.fail("typing_get", err)
		return false
	}
	return ok
}

// MarkInCall mirrors the call state machine: sets or clears the ephemeral
// current-call marker for a user. Fire-and-forget.
func (s *Service) MarkInCall(ctx context.Context, userID, callID string, inCall bool) {
	if inCall {
		if err := s.broker.Set(ctx, inCallKey(userID), callID, 0); err != nil {
			s.fail("incall_set", err)
		}
		return
	}
	if err := s.broker.Del(ctx, inCallKey(userID)); err != nil {
		s.fail("incall_clear", err)
	}
}

// InCall returns the id of the call a user is currently in, if any.
func (s *Service) InCall(ctx context.Context, userID string) (string, bool) {
	callID, ok, err := s.broker.Get(ctx, inCallKey(userID))
	if err != nil {
		s.fail("incall_get", err)
		return "", false
	}
	return callID, ok
}
