package call

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/mhg840372-dotcom/quickchatx-backend-sub000/internal/errs"
	"github.com/mhg840372-dotcom/quickchatx-backend-sub000/internal/metrics"
	"github.com/mhg840372-dotcom/quickchatx-backend-sub000/internal/models"
	"github.com/mhg840372-dotcom/quickchatx-backend-sub000/internal/notify"
	"github.com/mhg840372-dotcom/quickchatx-backend-sub000/internal/store"
)

// Deliverer fans events out to live connections across all processes.
type Deliverer interface {
	DeliverToUser(ctx context.Context, userID, event string, payload interface{})
	DeliverToRoom(ctx context.Context, roomID, event string, payload interface{})
}

// PresenceMirror lets the call machine keep the ephemeral current-call
// markers in step with call transitions.
type PresenceMirror interface {
	MarkInCall(ctx context.Context, userID, callID string, inCall bool)
}

// Service models the call lifecycle: ringing -> {active -> ended, rejected,
// cancelled} and ringing -> missed via external timeout policy. Concurrent
// transitions on the same ringing call are resolved by a compare-and-swap on
// status at the durable layer; the loser's clients reconcile from the
// winner's broadcast. Every terminal transition writes the immutable call
// record exactly once (only the swap winner writes it).
type Service struct {
	db       store.DataStore
	bus      Deliverer
	presence PresenceMirror
	notifier notify.Notifier
	logger   zerolog.Logger
	now      func() time.Time
}

// NewService creates the call state machine.
func NewService(db store.DataStore, bus Deliverer, presence PresenceMirror, notifier notify.Notifier, logger zerolog.Logger) *Service {
	return &Service{
		db:       db,
		bus:      bus,
		presence: presence,
		notifier: notifier,
		logger:   logger.With().Str("component", "call").Logger(),
		now:      time.Now,
	}
}

// Start creates a ringing call and signals call.incoming to the receiver.
func (s *Service) Start(ctx context.Context, callerID, receiverID string, kind models.CallKind) (*models.Call, error) {
	if callerID == "" || receiverID == "" {
		return nil, errs.InvalidArg("caller and receiver are required")
	}
	if callerID == receiverID {
		return nil, errs.InvalidArg("cannot call yourself")
	}
	if kind != models.CallAudio && kind != models.CallVideo {
		return nil, errs.InvalidArg("unknown call kind")
	}

	call := &models.Call{
		ID:             uuid.NewString(),
		CallerID:       callerID,
		ParticipantIDs: []string{callerID, receiverID},
		Kind:           kind,
		Status:         models.CallRinging,
		StartedAt:      s.now().UTC(),
	}

	if err := s.db.CreateCall(ctx, call); err != nil {
		return nil, errs.Unavailable("call store unavailable", err)
	}

	s.bus.DeliverToUser(ctx, receiverID, models.EventCallIncoming, call)

	if err := s.notifier.NotifyCall(ctx, receiverID, call); err != nil {
		s.logger.Warn().Err(err).Str("call_id", call.ID).Msg("call notification failed")
	}

	metrics.CallsStarted.WithLabelValues(string(kind)).Inc()
	return call, nil
}

// Accept transitions ringing -> active. Loses cleanly if the call stopped
// ringing in the meantime.
func (s *Service) Accept(ctx context.Context, callID, actorID string) (*models.Call, error) {
	call, err := s.participantCall(ctx, callID, actorID)
	if err != nil {
		return nil, err
	}

	acceptedAt := s.now().UTC()
	swapped, err := s.db.AcceptCall(ctx, callID, acceptedAt)
	if err != nil {
		return nil, errs.Unavailable("call store unavailable", err)
	}
	if !swapped {
		return nil, errs.FailedPrecondition("call is no longer ringing")
	}

	call.Status = models.CallActive
	call.AcceptedAt = &acceptedAt

	for _, id := range call.ParticipantIDs {
		s.presence.MarkInCall(ctx, id, call.ID, true)
	}
	s.broadcast(ctx, call, models.EventCallAccepted)
	return call, nil
}

// Reject transitions ringing -> rejected with zero duration.
func (s *Service) Reject(ctx context.Context, callID, actorID string) (*models.Call, error) {
	call, err := s.participantCall(ctx, callID, actorID)
	if err != nil {
		return nil, err
	}
	return s.finish(ctx, call, models.CallRinging, models.CallRejected, actorID, models.EventCallRejected)
}

// Cancel lets the caller withdraw a ringing call before it is answered.
func (s *Service) Cancel(ctx context.Context, callID, actorID string) (*models.Call, error) {
	call, err := s.participantCall(ctx, callID, actorID)
	if err != nil {
		return nil, err
	}
	if actorID != call.CallerID {
		return nil, errs.Forbidden("only the caller may cancel a call")
	}
	return s.finish(ctx, call, models.CallRinging, models.CallCancelled, actorID, models.EventCallEnded)
}

// End transitions active -> ended. This is the only path that computes a
// nonzero duration: endedAt minus acceptedAt, not startedAt. Ending a call
// that is not active reports not found rather than crashing.
func (s *Service) End(ctx context.Context, callID, actorID string) (*models.Call, error) {
	call, err := s.participantCall(ctx, callID, actorID)
	if err != nil {
		return nil, err
	}
	if call.Status != models.CallActive {
		return nil, errs.NotFound("no active call to end")
	}
	return s.finish(ctx, call, models.CallActive, models.CallEnded, actorID, models.EventCallEnded)
}

// MarkMissed transitions ringing -> missed. Driven by external timeout
// policy, not by participants.
func (s *Service) MarkMissed(ctx context.Context, callID string) (*models.Call, error) {
	call, err := s.getCall(ctx, callID)
	if err != nil {
		return nil, err
	}
	return s.finish(ctx, call, models.CallRinging, models.CallMissed, "", models.EventCallEnded)
}

// History returns a user's terminal call records, most recent first.
func (s *Service) History(ctx context.Context, userID string, limit int) ([]models.CallRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	records, err := s.db.ListCallRecords(ctx, userID, limit)
	if err != nil {
		return nil, errs.Unavailable("call store unavailable", err)
	}
	return records, nil
}

// finish applies a terminal transition with a compare-and-swap from the
// expected status, writes the one-shot call record, clears ephemeral
// markers and broadcasts the event.
func (s *Service) finish(ctx context.Context, call *models.Call, from, to models.CallStatus, endedBy, event string) (*models.Call, error) {
	endedAt := s.now().UTC()

	duration := 0
	if to == models.CallEnded && call.AcceptedAt != nil {
		duration = int(endedAt.Sub(*call.AcceptedAt) / time.Second)
	}

	swapped, err := s.db.FinishCall(ctx, call.ID, from, to, endedAt, endedBy, duration)
	if err != nil {
		return nil, errs.Unavailable("call store unavailable", err)
	}
	if !swapped {
		return nil, errs.FailedPrecondition("call already left the " + string(from) + " state")
	}

	call.Status = to
	call.EndedAt = &endedAt
	call.EndedBy = endedBy
	call.DurationSeconds = duration

	record := &models.CallRecord{
		CallID:          call.ID,
		CallerID:        call.CallerID,
		ReceiverIDs:     call.Receivers(),
		Kind:            call.Kind,
		Status:          to,
		StartedAt:       call.StartedAt,
		EndedAt:         endedAt,
		DurationSeconds: duration,
		CreatedAt:       endedAt,
	}
	if err := s.db.InsertCallRecord(ctx, record); err != nil {
		// The transition itself is durable; a lost record is logged loudly.
		s.logger.Error().Err(err).Str("call_id", call.ID).Msg("call record write failed")
	}

	for _, id := range call.ParticipantIDs {
		s.presence.MarkInCall(ctx, id, call.ID, false)
	}
	s.broadcast(ctx, call, event)
	return call, nil
}

func (s *Service) broadcast(ctx context.Context, call *models.Call, event string) {
	for _, id := range call.ParticipantIDs {
		s.bus.DeliverToUser(ctx, id, event, call)
	}
}

func (s *Service) getCall(ctx context.Context, callID string) (*models.Call, error) {
	if callID == "" {
		return nil, errs.InvalidArg("call id is required")
	}
	call, err := s.db.GetCall(ctx, callID)
	if err != nil {
		return nil, errs.Unavailable("call store unavailable", err)
	}
	if call == nil {
		return nil, errs.NotFound("call not found")
	}
	return call, nil
}

func (s *Service) participantCall(ctx context.Context, callID, actorID string) (*models.Call, error) {
	call, err := s.getCall(ctx, callID)
	if err != nil {
		return nil, err
	}
	if !call.IsParticipant(actorID) {
		return nil, errs.Forbidden("not a call participant")
	}
	return call, nil
}
