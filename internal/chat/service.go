package chat

import (
	"context"
	"time"

	"github.com/oklog/ulid/v2"
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

// Service owns the message lifecycle: send, history, read receipts,
// soft-delete/restore and retention purge. It writes through to the durable
// log (authoritative) and maintains the bounded per-conversation cache.
type Service struct {
	db       store.DataStore
	cache    *conversationCache
	index    *searchIndex
	bus      Deliverer
	notifier notify.Notifier
	logger   zerolog.Logger
	now      func() time.Time
}

// NewService creates the message lifecycle manager. cacheSize bounds the
// per-conversation cache (number of most recent messages mirrored).
func NewService(db store.DataStore, broker store.Broker, bus Deliverer, notifier notify.Notifier, cacheSize int, logger zerolog.Logger) *Service {
	logger = logger.With().Str("component", "chat").Logger()
	return &Service{
		db:       db,
		cache:    newConversationCache(broker, cacheSize, logger),
		index:    newSearchIndex(broker, logger),
		bus:      bus,
		notifier: notifier,
		logger:   logger,
		now:      time.Now,
	}
}

// SendInput is the content of an outgoing message.
type SendInput struct {
	Body     string             `json:"body"`
	MediaRef string             `json:"media_ref"`
	Kind     models.MessageKind `json:"kind"`
}

// Send stores a message durably, mirrors it into the conversation cache and
// fans out message.created to both participants. Either the message is
// durably stored and fanned out, or nothing happened: a durable-log failure
// fails the send, while cache and fan-out failures never do. Sending to a
// recipient with zero active connections still succeeds.
func (s *Service) Send(ctx context.Context, senderID, recipientID string, in SendInput) (*models.Message, error) {
	if senderID == "" || recipientID == "" {
		return nil, errs.InvalidArg("sender and recipient are required")
	}
	if in.Body == "" && in.MediaRef == "" {
		return nil, errs.InvalidArg("message needs a body or a media reference")
	}
	kind := in.Kind
	if kind == "" {
		kind = models.KindText
	}
	switch kind {
	case models.KindText, models.KindImage, models.KindVideo, models.KindAudio:
	default:
		return nil, errs.InvalidArg("unknown message kind")
	}

	msg := &models.Message{
		ID:             ulid.Make().String(),
		ConversationID: models.ConversationID(senderID, recipientID),
		SenderID:       senderID,
		RecipientID:    recipientID,
		Body:           in.Body,
		MediaRef:       in.MediaRef,
		Kind:           kind,
		SentAt:         s.now().UTC(),
	}

	if err := s.db.InsertMessage(ctx, msg); err != nil {
		return nil, errs.Unavailable("message store unavailable", err)
	}

	s.cache.append(ctx, msg)
	s.index.add(ctx, msg)

	s.bus.DeliverToUser(ctx, msg.SenderID, models.EventMessageCreated, msg)
	s.bus.DeliverToUser(ctx, msg.RecipientID, models.EventMessageCreated, msg)

	if err := s.notifier.NotifyMessage(ctx, msg.RecipientID, msg); err != nil {
		s.logger.Warn().Err(err).Str("message_id", msg.ID).Msg("message notification failed")
	}

	metrics.MessagesSent.WithLabelValues(string(kind)).Inc()
	return msg, nil
}

// History returns the most recent messages between two users in ascending
// send order. The cache serves warm conversations; a cold cache falls back
// to a durable range query and is not written back. Soft-deleted entries are
// excluded unless includeDeleted is set; the result is clipped to limit
// after filtering.
func (s *Service) History(ctx context.Context, userA, userB string, limit int, includeDeleted bool) ([]models.Message, error) {
	if limit <= 0 {
		limit = 50
	}
	conversationID := models.ConversationID(userA, userB)

	messages := s.cache.load(ctx, conversationID)
	if len(messages) == 0 {
		durable, err := s.db.ListMessages(ctx, conversationID, limit)
		if err != nil {
			return nil, errs.Unavailable("message store unavailable", err)
		}
		// Newest-first from the log, reversed to send order.
		messages = make([]models.Message, 0, len(durable))
		for i := len(durable) - 1; i >= 0; i-- {
			messages = append(messages, durable[i])
		}
	}

	filtered := make([]models.Message, 0, len(messages))
	for _, msg := range messages {
		if msg.Deleted && !includeDeleted {
			continue
		}
		filtered = append(filtered, msg)
	}

	if len(filtered) > limit {
		filtered = filtered[len(filtered)-limit:]
	}
	return filtered, nil
}

// ReadReceipt is the messages.read event payload.
type ReadReceipt struct {
	ConversationID string    `json:"conversation_id"`
	ReaderID       string    `json:"reader_id"`
	ReadAt         time.Time `json:"read_at"`
	Count          int64     `json:"count"`
}

// MarkRead flags every unread message addressed to readerID in the
// conversation as read, durably first, then rewrites the cached list with
// updated read flags. Calling it twice produces the same final state.
func (s *Service) MarkRead(ctx context.Context, conversationID, readerID string) (*ReadReceipt, error) {
	a, b, ok := models.ConversationParticipants(conversationID)
	if !ok {
		return nil, errs.InvalidArg("malformed conversation id")
	}
	if readerID != a && readerID != b {
		return nil, errs.Forbidden("reader is not a conversation participant")
	}

	readAt := s.now().UTC()
	count, err := s.db.MarkConversationRead(ctx, conversationID, readerID, readAt)
	if err != nil {
		return nil, errs.Unavailable("message store unavailable", err)
	}

	s.cache.rewrite(ctx, conversationID, func(msg *models.Message) bool {
		if msg.RecipientID != readerID || msg.ReadAt != nil {
			return false
		}
		at := readAt
		msg.ReadAt = &at
		return true
	})

	receipt := &ReadReceipt{ConversationID: conversationID, ReaderID: readerID, ReadAt: readAt, Count: count}
	s.bus.DeliverToUser(ctx, a, models.EventMessagesRead, receipt)
	s.bus.DeliverToUser(ctx, b, models.EventMessagesRead, receipt)
	return receipt, nil
}

// DeleteReceipt is the message.deleted event payload.
type DeleteReceipt struct {
	MessageID      string    `json:"message_id"`
	ConversationID string    `json:"conversation_id"`
	DeletedBy      string    `json:"deleted_by"`
	DeletedAt      time.Time `json:"deleted_at"`
}

// SoftDelete flags a message as deleted. Only the sender or recipient may
// delete; deleting an already-deleted message fails.
func (s *Service) SoftDelete(ctx context.Context, messageID, actorID string) (*DeleteReceipt, error) {
	msg, err := s.getMessage(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if !msg.IsParticipant(actorID) {
		return nil, errs.Forbidden("only conversation participants may delete a message")
	}
	if msg.Deleted {
		return nil, errs.FailedPrecondition("message is already deleted")
	}

	deletedAt := s.now().UTC()
	if err := s.db.SetMessageDeleted(ctx, messageID, actorID, deletedAt); err != nil {
		return nil, errs.Unavailable("message store unavailable", err)
	}

	s.cache.rewrite(ctx, msg.ConversationID, func(cached *models.Message) bool {
		if cached.ID != messageID {
			return false
		}
		at := deletedAt
		cached.Deleted = true
		cached.DeletedAt = &at
		cached.DeletedBy = actorID
		return true
	})

	receipt := &DeleteReceipt{
		MessageID:      messageID,
		ConversationID: msg.ConversationID,
		DeletedBy:      actorID,
		DeletedAt:      deletedAt,
	}
	s.bus.DeliverToUser(ctx, msg.SenderID, models.EventMessageDeleted, receipt)
	s.bus.DeliverToUser(ctx, msg.RecipientID, models.EventMessageDeleted, receipt)

	metrics.MessagesDeleted.Inc()
	return receipt, nil
}

// Restore clears the deleted flag of a soft-deleted message. Authorized for
// the sender, the recipient, or whoever deleted it. Restoring a message that
// is not deleted fails.
func (s *Service) Restore(ctx context.Context, messageID, actorID string) (*models.Message, error) {
	msg, err := s.getMessage(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if !msg.IsParticipant(actorID) && actorID != msg.DeletedBy {
		return nil, errs.Forbidden("not authorized to restore this message")
	}
	if !msg.Deleted {
		return nil, errs.FailedPrecondition("message is not deleted")
	}

	if err := s.db.ClearMessageDeleted(ctx, messageID); err != nil {
		return nil, errs.Unavailable("message store unavailable", err)
	}

	s.cache.rewrite(ctx, msg.ConversationID, func(cached *models.Message) bool {
		if cached.ID != messageID {
			return false
		}
		cached.Deleted = false
		cached.DeletedAt = nil
		cached.DeletedBy = ""
		return true
	})

	msg.Deleted = false
	msg.DeletedAt = nil
	msg.DeletedBy = ""

	s.bus.DeliverToUser(ctx, msg.SenderID, models.EventMessageRestored, msg)
	s.bus.DeliverToUser(ctx, msg.RecipientID, models.EventMessageRestored, msg)
	return msg, nil
}

// PurgeDeleted physically removes durable records soft-deleted before the
// cutoff. Maintenance only, never on the request path; the cache is left
// alone because purged entries have long aged out of the bounded window.
func (s *Service) PurgeDeleted(ctx context.Context, olderThan time.Time) (int64, error) {
	count, err := s.db.PurgeDeletedBefore(ctx, olderThan)
	if err != nil {
		return 0, errs.Unavailable("message store unavailable", err)
	}
	if count > 0 {
		s.logger.Info().Int64("purged", count).Time("cutoff", olderThan).Msg("purged soft-deleted messages")
	}
	return count, nil
}

func (s *Service) getMessage(ctx context.Context, messageID string) (*models.Message, error) {
	if messageID == "" {
		return nil, errs.InvalidArg("message id is required")
	}
	msg, err := s.db.GetMessage(ctx, messageID)
	if err != nil {
		return nil, errs.Unavailable("message store unavailable", err)
	}
	if msg == nil {
		return nil, errs.NotFound("message not found")
	}
	return msg, nil
}
