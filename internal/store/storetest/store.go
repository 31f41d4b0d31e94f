// Package storetest provides an in-memory DataStore for tests. It honors
// the same semantics as the SQL implementations, including the
// compare-and-swap call transitions and bulk read updates, so service tests
// run without any infrastructure.
package storetest

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/mhg840372-dotcom/quickchatx-backend-sub000/internal/models"
)

// ErrUnavailable is returned from every method while the store is failing.
var ErrUnavailable = errors.New("storetest: store unavailable")

// Store is an in-memory DataStore.
type Store struct {
	mu       sync.Mutex
	messages map[string]*models.Message
	calls    map[string]*models.Call
	records  map[string]*models.CallRecord
	presence map[string]*models.UserPresence
	failing  bool
}

// New creates an empty store.
func New() *Store {
	return &Store{
		messages: make(map[string]*models.Message),
		calls:    make(map[string]*models.Call),
		records:  make(map[string]*models.CallRecord),
		presence: make(map[string]*models.UserPresence),
	}
}

// SetFailing makes every subsequent call fail, simulating an outage.
func (s *Store) SetFailing(failing bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failing = failing
}

func (s *Store) Close() {}

func (s *Store) Ping(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failing {
		return ErrUnavailable
	}
	return nil
}

func (s *Store) InsertMessage(ctx context.Context, msg *models.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failing {
		return ErrUnavailable
	}
	cp := *msg
	s.messages[msg.ID] = &cp
	return nil
}

func (s *Store) GetMessage(ctx context.Context, id string) (*models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failing {
		return nil, ErrUnavailable
	}
	msg, ok := s.messages[id]
	if !ok {
		return nil, nil
	}
	cp := *msg
	return &cp, nil
}

func (s *Store) ListMessages(ctx context.Context, conversationID string, limit int) ([]models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failing {
		return nil, ErrUnavailable
	}
	out := []models.Message{}
	for _, msg := range s.messages {
		if msg.ConversationID == conversationID {
			out = append(out, *msg)
		}
	}
	// Newest first, as the SQL range query returns.
	sort.Slice(out, func(i, j int) bool {
		if !out[i].SentAt.Equal(out[j].SentAt) {
			return out[i].SentAt.After(out[j].SentAt)
		}
		return out[i].ID > out[j].ID
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) ListConversationUnread(ctx context.Context, conversationID, readerID string) ([]models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failing {
		return nil, ErrUnavailable
	}
	out := []models.Message{}
	for _, msg := range s.messages {
		if msg.ConversationID == conversationID && msg.RecipientID == readerID && msg.ReadAt == nil {
			out = append(out, *msg)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) MarkConversationRead(ctx context.Context, conversationID, readerID string, readAt time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failing {
		return 0, ErrUnavailable
	}
	var n int64
	for _, msg := range s.messages {
		if msg.ConversationID == conversationID && msg.RecipientID == readerID && msg.ReadAt == nil {
			at := readAt
			msg.ReadAt = &at
			n++
		}
	}
	return n, nil
}

func (s *Store) SetMessageDeleted(ctx context.Context, id string, deletedBy string, deletedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failing {
		return ErrUnavailable
	}
	if msg, ok := s.messages[id]; ok {
		at := deletedAt
		msg.Deleted = true
		msg.DeletedAt = &at
		msg.DeletedBy = deletedBy
	}
	return nil
}

func (s *Store) ClearMessageDeleted(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failing {
		return ErrUnavailable
	}
	if msg, ok := s.messages[id]; ok {
		msg.Deleted = false
		msg.DeletedAt = nil
		msg.DeletedBy = ""
	}
	return nil
}

func (s *Store) PurgeDeletedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failing {
		return 0, ErrUnavailable
	}
	var n int64
	for id, msg := range s.messages {
		if msg.Deleted && msg.DeletedAt != nil && msg.DeletedAt.Before(cutoff) {
			delete(s.messages, id)
			n++
		}
	}
	return n, nil
}

func (s *Store) CountMessages(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failing {
		return 0, ErrUnavailable
	}
	return int64(len(s.messages)), nil
}

func (s *Store) CreateCall(ctx context.Context, call *models.Call) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failing {
		return ErrUnavailable
	}
	cp := *call
	cp.ParticipantIDs = append([]string(nil), call.ParticipantIDs...)
	s.calls[call.ID] = &cp
	return nil
}

func (s *Store) GetCall(ctx context.Context, id string) (*models.Call, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failing {
		return nil, ErrUnavailable
	}
	call, ok := s.calls[id]
	if !ok {
		return nil, nil
	}
	cp := *call
	cp.ParticipantIDs = append([]string(nil), call.ParticipantIDs...)
	return &cp, nil
}

func (s *Store) AcceptCall(ctx context.Context, id string, acceptedAt time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failing {
		return false, ErrUnavailable
	}
	call, ok := s.calls[id]
	if !ok || call.Status != models.CallRinging {
		return false, nil
	}
	at := acceptedAt
	call.Status = models.CallActive
	call.AcceptedAt = &at
	return true, nil
}

func (s *Store) FinishCall(ctx context.Context, id string, from, to models.CallStatus, endedAt time.Time, endedBy string, durationSeconds int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failing {
		return false, ErrUnavailable
	}
	call, ok := s.calls[id]
	if !ok || call.Status != from {
		return false, nil
	}
	at := endedAt
	call.Status = to
	call.EndedAt = &at
	call.EndedBy = endedBy
	call.DurationSeconds = durationSeconds
	return true, nil
}

func (s *Store) InsertCallRecord(ctx context.Context, rec *models.CallRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failing {
		return ErrUnavailable
	}
	if _, exists := s.records[rec.CallID]; exists {
		return errors.New("storetest: duplicate call record")
	}
	cp := *rec
	cp.ReceiverIDs = append([]string(nil), rec.ReceiverIDs...)
	s.records[rec.CallID] = &cp
	return nil
}

func (s *Store) ListCallRecords(ctx context.Context, userID string, limit int) ([]models.CallRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failing {
		return nil, ErrUnavailable
	}
	out := []models.CallRecord{}
	for _, rec := range s.records {
		if rec.CallerID == userID {
			out = append(out, *rec)
			continue
		}
		for _, id := range rec.ReceiverIDs {
			if id == userID {
				out = append(out, *rec)
				break
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EndedAt.After(out[j].EndedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) CountCalls(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failing {
		return 0, ErrUnavailable
	}
	return int64(len(s.calls)), nil
}

func (s *Store) UpsertPresence(ctx context.Context, p *models.UserPresence) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failing {
		return ErrUnavailable
	}
	cp := *p
	s.presence[p.UserID] = &cp
	return nil
}

func (s *Store) GetPresence(ctx context.Context, userID string) (*models.UserPresence, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failing {
		return nil, ErrUnavailable
	}
	p, ok := s.presence[userID]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

// CallRecordCount reports how many terminal records exist for a call.
func (s *Store) CallRecordCount(callID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[callID]; ok {
		return 1
	}
	return 0
}
