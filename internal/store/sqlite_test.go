package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mhg840372-dotcom/quickchatx-backend-sub000/internal/models"
)

func newSQLite(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(context.Background(), filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s
}

func TestSQLiteMessageLifecycle(t *testing.T) {
	s := newSQLite(t)
	ctx := context.Background()
	sentAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	msg := &models.Message{
		ID:             "01MSG",
		ConversationID: models.ConversationID("alice", "bob"),
		SenderID:       "alice",
		RecipientID:    "bob",
		Body:           "hello",
		Kind:           models.KindText,
		SentAt:         sentAt,
	}
	require.NoError(t, s.InsertMessage(ctx, msg))

	got, err := s.GetMessage(ctx, "01MSG")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "hello", got.Body)
	assert.True(t, got.SentAt.Equal(sentAt))
	assert.Nil(t, got.ReadAt)
	assert.False(t, got.Deleted)

	missing, err := s.GetMessage(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)

	// Read receipt.
	readAt := sentAt.Add(time.Minute)
	n, err := s.MarkConversationRead(ctx, msg.ConversationID, "bob", readAt)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = s.MarkConversationRead(ctx, msg.ConversationID, "bob", readAt)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n, "second pass touches nothing")

	got, err = s.GetMessage(ctx, "01MSG")
	require.NoError(t, err)
	require.NotNil(t, got.ReadAt)
	assert.True(t, got.ReadAt.Equal(readAt))

	// Soft delete, restore, purge.
	deletedAt := readAt.Add(time.Minute)
	require.NoError(t, s.SetMessageDeleted(ctx, "01MSG", "bob", deletedAt))
	got, err = s.GetMessage(ctx, "01MSG")
	require.NoError(t, err)
	assert.True(t, got.Deleted)
	assert.Equal(t, "bob", got.DeletedBy)

	require.NoError(t, s.ClearMessageDeleted(ctx, "01MSG"))
	got, err = s.GetMessage(ctx, "01MSG")
	require.NoError(t, err)
	assert.False(t, got.Deleted)
	assert.Nil(t, got.DeletedAt)

	require.NoError(t, s.SetMessageDeleted(ctx, "01MSG", "bob", deletedAt))
	purged, err := s.PurgeDeletedBefore(ctx, deletedAt.Add(time.Second))
	require.NoError(t, err)
	assert.Equal(t, int64(1), purged)

	count, err := s.CountMessages(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), count)
}

func TestSQLiteListMessagesNewestFirst(t *testing.T) {
	s := newSQLite(t)
	ctx := context.Background()
	conversationID := models.ConversationID("alice", "bob")
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		require.NoError(t, s.InsertMessage(ctx, &models.Message{
			ID:             string(rune('a' + i)),
			ConversationID: conversationID,
			SenderID:       "alice",
			RecipientID:    "bob",
			Body:           "msg",
			Kind:           models.KindText,
			SentAt:         base.Add(time.Duration(i) * time.Second),
		}))
	}

	messages, err := s.ListMessages(ctx, conversationID, 3)
	require.NoError(t, err)
	require.Len(t, messages, 3)
	assert.Equal(t, "e", messages[0].ID)
	assert.Equal(t, "d", messages[1].ID)
	assert.Equal(t, "c", messages[2].ID)
}

func TestSQLiteCallCompareAndSwap(t *testing.T) {
	s := newSQLite(t)
	ctx := context.Background()
	startedAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	call := &models.Call{
		ID:             "call-1",
		CallerID:       "alice",
		ParticipantIDs: []string{"alice", "bob"},
		Kind:           models.CallAudio,
		Status:         models.CallRinging,
		StartedAt:      startedAt,
	}
	require.NoError(t, s.CreateCall(ctx, call))

	got, err := s.GetCall(ctx, "call-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"alice", "bob"}, got.ParticipantIDs)

	acceptedAt := startedAt.Add(5 * time.Second)
	swapped, err := s.AcceptCall(ctx, "call-1", acceptedAt)
	require.NoError(t, err)
	assert.True(t, swapped)

	swapped, err = s.AcceptCall(ctx, "call-1", acceptedAt)
	require.NoError(t, err)
	assert.False(t, swapped, "only the first accept wins")

	// A reject racing the accept loses its swap too.
	endedAt := acceptedAt.Add(time.Minute)
	swapped, err = s.FinishCall(ctx, "call-1", models.CallRinging, models.CallRejected, endedAt, "bob", 0)
	require.NoError(t, err)
	assert.False(t, swapped)

	swapped, err = s.FinishCall(ctx, "call-1", models.CallActive, models.CallEnded, endedAt, "alice", 60)
	require.NoError(t, err)
	assert.True(t, swapped)

	got, err = s.GetCall(ctx, "call-1")
	require.NoError(t, err)
	assert.Equal(t, models.CallEnded, got.Status)
	assert.Equal(t, 60, got.DurationSeconds)
	assert.Equal(t, "alice", got.EndedBy)
}

func TestSQLiteCallRecords(t *testing.T) {
	s := newSQLite(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, s.InsertCallRecord(ctx, &models.CallRecord{
		CallID:      "call-1",
		CallerID:    "alice",
		ReceiverIDs: []string{"bob"},
		Kind:        models.CallAudio,
		Status:      models.CallEnded,
		StartedAt:   base,
		EndedAt:     base.Add(time.Minute),
		CreatedAt:   base.Add(time.Minute),
	}))
	require.NoError(t, s.InsertCallRecord(ctx, &models.CallRecord{
		CallID:      "call-2",
		CallerID:    "carol",
		ReceiverIDs: []string{"alice"},
		Kind:        models.CallVideo,
		Status:      models.CallRejected,
		StartedAt:   base.Add(time.Hour),
		EndedAt:     base.Add(time.Hour + time.Minute),
		CreatedAt:   base.Add(time.Hour + time.Minute),
	}))

	// Duplicate records are rejected by the primary key.
	err := s.InsertCallRecord(ctx, &models.CallRecord{CallID: "call-1", CallerID: "alice", StartedAt: base, EndedAt: base, CreatedAt: base})
	assert.Error(t, err)

	records, err := s.ListCallRecords(ctx, "alice", 10)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "call-2", records[0].CallID, "most recent first")

	records, err = s.ListCallRecords(ctx, "bob", 10)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "call-1", records[0].CallID)

	records, err = s.ListCallRecords(ctx, "mallory", 10)
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestSQLitePresenceUpsert(t *testing.T) {
	s := newSQLite(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	missing, err := s.GetPresence(ctx, "alice")
	require.NoError(t, err)
	assert.Nil(t, missing)

	require.NoError(t, s.UpsertPresence(ctx, &models.UserPresence{
		UserID: "alice", Status: models.StatusOnline, LastSeen: now, LastOnline: now,
	}))
	require.NoError(t, s.UpsertPresence(ctx, &models.UserPresence{
		UserID: "alice", Status: models.StatusAway, LastSeen: now.Add(time.Minute), LastOnline: now,
	}))

	p, err := s.GetPresence(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, models.StatusAway, p.Status)
	assert.True(t, p.LastOnline.Equal(now))
}
