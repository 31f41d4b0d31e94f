package chat

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mhg840372-dotcom/quickchatx-backend-sub000/internal/errs"
	"github.com/mhg840372-dotcom/quickchatx-backend-sub000/internal/models"
	"github.com/mhg840372-dotcom/quickchatx-backend-sub000/internal/store"
	"github.com/mhg840372-dotcom/quickchatx-backend-sub000/internal/store/storetest"
)

type recordedEvent struct {
	Target  string
	Event   string
	Payload interface{}
}

type fakeDeliverer struct {
	mu     sync.Mutex
	toUser []recordedEvent
	toRoom []recordedEvent
}

func (d *fakeDeliverer) DeliverToUser(ctx context.Context, userID, event string, payload interface{}) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.toUser = append(d.toUser, recordedEvent{Target: userID, Event: event, Payload: payload})
}

func (d *fakeDeliverer) DeliverToRoom(ctx context.Context, roomID, event string, payload interface{}) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.toRoom = append(d.toRoom, recordedEvent{Target: roomID, Event: event, Payload: payload})
}

func (d *fakeDeliverer) userEvents(userID, event string) []recordedEvent {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []recordedEvent
	for _, e := range d.toUser {
		if e.Target == userID && e.Event == event {
			out = append(out, e)
		}
	}
	return out
}

type fakeNotifier struct {
	mu       sync.Mutex
	messages []string
	calls    []string
}

func (n *fakeNotifier) NotifyMessage(ctx context.Context, userID string, msg *models.Message) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.messages = append(n.messages, userID)
	return nil
}

func (n *fakeNotifier) NotifyCall(ctx context.Context, userID string, call *models.Call) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls = append(n.calls, userID)
	return nil
}

type chatFixture struct {
	svc      *Service
	db       *storetest.Store
	broker   *store.MemoryBroker
	bus      *fakeDeliverer
	notifier *fakeNotifier
}

func newChatFixture(t *testing.T, cacheSize int) *chatFixture {
	t.Helper()
	f := &chatFixture{
		db:       storetest.New(),
		broker:   store.NewMemoryBroker(),
		bus:      &fakeDeliverer{},
		notifier: &fakeNotifier{},
	}
	f.svc = NewService(f.db, f.broker, f.bus, f.notifier, cacheSize, zerolog.Nop())
	return f
}

func TestSendStoresAndFansOut(t *testing.T) {
	f := newChatFixture(t, 200)
	ctx := context.Background()

	msg, err := f.svc.Send(ctx, "alice", "bob", SendInput{Body: "hello"})
	require.NoError(t, err)
	require.NotEmpty(t, msg.ID)
	assert.Equal(t, models.ConversationID("alice", "bob"), msg.ConversationID)
	assert.Equal(t, models.KindText, msg.Kind)
	assert.False(t, msg.SentAt.IsZero())

	stored, err := f.db.GetMessage(ctx, msg.ID)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, "hello", stored.Body)

	// Both participants get message.created, recipient gets a notification.
	assert.Len(t, f.bus.userEvents("alice", models.EventMessageCreated), 1)
	assert.Len(t, f.bus.userEvents("bob", models.EventMessageCreated), 1)
	assert.Equal(t, []string{"bob"}, f.notifier.messages)
}

func TestSendValidation(t *testing.T) {
	f := newChatFixture(t, 200)
	ctx := context.Background()

	_, err := f.svc.Send(ctx, "", "bob", SendInput{Body: "x"})
	assertCode(t, err, errs.CodeInvalidArgument)

	_, err = f.svc.Send(ctx, "alice", "bob", SendInput{})
	assertCode(t, err, errs.CodeInvalidArgument)

	_, err = f.svc.Send(ctx, "alice", "bob", SendInput{Body: "x", Kind: "sticker"})
	assertCode(t, err, errs.CodeInvalidArgument)

	// Media-only messages are fine.
	_, err = f.svc.Send(ctx, "alice", "bob", SendInput{MediaRef: "media/abc", Kind: models.KindImage})
	assert.NoError(t, err)
}

func TestSendFailsWhenStoreDown(t *testing.T) {
	f := newChatFixture(t, 200)
	ctx := context.Background()

	f.db.SetFailing(true)
	_, err := f.svc.Send(ctx, "alice", "bob", SendInput{Body: "hello"})
	assertCode(t, err, errs.CodeUnavailable)

	// Nothing was fanned out for the failed send.
	assert.Empty(t, f.bus.userEvents("bob", models.EventMessageCreated))
}

func TestSendToOfflineRecipientSucceeds(t *testing.T) {
	// Delivery is decoupled from storage: zero live connections on the
	// recipient side never fails a send, and the message is waiting in both
	// the durable log and the cache when they come back.
	f := newChatFixture(t, 200)
	ctx := context.Background()

	sent, err := f.svc.Send(ctx, "alice", "bob", SendInput{Body: "see you later"})
	require.NoError(t, err)

	history, err := f.svc.History(ctx, "bob", "alice", 50, false)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, sent.ID, history[0].ID)
}

func TestHistoryAscendingAndBounded(t *testing.T) {
	f := newChatFixture(t, 5)
	ctx := context.Background()

	var ids []string
	for i := 0; i < 8; i++ {
		msg, err := f.svc.Send(ctx, "alice", "bob", SendInput{Body: "msg"})
		require.NoError(t, err)
		ids = append(ids, msg.ID)
	}

	// The cache holds only the 5 most recent, in send order.
	history, err := f.svc.History(ctx, "alice", "bob", 50, false)
	require.NoError(t, err)
	require.Len(t, history, 5)
	for i, msg := range history {
		assert.Equal(t, ids[3+i], msg.ID)
	}
}

func TestHistoryColdCacheFallsBackToDurable(t *testing.T) {
	f := newChatFixture(t, 200)
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	step := 0
	f.svc.now = func() time.Time {
		step++
		return base.Add(time.Duration(step) * time.Second)
	}

	var ids []string
	for i := 0; i < 4; i++ {
		msg, err := f.svc.Send(ctx, "alice", "bob", SendInput{Body: "msg"})
		require.NoError(t, err)
		ids = append(ids, msg.ID)
	}

	// Evict the cache as if the broker restarted.
	conversationID := models.ConversationID("alice", "bob")
	require.NoError(t, f.broker.Del(ctx, cacheKey(conversationID)))

	history, err := f.svc.History(ctx, "alice", "bob", 50, false)
	require.NoError(t, err)
	require.Len(t, history, 4)
	for i, msg := range history {
		assert.Equal(t, ids[i], msg.ID, "durable fallback must preserve send order")
	}
}

func TestHistoryLimitClipsTail(t *testing.T) {
	f := newChatFixture(t, 200)
	ctx := context.Background()

	var ids []string
	for i := 0; i < 6; i++ {
		msg, err := f.svc.Send(ctx, "alice", "bob", SendInput{Body: "msg"})
		require.NoError(t, err)
		ids = append(ids, msg.ID)
	}

	history, err := f.svc.History(ctx, "alice", "bob", 2, false)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, ids[4], history[0].ID)
	assert.Equal(t, ids[5], history[1].ID)
}

func TestMarkReadIdempotent(t *testing.T) {
	f := newChatFixture(t, 200)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := f.svc.Send(ctx, "alice", "bob", SendInput{Body: "msg"})
		require.NoError(t, err)
	}
	conversationID := models.ConversationID("alice", "bob")

	receipt, err := f.svc.MarkRead(ctx, conversationID, "bob")
	require.NoError(t, err)
	assert.Equal(t, int64(3), receipt.Count)

	// Second call changes nothing.
	receipt, err = f.svc.MarkRead(ctx, conversationID, "bob")
	require.NoError(t, err)
	assert.Equal(t, int64(0), receipt.Count)

	// Both the durable log and the cache carry the read flags.
	unread, err := f.db.ListConversationUnread(ctx, conversationID, "bob")
	require.NoError(t, err)
	assert.Empty(t, unread)

	history, err := f.svc.History(ctx, "alice", "bob", 50, false)
	require.NoError(t, err)
	for _, msg := range history {
		assert.True(t, msg.Read(), "cached copy of %s should be read", msg.ID)
	}

	// Both participants observe the receipt.
	assert.NotEmpty(t, f.bus.userEvents("alice", models.EventMessagesRead))
	assert.NotEmpty(t, f.bus.userEvents("bob", models.EventMessagesRead))
}

func TestMarkReadAuthorization(t *testing.T) {
	f := newChatFixture(t, 200)
	ctx := context.Background()
	conversationID := models.ConversationID("alice", "bob")

	_, err := f.svc.MarkRead(ctx, conversationID, "mallory")
	assertCode(t, err, errs.CodePermissionDenied)

	_, err = f.svc.MarkRead(ctx, "not-a-conversation", "alice")
	assertCode(t, err, errs.CodeInvalidArgument)
}

func TestConcurrentSendAndMarkReadLosesNothing(t *testing.T) {
	// A cache rewrite reads the whole list and writes it back. Without the
	// per-conversation lock a send interleaved between those two steps would
	// vanish from the cache.
	f := newChatFixture(t, 200)
	ctx := context.Background()
	conversationID := models.ConversationID("alice", "bob")

	const sends = 40
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < sends; i++ {
			_, err := f.svc.Send(ctx, "alice", "bob", SendInput{Body: "msg"})
			assert.NoError(t, err)
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < sends; i++ {
			_, err := f.svc.MarkRead(ctx, conversationID, "bob")
			assert.NoError(t, err)
		}
	}()
	wg.Wait()

	cached := f.svc.cache.load(ctx, conversationID)
	assert.Len(t, cached, sends, "no send may be lost to a concurrent rewrite")
}

func TestSoftDeleteAndRestore(t *testing.T) {
	f := newChatFixture(t, 200)
	ctx := context.Background()

	msg, err := f.svc.Send(ctx, "alice", "bob", SendInput{Body: "oops"})
	require.NoError(t, err)

	receipt, err := f.svc.SoftDelete(ctx, msg.ID, "bob")
	require.NoError(t, err)
	assert.Equal(t, "bob", receipt.DeletedBy)

	// Hidden from default history, visible when asked for.
	history, err := f.svc.History(ctx, "alice", "bob", 50, false)
	require.NoError(t, err)
	assert.Empty(t, history)

	history, err = f.svc.History(ctx, "alice", "bob", 50, true)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.True(t, history[0].Deleted)

	// Deleting twice fails.
	_, err = f.svc.SoftDelete(ctx, msg.ID, "bob")
	assertCode(t, err, errs.CodeFailedPrecondition)

	restored, err := f.svc.Restore(ctx, msg.ID, "alice")
	require.NoError(t, err)
	assert.False(t, restored.Deleted)
	assert.Nil(t, restored.DeletedAt)
	assert.Empty(t, restored.DeletedBy)

	history, err = f.svc.History(ctx, "alice", "bob", 50, false)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.False(t, history[0].Deleted)

	// Restoring a live message fails.
	_, err = f.svc.Restore(ctx, msg.ID, "alice")
	assertCode(t, err, errs.CodeFailedPrecondition)
}

func TestSoftDeleteAuthorization(t *testing.T) {
	f := newChatFixture(t, 200)
	ctx := context.Background()

	msg, err := f.svc.Send(ctx, "alice", "bob", SendInput{Body: "private"})
	require.NoError(t, err)

	_, err = f.svc.SoftDelete(ctx, msg.ID, "mallory")
	assertCode(t, err, errs.CodePermissionDenied)

	_, err = f.svc.SoftDelete(ctx, "nope", "alice")
	assertCode(t, err, errs.CodeNotFound)
}

func TestPurgeDeletedRemovesOnlyOldSoftDeleted(t *testing.T) {
	f := newChatFixture(t, 200)
	ctx := context.Background()

	old, err := f.svc.Send(ctx, "alice", "bob", SendInput{Body: "old"})
	require.NoError(t, err)
	fresh, err := f.svc.Send(ctx, "alice", "bob", SendInput{Body: "fresh"})
	require.NoError(t, err)

	past := time.Now().Add(-48 * time.Hour)
	f.svc.now = func() time.Time { return past }
	_, err = f.svc.SoftDelete(ctx, old.ID, "alice")
	require.NoError(t, err)

	f.svc.now = time.Now
	_, err = f.svc.SoftDelete(ctx, fresh.ID, "alice")
	require.NoError(t, err)

	purged, err := f.svc.PurgeDeleted(ctx, time.Now().Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), purged)

	gone, err := f.db.GetMessage(ctx, old.ID)
	require.NoError(t, err)
	assert.Nil(t, gone)

	kept, err := f.db.GetMessage(ctx, fresh.ID)
	require.NoError(t, err)
	require.NotNil(t, kept)
	assert.True(t, kept.Deleted)
}

func TestMessageLifecycleEndToEnd(t *testing.T) {
	f := newChatFixture(t, 200)
	ctx := context.Background()

	sent, err := f.svc.Send(ctx, "alice", "bob", SendInput{Body: "hi"})
	require.NoError(t, err)

	history, err := f.svc.History(ctx, "alice", "bob", 50, false)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "hi", history[0].Body)
	assert.False(t, history[0].Read())

	_, err = f.svc.MarkRead(ctx, sent.ConversationID, "bob")
	require.NoError(t, err)

	history, err = f.svc.History(ctx, "alice", "bob", 50, false)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.True(t, history[0].Read())

	_, err = f.svc.SoftDelete(ctx, sent.ID, "carol")
	assertCode(t, err, errs.CodePermissionDenied)

	_, err = f.svc.SoftDelete(ctx, sent.ID, "alice")
	require.NoError(t, err)

	history, err = f.svc.History(ctx, "alice", "bob", 50, false)
	require.NoError(t, err)
	assert.Empty(t, history)

	history, err = f.svc.History(ctx, "alice", "bob", 50, true)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.True(t, history[0].Deleted)
}

func assertCode(t *testing.T, err error, code errs.Code) {
	t.Helper()
	require.Error(t, err)
	assert.Equal(t, code, errs.CodeOf(err))
}
