package presence

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
	Target string
	Event  string
}

type fakeDeliverer struct {
	mu     sync.Mutex
	toUser []recordedEvent
	toRoom []recordedEvent
}

func (d *fakeDeliverer) DeliverToUser(ctx context.Context, userID, event string, payload interface{}) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.toUser = append(d.toUser, recordedEvent{Target: userID, Event: event})
}

func (d *fakeDeliverer) DeliverToRoom(ctx context.Context, roomID, event string, payload interface{}) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.toRoom = append(d.toRoom, recordedEvent{Target: roomID, Event: event})
}

func (d *fakeDeliverer) roomCount(roomID, event string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for _, e := range d.toRoom {
		if e.Target == roomID && e.Event == event {
			n++
		}
	}
	return n
}

type presenceFixture struct {
	svc    *Service
	db     *storetest.Store
	broker *store.MemoryBroker
	bus    *fakeDeliverer
	clock  time.Time
}

func newPresenceFixture(t *testing.T) *presenceFixture {
	t.Helper()
	f := &presenceFixture{
		db:     storetest.New(),
		broker: store.NewMemoryBroker(),
		bus:    &fakeDeliverer{},
		clock:  time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	f.broker.SetClock(func() time.Time { return f.clock })
	f.svc = NewService(f.db, f.broker, f.bus, DefaultTTLs(), zerolog.Nop())
	f.svc.now = func() time.Time { return f.clock }
	return f
}

func (f *presenceFixture) advance(d time.Duration) { f.clock = f.clock.Add(d) }

func TestConnectDisconnectLifecycle(t *testing.T) {
	f := newPresenceFixture(t)
	ctx := context.Background()

	require.NoError(t, f.svc.HandleConnect(ctx, "alice"))

	p, err := f.svc.Get(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, models.StatusOnline, p.Status)
	onlineAt := p.LastOnline

	f.advance(time.Minute)
	require.NoError(t, f.svc.HandleDisconnect(ctx, "alice"))

	p, err = f.svc.Get(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, models.StatusOffline, p.Status)
	assert.Equal(t, onlineAt, p.LastOnline, "disconnect keeps the last time the user was online")
	assert.Equal(t, f.clock, p.LastSeen)

	// Presence changes go to the user and the global presence room.
	assert.Equal(t, 2, f.bus.roomCount(models.PresenceRoom, models.EventPresenceUpdated))
}

func TestOnlineDecaysToOfflineOnTTLExpiry(t *testing.T) {
	// A process that dies without deregistering never writes offline. The
	// broker copy expires on its own and reads report offline from then on.
	f := newPresenceFixture(t)
	ctx := context.Background()

	require.NoError(t, f.svc.HandleConnect(ctx, "alice"))
	connectedAt := f.clock

	f.advance(DefaultTTLs().Online - time.Second)
	p, err := f.svc.Get(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, models.StatusOnline, p.Status)

	f.advance(2 * time.Second)
	p, err = f.svc.Get(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, models.StatusOffline, p.Status)
	assert.Equal(t, connectedAt, p.LastSeen, "durable history survives the decay")
}

func TestDurableSnapshotNeverResurrectsLiveStatus(t *testing.T) {
	f := newPresenceFixture(t)
	ctx := context.Background()

	require.NoError(t, f.svc.SetStatus(ctx, "alice", models.StatusBusy))

	// Drop the broker copy outright; the durable row still says busy.
	require.NoError(t, f.broker.Del(ctx, presenceKey("alice")))

	p, err := f.svc.Get(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, models.StatusOffline, p.Status)
}

func TestSetStatusValidation(t *testing.T) {
	f := newPresenceFixture(t)
	ctx := context.Background()

	err := f.svc.SetStatus(ctx, "alice", "invisible")
	assertCode(t, err, errs.CodeInvalidArgument)

	err = f.svc.SetStatus(ctx, "", models.StatusAway)
	assertCode(t, err, errs.CodeInvalidArgument)

	require.NoError(t, f.svc.SetStatus(ctx, "alice", models.StatusAway))
	p, err := f.svc.Get(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, models.StatusAway, p.Status)
}

func TestGetUnknownUserIsOffline(t *testing.T) {
	f := newPresenceFixture(t)

	p, err := f.svc.Get(context.Background(), "nobody")
	require.NoError(t, err)
	assert.Equal(t, models.StatusOffline, p.Status)
	assert.True(t, p.LastSeen.IsZero())
}

func TestTypingDecaysWithoutStopEvent(t *testing.T) {
	f := newPresenceFixture(t)
	ctx := context.Background()
	conversationID := models.ConversationID("alice", "bob")

	require.NoError(t, f.svc.SetTyping(ctx, "alice", conversationID, true))
	assert.True(t, f.svc.IsTyping(ctx, "alice", conversationID))

	// The indicator self-heals within the TTL when the client goes silent.
	f.advance(DefaultTTLs().Typing + time.Second)
	assert.False(t, f.svc.IsTyping(ctx, "alice", conversationID))
}

func TestTypingStopClearsImmediately(t *testing.T) {
	f := newPresenceFixture(t)
	ctx := context.Background()
	conversationID := models.ConversationID("alice", "bob")

	require.NoError(t, f.svc.SetTyping(ctx, "alice", conversationID, true))
	require.NoError(t, f.svc.SetTyping(ctx, "alice", conversationID, false))
	assert.False(t, f.svc.IsTyping(ctx, "alice", conversationID))

	// Both updates were broadcast to the conversation room.
	assert.Equal(t, 2, f.bus.roomCount(conversationID, models.EventTypingUpdated))
}

func TestTypingRequiresParticipant(t *testing.T) {
	f := newPresenceFixture(t)
	ctx := context.Background()
	conversationID := models.ConversationID("alice", "bob")

	err := f.svc.SetTyping(ctx, "mallory", conversationID, true)
	assertCode(t, err, errs.CodePermissionDenied)

	err = f.svc.SetTyping(ctx, "alice", "garbage", true)
	assertCode(t, err, errs.CodeInvalidArgument)
}

func TestInCallMarkerLifecycle(t *testing.T) {
	f := newPresenceFixture(t)
	ctx := context.Background()

	f.svc.MarkInCall(ctx, "alice", "call-1", true)
	callID, ok := f.svc.InCall(ctx, "alice")
	require.True(t, ok)
	assert.Equal(t, "call-1", callID)

	f.svc.MarkInCall(ctx, "alice", "call-1", false)
	_, ok = f.svc.InCall(ctx, "alice")
	assert.False(t, ok)
}

func TestDisconnectClearsInCallMarker(t *testing.T) {
	f := newPresenceFixture(t)
	ctx := context.Background()

	require.NoError(t, f.svc.HandleConnect(ctx, "alice"))
	f.svc.MarkInCall(ctx, "alice", "call-1", true)

	require.NoError(t, f.svc.HandleDisconnect(ctx, "alice"))
	_, ok := f.svc.InCall(ctx, "alice")
	assert.False(t, ok)
}

func TestStatusWriteFailsWhenStoreDown(t *testing.T) {
	f := newPresenceFixture(t)
	ctx := context.Background()

	f.db.SetFailing(true)
	err := f.svc.SetStatus(ctx, "alice", models.StatusOnline)
	assertCode(t, err, errs.CodeUnavailable)
}

func assertCode(t *testing.T, err error, code errs.Code) {
	t.Helper()
	require.Error(t, err)
	assert.Equal(t, code, errs.CodeOf(err))
}
