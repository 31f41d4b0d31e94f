package bus

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mhg840372-dotcom/quickchatx-backend-sub000/internal/models"
	"github.com/mhg840372-dotcom/quickchatx-backend-sub000/internal/store"
)

func TestDeliverToUserReachesLocalConnections(t *testing.T) {
	broker := store.NewMemoryBroker()
	registry := NewRegistry()
	b := New(registry, broker, "node-a", zerolog.Nop())
	require.NoError(t, b.Start(context.Background()))
	defer b.Shutdown()

	c1 := &fakeConn{}
	c2 := &fakeConn{}
	registry.Register("alice", models.ChannelMessaging, c1)
	registry.Register("alice", models.ChannelMessaging, c2)
	other := &fakeConn{}
	registry.Register("bob", models.ChannelMessaging, other)

	b.DeliverToUser(context.Background(), "alice", "message.created", map[string]string{"id": "m1"})

	require.Len(t, c1.received(), 1)
	require.Len(t, c2.received(), 1)
	assert.Equal(t, "message.created", c1.received()[0].Event)
	assert.Empty(t, other.received())
}

func TestDeliverCrossesNodesWithoutEcho(t *testing.T) {
	// Two processes share one broker. An event published on node A must reach
	// the user's connections held by node B, while node A must ignore its own
	// envelope when it loops back instead of delivering twice.
	broker := store.NewMemoryBroker()
	ctx := context.Background()

	regA := NewRegistry()
	busA := New(regA, broker, "node-a", zerolog.Nop())
	require.NoError(t, busA.Start(ctx))
	defer busA.Shutdown()

	regB := NewRegistry()
	busB := New(regB, broker, "node-b", zerolog.Nop())
	require.NoError(t, busB.Start(ctx))
	defer busB.Shutdown()

	local := &fakeConn{}
	regA.Register("alice", models.ChannelMessaging, local)
	remote := &fakeConn{}
	regB.Register("alice", models.ChannelMessaging, remote)

	busA.DeliverToUser(ctx, "alice", "message.created", map[string]string{"id": "m1"})

	assert.Eventually(t, func() bool {
		return len(remote.received()) == 1
	}, time.Second, 5*time.Millisecond, "sibling node must deliver to its connections")

	// Give the loopback a beat to (wrongly) double-deliver before asserting.
	time.Sleep(20 * time.Millisecond)
	assert.Len(t, local.received(), 1, "own envelope echo must be suppressed")
}

func TestDeliverToRoomCrossesNodes(t *testing.T) {
	broker := store.NewMemoryBroker()
	ctx := context.Background()

	regA := NewRegistry()
	busA := New(regA, broker, "node-a", zerolog.Nop())
	require.NoError(t, busA.Start(ctx))
	defer busA.Shutdown()

	regB := NewRegistry()
	busB := New(regB, broker, "node-b", zerolog.Nop())
	require.NoError(t, busB.Start(ctx))
	defer busB.Shutdown()

	watcher := &fakeConn{}
	id := regB.Register("bob", models.ChannelPresence, watcher)
	regB.JoinRoom(models.PresenceRoom, id)

	outsider := &fakeConn{}
	regB.Register("carol", models.ChannelPresence, outsider)

	busA.DeliverToRoom(ctx, models.PresenceRoom, "presence.updated", map[string]string{"user_id": "alice"})

	assert.Eventually(t, func() bool {
		return len(watcher.received()) == 1
	}, time.Second, 5*time.Millisecond)
	assert.Empty(t, outsider.received(), "only room members receive room events")
}

func TestMalformedEnvelopeIsDropped(t *testing.T) {
	broker := store.NewMemoryBroker()
	ctx := context.Background()

	registry := NewRegistry()
	b := New(registry, broker, "node-a", zerolog.Nop())
	require.NoError(t, b.Start(ctx))
	defer b.Shutdown()

	conn := &fakeConn{}
	registry.Register("alice", models.ChannelMessaging, conn)

	require.NoError(t, broker.Publish(ctx, EventChannel, "not json"))
	require.NoError(t, broker.Publish(ctx, EventChannel, `{"node":"node-b","scope":"orbit","target":"alice","event":"x","payload":null}`))

	// A valid envelope after the garbage still goes through.
	require.NoError(t, broker.Publish(ctx, EventChannel, `{"node":"node-b","scope":"user","target":"alice","event":"message.created","payload":{}}`))

	assert.Eventually(t, func() bool {
		return len(conn.received()) == 1
	}, time.Second, 5*time.Millisecond)
}
