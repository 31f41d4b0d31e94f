package bus

import (
	"context"
	"encoding/json"

	"github.com/rs/zerolog"

	"github.com/mhg840372-dotcom/quickchatx-backend-sub000/internal/metrics"
	"github.com/mhg840372-dotcom/quickchatx-backend-sub000/internal/store"
)

// EventChannel is the single shared broker channel every process publishes
// inter-node events on.
const EventChannel = "events"

const (
	scopeUser = "user"
	scopeRoom = "room"
)

// envelope is the wire format for inter-process events.
type envelope struct {
	Node    string          `json:"node"`
	Scope   string          `json:"scope"`
	Target  string          `json:"target"`
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
}

// Bus fans events out to a user's (or room's) live connections across all
// processes: locally through the Registry, remotely by publishing the
// envelope on the shared broker channel so sibling processes deliver to the
// connections they hold. It is a best-effort signaling layer with no
// ordering or delivery guarantees; durability lives in the log, not here.
type Bus struct {
	registry *Registry
	broker   store.Broker
	node     string
	logger   zerolog.Logger

	sub store.Subscription
}

// New creates an event bus. node identifies this process so its own
// published envelopes are ignored when they loop back.
func New(registry *Registry, broker store.Broker, node string, logger zerolog.Logger) *Bus {
	return &Bus{
		registry: registry,
		broker:   broker,
		node:     node,
		logger:   logger.With().Str("component", "bus").Logger(),
	}
}

// Start subscribes to the shared event channel and begins re-delivering
// sibling-node events locally. It returns once the subscription is
// established; delivery runs in a background goroutine until Shutdown.
func (b *Bus) Start(ctx context.Context) error {
	sub, err := b.broker.Subscribe(ctx, EventChannel)
	if err != nil {
		return err
	}
	b.sub = sub

	go func() {
		for payload := range sub.Messages() {
			b.handleRemote(payload)
		}
	}()

	return nil
}

// Shutdown closes the broker subscription.
func (b *Bus) Shutdown() {
	if b.sub != nil {
		_ = b.sub.Close()
	}
}

func (b *Bus) handleRemote(raw string) {
	var env envelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		b.logger.Warn().Err(err).Msg("dropping malformed event envelope")
		return
	}
	if env.Node == b.node {
		return
	}

	switch env.Scope {
	case scopeUser:
		b.deliverLocalToUser(env.Target, env.Event, env.Payload)
	case scopeRoom:
		b.deliverLocalToRoom(env.Target, env.Event, env.Payload)
	default:
		b.logger.Warn().Str("scope", env.Scope).Msg("dropping envelope with unknown scope")
	}
}

// DeliverToUser delivers payload to every connection registered for userID on
// this process and publishes the event for sibling processes. At-most-once
// per connection, best-effort: a connection mid-disconnect may be skipped. A
// broker outage degrades cross-node delivery only; local delivery always
// proceeds.
func (b *Bus) DeliverToUser(ctx context.Context, userID, event string, payload interface{}) {
	raw, err := json.Marshal(payload)
	if err != nil {
		b.logger.Error().Err(err).Str("event", event).Msg("unserializable event payload")
		return
	}
	b.deliverLocalToUser(userID, event, raw)
	b.publish(ctx, scopeUser, userID, event, raw)
}

// DeliverToRoom is DeliverToUser targeting every connection subscribed to a
// logical room instead of a single user.
func (b *Bus) DeliverToRoom(ctx context.Context, roomID, event string, payload interface{}) {
	raw, err := json.Marshal(payload)
	if err != nil {
		b.logger.Error().Err(err).Str("event", event).Msg("unserializable event payload")
		return
	}
	b.deliverLocalToRoom(roomID, event, raw)
	b.publish(ctx, scopeRoom, roomID, event, raw)
}

func (b *Bus) deliverLocalToUser(userID, event string, payload json.RawMessage) {
	for _, conn := range b.registry.ConnsForUser(userID) {
		if conn.Send(Frame{Event: event, Data: payload}) {
			metrics.EventsDelivered.WithLabelValues(event).Inc()
		}
	}
}

func (b *Bus) deliverLocalToRoom(roomID, event string, payload json.RawMessage) {
	for _, conn := range b.registry.ConnsForRoom(roomID) {
		if conn.Send(Frame{Event: event, Data: payload}) {
			metrics.EventsDelivered.WithLabelValues(event).Inc()
		}
	}
}

func (b *Bus) publish(ctx context.Context, scope, target, event string, payload json.RawMessage) {
	env := envelope{Node: b.node, Scope: scope, Target: target, Event: event, Payload: payload}
	raw, err := json.Marshal(env)
	if err != nil {
		b.logger.Error().Err(err).Str("event", event).Msg("unserializable event envelope")
		return
	}
	if err := b.broker.Publish(ctx, EventChannel, string(raw)); err != nil {
		// Cross-node delivery silently degrades; same-process users keep
		// working and reconnect resync covers the rest.
		metrics.BrokerFailures.WithLabelValues("publish").Inc()
		b.logger.Warn().Err(err).Str("event", event).Msg("cross-node publish failed")
		return
	}
	metrics.EventsPublished.WithLabelValues(event).Inc()
}
