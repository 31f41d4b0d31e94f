package chat

import (
	"context"
	"encoding/json"
	"hash/fnv"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/mhg840372-dotcom/quickchatx-backend-sub000/internal/metrics"
	"github.com/mhg840372-dotcom/quickchatx-backend-sub000/internal/models"
	"github.com/mhg840372-dotcom/quickchatx-backend-sub000/internal/store"
)

// cacheTTL bounds how long an idle conversation keeps its cache; a cold read
// falls back to the durable log.
const cacheTTL = 7 * 24 * time.Hour

// lockStripes sizes the per-conversation lock table.
const lockStripes = 64

// conversationCache is the bounded broker-side mirror of recent messages,
// one ordered list per conversation in send order. Every entry corresponds
// to a durable message; the durable log may hold more history. Rewrites
// (read flags, soft-delete patches) and appends on the same conversation are
// serialized through a striped lock so a concurrent send cannot be lost
// between a rewrite's read and its write-back.
//
// All broker errors here are swallowed: the durable log is authoritative and
// a cold reload recovers correctness. They are counted and logged so a
// degraded broker stays observable.
type conversationCache struct {
	broker store.Broker
	size   int
	logger zerolog.Logger
	locks  [lockStripes]sync.Mutex
}

func newConversationCache(broker store.Broker, size int, logger zerolog.Logger) *conversationCache {
	return &conversationCache{
		broker: broker,
		size:   size,
		logger: logger.With().Str("component", "message-cache").Logger(),
	}
}

func cacheKey(conversationID string) string {
	return "conv:" + conversationID + ":messages"
}

func (c *conversationCache) lock(conversationID string) *sync.Mutex {
	h := fnv.New32a()
	_, _ = h.Write([]byte(conversationID))
	return &c.locks[h.Sum32()%lockStripes]
}

func (c *conversationCache) fail(op string, err error) {
	metrics.BrokerFailures.WithLabelValues(op).Inc()
	c.logger.Warn().Err(err).Str("op", op).Msg("message cache degraded")
}

// append adds a message to the tail of the conversation's cache and trims the
// list to the configured bound.
func (c *conversationCache) append(ctx context.Context, msg *models.Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		c.fail("cache_marshal", err)
		return
	}

	mu := c.lock(msg.ConversationID)
	mu.Lock()
	defer mu.Unlock()

	if err := c.broker.PushTrim(ctx, cacheKey(msg.ConversationID), string(data), c.size, cacheTTL); err != nil {
		c.fail("cache_append", err)
	}
}

// load returns the cached messages of a conversation in send order. A broker
// failure or empty cache returns nil, which callers treat as a cold cache.
func (c *conversationCache) load(ctx context.Context, conversationID string) []models.Message {
	raw, err := c.broker.Range(ctx, cacheKey(conversationID))
	if err != nil {
		c.fail("cache_read", err)
		return nil
	}

	messages := make([]models.Message, 0, len(raw))
	for _, data := range raw {
		var msg models.Message
		if err := json.Unmarshal([]byte(data), &msg); err != nil {
			continue
		}
		messages = append(messages, msg)
	}
	return messages
}

// rewrite applies patch to every cached entry of a conversation and writes
// the whole list back, holding the conversation lock across the
// read-modify-write. patch returns true when it changed the message.
func (c *conversationCache) rewrite(ctx context.Context, conversationID string, patch func(msg *models.Message) bool) {
	mu := c.lock(conversationID)
	mu.Lock()
	defer mu.Unlock()

	key := cacheKey(conversationID)
	raw, err := c.broker.Range(ctx, key)
	if err != nil {
		c.fail("cache_read", err)
		return
	}
	if len(raw) == 0 {
		return
	}

	changed := false
	out := make([]string, 0, len(raw))
	for _, data := range raw {
		var msg models.Message
		if err := json.Unmarshal([]byte(data), &msg); err != nil {
			continue
		}
		if patch(&msg) {
			changed = true
			patched, err := json.Marshal(&msg)
			if err != nil {
				c.fail("cache_marshal", err)
				return
			}
			out = append(out, string(patched))
			continue
		}
		out = append(out, data)
	}

	if !changed {
		return
	}
	if err := c.broker.SetList(ctx, key, out, cacheTTL); err != nil {
		c.fail("cache_rewrite", err)
	}
}
