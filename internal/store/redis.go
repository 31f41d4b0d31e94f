package store

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisBroker implements Broker against a Redis server. It is the production
// path for the message cache, TTL'd presence state and cross-node pub/sub.
type RedisBroker struct {
	client *redis.Client
}

// NewRedisBroker connects to Redis and verifies the connection.
func NewRedisBroker(ctx context.Context, redisURL string) (*RedisBroker, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opts)

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	return &RedisBroker{client: client}, nil
}

// Close closes the Redis connection.
func (b *RedisBroker) Close() error {
	return b.client.Close()
}

// Ping checks the Redis connection.
func (b *RedisBroker) Ping(ctx context.Context) error {
	return b.client.Ping(ctx).Err()
}

// Get returns the value at key and whether the key exists.
func (b *RedisBroker) Get(ctx context.Context, key string) (string, bool, error) {
	val, err := b.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return val, true, nil
}

// Set writes key=value with the given TTL. A zero TTL means no expiry.
func (b *RedisBroker) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return b.client.Set(ctx, key, value, ttl).Err()
}

// Del removes the given keys.
func (b *RedisBroker) Del(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return b.client.Del(ctx, keys...).Err()
}

// Incr increments the counter at key, setting the TTL when the counter is
// created.
func (b *RedisBroker) Incr(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	pipe := b.client.Pipeline()
	incr := pipe.Incr(ctx, key)
	if ttl > 0 {
		pipe.Expire(ctx, key, ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return incr.Val(), nil
}

// PushTrim appends value to the list at key and trims it to the most recent
// max entries, refreshing the list TTL in the same pipeline.
func (b *RedisBroker) PushTrim(ctx context.Context, key, value string, max int, ttl time.Duration) error {
	pipe := b.client.Pipeline()
	pipe.RPush(ctx, key, value)
	pipe.LTrim(ctx, key, int64(-max), -1)
	if ttl > 0 {
		pipe.Expire(ctx, key, ttl)
	}
	_, err := pipe.Exec(ctx)
	return err
}

// SetList atomically replaces the whole list at key.
func (b *RedisBroker) SetList(ctx context.Context, key string, values []string, ttl time.Duration) error {
	pipe := b.client.TxPipeline()
	pipe.Del(ctx, key)
	if len(values) > 0 {
		args := make([]interface{}, len(values))
		for i, v := range values {
			args[i] = v
		}
		pipe.RPush(ctx, key, args...)
		if ttl > 0 {
			pipe.Expire(ctx, key, ttl)
		}
	}
	_, err := pipe.Exec(ctx)
	return err
}

// Range returns every entry of the list at key, oldest first.
func (b *RedisBroker) Range(ctx context.Context, key string) ([]string, error) {
	return b.client.LRange(ctx, key, 0, -1).Result()
}

// Publish sends payload on the named channel.
func (b *RedisBroker) Publish(ctx context.Context, channel, payload string) error {
	return b.client.Publish(ctx, channel, payload).Err()
}

// redisSubscription adapts redis.PubSub to the Subscription interface.
type redisSubscription struct {
	pubsub *redis.PubSub
	ch     chan string
}

func (s *redisSubscription) Messages() <-chan string { return s.ch }

func (s *redisSubscription) Close() error { return s.pubsub.Close() }

// Subscribe opens a subscription on the named channel. The returned feed is
// closed when the subscription is closed.
func (b *RedisBroker) Subscribe(ctx context.Context, channel string) (Subscription, error) {
	pubsub := b.client.Subscribe(ctx, channel)

	// Force the subscription to be established before returning.
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, err
	}

	sub := &redisSubscription{pubsub: pubsub, ch: make(chan string, 64)}
	go func() {
		defer close(sub.ch)
		for msg := range pubsub.Channel() {
			sub.ch <- msg.Payload
		}
	}()

	return sub, nil
}
