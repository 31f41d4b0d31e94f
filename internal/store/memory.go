package store

import (
	"context"
	"strconv"
	"sync"
	"time"
)

// MemoryBroker implements Broker with in-process state. It backs single-node
// deployments that run without Redis: pub/sub is a local loopback, so
// cross-node fan-out degrades to same-process delivery, which is exactly the
// single-node behavior.
type MemoryBroker struct {
	mu    sync.RWMutex
	kv    map[string]memEntry
	lists map[string]memList
	subs  map[string][]*memorySubscription

	// now is swappable so expiry behavior is testable.
	now func() time.Time
}

type memEntry struct {
	value     string
	expiresAt time.Time // zero means no expiry
}

type memList struct {
	values    []string
	expiresAt time.Time
}

// NewMemoryBroker creates an empty in-process broker.
func NewMemoryBroker() *MemoryBroker {
	return &MemoryBroker{
		kv:    make(map[string]memEntry),
		lists: make(map[string]memList),
		subs:  make(map[string][]*memorySubscription),
		now:   time.Now,
	}
}

// SetClock overrides the broker's time source. Intended for tests exercising
// TTL decay.
func (b *MemoryBroker) SetClock(now func() time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.now = now
}

// Close closes every open subscription.
func (b *MemoryBroker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, subs := range b.subs {
		for _, s := range subs {
			s.closeLocked()
		}
	}
	b.subs = make(map[string][]*memorySubscription)
	return nil
}

// Ping always succeeds.
func (b *MemoryBroker) Ping(ctx context.Context) error { return nil }

func (e memEntry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}

func (l memList) expired(now time.Time) bool {
	return !l.expiresAt.IsZero() && now.After(l.expiresAt)
}

// Get returns the value at key, honoring expiry.
func (b *MemoryBroker) Get(ctx context.Context, key string) (string, bool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	e, ok := b.kv[key]
	if !ok || e.expired(b.now()) {
		return "", false, nil
	}
	return e.value, true, nil
}

// Set writes key=value with the given TTL. A zero TTL means no expiry.
func (b *MemoryBroker) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	e := memEntry{value: value}
	if ttl > 0 {
		e.expiresAt = b.now().Add(ttl)
	}
	b.kv[key] = e
	return nil
}

// Del removes the given keys from both the KV and list spaces.
func (b *MemoryBroker) Del(ctx context.Context, keys ...string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, k := range keys {
		delete(b.kv, k)
		delete(b.lists, k)
	}
	return nil
}

// Incr increments the counter at key, setting the TTL when the counter is
// created.
func (b *MemoryBroker) Incr(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	e, ok := b.kv[key]
	if !ok || e.expired(b.now()) {
		e = memEntry{value: "0"}
		if ttl > 0 {
			e.expiresAt = b.now().Add(ttl)
		}
	}
	n, err := strconv.ParseInt(e.value, 10, 64)
	if err != nil {
		n = 0
	}
	n++
	e.value = strconv.FormatInt(n, 10)
	b.kv[key] = e
	return n, nil
}

// PushTrim appends value to the list at key, bounded to max entries.
func (b *MemoryBroker) PushTrim(ctx context.Context, key, value string, max int, ttl time.Duration) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	l := b.lists[key]
	if l.expired(b.now()) {
		l = memList{}
	}
	l.values = append(l.values, value)
	if max > 0 && len(l.values) > max {
		l.values = l.values[len(l.values)-max:]
	}
	if ttl > 0 {
		l.expiresAt = b.now().Add(ttl)
	}
	b.lists[key] = l
	return nil
}

// SetList replaces the whole list at key.
func (b *MemoryBroker) SetList(ctx context.Context, key string, values []string, ttl time.Duration) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(values) == 0 {
		delete(b.lists, key)
		return nil
	}
	l := memList{values: append([]string(nil), values...)}
	if ttl > 0 {
		l.expiresAt = b.now().Add(ttl)
	}
	b.lists[key] = l
	return nil
}

// Range returns every entry of the list at key, oldest first.
func (b *MemoryBroker) Range(ctx context.Context, key string) ([]string, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	l, ok := b.lists[key]
	if !ok || l.expired(b.now()) {
		return nil, nil
	}
	return append([]string(nil), l.values...), nil
}

// Publish delivers payload to every local subscriber of channel. Slow
// subscribers are skipped rather than blocking the publisher.
func (b *MemoryBroker) Publish(ctx context.Context, channel, payload string) error {
	b.mu.RLock()
	subs := append([]*memorySubscription(nil), b.subs[channel]...)
	b.mu.RUnlock()
	for _, s := range subs {
		select {
		case s.ch <- payload:
		default:
		}
	}
	return nil
}

type memorySubscription struct {
	broker  *MemoryBroker
	channel string
	ch      chan string
	closed  bool
}

func (s *memorySubscription) Messages() <-chan string { return s.ch }

func (s *memorySubscription) Close() error {
	s.broker.mu.Lock()
	defer s.broker.mu.Unlock()
	subs := s.broker.subs[s.channel]
	for i, other := range subs {
		if other == s {
			s.broker.subs[s.channel] = append(subs[:i], subs[i+1:]...)
			break
		}
	}
	s.closeLocked()
	return nil
}

func (s *memorySubscription) closeLocked() {
	if !s.closed {
		s.closed = true
		close(s.ch)
	}
}

// Subscribe opens a loopback subscription on the named channel.
func (b *MemoryBroker) Subscribe(ctx context.Context, channel string) (Subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	s := &memorySubscription{broker: b, channel: channel, ch: make(chan string, 64)}
	b.subs[channel] = append(b.subs[channel], s)
	return s, nil
}
