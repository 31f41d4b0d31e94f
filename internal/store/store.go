package store

import (
	"context"
	"time"

	"github.com/mhg840372-dotcom/quickchatx-backend-sub000/internal/models"
)

// DataStore defines the interface for the durable conversation log: the
// single source of truth for messages, calls, call records and presence
// snapshots. Both PostgresStore and SQLiteStore implement this interface.
type DataStore interface {
	// Connection management
	Close()
	Ping(ctx context.Context) error

	// Message operations
	InsertMessage(ctx context.Context, msg *models.Message) error
	GetMessage(ctx context.Context, id string) (*models.Message, error)
	ListMessages(ctx context.Context, conversationID string, limit int) ([]models.Message, error)
	ListConversationUnread(ctx context.Context, conversationID, readerID string) ([]models.Message, error)
	MarkConversationRead(ctx context.Context, conversationID, readerID string, readAt time.Time) (int64, error)
	SetMessageDeleted(ctx context.Context, id string, deletedBy string, deletedAt time.Time) error
	ClearMessageDeleted(ctx context.Context, id string) error
	PurgeDeletedBefore(ctx context.Context, cutoff time.Time) (int64, error)
	CountMessages(ctx context.Context) (int64, error)

	// Call operations
	CreateCall(ctx context.Context, call *models.Call) error
	GetCall(ctx context.Context, id string) (*models.Call, error)
	AcceptCall(ctx context.Context, id string, acceptedAt time.Time) (bool, error)
	FinishCall(ctx context.Context, id string, from, to models.CallStatus, endedAt time.Time, endedBy string, durationSeconds int) (bool, error)
	InsertCallRecord(ctx context.Context, rec *models.CallRecord) error
	ListCallRecords(ctx context.Context, userID string, limit int) ([]models.CallRecord, error)
	CountCalls(ctx context.Context) (int64, error)

	// Presence snapshots
	UpsertPresence(ctx context.Context, p *models.UserPresence) error
	GetPresence(ctx context.Context, userID string) (*models.UserPresence, error)
}

// Subscription is a live feed of payloads from a broker channel.
type Subscription interface {
	Messages() <-chan string
	Close() error
}

// Broker defines the interface against the shared key/value + pub/sub
// infrastructure used for cross-node signaling and ephemeral state. One
// implementation talks to Redis; MemoryBroker serves single-node deployments
// and tests.
type Broker interface {
	Close() error
	Ping(ctx context.Context) error

	// Key/value with expiry
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
	Incr(ctx context.Context, key string, ttl time.Duration) (int64, error)

	// Bounded ordered lists
	PushTrim(ctx context.Context, key, value string, max int, ttl time.Duration) error
	SetList(ctx context.Context, key string, values []string, ttl time.Duration) error
	Range(ctx context.Context, key string) ([]string, error)

	// Publish/subscribe on a named channel
	Publish(ctx context.Context, channel, payload string) error
	Subscribe(ctx context.Context, channel string) (Subscription, error)
}
