package store

import (
	"context"

	"github.com/jackc/pgx/v5"
)

// schema is applied idempotently at startup.
const schema = `
CREATE TABLE IF NOT EXISTS messages (
	id TEXT PRIMARY KEY,
	conversation_id TEXT NOT NULL,
	sender_id TEXT NOT NULL,
	recipient_id TEXT NOT NULL,
	body TEXT NOT NULL DEFAULT '',
	media_ref TEXT NOT NULL DEFAULT '',
	kind TEXT NOT NULL DEFAULT 'text',
	sent_at TIMESTAMPTZ NOT NULL,
	read_at TIMESTAMPTZ,
	deleted BOOLEAN NOT NULL DEFAULT FALSE,
	deleted_at TIMESTAMPTZ,
	deleted_by TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_messages_conversation_sent
	ON messages (conversation_id, sent_at DESC);
CREATE INDEX IF NOT EXISTS idx_messages_unread
	ON messages (conversation_id, recipient_id) WHERE read_at IS NULL;

CREATE TABLE IF NOT EXISTS calls (
	id TEXT PRIMARY KEY,
	caller_id TEXT NOT NULL,
	participant_ids TEXT[] NOT NULL,
	kind TEXT NOT NULL,
	status TEXT NOT NULL,
	started_at TIMESTAMPTZ NOT NULL,
	accepted_at TIMESTAMPTZ,
	ended_at TIMESTAMPTZ,
	ended_by TEXT NOT NULL DEFAULT '',
	duration_seconds INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS call_records (
	call_id TEXT PRIMARY KEY,
	caller_id TEXT NOT NULL,
	receiver_ids TEXT[] NOT NULL,
	kind TEXT NOT NULL,
	status TEXT NOT NULL,
	started_at TIMESTAMPTZ NOT NULL,
	ended_at TIMESTAMPTZ NOT NULL,
	duration_seconds INTEGER NOT NULL DEFAULT 0,
	created_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_call_records_caller ON call_records (caller_id, ended_at DESC);

CREATE TABLE IF NOT EXISTS user_presence (
	user_id TEXT PRIMARY KEY,
	status TEXT NOT NULL DEFAULT 'offline',
	last_seen TIMESTAMPTZ NOT NULL,
	last_online TIMESTAMPTZ NOT NULL
);
`

// RunMigrations applies the schema to the Postgres database.
func RunMigrations(databaseURL string) error {
	ctx := context.Background()

	conn, err := pgx.Connect(ctx, databaseURL)
	if err != nil {
		return err
	}
	defer conn.Close(ctx)

	_, err = conn.Exec(ctx, schema)
	return err
}
