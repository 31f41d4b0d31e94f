package store

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/mhg840372-dotcom/quickchatx-backend-sub000/internal/models"
)

// SQLiteStore is the durable log for single-node and development
// deployments. It implements the same DataStore contract as PostgresStore.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store.
// If dbPath is empty, defaults to "./data/quickchatx.db".
func NewSQLiteStore(ctx context.Context, dbPath string) (*SQLiteStore, error) {
	if dbPath == "" {
		dbPath = "./data/quickchatx.db"
	}

	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, err
	}

	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}

	s := &SQLiteStore{db: db}

	if err := s.initSchema(ctx); err != nil {
		return nil, err
	}

	return s, nil
}

// initSchema creates tables if they don't exist.
func (s *SQLiteStore) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS messages (
		id TEXT PRIMARY KEY,
		conversation_id TEXT NOT NULL,
		sender_id TEXT NOT NULL,
		recipient_id TEXT NOT NULL,
		body TEXT NOT NULL DEFAULT '',
		media_ref TEXT NOT NULL DEFAULT '',
		kind TEXT NOT NULL DEFAULT 'text',
		sent_at TIMESTAMP NOT NULL,
		read_at TIMESTAMP,
		deleted INTEGER NOT NULL DEFAULT 0,
		deleted_at TIMESTAMP,
		deleted_by TEXT NOT NULL DEFAULT ''
	);

	CREATE INDEX IF NOT EXISTS idx_messages_conversation_sent
		ON messages (conversation_id, sent_at DESC);

	CREATE TABLE IF NOT EXISTS calls (
		id TEXT PRIMARY KEY,
		caller_id TEXT NOT NULL,
		participant_ids TEXT NOT NULL,
		kind TEXT NOT NULL,
		status TEXT NOT NULL,
		started_at TIMESTAMP NOT NULL,
		accepted_at TIMESTAMP,
		ended_at TIMESTAMP,
		ended_by TEXT NOT NULL DEFAULT '',
		duration_seconds INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS call_records (
		call_id TEXT PRIMARY KEY,
		caller_id TEXT NOT NULL,
		receiver_ids TEXT NOT NULL,
		kind TEXT NOT NULL,
		status TEXT NOT NULL,
		started_at TIMESTAMP NOT NULL,
		ended_at TIMESTAMP NOT NULL,
		duration_seconds INTEGER NOT NULL DEFAULT 0,
		created_at TIMESTAMP NOT NULL
	);

	CREATE TABLE IF NOT EXISTS user_presence (
		user_id TEXT PRIMARY KEY,
		status TEXT NOT NULL DEFAULT 'offline',
		last_seen TIMESTAMP NOT NULL,
		last_online TIMESTAMP NOT NULL
	);
	`
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// Close closes the database.
func (s *SQLiteStore) Close() {
	_ = s.db.Close()
}

// Ping checks the database connection.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// joinIDs flattens an id slice for a TEXT column; SQLite has no array type.
func joinIDs(ids []string) string {
	return strings.Join(ids, ",")
}

func splitIDs(joined string) []string {
	if joined == "" {
		return nil
	}
	return strings.Split(joined, ",")
}

const sqliteMessageColumns = `id, conversation_id, sender_id, recipient_id, body, media_ref, kind,
	sent_at, read_at, deleted, deleted_at, deleted_by`

func scanSQLiteMessage(row interface{ Scan(...any) error }) (*models.Message, error) {
	msg := &models.Message{}
	var readAt, deletedAt sql.NullTime
	err := row.Scan(
		&msg.ID,
		&msg.ConversationID,
		&msg.SenderID,
		&msg.RecipientID,
		&msg.Body,
		&msg.MediaRef,
		&msg.Kind,
		&msg.SentAt,
		&readAt,
		&msg.Deleted,
		&deletedAt,
		&msg.DeletedBy,
	)
	if err != nil {
		return nil, err
	}
	if readAt.Valid {
		t := readAt.Time
		msg.ReadAt = &t
	}
	if deletedAt.Valid {
		t := deletedAt.Time
		msg.DeletedAt = &t
	}
	return msg, nil
}

// InsertMessage appends a message to the durable log.
func (s *SQLiteStore) InsertMessage(ctx context.Context, msg *models.Message) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO messages (id, conversation_id, sender_id, recipient_id, body, media_ref, kind, sent_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, msg.ID, msg.ConversationID, msg.SenderID, msg.RecipientID, msg.Body, msg.MediaRef, msg.Kind, msg.SentAt)
	return err
}

// GetMessage retrieves a message by id. Returns nil if absent.
func (s *SQLiteStore) GetMessage(ctx context.Context, id string) (*models.Message, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+sqliteMessageColumns+` FROM messages WHERE id = ?
	`, id)
	msg, err := scanSQLiteMessage(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return msg, err
}

// ListMessages returns the most recent messages of a conversation, newest first.
func (s *SQLiteStore) ListMessages(ctx context.Context, conversationID string, limit int) ([]models.Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+sqliteMessageColumns+`
		FROM messages
		WHERE conversation_id = ?
		ORDER BY sent_at DESC, id DESC
		LIMIT ?
	`, conversationID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	messages := []models.Message{}
	for rows.Next() {
		msg, err := scanSQLiteMessage(rows)
		if err != nil {
			return nil, err
		}
		messages = append(messages, *msg)
	}
	return messages, rows.Err()
}

// ListConversationUnread returns unread messages addressed to readerID, oldest first.
func (s *SQLiteStore) ListConversationUnread(ctx context.Context, conversationID, readerID string) ([]models.Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+sqliteMessageColumns+`
		FROM messages
		WHERE conversation_id = ? AND recipient_id = ? AND read_at IS NULL
		ORDER BY sent_at ASC, id ASC
	`, conversationID, readerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	messages := []models.Message{}
	for rows.Next() {
		msg, err := scanSQLiteMessage(rows)
		if err != nil {
			return nil, err
		}
		messages = append(messages, *msg)
	}
	return messages, rows.Err()
}

// MarkConversationRead bulk-updates unread messages addressed to readerID.
func (s *SQLiteStore) MarkConversationRead(ctx context.Context, conversationID, readerID string, readAt time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE messages SET read_at = ?
		WHERE conversation_id = ? AND recipient_id = ? AND read_at IS NULL
	`, readAt, conversationID, readerID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// SetMessageDeleted flags a message as soft-deleted.
func (s *SQLiteStore) SetMessageDeleted(ctx context.Context, id string, deletedBy string, deletedAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE messages SET deleted = 1, deleted_at = ?, deleted_by = ? WHERE id = ?
	`, deletedAt, deletedBy, id)
	return err
}

// ClearMessageDeleted restores a soft-deleted message.
func (s *SQLiteStore) ClearMessageDeleted(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE messages SET deleted = 0, deleted_at = NULL, deleted_by = '' WHERE id = ?
	`, id)
	return err
}

// PurgeDeletedBefore physically removes messages soft-deleted before cutoff.
func (s *SQLiteStore) PurgeDeletedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM messages WHERE deleted = 1 AND deleted_at < ?
	`, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// CountMessages returns the total number of durable messages.
func (s *SQLiteStore) CountMessages(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM messages`).Scan(&count)
	return count, err
}

// CreateCall inserts a new call row.
func (s *SQLiteStore) CreateCall(ctx context.Context, call *models.Call) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO calls (id, caller_id, participant_ids, kind, status, started_at, duration_seconds)
		VALUES (?, ?, ?, ?, ?, ?, 0)
	`, call.ID, call.CallerID, joinIDs(call.ParticipantIDs), call.Kind, call.Status, call.StartedAt)
	return err
}

// GetCall retrieves a call by id. Returns nil if absent.
func (s *SQLiteStore) GetCall(ctx context.Context, id string) (*models.Call, error) {
	call := &models.Call{}
	var participants string
	var acceptedAt, endedAt sql.NullTime
	err := s.db.QueryRowContext(ctx, `
		SELECT id, caller_id, participant_ids, kind, status, started_at, accepted_at, ended_at, ended_by, duration_seconds
		FROM calls WHERE id = ?
	`, id).Scan(
		&call.ID,
		&call.CallerID,
		&participants,
		&call.Kind,
		&call.Status,
		&call.StartedAt,
		&acceptedAt,
		&endedAt,
		&call.EndedBy,
		&call.DurationSeconds,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	call.ParticipantIDs = splitIDs(participants)
	if acceptedAt.Valid {
		t := acceptedAt.Time
		call.AcceptedAt = &t
	}
	if endedAt.Valid {
		t := endedAt.Time
		call.EndedAt = &t
	}
	return call, nil
}

// AcceptCall transitions ringing -> active with a compare-and-swap on status.
func (s *SQLiteStore) AcceptCall(ctx context.Context, id string, acceptedAt time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE calls SET status = ?, accepted_at = ? WHERE id = ? AND status = ?
	`, models.CallActive, acceptedAt, id, models.CallRinging)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

// FinishCall transitions a call to a terminal status with a compare-and-swap.
func (s *SQLiteStore) FinishCall(ctx context.Context, id string, from, to models.CallStatus, endedAt time.Time, endedBy string, durationSeconds int) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE calls SET status = ?, ended_at = ?, ended_by = ?, duration_seconds = ?
		WHERE id = ? AND status = ?
	`, to, endedAt, endedBy, durationSeconds, id, from)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

// InsertCallRecord appends the immutable terminal record of a call.
func (s *SQLiteStore) InsertCallRecord(ctx context.Context, rec *models.CallRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO call_records (call_id, caller_id, receiver_ids, kind, status, started_at, ended_at, duration_seconds, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, rec.CallID, rec.CallerID, joinIDs(rec.ReceiverIDs), rec.Kind, rec.Status, rec.StartedAt, rec.EndedAt, rec.DurationSeconds, rec.CreatedAt)
	return err
}

// ListCallRecords returns a user's call history, most recent first.
func (s *SQLiteStore) ListCallRecords(ctx context.Context, userID string, limit int) ([]models.CallRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT call_id, caller_id, receiver_ids, kind, status, started_at, ended_at, duration_seconds, created_at
		FROM call_records
		WHERE caller_id = ? OR receiver_ids LIKE '%' || ? || '%'
		ORDER BY ended_at DESC
		LIMIT ?
	`, userID, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := []models.CallRecord{}
	for rows.Next() {
		rec := models.CallRecord{}
		var receivers string
		err := rows.Scan(
			&rec.CallID,
			&rec.CallerID,
			&receivers,
			&rec.Kind,
			&rec.Status,
			&rec.StartedAt,
			&rec.EndedAt,
			&rec.DurationSeconds,
			&rec.CreatedAt,
		)
		if err != nil {
			return nil, err
		}
		rec.ReceiverIDs = splitIDs(receivers)
		records = append(records, rec)
	}
	return records, rows.Err()
}

// CountCalls returns the total number of durable calls.
func (s *SQLiteStore) CountCalls(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM calls`).Scan(&count)
	return count, err
}

// UpsertPresence writes the durable presence snapshot for a user.
func (s *SQLiteStore) UpsertPresence(ctx context.Context, p *models.UserPresence) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO user_presence (user_id, status, last_seen, last_online)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (user_id) DO UPDATE
		SET status = excluded.status, last_seen = excluded.last_seen, last_online = excluded.last_online
	`, p.UserID, p.Status, p.LastSeen, p.LastOnline)
	return err
}

// GetPresence retrieves the durable presence snapshot. Returns nil if the
// user was never seen.
func (s *SQLiteStore) GetPresence(ctx context.Context, userID string) (*models.UserPresence, error) {
	p := &models.UserPresence{}
	err := s.db.QueryRowContext(ctx, `
		SELECT user_id, status, last_seen, last_online
		FROM user_presence WHERE user_id = ?
	`, userID).Scan(&p.UserID, &p.Status, &p.LastSeen, &p.LastOnline)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}
