package store

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mhg840372-dotcom/quickchatx-backend-sub000/internal/models"
)

// PostgresStore handles PostgreSQL database operations.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL store with a connection pool.
func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, err
	}

	if err := pool.Ping(ctx); err != nil {
		return nil, err
	}

	return &PostgresStore{pool: pool}, nil
}

// Close closes the database connection pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}

// Ping checks the database connection.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

const messageColumns = `id, conversation_id, sender_id, recipient_id, body, media_ref, kind,
	sent_at, read_at, deleted, deleted_at, deleted_by`

func scanMessage(row pgx.Row) (*models.Message, error) {
	msg := &models.Message{}
	err := row.Scan(
		&msg.ID,
		&msg.ConversationID,
		&msg.SenderID,
		&msg.RecipientID,
		&msg.Body,
		&msg.MediaRef,
		&msg.Kind,
		&msg.SentAt,
		&msg.ReadAt,
		&msg.Deleted,
		&msg.DeletedAt,
		&msg.DeletedBy,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return msg, nil
}

// InsertMessage appends a message to the durable log.
func (s *PostgresStore) InsertMessage(ctx context.Context, msg *models.Message) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO messages (id, conversation_id, sender_id, recipient_id, body, media_ref, kind, sent_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, msg.ID, msg.ConversationID, msg.SenderID, msg.RecipientID, msg.Body, msg.MediaRef, msg.Kind, msg.SentAt)
	return err
}

// GetMessage retrieves a message by id. Returns nil if absent.
func (s *PostgresStore) GetMessage(ctx context.Context, id string) (*models.Message, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+messageColumns+`
		FROM messages WHERE id = $1
	`, id)
	return scanMessage(row)
}

// ListMessages returns the most recent messages of a conversation, newest
// first, limited to limit rows.
func (s *PostgresStore) ListMessages(ctx context.Context, conversationID string, limit int) ([]models.Message, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+messageColumns+`
		FROM messages
		WHERE conversation_id = $1
		ORDER BY sent_at DESC, id DESC
		LIMIT $2
	`, conversationID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectMessages(rows)
}

// ListConversationUnread returns the unread messages addressed to readerID in
// a conversation, oldest first.
func (s *PostgresStore) ListConversationUnread(ctx context.Context, conversationID, readerID string) ([]models.Message, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+messageColumns+`
		FROM messages
		WHERE conversation_id = $1 AND recipient_id = $2 AND read_at IS NULL
		ORDER BY sent_at ASC, id ASC
	`, conversationID, readerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectMessages(rows)
}

func collectMessages(rows pgx.Rows) ([]models.Message, error) {
	messages := []models.Message{}
	for rows.Next() {
		msg := models.Message{}
		err := rows.Scan(
			&msg.ID,
			&msg.ConversationID,
			&msg.SenderID,
			&msg.RecipientID,
			&msg.Body,
			&msg.MediaRef,
			&msg.Kind,
			&msg.SentAt,
			&msg.ReadAt,
			&msg.Deleted,
			&msg.DeletedAt,
			&msg.DeletedBy,
		)
		if err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

// MarkConversationRead bulk-updates every unread message addressed to
// readerID in the conversation. Returns the number of rows touched.
func (s *PostgresStore) MarkConversationRead(ctx context.Context, conversationID, readerID string, readAt time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE messages SET read_at = $3
		WHERE conversation_id = $1 AND recipient_id = $2 AND read_at IS NULL
	`, conversationID, readerID, readAt)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// SetMessageDeleted flags a message as soft-deleted.
func (s *PostgresStore) SetMessageDeleted(ctx context.Context, id string, deletedBy string, deletedAt time.Time) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE messages SET deleted = TRUE, deleted_at = $2, deleted_by = $3
		WHERE id = $1
	`, id, deletedAt, deletedBy)
	return err
}

// ClearMessageDeleted restores a soft-deleted message.
func (s *PostgresStore) ClearMessageDeleted(ctx context.Context, id string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE messages SET deleted = FALSE, deleted_at = NULL, deleted_by = ''
		WHERE id = $1
	`, id)
	return err
}

// PurgeDeletedBefore physically removes messages soft-deleted before cutoff.
func (s *PostgresStore) PurgeDeletedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM messages WHERE deleted = TRUE AND deleted_at < $1
	`, cutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// CountMessages returns the total number of durable messages.
func (s *PostgresStore) CountMessages(ctx context.Context) (int64, error) {
	var count int64
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM messages`).Scan(&count)
	return count, err
}

// CreateCall inserts a new call row.
func (s *PostgresStore) CreateCall(ctx context.Context, call *models.Call) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO calls (id, caller_id, participant_ids, kind, status, started_at, duration_seconds)
		VALUES ($1, $2, $3, $4, $5, $6, 0)
	`, call.ID, call.CallerID, call.ParticipantIDs, call.Kind, call.Status, call.StartedAt)
	return err
}

// GetCall retrieves a call by id. Returns nil if absent.
func (s *PostgresStore) GetCall(ctx context.Context, id string) (*models.Call, error) {
	call := &models.Call{}
	err := s.pool.QueryRow(ctx, `
		SELECT id, caller_id, participant_ids, kind, status, started_at, accepted_at, ended_at, ended_by, duration_seconds
		FROM calls WHERE id = $1
	`, id).Scan(
		&call.ID,
		&call.CallerID,
		&call.ParticipantIDs,
		&call.Kind,
		&call.Status,
		&call.StartedAt,
		&call.AcceptedAt,
		&call.EndedAt,
		&call.EndedBy,
		&call.DurationSeconds,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return call, nil
}

// AcceptCall transitions a call from ringing to active with a compare-and-swap
// on status. Returns false when the call was not ringing anymore.
func (s *PostgresStore) AcceptCall(ctx context.Context, id string, acceptedAt time.Time) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE calls SET status = $2, accepted_at = $3
		WHERE id = $1 AND status = $4
	`, id, models.CallActive, acceptedAt, models.CallRinging)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// FinishCall transitions a call to a terminal status with a compare-and-swap
// on the expected current status. Returns false when the swap lost.
func (s *PostgresStore) FinishCall(ctx context.Context, id string, from, to models.CallStatus, endedAt time.Time, endedBy string, durationSeconds int) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE calls SET status = $2, ended_at = $3, ended_by = $4, duration_seconds = $5
		WHERE id = $1 AND status = $6
	`, id, to, endedAt, endedBy, durationSeconds, from)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// InsertCallRecord appends the immutable terminal record of a call.
func (s *PostgresStore) InsertCallRecord(ctx context.Context, rec *models.CallRecord) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO call_records (call_id, caller_id, receiver_ids, kind, status, started_at, ended_at, duration_seconds, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, rec.CallID, rec.CallerID, rec.ReceiverIDs, rec.Kind, rec.Status, rec.StartedAt, rec.EndedAt, rec.DurationSeconds, rec.CreatedAt)
	return err
}

// ListCallRecords returns a user's call history, most recent first.
func (s *PostgresStore) ListCallRecords(ctx context.Context, userID string, limit int) ([]models.CallRecord, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT call_id, caller_id, receiver_ids, kind, status, started_at, ended_at, duration_seconds, created_at
		FROM call_records
		WHERE caller_id = $1 OR $1 = ANY(receiver_ids)
		ORDER BY ended_at DESC
		LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := []models.CallRecord{}
	for rows.Next() {
		rec := models.CallRecord{}
		err := rows.Scan(
			&rec.CallID,
			&rec.CallerID,
			&rec.ReceiverIDs,
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
		records = append(records, rec)
	}
	return records, rows.Err()
}

// CountCalls returns the total number of durable calls.
func (s *PostgresStore) CountCalls(ctx context.Context) (int64, error) {
	var count int64
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM calls`).Scan(&count)
	return count, err
}

// UpsertPresence writes the durable presence snapshot for a user.
func (s *PostgresStore) UpsertPresence(ctx context.Context, p *models.UserPresence) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO user_presence (user_id, status, last_seen, last_online)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id) DO UPDATE
		SET status = EXCLUDED.status, last_seen = EXCLUDED.last_seen, last_online = EXCLUDED.last_online
	`, p.UserID, p.Status, p.LastSeen, p.LastOnline)
	return err
}

// GetPresence retrieves the durable presence snapshot. Returns nil if the
// user was never seen.
func (s *PostgresStore) GetPresence(ctx context.Context, userID string) (*models.UserPresence, error) {
	p := &models.UserPresence{}
	err := s.pool.QueryRow(ctx, `
		SELECT user_id, status, last_seen, last_online
		FROM user_presence WHERE user_id = $1
	`, userID).Scan(&p.UserID, &p.Status, &p.LastSeen, &p.LastOnline)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return p, nil
}
