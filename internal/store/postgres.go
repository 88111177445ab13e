package store

import (
	"context"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/deskhub/staffchat/internal/models"
)

// PostgresStore handles PostgreSQL message-log operations.
type PostgresStore struct {
	pool        *pgxpool.Pool
	initMu      sync.Mutex
	initialized bool
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

// ensureSchema creates the message log on first use. A failed attempt is
// retried by the next caller; only success is remembered. The exec runs
// detached from the caller's deadline because the schema is shared state,
// not per-request work.
func (s *PostgresStore) ensureSchema(ctx context.Context) error {
	s.initMu.Lock()
	defer s.initMu.Unlock()
	if s.initialized {
		return nil
	}

	schema := `
	CREATE TABLE IF NOT EXISTS messages (
		id BIGSERIAL PRIMARY KEY,
		from_id TEXT NOT NULL,
		to_id TEXT NOT NULL,
		ticket_id TEXT,
		text TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL,
		read_at TIMESTAMPTZ,
		cleared_by_sender BOOLEAN NOT NULL DEFAULT FALSE,
		cleared_by_recipient BOOLEAN NOT NULL DEFAULT FALSE
	);

	CREATE INDEX IF NOT EXISTS idx_messages_from_to ON messages(from_id, to_id, id);
	CREATE INDEX IF NOT EXISTS idx_messages_to_from ON messages(to_id, from_id, id);
	CREATE INDEX IF NOT EXISTS idx_messages_ticket ON messages(ticket_id);
	`
	if _, err := s.pool.Exec(context.WithoutCancel(ctx), schema); err != nil {
		return err
	}

	s.initialized = true
	return nil
}

// Close closes the database connection pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}

// Ping checks the database connection.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Append durably stores a message with a monotonically increasing id.
func (s *PostgresStore) Append(ctx context.Context, msg *models.Message) error {
	if err := s.ensureSchema(ctx); err != nil {
		return err
	}

	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}

	return s.pool.QueryRow(ctx, `
		INSERT INTO messages (from_id, to_id, ticket_id, text, created_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`, msg.FromID, msg.ToID, msg.TicketID, msg.Text, msg.CreatedAt).Scan(&msg.ID)
}

// Conversation returns the viewer's visible thread with peer, oldest first.
func (s *PostgresStore) Conversation(ctx context.Context, viewer, peer string, ticketID *string) ([]models.Message, error) {
	if err := s.ensureSchema(ctx); err != nil {
		return nil, err
	}

	query := `
		SELECT id, from_id, to_id, ticket_id, text, created_at, read_at, cleared_by_sender, cleared_by_recipient
		FROM messages
		WHERE ((from_id = $1 AND to_id = $2) OR (from_id = $2 AND to_id = $1))
		  AND NOT (from_id = $1 AND cleared_by_sender)
		  AND NOT (to_id = $1 AND cleared_by_recipient)
	`
	args := []interface{}{viewer, peer}
	if ticketID != nil {
		query += ` AND ticket_id = $3`
		args = append(args, *ticketID)
	}
	query += ` ORDER BY id ASC`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []models.Message
	for rows.Next() {
		var msg models.Message
		err := rows.Scan(
			&msg.ID,
			&msg.FromID,
			&msg.ToID,
			&msg.TicketID,
			&msg.Text,
			&msg.CreatedAt,
			&msg.ReadAt,
			&msg.ClearedBySender,
			&msg.ClearedByRecipient,
		)
		if err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}

	return messages, rows.Err()
}

// Clear sets the viewer's own clear flag on all matching rows.
func (s *PostgresStore) Clear(ctx context.Context, viewer, peer string, ticketID *string) error {
	if err := s.ensureSchema(ctx); err != nil {
		return err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	sent := `UPDATE messages SET cleared_by_sender = TRUE WHERE from_id = $1 AND to_id = $2`
	received := `UPDATE messages SET cleared_by_recipient = TRUE WHERE from_id = $2 AND to_id = $1`
	args := []interface{}{viewer, peer}
	if ticketID != nil {
		sent += ` AND ticket_id = $3`
		received += ` AND ticket_id = $3`
		args = append(args, *ticketID)
	}

	if _, err := tx.Exec(ctx, sent, args...); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, received, args...); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// MarkRead stamps read_at on the viewer's unread inbound rows from peer.
func (s *PostgresStore) MarkRead(ctx context.Context, viewer, peer string, ticketID *string) error {
	if err := s.ensureSchema(ctx); err != nil {
		return err
	}

	query := `UPDATE messages SET read_at = $1 WHERE to_id = $2 AND from_id = $3 AND read_at IS NULL`
	args := []interface{}{time.Now().UTC(), viewer, peer}
	if ticketID != nil {
		query += ` AND ticket_id = $4`
		args = append(args, *ticketID)
	}

	_, err := s.pool.Exec(ctx, query, args...)
	return err
}

// RecentPeers lists peers with at least one message the viewer has not
// cleared, most recent activity first.
func (s *PostgresStore) RecentPeers(ctx context.Context, viewer string) ([]models.PeerActivity, error) {
	if err := s.ensureSchema(ctx); err != nil {
		return nil, err
	}

	rows, err := s.pool.Query(ctx, `
		SELECT peer, MAX(created_at) AS last_activity FROM (
			SELECT to_id AS peer, created_at FROM messages
			WHERE from_id = $1 AND NOT cleared_by_sender
			UNION ALL
			SELECT from_id AS peer, created_at FROM messages
			WHERE to_id = $1 AND NOT cleared_by_recipient
		) activity
		GROUP BY peer
		ORDER BY last_activity DESC
	`, viewer)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var peers []models.PeerActivity
	for rows.Next() {
		var p models.PeerActivity
		if err := rows.Scan(&p.PeerID, &p.LastActivity); err != nil {
			return nil, err
		}
		peers = append(peers, p)
	}

	return peers, rows.Err()
}
