package store

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/deskhub/staffchat/internal/models"
)

// SQLiteStore handles SQLite message-log operations. It is the default
// store when no DATABASE_URL is configured.
type SQLiteStore struct {
	db          *sql.DB
	initMu      sync.Mutex
	initialized bool
}

// NewSQLiteStore creates a new SQLite store.
// If dbPath is empty, defaults to "./data/staffchat.db".
func NewSQLiteStore(ctx context.Context, dbPath string) (*SQLiteStore, error) {
	if dbPath == "" {
		dbPath = "./data/staffchat.db"
	}

	// Ensure directory exists (skip for :memory: databases)
	if dbPath != ":memory:" {
		dir := filepath.Dir(dbPath)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, err
		}
	}

	dsn := dbPath + "?_journal_mode=WAL&_busy_timeout=5000"
	if dbPath == ":memory:" {
		dsn = dbPath
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, err
	}

	// An in-memory database exists per connection; keep the pool at one
	// so every caller sees the same schema.
	if dbPath == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}

	return &SQLiteStore{db: db}, nil
}

// ensureSchema creates the message log on first use. A failed attempt is
// retried by the next caller; only success is remembered. The exec runs
// detached from the caller's deadline because the schema is shared state,
// not per-request work.
func (s *SQLiteStore) ensureSchema(ctx context.Context) error {
	s.initMu.Lock()
	defer s.initMu.Unlock()
	if s.initialized {
		return nil
	}

	schema := `
	CREATE TABLE IF NOT EXISTS messages (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		from_id TEXT NOT NULL,
		to_id TEXT NOT NULL,
		ticket_id TEXT,
		text TEXT NOT NULL,
		created_at DATETIME NOT NULL,
		read_at DATETIME,
		cleared_by_sender INTEGER NOT NULL DEFAULT 0,
		cleared_by_recipient INTEGER NOT NULL DEFAULT 0
	);

	CREATE INDEX IF NOT EXISTS idx_messages_from_to ON messages(from_id, to_id, id);
	CREATE INDEX IF NOT EXISTS idx_messages_to_from ON messages(to_id, from_id, id);
	CREATE INDEX IF NOT EXISTS idx_messages_ticket ON messages(ticket_id);
	`
	if _, err := s.db.ExecContext(context.WithoutCancel(ctx), schema); err != nil {
		return err
	}

	s.initialized = true
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() {
	s.db.Close()
}

// Ping checks the database connection.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Append durably stores a message with a monotonically increasing id.
func (s *SQLiteStore) Append(ctx context.Context, msg *models.Message) error {
	if err := s.ensureSchema(ctx); err != nil {
		return err
	}

	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO messages (from_id, to_id, ticket_id, text, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, msg.FromID, msg.ToID, msg.TicketID, msg.Text, msg.CreatedAt)
	if err != nil {
		return err
	}

	msg.ID, err = res.LastInsertId()
	return err
}

// Conversation returns the viewer's visible thread with peer, oldest first.
// Rows the viewer personally cleared are excluded regardless of the other
// party's flag.
func (s *SQLiteStore) Conversation(ctx context.Context, viewer, peer string, ticketID *string) ([]models.Message, error) {
	if err := s.ensureSchema(ctx); err != nil {
		return nil, err
	}

	query := `
		SELECT id, from_id, to_id, ticket_id, text, created_at, read_at, cleared_by_sender, cleared_by_recipient
		FROM messages
		WHERE ((from_id = ? AND to_id = ?) OR (from_id = ? AND to_id = ?))
		  AND NOT (from_id = ? AND cleared_by_sender = 1)
		  AND NOT (to_id = ? AND cleared_by_recipient = 1)
	`
	args := []interface{}{viewer, peer, peer, viewer, viewer, viewer}
	if ticketID != nil {
		query += ` AND ticket_id = ?`
		args = append(args, *ticketID)
	}
	query += ` ORDER BY id ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []models.Message
	for rows.Next() {
		var msg models.Message
		var clearedBySender, clearedByRecipient int
		err := rows.Scan(
			&msg.ID,
			&msg.FromID,
			&msg.ToID,
			&msg.TicketID,
			&msg.Text,
			&msg.CreatedAt,
			&msg.ReadAt,
			&clearedBySender,
			&clearedByRecipient,
		)
		if err != nil {
			return nil, err
		}
		msg.ClearedBySender = clearedBySender == 1
		msg.ClearedByRecipient = clearedByRecipient == 1
		messages = append(messages, msg)
	}

	return messages, rows.Err()
}

// Clear sets the viewer's own clear flag on all matching rows. It never
// deletes rows and is idempotent.
func (s *SQLiteStore) Clear(ctx context.Context, viewer, peer string, ticketID *string) error {
	if err := s.ensureSchema(ctx); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	sent := `UPDATE messages SET cleared_by_sender = 1 WHERE from_id = ? AND to_id = ?`
	received := `UPDATE messages SET cleared_by_recipient = 1 WHERE from_id = ? AND to_id = ?`
	sentArgs := []interface{}{viewer, peer}
	recvArgs := []interface{}{peer, viewer}
	if ticketID != nil {
		sent += ` AND ticket_id = ?`
		received += ` AND ticket_id = ?`
		sentArgs = append(sentArgs, *ticketID)
		recvArgs = append(recvArgs, *ticketID)
	}

	if _, err := tx.ExecContext(ctx, sent, sentArgs...); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, received, recvArgs...); err != nil {
		return err
	}

	return tx.Commit()
}

// MarkRead stamps read_at on the viewer's unread inbound rows from peer.
func (s *SQLiteStore) MarkRead(ctx context.Context, viewer, peer string, ticketID *string) error {
	if err := s.ensureSchema(ctx); err != nil {
		return err
	}

	query := `UPDATE messages SET read_at = ? WHERE to_id = ? AND from_id = ? AND read_at IS NULL`
	args := []interface{}{time.Now().UTC(), viewer, peer}
	if ticketID != nil {
		query += ` AND ticket_id = ?`
		args = append(args, *ticketID)
	}

	_, err := s.db.ExecContext(ctx, query, args...)
	return err
}

// RecentPeers lists peers with at least one message the viewer has not
// cleared, most recent activity first, deduplicated by peer.
func (s *SQLiteStore) RecentPeers(ctx context.Context, viewer string) ([]models.PeerActivity, error) {
	if err := s.ensureSchema(ctx); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT peer, MAX(created_at) AS last_activity FROM (
			SELECT to_id AS peer, created_at FROM messages
			WHERE from_id = ? AND cleared_by_sender = 0
			UNION ALL
			SELECT from_id AS peer, created_at FROM messages
			WHERE to_id = ? AND cleared_by_recipient = 0
		)
		GROUP BY peer
		ORDER BY last_activity DESC
	`, viewer, viewer)
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
