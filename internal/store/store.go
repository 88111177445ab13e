package store

import (
	"context"

	"github.com/deskhub/staffchat/internal/models"
)

// MessageStore defines the interface for durable direct-message storage.
// Both PostgresStore and SQLiteStore implement this interface. The log is
// append-only: clearing a conversation flags rows per party, it never
// deletes them.
type MessageStore interface {
	// Connection management
	Close()
	Ping(ctx context.Context) error

	// Append durably stores a message, assigning a monotonically
	// increasing id and filling CreatedAt when unset.
	Append(ctx context.Context, msg *models.Message) error

	// Conversation returns all messages exchanged between viewer and peer,
	// oldest first, excluding rows the viewer personally cleared. A non-nil
	// ticketID restricts the thread to that ticket context.
	Conversation(ctx context.Context, viewer, peer string, ticketID *string) ([]models.Message, error)

	// Clear sets the viewer's own clear flag on every matching row.
	// Idempotent; the peer's view is unaffected.
	Clear(ctx context.Context, viewer, peer string, ticketID *string) error

	// MarkRead stamps read_at on the viewer's unread inbound rows from peer.
	MarkRead(ctx context.Context, viewer, peer string, ticketID *string) error

	// RecentPeers lists peers with at least one message the viewer has not
	// cleared, most recent activity first, deduplicated by peer.
	RecentPeers(ctx context.Context, viewer string) ([]models.PeerActivity, error)
}
