package models

import "time"

// Message represents a direct message between two staff identities.
// Rows are append-only: participants and text never change once persisted;
// only ReadAt and the two per-party clear flags may be updated.
type Message struct {
	ID                 int64      `json:"id"`
	FromID             string     `json:"from_id"`
	ToID               string     `json:"to_id"`
	TicketID           *string    `json:"ticket_id,omitempty"`
	Text               string     `json:"text"`
	CreatedAt          time.Time  `json:"created_at"`
	ReadAt             *time.Time `json:"read_at,omitempty"`
	ClearedBySender    bool       `json:"-"`
	ClearedByRecipient bool       `json:"-"`
}
