package models

import "time"

// Connection-level event types.
const (
	EventIdentityAck      = "identity_ack"
	EventPresenceSnapshot = "presence_snapshot"
	EventMessageSend      = "message_send"
	EventMessageDelivered = "message_delivered"
	EventError            = "error"
)

// DeliveredMessage is the server→client payload for a fanned-out message.
type DeliveredMessage struct {
	ID        int64     `json:"id"`
	FromID    string    `json:"from_id"`
	FromName  string    `json:"from_name"`
	ToID      string    `json:"to_id"`
	Text      string    `json:"text"`
	TicketID  *string   `json:"ticket_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// SendRequest is the client→server payload of a message_send event.
type SendRequest struct {
	ToID     string  `json:"to_id"`
	Text     string  `json:"text"`
	TicketID *string `json:"ticket_id,omitempty"`
}

// Event is one frame on a live connection. Type selects which of the
// payload fields is populated.
type Event struct {
	Type     string            `json:"type"`
	Identity *Identity         `json:"identity,omitempty"`
	Online   []Identity        `json:"online,omitempty"`
	Send     *SendRequest      `json:"send,omitempty"`
	Message  *DeliveredMessage `json:"message,omitempty"`
	Error    string            `json:"error,omitempty"`
}
