// Package ws is the live connection layer: one websocket per device,
// many concurrent connections per identity.
package ws

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"github.com/deskhub/staffchat/internal/models"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4 << 10
	sendBuffer     = 64
)

// Conn is one live websocket connection owned by a single identity for
// its whole lifetime. It implements presence.Conn.
type Conn struct {
	id       string
	identity models.Identity
	sock     *websocket.Conn
	send     chan models.Event
	closed   chan struct{}
	once     sync.Once
	logger   zerolog.Logger
}

func newConn(identity models.Identity, sock *websocket.Conn, logger zerolog.Logger) *Conn {
	id := ulid.Make().String()
	return &Conn{
		id:       id,
		identity: identity,
		sock:     sock,
		send:     make(chan models.Event, sendBuffer),
		closed:   make(chan struct{}),
		logger:   logger.With().Str("conn", id).Str("identity", identity.ID).Logger(),
	}
}

// ID returns the connection handle, sortable by connect time.
func (c *Conn) ID() string {
	return c.id
}

// Identity returns the verified identity that owns this connection.
func (c *Conn) Identity() models.Identity {
	return c.identity
}

// Deliver enqueues an event without blocking. It reports false when the
// connection is closed or its buffer is full; the caller treats that as a
// best-effort delivery gap since the message is already persisted.
func (c *Conn) Deliver(event models.Event) bool {
	select {
	case <-c.closed:
		return false
	default:
	}

	select {
	case c.send <- event:
		return true
	default:
		c.logger.Warn().Str("event", event.Type).Msg("send buffer full, dropping event")
		return false
	}
}

// close marks the connection dead and closes the socket. Safe to call
// from both pumps.
func (c *Conn) close() {
	c.once.Do(func() {
		close(c.closed)
		c.sock.Close()
	})
}

// writePump pumps queued events to the socket and keeps the connection
// alive with periodic pings.
func (c *Conn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.close()
	}()

	for {
		select {
		case <-c.closed:
			return
		case event := <-c.send:
			c.sock.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.sock.WriteJSON(event); err != nil {
				return
			}
		case <-ticker.C:
			c.sock.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.sock.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
