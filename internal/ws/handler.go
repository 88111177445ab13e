package ws

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/deskhub/staffchat/internal/chat"
	"github.com/deskhub/staffchat/internal/identity"
	"github.com/deskhub/staffchat/internal/metrics"
	"github.com/deskhub/staffchat/internal/models"
	"github.com/deskhub/staffchat/internal/presence"
	"github.com/deskhub/staffchat/internal/store"
)

// Handler upgrades connections, resolves the identity and wires the
// connection into the presence registry and message router.
type Handler struct {
	registry   *presence.Registry
	router     *chat.Router
	heartbeats store.HeartbeatStore
	resolver   identity.Resolver
	logger     zerolog.Logger
	upgrader   websocket.Upgrader
}

// NewHandler creates a websocket handler.
func NewHandler(registry *presence.Registry, router *chat.Router, heartbeats store.HeartbeatStore, resolver identity.Resolver, logger zerolog.Logger) *Handler {
	return &Handler{
		registry:   registry,
		router:     router,
		heartbeats: heartbeats,
		resolver:   resolver,
		logger:     logger.With().Str("component", "ws").Logger(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// Same-origin staff UI plus the desktop client
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Serve handles GET /ws. A connection without a resolvable identity is
// refused outright, never held open anonymously. Browsers cannot set
// headers on websocket dials, so the session token also rides the query
// string.
func (h *Handler) Serve(w http.ResponseWriter, r *http.Request) {
	token := bearerToken(r)
	if token == "" {
		http.Error(w, "missing session token", http.StatusUnauthorized)
		return
	}

	ident, err := h.resolver.Resolve(token)
	if err != nil {
		h.logger.Warn().Err(err).Msg("connection refused: unresolvable identity")
		http.Error(w, "unresolvable identity", http.StatusUnauthorized)
		return
	}

	sock, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn().Err(err).Msg("upgrade failed")
		return
	}

	conn := newConn(ident, sock, h.logger)

	// Ack first so the client always sees identity_ack before the
	// presence broadcast that registration triggers.
	conn.Deliver(models.Event{Type: models.EventIdentityAck, Identity: &ident})
	h.registry.Register(ident, conn)
	h.touch(r.Context(), ident)

	go conn.writePump()

	h.logger.Info().Str("identity", ident.ID).Str("conn", conn.ID()).Msg("connected")
	h.readPump(conn)
}

// readPump reads client frames until the connection dies, then removes it
// from the registry. Operation errors go back on this connection only.
func (h *Handler) readPump(conn *Conn) {
	defer func() {
		h.registry.Unregister(conn)
		conn.close()
		h.logger.Info().Str("identity", conn.identity.ID).Str("conn", conn.ID()).Msg("disconnected")
	}()

	conn.sock.SetReadLimit(maxMessageSize)
	conn.sock.SetReadDeadline(time.Now().Add(pongWait))
	conn.sock.SetPongHandler(func(string) error {
		h.touch(context.Background(), conn.identity)
		return conn.sock.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var event models.Event
		if err := conn.sock.ReadJSON(&event); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.logger.Debug().Err(err).Str("conn", conn.ID()).Msg("read ended")
			}
			return
		}

		h.touch(context.Background(), conn.identity)

		switch event.Type {
		case models.EventMessageSend:
			if event.Send == nil {
				conn.Deliver(models.Event{Type: models.EventError, Error: "message_send requires a send payload"})
				continue
			}
			if _, err := h.router.Send(context.Background(), conn.identity, *event.Send); err != nil {
				conn.Deliver(models.Event{Type: models.EventError, Error: sendErrorMessage(err)})
			}
		default:
			conn.Deliver(models.Event{Type: models.EventError, Error: "unknown event type: " + event.Type})
		}
	}
}

// touch records heartbeat activity; failures are best-effort.
func (h *Handler) touch(ctx context.Context, ident models.Identity) {
	start := time.Now()
	if err := h.heartbeats.Touch(ctx, ident); err != nil {
		h.logger.Warn().Err(err).Str("identity", ident.ID).Msg("heartbeat touch failed")
		return
	}
	metrics.HeartbeatLatency.Observe(time.Since(start).Seconds())
}

// sendErrorMessage maps router errors to client-facing text without
// leaking store internals.
func sendErrorMessage(err error) string {
	var ve *chat.ValidationError
	if errors.As(err, &ve) {
		return ve.Error()
	}
	if errors.Is(err, chat.ErrRateLimited) {
		return "sending too fast, slow down"
	}
	var pe *chat.PersistenceError
	if errors.As(err, &pe) {
		return "message could not be stored, try again"
	}
	return "send failed"
}

// bearerToken extracts the session token from the Authorization header or
// the token query parameter.
func bearerToken(r *http.Request) string {
	const prefix = "Bearer "
	auth := r.Header.Get("Authorization")
	if len(auth) > len(prefix) && auth[:len(prefix)] == prefix {
		return auth[len(prefix):]
	}
	return r.URL.Query().Get("token")
}
