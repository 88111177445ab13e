package ws

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deskhub/staffchat/internal/chat"
	"github.com/deskhub/staffchat/internal/identity"
	"github.com/deskhub/staffchat/internal/models"
	"github.com/deskhub/staffchat/internal/presence"
	"github.com/deskhub/staffchat/internal/store"
)

var testSecret = []byte("ws-test-secret")

func newWSServer(t *testing.T) *httptest.Server {
	t.Helper()

	messages, err := store.NewSQLiteStore(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(messages.Close)

	registry := presence.NewRegistry()
	logger := zerolog.Nop()
	router := chat.NewRouter(messages, registry, nil, logger)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go router.Run(ctx)

	handler := NewHandler(registry, router, store.NewMemoryHeartbeat(), identity.NewTokenResolver(testSecret), logger)

	srv := httptest.NewServer(http.HandlerFunc(handler.Serve))
	t.Cleanup(srv.Close)
	return srv
}

func signToken(t *testing.T, id, name string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":  id,
		"name": name,
		"role": "agent",
		"exp":  time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString(testSecret)
	require.NoError(t, err)
	return signed
}

func dial(t *testing.T, srv *httptest.Server, token string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "?token=" + token
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

// readUntil reads frames until one of the wanted type arrives. Presence
// snapshots interleave with everything else, so tests cannot assume frame
// positions beyond the initial ack.
func readUntil(t *testing.T, conn *websocket.Conn, eventType string) models.Event {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	require.NoError(t, conn.SetReadDeadline(deadline))
	for {
		var event models.Event
		require.NoError(t, conn.ReadJSON(&event), "waiting for %s", eventType)
		if event.Type == eventType {
			return event
		}
	}
}

func TestHandshakeAckPrecedesSnapshot(t *testing.T) {
	srv := newWSServer(t)

	conn := dial(t, srv, signToken(t, "1", "Asha"))

	var first models.Event
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	require.NoError(t, conn.ReadJSON(&first))
	require.Equal(t, models.EventIdentityAck, first.Type)
	require.NotNil(t, first.Identity)
	assert.Equal(t, "1", first.Identity.ID)
	assert.Equal(t, "Asha", first.Identity.Name)

	snapshot := readUntil(t, conn, models.EventPresenceSnapshot)
	require.Len(t, snapshot.Online, 1)
	assert.Equal(t, "1", snapshot.Online[0].ID)
}

func TestUnresolvableTokenRefused(t *testing.T) {
	srv := newWSServer(t)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "?token=garbage"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestMissingTokenRefused(t *testing.T) {
	srv := newWSServer(t)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestSendDeliversOverLiveConnections(t *testing.T) {
	srv := newWSServer(t)

	ashaConn := dial(t, srv, signToken(t, "1", "Asha"))
	raviConn := dial(t, srv, signToken(t, "2", "Ravi"))

	readUntil(t, ashaConn, models.EventIdentityAck)
	readUntil(t, raviConn, models.EventIdentityAck)

	send := models.Event{
		Type: models.EventMessageSend,
		Send: &models.SendRequest{ToID: "2", Text: "hello over the wire"},
	}
	require.NoError(t, ashaConn.WriteJSON(send))

	delivered := readUntil(t, raviConn, models.EventMessageDelivered)
	require.NotNil(t, delivered.Message)
	assert.Equal(t, "1", delivered.Message.FromID)
	assert.Equal(t, "Asha", delivered.Message.FromName)
	assert.Equal(t, "hello over the wire", delivered.Message.Text)

	// The sender gets the multi-device echo
	echo := readUntil(t, ashaConn, models.EventMessageDelivered)
	require.NotNil(t, echo.Message)
	assert.Equal(t, delivered.Message.ID, echo.Message.ID)
}

func TestValidationErrorReturnedOnSendingConnection(t *testing.T) {
	srv := newWSServer(t)

	conn := dial(t, srv, signToken(t, "1", "Asha"))
	readUntil(t, conn, models.EventIdentityAck)

	send := models.Event{
		Type: models.EventMessageSend,
		Send: &models.SendRequest{ToID: "1", Text: "talking to myself"},
	}
	require.NoError(t, conn.WriteJSON(send))

	errEvent := readUntil(t, conn, models.EventError)
	assert.Contains(t, errEvent.Error, "self-addressed")
}

func TestPeerSnapshotOnConnectAndDisconnect(t *testing.T) {
	srv := newWSServer(t)

	ashaConn := dial(t, srv, signToken(t, "1", "Asha"))
	readUntil(t, ashaConn, models.EventIdentityAck)

	raviConn := dial(t, srv, signToken(t, "2", "Ravi"))
	readUntil(t, raviConn, models.EventIdentityAck)

	// Asha sees Ravi join
	for {
		snapshot := readUntil(t, ashaConn, models.EventPresenceSnapshot)
		if len(snapshot.Online) == 2 {
			break
		}
	}

	// And leave
	raviConn.Close()
	for {
		snapshot := readUntil(t, ashaConn, models.EventPresenceSnapshot)
		if len(snapshot.Online) == 1 {
			assert.Equal(t, "1", snapshot.Online[0].ID)
			break
		}
	}
}

func TestUnknownEventType(t *testing.T) {
	srv := newWSServer(t)

	conn := dial(t, srv, signToken(t, "1", "Asha"))
	readUntil(t, conn, models.EventIdentityAck)

	require.NoError(t, conn.WriteJSON(models.Event{Type: "dance"}))

	errEvent := readUntil(t, conn, models.EventError)
	assert.Contains(t, errEvent.Error, "unknown event type")
}
