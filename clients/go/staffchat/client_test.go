package staffchat

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deskhub/staffchat/internal/models"
)

// fakeServer speaks just enough of the server protocol to drive the
// client session: it acks a fixed identity on /ws and serves canned
// history on the pull endpoint. Connections can be dropped on demand.
type fakeServer struct {
	upgrader websocket.Upgrader

	mu      sync.Mutex
	conns   []*websocket.Conn
	dials   int
	history []models.Message
}

func newFakeServer() *fakeServer {
	return &fakeServer{}
}

func (s *fakeServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case "/ws":
		conn, err := s.upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}

		s.mu.Lock()
		s.dials++
		s.conns = append(s.conns, conn)
		s.mu.Unlock()

		conn.WriteJSON(models.Event{
			Type:     models.EventIdentityAck,
			Identity: &models.Identity{ID: "1", Name: "Asha"},
		})

		go func() {
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()
	case "/conversations/history":
		s.mu.Lock()
		history := append([]models.Message(nil), s.history...)
		s.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{"messages": history})
	default:
		http.NotFound(w, r)
	}
}

func (s *fakeServer) dropAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, conn := range s.conns {
		conn.Close()
	}
	s.conns = nil
}

func (s *fakeServer) dialCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dials
}

func newTestClient(t *testing.T, fs *fakeServer) (*Client, func() []SessionState) {
	t.Helper()

	srv := httptest.NewServer(fs)
	t.Cleanup(srv.Close)

	client := NewClient(srv.URL, "session-token")

	var mu sync.Mutex
	var states []SessionState
	client.OnStateChange = func(s SessionState) {
		mu.Lock()
		states = append(states, s)
		mu.Unlock()
	}

	t.Cleanup(func() { client.Close() })

	return client, func() []SessionState {
		mu.Lock()
		defer mu.Unlock()
		return append([]SessionState(nil), states...)
	}
}

func TestSessionLifecycleAcrossReconnect(t *testing.T) {
	fs := newFakeServer()
	fs.history = []models.Message{
		{ID: 7, FromID: "2", ToID: "1", Text: "from history"},
	}

	client, states := newTestClient(t, fs)

	require.NoError(t, client.Connect(context.Background()))
	assert.Equal(t, StateConnected, client.State())
	assert.Equal(t, "1", client.Identity().ID)

	// Seed the view with a live-looking thread, then lose the connection
	client.View().ActivateThread("2")
	client.View().Append(models.DeliveredMessage{FromID: "2", ToID: "1", Text: "stale"})

	fs.dropAll()

	require.Eventually(t, func() bool {
		return fs.dialCount() >= 2 && client.State() == StateConnected
	}, 10*time.Second, 50*time.Millisecond, "client should reconnect on its own")

	assert.Equal(t, []SessionState{
		StateResolving,
		StateConnected,
		StateDisconnected,
		StateReconnecting,
		StateConnected,
	}, states())

	// There is no replay across a disconnect, so the active thread must
	// have been replaced with server history, not kept from the cache
	require.Eventually(t, func() bool {
		thread := client.View().Thread("2")
		return len(thread) == 1 && thread[0].Text == "from history"
	}, 5*time.Second, 50*time.Millisecond)
}

func TestCloseStopsReconnect(t *testing.T) {
	fs := newFakeServer()
	client, _ := newTestClient(t, fs)

	require.NoError(t, client.Connect(context.Background()))
	require.Equal(t, 1, fs.dialCount())

	fs.dropAll()

	// Close lands inside the reconnect backoff window
	require.Eventually(t, func() bool {
		return client.State() == StateReconnecting
	}, 5*time.Second, 10*time.Millisecond)
	require.NoError(t, client.Close())

	// The session must stay down: no new dial, no resurrected state
	time.Sleep(reconnectBackoff + 500*time.Millisecond)
	assert.Equal(t, 1, fs.dialCount())
	assert.Equal(t, StateIdle, client.State())
}

func TestConnectRefusedOnBadHandshake(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"unresolvable identity"}`, http.StatusUnauthorized)
	}))
	t.Cleanup(srv.Close)

	client := NewClient(srv.URL, "bad-token")
	err := client.Connect(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "identity refused")
	assert.Equal(t, StateIdle, client.State())
}
