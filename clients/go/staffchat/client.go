// Package staffchat provides a Go client for the staffchat direct
// messaging service: a live websocket session with reconnect handling,
// the per-thread view cache, and the pull endpoints.
package staffchat

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/deskhub/staffchat/internal/chat"
	"github.com/deskhub/staffchat/internal/models"
)

// PollInterval is the fixed cadence for availability pulls.
const PollInterval = 30 * time.Second

// reconnectBackoff is the delay before a reconnect attempt.
const reconnectBackoff = 2 * time.Second

// SessionState is the client's connection lifecycle state.
type SessionState int

const (
	StateIdle SessionState = iota
	StateResolving
	StateConnected
	StateDisconnected
	StateReconnecting
)

// String returns the state name.
func (s SessionState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateResolving:
		return "resolving"
	case StateConnected:
		return "connected"
	case StateDisconnected:
		return "disconnected"
	case StateReconnecting:
		return "reconnecting"
	default:
		return "unknown"
	}
}

// Client is a staffchat API and websocket client.
type Client struct {
	BaseURL    string
	Token      string
	HTTPClient *http.Client

	// OnEvent receives every server event after internal bookkeeping.
	OnEvent func(models.Event)
	// OnStateChange observes session lifecycle transitions.
	OnStateChange func(SessionState)

	instanceID string
	mu         sync.Mutex
	state      SessionState
	identity   models.Identity
	conn       *websocket.Conn
	view       *ThreadView
	liveOnline []models.Identity
	done       chan struct{} // closed by Close; stops the reconnect loop
}

// NewClient creates a client for the given base URL and session token.
func NewClient(baseURL, token string) *Client {
	return &Client{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		Token:      token,
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
		instanceID: uuid.NewString(),
		state:      StateIdle,
	}
}

// State returns the current session state.
func (c *Client) State() SessionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Identity returns the resolved identity. Valid once connected.
func (c *Client) Identity() models.Identity {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.identity
}

// View returns the thread view cache. Valid once connected.
func (c *Client) View() *ThreadView {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.view
}

func (c *Client) setState(s SessionState) {
	c.mu.Lock()
	c.state = s
	cb := c.OnStateChange
	c.mu.Unlock()
	if cb != nil {
		cb(s)
	}
}

// Connect resolves the identity over a fresh websocket and starts the
// read loop. It returns after the identity_ack is received.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	c.done = make(chan struct{})
	c.mu.Unlock()

	c.setState(StateResolving)

	if err := c.dial(ctx); err != nil {
		c.setState(StateIdle)
		return err
	}

	c.setState(StateConnected)
	go c.readLoop(ctx)
	return nil
}

// dial opens the socket and waits for identity_ack.
func (c *Client) dial(ctx context.Context) error {
	wsURL, err := url.Parse(c.BaseURL + "/ws")
	if err != nil {
		return err
	}
	switch wsURL.Scheme {
	case "https":
		wsURL.Scheme = "wss"
	default:
		wsURL.Scheme = "ws"
	}
	q := wsURL.Query()
	q.Set("token", c.Token)
	q.Set("instance", c.instanceID)
	wsURL.RawQuery = q.Encode()

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, wsURL.String(), nil)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusUnauthorized {
			return fmt.Errorf("identity refused: %w", err)
		}
		return err
	}

	// The server acks the resolved identity before anything else
	var ack models.Event
	conn.SetReadDeadline(time.Now().Add(10 * time.Second))
	if err := conn.ReadJSON(&ack); err != nil {
		conn.Close()
		return err
	}
	conn.SetReadDeadline(time.Time{})
	if ack.Type != models.EventIdentityAck || ack.Identity == nil {
		conn.Close()
		return fmt.Errorf("expected identity_ack, got %q", ack.Type)
	}

	c.mu.Lock()
	c.conn = conn
	c.identity = *ack.Identity
	if c.view == nil || c.view.selfID != ack.Identity.ID {
		c.view = NewThreadView(ack.Identity.ID)
	}
	c.mu.Unlock()
	return nil
}

// readLoop consumes server events until the socket dies, then reconnects.
func (c *Client) readLoop(ctx context.Context) {
	for {
		c.mu.Lock()
		conn := c.conn
		c.mu.Unlock()
		if conn == nil {
			return
		}

		var event models.Event
		if err := conn.ReadJSON(&event); err != nil {
			c.setState(StateDisconnected)
			if ctx.Err() != nil {
				return
			}
			c.reconnect(ctx)
			return
		}

		c.handleEvent(event)
	}
}

func (c *Client) handleEvent(event models.Event) {
	switch event.Type {
	case models.EventPresenceSnapshot:
		c.mu.Lock()
		c.liveOnline = event.Online
		c.mu.Unlock()
	case models.EventMessageDelivered:
		if event.Message != nil {
			if view := c.View(); view != nil {
				view.Append(*event.Message)
			}
		}
	}

	c.mu.Lock()
	cb := c.OnEvent
	c.mu.Unlock()
	if cb != nil {
		cb(event)
	}
}

// reconnect re-dials with the same identity. There is no replay buffer
// across a disconnect, so after reconnecting the active thread's history
// is re-fetched from the server.
func (c *Client) reconnect(ctx context.Context) {
	c.mu.Lock()
	done := c.done
	c.mu.Unlock()
	if done == nil {
		return
	}

	c.setState(StateReconnecting)

	for {
		select {
		case <-ctx.Done():
			c.setState(StateIdle)
			return
		case <-done:
			c.setState(StateIdle)
			return
		case <-time.After(reconnectBackoff):
		}

		if err := c.dial(ctx); err != nil {
			continue
		}

		// Close may have raced the dial; do not resurrect the session
		select {
		case <-done:
			c.mu.Lock()
			conn := c.conn
			c.conn = nil
			c.mu.Unlock()
			if conn != nil {
				conn.Close()
			}
			c.setState(StateIdle)
			return
		default:
		}
		break
	}

	c.setState(StateConnected)

	if view := c.View(); view != nil {
		if active := view.ActiveThread(); active != "" {
			if history, err := c.History(ctx, active, nil); err == nil {
				view.ReplaceThread(active, history)
			}
		}
	}

	go c.readLoop(ctx)
}

// Close tears down the live connection and stops any reconnect attempt
// in flight. Connect may be called again afterwards.
func (c *Client) Close() error {
	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	if c.done != nil {
		close(c.done)
		c.done = nil
	}
	c.mu.Unlock()

	c.setState(StateIdle)
	if conn != nil {
		return conn.Close()
	}
	return nil
}

// SendMessage sends a direct message over the live connection.
func (c *Client) SendMessage(to, text string, ticketID *string) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return fmt.Errorf("not connected")
	}

	return conn.WriteJSON(models.Event{
		Type: models.EventMessageSend,
		Send: &models.SendRequest{ToID: to, Text: text, TicketID: ticketID},
	})
}

// Availability returns the merged availability view: live presence wins
// for "online now", the heartbeat pull supplies "last seen" for everyone
// else. Intended to be called every PollInterval.
func (c *Client) Availability(ctx context.Context) ([]models.PeerStatus, error) {
	var resp struct {
		Identities []models.PeerStatus `json:"identities"`
	}
	if err := c.get(ctx, "/presence/available", &resp); err != nil {
		return nil, err
	}

	c.mu.Lock()
	live := append([]models.Identity(nil), c.liveOnline...)
	c.mu.Unlock()

	return chat.MergeAvailability(live, resp.Identities), nil
}

// RecentConversations returns the deduplicated recent-peers list.
func (c *Client) RecentConversations(ctx context.Context) ([]models.PeerActivity, error) {
	var resp struct {
		Conversations []models.PeerActivity `json:"conversations"`
	}
	if err := c.get(ctx, "/conversations/recent", &resp); err != nil {
		return nil, err
	}
	return resp.Conversations, nil
}

// History fetches the viewer-filtered thread with a peer.
func (c *Client) History(ctx context.Context, peer string, ticketID *string) ([]models.DeliveredMessage, error) {
	path := "/conversations/history?peer=" + url.QueryEscape(peer)
	if ticketID != nil {
		path += "&ticket=" + url.QueryEscape(*ticketID)
	}

	var resp struct {
		Messages []models.Message `json:"messages"`
	}
	if err := c.get(ctx, path, &resp); err != nil {
		return nil, err
	}

	out := make([]models.DeliveredMessage, 0, len(resp.Messages))
	for _, m := range resp.Messages {
		out = append(out, models.DeliveredMessage{
			ID:        m.ID,
			FromID:    m.FromID,
			ToID:      m.ToID,
			Text:      m.Text,
			TicketID:  m.TicketID,
			CreatedAt: m.CreatedAt,
		})
	}
	return out, nil
}

// Clear hides the thread with a peer for this viewer only.
func (c *Client) Clear(ctx context.Context, peer string, ticketID *string) error {
	err := c.post(ctx, "/conversations/clear", map[string]interface{}{
		"peer":   peer,
		"ticket": ticketID,
	})
	if err != nil {
		return err
	}
	if view := c.View(); view != nil {
		view.DropThread(peer)
	}
	return nil
}

// MarkRead stamps the unread inbound messages from a peer as read.
func (c *Client) MarkRead(ctx context.Context, peer string, ticketID *string) error {
	return c.post(ctx, "/conversations/read", map[string]interface{}{
		"peer":   peer,
		"ticket": ticketID,
	})
}

func (c *Client) get(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+path, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *Client) post(ctx context.Context, path string, body interface{}) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, strings.NewReader(string(data)))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, nil)
}

func (c *Client) do(req *http.Request, out interface{}) error {
	req.Header.Set("Authorization", "Bearer "+c.Token)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var apiErr struct {
			Error string `json:"error"`
		}
		data, _ := io.ReadAll(resp.Body)
		if json.Unmarshal(data, &apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("%s: %s", resp.Status, apiErr.Error)
		}
		return fmt.Errorf("request failed: %s", resp.Status)
	}

	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
