package presence

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deskhub/staffchat/internal/models"
)

// fakeConn records delivered events for assertions.
type fakeConn struct {
	id string

	mu     sync.Mutex
	events []models.Event
}

func newFakeConn(id string) *fakeConn {
	return &fakeConn{id: id}
}

func (c *fakeConn) ID() string { return c.id }

func (c *fakeConn) Deliver(event models.Event) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, event)
	return true
}

func (c *fakeConn) delivered() []models.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]models.Event, len(c.events))
	copy(out, c.events)
	return out
}

func ident(id, name string) models.Identity {
	return models.Identity{ID: id, Name: name, Role: "agent"}
}

func TestOnlineIffConnected(t *testing.T) {
	r := NewRegistry()
	conn := newFakeConn("c1")

	assert.False(t, r.Online("1"))
	assert.Empty(t, r.Snapshot())

	r.Register(ident("1", "Asha"), conn)
	assert.True(t, r.Online("1"))
	require.Len(t, r.Snapshot(), 1)
	assert.Equal(t, "Asha", r.Snapshot()[0].Name)

	r.Unregister(conn)
	assert.False(t, r.Online("1"))
	assert.Empty(t, r.Snapshot())
}

func TestMultiDevicePresence(t *testing.T) {
	r := NewRegistry()
	phone := newFakeConn("phone")
	desk := newFakeConn("desk")

	r.Register(ident("1", "Asha"), phone)
	r.Register(ident("1", "Asha"), desk)

	// One identity, two connections
	assert.Len(t, r.Snapshot(), 1)
	assert.Len(t, r.Connections("1"), 2)

	// Still online after one device drops
	r.Unregister(phone)
	assert.True(t, r.Online("1"))
	assert.Len(t, r.Connections("1"), 1)

	r.Unregister(desk)
	assert.False(t, r.Online("1"))
	assert.Empty(t, r.Connections("1"))
}

func TestRegisterIsIdempotentAndRefreshesProfile(t *testing.T) {
	r := NewRegistry()
	conn := newFakeConn("c1")

	r.Register(ident("1", "Asha"), conn)
	r.Register(models.Identity{ID: "1", Name: "Asha K", Role: "lead"}, conn)

	require.Len(t, r.Connections("1"), 1)
	snap := r.Snapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, "Asha K", snap[0].Name)
	assert.Equal(t, "lead", snap[0].Role)
}

func TestUnregisterUnknownConnIsNoop(t *testing.T) {
	r := NewRegistry()
	r.Register(ident("1", "Asha"), newFakeConn("c1"))

	r.Unregister(newFakeConn("ghost"))
	assert.True(t, r.Online("1"))
}

func TestPresenceBroadcastOnChange(t *testing.T) {
	r := NewRegistry()
	asha := newFakeConn("a1")
	ravi := newFakeConn("r1")

	r.Register(ident("1", "Asha"), asha)
	r.Register(ident("2", "Ravi"), ravi)

	// Asha saw a broadcast for her own registration and one for Ravi's
	events := asha.delivered()
	require.Len(t, events, 2)
	for _, ev := range events {
		assert.Equal(t, models.EventPresenceSnapshot, ev.Type)
	}
	assert.Len(t, events[1].Online, 2)

	r.Unregister(ravi)
	events = asha.delivered()
	require.Len(t, events, 3)
	assert.Len(t, events[2].Online, 1)
	assert.Equal(t, "1", events[2].Online[0].ID)
}

func TestSnapshotDeduplicates(t *testing.T) {
	r := NewRegistry()
	for i := 0; i < 5; i++ {
		r.Register(ident("1", "Asha"), newFakeConn(fmt.Sprintf("c%d", i)))
	}
	assert.Len(t, r.Snapshot(), 1)
}
