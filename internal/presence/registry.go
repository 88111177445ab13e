// Package presence tracks which identities hold live connections right
// now. The registry is in-memory by design: state is ephemeral and is
// reconciled after a restart through the heartbeat pull endpoint.
package presence

import (
	"sync"

	"github.com/deskhub/staffchat/internal/metrics"
	"github.com/deskhub/staffchat/internal/models"
)

// Conn is one live connection owned by an identity. Deliver enqueues an
// event without blocking and reports false when the connection is already
// closed; a false return is a best-effort delivery gap, not an error.
type Conn interface {
	ID() string
	Deliver(event models.Event) bool
}

// Registry maps each identity to its set of live connections. An identity
// is online iff its set is non-empty. Safe for concurrent use; all methods
// are pure in-memory and never block.
type Registry struct {
	mu     sync.RWMutex
	conns  map[string]map[Conn]struct{} // identity id -> connection set
	idents map[string]models.Identity   // latest name/role per online identity
	owners map[string]string            // connection id -> identity id
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		conns:  make(map[string]map[Conn]struct{}),
		idents: make(map[string]models.Identity),
		owners: make(map[string]string),
	}
}

// Register adds the connection to the identity's set, creating the entry
// if absent, and always refreshes the stored display name and role.
// Idempotent for an already-registered connection. Triggers a presence
// broadcast to every live connection.
func (r *Registry) Register(identity models.Identity, conn Conn) {
	r.mu.Lock()
	set, ok := r.conns[identity.ID]
	if !ok {
		set = make(map[Conn]struct{})
		r.conns[identity.ID] = set
	}
	set[conn] = struct{}{}
	r.idents[identity.ID] = identity
	r.owners[conn.ID()] = identity.ID
	r.mu.Unlock()

	r.updateGauges()
	r.broadcastSnapshot()
}

// Unregister removes the connection from its owning identity. When the
// identity's set becomes empty the identity entry is removed entirely.
// Triggers a presence broadcast.
func (r *Registry) Unregister(conn Conn) {
	r.mu.Lock()
	ownerID, ok := r.owners[conn.ID()]
	if !ok {
		r.mu.Unlock()
		return
	}
	delete(r.owners, conn.ID())

	if set, ok := r.conns[ownerID]; ok {
		delete(set, conn)
		if len(set) == 0 {
			delete(r.conns, ownerID)
			delete(r.idents, ownerID)
		}
	}
	r.mu.Unlock()

	r.updateGauges()
	r.broadcastSnapshot()
}

// Snapshot returns the deduplicated list of online identities. Order is
// unspecified.
func (r *Registry) Snapshot() []models.Identity {
	r.mu.RLock()
	defer r.mu.RUnlock()

	online := make([]models.Identity, 0, len(r.idents))
	for _, identity := range r.idents {
		online = append(online, identity)
	}
	return online
}

// Connections returns the live connection set for an identity, or an
// empty slice when the identity is offline.
func (r *Registry) Connections(identityID string) []Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()

	set := r.conns[identityID]
	conns := make([]Conn, 0, len(set))
	for conn := range set {
		conns = append(conns, conn)
	}
	return conns
}

// Online reports whether an identity holds at least one live connection.
func (r *Registry) Online(identityID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns[identityID]) > 0
}

// broadcastSnapshot delivers the current online list to every connection.
func (r *Registry) broadcastSnapshot() {
	online := r.Snapshot()
	event := models.Event{Type: models.EventPresenceSnapshot, Online: online}

	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, set := range r.conns {
		for conn := range set {
			conn.Deliver(event)
		}
	}
}

func (r *Registry) updateGauges() {
	r.mu.RLock()
	defer r.mu.RUnlock()
	metrics.ConnectionsOpen.Set(float64(len(r.owners)))
	metrics.IdentitiesOnline.Set(float64(len(r.conns)))
}
