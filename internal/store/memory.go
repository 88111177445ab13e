package store

import (
	"context"
	"sync"
	"time"

	"github.com/deskhub/staffchat/internal/models"
)

// MemoryHeartbeat is the in-process HeartbeatStore used when no REDIS_URL
// is configured. State is lost on restart, which is acceptable for a
// single-instance development deployment.
type MemoryHeartbeat struct {
	mu      sync.RWMutex
	entries map[string]heartbeatEntry
}

type heartbeatEntry struct {
	identity models.Identity
	lastSeen time.Time
}

// NewMemoryHeartbeat creates an in-memory heartbeat store.
func NewMemoryHeartbeat() *MemoryHeartbeat {
	return &MemoryHeartbeat{entries: make(map[string]heartbeatEntry)}
}

// Touch records activity for an identity.
func (m *MemoryHeartbeat) Touch(ctx context.Context, identity models.Identity) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[identity.ID] = heartbeatEntry{identity: identity, lastSeen: time.Now().UTC()}
	return nil
}

// ActiveSince lists identities with a heartbeat inside the trailing window.
func (m *MemoryHeartbeat) ActiveSince(ctx context.Context, window time.Duration) ([]models.PeerStatus, error) {
	cutoff := time.Now().UTC().Add(-window)

	m.mu.RLock()
	defer m.mu.RUnlock()

	statuses := make([]models.PeerStatus, 0, len(m.entries))
	for _, entry := range m.entries {
		if entry.lastSeen.Before(cutoff) {
			continue
		}
		lastSeen := entry.lastSeen
		statuses = append(statuses, models.PeerStatus{
			Identity: entry.identity,
			LastSeen: &lastSeen,
		})
	}

	return statuses, nil
}

// Ping always succeeds for the in-memory store.
func (m *MemoryHeartbeat) Ping(ctx context.Context) error {
	return nil
}

// Close is a no-op for the in-memory store.
func (m *MemoryHeartbeat) Close() error {
	return nil
}
