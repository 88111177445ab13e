package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deskhub/staffchat/internal/models"
)

func TestMemoryHeartbeatActiveSince(t *testing.T) {
	hb := NewMemoryHeartbeat()
	ctx := context.Background()

	require.NoError(t, hb.Touch(ctx, models.Identity{ID: "1", Name: "Asha"}))
	require.NoError(t, hb.Touch(ctx, models.Identity{ID: "2", Name: "Ravi"}))

	statuses, err := hb.ActiveSince(ctx, time.Minute)
	require.NoError(t, err)
	assert.Len(t, statuses, 2)
	for _, s := range statuses {
		assert.NotNil(t, s.LastSeen)
		assert.False(t, s.Online, "heartbeat data never claims live online status")
	}

	// A zero window excludes everything already in the past
	statuses, err = hb.ActiveSince(ctx, -time.Second)
	require.NoError(t, err)
	assert.Empty(t, statuses)
}

func TestMemoryHeartbeatTouchRefreshesProfile(t *testing.T) {
	hb := NewMemoryHeartbeat()
	ctx := context.Background()

	require.NoError(t, hb.Touch(ctx, models.Identity{ID: "1", Name: "Asha"}))
	require.NoError(t, hb.Touch(ctx, models.Identity{ID: "1", Name: "Asha K"}))

	statuses, err := hb.ActiveSince(ctx, time.Minute)
	require.NoError(t, err)
	require.Len(t, statuses, 1)
	assert.Equal(t, "Asha K", statuses[0].Name)
}
