package chat

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deskhub/staffchat/internal/models"
)

func seen(t time.Time) *time.Time { return &t }

func TestMergeAvailabilityPushWins(t *testing.T) {
	stale := time.Now().Add(-10 * time.Minute)

	live := []models.Identity{{ID: "1", Name: "Asha"}}
	pulled := []models.PeerStatus{
		{Identity: models.Identity{ID: "1", Name: "Asha"}, LastSeen: seen(stale)},
		{Identity: models.Identity{ID: "2", Name: "Ravi"}, LastSeen: seen(stale)},
	}

	merged := MergeAvailability(live, pulled)
	require.Len(t, merged, 2)

	// Online first, then by LastSeen
	assert.Equal(t, "1", merged[0].ID)
	assert.True(t, merged[0].Online)
	assert.Nil(t, merged[0].LastSeen, "an online identity carries no stale last-seen")

	assert.Equal(t, "2", merged[1].ID)
	assert.False(t, merged[1].Online)
	require.NotNil(t, merged[1].LastSeen)
}

func TestMergeAvailabilityDeduplicates(t *testing.T) {
	live := []models.Identity{
		{ID: "1", Name: "Asha"},
		{ID: "1", Name: "Asha"},
	}
	pulled := []models.PeerStatus{
		{Identity: models.Identity{ID: "1", Name: "Asha"}},
	}

	merged := MergeAvailability(live, pulled)
	require.Len(t, merged, 1)
	assert.True(t, merged[0].Online)
}

func TestMergeAvailabilityPullOnly(t *testing.T) {
	older := time.Now().Add(-5 * time.Minute)
	newer := time.Now().Add(-1 * time.Minute)

	pulled := []models.PeerStatus{
		{Identity: models.Identity{ID: "3", Name: "Mina"}, LastSeen: seen(older)},
		{Identity: models.Identity{ID: "2", Name: "Ravi"}, LastSeen: seen(newer)},
	}

	merged := MergeAvailability(nil, pulled)
	require.Len(t, merged, 2)
	assert.Equal(t, "2", merged[0].ID, "most recently seen sorts first")
	assert.Equal(t, "3", merged[1].ID)
	assert.False(t, merged[0].Online)
	assert.False(t, merged[1].Online)
}

func TestMergeAvailabilityEmpty(t *testing.T) {
	assert.Empty(t, MergeAvailability(nil, nil))
}

func TestMergeAvailabilityTiesBreakByID(t *testing.T) {
	ts := time.Now().Truncate(time.Second)
	pulled := []models.PeerStatus{
		{Identity: models.Identity{ID: "9"}, LastSeen: seen(ts)},
		{Identity: models.Identity{ID: "4"}, LastSeen: seen(ts)},
	}

	merged := MergeAvailability(nil, pulled)
	require.Len(t, merged, 2)
	assert.Equal(t, "4", merged[0].ID)
	assert.Equal(t, "9", merged[1].ID)
}
