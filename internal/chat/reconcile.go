package chat

import (
	"sort"

	"github.com/samber/lo"

	"github.com/deskhub/staffchat/internal/models"
)

// MergeAvailability merges the two availability signals into one
// deduplicated view. Merge key is the identity id. The live registry wins
// for "online now"; the heartbeat pull supplies "last seen" for everyone
// not currently online. An identity online in the registry never carries a
// stale LastSeen annotation.
func MergeAvailability(live []models.Identity, pulled []models.PeerStatus) []models.PeerStatus {
	merged := lo.SliceToMap(pulled, func(p models.PeerStatus) (string, models.PeerStatus) {
		p.Online = false
		return p.ID, p
	})

	for _, identity := range live {
		merged[identity.ID] = models.PeerStatus{Identity: identity, Online: true}
	}

	out := lo.Values(merged)
	sort.Slice(out, func(i, j int) bool {
		if out[i].Online != out[j].Online {
			return out[i].Online
		}
		if out[i].LastSeen != nil && out[j].LastSeen != nil && !out[i].LastSeen.Equal(*out[j].LastSeen) {
			return out[i].LastSeen.After(*out[j].LastSeen)
		}
		return out[i].ID < out[j].ID
	})
	return out
}
