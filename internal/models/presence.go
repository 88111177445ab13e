package models

import "time"

// PeerStatus describes one identity in a merged availability view.
// Online comes from the live registry; LastSeen comes from the heartbeat
// store and is meaningful only when Online is false.
type PeerStatus struct {
	Identity
	Online   bool       `json:"online"`
	LastSeen *time.Time `json:"last_seen,omitempty"`
}

// PeerActivity is one entry in a viewer's recent-conversations list:
// a peer with at least one non-cleared exchanged message.
type PeerActivity struct {
	PeerID       string    `json:"peer_id"`
	LastActivity time.Time `json:"last_activity"`
}
