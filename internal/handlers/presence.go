package handlers

import (
	"net/http"

	"github.com/deskhub/staffchat/internal/models"
)

// AvailableResponse represents the heartbeat-derived availability snapshot.
type AvailableResponse struct {
	Identities []models.PeerStatus `json:"identities"`
	WindowMS   int64               `json:"window_ms"`
}

// Available handles GET /presence/available. The snapshot is derived from
// heartbeats alone so it survives registry resets and silent connection
// drops; clients merge it with live presence_snapshot broadcasts, where
// the live signal wins for "online now".
func (h *Handler) Available(w http.ResponseWriter, r *http.Request) {
	statuses, err := h.heartbeats.ActiveSince(r.Context(), h.window)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to read heartbeats")
		return
	}

	if statuses == nil {
		statuses = []models.PeerStatus{}
	}

	h.JSON(w, http.StatusOK, AvailableResponse{
		Identities: statuses,
		WindowMS:   h.window.Milliseconds(),
	})
}
