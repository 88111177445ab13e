package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/deskhub/staffchat/internal/api/middleware"
	"github.com/deskhub/staffchat/internal/metrics"
	"github.com/deskhub/staffchat/internal/models"
)

// HistoryResponse represents a viewer's thread with one peer.
type HistoryResponse struct {
	Peer     string           `json:"peer"`
	Ticket   *string          `json:"ticket,omitempty"`
	Messages []models.Message `json:"messages"`
}

// History handles GET /conversations/history?peer=&ticket=.
// The result is viewer-filtered: rows the viewer personally cleared are
// excluded, regardless of the other party's flag.
func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	viewer := middleware.GetIdentityFromContext(r.Context())
	if viewer == nil {
		h.Error(w, http.StatusUnauthorized, "authentication required")
		return
	}

	peer := r.URL.Query().Get("peer")
	if peer == "" {
		h.Error(w, http.StatusBadRequest, "peer is required")
		return
	}

	ticket := ticketParam(r)
	messages, err := h.messages.Conversation(r.Context(), viewer.ID, peer, ticket)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to load history")
		return
	}
	if messages == nil {
		messages = []models.Message{}
	}

	h.JSON(w, http.StatusOK, HistoryResponse{Peer: peer, Ticket: ticket, Messages: messages})
}

// RecentResponse represents the deduplicated recent-conversations list.
type RecentResponse struct {
	Conversations []models.PeerActivity `json:"conversations"`
}

// Recent handles GET /conversations/recent: peers with at least one
// non-cleared exchanged message, most recent activity first.
func (h *Handler) Recent(w http.ResponseWriter, r *http.Request) {
	viewer := middleware.GetIdentityFromContext(r.Context())
	if viewer == nil {
		h.Error(w, http.StatusUnauthorized, "authentication required")
		return
	}

	peers, err := h.messages.RecentPeers(r.Context(), viewer.ID)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to load conversations")
		return
	}
	if peers == nil {
		peers = []models.PeerActivity{}
	}

	h.JSON(w, http.StatusOK, RecentResponse{Conversations: peers})
}

// ClearRequest represents the clear request body.
type ClearRequest struct {
	Peer   string  `json:"peer"`
	Ticket *string `json:"ticket,omitempty"`
}

// Clear handles POST /conversations/clear. Clearing hides history for the
// viewer only; the peer's copy and the underlying rows are untouched.
// Idempotent.
func (h *Handler) Clear(w http.ResponseWriter, r *http.Request) {
	viewer := middleware.GetIdentityFromContext(r.Context())
	if viewer == nil {
		h.Error(w, http.StatusUnauthorized, "authentication required")
		return
	}

	var req ClearRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Peer == "" {
		h.Error(w, http.StatusBadRequest, "peer is required")
		return
	}

	if err := h.messages.Clear(r.Context(), viewer.ID, req.Peer, req.Ticket); err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to clear conversation")
		return
	}

	metrics.ConversationsCleared.Inc()
	h.JSON(w, http.StatusOK, map[string]string{"status": "cleared"})
}

// ReadRequest represents the mark-read request body.
type ReadRequest struct {
	Peer   string  `json:"peer"`
	Ticket *string `json:"ticket,omitempty"`
}

// MarkRead handles POST /conversations/read: stamps read_at on the
// viewer's unread inbound messages from the peer.
func (h *Handler) MarkRead(w http.ResponseWriter, r *http.Request) {
	viewer := middleware.GetIdentityFromContext(r.Context())
	if viewer == nil {
		h.Error(w, http.StatusUnauthorized, "authentication required")
		return
	}

	var req ReadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Peer == "" {
		h.Error(w, http.StatusBadRequest, "peer is required")
		return
	}

	if err := h.messages.MarkRead(r.Context(), viewer.ID, req.Peer, req.Ticket); err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to mark read")
		return
	}

	h.JSON(w, http.StatusOK, map[string]string{"status": "read"})
}
