package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/deskhub/staffchat/internal/presence"
	"github.com/deskhub/staffchat/internal/store"
)

// Handler contains shared dependencies for all HTTP handlers.
type Handler struct {
	messages   store.MessageStore
	heartbeats store.HeartbeatStore
	registry   *presence.Registry
	window     time.Duration
}

// NewHandler creates a new Handler with the given stores.
func NewHandler(messages store.MessageStore, heartbeats store.HeartbeatStore, registry *presence.Registry, window time.Duration) *Handler {
	return &Handler{
		messages:   messages,
		heartbeats: heartbeats,
		registry:   registry,
		window:     window,
	}
}

// JSON sends a JSON response with the given status code.
func (h *Handler) JSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// Error sends a JSON error response with the given status code.
func (h *Handler) Error(w http.ResponseWriter, status int, message string) {
	h.JSON(w, status, map[string]string{"error": message})
}

// ticketParam reads the optional ticket filter from the query string.
func ticketParam(r *http.Request) *string {
	ticket := r.URL.Query().Get("ticket")
	if ticket == "" {
		return nil
	}
	return &ticket
}
