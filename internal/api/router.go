package api

import (
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/deskhub/staffchat/internal/api/middleware"
	"github.com/deskhub/staffchat/internal/handlers"
	"github.com/deskhub/staffchat/internal/identity"
	"github.com/deskhub/staffchat/internal/presence"
	"github.com/deskhub/staffchat/internal/store"
	"github.com/deskhub/staffchat/internal/ws"
)

// Deps bundles everything the router needs.
type Deps struct {
	Logger          zerolog.Logger
	Messages        store.MessageStore
	Heartbeats      store.HeartbeatStore
	Registry        *presence.Registry
	Resolver        identity.Resolver
	WSHandler       *ws.Handler
	HeartbeatWindow time.Duration
}

// NewRouter creates and configures the HTTP router.
func NewRouter(deps Deps) *chi.Mux {
	r := chi.NewRouter()

	// Metrics middleware (first to capture all requests)
	r.Use(middleware.Metrics)

	// Security middleware
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.MaxBodySize(16 * 1024))
	r.Use(middleware.ValidateRequest)

	// Standard middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.Logger(deps.Logger))
	r.Use(chimw.Recoverer)

	// CORS - the staff UI may be served from a separate internal host
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	h := handlers.NewHandler(deps.Messages, deps.Heartbeats, deps.Registry, deps.HeartbeatWindow)
	auth := middleware.NewAuthMiddleware(deps.Resolver, deps.Heartbeats, deps.Logger)

	// Metrics endpoint (for Prometheus scraping)
	r.Handle("/metrics", promhttp.Handler())

	// Public routes (no auth required)
	r.Get("/", h.Root)
	r.Get("/health", h.Health)

	// Live connections authenticate during the handshake
	r.Get("/ws", deps.WSHandler.Serve)

	// Authenticated pull endpoints
	r.Group(func(r chi.Router) {
		r.Use(auth.RequireIdentity)

		r.Get("/presence/available", h.Available)
		r.Get("/conversations/recent", h.Recent)
		r.Get("/conversations/history", h.History)
		r.Post("/conversations/clear", h.Clear)
		r.Post("/conversations/read", h.MarkRead)
	})

	return r
}
