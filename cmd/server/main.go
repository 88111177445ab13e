package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/deskhub/staffchat/internal/api"
	"github.com/deskhub/staffchat/internal/chat"
	"github.com/deskhub/staffchat/internal/config"
	"github.com/deskhub/staffchat/internal/identity"
	"github.com/deskhub/staffchat/internal/presence"
	"github.com/deskhub/staffchat/internal/store"
	"github.com/deskhub/staffchat/internal/ws"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Initialize logger
	var logger zerolog.Logger
	if cfg.IsDevelopment() {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).
			With().
			Timestamp().
			Logger()
	} else {
		logger = zerolog.New(os.Stdout).
			With().
			Timestamp().
			Logger()
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize the message store: PostgreSQL when configured, SQLite
	// otherwise
	var messages store.MessageStore
	if cfg.DatabaseURL != "" {
		pgStore, err := store.NewPostgresStore(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("postgres connection failed")
		}
		messages = pgStore
		logger.Info().Msg("connected to PostgreSQL")
	} else {
		sqliteStore, err := store.NewSQLiteStore(ctx, cfg.SQLitePath)
		if err != nil {
			logger.Fatal().Err(err).Msg("sqlite open failed")
		}
		messages = sqliteStore
		logger.Info().Str("path", cfg.SQLitePath).Msg("using SQLite message store")
	}
	defer messages.Close()

	// Initialize the heartbeat store: redis when configured, in-memory
	// otherwise
	var heartbeats store.HeartbeatStore
	var limiter chat.RateLimiter
	if cfg.RedisURL != "" {
		redisStore, err := store.NewRedisStore(ctx, cfg.RedisURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("redis connection failed")
		}
		defer redisStore.Close()
		heartbeats = redisStore
		limiter = redisStore
		logger.Info().Msg("connected to Redis")
	} else {
		heartbeats = store.NewMemoryHeartbeat()
		logger.Info().Msg("using in-memory heartbeat store")
	}

	// Presence registry and message router
	registry := presence.NewRegistry()
	router := chat.NewRouter(messages, registry, limiter, logger)
	go router.Run(ctx)

	// Identity resolution is delegated to tokens issued by the session
	// service
	resolver := identity.NewTokenResolver([]byte(cfg.AuthSecret))

	wsHandler := ws.NewHandler(registry, router, heartbeats, resolver, logger)

	mux := api.NewRouter(api.Deps{
		Logger:          logger,
		Messages:        messages,
		Heartbeats:      heartbeats,
		Registry:        registry,
		Resolver:        resolver,
		WSHandler:       wsHandler,
		HeartbeatWindow: cfg.HeartbeatWindow,
	})

	srv := &http.Server{
		Addr:        ":" + cfg.Port,
		Handler:     mux,
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.Info().
			Str("port", cfg.Port).
			Str("env", cfg.Env).
			Msg("starting staffchat server")

		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server failed to start")
		}
	}()

	// Wait for interrupt signal
	<-ctx.Done()

	logger.Info().Msg("shutting down server...")

	// Graceful shutdown with 30 second timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Fatal().Err(err).Msg("server forced to shutdown")
	}

	logger.Info().Msg("server stopped")
}
