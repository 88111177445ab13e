package config

import (
	"os"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application.
type Config struct {
	Port string
	Env  string

	// DatabaseURL selects the PostgreSQL message store. When empty the
	// service falls back to SQLite at SQLitePath.
	DatabaseURL string
	SQLitePath  string

	// RedisURL selects the redis heartbeat store. When empty heartbeats
	// are tracked in process memory.
	RedisURL string

	// AuthSecret is the HMAC key shared with the session service that
	// issues staff tokens.
	AuthSecret string

	// HeartbeatWindow is the trailing window inside which an identity is
	// considered reachable even without a live connection.
	HeartbeatWindow time.Duration
}

// Load reads configuration from environment variables.
// In development, it loads from .env file if present.
func Load() *Config {
	// Load .env file if it exists (for development)
	_ = godotenv.Load()

	cfg := &Config{
		Port:            getEnv("PORT", "8080"),
		Env:             getEnv("ENV", "development"),
		DatabaseURL:     os.Getenv("DATABASE_URL"),
		SQLitePath:      getEnv("SQLITE_PATH", "./data/staffchat.db"),
		RedisURL:        os.Getenv("REDIS_URL"),
		AuthSecret:      os.Getenv("AUTH_SECRET"),
		HeartbeatWindow: getDuration("HEARTBEAT_WINDOW", 90*time.Second),
	}

	// In production, a real token secret is mandatory
	if cfg.Env == "production" && cfg.AuthSecret == "" {
		panic("AUTH_SECRET is required in production")
	}

	return cfg
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return defaultValue
	}
	return d
}
