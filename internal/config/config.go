package config

import (
	"os"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
)

// Config holds all configuration for the application.
type Config struct {
	Port        string
	Env         string
	DatabaseURL string // Postgres; empty falls back to SQLite
	SQLitePath  string
	RedisURL    string // empty falls back to the in-process broker (single node)

	// NodeID identifies this process on the shared event channel so it can
	// ignore its own published envelopes.
	NodeID string

	// Messaging
	CacheSize int // messages kept per conversation in the broker cache

	// Presence TTLs
	OnlineTTL time.Duration
	StatusTTL time.Duration
	TypingTTL time.Duration
}

// Load reads configuration from environment variables.
// In development, it loads from .env file if present.
// In production, it panics on missing required variables.
func Load() *Config {
	// Load .env file if it exists (for development)
	_ = godotenv.Load()

	cfg := &Config{
		Port:        getEnv("PORT", "8080"),
		Env:         getEnv("ENV", "development"),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		SQLitePath:  getEnv("SQLITE_PATH", "./data/quickchatx.db"),
		RedisURL:    os.Getenv("REDIS_URL"),
		NodeID:      getEnv("NODE_ID", uuid.NewString()),
		CacheSize:   getEnvInt("MESSAGE_CACHE_SIZE", 200),
		OnlineTTL:   getEnvDuration("PRESENCE_ONLINE_TTL", 1200*time.Second),
		StatusTTL:   getEnvDuration("PRESENCE_STATUS_TTL", 300*time.Second),
		TypingTTL:   getEnvDuration("TYPING_TTL", 10*time.Second),
	}

	// In production, require database and redis URLs
	if cfg.Env == "production" {
		if cfg.DatabaseURL == "" {
			panic("DATABASE_URL is required in production")
		}
		if cfg.RedisURL == "" {
			panic("REDIS_URL is required in production")
		}
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

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil && n > 0 {
			return n
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil && d > 0 {
			return d
		}
	}
	return defaultValue
}
