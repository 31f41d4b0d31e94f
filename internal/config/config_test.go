package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "development", cfg.Env)
	assert.True(t, cfg.IsDevelopment())
	assert.NotEmpty(t, cfg.NodeID, "every process gets a node id")
	assert.Equal(t, 200, cfg.CacheSize)
	assert.Equal(t, 1200*time.Second, cfg.OnlineTTL)
	assert.Equal(t, 300*time.Second, cfg.StatusTTL)
	assert.Equal(t, 10*time.Second, cfg.TypingTTL)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9999")
	t.Setenv("NODE_ID", "node-7")
	t.Setenv("MESSAGE_CACHE_SIZE", "50")
	t.Setenv("TYPING_TTL", "5s")

	cfg := Load()
	assert.Equal(t, "9999", cfg.Port)
	assert.Equal(t, "node-7", cfg.NodeID)
	assert.Equal(t, 50, cfg.CacheSize)
	assert.Equal(t, 5*time.Second, cfg.TypingTTL)
}

func TestLoadIgnoresInvalidOverrides(t *testing.T) {
	t.Setenv("MESSAGE_CACHE_SIZE", "-3")
	t.Setenv("TYPING_TTL", "soon")

	cfg := Load()
	assert.Equal(t, 200, cfg.CacheSize)
	assert.Equal(t, 10*time.Second, cfg.TypingTTL)
}

func TestProductionRequiresInfrastructure(t *testing.T) {
	t.Setenv("ENV", "production")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("REDIS_URL", "")

	assert.Panics(t, func() { Load() })

	t.Setenv("DATABASE_URL", "postgres://localhost/quickchatx")
	assert.Panics(t, func() { Load() }, "redis is still missing")

	t.Setenv("REDIS_URL", "redis://localhost:6379")
	assert.NotPanics(t, func() { Load() })
}
