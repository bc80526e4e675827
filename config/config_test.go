package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	for _, k := range []string{"PORT", "STATE_BACKEND", "SEARCH_LIMIT", "KAFKA_BROKERS", "TURN_LOCK_TTL_SECONDS", "KAFKA_ENABLED"} {
		t.Setenv(k, "")
	}

	cfg := Load()

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, StateBackendRedis, cfg.Conversation.StateBackend)
	assert.Equal(t, 5, cfg.Conversation.SearchLimit)
	assert.Equal(t, 30*time.Second, cfg.Conversation.TurnLockTTL)
	assert.Equal(t, []string{"localhost:9092"}, cfg.Kafka.Brokers)
	assert.True(t, cfg.Kafka.Enabled)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("PORT", "9000")
	t.Setenv("STATE_BACKEND", "Memory")
	t.Setenv("SEARCH_LIMIT", "8")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092,")
	t.Setenv("COMMIT_TIMEOUT_SECONDS", "3")
	t.Setenv("KAFKA_ENABLED", "false")
	t.Setenv("TELEGRAM_WEBHOOK_SECRET", "s3cret")

	cfg := Load()

	assert.Equal(t, "9000", cfg.Server.Port)
	assert.Equal(t, StateBackendMemory, cfg.Conversation.StateBackend)
	assert.Equal(t, 8, cfg.Conversation.SearchLimit)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, 3*time.Second, cfg.Conversation.CommitTimeout)
	assert.False(t, cfg.Kafka.Enabled)
	assert.Equal(t, "s3cret", cfg.Telegram.WebhookSecret)
}

func TestLoadIgnoresMalformedNumbers(t *testing.T) {
	t.Setenv("SEARCH_LIMIT", "lots")
	t.Setenv("REDIS_DB", "x")

	cfg := Load()

	assert.Equal(t, 5, cfg.Conversation.SearchLimit)
	assert.Equal(t, 0, cfg.Redis.DB)
}
