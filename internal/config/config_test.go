package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("UPSTREAM_BASE_URL", "http://rag.internal:8000/")
	t.Setenv("UPSTREAM_TIMEOUT_SECONDS", "not-a-number")
	t.Setenv("CHAT_TYPING_INTERVAL_MS", "40")
	t.Setenv("OTEL_ENABLED", "true")
	t.Setenv("GO_ENV", "production")
	t.Setenv("NATS_URL", "")
	os.Unsetenv("NATS_URL")

	cfg := Load()

	assert.Equal(t, "http://rag.internal:8000", cfg.Upstream.BaseURL)
	assert.Equal(t, 60*time.Second, cfg.Upstream.Timeout)
	assert.Equal(t, 40*time.Millisecond, cfg.Chat.TypingInterval)
	assert.Equal(t, 2, cfg.Chat.CharsPerTick)
	assert.True(t, cfg.Otel.Enabled)
	assert.True(t, cfg.IsProduction())
	assert.Empty(t, cfg.App.NatsURL, "NATS relay is opt-in")
}

func TestGetEnvAsBool(t *testing.T) {
	tests := []struct {
		value    string
		fallback bool
		want     bool
	}{
		{"true", false, true},
		{"1", false, true},
		{"false", true, false},
		{"yes", true, true},
		{"", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			t.Setenv("TEST_FLAG", tt.value)
			assert.Equal(t, tt.want, getEnvAsBool("TEST_FLAG", tt.fallback))
		})
	}
}
