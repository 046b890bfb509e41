package config

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "exam-runner", cfg.Name)
	assert.Equal(t, "https://edux.site/api", cfg.Backend.BaseURL)
	assert.Equal(t, 10*time.Second, cfg.Backend.ReadTimeout)
	assert.Equal(t, time.Second, cfg.Session.TickInterval)
	assert.Equal(t, 10, cfg.Session.NavigatorPageSize)
	assert.Equal(t, "omit", cfg.Session.EmptyAnswers)
	assert.Equal(t, "attempt_nonce", cfg.Session.NonceField)
	assert.False(t, cfg.Redis.Enabled())
	assert.False(t, cfg.Postgres.Enabled())
	assert.Equal(t, []string{"Content-Type", "Authorization"}, cfg.CORS.AllowedHeaders)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	t.Setenv("BACKEND_BASE_URL", "https://exams.example.com/api")
	t.Setenv("SUBMIT_EMPTY_ANSWERS", "placeholder")
	t.Setenv("REDIS_ADDR", "localhost:6379")
	t.Setenv("PG_HOST", "db")
	t.Setenv("PG_USER", "runner")
	t.Setenv("PG_DATABASE", "receipts")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example.com,https://b.example.com")

	cfg, err := Load(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "production", cfg.Env)
	assert.Equal(t, "placeholder", cfg.Session.EmptyAnswers)
	assert.True(t, cfg.Redis.Enabled())
	assert.True(t, cfg.Postgres.Enabled())
	assert.Contains(t, cfg.Postgres.ConnString(), "dbname=receipts")
	assert.Len(t, cfg.CORS.AllowedOrigins, 2)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	cases := map[string][2]string{
		"bad encoding":      {"SUBMIT_EMPTY_ANSWERS", "blank"},
		"bad base url":      {"BACKEND_BASE_URL", "not a url"},
		"zero page size":    {"NAVIGATOR_PAGE_SIZE", "0"},
		"bad log level":     {"LOG_LEVEL", "loud"},
		"unparseable tick":  {"SESSION_TICK_INTERVAL", "soon"},
		"pg without user":   {"PG_HOST", "db"},
		"bad redis address": {"REDIS_ADDR", "localhost"},
	}
	for name, kv := range cases {
		t.Run(name, func(t *testing.T) {
			t.Setenv(kv[0], kv[1])
			_, err := Load(context.Background())
			assert.Error(t, err)
		})
	}
}
