package app

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("EVENT_STORE", "")
	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, StoreMemory, cfg.EventStore)
	assert.Equal(t, ":8080", cfg.AppAddr)
	assert.Equal(t, 10*time.Second, cfg.LockTTL)
	assert.Equal(t, 24*time.Hour, cfg.ProjectionCacheTTL)
	assert.Equal(t, "allow", cfg.NegativeQuantityPolicy)
	assert.Equal(t, 120, cfg.EventsRateLimit)
	assert.Equal(t, "0 3 * * *", cfg.VerifyCron)
	assert.False(t, cfg.RedisEnabled())
	assert.False(t, cfg.IsProduction())
}

func TestLoadConfigFromEnv(t *testing.T) {
	t.Setenv("EVENT_STORE", "SQLite")
	t.Setenv("SQLITE_PATH", "/tmp/events.db")
	t.Setenv("REDIS_ADDR", "127.0.0.1:6380")
	t.Setenv("KNOWN_UNITS", "kg,each,hour")
	t.Setenv("NEGATIVE_QUANTITY_POLICY", "reject")
	t.Setenv("LOCK_TTL", "3s")
	t.Setenv("APP_ENV", "production")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, StoreSQLite, cfg.EventStore)
	assert.Equal(t, "/tmp/events.db", cfg.SQLitePath)
	assert.Equal(t, []string{"kg", "each", "hour"}, cfg.KnownUnits)
	assert.Equal(t, 3*time.Second, cfg.LockTTL)
	assert.True(t, cfg.RedisEnabled())
	assert.True(t, cfg.IsProduction())
}

func TestLoadConfigRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"unknown store", map[string]string{"EVENT_STORE": "mongo"}},
		{"postgres without dsn", map[string]string{"EVENT_STORE": "postgres", "PG_DSN": ""}},
		{"unknown policy", map[string]string{"NEGATIVE_QUANTITY_POLICY": "clamp"}},
		{"negative rate limit", map[string]string{"EVENTS_RATE_LIMIT": "-1"}},
		{"bad duration", map[string]string{"LOCK_TTL": "soon"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := LoadConfig()
			assert.Error(t, err)
		})
	}
}

func TestLogLevel(t *testing.T) {
	assert.Equal(t, slog.LevelInfo, logLevel(nil))
	assert.Equal(t, slog.LevelDebug, logLevel(&Config{LogLevel: "debug"}))
	assert.Equal(t, slog.LevelWarn, logLevel(&Config{LogLevel: "WARN"}))
	assert.Equal(t, slog.LevelInfo, logLevel(&Config{LogLevel: "loud"}))
}

func TestInTestMode(t *testing.T) {
	t.Setenv(testModeEnv, "1")
	RefreshTestMode()
	assert.True(t, InTestMode())

	t.Setenv(testModeEnv, "")
	RefreshTestMode()
	assert.False(t, InTestMode())
}
