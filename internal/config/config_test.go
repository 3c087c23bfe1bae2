package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.DBDriver)
	assert.Equal(t, 1000, cfg.BatchSize)
	assert.Equal(t, 500, cfg.BulkSize)
	assert.Equal(t, 0, cfg.BulkMaxConsecutiveFailures)
	assert.Equal(t, 5000, cfg.ScrollPageSize)
	assert.Equal(t, 10, cfg.ProgressLogEvery)
	assert.Equal(t, 5*time.Minute, cfg.TaskRetention)
	assert.Equal(t, 60*time.Second, cfg.StreamIdleTimeout)
	assert.Equal(t, time.Hour, cfg.SchedulerInterval)
	assert.True(t, cfg.SchedulerEnabled)
	assert.Equal(t, 8080, cfg.Port)
	assert.Empty(t, cfg.JWTSecret)
	assert.Empty(t, cfg.RedisURL)
}

func TestLoad_FromEnvironment(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("DB_DRIVER", "MySQL")
	t.Setenv("DATABASE_URL", "user:pass@tcp(db:3306)/forms")
	t.Setenv("SYNC_BATCH_SIZE", "250")
	t.Setenv("BULK_MAX_CONSECUTIVE_FAILURES", "-1")
	t.Setenv("TASK_RETENTION_SEC", "30")
	t.Setenv("SCHEDULER_ENABLED", "false")
	t.Setenv("LOG_FORMAT", "json")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "mysql", cfg.DBDriver)
	assert.Equal(t, "user:pass@tcp(db:3306)/forms", cfg.DatabaseURL)
	assert.Equal(t, 250, cfg.BatchSize)
	assert.Equal(t, -1, cfg.BulkMaxConsecutiveFailures)
	assert.Equal(t, 30*time.Second, cfg.TaskRetention)
	assert.False(t, cfg.SchedulerEnabled)

	level, err := cfg.SlogLevel()
	require.NoError(t, err)
	assert.Equal(t, slog.LevelDebug, level)
}

func TestLoad_EnvFile(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	path := filepath.Join(dir, "test.env")
	require.NoError(t, os.WriteFile(path, []byte("INDEX_PREFIX=custom_\nPORT=9090\n"), 0o600))
	t.Setenv("PORT", "7070")
	// godotenv only fills unset variables; clear what the file sets
	t.Setenv("INDEX_PREFIX", "")
	require.NoError(t, os.Unsetenv("INDEX_PREFIX"))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "custom_", cfg.IndexPrefix)
	assert.Equal(t, 7070, cfg.Port, "environment wins over the file")
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
	}{
		{"unknown driver", "DB_DRIVER", "oracle"},
		{"zero batch", "SYNC_BATCH_SIZE", "0"},
		{"negative bulk", "BULK_SIZE", "-5"},
		{"zero scroll", "SCROLL_PAGE_SIZE", "0"},
		{"bad level", "LOG_LEVEL", "chatty"},
		{"bad format", "LOG_FORMAT", "xml"},
		{"zero interval", "SCHEDULER_INTERVAL_SEC", "0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Chdir(t.TempDir())
			t.Setenv(tt.key, tt.val)

			_, err := Load()
			assert.Error(t, err)
		})
	}
}

func TestGetEnvHelpers(t *testing.T) {
	t.Setenv("CFG_TEST_INT", "not-a-number")
	t.Setenv("CFG_TEST_BOOL", "yes")

	assert.Equal(t, 7, getEnvInt("CFG_TEST_INT", 7))
	assert.True(t, getEnvBool("CFG_TEST_BOOL", false))
	assert.False(t, getEnvBool("CFG_TEST_MISSING", false))
	assert.Equal(t, "fallback", getEnv("CFG_TEST_MISSING", "fallback"))
	assert.Equal(t, 2*time.Second, getEnvSeconds("CFG_TEST_MISSING", 2))
}

func TestNewLogger(t *testing.T) {
	cfg := &Config{LogLevel: "warn", LogFormat: "json"}
	logger := cfg.NewLogger()
	require.NotNil(t, logger)
	assert.False(t, logger.Enabled(t.Context(), slog.LevelInfo))
	assert.True(t, logger.Enabled(t.Context(), slog.LevelWarn))
}
