package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "INFO", cfg.LogLevel)
	assert.Equal(t, "sqlite", cfg.DatabaseDriver)
	assert.Equal(t, 30, cfg.UploadRatePerMinute)
	assert.False(t, cfg.TelemetryEnabled)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("PACKD_DB_DRIVER", "postgres")
	t.Setenv("DATABASE_URL", "postgres://packd@localhost/packd")
	t.Setenv("PACKD_TELEMETRY_ENABLED", "true")
	t.Setenv("PACKD_SAMPLE_RATE", "0.25")
	t.Setenv("PACKD_UPLOAD_RATE_PER_MINUTE", "5")

	cfg := Load()
	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, "postgres", cfg.DatabaseDriver)
	assert.Equal(t, "postgres://packd@localhost/packd", cfg.DatabaseURL)
	assert.True(t, cfg.TelemetryEnabled)
	assert.Equal(t, 0.25, cfg.SampleRate)
	assert.Equal(t, 5, cfg.UploadRatePerMinute)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "packd.yaml")
	require.NoError(t, os.WriteFile(path, []byte(
		"port: \"7070\"\nbase_url: https://packs.example.com\nredis_addr: localhost:6379\n",
	), 0o600))

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "7070", cfg.Port)
	assert.Equal(t, "https://packs.example.com", cfg.BaseURL)
	assert.Equal(t, "localhost:6379", cfg.RedisAddr)
	// Unset fields keep their defaults.
	assert.Equal(t, "sqlite", cfg.DatabaseDriver)
}

func TestLoadFileEnvWins(t *testing.T) {
	path := filepath.Join(t.TempDir(), "packd.yaml")
	require.NoError(t, os.WriteFile(path, []byte("port: \"7070\"\n"), 0o600))

	t.Setenv("PORT", "6060")
	cfg, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "6060", cfg.Port)
}

func TestLoadFileMissing(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}
