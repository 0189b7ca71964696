package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "sqlite", cfg.Storage.Engine)
	assert.Equal(t, "./kore.db", cfg.Storage.Path)
	assert.True(t, cfg.Embedding.Enabled)
	assert.Equal(t, "nomic-embed-text", cfg.Embedding.Model)
	assert.Equal(t, time.Hour, cfg.Maintenance.DecayInterval)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestYAMLFileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kore.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
storage:
  engine: postgres
  dsn: postgres://localhost/kore?sslmode=disable
log:
  level: debug
  format: json
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "postgres", cfg.Storage.Engine)
	assert.Equal(t, "postgres://localhost/kore?sslmode=disable", cfg.Storage.DSN)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	// Untouched sections keep defaults.
	assert.Equal(t, "nomic-embed-text", cfg.Embedding.Model)
}

func TestEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kore.yaml")
	require.NoError(t, os.WriteFile(path, []byte("log:\n  level: warn\n"), 0o644))

	t.Setenv("KORE_LOG_LEVEL", "error")
	t.Setenv("KORE_EMBEDDING_ENABLED", "no")
	t.Setenv("KORE_DECAY_INTERVAL", "30m")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "error", cfg.Log.Level)
	assert.False(t, cfg.Embedding.Enabled)
	assert.Equal(t, 30*time.Minute, cfg.Maintenance.DecayInterval)
}

func TestValidation(t *testing.T) {
	t.Setenv("KORE_STORAGE_ENGINE", "mongodb")
	_, err := Load("")
	require.Error(t, err)

	t.Setenv("KORE_STORAGE_ENGINE", "postgres")
	_, err = Load("")
	require.Error(t, err, "postgres without a DSN is rejected")

	t.Setenv("KORE_POSTGRES_DSN", "postgres://localhost/kore")
	_, err = Load("")
	require.NoError(t, err)
}

func TestMissingFileErrors(t *testing.T) {
	_, err := Load("/nonexistent/kore.yaml")
	require.Error(t, err)
}
