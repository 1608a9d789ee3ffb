package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_RequiresDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	_, err := Load()
	require.Error(t, err)
}

func TestLoad_AppliesDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/memento")
	t.Setenv("EMBED_BATCH_SIZE", "")
	t.Setenv("OUTBOX_LEASE_SECONDS", "")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 32, cfg.Embedder.BatchSize)
	assert.Equal(t, 2, cfg.Embedder.Concurrency)
	assert.Equal(t, 120, cfg.Outbox.LeaseSeconds)
	assert.Equal(t, 5, cfg.Outbox.MaxAttempts)
}

func TestLoad_ClampsEmbedBatchSize(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/memento")
	t.Setenv("EMBED_BATCH_SIZE", "4096")
	t.Setenv("EMBED_CONCURRENCY", "0")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 256, cfg.Embedder.BatchSize)
	assert.Equal(t, 1, cfg.Embedder.Concurrency)
}

func TestLoad_YAMLFileSetsDefaultsBelowEnvPrecedence(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "memento.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
database:
  url: postgres://from-yaml/memento
embedder:
  batch_size: 64
outbox:
  max_attempts: 9
`), 0o644))

	t.Setenv("MEMENTO_CONFIG_FILE", path)
	t.Setenv("DATABASE_URL", "")
	t.Setenv("EMBED_BATCH_SIZE", "")
	t.Setenv("OUTBOX_MAX_ATTEMPTS", "3")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "postgres://from-yaml/memento", cfg.Database.URL)
	assert.Equal(t, 64, cfg.Embedder.BatchSize)
	assert.Equal(t, 3, cfg.Outbox.MaxAttempts, "env var must win over the YAML file")
}

func TestEnvOrDuration_AcceptsBareSecondsOrDurationString(t *testing.T) {
	t.Setenv("X_TTL", "90")
	assert.Equal(t, int64(90), envOrDuration("X_TTL", 0).Nanoseconds()/1e9)

	t.Setenv("X_TTL", "1m30s")
	assert.Equal(t, int64(90), envOrDuration("X_TTL", 0).Nanoseconds()/1e9)
}
