package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 50, cfg.Bulk.BatchSize)
	assert.Equal(t, 100*time.Millisecond, cfg.Bulk.BatchPause.Duration)
	assert.Equal(t, 4, cfg.Bulk.MaxConcurrentJobs)
	assert.Equal(t, ArchiveSQLite, cfg.Archive.Backend)
	assert.Equal(t, ExportLocal, cfg.Export.Backend)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_OverridesAndKeepsDefaults(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9090
bulk:
  batch_size: 25
  batch_pause: 250ms
  job_timeout: 10m
observability:
  logging:
    level: debug
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 25, cfg.Bulk.BatchSize)
	assert.Equal(t, 250*time.Millisecond, cfg.Bulk.BatchPause.Duration)
	assert.Equal(t, 10*time.Minute, cfg.Bulk.JobTimeout.Duration)
	assert.Equal(t, "debug", cfg.Observability.Logging.Level)

	// Untouched sections keep defaults
	assert.Equal(t, "marketplace.db", cfg.Storage.DatabasePath)
	assert.Equal(t, 4, cfg.Bulk.MaxConcurrentJobs)
	assert.Equal(t, "text", cfg.Observability.Logging.Format)
}

func TestLoad_ExpandsEnvironment(t *testing.T) {
	t.Setenv("TEST_REDIS_URL", "redis://cache:6379/2")

	path := writeConfig(t, `
archive:
  backend: redis
  redis_url: ${TEST_REDIS_URL}
  ttl: 48h
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ArchiveRedis, cfg.Archive.Backend)
	assert.Equal(t, "redis://cache:6379/2", cfg.Archive.RedisURL)
	assert.Equal(t, 48*time.Hour, cfg.Archive.TTL.Duration)
}

func TestLoad_InvalidDuration(t *testing.T) {
	path := writeConfig(t, `
bulk:
  batch_pause: soon
`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid duration")
}

func TestLoad_InvalidValues(t *testing.T) {
	path := writeConfig(t, `
bulk:
  batch_size: 0
archive:
  backend: redis
export:
  backend: ftp
`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "batch_size")
	assert.Contains(t, err.Error(), "redis_url")
	assert.Contains(t, err.Error(), "ftp")
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("PORT", "7000")
	t.Setenv("MARKETPLACE_DB_PATH", "test.db")
	t.Setenv("BULK_BATCH_SIZE", "10")
	t.Setenv("BULK_BATCH_PAUSE", "1s")
	t.Setenv("ARCHIVE_BACKEND", "none")
	t.Setenv("AWS_S3_BUCKET", "exports-bucket")
	t.Setenv("ALLOWED_ORIGINS", "http://a.test,http://b.test")

	cfg := LoadFromEnv()
	assert.Equal(t, 7000, cfg.Server.Port)
	assert.Equal(t, "test.db", cfg.Storage.DatabasePath)
	assert.Equal(t, 10, cfg.Bulk.BatchSize)
	assert.Equal(t, time.Second, cfg.Bulk.BatchPause.Duration)
	assert.Equal(t, ArchiveNone, cfg.Archive.Backend)
	assert.Equal(t, "exports-bucket", cfg.Export.Bucket)
	assert.Equal(t, []string{"http://a.test", "http://b.test"}, cfg.Server.AllowedOrigins)
}

func TestLoadFromEnv_IgnoresMalformedNumbers(t *testing.T) {
	t.Setenv("BULK_BATCH_SIZE", "lots")
	t.Setenv("BULK_JOB_TIMEOUT", "forever")

	cfg := LoadFromEnv()
	assert.Equal(t, 50, cfg.Bulk.BatchSize)
	assert.Equal(t, 30*time.Minute, cfg.Bulk.JobTimeout.Duration)
}

func TestLoadOrEnvWithPath_FallsBackToEnv(t *testing.T) {
	t.Setenv("MARKETPLACE_DB_PATH", "fallback.db")

	cfg := LoadOrEnvWithPath(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Equal(t, "fallback.db", cfg.Storage.DatabasePath)
}
