package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadAPIConfigDefaults(t *testing.T) {
	for _, key := range []string{
		"INGEST_API_URL", "INGEST_STAGE_TIMEOUT", "INGEST_NAVIGATE_DELAY",
		"INGEST_MAX_FILE_SIZE_MB", "INGEST_ALLOWED_TYPES", "INGEST_MAX_CONCURRENT",
	} {
		t.Setenv(key, "")
	}

	cfg := LoadAPIConfig()

	assert.Equal(t, "http://localhost:8000/api/v1", cfg.BaseURL)
	assert.Equal(t, 5*time.Minute, cfg.StageTimeout)
	assert.Equal(t, 1500*time.Millisecond, cfg.NavigateDelay)
	assert.Equal(t, int64(50*1024*1024), cfg.MaxFileSize)
	assert.Equal(t, []string{".pdf"}, cfg.AllowedTypes)
	assert.Zero(t, cfg.MaxConcurrent)
}

func TestLoadAPIConfigOverrides(t *testing.T) {
	t.Setenv("INGEST_API_URL", "https://docs.example.com/api/v1/")
	t.Setenv("INGEST_STAGE_TIMEOUT", "0s")
	t.Setenv("INGEST_ALLOWED_TYPES", ".pdf, .PDF ,")
	t.Setenv("INGEST_MAX_CONCURRENT", "not-a-number")

	cfg := LoadAPIConfig()

	assert.Equal(t, "https://docs.example.com/api/v1", cfg.BaseURL)
	assert.Zero(t, cfg.StageTimeout)
	assert.Equal(t, []string{".pdf", ".PDF"}, cfg.AllowedTypes)
	assert.Zero(t, cfg.MaxConcurrent)
}

func TestRedisConfigEnabled(t *testing.T) {
	t.Setenv("REDIS_ADDR", "")
	assert.False(t, LoadRedisConfig().Enabled())

	t.Setenv("REDIS_ADDR", "localhost:6379")
	cfg := LoadRedisConfig()
	assert.True(t, cfg.Enabled())
	assert.Equal(t, 24*time.Hour, cfg.JournalTTL)
}

func TestApplyFileKeepsExistingEnvironment(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ingest.yaml")
	require.NoError(t, os.WriteFile(path, []byte("INGEST_APP_URL: https://app.example.com\nINGEST_TEST_ONLY_KEY: from-file\n"), 0o644))

	t.Setenv("INGEST_APP_URL", "https://env.example.com")
	t.Cleanup(func() { os.Unsetenv("INGEST_TEST_ONLY_KEY") })

	require.NoError(t, ApplyFile(path))

	assert.Equal(t, "https://env.example.com", os.Getenv("INGEST_APP_URL"))
	assert.Equal(t, "from-file", os.Getenv("INGEST_TEST_ONLY_KEY"))
}

func TestApplyFileRejectsInvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("- not\n- a mapping\n"), 0o644))

	assert.Error(t, ApplyFile(path))
	assert.Error(t, ApplyFile(filepath.Join(t.TempDir(), "missing.yaml")))
}
