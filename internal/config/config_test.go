package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_DefaultsWithBaseURL(t *testing.T) {
	t.Setenv("PDF2CSV_BASE_URL", "http://localhost:8080")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:8080", cfg.Server.BaseURL)
	assert.Equal(t, 20, cfg.Upload.MaxUploadMB)
	assert.Equal(t, []string{"application/pdf", "image/jpeg", "image/png"}, cfg.Upload.AcceptedTypes)
	assert.Equal(t, 5, cfg.Poll.IntervalSeconds)
	assert.Equal(t, 60, cfg.Poll.MaxAttempts)
	assert.Equal(t, 3, cfg.Push.MaxReconnects)
	assert.Equal(t, 10, cfg.Store.MaxJobs)
	assert.Equal(t, 24, cfg.Store.JobTTLHours)
}

func TestLoad_RequiresBaseURL(t *testing.T) {
	t.Setenv("PDF2CSV_BASE_URL", "")

	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "PDF2CSV_BASE_URL")
}

func TestLoad_YAMLFileThenEnvOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
server:
  baseURL: http://from-file:9000
poll:
  intervalSeconds: 10
  maxAttempts: 30
upload:
  maxUploadMB: 5
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	t.Setenv("PDF2CSV_POLL_INTERVAL", "7")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "http://from-file:9000", cfg.Server.BaseURL)
	// env wins over file
	assert.Equal(t, 7, cfg.Poll.IntervalSeconds)
	assert.Equal(t, 30, cfg.Poll.MaxAttempts)
	assert.Equal(t, 5, cfg.Upload.MaxUploadMB)
}

func TestLoad_AcceptedTypesFromEnv(t *testing.T) {
	t.Setenv("PDF2CSV_BASE_URL", "http://localhost:8080")
	t.Setenv("PDF2CSV_ACCEPTED_TYPES", "application/pdf, image/tiff")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, []string{"application/pdf", "image/tiff"}, cfg.Upload.AcceptedTypes)
}

func TestLoad_InvalidValuesRejected(t *testing.T) {
	t.Setenv("PDF2CSV_BASE_URL", "http://localhost:8080")
	t.Setenv("PDF2CSV_MAX_UPLOAD_MB", "-1")

	_, err := Load("")
	require.Error(t, err)
}

func TestDurationHelpers(t *testing.T) {
	t.Setenv("PDF2CSV_BASE_URL", "http://localhost:8080")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, int64(20*1024*1024), cfg.Upload.MaxUploadBytes())
	assert.Equal(t, "5s", cfg.Poll.Interval().String())
	assert.Equal(t, "1s", cfg.Push.BackoffBase().String())
	assert.Equal(t, "24h0m0s", cfg.Store.JobTTL().String())
}
