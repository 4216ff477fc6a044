package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/skinai/internal/decision"
	"github.com/example/skinai/internal/preprocess"
)

func TestDefaultsValidate(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, decision.DefaultThresholds(), cfg.Thresholds)
	assert.Equal(t, preprocess.DefaultQualityPolicy(), cfg.Quality)
	assert.Equal(t, int64(8*1024*1024), cfg.MaxUploadBytes)
}

func TestLoadYAMLThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "skinai.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
addr: ":9000"
thresholds:
  conf_threshold: 0.8
  gap_threshold: 0.2
  normal_accept_threshold: 0.7
image_quality:
  min_width: 300
  min_height: 300
  warn_width: 800
  warn_height: 800
model:
  backend: grpc
  classifier_addr: "model:50051"
cache:
  ttl: 1m
`), 0o600))

	t.Setenv("PORT", "7070")
	t.Setenv("REDIS_ADDR", "redis:6379")
	t.Setenv("CACHE_TTL", "30s")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":7070", cfg.Addr)
	assert.Equal(t, 0.8, cfg.Thresholds.Confidence)
	assert.Equal(t, 300, cfg.Quality.MinWidth)
	assert.Equal(t, BackendGRPC, cfg.Model.Backend)
	assert.Equal(t, "model:50051", cfg.Model.ClassifierAddr)
	assert.Equal(t, "redis:6379", cfg.Cache.RedisAddr)
	assert.Equal(t, 30*time.Second, cfg.Cache.TTL)
	// untouched defaults survive a partial file
	assert.Equal(t, "input", cfg.Model.InputName)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	t.Setenv("MODEL_BACKEND", "tensorflow")
	_, err := Load("")
	assert.ErrorContains(t, err, "unknown model backend")
}

func TestLoadRejectsBadEnv(t *testing.T) {
	t.Setenv("MAX_UPLOAD_BYTES", "lots")
	_, err := Load("")
	assert.ErrorContains(t, err, "MAX_UPLOAD_BYTES")
}

func TestValidateQuality(t *testing.T) {
	cfg := Default()
	cfg.Quality.WarnWidth = 100
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Model.Backend = BackendGRPC
	assert.ErrorContains(t, cfg.Validate(), "classifier_addr")
}
