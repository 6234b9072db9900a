package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "local", cfg.Embedding.Provider)
	assert.Equal(t, 120, cfg.Chunking.MaxLines)
	assert.Equal(t, 40, cfg.Chunking.WindowLines)
	assert.Equal(t, 10, cfg.Chunking.OverlapLines)
	assert.Equal(t, 0, cfg.Chunking.Depth)
	assert.Equal(t, 60.0, cfg.Search.RRFConstant)
	assert.Equal(t, 4, cfg.Search.WideningFactor)
	assert.Equal(t, 10*time.Second, cfg.Search.Timeout)
	assert.Equal(t, 500*time.Millisecond, cfg.Indexing.WatchDebounce)
	assert.NoError(t, cfg.Validate())
}

func TestLoadYAMLOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
db_path: /tmp/custom.db
log_level: debug
chunking:
  max_lines: 80
search:
  rrf_constant: 30
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/tmp/custom.db", cfg.DBPath)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 80, cfg.Chunking.MaxLines)
	assert.Equal(t, 30.0, cfg.Search.RRFConstant)

	// Untouched fields keep their defaults.
	assert.Equal(t, 40, cfg.Chunking.WindowLines)
	assert.Equal(t, "local", cfg.Embedding.Provider)
}

func TestLoadMissingExplicitFileFails(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoadEmptyPathUsesDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.NotEmpty(t, cfg.DBPath)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("log_level: debug\n"), 0o644))

	t.Setenv("COCO_LOG_LEVEL", "error")
	t.Setenv("COCO_EMBEDDING_PROVIDER", "openai")
	t.Setenv("COCO_CHUNKING_MAX_LINES", "200")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "error", cfg.LogLevel)
	assert.Equal(t, "openai", cfg.Embedding.Provider)
	assert.Equal(t, 200, cfg.Chunking.MaxLines)
}

func TestLoadMalformedYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("chunking: [not a map\n"), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.Chunking.OverlapLines = cfg.Chunking.WindowLines
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Indexing.ErrorThreshold = 1.5
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Search.RRFConstant = 0
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Search.WideningFactor = 0
	assert.Error(t, cfg.Validate())
}
