package mcpserver

import (
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/VioletCranberry/coco-search/internal/config"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.DBPath = filepath.Join(t.TempDir(), "coco.db")
	cfg.Embedding.Provider = "local"
	return cfg
}

func TestNewServerWiresPipeline(t *testing.T) {
	srv, err := NewServer(testConfig(t), zerolog.Nop())
	require.NoError(t, err)
	defer srv.store.Close()

	assert.NotNil(t, srv.mcp)
	assert.NotNil(t, srv.indexer)
	assert.NotNil(t, srv.searcher)
	assert.NotNil(t, srv.store)
}

func TestNewServerCreatesDatabaseDirectory(t *testing.T) {
	cfg := config.Default()
	cfg.DBPath = filepath.Join(t.TempDir(), "nested", "deeper", "coco.db")
	cfg.Embedding.Provider = "local"

	srv, err := NewServer(cfg, zerolog.Nop())
	require.NoError(t, err)
	defer srv.store.Close()
}

func TestValidateRoot(t *testing.T) {
	dir := t.TempDir()

	assert.NoError(t, validateRoot(dir))
	assert.Error(t, validateRoot("relative/path"))
	assert.Error(t, validateRoot(filepath.Join(dir, "missing")))
}

func TestArgumentHelpers(t *testing.T) {
	args := map[string]interface{}{
		"name":    "alpha",
		"force":   true,
		"limit":   float64(7),
		"exact":   3,
		"langs":   []interface{}{"go", "python", 42},
		"badtype": 12,
	}

	assert.Equal(t, "alpha", getString(args, "name", ""))
	assert.Equal(t, "dflt", getString(args, "missing", "dflt"))
	assert.Equal(t, "dflt", getString(args, "badtype", "dflt"))

	assert.True(t, getBool(args, "force", false))
	assert.False(t, getBool(args, "missing", false))

	// JSON numbers arrive as float64.
	assert.Equal(t, 7, getInt(args, "limit", 0))
	assert.Equal(t, 3, getInt(args, "exact", 0))
	assert.Equal(t, 9, getInt(args, "missing", 9))

	assert.Equal(t, []string{"go", "python"}, getStringSlice(args, "langs"))
	assert.Nil(t, getStringSlice(args, "missing"))
}

func TestToolSchemas(t *testing.T) {
	index := indexTreeTool()
	assert.Equal(t, "index_tree", index.Name)

	search := searchCodeTool()
	assert.Equal(t, "search_code", search.Name)

	stats := indexStatsTool()
	assert.Equal(t, "index_stats", stats.Name)
}

func TestMCPError(t *testing.T) {
	err := newMCPError(ErrorCodeInvalidFilter, "bad glob", nil)
	var mcpErr *MCPError
	require.ErrorAs(t, err, &mcpErr)
	assert.Equal(t, ErrorCodeInvalidFilter, mcpErr.Code)
	assert.Contains(t, mcpErr.Error(), "bad glob")
}
