package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_MissingFileReturnsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kontext.json")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, DefaultConfig().Indexing.BatchSize, cfg.Indexing.BatchSize)
	assert.NotEmpty(t, cfg.DataDir)
	assert.NotEmpty(t, cfg.Logging.File)
}

func TestLoad_FromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "kontext.json")

	content := `{
		"workspace_path": "/srv/project",
		"data_dir": "` + dir + `",
		"indexing": {"batch_size": 5},
		"memory": {"strategy": "lru", "memory_length": 7}
	}`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/srv/project", cfg.WorkspacePath)
	assert.Equal(t, 5, cfg.Indexing.BatchSize)
	assert.Equal(t, "lru", cfg.Memory.Strategy)
	assert.Equal(t, 7, cfg.Memory.MemoryLength)
	// Untouched fields keep defaults
	assert.Equal(t, 384, cfg.Embedding.Dimension)
	assert.Equal(t, filepath.Join(dir, "kontext.log"), cfg.Logging.File)
}

func TestSaveAndReload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "kontext.json")

	loader := NewLoader(path)

	cfg := DefaultConfig()
	cfg.WorkspacePath = "/srv/other"
	cfg.DataDir = dir
	cfg.Memory.MemoryLength = 15

	require.NoError(t, loader.Save(cfg))

	reloaded, err := loader.Load()
	require.NoError(t, err)
	assert.Equal(t, "/srv/other", reloaded.WorkspacePath)
	assert.Equal(t, 15, reloaded.Memory.MemoryLength)
}

func TestGetConfigPath(t *testing.T) {
	loader := NewLoader("/etc/kontext.json")
	assert.Equal(t, "/etc/kontext.json", loader.GetConfigPath())

	loader = NewLoader("")
	assert.Contains(t, loader.GetConfigPath(), ".kontext")
}
