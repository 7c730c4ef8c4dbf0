package indexer

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatcherIndexesNewFiles(t *testing.T) {
	idx, s, dir := createTestIndexer(t, nil)
	require.NoError(t, idx.Watch())

	path := writeFile(t, dir, "watched.go", twoFuncSource)

	assert.Eventually(t, func() bool {
		return s.HasItem(fileID(path))
	}, 5*time.Second, 20*time.Millisecond)
}

func TestWatcherRemovesDeletedFiles(t *testing.T) {
	idx, s, dir := createTestIndexer(t, nil)
	path := writeFile(t, dir, "doomed.go", twoFuncSource)

	require.NoError(t, idx.ForceIndexFile(context.Background(), path))
	require.True(t, s.HasItem(fileID(path)))

	require.NoError(t, idx.Watch())
	require.NoError(t, os.Remove(path))

	assert.Eventually(t, func() bool {
		return !s.HasItem(fileID(path))
	}, 5*time.Second, 20*time.Millisecond)
}

func TestWatchRequiresWorkspace(t *testing.T) {
	idx, _, _ := createTestIndexer(t, func(cfg *Config) {
		cfg.Workspace = ""
	})
	assert.Error(t, idx.Watch())
}
