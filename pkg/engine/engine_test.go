package engine

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fajrul/kontext/internal/config"
	"github.com/fajrul/kontext/pkg/assembler"
	"github.com/fajrul/kontext/pkg/embed"
	"github.com/fajrul/kontext/pkg/store"
)

func createTestEngine(t *testing.T, mutate func(*config.Config)) (*Engine, string) {
	t.Helper()

	workspace := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.DataDir = t.TempDir()
	cfg.WorkspacePath = workspace
	cfg.Embedding.Dimension = 8 // keep test vectors small
	if mutate != nil {
		mutate(cfg)
	}

	e, err := New(Config{
		Config: cfg,
		Oracle: embed.StaticOracle(false),
		Logger: zerolog.New(nil).Level(zerolog.Disabled),
	})
	require.NoError(t, err)
	t.Cleanup(func() { e.Close() })

	return e, workspace
}

func TestNewRequiresValidConfig(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)

	cfg := config.DefaultConfig() // no workspace path
	_, err = New(Config{Config: cfg})
	assert.Error(t, err)
}

func TestIndexAndAssemble(t *testing.T) {
	e, workspace := createTestEngine(t, nil)

	path := filepath.Join(workspace, "greeter.go")
	source := `package main

func Greet(name string) string {
	return "hello " + name
}

func Farewell(name string) string {
	return "bye " + name
}
`
	require.NoError(t, os.WriteFile(path, []byte(source), 0o644))
	require.NoError(t, e.ForceIndexFile(context.Background(), path))

	status := e.Status()
	assert.Equal(t, 1, status.Items)
	assert.Equal(t, 2, status.Entities)
	assert.Equal(t, 3, status.Vectors, "1 file vector + 2 entity vectors")

	res := e.AssembleContext(context.Background(), assembler.Request{
		Query:     "greeting function",
		Sources:   []assembler.Source{assembler.SourceWorkspace},
		MaxTokens: 4000,
	})
	require.NotEmpty(t, res.Items)
	assert.Equal(t, []assembler.Source{assembler.SourceWorkspace}, res.AvailableSources)
	assert.Greater(t, res.TokenCount, 0)
}

func TestConversationRoundtrip(t *testing.T) {
	e, _ := createTestEngine(t, nil)

	id, err := e.AddMessage("c1", "user", "how does the indexer debounce writes?")
	require.NoError(t, err)
	assert.NotEmpty(t, id)
	_, err = e.AddMessage("c1", "assistant", "edits within the batch delay coalesce into one batch")
	require.NoError(t, err)

	conv, ok := e.GetConversation("c1")
	require.True(t, ok)
	assert.Len(t, conv.Messages, 2)

	res := e.AssembleContext(context.Background(), assembler.Request{
		Query:          "debounce",
		Sources:        []assembler.Source{assembler.SourceConversation},
		ConversationID: "c1",
		MaxTokens:      4000,
	})
	require.Len(t, res.Items, 1)
	assert.Equal(t, store.ItemTypeConversation, res.Items[0].Type)
	assert.Contains(t, res.Items[0].Content, "debounce")
}

func TestTrackUsage(t *testing.T) {
	e, _ := createTestEngine(t, nil)

	assert.True(t, e.TrackUsage("search", "prefers entity results", "queried parseConfig"))
	assert.True(t, e.TrackUsage("search", "prefers entity results", "queried loadStore"))
}

func TestQueueFileExcluded(t *testing.T) {
	e, workspace := createTestEngine(t, nil)

	e.QueueFile(filepath.Join(workspace, "image.png"), false)
	assert.Equal(t, 0, e.Status().QueueLen)
}

func TestEmbeddingCachePopulated(t *testing.T) {
	e, _ := createTestEngine(t, nil)

	e.AssembleContext(context.Background(), assembler.Request{
		Query:     "anything at all",
		Sources:   []assembler.Source{assembler.SourceWorkspace},
		MaxTokens: 1000,
	})
	assert.GreaterOrEqual(t, e.Status().CacheEntries, 1)
}

func TestCloseIsIdempotentEnough(t *testing.T) {
	workspace := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.DataDir = t.TempDir()
	cfg.WorkspacePath = workspace
	cfg.Embedding.Dimension = 8

	e, err := New(Config{
		Config: cfg,
		Oracle: embed.StaticOracle(false),
		Logger: zerolog.New(nil).Level(zerolog.Disabled),
	})
	require.NoError(t, err)
	assert.NoError(t, e.Close())
}
