package indexer

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fajrul/kontext/internal/observability"
	"github.com/fajrul/kontext/pkg/extract"
	"github.com/fajrul/kontext/pkg/store"
)

const testDimension = 4

type fakeEmbedder struct {
	calls int
}

func (f *fakeEmbedder) Embed(_ context.Context, text string) []float32 {
	f.calls++
	vec := make([]float32, testDimension)
	for i, r := range text {
		vec[i%testDimension] += float32(r) / 1000
	}
	return vec
}

func (f *fakeEmbedder) RequiresNetwork() bool { return false }

func createTestIndexer(t *testing.T, mutate func(*Config)) (*Indexer, *store.Store, string) {
	t.Helper()

	dir := t.TempDir()
	s, err := store.New(store.Config{
		DBPath:    filepath.Join(dir, "kontext.db"),
		Dimension: testDimension,
		Logger:    zerolog.New(nil).Level(zerolog.Disabled),
	})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	cfg := Config{
		Workspace:  dir,
		Store:      s,
		Embedder:   &fakeEmbedder{},
		Extractor:  extract.NewHeuristic(),
		Logger:     zerolog.New(nil).Level(zerolog.Disabled),
		BatchDelay: 20 * time.Millisecond,
	}
	if mutate != nil {
		mutate(&cfg)
	}

	idx, err := New(cfg)
	require.NoError(t, err)
	t.Cleanup(idx.Dispose)

	return idx, s, dir
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

const twoFuncSource = `package sample

func foo() int {
	return 1
}

func bar() int {
	return 2
}
`

func TestForceIndexFileEndToEnd(t *testing.T) {
	idx, s, dir := createTestIndexer(t, nil)
	path := writeFile(t, dir, "sample.go", twoFuncSource)

	require.NoError(t, idx.ForceIndexFile(context.Background(), path))

	item, ok := s.GetContextItem(fileID(path))
	require.True(t, ok)
	assert.Equal(t, store.ItemTypeFile, item.Type)
	assert.Equal(t, "sample.go", item.Name)
	assert.Equal(t, "go", item.Language)
	require.NotNil(t, item.VectorID)

	entities := s.FindCodeEntities("%", 10)
	require.Len(t, entities, 2)
	names := []string{entities[0].Name, entities[1].Name}
	assert.ElementsMatch(t, []string{"foo", "bar"}, names)

	// 1 file vector + 2 entity vectors
	assert.Len(t, s.VectorIDs(), 3)
}

func metricValue(t *testing.T, name string) float64 {
	t.Helper()
	rec := httptest.NewRecorder()
	observability.MetricsHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	for _, line := range strings.Split(rec.Body.String(), "\n") {
		if strings.HasPrefix(line, name+" ") {
			v, err := strconv.ParseFloat(strings.TrimSpace(strings.TrimPrefix(line, name)), 64)
			require.NoError(t, err)
			return v
		}
	}
	return 0
}

func TestForceIndexFileCountsEachVectorOnce(t *testing.T) {
	idx, s, dir := createTestIndexer(t, nil)
	path := writeFile(t, dir, "sample.go", twoFuncSource)

	before := metricValue(t, "vectors_saved_total")
	require.NoError(t, idx.ForceIndexFile(context.Background(), path))

	require.Len(t, s.VectorIDs(), 3)
	assert.Equal(t, 3.0, metricValue(t, "vectors_saved_total")-before,
		"counter must move once per vector upsert")
}

func TestReindexIncrementsFrequency(t *testing.T) {
	idx, s, dir := createTestIndexer(t, nil)
	path := writeFile(t, dir, "sample.go", twoFuncSource)

	require.NoError(t, idx.ForceIndexFile(context.Background(), path))
	require.NoError(t, idx.ForceIndexFile(context.Background(), path))

	entities := s.FindCodeEntities("foo", 10)
	require.Len(t, entities, 1, "reindexing must not duplicate entity rows")
	assert.Equal(t, 2, entities[0].Frequency)
	assert.Equal(t, int64(3), entities[0].FirstSeen, "first_seen keeps the original start line")

	assert.Len(t, s.VectorIDs(), 3, "reindexing must upsert vectors, not add rows")
}

func TestIndexWithoutEmbedder(t *testing.T) {
	idx, s, dir := createTestIndexer(t, func(cfg *Config) {
		cfg.Embedder = nil
	})
	path := writeFile(t, dir, "sample.go", twoFuncSource)

	require.NoError(t, idx.ForceIndexFile(context.Background(), path))

	item, ok := s.GetContextItem(fileID(path))
	require.True(t, ok)
	assert.Nil(t, item.VectorID)
	assert.Empty(t, s.VectorIDs())
}

func TestOversizedFileSkipped(t *testing.T) {
	idx, s, dir := createTestIndexer(t, func(cfg *Config) {
		cfg.MaxFileSizeBytes = 64
	})
	path := writeFile(t, dir, "big.go", strings.Repeat("// padding\n", 50))

	require.NoError(t, idx.ForceIndexFile(context.Background(), path), "oversize is a skip, not an error")
	assert.False(t, s.HasItem(fileID(path)))
}

func TestUnreadableFileFails(t *testing.T) {
	idx, _, dir := createTestIndexer(t, nil)
	assert.Error(t, idx.ForceIndexFile(context.Background(), filepath.Join(dir, "missing.go")))
}

func TestQueueDeduplicates(t *testing.T) {
	idx, _, dir := createTestIndexer(t, func(cfg *Config) {
		cfg.BatchDelay = time.Hour // keep the queue from draining mid-test
	})
	path := writeFile(t, dir, "sample.go", twoFuncSource)

	idx.QueueFile(path, false)
	idx.QueueFile(path, false)
	idx.QueueFile(path, false)

	assert.Equal(t, 1, idx.QueueLen())
}

func TestQueueSkipsExcluded(t *testing.T) {
	idx, _, dir := createTestIndexer(t, func(cfg *Config) {
		cfg.BatchDelay = time.Hour
	})

	idx.QueueFile(filepath.Join(dir, "logo.png"), false)
	idx.QueueFile(filepath.Join(dir, "node_modules", "lib", "index.js"), false)

	assert.Equal(t, 0, idx.QueueLen())
	assert.Error(t, idx.ForceIndexFile(context.Background(), filepath.Join(dir, "logo.png")))
}

func TestDebouncedDrain(t *testing.T) {
	idx, s, dir := createTestIndexer(t, nil)
	path := writeFile(t, dir, "sample.go", twoFuncSource)

	idx.QueueFile(path, false)

	assert.Eventually(t, func() bool {
		return s.HasItem(fileID(path)) && idx.QueueLen() == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestPriorityBypassesDebounce(t *testing.T) {
	idx, s, dir := createTestIndexer(t, func(cfg *Config) {
		cfg.BatchDelay = time.Hour
	})
	path := writeFile(t, dir, "sample.go", twoFuncSource)

	idx.QueueFile(path, true)

	assert.Eventually(t, func() bool {
		return s.HasItem(fileID(path))
	}, 2*time.Second, 10*time.Millisecond)
}

func TestBatchDrainsWholeQueue(t *testing.T) {
	idx, s, dir := createTestIndexer(t, func(cfg *Config) {
		cfg.BatchSize = 2
		cfg.InterBatchDelay = 5 * time.Millisecond
	})

	paths := make([]string, 5)
	for i := range paths {
		paths[i] = writeFile(t, dir, "file"+string(rune('a'+i))+".go", twoFuncSource)
		idx.QueueFile(paths[i], false)
	}

	assert.Eventually(t, func() bool {
		for _, p := range paths {
			if !s.HasItem(fileID(p)) {
				return false
			}
		}
		return idx.QueueLen() == 0
	}, 3*time.Second, 10*time.Millisecond)
}

func TestQueueFileAfterDispose(t *testing.T) {
	idx, _, dir := createTestIndexer(t, nil)
	idx.Dispose()

	idx.QueueFile(writeFile(t, dir, "late.go", twoFuncSource), false)
	assert.Equal(t, 0, idx.QueueLen())
}

func TestFileIDStable(t *testing.T) {
	assert.Equal(t, fileID("/tmp/a.go"), fileID("/tmp/a.go"))
	assert.NotEqual(t, fileID("/tmp/a.go"), fileID("/tmp/b.go"))
	assert.NotEqual(t, entityID("a.go", "function", "foo"), entityID("a.go", "class", "foo"))
}

func TestImportanceScore(t *testing.T) {
	now := time.Now()

	fresh := importanceScore("main.go", now, now)
	stale := importanceScore("main.go", now.Add(-30*24*time.Hour), now)
	assert.Greater(t, fresh, stale)

	shallow := importanceScore("a/main.go", now, now)
	deep := importanceScore("a/b/c/d/e/f/main.go", now, now)
	assert.Greater(t, shallow, deep)

	source := importanceScore("x/main.go", now, now)
	config := importanceScore("x/config.yaml", now, now)
	assert.Greater(t, source, config)

	for _, s := range []float64{fresh, stale, shallow, deep, source, config} {
		assert.GreaterOrEqual(t, s, 0.0)
		assert.LessOrEqual(t, s, 1.0)
	}
}
