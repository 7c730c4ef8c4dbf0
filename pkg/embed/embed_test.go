package embed

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubEmbedder is a scriptable tier for chain tests.
type stubEmbedder struct {
	dimension int
	vec       []float32
	err       error
	calls     int
}

func (s *stubEmbedder) Embed(_ context.Context, _ string) ([]float32, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.vec, nil
}

func (s *stubEmbedder) Dimension() int { return s.dimension }
func (s *stubEmbedder) Close() error   { return nil }

func testChain(t *testing.T, cfg Config) *Chain {
	t.Helper()
	if cfg.Dimension == 0 {
		cfg.Dimension = 4
	}
	if cfg.Oracle == nil {
		cfg.Oracle = StaticOracle(true)
	}
	cfg.Logger = zerolog.New(nil).Level(zerolog.Disabled)

	chain, err := NewChain(cfg)
	require.NoError(t, err)
	return chain
}

func TestNewChainValidation(t *testing.T) {
	_, err := NewChain(Config{Dimension: 0, Oracle: StaticOracle(true)})
	assert.Error(t, err)

	_, err = NewChain(Config{Dimension: 4})
	assert.Error(t, err, "oracle is required")

	_, err = NewChain(Config{
		Dimension: 4,
		Oracle:    StaticOracle(true),
		Local:     &stubEmbedder{dimension: 8},
	})
	assert.Error(t, err, "tier dimension must match chain dimension")
}

func TestChainPrefersLocalTier(t *testing.T) {
	local := &stubEmbedder{dimension: 4, vec: []float32{1, 0, 0, 0}}
	remote := &stubEmbedder{dimension: 4, vec: []float32{0, 1, 0, 0}}
	chain := testChain(t, Config{Local: local, Remote: remote})

	vec := chain.Embed(context.Background(), "hello")

	assert.Equal(t, []float32{1, 0, 0, 0}, vec)
	assert.Equal(t, 1, local.calls)
	assert.Equal(t, 0, remote.calls, "remote must not be called when local succeeds")
}

func TestChainFallsThroughToRemote(t *testing.T) {
	local := &stubEmbedder{dimension: 4, err: fmt.Errorf("model not loaded")}
	remote := &stubEmbedder{dimension: 4, vec: []float32{0, 1, 0, 0}}
	chain := testChain(t, Config{Local: local, Remote: remote})

	vec := chain.Embed(context.Background(), "hello")

	assert.Equal(t, []float32{0, 1, 0, 0}, vec)
	assert.Equal(t, 1, local.calls)
	assert.Equal(t, 1, remote.calls)
}

func TestChainSkipsRemoteWhenOffline(t *testing.T) {
	remote := &stubEmbedder{dimension: 4, vec: []float32{0, 1, 0, 0}}
	chain := testChain(t, Config{Remote: remote, Oracle: StaticOracle(false)})

	vec := chain.Embed(context.Background(), "hello")

	assert.Equal(t, 0, remote.calls, "offline oracle must prevent remote calls")
	require.Len(t, vec, 4)

	want, err := NewDeterministic(4).Embed(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, want, vec)
}

func TestChainFunnelsIntoFallback(t *testing.T) {
	local := &stubEmbedder{dimension: 4, err: fmt.Errorf("boom")}
	remote := &stubEmbedder{dimension: 4, err: fmt.Errorf("rate limited")}
	chain := testChain(t, Config{Local: local, Remote: remote})

	vec := chain.Embed(context.Background(), "hello")

	require.Len(t, vec, 4)
	want, err := NewDeterministic(4).Embed(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, want, vec, "all-tier failure must still yield the deterministic vector")
}

func TestChainRejectsWrongDimensionResult(t *testing.T) {
	// Tier reports dimension 4 but returns a 3-wide vector at runtime.
	local := &stubEmbedder{dimension: 4, vec: []float32{1, 2, 3}}
	chain := testChain(t, Config{Local: local})

	vec := chain.Embed(context.Background(), "hello")
	assert.Len(t, vec, 4, "malformed tier output must fall through")
}

func TestChainCachesResults(t *testing.T) {
	local := &stubEmbedder{dimension: 4, vec: []float32{1, 0, 0, 0}}
	chain := testChain(t, Config{Local: local})

	chain.Embed(context.Background(), "hello world")
	chain.Embed(context.Background(), "hello   world\n")

	assert.Equal(t, 1, local.calls, "whitespace variants must hit the same cache entry")
	assert.Equal(t, 1, chain.CacheLen())

	chain.ClearCache()
	assert.Equal(t, 0, chain.CacheLen())

	chain.Embed(context.Background(), "hello world")
	assert.Equal(t, 2, local.calls)
}

func TestChainNormalizationCapsLength(t *testing.T) {
	chain := testChain(t, Config{MaxChars: 50})

	long := strings.Repeat("a", 200)
	assert.Len(t, chain.normalize(long), 50)
}

func TestNormalizationKeepsRuneBoundaries(t *testing.T) {
	chain := testChain(t, Config{MaxChars: 10})

	norm := chain.normalize(strings.Repeat("héllo ", 40))
	assert.True(t, utf8.ValidString(norm))
	assert.Equal(t, 10, utf8.RuneCountInString(norm))

	key := cacheKey(strings.Repeat("日本語", 50))
	assert.True(t, utf8.ValidString(key))
}

func TestCacheKeyDisambiguatesByLength(t *testing.T) {
	long := strings.Repeat("x", 150)
	longer := strings.Repeat("x", 180)

	assert.NotEqual(t, cacheKey(long), cacheKey(longer),
		"texts sharing a 100-char prefix but differing in length must not collide")
	assert.Equal(t, cacheKey(long), cacheKey(long))
}

func TestChainRequiresNetwork(t *testing.T) {
	remoteOnly := testChain(t, Config{Remote: &stubEmbedder{dimension: 4}})
	assert.True(t, remoteOnly.RequiresNetwork())

	withLocal := testChain(t, Config{
		Local:  &stubEmbedder{dimension: 4},
		Remote: &stubEmbedder{dimension: 4},
	})
	assert.False(t, withLocal.RequiresNetwork())

	fallbackOnly := testChain(t, Config{})
	assert.False(t, fallbackOnly.RequiresNetwork())
}

func TestStaticOracle(t *testing.T) {
	assert.True(t, StaticOracle(true).IsOnline())
	assert.False(t, StaticOracle(false).IsOnline())
}

func TestDialOracleCachesResult(t *testing.T) {
	o := &DialOracle{
		address:     "127.0.0.1:1", // nothing listens here
		dialTimeout: 50 * time.Millisecond,
		ttl:         time.Hour,
	}

	assert.False(t, o.IsOnline())
	checked := o.checkedAt
	assert.False(t, o.IsOnline())
	assert.Equal(t, checked, o.checkedAt, "second call within ttl must not re-probe")
}
