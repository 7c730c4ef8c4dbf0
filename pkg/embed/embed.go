// Package embed turns text into fixed-dimension vectors through an ordered
// provider chain: local model, remote API, deterministic fallback. The chain
// never fails outward; every degraded path still yields a usable vector.
package embed

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/fajrul/kontext/internal/observability"
	"github.com/rs/zerolog"
)

// Embedder generates vector embeddings from text
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimension() int
	Close() error
}

// NetworkOracle reports whether network-bound providers are worth trying.
type NetworkOracle interface {
	IsOnline() bool
}

// Chain tries a local model, then a remote API, then the deterministic
// fallback, wrapping all tiers with a bounded insertion-order LRU cache.
type Chain struct {
	local    Embedder
	remote   Embedder
	fallback *Deterministic
	oracle   NetworkOracle
	cache    *lruCache
	logger   zerolog.Logger
	timeout  time.Duration
	maxChars int
}

// Config holds chain configuration
type Config struct {
	Dimension int
	Local     Embedder // optional
	Remote    Embedder // optional
	Oracle    NetworkOracle
	CacheSize int
	Timeout   time.Duration
	MaxChars  int
	Logger    zerolog.Logger
}

// NewChain creates a new provider chain
func NewChain(cfg Config) (*Chain, error) {
	observability.EnsureRegistered()

	if cfg.Dimension <= 0 {
		return nil, fmt.Errorf("embedding dimension must be positive")
	}
	if cfg.Oracle == nil {
		return nil, fmt.Errorf("network oracle is required")
	}
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = 1000
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.MaxChars <= 0 {
		cfg.MaxChars = 32000
	}

	if cfg.Local != nil && cfg.Local.Dimension() != cfg.Dimension {
		return nil, fmt.Errorf("local embedder dimension %d does not match chain dimension %d",
			cfg.Local.Dimension(), cfg.Dimension)
	}
	if cfg.Remote != nil && cfg.Remote.Dimension() != cfg.Dimension {
		return nil, fmt.Errorf("remote embedder dimension %d does not match chain dimension %d",
			cfg.Remote.Dimension(), cfg.Dimension)
	}

	return &Chain{
		local:    cfg.Local,
		remote:   cfg.Remote,
		fallback: NewDeterministic(cfg.Dimension),
		oracle:   cfg.Oracle,
		cache:    newLRUCache(cfg.CacheSize),
		logger:   cfg.Logger,
		timeout:  cfg.Timeout,
		maxChars: cfg.MaxChars,
	}, nil
}

// Dimension returns the fixed output dimension shared by all tiers.
func (c *Chain) Dimension() int {
	return c.fallback.Dimension()
}

// RequiresNetwork reports whether generating a non-degraded embedding
// needs network access.
func (c *Chain) RequiresNetwork() bool {
	return c.local == nil && c.remote != nil
}

// Embed generates an embedding for the text. It always returns a vector:
// tier failures funnel into the deterministic fallback.
func (c *Chain) Embed(ctx context.Context, text string) []float32 {
	norm := c.normalize(text)
	key := cacheKey(norm)

	if vec, ok := c.cache.Get(key); ok {
		observability.RecordEmbeddingCacheHit()
		return vec
	}
	observability.RecordEmbeddingCacheMiss()

	vec := c.generate(ctx, norm)
	c.cache.Put(key, vec)
	observability.SetEmbeddingCacheEntries(c.cache.Len())

	return vec
}

func (c *Chain) generate(ctx context.Context, norm string) []float32 {
	if c.local != nil {
		start := time.Now()
		tierCtx, cancel := context.WithTimeout(ctx, c.timeout)
		vec, err := c.local.Embed(tierCtx, norm)
		cancel()
		if err == nil && len(vec) == c.Dimension() {
			observability.RecordEmbedding("local", time.Since(start))
			return vec
		}
		c.logger.Warn().Err(err).Msg("Local embedding failed, trying next tier")
	}

	if c.remote != nil && c.oracle.IsOnline() {
		start := time.Now()
		tierCtx, cancel := context.WithTimeout(ctx, c.timeout)
		vec, err := c.remote.Embed(tierCtx, norm)
		cancel()
		if err == nil && len(vec) == c.Dimension() {
			observability.RecordEmbedding("remote", time.Since(start))
			return vec
		}
		c.logger.Warn().Err(err).Msg("Remote embedding failed, using deterministic fallback")
	}

	start := time.Now()
	vec, _ := c.fallback.Embed(ctx, norm)
	observability.RecordEmbedding("fallback", time.Since(start))
	return vec
}

// ClearCache empties the embedding cache.
func (c *Chain) ClearCache() {
	c.cache.Clear()
	observability.SetEmbeddingCacheEntries(0)
}

// CacheLen returns the current cache entry count.
func (c *Chain) CacheLen() int {
	return c.cache.Len()
}

// Close tears down the underlying providers.
func (c *Chain) Close() error {
	var firstErr error
	if c.local != nil {
		if err := c.local.Close(); err != nil {
			firstErr = err
		}
	}
	if c.remote != nil {
		if err := c.remote.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// normalize collapses whitespace, trims, and hard-truncates the input so the
// cache key and embedding cost stay bounded. Truncation lands on a rune
// boundary so multi-byte input stays valid UTF-8.
func (c *Chain) normalize(text string) string {
	norm := strings.Join(strings.Fields(text), " ")
	if len(norm) > c.maxChars {
		norm = truncateRunes(norm, c.maxChars)
	}
	return norm
}

func cacheKey(norm string) string {
	prefix := norm
	if len(prefix) > 100 {
		prefix = truncateRunes(prefix, 100)
	}
	return fmt.Sprintf("%s:%d", prefix, len(norm))
}

func truncateRunes(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}
