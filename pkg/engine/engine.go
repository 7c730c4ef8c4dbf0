// Package engine wires the context engine together: store, embedding chain,
// indexing pipeline, assembler, and conversation memory behind one facade.
// Every service is constructed explicitly at startup; there are no
// package-level singletons.
package engine

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/fajrul/kontext/internal/config"
	"github.com/fajrul/kontext/pkg/assembler"
	"github.com/fajrul/kontext/pkg/embed"
	"github.com/fajrul/kontext/pkg/extract"
	"github.com/fajrul/kontext/pkg/indexer"
	"github.com/fajrul/kontext/pkg/memory"
	"github.com/fajrul/kontext/pkg/store"
)

// Host is the editor-side collaborator. The engine works without one; only
// the live-editor context sources go dark.
type Host = assembler.Host

// NetworkOracle reports whether network-bound providers are reachable.
type NetworkOracle = embed.NetworkOracle

// Config holds engine configuration
type Config struct {
	Config    *config.Config
	Host      Host              // optional
	Oracle    NetworkOracle     // optional, defaults to a dial probe
	Extractor extract.Extractor // optional, defaults to the heuristic
	Logger    zerolog.Logger
}

// Engine is the orchestrator facade over all services.
type Engine struct {
	cfg       *config.Config
	logger    zerolog.Logger
	store     *store.Store
	chain     *embed.Chain
	extractor extract.Extractor
	memory    *memory.Manager
	assembler *assembler.Assembler
	indexer   *indexer.Indexer
}

// New builds and wires all services. Construction order follows the
// dependency graph; Close tears down in reverse.
func New(cfg Config) (*Engine, error) {
	if cfg.Config == nil {
		return nil, fmt.Errorf("config is required")
	}
	if err := cfg.Config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	c := cfg.Config
	logger := cfg.Logger

	if cfg.Oracle == nil {
		cfg.Oracle = embed.NewDialOracle()
	}
	if cfg.Extractor == nil {
		cfg.Extractor = extract.NewHeuristic()
	}

	if c.DataDir != "" {
		if err := os.MkdirAll(c.DataDir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}

	st, err := store.New(store.Config{
		DBPath:    filepath.Join(c.DataDir, "kontext.db"),
		Dimension: c.Embedding.Dimension,
		Logger:    logger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	chain, err := buildChain(c, cfg.Oracle, logger)
	if err != nil {
		st.Close()
		return nil, err
	}

	mem, err := memory.New(memory.Config{
		Store:               st,
		Embedder:            chain,
		Logger:              logger,
		MaxMessages:         c.Memory.MaxMessages,
		MaxTokens:           c.Memory.MaxTokens,
		MemoryLength:        c.Memory.MemoryLength,
		Strategy:            c.Memory.Strategy,
		ImportanceThreshold: c.Memory.ImportanceThreshold,
	})
	if err != nil {
		chain.Close()
		st.Close()
		return nil, fmt.Errorf("failed to create memory manager: %w", err)
	}

	asm, err := assembler.New(assembler.Config{
		Host:             cfg.Host,
		Searcher:         st,
		Embedder:         chain,
		History:          mem,
		Logger:           logger,
		DefaultMaxTokens: c.Context.DefaultMaxTokens,
		MaxOpenFiles:     c.Context.MaxOpenFiles,
		MaxSearchResults: c.Context.MaxSearchResults,
	})
	if err != nil {
		chain.Close()
		st.Close()
		return nil, fmt.Errorf("failed to create assembler: %w", err)
	}

	idx, err := indexer.New(indexer.Config{
		Workspace:        c.WorkspacePath,
		Store:            st,
		Embedder:         chain,
		Extractor:        cfg.Extractor,
		Oracle:           cfg.Oracle,
		Logger:           logger,
		MaxFileSizeBytes: c.Indexing.MaxFileSizeBytes,
		BatchSize:        c.Indexing.BatchSize,
		BatchDelay:       time.Duration(c.Indexing.BatchDelayMs) * time.Millisecond,
		InterBatchDelay:  time.Duration(c.Indexing.InterBatchMs) * time.Millisecond,
		WarmupDelay:      time.Duration(c.Indexing.WarmupDelayMs) * time.Millisecond,
		SweepBatchSize:   c.Indexing.SweepBatchSize,
		SweepCron:        c.Indexing.SweepCron,
		ExcludedDirs:     c.Indexing.ExcludedDirs,
		ExcludedExts:     c.Indexing.ExcludedExts,
	})
	if err != nil {
		chain.Close()
		st.Close()
		return nil, fmt.Errorf("failed to create indexer: %w", err)
	}

	logger.Info().Str("workspace", c.WorkspacePath).Str("data_dir", c.DataDir).
		Int("dimension", c.Embedding.Dimension).Msg("Context engine ready")

	return &Engine{
		cfg:       c,
		logger:    logger,
		store:     st,
		chain:     chain,
		extractor: cfg.Extractor,
		memory:    mem,
		assembler: asm,
		indexer:   idx,
	}, nil
}

// buildChain assembles the embedding tiers the configuration allows. A tier
// that fails to load degrades to the next one instead of failing startup.
func buildChain(c *config.Config, oracle NetworkOracle, logger zerolog.Logger) (*embed.Chain, error) {
	var local embed.Embedder
	if c.Embedding.LocalEnabled {
		l, err := embed.NewLocal(embed.LocalConfig{CacheDir: c.Embedding.LocalCacheDir})
		switch {
		case err != nil:
			logger.Warn().Err(err).Msg("Local embedding model unavailable")
		case l.Dimension() != c.Embedding.Dimension:
			logger.Warn().Int("model", l.Dimension()).Int("configured", c.Embedding.Dimension).
				Msg("Local model dimension mismatch, tier disabled")
			l.Close()
		default:
			local = l
		}
	}

	var remote embed.Embedder
	if c.Embedding.OpenAIAPIKey != "" {
		r, err := embed.NewRemote(embed.RemoteConfig{
			APIKey:    c.Embedding.OpenAIAPIKey,
			Model:     c.Embedding.OpenAIModel,
			Dimension: c.Embedding.Dimension,
		})
		if err != nil {
			logger.Warn().Err(err).Msg("Remote embedding provider unavailable")
		} else {
			remote = r
		}
	}

	chain, err := embed.NewChain(embed.Config{
		Dimension: c.Embedding.Dimension,
		Local:     local,
		Remote:    remote,
		Oracle:    oracle,
		CacheSize: c.Embedding.CacheSize,
		Timeout:   time.Duration(c.Embedding.TimeoutSeconds) * time.Second,
		MaxChars:  c.Embedding.MaxChars,
		Logger:    logger,
	})
	if err != nil {
		if local != nil {
			local.Close()
		}
		return nil, fmt.Errorf("failed to create embedding chain: %w", err)
	}
	return chain, nil
}

// AssembleContext collects, scores, and budget-fits context for a query.
func (e *Engine) AssembleContext(ctx context.Context, req assembler.Request) assembler.Result {
	return e.assembler.Assemble(ctx, req)
}

// AddMessage appends a conversation message, pruning as configured.
func (e *Engine) AddMessage(conversationID, role, content string) (string, error) {
	return e.memory.AddMessage(conversationID, role, content)
}

// GetConversation returns a stored conversation.
func (e *Engine) GetConversation(id string) (store.Conversation, bool) {
	return e.memory.GetConversation(id)
}

// QueueFile enqueues a path for background indexing.
func (e *Engine) QueueFile(path string, priority bool) {
	e.indexer.QueueFile(path, priority)
}

// ForceIndexFile indexes a path synchronously.
func (e *Engine) ForceIndexFile(ctx context.Context, path string) error {
	return e.indexer.ForceIndexFile(ctx, path)
}

// ReindexWorkspace schedules the background workspace sweep.
func (e *Engine) ReindexWorkspace() {
	e.indexer.IndexWorkspaceInBackground()
}

// WatchWorkspace starts reacting to file changes under the workspace.
func (e *Engine) WatchWorkspace() error {
	return e.indexer.Watch()
}

// TrackUsage records a user behavior pattern, incrementing its frequency on
// repeats.
func (e *Engine) TrackUsage(patternType, pattern, example string) bool {
	sum := sha256.Sum256([]byte(patternType + ":" + pattern))
	return e.store.TrackUsage(store.UsagePattern{
		ID:       hex.EncodeToString(sum[:]),
		Type:     patternType,
		Pattern:  pattern,
		Examples: example,
	})
}

// Status summarizes engine state for diagnostics.
type Status struct {
	Items         int `json:"items"`
	Entities      int `json:"entities"`
	Conversations int `json:"conversations"`
	Vectors       int `json:"vectors"`
	QueueLen      int `json:"queue_len"`
	CacheEntries  int `json:"cache_entries"`
}

// Status reports current counts across the store and pipeline.
func (e *Engine) Status() Status {
	items, entities, conversations := e.store.Counts()
	return Status{
		Items:         items,
		Entities:      entities,
		Conversations: conversations,
		Vectors:       len(e.store.VectorIDs()),
		QueueLen:      e.indexer.QueueLen(),
		CacheEntries:  e.chain.CacheLen(),
	}
}

// Close tears services down in reverse construction order.
func (e *Engine) Close() error {
	e.indexer.Dispose()

	var firstErr error
	if err := e.chain.Close(); err != nil {
		firstErr = err
	}
	if err := e.store.Close(); err != nil && firstErr == nil {
		firstErr = err
	}

	e.logger.Info().Msg("Context engine closed")
	return firstErr
}
