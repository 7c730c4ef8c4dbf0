// Package indexer discovers workspace files and turns them into stored
// context items, code entities, and vectors. Work arrives through a
// debounced, path-deduplicating queue and drains in small concurrent batches
// so bulk reindexing never starves the host.
package indexer

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/fajrul/kontext/internal/observability"
	"github.com/fajrul/kontext/pkg/extract"
	"github.com/fajrul/kontext/pkg/store"
)

// Storage is the slice of the persistent store the pipeline writes to.
type Storage interface {
	SaveContextItem(item store.ContextItem) bool
	SaveCodeEntity(entity store.CodeEntity) bool
	AllocateVectorID(meta store.Meta) (int64, bool)
	SaveVector(id int64, vector []float32, meta store.Meta) bool
	HasItem(id string) bool
	DeleteFileArtifacts(itemID, path string) bool
}

// Embedder generates vectors for indexed content.
type Embedder interface {
	Embed(ctx context.Context, text string) []float32
	RequiresNetwork() bool
}

// NetworkOracle reports whether network-bound embedding is worth attempting.
type NetworkOracle interface {
	IsOnline() bool
}

// Config holds indexer configuration
type Config struct {
	Workspace string
	Store     Storage
	Embedder  Embedder
	Extractor extract.Extractor
	Oracle    NetworkOracle // optional; nil means always permitted
	Logger    zerolog.Logger

	MaxFileSizeBytes int64
	BatchSize        int
	BatchDelay       time.Duration
	InterBatchDelay  time.Duration
	WarmupDelay      time.Duration
	SweepBatchSize   int
	SweepCron        string
	ExcludedDirs     []string
	ExcludedExts     []string
}

// Indexer is the background indexing pipeline.
type Indexer struct {
	workspace string
	storage   Storage
	embedder  Embedder
	extractor extract.Extractor
	oracle    NetworkOracle
	logger    zerolog.Logger

	maxFileSize  int64
	batchSize    int
	batchDelay   time.Duration
	interBatch   time.Duration
	warmupDelay  time.Duration
	sweepBatch   int
	sweepCron    string
	excludedDirs []string
	excludedExts []string

	mu       sync.Mutex
	pending  map[string]struct{}
	order    []string
	timer    *time.Timer
	draining bool
	closed   bool

	done     chan struct{}
	doneOnce sync.Once
	wg       sync.WaitGroup
	cron     *cron.Cron
	watcher  *fsnotify.Watcher
}

// New creates a new indexing pipeline
func New(cfg Config) (*Indexer, error) {
	observability.EnsureRegistered()

	if cfg.Store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if cfg.Extractor == nil {
		return nil, fmt.Errorf("extractor is required")
	}
	if cfg.MaxFileSizeBytes <= 0 {
		cfg.MaxFileSizeBytes = 500 * 1024
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 3
	}
	if cfg.BatchDelay <= 0 {
		cfg.BatchDelay = time.Second
	}
	if cfg.InterBatchDelay <= 0 {
		cfg.InterBatchDelay = 100 * time.Millisecond
	}
	if cfg.WarmupDelay <= 0 {
		cfg.WarmupDelay = 5 * time.Second
	}
	if cfg.SweepBatchSize <= 0 {
		cfg.SweepBatchSize = 50
	}
	if len(cfg.ExcludedDirs) == 0 {
		cfg.ExcludedDirs = defaultExcludedDirs
	}
	if len(cfg.ExcludedExts) == 0 {
		cfg.ExcludedExts = defaultExcludedExts
	}

	return &Indexer{
		workspace:    cfg.Workspace,
		storage:      cfg.Store,
		embedder:     cfg.Embedder,
		extractor:    cfg.Extractor,
		oracle:       cfg.Oracle,
		logger:       cfg.Logger,
		maxFileSize:  cfg.MaxFileSizeBytes,
		batchSize:    cfg.BatchSize,
		batchDelay:   cfg.BatchDelay,
		interBatch:   cfg.InterBatchDelay,
		warmupDelay:  cfg.WarmupDelay,
		sweepBatch:   cfg.SweepBatchSize,
		sweepCron:    cfg.SweepCron,
		excludedDirs: cfg.ExcludedDirs,
		excludedExts: cfg.ExcludedExts,
		pending:      make(map[string]struct{}),
		done:         make(chan struct{}),
	}, nil
}

// QueueFile enqueues a path for indexing. Priority cancels the pending
// debounce and drains immediately; otherwise the debounce timer restarts so
// rapid edits coalesce into one batch.
func (idx *Indexer) QueueFile(path string, priority bool) {
	if idx.excluded(path) {
		return
	}

	idx.mu.Lock()
	if idx.closed {
		idx.mu.Unlock()
		return
	}

	if _, ok := idx.pending[path]; !ok {
		idx.pending[path] = struct{}{}
		idx.order = append(idx.order, path)
	}
	observability.SetIndexQueueSize(len(idx.pending))

	if priority {
		if idx.timer != nil {
			idx.timer.Stop()
			idx.timer = nil
		}
		start := !idx.draining
		if start {
			idx.draining = true
			idx.wg.Add(1)
		}
		idx.mu.Unlock()

		if start {
			go idx.drain()
		}
		return
	}

	if !idx.draining {
		if idx.timer != nil {
			idx.timer.Stop()
		}
		idx.timer = time.AfterFunc(idx.batchDelay, idx.onDebounce)
	}
	idx.mu.Unlock()
}

func (idx *Indexer) onDebounce() {
	idx.mu.Lock()
	idx.timer = nil
	if idx.closed || idx.draining || len(idx.order) == 0 {
		idx.mu.Unlock()
		return
	}
	idx.draining = true
	idx.wg.Add(1)
	idx.mu.Unlock()

	go idx.drain()
}

// drain processes batches until the queue is empty. Paths leave the pending
// set before their file is indexed, so a mid-flight re-enqueue of the same
// path lands in a later batch instead of being lost.
func (idx *Indexer) drain() {
	defer idx.wg.Done()

	for {
		idx.mu.Lock()
		if idx.closed || len(idx.order) == 0 {
			idx.draining = false
			observability.SetIndexQueueSize(len(idx.pending))
			idx.mu.Unlock()
			return
		}

		n := idx.batchSize
		if n > len(idx.order) {
			n = len(idx.order)
		}
		batch := make([]string, n)
		copy(batch, idx.order[:n])
		idx.order = append(idx.order[:0:0], idx.order[n:]...)
		for _, p := range batch {
			delete(idx.pending, p)
		}
		observability.SetIndexQueueSize(len(idx.pending))
		idx.mu.Unlock()

		var wg sync.WaitGroup
		for _, path := range batch {
			wg.Add(1)
			go func(p string) {
				defer wg.Done()
				if err := idx.indexFile(context.Background(), p); err != nil {
					idx.logger.Warn().Err(err).Str("path", p).Msg("Failed to index file")
				}
			}(path)
		}
		wg.Wait()

		idx.mu.Lock()
		more := len(idx.order) > 0 && !idx.closed
		idx.mu.Unlock()
		if more {
			select {
			case <-time.After(idx.interBatch):
			case <-idx.done:
			}
		}
	}
}

// ForceIndexFile indexes a path synchronously, bypassing queue and filters
// other than the hard exclusion list.
func (idx *Indexer) ForceIndexFile(ctx context.Context, path string) error {
	if idx.excluded(path) {
		return fmt.Errorf("path is excluded from indexing: %s", path)
	}
	return idx.indexFile(ctx, path)
}

// indexFile runs the per-file pipeline: item, then entities, then vectors.
// Any failure is confined to this file.
func (idx *Indexer) indexFile(ctx context.Context, path string) error {
	start := time.Now()

	info, err := os.Stat(path)
	if err != nil {
		observability.RecordFileIndexed("error", time.Since(start))
		return fmt.Errorf("failed to stat file: %w", err)
	}
	if info.IsDir() {
		return nil
	}
	if info.Size() > idx.maxFileSize {
		idx.logger.Debug().Str("path", path).Int64("size", info.Size()).
			Msg("Skipping oversized file")
		observability.RecordFileIndexed("skipped", time.Since(start))
		return nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		observability.RecordFileIndexed("error", time.Since(start))
		return fmt.Errorf("failed to read file: %w", err)
	}
	content := string(raw)

	now := time.Now()
	id := fileID(path)
	lang := languageFor(path)
	fileMeta := store.FileMeta{ItemID: id, Path: path, Language: lang}

	embedOK := idx.embeddingPermitted()

	item := store.ContextItem{
		ID:              id,
		Type:            store.ItemTypeFile,
		Name:            filepath.Base(path),
		Path:            path,
		Language:        lang,
		Content:         content,
		Size:            info.Size(),
		LastAccessed:    now,
		ImportanceScore: importanceScore(path, info.ModTime(), now),
		Metadata:        fileMeta,
	}
	if embedOK {
		if vid, ok := idx.storage.AllocateVectorID(fileMeta); ok {
			item.VectorID = &vid
		}
	}
	if !idx.storage.SaveContextItem(item) {
		observability.RecordFileIndexed("error", time.Since(start))
		return fmt.Errorf("failed to persist context item for %s", path)
	}

	entities := idx.extractEntities(path, content)
	observability.RecordEntitiesSeen(len(entities))

	for i := range entities {
		if embedOK {
			meta := store.EntityMeta{
				EntityID: entities[i].ID,
				Name:     entities[i].Name,
				FilePath: path,
			}
			if vid, ok := idx.storage.AllocateVectorID(meta); ok {
				entities[i].VectorID = &vid
			}
		}
		if !idx.storage.SaveCodeEntity(entities[i]) {
			idx.logger.Warn().Str("entity", entities[i].Name).Str("path", path).
				Msg("Failed to persist code entity")
		}
	}

	if embedOK {
		if item.VectorID != nil {
			vec := idx.embedder.Embed(ctx, content)
			if !idx.storage.SaveVector(*item.VectorID, vec, fileMeta) {
				idx.logger.Warn().Str("path", path).Msg("Failed to persist file vector")
			}
		}
		for _, e := range entities {
			if e.VectorID == nil {
				continue
			}
			meta := store.EntityMeta{EntityID: e.ID, Name: e.Name, FilePath: path}
			vec := idx.embedder.Embed(ctx, e.Name+" - "+e.Code)
			if !idx.storage.SaveVector(*e.VectorID, vec, meta) {
				idx.logger.Warn().Str("entity", e.Name).Str("path", path).
					Msg("Failed to persist entity vector")
			}
		}
	}

	observability.RecordFileIndexed("ok", time.Since(start))
	idx.logger.Debug().Str("path", path).Int("entities", len(entities)).
		Dur("took", time.Since(start)).Msg("Indexed file")
	return nil
}

// extractEntities runs the syntax collaborator. Unparsable content degrades
// to zero entities rather than failing the file.
func (idx *Indexer) extractEntities(path, content string) []store.CodeEntity {
	ext, err := idx.extractor.Extract(content)
	if err != nil {
		idx.logger.Warn().Err(err).Str("path", path).Msg("Syntax extraction failed")
		return nil
	}

	entities := make([]store.CodeEntity, 0, len(ext.Functions)+len(ext.Classes))
	for _, fn := range ext.Functions {
		entities = append(entities, store.CodeEntity{
			ID:        entityID(path, store.EntityKindFunction, fn.Name),
			Name:      fn.Name,
			Type:      store.EntityKindFunction,
			FilePath:  path,
			Code:      fn.Code,
			FirstSeen: int64(fn.StartLine),
			LastSeen:  int64(fn.EndLine),
			Frequency: 1,
		})
	}

	classNames := make([]string, 0, len(ext.Classes))
	for name := range ext.Classes {
		classNames = append(classNames, name)
	}
	sort.Strings(classNames)
	for _, name := range classNames {
		cl := ext.Classes[name]
		entities = append(entities, store.CodeEntity{
			ID:        entityID(path, store.EntityKindClass, name),
			Name:      name,
			Type:      store.EntityKindClass,
			FilePath:  path,
			Code:      cl.Code,
			FirstSeen: int64(cl.StartLine),
			LastSeen:  int64(cl.EndLine),
			Frequency: 1,
		})
	}

	return entities
}

func (idx *Indexer) embeddingPermitted() bool {
	if idx.embedder == nil {
		return false
	}
	if idx.embedder.RequiresNetwork() && idx.oracle != nil && !idx.oracle.IsOnline() {
		return false
	}
	return true
}

// IndexWorkspaceInBackground schedules the startup sweep after a warm-up
// delay, plus an optional periodic re-sweep.
func (idx *Indexer) IndexWorkspaceInBackground() {
	idx.wg.Add(1)
	go func() {
		defer idx.wg.Done()
		select {
		case <-time.After(idx.warmupDelay):
		case <-idx.done:
			return
		}
		idx.sweepWorkspace()
	}()

	if idx.sweepCron == "" {
		return
	}
	c := cron.New()
	if _, err := c.AddFunc(idx.sweepCron, idx.sweepWorkspace); err != nil {
		idx.logger.Warn().Err(err).Str("cron", idx.sweepCron).
			Msg("Invalid sweep schedule, periodic re-sweep disabled")
		return
	}
	c.Start()
	idx.cron = c
}

// sweepWorkspace enqueues every matching file not yet present in the store,
// pausing between batches to keep the queue from flooding.
func (idx *Indexer) sweepWorkspace() {
	if idx.workspace == "" {
		return
	}

	queued := 0
	err := filepath.WalkDir(idx.workspace, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		select {
		case <-idx.done:
			return filepath.SkipAll
		default:
		}

		if d.IsDir() {
			for _, dir := range idx.excludedDirs {
				if d.Name() == dir {
					return filepath.SkipDir
				}
			}
			return nil
		}

		if idx.excluded(path) || idx.storage.HasItem(fileID(path)) {
			return nil
		}

		idx.QueueFile(path, false)
		queued++
		if queued%idx.sweepBatch == 0 {
			select {
			case <-time.After(idx.interBatch):
			case <-idx.done:
				return filepath.SkipAll
			}
		}
		return nil
	})
	if err != nil {
		idx.logger.Warn().Err(err).Msg("Workspace sweep aborted")
		return
	}

	idx.logger.Info().Int("queued", queued).Str("workspace", idx.workspace).
		Msg("Workspace sweep complete")
}

// Dispose stops timers, the watcher, and the cron schedule, then waits for
// in-flight batches to finish.
func (idx *Indexer) Dispose() {
	idx.mu.Lock()
	idx.closed = true
	if idx.timer != nil {
		idx.timer.Stop()
		idx.timer = nil
	}
	watcher := idx.watcher
	idx.mu.Unlock()

	idx.doneOnce.Do(func() { close(idx.done) })

	if idx.cron != nil {
		idx.cron.Stop()
	}
	if watcher != nil {
		watcher.Close()
	}

	idx.wg.Wait()
}

// QueueLen reports the current pending queue size.
func (idx *Indexer) QueueLen() int {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	return len(idx.pending)
}
