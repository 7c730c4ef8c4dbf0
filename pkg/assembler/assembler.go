// Package assembler selects and budget-fits context items for a model
// request. Selection is greedy by relevance: the highest-scoring items are
// taken in order until the token budget runs out, with no backtracking.
package assembler

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/fajrul/kontext/internal/observability"
	"github.com/fajrul/kontext/pkg/embed"
	"github.com/fajrul/kontext/pkg/store"
)

// Source identifies one provider of candidate context items.
type Source string

const (
	SourceActiveFile   Source = "active_file"
	SourceOpenFiles    Source = "open_files"
	SourceWorkspace    Source = "workspace"
	SourceConversation Source = "conversation"
	SourceProject      Source = "project_info"
)

// Relevance assigned per source; workspace hits decay by rank instead.
const (
	relevanceActiveFile   = 1.0
	relevanceOpenFile     = 0.8
	relevanceConversation = 0.7
	relevanceProject      = 0.5
	relevanceUnscored     = 0.3

	workspaceRankBase  = 0.9
	workspaceRankDecay = 0.05
	workspaceRankFloor = 0.1
)

// Host is the editor-side collaborator supplying live editor state.
type Host interface {
	ActiveFile() (store.ContextItem, bool)
	OpenFiles(limit int) []store.ContextItem
	ProjectInfo() (store.ContextItem, bool)
}

// Searcher is the similarity-search slice of the persistent store.
type Searcher interface {
	FindSimilarVectors(query []float32, limit int) []store.VectorMatch
}

// Embedder generates query and item vectors for scoring.
type Embedder interface {
	Embed(ctx context.Context, text string) []float32
}

// HistoryProvider renders a conversation transcript fitting a token budget.
type HistoryProvider interface {
	GetConversationContext(ctx context.Context, conversationID, query string, maxTokens int) string
}

// Request describes one assembly call.
type Request struct {
	Query              string
	Sources            []Source
	MaxTokens          int
	IncludeProjectInfo bool
	ConversationID     string
}

// Result is the assembled context.
type Result struct {
	Items            []store.ContextItem
	TokenCount       int
	Truncated        bool
	AvailableSources []Source
}

// Config holds assembler configuration
type Config struct {
	Host             Host // optional
	Searcher         Searcher
	Embedder         Embedder
	History          HistoryProvider // optional
	Logger           zerolog.Logger
	DefaultMaxTokens int
	MaxOpenFiles     int
	MaxSearchResults int
}

// Assembler collects, scores, and budget-fits context items.
type Assembler struct {
	host             Host
	searcher         Searcher
	embedder         Embedder
	history          HistoryProvider
	logger           zerolog.Logger
	defaultMaxTokens int
	maxOpenFiles     int
	maxSearchResults int
}

// New creates a new context assembler
func New(cfg Config) (*Assembler, error) {
	observability.EnsureRegistered()

	if cfg.Searcher == nil {
		return nil, fmt.Errorf("searcher is required")
	}
	if cfg.Embedder == nil {
		return nil, fmt.Errorf("embedder is required")
	}
	if cfg.DefaultMaxTokens <= 0 {
		cfg.DefaultMaxTokens = 4000
	}
	if cfg.MaxOpenFiles <= 0 {
		cfg.MaxOpenFiles = 5
	}
	if cfg.MaxSearchResults <= 0 {
		cfg.MaxSearchResults = 10
	}

	return &Assembler{
		host:             cfg.Host,
		searcher:         cfg.Searcher,
		embedder:         cfg.Embedder,
		history:          cfg.History,
		logger:           cfg.Logger,
		defaultMaxTokens: cfg.DefaultMaxTokens,
		maxOpenFiles:     cfg.MaxOpenFiles,
		maxSearchResults: cfg.MaxSearchResults,
	}, nil
}

var defaultSources = []Source{
	SourceActiveFile, SourceOpenFiles, SourceWorkspace, SourceConversation,
}

// Assemble runs collection, scoring, and greedy budget fitting.
func (a *Assembler) Assemble(ctx context.Context, req Request) Result {
	start := time.Now()

	if req.MaxTokens <= 0 {
		req.MaxTokens = a.defaultMaxTokens
	}
	sources := req.Sources
	if len(sources) == 0 {
		sources = defaultSources
	}

	var candidates []store.ContextItem
	var available []Source
	for _, src := range sources {
		items := a.collect(ctx, src, req)
		if len(items) == 0 {
			continue
		}
		candidates = append(candidates, items...)
		available = append(available, src)
	}
	if req.IncludeProjectInfo {
		if items := a.collect(ctx, SourceProject, req); len(items) > 0 {
			candidates = append(candidates, items...)
			available = append(available, SourceProject)
		}
	}

	a.score(ctx, req.Query, candidates)
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Relevance > candidates[j].Relevance
	})

	result := a.fit(candidates, req.MaxTokens)
	result.AvailableSources = available

	observability.RecordAssembly(time.Since(start), result.Truncated)

	a.logger.Debug().Int("candidates", len(candidates)).Int("items", len(result.Items)).
		Int("tokens", result.TokenCount).Bool("truncated", result.Truncated).
		Msg("Assembled context")
	return result
}

func (a *Assembler) collect(ctx context.Context, src Source, req Request) []store.ContextItem {
	switch src {
	case SourceActiveFile:
		if a.host == nil {
			return nil
		}
		item, ok := a.host.ActiveFile()
		if !ok {
			return nil
		}
		item.Relevance = relevanceActiveFile
		return []store.ContextItem{item}

	case SourceOpenFiles:
		if a.host == nil {
			return nil
		}
		items := a.host.OpenFiles(a.maxOpenFiles)
		if len(items) > a.maxOpenFiles {
			items = items[:a.maxOpenFiles]
		}
		for i := range items {
			items[i].Relevance = relevanceOpenFile
		}
		return items

	case SourceWorkspace:
		return a.searchWorkspace(ctx, req.Query)

	case SourceConversation:
		if a.history == nil || req.ConversationID == "" {
			return nil
		}
		transcript := a.history.GetConversationContext(ctx, req.ConversationID, req.Query, req.MaxTokens)
		if transcript == "" {
			return nil
		}
		return []store.ContextItem{{
			ID:        "conversation:" + req.ConversationID,
			Type:      store.ItemTypeConversation,
			Name:      "Conversation history",
			Content:   transcript,
			Relevance: relevanceConversation,
		}}

	case SourceProject:
		if a.host == nil {
			return nil
		}
		item, ok := a.host.ProjectInfo()
		if !ok {
			return nil
		}
		item.Type = store.ItemTypeProjectInfo
		item.Relevance = relevanceProject
		return []store.ContextItem{item}
	}

	return nil
}

// searchWorkspace embeds the query, fetches nearest vectors, and hydrates
// them to items with rank-decayed relevance.
func (a *Assembler) searchWorkspace(ctx context.Context, query string) []store.ContextItem {
	if query == "" {
		return nil
	}

	start := time.Now()
	qvec := a.embedder.Embed(ctx, query)
	matches := a.searcher.FindSimilarVectors(qvec, a.maxSearchResults)
	observability.RecordSimilaritySearch(time.Since(start))

	items := make([]store.ContextItem, 0, len(matches))
	for rank, m := range matches {
		rel := workspaceRankBase - workspaceRankDecay*float64(rank)
		if rel < workspaceRankFloor {
			rel = workspaceRankFloor
		}

		switch {
		case m.Item != nil:
			item := *m.Item
			item.Relevance = rel
			items = append(items, item)
		case m.Entity != nil:
			items = append(items, store.ContextItem{
				ID:        m.Entity.ID,
				Type:      store.ItemTypeEntity,
				Name:      m.Entity.Name,
				Path:      m.Entity.FilePath,
				Content:   m.Entity.Code,
				Relevance: rel,
			})
		}
	}
	return items
}

// score fills in relevance for any unscored candidate by cosine similarity
// against the query embedding. A per-item failure scores 0.3 and moves on.
func (a *Assembler) score(ctx context.Context, query string, candidates []store.ContextItem) {
	var qvec []float32
	for i := range candidates {
		if candidates[i].Relevance > 0 {
			continue
		}
		if qvec == nil {
			qvec = a.embedder.Embed(ctx, query)
		}

		ivec := a.embedder.Embed(ctx, candidates[i].Name+" "+candidates[i].Content)
		sim, err := embed.Cosine(qvec, ivec)
		if err != nil {
			candidates[i].Relevance = relevanceUnscored
			continue
		}
		candidates[i].Relevance = sim
	}
}

// fit walks candidates highest-relevance first. The first overflowing item
// stops the walk; only a first item that alone exceeds the budget is
// truncated rather than dropped.
func (a *Assembler) fit(candidates []store.ContextItem, maxTokens int) Result {
	var result Result

	for _, item := range candidates {
		cost := EstimateTokens(item)
		if result.TokenCount+cost > maxTokens {
			if len(result.Items) > 0 {
				result.Truncated = true
				break
			}

			content := truncateToBudget(item, maxTokens)
			if content == "" {
				result.Truncated = true
				break
			}
			item.Content = content
			result.Items = append(result.Items, item)
			result.TokenCount += estimateContent(item, content) + itemOverhead
			result.Truncated = true
			break
		}

		result.Items = append(result.Items, item)
		result.TokenCount += cost
	}

	return result
}
