// Package memory manages conversation history: append, score, prune, and
// retrieve messages within bounded memory and token budgets.
package memory

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog"

	"github.com/fajrul/kontext/internal/observability"
	"github.com/fajrul/kontext/pkg/embed"
	"github.com/fajrul/kontext/pkg/store"
)

// Pruning strategies.
const (
	StrategyLRU        = "lru"
	StrategyImportance = "importance"
	StrategyHybrid     = "hybrid"
)

const charsPerToken = 4

// Storage is the persistence slice the manager writes through.
type Storage interface {
	SaveConversation(conv store.Conversation) bool
	LoadConversations() []store.Conversation
}

// Embedder generates vectors for relevance-weighted retrieval.
type Embedder interface {
	Embed(ctx context.Context, text string) []float32
}

// Config holds memory manager configuration
type Config struct {
	Store               Storage
	Embedder            Embedder
	Logger              zerolog.Logger
	MaxMessages         int
	MaxTokens           int
	MemoryLength        int
	Strategy            string
	ImportanceThreshold float64
}

// Manager owns the in-memory conversation set and writes through to the
// store on every mutation.
type Manager struct {
	storage             Storage
	embedder            Embedder
	logger              zerolog.Logger
	maxMessages         int
	maxTokens           int
	keepCount           int
	strategy            string
	importanceThreshold float64

	mu            sync.Mutex
	conversations map[string]*store.Conversation
}

// New creates a memory manager and loads persisted conversations.
func New(cfg Config) (*Manager, error) {
	observability.EnsureRegistered()

	if cfg.Store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if cfg.MaxMessages <= 0 {
		cfg.MaxMessages = 50
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 8000
	}
	if cfg.MemoryLength <= 0 {
		cfg.MemoryLength = 10
	}
	switch cfg.Strategy {
	case StrategyLRU, StrategyImportance, StrategyHybrid:
	case "":
		cfg.Strategy = StrategyHybrid
	default:
		return nil, fmt.Errorf("unknown pruning strategy: %s", cfg.Strategy)
	}
	if cfg.ImportanceThreshold <= 0 {
		cfg.ImportanceThreshold = 0.7
	}

	m := &Manager{
		storage:             cfg.Store,
		embedder:            cfg.Embedder,
		logger:              cfg.Logger,
		maxMessages:         cfg.MaxMessages,
		maxTokens:           cfg.MaxTokens,
		keepCount:           2 * cfg.MemoryLength,
		strategy:            cfg.Strategy,
		importanceThreshold: cfg.ImportanceThreshold,
		conversations:       make(map[string]*store.Conversation),
	}

	for _, conv := range cfg.Store.LoadConversations() {
		c := conv
		m.conversations[c.ID] = &c
	}
	observability.SetActiveConversations(len(m.conversations))

	return m, nil
}

// AddMessage appends a message, creating the conversation on first write.
// Pruning runs before the write-through when caps are exceeded.
func (m *Manager) AddMessage(conversationID, role, content string) (string, error) {
	if conversationID == "" {
		return "", fmt.Errorf("conversation id is required")
	}
	if role == "" {
		return "", fmt.Errorf("role is required")
	}

	id, err := gonanoid.New()
	if err != nil {
		id = uuid.NewString()
	}

	msg := store.ConversationMessage{
		ID:        id,
		Role:      role,
		Content:   content,
		Timestamp: time.Now(),
	}

	m.mu.Lock()
	conv, ok := m.conversations[conversationID]
	if !ok {
		conv = &store.Conversation{
			ID:        conversationID,
			Title:     titleFor(role, content),
			CreatedAt: time.Now(),
		}
		m.conversations[conversationID] = conv
		observability.SetActiveConversations(len(m.conversations))
	}

	conv.Messages = append(conv.Messages, msg)
	conv.UpdatedAt = time.Now()
	if conv.Title == "" {
		conv.Title = titleFor(role, content)
	}

	m.pruneLocked(conv)
	snapshot := *conv
	m.mu.Unlock()

	if !m.storage.SaveConversation(snapshot) {
		m.logger.Warn().Str("conversation", conversationID).
			Msg("Failed to persist conversation")
	}

	return id, nil
}

// GetConversation returns a copy of the conversation.
func (m *Manager) GetConversation(id string) (store.Conversation, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	conv, ok := m.conversations[id]
	if !ok {
		return store.Conversation{}, false
	}

	out := *conv
	out.Messages = append([]store.ConversationMessage(nil), conv.Messages...)
	return out, true
}

// Conversations returns the ids of all known conversations.
func (m *Manager) Conversations() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	ids := make([]string, 0, len(m.conversations))
	for id := range m.conversations {
		ids = append(ids, id)
	}
	return ids
}

// GetConversationContext renders a transcript of the messages most relevant
// to the query, fitting the token budget, in chronological order.
func (m *Manager) GetConversationContext(ctx context.Context, conversationID, query string, maxTokens int) string {
	conv, ok := m.GetConversation(conversationID)
	if !ok || len(conv.Messages) == 0 {
		return ""
	}
	if maxTokens <= 0 {
		maxTokens = m.maxTokens
	}

	msgs := conv.Messages
	for i := range msgs {
		msgs[i].Importance = Importance(msgs[i].Content)
		msgs[i].Relevance = msgs[i].Importance
	}

	if query != "" && m.embedder != nil {
		qvec := m.embedder.Embed(ctx, query)
		for i := range msgs {
			mvec := m.embedder.Embed(ctx, msgs[i].Content)
			sim, err := embed.Cosine(qvec, mvec)
			if err != nil {
				continue
			}
			msgs[i].Relevance = sim * msgs[i].Importance
		}
	}

	// Pick highest-relevance messages until the budget is spent, then put
	// the picks back in conversation order.
	byRelevance := make([]int, len(msgs))
	for i := range byRelevance {
		byRelevance[i] = i
	}
	sortIndexes(byRelevance, func(a, b int) bool {
		if msgs[a].Relevance != msgs[b].Relevance {
			return msgs[a].Relevance > msgs[b].Relevance
		}
		return a < b
	})

	used := 0
	picked := make([]bool, len(msgs))
	for _, i := range byRelevance {
		cost := len(msgs[i].Content)/charsPerToken + 4
		if used+cost > maxTokens {
			continue
		}
		picked[i] = true
		used += cost
	}

	var b strings.Builder
	for i := range msgs {
		if !picked[i] {
			continue
		}
		b.WriteString(msgs[i].Role)
		b.WriteString(": ")
		b.WriteString(msgs[i].Content)
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

var (
	urlRe     = regexp.MustCompile(`https?://\S+`)
	pathRe    = regexp.MustCompile(`(^|\s)[~./]?[\w.-]+(/[\w.-]+)+`)
	keywordRe = regexp.MustCompile(`(?i)\b(error|bug|fix|todo|important|remember|deadline)\b`)
)

// Importance scores a message on a 0..1 scale from cheap surface signals.
func Importance(content string) float64 {
	score := 0.5

	if strings.Contains(content, "```") {
		score += 0.2
	}
	if urlRe.MatchString(content) || pathRe.MatchString(content) || keywordRe.MatchString(content) {
		score += 0.1
	}
	if len(content) > 500 {
		score += 0.1
	} else if len(content) < 50 {
		score -= 0.1
	}
	if strings.Contains(content, "?") {
		score += 0.1
	}

	if score > 1 {
		score = 1
	}
	if score < 0 {
		score = 0
	}
	return score
}

func titleFor(role, content string) string {
	if role != "user" {
		return ""
	}
	title := strings.Join(strings.Fields(content), " ")
	if runes := []rune(title); len(runes) > 50 {
		title = string(runes[:50])
	}
	return title
}

func estimateMessageTokens(msgs []store.ConversationMessage) int {
	total := 0
	for _, m := range msgs {
		total += len(m.Content)/charsPerToken + 4
	}
	return total
}
