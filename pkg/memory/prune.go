package memory

import (
	"sort"

	"github.com/fajrul/kontext/internal/observability"
	"github.com/fajrul/kontext/pkg/store"
)

// pruneLocked drops low-value non-system messages once the conversation
// exceeds its message or token caps. System messages are always retained and
// retained messages keep their original order. Caller holds the lock.
func (m *Manager) pruneLocked(conv *store.Conversation) {
	overCount := len(conv.Messages) > m.maxMessages
	overTokens := estimateMessageTokens(conv.Messages) > m.maxTokens
	if !overCount && !overTokens {
		return
	}

	var rest []store.ConversationMessage
	for _, msg := range conv.Messages {
		if msg.Role == "system" {
			continue
		}
		msg.Importance = Importance(msg.Content)
		rest = append(rest, msg)
	}

	var kept map[string]struct{}
	switch m.strategy {
	case StrategyLRU:
		kept = pruneLRU(rest, m.keepCount)
	case StrategyImportance:
		kept = pruneImportance(rest, m.keepCount, m.importanceThreshold)
	default:
		kept = pruneHybrid(rest, m.keepCount)
	}

	before := len(conv.Messages)
	retained := conv.Messages[:0]
	for _, msg := range conv.Messages {
		if msg.Role == "system" {
			retained = append(retained, msg)
			continue
		}
		if _, ok := kept[msg.ID]; ok {
			retained = append(retained, msg)
		}
	}
	conv.Messages = retained

	dropped := before - len(conv.Messages)
	if dropped > 0 {
		observability.RecordMessagesPruned(m.strategy, dropped)
		m.logger.Debug().Str("conversation", conv.ID).Str("strategy", m.strategy).
			Int("dropped", dropped).Msg("Pruned conversation")
	}
}

// pruneLRU keeps the most recent keepCount messages.
func pruneLRU(rest []store.ConversationMessage, keepCount int) map[string]struct{} {
	kept := make(map[string]struct{}, keepCount)
	start := len(rest) - keepCount
	if start < 0 {
		start = 0
	}
	for _, msg := range rest[start:] {
		kept[msg.ID] = struct{}{}
	}
	return kept
}

// pruneImportance keeps everything at or above the threshold, then fills
// remaining slots with the next-most-important messages below it.
func pruneImportance(rest []store.ConversationMessage, keepCount int, threshold float64) map[string]struct{} {
	kept := make(map[string]struct{})
	var below []int
	for i, msg := range rest {
		if msg.Importance >= threshold {
			kept[msg.ID] = struct{}{}
		} else {
			below = append(below, i)
		}
	}

	sort.SliceStable(below, func(a, b int) bool {
		return rest[below[a]].Importance > rest[below[b]].Importance
	})
	for _, i := range below {
		if len(kept) >= keepCount {
			break
		}
		kept[rest[i].ID] = struct{}{}
	}

	return kept
}

// pruneHybrid unions the most recent half of keepCount with the most
// important half, deduplicates, and if still over keepCount keeps the top
// entries by combined score = average(normalized recency, importance).
func pruneHybrid(rest []store.ConversationMessage, keepCount int) map[string]struct{} {
	kept := make(map[string]struct{}, keepCount)
	if len(rest) <= keepCount {
		for _, msg := range rest {
			kept[msg.ID] = struct{}{}
		}
		return kept
	}

	half := keepCount / 2

	for i := len(rest) - half; i < len(rest); i++ {
		kept[rest[i].ID] = struct{}{}
	}

	byImportance := make([]int, len(rest))
	for i := range byImportance {
		byImportance[i] = i
	}
	sort.SliceStable(byImportance, func(a, b int) bool {
		return rest[byImportance[a]].Importance > rest[byImportance[b]].Importance
	})
	for _, i := range byImportance[:half] {
		kept[rest[i].ID] = struct{}{}
	}

	if len(kept) <= keepCount {
		return kept
	}

	denom := float64(len(rest) - 1)
	type scored struct {
		i        int
		combined float64
	}
	var picks []scored
	for i, msg := range rest {
		if _, ok := kept[msg.ID]; !ok {
			continue
		}
		recency := float64(i) / denom
		picks = append(picks, scored{i: i, combined: (recency + msg.Importance) / 2})
	}
	sort.SliceStable(picks, func(a, b int) bool {
		if picks[a].combined != picks[b].combined {
			return picks[a].combined > picks[b].combined
		}
		return picks[a].i > picks[b].i
	})

	kept = make(map[string]struct{}, keepCount)
	for _, p := range picks[:keepCount] {
		kept[rest[p.i].ID] = struct{}{}
	}
	return kept
}

func sortIndexes(idx []int, less func(a, b int) bool) {
	sort.SliceStable(idx, func(i, j int) bool {
		return less(idx[i], idx[j])
	})
}
