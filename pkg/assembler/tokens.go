package assembler

import (
	"strings"

	"github.com/fajrul/kontext/pkg/store"
)

// Token estimation constants. These are deliberately coarse: the budget is a
// guardrail against blowing the model window, not an exact tokenizer.
const (
	tokensPerCodeLine = 8
	charsPerToken     = 4
	itemOverhead      = 20
)

// EstimateTokens estimates the token cost of one context item, including the
// fixed per-item metadata overhead.
func EstimateTokens(item store.ContextItem) int {
	return estimateContent(item, item.Content) + itemOverhead
}

func estimateContent(item store.ContextItem, content string) int {
	if isCode(item) {
		lines := strings.Count(content, "\n") + 1
		return lines * tokensPerCodeLine
	}
	return len(content) / charsPerToken
}

func isCode(item store.ContextItem) bool {
	if item.Type == store.ItemTypeEntity {
		return true
	}
	return item.Type == store.ItemTypeFile && item.Language != ""
}

// truncateToBudget shortens the item content to fit the given token budget.
// Code keeps leading lines with a trailing marker since declarations and
// signatures carry the most signal; prose is cut at a character offset on a
// rune boundary.
func truncateToBudget(item store.ContextItem, budget int) string {
	avail := budget - itemOverhead
	if avail <= 0 {
		return ""
	}

	if isCode(item) {
		maxLines := avail / tokensPerCodeLine
		lines := strings.Split(item.Content, "\n")
		if len(lines) <= maxLines {
			return item.Content
		}
		// The marker occupies one of the budgeted lines.
		if maxLines < 2 {
			return ""
		}
		return strings.Join(lines[:maxLines-1], "\n") + "\n// ... truncated"
	}

	maxChars := avail * charsPerToken
	if len(item.Content) <= maxChars {
		return item.Content
	}
	runes := []rune(item.Content)
	if len(runes) <= maxChars {
		return item.Content
	}
	return string(runes[:maxChars])
}
