package llm

import (
	"fmt"

	"github.com/tiktoken-go/tokenizer"
)

// HistoryTrimmer drops the oldest messages from a conversation history until
// the whole history fits a token budget. The classifier prompt embeds the
// full history, so unbounded conversations would otherwise blow the context
// window.
type HistoryTrimmer struct {
	codec  tokenizer.Codec
	budget int
}

// NewHistoryTrimmer builds a trimmer with the given token budget. A budget
// of zero or less disables trimming.
func NewHistoryTrimmer(budget int) (*HistoryTrimmer, error) {
	codec, err := tokenizer.Get(tokenizer.Cl100kBase)
	if err != nil {
		return nil, fmt.Errorf("llm: load tokenizer: %w", err)
	}
	return &HistoryTrimmer{codec: codec, budget: budget}, nil
}

// Trim returns the longest suffix of history whose token count fits the
// budget. The suffix keeps append order; the most recent messages survive.
func (t *HistoryTrimmer) Trim(history []ChatMessage) []ChatMessage {
	if t == nil || t.budget <= 0 || len(history) == 0 {
		return history
	}
	total := 0
	counts := make([]int, len(history))
	for i, m := range history {
		counts[i] = t.count(m.Role) + t.count(m.Content)
		total += counts[i]
	}
	start := 0
	for start < len(history) && total > t.budget {
		total -= counts[start]
		start++
	}
	return history[start:]
}

func (t *HistoryTrimmer) count(s string) int {
	ids, _, err := t.codec.Encode(s)
	if err != nil {
		// Tokenization failure degrades to a byte-length estimate.
		return len(s) / 4
	}
	return len(ids)
}
