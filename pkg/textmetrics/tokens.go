package textmetrics

import (
	"fmt"

	"github.com/tiktoken-go/tokenizer"
)

// TokenCounter provides tokenizer-backed token counting for context
// budgeting. All supported chat models are approximated with the GPT-4
// encoding.
type TokenCounter struct {
	codec tokenizer.Codec
}

// NewTokenCounter creates a token counter. The model name is accepted for
// future encoding selection; every known model currently maps to GPT-4.
func NewTokenCounter(model string) (*TokenCounter, error) {
	codec, err := tokenizer.ForModel(tokenizer.GPT4)
	if err != nil {
		return nil, fmt.Errorf("failed to create tokenizer codec for model %s: %w", model, err)
	}
	return &TokenCounter{codec: codec}, nil
}

// CountTokens returns the number of tokens in the given text.
// Falls back to a 4-chars-per-token estimate if the codec is unavailable.
func (tc *TokenCounter) CountTokens(text string) int {
	if tc == nil || tc.codec == nil {
		return len(text) / 4
	}
	count, err := tc.codec.Count(text)
	if err != nil {
		return len(text) / 4
	}
	return count
}

// TruncateToTokenLimit truncates text to fit within the token limit.
// Approximate: truncates by characters with a safety margin, not exact token
// boundaries.
func (tc *TokenCounter) TruncateToTokenLimit(text string, limit int) string {
	currentTokens := tc.CountTokens(text)
	if currentTokens <= limit {
		return text
	}

	runes := []rune(text)
	ratio := float64(limit) / float64(currentTokens)
	charLimit := int(float64(len(runes)) * ratio * 0.9)
	if charLimit >= len(runes) {
		return text
	}
	return string(runes[:charLimit]) + "..."
}
