// Package tokens provides tiktoken-based token counting for prompt budgets
// and usage accounting.
package tokens

import (
	"fmt"

	"github.com/tiktoken-go/tokenizer"
)

// Counter provides token counting for generation prompts. All supported
// providers are approximated with the GPT-4 encoding, which is close enough
// for budget enforcement.
type Counter struct {
	codec tokenizer.Codec
}

// NewCounter creates a token counter.
func NewCounter() (*Counter, error) {
	codec, err := tokenizer.ForModel(tokenizer.GPT4)
	if err != nil {
		return nil, fmt.Errorf("failed to create tokenizer codec: %w", err)
	}
	return &Counter{codec: codec}, nil
}

// Count returns the number of tokens in text, falling back to a 4-chars-per-
// token estimate when the codec is unavailable.
func (c *Counter) Count(text string) int {
	if c == nil || c.codec == nil {
		return len(text) / 4
	}
	count, err := c.codec.Count(text)
	if err != nil {
		return len(text) / 4
	}
	return count
}

// WithinLimit reports whether text fits within limit tokens.
func (c *Counter) WithinLimit(text string, limit int) bool {
	return c.Count(text) <= limit
}

// Truncate trims text to approximately fit within limit tokens. Truncation is
// proportional by characters, not exact token boundaries.
func (c *Counter) Truncate(text string, limit int) string {
	current := c.Count(text)
	if current <= limit {
		return text
	}

	ratio := float64(limit) / float64(current)
	charLimit := int(float64(len(text)) * ratio * 0.9)
	if charLimit >= len(text) {
		return text
	}
	if charLimit < 0 {
		charLimit = 0
	}
	return text[:charLimit] + "..."
}
