// Package tokencount estimates token usage for generation calls.
//
// Gemini does not publish a local tokenizer, so counts use tiktoken's
// cl100k_base encoding as an approximation. When the encoding cannot be
// loaded the counter falls back to a ~4 characters per token estimate.
package tokencount

import (
	"log/slog"
	"sync"
	"unicode/utf8"

	tiktoken "github.com/pkoukk/tiktoken-go"
)

const defaultEncoding = "cl100k_base"

// TokenUsage represents token counts for one generation call.
type TokenUsage struct {
	PromptTokens     int    `json:"prompt_tokens"`
	CompletionTokens int    `json:"completion_tokens"`
	TotalTokens      int    `json:"total_tokens"`
	Model            string `json:"model"`
	Estimated        bool   `json:"estimated"`
}

// Counter provides thread-safe token counting.
type Counter struct {
	mu     sync.Mutex
	enc    *tiktoken.Tiktoken
	loaded bool
	load   func(name string) (*tiktoken.Tiktoken, error)
}

// NewCounter creates a counter that lazily loads the encoding on first use.
func NewCounter() *Counter {
	return &Counter{load: tiktoken.GetEncoding}
}

func (c *Counter) encoding() *tiktoken.Tiktoken {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.loaded {
		return c.enc
	}
	c.loaded = true
	enc, err := c.load(defaultEncoding)
	if err != nil {
		slog.Warn("token encoding unavailable, using estimates", slog.String("encoding", defaultEncoding), slog.Any("error", err))
		return nil
	}
	c.enc = enc
	return enc
}

// CountTokens returns the token count of text and whether it is an estimate.
func (c *Counter) CountTokens(text string) (int, bool) {
	if text == "" {
		return 0, false
	}
	if enc := c.encoding(); enc != nil {
		return len(enc.Encode(text, nil, nil)), false
	}
	return Estimate(text), true
}

// CalculateUsage counts prompt and completion tokens for a call.
func (c *Counter) CalculateUsage(prompt, completion, model string) TokenUsage {
	p, pe := c.CountTokens(prompt)
	cc, ce := c.CountTokens(completion)
	return TokenUsage{
		PromptTokens:     p,
		CompletionTokens: cc,
		TotalTokens:      p + cc,
		Model:            model,
		Estimated:        pe || ce,
	}
}

// Estimate approximates tokens as one per four runes, rounding up.
func Estimate(text string) int {
	n := utf8.RuneCountInString(text)
	return (n + 3) / 4
}
