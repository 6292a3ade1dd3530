package contextmgr

import (
	"sync"

	"github.com/tiktoken-go/tokenizer"
)

// TokenCounter estimates token counts for context accounting.
type TokenCounter interface {
	Count(text string) int
}

// tiktokenCounter counts tokens with the cl100k_base encoding.
type tiktokenCounter struct {
	codec tokenizer.Codec
	mu    sync.Mutex
}

// approxCounter falls back to the chars/4 heuristic when the tokenizer
// cannot be loaded.
type approxCounter struct{}

func (approxCounter) Count(text string) int {
	n := len(text) / 4
	if n == 0 && len(text) > 0 {
		n = 1
	}
	return n
}

func (c *tiktokenCounter) Count(text string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	ids, _, err := c.codec.Encode(text)
	if err != nil {
		return approxCounter{}.Count(text)
	}
	return len(ids)
}

// NewTokenCounter returns a tiktoken-based counter, or the chars/4
// approximation if the encoding is unavailable.
func NewTokenCounter() TokenCounter {
	codec, err := tokenizer.Get(tokenizer.Cl100kBase)
	if err != nil {
		return approxCounter{}
	}
	return &tiktokenCounter{codec: codec}
}
