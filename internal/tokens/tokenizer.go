// Package tokens estimates prompt sizes so the orchestrator can keep
// fold-back payloads inside the model's context budget.
package tokens

import (
	"sync"

	tiktoken "github.com/pkoukk/tiktoken-go"
)

// Tokenizer counts tokens with tiktoken, falling back to a character
// heuristic when the BPE tables are unavailable (offline environments).
type Tokenizer struct {
	encoder  *tiktoken.Tiktoken
	fallback bool
	mu       sync.RWMutex
}

var (
	defaultTokenizer     *Tokenizer
	defaultTokenizerOnce sync.Once
)

// Default returns the shared cl100k_base tokenizer.
func Default() *Tokenizer {
	defaultTokenizerOnce.Do(func() {
		defaultTokenizer = New("cl100k_base")
	})
	return defaultTokenizer
}

func New(encodingName string) *Tokenizer {
	t := &Tokenizer{}
	enc, err := tiktoken.GetEncoding(encodingName)
	if err != nil {
		t.fallback = true
		return t
	}
	t.encoder = enc
	return t
}

// Count returns the token count for text.
func (t *Tokenizer) Count(text string) int {
	if text == "" {
		return 0
	}
	if t.fallback {
		return heuristicCount(text)
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.encoder.Encode(text, nil, nil))
}

// IsPrecise reports whether tiktoken counting is active.
func (t *Tokenizer) IsPrecise() bool {
	return !t.fallback
}

// heuristicCount approximates ~4 ASCII chars per token, CJK characters
// at ~1.5 tokens each.
func heuristicCount(text string) int {
	cjk := 0
	ascii := 0
	for _, r := range text {
		if isCJK(r) {
			cjk++
		} else {
			ascii++
		}
	}
	estimate := int(float64(cjk)*1.5 + float64(ascii)*0.25)
	if estimate < 1 {
		estimate = 1
	}
	return estimate
}

func isCJK(r rune) bool {
	return (r >= 0x4E00 && r <= 0x9FFF) ||
		(r >= 0x3400 && r <= 0x4DBF) ||
		(r >= 0x3000 && r <= 0x303F) ||
		(r >= 0xFF00 && r <= 0xFFEF) ||
		(r >= 0xAC00 && r <= 0xD7AF)
}
