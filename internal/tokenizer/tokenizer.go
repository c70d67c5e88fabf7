package tokenizer

import (
	"fmt"
	"strings"
)

// Tokenizer is the interface the generator and the CLI depend on.
type Tokenizer interface {
	// Encode converts text to token IDs.
	Encode(text string) ([]int32, error)

	// Decode converts token IDs back to text.
	Decode(tokens []int32) (string, error)

	// VocabSize returns the total vocabulary size.
	VocabSize() int

	// BosToken returns the beginning-of-sequence token ID, or -1.
	BosToken() int32

	// EosToken returns the end-of-sequence token ID, or -1.
	EosToken() int32

	// PadToken returns the padding token ID, or -1.
	PadToken() int32

	// IsSpecialToken reports whether token is a control token.
	IsSpecialToken(token int32) bool
}

// Load resolves a tokenizer by name: "byte" for ByteTokenizer, otherwise a
// tiktoken encoding ("cl100k_base") or model name ("gpt-4").
func Load(name string) (Tokenizer, error) {
	switch strings.ToLower(name) {
	case "", ByteTokenizerName:
		return NewByteTokenizer(), nil
	}
	if tok, err := NewTikToken(name); err == nil {
		return tok, nil
	}
	if tok, err := NewTikTokenForModel(name); err == nil {
		return tok, nil
	}
	return nil, fmt.Errorf("unknown tokenizer %q", name)
}
