// Package tokenizer provides text tokenization for lumen models.
//
// Supported tokenizers:
//   - Byte: self-contained byte-level vocabulary of 260 ids
//   - TikToken: OpenAI encodings (cl100k_base, p50k_base, r50k_base)
//
// Example usage:
//
//	import "github.com/lumen-ml/lumen/tokenizer"
//
//	tok, err := tokenizer.Load("byte")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	ids, _ := tok.Encode("Hello, world!")
//	text, _ := tok.Decode(ids)
package tokenizer

import (
	"github.com/lumen-ml/lumen/internal/tokenizer"
)

// Tokenizer converts between text and token ids.
type Tokenizer = tokenizer.Tokenizer

// ByteTokenizer maps each byte to id byte+4; ids 0-3 are pad, bos, eos, unk.
type ByteTokenizer = tokenizer.ByteTokenizer

// TikToken wraps an OpenAI BPE encoding.
type TikToken = tokenizer.TikToken

// NewByteTokenizer returns the byte-level tokenizer.
func NewByteTokenizer() *ByteTokenizer {
	return tokenizer.NewByteTokenizer()
}

// NewTikToken loads a tiktoken encoding by name ("cl100k_base", "p50k_base",
// "r50k_base").
func NewTikToken(encodingName string) (*TikToken, error) {
	return tokenizer.NewTikToken(encodingName)
}

// NewTikTokenForModel loads the encoding used by an OpenAI model name.
func NewTikTokenForModel(modelName string) (*TikToken, error) {
	return tokenizer.NewTikTokenForModel(modelName)
}

// Load resolves "byte", a tiktoken encoding or an OpenAI model name.
func Load(name string) (Tokenizer, error) {
	return tokenizer.Load(name)
}
