package tokenizer

import (
	"fmt"
	"slices"

	"github.com/pkoukk/tiktoken-go"
)

// encodingInfo describes the vocabulary of one encoding. tiktoken-go does
// not expose vocabulary sizes, so they are tabulated here.
type encodingInfo struct {
	vocabSize int
	endOfText int32
	specials  []int32
}

var encodingInfos = map[string]encodingInfo{
	"cl100k_base": {vocabSize: 100277, endOfText: 100257, specials: []int32{100257, 100258, 100259, 100260, 100276}},
	"p50k_base":   {vocabSize: 50281, endOfText: 50256, specials: []int32{50256}},
	"r50k_base":   {vocabSize: 50257, endOfText: 50256, specials: []int32{50256}},
}

var tiktokenModels = map[string]string{
	"gpt-4":                  "cl100k_base",
	"gpt-3.5-turbo":          "cl100k_base",
	"text-embedding-ada-002": "cl100k_base",
	"text-davinci-003":       "p50k_base",
	"text-davinci-002":       "p50k_base",
	"code-davinci-002":       "p50k_base",
	"davinci":                "r50k_base",
	"gpt2":                   "r50k_base",
}

// TikToken wraps the pkoukk/tiktoken-go library for OpenAI tokenizers.
//
// <|endoftext|> doubles as EOS and pad; there is no BOS.
type TikToken struct {
	encoding *tiktoken.Tiktoken
	name     string
	info     encodingInfo
}

// NewTikToken loads the named encoding: "cl100k_base", "p50k_base" or
// "r50k_base". tiktoken-go fetches and caches the BPE ranks on first use.
func NewTikToken(encodingName string) (*TikToken, error) {
	info, ok := encodingInfos[encodingName]
	if !ok {
		return nil, fmt.Errorf("unsupported tiktoken encoding %q", encodingName)
	}
	encoding, err := tiktoken.GetEncoding(encodingName)
	if err != nil {
		return nil, fmt.Errorf("failed to load tiktoken encoding %q: %w", encodingName, err)
	}
	return &TikToken{encoding: encoding, name: encodingName, info: info}, nil
}

// NewTikTokenForModel loads the encoding OpenAI uses for modelName
// (e.g. "gpt-4").
func NewTikTokenForModel(modelName string) (*TikToken, error) {
	encodingName, ok := tiktokenModels[modelName]
	if !ok {
		return nil, fmt.Errorf("no tiktoken encoding known for model %q", modelName)
	}
	return NewTikToken(encodingName)
}

// Encode converts text to token IDs. Special-token text is encoded as
// ordinary text.
func (t *TikToken) Encode(text string) ([]int32, error) {
	tokens := t.encoding.Encode(text, nil, nil)
	result := make([]int32, len(tokens))
	for i, tok := range tokens {
		result[i] = int32(tok) //nolint:gosec // G115: Token ID fits in int32 - vocab size < 2^31.
	}
	return result, nil
}

// Decode converts token IDs back to text.
func (t *TikToken) Decode(tokens []int32) (string, error) {
	ints := make([]int, len(tokens))
	for i, tok := range tokens {
		if tok < 0 || int(tok) >= t.info.vocabSize {
			return "", fmt.Errorf("token %d outside %s vocabulary of %d", tok, t.name, t.info.vocabSize)
		}
		ints[i] = int(tok)
	}
	return t.encoding.Decode(ints), nil
}

// VocabSize returns the number of ids including specials.
func (t *TikToken) VocabSize() int { return t.info.vocabSize }

// BosToken returns -1: tiktoken encodings have no BOS.
func (t *TikToken) BosToken() int32 { return -1 }

// EosToken returns the <|endoftext|> id.
func (t *TikToken) EosToken() int32 { return t.info.endOfText }

// PadToken returns the <|endoftext|> id.
func (t *TikToken) PadToken() int32 { return t.info.endOfText }

// IsSpecialToken reports <|endoftext|> and the FIM/prompt control tokens.
func (t *TikToken) IsSpecialToken(token int32) bool {
	return slices.Contains(t.info.specials, token)
}

// Name returns the encoding name.
func (t *TikToken) Name() string { return t.name }
