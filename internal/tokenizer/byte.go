package tokenizer

import (
	"fmt"
	"strings"
)

// ByteTokenizerName is the name Load accepts for ByteTokenizer.
const ByteTokenizerName = "byte"

// Special ids of ByteTokenizer. Byte b encodes as b + ByteOffset.
const (
	BytePad    int32 = 0
	ByteBos    int32 = 1
	ByteEos    int32 = 2
	ByteUnk    int32 = 3
	ByteOffset int32 = 4

	byteVocabSize = 256 + int(ByteOffset)
)

// ByteTokenizer maps every byte of UTF-8 text to its own token. Its special
// ids line up with the model's default pad/bos/eos ids, so a model with
// vocab_size 260 can be trained on raw text without any vocabulary files.
type ByteTokenizer struct{}

// NewByteTokenizer returns the byte-level tokenizer.
func NewByteTokenizer() *ByteTokenizer {
	return &ByteTokenizer{}
}

// Encode returns one id per byte.
func (ByteTokenizer) Encode(text string) ([]int32, error) {
	ids := make([]int32, len(text))
	for i := 0; i < len(text); i++ {
		ids[i] = int32(text[i]) + ByteOffset
	}
	return ids, nil
}

// Decode skips special ids and rejects ids outside the vocabulary.
// Invalid UTF-8 sequences are kept byte for byte.
func (ByteTokenizer) Decode(tokens []int32) (string, error) {
	var sb strings.Builder
	sb.Grow(len(tokens))
	for _, id := range tokens {
		switch {
		case id >= ByteOffset && int(id) < byteVocabSize:
			sb.WriteByte(byte(id - ByteOffset))
		case id >= 0 && id < ByteOffset:
		default:
			return "", fmt.Errorf("token %d outside byte vocabulary of %d", id, byteVocabSize)
		}
	}
	return sb.String(), nil
}

// VocabSize returns 260.
func (ByteTokenizer) VocabSize() int { return byteVocabSize }

// BosToken returns 1.
func (ByteTokenizer) BosToken() int32 { return ByteBos }

// EosToken returns 2.
func (ByteTokenizer) EosToken() int32 { return ByteEos }

// PadToken returns 0.
func (ByteTokenizer) PadToken() int32 { return BytePad }

// IsSpecialToken reports ids below ByteOffset.
func (ByteTokenizer) IsSpecialToken(token int32) bool {
	return token >= 0 && token < ByteOffset
}

// Name returns "byte".
func (ByteTokenizer) Name() string { return ByteTokenizerName }
