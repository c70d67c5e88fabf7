package tokenizer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestByteTokenizer_RoundTrip(t *testing.T) {
	tok := NewByteTokenizer()

	texts := []string{"", "Hello, world!", "naïve café", "tabs\tand\nnewlines"}
	for _, text := range texts {
		ids, err := tok.Encode(text)
		require.NoError(t, err)
		assert.Len(t, ids, len(text))

		decoded, err := tok.Decode(ids)
		require.NoError(t, err)
		assert.Equal(t, text, decoded)
	}
}

func TestByteTokenizer_Ids(t *testing.T) {
	tok := NewByteTokenizer()

	ids, err := tok.Encode("A")
	require.NoError(t, err)
	assert.Equal(t, []int32{'A' + ByteOffset}, ids)

	assert.Equal(t, 260, tok.VocabSize())
	assert.Equal(t, int32(0), tok.PadToken())
	assert.Equal(t, int32(1), tok.BosToken())
	assert.Equal(t, int32(2), tok.EosToken())
	assert.True(t, tok.IsSpecialToken(ByteUnk))
	assert.False(t, tok.IsSpecialToken(ByteOffset))
}

func TestByteTokenizer_DecodeSkipsSpecials(t *testing.T) {
	tok := NewByteTokenizer()

	text, err := tok.Decode([]int32{ByteBos, 'o' + ByteOffset, 'k' + ByteOffset, ByteEos, BytePad})
	require.NoError(t, err)
	assert.Equal(t, "ok", text)
}

func TestByteTokenizer_DecodeOutOfRange(t *testing.T) {
	tok := NewByteTokenizer()

	_, err := tok.Decode([]int32{260})
	assert.Error(t, err)
	_, err = tok.Decode([]int32{-1})
	assert.Error(t, err)
}

func TestLoad(t *testing.T) {
	tok, err := Load("byte")
	require.NoError(t, err)
	assert.IsType(t, &ByteTokenizer{}, tok)

	tok, err = Load("")
	require.NoError(t, err)
	assert.Equal(t, 260, tok.VocabSize())

	_, err = Load("no-such-tokenizer")
	assert.Error(t, err)
}
