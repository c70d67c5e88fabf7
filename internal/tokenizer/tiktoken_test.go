package tokenizer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// loadTikToken skips when the BPE ranks cannot be fetched (offline CI).
func loadTikToken(t *testing.T, name string) *TikToken {
	t.Helper()
	tok, err := NewTikToken(name)
	if err != nil {
		t.Skipf("tiktoken encoding %s unavailable: %v", name, err)
	}
	return tok
}

func TestTikToken_EncodeDecode(t *testing.T) {
	tok := loadTikToken(t, "cl100k_base")

	text := "Hello, world!"
	tokens, err := tok.Encode(text)
	require.NoError(t, err)
	assert.NotEmpty(t, tokens)

	decoded, err := tok.Decode(tokens)
	require.NoError(t, err)
	assert.Equal(t, text, decoded)
}

func TestTikToken_SpecialTokens(t *testing.T) {
	tok := loadTikToken(t, "cl100k_base")

	assert.Equal(t, int32(100257), tok.EosToken())
	assert.Equal(t, tok.EosToken(), tok.PadToken())
	assert.Equal(t, int32(-1), tok.BosToken())
	assert.True(t, tok.IsSpecialToken(100257))
	assert.False(t, tok.IsSpecialToken(42))
	assert.Equal(t, 100277, tok.VocabSize())
}

func TestTikToken_P50K(t *testing.T) {
	tok := loadTikToken(t, "p50k_base")

	assert.Equal(t, int32(50256), tok.EosToken())
	assert.Equal(t, "p50k_base", tok.Name())
}

func TestTikToken_DecodeOutOfRange(t *testing.T) {
	tok := loadTikToken(t, "r50k_base")

	_, err := tok.Decode([]int32{int32(tok.VocabSize())})
	assert.Error(t, err)
}

func TestTikToken_UnknownEncoding(t *testing.T) {
	_, err := NewTikToken("no_such_base")
	assert.Error(t, err)

	_, err = NewTikTokenForModel("no-such-model")
	assert.Error(t, err)
}
