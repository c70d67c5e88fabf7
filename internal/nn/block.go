package nn

import (
	"github.com/lumen-ml/lumen/internal/tensor"
)

// BlockConfig sizes a TransformerBlock.
type BlockConfig struct {
	Hidden       int
	Heads        int
	Intermediate int
	Dropout      float32
	Epsilon      float32
}

// TransformerBlock is one decoder layer: attention then feed-forward, each
// pre-normalised with its own residual connection.
type TransformerBlock struct {
	Attention   *CausalSelfAttention
	FeedForward *FeedForward
}

// BlockTape holds both sublayer tapes.
type BlockTape struct {
	attention   *AttentionTape
	feedForward *FeedForwardTape
}

// NewTransformerBlock builds a block with parameters under prefix
// (prefix.attention.*, prefix.feed_forward.*).
func NewTransformerBlock(prefix string, cfg BlockConfig, init Init) *TransformerBlock {
	return &TransformerBlock{
		Attention:   NewCausalSelfAttention(prefix+".attention", cfg.Hidden, cfg.Heads, cfg.Dropout, cfg.Epsilon, init),
		FeedForward: NewFeedForward(prefix+".feed_forward", cfg.Hidden, cfg.Intermediate, cfg.Dropout, cfg.Epsilon, init),
	}
}

// Forward runs the block over x [B, T, H]. The cache, when given, is
// extended in place. Returns the hidden state and the attention
// probabilities [B, heads, T, past+T].
func (b *TransformerBlock) Forward(x *tensor.Tensor, cache *KVCache, keyMask []float32, pass *Pass) (*tensor.Tensor, *tensor.Tensor, *BlockTape, error) {
	h, probs, attTape, err := b.Attention.Forward(x, cache, keyMask, pass)
	if err != nil {
		return nil, nil, nil, err
	}
	out, ffTape := b.FeedForward.Forward(h, pass)

	var tape *BlockTape
	if pass.Record {
		tape = &BlockTape{attention: attTape, feedForward: ffTape}
	}
	return out, probs, tape, nil
}

// Backward propagates dy through feed-forward then attention.
func (b *TransformerBlock) Backward(tape *BlockTape, dy *tensor.Tensor) *tensor.Tensor {
	dh := b.FeedForward.Backward(tape.feedForward, dy)
	return b.Attention.Backward(tape.attention, dh)
}

// Parameters returns attention parameters followed by feed-forward ones.
func (b *TransformerBlock) Parameters() []*Parameter {
	return append(b.Attention.Parameters(), b.FeedForward.Parameters()...)
}
