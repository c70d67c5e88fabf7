// Package nn implements the layers of the decoder-only transformer: tied
// embedding, sinusoidal positional encoding, pre-normalised causal
// self-attention with a key/value cache, feed-forward sublayer and the block
// that composes them.
//
// Every layer has a Forward that optionally records a tape, and a Backward
// that consumes the tape, accumulates parameter gradients and returns the
// input gradient. Backward is only used by the trainer.
package nn

import (
	"math/rand"

	"github.com/lumen-ml/lumen/internal/parallel"
)

// Pass carries per-call settings through the layers.
type Pass struct {
	// Training enables dropout. Requires Rng when any dropout rate is positive.
	Training bool

	// Rng drives dropout masks. Not safe for concurrent use; layers draw
	// from it sequentially.
	Rng *rand.Rand

	// Record keeps the activations Backward needs.
	Record bool

	// Parallel bounds kernel fan-out.
	Parallel parallel.Config
}

// Inference returns the pass used for generation: no dropout, no tape.
func Inference() *Pass {
	return &Pass{Parallel: parallel.DefaultConfig()}
}

// Module is implemented by every layer that owns parameters.
type Module interface {
	Parameters() []*Parameter
}
