package nn

import (
	"math/rand"

	"github.com/lumen-ml/lumen/internal/tensor"
)

// dropoutMask draws an inverted-dropout mask: each entry is 0 with
// probability p, otherwise 1/(1-p). Returns nil when dropout is inactive.
func dropoutMask(n int, p float32, pass *Pass) []float32 {
	if !pass.Training || p <= 0 {
		return nil
	}
	return drawMask(pass.Rng, n, p)
}

func drawMask(rng *rand.Rand, n int, p float32) []float32 {
	keep := 1 / (1 - p)
	mask := make([]float32, n)
	for i := range mask {
		if rng.Float32() >= p {
			mask[i] = keep
		}
	}
	return mask
}

// applyMask multiplies x by mask in place; a nil mask is the identity.
func applyMask(x, mask []float32) {
	if mask == nil {
		return
	}
	for i := range x {
		x[i] *= mask[i]
	}
}

// Dropout is inverted dropout with rate P, active only in training passes.
type Dropout struct {
	P float32
}

// Forward drops entries of x in place and returns the mask it used
// (nil when inactive).
func (d Dropout) Forward(x *tensor.Tensor, pass *Pass) []float32 {
	mask := dropoutMask(x.Len(), d.P, pass)
	applyMask(x.Data(), mask)
	return mask
}

// Backward scales dy in place by the mask returned from Forward.
func (d Dropout) Backward(dy *tensor.Tensor, mask []float32) {
	applyMask(dy.Data(), mask)
}
