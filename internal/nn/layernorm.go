package nn

import (
	"github.com/lumen-ml/lumen/internal/tensor"
)

// LayerNorm normalises the last dimension: y = (x-mean)/sqrt(var+eps)·gamma + beta.
// Scale starts at 1 and shift at 0.
type LayerNorm struct {
	Gamma   *Parameter // [dim], stored as prefix.weight
	Beta    *Parameter // [dim], stored as prefix.bias
	Epsilon float32
}

// LayerNormTape holds what Backward needs.
type LayerNormTape struct {
	input *tensor.Tensor
	mean  []float32
	rstd  []float32
}

// NewLayerNorm creates a LayerNorm over the last dimension of size dim.
func NewLayerNorm(prefix string, dim int, eps float32) *LayerNorm {
	return &LayerNorm{
		Gamma:   NewParameter(prefix+".weight", tensor.Full(1, dim)),
		Beta:    NewParameter(prefix+".bias", tensor.Zeros(dim)),
		Epsilon: eps,
	}
}

// Forward normalises x and returns a new tensor of the same shape.
func (ln *LayerNorm) Forward(x *tensor.Tensor, pass *Pass) (*tensor.Tensor, *LayerNormTape) {
	out := tensor.Zeros(x.Shape()...)
	var tape *LayerNormTape
	var mean, rstd []float32
	if pass.Record {
		mean = make([]float32, x.Rows())
		rstd = make([]float32, x.Rows())
		tape = &LayerNormTape{input: x, mean: mean, rstd: rstd}
	}
	tensor.LayerNorm(out.Data(), x.Data(), ln.Gamma.Data(), ln.Beta.Data(), ln.Epsilon, mean, rstd, pass.Parallel)
	return out, tape
}

// Backward accumulates dgamma, dbeta and returns dx.
//
//	dx = rstd · (dx̂ - mean(dx̂) - x̂·mean(dx̂·x̂)),  dx̂ = dy·gamma
func (ln *LayerNorm) Backward(tape *LayerNormTape, dy *tensor.Tensor) *tensor.Tensor {
	gamma := ln.Gamma.Data()
	dGamma := ln.Gamma.GradData()
	dBeta := ln.Beta.GradData()
	dim := len(gamma)

	x := tape.input.Data()
	g := dy.Data()
	dx := tensor.Zeros(dy.Shape()...)
	out := dx.Data()
	xhat := make([]float32, dim)
	dxhat := make([]float32, dim)

	for r := 0; r < len(tape.mean); r++ {
		off := r * dim
		mu, rs := tape.mean[r], tape.rstd[r]

		var sumD, sumDX float32
		for j := 0; j < dim; j++ {
			xhat[j] = (x[off+j] - mu) * rs
			dxhat[j] = g[off+j] * gamma[j]
			sumD += dxhat[j]
			sumDX += dxhat[j] * xhat[j]

			dGamma[j] += g[off+j] * xhat[j]
			dBeta[j] += g[off+j]
		}
		meanD := sumD / float32(dim)
		meanDX := sumDX / float32(dim)
		for j := 0; j < dim; j++ {
			out[off+j] = rs * (dxhat[j] - meanD - xhat[j]*meanDX)
		}
	}
	return dx
}

// Parameters returns gamma and beta.
func (ln *LayerNorm) Parameters() []*Parameter {
	return []*Parameter{ln.Gamma, ln.Beta}
}
