package nn

import (
	"github.com/lumen-ml/lumen/internal/tensor"
)

// FeedForward is the pre-normalised position-wise sublayer:
//
//	out = x + Dropout(dense_4h_to_h(GELU(dense_h_to_4h(LN(x)))))
type FeedForward struct {
	Up      *Linear // dense_h_to_4h
	Down    *Linear // dense_4h_to_h
	Norm    *LayerNorm
	Dropout float32
}

// FeedForwardTape holds the activations Backward needs.
type FeedForwardTape struct {
	norm    *LayerNormTape
	normed  *tensor.Tensor
	preAct  *tensor.Tensor
	act     *tensor.Tensor
	outMask []float32
}

// NewFeedForward builds the sublayer with parameters under prefix.
func NewFeedForward(prefix string, hidden, intermediate int, dropout, eps float32, init Init) *FeedForward {
	return &FeedForward{
		Up:      NewLinear(prefix+".dense_h_to_4h", hidden, intermediate, init),
		Down:    NewLinear(prefix+".dense_4h_to_h", intermediate, hidden, init),
		Norm:    NewLayerNorm(prefix+".layer_norm", hidden, eps),
		Dropout: dropout,
	}
}

// Forward maps x [B, T, H] to a tensor of the same shape.
func (f *FeedForward) Forward(x *tensor.Tensor, pass *Pass) (*tensor.Tensor, *FeedForwardTape) {
	normed, normTape := f.Norm.Forward(x, pass)
	u := f.Up.Forward(normed.Matrix())

	g := u
	if pass.Record {
		g = u.Clone()
	}
	tensor.GELU(g.Data())

	out := f.Down.Forward(g.Matrix())
	mask := dropoutMask(out.Len(), f.Dropout, pass)
	applyMask(out.Data(), mask)
	tensor.AddInPlace(out.Data(), x.Data())
	out = out.Reshape(x.Shape()...)

	if !pass.Record {
		return out, nil
	}
	return out, &FeedForwardTape{norm: normTape, normed: normed, preAct: u, act: g, outMask: mask}
}

// Backward accumulates parameter gradients and returns dx.
func (f *FeedForward) Backward(tape *FeedForwardTape, dy *tensor.Tensor) *tensor.Tensor {
	dOut := dy.Clone()
	applyMask(dOut.Data(), tape.outMask)
	rows := dOut.Matrix()

	dAct := f.Down.Backward(tape.act.Matrix(), rows)
	d := dAct.Data()
	for i, u := range tape.preAct.Data() {
		d[i] *= tensor.GELUGrad(u)
	}

	dn := f.Up.Backward(tape.normed.Matrix(), dAct.Matrix())
	dx := f.Norm.Backward(tape.norm, dn.Reshape(dy.Shape()...))
	tensor.AddInPlace(dx.Data(), dy.Data())
	return dx
}

// Parameters returns both projections and the layer norm.
func (f *FeedForward) Parameters() []*Parameter {
	ps := append(f.Up.Parameters(), f.Down.Parameters()...)
	return append(ps, f.Norm.Parameters()...)
}
