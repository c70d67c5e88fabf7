package nn

import (
	"fmt"

	"github.com/lumen-ml/lumen/internal/tensor"
)

// Embedding is the token table shared by the input lookup and the output
// projection.
//
// There is exactly one weight matrix. Lookup reads its rows; Project
// multiplies hidden states by its transpose to produce vocabulary logits.
// Both gradients accumulate into the same Parameter.
type Embedding struct {
	Weight   *Parameter // [NumEmbed, EmbedDim]
	NumEmbed int
	EmbedDim int
}

// NewEmbedding creates the table from init and zeroes row padID
// (skipped when padID is outside the table).
func NewEmbedding(name string, numEmbed, embedDim int, init Init, padID int) *Embedding {
	if numEmbed <= 0 || embedDim <= 0 {
		panic(fmt.Sprintf("Embedding: sizes must be positive, got %dx%d", numEmbed, embedDim))
	}
	w := init.Normal(numEmbed, embedDim)
	if padID >= 0 && padID < numEmbed {
		row := w.Row(padID)
		for i := range row {
			row[i] = 0
		}
	}
	return &Embedding{
		Weight:   NewParameter(name, w),
		NumEmbed: numEmbed,
		EmbedDim: embedDim,
	}
}

// Lookup gathers the rows for ids (flattened [batch, seq]) into [batch, seq, dim].
// ids must already be validated against NumEmbed.
func (e *Embedding) Lookup(ids []int32, batch, seq int) *tensor.Tensor {
	out := tensor.Zeros(batch, seq, e.EmbedDim)
	w := e.Weight.Tensor()
	for i, id := range ids {
		copy(out.Row(i), w.Row(int(id)))
	}
	return out
}

// Project maps hidden states [..., dim] to logits [..., vocab] with Wᵀ.
func (e *Embedding) Project(h *tensor.Tensor) *tensor.Tensor {
	logits := tensor.MatMulT(h.Matrix(), e.Weight.Tensor().Matrix())
	shape := append(h.Shape()[:h.Rank()-1:h.Rank()-1], e.NumEmbed)
	return logits.Reshape(shape...)
}

// LookupBackward scatter-adds dx [batch, seq, dim] into the rows used by ids.
func (e *Embedding) LookupBackward(ids []int32, dx *tensor.Tensor) {
	g := e.Weight.GradData()
	for i, id := range ids {
		off := int(id) * e.EmbedDim
		tensor.AddInPlace(g[off:off+e.EmbedDim], dx.Row(i))
	}
}

// ProjectBackward accumulates dW += dlogitsᵀ·h and returns dh = dlogits·W.
func (e *Embedding) ProjectBackward(h, dlogits *tensor.Tensor) *tensor.Tensor {
	dl := dlogits.Matrix()
	dW := tensor.Matrix{Rows: e.NumEmbed, Cols: e.EmbedDim, Stride: e.EmbedDim, Data: e.Weight.GradData()}
	tensor.Gemm(true, false, 1, dl, h.Matrix(), 1, dW)

	dh := tensor.Zeros(h.Shape()...)
	tensor.Gemm(false, false, 1, dl, e.Weight.Tensor().Matrix(), 0, dh.Matrix())
	return dh
}

// Parameters returns the shared weight once.
func (e *Embedding) Parameters() []*Parameter {
	return []*Parameter{e.Weight}
}
