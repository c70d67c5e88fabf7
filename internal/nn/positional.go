package nn

import (
	"errors"
	"fmt"
	"math"

	"github.com/lumen-ml/lumen/internal/tensor"
)

// ErrPositionOutOfRange is returned when a sequence runs past the
// precomputed positional table.
var ErrPositionOutOfRange = errors.New("position exceeds maximum sequence length")

// PositionalEncoding adds fixed sinusoidal position signals to embeddings:
//
//	PE(pos, 2i)   = sin(pos / 10000^(2i/d))
//	PE(pos, 2i+1) = cos(pos / 10000^(2i/d))
//
// The table is computed once and never trained.
type PositionalEncoding struct {
	Table  *tensor.Tensor // [MaxLen, Dim]
	MaxLen int
	Dim    int
}

// NewPositionalEncoding precomputes the table for positions [0, maxLen).
func NewPositionalEncoding(dim, maxLen int) *PositionalEncoding {
	if maxLen <= 0 || dim <= 0 {
		panic(fmt.Sprintf("PositionalEncoding: sizes must be positive, got dim=%d maxLen=%d", dim, maxLen))
	}

	table := tensor.Zeros(maxLen, dim)
	data := table.Data()
	for pos := 0; pos < maxLen; pos++ {
		for i := 0; i < dim; i++ {
			angle := float64(pos) / math.Pow(10000.0, float64(2*(i/2))/float64(dim))
			if i%2 == 0 {
				data[pos*dim+i] = float32(math.Sin(angle))
			} else {
				data[pos*dim+i] = float32(math.Cos(angle))
			}
		}
	}

	return &PositionalEncoding{Table: table, MaxLen: maxLen, Dim: dim}
}

// Apply adds positions [0, seq) to x [batch, seq, dim] and returns a new tensor.
func (p *PositionalEncoding) Apply(x *tensor.Tensor) (*tensor.Tensor, error) {
	return p.ApplyAt(x, 0)
}

// ApplyAt adds positions [offset, offset+seq) to x. Incremental decoding
// uses offset = number of cached tokens.
func (p *PositionalEncoding) ApplyAt(x *tensor.Tensor, offset int) (*tensor.Tensor, error) {
	if x.Rank() != 3 || x.Dim(2) != p.Dim {
		return nil, fmt.Errorf("positional encoding: expected [batch, seq, %d], got %v", p.Dim, x.Shape())
	}
	batch, seq := x.Dim(0), x.Dim(1)
	if offset < 0 || offset+seq > p.MaxLen {
		return nil, fmt.Errorf("%w: positions [%d, %d) with maximum %d", ErrPositionOutOfRange, offset, offset+seq, p.MaxLen)
	}

	out := x.Clone()
	for b := 0; b < batch; b++ {
		for t := 0; t < seq; t++ {
			tensor.AddInPlace(out.Row(b*seq+t), p.Table.Row(offset+t))
		}
	}
	return out, nil
}

// ApplyPositions adds the table row positions[b*seq+t] to x[b, t]. Batches of
// left-padded prompts use it so every row's first real token sits at 0.
func (p *PositionalEncoding) ApplyPositions(x *tensor.Tensor, positions []int) (*tensor.Tensor, error) {
	if x.Rank() != 3 || x.Dim(2) != p.Dim {
		return nil, fmt.Errorf("positional encoding: expected [batch, seq, %d], got %v", p.Dim, x.Shape())
	}
	if len(positions) != x.Dim(0)*x.Dim(1) {
		return nil, fmt.Errorf("positional encoding: %d positions for %d rows", len(positions), x.Dim(0)*x.Dim(1))
	}

	out := x.Clone()
	for i, pos := range positions {
		if pos < 0 || pos >= p.MaxLen {
			return nil, fmt.Errorf("%w: position %d with maximum %d", ErrPositionOutOfRange, pos, p.MaxLen)
		}
		tensor.AddInPlace(out.Row(i), p.Table.Row(pos))
	}
	return out, nil
}
