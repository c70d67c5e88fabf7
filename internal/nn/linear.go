package nn

import (
	"fmt"

	"github.com/lumen-ml/lumen/internal/tensor"
)

// Linear implements y = x·Wᵀ + b with W shaped [out, in].
type Linear struct {
	Weight *Parameter // [out_features, in_features]
	Bias   *Parameter // [out_features]
	In     int
	Out    int
}

// NewLinear creates a Linear layer named prefix.weight / prefix.bias.
// Weights come from init, biases start at zero.
func NewLinear(prefix string, in, out int, init Init) *Linear {
	if in <= 0 || out <= 0 {
		panic(fmt.Sprintf("Linear %s: features must be positive, got in=%d out=%d", prefix, in, out))
	}
	return &Linear{
		Weight: NewParameter(prefix+".weight", init.Normal(out, in)),
		Bias:   NewParameter(prefix+".bias", tensor.Zeros(out)),
		In:     in,
		Out:    out,
	}
}

// Forward maps rows of x [n, in] to [n, out].
func (l *Linear) Forward(x tensor.Matrix) *tensor.Tensor {
	out := tensor.MatMulT(x, l.Weight.Tensor().Matrix())
	tensor.AddRowVector(out.Data(), l.Bias.Data())
	return out
}

// Backward accumulates dW += dyᵀ·x and db += Σdy, and returns dx = dy·W.
func (l *Linear) Backward(x, dy tensor.Matrix) *tensor.Tensor {
	dW := l.Weight.GradData()
	tensor.Gemm(true, false, 1, dy, x, 1, tensor.Matrix{Rows: l.Out, Cols: l.In, Stride: l.In, Data: dW})
	dB := l.Bias.GradData()
	if dy.Stride == dy.Cols {
		tensor.SumRowsInto(dB, dy.Data[:dy.Rows*dy.Cols])
	} else {
		for r := 0; r < dy.Rows; r++ {
			tensor.AddInPlace(dB, dy.Data[r*dy.Stride:r*dy.Stride+dy.Cols])
		}
	}

	dx := tensor.Zeros(x.Rows, l.In)
	tensor.Gemm(false, false, 1, dy, l.Weight.Tensor().Matrix(), 0, dx.Matrix())
	return dx
}

// Parameters returns weight and bias.
func (l *Linear) Parameters() []*Parameter {
	return []*Parameter{l.Weight, l.Bias}
}
