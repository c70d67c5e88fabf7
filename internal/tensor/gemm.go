package tensor

import (
	"gonum.org/v1/gonum/blas"
	"gonum.org/v1/gonum/blas/blas32"
)

// Matrix is a strided row-major view into a float32 slice.
//
// Stride may exceed Cols, which lets a single attention head be addressed
// inside a [tokens, heads*head_dim] projection without copying.
type Matrix struct {
	Rows, Cols int
	Stride     int
	Data       []float32
}

// Sub returns the view of rows [r0, r0+rows) and columns [c0, c0+cols).
func (m Matrix) Sub(r0, c0, rows, cols int) Matrix {
	return Matrix{
		Rows:   rows,
		Cols:   cols,
		Stride: m.Stride,
		Data:   m.Data[r0*m.Stride+c0:],
	}
}

// At returns element (i, j).
func (m Matrix) At(i, j int) float32 {
	return m.Data[i*m.Stride+j]
}

func (m Matrix) general() blas32.General {
	return blas32.General{Rows: m.Rows, Cols: m.Cols, Stride: m.Stride, Data: m.Data}
}

// Gemm computes c = alpha*op(a)*op(b) + beta*c, where op transposes its
// argument when the matching flag is set.
func Gemm(transA, transB bool, alpha float32, a, b Matrix, beta float32, c Matrix) {
	if c.Rows == 0 || c.Cols == 0 {
		return
	}
	blas32.Gemm(transpose(transA), transpose(transB), alpha, a.general(), b.general(), beta, c.general())
}

// MatMulT returns x·wᵀ for x [n, in] and w [out, in], the Linear layout.
func MatMulT(x, w Matrix) *Tensor {
	out := Zeros(x.Rows, w.Rows)
	Gemm(false, true, 1, x, w, 0, out.Matrix())
	return out
}

func transpose(t bool) blas.Transpose {
	if t {
		return blas.Trans
	}
	return blas.NoTrans
}
