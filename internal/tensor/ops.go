package tensor

import (
	"math"

	"github.com/lumen-ml/lumen/internal/parallel"
)

// NegInf is float32 negative infinity.
var NegInf = float32(math.Inf(-1))

// Add returns a + b elementwise. Shapes must match.
func Add(a, b *Tensor) *Tensor {
	if !a.shape.Equal(b.shape) {
		panic("tensor.Add: shape mismatch " + a.String() + " vs " + b.String())
	}
	out := a.Clone()
	AddInPlace(out.data, b.data)
	return out
}

// AddInPlace accumulates src into dst.
func AddInPlace(dst, src []float32) {
	for i, v := range src {
		dst[i] += v
	}
}

// ScaleInPlace multiplies every element by s.
func ScaleInPlace(x []float32, s float32) {
	for i := range x {
		x[i] *= s
	}
}

// AddRowVector adds bias to every row of x, where len(bias) is the row width.
func AddRowVector(x []float32, bias []float32) {
	n := len(bias)
	for off := 0; off < len(x); off += n {
		row := x[off : off+n]
		for j, b := range bias {
			row[j] += b
		}
	}
}

// SumRowsInto accumulates the column sums of x (rows of width len(dst)) into dst.
func SumRowsInto(dst, x []float32) {
	n := len(dst)
	for off := 0; off < len(x); off += n {
		for j, v := range x[off : off+n] {
			dst[j] += v
		}
	}
}

// LayerNorm normalises each row of x (width len(gamma)) into out:
//
//	out = (x - mean) / sqrt(var + eps) * gamma + beta
//
// When mean and rstd are non-nil they receive the per-row statistics for the
// backward pass.
func LayerNorm(out, x, gamma, beta []float32, eps float32, mean, rstd []float32, cfg parallel.Config) {
	dim := len(gamma)
	rows := len(x) / dim
	parallel.For(rows, func(r int) {
		row := x[r*dim : (r+1)*dim]
		dst := out[r*dim : (r+1)*dim]

		var mu float64
		for _, v := range row {
			mu += float64(v)
		}
		mu /= float64(dim)

		var variance float64
		for _, v := range row {
			d := float64(v) - mu
			variance += d * d
		}
		variance /= float64(dim)

		rs := 1 / math.Sqrt(variance+float64(eps))
		for j, v := range row {
			dst[j] = float32((float64(v)-mu)*rs)*gamma[j] + beta[j]
		}
		if mean != nil {
			mean[r] = float32(mu)
			rstd[r] = float32(rs)
		}
	}, cfg)
}

// GELU applies the exact (erf) Gaussian error linear unit in place.
func GELU(x []float32) {
	for i, v := range x {
		x[i] = geluScalar(v)
	}
}

// GELUGrad returns d gelu(u) / du.
func GELUGrad(u float32) float32 {
	x := float64(u)
	cdf := 0.5 * (1 + math.Erf(x/math.Sqrt2))
	pdf := math.Exp(-0.5*x*x) / math.Sqrt(2*math.Pi)
	return float32(cdf + x*pdf)
}

func geluScalar(u float32) float32 {
	x := float64(u)
	return float32(0.5 * x * (1 + math.Erf(x/math.Sqrt2)))
}

// SoftmaxInPlace replaces row with its numerically stable softmax.
// -Inf entries get probability 0. A row with no finite entry becomes all zeros.
func SoftmaxInPlace(row []float32) {
	maxVal := NegInf
	for _, v := range row {
		if v > maxVal {
			maxVal = v
		}
	}
	if math.IsInf(float64(maxVal), -1) {
		for i := range row {
			row[i] = 0
		}
		return
	}

	var sum float64
	for i, v := range row {
		if math.IsInf(float64(v), -1) {
			row[i] = 0
			continue
		}
		e := math.Exp(float64(v - maxVal))
		row[i] = float32(e)
		sum += e
	}
	inv := float32(1 / sum)
	for i := range row {
		row[i] *= inv
	}
}

// Softmax returns the softmax of row without modifying it.
func Softmax(row []float32) []float32 {
	out := append([]float32(nil), row...)
	SoftmaxInPlace(out)
	return out
}

// Argmax returns the index of the largest element; ties go to the lower index.
func Argmax(row []float32) int {
	best := 0
	for i := 1; i < len(row); i++ {
		if row[i] > row[best] {
			best = i
		}
	}
	return best
}

// MaxAbsDiff returns max |a[i] - b[i]|, used by tests and diagnostics.
func MaxAbsDiff(a, b []float32) float32 {
	var m float64
	for i := range a {
		d := math.Abs(float64(a[i] - b[i]))
		if d > m {
			m = d
		}
	}
	return float32(m)
}
