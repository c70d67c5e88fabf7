package tensor

import (
	"math"
	"math/rand"
	"testing"

	"github.com/lumen-ml/lumen/internal/parallel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromSlice(t *testing.T) {
	x, err := FromSlice([]float32{1, 2, 3, 4, 5, 6}, Shape{2, 3})
	require.NoError(t, err)

	assert.Equal(t, Shape{2, 3}, x.Shape())
	assert.Equal(t, float32(6), x.At(1, 2))
	assert.Equal(t, []float32{4, 5, 6}, x.Row(1))

	_, err = FromSlice([]float32{1, 2}, Shape{3})
	assert.Error(t, err)

	_, err = FromSlice(nil, Shape{0, 2})
	assert.Error(t, err)
}

func TestReshape_SharesStorage(t *testing.T) {
	x := Zeros(2, 3, 4)
	v := x.Reshape(6, 4)
	v.Set(7, 5, 3)

	assert.Equal(t, float32(7), x.At(1, 2, 3))
	assert.Panics(t, func() { x.Reshape(5, 5) })
}

func TestClone_IsDeep(t *testing.T) {
	x := Full(1, 2, 2)
	c := x.Clone()
	c.Set(9, 0, 0)
	assert.Equal(t, float32(1), x.At(0, 0))
}

func TestMatMulT(t *testing.T) {
	// x [2,3], w [2,3] -> x·wᵀ [2,2]
	x, _ := FromSlice([]float32{1, 2, 3, 4, 5, 6}, Shape{2, 3})
	w, _ := FromSlice([]float32{1, 0, 0, 0, 1, 1}, Shape{2, 3})

	out := MatMulT(x.Matrix(), w.Matrix())
	assert.Equal(t, []float32{1, 5, 4, 11}, out.Data())
}

func TestGemm_StridedHeadView(t *testing.T) {
	// Two tokens, two heads of width 2: [t0h0 t0h1 | t1h0 t1h1].
	q, _ := FromSlice([]float32{1, 2, 10, 20, 3, 4, 30, 40}, Shape{2, 4})
	head1 := q.Matrix().Sub(0, 2, 2, 2)

	scores := Zeros(2, 2)
	Gemm(false, true, 1, head1, head1, 0, scores.Matrix())

	// head1 rows: [10 20], [30 40]
	assert.Equal(t, []float32{500, 1100, 1100, 2500}, scores.Data())
}

func TestLayerNorm(t *testing.T) {
	x := []float32{1, 2, 3, 4, -1, -1, -1, -1}
	gamma := []float32{1, 1, 1, 1}
	beta := []float32{0, 0, 0, 0}
	out := make([]float32, len(x))
	mean := make([]float32, 2)
	rstd := make([]float32, 2)

	LayerNorm(out, x, gamma, beta, 1e-5, mean, rstd, parallel.Sequential())

	assert.InDelta(t, 2.5, mean[0], 1e-6)
	assert.InDelta(t, -1, mean[1], 1e-6)

	var sum, sq float64
	for _, v := range out[:4] {
		sum += float64(v)
		sq += float64(v * v)
	}
	assert.InDelta(t, 0, sum/4, 1e-5)
	assert.InDelta(t, 1, sq/4, 1e-3)

	// Constant row normalises to beta.
	for _, v := range out[4:] {
		assert.InDelta(t, 0, v, 1e-6)
	}
}

func TestGELU(t *testing.T) {
	x := []float32{0, 1, -1, 3}
	GELU(x)

	assert.InDelta(t, 0, x[0], 1e-7)
	assert.InDelta(t, 0.8413447, x[1], 1e-5)
	assert.InDelta(t, -0.1586553, x[2], 1e-5)
	assert.InDelta(t, 2.9959502, x[3], 1e-5)
}

func TestGELUGrad_FiniteDifference(t *testing.T) {
	for _, u := range []float32{-2, -0.5, 0, 0.7, 2.5} {
		h := float32(1e-3)
		num := (geluScalar(u+h) - geluScalar(u-h)) / (2 * h)
		assert.InDelta(t, num, GELUGrad(u), 1e-3, "u=%v", u)
	}
}

func TestSoftmaxInPlace(t *testing.T) {
	row := []float32{1, 2, 3, NegInf}
	SoftmaxInPlace(row)

	var sum float32
	for _, p := range row {
		sum += p
	}
	assert.InDelta(t, 1, sum, 1e-6)
	assert.Equal(t, float32(0), row[3])
	assert.Greater(t, row[2], row[1])

	// Large logits must not overflow.
	big := []float32{1000, 1001}
	SoftmaxInPlace(big)
	assert.False(t, math.IsNaN(float64(big[0])))
	assert.InDelta(t, 0.7310586, big[1], 1e-5)

	dead := []float32{NegInf, NegInf}
	SoftmaxInPlace(dead)
	assert.Equal(t, []float32{0, 0}, dead)
}

func TestArgmax_TiesGoLow(t *testing.T) {
	assert.Equal(t, 1, Argmax([]float32{0, 5, 5, 1}))
}

func TestRandn_Spread(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	x := Randn(rng, 0.02, 100, 100)

	var sq float64
	for _, v := range x.Data() {
		sq += float64(v * v)
	}
	std := math.Sqrt(sq / float64(x.Len()))
	assert.InDelta(t, 0.02, std, 0.002)
}
