package nn

import (
	"fmt"
	"math"

	"github.com/lumen-ml/lumen/internal/parallel"
	"github.com/lumen-ml/lumen/internal/tensor"
)

// MaskValue is the additive bias given to padded keys. It is finite so a
// query whose keys are all padding still produces a finite distribution.
const MaskValue float32 = -1e9

// CausalSelfAttention is the pre-normalised multi-head attention sublayer:
//
//	out = x + Dropout(O(Attention(LN(x))))
//
// Attention(h) = softmax(QKᵀ/√d + causal + padding)·V computed per head.
type CausalSelfAttention struct {
	Query  *Linear
	Key    *Linear
	Value  *Linear
	Output *Linear
	Norm   *LayerNorm

	Hidden  int
	Heads   int
	HeadDim int
	Dropout float32
}

// AttentionTape holds the activations Backward needs.
type AttentionTape struct {
	norm     *LayerNormTape
	normed   *tensor.Tensor // [B*T, H]
	q, k, v  *tensor.Tensor // [B*T, H]
	ctx      *tensor.Tensor // [B*T, H]
	probs    []float32      // [B, heads, T, T] before dropout
	probMask []float32
	outMask  []float32
	batch    int
	seq      int
	parallel parallel.Config
}

// NewCausalSelfAttention builds the sublayer with parameters under prefix
// (prefix.query, prefix.key, prefix.value, prefix.output, prefix.layer_norm).
func NewCausalSelfAttention(prefix string, hidden, heads int, dropout, eps float32, init Init) *CausalSelfAttention {
	if heads <= 0 || hidden%heads != 0 {
		panic(fmt.Sprintf("CausalSelfAttention %s: hidden %d not divisible by heads %d", prefix, hidden, heads))
	}
	return &CausalSelfAttention{
		Query:   NewLinear(prefix+".query", hidden, hidden, init),
		Key:     NewLinear(prefix+".key", hidden, hidden, init),
		Value:   NewLinear(prefix+".value", hidden, hidden, init),
		Output:  NewLinear(prefix+".output", hidden, hidden, init),
		Norm:    NewLayerNorm(prefix+".layer_norm", hidden, eps),
		Hidden:  hidden,
		Heads:   heads,
		HeadDim: hidden / heads,
		Dropout: dropout,
	}
}

// Forward attends x [B, T, H] over the cached keys plus its own.
//
// cache may be nil; when set, the new keys and values are appended and the
// cached length before the call is the absolute position of x's first token.
// keyMask is the flattened [B, past+T] 0/1 mask (nil means every key is
// real). The returned probabilities are [B, heads, T, past+T].
func (a *CausalSelfAttention) Forward(x *tensor.Tensor, cache *KVCache, keyMask []float32, pass *Pass) (*tensor.Tensor, *tensor.Tensor, *AttentionTape, error) {
	batch, seq := x.Dim(0), x.Dim(1)
	past := 0
	if cache != nil {
		past = cache.Len()
	}
	total := past + seq
	if pass.Record && cache != nil {
		return nil, nil, nil, fmt.Errorf("attention: recording a tape with a cache is not supported")
	}
	if keyMask != nil && len(keyMask) != batch*total {
		return nil, nil, nil, fmt.Errorf("attention mask: want %d entries for [%d, %d], got %d",
			batch*total, batch, total, len(keyMask))
	}

	normed, normTape := a.Norm.Forward(x, pass)
	nm := normed.Matrix()
	q := a.Query.Forward(nm)
	k := a.Key.Forward(nm)
	v := a.Value.Forward(nm)

	if cache != nil {
		if err := cache.Append(k, v, seq); err != nil {
			return nil, nil, nil, err
		}
	}

	probs := tensor.Zeros(batch, a.Heads, seq, total)
	probMask := dropoutMask(probs.Len(), a.Dropout, pass)
	ctx := tensor.Zeros(batch*seq, a.Hidden)
	scale := float32(1 / math.Sqrt(float64(a.HeadDim)))

	parallel.ForPairs(batch, a.Heads, func(b, h int) {
		qbh := a.headView(q, b, seq, h)
		kbh, vbh := a.headView(k, b, seq, h), a.headView(v, b, seq, h)
		if cache != nil {
			kbh, vbh = cache.Keys(b, h), cache.Values(b, h)
		}

		off := (b*a.Heads + h) * seq * total
		p := probs.Data()[off : off+seq*total]
		scores := tensor.Matrix{Rows: seq, Cols: total, Stride: total, Data: p}
		tensor.Gemm(false, true, scale, qbh, kbh, 0, scores)

		var mask []float32
		if keyMask != nil {
			mask = keyMask[b*total : (b+1)*total]
		}
		for t := 0; t < seq; t++ {
			row := p[t*total : (t+1)*total]
			for j := range row {
				switch {
				case j > past+t:
					row[j] = tensor.NegInf
				case mask != nil && mask[j] == 0:
					row[j] += MaskValue
				}
			}
			tensor.SoftmaxInPlace(row)
		}

		weights := scores
		if probMask != nil {
			dropped := make([]float32, len(p))
			for i := range p {
				dropped[i] = p[i] * probMask[off+i]
			}
			weights.Data = dropped
		}
		tensor.Gemm(false, false, 1, weights, vbh, 0, a.headView(ctx, b, seq, h))
	}, pass.Parallel)

	out := a.Output.Forward(ctx.Matrix())
	outMask := dropoutMask(out.Len(), a.Dropout, pass)
	applyMask(out.Data(), outMask)
	tensor.AddInPlace(out.Data(), x.Data())
	out = out.Reshape(batch, seq, a.Hidden)

	var tape *AttentionTape
	if pass.Record {
		tape = &AttentionTape{
			norm:     normTape,
			normed:   normed.Reshape(batch*seq, a.Hidden),
			q:        q,
			k:        k,
			v:        v,
			ctx:      ctx,
			probs:    probs.Data(),
			probMask: probMask,
			outMask:  outMask,
			batch:    batch,
			seq:      seq,
			parallel: pass.Parallel,
		}
	}
	return out, probs, tape, nil
}

// Backward propagates dy [B, T, H] through the sublayer, accumulating every
// parameter gradient, and returns dx.
func (a *CausalSelfAttention) Backward(tape *AttentionTape, dy *tensor.Tensor) *tensor.Tensor {
	batch, seq := tape.batch, tape.seq
	scale := float32(1 / math.Sqrt(float64(a.HeadDim)))

	dOut := dy.Clone().Reshape(batch*seq, a.Hidden)
	applyMask(dOut.Data(), tape.outMask)
	dctx := a.Output.Backward(tape.ctx.Matrix(), dOut.Matrix())

	dq := tensor.Zeros(batch*seq, a.Hidden)
	dk := tensor.Zeros(batch*seq, a.Hidden)
	dv := tensor.Zeros(batch*seq, a.Hidden)

	parallel.ForPairs(batch, a.Heads, func(b, h int) {
		qbh, kbh, vbh := a.headView(tape.q, b, seq, h), a.headView(tape.k, b, seq, h), a.headView(tape.v, b, seq, h)
		dctxbh := a.headView(dctx, b, seq, h)

		off := (b*a.Heads + h) * seq * seq
		p := tape.probs[off : off+seq*seq]
		var m []float32
		if tape.probMask != nil {
			m = tape.probMask[off : off+seq*seq]
		}

		weights := p
		if m != nil {
			weights = make([]float32, len(p))
			for i := range p {
				weights[i] = p[i] * m[i]
			}
		}
		tensor.Gemm(true, false, 1, square(weights, seq), dctxbh, 0, a.headView(dv, b, seq, h))

		dp := make([]float32, seq*seq)
		tensor.Gemm(false, true, 1, dctxbh, vbh, 0, square(dp, seq))
		applyMask(dp, m)

		for t := 0; t < seq; t++ {
			prow := p[t*seq : (t+1)*seq]
			drow := dp[t*seq : (t+1)*seq]
			var dot float32
			for j := range prow {
				dot += prow[j] * drow[j]
			}
			for j := range drow {
				drow[j] = prow[j] * (drow[j] - dot)
			}
		}

		ds := square(dp, seq)
		tensor.Gemm(false, false, scale, ds, kbh, 0, a.headView(dq, b, seq, h))
		tensor.Gemm(true, false, scale, ds, qbh, 0, a.headView(dk, b, seq, h))
	}, tape.parallel)

	nm := tape.normed.Matrix()
	dn := a.Query.Backward(nm, dq.Matrix())
	tensor.AddInPlace(dn.Data(), a.Key.Backward(nm, dk.Matrix()).Data())
	tensor.AddInPlace(dn.Data(), a.Value.Backward(nm, dv.Matrix()).Data())

	dx := a.Norm.Backward(tape.norm, dn.Reshape(batch, seq, a.Hidden))
	tensor.AddInPlace(dx.Data(), dy.Data())
	return dx
}

// Parameters returns query, key, value, output and layer norm parameters.
func (a *CausalSelfAttention) Parameters() []*Parameter {
	var ps []*Parameter
	for _, m := range []Module{a.Query, a.Key, a.Value, a.Output, a.Norm} {
		ps = append(ps, m.Parameters()...)
	}
	return ps
}

// headView addresses head h of batch entry b inside a [B*T, H] projection.
func (a *CausalSelfAttention) headView(t *tensor.Tensor, b, seq, h int) tensor.Matrix {
	return t.Matrix().Sub(b*seq, h*a.HeadDim, seq, a.HeadDim)
}

func square(data []float32, n int) tensor.Matrix {
	return tensor.Matrix{Rows: n, Cols: n, Stride: n, Data: data}
}
