package train

import (
	"fmt"
	"math"

	"github.com/lumen-ml/lumen/internal/parallel"
	"github.com/lumen-ml/lumen/internal/tensor"
)

// CrossEntropy computes the mean next-token loss of logits [batch, seq, vocab]
// against ids shifted left by one, together with dL/dlogits.
//
// Position t is scored against ids[b][t+1]. A pair is skipped when either
// position is masked out (mask value 0); a nil mask counts everything.
// The returned count is the number of scored positions; when it is zero the
// loss is 0 and the gradient is all zeros.
func CrossEntropy(logits *tensor.Tensor, ids, mask [][]int32) (float64, *tensor.Tensor, int, error) {
	if logits.Rank() != 3 {
		return 0, nil, 0, fmt.Errorf("logits must be [batch, seq, vocab], got %v", logits.Shape())
	}
	batch, seq, vocab := logits.Dim(0), logits.Dim(1), logits.Dim(2)
	if len(ids) != batch {
		return 0, nil, 0, fmt.Errorf("expected %d id rows, got %d", batch, len(ids))
	}
	if mask != nil && len(mask) != batch {
		return 0, nil, 0, fmt.Errorf("expected %d mask rows, got %d", batch, len(mask))
	}

	count := 0
	for b := 0; b < batch; b++ {
		if len(ids[b]) != seq || (mask != nil && len(mask[b]) != seq) {
			return 0, nil, 0, fmt.Errorf("row %d: expected length %d", b, seq)
		}
		for t := 0; t+1 < seq; t++ {
			if !scored(mask, b, t) {
				continue
			}
			if label := ids[b][t+1]; label < 0 || int(label) >= vocab {
				return 0, nil, 0, fmt.Errorf("row %d: label %d outside vocabulary of %d", b, label, vocab)
			}
			count++
		}
	}

	grad := tensor.Zeros(batch, seq, vocab)
	if count == 0 {
		return 0, grad, 0, nil
	}

	src, dst := logits.Data(), grad.Data()
	losses := make([]float64, batch*seq)
	inv := float32(1) / float32(count)
	parallel.For(batch*seq, func(r int) {
		b, t := r/seq, r%seq
		if t+1 >= seq || !scored(mask, b, t) {
			return
		}
		label := int(ids[b][t+1])
		row := src[r*vocab : (r+1)*vocab]
		out := dst[r*vocab : (r+1)*vocab]

		maxVal := row[0]
		for _, v := range row[1:] {
			maxVal = max(maxVal, v)
		}
		var sum float64
		for _, v := range row {
			sum += math.Exp(float64(v - maxVal))
		}
		losses[r] = math.Log(sum) - float64(row[label]-maxVal)

		for i, v := range row {
			out[i] = float32(math.Exp(float64(v-maxVal))/sum) * inv
		}
		out[label] -= inv
	}, parallel.DefaultConfig().WithMinChunk(1))

	var total float64
	for _, l := range losses {
		total += l
	}
	return total / float64(count), grad, count, nil
}

func scored(mask [][]int32, b, t int) bool {
	return mask == nil || (mask[b][t] != 0 && mask[b][t+1] != 0)
}
