package nn

import (
	"errors"
	"fmt"

	"github.com/lumen-ml/lumen/internal/tensor"
)

// ErrCacheOverflow is returned when appending would exceed cache capacity.
var ErrCacheOverflow = errors.New("kv cache overflow")

// KVCache stores one layer's keys and values for incremental decoding.
//
// Storage is preallocated as [batch, heads, capacity, headDim] so appending
// a decode step writes headDim floats per (batch, head) in place; the
// attention kernel reads the first Len() rows of each (batch, head) block
// directly, with no concatenation.
type KVCache struct {
	keys     []float32
	values   []float32
	batch    int
	heads    int
	capacity int
	headDim  int
	length   int
}

// NewKVCache allocates an empty cache.
func NewKVCache(batch, heads, capacity, headDim int) *KVCache {
	if batch <= 0 || heads <= 0 || capacity <= 0 || headDim <= 0 {
		panic(fmt.Sprintf("KVCache: sizes must be positive, got batch=%d heads=%d capacity=%d headDim=%d",
			batch, heads, capacity, headDim))
	}
	n := batch * heads * capacity * headDim
	return &KVCache{
		keys:     make([]float32, n),
		values:   make([]float32, n),
		batch:    batch,
		heads:    heads,
		capacity: capacity,
		headDim:  headDim,
	}
}

// Len returns the number of cached positions.
func (c *KVCache) Len() int {
	return c.length
}

// Batch returns the batch size the cache was built for.
func (c *KVCache) Batch() int {
	return c.batch
}

// Capacity returns the maximum number of positions.
func (c *KVCache) Capacity() int {
	return c.capacity
}

// Reset empties the cache for a new sequence. Storage is reused.
func (c *KVCache) Reset() {
	c.length = 0
}

// Append copies tokens new positions from projections k and v, each shaped
// [batch*tokens, heads*headDim], after the cached ones.
func (c *KVCache) Append(k, v *tensor.Tensor, tokens int) error {
	if c.length+tokens > c.capacity {
		return fmt.Errorf("%w: length=%d + new=%d > capacity=%d", ErrCacheOverflow, c.length, tokens, c.capacity)
	}
	width := c.heads * c.headDim
	kd, vd := k.Data(), v.Data()
	for b := 0; b < c.batch; b++ {
		for t := 0; t < tokens; t++ {
			src := (b*tokens + t) * width
			for h := 0; h < c.heads; h++ {
				dst := c.offset(b, h, c.length+t)
				copy(c.keys[dst:dst+c.headDim], kd[src+h*c.headDim:])
				copy(c.values[dst:dst+c.headDim], vd[src+h*c.headDim:])
			}
		}
	}
	c.length += tokens
	return nil
}

// Keys returns the cached keys of one (batch, head) pair as a [Len, headDim] view.
func (c *KVCache) Keys(b, h int) tensor.Matrix {
	return tensor.Matrix{Rows: c.length, Cols: c.headDim, Stride: c.headDim, Data: c.keys[c.offset(b, h, 0):]}
}

// Values returns the cached values of one (batch, head) pair as a [Len, headDim] view.
func (c *KVCache) Values(b, h int) tensor.Matrix {
	return tensor.Matrix{Rows: c.length, Cols: c.headDim, Stride: c.headDim, Data: c.values[c.offset(b, h, 0):]}
}

// Snapshot copies the live part of the cache into a (keys, values) pair of
// tensors shaped [batch, heads, Len, headDim].
func (c *KVCache) Snapshot() (keys, values *tensor.Tensor) {
	if c.length == 0 {
		return nil, nil
	}
	keys = tensor.Zeros(c.batch, c.heads, c.length, c.headDim)
	values = tensor.Zeros(c.batch, c.heads, c.length, c.headDim)
	n := c.length * c.headDim
	for b := 0; b < c.batch; b++ {
		for h := 0; h < c.heads; h++ {
			dst := (b*c.heads + h) * n
			src := c.offset(b, h, 0)
			copy(keys.Data()[dst:dst+n], c.keys[src:src+n])
			copy(values.Data()[dst:dst+n], c.values[src:src+n])
		}
	}
	return keys, values
}

func (c *KVCache) offset(b, h, pos int) int {
	return ((b*c.heads+h)*c.capacity + pos) * c.headDim
}
