// Package tensor provides the dense float32 arrays and CPU kernels the
// language model is built from.
//
// Tensors are row-major and contiguous. Reshape returns a view that shares
// storage; every other constructor allocates.
package tensor

import (
	"fmt"
	"math/rand"
)

// Tensor is a contiguous row-major float32 array.
type Tensor struct {
	shape   Shape
	strides []int
	data    []float32
}

// Zeros allocates a zero-filled tensor.
// Panics if any dimension is not positive.
func Zeros(shape ...int) *Tensor {
	s := Shape(shape)
	if err := s.Validate(); err != nil {
		panic(fmt.Sprintf("tensor.Zeros: %v", err))
	}
	return &Tensor{
		shape:   s.Clone(),
		strides: s.ComputeStrides(),
		data:    make([]float32, s.NumElements()),
	}
}

// Full allocates a tensor with every element set to value.
func Full(value float32, shape ...int) *Tensor {
	t := Zeros(shape...)
	for i := range t.data {
		t.data[i] = value
	}
	return t
}

// FromSlice wraps a copy of data in a tensor of the given shape.
func FromSlice(data []float32, shape Shape) (*Tensor, error) {
	if err := shape.Validate(); err != nil {
		return nil, err
	}
	if shape.NumElements() != len(data) {
		return nil, fmt.Errorf("shape %v requires %d elements, but got %d", shape, shape.NumElements(), len(data))
	}
	t := Zeros(shape...)
	copy(t.data, data)
	return t, nil
}

// Randn fills a new tensor with draws from N(0, std²).
func Randn(rng *rand.Rand, std float32, shape ...int) *Tensor {
	t := Zeros(shape...)
	for i := range t.data {
		t.data[i] = float32(rng.NormFloat64()) * std
	}
	return t
}

// Shape returns the tensor's shape. Callers must not modify it.
func (t *Tensor) Shape() Shape {
	return t.shape
}

// Dim returns the size of dimension i. Negative i counts from the end.
func (t *Tensor) Dim(i int) int {
	if i < 0 {
		i += len(t.shape)
	}
	return t.shape[i]
}

// Rank returns the number of dimensions.
func (t *Tensor) Rank() int {
	return len(t.shape)
}

// Len returns the number of elements.
func (t *Tensor) Len() int {
	return len(t.data)
}

// Data returns the backing slice. Writes are visible through the tensor.
func (t *Tensor) Data() []float32 {
	return t.data
}

// Clone returns a deep copy.
func (t *Tensor) Clone() *Tensor {
	data := make([]float32, len(t.data))
	copy(data, t.data)
	return &Tensor{
		shape:   t.shape.Clone(),
		strides: append([]int(nil), t.strides...),
		data:    data,
	}
}

// Reshape returns a view with a new shape over the same storage.
// Panics if the element count differs.
func (t *Tensor) Reshape(shape ...int) *Tensor {
	s := Shape(shape)
	if s.NumElements() != len(t.data) {
		panic(fmt.Sprintf("tensor.Reshape: cannot reshape %v into %v", t.shape, s))
	}
	return &Tensor{
		shape:   s.Clone(),
		strides: s.ComputeStrides(),
		data:    t.data,
	}
}

// At returns the element at the given index.
func (t *Tensor) At(idx ...int) float32 {
	return t.data[t.offset(idx)]
}

// Set stores value at the given index.
func (t *Tensor) Set(value float32, idx ...int) {
	t.data[t.offset(idx)] = value
}

// Row returns the i-th slice along the last dimension, treating the tensor
// as a [NumElements/lastDim, lastDim] matrix.
func (t *Tensor) Row(i int) []float32 {
	n := t.shape[len(t.shape)-1]
	return t.data[i*n : (i+1)*n]
}

// Rows returns the number of last-dimension rows.
func (t *Tensor) Rows() int {
	return len(t.data) / t.shape[len(t.shape)-1]
}

// Matrix views the tensor as a [Rows, lastDim] matrix.
func (t *Tensor) Matrix() Matrix {
	n := t.shape[len(t.shape)-1]
	return Matrix{Rows: len(t.data) / n, Cols: n, Stride: n, Data: t.data}
}

// String implements fmt.Stringer with the shape only.
func (t *Tensor) String() string {
	return fmt.Sprintf("Tensor%v", []int(t.shape))
}

func (t *Tensor) offset(idx []int) int {
	if len(idx) != len(t.shape) {
		panic(fmt.Sprintf("tensor: index rank %d does not match shape %v", len(idx), t.shape))
	}
	off := 0
	for i, v := range idx {
		if v < 0 || v >= t.shape[i] {
			panic(fmt.Sprintf("tensor: index %v out of range for shape %v", idx, t.shape))
		}
		off += v * t.strides[i]
	}
	return off
}
