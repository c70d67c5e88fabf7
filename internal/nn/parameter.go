package nn

import (
	"github.com/lumen-ml/lumen/internal/tensor"
)

// Parameter is a named trainable tensor with a lazily allocated gradient.
//
// The name is the fully qualified key used in the weight file, e.g.
// "layers.0.attention.query.weight".
type Parameter struct {
	name  string
	value *tensor.Tensor
	grad  *tensor.Tensor
}

// NewParameter creates a parameter owning t.
func NewParameter(name string, t *tensor.Tensor) *Parameter {
	return &Parameter{name: name, value: t}
}

// Name returns the parameter name.
func (p *Parameter) Name() string {
	return p.name
}

// Tensor returns the parameter tensor.
func (p *Parameter) Tensor() *tensor.Tensor {
	return p.value
}

// Data returns the parameter storage.
func (p *Parameter) Data() []float32 {
	return p.value.Data()
}

// Grad returns the gradient tensor, or nil before the first backward pass.
func (p *Parameter) Grad() *tensor.Tensor {
	return p.grad
}

// GradData returns the gradient storage, allocating it on first use.
func (p *Parameter) GradData() []float32 {
	if p.grad == nil {
		p.grad = tensor.Zeros(p.value.Shape()...)
	}
	return p.grad.Data()
}

// ZeroGrad clears the accumulated gradient, keeping the allocation.
func (p *Parameter) ZeroGrad() {
	if p.grad == nil {
		return
	}
	g := p.grad.Data()
	for i := range g {
		g[i] = 0
	}
}

// NumElements returns the number of scalars in the parameter.
func (p *Parameter) NumElements() int {
	return p.value.Len()
}
