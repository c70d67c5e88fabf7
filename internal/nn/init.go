package nn

import (
	"math/rand"

	"github.com/lumen-ml/lumen/internal/tensor"
)

// Init draws initial weights from N(0, Std²).
type Init struct {
	Rng *rand.Rand
	Std float32
}

// Normal returns a freshly drawn tensor of the given shape.
func (i Init) Normal(shape ...int) *tensor.Tensor {
	return tensor.Randn(i.Rng, i.Std, shape...)
}
