package train

import (
	"math"

	"github.com/lumen-ml/lumen/internal/nn"
)

// AdamW implements Adam with decoupled weight decay.
//
// Update rule, per element:
//
//	param = param - lr * wd * param                    // Decoupled decay
//	m_t = beta1 * m_{t-1} + (1-beta1) * grad           // First moment
//	v_t = beta2 * v_{t-1} + (1-beta2) * grad²          // Second moment
//	param = param - lr * m_hat / (sqrt(v_hat) + eps)   // Bias-corrected step
//
// Reference: "Decoupled Weight Decay Regularization" (Loshchilov & Hutter, 2019)
type AdamW struct {
	beta1       float32
	beta2       float32
	eps         float32
	weightDecay float32
	t           int // Timestep for bias correction
	state       map[*nn.Parameter]*moments
}

type moments struct {
	m []float32
	v []float32
}

// NewAdamW creates the optimiser from cfg's betas, epsilon and decay.
func NewAdamW(cfg Config) *AdamW {
	return &AdamW{
		beta1:       float32(cfg.Beta1),
		beta2:       float32(cfg.Beta2),
		eps:         float32(cfg.Epsilon),
		weightDecay: float32(cfg.WeightDecay),
		state:       make(map[*nn.Parameter]*moments),
	}
}

// Step applies one update at learning rate lr. Parameters that have never
// received a gradient are skipped.
func (a *AdamW) Step(params []*nn.Parameter, lr float64) {
	a.t++
	biasCorrection1 := 1 - float32(math.Pow(float64(a.beta1), float64(a.t)))
	biasCorrection2 := 1 - float32(math.Pow(float64(a.beta2), float64(a.t)))
	rate := float32(lr)

	for _, p := range params {
		if p.Grad() == nil {
			continue
		}
		st, ok := a.state[p]
		if !ok {
			st = &moments{m: make([]float32, p.NumElements()), v: make([]float32, p.NumElements())}
			a.state[p] = st
		}

		data, grad := p.Data(), p.GradData()
		decay := 1 - rate*a.weightDecay
		for i, g := range grad {
			data[i] *= decay
			st.m[i] = a.beta1*st.m[i] + (1-a.beta1)*g
			st.v[i] = a.beta2*st.v[i] + (1-a.beta2)*g*g
			mHat := st.m[i] / biasCorrection1
			vHat := st.v[i] / biasCorrection2
			data[i] -= rate * mHat / (float32(math.Sqrt(float64(vHat))) + a.eps)
		}
	}
}

// Steps returns the number of updates applied so far.
func (a *AdamW) Steps() int {
	return a.t
}

// ClipGradNorm rescales every gradient so that their joint L2 norm is at most
// maxNorm and returns the norm measured before clipping. maxNorm <= 0 only
// measures.
func ClipGradNorm(params []*nn.Parameter, maxNorm float64) float64 {
	var sum float64
	for _, p := range params {
		if p.Grad() == nil {
			continue
		}
		for _, g := range p.GradData() {
			sum += float64(g) * float64(g)
		}
	}
	norm := math.Sqrt(sum)
	if maxNorm <= 0 || norm <= maxNorm {
		return norm
	}

	scale := float32(maxNorm / (norm + 1e-6))
	for _, p := range params {
		if p.Grad() == nil {
			continue
		}
		grad := p.GradData()
		for i := range grad {
			grad[i] *= scale
		}
	}
	return norm
}
