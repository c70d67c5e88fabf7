// Package generate implements autoregressive decoding: logit processing
// (repetition penalty, temperature, top-k, top-p), token selection and the
// prefill/decode loop over a cached model.
package generate

import (
	"math"
	"math/rand"
	"sort"

	"github.com/lumen-ml/lumen/internal/tensor"
)

// greedyTemperature is the temperature below which sampling degenerates
// to argmax.
const greedyTemperature = 1e-5

// SamplingConfig configures how one token is picked from a logit row.
type SamplingConfig struct {
	// Temperature divides the logits. Values below 1e-5 select greedily.
	Temperature float32

	// TopK keeps the K largest logits. 0 = disabled.
	TopK int

	// TopP keeps the smallest set of tokens whose probability reaches P.
	// 1.0 = disabled.
	TopP float32

	// RepetitionPenalty lowers the logits of tokens already in the
	// sequence. 1.0 = no penalty.
	RepetitionPenalty float32

	// DoSample draws from the distribution; otherwise argmax.
	DoSample bool

	// PadTokenID is never penalised.
	PadTokenID int32

	// Seed for reproducibility. -1 = random.
	Seed int64
}

// DefaultSamplingConfig returns the defaults of DefaultGenerationConfig.
func DefaultSamplingConfig() SamplingConfig {
	return SamplingConfig{
		Temperature:       1.0,
		TopK:              50,
		TopP:              0.9,
		RepetitionPenalty: 1.0,
		DoSample:          true,
		Seed:              -1,
	}
}

// Validate rejects settings with no meaningful interpretation.
func (c SamplingConfig) Validate() error {
	switch {
	case math.IsNaN(float64(c.Temperature)) || c.Temperature < 0:
		return &SamplingParameterError{Name: "temperature", Value: c.Temperature, Reason: "must be >= 0"}
	case c.TopK < 0:
		return &SamplingParameterError{Name: "top_k", Value: c.TopK, Reason: "must be >= 0"}
	case math.IsNaN(float64(c.TopP)) || c.TopP <= 0 || c.TopP > 1:
		return &SamplingParameterError{Name: "top_p", Value: c.TopP, Reason: "must be in (0, 1]"}
	case math.IsNaN(float64(c.RepetitionPenalty)) || c.RepetitionPenalty <= 0:
		return &SamplingParameterError{Name: "repetition_penalty", Value: c.RepetitionPenalty, Reason: "must be > 0"}
	}
	return nil
}

// Greedy reports whether Sample reduces to argmax.
func (c SamplingConfig) Greedy() bool {
	return !c.DoSample || c.TopK == 1 || c.Temperature < greedyTemperature
}

// Sampler samples tokens from logits using configurable strategies.
// It is not safe for concurrent use.
type Sampler struct {
	config SamplingConfig
	rng    *rand.Rand
}

// NewSampler validates config and creates a sampler.
func NewSampler(config SamplingConfig) (*Sampler, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	var rng *rand.Rand
	if config.Seed >= 0 {
		rng = rand.New(rand.NewSource(config.Seed)) //nolint:gosec // Intentional deterministic seed for reproducibility
	} else {
		rng = rand.New(rand.NewSource(rand.Int63())) //nolint:gosec // User requested random seed
	}

	return &Sampler{
		config: config,
		rng:    rng,
	}, nil
}

// Sample returns the next token ID from logits.
//
// The sampling process:
//  1. Apply repetition penalty over history
//  2. Apply temperature scaling
//  3. Apply Top-K filtering
//  4. Apply Top-P (nucleus) filtering
//  5. Sample from the distribution (or argmax when greedy)
//
// logits is not modified.
func (s *Sampler) Sample(logits []float32, history []int32) int32 {
	processed := s.Process(logits, history)
	if s.config.Greedy() {
		return int32(tensor.Argmax(processed)) //nolint:gosec // vocab size is bounded by model architecture
	}
	return s.multinomial(tensor.Softmax(processed))
}

// Process returns a filtered copy of logits: the row Sample draws from.
// Removed tokens are -Inf.
func (s *Sampler) Process(logits []float32, history []int32) []float32 {
	logits = append([]float32{}, logits...)

	if s.config.RepetitionPenalty != 1.0 && len(history) > 0 {
		applyRepetitionPenalty(logits, history, s.config.RepetitionPenalty, s.config.PadTokenID)
	}
	if s.config.Greedy() {
		return logits
	}
	if s.config.Temperature != 1.0 {
		tensor.ScaleInPlace(logits, 1/s.config.Temperature)
	}
	if s.config.TopK > 0 {
		topKFilter(logits, s.config.TopK)
	}
	if s.config.TopP < 1.0 {
		topPFilter(logits, s.config.TopP)
	}
	return logits
}

// applyRepetitionPenalty lowers the logit of every distinct token of
// history except pad: positive logits are divided by penalty and negative
// ones multiplied, so penalty > 1 always moves them down.
func applyRepetitionPenalty(logits []float32, history []int32, penalty float32, pad int32) {
	seen := make(map[int32]bool, len(history))
	for _, tok := range history {
		if tok == pad || seen[tok] || tok < 0 || int(tok) >= len(logits) {
			continue
		}
		seen[tok] = true
		if logits[tok] > 0 {
			logits[tok] /= penalty
		} else {
			logits[tok] *= penalty
		}
	}
}

// descending returns the indices of logits ordered by value, largest first;
// equal values keep ascending index order.
func descending(logits []float32) []int {
	idx := make([]int, len(logits))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool { return logits[idx[a]] > logits[idx[b]] })
	return idx
}

// topKFilter keeps exactly min(k, len) entries, breaking ties by lower
// index, and sets the rest to -Inf.
func topKFilter(logits []float32, k int) {
	if k >= len(logits) {
		return
	}
	for _, i := range descending(logits)[k:] {
		logits[i] = tensor.NegInf
	}
}

// topPFilter keeps the shortest prefix of tokens, by descending
// probability, whose cumulative probability reaches p. At least one token
// always survives.
func topPFilter(logits []float32, p float32) {
	probs := tensor.Softmax(logits)
	order := descending(logits)

	var cum float64
	cut := len(order)
	for rank, i := range order {
		cum += float64(probs[i])
		if cum >= float64(p) {
			cut = rank + 1
			break
		}
	}
	for _, i := range order[cut:] {
		logits[i] = tensor.NegInf
	}
}

// multinomial samples from a categorical distribution.
func (s *Sampler) multinomial(probs []float32) int32 {
	r := s.rng.Float64()

	var cum float64
	last := 0
	for i, p := range probs {
		if p == 0 {
			continue
		}
		last = i
		cum += float64(p)
		if r < cum {
			return int32(i) //nolint:gosec // vocab size is bounded by model architecture
		}
	}

	// Rounding left r past the total mass.
	return int32(last) //nolint:gosec // vocab size is bounded by model architecture
}
