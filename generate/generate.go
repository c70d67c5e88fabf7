// Package generate provides autoregressive text generation for lumen models.
//
// This package wraps the internal generate implementation and provides
// a clean public API for generation tasks.
//
// Components:
//   - Sampler: repetition penalty, temperature, top-k and top-p sampling
//   - Generator: batched prefill/decode loop with a key/value cache
//   - GenerationConfig: every generation option, loadable from YAML presets
//
// Example usage:
//
//	import (
//	    "github.com/lumen-ml/lumen/generate"
//	    "github.com/lumen-ml/lumen/model"
//	)
//
//	m, _ := model.Load("./checkpoints/tiny")
//	gen := generate.NewGenerator(m)
//
//	cfg := generate.DefaultGenerationConfig()
//	cfg.MaxNewTokens = 32
//	cfg.Temperature = 0.7
//	seqs, err := gen.Generate([][]int32{{1, 17, 42}}, cfg)
package generate

import (
	"github.com/lumen-ml/lumen/internal/generate"
)

// Sampling

// SamplingConfig configures a single next-token draw.
//
// Parameters:
//   - Temperature: logit divisor (below 1e-5 = greedy)
//   - TopK: keep the K highest logits (0 = disabled)
//   - TopP: keep the smallest prefix with cumulative probability >= P (1 = disabled)
//   - RepetitionPenalty: penalty for tokens already in the history (1 = none)
//   - DoSample: false = greedy
//   - Seed: random seed (-1 = random)
type SamplingConfig = generate.SamplingConfig

// DefaultSamplingConfig returns temperature 1, top-k 50, top-p 0.9 sampling.
func DefaultSamplingConfig() SamplingConfig {
	return generate.DefaultSamplingConfig()
}

// Sampler draws next tokens from logits.
type Sampler = generate.Sampler

// NewSampler validates config and creates a sampler.
//
// Example:
//
//	sampler, err := generate.NewSampler(generate.SamplingConfig{
//	    Temperature: 0.7,
//	    TopK:        50,
//	    TopP:        1,
//	    DoSample:    true,
//	    Seed:        42,
//	})
//	token := sampler.Sample(logits, history)
func NewSampler(config SamplingConfig) (*Sampler, error) {
	return generate.NewSampler(config)
}

// Generation

// GenerationConfig enumerates every generation option.
type GenerationConfig = generate.GenerationConfig

// DefaultGenerationConfig returns sampled decoding with temperature 1,
// top-k 50, top-p 0.9, up to 100 total tokens.
func DefaultGenerationConfig() GenerationConfig {
	return generate.DefaultGenerationConfig()
}

// ParseConfig decodes a YAML (or JSON) preset over the defaults.
func ParseConfig(data []byte) (GenerationConfig, error) {
	return generate.ParseConfig(data)
}

// LoadConfig reads a preset file.
func LoadConfig(path string) (GenerationConfig, error) {
	return generate.LoadConfig(path)
}

// StopMode selects how EOS ends generation for a batch.
type StopMode = generate.StopMode

const (
	StopPerSequence   = generate.StopPerSequence
	StopBatchOnAnyEOS = generate.StopBatchOnAnyEOS
)

// ParseStopMode parses "per_sequence" or "batch_on_any_eos".
func ParseStopMode(s string) (StopMode, error) {
	return generate.ParseStopMode(s)
}

// State is the phase of the generation loop.
type State = generate.State

const (
	StatePrefill = generate.StatePrefill
	StateDecode  = generate.StateDecode
	StateDone    = generate.StateDone
)

// Step is passed to GenerationConfig.OnStep.
type Step = generate.Step

// Model is what a Generator drives; *model.Model implements it.
type Model = generate.Model

// Generator runs the generation loop for a model.
type Generator = generate.Generator

// GeneratorOption configures a Generator.
type GeneratorOption = generate.GeneratorOption

// WithLogger sets the generator's logger.
var WithLogger = generate.WithLogger

// NewGenerator creates a generator for m.
func NewGenerator(m Model, opts ...GeneratorOption) *Generator {
	return generate.NewGenerator(m, opts...)
}

// Errors

// ErrSamplingParameter is matched by every SamplingParameterError.
var ErrSamplingParameter = generate.ErrSamplingParameter

// SamplingParameterError reports an out-of-range generation setting.
type SamplingParameterError = generate.SamplingParameterError
