package generate

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// StopMode selects how EOS ends generation for a batch.
type StopMode int

const (
	// StopPerSequence finishes each sequence on its own EOS; finished
	// sequences are padded until every sequence is done.
	StopPerSequence StopMode = iota

	// StopBatchOnAnyEOS ends the whole batch on the step where any
	// sequence emits EOS.
	StopBatchOnAnyEOS
)

var stopModeNames = map[StopMode]string{
	StopPerSequence:   "per_sequence",
	StopBatchOnAnyEOS: "batch_on_any_eos",
}

// String returns the preset-file spelling of the mode.
func (m StopMode) String() string {
	if name, ok := stopModeNames[m]; ok {
		return name
	}
	return fmt.Sprintf("StopMode(%d)", int(m))
}

// ParseStopMode parses "per_sequence" or "batch_on_any_eos".
func ParseStopMode(s string) (StopMode, error) {
	for mode, name := range stopModeNames {
		if name == s {
			return mode, nil
		}
	}
	return 0, &SamplingParameterError{Name: "stop_mode", Value: s, Reason: "want per_sequence or batch_on_any_eos"}
}

// UnmarshalYAML decodes the mode from its name.
func (m *StopMode) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	mode, err := ParseStopMode(s)
	if err != nil {
		return err
	}
	*m = mode
	return nil
}

// MarshalYAML encodes the mode as its name.
func (m StopMode) MarshalYAML() (any, error) {
	return m.String(), nil
}

// GenerationConfig enumerates every generation option.
type GenerationConfig struct {
	// MaxLength bounds the total sequence length, prompt included.
	MaxLength int `yaml:"max_length"`

	// MaxNewTokens additionally bounds the number of decode steps. 0 = unset.
	MaxNewTokens int `yaml:"max_new_tokens"`

	// MinLength forbids EOS until a sequence has this many tokens.
	MinLength int `yaml:"min_length"`

	Temperature       float32 `yaml:"temperature"`
	TopK              int     `yaml:"top_k"`
	TopP              float32 `yaml:"top_p"`
	DoSample          bool    `yaml:"do_sample"`
	RepetitionPenalty float32 `yaml:"repetition_penalty"`

	PadTokenID int32 `yaml:"pad_token_id"`
	EOSTokenID int32 `yaml:"eos_token_id"`

	// NumReturnSequences generates this many continuations per prompt.
	NumReturnSequences int `yaml:"num_return_sequences"`

	// Seed for reproducible sampling. -1 = random.
	Seed int64 `yaml:"seed"`

	StopMode StopMode `yaml:"stop_mode"`

	// UseCache decodes incrementally with a key/value cache. When false
	// the full sequence is recomputed every step.
	UseCache bool `yaml:"use_cache"`

	// OnStep, if set, observes every state transition and decode step.
	OnStep func(Step) `yaml:"-"`
}

// DefaultGenerationConfig returns the defaults: sampled decoding with
// temperature 1, top-k 50, top-p 0.9, up to 100 total tokens.
func DefaultGenerationConfig() GenerationConfig {
	return GenerationConfig{
		MaxLength:          100,
		Temperature:        1.0,
		TopK:               50,
		TopP:               0.9,
		DoSample:           true,
		RepetitionPenalty:  1.0,
		PadTokenID:         0,
		EOSTokenID:         2,
		NumReturnSequences: 1,
		Seed:               -1,
		StopMode:           StopPerSequence,
		UseCache:           true,
	}
}

// Sampling returns the per-token part of the config.
func (c GenerationConfig) Sampling() SamplingConfig {
	return SamplingConfig{
		Temperature:       c.Temperature,
		TopK:              c.TopK,
		TopP:              c.TopP,
		RepetitionPenalty: c.RepetitionPenalty,
		DoSample:          c.DoSample,
		PadTokenID:        c.PadTokenID,
		Seed:              c.Seed,
	}
}

// Validate checks every option against a vocabulary of vocabSize tokens.
func (c GenerationConfig) Validate(vocabSize int) error {
	if err := c.Sampling().Validate(); err != nil {
		return err
	}
	switch {
	case c.MaxLength <= 0:
		return &SamplingParameterError{Name: "max_length", Value: c.MaxLength, Reason: "must be positive"}
	case c.MaxNewTokens < 0:
		return &SamplingParameterError{Name: "max_new_tokens", Value: c.MaxNewTokens, Reason: "must be >= 0"}
	case c.MinLength < 0:
		return &SamplingParameterError{Name: "min_length", Value: c.MinLength, Reason: "must be >= 0"}
	case c.NumReturnSequences < 1:
		return &SamplingParameterError{Name: "num_return_sequences", Value: c.NumReturnSequences, Reason: "must be >= 1"}
	case c.PadTokenID < 0 || int(c.PadTokenID) >= vocabSize:
		return &SamplingParameterError{Name: "pad_token_id", Value: c.PadTokenID, Reason: fmt.Sprintf("outside vocabulary of %d", vocabSize)}
	case c.EOSTokenID < 0 || int(c.EOSTokenID) >= vocabSize:
		return &SamplingParameterError{Name: "eos_token_id", Value: c.EOSTokenID, Reason: fmt.Sprintf("outside vocabulary of %d", vocabSize)}
	case c.StopMode != StopPerSequence && c.StopMode != StopBatchOnAnyEOS:
		return &SamplingParameterError{Name: "stop_mode", Value: c.StopMode, Reason: "unknown mode"}
	}
	return nil
}

// ParseConfig decodes a YAML (or JSON) preset on top of
// DefaultGenerationConfig. Unknown keys are rejected.
func ParseConfig(data []byte) (GenerationConfig, error) {
	cfg := DefaultGenerationConfig()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return GenerationConfig{}, fmt.Errorf("failed to parse generation config: %w", err)
	}
	return cfg, nil
}

// LoadConfig reads a preset file. See ParseConfig.
func LoadConfig(path string) (GenerationConfig, error) {
	//nolint:gosec // G304: File path comes from user input, which is expected for presets
	data, err := os.ReadFile(path)
	if err != nil {
		return GenerationConfig{}, fmt.Errorf("failed to read generation config: %w", err)
	}
	cfg, err := ParseConfig(data)
	if err != nil {
		return GenerationConfig{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}
