package model

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"
	"strings"
)

// Config describes the architecture. It is immutable once a model is built.
//
// The JSON form is a flat record with exactly these twelve keys; decoding
// rejects missing and unknown keys.
type Config struct {
	VocabSize         int     `json:"vocab_size"`
	MaxSeqLength      int     `json:"max_seq_length"`
	HiddenSize        int     `json:"hidden_size"`
	NumLayers         int     `json:"num_layers"`
	NumAttentionHeads int     `json:"num_attention_heads"`
	IntermediateSize  int     `json:"intermediate_size"`
	Dropout           float64 `json:"dropout"`
	LayerNormEps      float64 `json:"layer_norm_eps"`
	InitializerRange  float64 `json:"initializer_range"`
	PadTokenID        int32   `json:"pad_token_id"`
	BOSTokenID        int32   `json:"bos_token_id"`
	EOSTokenID        int32   `json:"eos_token_id"`
}

// configKeys lists the JSON keys in file order.
var configKeys = []string{
	"vocab_size", "max_seq_length", "hidden_size", "num_layers",
	"num_attention_heads", "intermediate_size", "dropout", "layer_norm_eps",
	"initializer_range", "pad_token_id", "bos_token_id", "eos_token_id",
}

// DefaultConfig returns a GPT-2-small sized configuration.
func DefaultConfig() Config {
	return Config{
		VocabSize:         50257,
		MaxSeqLength:      1024,
		HiddenSize:        768,
		NumLayers:         12,
		NumAttentionHeads: 12,
		IntermediateSize:  3072,
		Dropout:           0.1,
		LayerNormEps:      1e-12,
		InitializerRange:  0.02,
		PadTokenID:        0,
		BOSTokenID:        1,
		EOSTokenID:        2,
	}
}

// HeadDim returns HiddenSize / NumAttentionHeads.
func (c Config) HeadDim() int {
	return c.HiddenSize / c.NumAttentionHeads
}

// Validate checks every invariant of the configuration.
func (c Config) Validate() error {
	positive := []struct {
		field string
		value int
	}{
		{"vocab_size", c.VocabSize},
		{"max_seq_length", c.MaxSeqLength},
		{"hidden_size", c.HiddenSize},
		{"num_layers", c.NumLayers},
		{"num_attention_heads", c.NumAttentionHeads},
		{"intermediate_size", c.IntermediateSize},
	}
	for _, p := range positive {
		if p.value <= 0 {
			return &ConfigError{Field: p.field, Reason: fmt.Sprintf("must be positive, got %d", p.value)}
		}
	}

	if c.HiddenSize%c.NumAttentionHeads != 0 {
		return &ConfigError{
			Field:  "hidden_size",
			Reason: fmt.Sprintf("%d is not divisible by num_attention_heads %d", c.HiddenSize, c.NumAttentionHeads),
		}
	}
	if c.Dropout < 0 || c.Dropout >= 1 {
		return &ConfigError{Field: "dropout", Reason: fmt.Sprintf("must be in [0, 1), got %g", c.Dropout)}
	}
	if c.LayerNormEps <= 0 {
		return &ConfigError{Field: "layer_norm_eps", Reason: fmt.Sprintf("must be positive, got %g", c.LayerNormEps)}
	}
	if c.InitializerRange <= 0 {
		return &ConfigError{Field: "initializer_range", Reason: fmt.Sprintf("must be positive, got %g", c.InitializerRange)}
	}

	special := []struct {
		field string
		id    int32
	}{
		{"pad_token_id", c.PadTokenID},
		{"bos_token_id", c.BOSTokenID},
		{"eos_token_id", c.EOSTokenID},
	}
	for _, s := range special {
		if s.id < 0 || int(s.id) >= c.VocabSize {
			return &ConfigError{Field: s.field, Reason: fmt.Sprintf("%d outside vocabulary of %d", s.id, c.VocabSize)}
		}
	}
	return nil
}

// ParseConfig decodes and validates a JSON config.
func ParseConfig(data []byte) (Config, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return Config{}, &ConfigError{Reason: fmt.Sprintf("malformed JSON: %v", err)}
	}

	var missing, unknown []string
	known := make(map[string]bool, len(configKeys))
	for _, k := range configKeys {
		known[k] = true
		if _, ok := fields[k]; !ok {
			missing = append(missing, k)
		}
	}
	for k := range fields {
		if !known[k] {
			unknown = append(unknown, k)
		}
	}
	sort.Strings(unknown)
	if len(missing) > 0 {
		return Config{}, &ConfigError{Reason: "missing keys: " + strings.Join(missing, ", ")}
	}
	if len(unknown) > 0 {
		return Config{}, &ConfigError{Reason: "unknown keys: " + strings.Join(unknown, ", ")}
	}

	var cfg Config
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return Config{}, &ConfigError{Reason: fmt.Sprintf("decode: %v", err)}
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadConfig reads a config file. A missing file yields ErrConfigNotFound.
func LoadConfig(path string) (Config, error) {
	//nolint:gosec // G304: File path comes from user input, which is expected for model loading
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("%w: %s", ErrConfigNotFound, path)
	}
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config: %w", err)
	}
	cfg, err := ParseConfig(data)
	if err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// SaveConfig writes the config as indented JSON.
func (c Config) SaveConfig(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil { //nolint:gosec // G306: config is not secret
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}
