// Package model provides the public API of the lumen decoder-only
// transformer.
//
// This package wraps internal/model and exposes:
//   - Config: the 12-key JSON configuration
//   - Model: embedding, positional encoding, transformer blocks and the
//     tied output projection
//   - Cache: per-layer key/value cache for incremental decoding
//   - Save/Load: config.json plus model.safetensors in a directory
//
// Example usage:
//
//	import "github.com/lumen-ml/lumen/model"
//
//	m, err := model.New(model.DefaultConfig(), model.WithSeed(42))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	out, err := m.Forward([][]int32{{1, 17, 42}}, model.ForwardOptions{})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	logits := out.Logits // [1, 3, vocab]
package model

import (
	"github.com/lumen-ml/lumen/internal/model"
	"github.com/lumen-ml/lumen/internal/parallel"
)

// Configuration

// Config is the model hyperparameter set, serialised as config.json.
type Config = model.Config

// DefaultConfig returns the default configuration.
//
// Defaults:
//   - VocabSize: 50257, MaxSeqLength: 1024
//   - HiddenSize: 768, NumLayers: 12, NumAttentionHeads: 12
//   - IntermediateSize: 3072, Dropout: 0.1
//   - LayerNormEps: 1e-12, InitializerRange: 0.02
//   - PadTokenID: 0, BOSTokenID: 1, EOSTokenID: 2
func DefaultConfig() Config {
	return model.DefaultConfig()
}

// ParseConfig decodes a JSON config. All 12 keys are required and unknown
// keys are rejected.
func ParseConfig(data []byte) (Config, error) {
	return model.ParseConfig(data)
}

// LoadConfig reads and parses a JSON config file.
func LoadConfig(path string) (Config, error) {
	return model.LoadConfig(path)
}

// Model

// Model is a decoder-only transformer language model. Forward passes may
// run concurrently; parameter updates take an exclusive lock.
type Model = model.Model

// Option configures New and Load.
type Option = model.Option

// Cache holds the key/value history of every layer for one batch.
type Cache = model.Cache

// ForwardOptions controls masking, caching and auxiliary outputs.
type ForwardOptions = model.ForwardOptions

// Output is the result of Forward.
type Output = model.Output

// New creates a model with freshly initialised weights.
func New(cfg Config, opts ...Option) (*Model, error) {
	return model.New(cfg, opts...)
}

// Load reads config.json and model.safetensors from dir. A missing weights
// file is logged and the fresh weights are kept.
func Load(dir string, opts ...Option) (*Model, error) {
	return model.Load(dir, opts...)
}

// Options

// WithSeed makes weight initialisation reproducible.
var WithSeed = model.WithSeed

// WithLogger sets the logger used for load/save diagnostics.
var WithLogger = model.WithLogger

// WithParallel sets the worker configuration of the numeric kernels.
var WithParallel = model.WithParallel

// ParallelConfig controls how the numeric kernels fan out across goroutines.
type ParallelConfig = parallel.Config

// DefaultParallelConfig uses one worker per CPU.
func DefaultParallelConfig() ParallelConfig {
	return parallel.DefaultConfig()
}

// SequentialParallelConfig never spawns goroutines.
func SequentialParallelConfig() ParallelConfig {
	return parallel.Sequential()
}

// File names and metadata keys

const (
	ConfigFile         = model.ConfigFile
	WeightsFile        = model.WeightsFile
	MetadataFormat     = model.MetadataFormat
	MetadataSnapshotID = model.MetadataSnapshotID
)

// WeightsInfo summarises a saved weight file.
type WeightsInfo = model.WeightsInfo

// ReadWeightsInfo reads the metadata of dir's weight file.
func ReadWeightsInfo(dir string) (WeightsInfo, error) {
	return model.ReadWeightsInfo(dir)
}

// Errors

var (
	ErrConfig          = model.ErrConfig
	ErrConfigNotFound  = model.ErrConfigNotFound
	ErrShapeMismatch   = model.ErrShapeMismatch
	ErrWeightsNotFound = model.ErrWeightsNotFound
)

// ConfigError reports an invalid configuration field.
type ConfigError = model.ConfigError

// ShapeMismatchError reports inputs or tensors of the wrong shape.
type ShapeMismatchError = model.ShapeMismatchError
