// Package model implements the decoder-only transformer language model:
// tied token embedding, sinusoidal positions, a stack of pre-normalised
// transformer blocks, final layer norm and the tied output projection.
package model

import (
	"fmt"
	"log/slog"
	"math/rand"
	"sync"

	"github.com/lumen-ml/lumen/internal/nn"
	"github.com/lumen-ml/lumen/internal/parallel"
	"github.com/lumen-ml/lumen/internal/tensor"
)

// Model is the transformer stack.
//
// Parameters are guarded by an RWMutex: Forward holds the read lock, while
// Update and LoadStateDict hold the write lock, so inference never observes a
// partially applied optimiser step.
type Model struct {
	mu sync.RWMutex

	cfg       Config
	embedding *nn.Embedding
	position  *nn.PositionalEncoding
	dropout   nn.Dropout
	blocks    []*nn.TransformerBlock
	finalNorm *nn.LayerNorm

	logger   *slog.Logger
	parallel parallel.Config
}

// Option configures a Model.
type Option func(*options)

type options struct {
	seed     int64
	logger   *slog.Logger
	parallel parallel.Config
}

// WithSeed sets the seed for weight initialisation.
func WithSeed(seed int64) Option {
	return func(o *options) {
		o.seed = seed
	}
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithParallel bounds the fan-out of the compute kernels.
func WithParallel(cfg parallel.Config) Option {
	return func(o *options) {
		o.parallel = cfg
	}
}

// New validates cfg and builds a freshly initialised model: weight matrices
// from N(0, initializer_range), biases 0, layer norms at identity, and the
// pad row of the embedding zeroed.
func New(cfg Config, opts ...Option) (*Model, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	o := &options{
		logger:   slog.Default(),
		parallel: parallel.DefaultConfig(),
	}
	for _, opt := range opts {
		opt(o)
	}

	weights := nn.Init{Rng: rand.New(rand.NewSource(o.seed)), Std: float32(cfg.InitializerRange)} //nolint:gosec // G404: weights do not need crypto randomness
	eps := float32(cfg.LayerNormEps)

	m := &Model{
		cfg:       cfg,
		embedding: nn.NewEmbedding("embedding.weight", cfg.VocabSize, cfg.HiddenSize, weights, int(cfg.PadTokenID)),
		position:  nn.NewPositionalEncoding(cfg.HiddenSize, cfg.MaxSeqLength),
		dropout:   nn.Dropout{P: float32(cfg.Dropout)},
		blocks:    make([]*nn.TransformerBlock, cfg.NumLayers),
		finalNorm: nn.NewLayerNorm("final_layer_norm", cfg.HiddenSize, eps),
		logger:    o.logger,
		parallel:  o.parallel,
	}
	blockCfg := nn.BlockConfig{
		Hidden:       cfg.HiddenSize,
		Heads:        cfg.NumAttentionHeads,
		Intermediate: cfg.IntermediateSize,
		Dropout:      float32(cfg.Dropout),
		Epsilon:      eps,
	}
	for i := range m.blocks {
		m.blocks[i] = nn.NewTransformerBlock(fmt.Sprintf("layers.%d", i), blockCfg, weights)
	}

	m.logger.Debug("model built",
		"layers", cfg.NumLayers,
		"hidden", cfg.HiddenSize,
		"heads", cfg.NumAttentionHeads,
		"vocab", cfg.VocabSize,
		"parameters", m.NumParameters())
	return m, nil
}

// Config returns the architecture.
func (m *Model) Config() Config {
	return m.cfg
}

// Logger returns the model's logger.
func (m *Model) Logger() *slog.Logger {
	return m.logger
}

// Parameters returns every parameter once, the tied embedding first.
func (m *Model) Parameters() []*nn.Parameter {
	ps := m.embedding.Parameters()
	for _, b := range m.blocks {
		ps = append(ps, b.Parameters()...)
	}
	return append(ps, m.finalNorm.Parameters()...)
}

// NumParameters returns the number of scalars across all parameters.
func (m *Model) NumParameters() int {
	var n int
	for _, p := range m.Parameters() {
		n += p.NumElements()
	}
	return n
}

// Cache holds one key/value cache per layer for incremental decoding.
type Cache struct {
	layers []*nn.KVCache
}

// NewCache allocates an empty cache for batch sequences with room for
// MaxSeqLength positions.
func (m *Model) NewCache(batch int) *Cache {
	c := &Cache{layers: make([]*nn.KVCache, len(m.blocks))}
	for i := range c.layers {
		c.layers[i] = nn.NewKVCache(batch, m.cfg.NumAttentionHeads, m.cfg.MaxSeqLength, m.cfg.HeadDim())
	}
	return c
}

// Len returns the number of cached positions.
func (c *Cache) Len() int {
	return c.layers[0].Len()
}

// Batch returns the batch size the cache was allocated for.
func (c *Cache) Batch() int {
	return c.layers[0].Batch()
}

// Layer returns the cache of layer i.
func (c *Cache) Layer(i int) *nn.KVCache {
	return c.layers[i]
}

// NumLayers returns the number of per-layer entries.
func (c *Cache) NumLayers() int {
	return len(c.layers)
}

// Reset empties every layer for reuse.
func (c *Cache) Reset() {
	for _, l := range c.layers {
		l.Reset()
	}
}

// ForwardOptions selects the optional inputs and outputs of Forward.
type ForwardOptions struct {
	// AttentionMask is [batch, cached+seq] with 1 for real tokens and 0 for
	// padding. Nil means every position is real.
	AttentionMask [][]int32

	// Cache, when set, supplies the past keys and values and is extended
	// in place with the new positions.
	Cache *Cache

	OutputAttentions   bool
	OutputHiddenStates bool
}

// Output is the result of Forward.
type Output struct {
	Logits *tensor.Tensor // [batch, seq, vocab]
	Cache  *Cache

	// HiddenStates holds the input of every layer followed by the final
	// normalised state (NumLayers+1 tensors of [batch, seq, hidden]).
	HiddenStates []*tensor.Tensor

	// Attentions holds per-layer probabilities [batch, heads, seq, cached+seq].
	Attentions []*tensor.Tensor
}

// Forward runs the model in inference mode over ids [batch][seq].
func (m *Model) Forward(ids [][]int32, opts ForwardOptions) (*Output, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	flat, batch, seq, err := m.flatten(ids)
	if err != nil {
		return nil, err
	}
	past := 0
	if opts.Cache != nil {
		if opts.Cache.Batch() != batch {
			return nil, &ShapeMismatchError{
				What:    "cache",
				Details: fmt.Sprintf("allocated for batch %d, input has %d", opts.Cache.Batch(), batch),
			}
		}
		past = opts.Cache.Len()
	}
	keyMask, err := m.keyMask(opts.AttentionMask, batch, past+seq)
	if err != nil {
		return nil, err
	}

	pass := &nn.Pass{Parallel: m.parallel}
	out, _, err := m.run(flat, batch, seq, keyMask, opts.Cache, pass, opts)
	return out, err
}

// run is the shared forward body. The tape is non-nil when pass.Record is set.
func (m *Model) run(ids []int32, batch, seq int, keyMask []float32, cache *Cache, pass *nn.Pass, opts ForwardOptions) (*Output, *Tape, error) {
	past := 0
	if cache != nil {
		past = cache.Len()
	}
	if past+seq > m.cfg.MaxSeqLength {
		return nil, nil, &ConfigError{
			Field:  "max_seq_length",
			Reason: fmt.Sprintf("%d cached + %d new positions exceed %d", past, seq, m.cfg.MaxSeqLength),
		}
	}

	var h *tensor.Tensor
	var err error
	if keyMask == nil {
		h, err = m.position.ApplyAt(m.embedding.Lookup(ids, batch, seq), past)
	} else {
		h, err = m.position.ApplyPositions(m.embedding.Lookup(ids, batch, seq), positions(keyMask, batch, past, seq))
	}
	if err != nil {
		return nil, nil, &ConfigError{Field: "max_seq_length", Reason: err.Error()}
	}
	embedMask := m.dropout.Forward(h, pass)

	out := &Output{Cache: cache}
	var tape *Tape
	if pass.Record {
		tape = &Tape{ids: ids, batch: batch, seq: seq, embedMask: embedMask, blocks: make([]*nn.BlockTape, len(m.blocks))}
	}

	for i, block := range m.blocks {
		if opts.OutputHiddenStates {
			out.HiddenStates = append(out.HiddenStates, h)
		}
		var layerCache *nn.KVCache
		if cache != nil {
			layerCache = cache.layers[i]
		}
		next, probs, blockTape, err := block.Forward(h, layerCache, keyMask, pass)
		if err != nil {
			return nil, nil, fmt.Errorf("layer %d: %w", i, err)
		}
		if opts.OutputAttentions {
			out.Attentions = append(out.Attentions, probs)
		}
		if tape != nil {
			tape.blocks[i] = blockTape
		}
		h = next
	}

	normed, finalTape := m.finalNorm.Forward(h, pass)
	if opts.OutputHiddenStates {
		out.HiddenStates = append(out.HiddenStates, normed)
	}
	out.Logits = m.embedding.Project(normed)

	if tape != nil {
		tape.final = finalTape
		tape.normed = normed
	}
	return out, tape, nil
}

// positions numbers the real tokens of each row from 0 using the
// [batch, past+seq] key mask, so left padding does not shift a prompt.
// Padded slots repeat the previous position, or 0 before any real token.
func positions(keyMask []float32, batch, past, seq int) []int {
	total := past + seq
	out := make([]int, 0, batch*seq)
	for b := 0; b < batch; b++ {
		row := keyMask[b*total : (b+1)*total]
		seen := 0
		for j, v := range row {
			if v != 0 {
				seen++
			}
			if j >= past {
				out = append(out, max(seen-1, 0))
			}
		}
	}
	return out
}

// flatten checks that ids is a non-empty rectangular batch of in-vocabulary
// tokens and returns it row-major.
func (m *Model) flatten(ids [][]int32) ([]int32, int, int, error) {
	if len(ids) == 0 || len(ids[0]) == 0 {
		return nil, 0, 0, &ShapeMismatchError{What: "input_ids", Details: "empty batch or sequence"}
	}
	batch, seq := len(ids), len(ids[0])
	flat := make([]int32, 0, batch*seq)
	for b, row := range ids {
		if len(row) != seq {
			return nil, 0, 0, &ShapeMismatchError{
				What:    "input_ids",
				Details: fmt.Sprintf("row %d has length %d, row 0 has %d", b, len(row), seq),
			}
		}
		for t, id := range row {
			if id < 0 || int(id) >= m.cfg.VocabSize {
				return nil, 0, 0, &ShapeMismatchError{
					What:    "input_ids",
					Details: fmt.Sprintf("token %d at [%d, %d] outside vocabulary of %d", id, b, t, m.cfg.VocabSize),
				}
			}
		}
		flat = append(flat, row...)
	}
	return flat, batch, seq, nil
}

// keyMask flattens a [batch, total] 0/1 mask. Nil stays nil.
func (m *Model) keyMask(mask [][]int32, batch, total int) ([]float32, error) {
	if mask == nil {
		return nil, nil
	}
	if len(mask) != batch {
		return nil, &ShapeMismatchError{
			What:    "attention_mask",
			Details: fmt.Sprintf("has %d rows, want %d", len(mask), batch),
		}
	}
	flat := make([]float32, 0, batch*total)
	for b, row := range mask {
		if len(row) != total {
			return nil, &ShapeMismatchError{
				What:    "attention_mask",
				Details: fmt.Sprintf("row %d has length %d, want cached+seq = %d", b, len(row), total),
			}
		}
		for _, v := range row {
			if v != 0 {
				flat = append(flat, 1)
			} else {
				flat = append(flat, 0)
			}
		}
	}
	return flat, nil
}
