package generate

import (
	"fmt"
	"log/slog"

	"github.com/lumen-ml/lumen/internal/model"
	"github.com/lumen-ml/lumen/internal/tensor"
	"github.com/lumen-ml/lumen/internal/tokenizer"
)

// State is the phase of the decoding loop.
type State int

// Decoding phases: PREFILL runs once over the prompt, DECODE once per new
// token, DONE after the loop exits.
const (
	StatePrefill State = iota
	StateDecode
	StateDone
)

// String implements fmt.Stringer.
func (s State) String() string {
	switch s {
	case StatePrefill:
		return "PREFILL"
	case StateDecode:
		return "DECODE"
	case StateDone:
		return "DONE"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Step is passed to GenerationConfig.OnStep.
type Step struct {
	State State

	// Index is the decode step (0-based). -1 for PREFILL.
	Index int

	// Tokens holds the token chosen for each sequence in this step. Nil
	// for PREFILL and DONE.
	Tokens []int32

	// Finished marks sequences that have emitted EOS.
	Finished []bool
}

// Model is the language model the generator drives.
type Model interface {
	Forward(ids [][]int32, opts model.ForwardOptions) (*model.Output, error)
	NewCache(batch int) *model.Cache
	Config() model.Config
}

// Generator runs the decoding loop over a model.
type Generator struct {
	model  Model
	logger *slog.Logger
}

// GeneratorOption configures a Generator.
type GeneratorOption func(*generatorOptions)

type generatorOptions struct {
	logger *slog.Logger
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) GeneratorOption {
	return func(o *generatorOptions) {
		o.logger = logger
	}
}

// NewGenerator creates a generator for m.
func NewGenerator(m Model, opts ...GeneratorOption) *Generator {
	options := &generatorOptions{
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(options)
	}
	return &Generator{model: m, logger: options.logger}
}

// Generate continues every prompt and returns, for each prompt,
// NumReturnSequences sequences of prompt followed by the generated tokens
// (prompt i owns rows [i*n, (i+1)*n)). All returned continuations have the
// same length; sequences that finished early are filled with PadTokenID.
//
// Prompts of unequal length are left-padded and masked internally.
func (g *Generator) Generate(prompts [][]int32, cfg GenerationConfig) ([][]int32, error) {
	mcfg := g.model.Config()
	if err := cfg.Validate(mcfg.VocabSize); err != nil {
		return nil, err
	}
	if len(prompts) == 0 {
		return nil, &model.ShapeMismatchError{What: "prompts", Details: "no prompts"}
	}

	rows := len(prompts) * cfg.NumReturnSequences
	history := make([][]int32, rows)
	lengths := make([]int, rows)
	promptLen := 0
	for i, p := range prompts {
		if len(p) == 0 {
			return nil, &model.ShapeMismatchError{What: "prompts", Details: fmt.Sprintf("prompt %d is empty", i)}
		}
		promptLen = max(promptLen, len(p))
		for j := 0; j < cfg.NumReturnSequences; j++ {
			history[i*cfg.NumReturnSequences+j] = append([]int32(nil), p...)
			lengths[i*cfg.NumReturnSequences+j] = len(p)
		}
	}

	if promptLen > mcfg.MaxSeqLength {
		return nil, &model.ConfigError{
			Field:  "max_seq_length",
			Reason: fmt.Sprintf("prompt of %d tokens exceeds %d", promptLen, mcfg.MaxSeqLength),
		}
	}

	steps := cfg.MaxLength - promptLen
	if cfg.MaxNewTokens > 0 {
		steps = min(steps, cfg.MaxNewTokens)
	}
	// The last step samples from logits already computed, so a prompt that
	// fills the context still yields one token.
	if limit := mcfg.MaxSeqLength - promptLen + 1; steps > limit {
		g.logger.Debug("clamping decode steps to model context", "requested", steps, "limit", limit)
		steps = limit
	}

	sampler, err := NewSampler(cfg.Sampling())
	if err != nil {
		return nil, err
	}
	l := &loop{
		model:    g.model,
		cfg:      cfg,
		sampler:  sampler,
		history:  history,
		finished: make([]bool, rows),
	}
	l.leftPad(promptLen)

	generated, err := l.run(steps)
	if err != nil {
		return nil, err
	}

	g.logger.Debug("generation finished",
		"prompts", len(prompts),
		"sequences", rows,
		"steps", len(generated),
		"use_cache", cfg.UseCache)

	out := make([][]int32, rows)
	for r := range out {
		out[r] = make([]int32, 0, lengths[r]+len(generated))
		out[r] = append(out[r], history[r][:lengths[r]]...)
		for _, step := range generated {
			out[r] = append(out[r], step[r])
		}
	}
	return out, nil
}

// GenerateText encodes prompt, generates one continuation and decodes the
// new tokens, stopping the text at the first EOS.
func (g *Generator) GenerateText(tok tokenizer.Tokenizer, prompt string, cfg GenerationConfig) (string, error) {
	ids, err := tok.Encode(prompt)
	if err != nil {
		return "", fmt.Errorf("encode prompt: %w", err)
	}
	cfg.NumReturnSequences = 1
	seqs, err := g.Generate([][]int32{ids}, cfg)
	if err != nil {
		return "", err
	}

	newTokens := seqs[0][len(ids):]
	for i, id := range newTokens {
		if id == cfg.EOSTokenID {
			newTokens = newTokens[:i]
			break
		}
	}
	text, err := tok.Decode(newTokens)
	if err != nil {
		return "", fmt.Errorf("decode: %w", err)
	}
	return text, nil
}

// loop is the state of one Generate call.
type loop struct {
	model    Model
	cfg      GenerationConfig
	sampler  *Sampler
	history  [][]int32 // unpadded prompt + generated, for penalties and MinLength
	finished []bool

	ids  [][]int32 // left-padded prompt + generated
	mask [][]int32
}

func (l *loop) leftPad(width int) {
	l.ids = make([][]int32, len(l.history))
	l.mask = make([][]int32, len(l.history))
	for r, h := range l.history {
		pad := width - len(h)
		l.ids[r] = make([]int32, width)
		l.mask[r] = make([]int32, width)
		for t := 0; t < width; t++ {
			if t < pad {
				l.ids[r][t] = l.cfg.PadTokenID
				continue
			}
			l.ids[r][t] = h[t-pad]
			l.mask[r][t] = 1
		}
	}
}

// run executes PREFILL and up to steps DECODE iterations and returns the
// tokens of each step.
func (l *loop) run(steps int) ([][]int32, error) {
	var generated [][]int32
	l.notify(Step{State: StatePrefill, Index: -1, Finished: l.finishedCopy()})
	if steps <= 0 {
		l.notify(Step{State: StateDone, Index: -1, Finished: l.finishedCopy()})
		return nil, nil
	}

	var cache *model.Cache
	if l.cfg.UseCache {
		cache = l.model.NewCache(len(l.ids))
	}
	out, err := l.model.Forward(l.ids, model.ForwardOptions{AttentionMask: l.mask, Cache: cache})
	if err != nil {
		return nil, fmt.Errorf("prefill: %w", err)
	}

	for step := 0; step < steps; step++ {
		next, anyEOS := l.pick(out.Logits)
		generated = append(generated, next)
		l.notify(Step{State: StateDecode, Index: step, Tokens: next, Finished: l.finishedCopy()})

		if l.done(anyEOS) || step == steps-1 {
			break
		}

		if l.cfg.UseCache {
			col := make([][]int32, len(next))
			for r, tok := range next {
				col[r] = []int32{tok}
			}
			out, err = l.model.Forward(col, model.ForwardOptions{AttentionMask: l.mask, Cache: cache})
		} else {
			out, err = l.model.Forward(l.ids, model.ForwardOptions{AttentionMask: l.mask})
		}
		if err != nil {
			return nil, fmt.Errorf("decode step %d: %w", step, err)
		}
	}

	l.notify(Step{State: StateDone, Index: len(generated) - 1, Finished: l.finishedCopy()})
	return generated, nil
}

// pick chooses one token per sequence from the last position of logits
// and appends it to the running sequences.
func (l *loop) pick(logits *tensor.Tensor) ([]int32, bool) {
	seq := logits.Dim(1)
	next := make([]int32, len(l.ids))
	anyEOS := false
	for r := range next {
		if l.finished[r] {
			next[r] = l.cfg.PadTokenID
			l.ids[r] = append(l.ids[r], next[r])
			l.mask[r] = append(l.mask[r], 0)
			continue
		}

		row := logits.Row(r*seq + seq - 1)
		if len(l.history[r]) < l.cfg.MinLength {
			row = append([]float32(nil), row...)
			row[l.cfg.EOSTokenID] = tensor.NegInf
		}
		tok := l.sampler.Sample(row, l.history[r])

		next[r] = tok
		l.ids[r] = append(l.ids[r], tok)
		l.mask[r] = append(l.mask[r], 1)
		l.history[r] = append(l.history[r], tok)
		if tok == l.cfg.EOSTokenID {
			anyEOS = true
			if l.cfg.StopMode == StopPerSequence {
				l.finished[r] = true
			}
		}
	}
	return next, anyEOS
}

func (l *loop) done(anyEOS bool) bool {
	if l.cfg.StopMode == StopBatchOnAnyEOS {
		return anyEOS
	}
	for _, f := range l.finished {
		if !f {
			return false
		}
	}
	return true
}

func (l *loop) notify(s Step) {
	if l.cfg.OnStep != nil {
		l.cfg.OnStep(s)
	}
}

func (l *loop) finishedCopy() []bool {
	return append([]bool(nil), l.finished...)
}
