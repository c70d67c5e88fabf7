package train

import (
	"fmt"
	"log/slog"
	"math/rand"

	"github.com/lumen-ml/lumen/internal/model"
	"github.com/lumen-ml/lumen/internal/nn"
)

// Batch is one training or evaluation batch of equal-length rows. Mask
// marks real tokens with a nonzero value; nil means no padding.
type Batch struct {
	IDs  [][]int32
	Mask [][]int32
}

// Result reports one optimisation step.
type Result struct {
	Step         int     // One-based index of the step just taken
	Loss         float64 // Mean cross entropy before the update
	GradNorm     float64 // Global gradient norm before clipping
	LearningRate float64 // Rate used for the update
	Tokens       int     // Scored next-token positions
}

// Trainer owns the optimiser state for one model.
type Trainer struct {
	model    *model.Model
	cfg      Config
	opt      *AdamW
	schedule Schedule
	rng      *rand.Rand
	logger   *slog.Logger
}

// Option configures a Trainer.
type Option func(*Trainer)

// WithLogger sets the trainer's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(t *Trainer) {
		t.logger = logger
	}
}

// New creates a trainer for m.
func New(m *model.Model, cfg Config, opts ...Option) (*Trainer, error) {
	if m == nil {
		return nil, fmt.Errorf("%w: nil model", ErrConfig)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	t := &Trainer{
		model:    m,
		cfg:      cfg,
		opt:      NewAdamW(cfg),
		schedule: NewSchedule(cfg),
		rng:      rand.New(rand.NewSource(cfg.Seed)), //nolint:gosec // G404: dropout noise, not security.
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t, nil
}

// Step returns the number of optimisation steps taken.
func (t *Trainer) Step() int {
	return t.opt.Steps()
}

// LearningRate returns the rate the next step will use.
func (t *Trainer) LearningRate() float64 {
	return t.schedule.At(t.opt.Steps())
}

// TrainStep runs a training-mode forward, the backward pass, clipping and
// one AdamW update. The model is left unchanged when an error is returned.
func (t *Trainer) TrainStep(batch Batch) (Result, error) {
	logits, tape, err := t.model.ForwardTrain(batch.IDs, batch.Mask, true, t.rng)
	if err != nil {
		return Result{}, fmt.Errorf("forward: %w", err)
	}
	loss, dlogits, count, err := CrossEntropy(logits, batch.IDs, batch.Mask)
	if err != nil {
		return Result{}, err
	}
	if count == 0 {
		return Result{}, ErrNoTargets
	}

	t.model.ZeroGrad()
	t.model.Backward(tape, dlogits)

	lr := t.schedule.At(t.opt.Steps())
	var norm float64
	t.model.Update(func(params []*nn.Parameter) {
		norm = ClipGradNorm(params, t.cfg.MaxGradNorm)
		t.opt.Step(params, lr)
	})

	res := Result{
		Step:         t.opt.Steps(),
		Loss:         loss,
		GradNorm:     norm,
		LearningRate: lr,
		Tokens:       count,
	}
	t.logger.Debug("train step",
		"step", res.Step,
		"loss", res.Loss,
		"grad_norm", res.GradNorm,
		"lr", res.LearningRate,
		"tokens", res.Tokens,
	)
	return res, nil
}

// Evaluate returns the mean of the per-batch losses with dropout off.
// Batches without any scored position are skipped.
func (t *Trainer) Evaluate(batches []Batch) (float64, error) {
	var total float64
	n := 0
	for i, batch := range batches {
		out, err := t.model.Forward(batch.IDs, model.ForwardOptions{AttentionMask: batch.Mask})
		if err != nil {
			return 0, fmt.Errorf("batch %d: %w", i, err)
		}
		loss, _, count, err := CrossEntropy(out.Logits, batch.IDs, batch.Mask)
		if err != nil {
			return 0, fmt.Errorf("batch %d: %w", i, err)
		}
		if count == 0 {
			continue
		}
		total += loss
		n++
	}
	if n == 0 {
		return 0, ErrNoTargets
	}

	avg := total / float64(n)
	t.logger.Info("evaluation", "batches", n, "loss", avg)
	return avg, nil
}
