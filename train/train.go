// Package train provides next-token training for lumen models.
//
// Example usage:
//
//	import (
//	    "github.com/lumen-ml/lumen/model"
//	    "github.com/lumen-ml/lumen/train"
//	)
//
//	trainer, err := train.New(m, train.DefaultConfig())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	for _, batch := range train.MakeBatches(tokens, 128, 8) {
//	    res, err := trainer.TrainStep(batch)
//	    ...
//	}
package train

import (
	"github.com/lumen-ml/lumen/internal/train"
	"github.com/lumen-ml/lumen/model"
)

// Config holds the optimiser and schedule hyperparameters.
type Config = train.Config

// DefaultConfig returns AdamW with lr 5e-5, weight decay 0.01, 1000 warmup
// steps, cosine annealing over 100000 steps to 10% of the peak rate and
// gradient clipping at norm 1.
func DefaultConfig() Config {
	return train.DefaultConfig()
}

// Batch is one batch of equal-length rows with an optional padding mask.
type Batch = train.Batch

// Result reports one optimisation step.
type Result = train.Result

// Trainer owns the optimiser state for one model.
type Trainer = train.Trainer

// Option configures a Trainer.
type Option = train.Option

// WithLogger sets the trainer's logger.
var WithLogger = train.WithLogger

// New creates a trainer for m.
func New(m *model.Model, cfg Config, opts ...Option) (*Trainer, error) {
	return train.New(m, cfg, opts...)
}

// MakeBatches cuts a token stream into batches of seqLen-token rows.
func MakeBatches(tokens []int32, seqLen, batchSize int) []Batch {
	return train.MakeBatches(tokens, seqLen, batchSize)
}

// SplitHoldout keeps the trailing fraction of batches for evaluation.
func SplitHoldout(batches []Batch, frac float64) (trainSet, evalSet []Batch) {
	return train.SplitHoldout(batches, frac)
}

// Errors

var (
	ErrConfig    = train.ErrConfig
	ErrNoTargets = train.ErrNoTargets
)
