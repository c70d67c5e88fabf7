package train

import (
	"errors"
	"fmt"
)

// Common errors.
var (
	ErrConfig    = errors.New("invalid training config")
	ErrNoTargets = errors.New("batch has no unmasked next-token targets")
)

// Config holds the optimiser and schedule hyperparameters.
type Config struct {
	LearningRate float64 // Peak learning rate (default: 5e-5)
	WeightDecay  float64 // Decoupled weight decay (default: 0.01)
	WarmupSteps  int     // Linear warmup length (default: 1000)
	TotalSteps   int     // Cosine period, warmup included (default: 100000)
	MinLRRatio   float64 // Floor as a fraction of LearningRate (default: 0.1)
	MaxGradNorm  float64 // Global clipping norm, 0 disables (default: 1.0)
	Beta1        float64 // (default: 0.9)
	Beta2        float64 // (default: 0.999)
	Epsilon      float64 // (default: 1e-8)
	Seed         int64   // Dropout random source
}

// DefaultConfig returns the defaults listed on Config.
func DefaultConfig() Config {
	return Config{
		LearningRate: 5e-5,
		WeightDecay:  0.01,
		WarmupSteps:  1000,
		TotalSteps:   100000,
		MinLRRatio:   0.1,
		MaxGradNorm:  1.0,
		Beta1:        0.9,
		Beta2:        0.999,
		Epsilon:      1e-8,
		Seed:         42,
	}
}

// Validate checks the hyperparameters.
func (c Config) Validate() error {
	switch {
	case !(c.LearningRate > 0):
		return fmt.Errorf("%w: learning_rate must be positive, got %g", ErrConfig, c.LearningRate)
	case c.WeightDecay < 0:
		return fmt.Errorf("%w: weight_decay must be non-negative, got %g", ErrConfig, c.WeightDecay)
	case c.WarmupSteps < 0:
		return fmt.Errorf("%w: warmup_steps must be non-negative, got %d", ErrConfig, c.WarmupSteps)
	case c.TotalSteps <= 0:
		return fmt.Errorf("%w: total_steps must be positive, got %d", ErrConfig, c.TotalSteps)
	case c.MinLRRatio < 0 || c.MinLRRatio > 1:
		return fmt.Errorf("%w: min_lr_ratio must be in [0, 1], got %g", ErrConfig, c.MinLRRatio)
	case c.MaxGradNorm < 0:
		return fmt.Errorf("%w: max_grad_norm must be non-negative, got %g", ErrConfig, c.MaxGradNorm)
	case c.Beta1 < 0 || c.Beta1 >= 1 || c.Beta2 < 0 || c.Beta2 >= 1:
		return fmt.Errorf("%w: betas must be in [0, 1), got %g, %g", ErrConfig, c.Beta1, c.Beta2)
	case !(c.Epsilon > 0):
		return fmt.Errorf("%w: epsilon must be positive, got %g", ErrConfig, c.Epsilon)
	}
	return nil
}
