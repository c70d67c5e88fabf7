package train

import "math"

// Schedule is linear warmup to Peak followed by cosine annealing down to
// Min at step Total. Past Total the rate stays at Min.
type Schedule struct {
	Peak   float64
	Min    float64
	Warmup int
	Total  int
}

// NewSchedule derives the schedule from cfg.
func NewSchedule(cfg Config) Schedule {
	return Schedule{
		Peak:   cfg.LearningRate,
		Min:    cfg.LearningRate * cfg.MinLRRatio,
		Warmup: cfg.WarmupSteps,
		Total:  cfg.TotalSteps,
	}
}

// At returns the learning rate for the zero-based optimiser step.
func (s Schedule) At(step int) float64 {
	if step < s.Warmup {
		return s.Peak * float64(step+1) / float64(s.Warmup)
	}
	if step >= s.Total || s.Total <= s.Warmup {
		return s.Min
	}
	progress := float64(step-s.Warmup) / float64(s.Total-s.Warmup)
	cosine := 0.5 * (1 + math.Cos(math.Pi*progress))
	return s.Min + (s.Peak-s.Min)*cosine
}
