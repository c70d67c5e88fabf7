package train

import (
	"bytes"
	"log/slog"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lumen-ml/lumen/internal/model"
	"github.com/lumen-ml/lumen/internal/nn"
	"github.com/lumen-ml/lumen/internal/tensor"
)

func tinyModel(t *testing.T, dropout float64) *model.Model {
	t.Helper()
	m, err := model.New(model.Config{
		VocabSize:         32,
		MaxSeqLength:      16,
		HiddenSize:        16,
		NumLayers:         2,
		NumAttentionHeads: 2,
		IntermediateSize:  32,
		Dropout:           dropout,
		LayerNormEps:      1e-5,
		InitializerRange:  0.02,
		PadTokenID:        0,
		BOSTokenID:        1,
		EOSTokenID:        2,
	}, model.WithSeed(7))
	require.NoError(t, err)
	return m
}

func TestSchedule(t *testing.T) {
	s := Schedule{Peak: 1, Min: 0.1, Warmup: 10, Total: 110}

	assert.InDelta(t, 0.1, s.At(0), 1e-12)
	assert.InDelta(t, 0.5, s.At(4), 1e-12)
	assert.InDelta(t, 1.0, s.At(9), 1e-12)
	assert.InDelta(t, 1.0, s.At(10), 1e-12)
	assert.InDelta(t, 0.55, s.At(60), 1e-12)
	assert.InDelta(t, 0.1, s.At(110), 1e-12)
	assert.InDelta(t, 0.1, s.At(500), 1e-12)

	for step := 11; step < 110; step++ {
		assert.LessOrEqual(t, s.At(step), s.At(step-1))
	}
}

func TestSchedule_NoWarmup(t *testing.T) {
	s := NewSchedule(Config{LearningRate: 2, MinLRRatio: 0.1, TotalSteps: 4})

	assert.InDelta(t, 2.0, s.At(0), 1e-12)
	assert.InDelta(t, 0.2, s.At(4), 1e-12)
}

func TestClipGradNorm(t *testing.T) {
	a := nn.NewParameter("a", tensor.Zeros(2))
	b := nn.NewParameter("b", tensor.Zeros(1))
	unused := nn.NewParameter("unused", tensor.Zeros(3))
	copy(a.GradData(), []float32{3, 0})
	copy(b.GradData(), []float32{4})

	norm := ClipGradNorm([]*nn.Parameter{a, b, unused}, 1)
	assert.InDelta(t, 5.0, norm, 1e-6)
	assert.InDelta(t, 0.6, a.GradData()[0], 1e-5)
	assert.InDelta(t, 0.8, b.GradData()[0], 1e-5)
	assert.Nil(t, unused.Grad())

	norm = ClipGradNorm([]*nn.Parameter{a, b}, 10)
	assert.InDelta(t, 1.0, norm, 1e-5)
	assert.InDelta(t, 0.6, a.GradData()[0], 1e-5)
}

func TestAdamW_FirstStep(t *testing.T) {
	cfg := DefaultConfig()
	cfg.WeightDecay = 0.1
	opt := NewAdamW(cfg)

	p := nn.NewParameter("p", tensor.Full(1, 2))
	copy(p.GradData(), []float32{0.5, -2})
	frozen := nn.NewParameter("frozen", tensor.Full(1, 1))

	opt.Step([]*nn.Parameter{p, frozen}, 0.01)

	// First Adam step moves each element by lr*sign(grad) after decay.
	decayed := float32(1 - 0.01*0.1)
	assert.InDelta(t, decayed-0.01, p.Data()[0], 1e-5)
	assert.InDelta(t, decayed+0.01, p.Data()[1], 1e-5)
	assert.Equal(t, float32(1), frozen.Data()[0])
	assert.Equal(t, 1, opt.Steps())
}

func TestCrossEntropy_Uniform(t *testing.T) {
	logits := tensor.Zeros(1, 3, 4)
	ids := [][]int32{{0, 1, 2}}

	loss, grad, count, err := CrossEntropy(logits, ids, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
	assert.InDelta(t, math.Log(4), loss, 1e-6)

	// Last position has no target.
	for _, g := range grad.Row(2) {
		assert.Zero(t, g)
	}
	assert.InDelta(t, (0.25-1)/2, grad.At(0, 0, 1), 1e-6)
	assert.InDelta(t, 0.25/2, grad.At(0, 0, 0), 1e-6)
}

func TestCrossEntropy_Mask(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	logits := tensor.Randn(rng, 1, 2, 4, 5)
	ids := [][]int32{{0, 0, 3, 4}, {1, 2, 3, 4}}
	mask := [][]int32{{0, 0, 1, 1}, {1, 1, 1, 1}}

	_, grad, count, err := CrossEntropy(logits, ids, mask)
	require.NoError(t, err)
	assert.Equal(t, 1+3, count)
	for _, g := range grad.Row(0) {
		assert.Zero(t, g)
	}
	for _, g := range grad.Row(1) {
		assert.Zero(t, g)
	}
}

func TestCrossEntropy_GradientMatchesFiniteDifference(t *testing.T) {
	rng := rand.New(rand.NewSource(5))
	logits := tensor.Randn(rng, 1, 2, 3, 6)
	ids := [][]int32{{1, 4, 5}, {0, 2, 3}}

	_, grad, _, err := CrossEntropy(logits, ids, nil)
	require.NoError(t, err)

	const h = 1e-2
	data := logits.Data()
	for i := range data {
		orig := data[i]
		data[i] = orig + h
		plus, _, _, err := CrossEntropy(logits, ids, nil)
		require.NoError(t, err)
		data[i] = orig - h
		minus, _, _, err := CrossEntropy(logits, ids, nil)
		require.NoError(t, err)
		data[i] = orig

		assert.InDelta(t, (plus-minus)/(2*h), grad.Data()[i], 1e-3, "index %d", i)
	}
}

func TestCrossEntropy_Errors(t *testing.T) {
	_, _, _, err := CrossEntropy(tensor.Zeros(2, 4), nil, nil)
	assert.Error(t, err)

	_, _, _, err = CrossEntropy(tensor.Zeros(1, 2, 4), [][]int32{{0, 9}}, nil)
	assert.Error(t, err)

	_, _, _, err = CrossEntropy(tensor.Zeros(1, 2, 4), [][]int32{{0}}, nil)
	assert.Error(t, err)
}

func TestConfig_Validate(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())

	bad := []func(*Config){
		func(c *Config) { c.LearningRate = 0 },
		func(c *Config) { c.WeightDecay = -1 },
		func(c *Config) { c.TotalSteps = 0 },
		func(c *Config) { c.MinLRRatio = 2 },
		func(c *Config) { c.Beta2 = 1 },
		func(c *Config) { c.Epsilon = 0 },
	}
	for i, mutate := range bad {
		cfg := DefaultConfig()
		mutate(&cfg)
		assert.ErrorIs(t, cfg.Validate(), ErrConfig, "case %d", i)
	}
}

func TestTrainer_LossDecreases(t *testing.T) {
	m := tinyModel(t, 0)
	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, &slog.HandlerOptions{Level: slog.LevelDebug}))

	cfg := DefaultConfig()
	cfg.LearningRate = 1e-2
	cfg.WarmupSteps = 0
	cfg.TotalSteps = 40
	trainer, err := New(m, cfg, WithLogger(logger))
	require.NoError(t, err)

	batch := Batch{IDs: [][]int32{{1, 5, 6, 7, 8, 9, 10, 2}, {1, 11, 12, 13, 14, 15, 16, 2}}}
	before, err := trainer.Evaluate([]Batch{batch})
	require.NoError(t, err)

	var last Result
	for i := 0; i < 40; i++ {
		last, err = trainer.TrainStep(batch)
		require.NoError(t, err)
		require.False(t, math.IsNaN(last.Loss))
	}
	after, err := trainer.Evaluate([]Batch{batch})
	require.NoError(t, err)

	assert.Equal(t, 40, last.Step)
	assert.Equal(t, 14, last.Tokens)
	assert.Less(t, after, before*0.5)
	assert.Contains(t, logs.String(), "train step")
}

func TestTrainer_WithDropoutAndPadding(t *testing.T) {
	m := tinyModel(t, 0.1)
	cfg := DefaultConfig()
	cfg.WarmupSteps = 2
	cfg.TotalSteps = 10
	trainer, err := New(m, cfg)
	require.NoError(t, err)

	batch := Batch{
		IDs:  [][]int32{{0, 0, 1, 5, 6, 2}, {1, 7, 8, 9, 10, 2}},
		Mask: [][]int32{{0, 0, 1, 1, 1, 1}, {1, 1, 1, 1, 1, 1}},
	}
	res, err := trainer.TrainStep(batch)
	require.NoError(t, err)
	assert.Equal(t, 3+5, res.Tokens)
	assert.InDelta(t, cfg.LearningRate/2, res.LearningRate, 1e-12)
	assert.Greater(t, res.GradNorm, 0.0)
	assert.InDelta(t, cfg.LearningRate, trainer.LearningRate(), 1e-12)
}

func TestTrainer_NoTargets(t *testing.T) {
	m := tinyModel(t, 0)
	trainer, err := New(m, DefaultConfig())
	require.NoError(t, err)

	before := m.StateDict()
	_, err = trainer.TrainStep(Batch{IDs: [][]int32{{5}}})
	assert.ErrorIs(t, err, ErrNoTargets)
	assert.Equal(t, 0, trainer.Step())

	for name, want := range m.StateDict() {
		assert.Equal(t, before[name].Data(), want.Data(), name)
	}

	_, err = trainer.Evaluate(nil)
	assert.ErrorIs(t, err, ErrNoTargets)
}

func TestNew_Errors(t *testing.T) {
	_, err := New(nil, DefaultConfig())
	assert.ErrorIs(t, err, ErrConfig)

	cfg := DefaultConfig()
	cfg.LearningRate = -1
	_, err = New(tinyModel(t, 0), cfg)
	assert.ErrorIs(t, err, ErrConfig)
}

func TestMakeBatches(t *testing.T) {
	tokens := make([]int32, 27)
	for i := range tokens {
		tokens[i] = int32(i)
	}

	batches := MakeBatches(tokens, 5, 2)
	require.Len(t, batches, 3)
	assert.Len(t, batches[0].IDs, 2)
	assert.Len(t, batches[2].IDs, 1)
	assert.Equal(t, []int32{15, 16, 17, 18, 19}, batches[1].IDs[1])
	assert.Nil(t, batches[0].Mask)

	assert.Nil(t, MakeBatches(tokens, 1, 2))

	trainSet, evalSet := SplitHoldout(batches, 0.1)
	assert.Len(t, trainSet, 2)
	assert.Len(t, evalSet, 1)

	trainSet, evalSet = SplitHoldout(batches[:1], 0.5)
	assert.Len(t, trainSet, 1)
	assert.Empty(t, evalSet)
}
