package model_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lumen-ml/lumen/generate"
	"github.com/lumen-ml/lumen/model"
)

func smallConfig() model.Config {
	cfg := model.DefaultConfig()
	cfg.VocabSize = 64
	cfg.MaxSeqLength = 16
	cfg.HiddenSize = 16
	cfg.NumLayers = 1
	cfg.NumAttentionHeads = 2
	cfg.IntermediateSize = 32
	return cfg
}

func TestParallelConfigsAgree(t *testing.T) {
	ids := [][]int32{{1, 7, 9, 12}}

	seq, err := model.New(smallConfig(), model.WithSeed(3), model.WithParallel(model.SequentialParallelConfig()))
	require.NoError(t, err)
	par, err := model.New(smallConfig(), model.WithSeed(3), model.WithParallel(model.DefaultParallelConfig()))
	require.NoError(t, err)

	a, err := seq.Forward(ids, model.ForwardOptions{})
	require.NoError(t, err)
	b, err := par.Forward(ids, model.ForwardOptions{})
	require.NoError(t, err)
	assert.InDeltaSlice(t, a.Logits.Data(), b.Logits.Data(), 1e-5)
}

func TestSaveLoadThroughPublicAPI(t *testing.T) {
	dir := t.TempDir()
	m, err := model.New(smallConfig(), model.WithSeed(5))
	require.NoError(t, err)
	require.NoError(t, m.Save(dir))

	info, err := model.ReadWeightsInfo(dir)
	require.NoError(t, err)
	assert.Equal(t, "lumen", info.Format)

	loaded, err := model.Load(dir)
	require.NoError(t, err)

	cfg := generate.DefaultGenerationConfig()
	cfg.DoSample = false
	cfg.MaxNewTokens = 3
	cfg.EOSTokenID = 63
	want, err := generate.NewGenerator(m).Generate([][]int32{{1, 4}}, cfg)
	require.NoError(t, err)
	got, err := generate.NewGenerator(loaded).Generate([][]int32{{1, 4}}, cfg)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}
