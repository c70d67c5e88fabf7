package generate

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lumen-ml/lumen/internal/model"
	"github.com/lumen-ml/lumen/internal/tensor"
	"github.com/lumen-ml/lumen/internal/tokenizer"
)

// scriptedModel returns logits that put all mass on favourite(row, call).
type scriptedModel struct {
	vocab     int
	favourite func(row, call int) int32
	calls     int
	seqLens   []int
	maxSeq    int // 0 keeps the default
}

func (m *scriptedModel) Forward(ids [][]int32, opts model.ForwardOptions) (*model.Output, error) {
	seq := len(ids[0])
	m.seqLens = append(m.seqLens, seq)
	logits := tensor.Zeros(len(ids), seq, m.vocab)
	for r := range ids {
		logits.Row(r*seq + seq - 1)[m.favourite(r, m.calls)] = 10
	}
	m.calls++
	return &model.Output{Logits: logits, Cache: opts.Cache}, nil
}

func (m *scriptedModel) NewCache(int) *model.Cache {
	return nil
}

func (m *scriptedModel) Config() model.Config {
	cfg := model.DefaultConfig()
	cfg.VocabSize = m.vocab
	if m.maxSeq > 0 {
		cfg.MaxSeqLength = m.maxSeq
	}
	return cfg
}

func greedyConfig() GenerationConfig {
	cfg := DefaultGenerationConfig()
	cfg.DoSample = false
	cfg.MaxLength = 20
	return cfg
}

func tinyModel(t *testing.T) *model.Model {
	t.Helper()
	m, err := model.New(model.Config{
		VocabSize:         100,
		MaxSeqLength:      64,
		HiddenSize:        16,
		NumLayers:         2,
		NumAttentionHeads: 2,
		IntermediateSize:  64,
		Dropout:           0.1,
		LayerNormEps:      1e-5,
		InitializerRange:  0.02,
		PadTokenID:        0,
		BOSTokenID:        1,
		EOSTokenID:        2,
	}, model.WithSeed(42))
	require.NoError(t, err)
	return m
}

func TestStopPerSequence(t *testing.T) {
	m := &scriptedModel{vocab: 10, favourite: func(row, call int) int32 {
		if (row == 0 && call == 1) || (row == 1 && call == 3) {
			return 2
		}
		return 7
	}}

	var states []State
	cfg := greedyConfig()
	cfg.OnStep = func(s Step) { states = append(states, s.State) }

	out, err := NewGenerator(m).Generate([][]int32{{5}, {6}}, cfg)
	require.NoError(t, err)
	assert.Equal(t, [][]int32{{5, 7, 2, 0, 0}, {6, 7, 7, 7, 2}}, out)
	assert.Equal(t, []State{StatePrefill, StateDecode, StateDecode, StateDecode, StateDecode, StateDone}, states)
}

func TestStopBatchOnAnyEOS(t *testing.T) {
	m := &scriptedModel{vocab: 10, favourite: func(row, call int) int32 {
		if row == 0 && call == 1 {
			return 2
		}
		return 7
	}}

	cfg := greedyConfig()
	cfg.StopMode = StopBatchOnAnyEOS
	out, err := NewGenerator(m).Generate([][]int32{{5}, {6}}, cfg)
	require.NoError(t, err)
	assert.Equal(t, [][]int32{{5, 7, 2}, {6, 7, 7}}, out)
}

func TestLengthLimits(t *testing.T) {
	never := func(int, int) int32 { return 7 }

	cfg := greedyConfig()
	cfg.MaxLength = 6
	out, err := NewGenerator(&scriptedModel{vocab: 10, favourite: never}).Generate([][]int32{{1, 2, 3}}, cfg)
	require.NoError(t, err)
	assert.Len(t, out[0], 6, "MaxLength counts prompt tokens")

	cfg.MaxNewTokens = 2
	out, err = NewGenerator(&scriptedModel{vocab: 10, favourite: never}).Generate([][]int32{{1, 2, 3}}, cfg)
	require.NoError(t, err)
	assert.Equal(t, []int32{1, 2, 3, 7, 7}, out[0])

	cfg = greedyConfig()
	cfg.MaxLength = 3
	m := &scriptedModel{vocab: 10, favourite: never}
	out, err = NewGenerator(m).Generate([][]int32{{1, 2, 3}}, cfg)
	require.NoError(t, err)
	assert.Equal(t, [][]int32{{1, 2, 3}}, out)
	assert.Equal(t, 0, m.calls, "nothing to generate")
}

func TestMinLengthSuppressesEOS(t *testing.T) {
	m := &scriptedModel{vocab: 10, favourite: func(int, int) int32 { return 2 }}
	cfg := greedyConfig()
	cfg.MinLength = 4

	out, err := NewGenerator(m).Generate([][]int32{{5, 6}}, cfg)
	require.NoError(t, err)
	require.Len(t, out[0], 5)
	assert.NotEqual(t, int32(2), out[0][2])
	assert.NotEqual(t, int32(2), out[0][3])
	assert.Equal(t, int32(2), out[0][4])
}

func TestLeftPaddingAndReturnSequences(t *testing.T) {
	var masks [][][]int32
	m := &recordingModel{scriptedModel: scriptedModel{vocab: 10, favourite: func(int, int) int32 { return 7 }}, masks: &masks}

	cfg := greedyConfig()
	cfg.MaxNewTokens = 2
	cfg.NumReturnSequences = 2
	out, err := NewGenerator(m).Generate([][]int32{{5, 6, 8}, {9}}, cfg)
	require.NoError(t, err)
	assert.Equal(t, [][]int32{{5, 6, 8, 7, 7}, {5, 6, 8, 7, 7}, {9, 7, 7}, {9, 7, 7}}, out)

	require.NotEmpty(t, masks)
	assert.Equal(t, []int32{0, 0, 1}, masks[0][2], "short prompt is left-padded and masked")
	assert.Equal(t, []int32{1, 1, 1}, masks[0][0])
	assert.Equal(t, []int32{0, 0, 1, 1}, masks[1][3], "mask grows with each decode step")
}

type recordingModel struct {
	scriptedModel
	masks *[][][]int32
}

func (m *recordingModel) Forward(ids [][]int32, opts model.ForwardOptions) (*model.Output, error) {
	snapshot := make([][]int32, len(opts.AttentionMask))
	for i, row := range opts.AttentionMask {
		snapshot[i] = append([]int32(nil), row...)
	}
	*m.masks = append(*m.masks, snapshot)
	return m.scriptedModel.Forward(ids, opts)
}

func TestCacheFeedsOneToken(t *testing.T) {
	m := &scriptedModel{vocab: 10, favourite: func(int, int) int32 { return 7 }}
	cfg := greedyConfig()
	cfg.MaxNewTokens = 3

	_, err := NewGenerator(m).Generate([][]int32{{1, 2, 3, 4}}, cfg)
	require.NoError(t, err)
	assert.Equal(t, []int{4, 1, 1}, m.seqLens)

	m = &scriptedModel{vocab: 10, favourite: func(int, int) int32 { return 7 }}
	cfg.UseCache = false
	_, err = NewGenerator(m).Generate([][]int32{{1, 2, 3, 4}}, cfg)
	require.NoError(t, err)
	assert.Equal(t, []int{4, 5, 6}, m.seqLens)
}

func TestDeterministicGreedy(t *testing.T) {
	m := tinyModel(t)
	cfg := greedyConfig()
	cfg.MaxNewTokens = 5
	cfg.EOSTokenID = 99 // keep all five steps regardless of weights
	prompt := [][]int32{{1, 5, 9}}

	first, err := NewGenerator(m).Generate(prompt, cfg)
	require.NoError(t, err)
	second, err := NewGenerator(m).Generate(prompt, cfg)
	require.NoError(t, err)

	require.Len(t, first[0], 8)
	assert.Equal(t, []int32{1, 5, 9}, first[0][:3])
	assert.Equal(t, first, second)

	// Each greedy token is the argmax of a full recompute.
	seq := append([]int32(nil), first[0][:3]...)
	for _, want := range first[0][3:] {
		out, err := m.Forward([][]int32{seq}, model.ForwardOptions{})
		require.NoError(t, err)
		assert.Equal(t, want, int32(tensor.Argmax(out.Logits.Row(len(seq)-1))))
		seq = append(seq, want)
	}
}

func TestCacheMatchesRecompute(t *testing.T) {
	m := tinyModel(t)
	prompts := [][]int32{{1, 5, 9, 14}, {3, 8}}

	for _, sample := range []bool{false, true} {
		cfg := DefaultGenerationConfig()
		cfg.DoSample = sample
		cfg.Seed = 11
		cfg.MaxNewTokens = 6
		cfg.EOSTokenID = 99
		cfg.RepetitionPenalty = 1.3

		cached, err := NewGenerator(m).Generate(prompts, cfg)
		require.NoError(t, err)
		cfg.UseCache = false
		recomputed, err := NewGenerator(m).Generate(prompts, cfg)
		require.NoError(t, err)
		assert.Equal(t, recomputed, cached, "sample=%v", sample)
	}
}

func TestTopKOneMatchesGreedy(t *testing.T) {
	m := tinyModel(t)
	greedy := greedyConfig()
	greedy.MaxNewTokens = 4
	greedy.EOSTokenID = 99

	sampled := greedy
	sampled.DoSample = true
	sampled.TopK = 1
	sampled.Temperature = 0.7

	a, err := NewGenerator(m).Generate([][]int32{{1, 5, 9}}, greedy)
	require.NoError(t, err)
	b, err := NewGenerator(m).Generate([][]int32{{1, 5, 9}}, sampled)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestGenerateValidation(t *testing.T) {
	g := NewGenerator(&scriptedModel{vocab: 10, favourite: func(int, int) int32 { return 7 }})

	cfg := greedyConfig()
	cfg.Temperature = -0.5
	_, err := g.Generate([][]int32{{1}}, cfg)
	assert.ErrorIs(t, err, ErrSamplingParameter)

	cfg = greedyConfig()
	cfg.EOSTokenID = 10
	_, err = g.Generate([][]int32{{1}}, cfg)
	assert.ErrorIs(t, err, ErrSamplingParameter)

	cfg = greedyConfig()
	cfg.NumReturnSequences = 0
	_, err = g.Generate([][]int32{{1}}, cfg)
	assert.ErrorIs(t, err, ErrSamplingParameter)

	_, err = g.Generate(nil, greedyConfig())
	assert.ErrorIs(t, err, model.ErrShapeMismatch)
	_, err = g.Generate([][]int32{{}}, greedyConfig())
	assert.ErrorIs(t, err, model.ErrShapeMismatch)
}

func TestPromptAgainstContextLimit(t *testing.T) {
	sm := &scriptedModel{vocab: 20, maxSeq: 8, favourite: func(int, int) int32 { return 7 }}
	g := NewGenerator(sm)
	cfg := greedyConfig()

	_, err := g.Generate([][]int32{{3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14}}, cfg)
	assert.ErrorIs(t, err, model.ErrConfig)
	assert.Zero(t, sm.calls)

	// A prompt that fills the context still gets the token of its prefill.
	full := []int32{3, 4, 5, 6, 7, 8, 9, 10}
	out, err := g.Generate([][]int32{full}, cfg)
	require.NoError(t, err)
	assert.Equal(t, append(append([]int32(nil), full...), 7), out[0])

	// One free slot: two tokens, the second from the only decode forward.
	sm.calls, sm.seqLens = 0, nil
	out, err = g.Generate([][]int32{full[:7]}, cfg)
	require.NoError(t, err)
	assert.Len(t, out[0], 9)
	assert.Equal(t, 2, sm.calls)
}

func TestBatchingDoesNotChangeGreedyOutput(t *testing.T) {
	m := tinyModel(t)
	cfg := greedyConfig()
	cfg.MaxNewTokens = 5
	cfg.EOSTokenID = 99

	for _, useCache := range []bool{true, false} {
		cfg.UseCache = useCache
		alone, err := NewGenerator(m).Generate([][]int32{{5, 9}}, cfg)
		require.NoError(t, err)
		batched, err := NewGenerator(m).Generate([][]int32{{5, 9}, {3, 4, 5, 6, 7}}, cfg)
		require.NoError(t, err)

		assert.Equal(t, alone[0], batched[0], "use_cache=%v", useCache)
	}
}

func TestModelErrorsPropagate(t *testing.T) {
	m := tinyModel(t)
	cfg := greedyConfig()
	_, err := NewGenerator(m).Generate([][]int32{{1, 500}}, cfg)
	assert.ErrorIs(t, err, model.ErrShapeMismatch)
}

func TestGenerateText(t *testing.T) {
	tok := tokenizer.NewByteTokenizer()
	m := &scriptedModel{vocab: tok.VocabSize(), favourite: func(_, call int) int32 {
		if call < 2 {
			return 'i' + 4
		}
		return tok.EosToken()
	}}

	cfg := greedyConfig()
	text, err := NewGenerator(m).GenerateText(tok, "h", cfg)
	require.NoError(t, err)
	assert.Equal(t, "ii", text)
}

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "preset.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
max_length: 64
temperature: 0.7
top_k: 40
do_sample: false
stop_mode: batch_on_any_eos
num_return_sequences: 2
`), 0o600))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 64, cfg.MaxLength)
	assert.InDelta(t, 0.7, cfg.Temperature, 1e-6)
	assert.Equal(t, 40, cfg.TopK)
	assert.False(t, cfg.DoSample)
	assert.Equal(t, StopBatchOnAnyEOS, cfg.StopMode)
	assert.Equal(t, 2, cfg.NumReturnSequences)
	assert.InDelta(t, 0.9, cfg.TopP, 1e-6, "unset keys keep defaults")
	assert.True(t, cfg.UseCache)

	jsonPath := filepath.Join(dir, "preset.json")
	require.NoError(t, os.WriteFile(jsonPath, []byte(`{"top_p": 0.5, "use_cache": false}`), 0o600))
	cfg, err = LoadConfig(jsonPath)
	require.NoError(t, err)
	assert.InDelta(t, 0.5, cfg.TopP, 1e-6)
	assert.False(t, cfg.UseCache)

	_, err = ParseConfig([]byte("top_kk: 3\n"))
	assert.Error(t, err)
	_, err = ParseConfig([]byte("stop_mode: sometimes\n"))
	assert.Error(t, err)

	cfg, err = ParseConfig(nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultGenerationConfig().MaxLength, cfg.MaxLength)

	_, err = LoadConfig(filepath.Join(dir, "absent.yaml"))
	assert.Error(t, err)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "PREFILL", StatePrefill.String())
	assert.Equal(t, "DECODE", StateDecode.String())
	assert.Equal(t, "DONE", StateDone.String())
	assert.Equal(t, "per_sequence", StopPerSequence.String())
}
