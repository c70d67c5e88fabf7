package main

import (
	"errors"
	"fmt"

	"github.com/lumen-ml/lumen/model"
)

func runInit(args []string) error {
	fs, verbose := newFlagSet("init")
	dir := fs.String("dir", "", "Model directory to create (required)")
	configPath := fs.String("config", "", "Start from this config.json instead of the flags below")
	vocab := fs.Int("vocab", 260, "Vocabulary size (260 fits the byte tokenizer)")
	maxSeq := fs.Int("max-seq", 256, "Maximum sequence length")
	hidden := fs.Int("hidden", 128, "Hidden size")
	layers := fs.Int("layers", 4, "Number of transformer blocks")
	heads := fs.Int("heads", 4, "Attention heads per block")
	intermediate := fs.Int("intermediate", 0, "Feed-forward width (default 4*hidden)")
	dropout := fs.Float64("dropout", 0.1, "Dropout probability")
	seed := fs.Int64("seed", 42, "Initialisation seed")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *dir == "" {
		return errors.New("-dir is required")
	}
	logger := setupLogger(*verbose)

	cfg := model.DefaultConfig()
	if *configPath != "" {
		loaded, err := model.LoadConfig(*configPath)
		if err != nil {
			return err
		}
		cfg = loaded
	} else {
		cfg.VocabSize = *vocab
		cfg.MaxSeqLength = *maxSeq
		cfg.HiddenSize = *hidden
		cfg.NumLayers = *layers
		cfg.NumAttentionHeads = *heads
		cfg.IntermediateSize = *intermediate
		if cfg.IntermediateSize == 0 {
			cfg.IntermediateSize = 4 * *hidden
		}
		cfg.Dropout = *dropout
		cfg.LayerNormEps = 1e-5
	}

	m, err := model.New(cfg, model.WithSeed(*seed), model.WithLogger(logger))
	if err != nil {
		return err
	}
	if err := m.Save(*dir); err != nil {
		return err
	}
	fmt.Printf("Initialised %s (%d parameters)\n", *dir, m.NumParameters())
	return nil
}

func runInfo(args []string) error {
	fs, verbose := newFlagSet("info")
	dir := fs.String("dir", "", "Model directory (required)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *dir == "" {
		return errors.New("-dir is required")
	}
	logger := setupLogger(*verbose)

	m, err := model.Load(*dir, model.WithLogger(logger))
	if err != nil {
		return err
	}
	cfg := m.Config()
	fmt.Printf("Model: %s\n", *dir)
	fmt.Printf("  vocab_size:          %d\n", cfg.VocabSize)
	fmt.Printf("  max_seq_length:      %d\n", cfg.MaxSeqLength)
	fmt.Printf("  hidden_size:         %d\n", cfg.HiddenSize)
	fmt.Printf("  num_layers:          %d\n", cfg.NumLayers)
	fmt.Printf("  num_attention_heads: %d\n", cfg.NumAttentionHeads)
	fmt.Printf("  intermediate_size:   %d\n", cfg.IntermediateSize)
	fmt.Printf("  dropout:             %g\n", cfg.Dropout)
	fmt.Printf("  special tokens:      pad=%d bos=%d eos=%d\n", cfg.PadTokenID, cfg.BOSTokenID, cfg.EOSTokenID)
	fmt.Printf("  parameters:          %d\n", m.NumParameters())

	info, err := model.ReadWeightsInfo(*dir)
	if err != nil {
		fmt.Printf("  weights:             none (%v)\n", err)
		return nil
	}
	fmt.Printf("  weights:             %d tensors, format=%s snapshot=%s\n",
		info.NumTensors, info.Format, info.SnapshotID)
	return nil
}
