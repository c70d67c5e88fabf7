package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/schollz/progressbar/v3"

	"github.com/lumen-ml/lumen/model"
	"github.com/lumen-ml/lumen/tokenizer"
	"github.com/lumen-ml/lumen/train"
)

func runTrain(args []string) error {
	fs, verbose := newFlagSet("train")
	dir := fs.String("dir", "", "Model directory created by init (required)")
	data := fs.String("data", "", "Training text file (required)")
	tokName := fs.String("tokenizer", "byte", "Tokenizer: byte, or a tiktoken encoding/model name")
	steps := fs.Int("steps", 1000, "Optimisation steps")
	batchSize := fs.Int("batch", 8, "Rows per batch")
	seqLen := fs.Int("seq", 128, "Tokens per row")
	lr := fs.Float64("lr", 3e-4, "Peak learning rate")
	warmup := fs.Int("warmup", 100, "Warmup steps")
	weightDecay := fs.Float64("weight-decay", 0.01, "AdamW weight decay")
	clip := fs.Float64("clip", 1.0, "Gradient clipping norm (0 = off)")
	evalFrac := fs.Float64("eval-frac", 0.1, "Fraction of batches held out for evaluation")
	seed := fs.Int64("seed", 42, "Dropout seed")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *dir == "" || *data == "" {
		return errors.New("-dir and -data are required")
	}
	logger := setupLogger(*verbose)

	m, err := model.Load(*dir, model.WithLogger(logger))
	if err != nil {
		return err
	}
	tok, err := tokenizer.Load(*tokName)
	if err != nil {
		return err
	}
	mcfg := m.Config()
	if tok.VocabSize() > mcfg.VocabSize {
		return fmt.Errorf("tokenizer %s has %d ids but the model only %d", *tokName, tok.VocabSize(), mcfg.VocabSize)
	}

	//nolint:gosec // G304: training file path is user input by design
	text, err := os.ReadFile(*data)
	if err != nil {
		return fmt.Errorf("failed to read training data: %w", err)
	}
	tokens, err := tok.Encode(string(text))
	if err != nil {
		return err
	}

	rowLen := min(*seqLen, mcfg.MaxSeqLength)
	batches := train.MakeBatches(tokens, rowLen, *batchSize)
	trainSet, evalSet := train.SplitHoldout(batches, *evalFrac)
	if len(trainSet) == 0 {
		return fmt.Errorf("%s: %d tokens is too little for one row of %d", *data, len(tokens), rowLen)
	}
	logger.Info("dataset",
		"tokens", len(tokens),
		"train_batches", len(trainSet),
		"eval_batches", len(evalSet),
		"seq", rowLen,
	)

	cfg := train.DefaultConfig()
	cfg.LearningRate = *lr
	cfg.WarmupSteps = *warmup
	cfg.TotalSteps = *steps
	cfg.WeightDecay = *weightDecay
	cfg.MaxGradNorm = *clip
	cfg.Seed = *seed
	trainer, err := train.New(m, cfg, train.WithLogger(logger))
	if err != nil {
		return err
	}

	bar := progressbar.NewOptions(*steps,
		progressbar.OptionSetDescription("Training"),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "=",
			SaucerHead:    ">",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
	)
	for step := 0; step < *steps; step++ {
		res, err := trainer.TrainStep(trainSet[step%len(trainSet)])
		if err != nil {
			return fmt.Errorf("step %d: %w", step+1, err)
		}
		bar.Describe(fmt.Sprintf("Training [loss %.4f lr %.2e]", res.Loss, res.LearningRate))
		_ = bar.Add(1)
	}
	_ = bar.Finish()
	fmt.Fprintln(os.Stderr)

	if len(evalSet) > 0 {
		loss, err := trainer.Evaluate(evalSet)
		if err != nil {
			return err
		}
		fmt.Printf("Eval loss: %.4f\n", loss)
	}
	return m.Save(*dir)
}
