package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/lumen-ml/lumen/generate"
	"github.com/lumen-ml/lumen/model"
	"github.com/lumen-ml/lumen/tokenizer"
)

func runGenerate(args []string) error {
	fs, verbose := newFlagSet("generate")
	dir := fs.String("dir", "", "Model directory (required)")
	prompt := fs.String("prompt", "", "Prompt text")
	tokName := fs.String("tokenizer", "byte", "Tokenizer: byte, or a tiktoken encoding/model name")
	preset := fs.String("config", "", "YAML generation preset; flags given explicitly override it")
	maxLength := fs.Int("max-length", 0, "Total length limit, prompt included")
	maxNew := fs.Int("max-new-tokens", 0, "New-token limit")
	minLength := fs.Int("min-length", 0, "Suppress EOS until this many tokens")
	temperature := fs.Float64("temperature", 1.0, "Sampling temperature")
	topK := fs.Int("top-k", 50, "Top-k filter (0 = off)")
	topP := fs.Float64("top-p", 0.9, "Top-p filter (1 = off)")
	penalty := fs.Float64("repetition-penalty", 1.0, "Repetition penalty (1 = off)")
	greedy := fs.Bool("greedy", false, "Greedy decoding")
	n := fs.Int("n", 1, "Continuations to generate")
	seed := fs.Int64("seed", -1, "Sampling seed (-1 = random)")
	stopMode := fs.String("stop-mode", "per_sequence", "per_sequence or batch_on_any_eos")
	noCache := fs.Bool("no-cache", false, "Recompute the full sequence every step")
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
	tok, err := tokenizer.Load(*tokName)
	if err != nil {
		return err
	}
	mcfg := m.Config()
	if tok.VocabSize() > mcfg.VocabSize {
		return fmt.Errorf("tokenizer %s has %d ids but the model only %d", *tokName, tok.VocabSize(), mcfg.VocabSize)
	}

	cfg := generate.DefaultGenerationConfig()
	if *preset != "" {
		if cfg, err = generate.LoadConfig(*preset); err != nil {
			return err
		}
	} else {
		cfg.PadTokenID = mcfg.PadTokenID
		cfg.EOSTokenID = mcfg.EOSTokenID
	}

	set := visited(fs)
	if set["max-length"] {
		cfg.MaxLength = *maxLength
	}
	if set["max-new-tokens"] {
		cfg.MaxNewTokens = *maxNew
	}
	if set["min-length"] {
		cfg.MinLength = *minLength
	}
	if set["temperature"] {
		cfg.Temperature = float32(*temperature)
	}
	if set["top-k"] {
		cfg.TopK = *topK
	}
	if set["top-p"] {
		cfg.TopP = float32(*topP)
	}
	if set["repetition-penalty"] {
		cfg.RepetitionPenalty = float32(*penalty)
	}
	if set["greedy"] {
		cfg.DoSample = !*greedy
	}
	if set["n"] {
		cfg.NumReturnSequences = *n
	}
	if set["seed"] {
		cfg.Seed = *seed
	}
	if set["stop-mode"] {
		if cfg.StopMode, err = generate.ParseStopMode(*stopMode); err != nil {
			return err
		}
	}
	if set["no-cache"] {
		cfg.UseCache = !*noCache
	}

	ids, err := tok.Encode(*prompt)
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		if tok.BosToken() < 0 {
			return errors.New("empty prompt and the tokenizer has no BOS token")
		}
		ids = []int32{tok.BosToken()}
	}

	gen := generate.NewGenerator(m, generate.WithLogger(logger))
	if cfg.NumReturnSequences == 1 {
		return stream(gen, tok, ids, *prompt, cfg)
	}

	seqs, err := gen.Generate([][]int32{ids}, cfg)
	if err != nil {
		return err
	}
	for i, seq := range seqs {
		text, err := tok.Decode(cutAtEOS(seq[len(ids):], cfg.EOSTokenID))
		if err != nil {
			return err
		}
		fmt.Printf("[%d] %s%s\n", i, *prompt, text)
	}
	return nil
}

// stream prints each token as it is decoded.
func stream(gen *generate.Generator, tok tokenizer.Tokenizer, ids []int32, prompt string, cfg generate.GenerationConfig) error {
	fmt.Print(prompt)
	done := false
	var writeErr error
	cfg.OnStep = func(s generate.Step) {
		if s.State != generate.StateDecode || done || writeErr != nil {
			return
		}
		id := s.Tokens[0]
		if id == cfg.EOSTokenID {
			done = true
			return
		}
		text, err := tok.Decode([]int32{id})
		if err != nil {
			writeErr = err
			return
		}
		_, writeErr = os.Stdout.WriteString(text)
	}

	if _, err := gen.Generate([][]int32{ids}, cfg); err != nil {
		return err
	}
	fmt.Println()
	return writeErr
}

func cutAtEOS(tokens []int32, eos int32) []int32 {
	for i, id := range tokens {
		if id == eos {
			return tokens[:i]
		}
	}
	return tokens
}
