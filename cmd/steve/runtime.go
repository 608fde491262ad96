package main

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/steve/internal/completion"
	"github.com/samcharles93/steve/internal/inference"
	"github.com/samcharles93/steve/internal/logger"
	"github.com/samcharles93/steve/internal/model"
	"github.com/samcharles93/steve/internal/tokenizer"
	"github.com/samcharles93/steve/internal/toy"
)

// buildService loads the tokenizer and model named by the flags and wraps
// them in a completion service.
func buildService(ctx context.Context, cmd *cli.Command) (*completion.Service, error) {
	applyGenerationConfig(cmd, loadedConfig)
	log := logger.FromContext(ctx)

	tok, err := tokenizer.NewBPE(encoding)
	if err != nil {
		return nil, err
	}
	m, err := loadModel(tok)
	if err != nil {
		return nil, err
	}
	engine, err := inference.New(m, inference.Config{
		MaxSeqLen:    int(maxSeqLen),
		MaxBatchSize: int(maxBatchSize),
		PadID:        tok.PadID(),
		EndID:        tok.EndID(),
	})
	if err != nil {
		return nil, err
	}
	svc, err := completion.NewService(tok, engine)
	if err != nil {
		return nil, err
	}

	logger.Action(log, "model_loaded", "model ready",
		"backend", backend,
		"encoding", tok.Name(),
		"vocab", m.VocabSize(),
		"max_seq_len", maxSeqLen,
		"max_batch_size", maxBatchSize,
		"model_dir", loadedConfig.ModelDir,
	)
	return svc, nil
}

func loadModel(tok *tokenizer.BPE) (model.Model, error) {
	switch backend {
	case "toy":
		lm, err := toy.New(tok.VocabSize(), int(toyHidden), toySeed)
		if err != nil {
			return nil, err
		}
		// Nudge the untrained model towards ending its turn so replies stay short.
		lm.SetBias(tok.EndID(), 8)
		return lm, nil
	default:
		return nil, fmt.Errorf("unknown backend %q", backend)
	}
}

// completionOptions turns the sampling flags into request options.
func completionOptions() completion.Options {
	opts := completion.DefaultOptions()
	opts.Temperature = temperature
	opts.TopP = topP
	opts.Seed = seed
	if maxGenLen > 0 {
		n := int(maxGenLen)
		opts.MaxGenLen = &n
	}
	return opts
}

// generationDefaults exposes the sampling flags as server-side defaults.
func generationDefaults() inference.Defaults {
	d := inference.Defaults{
		Temperature: &temperature,
		TopP:        &topP,
		Seed:        &seed,
	}
	if maxGenLen > 0 {
		n := int(maxGenLen)
		d.MaxGenLen = &n
	}
	return d
}
