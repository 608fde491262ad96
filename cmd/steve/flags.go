package main

import (
	"github.com/urfave/cli/v3"

	"github.com/samcharles93/steve/internal/logger"
	"github.com/samcharles93/steve/internal/tokenizer"
)

var (
	configFile   string
	encoding     string
	maxSeqLen    int64
	maxBatchSize int64
	backend      string
	toyHidden    int64
	toySeed      int64

	temperature float64
	topP        float64
	maxGenLen   int64
	seed        int64

	logLevel  string
	logFormat string
	logFile   string
	debug     bool
)

func configFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "config",
			Aliases:     []string{"c"},
			Usage:       "config file (.yaml, or .json in the llama_steve_config.json layout)",
			Destination: &configFile,
		},
	}
}

func modelFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "encoding",
			Usage:       "BPE encoding (cl100k_base, o200k_base)",
			Value:       tokenizer.DefaultEncoding,
			Destination: &encoding,
		},
		&cli.Int64Flag{
			Name:        "max-seq-len",
			Aliases:     []string{"max_seq_len"},
			Usage:       "max tokens per sequence, prompt included",
			Value:       512,
			Destination: &maxSeqLen,
		},
		&cli.Int64Flag{
			Name:        "max-batch-size",
			Aliases:     []string{"max_batch_size"},
			Usage:       "max prompts per forward batch",
			Value:       8,
			Destination: &maxBatchSize,
		},
		&cli.StringFlag{
			Name:        "backend",
			Usage:       "model backend (toy)",
			Value:       "toy",
			Destination: &backend,
		},
		&cli.Int64Flag{
			Name:        "toy-hidden",
			Usage:       "hidden size of the toy model",
			Value:       32,
			Destination: &toyHidden,
		},
		&cli.Int64Flag{
			Name:        "toy-seed",
			Usage:       "weight seed of the toy model",
			Value:       1,
			Destination: &toySeed,
		},
	}
}

func samplingFlags() []cli.Flag {
	return []cli.Flag{
		&cli.Float64Flag{
			Name:        "temperature",
			Aliases:     []string{"temp", "t"},
			Usage:       "sampling temperature (0 = greedy)",
			Value:       0.6,
			Destination: &temperature,
		},
		&cli.Float64Flag{
			Name:        "top-p",
			Aliases:     []string{"top_p"},
			Usage:       "nucleus sampling threshold",
			Value:       0.9,
			Destination: &topP,
		},
		&cli.Int64Flag{
			Name:        "max-gen-len",
			Aliases:     []string{"max_gen_len"},
			Usage:       "max generated tokens (default max-seq-len - 1)",
			Destination: &maxGenLen,
		},
		&cli.Int64Flag{
			Name:        "seed",
			Usage:       "sampling RNG seed (default -1 = random)",
			Value:       -1,
			Destination: &seed,
		},
	}
}

func loggingFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "log-level",
			Usage:       "log level (debug, info, warn, error)",
			Value:       "info",
			Destination: &logLevel,
		},
		&cli.StringFlag{
			Name:        "log-format",
			Usage:       "console log format (pretty, json, off)",
			Value:       "pretty",
			Destination: &logFormat,
		},
		&cli.StringFlag{
			Name:        "log-file",
			Usage:       "JSON log file (empty to disable)",
			Value:       logger.DefaultLogFile,
			Destination: &logFile,
		},
		&cli.BoolFlag{
			Name:        "debug",
			Usage:       "enable debug logging (shorthand for --log-level=debug)",
			Destination: &debug,
		},
	}
}

func loggingOptions() logger.Options {
	level := logLevel
	if debug {
		level = "debug"
	}
	return logger.Options{Level: level, Format: logFormat, File: logFile}
}

func generationFlags() []cli.Flag {
	return append(modelFlags(), samplingFlags()...)
}
