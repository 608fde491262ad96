package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/goccy/go-json"
	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"
)

// Config is the steve configuration file (~/.config/steve/config.yaml). A
// .json path is read with the same keys, which covers the
// llama_steve_config.json layout. Pointer fields distinguish "not set" from
// zero values.
type Config struct {
	MaxSeqLen    *int64 `yaml:"max_seq_len" json:"max_seq_len"`
	MaxBatchSize *int64 `yaml:"max_batch_size" json:"max_batch_size"`

	Encoding string `yaml:"encoding" json:"encoding"`
	// TokenizerPath is accepted as an encoding name.
	TokenizerPath string `yaml:"tokenizer_path" json:"tokenizer_path"`
	Backend       string `yaml:"backend" json:"backend"`
	// ModelDir names the model in logs only; the toy backend needs no files.
	ModelDir string `yaml:"model_dir" json:"model_dir"`

	Temperature *float64 `yaml:"temperature" json:"temperature"`
	TopP        *float64 `yaml:"top_p" json:"top_p"`
	MaxGenLen   *int64   `yaml:"max_gen_len" json:"max_gen_len"`
	Seed        *int64   `yaml:"seed" json:"seed"`

	LogLevel  string `yaml:"log_level" json:"log_level"`
	LogFormat string `yaml:"log_format" json:"log_format"`
	LogFile   string `yaml:"log_file" json:"log_file"`

	ServerAddress string `yaml:"server_address" json:"server_address"`
	UserName      string `yaml:"user_name" json:"user_name"`
}

var loadedConfig Config

func defaultConfigPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "steve", "config.yaml")
}

// LoadConfig reads path, or the default location when path is empty. A
// missing default file yields a zero Config; a missing explicit file is an
// error.
func LoadConfig(path string) (Config, error) {
	explicit := path != ""
	if !explicit {
		path = defaultConfigPath()
		if path == "" {
			return Config{}, nil
		}
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if !explicit && errors.Is(err, fs.ErrNotExist) {
			return Config{}, nil
		}
		return Config{}, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if strings.EqualFold(filepath.Ext(path), ".json") {
		err = json.Unmarshal(data, &cfg)
	} else {
		err = yaml.Unmarshal(data, &cfg)
	}
	if err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// applyLoggingConfig fills logging flags the user did not set.
func applyLoggingConfig(c *cli.Command, cfg Config) {
	if cfg.LogLevel != "" && !c.IsSet("log-level") {
		logLevel = cfg.LogLevel
	}
	if cfg.LogFormat != "" && !c.IsSet("log-format") {
		logFormat = cfg.LogFormat
	}
	if cfg.LogFile != "" && !c.IsSet("log-file") {
		logFile = cfg.LogFile
	}
}

// applyGenerationConfig fills model and sampling flags the user did not set.
func applyGenerationConfig(c *cli.Command, cfg Config) {
	if !c.IsSet("encoding") {
		switch {
		case cfg.Encoding != "":
			encoding = cfg.Encoding
		case isEncodingName(cfg.TokenizerPath):
			encoding = cfg.TokenizerPath
		}
	}
	if cfg.Backend != "" && !c.IsSet("backend") {
		backend = cfg.Backend
	}
	if cfg.MaxSeqLen != nil && !c.IsSet("max-seq-len") {
		maxSeqLen = *cfg.MaxSeqLen
	}
	if cfg.MaxBatchSize != nil && !c.IsSet("max-batch-size") {
		maxBatchSize = *cfg.MaxBatchSize
	}
	if cfg.Temperature != nil && !c.IsSet("temperature") {
		temperature = *cfg.Temperature
	}
	if cfg.TopP != nil && !c.IsSet("top-p") {
		topP = *cfg.TopP
	}
	if cfg.MaxGenLen != nil && !c.IsSet("max-gen-len") {
		maxGenLen = *cfg.MaxGenLen
	}
	if cfg.Seed != nil && !c.IsSet("seed") {
		seed = *cfg.Seed
	}
}

func isEncodingName(s string) bool {
	switch s {
	case "cl100k_base", "o200k_base":
		return true
	}
	return false
}
