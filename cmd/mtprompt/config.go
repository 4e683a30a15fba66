package main

import (
	"os"
	"path/filepath"

	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"
)

// Config represents the mtprompt configuration file (~/.config/mtprompt/config.yaml).
// Pointer fields distinguish "not set" from zero values.
type Config struct {
	AdaptersDir string `yaml:"adapters_dir"`

	// Host model
	Embeddings       string `yaml:"embeddings"`
	EmbeddingsTensor string `yaml:"embeddings_tensor"`
	TokenizerJSON    string `yaml:"tokenizer_json"`
	TokenizerConfig  string `yaml:"tokenizer_config"`

	Seed *int64 `yaml:"seed"`

	// Output
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`

	// Server
	ServerAddress  string `yaml:"server_address"`
	StoreCapacity  *int   `yaml:"store_capacity"`
	MaxBatch       *int   `yaml:"max_batch"`
	ServiceName    string `yaml:"service_name"`
	MetricsEnabled *bool  `yaml:"metrics_enabled"`
}

func configPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "mtprompt", "config.yaml")
}

func applyLoggingConfig(c *cli.Command, cfg Config) {
	if cfg.LogLevel != "" && !c.IsSet("log-level") {
		logLevel = cfg.LogLevel
	}
	if cfg.LogFormat != "" && !c.IsSet("log-format") {
		logFormat = cfg.LogFormat
	}
}

// applyTableConfig applies config file defaults to the table building
// flags when the corresponding CLI flag was not explicitly set.
func applyTableConfig(c *cli.Command, cfg Config) {
	if cfg.AdaptersDir != "" && !c.IsSet("adapters-path") {
		adaptersPath = cfg.AdaptersDir
	}
	if cfg.Embeddings != "" && !c.IsSet("embeddings") {
		embeddingsPath = cfg.Embeddings
	}
	if cfg.EmbeddingsTensor != "" && !c.IsSet("embeddings-tensor") {
		embeddingsTensor = cfg.EmbeddingsTensor
	}
	if cfg.TokenizerJSON != "" && !c.IsSet("tokenizer-json") {
		tokenizerJSONPath = cfg.TokenizerJSON
	}
	if cfg.TokenizerConfig != "" && !c.IsSet("tokenizer-config") {
		tokenizerConfig = cfg.TokenizerConfig
	}
	if cfg.Seed != nil && !c.IsSet("seed") {
		seed = *cfg.Seed
	}
}

// applyServeConfig applies config file defaults to serve command variables.
func applyServeConfig(c *cli.Command, cfg Config, addr *string, capacity, maxBatch *int, metrics *bool) {
	applyTableConfig(c, cfg)
	if cfg.ServerAddress != "" && !c.IsSet("addr") {
		*addr = cfg.ServerAddress
	}
	if cfg.StoreCapacity != nil && !c.IsSet("store-capacity") {
		*capacity = *cfg.StoreCapacity
	}
	if cfg.MaxBatch != nil && !c.IsSet("max-batch") {
		*maxBatch = *cfg.MaxBatch
	}
	if cfg.MetricsEnabled != nil && !c.IsSet("metrics") {
		*metrics = *cfg.MetricsEnabled
	}
}

// LoadConfig reads the config file. Returns a zero Config if the file doesn't exist.
func LoadConfig() Config {
	return loadConfigFile(configPath())
}

func loadConfigFile(path string) Config {
	if path == "" {
		return Config{}
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}
	}
	return cfg
}
