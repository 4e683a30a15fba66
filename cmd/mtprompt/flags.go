package main

import "github.com/urfave/cli/v3"

var (
	promptConfigPath  string
	adapterPath       string
	adaptersPath      string
	embeddingsPath    string
	embeddingsTensor  string
	tokenizerJSONPath string
	tokenizerConfig   string
	seed              int64
	logLevel          string
	logFormat         string
	debug             bool
)

func commonTableFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "config",
			Aliases:     []string{"c"},
			Usage:       "path to prompt table config (.yaml or .json)",
			Destination: &promptConfigPath,
		},
		&cli.Int64Flag{
			Name:        "seed",
			Usage:       "seed for random initialisation (0 = time based)",
			Destination: &seed,
		},
	}
}

func commonAdapterFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "adapter",
			Aliases:     []string{"a"},
			Usage:       "path to a saved adapter directory",
			Destination: &adapterPath,
		},
		&cli.StringFlag{
			Name:        "adapters-path",
			Aliases:     []string{"path"},
			Usage:       "directory containing saved adapters",
			Destination: &adaptersPath,
		},
	}
}

func commonHostFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "embeddings",
			Usage:       "safetensors file holding the host model's word embeddings (TEXT init)",
			Destination: &embeddingsPath,
		},
		&cli.StringFlag{
			Name:        "embeddings-tensor",
			Usage:       "tensor name of the word embedding table",
			Value:       "model.embed_tokens.weight",
			Destination: &embeddingsTensor,
		},
		&cli.StringFlag{
			Name:        "tokenizer-json",
			Usage:       "override path to tokenizer.json",
			Destination: &tokenizerJSONPath,
		},
		&cli.StringFlag{
			Name:        "tokenizer-config",
			Usage:       "override path to tokenizer_config.json",
			Destination: &tokenizerConfig,
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
			Usage:       "log format (pretty, json, text)",
			Value:       "pretty",
			Destination: &logFormat,
		},
		&cli.BoolFlag{
			Name:        "debug",
			Usage:       "enable debug logging (shorthand for --log-level=debug)",
			Destination: &debug,
		},
	}
}
