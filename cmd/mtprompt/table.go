package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/samcharles93/mtprompt/internal/logger"
	"github.com/samcharles93/mtprompt/internal/observe"
	"github.com/samcharles93/mtprompt/internal/safetensors"
	"github.com/samcharles93/mtprompt/internal/tensor"
	"github.com/samcharles93/mtprompt/pkg/mpt"
)

// loadPromptConfig reads the --config file and applies the tokenizer
// overrides from the command line.
func loadPromptConfig(path string) (mpt.Config, error) {
	if strings.TrimSpace(path) == "" {
		return mpt.Config{}, errors.New("--config is required")
	}
	opts, err := mpt.LoadOptionsFile(path)
	if err != nil {
		return mpt.Config{}, err
	}
	if opts.InitMode == mpt.InitText {
		if tokenizerJSONPath != "" {
			opts.TokenizerPath = tokenizerJSONPath
		}
		if tokenizerConfig != "" {
			opts.TokenizerConfigPath = tokenizerConfig
		}
	}
	return opts.Config()
}

// loadHost reads the host embedding table. Only TEXT init needs it.
func loadHost(cfg mpt.Config) (mpt.Host, error) {
	if cfg.InitMode() != mpt.InitText {
		return mpt.Host{}, nil
	}
	if embeddingsPath == "" {
		return mpt.Host{}, fmt.Errorf("%s init requires --embeddings", mpt.InitText)
	}
	st, err := safetensors.Open(embeddingsPath)
	if err != nil {
		return mpt.Host{}, fmt.Errorf("open embeddings: %w", err)
	}
	defer func() { _ = st.Close() }()
	emb, err := tensor.LoadSafetensorsMat(st, embeddingsTensor)
	if err != nil {
		return mpt.Host{}, fmt.Errorf("load embeddings: %w", err)
	}
	return mpt.Host{Embeddings: emb}, nil
}

func newRand(seed int64) *rand.Rand {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return rand.New(rand.NewSource(seed))
}

// buildTable constructs a table from cfg, tracing and counting the build.
func buildTable(ctx context.Context, cfg mpt.Config, seed int64, metrics *observe.Metrics) (*mpt.PromptTable, error) {
	log := logger.FromContext(ctx)
	mode := cfg.InitMode().String()
	ctx, span := observe.StartSpan(ctx, "mpt.build_table")
	defer span.End()
	span.SetAttributes(
		attribute.String("init_mode", mode),
		attribute.Int("num_tasks", cfg.NumTasks()),
		attribute.Int("num_ranks", cfg.NumRanks()),
	)

	table, err := func() (*mpt.PromptTable, error) {
		host, err := loadHost(cfg)
		if err != nil {
			return nil, err
		}
		return mpt.NewPromptTable(cfg, host, mpt.TableOptions{
			Rand:   newRand(seed),
			Logger: log,
		})
	}()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		metrics.RecordTableBuild(ctx, mode, buildStatus(err))
		return nil, err
	}
	metrics.RecordTableBuild(ctx, mode, observe.StatusOK)
	return table, nil
}

func buildStatus(err error) string {
	if errors.Is(err, mpt.ErrInvalidConfig) || errors.Is(err, mpt.ErrCheckpoint) {
		return observe.StatusInvalid
	}
	return observe.StatusError
}
