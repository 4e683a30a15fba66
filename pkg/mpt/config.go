// Package mpt implements multitask prompt tuning: a shared soft prompt
// modulated per task by a low-rank factor pair, composed on lookup as
// base ⊙ (cols @ rows).
package mpt

import "fmt"

// PeftType is the adapter type tag written alongside saved states.
type PeftType string

const PeftTypeMultitaskPromptTuning PeftType = "MULTITASK_PROMPT_TUNING"

// initStd is the standard deviation of the Gaussian used for every freshly
// allocated parameter.
const initStd = 0.02

// PromptTuningConfig is the base soft-prompt geometry. NumLayers and
// NumAttentionHeads are informational and only round-tripped.
type PromptTuningConfig struct {
	NumVirtualTokens         int
	TokenDim                 int
	NumTransformerSubmodules int
	NumLayers                int
	NumAttentionHeads        int
}

// TotalVirtualTokens is the number of rows of the shared prompt.
func (b PromptTuningConfig) TotalVirtualTokens() int {
	return b.NumVirtualTokens * b.NumTransformerSubmodules
}

func (b PromptTuningConfig) validate() error {
	switch {
	case b.NumVirtualTokens < 1:
		return fmt.Errorf("%w: num_virtual_tokens must be >= 1, got %d", ErrInvalidConfig, b.NumVirtualTokens)
	case b.TokenDim < 1:
		return fmt.Errorf("%w: token_dim must be >= 1, got %d", ErrInvalidConfig, b.TokenDim)
	case b.NumTransformerSubmodules < 1:
		return fmt.Errorf("%w: num_transformer_submodules must be >= 1, got %d", ErrInvalidConfig, b.NumTransformerSubmodules)
	case b.NumLayers < 0 || b.NumAttentionHeads < 0:
		return fmt.Errorf("%w: num_layers and num_attention_heads must not be negative", ErrInvalidConfig)
	}
	return nil
}

// Config describes a task-conditioned prompt table. It is immutable once
// built by NewConfig; the zero value is not a valid configuration.
type Config struct {
	peftType PeftType
	base     PromptTuningConfig
	init     Init
	numRanks int
	numTasks int
}

// NewConfig validates its arguments and returns a tagged configuration.
// Errors wrap ErrInvalidConfig.
func NewConfig(base PromptTuningConfig, init Init, numRanks, numTasks int) (Config, error) {
	cfg := Config{
		peftType: PeftTypeMultitaskPromptTuning,
		base:     base,
		init:     init,
		numRanks: numRanks,
		numTasks: numTasks,
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.peftType != PeftTypeMultitaskPromptTuning {
		return fmt.Errorf("%w: config was not built with NewConfig", ErrInvalidConfig)
	}
	if err := c.base.validate(); err != nil {
		return err
	}
	if c.numRanks < 1 {
		return fmt.Errorf("%w: num_ranks must be >= 1, got %d", ErrInvalidConfig, c.numRanks)
	}
	if c.numTasks < 1 {
		return fmt.Errorf("%w: num_tasks must be >= 1, got %d", ErrInvalidConfig, c.numTasks)
	}
	switch v := c.init.(type) {
	case RandomInit, TextInit, AverageSourceTasks, ExactSourceTask, OnlySourceShared:
		return v.validate()
	case nil:
		return fmt.Errorf("%w: missing init mode", ErrInvalidConfig)
	default:
		return fmt.Errorf("%w: unsupported init %T", ErrInvalidConfig, v)
	}
}

func (c Config) PeftType() PeftType            { return c.peftType }
func (c Config) Base() PromptTuningConfig      { return c.base }
func (c Config) Init() Init                    { return c.init }
func (c Config) NumVirtualTokens() int         { return c.base.NumVirtualTokens }
func (c Config) NumTransformerSubmodules() int { return c.base.NumTransformerSubmodules }
func (c Config) TotalVirtualTokens() int       { return c.base.TotalVirtualTokens() }
func (c Config) TokenDim() int                 { return c.base.TokenDim }
func (c Config) NumRanks() int                 { return c.numRanks }
func (c Config) NumTasks() int                 { return c.numTasks }

// InitMode returns the mode of the configured init variant.
func (c Config) InitMode() InitMode {
	if c.init == nil {
		return InitRandom
	}
	return c.init.Mode()
}

// SourceStatePath is empty unless the init mode reads a source checkpoint.
func (c Config) SourceStatePath() string {
	path, _ := sourcePath(c.init)
	return path
}

// SourceTaskIndex reports the selected source task for EXACT_SOURCE_TASK.
func (c Config) SourceTaskIndex() (int, bool) {
	if v, ok := c.init.(ExactSourceTask); ok {
		return v.TaskIndex, true
	}
	return 0, false
}

func (c Config) String() string {
	return fmt.Sprintf("%s(mode=%s tokens=%d dim=%d ranks=%d tasks=%d)",
		c.peftType, c.InitMode(), c.TotalVirtualTokens(), c.TokenDim(), c.numRanks, c.numTasks)
}
