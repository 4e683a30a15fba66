package mpt

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	json "github.com/goccy/go-json"
	"gopkg.in/yaml.v3"
)

// AdapterConfigName is the file written next to a saved state.
const AdapterConfigName = "adapter_config.json"

// Options is the flat, file-friendly form of Config. Fields that do not
// apply to InitMode are ignored by Config.
type Options struct {
	PeftType                 PeftType `yaml:"peft_type,omitempty" json:"peft_type,omitempty"`
	NumVirtualTokens         int      `yaml:"num_virtual_tokens" json:"num_virtual_tokens"`
	TokenDim                 int      `yaml:"token_dim" json:"token_dim"`
	NumTransformerSubmodules int      `yaml:"num_transformer_submodules,omitempty" json:"num_transformer_submodules,omitempty"`
	NumLayers                int      `yaml:"num_layers,omitempty" json:"num_layers,omitempty"`
	NumAttentionHeads        int      `yaml:"num_attention_heads,omitempty" json:"num_attention_heads,omitempty"`

	InitMode            InitMode `yaml:"init_mode" json:"init_mode"`
	InitText            string   `yaml:"init_text,omitempty" json:"init_text,omitempty"`
	TokenizerPath       string   `yaml:"tokenizer_path,omitempty" json:"tokenizer_path,omitempty"`
	TokenizerConfigPath string   `yaml:"tokenizer_config_path,omitempty" json:"tokenizer_config_path,omitempty"`
	SourceStatePath     string   `yaml:"source_state_path,omitempty" json:"source_state_path,omitempty"`
	SourceTaskIndex     int      `yaml:"source_task_index,omitempty" json:"source_task_index,omitempty"`

	NumRanks int `yaml:"num_ranks" json:"num_ranks"`
	NumTasks int `yaml:"num_tasks" json:"num_tasks"`
}

// Config converts o into a validated Config. Zero NumTransformerSubmodules,
// NumRanks and NumTasks default to 1.
func (o Options) Config() (Config, error) {
	if o.PeftType != "" && o.PeftType != PeftTypeMultitaskPromptTuning {
		return Config{}, fmt.Errorf("%w: peft_type %q", ErrInvalidConfig, o.PeftType)
	}
	base := PromptTuningConfig{
		NumVirtualTokens:         o.NumVirtualTokens,
		TokenDim:                 o.TokenDim,
		NumTransformerSubmodules: defaultOne(o.NumTransformerSubmodules),
		NumLayers:                o.NumLayers,
		NumAttentionHeads:        o.NumAttentionHeads,
	}
	var policy Init
	switch o.InitMode {
	case InitRandom:
		policy = RandomInit{}
	case InitText:
		policy = TextInit{Text: o.InitText, TokenizerPath: o.TokenizerPath, TokenizerConfigPath: o.TokenizerConfigPath}
	case InitAverageSourceTasks:
		policy = AverageSourceTasks{SourceStatePath: o.SourceStatePath}
	case InitExactSourceTask:
		policy = ExactSourceTask{SourceStatePath: o.SourceStatePath, TaskIndex: o.SourceTaskIndex}
	case InitOnlySourceShared:
		policy = OnlySourceShared{SourceStatePath: o.SourceStatePath}
	default:
		return Config{}, fmt.Errorf("%w: unknown init mode %d", ErrInvalidConfig, int(o.InitMode))
	}
	return NewConfig(base, policy, defaultOne(o.NumRanks), defaultOne(o.NumTasks))
}

func defaultOne(v int) int {
	if v == 0 {
		return 1
	}
	return v
}

// Options flattens c. Options().Config() returns an equal Config.
func (c Config) Options() Options {
	o := Options{
		PeftType:                 c.peftType,
		NumVirtualTokens:         c.base.NumVirtualTokens,
		TokenDim:                 c.base.TokenDim,
		NumTransformerSubmodules: c.base.NumTransformerSubmodules,
		NumLayers:                c.base.NumLayers,
		NumAttentionHeads:        c.base.NumAttentionHeads,
		InitMode:                 c.InitMode(),
		NumRanks:                 c.numRanks,
		NumTasks:                 c.numTasks,
	}
	switch v := c.init.(type) {
	case TextInit:
		o.InitText = v.Text
		o.TokenizerPath = v.TokenizerPath
		o.TokenizerConfigPath = v.TokenizerConfigPath
	case AverageSourceTasks:
		o.SourceStatePath = v.SourceStatePath
	case ExactSourceTask:
		o.SourceStatePath = v.SourceStatePath
		o.SourceTaskIndex = v.TaskIndex
	case OnlySourceShared:
		o.SourceStatePath = v.SourceStatePath
	}
	return o
}

// LoadOptionsFile decodes a prompt config. Files ending in .json are read
// as JSON, everything else as YAML. Unknown fields are rejected.
func LoadOptionsFile(path string) (Options, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Options{}, fmt.Errorf("read prompt config: %w", err)
	}
	var o Options
	if strings.EqualFold(filepath.Ext(path), ".json") {
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&o); err != nil {
			return Options{}, fmt.Errorf("%w: parse %s: %v", ErrInvalidConfig, path, err)
		}
		return o, nil
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&o); err != nil {
		return Options{}, fmt.Errorf("%w: parse %s: %v", ErrInvalidConfig, path, err)
	}
	return o, nil
}

// WriteAdapterConfig writes c as adapter_config.json inside dir.
func WriteAdapterConfig(dir string, c Config) error {
	data, err := json.MarshalIndent(c.Options(), "", "  ")
	if err != nil {
		return fmt.Errorf("encode adapter config: %w", err)
	}
	data = append(data, '\n')
	if err := os.WriteFile(filepath.Join(dir, AdapterConfigName), data, 0o644); err != nil {
		return fmt.Errorf("write adapter config: %w", err)
	}
	return nil
}
