package mpt

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	json "github.com/goccy/go-json"
	"github.com/google/go-cmp/cmp"
)

func baseConfig(tokens, dim int) PromptTuningConfig {
	return PromptTuningConfig{NumVirtualTokens: tokens, TokenDim: dim, NumTransformerSubmodules: 1}
}

func mustConfig(t *testing.T, base PromptTuningConfig, policy Init, ranks, tasks int) Config {
	t.Helper()
	cfg, err := NewConfig(base, policy, ranks, tasks)
	if err != nil {
		t.Fatalf("NewConfig: %v", err)
	}
	return cfg
}

func TestNewConfigValidation(t *testing.T) {
	t.Parallel()
	ok := baseConfig(4, 8)
	tests := []struct {
		name    string
		base    PromptTuningConfig
		policy  Init
		ranks   int
		tasks   int
		wantErr string
	}{
		{name: "random", base: ok, policy: RandomInit{}, ranks: 1, tasks: 1},
		{name: "text", base: ok, policy: TextInit{Text: "classify"}, ranks: 2, tasks: 3},
		{name: "exact", base: ok, policy: ExactSourceTask{SourceStatePath: "src.safetensors", TaskIndex: 2}, ranks: 1, tasks: 1},
		{name: "nil init", base: ok, policy: nil, ranks: 1, tasks: 1, wantErr: "missing init mode"},
		{name: "pointer init", base: ok, policy: &RandomInit{}, ranks: 1, tasks: 1, wantErr: "unsupported init"},
		{name: "empty text", base: ok, policy: TextInit{Text: "  "}, ranks: 1, tasks: 1, wantErr: "init text"},
		{name: "average without path", base: ok, policy: AverageSourceTasks{}, ranks: 1, tasks: 1, wantErr: "AVERAGE_SOURCE_TASKS"},
		{name: "exact without path", base: ok, policy: ExactSourceTask{}, ranks: 1, tasks: 1, wantErr: "EXACT_SOURCE_TASK"},
		{name: "shared without path", base: ok, policy: OnlySourceShared{SourceStatePath: " "}, ranks: 1, tasks: 1, wantErr: "ONLY_SOURCE_SHARED"},
		{name: "zero ranks", base: ok, policy: RandomInit{}, ranks: 0, tasks: 1, wantErr: "num_ranks"},
		{name: "zero tasks", base: ok, policy: RandomInit{}, ranks: 1, tasks: 0, wantErr: "num_tasks"},
		{name: "zero tokens", base: baseConfig(0, 8), policy: RandomInit{}, ranks: 1, tasks: 1, wantErr: "num_virtual_tokens"},
		{name: "zero dim", base: baseConfig(4, 0), policy: RandomInit{}, ranks: 1, tasks: 1, wantErr: "token_dim"},
		{name: "zero submodules", base: PromptTuningConfig{NumVirtualTokens: 4, TokenDim: 8}, policy: RandomInit{}, ranks: 1, tasks: 1, wantErr: "num_transformer_submodules"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			cfg, err := NewConfig(tc.base, tc.policy, tc.ranks, tc.tasks)
			if tc.wantErr == "" {
				if err != nil {
					t.Fatalf("NewConfig: %v", err)
				}
				if cfg.PeftType() != PeftTypeMultitaskPromptTuning {
					t.Fatalf("PeftType = %q", cfg.PeftType())
				}
				return
			}
			if !errors.Is(err, ErrInvalidConfig) {
				t.Fatalf("err = %v, want ErrInvalidConfig", err)
			}
			if !strings.Contains(err.Error(), tc.wantErr) {
				t.Fatalf("err = %q, want it to mention %q", err, tc.wantErr)
			}
		})
	}
}

func TestConfigAccessors(t *testing.T) {
	t.Parallel()
	base := PromptTuningConfig{NumVirtualTokens: 5, TokenDim: 16, NumTransformerSubmodules: 2, NumLayers: 12, NumAttentionHeads: 4}
	cfg := mustConfig(t, base, ExactSourceTask{SourceStatePath: "bank.safetensors", TaskIndex: 3}, 2, 1)

	if got := cfg.TotalVirtualTokens(); got != 10 {
		t.Fatalf("TotalVirtualTokens = %d, want 10", got)
	}
	if cfg.InitMode() != InitExactSourceTask || !cfg.InitMode().UsesSource() {
		t.Fatalf("InitMode = %v", cfg.InitMode())
	}
	if cfg.SourceStatePath() != "bank.safetensors" {
		t.Fatalf("SourceStatePath = %q", cfg.SourceStatePath())
	}
	if idx, ok := cfg.SourceTaskIndex(); !ok || idx != 3 {
		t.Fatalf("SourceTaskIndex = %d, %v", idx, ok)
	}
	if diff := cmp.Diff(base, cfg.Base()); diff != "" {
		t.Fatalf("Base mismatch (-want +got):\n%s", diff)
	}

	random := mustConfig(t, base, RandomInit{}, 1, 1)
	if random.SourceStatePath() != "" {
		t.Fatalf("RANDOM SourceStatePath = %q", random.SourceStatePath())
	}
	if _, ok := random.SourceTaskIndex(); ok {
		t.Fatal("RANDOM reports a source task index")
	}
}

func TestParseInitMode(t *testing.T) {
	t.Parallel()
	for i, name := range initModeNames {
		mode, err := ParseInitMode(strings.ToLower(name))
		if err != nil {
			t.Fatalf("ParseInitMode(%q): %v", name, err)
		}
		if mode != InitMode(i) || mode.String() != name {
			t.Fatalf("ParseInitMode(%q) = %v", name, mode)
		}
	}
	if _, err := ParseInitMode("PREFIX"); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("err = %v, want ErrInvalidConfig", err)
	}
	if _, err := InitMode(42).MarshalText(); err == nil {
		t.Fatal("expected error marshalling unknown mode")
	}
}

func TestOptionsRoundTrip(t *testing.T) {
	t.Parallel()
	inits := []Init{
		RandomInit{},
		TextInit{Text: "summarise the review", TokenizerPath: "tokenizer.json"},
		AverageSourceTasks{SourceStatePath: "bank.safetensors"},
		ExactSourceTask{SourceStatePath: "bank.safetensors", TaskIndex: 4},
		OnlySourceShared{SourceStatePath: "bank.safetensors"},
	}
	for _, policy := range inits {
		cfg := mustConfig(t, baseConfig(8, 32), policy, 2, 3)
		back, err := cfg.Options().Config()
		if err != nil {
			t.Fatalf("%s: Options().Config(): %v", policy.Mode(), err)
		}
		if diff := cmp.Diff(cfg.Options(), back.Options()); diff != "" {
			t.Fatalf("%s: round trip mismatch (-want +got):\n%s", policy.Mode(), diff)
		}
		if back.Init() != policy {
			t.Fatalf("%s: Init = %#v, want %#v", policy.Mode(), back.Init(), policy)
		}
	}
}

func TestOptionsDefaults(t *testing.T) {
	t.Parallel()
	cfg, err := Options{NumVirtualTokens: 4, TokenDim: 8}.Config()
	if err != nil {
		t.Fatalf("Config: %v", err)
	}
	if cfg.NumRanks() != 1 || cfg.NumTasks() != 1 || cfg.NumTransformerSubmodules() != 1 {
		t.Fatalf("defaults = ranks %d tasks %d submodules %d", cfg.NumRanks(), cfg.NumTasks(), cfg.NumTransformerSubmodules())
	}
	if cfg.InitMode() != InitRandom {
		t.Fatalf("InitMode = %v, want RANDOM", cfg.InitMode())
	}

	_, err = Options{NumVirtualTokens: 4, TokenDim: 8, PeftType: "LORA"}.Config()
	if !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("err = %v, want ErrInvalidConfig", err)
	}
}

func TestLoadOptionsFile(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	yamlPath := filepath.Join(dir, "prompt.yaml")
	yamlSrc := `num_virtual_tokens: 10
token_dim: 64
init_mode: exact_source_task
source_state_path: bank.safetensors
source_task_index: 2
num_ranks: 4
num_tasks: 1
`
	if err := os.WriteFile(yamlPath, []byte(yamlSrc), 0o644); err != nil {
		t.Fatal(err)
	}
	jsonPath := filepath.Join(dir, "prompt.json")
	jsonSrc := `{"num_virtual_tokens":10,"token_dim":64,"init_mode":"EXACT_SOURCE_TASK",
"source_state_path":"bank.safetensors","source_task_index":2,"num_ranks":4,"num_tasks":1}`
	if err := os.WriteFile(jsonPath, []byte(jsonSrc), 0o644); err != nil {
		t.Fatal(err)
	}

	want := Options{
		NumVirtualTokens: 10,
		TokenDim:         64,
		InitMode:         InitExactSourceTask,
		SourceStatePath:  "bank.safetensors",
		SourceTaskIndex:  2,
		NumRanks:         4,
		NumTasks:         1,
	}
	for _, path := range []string{yamlPath, jsonPath} {
		got, err := LoadOptionsFile(path)
		if err != nil {
			t.Fatalf("LoadOptionsFile(%s): %v", filepath.Base(path), err)
		}
		if diff := cmp.Diff(want, got); diff != "" {
			t.Fatalf("%s mismatch (-want +got):\n%s", filepath.Base(path), diff)
		}
	}
}

func TestLoadOptionsFileRejectsUnknownFields(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	cases := map[string]string{
		"bad.yaml": "num_virtual_tokens: 4\ntoken_dim: 8\nnum_rank: 2\n",
		"bad.json": `{"num_virtual_tokens":4,"token_dim":8,"num_rank":2}`,
		"mode.yml": "num_virtual_tokens: 4\ntoken_dim: 8\ninit_mode: PREFIX\n",
	}
	for name, src := range cases {
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, []byte(src), 0o644); err != nil {
			t.Fatal(err)
		}
		if _, err := LoadOptionsFile(path); !errors.Is(err, ErrInvalidConfig) {
			t.Fatalf("%s: err = %v, want ErrInvalidConfig", name, err)
		}
	}
}

func TestWriteAdapterConfig(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	cfg := mustConfig(t, baseConfig(4, 8), OnlySourceShared{SourceStatePath: "bank.safetensors"}, 2, 5)
	if err := WriteAdapterConfig(dir, cfg); err != nil {
		t.Fatalf("WriteAdapterConfig: %v", err)
	}
	data, err := os.ReadFile(filepath.Join(dir, AdapterConfigName))
	if err != nil {
		t.Fatal(err)
	}
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if raw["peft_type"] != "MULTITASK_PROMPT_TUNING" || raw["init_mode"] != "ONLY_SOURCE_SHARED" {
		t.Fatalf("adapter config = %v", raw)
	}
	if _, ok := raw["source_task_index"]; ok {
		t.Fatal("source_task_index written for a mode that ignores it")
	}
}
