package mpt

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/samcharles93/mtprompt/internal/safetensors"
	"github.com/samcharles93/mtprompt/internal/tensor"
)

// Checkpoint keys. Source checkpoints and saved tables use the same names.
const (
	KeyPromptEmbeddings = "prompt_embeddings"
	KeyTaskCols         = "prefix_task_cols"
	KeyTaskRows         = "prefix_task_rows"
)

// Metadata written by SaveStateFile callers in this package.
const (
	metaFormat   = "format"
	metaPeftType = "peft_type"
	metaInitMode = "init_mode"
	metaRunID    = "run_id"

	stateFormat = "mtprompt"
)

// State maps checkpoint keys to tensors.
type State map[string]*tensor.Tensor

// Names returns the keys of s in sorted order.
func (s State) Names() []string {
	return slices.Sorted(maps.Keys(s))
}

// LoadMode selects how LoadState treats key mismatches. Shape mismatches
// are rejected in both modes.
type LoadMode int

const (
	// LoadExact requires the state to carry exactly the table's keys.
	LoadExact LoadMode = iota
	// LoadSubset applies the keys present and ignores unknown ones.
	LoadSubset
)

func (m LoadMode) String() string {
	switch m {
	case LoadExact:
		return "exact"
	case LoadSubset:
		return "subset"
	}
	return fmt.Sprintf("LoadMode(%d)", int(m))
}

// StateLoader reads a checkpoint bundle.
type StateLoader interface {
	LoadState(path string) (State, error)
}

// StateLoaderFunc adapts a function to StateLoader.
type StateLoaderFunc func(path string) (State, error)

func (f StateLoaderFunc) LoadState(path string) (State, error) { return f(path) }

// FileLoader reads safetensors checkpoints from disk.
var FileLoader StateLoader = StateLoaderFunc(LoadStateFile)

// LoadStateFile reads every tensor of a safetensors file as float32.
func LoadStateFile(path string) (State, error) {
	f, err := safetensors.Open(path)
	if errors.Is(err, safetensors.ErrFormat) {
		return nil, fmt.Errorf("%w: %w", ErrCheckpoint, err)
	}
	if err != nil {
		return nil, fmt.Errorf("open checkpoint: %w", err)
	}
	defer func() { _ = f.Close() }()

	state := make(State, len(f.Tensors))
	for _, name := range f.Names() {
		t, err := tensor.LoadSafetensors(f, name)
		if err != nil {
			return nil, fmt.Errorf("%w: read %s: %v", ErrCheckpoint, path, err)
		}
		state[name] = t
	}
	return state, nil
}

// SaveStateFile writes s as an F32 safetensors file.
func SaveStateFile(path string, s State, metadata map[string]string) error {
	entries := make(map[string]safetensors.Entry, len(s))
	for name, t := range s {
		if t == nil {
			return fmt.Errorf("save state: tensor %s is nil", name)
		}
		entries[name] = safetensors.Entry{Shape: t.Shape, Data: t.Data}
	}
	if err := safetensors.Write(path, entries, metadata); err != nil {
		return fmt.Errorf("save state: %w", err)
	}
	return nil
}

// validateState checks s against targets without touching either. It
// returns the keys of s that targets does not know.
func validateState(s State, targets State, mode LoadMode) ([]string, error) {
	var unexpected, missing []string
	for _, name := range s.Names() {
		if _, ok := targets[name]; !ok {
			unexpected = append(unexpected, name)
		}
	}
	for _, name := range targets.Names() {
		src, ok := s[name]
		if !ok {
			missing = append(missing, name)
			continue
		}
		dst := targets[name]
		if src == nil {
			return nil, fmt.Errorf("%w: %s is nil", ErrCheckpoint, name)
		}
		if !src.HasShape(dst.Shape...) {
			return nil, fmt.Errorf("%w: %s has shape %v, table expects %v", ErrCheckpoint, name, src.Shape, dst.Shape)
		}
	}
	switch mode {
	case LoadExact:
		if len(missing) > 0 || len(unexpected) > 0 {
			return nil, fmt.Errorf("%w: missing keys [%s], unexpected keys [%s]",
				ErrCheckpoint, strings.Join(missing, ", "), strings.Join(unexpected, ", "))
		}
	case LoadSubset:
	default:
		return nil, fmt.Errorf("%w: unknown load mode %d", ErrInvalidInput, int(mode))
	}
	return unexpected, nil
}
