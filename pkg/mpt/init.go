package mpt

import (
	"fmt"
	"strings"
)

// InitMode names how a table's parameters are initialised.
type InitMode int

const (
	InitRandom InitMode = iota
	InitText
	InitAverageSourceTasks
	InitExactSourceTask
	InitOnlySourceShared
)

var initModeNames = [...]string{
	InitRandom:             "RANDOM",
	InitText:               "TEXT",
	InitAverageSourceTasks: "AVERAGE_SOURCE_TASKS",
	InitExactSourceTask:    "EXACT_SOURCE_TASK",
	InitOnlySourceShared:   "ONLY_SOURCE_SHARED",
}

func (m InitMode) String() string {
	if m < 0 || int(m) >= len(initModeNames) {
		return fmt.Sprintf("InitMode(%d)", int(m))
	}
	return initModeNames[m]
}

// ParseInitMode accepts the upper-case names above, ignoring case.
func ParseInitMode(s string) (InitMode, error) {
	name := strings.ToUpper(strings.TrimSpace(s))
	for i, n := range initModeNames {
		if n == name {
			return InitMode(i), nil
		}
	}
	return 0, fmt.Errorf("%w: unknown init mode %q", ErrInvalidConfig, s)
}

func (m InitMode) MarshalText() ([]byte, error) {
	if m < 0 || int(m) >= len(initModeNames) {
		return nil, fmt.Errorf("%w: unknown init mode %d", ErrInvalidConfig, int(m))
	}
	return []byte(initModeNames[m]), nil
}

func (m *InitMode) UnmarshalText(text []byte) error {
	mode, err := ParseInitMode(string(text))
	if err != nil {
		return err
	}
	*m = mode
	return nil
}

// UsesSource reports whether the mode reads a source checkpoint.
func (m InitMode) UsesSource() bool {
	switch m {
	case InitAverageSourceTasks, InitExactSourceTask, InitOnlySourceShared:
		return true
	}
	return false
}

// Init is the initialisation policy of a table. Each variant carries only
// the fields its mode uses.
type Init interface {
	Mode() InitMode
	validate() error
}

// RandomInit draws every parameter from N(0, 0.02²).
type RandomInit struct{}

// TextInit seeds the shared prompt with the host embeddings of Text's
// tokens. TokenizerPath (tokenizer.json) is used when the caller does not
// supply an encoder.
type TextInit struct {
	Text                string
	TokenizerPath       string
	TokenizerConfigPath string
}

// AverageSourceTasks loads the shared prompt and the mean of all source
// task factors.
type AverageSourceTasks struct {
	SourceStatePath string
}

// ExactSourceTask loads the shared prompt and the factors of one source
// task.
type ExactSourceTask struct {
	SourceStatePath string
	TaskIndex       int
}

// OnlySourceShared loads the shared prompt and keeps fresh task factors.
type OnlySourceShared struct {
	SourceStatePath string
}

func (RandomInit) Mode() InitMode         { return InitRandom }
func (TextInit) Mode() InitMode           { return InitText }
func (AverageSourceTasks) Mode() InitMode { return InitAverageSourceTasks }
func (ExactSourceTask) Mode() InitMode    { return InitExactSourceTask }
func (OnlySourceShared) Mode() InitMode   { return InitOnlySourceShared }

func (RandomInit) validate() error { return nil }

func (i TextInit) validate() error {
	if strings.TrimSpace(i.Text) == "" {
		return fmt.Errorf("%w: init mode %s requires init text", ErrInvalidConfig, InitText)
	}
	return nil
}

func (i AverageSourceTasks) validate() error {
	return requireSourcePath(InitAverageSourceTasks, i.SourceStatePath)
}

func (i ExactSourceTask) validate() error {
	return requireSourcePath(InitExactSourceTask, i.SourceStatePath)
}

func (i OnlySourceShared) validate() error {
	return requireSourcePath(InitOnlySourceShared, i.SourceStatePath)
}

func requireSourcePath(mode InitMode, path string) error {
	if strings.TrimSpace(path) == "" {
		return fmt.Errorf("%w: init mode %s requires a source state path", ErrInvalidConfig, mode)
	}
	return nil
}

// sourcePath returns the checkpoint path of a source variant.
func sourcePath(init Init) (string, bool) {
	switch v := init.(type) {
	case AverageSourceTasks:
		return v.SourceStatePath, true
	case ExactSourceTask:
		return v.SourceStatePath, true
	case OnlySourceShared:
		return v.SourceStatePath, true
	}
	return "", false
}
