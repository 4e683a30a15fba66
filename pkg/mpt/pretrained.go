package mpt

import (
	"fmt"
	"os"
	"path/filepath"
)

// StateFileName is the parameter file inside a saved adapter directory.
const StateFileName = "adapter_model.safetensors"

// SavePretrained writes the table into dir as adapter_config.json plus
// adapter_model.safetensors, creating dir if needed.
func (t *PromptTable) SavePretrained(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create adapter dir: %w", err)
	}
	if err := WriteAdapterConfig(dir, t.cfg); err != nil {
		return err
	}
	return t.SaveState(filepath.Join(dir, StateFileName))
}

// OpenPretrained restores a table written by SavePretrained.
func OpenPretrained(dir string, opts TableOptions) (*PromptTable, error) {
	o, err := LoadOptionsFile(filepath.Join(dir, AdapterConfigName))
	if err != nil {
		return nil, err
	}
	cfg, err := o.Config()
	if err != nil {
		return nil, err
	}
	return OpenPromptTable(cfg, filepath.Join(dir, StateFileName), opts)
}
