package mpt

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestSaveAndOpenPretrained(t *testing.T) {
	t.Parallel()
	dir := filepath.Join(t.TempDir(), "adapter")
	cfg := mustConfig(t, baseConfig(4, 6), TextInit{Text: "answer the question"}, 2, 3)
	host := Host{Embeddings: vocabMat(10, 6), Tokenizer: fixedEncoder{ids: []int{7, 2, 9}}}
	table, err := NewPromptTable(cfg, host, seeded(21))
	if err != nil {
		t.Fatalf("NewPromptTable: %v", err)
	}
	if err := table.SavePretrained(dir); err != nil {
		t.Fatalf("SavePretrained: %v", err)
	}
	for _, name := range []string{AdapterConfigName, StateFileName} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Fatalf("missing %s: %v", name, err)
		}
	}

	// Restoring a TEXT table needs neither host embeddings nor a tokenizer.
	restored, err := OpenPretrained(dir, TableOptions{})
	if err != nil {
		t.Fatalf("OpenPretrained: %v", err)
	}
	if restored.Config().InitMode() != InitText || restored.Config().NumTasks() != 3 {
		t.Fatalf("restored config = %v", restored.Config())
	}
	ids := []int{2, 1, 0}
	want, err := table.Compose(table.Positions(3), ids)
	if err != nil {
		t.Fatalf("Compose: %v", err)
	}
	got, err := restored.Compose(restored.Positions(3), ids)
	if err != nil {
		t.Fatalf("Compose: %v", err)
	}
	if !got.Equal(want) {
		t.Fatal("restored table composes differently")
	}
}

func TestOpenPretrainedErrors(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	if _, err := OpenPretrained(dir, TableOptions{}); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("empty dir: err = %v, want not-exist", err)
	}
	if err := os.WriteFile(filepath.Join(dir, AdapterConfigName), []byte(`{"peft_type":"LORA","num_virtual_tokens":1,"token_dim":1}`), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := OpenPretrained(dir, TableOptions{}); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("foreign peft type: err = %v, want ErrInvalidConfig", err)
	}
}
