package tensor

import (
	"path/filepath"
	"testing"

	"github.com/samcharles93/mtprompt/internal/safetensors"
)

func TestLoadSafetensors(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "emb.safetensors")
	err := safetensors.Write(path, map[string]safetensors.Entry{
		"embed": {Shape: []int{2, 3}, Data: []float32{1, 2, 3, 4, 5, 6}},
		"bank":  {Shape: []int{2, 1, 2}, Data: []float32{1, 2, 3, 4}},
	}, nil)
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	st, err := safetensors.Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer func() { _ = st.Close() }()

	m, err := LoadSafetensorsMat(st, "embed")
	if err != nil {
		t.Fatalf("LoadSafetensorsMat: %v", err)
	}
	if m.Rows() != 2 || m.Cols() != 3 || m.Row(1)[2] != 6 {
		t.Fatalf("mat = %+v", m)
	}
	if _, err := LoadSafetensorsMat(st, "bank"); err == nil {
		t.Fatal("expected error loading a rank-3 tensor as a matrix")
	}

	bank, err := LoadSafetensors(st, "bank")
	if err != nil {
		t.Fatalf("LoadSafetensors: %v", err)
	}
	if !bank.HasShape(2, 1, 2) || bank.Index(1).Data[0] != 3 {
		t.Fatalf("bank = %v %v", bank.Shape, bank.Data)
	}
	if _, err := LoadSafetensors(st, "missing"); err == nil {
		t.Fatal("expected error for missing tensor")
	}
}
