package mpt

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/samcharles93/mtprompt/internal/tensor"
)

type fixedEncoder struct {
	ids []int
	err error
}

func (e fixedEncoder) Encode(string) ([]int, error) { return e.ids, e.err }

// vocabMat returns a [rows, cols] table whose row i is filled with i+1.
func vocabMat(rows, cols int) *tensor.Mat {
	m := tensor.NewMat(rows, cols)
	for i := range rows {
		for j := range cols {
			m.Data[i*cols+j] = float32(i + 1)
		}
	}
	return &m
}

func firstColumn(w *tensor.Tensor) []float32 {
	out := make([]float32, w.Len())
	for i := range out {
		out[i] = w.Index(i).Data[0]
	}
	return out
}

func TestTextInitCopiesHostRows(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		ids  []int
		want []float32
	}{
		{"repeat", []int{2, 0}, []float32{3, 1, 3, 1, 3}},
		{"truncate", []int{4, 3, 2, 1, 0, 4, 4}, []float32{5, 4, 3, 2, 1}},
		{"exact", []int{1, 1, 2, 2, 3}, []float32{2, 2, 3, 3, 4}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			cfg := mustConfig(t, baseConfig(5, 3), TextInit{Text: "classify sentiment"}, 1, 2)
			host := Host{Embeddings: vocabMat(5, 3), Tokenizer: fixedEncoder{ids: tc.ids}}
			table, err := NewPromptTable(cfg, host, seeded(1))
			if err != nil {
				t.Fatalf("NewPromptTable: %v", err)
			}
			got := firstColumn(table.BaseVectors())
			for i := range tc.want {
				if got[i] != tc.want[i] {
					t.Fatalf("base rows = %v, want %v", got, tc.want)
				}
			}
			if allZero(table.TaskCols()) || allZero(table.TaskRows()) {
				t.Fatal("factors not initialised")
			}
		})
	}
}

func TestTextInitErrors(t *testing.T) {
	t.Parallel()
	encErr := errors.New("tokenizer exploded")
	tests := []struct {
		name    string
		host    Host
		wantErr error
	}{
		{"no embeddings", Host{Tokenizer: fixedEncoder{ids: []int{0}}}, ErrInvalidConfig},
		{"no tokenizer", Host{Embeddings: vocabMat(4, 3)}, ErrInvalidConfig},
		{"dim mismatch", Host{Embeddings: vocabMat(4, 2), Tokenizer: fixedEncoder{ids: []int{0}}}, ErrInvalidConfig},
		{"empty encoding", Host{Embeddings: vocabMat(4, 3), Tokenizer: fixedEncoder{ids: []int{}}}, ErrInvalidConfig},
		{"id out of range", Host{Embeddings: vocabMat(4, 3), Tokenizer: fixedEncoder{ids: []int{1, 4}}}, ErrIndexOutOfRange},
		{"encoder error", Host{Embeddings: vocabMat(4, 3), Tokenizer: fixedEncoder{err: encErr}}, encErr},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			cfg := mustConfig(t, baseConfig(2, 3), TextInit{Text: "hello"}, 1, 1)
			if _, err := NewPromptTable(cfg, tc.host, seeded(1)); !errors.Is(err, tc.wantErr) {
				t.Fatalf("err = %v, want %v", err, tc.wantErr)
			}
		})
	}
}

func TestTextInitLoadsTokenizerFile(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "tokenizer.json")
	tok := `{"model":{"type":"BPE","vocab":{"a":0,"b":1,"ab":2,"Ġc":3,"c":4,"Ġ":5},"merges":["a b","Ġ c"]}}`
	if err := os.WriteFile(path, []byte(tok), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg := mustConfig(t, baseConfig(3, 2), TextInit{Text: "ab c", TokenizerPath: path}, 1, 1)
	table, err := NewPromptTable(cfg, Host{Embeddings: vocabMat(6, 2)}, seeded(1))
	if err != nil {
		t.Fatalf("NewPromptTable: %v", err)
	}
	// "ab c" encodes to [2 3], repeated to three tokens.
	got := firstColumn(table.BaseVectors())
	want := []float32{3, 4, 3}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("base rows = %v, want %v", got, want)
		}
	}
}

func TestFitTokens(t *testing.T) {
	t.Parallel()
	got := fitTokens([]int{7, 8, 9}, 7)
	want := []int{7, 8, 9, 7, 8, 9, 7}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("fitTokens = %v, want %v", got, want)
		}
	}
}
