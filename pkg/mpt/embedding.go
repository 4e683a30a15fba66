package mpt

import (
	"fmt"
	"math/rand"

	"github.com/samcharles93/mtprompt/internal/tensor"
	"github.com/samcharles93/mtprompt/internal/tokenizer"
)

// Embeddings is the host model's vocabulary table. *tensor.Mat satisfies it.
type Embeddings interface {
	Rows() int
	Cols() int
	RowTo(dst []float32, id int)
}

// TextEncoder turns init text into host token ids.
type TextEncoder interface {
	Encode(text string) ([]int, error)
}

// Host is what TEXT initialisation borrows from the model being tuned.
// Other modes ignore it.
type Host struct {
	Embeddings Embeddings
	Tokenizer  TextEncoder
}

// PromptEmbedding is the shared soft prompt, one row per virtual token.
type PromptEmbedding struct {
	Weight *tensor.Tensor
}

// newPromptEmbedding allocates [T, D] Gaussian noise and, for TEXT init,
// overwrites it with the host embeddings of the init text's tokens.
func newPromptEmbedding(cfg Config, host Host, rng *rand.Rand) (*PromptEmbedding, error) {
	total, dim := cfg.TotalVirtualTokens(), cfg.TokenDim()
	w := tensor.New(total, dim)
	tensor.FillNormal(w, 0, initStd, rng)

	text, ok := cfg.Init().(TextInit)
	if !ok {
		return &PromptEmbedding{Weight: w}, nil
	}
	if host.Embeddings == nil {
		return nil, fmt.Errorf("%w: %s init requires host embeddings", ErrInvalidConfig, InitText)
	}
	if got := host.Embeddings.Cols(); got != dim {
		return nil, fmt.Errorf("%w: host embedding dim %d does not match token_dim %d", ErrInvalidConfig, got, dim)
	}
	enc := host.Tokenizer
	if enc == nil {
		if text.TokenizerPath == "" {
			return nil, fmt.Errorf("%w: %s init requires a tokenizer", ErrInvalidConfig, InitText)
		}
		tok, err := tokenizer.LoadHFTokenizer(text.TokenizerPath, text.TokenizerConfigPath)
		if err != nil {
			return nil, fmt.Errorf("load tokenizer: %w", err)
		}
		enc = tok
	}
	ids, err := enc.Encode(text.Text)
	if err != nil {
		return nil, fmt.Errorf("encode init text: %w", err)
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("%w: init text encodes to no tokens", ErrInvalidConfig)
	}
	vocab := host.Embeddings.Rows()
	for i, id := range fitTokens(ids, total) {
		if id < 0 || id >= vocab {
			return nil, fmt.Errorf("%w: init token %d with vocab size %d", ErrIndexOutOfRange, id, vocab)
		}
		host.Embeddings.RowTo(w.Index(i).Data, id)
	}
	return &PromptEmbedding{Weight: w}, nil
}

// fitTokens truncates ids to n, or repeats them cyclically until n long.
func fitTokens(ids []int, n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = ids[i%len(ids)]
	}
	return out
}
