// Package tokenizer implements the Hugging Face byte-level BPE tokenizer
// used to turn prompt init text into vocabulary ids.
package tokenizer

// Tokenizer is the minimal surface the prompt builder and CLI need.
type Tokenizer interface {
	Encode(text string) ([]int, error)
	Decode(ids []int) (string, error)
	VocabSize() int
}
