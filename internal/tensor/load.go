package tensor

import (
	"fmt"

	"github.com/samcharles93/mtprompt/internal/safetensors"
)

// LoadSafetensorsMat loads a 2D matrix, such as a vocabulary embedding
// table, from a safetensors file.
func LoadSafetensorsMat(st *safetensors.File, name string) (*Mat, error) {
	data, info, err := st.ReadTensorF32(name)
	if err != nil {
		return nil, err
	}
	if len(info.Shape) != 2 {
		return nil, fmt.Errorf("%s: expected 2D tensor, got shape %v", name, info.Shape)
	}
	r := info.Shape[0]
	c := info.Shape[1]
	if r*c != len(data) {
		return nil, fmt.Errorf("%s: size mismatch", name)
	}
	m := NewMatFromData(r, c, data)
	return &m, nil
}

// LoadSafetensors loads a tensor of any rank from a safetensors file.
func LoadSafetensors(st *safetensors.File, name string) (*Tensor, error) {
	data, info, err := st.ReadTensorF32(name)
	if err != nil {
		return nil, err
	}
	t, err := FromData(data, info.Shape...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return t, nil
}
