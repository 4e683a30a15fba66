package mpt

import (
	"fmt"

	"github.com/samcharles93/mtprompt/internal/tensor"
)

// Positions returns the default virtual-token indices 0..T-1 for each of
// batch elements.
func (t *PromptTable) Positions(batch int) [][]int {
	total := t.cfg.TotalVirtualTokens()
	out := make([][]int, batch)
	for b := range out {
		row := make([]int, total)
		for i := range row {
			row[i] = i
		}
		out[b] = row
	}
	return out
}

// Compose returns base[indices[b]] ⊙ (cols[taskIDs[b]] @ rows[taskIDs[b]])
// with shape [B, T, D]. taskIDs is required; each indices row must hold
// exactly T positions. A single indices row is shared by every task id.
func (t *PromptTable) Compose(indices [][]int, taskIDs []int) (*tensor.Tensor, error) {
	if taskIDs == nil {
		return nil, fmt.Errorf("%w: task ids are required", ErrInvalidInput)
	}
	if len(indices) == 1 && len(taskIDs) > 1 {
		shared := indices[0]
		indices = make([][]int, len(taskIDs))
		for b := range indices {
			indices[b] = shared
		}
	}
	if len(taskIDs) != len(indices) {
		return nil, fmt.Errorf("%w: %d task ids for batch of %d", ErrInvalidInput, len(taskIDs), len(indices))
	}
	batch, total, dim := len(indices), t.cfg.TotalVirtualTokens(), t.cfg.TokenDim()
	flat := make([]int, 0, batch*total)
	for b, row := range indices {
		if len(row) != total {
			return nil, fmt.Errorf("%w: indices[%d] has %d positions, want %d", ErrInvalidInput, b, len(row), total)
		}
		flat = append(flat, row...)
	}

	base, err := tensor.Gather(t.embedding.Weight, flat)
	if err != nil {
		return nil, fmt.Errorf("gather positions: %w", err)
	}
	base, err = base.Reshape(batch, total, dim)
	if err != nil {
		return nil, err
	}
	cols, err := tensor.Gather(t.taskCols, taskIDs)
	if err != nil {
		return nil, fmt.Errorf("gather task ids: %w", err)
	}
	rows, err := tensor.Gather(t.taskRows, taskIDs)
	if err != nil {
		return nil, fmt.Errorf("gather task ids: %w", err)
	}
	mod, err := tensor.BatchMatMul(cols, rows)
	if err != nil {
		return nil, err
	}
	return tensor.Mul(base, mod)
}
