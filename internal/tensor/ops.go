package tensor

import (
	"fmt"
	"runtime"
	"slices"

	"golang.org/x/sync/errgroup"
)

// ErrShapeMismatch and ErrIndexOutOfRange are wrapped by every shape or
// index failure returned from this package.
const (
	ErrShapeMismatch   = fmtError("tensor: shape mismatch")
	ErrIndexOutOfRange = fmtError("tensor: index out of range")
)

// Gather selects slices of t along axis 0. The result has shape
// [len(idx), t.Shape[1:]...] and owns its storage.
func Gather(t *Tensor, idx []int) (*Tensor, error) {
	if t.Rank() == 0 {
		return nil, fmt.Errorf("%w: gather from scalar", ErrShapeMismatch)
	}
	shape := append([]int{len(idx)}, t.Shape[1:]...)
	out := New(shape...)
	stride := t.stride0()
	for i, j := range idx {
		if j < 0 || j >= t.Shape[0] {
			return nil, fmt.Errorf("%w: index %d with size %d", ErrIndexOutOfRange, j, t.Shape[0])
		}
		copy(out.Data[i*stride:(i+1)*stride], t.Data[j*stride:(j+1)*stride])
	}
	return out, nil
}

// Select copies the i-th slice along axis 0, keeping axis 0 with size 1.
func Select(t *Tensor, i int) (*Tensor, error) {
	return Gather(t, []int{i})
}

// MeanAxis0 averages t over axis 0, keeping axis 0 with size 1.
// Accumulation is done in float64.
func MeanAxis0(t *Tensor) (*Tensor, error) {
	if t.Rank() == 0 || t.Shape[0] == 0 {
		return nil, fmt.Errorf("%w: mean over empty axis (shape %v)", ErrShapeMismatch, t.Shape)
	}
	n := t.Shape[0]
	stride := t.stride0()
	acc := make([]float64, stride)
	for i := 0; i < n; i++ {
		row := t.Data[i*stride : (i+1)*stride]
		for j, v := range row {
			acc[j] += float64(v)
		}
	}
	shape := append([]int{1}, t.Shape[1:]...)
	out := New(shape...)
	inv := 1 / float64(n)
	for j, v := range acc {
		out.Data[j] = float32(v * inv)
	}
	return out, nil
}

// Mul returns the elementwise (Hadamard) product of a and b, which must have
// identical shapes.
func Mul(a, b *Tensor) (*Tensor, error) {
	if !slices.Equal(a.Shape, b.Shape) {
		return nil, fmt.Errorf("%w: elementwise %v * %v", ErrShapeMismatch, a.Shape, b.Shape)
	}
	out := New(a.Shape...)
	for i := range out.Data {
		out.Data[i] = a.Data[i] * b.Data[i]
	}
	return out, nil
}

// BatchMatMul multiplies [B, M, K] by [B, K, N] per batch element, returning
// [B, M, N]. Batch elements are computed concurrently, bounded by GOMAXPROCS.
func BatchMatMul(a, b *Tensor) (*Tensor, error) {
	if a.Rank() != 3 || b.Rank() != 3 || a.Shape[0] != b.Shape[0] || a.Shape[2] != b.Shape[1] {
		return nil, fmt.Errorf("%w: batched matmul %v x %v", ErrShapeMismatch, a.Shape, b.Shape)
	}
	batch, m, n := a.Shape[0], a.Shape[1], b.Shape[2]
	out := New(batch, m, n)
	if batch == 1 {
		matMulInto(out.Index(0), a.Index(0), b.Index(0))
		return out, nil
	}

	var g errgroup.Group
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i := range batch {
		g.Go(func() error {
			matMulInto(out.Index(i), a.Index(i), b.Index(i))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func matMulInto(dst, a, b *Tensor) {
	c := dst.Mat()
	am := a.Mat()
	bm := b.Mat()
	Gemm(&c, &am, &bm, 1, 0)
}
