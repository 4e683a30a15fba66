package tensor

import (
	"fmt"
	"math"
	"math/rand"
	"slices"
)

// Tensor is a dense row-major float32 tensor of arbitrary rank. Axis 0 is
// the outermost (slowest varying) dimension.
type Tensor struct {
	Shape []int
	Data  []float32
}

// New allocates a zeroed tensor with the given shape.
func New(shape ...int) *Tensor {
	n, err := NumElements(shape)
	if err != nil {
		panic(err.Error())
	}
	return &Tensor{
		Shape: slices.Clone(shape),
		Data:  make([]float32, n),
	}
}

// FromData wraps data in a tensor of the given shape without copying.
func FromData(data []float32, shape ...int) (*Tensor, error) {
	n, err := NumElements(shape)
	if err != nil {
		return nil, err
	}
	if n != len(data) {
		return nil, fmt.Errorf("%w: %d values for shape %v", ErrShapeMismatch, len(data), shape)
	}
	return &Tensor{Shape: slices.Clone(shape), Data: data}, nil
}

// NumElements returns the product of shape, rejecting negative dimensions
// and overflow. An empty shape describes a scalar.
func NumElements(shape []int) (int, error) {
	n := 1
	for _, d := range shape {
		if d < 0 {
			return 0, errNegativeDim
		}
		if d != 0 && n > (int(^uint(0)>>1))/d {
			return 0, errTensorTooLarge
		}
		n *= d
	}
	return n, nil
}

func (t *Tensor) Rank() int { return len(t.Shape) }

// Len returns the size of axis 0.
func (t *Tensor) Len() int {
	if len(t.Shape) == 0 {
		return 0
	}
	return t.Shape[0]
}

// HasShape reports whether t has exactly the given shape.
func (t *Tensor) HasShape(shape ...int) bool {
	return slices.Equal(t.Shape, shape)
}

func (t *Tensor) Clone() *Tensor {
	return &Tensor{
		Shape: slices.Clone(t.Shape),
		Data:  slices.Clone(t.Data),
	}
}

// Equal reports bit-for-bit equality of shape and values.
func (t *Tensor) Equal(o *Tensor) bool {
	if t == nil || o == nil {
		return t == o
	}
	if !slices.Equal(t.Shape, o.Shape) || len(t.Data) != len(o.Data) {
		return false
	}
	for i := range t.Data {
		if math.Float32bits(t.Data[i]) != math.Float32bits(o.Data[i]) {
			return false
		}
	}
	return true
}

// CopyFrom overwrites t's values with src's. Shapes must match exactly.
func (t *Tensor) CopyFrom(src *Tensor) error {
	if !slices.Equal(t.Shape, src.Shape) {
		return fmt.Errorf("%w: copy %v into %v", ErrShapeMismatch, src.Shape, t.Shape)
	}
	copy(t.Data, src.Data)
	return nil
}

// Reshape returns a view of t with a new shape holding the same number of
// elements.
func (t *Tensor) Reshape(shape ...int) (*Tensor, error) {
	n, err := NumElements(shape)
	if err != nil {
		return nil, err
	}
	if n != len(t.Data) {
		return nil, fmt.Errorf("%w: reshape %v to %v", ErrShapeMismatch, t.Shape, shape)
	}
	return &Tensor{Shape: slices.Clone(shape), Data: t.Data}, nil
}

// Index returns a view of the i-th slice along axis 0. The view shares
// storage with t.
func (t *Tensor) Index(i int) *Tensor {
	if len(t.Shape) == 0 {
		panic("index of scalar tensor")
	}
	if i < 0 || i >= t.Shape[0] {
		panic("tensor index out of range")
	}
	stride := t.stride0()
	return &Tensor{
		Shape: slices.Clone(t.Shape[1:]),
		Data:  t.Data[i*stride : (i+1)*stride],
	}
}

// Mat returns a matrix view of a rank-2 tensor.
func (t *Tensor) Mat() Mat {
	if len(t.Shape) != 2 {
		panic("Mat view requires a rank-2 tensor")
	}
	return NewMatFromData(t.Shape[0], t.Shape[1], t.Data)
}

func (t *Tensor) stride0() int {
	if len(t.Shape) == 0 {
		return 1
	}
	s := 1
	for _, d := range t.Shape[1:] {
		s *= d
	}
	return s
}

func (t *Tensor) String() string {
	return fmt.Sprintf("Tensor%v", t.Shape)
}

// FillNormal overwrites t with samples from N(mean, std²) drawn from rng.
func FillNormal(t *Tensor, mean, std float64, rng *rand.Rand) {
	for i := range t.Data {
		t.Data[i] = float32(rng.NormFloat64()*std + mean)
	}
}

var (
	errNegativeDim    = fmtError("negative dimension for tensor")
	errTensorTooLarge = fmtError("tensor too large")
)

type fmtError string

func (e fmtError) Error() string { return string(e) }
