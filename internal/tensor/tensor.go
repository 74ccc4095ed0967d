// Package tensor provides the dense float64 tensors that flow along graph edges.
//
// Tensors are row-major and deliberately small: the graph engine only needs
// element access, arithmetic for gradient accumulation and time slicing for
// truncated backpropagation. Heavy kernels live in layers and use gonum.
package tensor

import (
	"fmt"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Tensor is a dense row-major float64 array with a shape.
type Tensor struct {
	shape   Shape
	strides []int
	data    []float64
}

// New wraps data with the given shape without copying.
// Returns an error if the data length does not match the shape.
func New(shape Shape, data []float64) (*Tensor, error) {
	if err := shape.Validate(); err != nil {
		return nil, err
	}
	if len(data) != shape.NumElements() {
		return nil, fmt.Errorf("tensor: data length %d does not match shape %v (%d elements)",
			len(data), shape, shape.NumElements())
	}
	s := shape.Clone()
	return &Tensor{shape: s, strides: s.ComputeStrides(), data: data}, nil
}

// Zeros creates a zero-filled tensor.
//
// Panics if any dimension is not positive.
func Zeros(shape ...int) *Tensor {
	s := Shape(shape)
	if err := s.Validate(); err != nil {
		panic(fmt.Sprintf("tensor.Zeros: %v", err))
	}
	s = s.Clone()
	return &Tensor{shape: s, strides: s.ComputeStrides(), data: make([]float64, s.NumElements())}
}

// FromSlice copies data into a new tensor of the given shape.
//
// Panics if the data length does not match the shape.
func FromSlice(data []float64, shape ...int) *Tensor {
	t := Zeros(shape...)
	if len(data) != len(t.data) {
		panic(fmt.Sprintf("tensor.FromSlice: got %d values for shape %v", len(data), Shape(shape)))
	}
	copy(t.data, data)
	return t
}

// Wrap is like FromSlice but shares data instead of copying it.
//
// Panics if the data length does not match the shape.
func Wrap(data []float64, shape ...int) *Tensor {
	t, err := New(Shape(shape), data)
	if err != nil {
		panic(fmt.Sprintf("tensor.Wrap: %v", err))
	}
	return t
}

// Full creates a tensor filled with v.
func Full(v float64, shape ...int) *Tensor {
	t := Zeros(shape...)
	t.Fill(v)
	return t
}

// Shape returns a copy of the tensor shape.
func (t *Tensor) Shape() Shape { return t.shape.Clone() }

// Rank returns the number of dimensions.
func (t *Tensor) Rank() int { return len(t.shape) }

// Dim returns the size of dimension i.
func (t *Tensor) Dim(i int) int { return t.shape[i] }

// Len returns the number of elements.
func (t *Tensor) Len() int { return len(t.data) }

// Data returns the backing slice. Mutating it mutates the tensor.
func (t *Tensor) Data() []float64 { return t.data }

func (t *Tensor) offset(idx []int) int {
	if len(idx) != len(t.shape) {
		panic(fmt.Sprintf("tensor: got %d indices for rank %d", len(idx), len(t.shape)))
	}
	off := 0
	for i, v := range idx {
		if v < 0 || v >= t.shape[i] {
			panic(fmt.Sprintf("tensor: index %d out of range for dimension %d of size %d", v, i, t.shape[i]))
		}
		off += v * t.strides[i]
	}
	return off
}

// At returns the element at idx.
func (t *Tensor) At(idx ...int) float64 { return t.data[t.offset(idx)] }

// Set stores v at idx.
func (t *Tensor) Set(v float64, idx ...int) { t.data[t.offset(idx)] = v }

// Fill sets every element to v.
func (t *Tensor) Fill(v float64) {
	for i := range t.data {
		t.data[i] = v
	}
}

// Clone returns a deep copy.
func (t *Tensor) Clone() *Tensor {
	out := &Tensor{shape: t.shape.Clone(), strides: t.shape.ComputeStrides(), data: make([]float64, len(t.data))}
	copy(out.data, t.data)
	return out
}

// CopyFrom overwrites t with the contents of src. Shapes must match.
func (t *Tensor) CopyFrom(src *Tensor) error {
	if !t.shape.Equal(src.shape) {
		return fmt.Errorf("tensor: copy shape mismatch: %v vs %v", t.shape, src.shape)
	}
	copy(t.data, src.data)
	return nil
}

// SameShape reports whether t and other have equal shapes.
func (t *Tensor) SameShape(other *Tensor) bool {
	return t.shape.Equal(other.shape)
}

// Equal reports exact element and shape equality.
func (t *Tensor) Equal(other *Tensor) bool {
	if other == nil || !t.SameShape(other) {
		return false
	}
	return floats.Equal(t.data, other.data)
}

// AllClose reports element-wise equality within an absolute tolerance.
func (t *Tensor) AllClose(other *Tensor, tol float64) bool {
	if other == nil || !t.SameShape(other) {
		return false
	}
	return floats.EqualApprox(t.data, other.data, tol)
}

// Add returns t + other as a new tensor.
func (t *Tensor) Add(other *Tensor) (*Tensor, error) {
	out := t.Clone()
	if err := out.AddInPlace(other); err != nil {
		return nil, err
	}
	return out, nil
}

// AddInPlace accumulates other into t.
func (t *Tensor) AddInPlace(other *Tensor) error {
	if !t.SameShape(other) {
		return fmt.Errorf("tensor: add shape mismatch: %v vs %v", t.shape, other.shape)
	}
	floats.Add(t.data, other.data)
	return nil
}

// Sub returns t - other as a new tensor.
func (t *Tensor) Sub(other *Tensor) (*Tensor, error) {
	if !t.SameShape(other) {
		return nil, fmt.Errorf("tensor: sub shape mismatch: %v vs %v", t.shape, other.shape)
	}
	out := t.Clone()
	floats.Sub(out.data, other.data)
	return out, nil
}

// MulInPlace multiplies t element-wise by other.
func (t *Tensor) MulInPlace(other *Tensor) error {
	if !t.SameShape(other) {
		return fmt.Errorf("tensor: mul shape mismatch: %v vs %v", t.shape, other.shape)
	}
	floats.Mul(t.data, other.data)
	return nil
}

// Scale returns f*t as a new tensor.
func (t *Tensor) Scale(f float64) *Tensor {
	return t.Clone().ScaleInPlace(f)
}

// ScaleInPlace multiplies every element of t by f and returns t.
func (t *Tensor) ScaleInPlace(f float64) *Tensor {
	floats.Scale(f, t.data)
	return t
}

// Sum returns the sum of all elements.
func (t *Tensor) Sum() float64 { return floats.Sum(t.data) }

// Reshape returns a tensor sharing t's data with a new shape.
func (t *Tensor) Reshape(shape ...int) (*Tensor, error) {
	return New(Shape(shape), t.data)
}

// Matrix returns a gonum view over a rank-2 tensor. Writes go through to t.
//
// Panics if t is not rank 2.
func (t *Tensor) Matrix() *mat.Dense {
	if len(t.shape) != 2 {
		panic(fmt.Sprintf("tensor.Matrix: need rank 2, got shape %v", t.shape))
	}
	return mat.NewDense(t.shape[0], t.shape[1], t.data)
}

// FromMatrix copies a gonum matrix into a new rank-2 tensor.
func FromMatrix(m mat.Matrix) *Tensor {
	r, c := m.Dims()
	out := Zeros(r, c)
	out.Matrix().Copy(m)
	return out
}

func (t *Tensor) String() string {
	return fmt.Sprintf("Tensor%v", t.shape)
}
