package tensor

import (
	"fmt"
	"slices"
)

// Shape lists tensor dimensions, outermost first.
//
// Feed-forward activations are [minibatch, size]; recurrent activations are
// [minibatch, size, time] and masks [minibatch, time].
type Shape []int

// NumElements is the product of the dimensions. The empty shape holds one
// element.
func (s Shape) NumElements() int {
	n := 1
	for _, d := range s {
		n *= d
	}
	return n
}

// Validate rejects non-positive dimensions.
func (s Shape) Validate() error {
	if i := slices.IndexFunc(s, func(d int) bool { return d <= 0 }); i >= 0 {
		return fmt.Errorf("tensor: shape %v has non-positive dimension %d at axis %d", []int(s), s[i], i)
	}
	return nil
}

// Equal reports whether s and other have the same dimensions.
func (s Shape) Equal(other Shape) bool { return slices.Equal(s, other) }

// Clone returns an independent copy; the clone of an empty shape is empty,
// never nil.
func (s Shape) Clone() Shape { return append(Shape{}, s...) }

// ComputeStrides returns row-major strides: the last axis has stride 1.
func (s Shape) ComputeStrides() []int {
	strides := make([]int, len(s))
	acc := 1
	for i := len(s) - 1; i >= 0; i-- {
		strides[i] = acc
		acc *= s[i]
	}
	return strides
}

// IsTimeSeries reports whether the shape uses the [minibatch, size, time] layout.
func (s Shape) IsTimeSeries() bool { return len(s) == 3 }

// TimeLength returns the time dimension of a rank-3 shape, or 0 otherwise.
func (s Shape) TimeLength() int {
	if !s.IsTimeSeries() {
		return 0
	}
	return s[2]
}

func (s Shape) String() string { return fmt.Sprint([]int(s)) }
