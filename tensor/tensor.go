// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package tensor

import (
	"gonum.org/v1/gonum/mat"

	"github.com/born-ml/dagnet/internal/tensor"
)

// Shape lists the dimensions of a tensor.
type Shape = tensor.Shape

// Tensor is a dense row-major float64 array.
type Tensor = tensor.Tensor

// New wraps data with the given shape. The length must match.
func New(shape Shape, data []float64) (*Tensor, error) {
	return tensor.New(shape, data)
}

// Zeros returns a zero tensor.
func Zeros(shape ...int) *Tensor { return tensor.Zeros(shape...) }

// Full returns a tensor filled with v.
func Full(v float64, shape ...int) *Tensor { return tensor.Full(v, shape...) }

// FromSlice copies data into a new tensor. Panics on a length mismatch.
func FromSlice(data []float64, shape ...int) *Tensor {
	return tensor.FromSlice(data, shape...)
}

// Wrap shares data without copying. Panics on a length mismatch.
func Wrap(data []float64, shape ...int) *Tensor { return tensor.Wrap(data, shape...) }

// FromMatrix copies a gonum matrix into a rank-2 tensor.
func FromMatrix(m mat.Matrix) *Tensor { return tensor.FromMatrix(m) }

// FromRows reshapes [minibatch*time, features] rows back into a
// [minibatch, features, time] series.
func FromRows(rows *Tensor, minibatch, time int) *Tensor {
	return tensor.FromRows(rows, minibatch, time)
}
