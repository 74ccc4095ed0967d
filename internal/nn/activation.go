// Package nn provides the reference layers and structural vertices that the
// graph engine executes, plus the factory that builds them from configuration.
//
// Kernels work on row matrices: rank-2 inputs are [minibatch, features]
// and rank-3 time series [minibatch, features, time] are flattened to
// [minibatch*time, features] rows before the matrix products. All matrix
// math goes through gonum.
package nn

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// Activation is an element-wise (or row-wise, for softmax) nonlinearity.
type Activation interface {
	Name() string
	// Apply overwrites z with f(z).
	Apply(z *mat.Dense)
	// Backprop returns dL/dz given the activation output a and dL/da.
	Backprop(a, grad mat.Matrix) *mat.Dense
}

// ActivationByName resolves an activation. The empty name means identity.
func ActivationByName(name string) (Activation, error) {
	switch name {
	case "", "identity", "linear":
		return Identity{}, nil
	case "tanh":
		return Tanh{}, nil
	case "sigmoid":
		return Sigmoid{}, nil
	case "relu":
		return ReLU{}, nil
	case "softmax":
		return Softmax{}, nil
	default:
		return nil, fmt.Errorf("nn: unknown activation %q", name)
	}
}

// Identity is f(x) = x.
type Identity struct{}

func (Identity) Name() string       { return "identity" }
func (Identity) Apply(_ *mat.Dense) {}
func (Identity) Backprop(_, grad mat.Matrix) *mat.Dense {
	return mat.DenseCopyOf(grad)
}

// Tanh is the hyperbolic tangent.
type Tanh struct{}

func (Tanh) Name() string { return "tanh" }

func (Tanh) Apply(z *mat.Dense) {
	z.Apply(func(_, _ int, v float64) float64 { return math.Tanh(v) }, z)
}

func (Tanh) Backprop(a, grad mat.Matrix) *mat.Dense {
	out := mat.DenseCopyOf(grad)
	out.Apply(func(i, j int, g float64) float64 {
		y := a.At(i, j)
		return g * (1 - y*y)
	}, out)
	return out
}

// Sigmoid is the logistic function.
type Sigmoid struct{}

func (Sigmoid) Name() string { return "sigmoid" }

func (Sigmoid) Apply(z *mat.Dense) {
	z.Apply(func(_, _ int, v float64) float64 { return 1 / (1 + math.Exp(-v)) }, z)
}

func (Sigmoid) Backprop(a, grad mat.Matrix) *mat.Dense {
	out := mat.DenseCopyOf(grad)
	out.Apply(func(i, j int, g float64) float64 {
		y := a.At(i, j)
		return g * y * (1 - y)
	}, out)
	return out
}

// ReLU is max(0, x).
type ReLU struct{}

func (ReLU) Name() string { return "relu" }

func (ReLU) Apply(z *mat.Dense) {
	z.Apply(func(_, _ int, v float64) float64 { return math.Max(0, v) }, z)
}

func (ReLU) Backprop(a, grad mat.Matrix) *mat.Dense {
	out := mat.DenseCopyOf(grad)
	out.Apply(func(i, j int, g float64) float64 {
		if a.At(i, j) > 0 {
			return g
		}
		return 0
	}, out)
	return out
}

// Softmax normalizes each row to a probability distribution.
type Softmax struct{}

func (Softmax) Name() string { return "softmax" }

func (Softmax) Apply(z *mat.Dense) {
	r, _ := z.Dims()
	for i := 0; i < r; i++ {
		row := z.RawRowView(i)
		maxVal := math.Inf(-1)
		for _, v := range row {
			maxVal = math.Max(maxVal, v)
		}
		sum := 0.0
		for j, v := range row {
			row[j] = math.Exp(v - maxVal)
			sum += row[j]
		}
		for j := range row {
			row[j] /= sum
		}
	}
}

// Backprop applies the softmax Jacobian row by row: dz = a*(g - sum(g*a)).
func (Softmax) Backprop(a, grad mat.Matrix) *mat.Dense {
	r, c := grad.Dims()
	out := mat.NewDense(r, c, nil)
	for i := 0; i < r; i++ {
		dot := 0.0
		for j := 0; j < c; j++ {
			dot += grad.At(i, j) * a.At(i, j)
		}
		for j := 0; j < c; j++ {
			out.Set(i, j, a.At(i, j)*(grad.At(i, j)-dot))
		}
	}
	return out
}
