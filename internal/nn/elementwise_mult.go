package nn

import (
	"fmt"
	"math/rand"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/born-ml/dagnet/internal/layer"
	"github.com/born-ml/dagnet/internal/params"
	"github.com/born-ml/dagnet/internal/tensor"
)

// ElementWiseMultiplication scales every feature by its own weight:
//
//	y = f(x * w + b)
//
// with w and b of shape [1, n]. Input and output are [batch, n].
type ElementWiseMultiplication struct {
	n      int
	act    Activation
	params []params.Named
}

func elementWiseSpecs(n int) []params.Spec {
	return []params.Spec{
		{Name: "W", Shape: tensor.Shape{1, n}},
		{Name: "b", Shape: tensor.Shape{1, n}},
	}
}

// NewElementWiseMultiplication creates the layer over view (2n values).
func NewElementWiseMultiplication(n int, act Activation, view params.View) (*ElementWiseMultiplication, error) {
	named, err := params.Split(view, elementWiseSpecs(n))
	if err != nil {
		return nil, err
	}
	return &ElementWiseMultiplication{n: n, act: act, params: named}, nil
}

// NumParams returns 2n.
func (e *ElementWiseMultiplication) NumParams() int { return 2 * e.n }

// Params returns the W and b views.
func (e *ElementWiseMultiplication) Params() []params.Named { return e.params }

// Initialize draws w with Xavier (fan n in and out) and zeroes b.
func (e *ElementWiseMultiplication) Initialize(rng *rand.Rand) {
	Xavier(rng, e.n, e.n, e.params[0].View.Data())
	Zeros(e.params[1].View.Data())
}

func (e *ElementWiseMultiplication) activate(x *tensor.Tensor) *mat.Dense {
	w, b := e.params[0].View.Data(), e.params[1].View.Data()
	mb := x.Dim(0)
	z := mat.NewDense(mb, e.n, nil)
	for i := 0; i < mb; i++ {
		row := z.RawRowView(i)
		floats.MulTo(row, x.Data()[i*e.n:(i+1)*e.n], w)
		floats.Add(row, b)
	}
	e.act.Apply(z)
	return z
}

func (e *ElementWiseMultiplication) input(inputs []*tensor.Tensor) (*tensor.Tensor, error) {
	x, err := single("ElementWiseMultiplication", inputs)
	if err != nil {
		return nil, err
	}
	if x.Rank() != 2 || x.Dim(1) != e.n {
		return nil, shapeErr("ElementWiseMultiplication", "expected [batch, %d] input, got %v", e.n, x.Shape())
	}
	return x, nil
}

// Forward computes f(x*w + b).
func (e *ElementWiseMultiplication) Forward(inputs []*tensor.Tensor, _ bool) (*tensor.Tensor, error) {
	x, err := e.input(inputs)
	if err != nil {
		return nil, err
	}
	return tensor.FromMatrix(e.activate(x)), nil
}

// Backward returns dW = sum_batch(x*delta), db = sum_batch(delta) and
// dx = delta*w, where delta is the gradient before the activation.
func (e *ElementWiseMultiplication) Backward(inputs []*tensor.Tensor, epsilon *tensor.Tensor) (layer.Gradient, []*tensor.Tensor, error) {
	x, err := e.input(inputs)
	if err != nil {
		return nil, nil, err
	}
	if epsilon == nil || !epsilon.SameShape(x) {
		return nil, nil, shapeErr("ElementWiseMultiplication", "epsilon must match input %v", x.Shape())
	}
	delta := e.act.Backprop(e.activate(x), epsilon.Matrix())

	w := e.params[0].View.Data()
	mb := x.Dim(0)
	dW := make([]float64, e.n)
	db := make([]float64, e.n)
	dx := tensor.Zeros(mb, e.n)
	scratch := make([]float64, e.n)
	for i := 0; i < mb; i++ {
		d := delta.RawRowView(i)
		floats.MulTo(scratch, x.Data()[i*e.n:(i+1)*e.n], d)
		floats.Add(dW, scratch)
		floats.Add(db, d)
		floats.MulTo(dx.Data()[i*e.n:(i+1)*e.n], d, w)
	}
	grad := layer.Gradient{
		{Name: "W", Value: tensor.FromSlice(dW, 1, e.n)},
		{Name: "b", Value: tensor.FromSlice(db, 1, e.n)},
	}
	return grad, []*tensor.Tensor{dx}, nil
}

// Describe implements layer.Describer.
func (e *ElementWiseMultiplication) Describe() string {
	return fmt.Sprintf("ElementWiseMultiplication(%d, %s)", e.n, e.act.Name())
}
