package nn

import (
	"fmt"
	"math/rand"

	"github.com/born-ml/dagnet/internal/layer"
	"github.com/born-ml/dagnet/internal/params"
	"github.com/born-ml/dagnet/internal/tensor"
)

// Dense implements a fully connected layer.
//
// Performs the transformation: y = f(x @ W + b)
// where:
//   - x is the input with shape [batch_size, in_features], or a time series
//     [batch_size, in_features, time] processed step by step
//   - W is the weight matrix with shape [in_features, out_features]
//   - b is the bias with shape [1, out_features]
//
// Parameters live in the graph's flat buffer; Dense only holds views.
type Dense struct {
	affine
}

// NewDense creates a Dense layer over view, which must hold nIn*nOut+nOut values.
func NewDense(nIn, nOut int, act Activation, view params.View) (*Dense, error) {
	a, err := newAffine(nIn, nOut, act, view)
	if err != nil {
		return nil, err
	}
	return &Dense{affine: a}, nil
}

// NumParams returns nIn*nOut + nOut.
func (d *Dense) NumParams() int { return numAffine(d.nIn, d.nOut) }

// Params returns the W and b views.
func (d *Dense) Params() []params.Named { return d.params }

// Initialize draws W with Xavier and zeroes b.
func (d *Dense) Initialize(rng *rand.Rand) { d.initialize(rng) }

// Forward computes f(xW + b).
func (d *Dense) Forward(inputs []*tensor.Tensor, _ bool) (*tensor.Tensor, error) {
	x, err := single("Dense", inputs)
	if err != nil {
		return nil, err
	}
	rows, mb, T, err := toRows("Dense", x, d.nIn)
	if err != nil {
		return nil, err
	}
	a := d.activate(rows.Matrix())
	return fromRows(tensor.FromMatrix(a), mb, T), nil
}

// Backward recomputes the activation from inputs and backpropagates epsilon.
func (d *Dense) Backward(inputs []*tensor.Tensor, epsilon *tensor.Tensor) (layer.Gradient, []*tensor.Tensor, error) {
	x, err := single("Dense", inputs)
	if err != nil {
		return nil, nil, err
	}
	if epsilon == nil {
		return nil, nil, shapeErr("Dense", "missing upstream gradient")
	}
	rows, mb, T, err := toRows("Dense", x, d.nIn)
	if err != nil {
		return nil, nil, err
	}
	epsRows, _, _, err := toRows("Dense", epsilon, d.nOut)
	if err != nil {
		return nil, nil, err
	}
	a := d.activate(rows.Matrix())
	dz := d.act.Backprop(a, epsRows.Matrix())
	grad, dx := d.gradients(rows.Matrix(), dz)
	return grad, []*tensor.Tensor{fromRows(tensor.FromMatrix(dx), mb, T)}, nil
}

// Describe implements layer.Describer.
func (d *Dense) Describe() string {
	return fmt.Sprintf("Dense(%d->%d, %s)", d.nIn, d.nOut, d.act.Name())
}
