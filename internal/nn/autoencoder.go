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

// AutoEncoder is a dense encoder with a tied-weight decoder used for
// unsupervised layer-wise pretraining.
//
//	encode: y  = f(x @ W + b)
//	decode: x' = f(y @ W.T + vb)
//
// In supervised passes it behaves like Dense and vb receives no gradient.
type AutoEncoder struct {
	affine
}

// NewAutoEncoder creates the layer over view (nIn*nOut + nOut + nIn values).
func NewAutoEncoder(nIn, nOut int, act Activation, view params.View) (*AutoEncoder, error) {
	a, err := newAffine(nIn, nOut, act, view, params.Spec{Name: "vb", Shape: tensor.Shape{1, nIn}})
	if err != nil {
		return nil, err
	}
	return &AutoEncoder{affine: a}, nil
}

func numAutoEncoder(nIn, nOut int) int { return numAffine(nIn, nOut) + nIn }

// NumParams returns nIn*nOut + nOut + nIn.
func (e *AutoEncoder) NumParams() int { return numAutoEncoder(e.nIn, e.nOut) }

// Params returns the W, b and vb views.
func (e *AutoEncoder) Params() []params.Named { return e.params }

// Initialize draws W with Xavier and zeroes both biases.
func (e *AutoEncoder) Initialize(rng *rand.Rand) {
	e.initialize(rng)
	Zeros(e.params[2].View.Data())
}

// Forward encodes x.
func (e *AutoEncoder) Forward(inputs []*tensor.Tensor, _ bool) (*tensor.Tensor, error) {
	x, err := single("AutoEncoder", inputs)
	if err != nil {
		return nil, err
	}
	rows, mb, T, err := toRows("AutoEncoder", x, e.nIn)
	if err != nil {
		return nil, err
	}
	return fromRows(tensor.FromMatrix(e.activate(rows.Matrix())), mb, T), nil
}

// Backward backpropagates through the encoder only.
func (e *AutoEncoder) Backward(inputs []*tensor.Tensor, epsilon *tensor.Tensor) (layer.Gradient, []*tensor.Tensor, error) {
	x, err := single("AutoEncoder", inputs)
	if err != nil {
		return nil, nil, err
	}
	if epsilon == nil {
		return nil, nil, shapeErr("AutoEncoder", "missing upstream gradient")
	}
	rows, mb, T, err := toRows("AutoEncoder", x, e.nIn)
	if err != nil {
		return nil, nil, err
	}
	epsRows, _, _, err := toRows("AutoEncoder", epsilon, e.nOut)
	if err != nil {
		return nil, nil, err
	}
	dz := e.act.Backprop(e.activate(rows.Matrix()), epsRows.Matrix())
	grad, dx := e.gradients(rows.Matrix(), dz)
	grad = append(grad, layer.ParamGradient{Name: "vb", Value: tensor.Zeros(1, e.nIn)})
	return grad, []*tensor.Tensor{fromRows(tensor.FromMatrix(dx), mb, T)}, nil
}

// PretrainGradient returns the reconstruction score 0.5*sum((x'-x)^2)/batch
// and its gradient with respect to W, b and vb.
func (e *AutoEncoder) PretrainGradient(inputs []*tensor.Tensor) (float64, layer.Gradient, error) {
	x, err := single("AutoEncoder", inputs)
	if err != nil {
		return 0, nil, err
	}
	rows, mb, _, err := toRows("AutoEncoder", x, e.nIn)
	if err != nil {
		return 0, nil, err
	}
	xm := rows.Matrix()
	n, _ := xm.Dims()
	W := e.weights()
	vb := e.params[2].View.Data()

	y := e.activate(xm)
	recon := mat.NewDense(n, e.nIn, nil)
	recon.Mul(y, W.T())
	for i := 0; i < n; i++ {
		floats.Add(recon.RawRowView(i), vb)
	}
	e.act.Apply(recon)

	scale := 1 / float64(mb)
	diff := mat.NewDense(n, e.nIn, nil)
	diff.Sub(recon, xm)
	d := diff.RawMatrix().Data
	score := 0.5 * floats.Dot(d, d) * scale
	diff.Scale(scale, diff)

	dz2 := e.act.Backprop(recon, diff) // [n, nIn]
	dvb := make([]float64, e.nIn)
	for i := 0; i < n; i++ {
		floats.Add(dvb, dz2.RawRowView(i))
	}
	var dy mat.Dense
	dy.Mul(dz2, W) // [n, nOut]
	dz1 := e.act.Backprop(y, &dy)

	grad, _ := e.gradients(xm, dz1)
	var decW mat.Dense
	decW.Mul(dz2.T(), y) // [nIn, nOut]
	w := grad[0].Value.Data()
	floats.Add(w, decW.RawMatrix().Data)
	grad = append(grad, layer.ParamGradient{Name: "vb", Value: tensor.FromSlice(dvb, 1, e.nIn)})
	return score, grad, nil
}

// Describe implements layer.Describer.
func (e *AutoEncoder) Describe() string {
	return fmt.Sprintf("AutoEncoder(%d->%d, %s)", e.nIn, e.nOut, e.act.Name())
}
