package nn

import (
	"errors"
	"fmt"
	"math/rand"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/born-ml/dagnet/internal/layer"
	"github.com/born-ml/dagnet/internal/params"
	"github.com/born-ml/dagnet/internal/tensor"
)

var (
	// ErrShape is the cause of every shape error reported by this package.
	ErrShape = errors.New("nn: shape mismatch")

	// ErrNoLabels is returned when a loss is requested before SetLabels.
	ErrNoLabels = errors.New("nn: labels not set")
)

func shapeErr(layerName, format string, args ...any) error {
	return fmt.Errorf("%s: %w: %s", layerName, ErrShape, fmt.Sprintf(format, args...))
}

// single returns the only input of a single-input layer.
func single(name string, inputs []*tensor.Tensor) (*tensor.Tensor, error) {
	if len(inputs) != 1 || inputs[0] == nil {
		return nil, shapeErr(name, "expected exactly 1 input, got %d", len(inputs))
	}
	return inputs[0], nil
}

// toRows flattens x to [rows, features]. time is 0 for rank-2 input.
func toRows(name string, x *tensor.Tensor, features int) (rows *tensor.Tensor, minibatch, time int, err error) {
	switch x.Rank() {
	case 2:
		if x.Dim(1) != features {
			return nil, 0, 0, shapeErr(name, "expected %d features, got shape %v", features, x.Shape())
		}
		return x, x.Dim(0), 0, nil
	case 3:
		if x.Dim(1) != features {
			return nil, 0, 0, shapeErr(name, "expected %d features, got shape %v", features, x.Shape())
		}
		return x.ToRows(), x.Dim(0), x.Dim(2), nil
	default:
		return nil, 0, 0, shapeErr(name, "expected rank 2 or 3 input, got shape %v", x.Shape())
	}
}

// fromRows undoes toRows.
func fromRows(rows *tensor.Tensor, minibatch, time int) *tensor.Tensor {
	if time == 0 {
		return rows
	}
	return tensor.FromRows(rows, minibatch, time)
}

// affine is y = f(xW + b) with W [nIn, nOut] and b [1, nOut] as the first
// two named parameters of a view.
type affine struct {
	nIn, nOut int
	act       Activation
	params    []params.Named
}

func affineSpecs(nIn, nOut int) []params.Spec {
	return []params.Spec{
		{Name: "W", Shape: tensor.Shape{nIn, nOut}},
		{Name: "b", Shape: tensor.Shape{1, nOut}},
	}
}

func newAffine(nIn, nOut int, act Activation, view params.View, extra ...params.Spec) (affine, error) {
	named, err := params.Split(view, append(affineSpecs(nIn, nOut), extra...))
	if err != nil {
		return affine{}, err
	}
	return affine{nIn: nIn, nOut: nOut, act: act, params: named}, nil
}

func (f *affine) weights() *mat.Dense {
	return mat.NewDense(f.nIn, f.nOut, f.params[0].View.Data())
}

func (f *affine) bias() []float64 { return f.params[1].View.Data() }

func (f *affine) initialize(rng *rand.Rand) {
	Xavier(rng, f.nIn, f.nOut, f.params[0].View.Data())
	Zeros(f.bias())
}

// activate computes f(xW + b) for row matrix x.
func (f *affine) activate(x mat.Matrix) *mat.Dense {
	r, _ := x.Dims()
	z := mat.NewDense(r, f.nOut, nil)
	z.Mul(x, f.weights())
	b := f.bias()
	for i := 0; i < r; i++ {
		floats.Add(z.RawRowView(i), b)
	}
	f.act.Apply(z)
	return z
}

// gradients returns dW, db and dL/dx for row inputs x and dL/dz.
func (f *affine) gradients(x mat.Matrix, dz *mat.Dense) (layer.Gradient, *mat.Dense) {
	dW := mat.NewDense(f.nIn, f.nOut, nil)
	dW.Mul(x.T(), dz)
	r, _ := dz.Dims()
	db := make([]float64, f.nOut)
	for i := 0; i < r; i++ {
		floats.Add(db, dz.RawRowView(i))
	}
	var dx mat.Dense
	dx.Mul(dz, f.weights().T())
	grad := layer.Gradient{
		{Name: "W", Value: tensor.FromMatrix(dW)},
		{Name: "b", Value: tensor.FromSlice(db, 1, f.nOut)},
	}
	return grad, &dx
}

// numAffine is the parameter count of an affine block.
func numAffine(nIn, nOut int) int {
	return params.Count(affineSpecs(nIn, nOut))
}
