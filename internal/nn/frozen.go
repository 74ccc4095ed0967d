package nn

import (
	"github.com/born-ml/dagnet/internal/layer"
	"github.com/born-ml/dagnet/internal/params"
	"github.com/born-ml/dagnet/internal/tensor"
)

// Frozen wraps a layer whose parameters must not change. The backward pass
// stops at the first frozen vertex it meets; Backward here still reports
// input gradients but always zero parameter gradients.
type Frozen struct {
	inner layer.Layer
}

// NewFrozen wraps inner.
func NewFrozen(inner layer.Layer) *Frozen { return &Frozen{inner: inner} }

// Inner returns the wrapped layer.
func (f *Frozen) Inner() layer.Layer { return f.inner }

func (f *Frozen) Frozen() bool           { return true }
func (f *Frozen) NumParams() int         { return f.inner.NumParams() }
func (f *Frozen) Params() []params.Named { return f.inner.Params() }

func (f *Frozen) Forward(inputs []*tensor.Tensor, training bool) (*tensor.Tensor, error) {
	return f.inner.Forward(inputs, training)
}

// Backward delegates for input gradients and zeroes the parameter gradients.
func (f *Frozen) Backward(inputs []*tensor.Tensor, epsilon *tensor.Tensor) (layer.Gradient, []*tensor.Tensor, error) {
	grad, eps, err := f.inner.Backward(inputs, epsilon)
	if err != nil {
		return nil, nil, err
	}
	for _, g := range grad {
		g.Value.Fill(0)
	}
	return grad, eps, nil
}

// Describe implements layer.Describer.
func (f *Frozen) Describe() string {
	if d, ok := f.inner.(layer.Describer); ok {
		return "Frozen(" + d.Describe() + ")"
	}
	return "Frozen"
}
