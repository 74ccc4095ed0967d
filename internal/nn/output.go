package nn

import (
	"fmt"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"

	"github.com/born-ml/dagnet/internal/layer"
	"github.com/born-ml/dagnet/internal/params"
	"github.com/born-ml/dagnet/internal/tensor"
)

// Loss function names.
const (
	LossMSE    = "mse"
	LossMCXENT = "mcxent"
)

const logFloor = 1e-12

// Output is a dense layer with a loss function. It accepts rank-2
// [batch, nIn] input or rank-3 [batch, nIn, time] input, in which case
// every time step is scored against the matching label step.
//
// The score is the summed per-example loss divided by the minibatch size.
// Masked entries contribute neither to the score nor to the gradient.
type Output struct {
	affine
	loss      string
	labels    *tensor.Tensor
	labelMask *tensor.Tensor
}

// NewOutput creates an output layer over view.
func NewOutput(nIn, nOut int, act Activation, loss string, view params.View) (*Output, error) {
	switch loss {
	case LossMSE, LossMCXENT:
	default:
		return nil, fmt.Errorf("nn: unknown loss function %q", loss)
	}
	a, err := newAffine(nIn, nOut, act, view)
	if err != nil {
		return nil, err
	}
	return &Output{affine: a, loss: loss}, nil
}

// NumParams returns nIn*nOut + nOut.
func (o *Output) NumParams() int { return numAffine(o.nIn, o.nOut) }

// Params returns the W and b views.
func (o *Output) Params() []params.Named { return o.params }

// Initialize draws W with Xavier and zeroes b.
func (o *Output) Initialize(rng *rand.Rand) { o.initialize(rng) }

// SetLabels binds the targets used by ComputeLoss and Backward.
func (o *Output) SetLabels(labels *tensor.Tensor) { o.labels = labels }

// SetLabelMask binds a [batch, time] (or [batch, 1]) label mask; nil clears it.
func (o *Output) SetLabelMask(mask *tensor.Tensor) { o.labelMask = mask }

// Labels returns the bound labels.
func (o *Output) Labels() *tensor.Tensor { return o.labels }

// LabelMask returns the bound label mask.
func (o *Output) LabelMask() *tensor.Tensor { return o.labelMask }

// Clear drops labels. The label mask stays until explicitly cleared.
func (o *Output) Clear() { o.labels = nil }

// Forward computes the activations without touching the labels.
func (o *Output) Forward(inputs []*tensor.Tensor, _ bool) (*tensor.Tensor, error) {
	x, err := single("Output", inputs)
	if err != nil {
		return nil, err
	}
	rows, mb, T, err := toRows("Output", x, o.nIn)
	if err != nil {
		return nil, err
	}
	return fromRows(tensor.FromMatrix(o.activate(rows.Matrix())), mb, T), nil
}

// scored bundles what score and gradient computations share.
type scored struct {
	x, a, y   *mat.Dense
	mask      []float64 // per element, nil when unmasked
	minibatch int
	time      int
}

func (o *Output) prepare(inputs []*tensor.Tensor) (*scored, error) {
	x, err := single("Output", inputs)
	if err != nil {
		return nil, err
	}
	if o.labels == nil {
		return nil, ErrNoLabels
	}
	rows, mb, T, err := toRows("Output", x, o.nIn)
	if err != nil {
		return nil, err
	}
	labelRows, lmb, lT, err := toRows("Output", o.labels, o.nOut)
	if err != nil {
		return nil, err
	}
	if lmb != mb || lT != T {
		return nil, shapeErr("Output", "labels %v do not match input %v", o.labels.Shape(), x.Shape())
	}
	s := &scored{
		x:         rows.Matrix(),
		a:         o.activate(rows.Matrix()),
		y:         labelRows.Matrix(),
		minibatch: mb,
		time:      T,
	}
	if o.labelMask != nil {
		s.mask, err = o.expandMask(s.a)
		if err != nil {
			return nil, err
		}
	}
	return s, nil
}

// expandMask turns a per-row or per-element mask into a per-element slice.
func (o *Output) expandMask(a *mat.Dense) ([]float64, error) {
	r, c := a.Dims()
	m := o.labelMask.Data()
	switch len(m) {
	case r:
		out := make([]float64, r*c)
		for i := 0; i < r; i++ {
			for j := 0; j < c; j++ {
				out[i*c+j] = m[i]
			}
		}
		return out, nil
	case r * c:
		if o.labelMask.Rank() == 3 {
			return o.labelMask.ToRows().Data(), nil
		}
		return m, nil
	default:
		return nil, shapeErr("Output", "label mask %v does not match %d rows", o.labelMask.Shape(), r)
	}
}

// elementLoss returns the loss of one output element and its derivative
// with respect to the activation.
func (o *Output) elementLoss(a, y float64) (loss, grad float64) {
	switch o.loss {
	case LossMCXENT:
		p := math.Max(a, logFloor)
		return -y * math.Log(p), -y / p
	default:
		d := a - y
		n := float64(o.nOut)
		return d * d / n, 2 * d / n
	}
}

// rowLosses returns the masked loss of every row.
func (o *Output) rowLosses(s *scored) []float64 {
	r, c := s.a.Dims()
	out := make([]float64, r)
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			w := 1.0
			if s.mask != nil {
				w = s.mask[i*c+j]
			}
			if w == 0 {
				continue
			}
			l, _ := o.elementLoss(s.a.At(i, j), s.y.At(i, j))
			out[i] += w * l
		}
	}
	return out
}

// ComputeLoss returns the summed loss divided by the minibatch size.
func (o *Output) ComputeLoss(inputs []*tensor.Tensor, _ bool) (float64, error) {
	s, err := o.prepare(inputs)
	if err != nil {
		return 0, err
	}
	total := 0.0
	for _, l := range o.rowLosses(s) {
		total += l
	}
	return total / float64(s.minibatch), nil
}

// ComputeLossPerExample returns a [batch, 1] tensor; time series sum over time.
func (o *Output) ComputeLossPerExample(inputs []*tensor.Tensor) (*tensor.Tensor, error) {
	s, err := o.prepare(inputs)
	if err != nil {
		return nil, err
	}
	rows := o.rowLosses(s)
	out := tensor.Zeros(s.minibatch, 1)
	perExample := 1
	if s.time > 0 {
		perExample = s.time
	}
	for i, l := range rows {
		b := i / perExample
		out.Set(out.At(b, 0)+l, b, 0)
	}
	return out, nil
}

// Backward derives the gradient of ComputeLoss from the labels. A non-nil
// epsilon (the output also feeds other vertices) is added to it.
func (o *Output) Backward(inputs []*tensor.Tensor, epsilon *tensor.Tensor) (layer.Gradient, []*tensor.Tensor, error) {
	s, err := o.prepare(inputs)
	if err != nil {
		return nil, nil, err
	}
	r, c := s.a.Dims()
	scale := 1 / float64(s.minibatch)

	var dz *mat.Dense
	if _, softmax := o.act.(Softmax); softmax && o.loss == LossMCXENT {
		// Softmax and cross-entropy collapse to a - y for one-hot rows.
		dz = mat.NewDense(r, c, nil)
		for i := 0; i < r; i++ {
			rowSum := 0.0
			for j := 0; j < c; j++ {
				rowSum += s.y.At(i, j)
			}
			for j := 0; j < c; j++ {
				dz.Set(i, j, (s.a.At(i, j)*rowSum-s.y.At(i, j))*scale)
			}
		}
		if s.mask != nil {
			dz.Apply(func(i, j int, v float64) float64 { return v * s.mask[i*c+j] }, dz)
		}
	} else {
		dLda := mat.NewDense(r, c, nil)
		for i := 0; i < r; i++ {
			for j := 0; j < c; j++ {
				w := 1.0
				if s.mask != nil {
					w = s.mask[i*c+j]
				}
				_, g := o.elementLoss(s.a.At(i, j), s.y.At(i, j))
				dLda.Set(i, j, w*g*scale)
			}
		}
		dz = o.act.Backprop(s.a, dLda)
	}

	if epsilon != nil {
		epsRows, _, _, err := toRows("Output", epsilon, o.nOut)
		if err != nil {
			return nil, nil, err
		}
		dz.Add(dz, o.act.Backprop(s.a, epsRows.Matrix()))
	}

	grad, dx := o.gradients(s.x, dz)
	return grad, []*tensor.Tensor{fromRows(tensor.FromMatrix(dx), s.minibatch, s.time)}, nil
}

// Describe implements layer.Describer.
func (o *Output) Describe() string {
	return fmt.Sprintf("Output(%d->%d, %s, %s)", o.nIn, o.nOut, o.act.Name(), o.loss)
}
