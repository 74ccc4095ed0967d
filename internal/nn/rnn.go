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

// StateKey names the hidden state entry of SimpleRNN.
const StateKey = "h"

// SimpleRNN is a fully connected recurrent layer:
//
//	h_t = f(x_t @ W + h_{t-1} @ RW + b)
//
// Input is [batch, nIn, time], output [batch, nOut, time]. With a feature
// mask bound, masked steps emit zeros and carry a zero state forward.
//
// The layer keeps two states. The previous state seeds ForwardWithState
// and TimeStep. The truncated-BPTT state records the last step of each
// ForwardWithState call made with storeLast.
type SimpleRNN struct {
	nIn, nOut int
	act       Activation
	params    []params.Named // W [nIn, nOut], RW [nOut, nOut], b [1, nOut]

	mask  *tensor.Tensor
	state layer.State
	tbptt layer.State
	// initial state of the most recent forward pass, replayed by Backward
	init *tensor.Tensor
}

func rnnSpecs(nIn, nOut int) []params.Spec {
	return []params.Spec{
		{Name: "W", Shape: tensor.Shape{nIn, nOut}},
		{Name: "RW", Shape: tensor.Shape{nOut, nOut}},
		{Name: "b", Shape: tensor.Shape{1, nOut}},
	}
}

// NewSimpleRNN creates a recurrent layer over view.
func NewSimpleRNN(nIn, nOut int, act Activation, view params.View) (*SimpleRNN, error) {
	named, err := params.Split(view, rnnSpecs(nIn, nOut))
	if err != nil {
		return nil, err
	}
	return &SimpleRNN{nIn: nIn, nOut: nOut, act: act, params: named}, nil
}

// NumParams returns nIn*nOut + nOut*nOut + nOut.
func (r *SimpleRNN) NumParams() int { return params.Count(rnnSpecs(r.nIn, r.nOut)) }

// Params returns the W, RW and b views.
func (r *SimpleRNN) Params() []params.Named { return r.params }

// Initialize draws W and RW with Xavier and zeroes b.
func (r *SimpleRNN) Initialize(rng *rand.Rand) {
	Xavier(rng, r.nIn, r.nOut, r.params[0].View.Data())
	Xavier(rng, r.nOut, r.nOut, r.params[1].View.Data())
	Zeros(r.params[2].View.Data())
}

func (r *SimpleRNN) w() *mat.Dense  { return mat.NewDense(r.nIn, r.nOut, r.params[0].View.Data()) }
func (r *SimpleRNN) rw() *mat.Dense { return mat.NewDense(r.nOut, r.nOut, r.params[1].View.Data()) }
func (r *SimpleRNN) b() []float64   { return r.params[2].View.Data() }

// pass holds the per-step activations of one forward run.
type pass struct {
	pre  []*mat.Dense // f(z_t) before masking
	outs []*mat.Dense // masked outputs, which are also the carried state
	out  *tensor.Tensor
}

func (r *SimpleRNN) checkInput(x *tensor.Tensor) error {
	if x.Rank() != 3 || x.Dim(1) != r.nIn {
		return shapeErr("SimpleRNN", "expected [batch, %d, time] input, got %v", r.nIn, x.Shape())
	}
	return nil
}

func (r *SimpleRNN) maskAt(b, t int) float64 {
	if r.mask == nil {
		return 1
	}
	return r.mask.At(b, t)
}

func (r *SimpleRNN) run(x, h0 *tensor.Tensor) (*pass, error) {
	mb, T := x.Dim(0), x.Dim(2)
	if h0 != nil && (h0.Rank() != 2 || h0.Dim(0) != mb || h0.Dim(1) != r.nOut) {
		return nil, shapeErr("SimpleRNN", "state %v does not match batch %d", h0.Shape(), mb)
	}
	if r.mask != nil && (r.mask.Dim(0) != mb || r.mask.Dim(1) != T) {
		return nil, shapeErr("SimpleRNN", "mask %v does not match input %v", r.mask.Shape(), x.Shape())
	}
	W, RW, b := r.w(), r.rw(), r.b()
	p := &pass{
		pre:  make([]*mat.Dense, T),
		outs: make([]*mat.Dense, T),
		out:  tensor.Zeros(mb, r.nOut, T),
	}
	var prev mat.Matrix
	if h0 != nil {
		prev = h0.Matrix()
	}
	for t := 0; t < T; t++ {
		z := mat.NewDense(mb, r.nOut, nil)
		z.Mul(x.TimeStep(t).Matrix(), W)
		if prev != nil {
			var rec mat.Dense
			rec.Mul(prev, RW)
			z.Add(z, &rec)
		}
		for i := 0; i < mb; i++ {
			floats.Add(z.RawRowView(i), b)
		}
		r.act.Apply(z)
		p.pre[t] = z

		out := mat.DenseCopyOf(z)
		if r.mask != nil {
			for i := 0; i < mb; i++ {
				floats.Scale(r.maskAt(i, t), out.RawRowView(i))
			}
		}
		p.outs[t] = out
		p.out.SetTimeStep(t, tensor.FromMatrix(out))
		prev = out
	}
	return p, nil
}

func (r *SimpleRNN) last(p *pass) *tensor.Tensor {
	return tensor.FromMatrix(p.outs[len(p.outs)-1])
}

// Forward runs the full sequence from a zero state.
func (r *SimpleRNN) Forward(inputs []*tensor.Tensor, _ bool) (*tensor.Tensor, error) {
	x, err := single("SimpleRNN", inputs)
	if err != nil {
		return nil, err
	}
	if err := r.checkInput(x); err != nil {
		return nil, err
	}
	r.init = nil
	p, err := r.run(x, nil)
	if err != nil {
		return nil, err
	}
	return p.out, nil
}

// ForwardWithState runs from the previous state. With storeLast the final
// step is recorded as the truncated-BPTT state.
func (r *SimpleRNN) ForwardWithState(inputs []*tensor.Tensor, _ bool, storeLast bool) (*tensor.Tensor, error) {
	x, err := single("SimpleRNN", inputs)
	if err != nil {
		return nil, err
	}
	if err := r.checkInput(x); err != nil {
		return nil, err
	}
	h0 := r.state[StateKey]
	if h0 != nil && h0.Dim(0) != x.Dim(0) {
		h0 = nil
	}
	r.init = h0
	p, err := r.run(x, h0)
	if err != nil {
		return nil, err
	}
	if storeLast {
		r.tbptt = layer.State{StateKey: r.last(p)}
	}
	return p.out, nil
}

// TimeStep advances the previous state by the given steps. Rank-2
// [batch, nIn] input is a single step and yields rank-2 output.
func (r *SimpleRNN) TimeStep(inputs []*tensor.Tensor) (*tensor.Tensor, error) {
	x, err := single("SimpleRNN", inputs)
	if err != nil {
		return nil, err
	}
	squeeze := false
	if x.Rank() == 2 {
		x, err = x.Reshape(x.Dim(0), x.Dim(1), 1)
		if err != nil {
			return nil, err
		}
		squeeze = true
	}
	if err := r.checkInput(x); err != nil {
		return nil, err
	}
	h0 := r.state[StateKey]
	if h0 != nil && h0.Dim(0) != x.Dim(0) {
		return nil, shapeErr("SimpleRNN", "stored state has batch %d, input has %d", h0.Dim(0), x.Dim(0))
	}
	mask := r.mask
	r.mask = nil
	p, err := r.run(x, h0)
	r.mask = mask
	if err != nil {
		return nil, err
	}
	r.state = layer.State{StateKey: r.last(p)}
	if squeeze {
		return p.out.Reshape(p.out.Dim(0), r.nOut)
	}
	return p.out, nil
}

// State returns the previous state.
func (r *SimpleRNN) State() layer.State { return r.state }

// SetState replaces the previous state.
func (r *SimpleRNN) SetState(s layer.State) { r.state = s }

// TBPTTState returns the state recorded by the last ForwardWithState.
func (r *SimpleRNN) TBPTTState() layer.State { return r.tbptt }

// ClearState drops the previous state. The truncated-BPTT state is kept
// until the next ForwardWithState overwrites it.
func (r *SimpleRNN) ClearState() { r.state = nil }

// SetMask implements layer.MaskAware.
func (r *SimpleRNN) SetMask(mask *tensor.Tensor, _ layer.MaskState) { r.mask = mask }

// Clear drops the replay state of the last forward pass.
func (r *SimpleRNN) Clear() { r.init = nil }

// Backward runs backpropagation through time within the sequence. The
// gradient is not propagated into the initial state.
func (r *SimpleRNN) Backward(inputs []*tensor.Tensor, epsilon *tensor.Tensor) (layer.Gradient, []*tensor.Tensor, error) {
	x, err := single("SimpleRNN", inputs)
	if err != nil {
		return nil, nil, err
	}
	if err := r.checkInput(x); err != nil {
		return nil, nil, err
	}
	mb, T := x.Dim(0), x.Dim(2)
	if epsilon == nil || !epsilon.Shape().Equal(tensor.Shape{mb, r.nOut, T}) {
		return nil, nil, shapeErr("SimpleRNN", "epsilon must have shape [%d, %d, %d]", mb, r.nOut, T)
	}
	p, err := r.run(x, r.init)
	if err != nil {
		return nil, nil, err
	}

	W, RW := r.w(), r.rw()
	dW := mat.NewDense(r.nIn, r.nOut, nil)
	dRW := mat.NewDense(r.nOut, r.nOut, nil)
	db := make([]float64, r.nOut)
	dx := tensor.Zeros(mb, r.nIn, T)

	var carry *mat.Dense // dL/dout_t arriving from step t+1
	for t := T - 1; t >= 0; t-- {
		g := epsilon.TimeStep(t).Matrix()
		if carry != nil {
			g.Add(g, carry)
		}
		if r.mask != nil {
			for i := 0; i < mb; i++ {
				floats.Scale(r.maskAt(i, t), g.RawRowView(i))
			}
		}
		dz := r.act.Backprop(p.pre[t], g)

		var tmp mat.Dense
		tmp.Mul(x.TimeStep(t).Matrix().T(), dz)
		dW.Add(dW, &tmp)

		var hPrev mat.Matrix
		switch {
		case t > 0:
			hPrev = p.outs[t-1]
		case r.init != nil:
			hPrev = r.init.Matrix()
		}
		if hPrev != nil {
			var rec mat.Dense
			rec.Mul(hPrev.T(), dz)
			dRW.Add(dRW, &rec)
		}
		for i := 0; i < mb; i++ {
			floats.Add(db, dz.RawRowView(i))
		}

		var dxt mat.Dense
		dxt.Mul(dz, W.T())
		dx.SetTimeStep(t, tensor.FromMatrix(&dxt))

		next := mat.NewDense(mb, r.nOut, nil)
		next.Mul(dz, RW.T())
		carry = next
	}

	grad := layer.Gradient{
		{Name: "W", Value: tensor.FromMatrix(dW)},
		{Name: "RW", Value: tensor.FromMatrix(dRW)},
		{Name: "b", Value: tensor.FromSlice(db, 1, r.nOut)},
	}
	return grad, []*tensor.Tensor{dx}, nil
}

// Describe implements layer.Describer.
func (r *SimpleRNN) Describe() string {
	return fmt.Sprintf("SimpleRNN(%d->%d, %s)", r.nIn, r.nOut, r.act.Name())
}
