// Package layer defines the contract between the graph engine and the
// computation held by a vertex.
//
// The engine only knows Layer. Everything else a vertex may do is an
// optional capability interface, resolved once per vertex with
// CapabilitiesOf and cached, so execution never chains type switches.
package layer

import (
	"github.com/born-ml/dagnet/internal/params"
	"github.com/born-ml/dagnet/internal/tensor"
)

// ParamGradient is the gradient of one named parameter tensor.
type ParamGradient struct {
	Name  string
	Value *tensor.Tensor
}

// Gradient lists parameter gradients in the layer's parameter order.
type Gradient []ParamGradient

// Len returns the total number of gradient values.
func (g Gradient) Len() int {
	n := 0
	for _, pg := range g {
		n += pg.Value.Len()
	}
	return n
}

// Flatten concatenates the gradients in order.
func (g Gradient) Flatten() []float64 {
	out := make([]float64, 0, g.Len())
	for _, pg := range g {
		out = append(out, pg.Value.Data()...)
	}
	return out
}

// Layer is the computation wrapped by a non-input vertex.
//
// Forward receives the tensors bound to the vertex's input slots in edge
// order. Backward receives the same inputs and the upstream gradient
// (nil for loss layers, which derive it from their labels) and returns
// the parameter gradients plus one gradient per input slot. Shape errors
// are reported as errors and are passed through the engine unchanged.
type Layer interface {
	NumParams() int
	Params() []params.Named
	Forward(inputs []*tensor.Tensor, training bool) (*tensor.Tensor, error)
	Backward(inputs []*tensor.Tensor, epsilon *tensor.Tensor) (Gradient, []*tensor.Tensor, error)
}

// HasLoss is implemented by supervised output layers.
type HasLoss interface {
	Layer
	SetLabels(labels *tensor.Tensor)
	SetLabelMask(mask *tensor.Tensor)
	// ComputeLoss returns the loss averaged over the minibatch.
	ComputeLoss(inputs []*tensor.Tensor, training bool) (float64, error)
	// ComputeLossPerExample returns a [minibatch, 1] tensor of per-example losses.
	ComputeLossPerExample(inputs []*tensor.Tensor) (*tensor.Tensor, error)
}

// State is the named hidden state of a recurrent layer.
type State map[string]*tensor.Tensor

// Clone deep-copies the state.
func (s State) Clone() State {
	if s == nil {
		return nil
	}
	out := make(State, len(s))
	for k, v := range s {
		out[k] = v.Clone()
	}
	return out
}

// HasRecurrentState is implemented by layers that carry hidden state over time.
//
// The previous state (State/SetState) seeds ForwardWithState and TimeStep.
// ForwardWithState with storeLast set records the final step into the
// truncated-BPTT state, which the trainer hands over with
// SetState(TBPTTState()) between windows. ClearState drops only the
// previous state.
type HasRecurrentState interface {
	Layer
	ForwardWithState(inputs []*tensor.Tensor, training, storeLast bool) (*tensor.Tensor, error)
	TimeStep(inputs []*tensor.Tensor) (*tensor.Tensor, error)
	State() State
	SetState(State)
	TBPTTState() State
	ClearState()
}

// IsFrozen is implemented by layers whose parameters must not be trained.
type IsFrozen interface {
	Frozen() bool
}

// Clearable layers drop cached activations and inputs.
type Clearable interface {
	Clear()
}

// InputMutator layers modify their input tensors in place and must be given
// a private copy.
type InputMutator interface {
	MutatesInput() bool
}

// Pretrainable layers support layer-wise unsupervised pretraining.
type Pretrainable interface {
	// PretrainGradient returns the unsupervised score and parameter gradient for inputs.
	PretrainGradient(inputs []*tensor.Tensor) (float64, Gradient, error)
}

// Describer layers report a short human-readable type for summaries.
type Describer interface {
	Describe() string
}

// Capabilities caches the optional interfaces a layer implements.
type Capabilities struct {
	Loss         HasLoss
	Recurrent    HasRecurrentState
	Frozen       bool
	MaskAware    MaskAware
	MaskCombiner MaskCombiner
	Pretrain     Pretrainable
	Clear        Clearable
	MutatesInput bool
	Description  string
}

// CapabilitiesOf resolves the capabilities of l. A nil layer has none.
func CapabilitiesOf(l Layer) Capabilities {
	var c Capabilities
	if l == nil {
		return c
	}
	c.Loss, _ = l.(HasLoss)
	c.Recurrent, _ = l.(HasRecurrentState)
	if f, ok := l.(IsFrozen); ok {
		c.Frozen = f.Frozen()
	}
	c.MaskAware, _ = l.(MaskAware)
	c.MaskCombiner, _ = l.(MaskCombiner)
	c.Pretrain, _ = l.(Pretrainable)
	c.Clear, _ = l.(Clearable)
	if m, ok := l.(InputMutator); ok {
		c.MutatesInput = m.MutatesInput()
	}
	if d, ok := l.(Describer); ok {
		c.Description = d.Describe()
	}
	return c
}
