package graph

import (
	"github.com/pkg/errors"

	"github.com/born-ml/dagnet/internal/layer"
	"github.com/born-ml/dagnet/internal/tensor"
)

// RNNTimeStep runs inference one or more steps forward from the stored
// state of every recurrent layer and keeps the resulting state for the next
// call. Rank-2 inputs are a single time step.
func (g *Graph) RNNTimeStep(inputs ...*tensor.Tensor) ([]*tensor.Tensor, error) {
	acts, err := g.forwardPublic(inputs, ForwardOptions{}, recurrentStep)
	if err != nil {
		return nil, err
	}
	return g.collectOutputs(acts), nil
}

// RNNActivateUsingStoredState runs a forward pass that starts every
// recurrent layer from its stored state. With storeLast the final step of
// each layer is recorded as its truncated-BPTT state; the stored state
// itself is never advanced.
func (g *Graph) RNNActivateUsingStoredState(inputs []*tensor.Tensor, training, storeLast bool) (map[string]*tensor.Tensor, error) {
	mode := recurrentStored
	if storeLast {
		mode = recurrentTBPTT
	}
	return g.forwardPublic(inputs, ForwardOptions{Training: training}, mode)
}

func (g *Graph) recurrent(name string) (layer.HasRecurrentState, error) {
	v, err := g.Vertex(name)
	if err != nil {
		return nil, err
	}
	if v.caps.Recurrent == nil {
		return nil, errors.Wrapf(ErrNotRecurrent, "%q", name)
	}
	return v.caps.Recurrent, nil
}

// RNNGetPreviousState returns a copy of the stored state of a recurrent vertex.
func (g *Graph) RNNGetPreviousState(name string) (layer.State, error) {
	rec, err := g.recurrent(name)
	if err != nil {
		return nil, err
	}
	return rec.State().Clone(), nil
}

// RNNSetPreviousState replaces the stored state of a recurrent vertex.
func (g *Graph) RNNSetPreviousState(name string, state layer.State) error {
	rec, err := g.recurrent(name)
	if err != nil {
		return err
	}
	rec.SetState(state.Clone())
	return nil
}

// RNNGetPreviousStates returns copies of the stored states of all recurrent
// vertices, keyed by vertex name.
func (g *Graph) RNNGetPreviousStates() map[string]layer.State {
	out := make(map[string]layer.State)
	for _, idx := range g.order {
		v := g.vertices[idx]
		if rec := v.caps.Recurrent; rec != nil {
			out[v.name] = rec.State().Clone()
		}
	}
	return out
}

// RNNSetPreviousStates restores states returned by RNNGetPreviousStates.
func (g *Graph) RNNSetPreviousStates(states map[string]layer.State) error {
	for name, s := range states {
		if err := g.RNNSetPreviousState(name, s); err != nil {
			return err
		}
	}
	return nil
}

// RNNClearPreviousState drops the stored state of every recurrent vertex.
func (g *Graph) RNNClearPreviousState() {
	for _, v := range g.vertices {
		if rec := v.caps.Recurrent; rec != nil {
			rec.ClearState()
		}
	}
}
