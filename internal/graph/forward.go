package graph

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/born-ml/dagnet/internal/tensor"
	"github.com/born-ml/dagnet/internal/workspace"
)

// ForwardOptions control a forward pass.
type ForwardOptions struct {
	// Training selects training-mode behaviour in the layers.
	Training bool

	// StopAt ends the pass right after the named vertex.
	StopAt string

	// ExcludeOutputLayers skips terminal output vertices with a loss; their
	// inputs are still bound. Used before a backward pass, which computes
	// the loss itself.
	ExcludeOutputLayers bool

	// ExcludeStructural leaves parameterless vertices (merge, subset, ...)
	// out of the returned activations. Network inputs are always included.
	ExcludeStructural bool
}

// recurrentMode selects how recurrent layers treat their hidden state.
type recurrentMode int

const (
	recurrentReset  recurrentMode = iota // Forward from a zero state
	recurrentStored                      // ForwardWithState from the previous state
	recurrentTBPTT                       // ForwardWithState, recording the last step
	recurrentStep                        // TimeStep, advancing the previous state
)

// FeedForward runs a forward pass and returns the activation of every
// executed vertex keyed by name. Input tensors are shared, not copied.
func (g *Graph) FeedForward(inputs []*tensor.Tensor, opts ForwardOptions) (map[string]*tensor.Tensor, error) {
	return g.forwardPublic(inputs, opts, recurrentReset)
}

// Output runs inference and returns the network outputs in declared order.
func (g *Graph) Output(training bool, inputs ...*tensor.Tensor) ([]*tensor.Tensor, error) {
	acts, err := g.FeedForward(inputs, ForwardOptions{Training: training})
	if err != nil {
		return nil, err
	}
	return g.collectOutputs(acts), nil
}

// OutputSingle runs inference on a graph with exactly one output.
func (g *Graph) OutputSingle(training bool, inputs ...*tensor.Tensor) (*tensor.Tensor, error) {
	if len(g.outputs) != 1 {
		return nil, errors.Errorf("graph: OutputSingle on a graph with %d outputs", len(g.outputs))
	}
	outs, err := g.Output(training, inputs...)
	if err != nil {
		return nil, err
	}
	return outs[0], nil
}

func (g *Graph) collectOutputs(acts map[string]*tensor.Tensor) []*tensor.Tensor {
	out := make([]*tensor.Tensor, len(g.outputs))
	for i, v := range g.outputs {
		out[i] = acts[v.name]
	}
	return out
}

// forwardPublic wraps a forward pass in an external frame and clears the
// transient vertex state afterwards.
func (g *Graph) forwardPublic(inputs []*tensor.Tensor, opts ForwardOptions, mode recurrentMode) (map[string]*tensor.Tensor, error) {
	if err := g.requireInit(); err != nil {
		return nil, err
	}
	var acts map[string]*tensor.Tensor
	err := g.session.External.Do(func() error {
		defer g.clearVertices()
		var err error
		acts, err = g.feedForward(g.order, inputs, opts, mode)
		return err
	})
	if err != nil {
		return nil, err
	}
	return acts, nil
}

// feedForward walks order, which must be the topological order or a
// subsequence of it closed under inputs. An External frame must be open.
func (g *Graph) feedForward(order []int, inputs []*tensor.Tensor, opts ForwardOptions, mode recurrentMode) (map[string]*tensor.Tensor, error) {
	if opts.StopAt != "" {
		if _, ok := g.byName[opts.StopAt]; !ok {
			return nil, errors.Wrapf(ErrUnknownVertex, "stop at %q", opts.StopAt)
		}
	}

	acts := make(map[string]*tensor.Tensor, len(order))
	for _, idx := range order {
		v := g.vertices[idx]

		var (
			ref workspace.Ref[workspace.External]
			out *tensor.Tensor
			err error
		)
		switch {
		case v.isInput:
			if v.inputIndex >= len(inputs) || inputs[v.inputIndex] == nil {
				return nil, errors.WithStack(&UnboundInputError{Input: v.name, Index: v.inputIndex})
			}
			out = inputs[v.inputIndex]
			if ref, err = g.session.External.Adopt(out); err != nil {
				return nil, err
			}
		case opts.ExcludeOutputLayers && v.isOutput && v.caps.Loss != nil && len(v.outputs) == 0:
			if v.name == opts.StopAt {
				return acts, nil
			}
			continue
		default:
			if ref, err = g.forwardVertex(v, opts.Training, mode); err != nil {
				return nil, err
			}
			if out, err = g.activation(v, ref); err != nil {
				return nil, err
			}
		}

		if v.isInput || !(opts.ExcludeStructural && v.NumParams() == 0) {
			acts[v.name] = out
		}
		for _, e := range v.outputs {
			g.vertices[e.Vertex].setInput(e.Slot, ref)
		}
		if v.name == opts.StopAt {
			break
		}
	}
	return acts, nil
}

// activation returns the tensor reported for v. Arena-owned results are
// detached so callers never see recycled memory.
func (g *Graph) activation(v *Vertex, ref workspace.Ref[workspace.External]) (*tensor.Tensor, error) {
	if v.caps.MutatesInput {
		return ref.Detach()
	}
	return ref.Get()
}

// forwardVertex runs v on its bound inputs and returns its activation bound
// to the current External frame. Layers that mutate their inputs run on
// private copies in a FeedForward frame; their result is promoted out of it.
func (g *Graph) forwardVertex(v *Vertex, training bool, mode recurrentMode) (workspace.Ref[workspace.External], error) {
	var none workspace.Ref[workspace.External]
	ins, err := v.inputTensors()
	if err != nil {
		return none, err
	}
	if !v.caps.MutatesInput {
		out, err := g.runForward(v, ins, training, mode)
		if err != nil {
			return none, err
		}
		return g.session.External.Adopt(out)
	}

	ff := g.session.FeedForward
	var promoted workspace.Ref[workspace.External]
	err = ff.Do(func() error {
		private, err := privateCopies(ff, ins)
		if err != nil {
			return err
		}
		out, err := g.runForward(v, private, training, mode)
		if err != nil {
			return err
		}
		scratch, err := ff.Adopt(out)
		if err != nil {
			return err
		}
		promoted, err = workspace.Promote(scratch, g.session.External)
		return err
	})
	return promoted, err
}

func privateCopies(ff *workspace.Arena[workspace.FeedForward], ins []*tensor.Tensor) ([]*tensor.Tensor, error) {
	out := make([]*tensor.Tensor, len(ins))
	for i, in := range ins {
		ref, err := ff.Copy(in)
		if err != nil {
			return nil, err
		}
		if out[i], err = ref.Get(); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (g *Graph) runForward(v *Vertex, ins []*tensor.Tensor, training bool, mode recurrentMode) (*tensor.Tensor, error) {
	var (
		out *tensor.Tensor
		err error
	)
	rec := v.caps.Recurrent
	switch {
	case rec != nil && mode == recurrentStep:
		out, err = rec.TimeStep(ins)
	case rec != nil && mode == recurrentStored:
		out, err = rec.ForwardWithState(ins, training, false)
	case rec != nil && mode == recurrentTBPTT:
		out, err = rec.ForwardWithState(ins, training, true)
	default:
		out, err = v.layer.Forward(ins, training)
	}
	if err != nil {
		return nil, err
	}
	if out == nil {
		return nil, fmt.Errorf("graph: vertex %q produced no output", v.name)
	}
	return out, nil
}
