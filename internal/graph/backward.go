package graph

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/born-ml/dagnet/internal/layer"
	"github.com/born-ml/dagnet/internal/tensor"
	"github.com/born-ml/dagnet/internal/workspace"
)

// Gradient is the result of a backward pass. Flat is index-aligned with
// the flat parameter vector; named entries are views into it, keyed
// "vertex_param" in parameter order.
type Gradient struct {
	flat   []float64
	names  []string
	values map[string]*tensor.Tensor
}

// Flat returns the flat gradient.
func (g *Gradient) Flat() []float64 { return g.flat }

// Names returns the parameter names in flat order.
func (g *Gradient) Names() []string { return append([]string(nil), g.names...) }

// Get returns the gradient of one named parameter, nil if unknown.
func (g *Gradient) Get(name string) *tensor.Tensor { return g.values[name] }

// BackpropGradient runs a training-mode forward pass on the bound inputs,
// then a backward pass in which each output without a loss function takes
// its gradient from epsilons (indexed like the network outputs). Outputs
// with a loss use the bound labels.
func (g *Graph) BackpropGradient(epsilons ...*tensor.Tensor) (*Gradient, error) {
	if err := g.requireInit(); err != nil {
		return nil, err
	}
	err := g.session.External.Do(func() error {
		defer g.clearVertices()
		opts := ForwardOptions{Training: true, ExcludeOutputLayers: true}
		if _, err := g.feedForward(g.order, g.inputArrays, opts, recurrentReset); err != nil {
			return err
		}
		return g.calcBackpropGradients(false, epsilons)
	})
	if err != nil {
		return nil, err
	}
	return g.gradient, nil
}

// ComputeGradientAndScore runs forward and backward on the bound inputs and
// labels, leaving the result in Gradients and Score. Graphs configured for
// truncated BPTT run recurrent layers from their stored state.
func (g *Graph) ComputeGradientAndScore() error {
	if err := g.requireInit(); err != nil {
		return err
	}
	truncated := g.truncated()
	mode := recurrentReset
	if truncated {
		mode = recurrentTBPTT
	}
	return g.session.External.Do(func() error {
		defer g.clearVertices()
		opts := ForwardOptions{Training: true, ExcludeOutputLayers: true}
		if _, err := g.feedForward(g.order, g.inputArrays, opts, mode); err != nil {
			return err
		}
		return g.calcBackpropGradients(truncated, nil)
	})
}

// calcBackpropGradients walks the reverse topological order. Vertex inputs
// must already be bound by a forward pass in the current External frame.
//
// The walk ends at the first frozen vertex. Epsilons reaching a vertex from
// several consumers are summed. Transient vertex state is cleared on every
// path.
func (g *Graph) calcBackpropGradients(truncated bool, external []*tensor.Tensor) error {
	defer g.clearVertices()
	if err := g.InitGradients(); err != nil {
		return err
	}

	perVertex := make([]layer.Gradient, len(g.vertices))
	score := 0.0
	for i := len(g.order) - 1; i >= 0; i-- {
		v := g.vertices[g.order[i]]
		if v.isInput {
			continue
		}
		if v.caps.Frozen {
			g.log.Debug("backward pass stopped at frozen vertex", "vertex", v.name)
			break
		}

		eps, err := v.epsilonTensor()
		if err != nil {
			return err
		}
		ins, err := v.inputTensors()
		if err != nil {
			return err
		}

		if v.isOutput {
			if loss := v.caps.Loss; loss != nil {
				labels := g.labelFor(v)
				if labels == nil {
					return errors.Wrapf(ErrNoLabels, "output %q", v.name)
				}
				loss.SetLabels(labels)
				s, err := loss.ComputeLoss(ins, true)
				if err != nil {
					return err
				}
				score += s
			} else {
				if eps, err = g.externalEpsilon(v, eps, external); err != nil {
					return err
				}
			}
		} else if eps == nil {
			// Nothing downstream depends on this vertex.
			continue
		}

		grad, inputEps, err := g.runBackward(v, ins, eps)
		if err != nil {
			return err
		}
		if len(inputEps) != len(v.inputs) {
			return fmt.Errorf("graph: vertex %q returned %d input gradients for %d inputs",
				v.name, len(inputEps), len(v.inputs))
		}
		perVertex[v.index] = grad
		for slot, e := range v.inputs {
			if inputEps[slot] == nil {
				continue
			}
			if err := g.deliverEpsilon(g.vertices[e.Vertex], inputEps[slot]); err != nil {
				return err
			}
		}
	}

	gradient, err := g.flattenGradients(perVertex)
	if err != nil {
		return err
	}
	g.gradient = gradient
	g.score = score

	if truncated && !g.opts.PreserveTBPTTState {
		g.RNNClearPreviousState()
	}
	return nil
}

// externalEpsilon adds the caller's gradient for output v to any epsilon
// it already received from consumers.
func (g *Graph) externalEpsilon(v *Vertex, accumulated *tensor.Tensor, external []*tensor.Tensor) (*tensor.Tensor, error) {
	var ext *tensor.Tensor
	if v.outputIndex < len(external) {
		ext = external[v.outputIndex]
	}
	if ext == nil {
		return nil, errors.WithStack(&MissingExternalGradientError{Output: v.name, Index: v.outputIndex})
	}
	if accumulated == nil {
		return ext, nil
	}
	sum, err := accumulated.Add(ext)
	if err != nil {
		return nil, fmt.Errorf("graph: external gradient for %q: %w", v.name, err)
	}
	return sum, nil
}

func (g *Graph) runBackward(v *Vertex, ins []*tensor.Tensor, eps *tensor.Tensor) (layer.Gradient, []*tensor.Tensor, error) {
	if !v.caps.MutatesInput {
		return v.layer.Backward(ins, eps)
	}
	var (
		grad     layer.Gradient
		inputEps []*tensor.Tensor
	)
	ff := g.session.FeedForward
	err := ff.Do(func() error {
		private, err := privateCopies(ff, ins)
		if err != nil {
			return err
		}
		grad, inputEps, err = v.layer.Backward(private, eps)
		if err != nil {
			return err
		}
		// Input gradients may alias the private copies.
		for i, e := range inputEps {
			if e != nil {
				inputEps[i] = e.Clone()
			}
		}
		return nil
	})
	return grad, inputEps, err
}

// deliverEpsilon sets or accumulates the epsilon of src.
func (g *Graph) deliverEpsilon(src *Vertex, eps *tensor.Tensor) error {
	if src.isInput {
		return nil
	}
	ext := g.session.External
	if !src.epsilonSet {
		ref, err := ext.Adopt(eps)
		if err != nil {
			return err
		}
		src.epsilon = ref
		src.epsilonSet = true
		return nil
	}

	cur, err := src.epsilon.Get()
	if err != nil {
		return err
	}
	if !cur.SameShape(eps) {
		return fmt.Errorf("graph: vertex %q received epsilons of shapes %v and %v",
			src.name, cur.Shape(), eps.Shape())
	}
	var sum workspace.Ref[workspace.External]
	if sum, err = ext.Copy(cur); err != nil {
		return err
	}
	t, err := sum.Get()
	if err != nil {
		return err
	}
	if err := t.AddInPlace(eps); err != nil {
		return err
	}
	src.epsilon = sum
	return nil
}

// flattenGradients copies per-vertex gradients into the flat gradient
// buffer at each vertex's offset. Vertices that produced no gradient keep
// zeros.
func (g *Graph) flattenGradients(perVertex []layer.Gradient) (*Gradient, error) {
	g.grad.Zero()
	flat := g.grad.Data()
	out := &Gradient{flat: flat, values: make(map[string]*tensor.Tensor)}
	for _, idx := range g.order {
		v := g.vertices[idx]
		grad := perVertex[idx]
		if v.isInput || v.params.Length == 0 {
			continue
		}
		if grad == nil {
			for _, p := range v.layer.Params() {
				r := p.View.Range()
				name := v.name + "_" + p.Name
				out.names = append(out.names, name)
				out.values[name] = tensor.Wrap(flat[r.Offset:r.End()], p.Shape...)
			}
			continue
		}
		if grad.Len() != v.params.Length {
			return nil, fmt.Errorf("graph: vertex %q returned %d gradient values for %d parameters",
				v.name, grad.Len(), v.params.Length)
		}
		off := v.params.Offset
		for _, pg := range grad {
			n := pg.Value.Len()
			dst := flat[off : off+n]
			copy(dst, pg.Value.Data())
			name := v.name + "_" + pg.Name
			out.names = append(out.names, name)
			out.values[name] = tensor.Wrap(dst, pg.Value.Shape()...)
			off += n
		}
	}
	return out, nil
}
