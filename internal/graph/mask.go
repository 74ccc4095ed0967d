package graph

import (
	"github.com/pkg/errors"

	"github.com/born-ml/dagnet/internal/layer"
	"github.com/born-ml/dagnet/internal/tensor"
)

// SetLayerMaskArrays binds feature masks (one per network input, nil
// entries allowed) and label masks (one per network output).
//
// Feature masks are propagated in topological order: every input vertex
// starts Active with its mask, and each later vertex combines the masks
// of its inputs with its own MaskCombiner, or binds the first mask to a
// mask-aware layer and forwards it unchanged. Vertices none of whose inputs
// carry a mask are left without one. Label masks go straight to the loss
// of the matching output.
func (g *Graph) SetLayerMaskArrays(featureMasks, labelMasks []*tensor.Tensor) error {
	if featureMasks != nil {
		if len(featureMasks) != len(g.inputs) {
			return errors.Errorf("graph: %d feature masks for %d network inputs", len(featureMasks), len(g.inputs))
		}
		g.propagateMasks(featureMasks)
	}
	if labelMasks != nil {
		if len(labelMasks) != len(g.outputs) {
			return errors.Errorf("graph: %d label masks for %d network outputs", len(labelMasks), len(g.outputs))
		}
		for i, v := range g.outputs {
			if loss := v.caps.Loss; loss != nil {
				loss.SetLabelMask(labelMasks[i])
			}
		}
	}
	return nil
}

func (g *Graph) propagateMasks(featureMasks []*tensor.Tensor) {
	minibatch := 0
	for _, m := range featureMasks {
		if m != nil {
			minibatch = m.Dim(0)
			break
		}
	}

	for _, idx := range g.order {
		v := g.vertices[idx]
		if v.isInput {
			v.mask = featureMasks[v.inputIndex]
			v.maskState = layer.MaskActive
			continue
		}

		masks := make([]*tensor.Tensor, len(v.inputs))
		states := make([]layer.MaskState, len(v.inputs))
		present := false
		for slot, e := range v.inputs {
			src := g.vertices[e.Vertex]
			masks[slot], states[slot] = src.mask, src.maskState
			if src.maskState != layer.MaskAbsent {
				present = true
			}
		}
		if !present {
			continue
		}

		state := layer.CombineState(states)
		if c := v.caps.MaskCombiner; c != nil {
			v.mask, v.maskState = c.CombineMasks(masks, state, minibatch)
		} else {
			v.mask, v.maskState = layer.DefaultCombine(v.caps.MaskAware, masks, state)
		}
	}
}

// MaskOf returns the mask and mask state currently bound to a vertex.
func (g *Graph) MaskOf(name string) (*tensor.Tensor, layer.MaskState, error) {
	v, err := g.Vertex(name)
	if err != nil {
		return nil, layer.MaskAbsent, err
	}
	return v.mask, v.maskState, nil
}

// ClearLayerMaskArrays removes all feature and label masks.
func (g *Graph) ClearLayerMaskArrays() {
	for _, v := range g.vertices {
		v.mask = nil
		v.maskState = layer.MaskAbsent
		if v.caps.MaskAware != nil {
			v.caps.MaskAware.SetMask(nil, layer.MaskAbsent)
		}
		if v.caps.Loss != nil {
			v.caps.Loss.SetLabelMask(nil)
		}
	}
}
