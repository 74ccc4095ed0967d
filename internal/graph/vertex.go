package graph

import (
	"fmt"

	"github.com/born-ml/dagnet/internal/layer"
	"github.com/born-ml/dagnet/internal/params"
	"github.com/born-ml/dagnet/internal/tensor"
	"github.com/born-ml/dagnet/internal/workspace"
)

// Edge connects two vertices. On an input edge Vertex is the producer and
// Slot its output number; on an output edge Vertex is the consumer and Slot
// the consumer's input slot fed by this edge.
type Edge struct {
	Vertex int
	Slot   int
}

// Vertex is one node of the graph: a network input, or a node wrapping a
// layer or structural operation.
type Vertex struct {
	name        string
	index       int
	inputs      []Edge
	outputs     []Edge
	isInput     bool
	isOutput    bool
	inputIndex  int // position in the network inputs, -1 otherwise
	outputIndex int // position in the network outputs, -1 otherwise
	layer       layer.Layer
	caps        layer.Capabilities
	params      params.Range

	// Transient per-pass state, dropped by clear.
	slots      []workspace.Ref[workspace.External]
	epsilon    workspace.Ref[workspace.External]
	epsilonSet bool
	mask       *tensor.Tensor
	maskState  layer.MaskState
}

// Name returns the vertex name.
func (v *Vertex) Name() string { return v.name }

// Index returns the vertex index: network inputs first, then vertices in
// declaration order.
func (v *Vertex) Index() int { return v.index }

func (v *Vertex) IsInput() bool  { return v.isInput }
func (v *Vertex) IsOutput() bool { return v.isOutput }

// Layer returns the wrapped layer (nil for network inputs).
func (v *Vertex) Layer() layer.Layer { return v.layer }

// Capabilities returns the optional interfaces of the wrapped layer.
func (v *Vertex) Capabilities() layer.Capabilities { return v.caps }

// Inputs returns the input edges in slot order.
func (v *Vertex) Inputs() []Edge { return append([]Edge(nil), v.inputs...) }

// Outputs returns the output edges in declaration order of the consumers.
func (v *Vertex) Outputs() []Edge { return append([]Edge(nil), v.outputs...) }

// ParamRange returns the vertex's range in the flat parameter buffer.
func (v *Vertex) ParamRange() params.Range { return v.params }

// NumParams returns the parameter count of the vertex.
func (v *Vertex) NumParams() int { return v.params.Length }

func (v *Vertex) setInput(slot int, ref workspace.Ref[workspace.External]) {
	if v.slots == nil {
		v.slots = make([]workspace.Ref[workspace.External], len(v.inputs))
	}
	v.slots[slot] = ref
}

// inputTensors resolves every input slot.
func (v *Vertex) inputTensors() ([]*tensor.Tensor, error) {
	if len(v.slots) != len(v.inputs) {
		return nil, fmt.Errorf("graph: vertex %q has no inputs bound", v.name)
	}
	out := make([]*tensor.Tensor, len(v.slots))
	for i, ref := range v.slots {
		t, err := ref.Get()
		if err != nil {
			return nil, fmt.Errorf("graph: vertex %q slot %d: %w", v.name, i, err)
		}
		if t == nil {
			return nil, fmt.Errorf("graph: vertex %q slot %d is not bound", v.name, i)
		}
		out[i] = t
	}
	return out, nil
}

func (v *Vertex) epsilonTensor() (*tensor.Tensor, error) {
	if !v.epsilonSet {
		return nil, nil
	}
	return v.epsilon.Get()
}

// clear drops transient inputs and epsilons and lets the layer drop its own.
func (v *Vertex) clear() {
	v.slots = nil
	v.epsilon = workspace.Ref[workspace.External]{}
	v.epsilonSet = false
	if v.caps.Clear != nil {
		v.caps.Clear.Clear()
	}
}

func (v *Vertex) String() string {
	desc := v.caps.Description
	switch {
	case v.isInput:
		desc = "Input"
	case desc == "":
		desc = fmt.Sprintf("%T", v.layer)
	}
	return fmt.Sprintf("%s (%s)", v.name, desc)
}
