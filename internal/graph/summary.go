package graph

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/pkg/errors"

	"github.com/born-ml/dagnet/internal/tensor"
)

// Summary renders one row per vertex in topological order followed by the
// parameter totals. Parameters of frozen vertices count as frozen, not
// trainable.
func (g *Graph) Summary() string {
	var b strings.Builder
	w := tabwriter.NewWriter(&b, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "VERTEX\tTYPE\tPARAMS\tINPUTS")

	total, frozen := 0, 0
	for _, idx := range g.order {
		v := g.vertices[idx]
		kind := "Input"
		switch {
		case v.isInput:
		case v.caps.Description != "":
			kind = v.caps.Description
		case v.layer != nil:
			kind = fmt.Sprintf("%T", v.layer)
		default:
			kind = g.vertexConfig(v).Type
		}

		n := v.params.Length
		total += n
		label := fmt.Sprint(n)
		if v.caps.Frozen {
			frozen += n
			label += " (frozen)"
		}

		ins := make([]string, len(v.inputs))
		for i, e := range v.inputs {
			ins[i] = g.vertices[e.Vertex].name
		}
		inputs := strings.Join(ins, ",")
		if inputs == "" {
			inputs = "-"
		}
		fmt.Fprintf(w, "%s (%d)\t%s\t%s\t%s\n", v.name, v.index, kind, label, inputs)
	}
	_ = w.Flush()

	fmt.Fprintf(&b, "\nTotal parameters:     %d\n", total)
	fmt.Fprintf(&b, "Trainable parameters: %d\n", total-frozen)
	fmt.Fprintf(&b, "Frozen parameters:    %d\n", frozen)
	return b.String()
}

// ParamNames returns the "vertex_param" names of all parameters in flat order.
func (g *Graph) ParamNames() []string {
	var names []string
	for _, idx := range g.order {
		v := g.vertices[idx]
		if v.layer == nil {
			continue
		}
		for _, p := range v.layer.Params() {
			names = append(names, v.name+"_"+p.Name)
		}
	}
	return names
}

// ParamTable returns every parameter keyed "vertex_param". The tensors
// alias the flat parameter vector.
func (g *Graph) ParamTable() map[string]*tensor.Tensor {
	out := make(map[string]*tensor.Tensor)
	for _, idx := range g.order {
		v := g.vertices[idx]
		if v.layer == nil {
			continue
		}
		for _, p := range v.layer.Params() {
			out[v.name+"_"+p.Name] = p.Tensor()
		}
	}
	return out
}

// GetParam returns a copy of the parameter named "vertex_param".
func (g *Graph) GetParam(name string) (*tensor.Tensor, error) {
	t, err := g.param(name)
	if err != nil {
		return nil, err
	}
	return t.Clone(), nil
}

// SetParam copies value into the parameter named "vertex_param".
func (g *Graph) SetParam(name string, value *tensor.Tensor) error {
	t, err := g.param(name)
	if err != nil {
		return err
	}
	if !t.Shape().Equal(value.Shape()) {
		return errors.Errorf("graph: parameter %q has shape %v, got %v", name, t.Shape(), value.Shape())
	}
	return t.CopyFrom(value)
}

func (g *Graph) param(name string) (*tensor.Tensor, error) {
	if err := g.requireInit(); err != nil {
		return nil, err
	}
	vertex, key, ok := strings.Cut(name, "_")
	// Vertex names may contain underscores; try every split point.
	for ok {
		if v, found := g.byName[vertex]; found && v.layer != nil {
			for _, p := range v.layer.Params() {
				if p.Name == key {
					return p.Tensor(), nil
				}
			}
		}
		var rest string
		rest, key, ok = strings.Cut(key, "_")
		vertex = vertex + "_" + rest
	}
	return nil, errors.Wrapf(ErrUnknownParam, "%q", name)
}
