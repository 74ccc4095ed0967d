package params

import (
	"fmt"

	"github.com/born-ml/dagnet/internal/tensor"
)

// Spec names one parameter tensor inside a vertex's view.
type Spec struct {
	Name  string
	Shape tensor.Shape
}

// Count returns the summed element count of specs.
func Count(specs []Spec) int {
	n := 0
	for _, s := range specs {
		n += s.Shape.NumElements()
	}
	return n
}

// Named is a parameter tensor backed by a view.
type Named struct {
	Name  string
	View  View
	Shape tensor.Shape
}

// Tensor wraps the view's current backing slice. The result aliases the buffer.
func (n Named) Tensor() *tensor.Tensor {
	return tensor.Wrap(n.View.Data(), n.Shape...)
}

// Split carves v into consecutive named views following specs.
func Split(v View, specs []Spec) ([]Named, error) {
	if need := Count(specs); need != v.Len() {
		return nil, fmt.Errorf("params: specs need %d values, view holds %d", need, v.Len())
	}
	out := make([]Named, len(specs))
	off := 0
	for i, s := range specs {
		n := s.Shape.NumElements()
		out[i] = Named{Name: s.Name, View: v.Sub(off, n), Shape: s.Shape.Clone()}
		off += n
	}
	return out, nil
}
