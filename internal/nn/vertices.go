package nn

import (
	"fmt"

	"github.com/born-ml/dagnet/internal/layer"
	"github.com/born-ml/dagnet/internal/params"
	"github.com/born-ml/dagnet/internal/tensor"
)

// structural is embedded by parameterless vertices.
type structural struct{}

func (structural) NumParams() int         { return 0 }
func (structural) Params() []params.Named { return nil }

// Merge concatenates its inputs along the feature dimension. Inputs must
// all be [batch, n_i] or all [batch, n_i, time].
type Merge struct{ structural }

func (Merge) check(inputs []*tensor.Tensor) error {
	if len(inputs) == 0 {
		return shapeErr("Merge", "no inputs")
	}
	first := inputs[0]
	for _, in := range inputs[1:] {
		if in.Rank() != first.Rank() || in.Dim(0) != first.Dim(0) ||
			(first.Rank() == 3 && in.Dim(2) != first.Dim(2)) {
			return shapeErr("Merge", "incompatible inputs %v and %v", first.Shape(), in.Shape())
		}
	}
	if first.Rank() != 2 && first.Rank() != 3 {
		return shapeErr("Merge", "expected rank 2 or 3 inputs, got %v", first.Shape())
	}
	return nil
}

// Forward concatenates the inputs.
func (m Merge) Forward(inputs []*tensor.Tensor, _ bool) (*tensor.Tensor, error) {
	if err := m.check(inputs); err != nil {
		return nil, err
	}
	if len(inputs) == 1 {
		return inputs[0], nil
	}
	first := inputs[0]
	mb := first.Dim(0)
	inner := 1 // elements per feature
	if first.Rank() == 3 {
		inner = first.Dim(2)
	}
	total := 0
	for _, in := range inputs {
		total += in.Dim(1)
	}
	shape := first.Shape()
	shape[1] = total
	out := tensor.Zeros(shape...)
	for b := 0; b < mb; b++ {
		off := b * total * inner
		for _, in := range inputs {
			n := in.Dim(1) * inner
			copy(out.Data()[off:off+n], in.Data()[b*n:(b+1)*n])
			off += n
		}
	}
	return out, nil
}

// Backward splits epsilon back into per-input slices.
func (m Merge) Backward(inputs []*tensor.Tensor, epsilon *tensor.Tensor) (layer.Gradient, []*tensor.Tensor, error) {
	if err := m.check(inputs); err != nil {
		return nil, nil, err
	}
	out := make([]*tensor.Tensor, len(inputs))
	start := 0
	for i, in := range inputs {
		end := start + in.Dim(1)
		g, err := epsilon.SliceFeatures(start, end)
		if err != nil {
			return nil, nil, fmt.Errorf("Merge: %w", err)
		}
		out[i] = g
		start = end
	}
	return nil, out, nil
}

// CombineMasks ORs the input masks when several are present.
func (Merge) CombineMasks(masks []*tensor.Tensor, state layer.MaskState, _ int) (*tensor.Tensor, layer.MaskState) {
	var out *tensor.Tensor
	for _, m := range masks {
		if m == nil {
			continue
		}
		if out == nil {
			out = m
			continue
		}
		if !out.SameShape(m) {
			continue
		}
		merged := out.Clone()
		for i, v := range m.Data() {
			if v > merged.Data()[i] {
				merged.Data()[i] = v
			}
		}
		out = merged
	}
	return out, state
}

func (Merge) Describe() string { return "Merge" }

// Element-wise operations.
const (
	OpAdd      = "add"
	OpSubtract = "subtract"
	OpProduct  = "product"
	OpAverage  = "average"
)

// ElementWise combines same-shaped inputs element by element.
type ElementWise struct {
	structural
	op string
}

// NewElementWise validates op.
func NewElementWise(op string) (*ElementWise, error) {
	switch op {
	case OpAdd, OpSubtract, OpProduct, OpAverage:
		return &ElementWise{op: op}, nil
	case "":
		return &ElementWise{op: OpAdd}, nil
	default:
		return nil, fmt.Errorf("nn: unknown element-wise op %q", op)
	}
}

func (e *ElementWise) check(inputs []*tensor.Tensor) error {
	if len(inputs) == 0 {
		return shapeErr("ElementWise", "no inputs")
	}
	if e.op == OpSubtract && len(inputs) != 2 {
		return shapeErr("ElementWise", "subtract needs exactly 2 inputs, got %d", len(inputs))
	}
	for _, in := range inputs[1:] {
		if !in.SameShape(inputs[0]) {
			return shapeErr("ElementWise", "input %v does not match %v", in.Shape(), inputs[0].Shape())
		}
	}
	return nil
}

// Forward applies the operation.
func (e *ElementWise) Forward(inputs []*tensor.Tensor, _ bool) (*tensor.Tensor, error) {
	if err := e.check(inputs); err != nil {
		return nil, err
	}
	out := inputs[0].Clone()
	for _, in := range inputs[1:] {
		switch e.op {
		case OpProduct:
			_ = out.MulInPlace(in)
		case OpSubtract:
			s, _ := out.Sub(in)
			out = s
		default:
			_ = out.AddInPlace(in)
		}
	}
	if e.op == OpAverage {
		out.ScaleInPlace(1 / float64(len(inputs)))
	}
	return out, nil
}

// Backward distributes epsilon according to the operation.
func (e *ElementWise) Backward(inputs []*tensor.Tensor, epsilon *tensor.Tensor) (layer.Gradient, []*tensor.Tensor, error) {
	if err := e.check(inputs); err != nil {
		return nil, nil, err
	}
	if !epsilon.SameShape(inputs[0]) {
		return nil, nil, shapeErr("ElementWise", "epsilon %v does not match %v", epsilon.Shape(), inputs[0].Shape())
	}
	out := make([]*tensor.Tensor, len(inputs))
	for i := range inputs {
		g := epsilon.Clone()
		switch e.op {
		case OpSubtract:
			if i == 1 {
				g.ScaleInPlace(-1)
			}
		case OpAverage:
			g.ScaleInPlace(1 / float64(len(inputs)))
		case OpProduct:
			for j, in := range inputs {
				if j != i {
					_ = g.MulInPlace(in)
				}
			}
		}
		out[i] = g
	}
	return nil, out, nil
}

func (e *ElementWise) Describe() string { return "ElementWise(" + e.op + ")" }

// Subset selects features [from, to] (inclusive) of its single input.
type Subset struct {
	structural
	from, to int
}

// NewSubset validates the range.
func NewSubset(from, to int) (*Subset, error) {
	if from < 0 || to < from {
		return nil, fmt.Errorf("nn: invalid subset range [%d, %d]", from, to)
	}
	return &Subset{from: from, to: to}, nil
}

// Forward copies the selected features.
func (s *Subset) Forward(inputs []*tensor.Tensor, _ bool) (*tensor.Tensor, error) {
	x, err := single("Subset", inputs)
	if err != nil {
		return nil, err
	}
	out, err := x.SliceFeatures(s.from, s.to+1)
	if err != nil {
		return nil, fmt.Errorf("Subset: %w: %v", ErrShape, err)
	}
	return out, nil
}

// Backward scatters epsilon into a zero gradient shaped like the input.
func (s *Subset) Backward(inputs []*tensor.Tensor, epsilon *tensor.Tensor) (layer.Gradient, []*tensor.Tensor, error) {
	x, err := single("Subset", inputs)
	if err != nil {
		return nil, nil, err
	}
	n := s.to - s.from + 1
	if epsilon.Rank() != x.Rank() || epsilon.Dim(1) != n {
		return nil, nil, shapeErr("Subset", "epsilon %v does not match %d selected features", epsilon.Shape(), n)
	}
	dx := tensor.Zeros(x.Shape()...)
	inner := 1
	if x.Rank() == 3 {
		inner = x.Dim(2)
	}
	size := x.Dim(1)
	for b := 0; b < x.Dim(0); b++ {
		dst := (b*size + s.from) * inner
		src := b * n * inner
		copy(dx.Data()[dst:dst+n*inner], epsilon.Data()[src:src+n*inner])
	}
	return nil, []*tensor.Tensor{dx}, nil
}

func (s *Subset) Describe() string { return fmt.Sprintf("Subset(%d..%d)", s.from, s.to) }

// LastTimeStep reduces [batch, n, time] to [batch, n] by taking, for each
// example, the last step its feature mask marks present (the final step
// when no mask is bound). It consumes the mask: nothing downstream sees it.
type LastTimeStep struct {
	structural
	mask *tensor.Tensor
}

func (l *LastTimeStep) indices(x *tensor.Tensor) ([]int, error) {
	mb, T := x.Dim(0), x.Dim(2)
	idx := make([]int, mb)
	for b := range idx {
		idx[b] = T - 1
	}
	if l.mask == nil {
		return idx, nil
	}
	if l.mask.Dim(0) != mb || l.mask.Dim(1) != T {
		return nil, shapeErr("LastTimeStep", "mask %v does not match input %v", l.mask.Shape(), x.Shape())
	}
	for b := 0; b < mb; b++ {
		idx[b] = 0
		for t := T - 1; t >= 0; t-- {
			if l.mask.At(b, t) != 0 {
				idx[b] = t
				break
			}
		}
	}
	return idx, nil
}

func (l *LastTimeStep) input(inputs []*tensor.Tensor) (*tensor.Tensor, []int, error) {
	x, err := single("LastTimeStep", inputs)
	if err != nil {
		return nil, nil, err
	}
	if x.Rank() != 3 {
		return nil, nil, shapeErr("LastTimeStep", "expected rank 3 input, got %v", x.Shape())
	}
	idx, err := l.indices(x)
	return x, idx, err
}

// Forward picks the selected step of every example.
func (l *LastTimeStep) Forward(inputs []*tensor.Tensor, _ bool) (*tensor.Tensor, error) {
	x, idx, err := l.input(inputs)
	if err != nil {
		return nil, err
	}
	mb, n := x.Dim(0), x.Dim(1)
	out := tensor.Zeros(mb, n)
	for b := 0; b < mb; b++ {
		for f := 0; f < n; f++ {
			out.Set(x.At(b, f, idx[b]), b, f)
		}
	}
	return out, nil
}

// Backward routes epsilon to the selected steps.
func (l *LastTimeStep) Backward(inputs []*tensor.Tensor, epsilon *tensor.Tensor) (layer.Gradient, []*tensor.Tensor, error) {
	x, idx, err := l.input(inputs)
	if err != nil {
		return nil, nil, err
	}
	mb, n := x.Dim(0), x.Dim(1)
	if !epsilon.Shape().Equal(tensor.Shape{mb, n}) {
		return nil, nil, shapeErr("LastTimeStep", "epsilon %v, want [%d, %d]", epsilon.Shape(), mb, n)
	}
	dx := tensor.Zeros(x.Shape()...)
	for b := 0; b < mb; b++ {
		for f := 0; f < n; f++ {
			dx.Set(epsilon.At(b, f), b, f, idx[b])
		}
	}
	return nil, []*tensor.Tensor{dx}, nil
}

// SetMask implements layer.MaskAware.
func (l *LastTimeStep) SetMask(mask *tensor.Tensor, _ layer.MaskState) { l.mask = mask }

// CombineMasks binds the input mask and emits none.
func (l *LastTimeStep) CombineMasks(masks []*tensor.Tensor, state layer.MaskState, _ int) (*tensor.Tensor, layer.MaskState) {
	var m *tensor.Tensor
	if len(masks) > 0 {
		m = masks[0]
	}
	l.SetMask(m, state)
	return nil, state
}

func (l *LastTimeStep) Describe() string { return "LastTimeStep" }
