package layer

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/born-ml/dagnet/internal/params"
	"github.com/born-ml/dagnet/internal/tensor"
)

type plain struct{}

func (plain) NumParams() int         { return 0 }
func (plain) Params() []params.Named { return nil }
func (plain) Forward(in []*tensor.Tensor, _ bool) (*tensor.Tensor, error) {
	return in[0], nil
}
func (plain) Backward(_ []*tensor.Tensor, eps *tensor.Tensor) (Gradient, []*tensor.Tensor, error) {
	return nil, []*tensor.Tensor{eps}, nil
}

type frozenMutator struct{ plain }

func (frozenMutator) Frozen() bool       { return true }
func (frozenMutator) MutatesInput() bool { return true }
func (frozenMutator) Describe() string   { return "FrozenMutator" }

func TestCapabilitiesOf(t *testing.T) {
	c := CapabilitiesOf(plain{})
	assert.Nil(t, c.Loss)
	assert.Nil(t, c.Recurrent)
	assert.False(t, c.Frozen)
	assert.False(t, c.MutatesInput)

	c = CapabilitiesOf(frozenMutator{})
	assert.True(t, c.Frozen)
	assert.True(t, c.MutatesInput)
	assert.Equal(t, "FrozenMutator", c.Description)

	assert.Equal(t, Capabilities{}, CapabilitiesOf(nil))
}

func TestGradient_Flatten(t *testing.T) {
	g := Gradient{
		{Name: "W", Value: tensor.FromSlice([]float64{1, 2, 3, 4}, 2, 2)},
		{Name: "b", Value: tensor.FromSlice([]float64{5, 6}, 1, 2)},
	}
	assert.Equal(t, 6, g.Len())
	assert.Equal(t, []float64{1, 2, 3, 4, 5, 6}, g.Flatten())
}

func TestCombineState(t *testing.T) {
	tests := []struct {
		name   string
		states []MaskState
		want   MaskState
	}{
		{"none", nil, MaskAbsent},
		{"all absent", []MaskState{MaskAbsent, MaskAbsent}, MaskAbsent},
		{"first present wins", []MaskState{MaskActive, MaskPassthrough}, MaskActive},
		{"passthrough overridden", []MaskState{MaskPassthrough, MaskActive}, MaskActive},
		{"skips absent", []MaskState{MaskAbsent, MaskPassthrough}, MaskPassthrough},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CombineState(tt.states))
		})
	}
}

type recordingMask struct {
	mask  *tensor.Tensor
	state MaskState
}

func (r *recordingMask) SetMask(m *tensor.Tensor, s MaskState) { r.mask, r.state = m, s }

func TestDefaultCombine(t *testing.T) {
	m := tensor.FromSlice([]float64{1, 0}, 1, 2)
	rec := &recordingMask{}
	out, st := DefaultCombine(rec, []*tensor.Tensor{nil, m}, MaskActive)
	assert.Same(t, m, out)
	assert.Equal(t, MaskActive, st)
	assert.Same(t, m, rec.mask)
}

func TestState_Clone(t *testing.T) {
	s := State{"h": tensor.FromSlice([]float64{1}, 1, 1)}
	c := s.Clone()
	c["h"].Set(2, 0, 0)
	assert.Equal(t, 1.0, s["h"].At(0, 0))
	assert.Nil(t, State(nil).Clone())
}
