package layer

import "github.com/born-ml/dagnet/internal/tensor"

// MaskState tells downstream vertices how to treat a propagated mask.
// The zero value means no mask reached the vertex.
type MaskState int

const (
	// MaskAbsent means no mask is attached.
	MaskAbsent MaskState = iota
	// MaskActive means the mask must be honoured.
	MaskActive
	// MaskPassthrough means the mask is carried along but not applied here.
	MaskPassthrough
)

func (s MaskState) String() string {
	switch s {
	case MaskActive:
		return "active"
	case MaskPassthrough:
		return "passthrough"
	default:
		return "absent"
	}
}

// MaskAware layers accept the feature mask bound during mask propagation.
type MaskAware interface {
	SetMask(mask *tensor.Tensor, state MaskState)
}

// MaskCombiner vertices decide the mask they emit from their input masks.
// masks holds one entry per input slot (nil where that input carries none).
type MaskCombiner interface {
	CombineMasks(masks []*tensor.Tensor, state MaskState, minibatch int) (*tensor.Tensor, MaskState)
}

// CombineState folds input mask states: the first present state wins, and a
// Passthrough state yields to any later state.
func CombineState(states []MaskState) MaskState {
	cur := MaskAbsent
	for _, s := range states {
		if s == MaskAbsent {
			continue
		}
		if cur == MaskAbsent || cur == MaskPassthrough {
			cur = s
		}
	}
	return cur
}

// DefaultCombine binds the first present mask to m (when mask aware) and
// forwards it unchanged.
func DefaultCombine(m MaskAware, masks []*tensor.Tensor, state MaskState) (*tensor.Tensor, MaskState) {
	var first *tensor.Tensor
	for _, mk := range masks {
		if mk != nil {
			first = mk
			break
		}
	}
	if m != nil {
		m.SetMask(first, state)
	}
	return first, state
}
