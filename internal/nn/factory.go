package nn

import (
	"fmt"
	"math/rand"

	"github.com/born-ml/dagnet/internal/config"
	"github.com/born-ml/dagnet/internal/layer"
	"github.com/born-ml/dagnet/internal/params"
)

// Initializer is implemented by layers that can draw their own initial
// parameters into their view.
type Initializer interface {
	Initialize(rng *rand.Rand)
}

// Factory builds the reference layers and vertices from configuration.
type Factory struct{}

// NewFactory returns the default vertex factory.
func NewFactory() *Factory { return &Factory{} }

func requireSizes(vc config.VertexConfig) error {
	if vc.NIn <= 0 || vc.NOut <= 0 {
		return fmt.Errorf("nn: vertex %q (%s) needs positive n_in and n_out, got %d and %d",
			vc.Name, vc.Type, vc.NIn, vc.NOut)
	}
	return nil
}

// NumParams returns the parameter count the vertex will need.
func (f *Factory) NumParams(vc config.VertexConfig) (int, error) {
	switch vc.Type {
	case config.TypeDense, config.TypeOutput:
		if err := requireSizes(vc); err != nil {
			return 0, err
		}
		return numAffine(vc.NIn, vc.NOut), nil
	case config.TypeSimpleRNN:
		if err := requireSizes(vc); err != nil {
			return 0, err
		}
		return params.Count(rnnSpecs(vc.NIn, vc.NOut)), nil
	case config.TypeAutoEncoder:
		if err := requireSizes(vc); err != nil {
			return 0, err
		}
		return numAutoEncoder(vc.NIn, vc.NOut), nil
	case config.TypeElementWiseMult:
		if vc.NIn <= 0 {
			return 0, fmt.Errorf("nn: vertex %q needs positive n_in", vc.Name)
		}
		return 2 * vc.NIn, nil
	case config.TypeMerge, config.TypeElementWise, config.TypeSubset, config.TypeLastTimeStep:
		return 0, nil
	default:
		return 0, fmt.Errorf("nn: vertex %q has unknown type %q", vc.Name, vc.Type)
	}
}

// Instantiate builds the vertex over view. When rng is non-nil the layer
// draws fresh parameters into the view; otherwise the view is left as is.
func (f *Factory) Instantiate(vc config.VertexConfig, view params.View, rng *rand.Rand) (layer.Layer, error) {
	l, err := f.build(vc, view)
	if err != nil {
		return nil, err
	}
	if ini, ok := l.(Initializer); ok && rng != nil {
		ini.Initialize(rng)
	}
	if vc.Frozen {
		return NewFrozen(l), nil
	}
	return l, nil
}

func (f *Factory) build(vc config.VertexConfig, view params.View) (layer.Layer, error) {
	switch vc.Type {
	case config.TypeMerge:
		return &Merge{}, nil
	case config.TypeElementWise:
		return NewElementWise(vc.Op)
	case config.TypeSubset:
		return NewSubset(vc.From, vc.To)
	case config.TypeLastTimeStep:
		return &LastTimeStep{}, nil
	}

	act, err := ActivationByName(vc.Activation)
	if err != nil {
		return nil, err
	}
	switch vc.Type {
	case config.TypeDense:
		return NewDense(vc.NIn, vc.NOut, act, view)
	case config.TypeOutput:
		loss := vc.Loss
		if loss == "" {
			loss = LossMSE
		}
		return NewOutput(vc.NIn, vc.NOut, act, loss, view)
	case config.TypeSimpleRNN:
		return NewSimpleRNN(vc.NIn, vc.NOut, act, view)
	case config.TypeElementWiseMult:
		return NewElementWiseMultiplication(vc.NIn, act, view)
	case config.TypeAutoEncoder:
		return NewAutoEncoder(vc.NIn, vc.NOut, act, view)
	default:
		return nil, fmt.Errorf("nn: vertex %q has unknown type %q", vc.Name, vc.Type)
	}
}
