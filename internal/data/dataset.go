// Package data supplies training batches to a graph: multi-input datasets,
// iterators over them, asynchronous prefetch and one-hot text sequences.
package data

import (
	"fmt"

	"github.com/born-ml/dagnet/internal/tensor"
)

// MultiDataSet is one minibatch for a graph with any number of inputs and
// outputs. Features and FeatureMasks are indexed like the network inputs,
// Labels and LabelMasks like the network outputs. Mask slices may be nil,
// and so may individual masks.
type MultiDataSet struct {
	Features     []*tensor.Tensor
	Labels       []*tensor.Tensor
	FeatureMasks []*tensor.Tensor
	LabelMasks   []*tensor.Tensor
}

// NewMultiDataSet builds an unmasked dataset.
func NewMultiDataSet(features, labels []*tensor.Tensor) *MultiDataSet {
	return &MultiDataSet{Features: features, Labels: labels}
}

// NumExamples returns the minibatch size, taken from the first feature.
func (d *MultiDataSet) NumExamples() int {
	for _, f := range d.Features {
		if f != nil {
			return f.Dim(0)
		}
	}
	return 0
}

// HasMasks reports whether any feature or label mask is present.
func (d *MultiDataSet) HasMasks() bool {
	for _, group := range [][]*tensor.Tensor{d.FeatureMasks, d.LabelMasks} {
		for _, m := range group {
			if m != nil {
				return true
			}
		}
	}
	return false
}

// Validate checks that every tensor agrees on the minibatch size.
func (d *MultiDataSet) Validate() error {
	if len(d.Features) == 0 {
		return fmt.Errorf("dataset has no features")
	}
	mb := d.NumExamples()
	check := func(kind string, ts []*tensor.Tensor) error {
		for i, t := range ts {
			if t != nil && t.Dim(0) != mb {
				return fmt.Errorf("%s %d has %d examples, expected %d", kind, i, t.Dim(0), mb)
			}
		}
		return nil
	}
	if err := check("feature", d.Features); err != nil {
		return err
	}
	if err := check("label", d.Labels); err != nil {
		return err
	}
	if err := check("feature mask", d.FeatureMasks); err != nil {
		return err
	}
	return check("label mask", d.LabelMasks)
}
