package graph

import (
	"io"

	"github.com/pkg/errors"

	"github.com/born-ml/dagnet/internal/data"
	"github.com/born-ml/dagnet/internal/eval"
	"github.com/born-ml/dagnet/internal/tensor"
)

// Evaluate runs inference over iter and feeds the single network output to
// every metric.
func (g *Graph) Evaluate(iter data.Iterator, metrics ...eval.Metric) error {
	if len(g.outputs) != 1 {
		return errors.Errorf("graph: Evaluate on a graph with %d outputs, use EvaluateOutput", len(g.outputs))
	}
	return g.EvaluateOutput(iter, g.outputs[0].name, metrics...)
}

// EvaluateOutput runs inference over iter and feeds the named output to
// every metric, masked by the batch's label mask. Graphs trained with
// truncated BPTT are evaluated window by window on rank-3 data, carrying
// the recurrent state across windows; feature masks are windowed the same
// way.
func (g *Graph) EvaluateOutput(iter data.Iterator, output string, metrics ...eval.Metric) error {
	if err := g.requireInit(); err != nil {
		return err
	}
	v, err := g.Vertex(output)
	if err != nil {
		return err
	}
	if !v.isOutput {
		return errors.Errorf("graph: vertex %q is not a network output", output)
	}

	for {
		ds, err := iter.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		if v.outputIndex >= len(ds.Labels) {
			return errors.Errorf("graph: batch has no labels for output %q", output)
		}
		if g.truncated() && hasSeries(ds.Features) {
			err = g.evaluateWindows(ds, v, metrics)
		} else {
			err = g.evaluateBatch(ds, v, metrics)
		}
		if err != nil {
			return err
		}
	}
}

func hasSeries(ts []*tensor.Tensor) bool {
	for _, t := range ts {
		if t != nil && t.Rank() == 3 {
			return true
		}
	}
	return false
}

func labelMaskFor(ds *data.MultiDataSet, v *Vertex) *tensor.Tensor {
	if v.outputIndex < len(ds.LabelMasks) {
		return ds.LabelMasks[v.outputIndex]
	}
	return nil
}

func accumulate(metrics []eval.Metric, labels, predictions, mask *tensor.Tensor) error {
	for _, m := range metrics {
		if err := m.Accumulate(labels, predictions, mask); err != nil {
			return err
		}
	}
	return nil
}

func (g *Graph) evaluateBatch(ds *data.MultiDataSet, v *Vertex, metrics []eval.Metric) error {
	defer g.ClearLayerMaskArrays()
	if err := g.SetLayerMaskArrays(ds.FeatureMasks, nil); err != nil {
		return err
	}
	outs, err := g.Output(false, ds.Features...)
	if err != nil {
		return err
	}
	return accumulate(metrics, ds.Labels[v.outputIndex], outs[v.outputIndex], labelMaskFor(ds, v))
}

func (g *Graph) evaluateWindows(ds *data.MultiDataSet, v *Vertex, metrics []eval.Metric) error {
	length, ok := seriesLength(ds.Features, ds.Labels)
	if !ok {
		return errors.New("graph: cannot evaluate time series of different lengths")
	}
	window := g.conf.TBPTTLength
	g.RNNClearPreviousState()
	defer g.RNNClearPreviousState()

	cache := g.session.Cache
	for start := 0; start < length; start += window {
		end := min(start+window, length)
		err := cache.Do(func() error {
			defer g.ClearLayerMaskArrays()
			w := windowSlices{arena: cache, length: length, start: start, end: end}
			features, err := w.slice(ds.Features, 3)
			if err != nil {
				return err
			}
			featureMasks, err := w.slice(ds.FeatureMasks, 2)
			if err != nil {
				return err
			}
			if err := g.SetLayerMaskArrays(featureMasks, nil); err != nil {
				return err
			}
			labels, err := w.slice(ds.Labels[v.outputIndex:v.outputIndex+1], 3)
			if err != nil {
				return err
			}
			mask, err := w.slice([]*tensor.Tensor{labelMaskFor(ds, v)}, 2)
			if err != nil {
				return err
			}
			acts, err := g.RNNActivateUsingStoredState(features, false, true)
			if err != nil {
				return err
			}
			g.rnnUpdateStateWithTBPTTState()
			return accumulate(metrics, labels[0], acts[v.name], mask[0])
		})
		if err != nil {
			return err
		}
	}
	return nil
}
