package graph

import (
	"context"
	"io"
	"time"

	"github.com/pkg/errors"

	"github.com/born-ml/dagnet/internal/data"
	"github.com/born-ml/dagnet/internal/tensor"
)

// StepContext describes the solver step a listener is notified about.
type StepContext struct {
	Iteration int
	Epoch     int
	// ETLDuration is the time spent waiting for the batch of this step.
	ETLDuration time.Duration
}

// Listener observes training.
type Listener interface {
	IterationDone(g *Graph, sc StepContext)
}

// EpochListener is optionally implemented by listeners that want epoch
// boundaries.
type EpochListener interface {
	EpochDone(g *Graph, epoch int)
}

// SetListeners replaces the training listeners.
func (g *Graph) SetListeners(ls ...Listener) {
	g.listeners = append([]Listener(nil), ls...)
}

// AddListeners appends training listeners.
func (g *Graph) AddListeners(ls ...Listener) {
	g.listeners = append(g.listeners, ls...)
}

// Listeners returns the registered listeners.
func (g *Graph) Listeners() []Listener { return append([]Listener(nil), g.listeners...) }

// optimizeStep runs one solver step on the bound inputs and labels.
func (g *Graph) optimizeStep(sc StepContext) error {
	if err := g.solver.OptimizeOneStep(g); err != nil {
		return err
	}
	sc.Iteration = g.iteration
	sc.Epoch = g.epoch
	for _, l := range g.listeners {
		l.IterationDone(g, sc)
	}
	g.iteration++
	return nil
}

// Fit trains on one batch: a pretraining pass first when the configuration
// asks for one, then a supervised step (truncated BPTT when configured).
// A graph without parameters is left untouched.
func (g *Graph) Fit(ds *data.MultiDataSet) error {
	return g.fit(StepContext{}, ds)
}

func (g *Graph) fit(sc StepContext, ds *data.MultiDataSet) error {
	if err := g.requireInit(); err != nil {
		return err
	}
	if g.NumParams() == 0 {
		return nil
	}
	if err := ds.Validate(); err != nil {
		return errors.WithStack(err)
	}
	if g.conf.Pretrain {
		if err := g.Pretrain(data.NewSliceIterator(ds)); err != nil {
			return err
		}
	}
	if !g.conf.BackpropEnabled() {
		return nil
	}

	if g.truncated() {
		return g.fitTruncated(sc, ds.Features, ds.Labels, ds.FeatureMasks, ds.LabelMasks)
	}

	defer func() {
		g.ClearLayerMaskArrays()
		g.inputArrays, g.labels = nil, nil
	}()
	if err := g.SetLayerMaskArrays(ds.FeatureMasks, ds.LabelMasks); err != nil {
		return err
	}
	g.SetInputs(ds.Features...)
	g.SetLabels(ds.Labels...)
	return g.optimizeStep(sc)
}

// FitIterator trains for the given number of epochs over iter. Iterators
// that allow it are prefetched on a separate goroutine. Training more than
// one epoch needs a resettable iterator.
func (g *Graph) FitIterator(ctx context.Context, iter data.Iterator, epochs int) error {
	if err := g.requireInit(); err != nil {
		return err
	}
	if epochs > 1 && !iter.ResetSupported() {
		return errors.Errorf("graph: %d epochs need a resettable iterator", epochs)
	}
	if iter.AsyncSupported() {
		async := data.NewAsyncIterator(ctx, iter, data.DefaultQueueSize)
		defer async.Stop()
		iter = async
	}

	for e := 0; e < epochs; e++ {
		if e > 0 {
			if err := iter.Reset(); err != nil {
				return errors.Wrap(err, "graph: reset iterator")
			}
		}
		if err := g.fitEpoch(ctx, iter); err != nil {
			return err
		}
		for _, l := range g.listeners {
			if el, ok := l.(EpochListener); ok {
				el.EpochDone(g, g.epoch)
			}
		}
		g.epoch++
	}
	return nil
}

func (g *Graph) fitEpoch(ctx context.Context, iter data.Iterator) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		start := time.Now()
		ds, err := iter.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		if err := g.fit(StepContext{ETLDuration: time.Since(start)}, ds); err != nil {
			return err
		}
	}
}

// ScoreDataSet returns the loss of the network on ds, summed over the loss
// outputs. The parameters and the training state are not changed.
func (g *Graph) ScoreDataSet(ds *data.MultiDataSet, training bool) (float64, error) {
	if err := g.requireInit(); err != nil {
		return 0, err
	}
	if !g.hasLossOutput() {
		g.log.Warn("score requested on a graph without loss outputs")
		return 0, nil
	}

	score := 0.0
	err := g.scoreOutputs(ds, training, func(v *Vertex, ins []*tensor.Tensor) error {
		s, err := v.caps.Loss.ComputeLoss(ins, training)
		score += s
		return err
	})
	return score, err
}

// ScoreExamples returns a [minibatch, 1] tensor with the loss of each
// example, summed over the loss outputs.
func (g *Graph) ScoreExamples(ds *data.MultiDataSet) (*tensor.Tensor, error) {
	if err := g.requireInit(); err != nil {
		return nil, err
	}
	out := tensor.Zeros(ds.NumExamples(), 1)
	err := g.scoreOutputs(ds, false, func(v *Vertex, ins []*tensor.Tensor) error {
		per, err := v.caps.Loss.ComputeLossPerExample(ins)
		if err != nil {
			return err
		}
		return out.AddInPlace(per)
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (g *Graph) hasLossOutput() bool {
	for _, v := range g.outputs {
		if v.caps.Loss != nil {
			return true
		}
	}
	return false
}

// scoreOutputs runs a forward pass that stops short of the loss outputs and
// calls fn for each of them with its labels and masks bound.
func (g *Graph) scoreOutputs(ds *data.MultiDataSet, training bool, fn func(v *Vertex, ins []*tensor.Tensor) error) error {
	defer g.ClearLayerMaskArrays()
	if err := g.SetLayerMaskArrays(ds.FeatureMasks, ds.LabelMasks); err != nil {
		return err
	}
	return g.session.External.Do(func() error {
		defer g.clearVertices()
		opts := ForwardOptions{Training: training, ExcludeOutputLayers: true}
		if _, err := g.feedForward(g.order, ds.Features, opts, recurrentReset); err != nil {
			return err
		}
		for _, v := range g.outputs {
			if v.caps.Loss == nil {
				continue
			}
			ins, err := v.inputTensors()
			if err != nil {
				return err
			}
			if v.outputIndex >= len(ds.Labels) || ds.Labels[v.outputIndex] == nil {
				return errors.Wrapf(ErrNoLabels, "output %q", v.name)
			}
			v.caps.Loss.SetLabels(ds.Labels[v.outputIndex])
			if err := fn(v, ins); err != nil {
				return err
			}
		}
		return nil
	})
}

// ScoreListener logs the score every Frequency iterations.
type ScoreListener struct {
	Frequency int
}

// IterationDone implements Listener.
func (l ScoreListener) IterationDone(g *Graph, sc StepContext) {
	freq := max(l.Frequency, 1)
	if sc.Iteration%freq != 0 {
		return
	}
	g.log.Info("score at iteration",
		"iteration", sc.Iteration, "epoch", sc.Epoch, "score", g.Score(), "etl", sc.ETLDuration)
}
