package graph

import (
	"github.com/born-ml/dagnet/internal/config"
	"github.com/born-ml/dagnet/internal/tensor"
	"github.com/born-ml/dagnet/internal/workspace"
)

func (g *Graph) truncated() bool {
	return g.conf.BackpropType == config.BackpropTruncated
}

// seriesLength returns the shared time length of the rank-3 tensors, -1 if
// there are none, and false if they disagree.
func seriesLength(groups ...[]*tensor.Tensor) (int, bool) {
	length := -1
	for _, group := range groups {
		for _, t := range group {
			if t == nil || t.Rank() != 3 {
				continue
			}
			switch {
			case length == -1:
				length = t.Dim(2)
			case length != t.Dim(2):
				return 0, false
			}
		}
	}
	return length, true
}

// windowCount returns ceil(length / window).
func windowCount(length, window int) int {
	n := length / window
	if length%window != 0 {
		n++
	}
	return n
}

// FitTruncated trains on one batch with truncated backpropagation through
// time: the series is split into windows of the configured length, each
// window gets one solver step, and every recurrent layer hands its last
// state of a window to the next window.
//
// Rank-3 tensors of disagreeing length abort the call with a warning and a
// nil error, leaving the parameters unchanged.
func (g *Graph) FitTruncated(inputs, labels, featureMasks, labelMasks []*tensor.Tensor) error {
	return g.fitTruncated(StepContext{}, inputs, labels, featureMasks, labelMasks)
}

func (g *Graph) fitTruncated(sc StepContext, inputs, labels, featureMasks, labelMasks []*tensor.Tensor) error {
	if err := g.InitGradients(); err != nil {
		return err
	}
	length, ok := seriesLength(inputs, labels)
	if !ok {
		g.log.Warn("cannot do truncated BPTT with time series of different lengths")
		return nil
	}
	window := g.conf.TBPTTLength
	n := 1
	if length > 0 {
		n = windowCount(length, window)
	}

	g.RNNClearPreviousState()
	defer func() {
		g.RNNClearPreviousState()
		g.ClearLayerMaskArrays()
		g.inputArrays, g.labels = nil, nil
	}()

	cache := g.session.Cache
	for i := 0; i < n; i++ {
		start, end := i*window, (i+1)*window
		if length > 0 {
			end = min(end, length)
		}
		err := cache.Do(func() error {
			defer g.ClearLayerMaskArrays()
			var err error
			w := windowSlices{arena: cache, length: length, start: start, end: end}
			if g.inputArrays, err = w.slice(inputs, 3); err != nil {
				return err
			}
			if g.labels, err = w.slice(labels, 3); err != nil {
				return err
			}
			fm, err := w.slice(featureMasks, 2)
			if err != nil {
				return err
			}
			lm, err := w.slice(labelMasks, 2)
			if err != nil {
				return err
			}
			if err := g.SetLayerMaskArrays(fm, lm); err != nil {
				return err
			}
			if err := g.optimizeStep(sc); err != nil {
				return err
			}
			g.rnnUpdateStateWithTBPTTState()
			return nil
		})
		if err != nil {
			return err
		}
		g.log.Debug("truncated BPTT window done", "window", i+1, "of", n, "start", start, "end", end, "score", g.score)
	}
	return nil
}

// windowSlices copies time windows of series tensors into cache frames.
// length is the series length of the batch, or -1 when it has no rank-3
// tensor.
type windowSlices struct {
	arena      *workspace.Arena[workspace.Cache]
	length     int
	start, end int
}

// slice windows every tensor of the given rank whose last dimension is the
// series length; anything else passes through unsliced. A rank-2 label mask
// of shape [minibatch, nOut] is therefore never cut down.
func (w windowSlices) slice(ts []*tensor.Tensor, rank int) ([]*tensor.Tensor, error) {
	if ts == nil {
		return nil, nil
	}
	out := make([]*tensor.Tensor, len(ts))
	for i, t := range ts {
		if w.length <= 0 || t == nil || t.Rank() != rank || t.Dim(rank-1) != w.length {
			out[i] = t
			continue
		}
		shape := t.Shape()
		shape[rank-1] = w.end - w.start
		ref, err := w.arena.Alloc(shape...)
		if err != nil {
			return nil, err
		}
		dst, err := ref.Get()
		if err != nil {
			return nil, err
		}
		if err := t.SliceTimeInto(dst, w.start); err != nil {
			return nil, err
		}
		out[i] = dst
	}
	return out, nil
}

// rnnUpdateStateWithTBPTTState makes the state recorded at the end of the
// last window the previous state of every recurrent layer.
func (g *Graph) rnnUpdateStateWithTBPTTState() {
	for _, idx := range g.order {
		if rec := g.vertices[idx].caps.Recurrent; rec != nil {
			rec.SetState(rec.TBPTTState())
		}
	}
}
