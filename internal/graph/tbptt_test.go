package graph

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/dagnet/internal/config"
	"github.com/born-ml/dagnet/internal/data"
	"github.com/born-ml/dagnet/internal/layer"
	"github.com/born-ml/dagnet/internal/nn"
	"github.com/born-ml/dagnet/internal/params"
	"github.com/born-ml/dagnet/internal/tensor"
)

// recurrentSpy passes its input through and counts time steps in its
// state, recording the window length and starting state of every
// ForwardWithState call.
type recurrentSpy struct {
	state, tbptt layer.State
	windows      []int
	starts       []float64
	clears       int
}

func (r *recurrentSpy) NumParams() int         { return 0 }
func (r *recurrentSpy) Params() []params.Named { return nil }

func (r *recurrentSpy) h() float64 {
	if r.state == nil {
		return 0
	}
	return r.state["h"].At(0, 0)
}

func (r *recurrentSpy) Forward(inputs []*tensor.Tensor, _ bool) (*tensor.Tensor, error) {
	return inputs[0].Clone(), nil
}

func (r *recurrentSpy) ForwardWithState(inputs []*tensor.Tensor, _, storeLast bool) (*tensor.Tensor, error) {
	T := inputs[0].Dim(2)
	r.windows = append(r.windows, T)
	r.starts = append(r.starts, r.h())
	if storeLast {
		r.tbptt = layer.State{"h": tensor.Full(r.h()+float64(T), 1, 1)}
	}
	return inputs[0].Clone(), nil
}

func (r *recurrentSpy) TimeStep(inputs []*tensor.Tensor) (*tensor.Tensor, error) {
	steps := 1
	if inputs[0].Rank() == 3 {
		steps = inputs[0].Dim(2)
	}
	r.state = layer.State{"h": tensor.Full(r.h()+float64(steps), 1, 1)}
	return inputs[0].Clone(), nil
}

func (r *recurrentSpy) Backward(_ []*tensor.Tensor, eps *tensor.Tensor) (layer.Gradient, []*tensor.Tensor, error) {
	return nil, []*tensor.Tensor{eps}, nil
}

func (r *recurrentSpy) State() layer.State      { return r.state }
func (r *recurrentSpy) SetState(s layer.State)  { r.state = s }
func (r *recurrentSpy) TBPTTState() layer.State { return r.tbptt }
func (r *recurrentSpy) ClearState() {
	r.clears++
	r.state = nil
}

func spyGraph(t *testing.T, spy *recurrentSpy, opts Options) *Graph {
	t.Helper()
	conf, err := config.NewBuilder().
		Seed(9).
		AddInputs("in").
		AddVertex("rnn", custom, "in").
		AddVertex("out", config.Output(2, 1, "identity", nn.LossMSE), "rnn").
		SetOutputs("out").
		TruncatedBPTT(30).
		Build()
	require.NoError(t, err)
	g, err := New(conf, newTestFactory(map[string]layer.Layer{"rnn": spy}), opts)
	require.NoError(t, err)
	require.NoError(t, g.Init(nil, false))
	return g
}

func TestWindowCount(t *testing.T) {
	tests := []struct {
		length, window, want int
	}{
		{100, 30, 4},
		{90, 30, 3},
		{1, 30, 1},
		{30, 1, 30},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, windowCount(tt.length, tt.window), "%d/%d", tt.length, tt.window)
	}
}

func TestSeriesLength(t *testing.T) {
	series := func(T int) *tensor.Tensor { return tensor.Zeros(1, 1, T) }

	n, ok := seriesLength([]*tensor.Tensor{series(5), tensor.Zeros(1, 3)}, []*tensor.Tensor{series(5)})
	assert.True(t, ok)
	assert.Equal(t, 5, n)

	n, ok = seriesLength([]*tensor.Tensor{tensor.Zeros(2, 2), nil})
	assert.True(t, ok)
	assert.Equal(t, -1, n)

	_, ok = seriesLength([]*tensor.Tensor{series(5)}, []*tensor.Tensor{series(4)})
	assert.False(t, ok)
}

func TestFitTruncated_Windows(t *testing.T) {
	spy := &recurrentSpy{}
	g := spyGraph(t, spy, Options{})
	rng := rand.New(rand.NewSource(21))
	before := append([]float64(nil), g.Params()...)

	err := g.FitTruncated(
		[]*tensor.Tensor{randomTensor(rng, 2, 2, 100)},
		[]*tensor.Tensor{randomTensor(rng, 2, 1, 100)},
		nil, nil)
	require.NoError(t, err)

	assert.Equal(t, []int{30, 30, 30, 10}, spy.windows)
	assert.Equal(t, []float64{0, 30, 60, 90}, spy.starts, "each window starts where the last ended")
	assert.Nil(t, spy.state, "state cleared after the batch")
	assert.Equal(t, 4, g.Solver().Steps())
	assert.Equal(t, 4, g.Iteration())
	assert.NotEqual(t, before, g.Params())
	assert.Equal(t, 0, g.Workspace().Cache.Depth())
}

func TestFitTruncated_PreserveState(t *testing.T) {
	cleared := &recurrentSpy{}
	kept := &recurrentSpy{}
	rng := rand.New(rand.NewSource(22))
	x := randomTensor(rng, 1, 2, 60)
	y := randomTensor(rng, 1, 1, 60)

	require.NoError(t, spyGraph(t, cleared, Options{}).
		FitTruncated([]*tensor.Tensor{x}, []*tensor.Tensor{y}, nil, nil))
	require.NoError(t, spyGraph(t, kept, Options{PreserveTBPTTState: true}).
		FitTruncated([]*tensor.Tensor{x}, []*tensor.Tensor{y}, nil, nil))

	assert.Equal(t, cleared.starts, kept.starts)
	assert.Greater(t, cleared.clears, kept.clears)
}

func TestFitTruncated_LengthMismatch(t *testing.T) {
	spy := &recurrentSpy{}
	g := spyGraph(t, spy, Options{})
	rng := rand.New(rand.NewSource(23))
	before := append([]float64(nil), g.Params()...)

	err := g.FitTruncated(
		[]*tensor.Tensor{randomTensor(rng, 2, 2, 100)},
		[]*tensor.Tensor{randomTensor(rng, 2, 1, 90)},
		nil, nil)
	require.NoError(t, err)
	assert.Empty(t, spy.windows)
	assert.Equal(t, before, g.Params())
	assert.Equal(t, 0, g.Iteration())
}

func TestWindowSlices(t *testing.T) {
	g := spyGraph(t, &recurrentSpy{}, Options{})
	cache := g.session.Cache

	series := tensor.Zeros(2, 3, 10)
	timeMask := tensor.Full(1, 2, 10)
	elementMask := tensor.Full(1, 2, 3)
	flat := tensor.Zeros(2, 3)

	err := cache.Do(func() error {
		w := windowSlices{arena: cache, length: 10, start: 0, end: 2}
		got, err := w.slice([]*tensor.Tensor{series, flat}, 3)
		require.NoError(t, err)
		assert.Equal(t, tensor.Shape{2, 3, 2}, got[0].Shape())
		assert.Same(t, flat, got[1])

		got, err = w.slice([]*tensor.Tensor{timeMask, elementMask, nil}, 2)
		require.NoError(t, err)
		assert.Equal(t, tensor.Shape{2, 2}, got[0].Shape())
		assert.Same(t, elementMask, got[1], "a [minibatch, nOut] mask is not a time mask")
		assert.Nil(t, got[2])

		w = windowSlices{arena: cache, length: -1, start: 0, end: 30}
		got, err = w.slice([]*tensor.Tensor{elementMask}, 2)
		require.NoError(t, err)
		assert.Same(t, elementMask, got[0])
		return nil
	})
	require.NoError(t, err)
}

func TestFitTruncated_ElementLabelMask(t *testing.T) {
	feedForward := func(b *config.Builder) *Graph {
		return build(t, b.
			Seed(12).
			AddInputs("in").
			AddVertex("hidden", config.Dense(2, 4, "tanh"), "in").
			AddVertex("out", config.Output(4, 3, "identity", nn.LossMSE), "hidden").
			SetOutputs("out").
			Updater(config.UpdaterConfig{Type: config.UpdaterSGD, LearningRate: 0.1}),
			nn.NewFactory())
	}
	standard := feedForward(config.NewBuilder())
	truncated := feedForward(config.NewBuilder().TruncatedBPTT(5))
	plain := feedForward(config.NewBuilder().TruncatedBPTT(5))
	require.Equal(t, standard.Params(), truncated.Params())

	rng := rand.New(rand.NewSource(26))
	x, y := randomTensor(rng, 4, 2), randomTensor(rng, 4, 3)
	ds := data.NewMultiDataSet([]*tensor.Tensor{x}, []*tensor.Tensor{y})
	ds.LabelMasks = []*tensor.Tensor{tensor.FromSlice([]float64{
		1, 0, 0,
		0, 1, 1,
		1, 1, 0,
		0, 0, 1,
	}, 4, 3)}

	require.NoError(t, standard.Fit(ds))
	require.NoError(t, truncated.Fit(ds))
	require.NoError(t, plain.Fit(data.NewMultiDataSet([]*tensor.Tensor{x}, []*tensor.Tensor{y})))

	assert.InDeltaSlice(t, standard.Params(), truncated.Params(), 1e-12)
	assert.NotEqual(t, plain.Params(), truncated.Params())
}

func TestFitTruncated_SimpleRNNLearns(t *testing.T) {
	g := build(t, config.NewBuilder().
		Seed(4).
		AddInputs("in").
		AddVertex("rnn", config.SimpleRNN(1, 4, "tanh"), "in").
		AddVertex("out", config.Output(4, 1, "identity", nn.LossMSE), "rnn").
		SetOutputs("out").
		TruncatedBPTT(5).
		Updater(config.UpdaterConfig{Type: config.UpdaterSGD, LearningRate: 0.05}),
		nn.NewFactory())

	// Echo the input one step late.
	rng := rand.New(rand.NewSource(24))
	x := randomTensor(rng, 4, 1, 20)
	y := tensor.Zeros(4, 1, 20)
	for b := 0; b < 4; b++ {
		for ts := 1; ts < 20; ts++ {
			y.Set(x.At(b, 0, ts-1), b, 0, ts)
		}
	}

	g.SetInputs(x)
	g.SetLabels(y)
	require.NoError(t, g.ComputeGradientAndScore())
	g.RNNClearPreviousState()
	first := g.Score()

	for i := 0; i < 200; i++ {
		require.NoError(t, g.FitTruncated([]*tensor.Tensor{x}, []*tensor.Tensor{y}, nil, nil))
	}
	g.SetInputs(x)
	g.SetLabels(y)
	require.NoError(t, g.ComputeGradientAndScore())
	assert.Less(t, g.Score(), first)
}

// maskedGraph is in -> SimpleRNN -> LastTimeStep -> Output.
func maskedGraph(t *testing.T) *Graph {
	return build(t, config.NewBuilder().
		Seed(6).
		AddInputs("in").
		AddVertex("rnn", config.SimpleRNN(2, 3, "tanh"), "in").
		AddVertex("last", config.LastTimeStep(), "rnn").
		AddVertex("out", config.Output(3, 2, "identity", nn.LossMSE), "last").
		SetOutputs("out"),
		nn.NewFactory())
}

func TestMasks_Propagation(t *testing.T) {
	g := maskedGraph(t)
	mask := tensor.FromSlice([]float64{1, 1, 0, 0, 1, 1, 1, 1}, 2, 4)
	require.NoError(t, g.SetLayerMaskArrays([]*tensor.Tensor{mask}, nil))

	tests := []struct {
		vertex string
		mask   *tensor.Tensor
		state  layer.MaskState
	}{
		{"in", mask, layer.MaskActive},
		{"rnn", mask, layer.MaskActive},
		{"last", nil, layer.MaskActive},
		{"out", nil, layer.MaskActive},
	}
	for _, tt := range tests {
		t.Run(tt.vertex, func(t *testing.T) {
			m, state, err := g.MaskOf(tt.vertex)
			require.NoError(t, err)
			assert.Equal(t, tt.state, state)
			if tt.mask == nil {
				assert.Nil(t, m)
			} else {
				assert.Same(t, tt.mask, m)
			}
		})
	}

	g.ClearLayerMaskArrays()
	for _, name := range []string{"in", "rnn", "last", "out"} {
		m, state, err := g.MaskOf(name)
		require.NoError(t, err)
		assert.Nil(t, m)
		assert.Equal(t, layer.MaskAbsent, state)
	}

	_, _, err := g.MaskOf("nope")
	assert.ErrorIs(t, err, ErrUnknownVertex)
}

func TestMasks_LastUnmaskedStep(t *testing.T) {
	g := maskedGraph(t)
	x := randomTensor(rand.New(rand.NewSource(25)), 2, 2, 4)

	full, err := g.OutputSingle(false, x)
	require.NoError(t, err)
	head, err := x.SliceTime(0, 2)
	require.NoError(t, err)
	short, err := g.OutputSingle(false, head)
	require.NoError(t, err)

	// Example 0 ends after two steps, example 1 runs the full series.
	mask := tensor.FromSlice([]float64{1, 1, 0, 0, 1, 1, 1, 1}, 2, 4)
	require.NoError(t, g.SetLayerMaskArrays([]*tensor.Tensor{mask}, nil))
	masked, err := g.OutputSingle(false, x)
	require.NoError(t, err)

	for f := 0; f < 2; f++ {
		assert.InDelta(t, short.At(0, f), masked.At(0, f), 1e-12)
		assert.InDelta(t, full.At(1, f), masked.At(1, f), 1e-12)
	}

	g.ClearLayerMaskArrays()
	again, err := g.OutputSingle(false, x)
	require.NoError(t, err)
	assert.True(t, again.Equal(full))
}

func TestMasks_ArityErrors(t *testing.T) {
	g := maskedGraph(t)
	m := tensor.Full(1, 1, 4)

	assert.Error(t, g.SetLayerMaskArrays([]*tensor.Tensor{m, m}, nil))
	assert.Error(t, g.SetLayerMaskArrays(nil, []*tensor.Tensor{m, m}))
	assert.NoError(t, g.SetLayerMaskArrays([]*tensor.Tensor{nil}, []*tensor.Tensor{nil}))
}

func TestMasks_MergeCombines(t *testing.T) {
	g := build(t, config.NewBuilder().
		AddInputs("a", "b").
		AddVertex("m", config.Merge(), "a", "b").
		SetOutputs("m"),
		nn.NewFactory())

	ma := tensor.FromSlice([]float64{1, 0, 0}, 1, 3)
	mb := tensor.FromSlice([]float64{0, 0, 1}, 1, 3)
	require.NoError(t, g.SetLayerMaskArrays([]*tensor.Tensor{ma, mb}, nil))

	m, state, err := g.MaskOf("m")
	require.NoError(t, err)
	assert.Equal(t, layer.MaskActive, state)
	assert.Equal(t, []float64{1, 0, 1}, m.Data())

	require.NoError(t, g.SetLayerMaskArrays([]*tensor.Tensor{ma, nil}, nil))
	m, _, err = g.MaskOf("m")
	require.NoError(t, err)
	assert.Same(t, ma, m)
}
