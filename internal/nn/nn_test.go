package nn

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/floats"

	"github.com/born-ml/dagnet/internal/config"
	"github.com/born-ml/dagnet/internal/layer"
	"github.com/born-ml/dagnet/internal/params"
	"github.com/born-ml/dagnet/internal/tensor"
)

const gradTol = 1e-5

var central = &fd.Settings{Formula: fd.Central, Step: 1e-6}

func randomTensor(rng *rand.Rand, shape ...int) *tensor.Tensor {
	t := tensor.Zeros(shape...)
	for i := range t.Data() {
		t.Data()[i] = rng.Float64()*2 - 1
	}
	return t
}

func newView(n int) (*params.Buffer, params.View) {
	buf := params.NewBuffer(n)
	return buf, buf.View(params.Range{Length: n})
}

// projected returns sum(out * r), whose gradient with respect to out is r.
func projected(t *testing.T, l layer.Layer, inputs []*tensor.Tensor, r *tensor.Tensor) float64 {
	t.Helper()
	out, err := l.Forward(inputs, true)
	require.NoError(t, err)
	return floats.Dot(out.Data(), r.Data())
}

// checkParamGradient compares Backward's parameter gradient with central differences.
func checkParamGradient(t *testing.T, l layer.Layer, buf *params.Buffer, inputs []*tensor.Tensor, r *tensor.Tensor) {
	t.Helper()
	projected(t, l, inputs, r)
	grad, _, err := l.Backward(inputs, r)
	require.NoError(t, err)

	theta := buf.Snapshot()
	numeric := fd.Gradient(nil, func(x []float64) float64 {
		require.NoError(t, buf.Assign(x))
		return projected(t, l, inputs, r)
	}, theta, central)
	require.NoError(t, buf.Assign(theta))

	assert.True(t, floats.EqualApprox(grad.Flatten(), numeric, gradTol),
		"analytic %v\nnumeric  %v", grad.Flatten(), numeric)
}

// checkInputGradient compares Backward's input gradients with central differences.
func checkInputGradient(t *testing.T, l layer.Layer, inputs []*tensor.Tensor, r *tensor.Tensor) {
	t.Helper()
	_, eps, err := l.Backward(inputs, r)
	require.NoError(t, err)
	require.Len(t, eps, len(inputs))

	for i, in := range inputs {
		orig := append([]float64(nil), in.Data()...)
		numeric := fd.Gradient(nil, func(x []float64) float64 {
			copy(in.Data(), x)
			return projected(t, l, inputs, r)
		}, orig, central)
		copy(in.Data(), orig)
		assert.True(t, floats.EqualApprox(eps[i].Data(), numeric, gradTol),
			"input %d: analytic %v\nnumeric  %v", i, eps[i].Data(), numeric)
	}
}

func TestActivationByName(t *testing.T) {
	for _, name := range []string{"", "identity", "tanh", "sigmoid", "relu", "softmax"} {
		_, err := ActivationByName(name)
		assert.NoError(t, err, name)
	}
	_, err := ActivationByName("swish")
	assert.Error(t, err)
}

func TestSoftmax_RowsSumToOne(t *testing.T) {
	x := tensor.FromSlice([]float64{1, 2, 3, 1000, 1000, 1000}, 2, 3)
	m := x.Matrix()
	Softmax{}.Apply(m)
	assert.InDelta(t, 1.0, floats.Sum(m.RawRowView(0)), 1e-12)
	assert.InDelta(t, 1.0/3, x.At(1, 0), 1e-12)
}

func TestDense_Gradients(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	for _, act := range []Activation{Identity{}, Tanh{}, Sigmoid{}, Softmax{}} {
		t.Run(act.Name(), func(t *testing.T) {
			buf, view := newView(numAffine(3, 4))
			d, err := NewDense(3, 4, act, view)
			require.NoError(t, err)
			d.Initialize(rng)
			floats.AddConst(0.1, d.bias())

			x := randomTensor(rng, 2, 3)
			r := randomTensor(rng, 2, 4)
			checkParamGradient(t, d, buf, []*tensor.Tensor{x}, r)
			checkInputGradient(t, d, []*tensor.Tensor{x}, r)
		})
	}
}

func TestDense_TimeSeriesInput(t *testing.T) {
	rng := rand.New(rand.NewSource(2))
	buf, view := newView(numAffine(2, 3))
	d, err := NewDense(2, 3, Tanh{}, view)
	require.NoError(t, err)
	d.Initialize(rng)

	x := randomTensor(rng, 2, 2, 4)
	out, err := d.Forward([]*tensor.Tensor{x}, false)
	require.NoError(t, err)
	assert.Equal(t, tensor.Shape{2, 3, 4}, out.Shape())

	step, err := d.Forward([]*tensor.Tensor{x.TimeStep(2)}, false)
	require.NoError(t, err)
	assert.True(t, step.AllClose(out.TimeStep(2), 1e-12))

	checkParamGradient(t, d, buf, []*tensor.Tensor{x}, randomTensor(rng, 2, 3, 4))
}

func TestDense_ShapeError(t *testing.T) {
	_, view := newView(numAffine(3, 2))
	d, err := NewDense(3, 2, Identity{}, view)
	require.NoError(t, err)
	_, err = d.Forward([]*tensor.Tensor{tensor.Zeros(1, 4)}, false)
	assert.ErrorIs(t, err, ErrShape)
}

func TestOutput_LossGradients(t *testing.T) {
	tests := []struct {
		name string
		act  Activation
		loss string
		rank int
		mask bool
	}{
		{"mse identity", Identity{}, LossMSE, 2, false},
		{"mse tanh", Tanh{}, LossMSE, 2, false},
		{"mcxent softmax", Softmax{}, LossMCXENT, 2, false},
		{"mcxent sigmoid", Sigmoid{}, LossMCXENT, 2, false},
		{"mse series masked", Identity{}, LossMSE, 3, true},
		{"mcxent series masked", Softmax{}, LossMCXENT, 3, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rng := rand.New(rand.NewSource(3))
			buf, view := newView(numAffine(3, 2))
			o, err := NewOutput(3, 2, tt.act, tt.loss, view)
			require.NoError(t, err)
			o.Initialize(rng)

			var x, labels *tensor.Tensor
			if tt.rank == 2 {
				x = randomTensor(rng, 4, 3)
				labels = tensor.FromSlice([]float64{1, 0, 0, 1, 1, 0, 0, 1}, 4, 2)
			} else {
				x = randomTensor(rng, 2, 3, 3)
				labels = tensor.Zeros(2, 2, 3)
				for b := 0; b < 2; b++ {
					for s := 0; s < 3; s++ {
						labels.Set(1, b, (b+s)%2, s)
					}
				}
			}
			o.SetLabels(labels)
			if tt.mask {
				o.SetLabelMask(tensor.FromSlice([]float64{1, 1, 0, 1, 0, 0}, 2, 3))
			}
			inputs := []*tensor.Tensor{x}

			grad, eps, err := o.Backward(inputs, nil)
			require.NoError(t, err)

			theta := buf.Snapshot()
			numeric := fd.Gradient(nil, func(p []float64) float64 {
				require.NoError(t, buf.Assign(p))
				s, err := o.ComputeLoss(inputs, true)
				require.NoError(t, err)
				return s
			}, theta, central)
			require.NoError(t, buf.Assign(theta))
			assert.True(t, floats.EqualApprox(grad.Flatten(), numeric, gradTol),
				"analytic %v\nnumeric  %v", grad.Flatten(), numeric)

			orig := append([]float64(nil), x.Data()...)
			numericX := fd.Gradient(nil, func(v []float64) float64 {
				copy(x.Data(), v)
				s, err := o.ComputeLoss(inputs, true)
				require.NoError(t, err)
				return s
			}, orig, central)
			copy(x.Data(), orig)
			assert.True(t, floats.EqualApprox(eps[0].Data(), numericX, gradTol))
		})
	}
}

func TestOutput_PerExampleSumsToScore(t *testing.T) {
	rng := rand.New(rand.NewSource(4))
	_, view := newView(numAffine(2, 2))
	o, err := NewOutput(2, 2, Softmax{}, LossMCXENT, view)
	require.NoError(t, err)
	o.Initialize(rng)

	x := randomTensor(rng, 3, 2, 5)
	labels := tensor.Zeros(3, 2, 5)
	for b := 0; b < 3; b++ {
		for s := 0; s < 5; s++ {
			labels.Set(1, b, s%2, s)
		}
	}
	o.SetLabels(labels)

	score, err := o.ComputeLoss([]*tensor.Tensor{x}, false)
	require.NoError(t, err)
	per, err := o.ComputeLossPerExample([]*tensor.Tensor{x})
	require.NoError(t, err)
	assert.Equal(t, tensor.Shape{3, 1}, per.Shape())
	assert.InDelta(t, score, per.Sum()/3, 1e-12)
}

func TestOutput_RequiresLabels(t *testing.T) {
	_, view := newView(numAffine(2, 1))
	o, err := NewOutput(2, 1, Identity{}, LossMSE, view)
	require.NoError(t, err)
	_, err = o.ComputeLoss([]*tensor.Tensor{tensor.Zeros(1, 2)}, false)
	assert.ErrorIs(t, err, ErrNoLabels)

	_, err = NewOutput(2, 1, Identity{}, "hinge", view)
	assert.Error(t, err)
}

func TestSimpleRNN_Gradients(t *testing.T) {
	rng := rand.New(rand.NewSource(5))
	n := params.Count(rnnSpecs(2, 3))
	buf, view := newView(n)
	r, err := NewSimpleRNN(2, 3, Tanh{}, view)
	require.NoError(t, err)
	r.Initialize(rng)

	x := randomTensor(rng, 2, 2, 4)
	eps := randomTensor(rng, 2, 3, 4)

	t.Run("zero state", func(t *testing.T) {
		checkParamGradient(t, r, buf, []*tensor.Tensor{x}, eps)
		checkInputGradient(t, r, []*tensor.Tensor{x}, eps)
	})

	t.Run("masked", func(t *testing.T) {
		r.SetMask(tensor.FromSlice([]float64{1, 1, 1, 0, 1, 1, 0, 0}, 2, 4), layer.MaskActive)
		defer r.SetMask(nil, layer.MaskAbsent)
		checkParamGradient(t, r, buf, []*tensor.Tensor{x}, eps)
		checkInputGradient(t, r, []*tensor.Tensor{x}, eps)
	})
}

// statefulRNN makes Forward replay the stored state so the generic checks
// exercise ForwardWithState.
type statefulRNN struct{ *SimpleRNN }

func (s statefulRNN) Forward(inputs []*tensor.Tensor, training bool) (*tensor.Tensor, error) {
	return s.ForwardWithState(inputs, training, false)
}

func TestSimpleRNN_GradientsFromStoredState(t *testing.T) {
	rng := rand.New(rand.NewSource(6))
	n := params.Count(rnnSpecs(2, 3))
	buf, view := newView(n)
	r, err := NewSimpleRNN(2, 3, Tanh{}, view)
	require.NoError(t, err)
	r.Initialize(rng)
	r.SetState(layer.State{StateKey: randomTensor(rng, 2, 3)})

	x := randomTensor(rng, 2, 2, 3)
	eps := randomTensor(rng, 2, 3, 3)
	checkParamGradient(t, statefulRNN{r}, buf, []*tensor.Tensor{x}, eps)
}

func TestSimpleRNN_StateHandOff(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	_, view := newView(params.Count(rnnSpecs(2, 3)))
	r, err := NewSimpleRNN(2, 3, Tanh{}, view)
	require.NoError(t, err)
	r.Initialize(rng)

	x := randomTensor(rng, 1, 2, 6)
	full, err := r.Forward([]*tensor.Tensor{x}, false)
	require.NoError(t, err)

	// Two windows of 3 with the state handed over reproduce the full pass.
	first, err := x.SliceTime(0, 3)
	require.NoError(t, err)
	second, err := x.SliceTime(3, 6)
	require.NoError(t, err)

	_, err = r.ForwardWithState([]*tensor.Tensor{first}, true, true)
	require.NoError(t, err)
	r.SetState(r.TBPTTState())
	out2, err := r.ForwardWithState([]*tensor.Tensor{second}, true, true)
	require.NoError(t, err)

	want, err := full.SliceTime(3, 6)
	require.NoError(t, err)
	assert.True(t, want.AllClose(out2, 1e-12))

	r.ClearState()
	assert.Nil(t, r.State())
	assert.NotNil(t, r.TBPTTState())
}

func TestSimpleRNN_TimeStepMatchesForward(t *testing.T) {
	rng := rand.New(rand.NewSource(8))
	_, view := newView(params.Count(rnnSpecs(2, 2)))
	r, err := NewSimpleRNN(2, 2, Tanh{}, view)
	require.NoError(t, err)
	r.Initialize(rng)

	x := randomTensor(rng, 2, 2, 3)
	full, err := r.Forward([]*tensor.Tensor{x}, false)
	require.NoError(t, err)

	for s := 0; s < 3; s++ {
		out, err := r.TimeStep([]*tensor.Tensor{x.TimeStep(s)})
		require.NoError(t, err)
		assert.Equal(t, tensor.Shape{2, 2}, out.Shape())
		assert.True(t, full.TimeStep(s).AllClose(out, 1e-12), "step %d", s)
	}
}

func TestElementWiseMultiplication_Gradients(t *testing.T) {
	rng := rand.New(rand.NewSource(9))
	buf, view := newView(8)
	e, err := NewElementWiseMultiplication(4, Sigmoid{}, view)
	require.NoError(t, err)
	e.Initialize(rng)

	x := randomTensor(rng, 3, 4)
	r := randomTensor(rng, 3, 4)
	checkParamGradient(t, e, buf, []*tensor.Tensor{x}, r)
	checkInputGradient(t, e, []*tensor.Tensor{x}, r)
}

func TestElementWiseMultiplication_Identity(t *testing.T) {
	buf, view := newView(4)
	e, err := NewElementWiseMultiplication(2, Identity{}, view)
	require.NoError(t, err)
	require.NoError(t, buf.Assign([]float64{2, 3, 1, -1}))

	out, err := e.Forward([]*tensor.Tensor{tensor.FromSlice([]float64{1, 1, 2, 2}, 2, 2)}, false)
	require.NoError(t, err)
	assert.Equal(t, []float64{3, 2, 5, 5}, out.Data())
}

func TestAutoEncoder_PretrainGradient(t *testing.T) {
	rng := rand.New(rand.NewSource(10))
	buf, view := newView(numAutoEncoder(4, 2))
	e, err := NewAutoEncoder(4, 2, Sigmoid{}, view)
	require.NoError(t, err)
	e.Initialize(rng)

	x := randomTensor(rng, 3, 4)
	inputs := []*tensor.Tensor{x}
	_, grad, err := e.PretrainGradient(inputs)
	require.NoError(t, err)

	theta := buf.Snapshot()
	numeric := fd.Gradient(nil, func(p []float64) float64 {
		require.NoError(t, buf.Assign(p))
		s, _, err := e.PretrainGradient(inputs)
		require.NoError(t, err)
		return s
	}, theta, central)
	require.NoError(t, buf.Assign(theta))
	assert.True(t, floats.EqualApprox(grad.Flatten(), numeric, gradTol))

	checkInputGradient(t, e, inputs, randomTensor(rng, 3, 2))
}

func TestStructuralVertices_Gradients(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	sub, err := NewSubset(1, 2)
	require.NoError(t, err)
	prod, err := NewElementWise(OpProduct)
	require.NoError(t, err)
	diffOp, err := NewElementWise(OpSubtract)
	require.NoError(t, err)
	avg, err := NewElementWise(OpAverage)
	require.NoError(t, err)

	tests := []struct {
		name   string
		l      layer.Layer
		inputs []*tensor.Tensor
		eps    *tensor.Tensor
	}{
		{"merge", &Merge{}, []*tensor.Tensor{randomTensor(rng, 2, 2), randomTensor(rng, 2, 3)}, randomTensor(rng, 2, 5)},
		{"merge series", &Merge{}, []*tensor.Tensor{randomTensor(rng, 2, 1, 3), randomTensor(rng, 2, 2, 3)}, randomTensor(rng, 2, 3, 3)},
		{"product", prod, []*tensor.Tensor{randomTensor(rng, 2, 3), randomTensor(rng, 2, 3), randomTensor(rng, 2, 3)}, randomTensor(rng, 2, 3)},
		{"subtract", diffOp, []*tensor.Tensor{randomTensor(rng, 2, 3), randomTensor(rng, 2, 3)}, randomTensor(rng, 2, 3)},
		{"average", avg, []*tensor.Tensor{randomTensor(rng, 2, 3), randomTensor(rng, 2, 3)}, randomTensor(rng, 2, 3)},
		{"subset", sub, []*tensor.Tensor{randomTensor(rng, 2, 4)}, randomTensor(rng, 2, 2)},
		{"subset series", sub, []*tensor.Tensor{randomTensor(rng, 2, 4, 3)}, randomTensor(rng, 2, 2, 3)},
		{"last time step", &LastTimeStep{}, []*tensor.Tensor{randomTensor(rng, 2, 3, 4)}, randomTensor(rng, 2, 3)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			checkInputGradient(t, tt.l, tt.inputs, tt.eps)
		})
	}
}

func TestMerge_Forward(t *testing.T) {
	a := tensor.FromSlice([]float64{1, 2, 3, 4}, 2, 2)
	b := tensor.FromSlice([]float64{5, 6}, 2, 1)
	out, err := Merge{}.Forward([]*tensor.Tensor{a, b}, false)
	require.NoError(t, err)
	assert.Equal(t, tensor.Shape{2, 3}, out.Shape())
	assert.Equal(t, []float64{1, 2, 5, 3, 4, 6}, out.Data())
}

func TestLastTimeStep_Mask(t *testing.T) {
	x := tensor.Zeros(2, 1, 4)
	for s := 0; s < 4; s++ {
		x.Set(float64(s), 0, 0, s)
		x.Set(float64(10+s), 1, 0, s)
	}
	l := &LastTimeStep{}
	mask := tensor.FromSlice([]float64{1, 1, 0, 0, 1, 1, 1, 1}, 2, 4)
	out, st := l.CombineMasks([]*tensor.Tensor{mask}, layer.MaskActive, 2)
	assert.Nil(t, out)
	assert.Equal(t, layer.MaskActive, st)

	y, err := l.Forward([]*tensor.Tensor{x}, false)
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 13}, y.Data())
}

func TestMerge_CombineMasks(t *testing.T) {
	a := tensor.FromSlice([]float64{1, 0, 0}, 1, 3)
	b := tensor.FromSlice([]float64{0, 1, 0}, 1, 3)
	out, _ := Merge{}.CombineMasks([]*tensor.Tensor{a, nil, b}, layer.MaskActive, 1)
	assert.Equal(t, []float64{1, 1, 0}, out.Data())
	assert.Equal(t, []float64{1, 0, 0}, a.Data())
}

func TestFactory(t *testing.T) {
	f := NewFactory()
	tests := []struct {
		vc     config.VertexConfig
		params int
		desc   string
	}{
		{config.Dense(3, 4, "tanh"), 16, "Dense(3->4, tanh)"},
		{config.Output(4, 2, "softmax", "mcxent"), 10, "Output(4->2, softmax, mcxent)"},
		{config.SimpleRNN(2, 3, "tanh"), 6 + 9 + 3, "SimpleRNN(2->3, tanh)"},
		{config.ElementWiseMult(5, ""), 10, "ElementWiseMultiplication(5, identity)"},
		{config.AutoEncoder(4, 2, "sigmoid"), 14, "AutoEncoder(4->2, sigmoid)"},
		{config.Merge(), 0, "Merge"},
		{config.ElementWise("add"), 0, "ElementWise(add)"},
		{config.Subset(0, 1), 0, "Subset(0..1)"},
		{config.LastTimeStep(), 0, "LastTimeStep"},
		{config.Frozen(config.Dense(2, 2, "")), 6, "Frozen(Dense(2->2, identity))"},
	}
	for _, tt := range tests {
		t.Run(tt.desc, func(t *testing.T) {
			n, err := f.NumParams(tt.vc)
			require.NoError(t, err)
			assert.Equal(t, tt.params, n)

			_, view := newView(n)
			l, err := f.Instantiate(tt.vc, view, rand.New(rand.NewSource(1)))
			require.NoError(t, err)
			assert.Equal(t, tt.params, l.NumParams())
			assert.Equal(t, tt.desc, layer.CapabilitiesOf(l).Description)
		})
	}
}

func TestFactory_Errors(t *testing.T) {
	f := NewFactory()
	_, err := f.NumParams(config.VertexConfig{Name: "x", Type: "conv"})
	assert.Error(t, err)
	_, err = f.NumParams(config.VertexConfig{Name: "x", Type: config.TypeDense, NIn: 0, NOut: 2})
	assert.Error(t, err)

	_, view := newView(6)
	_, err = f.Instantiate(config.VertexConfig{Name: "x", Type: config.TypeDense, NIn: 2, NOut: 2, Activation: "gelu"}, view, nil)
	assert.Error(t, err)
}

func TestFactory_InitializeIsSeeded(t *testing.T) {
	f := NewFactory()
	vc := config.Dense(3, 3, "tanh")
	b1, v1 := newView(12)
	b2, v2 := newView(12)
	_, err := f.Instantiate(vc, v1, rand.New(rand.NewSource(42)))
	require.NoError(t, err)
	_, err = f.Instantiate(vc, v2, rand.New(rand.NewSource(42)))
	require.NoError(t, err)
	assert.Equal(t, b1.Snapshot(), b2.Snapshot())

	b3, v3 := newView(12)
	_, err = f.Instantiate(vc, v3, nil)
	require.NoError(t, err)
	assert.Equal(t, make([]float64, 12), b3.Snapshot())
}

func TestFrozen_ZeroGradients(t *testing.T) {
	rng := rand.New(rand.NewSource(12))
	_, view := newView(numAffine(2, 2))
	d, err := NewDense(2, 2, Tanh{}, view)
	require.NoError(t, err)
	d.Initialize(rng)
	f := NewFrozen(d)
	assert.True(t, layer.CapabilitiesOf(f).Frozen)

	grad, eps, err := f.Backward([]*tensor.Tensor{randomTensor(rng, 1, 2)}, randomTensor(rng, 1, 2))
	require.NoError(t, err)
	assert.Equal(t, 0.0, floats.Norm(grad.Flatten(), 2))
	assert.NotZero(t, floats.Norm(eps[0].Data(), 2))
}
