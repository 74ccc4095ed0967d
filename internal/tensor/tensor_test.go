package tensor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShape_NumElements(t *testing.T) {
	tests := []struct {
		name  string
		shape Shape
		want  int
	}{
		{"scalar", Shape{}, 1},
		{"vector", Shape{4}, 4},
		{"matrix", Shape{2, 3}, 6},
		{"series", Shape{2, 3, 5}, 30},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.shape.NumElements())
		})
	}
}

func TestShape_TimeLength(t *testing.T) {
	assert.Equal(t, 7, Shape{2, 3, 7}.TimeLength())
	assert.Equal(t, 0, Shape{2, 3}.TimeLength())
	assert.True(t, Shape{1, 1, 1}.IsTimeSeries())
}

func TestNew_LengthMismatch(t *testing.T) {
	_, err := New(Shape{2, 2}, []float64{1, 2, 3})
	require.Error(t, err)
}

func TestFromSlice_Copies(t *testing.T) {
	src := []float64{1, 2, 3, 4}
	x := FromSlice(src, 2, 2)
	src[0] = 99
	assert.Equal(t, 1.0, x.At(0, 0))

	w := Wrap(src, 2, 2)
	src[1] = 42
	assert.Equal(t, 42.0, w.At(0, 1))
}

func TestTensor_AtSet(t *testing.T) {
	x := Zeros(2, 3, 4)
	x.Set(5, 1, 2, 3)
	assert.Equal(t, 5.0, x.At(1, 2, 3))
	assert.Equal(t, 5.0, x.Data()[23])
	assert.Panics(t, func() { x.At(2, 0, 0) })
}

func TestTensor_Arithmetic(t *testing.T) {
	a := FromSlice([]float64{1, 2, 3}, 1, 3)
	b := FromSlice([]float64{10, 20, 30}, 1, 3)

	sum, err := a.Add(b)
	require.NoError(t, err)
	assert.Equal(t, []float64{11, 22, 33}, sum.Data())
	assert.Equal(t, []float64{1, 2, 3}, a.Data(), "Add must not mutate receiver")

	diff, err := b.Sub(a)
	require.NoError(t, err)
	assert.Equal(t, []float64{9, 18, 27}, diff.Data())

	require.NoError(t, a.AddInPlace(b))
	assert.Equal(t, []float64{11, 22, 33}, a.Data())

	doubled := a.Scale(2)
	assert.Equal(t, 132.0, doubled.Sum())
	assert.Equal(t, []float64{11, 22, 33}, a.Data(), "Scale must not mutate receiver")

	assert.Same(t, a, a.ScaleInPlace(2))
	assert.Equal(t, []float64{22, 44, 66}, a.Data())

	_, err = a.Add(Zeros(3, 1))
	assert.Error(t, err)
}

func TestTensor_EqualAndAllClose(t *testing.T) {
	a := FromSlice([]float64{1, 2}, 2, 1)
	b := FromSlice([]float64{1, 2 + 1e-12}, 2, 1)
	assert.False(t, a.Equal(b))
	assert.True(t, a.AllClose(b, 1e-9))
	assert.False(t, a.AllClose(FromSlice([]float64{1, 2}, 1, 2), 1e-9))
}

func TestTensor_Matrix(t *testing.T) {
	x := FromSlice([]float64{1, 2, 3, 4, 5, 6}, 2, 3)
	m := x.Matrix()
	m.Set(1, 2, 60)
	assert.Equal(t, 60.0, x.At(1, 2))

	back := FromMatrix(m)
	assert.True(t, back.Equal(x))
}

func TestTensor_SliceTime(t *testing.T) {
	// [mb=2, size=2, T=5] with value = 100*b + 10*f + t
	x := Zeros(2, 2, 5)
	for b := 0; b < 2; b++ {
		for f := 0; f < 2; f++ {
			for s := 0; s < 5; s++ {
				x.Set(float64(100*b+10*f+s), b, f, s)
			}
		}
	}

	w, err := x.SliceTime(3, 5)
	require.NoError(t, err)
	assert.Equal(t, Shape{2, 2, 2}, w.Shape())
	assert.Equal(t, 113.0, w.At(1, 1, 0))
	assert.Equal(t, 114.0, w.At(1, 1, 1))

	_, err = x.SliceTime(4, 6)
	assert.Error(t, err)

	mask := FromSlice([]float64{1, 1, 1, 0, 0, 1, 1, 1, 1, 1}, 2, 5)
	mw, err := mask.SliceTime(2, 4)
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 0, 1, 1}, mw.Data())
}

func TestTensor_RowsRoundTrip(t *testing.T) {
	x := Zeros(2, 3, 4)
	for i := range x.Data() {
		x.Data()[i] = float64(i)
	}
	rows := x.ToRows()
	assert.Equal(t, Shape{8, 3}, rows.Shape())
	assert.Equal(t, x.At(1, 2, 3), rows.At(1*4+3, 2))
	assert.True(t, FromRows(rows, 2, 4).Equal(x))

	assert.PanicsWithValue(t, "tensor.ToRows: need rank 3, got shape [2 3]", func() {
		Zeros(2, 3).ToRows()
	})
}

func TestTensor_TimeStep(t *testing.T) {
	x := Zeros(2, 3, 4)
	step := FromSlice([]float64{1, 2, 3, 4, 5, 6}, 2, 3)
	x.SetTimeStep(2, step)
	assert.True(t, x.TimeStep(2).Equal(step))
	assert.Equal(t, 0.0, x.TimeStep(1).Sum())
}

func TestTensor_SliceFeatures(t *testing.T) {
	x := FromSlice([]float64{1, 2, 3, 4, 5, 6}, 2, 3)
	s, err := x.SliceFeatures(1, 3)
	require.NoError(t, err)
	assert.Equal(t, []float64{2, 3, 5, 6}, s.Data())

	series := Zeros(1, 3, 2)
	series.Set(7, 0, 2, 1)
	ss, err := series.SliceFeatures(2, 3)
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 7}, ss.Data())
}
