package eval

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/dagnet/internal/tensor"
)

func TestRegression(t *testing.T) {
	r := NewRegression()
	labels := tensor.FromSlice([]float64{1, 0, 2, 0, 3, 0}, 3, 2)
	preds := tensor.FromSlice([]float64{1, 1, 3, 1, 1, 1}, 3, 2)
	require.NoError(t, r.Accumulate(labels, preds, nil))

	assert.Equal(t, 2, r.Columns())
	// Column 0 errors: 0, 1, -2.
	assert.InDelta(t, 5.0/3, r.MSE(0), 1e-12)
	assert.InDelta(t, 1.0, r.MAE(0), 1e-12)
	// Labels 1,2,3: mean 2, total sum of squares 2.
	assert.InDelta(t, 1-5.0/2, r.RSquared(0), 1e-12)
	assert.InDelta(t, 1.0, r.MSE(1), 1e-12)
	assert.InDelta(t, (5.0/3+1)/2, r.AverageMSE(), 1e-12)
	assert.Contains(t, r.String(), "MSE")

	r.Reset()
	assert.Equal(t, 0, r.Columns())
}

func TestRegression_Masked(t *testing.T) {
	r := NewRegression()
	// [minibatch 2, size 1, time 2]
	labels := tensor.FromSlice([]float64{1, 2, 3, 4}, 2, 1, 2)
	preds := tensor.FromSlice([]float64{1, 9, 5, 4}, 2, 1, 2)
	mask := tensor.FromSlice([]float64{1, 0, 1, 1}, 2, 2)
	require.NoError(t, r.Accumulate(labels, preds, mask))

	assert.Equal(t, 3.0, r.Count(0))
	assert.InDelta(t, 4.0/3, r.MSE(0), 1e-12)
}

func TestRegression_Errors(t *testing.T) {
	r := NewRegression()
	assert.Error(t, r.Accumulate(tensor.Zeros(2, 2), tensor.Zeros(2, 3), nil))
	assert.Error(t, r.Accumulate(tensor.Zeros(2), tensor.Zeros(2), nil))
	assert.Error(t, r.Accumulate(tensor.Zeros(2, 2), tensor.Zeros(2, 2), tensor.Zeros(3, 1)))

	require.NoError(t, r.Accumulate(tensor.Zeros(2, 2), tensor.Zeros(2, 2), nil))
	assert.Error(t, r.Accumulate(tensor.Zeros(2, 3), tensor.Zeros(2, 3), nil))
}
