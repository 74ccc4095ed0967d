// Package eval accumulates evaluation statistics over network outputs.
package eval

import (
	"fmt"
	"math"
	"strings"

	"github.com/born-ml/dagnet/internal/parallel"
	"github.com/born-ml/dagnet/internal/tensor"
)

// Metric accumulates statistics batch by batch. mask may be nil; otherwise
// it is [minibatch, 1] for rank-2 data or [minibatch, time] for rank-3 data,
// and zero entries are skipped.
type Metric interface {
	Accumulate(labels, predictions, mask *tensor.Tensor) error
	Reset()
	String() string
}

// Regression tracks per-column error statistics.
type Regression struct {
	columns int
	count   []float64
	sumSq   []float64 // squared error
	sumAbs  []float64
	sumY    []float64
	sumYY   []float64
	cfg     parallel.Config
}

// NewRegression returns an empty regression metric. The column count is
// fixed by the first batch.
func NewRegression() *Regression {
	return &Regression{cfg: parallel.WithMinChunk(4)}
}

// rows flattens labels, predictions and mask into aligned row-major form.
func rows(labels, predictions, mask *tensor.Tensor) (y, p *tensor.Tensor, w []float64, err error) {
	if !labels.SameShape(predictions) {
		return nil, nil, nil, fmt.Errorf("eval: labels %v and predictions %v differ in shape",
			labels.Shape(), predictions.Shape())
	}
	switch labels.Rank() {
	case 2:
		y, p = labels, predictions
	case 3:
		y, p = labels.ToRows(), predictions.ToRows()
	default:
		return nil, nil, nil, fmt.Errorf("eval: rank %d data not supported", labels.Rank())
	}
	if mask == nil {
		return y, p, nil, nil
	}
	w = mask.MaskRows()
	if len(w) != y.Dim(0) {
		return nil, nil, nil, fmt.Errorf("eval: mask %v does not match %d rows", mask.Shape(), y.Dim(0))
	}
	return y, p, w, nil
}

// Accumulate implements Metric.
func (r *Regression) Accumulate(labels, predictions, mask *tensor.Tensor) error {
	y, p, w, err := rows(labels, predictions, mask)
	if err != nil {
		return err
	}
	n, cols := y.Dim(0), y.Dim(1)
	if r.columns == 0 {
		r.columns = cols
		r.count = make([]float64, cols)
		r.sumSq = make([]float64, cols)
		r.sumAbs = make([]float64, cols)
		r.sumY = make([]float64, cols)
		r.sumYY = make([]float64, cols)
	} else if cols != r.columns {
		return fmt.Errorf("eval: %d columns, metric holds %d", cols, r.columns)
	}

	yd, pd := y.Data(), p.Data()
	parallel.For(cols, func(c int) {
		for i := 0; i < n; i++ {
			if w != nil && w[i] == 0 {
				continue
			}
			lv, pv := yd[i*cols+c], pd[i*cols+c]
			d := pv - lv
			r.count[c]++
			r.sumSq[c] += d * d
			r.sumAbs[c] += math.Abs(d)
			r.sumY[c] += lv
			r.sumYY[c] += lv * lv
		}
	}, r.cfg)
	return nil
}

// Reset clears all statistics.
func (r *Regression) Reset() {
	*r = Regression{cfg: r.cfg}
}

// Columns returns the number of columns seen.
func (r *Regression) Columns() int { return r.columns }

// Count returns the number of values accumulated for column c.
func (r *Regression) Count(c int) float64 { return r.count[c] }

// MSE returns the mean squared error of column c.
func (r *Regression) MSE(c int) float64 { return r.sumSq[c] / r.count[c] }

// MAE returns the mean absolute error of column c.
func (r *Regression) MAE(c int) float64 { return r.sumAbs[c] / r.count[c] }

// RMSE returns the root mean squared error of column c.
func (r *Regression) RMSE(c int) float64 { return math.Sqrt(r.MSE(c)) }

// RSquared returns the coefficient of determination of column c.
func (r *Regression) RSquared(c int) float64 {
	mean := r.sumY[c] / r.count[c]
	ssTot := r.sumYY[c] - r.count[c]*mean*mean
	return 1 - r.sumSq[c]/ssTot
}

// AverageMSE averages MSE over columns.
func (r *Regression) AverageMSE() float64 {
	if r.columns == 0 {
		return math.NaN()
	}
	s := 0.0
	for c := 0; c < r.columns; c++ {
		s += r.MSE(c)
	}
	return s / float64(r.columns)
}

// String implements Metric.
func (r *Regression) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%-8s %12s %12s %12s %12s\n", "column", "MSE", "MAE", "RMSE", "R^2")
	for c := 0; c < r.columns; c++ {
		fmt.Fprintf(&b, "%-8d %12.6g %12.6g %12.6g %12.6g\n", c, r.MSE(c), r.MAE(c), r.RMSE(c), r.RSquared(c))
	}
	return b.String()
}
