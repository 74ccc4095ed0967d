package tensor

import "fmt"

// SliceTime copies the [start, end) time range of a rank-3 [minibatch, size, time]
// tensor into a new tensor. Rank-2 [minibatch, time] masks are sliced along
// their second dimension.
func (t *Tensor) SliceTime(start, end int) (*Tensor, error) {
	if end <= start {
		return nil, fmt.Errorf("tensor: empty time range [%d, %d)", start, end)
	}
	shape := t.shape.Clone()
	if len(shape) < 2 || len(shape) > 3 {
		return nil, fmt.Errorf("tensor: cannot slice time of rank-%d tensor", len(t.shape))
	}
	shape[len(shape)-1] = end - start
	out := Zeros(shape...)
	if err := t.SliceTimeInto(out, start); err != nil {
		return nil, err
	}
	return out, nil
}

// SliceTimeInto fills dst with the time steps [start, start+w) of t, where w
// is the time length of dst. dst must match t in every other dimension.
func (t *Tensor) SliceTimeInto(dst *Tensor, start int) error {
	rank := len(t.shape)
	if (rank != 2 && rank != 3) || len(dst.shape) != rank {
		return fmt.Errorf("tensor: cannot slice time of %v into %v", t.shape, dst.shape)
	}
	for i := 0; i < rank-1; i++ {
		if t.shape[i] != dst.shape[i] {
			return fmt.Errorf("tensor: cannot slice time of %v into %v", t.shape, dst.shape)
		}
	}
	T, w := t.shape[rank-1], dst.shape[rank-1]
	if start < 0 || start+w > T || w == 0 {
		return fmt.Errorf("tensor: time range [%d, %d) out of bounds for length %d", start, start+w, T)
	}
	rows := len(t.data) / T
	for r := 0; r < rows; r++ {
		copy(dst.data[r*w:(r+1)*w], t.data[r*T+start:r*T+start+w])
	}
	return nil
}

// SliceColumns copies columns [start, end) of a rank-2 tensor.
func (t *Tensor) SliceColumns(start, end int) (*Tensor, error) {
	if len(t.shape) != 2 {
		return nil, fmt.Errorf("tensor: SliceColumns needs rank 2, got %v", t.shape)
	}
	rows, cols := t.shape[0], t.shape[1]
	if start < 0 || end > cols || start >= end {
		return nil, fmt.Errorf("tensor: column range [%d, %d) out of bounds for %d columns", start, end, cols)
	}
	w := end - start
	out := Zeros(rows, w)
	for r := 0; r < rows; r++ {
		copy(out.data[r*w:(r+1)*w], t.data[r*cols+start:r*cols+end])
	}
	return out, nil
}

// SliceFeatures copies features [start, end) of a rank-2 [minibatch, size] or
// rank-3 [minibatch, size, time] tensor.
func (t *Tensor) SliceFeatures(start, end int) (*Tensor, error) {
	if len(t.shape) == 2 {
		return t.SliceColumns(start, end)
	}
	if len(t.shape) != 3 {
		return nil, fmt.Errorf("tensor: cannot slice features of shape %v", t.shape)
	}
	mb, size, T := t.shape[0], t.shape[1], t.shape[2]
	if start < 0 || end > size || start >= end {
		return nil, fmt.Errorf("tensor: feature range [%d, %d) out of bounds for size %d", start, end, size)
	}
	w := end - start
	out := Zeros(mb, w, T)
	for b := 0; b < mb; b++ {
		src := (b*size + start) * T
		copy(out.data[b*w*T:(b+1)*w*T], t.data[src:src+w*T])
	}
	return out, nil
}

// TimeStep copies time step ts of a rank-3 tensor into a [minibatch, size] tensor.
func (t *Tensor) TimeStep(ts int) *Tensor {
	mb, size, T := t.shape[0], t.shape[1], t.shape[2]
	out := Zeros(mb, size)
	for b := 0; b < mb; b++ {
		for f := 0; f < size; f++ {
			out.data[b*size+f] = t.data[(b*size+f)*T+ts]
		}
	}
	return out
}

// SetTimeStep writes a [minibatch, size] tensor into time step ts of a rank-3 tensor.
func (t *Tensor) SetTimeStep(ts int, src *Tensor) {
	mb, size, T := t.shape[0], t.shape[1], t.shape[2]
	for b := 0; b < mb; b++ {
		for f := 0; f < size; f++ {
			t.data[(b*size+f)*T+ts] = src.data[b*size+f]
		}
	}
}

// ToRows flattens a rank-3 [minibatch, size, time] tensor into a
// [minibatch*time, size] matrix with row index b*time+t.
//
// Panics if t is not rank 3.
func (t *Tensor) ToRows() *Tensor {
	if len(t.shape) != 3 {
		panic(fmt.Sprintf("tensor.ToRows: need rank 3, got shape %v", t.shape))
	}
	mb, size, T := t.shape[0], t.shape[1], t.shape[2]
	out := Zeros(mb*T, size)
	for b := 0; b < mb; b++ {
		for f := 0; f < size; f++ {
			for s := 0; s < T; s++ {
				out.data[(b*T+s)*size+f] = t.data[(b*size+f)*T+s]
			}
		}
	}
	return out
}

// FromRows is the inverse of ToRows.
func FromRows(rows *Tensor, minibatch, time int) *Tensor {
	size := rows.shape[1]
	out := Zeros(minibatch, size, time)
	for b := 0; b < minibatch; b++ {
		for f := 0; f < size; f++ {
			for s := 0; s < time; s++ {
				out.data[(b*size+f)*time+s] = rows.data[(b*time+s)*size+f]
			}
		}
	}
	return out
}

// MaskRows flattens a [minibatch, time] mask into a [minibatch*time] column
// aligned with ToRows.
func (t *Tensor) MaskRows() []float64 {
	out := make([]float64, len(t.data))
	copy(out, t.data)
	return out
}
