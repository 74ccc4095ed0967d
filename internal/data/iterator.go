package data

import "io"

// Iterator yields minibatches. Next returns io.EOF after the last batch.
type Iterator interface {
	Next() (*MultiDataSet, error)

	// Reset rewinds to the first batch. Only valid when ResetSupported.
	Reset() error
	ResetSupported() bool

	// AsyncSupported reports whether batches may be prefetched on another
	// goroutine.
	AsyncSupported() bool
}

// SliceIterator iterates over batches held in memory.
type SliceIterator struct {
	batches []*MultiDataSet
	pos     int
}

// NewSliceIterator returns an iterator over batches.
func NewSliceIterator(batches ...*MultiDataSet) *SliceIterator {
	return &SliceIterator{batches: batches}
}

// Next implements Iterator.
func (it *SliceIterator) Next() (*MultiDataSet, error) {
	if it.pos >= len(it.batches) {
		return nil, io.EOF
	}
	ds := it.batches[it.pos]
	it.pos++
	return ds, nil
}

// Reset implements Iterator.
func (it *SliceIterator) Reset() error {
	it.pos = 0
	return nil
}

func (it *SliceIterator) ResetSupported() bool { return true }
func (it *SliceIterator) AsyncSupported() bool { return true }
