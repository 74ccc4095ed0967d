package data

import (
	"context"
	"io"
)

// DefaultQueueSize is the number of batches an AsyncIterator prefetches.
const DefaultQueueSize = 2

type prefetched struct {
	ds  *MultiDataSet
	err error
}

// AsyncIterator prefetches batches from a source iterator on one goroutine.
// Batches are handed over fully built; the consumer never shares a batch
// with the producer. Call Stop when done to release the goroutine.
type AsyncIterator struct {
	src    Iterator
	parent context.Context
	size   int

	cancel context.CancelFunc
	ch     chan prefetched
	done   chan struct{}
}

// NewAsyncIterator starts prefetching from src. The producer stops when ctx
// is cancelled.
func NewAsyncIterator(ctx context.Context, src Iterator, queueSize int) *AsyncIterator {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	a := &AsyncIterator{src: src, parent: ctx, size: queueSize}
	a.start()
	return a
}

func (a *AsyncIterator) start() {
	ctx, cancel := context.WithCancel(a.parent)
	ch := make(chan prefetched, a.size)
	done := make(chan struct{})
	a.cancel, a.ch, a.done = cancel, ch, done

	go func() {
		defer close(done)
		defer close(ch)
		for {
			ds, err := a.src.Next()
			select {
			case ch <- prefetched{ds: ds, err: err}:
			case <-ctx.Done():
				return
			}
			if err != nil {
				return
			}
		}
	}()
}

// Next implements Iterator. It returns the context error once the parent
// context is cancelled.
func (a *AsyncIterator) Next() (*MultiDataSet, error) {
	r, ok := <-a.ch
	if !ok {
		if err := a.parent.Err(); err != nil {
			return nil, err
		}
		return nil, io.EOF
	}
	return r.ds, r.err
}

// Stop cancels prefetching and waits for the producer to exit.
func (a *AsyncIterator) Stop() {
	a.cancel()
	<-a.done
}

// Reset stops the producer, rewinds the source and starts again.
func (a *AsyncIterator) Reset() error {
	a.Stop()
	if err := a.src.Reset(); err != nil {
		return err
	}
	a.start()
	return nil
}

func (a *AsyncIterator) ResetSupported() bool { return a.src.ResetSupported() }

// AsyncSupported is false: the iterator is already asynchronous.
func (a *AsyncIterator) AsyncSupported() bool { return false }
