package data

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/dagnet/internal/tensor"
	"github.com/born-ml/dagnet/internal/tokenizer"
)

func batch(mb int) *MultiDataSet {
	return NewMultiDataSet(
		[]*tensor.Tensor{tensor.Zeros(mb, 3)},
		[]*tensor.Tensor{tensor.Zeros(mb, 2)},
	)
}

func drain(t *testing.T, it Iterator) []*MultiDataSet {
	t.Helper()
	var out []*MultiDataSet
	for {
		ds, err := it.Next()
		if errors.Is(err, io.EOF) {
			return out
		}
		require.NoError(t, err)
		out = append(out, ds)
	}
}

func TestMultiDataSet(t *testing.T) {
	ds := batch(4)
	assert.Equal(t, 4, ds.NumExamples())
	assert.False(t, ds.HasMasks())
	require.NoError(t, ds.Validate())

	ds.LabelMasks = []*tensor.Tensor{nil}
	assert.False(t, ds.HasMasks())
	ds.LabelMasks = []*tensor.Tensor{tensor.Full(1, 4, 1)}
	assert.True(t, ds.HasMasks())

	ds.Labels = []*tensor.Tensor{tensor.Zeros(3, 2)}
	assert.Error(t, ds.Validate())

	assert.Error(t, (&MultiDataSet{}).Validate())
}

func TestSliceIterator(t *testing.T) {
	a, b := batch(2), batch(3)
	it := NewSliceIterator(a, b)

	got := drain(t, it)
	assert.Equal(t, []*MultiDataSet{a, b}, got)

	require.NoError(t, it.Reset())
	got = drain(t, it)
	assert.Len(t, got, 2)
}

func TestAsyncIterator(t *testing.T) {
	batches := []*MultiDataSet{batch(1), batch(2), batch(3)}
	it := NewAsyncIterator(context.Background(), NewSliceIterator(batches...), 1)
	defer it.Stop()

	assert.Equal(t, batches, drain(t, it))
	assert.False(t, it.AsyncSupported())
	assert.True(t, it.ResetSupported())

	require.NoError(t, it.Reset())
	assert.Equal(t, batches, drain(t, it))
}

func TestAsyncIterator_Cancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	it := NewAsyncIterator(ctx, NewSliceIterator(batch(1), batch(1), batch(1), batch(1)), 1)
	cancel()
	it.Stop()

	var err error
	for err == nil {
		_, err = it.Next()
	}
	assert.ErrorIs(t, err, context.Canceled)
}

func TestTextIterator(t *testing.T) {
	tok := tokenizer.NewCharTokenizer("abcab")
	it, err := NewTextIterator(tok, "abcabcabc", TextOptions{SeqLen: 3, BatchSize: 2})
	require.NoError(t, err)

	assert.Equal(t, 3, it.VocabSize())
	// 9 tokens hold (9-1)/3 = 2 full sequences.
	assert.Equal(t, 2, it.NumExamples())

	ds, err := it.Next()
	require.NoError(t, err)
	f, l := ds.Features[0], ds.Labels[0]
	assert.Equal(t, tensor.Shape{2, 3, 3}, f.Shape())

	// Example 0: features "abc", labels "bca".
	for s, want := range []int{0, 1, 2} {
		assert.Equal(t, 1.0, f.At(0, want, s))
	}
	for s, want := range []int{1, 2, 0} {
		assert.Equal(t, 1.0, l.At(0, want, s))
	}
	// Every time step is one-hot.
	assert.InDelta(t, float64(2*3), f.Sum(), 1e-12)
	assert.InDelta(t, float64(2*3), l.Sum(), 1e-12)

	_, err = it.Next()
	assert.ErrorIs(t, err, io.EOF)

	text, err := it.Decode([]int{0, 1, 2})
	require.NoError(t, err)
	assert.Equal(t, "abc", text)
	_, err = it.Decode([]int{3})
	assert.Error(t, err)
}

func TestTextIterator_ShuffleIsPermutation(t *testing.T) {
	text := "abcdefghijklmnopqrstuvwxyz"
	tok := tokenizer.NewCharTokenizer(text)
	it, err := NewTextIterator(tok, text, TextOptions{SeqLen: 2, BatchSize: 4, Seed: 7})
	require.NoError(t, err)

	seen := map[int]bool{}
	for _, s := range it.order {
		seen[s] = true
	}
	assert.Len(t, seen, it.NumExamples())
	require.NoError(t, it.Reset())
	assert.Len(t, drain(t, it), 3) // 12 examples in batches of 4
}

func TestTextIterator_Errors(t *testing.T) {
	tok := tokenizer.NewCharTokenizer("ab")
	_, err := NewTextIterator(tok, "ab", TextOptions{SeqLen: 2, BatchSize: 1})
	assert.Error(t, err)
	_, err = NewTextIterator(tok, "abab", TextOptions{SeqLen: 0, BatchSize: 1})
	assert.Error(t, err)
	_, err = NewTextIterator(tok, "abz", TextOptions{SeqLen: 1, BatchSize: 1})
	assert.Error(t, err)
}
