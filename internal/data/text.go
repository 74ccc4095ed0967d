package data

import (
	"fmt"
	"io"
	"math/rand"

	"github.com/born-ml/dagnet/internal/parallel"
	"github.com/born-ml/dagnet/internal/tensor"
	"github.com/born-ml/dagnet/internal/tokenizer"
)

// TextIterator cuts tokenized text into fixed-length sequences for
// next-token prediction. Features and labels are one-hot
// [minibatch, vocab, time] tensors; labels are the features shifted one
// step ahead.
//
// The vocabulary holds only the token IDs that occur in the text, in order
// of first occurrence, so BPE tokenizers do not blow up the network width.
type TextIterator struct {
	tok     tokenizer.Tokenizer
	ids     []int // dense index per token
	vocab   []int32
	seqLen  int
	batch   int
	order   []int // example start offsets in iteration order
	cursor  int
	shuffle *rand.Rand
	cfg     parallel.Config
}

// TextOptions configure a TextIterator.
type TextOptions struct {
	SeqLen    int
	BatchSize int
	// Seed shuffles the example order on every Reset when non-zero.
	Seed int64
}

// NewTextIterator tokenizes text with tok.
func NewTextIterator(tok tokenizer.Tokenizer, text string, opts TextOptions) (*TextIterator, error) {
	if opts.SeqLen < 1 || opts.BatchSize < 1 {
		return nil, fmt.Errorf("text iterator: sequence length and batch size must be positive, got %d and %d",
			opts.SeqLen, opts.BatchSize)
	}
	tokens, err := tok.Encode(text)
	if err != nil {
		return nil, fmt.Errorf("text iterator: encode: %w", err)
	}
	if len(tokens) < opts.SeqLen+1 {
		return nil, fmt.Errorf("text iterator: %d tokens cannot fill one sequence of %d", len(tokens), opts.SeqLen)
	}

	it := &TextIterator{
		tok:    tok,
		ids:    make([]int, len(tokens)),
		seqLen: opts.SeqLen,
		batch:  opts.BatchSize,
		cfg:    parallel.WithMinChunk(8),
	}
	index := make(map[int32]int)
	for i, t := range tokens {
		d, ok := index[t]
		if !ok {
			d = len(it.vocab)
			index[t] = d
			it.vocab = append(it.vocab, t)
		}
		it.ids[i] = d
	}

	n := (len(tokens) - 1) / opts.SeqLen
	it.order = make([]int, n)
	for i := range it.order {
		it.order[i] = i * opts.SeqLen
	}
	if opts.Seed != 0 {
		it.shuffle = rand.New(rand.NewSource(opts.Seed))
		it.shuffleOrder()
	}
	return it, nil
}

// VocabSize returns the number of distinct tokens in the text.
func (it *TextIterator) VocabSize() int { return len(it.vocab) }

// NumExamples returns the number of sequences per epoch.
func (it *TextIterator) NumExamples() int { return len(it.order) }

// Decode maps dense indices back to text.
func (it *TextIterator) Decode(indices []int) (string, error) {
	ids := make([]int32, len(indices))
	for i, d := range indices {
		if d < 0 || d >= len(it.vocab) {
			return "", fmt.Errorf("text iterator: index %d out of range [0, %d)", d, len(it.vocab))
		}
		ids[i] = it.vocab[d]
	}
	return it.tok.Decode(ids)
}

// Next implements Iterator.
func (it *TextIterator) Next() (*MultiDataSet, error) {
	if it.cursor >= len(it.order) {
		return nil, io.EOF
	}
	mb := min(it.batch, len(it.order)-it.cursor)
	starts := it.order[it.cursor : it.cursor+mb]
	it.cursor += mb

	v, T := len(it.vocab), it.seqLen
	features := tensor.Zeros(mb, v, T)
	labels := tensor.Zeros(mb, v, T)
	fd, ld := features.Data(), labels.Data()
	parallel.For(mb, func(b int) {
		start := starts[b]
		for s := 0; s < T; s++ {
			fd[(b*v+it.ids[start+s])*T+s] = 1
			ld[(b*v+it.ids[start+s+1])*T+s] = 1
		}
	}, it.cfg)
	return NewMultiDataSet([]*tensor.Tensor{features}, []*tensor.Tensor{labels}), nil
}

// Reset implements Iterator.
func (it *TextIterator) Reset() error {
	it.cursor = 0
	if it.shuffle != nil {
		it.shuffleOrder()
	}
	return nil
}

func (it *TextIterator) shuffleOrder() {
	it.shuffle.Shuffle(len(it.order), func(i, j int) {
		it.order[i], it.order[j] = it.order[j], it.order[i]
	})
}

func (it *TextIterator) ResetSupported() bool { return true }
func (it *TextIterator) AsyncSupported() bool { return true }
