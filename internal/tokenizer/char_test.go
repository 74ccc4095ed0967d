package tokenizer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCharTokenizer_Vocabulary(t *testing.T) {
	tok := NewCharTokenizer("hello world")

	// ' ' d e h l o r w
	assert.Equal(t, 8, tok.VocabSize())
	assert.Equal(t, CharName, tok.Name())

	ids, err := tok.Encode("hello")
	require.NoError(t, err)
	assert.Equal(t, []int32{3, 2, 4, 4, 5}, ids)
}

func TestCharTokenizer_Roundtrip(t *testing.T) {
	corpus := "The quick brown fox, 世界!"
	tok := NewCharTokenizer(corpus)

	ids, err := tok.Encode(corpus)
	require.NoError(t, err)
	assert.Len(t, ids, len([]rune(corpus)))

	back, err := tok.Decode(ids)
	require.NoError(t, err)
	assert.Equal(t, corpus, back)
}

func TestCharTokenizer_Errors(t *testing.T) {
	tok := NewCharTokenizer("abc")

	_, err := tok.Encode("abd")
	assert.Error(t, err)

	_, err = tok.Decode([]int32{0, 3})
	assert.Error(t, err)

	_, err = tok.Decode([]int32{-1})
	assert.Error(t, err)
}

func TestNew(t *testing.T) {
	tok, err := New(CharName, "abc")
	require.NoError(t, err)
	assert.Equal(t, 3, tok.VocabSize())

	tok, err = New("", "xy")
	require.NoError(t, err)
	assert.Equal(t, CharName, tok.Name())

	_, err = New(CharName, "")
	assert.Error(t, err)
}
