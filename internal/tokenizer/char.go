package tokenizer

import (
	"fmt"
	"sort"
	"strings"
)

// CharName is the name of the character tokenizer.
const CharName = "char"

// CharTokenizer maps each distinct rune of a corpus to a token ID. IDs are
// assigned in rune order, so the same corpus always yields the same
// vocabulary.
type CharTokenizer struct {
	runes []rune
	ids   map[rune]int32
}

// NewCharTokenizer builds the vocabulary of corpus.
func NewCharTokenizer(corpus string) *CharTokenizer {
	seen := make(map[rune]struct{})
	for _, r := range corpus {
		seen[r] = struct{}{}
	}
	runes := make([]rune, 0, len(seen))
	for r := range seen {
		runes = append(runes, r)
	}
	sort.Slice(runes, func(i, j int) bool { return runes[i] < runes[j] })

	ids := make(map[rune]int32, len(runes))
	for i, r := range runes {
		ids[r] = int32(i) //nolint:gosec // G115: vocabulary is bounded by the rune range.
	}
	return &CharTokenizer{runes: runes, ids: ids}
}

// Encode converts text to token IDs. Runes outside the vocabulary are an error.
func (c *CharTokenizer) Encode(text string) ([]int32, error) {
	out := make([]int32, 0, len(text))
	for i, r := range text {
		id, ok := c.ids[r]
		if !ok {
			return nil, fmt.Errorf("rune %q at byte %d is not in the vocabulary", r, i)
		}
		out = append(out, id)
	}
	return out, nil
}

// Decode converts token IDs back to text.
func (c *CharTokenizer) Decode(tokens []int32) (string, error) {
	var b strings.Builder
	for _, id := range tokens {
		if id < 0 || int(id) >= len(c.runes) {
			return "", fmt.Errorf("token %d out of range [0, %d)", id, len(c.runes))
		}
		b.WriteRune(c.runes[id])
	}
	return b.String(), nil
}

// VocabSize returns the number of distinct runes.
func (c *CharTokenizer) VocabSize() int { return len(c.runes) }

// Name returns "char".
func (c *CharTokenizer) Name() string { return CharName }
