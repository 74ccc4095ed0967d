package tokenizer

import "fmt"

// Tokenizer converts between text and token IDs.
type Tokenizer interface {
	// Encode converts text to token IDs.
	Encode(text string) ([]int32, error)

	// Decode converts token IDs back to text.
	Decode(tokens []int32) (string, error)

	// VocabSize returns the total vocabulary size.
	VocabSize() int

	// Name identifies the tokenizer in logs and summaries.
	Name() string
}

// New returns the tokenizer for name: "char" builds a character
// vocabulary from corpus, anything else is loaded as a tiktoken encoding.
func New(name, corpus string) (Tokenizer, error) {
	if name == "" || name == CharName {
		if corpus == "" {
			return nil, fmt.Errorf("character tokenizer needs a corpus")
		}
		return NewCharTokenizer(corpus), nil
	}
	return NewTikToken(name)
}
