// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package tokenizer turns training text into token IDs for dagnet text
// iterators.
//
// Supported tokenizers:
//   - Char: one token per distinct character of a corpus
//   - TikToken: OpenAI BPE encodings (cl100k_base, p50k_base, r50k_base)
//
// Example usage:
//
//	import "github.com/born-ml/dagnet/tokenizer"
//
//	tok, err := tokenizer.New("char", corpus)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	tokens, err := tok.Encode("Hello, world!")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	text, err := tok.Decode(tokens)
package tokenizer

import (
	"github.com/born-ml/dagnet/internal/tokenizer"
)

// Tokenizer is the core interface for text tokenization.
//
// All tokenizer implementations must implement this interface.
type Tokenizer = tokenizer.Tokenizer

// CharName selects the character tokenizer in New.
const CharName = tokenizer.CharName

// New returns the character tokenizer for "char" (built from corpus) and
// the named tiktoken encoding otherwise.
func New(name, corpus string) (Tokenizer, error) {
	return tokenizer.New(name, corpus)
}

// NewChar builds a character vocabulary from corpus in order of first
// occurrence.
func NewChar(corpus string) Tokenizer {
	return tokenizer.NewCharTokenizer(corpus)
}

// NewTikToken creates a new TikToken tokenizer with the specified encoding.
//
// Supported encodings: "cl100k_base" (GPT-4), "p50k_base" (GPT-3).
func NewTikToken(encodingName string) (Tokenizer, error) {
	return tokenizer.NewTikToken(encodingName)
}
