// Package tokenizer turns training text into integer token sequences.
//
// Two tokenizers are provided:
//   - CharTokenizer: one token per rune, vocabulary built from a corpus
//   - TikToken: BPE encodings from pkoukk/tiktoken-go (cl100k_base, p50k_base, r50k_base)
//
// Example usage:
//
//	tok := tokenizer.NewCharTokenizer(text)
//	ids, err := tok.Encode("hello")
//	if err != nil {
//	    return err
//	}
//	back, err := tok.Decode(ids)
package tokenizer
