// Package tokenizer converts between text and the token ids the model
// consumes.
//
// Two implementations ship:
//   - ByteTokenizer: self-contained byte-level vocabulary (4 special ids
//     followed by the 256 byte values), used for training from raw text
//   - TikToken: OpenAI BPE encodings (cl100k_base, p50k_base, r50k_base)
//     via github.com/pkoukk/tiktoken-go
//
// Example usage:
//
//	tok, err := tokenizer.Load("byte")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	ids, err := tok.Encode("Hello, world!")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	text, err := tok.Decode(ids)
package tokenizer
