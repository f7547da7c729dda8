// Package llm is the forwarding boundary to the note-generation model.
// The controller hands it already-scrubbed text; prompt bodies and
// response post-processing belong to the caller.
package llm

import (
	"context"

	"github.com/pkoukk/tiktoken-go"
)

// Provider sends scrubbed text to a language model and returns the raw
// completion.
type Provider interface {
	// Complete sends one system/user exchange and returns the model's
	// text response.
	Complete(ctx context.Context, system, user string) (string, error)

	// Model returns the model name in use.
	Model() string
}

// TruncateTokens bounds text to at most max tokens, measuring with the
// cl100k_base encoding. On any tokenizer failure the text is returned
// unchanged; the remote endpoint enforces its own limit anyway.
func TruncateTokens(text string, max int) string {
	if max <= 0 {
		return text
	}
	enc, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		return text
	}
	tokens := enc.Encode(text, nil, nil)
	if len(tokens) <= max {
		return text
	}
	return enc.Decode(tokens[:max])
}
