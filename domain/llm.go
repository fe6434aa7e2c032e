package domain

import (
	"context"
	"errors"
)

// ErrMalformedResponse is returned by an Llm when the provider answered but
// the payload carries no usable text.
var ErrMalformedResponse = errors.New("llm response is missing generated text")

// Llm abstracts any text generation provider.
type Llm interface {
	// Generate sends a single stateless prompt and returns the model's reply.
	Generate(ctx context.Context, prompt string) (string, error)
}
