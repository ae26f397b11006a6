// Package llm defines the model capabilities the research pipeline depends on
// and the provider clients that implement them.
package llm

import (
	"context"
	"errors"
)

var (
	// ErrEmptyCompletion is returned when the provider answers with no choices.
	ErrEmptyCompletion = errors.New("empty completion")
	// ErrProvider wraps every failure reported by a model provider.
	ErrProvider = errors.New("model provider error")
)

// Completer produces a completion for a single prompt.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// Embedder maps text to a dense vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Capabilities is the set of model handles threaded through constructors.
// Completer is expected to be rate limited already.
type Capabilities struct {
	Completer Completer
	Embedder  Embedder
}

// CompleterFunc adapts a plain function to Completer.
type CompleterFunc func(ctx context.Context, prompt string) (string, error)

func (f CompleterFunc) Complete(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}
