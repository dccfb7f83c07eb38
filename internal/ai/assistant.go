package ai

import (
	"context"
)

// Generation is the outcome of a single text-generation request.
// Finished reports whether the model completed normally; truncated or
// safety-blocked responses set it to false so callers can reject them.
type Generation struct {
	Text     string
	Finished bool
}

// Generator produces free text from a prompt. Implementations may be slow
// or fail; callers needing a hard deadline must enforce it themselves.
type Generator interface {
	Generate(ctx context.Context, prompt string, maxTokens int32, temperature float32) (*Generation, error)
	Model() string
}
