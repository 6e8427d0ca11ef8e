package provider

import (
	"context"
)

// GenerationProvider produces an answer from a fully assembled prompt.
// A single invocation per query; no tool use or iterative refinement.
type GenerationProvider interface {
	// Name returns the provider name (e.g. "openai", "ollama").
	Name() string

	// Generate invokes the model once with the given prompt.
	Generate(ctx context.Context, prompt string) (string, error)

	// Close releases any resources.
	Close() error
}
