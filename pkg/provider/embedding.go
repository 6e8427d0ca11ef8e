// Package provider defines interfaces for pluggable components.
package provider

import (
	"context"
)

// EmbeddingProvider generates vector embeddings from text.
//
// The active provider is selected once at process start and bound for
// the process lifetime: every collection's vectors must come from a
// single embedding model.
type EmbeddingProvider interface {
	// Name returns the provider name (e.g. "openai", "ollama").
	Name() string

	// Embed generates embeddings for the given texts.
	// Returns one embedding per input text.
	Embed(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the embedding dimension size.
	Dimensions() int

	// Close releases any resources.
	Close() error
}

// EmbeddingConfig contains configuration for embedding providers.
type EmbeddingConfig struct {
	Provider string // "openai", "ollama"
	Model    string // Model name
	Endpoint string // API endpoint (for Ollama)
	APIKey   string // API key (for OpenAI)
}
