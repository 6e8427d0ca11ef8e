// Package answer selects a generation provider and assembles the
// answer prompt from retrieved context.
package answer

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/spetr/docchat/pkg/provider"
	"github.com/spetr/docchat/pkg/types"
)

// Selector holds the configured generation providers in priority
// order. On invocation failure of the first provider it retries exactly
// once against the second, if one is configured; no retry is ever
// attempted against the same provider.
type Selector struct {
	providers []provider.GenerationProvider
}

// NewSelector creates a selector from the providers whose credentials
// are present, in priority order. Returns
// types.ErrNoProviderConfigured when the list is empty.
func NewSelector(providers ...provider.GenerationProvider) (*Selector, error) {
	var configured []provider.GenerationProvider
	for _, p := range providers {
		if p != nil {
			configured = append(configured, p)
		}
	}
	if len(configured) == 0 {
		return nil, types.ErrNoProviderConfigured
	}
	return &Selector{providers: configured}, nil
}

// Primary returns the name of the selected primary provider.
func (s *Selector) Primary() string {
	return s.providers[0].Name()
}

// Generate invokes the primary provider with the prompt, failing over
// once to the secondary when the primary fails.
func (s *Selector) Generate(ctx context.Context, prompt string) (string, error) {
	primary := s.providers[0]
	answer, err := primary.Generate(ctx, prompt)
	if err == nil {
		return answer, nil
	}

	if len(s.providers) == 1 {
		return "", fmt.Errorf("%s failed: %w: %w", primary.Name(), types.ErrProviderUnavailable, err)
	}

	secondary := s.providers[1]
	slog.Warn("primary provider failed, failing over",
		"primary", primary.Name(), "secondary", secondary.Name(), "error", err)

	answer, err2 := secondary.Generate(ctx, prompt)
	if err2 != nil {
		return "", fmt.Errorf("%w: %s: %v; %s: %v",
			types.ErrAllProvidersUnavailable, primary.Name(), err, secondary.Name(), err2)
	}
	return answer, nil
}

// Close closes all configured providers.
func (s *Selector) Close() error {
	for _, p := range s.providers {
		_ = p.Close()
	}
	return nil
}

// BuildPrompt assembles the single generation prompt: retrieved chat
// history first, then document chunks in retrieval order, then the
// literal question. The instructions force answers from the provided
// context only.
func BuildPrompt(question string, retrieved []types.ScoredChunk) string {
	var history, docs []types.ScoredChunk
	for _, r := range retrieved {
		if r.Chunk.Kind == types.KindChatHistory {
			history = append(history, r)
		} else {
			docs = append(docs, r)
		}
	}

	var b strings.Builder
	b.WriteString("You are a helpful assistant. Answer the question using ONLY the information in the context.\n")
	b.WriteString("If the answer is not in the context, say 'I don't know from the provided documents.'\n")
	b.WriteString("Be concise.\n\n")

	if len(history) > 0 {
		b.WriteString("Previous conversation:\n")
		for _, h := range history {
			b.WriteString(h.Chunk.Content)
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}

	b.WriteString("Context:\n")
	for _, d := range docs {
		b.WriteString(d.Chunk.Content)
		b.WriteString("\n")
	}

	fmt.Fprintf(&b, "\nQuestion: %s\nAnswer:", question)
	return b.String()
}
