package rag

import (
	"context"
	"fmt"
	"log/slog"

	embollama "github.com/spetr/docchat/builtin/embedding/ollama"
	embopenai "github.com/spetr/docchat/builtin/embedding/openai"
	genollama "github.com/spetr/docchat/builtin/generation/ollama"
	genopenai "github.com/spetr/docchat/builtin/generation/openai"
	"github.com/spetr/docchat/internal/answer"
	"github.com/spetr/docchat/internal/config"
	"github.com/spetr/docchat/pkg/provider"
	"github.com/spetr/docchat/pkg/types"
)

// selectEmbedding picks the embedding provider once at startup: OpenAI
// when an API key is configured, Ollama when an endpoint is, otherwise
// startup fails. The choice is never revisited at query time; switching
// providers mid-run would mix dimensionalities inside collections.
func selectEmbedding(ctx context.Context, cfg *config.Config) (provider.EmbeddingProvider, error) {
	if cfg.OpenAI.APIKey != "" {
		p := embopenai.New(embopenai.Config{
			Model:  cfg.OpenAI.EmbeddingModel,
			APIKey: cfg.OpenAI.APIKey,
		})
		slog.Info("embedding provider selected", "provider", p.Name(), "model", cfg.OpenAI.EmbeddingModel)
		return p, nil
	}

	if cfg.Ollama.Endpoint != "" {
		p := embollama.New(embollama.Config{
			Model:    cfg.Ollama.EmbeddingModel,
			Endpoint: cfg.Ollama.Endpoint,
		})
		if err := p.Available(ctx); err != nil {
			return nil, fmt.Errorf("%w: %w", types.ErrProviderUnavailable, err)
		}
		slog.Info("embedding provider selected", "provider", p.Name(), "model", cfg.Ollama.EmbeddingModel)
		return p, nil
	}

	return nil, fmt.Errorf("no embedding provider: %w", types.ErrNoProviderConfigured)
}

// selectGeneration builds the generation selector with the same
// priority order: OpenAI primary, Ollama secondary. Unlike embedding,
// both may be active at once; the secondary is the failover target.
func selectGeneration(cfg *config.Config) (*answer.Selector, error) {
	var providers []provider.GenerationProvider

	if cfg.OpenAI.APIKey != "" {
		providers = append(providers, genopenai.New(genopenai.Config{
			Model:  cfg.OpenAI.ChatModel,
			APIKey: cfg.OpenAI.APIKey,
		}))
	}
	if cfg.Ollama.Endpoint != "" {
		providers = append(providers, genollama.New(genollama.Config{
			Model:    cfg.Ollama.ChatModel,
			Endpoint: cfg.Ollama.Endpoint,
		}))
	}

	sel, err := answer.NewSelector(providers...)
	if err != nil {
		return nil, err
	}
	slog.Info("generation provider selected", "primary", sel.Primary(), "configured", len(providers))
	return sel, nil
}
