// Package retrieval composes per-scope collection lookups into one
// logical retriever for a query.
package retrieval

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spetr/docchat/internal/collection"
	"github.com/spetr/docchat/pkg/provider"
	"github.com/spetr/docchat/pkg/types"
)

// Default per-collection result counts.
const (
	DefaultDocumentK = 3
	DefaultHistoryK  = 2
)

// source is one collection lookup within a composed retriever.
type source struct {
	scope  types.ScopeKey
	k      int
	filter string // substring match on chunk source; never set for history
}

// Retriever is an ephemeral, query-scoped composition of up to three
// collection lookups. Results are the concatenation of each
// collection's top-k list in composition order (private, shared,
// history) with no cross-collection re-ranking: downstream prompt
// assembly treats document order as context order.
type Retriever struct {
	store    *collection.Store
	embedder provider.EmbeddingProvider
	sources  []source
}

// Composer builds retrievers over a collection store.
type Composer struct {
	store     *collection.Store
	embedder  provider.EmbeddingProvider
	documentK int
	historyK  int
}

// NewComposer creates a composer. Zero k values get defaults.
func NewComposer(store *collection.Store, embedder provider.EmbeddingProvider, documentK, historyK int) *Composer {
	if documentK <= 0 {
		documentK = DefaultDocumentK
	}
	if historyK <= 0 {
		historyK = DefaultHistoryK
	}
	return &Composer{store: store, embedder: embedder, documentK: documentK, historyK: historyK}
}

// Compose assembles a retriever for the user. The private and shared
// collections are added with the document k and the optional source
// filter; the history collection is added with the smaller history k
// and is never filtered. With a conversation id the conversation's
// history collection is used, otherwise the user's accumulated one.
//
// Returns nil when no underlying collection exists: callers must treat
// that as "no documents available", not as an empty retriever.
func (c *Composer) Compose(userID, conversationID, docFilter string) *Retriever {
	var sources []source

	if scope := types.UserScope(userID); c.store.Exists(scope) {
		sources = append(sources, source{scope: scope, k: c.documentK, filter: docFilter})
	}

	if scope := types.SharedScope(); c.store.Exists(scope) {
		sources = append(sources, source{scope: scope, k: c.documentK, filter: docFilter})
	}

	if conversationID != "" {
		if scope := types.HistoryScope(userID, conversationID); c.store.Exists(scope) {
			sources = append(sources, source{scope: scope, k: c.historyK})
		}
	} else if scope := types.HistoryScope(userID, ""); c.store.Exists(scope) {
		sources = append(sources, source{scope: scope, k: c.historyK})
	}

	if len(sources) == 0 {
		return nil
	}
	return &Retriever{store: c.store, embedder: c.embedder, sources: sources}
}

// Retrieve embeds the query once and returns each collection's top-k
// results concatenated in composition order. A collection that fails to
// search is skipped rather than failing the query: missing or
// inconsistent collections mean "no results", not errors.
func (r *Retriever) Retrieve(ctx context.Context, query string) ([]types.ScoredChunk, error) {
	embeddings, err := r.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", types.ErrEmbeddingFailed, err)
	}
	queryVec := embeddings[0]

	var merged []types.ScoredChunk
	for _, src := range r.sources {
		results, err := r.store.Search(ctx, src.scope, queryVec, src.k, src.filter)
		if err != nil {
			slog.Warn("collection search failed, skipping",
				"scope", src.scope.String(), "error", err)
			continue
		}
		for i := range results {
			results[i].Scope = src.scope.String()
		}
		merged = append(merged, results...)
	}
	return merged, nil
}
