// Package rag wires the document, collection, retrieval and generation
// layers into one question answering engine.
package rag

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/spetr/docchat/builtin/vectorstore/sqlitevec"
	"github.com/spetr/docchat/internal/answer"
	"github.com/spetr/docchat/internal/collection"
	"github.com/spetr/docchat/internal/config"
	"github.com/spetr/docchat/internal/docstore"
	"github.com/spetr/docchat/internal/history"
	"github.com/spetr/docchat/internal/ingest"
	"github.com/spetr/docchat/internal/registry"
	"github.com/spetr/docchat/internal/retrieval"
	"github.com/spetr/docchat/pkg/provider"
	"github.com/spetr/docchat/pkg/types"
)

// Answer is a completed question answering result. The prompt that
// produced the answer is returned alongside it so clients can inspect
// exactly what context the model saw.
type Answer struct {
	Answer    string
	Prompt    string
	Retrieved []types.ScoredChunk
}

// Engine is the question answering engine.
type Engine struct {
	store    *collection.Store
	docs     *docstore.Store
	registry *registry.Registry
	composer *retrieval.Composer
	selector *answer.Selector
	recorder *history.Recorder
	embedder provider.EmbeddingProvider
}

// New builds an engine from configuration: opens the user registry and
// the document tree, selects the embedding and generation providers and
// wires the collection store over sqlite-vec storage.
func New(ctx context.Context, cfg *config.Config) (*Engine, error) {
	reg, err := registry.Open(cfg.RegistryPath())
	if err != nil {
		return nil, err
	}

	docs, err := docstore.New(docstore.Config{
		Root:           cfg.DocumentsDir(),
		RemoveAttempts: cfg.Removal.Attempts,
		RemoveBackoff:  cfg.Removal.Backoff,
	})
	if err != nil {
		return nil, err
	}

	embedder, err := selectEmbedding(ctx, cfg)
	if err != nil {
		return nil, err
	}

	selector, err := selectGeneration(cfg)
	if err != nil {
		return nil, err
	}

	indexes := sqlitevec.New(sqlitevec.Config{
		Dir:            cfg.CollectionsDir(),
		RemoveAttempts: cfg.Removal.Attempts,
		RemoveBackoff:  cfg.Removal.Backoff,
	})

	store := collection.New(collection.Config{
		Indexes:  indexes,
		Docs:     docs,
		Registry: reg,
		Embedder: embedder,
		Loader:   ingest.TextLoader{},
		Splitter: ingest.NewSplitter(cfg.Chunking.Size, cfg.Chunking.Overlap),
	})

	return &Engine{
		store:    store,
		docs:     docs,
		registry: reg,
		composer: retrieval.NewComposer(store, embedder, cfg.Retrieval.DocumentK, cfg.Retrieval.HistoryK),
		selector: selector,
		recorder: history.New(store),
		embedder: embedder,
	}, nil
}

// NewWithStore builds an engine over pre-constructed collaborators.
// Used by tests and by callers that bring their own index storage.
func NewWithStore(store *collection.Store, docs *docstore.Store, reg *registry.Registry,
	embedder provider.EmbeddingProvider, selector *answer.Selector, documentK, historyK int) *Engine {
	return &Engine{
		store:    store,
		docs:     docs,
		registry: reg,
		composer: retrieval.NewComposer(store, embedder, documentK, historyK),
		selector: selector,
		recorder: history.New(store),
		embedder: embedder,
	}
}

// Registry exposes the user registry for authentication.
func (e *Engine) Registry() *registry.Registry {
	return e.registry
}

// Docs exposes the document tree.
func (e *Engine) Docs() *docstore.Store {
	return e.docs
}

// Close releases provider resources.
func (e *Engine) Close() error {
	_ = e.selector.Close()
	return e.embedder.Close()
}

// AddUser registers a new user.
func (e *Engine) AddUser(userID, password string) error {
	return e.registry.AddUser(userID, password)
}

// RemoveUser deletes a user together with their documents, private
// collection and all history collections.
func (e *Engine) RemoveUser(ctx context.Context, userID string) error {
	return e.store.DeleteUser(ctx, userID)
}

// Upload saves a document into the scope's directory, ingests it into
// the scope's collection and records ownership for user scopes.
func (e *Engine) Upload(ctx context.Context, scope types.ScopeKey, filename string, r io.Reader) error {
	path, err := e.docs.Save(scope, filename, r)
	if err != nil {
		return fmt.Errorf("failed to save %s: %w", filename, err)
	}

	if err := e.store.InsertFile(ctx, scope, path); err != nil {
		return err
	}

	if scope.Kind == types.ScopeUser {
		if err := e.registry.AddFile(scope.UserID, filename); err != nil {
			return err
		}
	}

	slog.Info("document ingested", "scope", scope.String(), "file", filename)
	return nil
}

// RemoveFile deletes a document and rebuilds its scope's collection.
func (e *Engine) RemoveFile(ctx context.Context, scope types.ScopeKey, filename string) error {
	return e.store.DeleteFile(ctx, scope, filename)
}

// Rebuild recomputes a scope's collection from its source documents.
func (e *Engine) Rebuild(ctx context.Context, scope types.ScopeKey) error {
	return e.store.Rebuild(ctx, scope)
}

// Ask answers a question for the user. Retrieval composes the user's
// private, shared and history collections; the generated answer is
// recorded into history only after generation succeeds.
//
// Returns types.ErrNotFound when no collections exist for the user at
// all, so callers can distinguish "nothing to search" from an empty
// result.
func (e *Engine) Ask(ctx context.Context, userID, query, conversationID, docFilter string) (*Answer, error) {
	// Conversation ids become collection file names.
	if strings.ContainsAny(conversationID, "/\\") {
		return nil, fmt.Errorf("conversation id %q: %w", conversationID, types.ErrInvalidID)
	}

	retriever := e.composer.Compose(userID, conversationID, docFilter)
	if retriever == nil {
		return nil, fmt.Errorf("no documents available for user %q: %w", userID, types.ErrNotFound)
	}

	retrieved, err := retriever.Retrieve(ctx, query)
	if err != nil {
		return nil, err
	}

	prompt := answer.BuildPrompt(query, retrieved)
	text, err := e.selector.Generate(ctx, prompt)
	if err != nil {
		return nil, err
	}

	// Failed recording must not fail an already answered question.
	if err := e.recorder.Record(ctx, userID, conversationID, query, text); err != nil {
		slog.Warn("failed to record chat history", "user", userID, "error", err)
	}

	return &Answer{Answer: text, Prompt: prompt, Retrieved: retrieved}, nil
}
