// Package collection owns the vector-collection lifecycle: one
// collection per scope key, created lazily on first insert, destroyed
// with its owner, and rebuilt wholesale from source documents on
// deletion or embedding-schema drift.
package collection

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/spetr/docchat/internal/docstore"
	"github.com/spetr/docchat/internal/ingest"
	"github.com/spetr/docchat/internal/registry"
	"github.com/spetr/docchat/pkg/provider"
	"github.com/spetr/docchat/pkg/types"
)

// Store manages all collections through an IndexStore. Mutating and
// reading operations on the same scope are serialized by a per-scope
// mutex, so a retrieval never observes a half-rebuilt collection.
type Store struct {
	indexes  provider.IndexStore
	docs     *docstore.Store
	registry *registry.Registry
	embedder provider.EmbeddingProvider
	loader   ingest.Loader
	splitter ingest.Splitter

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex
}

// Config contains the collaborators of the store.
type Config struct {
	Indexes  provider.IndexStore
	Docs     *docstore.Store
	Registry *registry.Registry
	Embedder provider.EmbeddingProvider
	Loader   ingest.Loader
	Splitter ingest.Splitter
}

// New creates a collection store.
func New(cfg Config) *Store {
	return &Store{
		indexes:  cfg.Indexes,
		docs:     cfg.Docs,
		registry: cfg.Registry,
		embedder: cfg.Embedder,
		loader:   cfg.Loader,
		splitter: cfg.Splitter,
		locks:    make(map[string]*sync.Mutex),
	}
}

// lockFor returns the mutex serializing operations on one scope.
func (s *Store) lockFor(scope types.ScopeKey) *sync.Mutex {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()

	key := scope.Collection()
	mu, ok := s.locks[key]
	if !ok {
		mu = &sync.Mutex{}
		s.locks[key] = mu
	}
	return mu
}

// Exists reports whether the scope's collection has been persisted.
// Absent and empty collections are treated identically by retrieval.
func (s *Store) Exists(scope types.ScopeKey) bool {
	return s.indexes.Exists(scope.Collection())
}

// InsertFile runs the ingestion pipeline for one document: chunk,
// embed, insert into the scope's collection, creating it if absent.
//
// When the collection's persisted dimensionality does not match the
// active embedding provider, the collection is destroyed and rebuilt
// from its remaining source documents, then the insertion is retried
// exactly once. A second mismatch is fatal for this ingestion.
func (s *Store) InsertFile(ctx context.Context, scope types.ScopeKey, path string) error {
	chunks, err := ingest.ChunkDocument(s.loader, s.splitter, path)
	if err != nil {
		return fmt.Errorf("failed to chunk %s: %w", path, err)
	}

	mu := s.lockFor(scope)
	mu.Lock()
	defer mu.Unlock()

	err = s.insert(ctx, scope, chunks)
	if errors.Is(err, types.ErrDimensionMismatch) {
		slog.Warn("embedding dimension mismatch, rebuilding collection",
			"scope", scope.String(), "provider", s.embedder.Name())
		if err := s.rebuildLocked(ctx, scope, path); err != nil {
			return fmt.Errorf("rebuild after dimension mismatch failed: %w", err)
		}
		err = s.insert(ctx, scope, chunks)
	}
	if err != nil {
		return fmt.Errorf("failed to insert %s into %s: %w", path, scope, err)
	}
	return nil
}

// Append adds pre-built chunks (chat turns) to the scope's collection,
// creating it if absent. Append-only: no rebuild, no deduplication.
func (s *Store) Append(ctx context.Context, scope types.ScopeKey, chunks []types.Chunk) error {
	mu := s.lockFor(scope)
	mu.Lock()
	defer mu.Unlock()

	return s.insert(ctx, scope, chunks)
}

// insert embeds chunk contents and writes them to the collection.
// Callers hold the scope lock.
func (s *Store) insert(ctx context.Context, scope types.ScopeKey, chunks []types.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Content
	}
	embeddings, err := s.embedder.Embed(ctx, texts)
	if err != nil {
		return fmt.Errorf("%w: %w", types.ErrEmbeddingFailed, err)
	}

	idx, err := s.indexes.Open(scope.Collection(), s.embedder.Dimensions())
	if err != nil {
		return err
	}
	defer idx.Close()

	embedded := make([]types.EmbeddedChunk, len(chunks))
	for i, c := range chunks {
		embedded[i] = types.EmbeddedChunk{Chunk: c, Embedding: embeddings[i]}
	}
	return idx.Insert(ctx, embedded)
}

// Rebuild recomputes the scope's collection from its source documents:
// all persisted vectors are removed and every document currently
// assigned to the scope is re-chunked and re-embedded. When no source
// documents remain the collection is left absent, not recreated empty.
func (s *Store) Rebuild(ctx context.Context, scope types.ScopeKey) error {
	mu := s.lockFor(scope)
	mu.Lock()
	defer mu.Unlock()

	return s.rebuildLocked(ctx, scope, "")
}

// rebuildLocked does the rebuild work. skipPath excludes a document
// whose chunks the caller is about to insert itself, so a
// mismatch-triggered rebuild does not duplicate the pending file.
// Callers hold the scope lock.
func (s *Store) rebuildLocked(ctx context.Context, scope types.ScopeKey, skipPath string) error {
	gone, err := s.indexes.Remove(scope.Collection())
	if err != nil {
		return err
	}
	if !gone {
		slog.Warn("collection storage still present after removal retries",
			"scope", scope.String())
	}

	// History scopes have no source documents; destroying the
	// collection is the whole rebuild.
	if scope.IsHistory() {
		return nil
	}

	paths, err := s.docs.List(scope)
	if err != nil {
		return err
	}

	for _, path := range paths {
		if path == skipPath {
			continue
		}
		chunks, err := ingest.ChunkDocument(s.loader, s.splitter, path)
		if err != nil {
			// A listed document that cannot be read must not sink the
			// whole rebuild.
			slog.Warn("skipping unreadable document during rebuild",
				"scope", scope.String(), "path", path, "error", err)
			continue
		}
		if err := s.insert(ctx, scope, chunks); err != nil {
			return err
		}
	}
	return nil
}

// DeleteFile removes a document from the scope and its owner registry
// entry, then rebuilds the collection unconditionally. The full rebuild
// instead of an incremental vector delete is deliberate: it avoids
// index fragmentation at the cost of re-embedding the scope.
func (s *Store) DeleteFile(ctx context.Context, scope types.ScopeKey, filename string) error {
	if err := s.docs.Remove(scope, filename); err != nil {
		return err
	}
	if scope.Kind == types.ScopeUser {
		if err := s.registry.RemoveFile(scope.UserID, filename); err != nil {
			return err
		}
	}
	return s.Rebuild(ctx, scope)
}

// DeleteUser removes the user's registry entry, private document
// directory, private collection and every history collection.
// Idempotent: deleting an unknown user returns types.ErrNotFound.
func (s *Store) DeleteUser(ctx context.Context, userID string) error {
	if err := s.registry.RemoveUser(userID); err != nil {
		return err
	}

	if !s.docs.RemoveUserDir(userID) {
		slog.Warn("user document directory still present after removal retries", "user", userID)
	}

	if gone, err := s.indexes.Remove(types.UserScope(userID).Collection()); err != nil {
		return err
	} else if !gone {
		slog.Warn("user collection still present after removal retries", "user", userID)
	}

	// All history collections: the per-user one plus every
	// conversation-scoped one.
	userHistory := types.HistoryScope(userID, "").Collection()
	names, err := s.indexes.List(userHistory)
	if err != nil {
		return err
	}
	for _, name := range names {
		if name != userHistory && !strings.HasPrefix(name, userHistory+"_") {
			continue
		}
		if gone, err := s.indexes.Remove(name); err != nil {
			return err
		} else if !gone {
			slog.Warn("history collection still present after removal retries", "collection", name)
		}
	}
	return nil
}

// Search returns the scope's top-k chunks by similarity to the query
// vector. A missing collection yields no results, not an error.
func (s *Store) Search(ctx context.Context, scope types.ScopeKey, query []float32, k int, sourceFilter string) ([]types.ScoredChunk, error) {
	mu := s.lockFor(scope)
	mu.Lock()
	defer mu.Unlock()

	if !s.indexes.Exists(scope.Collection()) {
		return nil, nil
	}

	idx, err := s.indexes.Open(scope.Collection(), s.embedder.Dimensions())
	if err != nil {
		return nil, err
	}
	defer idx.Close()

	return idx.Search(ctx, query, k, sourceFilter)
}
