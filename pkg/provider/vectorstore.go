package provider

import (
	"context"

	"github.com/spetr/docchat/pkg/types"
)

// VectorIndex is one opened collection: an opaque similarity-search
// index over embedded chunks.
type VectorIndex interface {
	// Insert adds chunks with their embeddings to the collection.
	Insert(ctx context.Context, chunks []types.EmbeddedChunk) error

	// Search returns the top-k chunks nearest to the query vector,
	// ordered by descending similarity. A non-empty sourceFilter
	// restricts results to chunks whose source contains the substring.
	Search(ctx context.Context, query []float32, k int, sourceFilter string) ([]types.ScoredChunk, error)

	// Count returns the number of chunks in the collection.
	Count() (int, error)

	// Close releases the underlying handle.
	Close() error
}

// IndexStore manages named collections. Implementations: sqlitevec
// (one database file per collection) and memory (tests, dev mode).
type IndexStore interface {
	// Open opens a collection, creating it if absent. Returns
	// types.ErrDimensionMismatch when the collection already holds
	// vectors of a different dimensionality.
	Open(collection string, dimensions int) (VectorIndex, error)

	// Exists reports whether the collection has been persisted.
	Exists(collection string) bool

	// List returns the names of all collections with the given prefix.
	List(prefix string) ([]string, error)

	// Remove deletes the collection's backing storage. Transient
	// locked-file errors are retried with backoff; the returned bool
	// reports whether the storage is gone after retries are exhausted.
	Remove(collection string) (bool, error)
}
