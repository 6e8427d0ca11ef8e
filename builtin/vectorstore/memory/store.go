// Package memory implements an in-memory IndexStore. It backs tests and
// the dev mode where no persistence is wanted; semantics match the
// sqlitevec store, including dimension checking.
package memory

import (
	"context"
	"math"
	"sort"
	"strings"
	"sync"

	"github.com/spetr/docchat/pkg/provider"
	"github.com/spetr/docchat/pkg/types"
)

// Store implements the IndexStore interface with process-local state.
type Store struct {
	mu          sync.RWMutex
	collections map[string]*collection
}

type collection struct {
	mu         sync.RWMutex
	dimensions int
	chunks     []types.EmbeddedChunk
}

// New creates a new in-memory store.
func New() *Store {
	return &Store{collections: make(map[string]*collection)}
}

// Name returns the store name.
func (s *Store) Name() string {
	return "memory"
}

// Open opens a collection, creating it if absent.
func (s *Store) Open(name string, dimensions int) (provider.VectorIndex, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.collections[name]
	if !ok {
		c = &collection{dimensions: dimensions}
		s.collections[name] = c
	}
	if c.dimensions != dimensions {
		return nil, types.ErrDimensionMismatch
	}
	return &Index{coll: c}, nil
}

// Exists reports whether the collection exists.
func (s *Store) Exists(name string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.collections[name]
	return ok
}

// List returns the names of all collections with the given prefix.
func (s *Store) List(prefix string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var names []string
	for name := range s.collections {
		if strings.HasPrefix(name, prefix) {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names, nil
}

// Remove deletes the collection. Always succeeds in memory.
func (s *Store) Remove(name string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.collections, name)
	return true, nil
}

// Index is one opened in-memory collection.
type Index struct {
	coll *collection
}

// Insert adds chunks with their embeddings to the collection.
func (idx *Index) Insert(ctx context.Context, chunks []types.EmbeddedChunk) error {
	idx.coll.mu.Lock()
	defer idx.coll.mu.Unlock()

	for _, ec := range chunks {
		if len(ec.Embedding) != idx.coll.dimensions {
			return types.ErrDimensionMismatch
		}
	}
	idx.coll.chunks = append(idx.coll.chunks, chunks...)
	return nil
}

// Search returns the top-k chunks by cosine similarity to the query.
func (idx *Index) Search(ctx context.Context, query []float32, k int, sourceFilter string) ([]types.ScoredChunk, error) {
	idx.coll.mu.RLock()
	defer idx.coll.mu.RUnlock()

	if len(query) != idx.coll.dimensions {
		return nil, types.ErrDimensionMismatch
	}

	var results []types.ScoredChunk
	for _, ec := range idx.coll.chunks {
		if sourceFilter != "" && !strings.Contains(ec.Chunk.Source, sourceFilter) {
			continue
		}
		results = append(results, types.ScoredChunk{
			Chunk: ec.Chunk,
			Score: cosineSimilarity(query, ec.Embedding),
		})
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}

// Count returns the number of chunks in the collection.
func (idx *Index) Count() (int, error) {
	idx.coll.mu.RLock()
	defer idx.coll.mu.RUnlock()
	return len(idx.coll.chunks), nil
}

// Close is a no-op for in-memory collections.
func (idx *Index) Close() error {
	return nil
}

func cosineSimilarity(a, b []float32) float32 {
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(normA) * math.Sqrt(normB)))
}

// Ensure interfaces are implemented
var (
	_ provider.IndexStore  = (*Store)(nil)
	_ provider.VectorIndex = (*Index)(nil)
)
