// Package sqlitevec implements IndexStore using sqlite-vec, with one
// database file per collection.
package sqlitevec

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	_ "github.com/mattn/go-sqlite3"

	"github.com/spetr/docchat/pkg/provider"
	"github.com/spetr/docchat/pkg/types"
)

var (
	// Ensure sqlite-vec Auto() is called exactly once before any db connection
	vecAutoOnce sync.Once
)

// Default removal retry policy for locked database files.
const (
	DefaultRemoveAttempts = 3
	DefaultRemoveBackoff  = 200 * time.Millisecond
)

// Store implements the IndexStore interface. Each collection lives in
// its own database file under dir, so destroying a collection is a file
// removal rather than a row-by-row delete.
type Store struct {
	dir            string
	removeAttempts int
	removeBackoff  time.Duration
}

// Config contains store configuration.
type Config struct {
	Dir            string
	RemoveAttempts int
	RemoveBackoff  time.Duration
}

// New creates a new sqlite-vec store rooted at cfg.Dir.
func New(cfg Config) *Store {
	if cfg.RemoveAttempts == 0 {
		cfg.RemoveAttempts = DefaultRemoveAttempts
	}
	if cfg.RemoveBackoff == 0 {
		cfg.RemoveBackoff = DefaultRemoveBackoff
	}
	return &Store{
		dir:            cfg.Dir,
		removeAttempts: cfg.RemoveAttempts,
		removeBackoff:  cfg.RemoveBackoff,
	}
}

// Name returns the store name.
func (s *Store) Name() string {
	return "sqlitevec"
}

func (s *Store) path(collection string) string {
	return filepath.Join(s.dir, collection+".db")
}

// Exists reports whether the collection's database file is present.
func (s *Store) Exists(collection string) bool {
	_, err := os.Stat(s.path(collection))
	return err == nil
}

// List returns the names of all collections with the given prefix.
func (s *Store) List(prefix string) ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var names []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".db") {
			continue
		}
		name = strings.TrimSuffix(name, ".db")
		if strings.HasPrefix(name, prefix) {
			names = append(names, name)
		}
	}
	return names, nil
}

// Open opens a collection, creating it if absent. Returns
// types.ErrDimensionMismatch when the stored vectors were produced with
// a different dimensionality than requested.
func (s *Store) Open(collection string, dimensions int) (provider.VectorIndex, error) {
	// Register sqlite-vec extension before opening any database connection.
	// This must be called once before sql.Open() so vec_* functions are available.
	vecAutoOnce.Do(func() {
		sqlite_vec.Auto()
	})

	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create collections directory: %w", err)
	}

	// WAL mode for concurrent reads, busy_timeout to wait for locks
	// instead of failing immediately
	db, err := sql.Open("sqlite3", s.path(collection)+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open collection %s: %w", collection, err)
	}

	if _, err := db.Exec("SELECT vec_version()"); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite-vec extension not available: %w", err)
	}

	idx := &Index{db: db, dimensions: dimensions}
	if err := idx.createSchema(); err != nil {
		db.Close()
		if err == types.ErrDimensionMismatch {
			return nil, err
		}
		return nil, fmt.Errorf("failed to create schema for %s: %w", collection, err)
	}

	return idx, nil
}

// Remove deletes the collection's database file along with its WAL
// sidecars. Locked-file errors (common under concurrent readers on
// Windows) are retried with a growing backoff; after retries are
// exhausted the returned bool reports whether the file is gone.
func (s *Store) Remove(collection string) (bool, error) {
	path := s.path(collection)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return true, nil
	}

	for attempt := 0; attempt < s.removeAttempts; attempt++ {
		err := removeWithSidecars(path)
		if err == nil {
			return true, nil
		}
		// Loosen permissions and retry; mirrors removal behavior on
		// platforms where readers hold the file open.
		_ = os.Chmod(path, 0644)
		slog.Debug("collection removal failed, retrying",
			"collection", collection, "attempt", attempt+1, "error", err)
		time.Sleep(s.removeBackoff * time.Duration(attempt+1))
	}

	_, err := os.Stat(path)
	return os.IsNotExist(err), nil
}

func removeWithSidecars(path string) error {
	if err := os.Remove(path); err != nil {
		return err
	}
	// Best-effort removal of WAL sidecar files
	_ = os.Remove(path + "-wal")
	_ = os.Remove(path + "-shm")
	return nil
}

// Index is one opened collection.
type Index struct {
	db         *sql.DB
	dimensions int
}

// createSchema creates the chunk and vector tables, verifying that the
// persisted dimensionality matches the requested one.
func (idx *Index) createSchema() error {
	_, err := idx.db.Exec(`
		CREATE TABLE IF NOT EXISTS metadata (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)
	`)
	if err != nil {
		return err
	}

	// A collection's vectors come from exactly one embedding model.
	var stored string
	err = idx.db.QueryRow(`SELECT value FROM metadata WHERE key = 'dimensions'`).Scan(&stored)
	switch {
	case err == sql.ErrNoRows:
		_, err = idx.db.Exec(`INSERT INTO metadata (key, value) VALUES ('dimensions', ?)`,
			strconv.Itoa(idx.dimensions))
		if err != nil {
			return err
		}
	case err != nil:
		return err
	default:
		d, convErr := strconv.Atoi(stored)
		if convErr != nil {
			return convErr
		}
		if d != idx.dimensions {
			return types.ErrDimensionMismatch
		}
	}

	_, err = idx.db.Exec(`
		CREATE TABLE IF NOT EXISTS chunks (
			id TEXT PRIMARY KEY,
			content TEXT NOT NULL,
			source TEXT NOT NULL,
			page INTEGER NOT NULL DEFAULT 0,
			kind TEXT NOT NULL,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return err
	}

	// Index on source for filtered retrieval
	_, err = idx.db.Exec(`CREATE INDEX IF NOT EXISTS idx_chunks_source ON chunks(source)`)
	if err != nil {
		return err
	}

	_, err = idx.db.Exec(fmt.Sprintf(`
		CREATE VIRTUAL TABLE IF NOT EXISTS chunk_embeddings USING vec0(
			chunk_id TEXT PRIMARY KEY,
			embedding float[%d]
		)
	`, idx.dimensions))
	if err != nil {
		return fmt.Errorf("failed to create vector table: %w", err)
	}

	return nil
}

// Insert adds chunks with their embeddings to the collection.
func (idx *Index) Insert(ctx context.Context, chunks []types.EmbeddedChunk) error {
	if len(chunks) == 0 {
		return nil
	}

	tx, err := idx.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	chunkStmt, err := tx.Prepare(`
		INSERT OR REPLACE INTO chunks (id, content, source, page, kind)
		VALUES (?, ?, ?, ?, ?)
	`)
	if err != nil {
		return err
	}
	defer chunkStmt.Close()

	embeddingStmt, err := tx.Prepare(`
		INSERT OR REPLACE INTO chunk_embeddings (chunk_id, embedding)
		VALUES (?, ?)
	`)
	if err != nil {
		return err
	}
	defer embeddingStmt.Close()

	for _, ec := range chunks {
		c := ec.Chunk

		if len(ec.Embedding) != idx.dimensions {
			return types.ErrDimensionMismatch
		}

		if _, err := chunkStmt.Exec(c.ID, c.Content, c.Source, c.Page, string(c.Kind)); err != nil {
			return fmt.Errorf("failed to store chunk %s: %w", c.ID, err)
		}

		if _, err := embeddingStmt.Exec(c.ID, floatsToBytes(ec.Embedding)); err != nil {
			return fmt.Errorf("failed to store embedding for %s: %w", c.ID, err)
		}
	}

	return tx.Commit()
}

// Search returns the top-k chunks nearest to the query vector, ordered
// by descending cosine similarity. A non-empty sourceFilter restricts
// results to chunks whose source contains the substring.
func (idx *Index) Search(ctx context.Context, query []float32, k int, sourceFilter string) ([]types.ScoredChunk, error) {
	if len(query) != idx.dimensions {
		return nil, types.ErrDimensionMismatch
	}

	sql := `
		SELECT
			ce.chunk_id,
			vec_distance_cosine(ce.embedding, ?) as distance,
			c.content, c.source, c.page, c.kind
		FROM chunk_embeddings ce
		JOIN chunks c ON ce.chunk_id = c.id
	`
	args := []any{floatsToBytes(query)}

	if sourceFilter != "" {
		sql += " WHERE instr(c.source, ?) > 0"
		args = append(args, sourceFilter)
	}

	sql += " ORDER BY distance ASC LIMIT ?"
	args = append(args, k)

	rows, err := idx.db.QueryContext(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("vector search failed: %w", err)
	}
	defer rows.Close()

	var results []types.ScoredChunk
	for rows.Next() {
		var (
			chunk    types.Chunk
			distance float64
			kind     string
		)
		if err := rows.Scan(&chunk.ID, &distance, &chunk.Content, &chunk.Source, &chunk.Page, &kind); err != nil {
			return nil, err
		}
		chunk.Kind = types.ChunkKind(kind)

		results = append(results, types.ScoredChunk{
			Chunk: chunk,
			// Cosine distance -> similarity
			Score: float32(1.0 - distance),
		})
	}

	return results, rows.Err()
}

// Count returns the number of chunks in the collection.
func (idx *Index) Count() (int, error) {
	var n int
	err := idx.db.QueryRow(`SELECT COUNT(*) FROM chunks`).Scan(&n)
	return n, err
}

// Close releases the database handle.
func (idx *Index) Close() error {
	return idx.db.Close()
}

// floatsToBytes serializes a float32 slice for sqlite-vec.
func floatsToBytes(floats []float32) []byte {
	bytes := make([]byte, len(floats)*4)
	for i, f := range floats {
		bits := math.Float32bits(f)
		bytes[i*4] = byte(bits)
		bytes[i*4+1] = byte(bits >> 8)
		bytes[i*4+2] = byte(bits >> 16)
		bytes[i*4+3] = byte(bits >> 24)
	}
	return bytes
}

// Ensure interfaces are implemented
var (
	_ provider.IndexStore  = (*Store)(nil)
	_ provider.VectorIndex = (*Index)(nil)
)
