package collection

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/spetr/docchat/builtin/vectorstore/memory"
	"github.com/spetr/docchat/internal/docstore"
	"github.com/spetr/docchat/internal/ingest"
	"github.com/spetr/docchat/internal/registry"
	"github.com/spetr/docchat/pkg/provider"
	"github.com/spetr/docchat/pkg/types"
)

// stubEmbedder produces deterministic vectors. Changing dims mid-test
// simulates an embedding model change between process runs.
type stubEmbedder struct {
	dims    int
	vecDims int // length of produced vectors; 0 means dims
	calls   int
	fail    bool
}

func (e *stubEmbedder) Name() string    { return "stub" }
func (e *stubEmbedder) Dimensions() int { return e.dims }
func (e *stubEmbedder) Close() error    { return nil }

func (e *stubEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	e.calls++
	if e.fail {
		return nil, fmt.Errorf("stub embedder failure")
	}
	dims := e.dims
	if e.vecDims != 0 {
		dims = e.vecDims
	}
	out := make([][]float32, len(texts))
	for i, text := range texts {
		v := make([]float32, dims)
		for j := range v {
			v[j] = float32(len(text)%7+j) + 1
		}
		out[i] = v
	}
	return out, nil
}

var _ provider.EmbeddingProvider = (*stubEmbedder)(nil)

type fixture struct {
	store    *Store
	indexes  *memory.Store
	docs     *docstore.Store
	registry *registry.Registry
	embedder *stubEmbedder
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	dir := t.TempDir()
	docs, err := docstore.New(docstore.Config{Root: filepath.Join(dir, "documents")})
	if err != nil {
		t.Fatal(err)
	}
	reg, err := registry.Open(filepath.Join(dir, "users.json"))
	if err != nil {
		t.Fatal(err)
	}

	indexes := memory.New()
	embedder := &stubEmbedder{dims: 3}
	store := New(Config{
		Indexes:  indexes,
		Docs:     docs,
		Registry: reg,
		Embedder: embedder,
		Loader:   ingest.TextLoader{},
		Splitter: ingest.NewSplitter(1000, 200),
	})

	return &fixture{store: store, indexes: indexes, docs: docs, registry: reg, embedder: embedder}
}

func (f *fixture) saveDoc(t *testing.T, scope types.ScopeKey, name, content string) string {
	t.Helper()
	path, err := f.docs.Save(scope, name, strings.NewReader(content))
	if err != nil {
		t.Fatal(err)
	}
	return path
}

func (f *fixture) queryVec() []float32 {
	v := make([]float32, f.embedder.dims)
	for i := range v {
		v[i] = 1
	}
	return v
}

func historyChunk(content string) types.Chunk {
	return types.Chunk{
		ID:      uuid.NewString(),
		Content: content,
		Source:  "chat_history",
		Kind:    types.KindChatHistory,
	}
}

func TestInsertFileCreatesCollection(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	scope := types.SharedScope()

	if f.store.Exists(scope) {
		t.Fatal("collection exists before first insert")
	}

	path := f.saveDoc(t, scope, "doc.txt", "some document text")
	if err := f.store.InsertFile(ctx, scope, path); err != nil {
		t.Fatal(err)
	}

	if !f.store.Exists(scope) {
		t.Fatal("collection missing after insert")
	}
	results, err := f.store.Search(ctx, scope, f.queryVec(), 5, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 {
		t.Fatalf("got %d results, want 1", len(results))
	}
	if results[0].Chunk.Source != path {
		t.Errorf("result source = %q, want %q", results[0].Chunk.Source, path)
	}
}

func TestSearchMissingCollection(t *testing.T) {
	f := newFixture(t)

	results, err := f.store.Search(context.Background(), types.UserScope("nobody"), f.queryVec(), 3, "")
	if err != nil {
		t.Fatalf("missing collection must not error: %v", err)
	}
	if results != nil {
		t.Errorf("results = %v, want nil", results)
	}
}

func TestDimensionMismatchRebuildsAndRetries(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	scope := types.SharedScope()

	first := f.saveDoc(t, scope, "first.txt", "first document")
	if err := f.store.InsertFile(ctx, scope, first); err != nil {
		t.Fatal(err)
	}

	// The embedding model changed between runs
	f.embedder.dims = 4

	second := f.saveDoc(t, scope, "second.txt", "second document")
	if err := f.store.InsertFile(ctx, scope, second); err != nil {
		t.Fatalf("insert after mismatch: %v", err)
	}

	// Both documents present, re-embedded at the new dimensionality,
	// with no duplicate chunks for the retried file.
	results, err := f.store.Search(ctx, scope, f.queryVec(), 10, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 2 {
		t.Fatalf("got %d chunks after rebuild, want 2", len(results))
	}
	sources := map[string]int{}
	for _, r := range results {
		sources[r.Chunk.Source]++
	}
	if sources[first] != 1 || sources[second] != 1 {
		t.Errorf("chunk sources = %v, want one chunk per document", sources)
	}
}

func TestRebuildDropsStaleChunks(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	scope := types.UserScope("alice")

	keep := f.saveDoc(t, scope, "keep.txt", "keep this")
	drop := f.saveDoc(t, scope, "drop.txt", "drop this")
	for _, p := range []string{keep, drop} {
		if err := f.store.InsertFile(ctx, scope, p); err != nil {
			t.Fatal(err)
		}
	}

	if err := os.Remove(drop); err != nil {
		t.Fatal(err)
	}
	if err := f.store.Rebuild(ctx, scope); err != nil {
		t.Fatal(err)
	}

	results, err := f.store.Search(ctx, scope, f.queryVec(), 10, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 || results[0].Chunk.Source != keep {
		t.Errorf("results after rebuild = %+v, want only %s", results, keep)
	}
}

func TestRebuildEmptyScopeLeavesCollectionAbsent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	scope := types.UserScope("alice")

	path := f.saveDoc(t, scope, "only.txt", "content")
	if err := f.store.InsertFile(ctx, scope, path); err != nil {
		t.Fatal(err)
	}
	if err := os.Remove(path); err != nil {
		t.Fatal(err)
	}

	if err := f.store.Rebuild(ctx, scope); err != nil {
		t.Fatal(err)
	}
	if f.store.Exists(scope) {
		t.Error("empty scope must leave the collection absent, not empty")
	}
}

func TestDeleteFileRebuilds(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	scope := types.UserScope("alice")

	if err := f.registry.AddUser("alice", "pw"); err != nil {
		t.Fatal(err)
	}
	keep := f.saveDoc(t, scope, "keep.txt", "keep")
	f.saveDoc(t, scope, "gone.txt", "gone")
	for _, name := range []string{"keep.txt", "gone.txt"} {
		p, _ := f.docs.Path(scope, name)
		if err := f.store.InsertFile(ctx, scope, p); err != nil {
			t.Fatal(err)
		}
		if err := f.registry.AddFile("alice", name); err != nil {
			t.Fatal(err)
		}
	}

	if err := f.store.DeleteFile(ctx, scope, "gone.txt"); err != nil {
		t.Fatal(err)
	}

	results, err := f.store.Search(ctx, scope, f.queryVec(), 10, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 || results[0].Chunk.Source != keep {
		t.Errorf("results = %+v, want only %s", results, keep)
	}

	files, err := f.registry.Files("alice")
	if err != nil {
		t.Fatal(err)
	}
	if len(files) != 1 || files[0] != "keep.txt" {
		t.Errorf("registry files = %v, want [keep.txt]", files)
	}
}

func TestDeleteFileMissing(t *testing.T) {
	f := newFixture(t)

	err := f.store.DeleteFile(context.Background(), types.SharedScope(), "ghost.txt")
	if !errors.Is(err, types.ErrNotFound) {
		t.Errorf("error = %v, want ErrNotFound", err)
	}
}

func TestAppendHistory(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	scope := types.HistoryScope("alice", "")

	err := f.store.Append(ctx, scope, []types.Chunk{historyChunk("Question: hi\nAnswer: hello")})
	if err != nil {
		t.Fatal(err)
	}
	if !f.store.Exists(scope) {
		t.Fatal("history collection missing after append")
	}

	results, err := f.store.Search(ctx, scope, f.queryVec(), 5, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 || results[0].Chunk.Kind != types.KindChatHistory {
		t.Errorf("results = %+v, want one chat history chunk", results)
	}
}

func TestDeleteUserDestroysEverything(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	if err := f.registry.AddUser("alice", "pw"); err != nil {
		t.Fatal(err)
	}
	path := f.saveDoc(t, types.UserScope("alice"), "doc.txt", "private doc")
	if err := f.store.InsertFile(ctx, types.UserScope("alice"), path); err != nil {
		t.Fatal(err)
	}
	for _, scope := range []types.ScopeKey{
		types.HistoryScope("alice", ""),
		types.HistoryScope("alice", "conv1"),
	} {
		if err := f.store.Append(ctx, scope, []types.Chunk{historyChunk("Question: q\nAnswer: a")}); err != nil {
			t.Fatal(err)
		}
	}
	// Another user's history must survive
	if err := f.registry.AddUser("bob", "pw"); err != nil {
		t.Fatal(err)
	}
	if err := f.store.Append(ctx, types.HistoryScope("bob", ""), []types.Chunk{historyChunk("Question: q\nAnswer: a")}); err != nil {
		t.Fatal(err)
	}

	if err := f.store.DeleteUser(ctx, "alice"); err != nil {
		t.Fatal(err)
	}

	if f.registry.Exists("alice") {
		t.Error("alice still registered")
	}
	for _, scope := range []types.ScopeKey{
		types.UserScope("alice"),
		types.HistoryScope("alice", ""),
		types.HistoryScope("alice", "conv1"),
	} {
		if f.store.Exists(scope) {
			t.Errorf("collection %s still exists", scope)
		}
	}
	if !f.store.Exists(types.HistoryScope("bob", "")) {
		t.Error("bob's history was destroyed")
	}
	if _, err := os.Stat(f.docs.UserDir("alice")); !os.IsNotExist(err) {
		t.Error("alice's document directory still present")
	}
}

func TestDeleteUserSparesSimilarlyNamedUsers(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	for _, id := range []string{"bob", "bob2"} {
		if err := f.registry.AddUser(id, "pw"); err != nil {
			t.Fatal(err)
		}
	}
	// bob's accumulated and conversation-scoped history
	for _, scope := range []types.ScopeKey{
		types.HistoryScope("bob", ""),
		types.HistoryScope("bob", "2"),
	} {
		if err := f.store.Append(ctx, scope, []types.Chunk{historyChunk("Question: q\nAnswer: a")}); err != nil {
			t.Fatal(err)
		}
	}
	// bob2's, whose collection names share the history_bob prefix
	for _, scope := range []types.ScopeKey{
		types.HistoryScope("bob2", ""),
		types.HistoryScope("bob2", "7"),
	} {
		if err := f.store.Append(ctx, scope, []types.Chunk{historyChunk("Question: q\nAnswer: a")}); err != nil {
			t.Fatal(err)
		}
	}

	if err := f.store.DeleteUser(ctx, "bob"); err != nil {
		t.Fatal(err)
	}

	for _, scope := range []types.ScopeKey{
		types.HistoryScope("bob", ""),
		types.HistoryScope("bob", "2"),
	} {
		if f.store.Exists(scope) {
			t.Errorf("bob's collection %s survived deletion", scope)
		}
	}
	for _, scope := range []types.ScopeKey{
		types.HistoryScope("bob2", ""),
		types.HistoryScope("bob2", "7"),
	} {
		if !f.store.Exists(scope) {
			t.Errorf("bob2's collection %s was destroyed by deleting bob", scope)
		}
	}
	if !f.registry.Exists("bob2") {
		t.Error("bob2 deregistered by deleting bob")
	}
}

func TestDeleteUserUnknown(t *testing.T) {
	f := newFixture(t)

	err := f.store.DeleteUser(context.Background(), "ghost")
	if !errors.Is(err, types.ErrNotFound) {
		t.Errorf("error = %v, want ErrNotFound", err)
	}
}

func TestSecondDimensionMismatchSurfaces(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	scope := types.SharedScope()

	// The embedder produces vectors that disagree with its declared
	// dimensionality, so the insert retried after the rebuild fails the
	// same way and the error must reach the caller.
	f.embedder.vecDims = f.embedder.dims + 1

	path := f.saveDoc(t, scope, "doc.txt", "content")
	err := f.store.InsertFile(ctx, scope, path)
	if !errors.Is(err, types.ErrDimensionMismatch) {
		t.Fatalf("error = %v, want ErrDimensionMismatch", err)
	}
	// Exactly one retry: the initial insert and the post-rebuild one
	if f.embedder.calls != 2 {
		t.Errorf("embedder called %d times, want 2", f.embedder.calls)
	}
}

func TestInsertFileEmbedFailure(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	scope := types.SharedScope()

	path := f.saveDoc(t, scope, "doc.txt", "content")
	f.embedder.fail = true

	err := f.store.InsertFile(ctx, scope, path)
	if !errors.Is(err, types.ErrEmbeddingFailed) {
		t.Errorf("error = %v, want ErrEmbeddingFailed", err)
	}
	if f.store.Exists(scope) {
		t.Error("collection created despite failed embedding")
	}
}
