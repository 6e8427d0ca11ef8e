package history

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/spetr/docchat/builtin/vectorstore/memory"
	"github.com/spetr/docchat/internal/collection"
	"github.com/spetr/docchat/internal/docstore"
	"github.com/spetr/docchat/internal/ingest"
	"github.com/spetr/docchat/internal/registry"
	"github.com/spetr/docchat/pkg/types"
)

type stubEmbedder struct{}

func (stubEmbedder) Name() string    { return "stub" }
func (stubEmbedder) Dimensions() int { return 2 }
func (stubEmbedder) Close() error    { return nil }

func (stubEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, 0}
	}
	return out, nil
}

func newRecorder(t *testing.T) (*Recorder, *collection.Store) {
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

	store := collection.New(collection.Config{
		Indexes:  memory.New(),
		Docs:     docs,
		Registry: reg,
		Embedder: stubEmbedder{},
		Loader:   ingest.TextLoader{},
		Splitter: ingest.NewSplitter(1000, 200),
	})
	return New(store), store
}

func TestRecord(t *testing.T) {
	ctx := context.Background()
	rec, store := newRecorder(t)

	if err := rec.Record(ctx, "alice", "", "what is up?", "not much"); err != nil {
		t.Fatal(err)
	}

	results, err := store.Search(ctx, types.HistoryScope("alice", ""), []float32{1, 0}, 5, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 {
		t.Fatalf("got %d history chunks, want 1", len(results))
	}
	c := results[0].Chunk
	if c.Content != "Question: what is up?\nAnswer: not much" {
		t.Errorf("content = %q", c.Content)
	}
	if c.Source != Source {
		t.Errorf("source = %q, want %q", c.Source, Source)
	}
	if c.Kind != types.KindChatHistory {
		t.Errorf("kind = %q", c.Kind)
	}
}

func TestRecordConversationScoped(t *testing.T) {
	ctx := context.Background()
	rec, store := newRecorder(t)

	if err := rec.Record(ctx, "alice", "conv1", "q", "a"); err != nil {
		t.Fatal(err)
	}

	if !store.Exists(types.HistoryScope("alice", "conv1")) {
		t.Error("conversation history collection missing")
	}
	if store.Exists(types.HistoryScope("alice", "")) {
		t.Error("per-user history created for conversation-scoped turn")
	}
}

func TestRecordAppendsOnly(t *testing.T) {
	ctx := context.Background()
	rec, store := newRecorder(t)

	for i := 0; i < 3; i++ {
		if err := rec.Record(ctx, "alice", "", "q", "a"); err != nil {
			t.Fatal(err)
		}
	}

	results, err := store.Search(ctx, types.HistoryScope("alice", ""), []float32{1, 0}, 10, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 3 {
		t.Errorf("got %d turns, want 3 identical turns kept", len(results))
	}
}
