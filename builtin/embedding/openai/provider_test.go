package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestEmbedBatches(t *testing.T) {
	var requests int
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++

		var req struct {
			Input []string `json:"input"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Error(err)
		}

		data := make([]map[string]any, len(req.Input))
		for i := range req.Input {
			data[i] = map[string]any{
				"object":    "embedding",
				"index":     i,
				"embedding": []float64{0.1, 0.2, 0.3},
			}
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"object": "list",
			"data":   data,
			"model":  "test-model",
		})
	}))
	defer ts.Close()

	p := New(Config{Model: "test-model", APIKey: "key", BaseURL: ts.URL, BatchSize: 2, Dimensions: 3})

	out, err := p.Embed(context.Background(), []string{"a", "b", "c"})
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != 3 {
		t.Fatalf("got %d embeddings, want 3", len(out))
	}
	for i, v := range out {
		if len(v) != 3 {
			t.Errorf("embedding %d has %d dimensions, want 3", i, len(v))
		}
	}
	if requests != 2 {
		t.Errorf("server saw %d requests, want 2 batches", requests)
	}
}

func TestDimensionsFromModelTable(t *testing.T) {
	p := New(Config{Model: "text-embedding-3-large", APIKey: "key"})
	if p.Dimensions() != 3072 {
		t.Errorf("Dimensions = %d, want 3072", p.Dimensions())
	}

	p = New(Config{Model: "unknown-model", APIKey: "key"})
	if p.Dimensions() != DefaultDimensions {
		t.Errorf("Dimensions = %d, want default %d", p.Dimensions(), DefaultDimensions)
	}
}
