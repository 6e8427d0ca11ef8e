package answer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/spetr/docchat/pkg/provider"
	"github.com/spetr/docchat/pkg/types"
)

type stubProvider struct {
	name  string
	reply string
	err   error
	calls int
}

func (p *stubProvider) Name() string { return p.name }
func (p *stubProvider) Close() error { return nil }

func (p *stubProvider) Generate(ctx context.Context, prompt string) (string, error) {
	p.calls++
	return p.reply, p.err
}

var _ provider.GenerationProvider = (*stubProvider)(nil)

func TestNewSelectorEmpty(t *testing.T) {
	if _, err := NewSelector(); !errors.Is(err, types.ErrNoProviderConfigured) {
		t.Errorf("error = %v, want ErrNoProviderConfigured", err)
	}
	// Nil slots from unconfigured providers do not count
	if _, err := NewSelector(nil, nil); !errors.Is(err, types.ErrNoProviderConfigured) {
		t.Errorf("error = %v, want ErrNoProviderConfigured", err)
	}
}

func TestGenerateFailover(t *testing.T) {
	boom := fmt.Errorf("boom")

	tests := []struct {
		name          string
		primaryErr    error
		secondary     bool
		secondaryErr  error
		wantAnswer    string
		wantErr       error
		wantSecondary int
	}{
		{
			name:       "primary succeeds",
			wantAnswer: "primary answer",
		},
		{
			name:       "single provider fails",
			primaryErr: boom,
			wantErr:    types.ErrProviderUnavailable,
		},
		{
			name:          "failover to secondary",
			primaryErr:    boom,
			secondary:     true,
			wantAnswer:    "secondary answer",
			wantSecondary: 1,
		},
		{
			name:          "both fail",
			primaryErr:    boom,
			secondary:     true,
			secondaryErr:  boom,
			wantErr:       types.ErrAllProvidersUnavailable,
			wantSecondary: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			primary := &stubProvider{name: "openai", reply: "primary answer", err: tt.primaryErr}
			providers := []provider.GenerationProvider{primary}

			var secondary *stubProvider
			if tt.secondary {
				secondary = &stubProvider{name: "ollama", reply: "secondary answer", err: tt.secondaryErr}
				providers = append(providers, secondary)
			}

			sel, err := NewSelector(providers...)
			if err != nil {
				t.Fatal(err)
			}

			got, err := sel.Generate(context.Background(), "prompt")
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("error = %v, want %v", err, tt.wantErr)
				}
			} else {
				if err != nil {
					t.Fatal(err)
				}
				if got != tt.wantAnswer {
					t.Errorf("answer = %q, want %q", got, tt.wantAnswer)
				}
			}

			if primary.calls != 1 {
				t.Errorf("primary called %d times, want 1", primary.calls)
			}
			if secondary != nil && secondary.calls != tt.wantSecondary {
				t.Errorf("secondary called %d times, want %d", secondary.calls, tt.wantSecondary)
			}
		})
	}
}

func TestBuildPrompt(t *testing.T) {
	retrieved := []types.ScoredChunk{
		{Chunk: types.Chunk{Content: "first document chunk", Kind: types.KindDocument}},
		{Chunk: types.Chunk{Content: "Question: earlier\nAnswer: yes", Kind: types.KindChatHistory}},
		{Chunk: types.Chunk{Content: "second document chunk", Kind: types.KindDocument}},
	}

	prompt := BuildPrompt("what now?", retrieved)

	if !strings.Contains(prompt, "ONLY the information in the context") {
		t.Error("prompt missing the context-only instruction")
	}
	if !strings.Contains(prompt, "I don't know from the provided documents.") {
		t.Error("prompt missing the refusal phrase")
	}
	if !strings.HasSuffix(prompt, "Question: what now?\nAnswer:") {
		t.Errorf("prompt does not end with the question, got tail %q", prompt[len(prompt)-40:])
	}

	// History precedes documents, documents keep retrieval order
	histPos := strings.Index(prompt, "Question: earlier")
	firstPos := strings.Index(prompt, "first document chunk")
	secondPos := strings.Index(prompt, "second document chunk")
	if histPos < 0 || firstPos < 0 || secondPos < 0 {
		t.Fatal("prompt missing retrieved content")
	}
	if !(histPos < firstPos && firstPos < secondPos) {
		t.Errorf("prompt ordering wrong: history=%d first=%d second=%d", histPos, firstPos, secondPos)
	}
}

func TestBuildPromptNoHistory(t *testing.T) {
	prompt := BuildPrompt("q", []types.ScoredChunk{
		{Chunk: types.Chunk{Content: "doc", Kind: types.KindDocument}},
	})

	if strings.Contains(prompt, "Previous conversation:") {
		t.Error("history section present without history chunks")
	}
}
