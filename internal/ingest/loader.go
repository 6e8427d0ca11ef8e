// Package ingest converts raw documents into retrievable chunks.
package ingest

import (
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"

	"github.com/spetr/docchat/pkg/types"
)

// Page is one page of extracted document text.
type Page struct {
	Text   string
	Number int // 1-based
}

// Loader extracts page-level text from a document file. PDF extraction
// plugs in here as an external implementation; the pipeline only
// depends on this interface.
type Loader interface {
	Load(path string) ([]Page, error)
}

// TextLoader loads plain-text documents. Form feeds act as page
// breaks; a document without them is a single page.
type TextLoader struct{}

// Load reads the file and splits it into pages.
func (TextLoader) Load(path string) ([]Page, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read document: %w", err)
	}

	var pages []Page
	for i, text := range strings.Split(string(data), "\f") {
		if strings.TrimSpace(text) == "" {
			continue
		}
		pages = append(pages, Page{Text: text, Number: i + 1})
	}
	return pages, nil
}

// ChunkDocument loads a document and splits every page into chunks with
// source and page metadata attached.
func ChunkDocument(loader Loader, splitter Splitter, path string) ([]types.Chunk, error) {
	pages, err := loader.Load(path)
	if err != nil {
		return nil, err
	}

	var chunks []types.Chunk
	for _, page := range pages {
		for _, content := range splitter.Split(page.Text) {
			chunks = append(chunks, types.Chunk{
				ID:      uuid.NewString(),
				Content: content,
				Source:  path,
				Page:    page.Number,
				Kind:    types.KindDocument,
			})
		}
	}
	return chunks, nil
}
