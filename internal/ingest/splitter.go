package ingest

// Default splitting constants. Fixed-size overlapping windows; the
// sizes are configuration, never derived from content.
const (
	DefaultChunkSize    = 1000
	DefaultChunkOverlap = 200
)

// Splitter cuts text into fixed-size overlapping chunks.
type Splitter struct {
	Size    int // characters per chunk
	Overlap int // characters shared between consecutive chunks
}

// NewSplitter creates a splitter, applying defaults for zero values.
func NewSplitter(size, overlap int) Splitter {
	if size <= 0 {
		size = DefaultChunkSize
	}
	if overlap < 0 || overlap >= size {
		overlap = DefaultChunkOverlap
	}
	return Splitter{Size: size, Overlap: overlap}
}

// Split cuts text into chunks of at most Size runes, each starting
// Size-Overlap runes after the previous one. Empty input yields no
// chunks.
func (s Splitter) Split(text string) []string {
	runes := []rune(text)
	if len(runes) == 0 {
		return nil
	}
	if len(runes) <= s.Size {
		return []string{text}
	}

	step := s.Size - s.Overlap
	var chunks []string
	for start := 0; start < len(runes); start += step {
		end := start + s.Size
		if end >= len(runes) {
			chunks = append(chunks, string(runes[start:]))
			break
		}
		chunks = append(chunks, string(runes[start:end]))
	}
	return chunks
}
