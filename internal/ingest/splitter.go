package ingest

import (
	"fmt"
	"maps"

	"github.com/tmc/langchaingo/textsplitter"
)

// separators are tried in order: paragraph, line, word, character.
var separators = []string{"\n\n", "\n", " ", ""}

// Splitter cuts documents into overlapping chunks at the coarsest boundary
// that keeps them within the size target.
type Splitter struct {
	splitter textsplitter.RecursiveCharacter
}

// NewSplitter creates a splitter with the given chunk size and overlap,
// measured in characters.
func NewSplitter(chunkSize, chunkOverlap int) (*Splitter, error) {
	if chunkSize <= 0 {
		return nil, fmt.Errorf("%w: chunk size must be positive, got %d", ErrInvalidOptions, chunkSize)
	}
	if chunkOverlap < 0 || chunkOverlap >= chunkSize {
		return nil, fmt.Errorf("%w: chunk overlap must be in [0, %d), got %d", ErrInvalidOptions, chunkSize, chunkOverlap)
	}

	return &Splitter{
		splitter: textsplitter.NewRecursiveCharacter(
			textsplitter.WithChunkSize(chunkSize),
			textsplitter.WithChunkOverlap(chunkOverlap),
			textsplitter.WithSeparators(separators),
		),
	}, nil
}

// SplitText splits text into chunks.
func (s *Splitter) SplitText(text string) ([]string, error) {
	if text == "" {
		return nil, nil
	}
	return s.splitter.SplitText(text)
}

// Split splits doc into chunks carrying a copy of its metadata.
func (s *Splitter) Split(doc Document) ([]Chunk, error) {
	parts, err := s.SplitText(doc.Content)
	if err != nil {
		return nil, fmt.Errorf("splitting %s: %w", doc.Metadata[MetadataSource], err)
	}

	chunks := make([]Chunk, 0, len(parts))
	for _, part := range parts {
		if part == "" {
			continue
		}
		metadata := maps.Clone(doc.Metadata)
		if metadata == nil {
			metadata = make(map[string]string, 1)
		}
		chunks = append(chunks, Chunk{Content: part, Metadata: metadata})
	}
	return chunks, nil
}
