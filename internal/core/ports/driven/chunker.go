package driven

import "github.com/custodia-labs/sercha-rag/internal/core/domain"

// Chunker splits extracted text into ordered, token-bounded chunks.
type Chunker interface {
	// Name returns the chunker name for logging.
	Name() string

	// Chunk returns chunks with Text, Ordinal and TokenEstimate populated.
	// Empty or whitespace-only text yields an empty slice.
	Chunk(text string) []domain.Chunk
}
