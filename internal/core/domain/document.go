package domain

import "time"

// Document represents a piece of ingested content.
// A document is created once per distinct content digest and is never mutated.
type Document struct {
	// ID is the unique identifier for the document.
	ID string

	// Filename is the name the content was uploaded under.
	Filename string

	// ContentType is the normalised MIME type of the uploaded bytes.
	ContentType string

	// FileHash is the hex SHA-256 digest of the raw bytes.
	// No two documents share a hash.
	FileHash string

	// CreatedAt is when the document was ingested.
	CreatedAt time.Time
}

// DocumentSummary is a document together with its chunk count, used for listings.
type DocumentSummary struct {
	Document

	// ChunkCount is the number of chunks owned by the document.
	ChunkCount int
}

// Chunk represents a retrievable passage within a document.
// Chunks are created in a single batch at ingestion time and are immutable.
type Chunk struct {
	// ID is the unique identifier for the chunk.
	ID string

	// DocumentID links to the owning Document.
	DocumentID string

	// Text is the passage content.
	Text string

	// Ordinal is the 0-based position within the document.
	Ordinal int

	// TokenEstimate is the estimated LLM token count of Text.
	TokenEstimate int

	// Embedding is the vector representation for similarity search.
	Embedding []float32
}

// RetrievedChunk is a chunk returned by similarity search.
type RetrievedChunk struct {
	// ChunkID is the matched chunk.
	ChunkID string

	// DocumentID is the document owning the chunk.
	DocumentID string

	// Text is the passage content.
	Text string

	// Ordinal is the chunk position within its document.
	Ordinal int

	// Distance is the cosine distance to the query vector (0 = identical, 2 = opposite).
	Distance float64

	// Score is the cosine similarity (1 - Distance).
	Score float64
}
