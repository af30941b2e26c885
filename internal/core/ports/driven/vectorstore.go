package driven

import (
	"context"

	"github.com/custodia-labs/sercha-rag/internal/core/domain"
)

// VectorStore persists documents and their embedded chunks and answers
// similarity queries. A document and its chunks are written atomically.
type VectorStore interface {
	// FindDocumentByHash returns the document with the given content hash.
	// Returns domain.ErrNotFound if none exists.
	FindDocumentByHash(ctx context.Context, fileHash string) (*domain.Document, error)

	// CreateDocumentWithChunks stores a document and all its chunks in one
	// transaction. If a document with the same FileHash already exists it
	// returns *domain.DuplicateDocumentError carrying the stored document's ID
	// and writes nothing. Once the transaction has begun, cancellation of ctx
	// does not abort the commit.
	CreateDocumentWithChunks(ctx context.Context, doc *domain.Document, chunks []domain.Chunk) error

	// SimilaritySearch returns the nearest chunks to the query vector.
	SimilaritySearch(ctx context.Context, q SimilarityQuery) ([]domain.RetrievedChunk, error)

	// Dimensions returns the vector length the store accepts.
	Dimensions() int

	// ListDocuments returns every document with its chunk count, newest first.
	ListDocuments(ctx context.Context) ([]domain.DocumentSummary, error)

	// GetDocument returns a document by ID.
	// Returns domain.ErrNotFound if it does not exist.
	GetDocument(ctx context.Context, id string) (*domain.Document, error)

	// GetChunks returns a document's chunks ordered by ordinal, without embeddings.
	GetChunks(ctx context.Context, documentID string) ([]domain.Chunk, error)

	// DeleteDocument removes a document and its chunks.
	// Returns domain.ErrNotFound if it does not exist.
	DeleteDocument(ctx context.Context, id string) error
}

// SimilarityQuery describes a nearest-neighbour lookup.
// Stores apply, in order: the document filter, the distance threshold,
// the ordering (distance, then ordinal, then chunk ID, all ascending)
// and finally the limit.
type SimilarityQuery struct {
	// Vector is the query embedding.
	Vector []float32

	// DocumentID restricts the search to one document when set.
	DocumentID *string

	// MaxDistance excludes chunks with cosine distance above it when set.
	MaxDistance *float64

	// Limit is the maximum number of results.
	Limit int
}

// QueryLogStore persists query telemetry.
type QueryLogStore interface {
	// AppendQueryLog stores a query log entry.
	AppendQueryLog(ctx context.Context, entry *domain.QueryLog) error

	// ListQueryLogs returns the most recent entries, newest first.
	ListQueryLogs(ctx context.Context, limit int) ([]domain.QueryLog, error)

	// Metrics aggregates query logs and corpus size.
	Metrics(ctx context.Context) (*domain.ServiceMetrics, error)
}
