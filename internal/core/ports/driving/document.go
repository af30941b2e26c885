package driving

import (
	"context"

	"github.com/custodia-labs/sercha-rag/internal/core/domain"
)

// IngestService turns uploaded bytes into stored, embedded chunks.
type IngestService interface {
	// Ingest stores the document unless identical content already exists.
	// Ingesting the same bytes twice returns the same DocumentID with
	// AlreadyExisted set on the second call.
	Ingest(ctx context.Context, req domain.IngestRequest) (*domain.IngestResult, error)
}

// DocumentService inspects and removes ingested documents.
type DocumentService interface {
	// List returns all documents with chunk counts, newest first.
	List(ctx context.Context) ([]domain.DocumentSummary, error)

	// Get retrieves a document by ID.
	Get(ctx context.Context, documentID string) (*domain.Document, error)

	// Chunks returns a document's chunks in ordinal order.
	Chunks(ctx context.Context, documentID string) ([]domain.Chunk, error)

	// Delete removes a document and all its chunks.
	Delete(ctx context.Context, documentID string) error
}
