package services

import (
	"context"
	"strings"

	"github.com/custodia-labs/sercha-rag/internal/core/domain"
	"github.com/custodia-labs/sercha-rag/internal/core/ports/driven"
	"github.com/custodia-labs/sercha-rag/internal/core/ports/driving"
	"github.com/custodia-labs/sercha-rag/internal/logger"
)

// Ensure DocumentService implements the interface.
var _ driving.DocumentService = (*DocumentService)(nil)

// DocumentService inspects and removes stored documents.
type DocumentService struct {
	store driven.VectorStore
}

// NewDocumentService creates a new document service.
func NewDocumentService(store driven.VectorStore) *DocumentService {
	return &DocumentService{store: store}
}

// List returns all documents with chunk counts, newest first.
func (s *DocumentService) List(ctx context.Context) ([]domain.DocumentSummary, error) {
	docs, err := s.store.ListDocuments(ctx)
	if err != nil {
		return nil, storageError("list documents", err)
	}
	return docs, nil
}

// Get retrieves a document by ID.
func (s *DocumentService) Get(ctx context.Context, documentID string) (*domain.Document, error) {
	if strings.TrimSpace(documentID) == "" {
		return nil, domain.NewValidationError("document_id", "must not be empty")
	}
	doc, err := s.store.GetDocument(ctx, documentID)
	if err != nil {
		return nil, storageError("get document", err)
	}
	return doc, nil
}

// Chunks returns a document's chunks in ordinal order.
func (s *DocumentService) Chunks(ctx context.Context, documentID string) ([]domain.Chunk, error) {
	// Verify document exists
	if _, err := s.Get(ctx, documentID); err != nil {
		return nil, err
	}
	chunks, err := s.store.GetChunks(ctx, documentID)
	if err != nil {
		return nil, storageError("get chunks", err)
	}
	return chunks, nil
}

// Delete removes a document and its chunks.
func (s *DocumentService) Delete(ctx context.Context, documentID string) error {
	if strings.TrimSpace(documentID) == "" {
		return domain.NewValidationError("document_id", "must not be empty")
	}
	if err := s.store.DeleteDocument(ctx, documentID); err != nil {
		return storageError("delete document", err)
	}
	logger.Event("document_deleted", "document_id", documentID)
	return nil
}
