package mcp

import (
	"context"

	"github.com/custodia-labs/sercha-rag/internal/core/domain"
)

// mockQueryService is a mock implementation of driving.QueryService.
type mockQueryService struct {
	result *domain.QueryResult
	err    error
	got    domain.QueryRequest
}

func (m *mockQueryService) Answer(_ context.Context, req domain.QueryRequest) (*domain.QueryResult, error) {
	m.got = req
	return m.result, m.err
}

// mockIngestService is a mock implementation of driving.IngestService.
type mockIngestService struct {
	result *domain.IngestResult
	err    error
	got    domain.IngestRequest
}

func (m *mockIngestService) Ingest(_ context.Context, req domain.IngestRequest) (*domain.IngestResult, error) {
	m.got = req
	return m.result, m.err
}

// mockDocumentService is a mock implementation of driving.DocumentService.
type mockDocumentService struct {
	documents []domain.DocumentSummary
	chunks    []domain.Chunk
	err       error
}

func (m *mockDocumentService) List(_ context.Context) ([]domain.DocumentSummary, error) {
	return m.documents, m.err
}

func (m *mockDocumentService) Get(_ context.Context, id string) (*domain.Document, error) {
	for i := range m.documents {
		if m.documents[i].ID == id {
			return &m.documents[i].Document, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *mockDocumentService) Chunks(_ context.Context, _ string) ([]domain.Chunk, error) {
	return m.chunks, m.err
}

func (m *mockDocumentService) Delete(_ context.Context, _ string) error {
	return m.err
}

// mockPromptService is a mock implementation of driving.PromptService.
type mockPromptService struct {
	active map[string]*domain.SystemPrompt
}

func (m *mockPromptService) Create(_ context.Context, _, _, _ string) (*domain.SystemPrompt, error) {
	return nil, nil
}

func (m *mockPromptService) Activate(_ context.Context, _ string) (*domain.SystemPrompt, error) {
	return nil, nil
}

func (m *mockPromptService) Active(_ context.Context, name string) (*domain.SystemPrompt, error) {
	if p, ok := m.active[name]; ok {
		return p, nil
	}
	return nil, &domain.PromptNotFoundError{Name: name}
}

func (m *mockPromptService) List(_ context.Context, _ string) ([]domain.SystemPrompt, error) {
	return nil, nil
}

func (m *mockPromptService) EnsureDefault(_ context.Context) error {
	return nil
}

func (m *mockPromptService) Sync(_ context.Context, _, _, _ string) (bool, error) {
	return false, nil
}
