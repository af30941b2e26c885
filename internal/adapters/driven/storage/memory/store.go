package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/custodia-labs/sercha-rag/internal/adapters/driven/storage/vecsearch"
	"github.com/custodia-labs/sercha-rag/internal/core/domain"
	"github.com/custodia-labs/sercha-rag/internal/core/ports/driven"
)

// Ensure Store implements the interfaces.
var (
	_ driven.VectorStore    = (*Store)(nil)
	_ driven.QueryLogStore  = (*Store)(nil)
	_ driven.PromptRegistry = (*Store)(nil)
)

// Store is an in-memory implementation of the storage ports.
// A single mutex makes every write atomic, which mirrors the unique
// file_hash constraint and single-transaction writes of the SQL stores.
type Store struct {
	mu         sync.RWMutex
	dimensions int
	documents  map[string]domain.Document
	byHash     map[string]string
	chunks     map[string][]domain.Chunk
	logs       []domain.QueryLog
	prompts    []domain.SystemPrompt
}

// NewStore creates a new in-memory store for vectors of the given length.
func NewStore(dimensions int) *Store {
	return &Store{
		dimensions: dimensions,
		documents:  make(map[string]domain.Document),
		byHash:     make(map[string]string),
		chunks:     make(map[string][]domain.Chunk),
	}
}

// Dimensions returns the vector length the store accepts.
func (s *Store) Dimensions() int {
	return s.dimensions
}

// FindDocumentByHash returns the document with the given content hash.
func (s *Store) FindDocumentByHash(_ context.Context, fileHash string) (*domain.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byHash[fileHash]
	if !ok {
		return nil, domain.ErrNotFound
	}
	doc := s.documents[id]
	return &doc, nil
}

// CreateDocumentWithChunks stores a document and its chunks atomically.
func (s *Store) CreateDocumentWithChunks(_ context.Context, doc *domain.Document, chunks []domain.Chunk) error {
	for _, c := range chunks {
		if len(c.Embedding) != s.dimensions {
			return &domain.DimensionMismatchError{Expected: s.dimensions, Got: len(c.Embedding)}
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if id, ok := s.byHash[doc.FileHash]; ok {
		return &domain.DuplicateDocumentError{DocumentID: id, FileHash: doc.FileHash}
	}

	stored := make([]domain.Chunk, len(chunks))
	copy(stored, chunks)
	for i := range stored {
		stored[i].DocumentID = doc.ID
	}

	s.documents[doc.ID] = *doc
	s.byHash[doc.FileHash] = doc.ID
	s.chunks[doc.ID] = stored
	return nil
}

// SimilaritySearch ranks every stored chunk against the query vector.
func (s *Store) SimilaritySearch(_ context.Context, q driven.SimilarityQuery) ([]domain.RetrievedChunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var candidates []vecsearch.Candidate
	for docID, chunks := range s.chunks {
		if q.DocumentID != nil && docID != *q.DocumentID {
			continue
		}
		for _, c := range chunks {
			candidates = append(candidates, vecsearch.Candidate{
				ChunkID:    c.ID,
				DocumentID: c.DocumentID,
				Text:       c.Text,
				Ordinal:    c.Ordinal,
				Embedding:  c.Embedding,
			})
		}
	}
	return vecsearch.Rank(candidates, q), nil
}

// ListDocuments returns every document with its chunk count, newest first.
func (s *Store) ListDocuments(_ context.Context) ([]domain.DocumentSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.DocumentSummary, 0, len(s.documents))
	for id, doc := range s.documents {
		result = append(result, domain.DocumentSummary{Document: doc, ChunkCount: len(s.chunks[id])})
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.After(result[j].CreatedAt)
		}
		return result[i].ID < result[j].ID
	})
	return result, nil
}

// GetDocument retrieves a document by ID.
func (s *Store) GetDocument(_ context.Context, id string) (*domain.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.documents[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &doc, nil
}

// GetChunks returns a document's chunks ordered by ordinal, without embeddings.
func (s *Store) GetChunks(_ context.Context, documentID string) ([]domain.Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stored := s.chunks[documentID]
	result := make([]domain.Chunk, len(stored))
	for i, c := range stored {
		c.Embedding = nil
		result[i] = c
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Ordinal < result[j].Ordinal })
	return result, nil
}

// DeleteDocument removes a document and its chunks.
func (s *Store) DeleteDocument(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.documents[id]
	if !ok {
		return domain.ErrNotFound
	}
	delete(s.byHash, doc.FileHash)
	delete(s.chunks, id)
	delete(s.documents, id)
	return nil
}

// AppendQueryLog stores a query log entry.
func (s *Store) AppendQueryLog(_ context.Context, entry *domain.QueryLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := *entry
	e.RetrievedChunkIDs = append([]string(nil), entry.RetrievedChunkIDs...)
	s.logs = append(s.logs, e)
	return nil
}

// ListQueryLogs returns the most recent entries, newest first.
func (s *Store) ListQueryLogs(_ context.Context, limit int) ([]domain.QueryLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 || limit > len(s.logs) {
		limit = len(s.logs)
	}
	result := make([]domain.QueryLog, 0, limit)
	for i := len(s.logs) - 1; i >= 0 && len(result) < limit; i-- {
		result = append(result, s.logs[i])
	}
	return result, nil
}

// Metrics aggregates query logs and corpus size.
func (s *Store) Metrics(_ context.Context) (*domain.ServiceMetrics, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m := &domain.ServiceMetrics{
		TotalQueries:   len(s.logs),
		TotalDocuments: len(s.documents),
	}
	for _, chunks := range s.chunks {
		m.TotalChunks += len(chunks)
	}
	if len(s.logs) == 0 {
		return m, nil
	}

	var latency int64
	var cost float64
	var costed bool
	for _, l := range s.logs {
		latency += l.LatencyMS
		m.TotalTokens += l.TotalTokens
		if l.CostUSD != nil {
			cost += *l.CostUSD
			costed = true
		}
	}
	avgLatency := float64(latency) / float64(len(s.logs))
	avgTokens := float64(m.TotalTokens) / float64(len(s.logs))
	m.AvgLatencyMS = &avgLatency
	m.AvgTokensPerQuery = &avgTokens
	if costed {
		m.TotalCostUSD = &cost
	}
	return m, nil
}

// CreatePrompt appends a new inactive version of the named prompt.
func (s *Store) CreatePrompt(_ context.Context, name, content, author string) (*domain.SystemPrompt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	version := 1
	for _, p := range s.prompts {
		if p.Name == name && p.Version >= version {
			version = p.Version + 1
		}
	}
	p := domain.SystemPrompt{
		ID:        uuid.New().String(),
		Name:      name,
		Version:   version,
		Content:   content,
		Author:    author,
		CreatedAt: time.Now().UTC(),
	}
	s.prompts = append(s.prompts, p)
	return &p, nil
}

// ActivatePrompt makes the given version the single active one for its name.
func (s *Store) ActivatePrompt(_ context.Context, id string) (*domain.SystemPrompt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := -1
	for i, p := range s.prompts {
		if p.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, domain.ErrNotFound
	}

	name := s.prompts[idx].Name
	for i := range s.prompts {
		if s.prompts[i].Name == name {
			s.prompts[i].IsActive = i == idx
		}
	}
	p := s.prompts[idx]
	return &p, nil
}

// ActivePrompt returns the active version for a name.
func (s *Store) ActivePrompt(_ context.Context, name string) (*domain.SystemPrompt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, p := range s.prompts {
		if p.Name == name && p.IsActive {
			return &p, nil
		}
	}
	return nil, domain.ErrNotFound
}

// ListPrompts returns versions, newest first. Empty name lists all prompts.
func (s *Store) ListPrompts(_ context.Context, name string) ([]domain.SystemPrompt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []domain.SystemPrompt
	for _, p := range s.prompts {
		if name == "" || p.Name == name {
			result = append(result, p)
		}
	}
	sort.SliceStable(result, func(i, j int) bool {
		if result[i].Name != result[j].Name {
			return result[i].Name < result[j].Name
		}
		return result[i].Version > result[j].Version
	})
	return result, nil
}
