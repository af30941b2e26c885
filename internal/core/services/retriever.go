package services

import (
	"context"
	"fmt"

	"github.com/custodia-labs/sercha-rag/internal/core/domain"
	"github.com/custodia-labs/sercha-rag/internal/core/ports/driven"
	"github.com/custodia-labs/sercha-rag/internal/logger"
)

// RetrieveRequest describes a similarity lookup.
type RetrieveRequest struct {
	// Vector is the query embedding.
	Vector []float32

	// TopK is the maximum number of results, between 1 and domain.MaxTopK.
	TopK int

	// DocumentID restricts results to one document when set.
	DocumentID *string

	// ScoreThreshold drops results with similarity below it when set.
	ScoreThreshold *float64
}

// Retriever ranks stored chunks by cosine similarity to a query vector.
// Results are filtered by document, then by threshold, then ordered by
// similarity (ties broken by ordinal, then chunk ID) and truncated to TopK.
type Retriever struct {
	store    driven.VectorStore
	embedder driven.EmbeddingService
	retry    RetryPolicy
}

// NewRetriever creates a retriever. The embedder is only needed for RetrieveText.
func NewRetriever(store driven.VectorStore, embedder driven.EmbeddingService) *Retriever {
	return &Retriever{
		store:    store,
		embedder: embedder,
		retry:    DefaultRetryPolicy(),
	}
}

// SetRetryPolicy sets the policy used for query embedding calls.
func (r *Retriever) SetRetryPolicy(p RetryPolicy) {
	r.retry = p
}

// Retrieve returns the chunks most similar to req.Vector.
// An empty result is not an error.
func (r *Retriever) Retrieve(ctx context.Context, req RetrieveRequest) ([]domain.RetrievedChunk, error) {
	if err := r.validate(req); err != nil {
		return nil, err
	}

	q := driven.SimilarityQuery{
		Vector:     req.Vector,
		DocumentID: req.DocumentID,
		Limit:      req.TopK,
	}
	if req.ScoreThreshold != nil {
		maxDistance := 1 - *req.ScoreThreshold
		q.MaxDistance = &maxDistance
	}

	results, err := r.store.SimilaritySearch(ctx, q)
	if err != nil {
		return nil, storageError("similarity search", err)
	}

	domain.SortRetrieved(results)
	if len(results) > req.TopK {
		results = results[:req.TopK]
	}
	for i := range results {
		results[i].Score = 1 - results[i].Distance
	}
	if results == nil {
		results = []domain.RetrievedChunk{}
	}

	logger.Debug("Retrieved %d chunks (topK=%d)", len(results), req.TopK)
	return results, nil
}

// RetrieveText embeds the query text and retrieves similar chunks.
func (r *Retriever) RetrieveText(ctx context.Context, query string, req RetrieveRequest) ([]domain.RetrievedChunk, error) {
	vec, err := r.EmbedQuery(ctx, query)
	if err != nil {
		return nil, err
	}
	req.Vector = vec
	return r.Retrieve(ctx, req)
}

// EmbedQuery embeds query text with retries and checks its dimension.
func (r *Retriever) EmbedQuery(ctx context.Context, query string) ([]float32, error) {
	if r.embedder == nil {
		return nil, domain.ErrEmbeddingUnavailable
	}

	var vec []float32
	err := r.retry.Do(ctx, "embed query", func(ctx context.Context) error {
		var err error
		vec, err = r.embedder.Embed(ctx, query)
		if err != nil {
			return fmt.Errorf("%w: %w", domain.ErrEmbeddingProvider, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if dims := r.store.Dimensions(); len(vec) != dims {
		return nil, &domain.DimensionMismatchError{Expected: dims, Got: len(vec)}
	}
	return vec, nil
}

func (r *Retriever) validate(req RetrieveRequest) error {
	if dims := r.store.Dimensions(); len(req.Vector) != dims {
		return &domain.DimensionMismatchError{Expected: dims, Got: len(req.Vector)}
	}
	if req.TopK < 1 || req.TopK > domain.MaxTopK {
		return domain.NewValidationError("top_k", fmt.Sprintf("must be between 1 and %d", domain.MaxTopK))
	}
	if t := req.ScoreThreshold; t != nil && (*t < 0 || *t > 1) {
		return domain.NewValidationError("score_threshold", "must be between 0 and 1")
	}
	return nil
}
