package services

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/sercha-rag/internal/adapters/driven/storage/memory"
	"github.com/custodia-labs/sercha-rag/internal/core/domain"
	"github.com/custodia-labs/sercha-rag/internal/core/ports/driven"
)

const refundQuestion = "How long is the refund window?"

type queryFixture struct {
	svc      *QueryService
	store    *memory.Store
	embedder *mockEmbeddingService
	llm      *mockLLMService
}

func newQueryFixture(t *testing.T) *queryFixture {
	t.Helper()
	store := memory.NewStore(2)
	seedDocument(t, store, "refunds",
		[]string{
			"Refunds are accepted within 30 days of purchase.",
			"Shipping is free for orders over 50 euros.",
			"Refunds are paid to the original payment method.",
		},
		[][]float32{unitAt(0.95), unitAt(0.30), unitAt(0.80)},
	)
	require.NoError(t, NewPromptService(store).EnsureDefault(context.Background()))

	embedder := newMockEmbedding(2)
	embedder.vectors[refundQuestion] = []float32{1, 0}

	llm := &mockLLMService{completion: &driven.Completion{
		Content:          "Refunds are accepted within 30 days [Passage 1].",
		Model:            "gpt-4o-mini",
		PromptTokens:     1000,
		CompletionTokens: 200,
		TotalTokens:      1200,
	}}

	retriever := NewRetriever(store, embedder)
	retriever.SetRetryPolicy(fastRetry())
	svc := NewQueryService(retriever, llm, store, store)
	svc.SetGenerationPolicy(GenerationPolicy{Retry: fastRetry()})

	return &queryFixture{svc: svc, store: store, embedder: embedder, llm: llm}
}

func TestQueryService_Answer(t *testing.T) {
	f := newQueryFixture(t)

	res, err := f.svc.Answer(context.Background(), domain.QueryRequest{Query: refundQuestion, TopK: 2})
	require.NoError(t, err)

	assert.Equal(t, refundQuestion, res.Query)
	assert.Equal(t, "Refunds are accepted within 30 days [Passage 1].", res.Answer)
	assert.False(t, res.GenerationFailed)
	assert.Nil(t, res.Debug)

	require.Len(t, res.Chunks, 2)
	require.Len(t, res.Citations, 2)
	assert.Equal(t, domain.Citation{Label: "Passage 1", Rank: 1, ChunkID: "refunds-chunk-0", DocumentID: "refunds", Ordinal: 0}, res.Citations[0])
	assert.Equal(t, domain.Citation{Label: "Passage 2", Rank: 2, ChunkID: "refunds-chunk-2", DocumentID: "refunds", Ordinal: 2}, res.Citations[1])

	assert.Equal(t, 1000, res.PromptTokens)
	assert.Equal(t, 200, res.CompletionTokens)
	assert.Equal(t, 1200, res.TotalTokens)
	require.NotNil(t, res.CostUSD)
	assert.InDelta(t, 0.00027, *res.CostUSD, 1e-12)

	assert.Equal(t, DefaultSystemPrompt, f.llm.lastSystem)
	assert.Equal(t, 1, f.llm.calls)
}

func TestQueryService_Answer_UserMessageFormat(t *testing.T) {
	f := newQueryFixture(t)

	_, err := f.svc.Answer(context.Background(), domain.QueryRequest{Query: refundQuestion, TopK: 2})
	require.NoError(t, err)

	want := "Context passages:\n\n" +
		"[Passage 1]\nRefunds are accepted within 30 days of purchase." +
		"\n\n---\n\n" +
		"[Passage 2]\nRefunds are paid to the original payment method." +
		"\n\nQuestion: " + refundQuestion
	assert.Equal(t, want, f.llm.lastUser)
}

func TestQueryService_Answer_WritesQueryLog(t *testing.T) {
	f := newQueryFixture(t)

	_, err := f.svc.Answer(context.Background(), domain.QueryRequest{Query: refundQuestion, TopK: 2})
	require.NoError(t, err)

	logs, err := f.store.ListQueryLogs(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, refundQuestion, logs[0].QueryText)
	assert.Equal(t, []string{"refunds-chunk-0", "refunds-chunk-2"}, logs[0].RetrievedChunkIDs)
	assert.Equal(t, 1200, logs[0].TotalTokens)
	require.NotNil(t, logs[0].CostUSD)
	assert.GreaterOrEqual(t, logs[0].LatencyMS, int64(0))
}

func TestQueryService_Answer_NoResults(t *testing.T) {
	f := newQueryFixture(t)

	res, err := f.svc.Answer(context.Background(), domain.QueryRequest{
		Query:          refundQuestion,
		ScoreThreshold: threshold(0.99),
	})
	require.NoError(t, err)

	assert.Equal(t, NoResultsAnswer, res.Answer)
	assert.Empty(t, res.Citations)
	assert.Empty(t, res.Chunks)
	assert.Zero(t, res.TotalTokens)
	assert.Nil(t, res.CostUSD)
	assert.Zero(t, f.llm.calls)

	logs, err := f.store.ListQueryLogs(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Empty(t, logs[0].RetrievedChunkIDs)
}

func TestQueryService_Answer_PromptNotFound(t *testing.T) {
	f := newQueryFixture(t)

	_, err := f.svc.Answer(context.Background(), domain.QueryRequest{Query: refundQuestion, PromptName: "missing"})

	var notFound *domain.PromptNotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, "missing", notFound.Name)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.Zero(t, f.embedder.embedCalls.Load())
	assert.Zero(t, f.llm.calls)
}

func TestQueryService_Answer_GenerationFailure(t *testing.T) {
	f := newQueryFixture(t)
	f.llm.err = errors.New("rate limited")

	res, err := f.svc.Answer(context.Background(), domain.QueryRequest{Query: refundQuestion, TopK: 2})
	require.NoError(t, err)

	assert.True(t, res.GenerationFailed)
	assert.Contains(t, res.GenerationError, "rate limited")
	assert.Empty(t, res.Answer)
	assert.Len(t, res.Citations, 2)
	assert.Len(t, res.Chunks, 2)
	assert.Zero(t, res.TotalTokens)
	assert.Nil(t, res.CostUSD)
	assert.Equal(t, 3, f.llm.calls)

	logs, err := f.store.ListQueryLogs(context.Background(), 10)
	require.NoError(t, err)
	assert.Len(t, logs, 1)
}

func TestQueryService_Answer_GenerationFailFast(t *testing.T) {
	f := newQueryFixture(t)
	f.llm.err = errors.New("rate limited")
	f.svc.SetGenerationPolicy(GenerationPolicy{Retry: fastRetry(), FailFast: true})

	res, err := f.svc.Answer(context.Background(), domain.QueryRequest{Query: refundQuestion})
	require.NoError(t, err)

	assert.True(t, res.GenerationFailed)
	assert.Equal(t, 1, f.llm.calls)
}

func TestQueryService_Answer_NoLLM(t *testing.T) {
	f := newQueryFixture(t)
	retriever := NewRetriever(f.store, f.embedder)
	svc := NewQueryService(retriever, nil, f.store, f.store)

	res, err := svc.Answer(context.Background(), domain.QueryRequest{Query: refundQuestion})
	require.NoError(t, err)

	assert.True(t, res.GenerationFailed)
	assert.NotEmpty(t, res.Citations)
}

func TestQueryService_Answer_QueryLogFailure(t *testing.T) {
	f := newQueryFixture(t)
	retriever := NewRetriever(f.store, f.embedder)
	svc := NewQueryService(retriever, f.llm, f.store, failingQueryLogStore{})

	_, err := svc.Answer(context.Background(), domain.QueryRequest{Query: refundQuestion})

	assert.ErrorIs(t, err, domain.ErrStorageUnavailable)
}

// cancellingLLM cancels the request context once the completion is produced.
type cancellingLLM struct {
	*mockLLMService
	cancel context.CancelFunc
}

func (c *cancellingLLM) Complete(ctx context.Context, system, user string, opts driven.ChatOptions) (*driven.Completion, error) {
	defer c.cancel()
	return c.mockLLMService.Complete(ctx, system, user, opts)
}

func TestQueryService_Answer_LogSurvivesCancellation(t *testing.T) {
	f := newQueryFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	retriever := NewRetriever(f.store, f.embedder)
	svc := NewQueryService(retriever, &cancellingLLM{mockLLMService: f.llm, cancel: cancel}, f.store, f.store)

	res, err := svc.Answer(ctx, domain.QueryRequest{Query: refundQuestion})
	require.NoError(t, err)
	assert.NotEmpty(t, res.Answer)

	logs, err := f.store.ListQueryLogs(context.Background(), 10)
	require.NoError(t, err)
	assert.Len(t, logs, 1)
}

func TestQueryService_Answer_UnknownPricing(t *testing.T) {
	f := newQueryFixture(t)
	f.llm.completion.Model = "experimental-model"

	res, err := f.svc.Answer(context.Background(), domain.QueryRequest{Query: refundQuestion})
	require.NoError(t, err)

	assert.Nil(t, res.CostUSD)
	assert.Equal(t, 1200, res.TotalTokens)
}

func TestQueryService_Answer_Debug(t *testing.T) {
	f := newQueryFixture(t)
	docID := "refunds"

	res, err := f.svc.Answer(context.Background(), domain.QueryRequest{
		Query:          refundQuestion,
		TopK:           3,
		DocumentID:     &docID,
		ScoreThreshold: threshold(0.5),
		Debug:          true,
	})
	require.NoError(t, err)

	require.NotNil(t, res.Debug)
	assert.Equal(t, 3, res.Debug.TopK)
	assert.Equal(t, domain.DefaultPromptName, res.Debug.PromptName)
	assert.Equal(t, 1, res.Debug.PromptVersion)
	assert.Equal(t, "gpt-4o-mini", res.Debug.Model)
	require.Len(t, res.Debug.Scores, 2)
	assert.InDelta(t, 0.95, res.Debug.Scores[0], 1e-6)
	assert.InDelta(t, 0.05, res.Debug.Distances[0], 1e-6)
	require.NotNil(t, res.Debug.DocumentFilter)
	assert.Equal(t, "refunds", *res.Debug.DocumentFilter)
}

func TestQueryService_Answer_RetrievalDefaults(t *testing.T) {
	f := newQueryFixture(t)
	f.svc.SetRetrievalDefaults(domain.RetrievalSettings{TopK: 1, ScoreThreshold: threshold(0.5)})

	res, err := f.svc.Answer(context.Background(), domain.QueryRequest{Query: refundQuestion})
	require.NoError(t, err)

	assert.Len(t, res.Chunks, 1)
}

func TestQueryService_Answer_Validation(t *testing.T) {
	tests := []struct {
		name string
		req  domain.QueryRequest
	}{
		{"empty query", domain.QueryRequest{}},
		{"whitespace query", domain.QueryRequest{Query: "   \n"}},
		{"query too long", domain.QueryRequest{Query: strings.Repeat("a", domain.MaxQueryLength+1)}},
		{"top k too large", domain.QueryRequest{Query: "q", TopK: domain.MaxTopK + 1}},
		{"negative top k", domain.QueryRequest{Query: "q", TopK: -1}},
		{"threshold out of range", domain.QueryRequest{Query: "q", ScoreThreshold: threshold(1.2)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newQueryFixture(t)

			_, err := f.svc.Answer(context.Background(), tt.req)

			assert.ErrorIs(t, err, domain.ErrValidation)
			assert.Zero(t, f.embedder.embedCalls.Load())
			assert.Zero(t, f.llm.calls)
		})
	}
}

func TestBuildContext(t *testing.T) {
	chunks := []domain.RetrievedChunk{{Text: "alpha"}, {Text: "beta"}}

	assert.Equal(t, "[Passage 1]\nalpha\n\n---\n\n[Passage 2]\nbeta", BuildContext(chunks))
	assert.Equal(t, "", BuildContext(nil))
}
