package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/custodia-labs/sercha-rag/internal/core/domain"
	"github.com/custodia-labs/sercha-rag/internal/core/ports/driven"
	"github.com/custodia-labs/sercha-rag/internal/core/ports/driving"
	"github.com/custodia-labs/sercha-rag/internal/logger"
)

// Ensure QueryService implements the interface.
var _ driving.QueryService = (*QueryService)(nil)

// NoResultsAnswer is returned when no passage passes retrieval.
const NoResultsAnswer = "No relevant information found in the knowledge base."

const passageSeparator = "\n\n---\n\n"

// QueryService answers questions with passages retrieved from the store.
type QueryService struct {
	retriever  *Retriever
	llm        driven.LLMService
	prompts    driven.PromptRegistry
	logs       driven.QueryLogStore
	pricing    domain.PricingTable
	generation GenerationPolicy
	chatOpts   driven.ChatOptions
	defaults   domain.RetrievalSettings
	now        func() time.Time
}

// NewQueryService creates a new query service.
func NewQueryService(
	retriever *Retriever,
	llm driven.LLMService,
	prompts driven.PromptRegistry,
	logs driven.QueryLogStore,
) *QueryService {
	return &QueryService{
		retriever:  retriever,
		llm:        llm,
		prompts:    prompts,
		logs:       logs,
		pricing:    domain.DefaultPricing(),
		generation: GenerationPolicy{Retry: DefaultRetryPolicy()},
		defaults:   domain.RetrievalSettings{TopK: domain.DefaultTopK},
		now:        time.Now,
	}
}

// SetPricing replaces the pricing table.
func (s *QueryService) SetPricing(table domain.PricingTable) {
	s.pricing = table
}

// SetGenerationPolicy sets how LLM failures are retried.
func (s *QueryService) SetGenerationPolicy(p GenerationPolicy) {
	s.generation = p
}

// SetChatOptions sets completion parameters.
func (s *QueryService) SetChatOptions(opts driven.ChatOptions) {
	s.chatOpts = opts
}

// SetRetrievalDefaults sets the TopK and threshold used when a request omits them.
func (s *QueryService) SetRetrievalDefaults(d domain.RetrievalSettings) {
	if d.TopK <= 0 {
		d.TopK = domain.DefaultTopK
	}
	s.defaults = d
}

// Answer retrieves passages for the question and asks the LLM for a
// grounded answer. An LLM failure yields a result with GenerationFailed set
// and the retrieved passages intact.
func (s *QueryService) Answer(ctx context.Context, req domain.QueryRequest) (*domain.QueryResult, error) {
	logger.Section("Query")
	start := s.now()

	if err := s.applyDefaults(&req); err != nil {
		return nil, err
	}
	logger.Debug("Query: %q, topK: %d", req.Query, req.TopK)

	prompt, err := s.prompts.ActivePrompt(ctx, req.PromptName)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, &domain.PromptNotFoundError{Name: req.PromptName}
		}
		return nil, storageError("load active prompt", err)
	}

	chunks, err := s.retriever.RetrieveText(ctx, req.Query, RetrieveRequest{
		TopK:           req.TopK,
		DocumentID:     req.DocumentID,
		ScoreThreshold: req.ScoreThreshold,
	})
	if err != nil {
		return nil, err
	}

	result := &domain.QueryResult{
		Query:     req.Query,
		Chunks:    chunks,
		Citations: Citations(chunks),
	}

	if len(chunks) == 0 {
		result.Answer = NoResultsAnswer
	} else {
		s.generate(ctx, prompt.Content, req.Query, chunks, result)
	}

	if req.Debug {
		result.Debug = s.debugInfo(req, prompt, chunks)
	}

	if err := s.appendLog(ctx, req.Query, chunks, result, start); err != nil {
		return nil, err
	}

	logger.Event("query_answered",
		"chunks", len(chunks),
		"total_tokens", result.TotalTokens,
		"generation_failed", result.GenerationFailed,
	)
	return result, nil
}

func (s *QueryService) applyDefaults(req *domain.QueryRequest) error {
	req.Query = strings.TrimSpace(req.Query)
	if req.Query == "" {
		return domain.NewValidationError("query", "must not be empty")
	}
	if utf8.RuneCountInString(req.Query) > domain.MaxQueryLength {
		return domain.NewValidationError("query", fmt.Sprintf("must be at most %d characters", domain.MaxQueryLength))
	}

	if req.TopK == 0 {
		req.TopK = s.defaults.TopK
	}
	if req.TopK < 1 || req.TopK > domain.MaxTopK {
		return domain.NewValidationError("top_k", fmt.Sprintf("must be between 1 and %d", domain.MaxTopK))
	}

	if req.ScoreThreshold == nil {
		req.ScoreThreshold = s.defaults.ScoreThreshold
	}
	if t := req.ScoreThreshold; t != nil && (*t < 0 || *t > 1) {
		return domain.NewValidationError("score_threshold", "must be between 0 and 1")
	}

	if req.PromptName == "" {
		req.PromptName = domain.DefaultPromptName
	}
	return nil
}

// generate fills the answer and token accounting, or marks generation failed.
func (s *QueryService) generate(ctx context.Context, system, query string, chunks []domain.RetrievedChunk, result *domain.QueryResult) {
	if s.llm == nil {
		result.GenerationFailed = true
		result.GenerationError = domain.ErrLLMUnavailable.Error()
		return
	}

	user := BuildUserMessage(query, chunks)

	var completion *driven.Completion
	err := s.generation.Policy().Do(ctx, "llm completion", func(ctx context.Context) error {
		var err error
		completion, err = s.llm.Complete(ctx, system, user, s.chatOpts)
		if err != nil {
			return fmt.Errorf("%w: %w", domain.ErrLLMGeneration, err)
		}
		return nil
	})
	if err != nil {
		logger.Failure("llm_generation_failed", "model", s.llm.ModelName(), "error", err.Error())
		result.GenerationFailed = true
		result.GenerationError = err.Error()
		return
	}

	result.Answer = completion.Content
	result.PromptTokens = completion.PromptTokens
	result.CompletionTokens = completion.CompletionTokens
	result.TotalTokens = completion.TotalTokens
	if result.TotalTokens == 0 {
		result.TotalTokens = completion.PromptTokens + completion.CompletionTokens
	}

	model := completion.Model
	if model == "" {
		model = s.llm.ModelName()
	}
	result.CostUSD = s.pricing.Cost(s.llm.Provider(), model, completion.PromptTokens, completion.CompletionTokens)
}

func (s *QueryService) debugInfo(req domain.QueryRequest, prompt *domain.SystemPrompt, chunks []domain.RetrievedChunk) *domain.DebugInfo {
	info := &domain.DebugInfo{
		TopK:           req.TopK,
		ScoreThreshold: req.ScoreThreshold,
		DocumentFilter: req.DocumentID,
		Scores:         make([]float64, len(chunks)),
		Distances:      make([]float64, len(chunks)),
		PromptName:     prompt.Name,
		PromptVersion:  prompt.Version,
	}
	for i, c := range chunks {
		info.Scores[i] = c.Score
		info.Distances[i] = c.Distance
	}
	if s.llm != nil {
		info.Model = s.llm.ModelName()
	}
	return info
}

func (s *QueryService) appendLog(
	ctx context.Context, query string, chunks []domain.RetrievedChunk, result *domain.QueryResult, start time.Time,
) error {
	ids := make([]string, len(chunks))
	for i, c := range chunks {
		ids[i] = c.ChunkID
	}

	entry := &domain.QueryLog{
		ID:                uuid.New().String(),
		QueryText:         query,
		RetrievedChunkIDs: ids,
		PromptTokens:      result.PromptTokens,
		CompletionTokens:  result.CompletionTokens,
		TotalTokens:       result.TotalTokens,
		CostUSD:           result.CostUSD,
		LatencyMS:         s.now().Sub(start).Milliseconds(),
		CreatedAt:         s.now().UTC(),
	}

	if err := s.logs.AppendQueryLog(context.WithoutCancel(ctx), entry); err != nil {
		logger.Failure("query_log_failed", "error", err.Error())
		return storageError("append query log", err)
	}
	return nil
}

// BuildContext labels each passage by rank and joins them with separators.
func BuildContext(chunks []domain.RetrievedChunk) string {
	blocks := make([]string, len(chunks))
	for i, c := range chunks {
		blocks[i] = fmt.Sprintf("[%s]\n%s", domain.PassageLabel(i+1), c.Text)
	}
	return strings.Join(blocks, passageSeparator)
}

// BuildUserMessage combines the labelled passages and the question.
func BuildUserMessage(query string, chunks []domain.RetrievedChunk) string {
	return fmt.Sprintf("Context passages:\n\n%s\n\nQuestion: %s", BuildContext(chunks), query)
}

// Citations maps every passage label in the context to its chunk.
func Citations(chunks []domain.RetrievedChunk) []domain.Citation {
	citations := make([]domain.Citation, len(chunks))
	for i, c := range chunks {
		citations[i] = domain.Citation{
			Label:      domain.PassageLabel(i + 1),
			Rank:       i + 1,
			ChunkID:    c.ChunkID,
			DocumentID: c.DocumentID,
			Ordinal:    c.Ordinal,
		}
	}
	return citations
}
