package domain

import (
	"fmt"
	"time"
)

// DefaultPromptName is the prompt used when a query names none.
const DefaultPromptName = "default"

// Query limits.
const (
	// MaxQueryLength is the longest accepted question, in characters.
	MaxQueryLength = 10_000

	// MaxTopK is the largest number of passages a query may request.
	MaxTopK = 50

	// DefaultTopK is used when a query does not set TopK.
	DefaultTopK = 5
)

// QueryRequest is a natural-language question to answer from ingested content.
type QueryRequest struct {
	// Query is the question text.
	Query string

	// TopK is the maximum number of passages used as context.
	TopK int

	// DocumentID restricts retrieval to one document's chunks when set.
	DocumentID *string

	// ScoreThreshold is the minimum cosine similarity a passage must reach.
	// Nil means the configured default applies.
	ScoreThreshold *float64

	// PromptName selects the active system prompt. Empty means DefaultPromptName.
	PromptName string

	// Debug requests raw scores and retrieval parameters in the result.
	Debug bool
}

// Citation maps a passage label used in the LLM context to its chunk.
type Citation struct {
	// Label is the passage label as it appears in the context, e.g. "Passage 1".
	Label string `json:"label"`

	// Rank is the 1-based retrieval rank.
	Rank int `json:"rank"`

	// ChunkID is the cited chunk.
	ChunkID string `json:"chunk_id"`

	// DocumentID is the document owning the chunk.
	DocumentID string `json:"document_id"`

	// Ordinal is the chunk position within its document.
	Ordinal int `json:"ordinal"`
}

// PassageLabel returns the citation label for a 1-based rank.
func PassageLabel(rank int) string {
	return fmt.Sprintf("Passage %d", rank)
}

// DebugInfo exposes retrieval internals when a query asks for it.
type DebugInfo struct {
	TopK           int       `json:"top_k"`
	ScoreThreshold *float64  `json:"score_threshold,omitempty"`
	DocumentFilter *string   `json:"document_filter,omitempty"`
	Scores         []float64 `json:"scores"`
	Distances      []float64 `json:"distances"`
	PromptName     string    `json:"prompt_name"`
	PromptVersion  int       `json:"prompt_version"`
	Model          string    `json:"model,omitempty"`
}

// QueryResult is the grounded answer to a QueryRequest.
type QueryResult struct {
	// Query echoes the question.
	Query string `json:"query"`

	// Answer is the generated text. Empty when generation failed.
	Answer string `json:"answer"`

	// Citations lists every passage included in the context, in rank order.
	Citations []Citation `json:"citations"`

	// Chunks are the retrieved passages, in rank order.
	Chunks []RetrievedChunk `json:"chunks"`

	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`

	// CostUSD is the estimated cost. Nil when the model has no known pricing.
	CostUSD *float64 `json:"cost_usd"`

	// GenerationFailed is true when retrieval succeeded but the LLM call did not.
	GenerationFailed bool `json:"generation_failed"`

	// GenerationError describes the LLM failure when GenerationFailed is set.
	GenerationError string `json:"generation_error,omitempty"`

	// Debug is populated only when requested.
	Debug *DebugInfo `json:"debug,omitempty"`
}

// QueryLog is append-only telemetry for one answered query.
type QueryLog struct {
	ID                string
	QueryText         string
	RetrievedChunkIDs []string
	PromptTokens      int
	CompletionTokens  int
	TotalTokens       int

	// CostUSD is nil when the active provider has no known pricing.
	CostUSD *float64

	LatencyMS int64
	CreatedAt time.Time
}

// ServiceMetrics aggregates telemetry across the whole store.
type ServiceMetrics struct {
	TotalQueries      int      `json:"total_queries"`
	TotalDocuments    int      `json:"total_documents"`
	TotalChunks       int      `json:"total_chunks"`
	AvgLatencyMS      *float64 `json:"avg_latency_ms"`
	TotalTokens       int      `json:"total_tokens"`
	AvgTokensPerQuery *float64 `json:"avg_tokens_per_query"`
	TotalCostUSD      *float64 `json:"total_estimated_cost_usd"`
}
