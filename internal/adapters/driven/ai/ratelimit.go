package ai

import (
	"context"

	"golang.org/x/time/rate"

	"github.com/custodia-labs/sercha-rag/internal/core/domain"
	"github.com/custodia-labs/sercha-rag/internal/core/ports/driven"
)

// Ensure the decorators implement the interfaces.
var (
	_ driven.EmbeddingService = (*RateLimitedEmbedding)(nil)
	_ driven.LLMService       = (*RateLimitedLLM)(nil)
)

// RateLimitedEmbedding throttles provider calls with a token bucket.
// A batch counts as one call.
type RateLimitedEmbedding struct {
	inner  driven.EmbeddingService
	bucket *rate.Limiter
}

// NewRateLimitedEmbedding allows perSecond calls with a burst of one.
func NewRateLimitedEmbedding(inner driven.EmbeddingService, perSecond float64) *RateLimitedEmbedding {
	return &RateLimitedEmbedding{inner: inner, bucket: rate.NewLimiter(rate.Limit(perSecond), 1)}
}

// Embed waits for a token, then embeds text.
func (r *RateLimitedEmbedding) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := r.bucket.Wait(ctx); err != nil {
		return nil, err
	}
	return r.inner.Embed(ctx, text)
}

// EmbedBatch waits for a token, then embeds texts.
func (r *RateLimitedEmbedding) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if err := r.bucket.Wait(ctx); err != nil {
		return nil, err
	}
	return r.inner.EmbedBatch(ctx, texts)
}

func (r *RateLimitedEmbedding) Dimensions() int                { return r.inner.Dimensions() }
func (r *RateLimitedEmbedding) ModelName() string              { return r.inner.ModelName() }
func (r *RateLimitedEmbedding) Ping(ctx context.Context) error { return r.inner.Ping(ctx) }
func (r *RateLimitedEmbedding) Close() error                   { return r.inner.Close() }

// RateLimitedLLM throttles completions with a token bucket.
type RateLimitedLLM struct {
	inner  driven.LLMService
	bucket *rate.Limiter
}

// NewRateLimitedLLM allows perSecond completions with a burst of one.
func NewRateLimitedLLM(inner driven.LLMService, perSecond float64) *RateLimitedLLM {
	return &RateLimitedLLM{inner: inner, bucket: rate.NewLimiter(rate.Limit(perSecond), 1)}
}

// Complete waits for a token, then calls the provider.
func (r *RateLimitedLLM) Complete(ctx context.Context, system, user string, opts driven.ChatOptions) (*driven.Completion, error) {
	if err := r.bucket.Wait(ctx); err != nil {
		return nil, err
	}
	return r.inner.Complete(ctx, system, user, opts)
}

func (r *RateLimitedLLM) Provider() domain.AIProvider    { return r.inner.Provider() }
func (r *RateLimitedLLM) ModelName() string              { return r.inner.ModelName() }
func (r *RateLimitedLLM) Ping(ctx context.Context) error { return r.inner.Ping(ctx) }
func (r *RateLimitedLLM) Close() error                   { return r.inner.Close() }
