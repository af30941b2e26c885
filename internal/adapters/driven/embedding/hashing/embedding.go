// Package hashing provides a deterministic embedding service for offline use.
//
// Vectors are derived from a SHA-256 chain over the text, so equal texts
// always embed identically and no network access is needed. The vectors
// carry no semantic meaning.
package hashing

import (
	"context"
	"crypto/sha256"
	"fmt"

	"github.com/custodia-labs/sercha-rag/internal/core/ports/driven"
)

// Ensure EmbeddingService implements the interface.
var _ driven.EmbeddingService = (*EmbeddingService)(nil)

// Default configuration values.
const (
	DefaultModel      = "sha256-128"
	DefaultDimensions = 128
)

// EmbeddingService produces content-hash vectors.
type EmbeddingService struct {
	dimensions int
	model      string
}

// NewEmbeddingService creates a hash embedder with the given vector size.
// Zero selects DefaultDimensions.
func NewEmbeddingService(dimensions int) (*EmbeddingService, error) {
	if dimensions < 0 {
		return nil, fmt.Errorf("hashing: dimensions must be positive, got %d", dimensions)
	}
	if dimensions == 0 {
		dimensions = DefaultDimensions
	}
	model := DefaultModel
	if dimensions != DefaultDimensions {
		model = fmt.Sprintf("sha256-%d", dimensions)
	}
	return &EmbeddingService{dimensions: dimensions, model: model}, nil
}

// Embed returns the hash vector of text.
func (s *EmbeddingService) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.vector(text), nil
}

// EmbedBatch returns one hash vector per text.
func (s *EmbeddingService) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = s.vector(t)
	}
	return out, nil
}

// vector fills the buffer with the digest of text followed by repeated
// digests of the previous digest, then maps each byte to [-1, 1).
func (s *EmbeddingService) vector(text string) []float32 {
	buf := make([]byte, 0, s.dimensions+sha256.Size)
	cur := sha256.Sum256([]byte(text))
	for len(buf) < s.dimensions {
		buf = append(buf, cur[:]...)
		cur = sha256.Sum256(cur[:])
	}

	vec := make([]float32, s.dimensions)
	for i := range vec {
		vec[i] = (float32(buf[i]) - 128) / 128
	}
	return vec
}

// Dimensions returns the vector size.
func (s *EmbeddingService) Dimensions() int { return s.dimensions }

// ModelName returns the model label, e.g. "sha256-128".
func (s *EmbeddingService) ModelName() string { return s.model }

// Ping always succeeds.
func (s *EmbeddingService) Ping(context.Context) error { return nil }

// Close is a no-op.
func (s *EmbeddingService) Close() error { return nil }
