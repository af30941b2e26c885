// Package rediscache caches embedding vectors in Redis.
//
// The cache wraps any driven.EmbeddingService. Keys are derived from the
// model name and the SHA-256 of the text, so switching models never serves
// stale vectors. Redis failures fall through to the wrapped service.
package rediscache

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/custodia-labs/sercha-rag/internal/core/ports/driven"
	"github.com/custodia-labs/sercha-rag/internal/logger"
)

// Ensure EmbeddingService implements the interface.
var _ driven.EmbeddingService = (*EmbeddingService)(nil)

// Default configuration values.
const (
	DefaultTTL       = 24 * time.Hour
	DefaultKeyPrefix = "sercha-rag:embedding:"
)

// Config holds Redis cache configuration.
type Config struct {
	// Addr is the Redis host:port (required).
	Addr string

	// Password is the Redis password, if any.
	Password string

	// DB selects the Redis database.
	DB int

	// TTL is how long cached vectors live (default: 24h).
	TTL time.Duration

	// KeyPrefix namespaces cache keys (default: sercha-rag:embedding:).
	KeyPrefix string
}

// EmbeddingService serves vectors from Redis and embeds misses with inner.
type EmbeddingService struct {
	inner  driven.EmbeddingService
	client redis.UniversalClient
	ttl    time.Duration
	prefix string
}

// New connects to Redis and wraps inner.
func New(ctx context.Context, inner driven.EmbeddingService, cfg Config) (*EmbeddingService, error) {
	if inner == nil {
		return nil, fmt.Errorf("rediscache: embedding service is required")
	}
	if cfg.Addr == "" {
		return nil, fmt.Errorf("rediscache: address is required")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("rediscache: failed to connect to Redis: %w", err)
	}

	return NewWithClient(inner, client, cfg.TTL, cfg.KeyPrefix), nil
}

// NewWithClient wraps inner using an existing Redis client.
func NewWithClient(inner driven.EmbeddingService, client redis.UniversalClient, ttl time.Duration, prefix string) *EmbeddingService {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return &EmbeddingService{inner: inner, client: client, ttl: ttl, prefix: prefix}
}

// Embed returns a cached vector or embeds and caches it.
func (s *EmbeddingService) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := s.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch fetches all keys with one MGET, embeds the misses in a single
// call to the wrapped service, then writes them back in a pipeline.
func (s *EmbeddingService) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	keys := make([]string, len(texts))
	for i, t := range texts {
		keys[i] = s.key(t)
	}

	out := make([][]float32, len(texts))
	var missIdx []int

	cached, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		logger.Warn("embedding cache read failed: %v", err)
		cached = make([]any, len(texts))
	}

	for i, v := range cached {
		raw, ok := v.(string)
		if !ok {
			missIdx = append(missIdx, i)
			continue
		}
		vec, err := decodeVector([]byte(raw))
		if err != nil || len(vec) != s.inner.Dimensions() {
			missIdx = append(missIdx, i)
			continue
		}
		out[i] = vec
	}

	if len(missIdx) == 0 {
		logger.Debug("embedding cache: %d hits", len(texts))
		return out, nil
	}

	missTexts := make([]string, len(missIdx))
	for j, i := range missIdx {
		missTexts[j] = texts[i]
	}
	fresh, err := s.inner.EmbedBatch(ctx, missTexts)
	if err != nil {
		return nil, err
	}
	if len(fresh) != len(missTexts) {
		return nil, fmt.Errorf("rediscache: got %d embeddings for %d inputs", len(fresh), len(missTexts))
	}

	pipe := s.client.Pipeline()
	for j, i := range missIdx {
		out[i] = fresh[j]
		pipe.Set(ctx, keys[i], encodeVector(fresh[j]), s.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		logger.Warn("embedding cache write failed: %v", err)
	}

	logger.Debug("embedding cache: %d hits, %d misses", len(texts)-len(missIdx), len(missIdx))
	return out, nil
}

func (s *EmbeddingService) key(text string) string {
	sum := sha256.Sum256([]byte(text))
	return s.prefix + s.inner.ModelName() + ":" + hex.EncodeToString(sum[:])
}

// Dimensions returns the wrapped service's vector size.
func (s *EmbeddingService) Dimensions() int { return s.inner.Dimensions() }

// ModelName returns the wrapped service's model.
func (s *EmbeddingService) ModelName() string { return s.inner.ModelName() }

// Ping checks both Redis and the wrapped service.
func (s *EmbeddingService) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("rediscache: ping failed: %w", err)
	}
	return s.inner.Ping(ctx)
}

// Close closes the Redis client and the wrapped service.
func (s *EmbeddingService) Close() error {
	return errors.Join(s.client.Close(), s.inner.Close())
}

// encodeVector stores each float32 as 4 little-endian bytes.
func encodeVector(vec []float32) []byte {
	buf := make([]byte, len(vec)*4)
	for i, v := range vec {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

func decodeVector(buf []byte) ([]float32, error) {
	if len(buf)%4 != 0 {
		return nil, fmt.Errorf("rediscache: invalid vector length %d", len(buf))
	}
	vec := make([]float32, len(buf)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	return vec, nil
}
