package services

import (
	"context"
	"crypto/sha256"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/custodia-labs/sercha-rag/internal/core/domain"
	"github.com/custodia-labs/sercha-rag/internal/core/ports/driven"
)

// --- Mock implementations ---

// mockEmbeddingService implements driven.EmbeddingService for testing.
// Vectors are derived from the text so identical texts embed identically.
type mockEmbeddingService struct {
	dims       int
	embedErr   error
	failFirst  int // number of calls that fail before succeeding
	vectors    map[string][]float32
	batchCalls atomic.Int32
	embedCalls atomic.Int32
	calls      atomic.Int32
}

func newMockEmbedding(dims int) *mockEmbeddingService {
	return &mockEmbeddingService{dims: dims, vectors: make(map[string][]float32)}
}

func (m *mockEmbeddingService) vector(text string) []float32 {
	if v, ok := m.vectors[text]; ok {
		return v
	}
	sum := sha256.Sum256([]byte(text))
	v := make([]float32, m.dims)
	for i := range v {
		v[i] = float32(sum[i%len(sum)]) + 1
	}
	return v
}

func (m *mockEmbeddingService) fail() error {
	n := int(m.calls.Add(1))
	if m.embedErr != nil && (m.failFirst == 0 || n <= m.failFirst) {
		return m.embedErr
	}
	return nil
}

func (m *mockEmbeddingService) Embed(_ context.Context, text string) ([]float32, error) {
	m.embedCalls.Add(1)
	if err := m.fail(); err != nil {
		return nil, err
	}
	return m.vector(text), nil
}

func (m *mockEmbeddingService) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	m.batchCalls.Add(1)
	if err := m.fail(); err != nil {
		return nil, err
	}
	result := make([][]float32, len(texts))
	for i, t := range texts {
		result[i] = m.vector(t)
	}
	return result, nil
}

func (m *mockEmbeddingService) Dimensions() int            { return m.dims }
func (m *mockEmbeddingService) ModelName() string          { return "mock-embed" }
func (m *mockEmbeddingService) Ping(context.Context) error { return nil }
func (m *mockEmbeddingService) Close() error               { return nil }

// mockLLMService implements driven.LLMService for testing.
type mockLLMService struct {
	mu         sync.Mutex
	completion *driven.Completion
	err        error
	calls      int
	lastSystem string
	lastUser   string
	provider   domain.AIProvider
	model      string
}

func (m *mockLLMService) Complete(_ context.Context, system, user string, _ driven.ChatOptions) (*driven.Completion, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	m.lastSystem = system
	m.lastUser = user
	if m.err != nil {
		return nil, m.err
	}
	return m.completion, nil
}

func (m *mockLLMService) Provider() domain.AIProvider {
	if m.provider == "" {
		return domain.AIProviderOpenAI
	}
	return m.provider
}

func (m *mockLLMService) ModelName() string {
	if m.model == "" {
		return "gpt-4o-mini"
	}
	return m.model
}

func (m *mockLLMService) Ping(context.Context) error { return nil }
func (m *mockLLMService) Close() error               { return nil }

// mockExtractor implements driven.Extractor for testing.
type mockExtractor struct {
	text  string
	err   error
	calls atomic.Int32
}

func (m *mockExtractor) Name() string                    { return "mock" }
func (m *mockExtractor) SupportedContentTypes() []string { return []string{"*"} }
func (m *mockExtractor) Priority() int                   { return 50 }

func (m *mockExtractor) Extract(_ context.Context, content []byte, _ string) (string, error) {
	m.calls.Add(1)
	if m.err != nil {
		return "", m.err
	}
	if m.text != "" {
		return m.text, nil
	}
	return string(content), nil
}

// mockExtractorRegistry implements driven.ExtractorRegistry for testing.
type mockExtractorRegistry struct {
	extractor driven.Extractor
	types     []string
}

func (m *mockExtractorRegistry) Get(contentType string) (driven.Extractor, bool) {
	if !m.Supports(contentType) {
		return nil, false
	}
	return m.extractor, true
}

func (m *mockExtractorRegistry) Supports(contentType string) bool {
	for _, t := range m.types {
		if t == contentType {
			return true
		}
	}
	return false
}

// mockOCREngine implements driven.OCREngine for testing.
type mockOCREngine struct {
	text      string
	err       error
	available bool
	calls     atomic.Int32
}

func (m *mockOCREngine) Available() bool { return m.available }

func (m *mockOCREngine) Eligible(contentType string) bool {
	return contentType == "application/pdf" || strings.HasPrefix(contentType, "image/")
}

func (m *mockOCREngine) Recognise(context.Context, []byte, string) (string, error) {
	m.calls.Add(1)
	return m.text, m.err
}

// failingQueryLogStore implements driven.QueryLogStore and always fails to write.
type failingQueryLogStore struct{}

func (failingQueryLogStore) AppendQueryLog(context.Context, *domain.QueryLog) error {
	return errors.New("disk full")
}

func (failingQueryLogStore) ListQueryLogs(context.Context, int) ([]domain.QueryLog, error) {
	return nil, errors.New("disk full")
}

func (failingQueryLogStore) Metrics(context.Context) (*domain.ServiceMetrics, error) {
	return nil, errors.New("disk full")
}

// noSleep is a RetryPolicy sleep that returns immediately.
func noSleep(context.Context, time.Duration) error { return nil }

// fastRetry returns the default policy without real waits.
func fastRetry() RetryPolicy {
	p := DefaultRetryPolicy()
	p.Sleep = noSleep
	return p
}
