package cli

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/custodia-labs/sercha-rag/internal/core/domain"
)

var testTime = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

// --- Mock services ---

type mockIngestService struct {
	requests []domain.IngestRequest
	seen     map[string]string
	err      error
}

func (m *mockIngestService) Ingest(_ context.Context, req domain.IngestRequest) (*domain.IngestResult, error) {
	if m.err != nil {
		return nil, m.err
	}
	m.requests = append(m.requests, req)
	if m.seen == nil {
		m.seen = make(map[string]string)
	}
	if id, ok := m.seen[string(req.Content)]; ok {
		return &domain.IngestResult{DocumentID: id, AlreadyExisted: true}, nil
	}
	id := fmt.Sprintf("doc-%d", len(m.seen)+1)
	m.seen[string(req.Content)] = id
	return &domain.IngestResult{DocumentID: id, ChunksIngested: 2}, nil
}

type mockQueryService struct {
	lastRequest *domain.QueryRequest
	result      *domain.QueryResult
	err         error
}

func (m *mockQueryService) Answer(_ context.Context, req domain.QueryRequest) (*domain.QueryResult, error) {
	m.lastRequest = &req
	if m.err != nil {
		return nil, m.err
	}
	if m.result != nil {
		return m.result, nil
	}
	cost := 0.000123
	return &domain.QueryResult{
		Query:  req.Query,
		Answer: "Refunds take five days [Passage 1].",
		Citations: []domain.Citation{
			{Label: "Passage 1", Rank: 1, ChunkID: "chunk-1", DocumentID: "doc-1", Ordinal: 0},
		},
		Chunks: []domain.RetrievedChunk{
			{ChunkID: "chunk-1", DocumentID: "doc-1", Text: "Refunds take five days.", Distance: 0.1, Score: 0.9},
		},
		PromptTokens:     100,
		CompletionTokens: 20,
		TotalTokens:      120,
		CostUSD:          &cost,
	}, nil
}

type mockDocumentService struct {
	docs    []domain.DocumentSummary
	chunks  map[string][]domain.Chunk
	deleted []string
}

func newMockDocumentService() *mockDocumentService {
	return &mockDocumentService{
		docs: []domain.DocumentSummary{
			{
				Document: domain.Document{
					ID: "doc-1", Filename: "refunds.txt", ContentType: "text/plain",
					FileHash: "abc123", CreatedAt: testTime,
				},
				ChunkCount: 2,
			},
		},
		chunks: map[string][]domain.Chunk{
			"doc-1": {
				{ID: "chunk-1", DocumentID: "doc-1", Text: "Refunds take five days.", Ordinal: 0, TokenEstimate: 6},
				{ID: "chunk-2", DocumentID: "doc-1", Text: "Cash refunds are immediate.", Ordinal: 1, TokenEstimate: 7},
			},
		},
	}
}

func (m *mockDocumentService) List(_ context.Context) ([]domain.DocumentSummary, error) {
	return m.docs, nil
}

func (m *mockDocumentService) Get(_ context.Context, id string) (*domain.Document, error) {
	for i := range m.docs {
		if m.docs[i].ID == id {
			doc := m.docs[i].Document
			return &doc, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *mockDocumentService) Chunks(_ context.Context, id string) ([]domain.Chunk, error) {
	chunks, ok := m.chunks[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return chunks, nil
}

func (m *mockDocumentService) Delete(_ context.Context, id string) error {
	if _, ok := m.chunks[id]; !ok {
		return domain.ErrNotFound
	}
	m.deleted = append(m.deleted, id)
	return nil
}

type mockPromptService struct {
	prompts []domain.SystemPrompt
}

func newMockPromptService() *mockPromptService {
	return &mockPromptService{
		prompts: []domain.SystemPrompt{
			{ID: "prompt-1", Name: "default", Version: 1, Content: "Answer from the passages.", Author: "system", IsActive: true, CreatedAt: testTime},
		},
	}
}

func (m *mockPromptService) Create(_ context.Context, name, content, author string) (*domain.SystemPrompt, error) {
	if strings.TrimSpace(content) == "" {
		return nil, domain.NewValidationError("content", "must not be empty")
	}
	version := 1
	for _, p := range m.prompts {
		if p.Name == name && p.Version >= version {
			version = p.Version + 1
		}
	}
	p := domain.SystemPrompt{
		ID: fmt.Sprintf("prompt-%d", len(m.prompts)+1), Name: name, Version: version,
		Content: content, Author: author, CreatedAt: testTime,
	}
	m.prompts = append(m.prompts, p)
	return &p, nil
}

func (m *mockPromptService) Activate(_ context.Context, id string) (*domain.SystemPrompt, error) {
	idx := -1
	for i := range m.prompts {
		if m.prompts[i].ID == id {
			idx = i
		}
	}
	if idx < 0 {
		return nil, domain.ErrNotFound
	}
	for i := range m.prompts {
		if m.prompts[i].Name == m.prompts[idx].Name {
			m.prompts[i].IsActive = i == idx
		}
	}
	p := m.prompts[idx]
	return &p, nil
}

func (m *mockPromptService) Active(_ context.Context, name string) (*domain.SystemPrompt, error) {
	for i := range m.prompts {
		if m.prompts[i].Name == name && m.prompts[i].IsActive {
			p := m.prompts[i]
			return &p, nil
		}
	}
	return nil, &domain.PromptNotFoundError{Name: name}
}

func (m *mockPromptService) List(_ context.Context, name string) ([]domain.SystemPrompt, error) {
	var out []domain.SystemPrompt
	for _, p := range m.prompts {
		if name == "" || p.Name == name {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *mockPromptService) EnsureDefault(_ context.Context) error {
	return nil
}

func (m *mockPromptService) Sync(ctx context.Context, name, content, author string) (bool, error) {
	if active, err := m.Active(ctx, name); err == nil && active.Content == content {
		return false, nil
	}
	p, err := m.Create(ctx, name, content, author)
	if err != nil {
		return false, err
	}
	_, err = m.Activate(ctx, p.ID)
	return err == nil, err
}

type mockTelemetryService struct {
	logs    []domain.QueryLog
	metrics *domain.ServiceMetrics
}

func (m *mockTelemetryService) QueryLogs(_ context.Context, limit int) ([]domain.QueryLog, error) {
	if limit < len(m.logs) {
		return m.logs[:limit], nil
	}
	return m.logs, nil
}

func (m *mockTelemetryService) Metrics(_ context.Context) (*domain.ServiceMetrics, error) {
	if m.metrics == nil {
		return &domain.ServiceMetrics{}, nil
	}
	return m.metrics, nil
}

type mockSettingsService struct {
	settings domain.AppSettings
	values   map[string]string
	invalid  error
}

func newMockSettingsService() *mockSettingsService {
	s := domain.DefaultAppSettings()
	s.Storage.Dimensions = 128
	s.LLM.APIKey = "sk-test-1234567890"
	return &mockSettingsService{settings: s, values: make(map[string]string)}
}

func (m *mockSettingsService) Get() (*domain.AppSettings, error) {
	s := m.settings
	return &s, nil
}

func (m *mockSettingsService) Save(settings *domain.AppSettings) error {
	m.settings = *settings
	return nil
}

func (m *mockSettingsService) SetEmbeddingProvider(provider domain.AIProvider, model, apiKey string) error {
	m.settings.Embedding.Provider = provider
	m.settings.Embedding.Model = model
	m.settings.Embedding.APIKey = apiKey
	return nil
}

func (m *mockSettingsService) SetLLMProvider(provider domain.AIProvider, model, apiKey string) error {
	m.settings.LLM.Provider = provider
	m.settings.LLM.Model = model
	m.settings.LLM.APIKey = apiKey
	return nil
}

func (m *mockSettingsService) SetValue(key, value string) error {
	if !strings.Contains(key, ".") {
		return domain.NewValidationError("key", "unknown key")
	}
	m.values[key] = value
	return nil
}

func (m *mockSettingsService) Validate() error {
	return m.invalid
}

type mockProviderValidator struct {
	embeddingErr error
	llmErr       error
}

func (m *mockProviderValidator) ValidateEmbedding(_ context.Context, _ *domain.EmbeddingSettings) error {
	return m.embeddingErr
}

func (m *mockProviderValidator) ValidateLLM(_ context.Context, _ *domain.LLMSettings) error {
	return m.llmErr
}

var errMockFailure = errors.New("mock failure")

// testServices holds the mocks installed by setupTestServices.
type testServices struct {
	ingest    *mockIngestService
	query     *mockQueryService
	documents *mockDocumentService
	prompts   *mockPromptService
	telemetry *mockTelemetryService
	settings  *mockSettingsService
	validator *mockProviderValidator
}

// setupTestServices installs mock services and returns them with a cleanup
// function that restores the previous state.
func setupTestServices() (*testServices, func()) {
	origIngest, origQuery, origDocs := ingestService, queryService, documentService
	origPrompts, origTelemetry, origSettings := promptService, telemetryService, settingsService
	origValidator, origLoader, origStdin := providerValidator, loader, stdin

	ts := &testServices{
		ingest:    &mockIngestService{},
		query:     &mockQueryService{},
		documents: newMockDocumentService(),
		prompts:   newMockPromptService(),
		telemetry: &mockTelemetryService{},
		settings:  newMockSettingsService(),
		validator: &mockProviderValidator{},
	}
	ingestService = ts.ingest
	queryService = ts.query
	documentService = ts.documents
	promptService = ts.prompts
	telemetryService = ts.telemetry
	settingsService = ts.settings
	providerValidator = ts.validator
	loader = nil

	return ts, func() {
		ingestService, queryService, documentService = origIngest, origQuery, origDocs
		promptService, telemetryService, settingsService = origPrompts, origTelemetry, origSettings
		providerValidator, loader, stdin = origValidator, origLoader, origStdin
	}
}

// runCommand executes the root command with args and returns its output.
// Flags are reset first because cobra keeps parsed values between runs.
func runCommand(args ...string) (string, error) {
	resetFlags(rootCmd)

	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetArgs(args)
	defer rootCmd.SetArgs(nil)

	err := rootCmd.Execute()
	return buf.String(), err
}

// resetFlags also clears each command's context. Cobra hands the root
// context to a subcommand only while the subcommand's own is nil, so a
// context left over from an earlier Execute would hide ExecuteContext's.
func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	}
	cmd.SetContext(nil) //nolint:staticcheck // nil lets cobra propagate the root context
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, sub := range cmd.Commands() {
		resetFlags(sub)
	}
}

// syncBuffer is a bytes.Buffer safe for concurrent writers.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
