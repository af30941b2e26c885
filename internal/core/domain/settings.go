package domain

import "time"

const unknownDescription = "Unknown"

// AIProvider identifies an AI service provider for embeddings or LLM.
type AIProvider string

// Available AI providers.
const (
	// AIProviderOllama is local Ollama instance.
	AIProviderOllama AIProvider = "ollama"

	// AIProviderOpenAI is OpenAI cloud API.
	AIProviderOpenAI AIProvider = "openai"

	// AIProviderAnthropic is Anthropic cloud API.
	AIProviderAnthropic AIProvider = "anthropic"

	// AIProviderHash produces deterministic content-hash vectors. Embeddings only.
	AIProviderHash AIProvider = "hash"

	// AIProviderStub answers with a fixed extractive response. LLM only.
	AIProviderStub AIProvider = "stub"
)

// IsValid returns true if the AI provider is recognised.
func (p AIProvider) IsValid() bool {
	switch p {
	case AIProviderOllama, AIProviderOpenAI, AIProviderAnthropic, AIProviderHash, AIProviderStub:
		return true
	default:
		return false
	}
}

// SupportsEmbedding returns true if this provider can produce embeddings.
func (p AIProvider) SupportsEmbedding() bool {
	return p == AIProviderOllama || p == AIProviderOpenAI || p == AIProviderHash
}

// SupportsLLM returns true if this provider can generate completions.
func (p AIProvider) SupportsLLM() bool {
	return p == AIProviderOllama || p == AIProviderOpenAI || p == AIProviderAnthropic || p == AIProviderStub
}

// RequiresAPIKey returns true if this provider needs an API key.
func (p AIProvider) RequiresAPIKey() bool {
	return p == AIProviderOpenAI || p == AIProviderAnthropic
}

// IsLocal returns true if this provider runs without a network service.
func (p AIProvider) IsLocal() bool {
	return p == AIProviderOllama || p == AIProviderHash || p == AIProviderStub
}

// String returns the string representation.
func (p AIProvider) String() string {
	return string(p)
}

// Description returns a human-readable description of the provider.
func (p AIProvider) Description() string {
	switch p {
	case AIProviderOllama:
		return "Ollama (local)"
	case AIProviderOpenAI:
		return "OpenAI (cloud)"
	case AIProviderAnthropic:
		return "Anthropic (cloud)"
	case AIProviderHash:
		return "Hash (deterministic, offline)"
	case AIProviderStub:
		return "Stub (offline)"
	default:
		return unknownDescription
	}
}

// StorageBackend identifies the persistent store implementation.
type StorageBackend string

// Available storage backends.
const (
	StorageBackendSQLite   StorageBackend = "sqlite"
	StorageBackendPostgres StorageBackend = "postgres"
	StorageBackendMemory   StorageBackend = "memory"
)

// IsValid returns true if the backend is recognised.
func (b StorageBackend) IsValid() bool {
	switch b {
	case StorageBackendSQLite, StorageBackendPostgres, StorageBackendMemory:
		return true
	default:
		return false
	}
}

// StorageSettings holds persistent store configuration.
type StorageSettings struct {
	// Backend selects the store implementation.
	Backend StorageBackend

	// DataDir holds the SQLite database. Empty means ~/.sercha-rag/data.
	DataDir string

	// DatabaseURL is the PostgreSQL connection string.
	DatabaseURL string

	// Dimensions is the vector length of the store.
	// Zero means the embedding provider's dimensions.
	Dimensions int
}

// EmbeddingSettings holds embedding provider configuration.
type EmbeddingSettings struct {
	// Provider is the embedding service provider.
	Provider AIProvider

	// Model is the embedding model name.
	Model string

	// BaseURL is the API endpoint (for Ollama).
	BaseURL string

	// APIKey is the API key (for OpenAI).
	APIKey string

	// Dimensions overrides the model's known vector size.
	Dimensions int

	// BatchSize is the number of chunks embedded per provider call.
	BatchSize int

	// RatePerSecond limits provider calls. Zero disables limiting.
	RatePerSecond float64

	// CacheRedisAddr enables the Redis embedding cache when set.
	CacheRedisAddr string

	// CacheTTL is how long cached vectors live.
	CacheTTL time.Duration
}

// IsConfigured returns true if the embedding provider is set up.
func (e EmbeddingSettings) IsConfigured() bool {
	if !e.Provider.SupportsEmbedding() {
		return false
	}
	if e.Provider.RequiresAPIKey() && e.APIKey == "" {
		return false
	}
	return true
}

// LLMSettings holds LLM provider configuration.
type LLMSettings struct {
	// Provider is the LLM service provider.
	Provider AIProvider

	// Model is the LLM model name.
	Model string

	// BaseURL is the API endpoint (for Ollama).
	BaseURL string

	// APIKey is the API key (for OpenAI/Anthropic).
	APIKey string

	// MaxTokens caps the completion length.
	MaxTokens int

	// Temperature is the sampling temperature.
	Temperature float64

	// RatePerSecond limits provider calls. Zero disables limiting.
	RatePerSecond float64
}

// IsConfigured returns true if the LLM provider is set up.
func (l LLMSettings) IsConfigured() bool {
	if !l.Provider.SupportsLLM() {
		return false
	}
	if l.Provider.RequiresAPIKey() && l.APIKey == "" {
		return false
	}
	return true
}

// ChunkingSettings holds chunker configuration.
type ChunkingSettings struct {
	TokenBudget   int
	OverlapTokens int
}

// ExtractionSettings holds text extraction and OCR configuration.
type ExtractionSettings struct {
	// MinTextChars is the number of non-whitespace characters below which
	// primary extraction is considered empty and OCR is attempted.
	MinTextChars int

	PDFToTextPath string
	TesseractPath string
	PDFToPPMPath  string
}

// RetrievalSettings holds similarity search defaults.
type RetrievalSettings struct {
	// TopK is the default number of passages per query.
	TopK int

	// ScoreThreshold is the default minimum similarity. Nil disables it.
	ScoreThreshold *float64
}

// RetrySettings configures retries of provider calls.
type RetrySettings struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// GenerationSettings configures LLM answer generation.
type GenerationSettings struct {
	// FailFast disables retries of the LLM call so degraded answers return sooner.
	FailFast bool
}

// AppSettings holds all application settings.
type AppSettings struct {
	Storage    StorageSettings
	Embedding  EmbeddingSettings
	LLM        LLMSettings
	Chunking   ChunkingSettings
	Extraction ExtractionSettings
	Retrieval  RetrievalSettings
	Retry      RetrySettings
	Generation GenerationSettings
	Pricing    PricingTable
}

// DefaultScoreThreshold keeps passages within cosine distance 0.95 of the query.
const DefaultScoreThreshold = 0.05

// DefaultAppSettings returns settings with sensible defaults.
// The defaults run fully offline apart from the OpenAI LLM.
func DefaultAppSettings() AppSettings {
	threshold := DefaultScoreThreshold
	return AppSettings{
		Storage: StorageSettings{
			Backend: StorageBackendSQLite,
		},
		Embedding: EmbeddingSettings{
			Provider:  AIProviderHash,
			Model:     DefaultEmbeddingModels()[AIProviderHash],
			BatchSize: 64,
			CacheTTL:  24 * time.Hour,
		},
		LLM: LLMSettings{
			Provider:    AIProviderOpenAI,
			Model:       DefaultLLMModels()[AIProviderOpenAI],
			MaxTokens:   1024,
			Temperature: 0.2,
		},
		Chunking: ChunkingSettings{
			TokenBudget:   400,
			OverlapTokens: 80,
		},
		Extraction: ExtractionSettings{
			MinTextChars:  20,
			PDFToTextPath: "pdftotext",
			TesseractPath: "tesseract",
			PDFToPPMPath:  "pdftoppm",
		},
		Retrieval: RetrievalSettings{
			TopK:           DefaultTopK,
			ScoreThreshold: &threshold,
		},
		Retry: RetrySettings{
			MaxAttempts:    3,
			InitialBackoff: time.Second,
			MaxBackoff:     10 * time.Second,
		},
		Pricing: DefaultPricing(),
	}
}

// AllEmbeddingProviders returns providers that support embeddings.
func AllEmbeddingProviders() []AIProvider {
	return []AIProvider{
		AIProviderOllama,
		AIProviderOpenAI,
		AIProviderHash,
	}
}

// AllLLMProviders returns providers that support LLM operations.
func AllLLMProviders() []AIProvider {
	return []AIProvider{
		AIProviderOllama,
		AIProviderOpenAI,
		AIProviderAnthropic,
		AIProviderStub,
	}
}

// DefaultEmbeddingModels returns default models for each embedding provider.
func DefaultEmbeddingModels() map[AIProvider]string {
	return map[AIProvider]string{
		AIProviderOllama: "nomic-embed-text",
		AIProviderOpenAI: "text-embedding-3-small",
		AIProviderHash:   "sha256-128",
	}
}

// DefaultLLMModels returns default models for each LLM provider.
func DefaultLLMModels() map[AIProvider]string {
	return map[AIProvider]string{
		AIProviderOllama:    "llama3.2",
		AIProviderOpenAI:    "gpt-4o-mini",
		AIProviderAnthropic: "claude-3-5-sonnet-latest",
		AIProviderStub:      "stub",
	}
}

// EmbeddingDimensions returns the vector dimensions for known models.
func EmbeddingDimensions() map[string]int {
	return map[string]int{
		// Ollama models
		"nomic-embed-text":  768,
		"mxbai-embed-large": 1024,
		"all-minilm":        384,
		// OpenAI models
		"text-embedding-3-small": 1536,
		"text-embedding-3-large": 3072,
		"text-embedding-ada-002": 1536,
		// Hash
		"sha256-128": 128,
	}
}
