package services

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/custodia-labs/sercha-rag/internal/core/domain"
	"github.com/custodia-labs/sercha-rag/internal/core/ports/driven"
	"github.com/custodia-labs/sercha-rag/internal/core/ports/driving"
)

// Ensure SettingsService implements the interface.
var _ driving.SettingsService = (*SettingsService)(nil)

// Config keys for settings storage.
//
//nolint:gosec // G101: These are config key names, not actual credentials.
const (
	keyStorageBackend     = "storage.backend"
	keyStorageDataDir     = "storage.data_dir"
	keyStorageDatabaseURL = "storage.database_url"
	keyStorageDimensions  = "storage.dimensions"

	keyEmbedProvider   = "embedding.provider"
	keyEmbedModel      = "embedding.model"
	keyEmbedBaseURL    = "embedding.base_url"
	keyEmbedAPIKey     = "embedding.api_key"
	keyEmbedDimensions = "embedding.dimensions"
	keyEmbedBatchSize  = "embedding.batch_size"
	keyEmbedRate       = "embedding.rate_per_second"
	keyEmbedCacheAddr  = "embedding.cache_redis_addr"
	keyEmbedCacheTTL   = "embedding.cache_ttl_seconds"

	keyLLMProvider    = "llm.provider"
	keyLLMModel       = "llm.model"
	keyLLMBaseURL     = "llm.base_url"
	keyLLMAPIKey      = "llm.api_key"
	keyLLMMaxTokens   = "llm.max_tokens"
	keyLLMTemperature = "llm.temperature"
	keyLLMRate        = "llm.rate_per_second"

	keyChunkBudget  = "chunking.token_budget"
	keyChunkOverlap = "chunking.overlap_tokens"

	keyExtractMinChars  = "extraction.min_text_chars"
	keyExtractPDFToText = "extraction.pdftotext_path"
	keyExtractTesseract = "extraction.tesseract_path"
	keyExtractPDFToPPM  = "extraction.pdftoppm_path"

	keyRetrievalTopK      = "retrieval.top_k"
	keyRetrievalThreshold = "retrieval.score_threshold"

	keyRetryAttempts = "retry.max_attempts"
	keyRetryInitial  = "retry.initial_backoff_ms"
	keyRetryMax      = "retry.max_backoff_ms"

	keyGenerationFailFast = "generation.fail_fast"

	keyPricingPrefix = "pricing."

	// keyProviderKeysPrefix holds per-provider API keys shared by the
	// embedding and llm sections, e.g. provider_keys.openai.
	keyProviderKeysPrefix = "provider_keys."
)

const defaultOllamaURL = "http://localhost:11434"

// SettingsService manages application settings.
type SettingsService struct {
	configStore driven.ConfigStore
}

// NewSettingsService creates a new settings service.
func NewSettingsService(configStore driven.ConfigStore) *SettingsService {
	return &SettingsService{configStore: configStore}
}

// Get retrieves current application settings.
func (s *SettingsService) Get() (*domain.AppSettings, error) {
	defaults := domain.DefaultAppSettings()

	settings := &domain.AppSettings{
		Storage: domain.StorageSettings{
			Backend:     s.getBackend(defaults.Storage.Backend),
			DataDir:     s.configStore.GetString(keyStorageDataDir),
			DatabaseURL: s.configStore.GetString(keyStorageDatabaseURL),
			Dimensions:  s.configStore.GetInt(keyStorageDimensions),
		},
		Embedding: domain.EmbeddingSettings{
			Provider:       s.getProvider(keyEmbedProvider, defaults.Embedding.Provider),
			BaseURL:        s.configStore.GetString(keyEmbedBaseURL),
			APIKey:         s.configStore.GetString(keyEmbedAPIKey),
			Dimensions:     s.configStore.GetInt(keyEmbedDimensions),
			BatchSize:      s.getInt(keyEmbedBatchSize, defaults.Embedding.BatchSize),
			RatePerSecond:  s.configStore.GetFloat(keyEmbedRate),
			CacheRedisAddr: s.configStore.GetString(keyEmbedCacheAddr),
			CacheTTL:       s.getSeconds(keyEmbedCacheTTL, defaults.Embedding.CacheTTL),
		},
		LLM: domain.LLMSettings{
			Provider:      s.getProvider(keyLLMProvider, defaults.LLM.Provider),
			BaseURL:       s.configStore.GetString(keyLLMBaseURL),
			APIKey:        s.configStore.GetString(keyLLMAPIKey),
			MaxTokens:     s.getInt(keyLLMMaxTokens, defaults.LLM.MaxTokens),
			Temperature:   s.getFloat(keyLLMTemperature, defaults.LLM.Temperature),
			RatePerSecond: s.configStore.GetFloat(keyLLMRate),
		},
		Chunking: domain.ChunkingSettings{
			TokenBudget:   s.getInt(keyChunkBudget, defaults.Chunking.TokenBudget),
			OverlapTokens: s.getInt(keyChunkOverlap, defaults.Chunking.OverlapTokens),
		},
		Extraction: domain.ExtractionSettings{
			MinTextChars:  s.getInt(keyExtractMinChars, defaults.Extraction.MinTextChars),
			PDFToTextPath: s.getString(keyExtractPDFToText, defaults.Extraction.PDFToTextPath),
			TesseractPath: s.getString(keyExtractTesseract, defaults.Extraction.TesseractPath),
			PDFToPPMPath:  s.getString(keyExtractPDFToPPM, defaults.Extraction.PDFToPPMPath),
		},
		Retrieval: domain.RetrievalSettings{
			TopK:           s.getInt(keyRetrievalTopK, defaults.Retrieval.TopK),
			ScoreThreshold: s.getThreshold(defaults.Retrieval.ScoreThreshold),
		},
		Retry: domain.RetrySettings{
			MaxAttempts:    s.getInt(keyRetryAttempts, defaults.Retry.MaxAttempts),
			InitialBackoff: s.getMillis(keyRetryInitial, defaults.Retry.InitialBackoff),
			MaxBackoff:     s.getMillis(keyRetryMax, defaults.Retry.MaxBackoff),
		},
		Generation: domain.GenerationSettings{
			FailFast: s.getBool(keyGenerationFailFast, defaults.Generation.FailFast),
		},
		Pricing: s.getPricing(defaults.Pricing),
	}

	settings.Embedding.Model = s.getString(keyEmbedModel, domain.DefaultEmbeddingModels()[settings.Embedding.Provider])
	settings.LLM.Model = s.getString(keyLLMModel, domain.DefaultLLMModels()[settings.LLM.Provider])

	if settings.Embedding.APIKey == "" {
		settings.Embedding.APIKey = s.configStore.GetString(keyProviderKeysPrefix + string(settings.Embedding.Provider))
	}
	if settings.LLM.APIKey == "" {
		settings.LLM.APIKey = s.configStore.GetString(keyProviderKeysPrefix + string(settings.LLM.Provider))
	}

	if settings.Embedding.Dimensions == 0 {
		settings.Embedding.Dimensions = domain.EmbeddingDimensions()[settings.Embedding.Model]
	}
	if settings.Storage.Dimensions == 0 {
		settings.Storage.Dimensions = settings.Embedding.Dimensions
	}
	if settings.Embedding.Provider == domain.AIProviderOllama && settings.Embedding.BaseURL == "" {
		settings.Embedding.BaseURL = defaultOllamaURL
	}
	if settings.LLM.Provider == domain.AIProviderOllama && settings.LLM.BaseURL == "" {
		settings.LLM.BaseURL = defaultOllamaURL
	}

	return settings, nil
}

// Save persists application settings.
func (s *SettingsService) Save(settings *domain.AppSettings) error {
	values := map[string]any{
		keyStorageBackend:     string(settings.Storage.Backend),
		keyEmbedProvider:      settings.Embedding.Provider.String(),
		keyEmbedModel:         settings.Embedding.Model,
		keyEmbedBaseURL:       settings.Embedding.BaseURL,
		keyLLMProvider:        settings.LLM.Provider.String(),
		keyLLMModel:           settings.LLM.Model,
		keyLLMBaseURL:         settings.LLM.BaseURL,
		keyChunkBudget:        settings.Chunking.TokenBudget,
		keyChunkOverlap:       settings.Chunking.OverlapTokens,
		keyRetrievalTopK:      settings.Retrieval.TopK,
		keyGenerationFailFast: settings.Generation.FailFast,
	}
	if settings.Storage.DataDir != "" {
		values[keyStorageDataDir] = settings.Storage.DataDir
	}
	if settings.Embedding.Dimensions > 0 {
		values[keyEmbedDimensions] = settings.Embedding.Dimensions
	}
	// API keys are only written when set
	if settings.Embedding.APIKey != "" {
		values[keyEmbedAPIKey] = settings.Embedding.APIKey
	}
	if settings.LLM.APIKey != "" {
		values[keyLLMAPIKey] = settings.LLM.APIKey
	}

	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		if err := s.configStore.Set(k, values[k]); err != nil {
			return fmt.Errorf("save %s: %w", k, err)
		}
	}
	return nil
}

// SetEmbeddingProvider configures the embedding provider.
func (s *SettingsService) SetEmbeddingProvider(provider domain.AIProvider, model, apiKey string) error {
	if !provider.SupportsEmbedding() {
		return fmt.Errorf("provider %s does not support embeddings", provider)
	}
	if provider.RequiresAPIKey() && apiKey == "" {
		return fmt.Errorf("API key required for %s", provider)
	}

	settings, err := s.Get()
	if err != nil {
		return err
	}

	settings.Embedding.Provider = provider
	if model == "" {
		model = domain.DefaultEmbeddingModels()[provider]
	}
	settings.Embedding.Model = model
	settings.Embedding.APIKey = apiKey
	settings.Embedding.Dimensions = domain.EmbeddingDimensions()[model]

	if provider == domain.AIProviderOllama {
		if settings.Embedding.BaseURL == "" {
			settings.Embedding.BaseURL = defaultOllamaURL
		}
	} else {
		settings.Embedding.BaseURL = ""
	}

	return s.Save(settings)
}

// SetLLMProvider configures the LLM provider.
func (s *SettingsService) SetLLMProvider(provider domain.AIProvider, model, apiKey string) error {
	if !provider.SupportsLLM() {
		return fmt.Errorf("provider %s does not support completions", provider)
	}
	if provider.RequiresAPIKey() && apiKey == "" {
		return fmt.Errorf("API key required for %s", provider)
	}

	settings, err := s.Get()
	if err != nil {
		return err
	}

	settings.LLM.Provider = provider
	if model == "" {
		model = domain.DefaultLLMModels()[provider]
	}
	settings.LLM.Model = model
	settings.LLM.APIKey = apiKey

	if provider == domain.AIProviderOllama {
		if settings.LLM.BaseURL == "" {
			settings.LLM.BaseURL = defaultOllamaURL
		}
	} else {
		settings.LLM.BaseURL = ""
	}

	return s.Save(settings)
}

// SetValue stores a single dotted configuration key, converting numeric
// and boolean strings to their typed form.
func (s *SettingsService) SetValue(key, value string) error {
	key = strings.TrimSpace(key)
	if key == "" || !strings.Contains(key, ".") {
		return domain.NewValidationError("key", "must be a dotted section.name key")
	}
	return s.configStore.Set(key, parseValue(value))
}

// Validate checks if current settings are usable.
func (s *SettingsService) Validate() error {
	settings, err := s.Get()
	if err != nil {
		return err
	}

	if !settings.Storage.Backend.IsValid() {
		return fmt.Errorf("invalid storage backend: %s", settings.Storage.Backend)
	}
	if settings.Storage.Backend == domain.StorageBackendPostgres && settings.Storage.DatabaseURL == "" {
		return fmt.Errorf("storage backend postgres requires storage.database_url")
	}
	if !settings.Embedding.IsConfigured() {
		return fmt.Errorf("%w: embedding provider %q is not configured", domain.ErrEmbeddingUnavailable, settings.Embedding.Provider)
	}
	if settings.Storage.Dimensions <= 0 {
		return fmt.Errorf("unknown dimensions for embedding model %q: set embedding.dimensions", settings.Embedding.Model)
	}
	if settings.Embedding.Dimensions > 0 && settings.Embedding.Dimensions != settings.Storage.Dimensions {
		return &domain.DimensionMismatchError{Expected: settings.Storage.Dimensions, Got: settings.Embedding.Dimensions}
	}
	if !settings.LLM.IsConfigured() {
		return fmt.Errorf("%w: LLM provider %q is not configured", domain.ErrLLMUnavailable, settings.LLM.Provider)
	}
	return nil
}

// GetDefaults returns default settings.
func (s *SettingsService) GetDefaults() domain.AppSettings {
	return domain.DefaultAppSettings()
}

// Helper methods for reading config with defaults.

func (s *SettingsService) getString(key, defaultVal string) string {
	val := s.configStore.GetString(key)
	if val == "" {
		return defaultVal
	}
	return val
}

func (s *SettingsService) getInt(key string, defaultVal int) int {
	val := s.configStore.GetInt(key)
	if val == 0 {
		return defaultVal
	}
	return val
}

func (s *SettingsService) getFloat(key string, defaultVal float64) float64 {
	if _, exists := s.configStore.Get(key); !exists {
		return defaultVal
	}
	return s.configStore.GetFloat(key)
}

func (s *SettingsService) getBool(key string, defaultVal bool) bool {
	if _, exists := s.configStore.Get(key); !exists {
		return defaultVal
	}
	return s.configStore.GetBool(key)
}

func (s *SettingsService) getSeconds(key string, defaultVal time.Duration) time.Duration {
	if v := s.configStore.GetInt(key); v > 0 {
		return time.Duration(v) * time.Second
	}
	return defaultVal
}

func (s *SettingsService) getMillis(key string, defaultVal time.Duration) time.Duration {
	if v := s.configStore.GetInt(key); v > 0 {
		return time.Duration(v) * time.Millisecond
	}
	return defaultVal
}

// getThreshold returns nil when the threshold is configured as a negative
// number, which disables thresholding.
func (s *SettingsService) getThreshold(defaultVal *float64) *float64 {
	if _, exists := s.configStore.Get(keyRetrievalThreshold); !exists {
		return defaultVal
	}
	v := s.configStore.GetFloat(keyRetrievalThreshold)
	if v < 0 {
		return nil
	}
	return &v
}

func (s *SettingsService) getBackend(defaultVal domain.StorageBackend) domain.StorageBackend {
	val := s.configStore.GetString(keyStorageBackend)
	if val == "" {
		return defaultVal
	}
	backend := domain.StorageBackend(val)
	if !backend.IsValid() {
		return defaultVal
	}
	return backend
}

func (s *SettingsService) getProvider(key string, defaultVal domain.AIProvider) domain.AIProvider {
	val := s.configStore.GetString(key)
	if val == "" {
		return defaultVal
	}
	provider := domain.AIProvider(val)
	if !provider.IsValid() {
		return defaultVal
	}
	return provider
}

// getPricing overlays pricing.<provider>/<model>.input_per_million and
// .output_per_million keys on the default table.
func (s *SettingsService) getPricing(defaults domain.PricingTable) domain.PricingTable {
	table := make(domain.PricingTable, len(defaults))
	for k, v := range defaults {
		table[k] = v
	}

	for key := range defaults {
		s.overlayPrice(table, key)
	}
	for _, key := range s.configStore.GetStringSlice("pricing.models") {
		s.overlayPrice(table, key)
	}
	return table
}

func (s *SettingsService) overlayPrice(table domain.PricingTable, model string) {
	inKey := keyPricingPrefix + model + ".input_per_million"
	outKey := keyPricingPrefix + model + ".output_per_million"
	_, hasIn := s.configStore.Get(inKey)
	_, hasOut := s.configStore.Get(outKey)
	if !hasIn && !hasOut {
		return
	}
	price := table[model]
	if hasIn {
		price.InputPerMillion = s.configStore.GetFloat(inKey)
	}
	if hasOut {
		price.OutputPerMillion = s.configStore.GetFloat(outKey)
	}
	table[model] = price
}

func parseValue(value string) any {
	if i, err := strconv.Atoi(value); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(value, 64); err == nil {
		return f
	}
	if b, err := strconv.ParseBool(value); err == nil {
		return b
	}
	return value
}
