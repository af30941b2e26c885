package driving

import "github.com/custodia-labs/sercha-rag/internal/core/domain"

// SettingsService manages application configuration.
type SettingsService interface {
	// Get returns the effective settings: stored values over defaults.
	Get() (*domain.AppSettings, error)

	// Save persists settings.
	Save(settings *domain.AppSettings) error

	// SetEmbeddingProvider configures the embedding provider.
	// Empty model selects the provider's default model.
	SetEmbeddingProvider(provider domain.AIProvider, model, apiKey string) error

	// SetLLMProvider configures the LLM provider.
	// Empty model selects the provider's default model.
	SetLLMProvider(provider domain.AIProvider, model, apiKey string) error

	// SetValue stores a single dotted configuration key.
	SetValue(key, value string) error

	// Validate checks that the configured providers are usable.
	Validate() error
}
