// Package app assembles the services behind every driving surface from the
// user's configuration.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/custodia-labs/sercha-rag/internal/adapters/driven/ai"
	"github.com/custodia-labs/sercha-rag/internal/adapters/driven/config/file"
	"github.com/custodia-labs/sercha-rag/internal/adapters/driven/storage/memory"
	"github.com/custodia-labs/sercha-rag/internal/adapters/driven/storage/postgres"
	"github.com/custodia-labs/sercha-rag/internal/adapters/driven/storage/sqlite"
	"github.com/custodia-labs/sercha-rag/internal/core/domain"
	"github.com/custodia-labs/sercha-rag/internal/core/ports/driven"
	"github.com/custodia-labs/sercha-rag/internal/core/services"
	"github.com/custodia-labs/sercha-rag/internal/extractors"
	"github.com/custodia-labs/sercha-rag/internal/extractors/command"
	"github.com/custodia-labs/sercha-rag/internal/logger"
	"github.com/custodia-labs/sercha-rag/internal/postprocessors/chunker"
)

// Options control how the application is assembled.
type Options struct {
	// ConfigDir holds config.toml, .env, prompts/ and the default data dir.
	// Empty means ~/.sercha-rag.
	ConfigDir string

	// Runner executes external extraction tools. Nil uses os/exec.
	Runner command.Runner
}

// Store is everything the services need from persistence.
type Store interface {
	driven.VectorStore
	driven.PromptRegistry
	driven.QueryLogStore
}

// App holds the assembled services.
type App struct {
	Settings  *services.SettingsService
	Ingest    *services.IngestService
	Query     *services.QueryService
	Documents *services.DocumentService
	Prompts   *services.PromptService
	Telemetry *services.TelemetryService

	// Warnings lists non-fatal setup problems, such as a missing LLM.
	Warnings []string

	store Store
	ai    *ai.InitResult
}

// ResolveConfigDir returns dir, or ~/.sercha-rag when dir is empty.
func ResolveConfigDir(dir string) (string, error) {
	if dir != "" {
		return dir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("get home directory: %w", err)
	}
	return filepath.Join(home, ".sercha-rag"), nil
}

// LoadSettings opens the config store, applies .env files from the working
// directory and the config dir, and returns the settings service.
func LoadSettings(configDir string) (*services.SettingsService, error) {
	dir, err := ResolveConfigDir(configDir)
	if err != nil {
		return nil, err
	}
	store, err := file.NewConfigStore(dir)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	if err := store.LoadEnv(".env", filepath.Join(dir, ".env")); err != nil {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	return services.NewSettingsService(store), nil
}

// New assembles the application. The caller must Close it.
func New(ctx context.Context, opts Options) (*App, error) {
	dir, err := ResolveConfigDir(opts.ConfigDir)
	if err != nil {
		return nil, err
	}

	settingsService, err := LoadSettings(dir)
	if err != nil {
		return nil, err
	}
	settings, err := settingsService.Get()
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}
	if settings.Storage.Dimensions <= 0 {
		return nil, fmt.Errorf("unknown dimensions for embedding model %q: set embedding.dimensions", settings.Embedding.Model)
	}

	store, err := openStore(ctx, settings.Storage, dir)
	if err != nil {
		return nil, err
	}

	a := &App{Settings: settingsService, store: store}

	initResult, err := ai.Initialise(ctx, settings, store.Dimensions())
	if err != nil {
		a.Close() //nolint:errcheck // Setup already failed
		return nil, err
	}
	a.ai = initResult
	a.Warnings = append(a.Warnings, initResult.Warnings...)

	registry, ocrEngine := extractors.NewDefault(settings.Extraction, opts.Runner)
	chunks := chunker.New(
		chunker.WithTokenBudget(settings.Chunking.TokenBudget),
		chunker.WithOverlapTokens(settings.Chunking.OverlapTokens),
	)
	retry := services.RetryPolicyFromSettings(settings.Retry)

	a.Ingest = services.NewIngestService(store, registry, chunks, initResult.EmbeddingService)
	a.Ingest.SetOCREngine(ocrEngine)
	a.Ingest.SetRetryPolicy(retry)
	a.Ingest.SetBatchSize(settings.Embedding.BatchSize)
	a.Ingest.SetMinTextChars(settings.Extraction.MinTextChars)

	retriever := services.NewRetriever(store, initResult.EmbeddingService)
	retriever.SetRetryPolicy(retry)

	a.Query = services.NewQueryService(retriever, initResult.LLMService, store, store)
	a.Query.SetPricing(settings.Pricing)
	a.Query.SetGenerationPolicy(services.GenerationPolicy{Retry: retry, FailFast: settings.Generation.FailFast})
	a.Query.SetChatOptions(driven.ChatOptions{MaxTokens: settings.LLM.MaxTokens, Temperature: settings.LLM.Temperature})
	a.Query.SetRetrievalDefaults(settings.Retrieval)

	a.Documents = services.NewDocumentService(store)
	a.Prompts = services.NewPromptService(store)
	a.Telemetry = services.NewTelemetryService(store)

	if err := a.seedPrompts(ctx, dir); err != nil {
		a.Close() //nolint:errcheck // Setup already failed
		return nil, err
	}

	for _, w := range a.Warnings {
		logger.Warn("%s", w)
	}
	return a, nil
}

func (a *App) seedPrompts(ctx context.Context, dir string) error {
	if err := a.Prompts.EnsureDefault(ctx); err != nil {
		return fmt.Errorf("seed default prompt: %w", err)
	}

	seeder, err := file.NewPromptSeeder(filepath.Join(dir, "prompts"), map[string]string{
		domain.DefaultPromptName: services.DefaultSystemPrompt,
	})
	if err != nil {
		return err
	}
	updated, err := seeder.Seed(ctx, a.Prompts)
	if err != nil {
		// Prompt files are a convenience; the registry already has a default.
		a.Warnings = append(a.Warnings, fmt.Sprintf("prompt files not loaded: %v", err))
		return nil
	}
	for _, name := range updated {
		logger.Info("Loaded new version of prompt %q from %s", name, seeder.Dir())
	}
	return nil
}

// Close releases providers and the store.
func (a *App) Close() error {
	if a.ai != nil {
		a.ai.Close()
	}
	if c, ok := a.store.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

func openStore(ctx context.Context, cfg domain.StorageSettings, configDir string) (Store, error) {
	switch cfg.Backend {
	case domain.StorageBackendMemory:
		logger.Warn("Using in-memory storage: data is lost on exit")
		return memory.NewStore(cfg.Dimensions), nil
	case domain.StorageBackendPostgres:
		if cfg.DatabaseURL == "" {
			return nil, errors.New("storage backend postgres requires storage.database_url or DATABASE_URL")
		}
		store, err := postgres.NewStore(ctx, cfg.DatabaseURL, cfg.Dimensions)
		if err != nil {
			return nil, fmt.Errorf("open postgres store: %w", err)
		}
		return store, nil
	case domain.StorageBackendSQLite, "":
		dataDir := cfg.DataDir
		if dataDir == "" {
			dataDir = filepath.Join(configDir, "data")
		}
		store, err := sqlite.NewStore(dataDir, cfg.Dimensions)
		if err != nil {
			return nil, fmt.Errorf("open sqlite store: %w", err)
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}
