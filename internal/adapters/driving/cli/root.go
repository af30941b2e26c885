// Package cli implements the sercha-rag command line.
package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/sercha-rag/internal/core/domain"
	"github.com/custodia-labs/sercha-rag/internal/core/ports/driving"
	"github.com/custodia-labs/sercha-rag/internal/logger"
)

// version is overridden at build time with SetVersion.
var version = "dev"

// Global flags.
var (
	configDir string
	verbose   bool
)

// Services used by commands. They are populated by the Loader before a
// command runs, or directly by tests.
var (
	settingsService   driving.SettingsService
	ingestService     driving.IngestService
	queryService      driving.QueryService
	documentService   driving.DocumentService
	promptService     driving.PromptService
	telemetryService  driving.TelemetryService
	providerValidator ProviderValidator
)

// Services bundles what a full command needs.
type Services struct {
	Ingest    driving.IngestService
	Query     driving.QueryService
	Documents driving.DocumentService
	Prompts   driving.PromptService
	Telemetry driving.TelemetryService

	// Close releases the services. May be nil.
	Close func() error
}

// ProviderValidator pings configured AI providers.
type ProviderValidator interface {
	ValidateEmbedding(ctx context.Context, cfg *domain.EmbeddingSettings) error
	ValidateLLM(ctx context.Context, cfg *domain.LLMSettings) error
}

// Loader builds services from the config directory chosen on the command line.
type Loader struct {
	Settings  func(configDir string) (driving.SettingsService, error)
	Services  func(ctx context.Context, configDir string) (*Services, error)
	Validator ProviderValidator
}

var (
	loader        *Loader
	closeServices func() error
)

// SetLoader installs the service loader. Without one, commands use whatever
// services are already set.
func SetLoader(l *Loader) {
	loader = l
}

// SetVersion sets the version reported by the version command.
func SetVersion(v string) {
	if v != "" {
		version = v
	}
}

// Command annotations describing what a command needs loaded.
const (
	annotationNeeds = "needs"
	needsNothing    = "nothing"
	needsSettings   = "settings"
)

var rootCmd = &cobra.Command{
	Use:   "sercha-rag",
	Short: "Grounded question answering over your documents",
	Long: `sercha-rag ingests documents into a vector store and answers questions
from them with an LLM, citing the passages each answer is built on.

Ingesting the same bytes twice is a no-op. Configuration lives in
~/.sercha-rag/config.toml and can be overridden with SERCHA_RAG_* variables
or a .env file.`,
	SilenceUsage:      true,
	PersistentPreRunE: bootstrap,
	PersistentPostRunE: func(_ *cobra.Command, _ []string) error {
		return shutdown()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configDir, "config-dir", "", "configuration directory (default ~/.sercha-rag)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
}

// Execute runs the root command.
func Execute(ctx context.Context) error {
	err := rootCmd.ExecuteContext(ctx)
	if shutdownErr := shutdown(); shutdownErr != nil && err == nil {
		err = shutdownErr
	}
	return err
}

func bootstrap(cmd *cobra.Command, _ []string) error {
	logger.SetVerbose(verbose)

	needs := cmd.Annotations[annotationNeeds]
	if loader == nil || needs == needsNothing {
		return nil
	}

	if loader.Settings != nil {
		svc, err := loader.Settings(configDir)
		if err != nil {
			return fmt.Errorf("failed to load settings: %w", err)
		}
		settingsService = svc
	}
	if loader.Validator != nil {
		providerValidator = loader.Validator
	}
	if needs == needsSettings || loader.Services == nil {
		return nil
	}

	svcs, err := loader.Services(cmd.Context(), configDir)
	if err != nil {
		return fmt.Errorf("failed to start: %w", err)
	}
	ingestService = svcs.Ingest
	queryService = svcs.Query
	documentService = svcs.Documents
	promptService = svcs.Prompts
	telemetryService = svcs.Telemetry
	closeServices = svcs.Close
	return nil
}

func shutdown() error {
	if closeServices == nil {
		return nil
	}
	fn := closeServices
	closeServices = nil
	return fn()
}

// errNotConfigured reports a missing service.
func errNotConfigured(name string) error {
	return errors.New(name + " service not configured")
}
