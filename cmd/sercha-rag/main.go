// Command sercha-rag answers questions from a local document collection.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/custodia-labs/sercha-rag/internal/adapters/driven/ai"
	"github.com/custodia-labs/sercha-rag/internal/adapters/driving/cli"
	"github.com/custodia-labs/sercha-rag/internal/app"
	"github.com/custodia-labs/sercha-rag/internal/core/ports/driving"
)

// version is set with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cli.SetVersion(version)
	cli.SetLoader(&cli.Loader{
		Settings:  loadSettings,
		Services:  loadServices,
		Validator: ai.NewConfigValidator(),
	})

	if err := cli.Execute(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}

func loadSettings(configDir string) (driving.SettingsService, error) {
	svc, err := app.LoadSettings(configDir)
	if err != nil {
		return nil, err
	}
	return svc, nil
}

func loadServices(ctx context.Context, configDir string) (*cli.Services, error) {
	a, err := app.New(ctx, app.Options{ConfigDir: configDir})
	if err != nil {
		return nil, err
	}
	return &cli.Services{
		Ingest:    a.Ingest,
		Query:     a.Query,
		Documents: a.Documents,
		Prompts:   a.Prompts,
		Telemetry: a.Telemetry,
		Close:     a.Close,
	}, nil
}
