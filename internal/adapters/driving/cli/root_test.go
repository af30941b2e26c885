package cli

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/sercha-rag/internal/core/ports/driving"
)

func TestRootCmd_Use(t *testing.T) {
	assert.Equal(t, "sercha-rag", rootCmd.Use)
}

func TestRootCmd_HasSubcommands(t *testing.T) {
	names := make([]string, 0)
	for _, cmd := range rootCmd.Commands() {
		names = append(names, cmd.Name())
	}

	for _, want := range []string{"ingest", "query", "document", "prompt", "logs", "metrics", "watch", "mcp", "config", "version", "chat"} {
		assert.Contains(t, names, want)
	}
}

func TestSetVersion(t *testing.T) {
	orig := version
	defer func() { version = orig }()

	SetVersion("")
	assert.Equal(t, orig, version)

	SetVersion("1.2.3")
	assert.Equal(t, "1.2.3", version)
}

// recordingLoader counts what bootstrap asked for.
type recordingLoader struct {
	settingsCalls int
	serviceCalls  int
	closed        int
	configDirs    []string
}

func (r *recordingLoader) loader(ts *testServices) *Loader {
	return &Loader{
		Settings: func(dir string) (driving.SettingsService, error) {
			r.settingsCalls++
			r.configDirs = append(r.configDirs, dir)
			return ts.settings, nil
		},
		Services: func(_ context.Context, dir string) (*Services, error) {
			r.serviceCalls++
			r.configDirs = append(r.configDirs, dir)
			return &Services{
				Ingest:    ts.ingest,
				Query:     ts.query,
				Documents: ts.documents,
				Prompts:   ts.prompts,
				Telemetry: ts.telemetry,
				Close: func() error {
					r.closed++
					return nil
				},
			}, nil
		},
		Validator: ts.validator,
	}
}

func TestBootstrap_LoadsWhatCommandNeeds(t *testing.T) {
	tests := []struct {
		name         string
		args         []string
		wantSettings int
		wantServices int
	}{
		{name: "version needs nothing", args: []string{"version"}},
		{name: "config needs settings", args: []string{"config", "show"}, wantSettings: 1},
		{name: "document needs services", args: []string{"document", "list"}, wantSettings: 1, wantServices: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts, cleanup := setupTestServices()
			defer cleanup()
			rec := &recordingLoader{}
			SetLoader(rec.loader(ts))

			_, err := runCommand(tt.args...)

			require.NoError(t, err)
			assert.Equal(t, tt.wantSettings, rec.settingsCalls)
			assert.Equal(t, tt.wantServices, rec.serviceCalls)
			assert.Equal(t, tt.wantServices, rec.closed)
		})
	}
}

func TestBootstrap_PassesConfigDir(t *testing.T) {
	ts, cleanup := setupTestServices()
	defer cleanup()
	rec := &recordingLoader{}
	SetLoader(rec.loader(ts))

	_, err := runCommand("--config-dir", "/tmp/rag-test", "metrics")

	require.NoError(t, err)
	assert.Equal(t, []string{"/tmp/rag-test", "/tmp/rag-test"}, rec.configDirs)
}

func TestBootstrap_ServiceError(t *testing.T) {
	_, cleanup := setupTestServices()
	defer cleanup()
	SetLoader(&Loader{
		Services: func(context.Context, string) (*Services, error) {
			return nil, errMockFailure
		},
	})

	_, err := runCommand("metrics")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to start")
	assert.ErrorIs(t, err, errMockFailure)
}

func TestCommands_WithoutServices(t *testing.T) {
	_, cleanup := setupTestServices()
	defer cleanup()
	ingestService, queryService, documentService = nil, nil, nil
	promptService, telemetryService, settingsService = nil, nil, nil

	tests := []struct {
		args []string
		want string
	}{
		{[]string{"ingest", "file.txt"}, "ingest service not configured"},
		{[]string{"query", "question"}, "query service not configured"},
		{[]string{"document", "list"}, "document service not configured"},
		{[]string{"prompt", "list"}, "prompt service not configured"},
		{[]string{"logs"}, "telemetry service not configured"},
		{[]string{"metrics"}, "telemetry service not configured"},
		{[]string{"config", "show"}, "settings service not configured"},
		{[]string{"watch", "."}, "ingest service not configured"},
		{[]string{"mcp", "serve"}, "query service"},
		{[]string{"chat"}, "query service not configured"},
	}

	for _, tt := range tests {
		t.Run(tt.args[0], func(t *testing.T) {
			_, err := runCommand(tt.args...)

			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
