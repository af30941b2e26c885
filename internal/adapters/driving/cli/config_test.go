package cli

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/sercha-rag/internal/core/domain"
)

func TestMaskAPIKey(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "Short key",
			input:    "abc123",
			expected: "****",
		},
		{
			name:     "Exactly 8 chars",
			input:    "12345678",
			expected: "****",
		},
		{
			name:     "Long key",
			input:    "sk-1234567890abcdef",
			expected: "sk-1...cdef",
		},
		{
			name:     "Very long key",
			input:    "sk-proj-1234567890abcdefghijklmnop",
			expected: "sk-p...mnop",
		},
		{
			name:     "Empty key",
			input:    "",
			expected: "****",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := maskAPIKey(tt.input)
			assert.Equal(t, tt.expected, result)
		})
	}
}

func TestParseChoice(t *testing.T) {
	tests := []struct {
		name       string
		input      string
		maxVal     int
		defaultVal int
		expected   int
	}{
		{
			name:       "Empty input returns default",
			input:      "",
			maxVal:     5,
			defaultVal: 1,
			expected:   1,
		},
		{
			name:       "Valid choice within range",
			input:      "3",
			maxVal:     5,
			defaultVal: 1,
			expected:   3,
		},
		{
			name:       "Choice below minimum returns default",
			input:      "0",
			maxVal:     5,
			defaultVal: 1,
			expected:   1,
		},
		{
			name:       "Choice above maximum returns default",
			input:      "6",
			maxVal:     5,
			defaultVal: 1,
			expected:   1,
		},
		{
			name:       "Invalid input returns default",
			input:      "abc",
			maxVal:     5,
			defaultVal: 2,
			expected:   2,
		},
		{
			name:       "Negative number returns default",
			input:      "-1",
			maxVal:     5,
			defaultVal: 1,
			expected:   1,
		},
		{
			name:       "Whitespace returns default",
			input:      "   ",
			maxVal:     5,
			defaultVal: 1,
			expected:   1,
		},
		{
			name:       "Maximum value is valid",
			input:      "5",
			maxVal:     5,
			defaultVal: 1,
			expected:   5,
		},
		{
			name:       "Minimum value is valid",
			input:      "1",
			maxVal:     5,
			defaultVal: 3,
			expected:   1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := parseChoice(tt.input, tt.maxVal, tt.defaultVal)
			assert.Equal(t, tt.expected, result)
		})
	}
}

func TestMaskDSN(t *testing.T) {
	assert.Equal(t, "postgres://rag:****@db:5432/rag", maskDSN("postgres://rag:secret@db:5432/rag"))
	assert.Equal(t, "postgres://rag@db/rag", maskDSN("postgres://rag@db/rag"))
	assert.Equal(t, "host=db user=rag", maskDSN("host=db user=rag"))
}

func TestConfigShowCmd(t *testing.T) {
	_, cleanup := setupTestServices()
	defer cleanup()

	out, err := runCommand("config")

	require.NoError(t, err)
	assert.Contains(t, out, "Backend: sqlite")
	assert.Contains(t, out, "Dimensions: 128")
	assert.Contains(t, out, "Provider: Hash (deterministic, offline)")
	assert.Contains(t, out, "Provider: OpenAI (cloud)")
	assert.Contains(t, out, "API Key: sk-t...7890")
	assert.Contains(t, out, "Token budget: 400")
	assert.Contains(t, out, "Score threshold: 0.05")
	assert.Contains(t, out, "Configuration is valid.")
	assert.NotContains(t, out, "sk-test-1234567890")
}

func TestConfigShowCmd_Postgres(t *testing.T) {
	ts, cleanup := setupTestServices()
	defer cleanup()
	ts.settings.settings.Storage.Backend = domain.StorageBackendPostgres
	ts.settings.settings.Storage.DatabaseURL = "postgres://rag:secret@db/rag"

	out, err := runCommand("config", "show")

	require.NoError(t, err)
	assert.Contains(t, out, "Database URL: postgres://rag:****@db/rag")
}

func TestConfigShowCmd_InvalidWarns(t *testing.T) {
	ts, cleanup := setupTestServices()
	defer cleanup()
	ts.settings.invalid = domain.NewValidationError("llm.api_key", "required")

	out, err := runCommand("config", "show")

	require.NoError(t, err)
	assert.Contains(t, out, "Warning:")
	assert.Contains(t, out, "sercha-rag config llm")
}

func TestConfigSetCmd(t *testing.T) {
	ts, cleanup := setupTestServices()
	defer cleanup()

	out, err := runCommand("config", "set", "retrieval.top_k", "8")

	require.NoError(t, err)
	assert.Contains(t, out, "Set retrieval.top_k = 8")
	assert.Equal(t, "8", ts.settings.values["retrieval.top_k"])
}

func TestConfigSetCmd_MasksKeys(t *testing.T) {
	_, cleanup := setupTestServices()
	defer cleanup()

	out, err := runCommand("config", "set", "llm.api_key", "sk-abcdefghijkl")

	require.NoError(t, err)
	assert.Contains(t, out, "Set llm.api_key = sk-a...ijkl")
}

func TestConfigSetCmd_Error(t *testing.T) {
	_, cleanup := setupTestServices()
	defer cleanup()

	_, err := runCommand("config", "set", "nodot", "x")

	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestConfigValidateCmd(t *testing.T) {
	_, cleanup := setupTestServices()
	defer cleanup()

	out, err := runCommand("config", "validate")

	require.NoError(t, err)
	assert.Contains(t, out, "Settings: OK")
	assert.Contains(t, out, "Embedding (hash): OK")
	assert.Contains(t, out, "LLM (openai): OK")
}

func TestConfigValidateCmd_ProviderFailure(t *testing.T) {
	ts, cleanup := setupTestServices()
	defer cleanup()
	ts.validator.llmErr = domain.ErrLLMUnavailable

	out, err := runCommand("config", "validate")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "provider validation failed")
	assert.Contains(t, out, "Embedding (hash): OK")
	assert.Contains(t, out, "LLM (openai): FAILED")
}

func TestConfigValidateCmd_InvalidSettings(t *testing.T) {
	ts, cleanup := setupTestServices()
	defer cleanup()
	ts.settings.invalid = domain.NewValidationError("storage.database_url", "required for postgres")

	_, err := runCommand("config", "validate")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid configuration")
}

func TestConfigEmbeddingCmd_Interactive(t *testing.T) {
	ts, cleanup := setupTestServices()
	defer cleanup()
	// Ollama, default model.
	stdin = strings.NewReader("1\n\n")

	out, err := runCommand("config", "embedding")

	require.NoError(t, err)
	assert.Equal(t, domain.AIProviderOllama, ts.settings.settings.Embedding.Provider)
	assert.Equal(t, "nomic-embed-text", ts.settings.settings.Embedding.Model)
	assert.Contains(t, out, "Validating configuration... OK")
	assert.Contains(t, out, "re-ingesting")
}

func TestConfigLLMCmd_Interactive(t *testing.T) {
	ts, cleanup := setupTestServices()
	defer cleanup()
	// Anthropic, custom model, key read from the non-terminal input.
	stdin = strings.NewReader("3\nclaude-test\nsk-ant-123456789\n")

	out, err := runCommand("config", "llm")

	require.NoError(t, err)
	assert.Equal(t, domain.AIProviderAnthropic, ts.settings.settings.LLM.Provider)
	assert.Equal(t, "claude-test", ts.settings.settings.LLM.Model)
	assert.Equal(t, "sk-ant-123456789", ts.settings.settings.LLM.APIKey)
	assert.Contains(t, out, "LLM provider configured: Anthropic (cloud) (claude-test)")
}

func TestConfigLLMCmd_MissingAPIKey(t *testing.T) {
	_, cleanup := setupTestServices()
	defer cleanup()
	stdin = strings.NewReader("2\n\n\n")

	_, err := runCommand("config", "llm")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "API key is required")
}

func TestConfigLLMCmd_ValidationFails(t *testing.T) {
	ts, cleanup := setupTestServices()
	defer cleanup()
	ts.validator.llmErr = domain.ErrLLMUnavailable
	stdin = strings.NewReader("4\n\n")

	out, err := runCommand("config", "llm")

	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrLLMUnavailable)
	assert.Contains(t, out, "FAILED")
}
