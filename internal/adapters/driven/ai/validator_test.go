package ai

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/sercha-rag/internal/adapters/driven/embedding/hashing"
	"github.com/custodia-labs/sercha-rag/internal/core/domain"
)

func TestConfigValidator_NilConfig(t *testing.T) {
	validator := NewConfigValidator()
	require.NotNil(t, validator)

	// nil config returns nil (graceful handling - nothing to validate)
	assert.NoError(t, validator.ValidateEmbedding(context.Background(), nil))
	assert.NoError(t, validator.ValidateLLM(context.Background(), nil))
}

func TestConfigValidator_UnconfiguredProvider(t *testing.T) {
	validator := NewConfigValidator()

	assert.NoError(t, validator.ValidateEmbedding(context.Background(), &domain.EmbeddingSettings{Model: "m"}))
	assert.NoError(t, validator.ValidateLLM(context.Background(), &domain.LLMSettings{Model: "m"}))
}

func TestConfigValidator_OfflineProviders(t *testing.T) {
	validator := NewConfigValidator()

	assert.NoError(t, validator.ValidateEmbedding(context.Background(),
		&domain.EmbeddingSettings{Provider: domain.AIProviderHash}))
	assert.NoError(t, validator.ValidateLLM(context.Background(),
		&domain.LLMSettings{Provider: domain.AIProviderStub}))
}

func TestValidateDimensions(t *testing.T) {
	svc, err := hashing.NewEmbeddingService(64)
	require.NoError(t, err)

	assert.NoError(t, ValidateDimensions(svc, 64))

	err = ValidateDimensions(svc, 768)
	assert.ErrorIs(t, err, domain.ErrDimensionMismatch)
	assert.ErrorIs(t, err, domain.ErrValidation)
}
