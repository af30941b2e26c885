package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPricingTable_Cost(t *testing.T) {
	table := DefaultPricing()

	tests := []struct {
		name       string
		provider   AIProvider
		model      string
		prompt     int
		completion int
		want       float64
	}{
		{"gpt-4o-mini", AIProviderOpenAI, "gpt-4o-mini", 1000, 500, 0.00045},
		{"gpt-4o", AIProviderOpenAI, "gpt-4o", 1_000_000, 0, 2.5},
		{"claude sonnet", AIProviderAnthropic, "claude-3-5-sonnet-latest", 200, 100, 0.0021},
		{"zero tokens", AIProviderOpenAI, "gpt-4o-mini", 0, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cost := table.Cost(tt.provider, tt.model, tt.prompt, tt.completion)
			require.NotNil(t, cost)
			assert.InDelta(t, tt.want, *cost, 1e-12)
		})
	}
}

func TestPricingTable_UnknownModel(t *testing.T) {
	table := DefaultPricing()

	assert.Nil(t, table.Cost(AIProviderOpenAI, "gpt-unknown", 10, 10))
	assert.Nil(t, table.Cost(AIProviderAnthropic, "gpt-4o-mini", 10, 10))
	assert.Nil(t, PricingTable(nil).Cost(AIProviderOpenAI, "gpt-4o", 10, 10))
}

func TestPricingTable_RoundsToEightDecimals(t *testing.T) {
	table := PricingTable{"openai/tiny": {InputPerMillion: 0.001, OutputPerMillion: 0}}

	cost := table.Cost(AIProviderOpenAI, "tiny", 1, 0)
	require.NotNil(t, cost)
	assert.Equal(t, 0.0, *cost)
}

func TestPricingKey(t *testing.T) {
	assert.Equal(t, "ollama/llama3.2", PricingKey(AIProviderOllama, "llama3.2"))
}
