package domain

import "math"

// ModelPrice is the cost of a model per million tokens, in USD.
type ModelPrice struct {
	InputPerMillion  float64
	OutputPerMillion float64
}

// PricingTable maps "provider/model" keys to prices.
type PricingTable map[string]ModelPrice

// PricingKey builds the table key for a provider and model.
func PricingKey(provider AIProvider, model string) string {
	return string(provider) + "/" + model
}

// DefaultPricing returns list prices for commonly used chat models.
func DefaultPricing() PricingTable {
	return PricingTable{
		"openai/gpt-4o-mini":                 {InputPerMillion: 0.15, OutputPerMillion: 0.60},
		"openai/gpt-4o":                      {InputPerMillion: 2.50, OutputPerMillion: 10.00},
		"anthropic/claude-3-5-sonnet-latest": {InputPerMillion: 3.00, OutputPerMillion: 15.00},
		"anthropic/claude-3-5-haiku-latest":  {InputPerMillion: 0.80, OutputPerMillion: 4.00},
		"ollama/llama3.2":                    {InputPerMillion: 0, OutputPerMillion: 0},
	}
}

// Cost estimates the USD cost of a completion.
// It returns nil when no price is known for the provider and model.
func (t PricingTable) Cost(provider AIProvider, model string, promptTokens, completionTokens int) *float64 {
	price, ok := t[PricingKey(provider, model)]
	if !ok {
		return nil
	}
	cost := float64(promptTokens)*price.InputPerMillion/1e6 +
		float64(completionTokens)*price.OutputPerMillion/1e6
	cost = math.Round(cost*1e8) / 1e8
	return &cost
}
