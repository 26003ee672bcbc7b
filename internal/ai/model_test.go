package ai

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func premiumTestModel() Model {
	return Model{
		Key:                   "claude-3-7-sonnet-20250219",
		ProviderModelName:     "claude-3-7-sonnet-20250219",
		Provider:              ProviderAnthropic,
		ContextWindowTokens:   200000,
		PriceInputPerMillion:  decimal.NewFromInt(3),
		PriceOutputPerMillion: decimal.NewFromInt(15),
		LatencyP50Seconds:     8.5,
		QualityPriors: map[Category]float64{
			CategoryCode:          0.98,
			CategoryMathReasoning: 0.95,
		},
		Available: true,
	}
}

func TestModelSupportsCategory(t *testing.T) {
	m := premiumTestModel()

	assert.True(t, m.SupportsCategory(CategoryCode))
	assert.True(t, m.SupportsCategory(CategoryMathReasoning))
	assert.False(t, m.SupportsCategory(CategorySummarize))
	assert.False(t, m.SupportsCategory(CategoryUnknown))
}

func TestModelQualityPrior(t *testing.T) {
	m := premiumTestModel()

	assert.Equal(t, 0.98, m.QualityPrior(CategoryCode))
	// Missing entries default to the neutral prior.
	assert.Equal(t, 0.5, m.QualityPrior(CategoryCreative))
}

func TestModelDerivedMetrics(t *testing.T) {
	m := premiumTestModel()

	assert.Equal(t, 8500.0, m.LatencyMs())
	assert.Equal(t, 118.0, m.ThroughputTPS())
	assert.Equal(t, 3.0, m.PriceInputFloat())
}

func TestModelCostFor(t *testing.T) {
	m := premiumTestModel()

	cost := m.CostFor(1000, 500)
	assert.Equal(t, "0.0105", cost.String())

	free := m
	free.PriceInputPerMillion = decimal.Zero
	free.PriceOutputPerMillion = decimal.Zero
	assert.True(t, free.CostFor(100000, 100000).IsZero())
}

func TestModelValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Model)
		wantErr string
	}{
		{"valid", func(m *Model) {}, ""},
		{"missing key", func(m *Model) { m.Key = "" }, "key"},
		{"missing wire name", func(m *Model) { m.ProviderModelName = "" }, "provider model name"},
		{"bad provider", func(m *Model) { m.Provider = "aws" }, "provider"},
		{"zero context", func(m *Model) { m.ContextWindowTokens = 0 }, "context window"},
		{"negative price", func(m *Model) { m.PriceInputPerMillion = decimal.NewFromInt(-1) }, "price"},
		{"zero latency", func(m *Model) { m.LatencyP50Seconds = 0 }, "latency"},
		{"no priors", func(m *Model) { m.QualityPriors = nil }, "quality prior"},
		{"prior out of range", func(m *Model) { m.QualityPriors = map[Category]float64{CategoryCode: 1.5} }, "quality prior"},
		{"prior for invalid category", func(m *Model) { m.QualityPriors = map[Category]float64{Category("poetry"): 0.5} }, "category"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := premiumTestModel()
			tt.mutate(&m)
			err := m.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}
