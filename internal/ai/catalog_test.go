package ai

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadCatalog(t *testing.T) {
	models, err := LoadCatalog()
	require.NoError(t, err)
	require.Len(t, models, 5)

	keys := make([]string, 0, len(models))
	for _, m := range models {
		keys = append(keys, m.Key)
	}
	assert.Equal(t, []string{
		"claude-3-7-sonnet-20250219",
		"gpt-5",
		"gpt-4o-mini",
		"gemini-1.5-flash",
		"gpt-oss-20b",
	}, keys)

	for _, m := range models {
		assert.NoError(t, m.Validate(), "model %s", m.Key)
	}
}

func TestCatalogCapabilities(t *testing.T) {
	models, err := LoadCatalog()
	require.NoError(t, err)

	byKey := make(map[string]*Model, len(models))
	for i := range models {
		byKey[models[i].Key] = &models[i]
	}

	// Only the frontier pair handles code and math.
	for _, key := range []string{"claude-3-7-sonnet-20250219", "gpt-5"} {
		assert.True(t, byKey[key].SupportsCategory(CategoryCode), "%s should support code", key)
		assert.True(t, byKey[key].SupportsCategory(CategoryMathReasoning), "%s should support math", key)
	}
	for _, key := range []string{"gpt-4o-mini", "gemini-1.5-flash", "gpt-oss-20b"} {
		assert.False(t, byKey[key].SupportsCategory(CategoryCode), "%s should not support code", key)
		assert.False(t, byKey[key].SupportsCategory(CategoryMathReasoning), "%s should not support math", key)
	}

	// Every model can absorb unclassified prompts.
	for _, m := range models {
		assert.True(t, m.SupportsCategory(CategoryUnknown), "%s should support unknown", m.Key)
	}

	assert.Equal(t, 0.98, byKey["claude-3-7-sonnet-20250219"].QualityPrior(CategoryCode))
	assert.Equal(t, 0.99, byKey["gpt-5"].QualityPrior(CategoryCode))
	assert.True(t, byKey["gpt-oss-20b"].PriceInputPerMillion.IsZero())
	assert.Equal(t, 1050000, byKey["gemini-1.5-flash"].ContextWindowTokens)
	assert.Equal(t, "openai/gpt-oss-20b", byKey["gpt-oss-20b"].ProviderModelName)
}

func TestParseCatalogErrors(t *testing.T) {
	_, err := parseCatalog([]byte("models: []"))
	assert.ErrorContains(t, err, "empty")

	_, err = parseCatalog([]byte("models: [junk"))
	assert.ErrorContains(t, err, "failed to parse")

	bad := `
models:
  - key: broken
    provider: openai
    provider_model_name: broken
    context_window_tokens: 1000
    latency_p50_seconds: 1.0
    quality_priors:
      poetry: 0.5
`
	_, err = parseCatalog([]byte(bad))
	assert.ErrorContains(t, err, "unknown category")
}

func TestFilterByProviders(t *testing.T) {
	models, err := LoadCatalog()
	require.NoError(t, err)

	enabled := map[string]bool{
		ProviderOpenAI: true,
		ProviderGoogle: true,
	}
	filtered := FilterByProviders(models, enabled)

	require.Len(t, filtered, 3)
	for _, m := range filtered {
		assert.Contains(t, []string{ProviderOpenAI, ProviderGoogle}, m.Provider)
	}

	assert.Empty(t, FilterByProviders(models, nil))
}
