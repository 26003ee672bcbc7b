package ai

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func catalogRouter(t *testing.T) (*Router, *Registry) {
	t.Helper()
	models, err := LoadCatalog()
	require.NoError(t, err)
	registry, err := NewRegistry(models)
	require.NoError(t, err)
	return NewRouter(registry), registry
}

func TestRouteScenarios(t *testing.T) {
	tests := []struct {
		name         string
		prompt       string
		category     Category
		preset       Preset
		wantSelected string
		wantFallback string
		wantScore    float64
	}{
		{
			name:         "balanced code prompt picks the strongest coder",
			prompt:       "Write a Python function to sort a list",
			category:     CategoryCode,
			preset:       PresetBalanced,
			wantSelected: "claude-3-7-sonnet-20250219",
			wantFallback: "gpt-5",
			wantScore:    0.7854,
		},
		{
			name:         "cost preset prefers the free model",
			prompt:       "Summarize the key points of machine learning",
			category:     CategorySummarize,
			preset:       PresetCost,
			wantSelected: "gpt-oss-20b",
			wantFallback: "gpt-4o-mini",
			wantScore:    0.9994,
		},
		{
			name:         "quality preset amplifies the frontier pair",
			prompt:       "Solve: 2x + 5 = 13",
			category:     CategoryMathReasoning,
			preset:       PresetQuality,
			wantSelected: "gpt-5",
			wantFallback: "claude-3-7-sonnet-20250219",
			wantScore:    0.9210,
		},
		{
			name:         "latency preset picks the fastest responder",
			prompt:       "Hello, how are you?",
			category:     CategoryQA,
			preset:       PresetLatency,
			wantSelected: "gemini-1.5-flash",
			wantFallback: "gpt-4o-mini",
			wantScore:    0.9788,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router, _ := catalogRouter(t)

			decision, err := router.Route(RoutingRequest{
				Prompt:   tt.prompt,
				Category: tt.category,
				Preset:   tt.preset,
			})
			require.NoError(t, err)

			assert.Equal(t, tt.wantSelected, decision.SelectedKey)
			assert.Equal(t, tt.wantFallback, decision.FallbackKey)
			assert.InDelta(t, tt.wantScore, decision.Score, 0.001)
			assert.Equal(t, tt.category, decision.Category)
			assert.Equal(t, WeightsForPreset(tt.preset), decision.PriorityWeights)
			assert.GreaterOrEqual(t, decision.Confidence, 0.0)
			assert.LessOrEqual(t, decision.Confidence, 1.0)
			assert.NotEmpty(t, decision.Reasoning)
		})
	}
}

func TestRouteCodeFallsToGPT5WhenClaudeDown(t *testing.T) {
	router, registry := catalogRouter(t)
	require.NoError(t, registry.MarkUnavailable("claude-3-7-sonnet-20250219"))

	decision, err := router.Route(RoutingRequest{
		Prompt:   "Write a Python function to sort a list",
		Category: CategoryCode,
		Preset:   PresetBalanced,
	})
	require.NoError(t, err)

	assert.Equal(t, "gpt-5", decision.SelectedKey)
	// Sole survivor: full confidence and nothing left to fall back to.
	assert.Equal(t, 1.0, decision.Confidence)
	assert.Empty(t, decision.FallbackKey)
	assert.Empty(t, decision.Alternatives)
}

func TestRouteCostPresetSecondChoice(t *testing.T) {
	router, registry := catalogRouter(t)
	require.NoError(t, registry.MarkUnavailable("gpt-oss-20b"))

	decision, err := router.Route(RoutingRequest{
		Prompt:   "Summarize the key points of machine learning",
		Category: CategorySummarize,
		Preset:   PresetCost,
	})
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o-mini", decision.SelectedKey)
}

func TestRouteCostPresetOrdering(t *testing.T) {
	router, _ := catalogRouter(t)

	decision, err := router.Route(RoutingRequest{
		Prompt:   "Summarize the key points of machine learning",
		Category: CategorySummarize,
		Preset:   PresetCost,
	})
	require.NoError(t, err)

	require.Len(t, decision.Alternatives, 4)
	order := []string{decision.SelectedKey}
	for _, alt := range decision.Alternatives {
		order = append(order, alt.Key)
	}
	assert.Equal(t, []string{
		"gpt-oss-20b",
		"gpt-4o-mini",
		"gemini-1.5-flash",
		"claude-3-7-sonnet-20250219",
		"gpt-5",
	}, order)
}

func TestRouteOversizeContext(t *testing.T) {
	hugePrompt := strings.Repeat("a", 1_000_000)

	for _, preset := range Presets {
		t.Run(string(preset), func(t *testing.T) {
			router, _ := catalogRouter(t)

			decision, err := router.Route(RoutingRequest{
				Prompt:   hugePrompt,
				Category: CategoryUnknown,
				Preset:   preset,
			})
			require.NoError(t, err)

			// Only the 1M context window fits 250k estimated tokens.
			assert.Equal(t, "gemini-1.5-flash", decision.SelectedKey)
			assert.Equal(t, 1.0, decision.Confidence)
			assert.Empty(t, decision.FallbackKey)
			assert.Empty(t, decision.Alternatives)
		})
	}
}

func TestRouteNoCandidates(t *testing.T) {
	router, registry := catalogRouter(t)
	require.NoError(t, registry.MarkUnavailable("claude-3-7-sonnet-20250219"))
	require.NoError(t, registry.MarkUnavailable("gpt-5"))

	_, err := router.Route(RoutingRequest{
		Prompt:   "Write a Python function to sort a list",
		Category: CategoryCode,
		Preset:   PresetBalanced,
	})

	var noCandidates *NoCandidatesError
	require.ErrorAs(t, err, &noCandidates)
	assert.Equal(t, CategoryCode, noCandidates.Category)
}

func TestRouteUnavailableNeverSelected(t *testing.T) {
	router, registry := catalogRouter(t)

	req := RoutingRequest{
		Prompt:   "Hello, how are you?",
		Category: CategoryQA,
		Preset:   PresetLatency,
	}

	first, err := router.Route(req)
	require.NoError(t, err)
	require.NoError(t, registry.MarkUnavailable(first.SelectedKey))

	second, err := router.Route(req)
	require.NoError(t, err)
	assert.NotEqual(t, first.SelectedKey, second.SelectedKey)

	registry.ResetAll()
	third, err := router.Route(req)
	require.NoError(t, err)
	assert.Equal(t, first.SelectedKey, third.SelectedKey)
}

func TestRouteIsPure(t *testing.T) {
	router, _ := catalogRouter(t)

	req := RoutingRequest{
		Prompt:   "Summarize the key points of machine learning",
		Category: CategorySummarize,
		Preset:   PresetBalanced,
	}

	first, err := router.Route(req)
	require.NoError(t, err)
	second, err := router.Route(req)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestRouteAlternativesRankedAndAnnotated(t *testing.T) {
	router, _ := catalogRouter(t)

	decision, err := router.Route(RoutingRequest{
		Prompt:   "Summarize the key points of machine learning",
		Category: CategorySummarize,
		Preset:   PresetBalanced,
	})
	require.NoError(t, err)

	require.Len(t, decision.Alternatives, 4)
	prev := decision.Score
	for _, alt := range decision.Alternatives {
		assert.LessOrEqual(t, alt.Score, prev)
		assert.NotEmpty(t, alt.Reason)
		assert.NotEmpty(t, alt.Provider)
		prev = alt.Score
	}
}

func TestRouteDecisionConfidence(t *testing.T) {
	router, _ := catalogRouter(t)

	decision, err := router.Route(RoutingRequest{
		Prompt:   "Write a Python function to sort a list",
		Category: CategoryCode,
		Preset:   PresetBalanced,
	})
	require.NoError(t, err)

	// 0.5 + 0.5*(0.7854-0.5243)/0.7854 with the two coders in the pool.
	assert.InDelta(t, 0.6662, decision.Confidence, 0.001)
}

func TestRouteEstimates(t *testing.T) {
	router, _ := catalogRouter(t)

	decision, err := router.Route(RoutingRequest{
		Prompt:   "Write a Python function to sort a list",
		Category: CategoryCode,
		Preset:   PresetBalanced,
	})
	require.NoError(t, err)

	// 10 input tokens at $3/M plus a 1200 token output estimate at $15/M.
	assert.InDelta(t, 0.01803, decision.EstimatedCostUsd, 0.00001)
	assert.Equal(t, 8500.0, decision.EstimatedLatencyMs)
}

func TestQualityPresetNeverPicksStrictlyWorse(t *testing.T) {
	router, registry := catalogRouter(t)

	for _, category := range Categories {
		decision, err := router.Route(RoutingRequest{
			Prompt:   "benchmark prompt",
			Category: category,
			Preset:   PresetQuality,
		})
		require.NoError(t, err, "category %s", category)

		selected, ok := registry.Get(decision.SelectedKey)
		require.True(t, ok)
		selectedPrior := selected.QualityPrior(category)
		selectedCostPer1k := selected.PriceInputFloat() / 1000

		for _, alt := range decision.Alternatives {
			if alt.QualityScore <= selectedPrior {
				continue
			}
			withinLatency := alt.LatencyMs <= 2*decision.EstimatedLatencyMs
			withinCost := alt.CostPer1kTokens <= 2*selectedCostPer1k
			assert.False(t, withinLatency && withinCost,
				"category %s: %s (prior %.2f) lost to comparable %s (prior %.2f)",
				category, decision.SelectedKey, selectedPrior, alt.Key, alt.QualityScore)
		}
	}
}

func TestMaxCategoryCost(t *testing.T) {
	router, registry := catalogRouter(t)

	assert.Equal(t, 10.0, router.MaxCategoryCost(CategorySummarize))
	assert.Equal(t, 10.0, router.MaxCategoryCost(CategoryCode))

	// Availability does not shrink the comparison pool.
	require.NoError(t, registry.MarkUnavailable("gpt-5"))
	assert.Equal(t, 10.0, router.MaxCategoryCost(CategorySummarize))
}

func TestEstimateTokens(t *testing.T) {
	assert.Equal(t, 0, EstimateTokens(""))
	assert.Equal(t, 1, EstimateTokens("abcd"))
	assert.Equal(t, 2, EstimateTokens("abcde"))
	assert.Equal(t, 250000, EstimateTokens(strings.Repeat("a", 1_000_000)))
}
