package ai

import (
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func registryTestModels() []Model {
	fast := Model{
		Key:                   "gpt-4o-mini",
		ProviderModelName:     "gpt-4o-mini",
		Provider:              ProviderOpenAI,
		ContextWindowTokens:   128000,
		PriceInputPerMillion:  decimal.NewFromFloat(0.15),
		PriceOutputPerMillion: decimal.NewFromFloat(0.6),
		LatencyP50Seconds:     0.46,
		QualityPriors:         map[Category]float64{CategoryQA: 0.84},
	}
	open := Model{
		Key:                   "gpt-oss-20b",
		ProviderModelName:     "openai/gpt-oss-20b",
		Provider:              ProviderHuggingFace,
		ContextWindowTokens:   131072,
		PriceInputPerMillion:  decimal.Zero,
		PriceOutputPerMillion: decimal.Zero,
		LatencyP50Seconds:     0.6,
		QualityPriors:         map[Category]float64{CategorySummarize: 0.92},
	}
	return []Model{fast, open}
}

func TestNewRegistry(t *testing.T) {
	registry, err := NewRegistry(registryTestModels(), WithLogger(zap.NewNop()))
	require.NoError(t, err)

	assert.Equal(t, 2, registry.Len())
	assert.Equal(t, 2, registry.AvailableCount())

	// Registration order is preserved in snapshots.
	snapshot := registry.Snapshot()
	require.Len(t, snapshot, 2)
	assert.Equal(t, "gpt-4o-mini", snapshot[0].Key)
	assert.Equal(t, "gpt-oss-20b", snapshot[1].Key)

	// Availability is forced on at load regardless of catalog input.
	for _, m := range snapshot {
		assert.True(t, m.Available)
	}
}

func TestNewRegistryRejectsDuplicates(t *testing.T) {
	models := registryTestModels()
	models = append(models, models[0])

	_, err := NewRegistry(models)
	var dup *DuplicateModelError
	require.ErrorAs(t, err, &dup)
	assert.Equal(t, "gpt-4o-mini", dup.Key)
}

func TestNewRegistryRejectsInvalidModels(t *testing.T) {
	models := registryTestModels()
	models[0].ContextWindowTokens = 0

	_, err := NewRegistry(models)
	assert.ErrorContains(t, err, "context window")
}

func TestRegistryGet(t *testing.T) {
	registry, err := NewRegistry(registryTestModels())
	require.NoError(t, err)

	byKey, ok := registry.Get("gpt-oss-20b")
	require.True(t, ok)
	assert.Equal(t, "openai/gpt-oss-20b", byKey.ProviderModelName)

	byName, ok := registry.Get("openai/gpt-oss-20b")
	require.True(t, ok)
	assert.Equal(t, "gpt-oss-20b", byName.Key)

	_, ok = registry.Get("no-such-model")
	assert.False(t, ok)
}

func TestRegistryGetReturnsCopy(t *testing.T) {
	registry, err := NewRegistry(registryTestModels())
	require.NoError(t, err)

	m, ok := registry.Get("gpt-4o-mini")
	require.True(t, ok)
	m.Available = false
	m.QualityPriors[CategoryQA] = 0.0

	fresh, _ := registry.Get("gpt-4o-mini")
	assert.True(t, fresh.Available)
	assert.Equal(t, 0.84, fresh.QualityPriors[CategoryQA])
}

func TestRegistryMarkUnavailable(t *testing.T) {
	registry, err := NewRegistry(registryTestModels())
	require.NoError(t, err)

	require.NoError(t, registry.MarkUnavailable("gpt-4o-mini"))
	assert.Equal(t, 1, registry.AvailableCount())

	m, ok := registry.Get("gpt-4o-mini")
	require.True(t, ok)
	assert.False(t, m.Available)

	// Marking twice is harmless; unknown keys are not.
	require.NoError(t, registry.MarkUnavailable("gpt-4o-mini"))
	var unknown *UnknownModelError
	assert.ErrorAs(t, registry.MarkUnavailable("no-such-model"), &unknown)
}

func TestRegistryResetAll(t *testing.T) {
	registry, err := NewRegistry(registryTestModels())
	require.NoError(t, err)

	require.NoError(t, registry.MarkUnavailable("gpt-4o-mini"))
	require.NoError(t, registry.MarkUnavailable("gpt-oss-20b"))
	assert.Equal(t, 0, registry.AvailableCount())

	assert.Equal(t, 2, registry.ResetAll())
	assert.Equal(t, 2, registry.AvailableCount())

	// Idempotent: nothing left to restore.
	assert.Equal(t, 0, registry.ResetAll())
	assert.Equal(t, 2, registry.AvailableCount())
}

func TestRegistryConcurrentAccess(t *testing.T) {
	registry, err := NewRegistry(registryTestModels())
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(3)
		go func() {
			defer wg.Done()
			_ = registry.MarkUnavailable("gpt-4o-mini")
		}()
		go func() {
			defer wg.Done()
			registry.ResetAll()
		}()
		go func() {
			defer wg.Done()
			for _, m := range registry.Snapshot() {
				_ = m.Available
			}
		}()
	}
	wg.Wait()

	registry.ResetAll()
	assert.Equal(t, 2, registry.AvailableCount())
}
