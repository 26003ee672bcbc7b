package ai

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"
)

var million = decimal.NewFromInt(1_000_000)

// Provider identifiers as stored in the catalog. The llm package owns the
// typed provider; descriptors carry the raw string the same way registry
// entries carry a provider id.
const (
	ProviderOpenAI      = "openai"
	ProviderAnthropic   = "anthropic"
	ProviderGoogle      = "google"
	ProviderHuggingFace = "huggingface"
)

var validProviders = map[string]struct{}{
	ProviderOpenAI:      {},
	ProviderAnthropic:   {},
	ProviderGoogle:      {},
	ProviderHuggingFace: {},
}

// Model describes one routable model: identity, pricing, latency profile,
// context window and per-category quality priors.
type Model struct {
	// Key is the registry identifier, e.g. "claude-3-7-sonnet-20250219".
	Key string `json:"key"`
	// ProviderModelName is the name the provider API expects. It often
	// equals Key but may differ, e.g. "openai/gpt-oss-20b".
	ProviderModelName string `json:"provider_model_name"`
	Provider          string `json:"provider"`

	ContextWindowTokens int `json:"context_window_tokens"`

	// Prices are USD per million tokens.
	PriceInputPerMillion  decimal.Decimal `json:"price_input_per_million"`
	PriceOutputPerMillion decimal.Decimal `json:"price_output_per_million"`

	LatencyP50Seconds float64 `json:"latency_p50_seconds"`

	// QualityPriors maps the categories this model is considered capable
	// of to a prior in [0,1]. A category absent from the map excludes the
	// model from routing for that category.
	QualityPriors map[Category]float64 `json:"quality_priors"`

	Notes string `json:"notes,omitempty"`

	// Available is runtime state, not catalog data. The registry flips it
	// when a backend call fails and restores it on reset.
	Available bool `json:"available"`
}

// SupportsCategory reports whether the model is routable for the category.
func (m *Model) SupportsCategory(c Category) bool {
	_, ok := m.QualityPriors[c]
	return ok
}

// QualityPrior returns the model's prior for the category, defaulting to
// 0.5 when the category has no entry.
func (m *Model) QualityPrior(c Category) float64 {
	if v, ok := m.QualityPriors[c]; ok {
		return v
	}
	return 0.5
}

// LatencyMs returns the p50 latency in milliseconds.
func (m *Model) LatencyMs() float64 {
	return m.LatencyP50Seconds * 1000
}

// ThroughputTPS is a coarse tokens-per-second proxy derived from latency.
func (m *Model) ThroughputTPS() float64 {
	if m.LatencyP50Seconds <= 0 {
		return 0
	}
	return math.Round(1000 / m.LatencyP50Seconds)
}

// CostFor computes the USD cost of a call at this model's prices.
func (m *Model) CostFor(inputTokens, outputTokens int) decimal.Decimal {
	in := m.PriceInputPerMillion.Mul(decimal.NewFromInt(int64(inputTokens)))
	out := m.PriceOutputPerMillion.Mul(decimal.NewFromInt(int64(outputTokens)))
	return in.Add(out).Div(million)
}

// PriceInputFloat returns the input price as a float64 for scoring math.
func (m *Model) PriceInputFloat() float64 {
	f, _ := m.PriceInputPerMillion.Float64()
	return f
}

// clone returns a deep copy; the priors map is not shared with the original.
func (m *Model) clone() Model {
	out := *m
	out.QualityPriors = make(map[Category]float64, len(m.QualityPriors))
	for c, prior := range m.QualityPriors {
		out.QualityPriors[c] = prior
	}
	return out
}

// Validate checks the descriptor for catalog-load errors.
func (m *Model) Validate() error {
	if m.Key == "" {
		return fmt.Errorf("model key must not be empty")
	}
	if m.ProviderModelName == "" {
		return fmt.Errorf("model %s: provider model name must not be empty", m.Key)
	}
	if _, ok := validProviders[m.Provider]; !ok {
		return fmt.Errorf("model %s: unknown provider %q", m.Key, m.Provider)
	}
	if m.ContextWindowTokens <= 0 {
		return fmt.Errorf("model %s: context window must be positive, got %d", m.Key, m.ContextWindowTokens)
	}
	if m.PriceInputPerMillion.IsNegative() || m.PriceOutputPerMillion.IsNegative() {
		return fmt.Errorf("model %s: prices must not be negative", m.Key)
	}
	if m.LatencyP50Seconds <= 0 {
		return fmt.Errorf("model %s: latency p50 must be positive, got %f", m.Key, m.LatencyP50Seconds)
	}
	if len(m.QualityPriors) == 0 {
		return fmt.Errorf("model %s: at least one quality prior is required", m.Key)
	}
	for cat, prior := range m.QualityPriors {
		if !cat.IsValid() {
			return fmt.Errorf("model %s: unknown category %q in quality priors", m.Key, cat)
		}
		if prior < 0 || prior > 1 {
			return fmt.Errorf("model %s: quality prior for %s out of range: %f", m.Key, cat, prior)
		}
	}
	return nil
}
