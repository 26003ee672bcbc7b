package ai

import (
	_ "embed"
	"fmt"
	"os"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

//go:embed models.yaml
var catalogYAML []byte

type catalogFile struct {
	Models []catalogModel `yaml:"models"`
}

// catalogModel is the YAML shape. Prices arrive as floats and are converted
// to decimals once, at load time.
type catalogModel struct {
	Key                   string             `yaml:"key"`
	Provider              string             `yaml:"provider"`
	ProviderModelName     string             `yaml:"provider_model_name"`
	ContextWindowTokens   int                `yaml:"context_window_tokens"`
	PriceInputPerMillion  float64            `yaml:"price_input_per_million"`
	PriceOutputPerMillion float64            `yaml:"price_output_per_million"`
	LatencyP50Seconds     float64            `yaml:"latency_p50_seconds"`
	QualityPriors         map[string]float64 `yaml:"quality_priors"`
	Notes                 string             `yaml:"notes"`
}

func (cm catalogModel) toModel() (Model, error) {
	priors := make(map[Category]float64, len(cm.QualityPriors))
	for name, prior := range cm.QualityPriors {
		cat := ParseCategory(name)
		if cat == CategoryUnknown && name != string(CategoryUnknown) {
			return Model{}, fmt.Errorf("model %s: unknown category %q in quality priors", cm.Key, name)
		}
		priors[cat] = prior
	}

	m := Model{
		Key:                   cm.Key,
		ProviderModelName:     cm.ProviderModelName,
		Provider:              cm.Provider,
		ContextWindowTokens:   cm.ContextWindowTokens,
		PriceInputPerMillion:  decimal.NewFromFloat(cm.PriceInputPerMillion),
		PriceOutputPerMillion: decimal.NewFromFloat(cm.PriceOutputPerMillion),
		LatencyP50Seconds:     cm.LatencyP50Seconds,
		QualityPriors:         priors,
		Notes:                 cm.Notes,
	}
	return m, m.Validate()
}

// LoadCatalog parses the embedded model catalog.
func LoadCatalog() ([]Model, error) {
	return parseCatalog(catalogYAML)
}

// LoadCatalogFile parses a model catalog from disk. Operators use this to
// override the embedded catalog without rebuilding the binary.
func LoadCatalogFile(path string) ([]Model, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read model catalog %s: %w", path, err)
	}
	return parseCatalog(data)
}

func parseCatalog(data []byte) ([]Model, error) {
	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse model catalog: %w", err)
	}
	if len(file.Models) == 0 {
		return nil, fmt.Errorf("model catalog is empty")
	}

	models := make([]Model, 0, len(file.Models))
	for _, cm := range file.Models {
		m, err := cm.toModel()
		if err != nil {
			return nil, err
		}
		models = append(models, m)
	}
	return models, nil
}

// FilterByProviders keeps only models whose provider is enabled. Providers
// without credentials are disabled wholesale at startup.
func FilterByProviders(models []Model, enabled map[string]bool) []Model {
	out := make([]Model, 0, len(models))
	for _, m := range models {
		if enabled[m.Provider] {
			out = append(out, m)
		}
	}
	return out
}
