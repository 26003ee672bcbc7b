package ai

import (
	"fmt"
	"math"
	"strings"
)

// Preset names a routing priority profile. Each preset resolves to a fixed
// weight triple over quality, cost, and latency.
type Preset string

const (
	PresetBalanced Preset = "balanced"
	PresetQuality  Preset = "quality"
	PresetCost     Preset = "cost"
	PresetLatency  Preset = "latency"
)

// Presets lists every preset in declaration order.
var Presets = []Preset{PresetBalanced, PresetQuality, PresetCost, PresetLatency}

// PriorityWeights is a weight triple over the three scoring dimensions.
// The three weights always sum to 1.0 for the built-in presets.
type PriorityWeights struct {
	Quality float64 `json:"quality"`
	Cost    float64 `json:"cost"`
	Latency float64 `json:"latency"`
}

// WeightsForPreset resolves a preset to its weight triple. Unrecognized
// presets resolve to the balanced triple.
func WeightsForPreset(p Preset) PriorityWeights {
	switch p {
	case PresetQuality:
		return PriorityWeights{Quality: 0.65, Cost: 0.15, Latency: 0.20}
	case PresetCost:
		return PriorityWeights{Quality: 0.30, Cost: 0.50, Latency: 0.20}
	case PresetLatency:
		return PriorityWeights{Quality: 0.30, Cost: 0.20, Latency: 0.50}
	case PresetBalanced:
		return PriorityWeights{Quality: 0.45, Cost: 0.30, Latency: 0.25}
	default:
		return PriorityWeights{Quality: 0.45, Cost: 0.30, Latency: 0.25}
	}
}

// ParsePreset maps a string to a Preset, case-insensitively. The empty
// string resolves to PresetBalanced; anything else unrecognized is an error.
func ParsePreset(s string) (Preset, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return PresetBalanced, nil
	case "balanced":
		return PresetBalanced, nil
	case "quality":
		return PresetQuality, nil
	case "cost":
		return PresetCost, nil
	case "latency":
		return PresetLatency, nil
	default:
		return "", fmt.Errorf("unknown priority preset %q (expected balanced, quality, cost or latency)", s)
	}
}

// Validate checks that the weights are non-negative and sum to 1.0 within
// floating point tolerance.
func (w PriorityWeights) Validate() error {
	if w.Quality < 0 || w.Cost < 0 || w.Latency < 0 {
		return fmt.Errorf("priority weights must be non-negative, got quality=%.2f cost=%.2f latency=%.2f", w.Quality, w.Cost, w.Latency)
	}
	sum := w.Quality + w.Cost + w.Latency
	if math.Abs(sum-1.0) > 0.01 {
		return fmt.Errorf("priority weights must sum to 1.0, got %.2f", sum)
	}
	return nil
}
