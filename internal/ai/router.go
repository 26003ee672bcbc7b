package ai

import (
	"fmt"
	"math"
	"sort"
	"strings"
)

// Output size assumed for categories without a profile.
const defaultOutputEstimate = 500

// Router scores registry models for a categorized prompt under a priority
// preset. Decisions are pure given a registry snapshot; availability is the
// only input that changes between calls.
type Router struct {
	registry *Registry
}

// RouterOption configures the Router
type RouterOption func(*Router)

// NewRouter creates a new model router over the registry.
func NewRouter(registry *Registry, opts ...RouterOption) *Router {
	r := &Router{
		registry: registry,
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// RoutingRequest carries one routing inquiry.
type RoutingRequest struct {
	Prompt    string   `json:"prompt"`
	Category  Category `json:"category"`
	Preset    Preset   `json:"priority_preset"`
	UserID    string   `json:"user_id,omitempty"`
	SessionID string   `json:"session_id,omitempty"`
}

// Alternative is a ranked non-selected candidate with a comparison against
// the selected model.
type Alternative struct {
	Key             string  `json:"key"`
	Score           float64 `json:"score"`
	Reason          string  `json:"reason"`
	Provider        string  `json:"provider"`
	QualityScore    float64 `json:"quality_score"`
	CostPer1kTokens float64 `json:"cost_per_1k_tokens"`
	LatencyMs       float64 `json:"latency_ms"`
}

// RoutingDecision is the ranked outcome of one routing inquiry.
type RoutingDecision struct {
	SelectedKey        string          `json:"selected_key"`
	Provider           string          `json:"provider"`
	Category           Category        `json:"category"`
	FallbackKey        string          `json:"fallback_key,omitempty"`
	Reasoning          string          `json:"reasoning"`
	Confidence         float64         `json:"confidence"`
	EstimatedCostUsd   float64         `json:"estimated_cost_usd"`
	EstimatedLatencyMs float64         `json:"estimated_latency_ms"`
	Score              float64         `json:"score"`
	PriorityWeights    PriorityWeights `json:"priority_weights"`
	Alternatives       []Alternative   `json:"alternatives"`
}

type scoredModel struct {
	model     Model
	score     float64
	costScore float64
	latScore  float64
}

// Route filters the registry snapshot by capability, context window and
// availability, scores the survivors under the preset weights, and returns
// the ranked decision.
func (r *Router) Route(req RoutingRequest) (*RoutingDecision, error) {
	weights := WeightsForPreset(req.Preset)
	estimatedTokens := EstimateTokens(req.Prompt)

	var candidates []Model
	for _, m := range r.registry.Snapshot() {
		if !m.SupportsCategory(req.Category) {
			continue
		}
		if m.ContextWindowTokens < estimatedTokens {
			continue
		}
		if !m.Available {
			continue
		}
		candidates = append(candidates, m)
	}
	if len(candidates) == 0 {
		return nil, &NoCandidatesError{Category: req.Category, EstimatedTokens: estimatedTokens}
	}

	scored := scoreCandidates(candidates, req.Category, weights, estimatedTokens)

	// Stable sort over stable registry order keeps tie-breaks deterministic.
	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].score > scored[j].score
	})

	selected := scored[0]

	outputEstimate := req.Category.EstimatedOutputTokens()
	if outputEstimate == 0 {
		outputEstimate = defaultOutputEstimate
	}
	estimatedCost, _ := selected.model.CostFor(estimatedTokens, outputEstimate).Float64()

	decision := &RoutingDecision{
		SelectedKey:        selected.model.Key,
		Provider:           selected.model.Provider,
		Category:           req.Category,
		Reasoning:          selectionReasoning(selected.model, req.Category, weights),
		Confidence:         decisionConfidence(scored),
		EstimatedCostUsd:   estimatedCost,
		EstimatedLatencyMs: selected.model.LatencyMs(),
		Score:              selected.score,
		PriorityWeights:    weights,
	}

	if len(scored) > 1 {
		decision.FallbackKey = scored[1].model.Key
	}

	for i := 1; i < len(scored) && i <= 4; i++ {
		alt := scored[i]
		decision.Alternatives = append(decision.Alternatives, Alternative{
			Key:             alt.model.Key,
			Score:           alt.score,
			Reason:          alternativeReason(alt.model, selected.model, req.Category),
			Provider:        alt.model.Provider,
			QualityScore:    alt.model.QualityPrior(req.Category),
			CostPer1kTokens: alt.model.PriceInputFloat() / 1000,
			LatencyMs:       alt.model.LatencyMs(),
		})
	}

	return decision, nil
}

// MaxCategoryCost returns the highest per-million input price among models
// capable of the category, availability ignored. It anchors the cost
// savings sentinel; zero means nothing supports the category.
func (r *Router) MaxCategoryCost(category Category) float64 {
	maxCost := 0.0
	for _, m := range r.registry.Snapshot() {
		if !m.SupportsCategory(category) {
			continue
		}
		if price := m.PriceInputFloat(); price > maxCost {
			maxCost = price
		}
	}
	return maxCost
}

func scoreCandidates(candidates []Model, category Category, weights PriorityWeights, estimatedTokens int) []scoredModel {
	maxC, minC := 0.0, math.MaxFloat64
	maxLat, maxTps := 0.0, 0.0
	for _, m := range candidates {
		price := m.PriceInputFloat()
		if price > maxC {
			maxC = price
		}
		if price < minC {
			minC = price
		}
		if lat := m.LatencyMs(); lat > maxLat {
			maxLat = lat
		}
		if tps := m.ThroughputTPS(); tps > maxTps {
			maxTps = tps
		}
	}

	scored := make([]scoredModel, 0, len(candidates))
	for _, m := range candidates {
		quality := m.QualityPrior(category)
		qualityScore := quality
		if weights.Quality > 0.5 {
			qualityScore = math.Pow(quality, 0.3)
			if quality > 0.9 {
				qualityScore += 0.1
			}
		}
		score := qualityScore * weights.Quality

		costScore := costScoreFor(m, weights, maxC, minC)
		score += costScore * weights.Cost

		latScore := 0.0
		if maxLat > 0 {
			latScore = 1 - m.LatencyMs()/maxLat
		}
		if weights.Quality > 0.6 && isPremiumKey(m.Key) {
			latScore = math.Sqrt(latScore)
		}
		score += latScore * weights.Latency

		if estimatedTokens > 1000 {
			score += math.Min(0.1, float64(m.ContextWindowTokens-estimatedTokens)/10000)
		}
		if maxTps > 0 {
			score += 0.05 * m.ThroughputTPS() / maxTps
		}

		scored = append(scored, scoredModel{model: m, score: score, costScore: costScore, latScore: latScore})
	}
	return scored
}

func costScoreFor(m Model, weights PriorityWeights, maxC, minC float64) float64 {
	price := m.PriceInputFloat()

	if maxC == 0 {
		return 0.5
	}
	if weights.Cost > 0.4 {
		return 1 - price/maxC
	}

	var costScore float64
	if price == 0 {
		costScore = 0.6
	} else {
		n := 0.0
		if maxC > minC {
			n = (price - minC) / (maxC - minC)
		}
		costScore = 1 - math.Log(1+2*n)/math.Log(3)
	}

	if weights.Quality > 0.6 {
		floor := 0.4
		if isPremiumKey(m.Key) {
			floor = 0.6
		}
		if costScore < floor {
			costScore = floor
		}
	}
	return costScore
}

// isPremiumKey picks out the frontier tier by key substring. A tier field
// on the descriptor would be cleaner, but the substring behaviour is the
// contract downstream dashboards expect.
func isPremiumKey(key string) bool {
	return strings.Contains(key, "claude") || strings.Contains(key, "gpt-5")
}

func decisionConfidence(scored []scoredModel) float64 {
	if len(scored) < 2 {
		return 1.0
	}
	top, runnerUp := scored[0].score, scored[1].score
	if runnerUp == 0 {
		return 1.0
	}
	confidence := 0.5 + 0.5*(top-runnerUp)/math.Max(top, runnerUp)
	return math.Max(0, math.Min(1, confidence))
}

func selectionReasoning(m Model, category Category, weights PriorityWeights) string {
	var parts []string

	switch {
	case weights.Quality > weights.Cost && weights.Quality > weights.Latency:
		parts = append(parts, fmt.Sprintf("best quality for %s (prior %.2f)", category, m.QualityPrior(category)))
	case weights.Cost > weights.Quality && weights.Cost > weights.Latency:
		parts = append(parts, fmt.Sprintf("lowest cost at $%.2f per million input tokens", m.PriceInputFloat()))
	case weights.Latency > weights.Quality && weights.Latency > weights.Cost:
		parts = append(parts, fmt.Sprintf("fastest response at %.0fms p50", m.LatencyMs()))
	default:
		parts = append(parts, "balanced performance across quality, cost and latency")
	}

	if m.ContextWindowTokens > 100000 {
		parts = append(parts, fmt.Sprintf("%dk token context window", m.ContextWindowTokens/1000))
	}
	parts = append(parts, fmt.Sprintf("%.0f tokens/s throughput", m.ThroughputTPS()))

	return strings.Join(parts, "; ")
}

func alternativeReason(alt, selected Model, category Category) string {
	var parts []string

	altQ, selQ := alt.QualityPrior(category), selected.QualityPrior(category)
	switch {
	case altQ > selQ:
		parts = append(parts, fmt.Sprintf("higher quality prior (%.2f vs %.2f)", altQ, selQ))
	case altQ < selQ:
		parts = append(parts, fmt.Sprintf("lower quality prior (%.2f vs %.2f)", altQ, selQ))
	default:
		parts = append(parts, fmt.Sprintf("equal quality prior (%.2f)", altQ))
	}

	altP, selP := alt.PriceInputFloat(), selected.PriceInputFloat()
	switch {
	case altP < selP:
		parts = append(parts, "cheaper input tokens")
	case altP > selP:
		parts = append(parts, "pricier input tokens")
	}

	if alt.LatencyP50Seconds < selected.LatencyP50Seconds {
		parts = append(parts, fmt.Sprintf("faster (%.2fs vs %.2fs p50)", alt.LatencyP50Seconds, selected.LatencyP50Seconds))
	} else if alt.LatencyP50Seconds > selected.LatencyP50Seconds {
		parts = append(parts, fmt.Sprintf("slower (%.2fs vs %.2fs p50)", alt.LatencyP50Seconds, selected.LatencyP50Seconds))
	}

	if alt.ContextWindowTokens > selected.ContextWindowTokens {
		parts = append(parts, "larger context window")
	} else if alt.ContextWindowTokens < selected.ContextWindowTokens {
		parts = append(parts, "smaller context window")
	}

	return strings.Join(parts, ", ")
}

// EstimateTokens provides a rough token estimate for text
// (roughly 4 characters per token for English).
func EstimateTokens(text string) int {
	return int(math.Ceil(float64(len(text)) / 4.0))
}
