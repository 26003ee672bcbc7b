// Package classify assigns prompts to routing categories. It layers a
// keyword overlap scorer, a model-backed classifier, and a hybrid policy
// that arbitrates between the two.
package classify

import (
	"fmt"

	"github.com/irfndi/modelmux/internal/ai"
)

const (
	MethodHeuristic = "heuristic"
	MethodModel     = "model"
)

// SufficientConfidence is the cutoff above which the keyword result is
// adopted without consulting the model classifier.
const SufficientConfidence = 0.7

// Classification is the uniform result of any classifier. MatchedKeywords
// is only populated by the keyword scorer; ModelUsed, LatencyMs and
// RawResponse only by the model classifier.
type Classification struct {
	Category        ai.Category `json:"category"`
	Confidence      float64     `json:"confidence"`
	Method          string      `json:"method"`
	MatchedKeywords []string    `json:"matched_keywords,omitempty"`
	Reasoning       string      `json:"reasoning"`
	ModelUsed       string      `json:"model_used,omitempty"`
	LatencyMs       int64       `json:"latency_ms,omitempty"`
	RawResponse     string      `json:"raw_response,omitempty"`
}

// Sufficient reports whether the confidence clears the adoption cutoff.
func (c *Classification) Sufficient() bool {
	return c.Confidence >= SufficientConfidence
}

// ClassificationError indicates the model classifier could not produce any
// reply (transport failure). Malformed replies are not errors; they decay
// to an unknown classification instead.
type ClassificationError struct {
	ModelKey string
	Err      error
}

func (e *ClassificationError) Error() string {
	return fmt.Sprintf("model classification via %s failed: %v", e.ModelKey, e.Err)
}

func (e *ClassificationError) Unwrap() error {
	return e.Err
}
