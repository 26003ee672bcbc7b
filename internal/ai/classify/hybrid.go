package classify

import (
	"context"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"
)

const (
	FinalHeuristicOnly     = "heuristic_only"
	FinalHeuristicFallback = "heuristic_fallback"
	FinalHybrid            = "hybrid"
)

// ModelBackend is what the hybrid needs from the model classifier.
type ModelBackend interface {
	Classify(ctx context.Context, prompt string) (*Classification, error)
}

// HybridResult is the adopted classification plus both inputs for
// inspection. Model is nil when the keyword result was sufficient.
type HybridResult struct {
	Classification

	Heuristic   *Classification `json:"heuristic"`
	Model       *Classification `json:"model,omitempty"`
	FinalMethod string          `json:"final_method"`
	TotalMs     int64           `json:"total_ms"`
}

// HybridClassifier runs the keyword scorer first and only consults the
// model backend when the keyword confidence is too low. A broken or absent
// backend degrades the result, it never fails the request.
type HybridClassifier struct {
	heuristic *HeuristicClassifier
	model     ModelBackend
	logger    *zap.Logger
}

// NewHybridClassifier builds the hybrid. A nil model backend is allowed;
// every low-confidence prompt then takes the degraded keyword path.
func NewHybridClassifier(model ModelBackend) *HybridClassifier {
	return &HybridClassifier{
		heuristic: NewHeuristicClassifier(),
		model:     model,
		logger:    zap.NewNop(),
	}
}

func (c *HybridClassifier) SetLogger(logger *zap.Logger) {
	c.logger = logger
}

func (c *HybridClassifier) Classify(ctx context.Context, prompt string) *HybridResult {
	startTime := time.Now()

	heuristic := c.heuristic.Classify(prompt)
	if heuristic.Sufficient() {
		return &HybridResult{
			Classification: *heuristic,
			Heuristic:      heuristic,
			FinalMethod:    FinalHeuristicOnly,
			TotalMs:        time.Since(startTime).Milliseconds(),
		}
	}

	model, err := c.classifyWithModel(ctx, prompt)
	if err != nil {
		c.logger.Warn("Model classifier unavailable, degrading to keyword result",
			zap.String("category", string(heuristic.Category)),
			zap.Error(err))

		degraded := *heuristic
		degraded.Confidence = math.Max(0.1, heuristic.Confidence/2)
		degraded.Reasoning = fmt.Sprintf("%s (model classifier unavailable: %v)", heuristic.Reasoning, err)
		return &HybridResult{
			Classification: degraded,
			Heuristic:      heuristic,
			FinalMethod:    FinalHeuristicFallback,
			TotalMs:        time.Since(startTime).Milliseconds(),
		}
	}

	adopted := reconcile(heuristic, model)
	return &HybridResult{
		Classification: *adopted,
		Heuristic:      heuristic,
		Model:          model,
		FinalMethod:    FinalHybrid,
		TotalMs:        time.Since(startTime).Milliseconds(),
	}
}

func (c *HybridClassifier) classifyWithModel(ctx context.Context, prompt string) (*Classification, error) {
	if c.model == nil {
		return nil, &ClassificationError{ModelKey: "none", Err: fmt.Errorf("no classifier backend configured")}
	}
	return c.model.Classify(ctx, prompt)
}

// reconcile arbitrates between the keyword and model results. Agreement on
// category keeps the more confident of the two. On disagreement any model
// confidence edge wins; a wide edge is only called out in the reasoning.
func reconcile(heuristic, model *Classification) *Classification {
	if heuristic.Category == model.Category {
		if heuristic.Confidence >= model.Confidence {
			return heuristic
		}
		return model
	}

	diff := model.Confidence - heuristic.Confidence
	if diff > 0 {
		adopted := *model
		if diff > 0.2 {
			adopted.Reasoning = fmt.Sprintf("%s (overrides keyword label %s by a wide margin)",
				model.Reasoning, heuristic.Category)
		}
		return &adopted
	}
	return heuristic
}
