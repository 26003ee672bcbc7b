package classify

import (
	"fmt"
	"math"
	"strings"

	"github.com/irfndi/modelmux/internal/ai"
)

// HeuristicClassifier scores a prompt against each category's keyword list.
// It is pure and allocation-light; every request goes through it before any
// model call is considered.
type HeuristicClassifier struct{}

func NewHeuristicClassifier() *HeuristicClassifier {
	return &HeuristicClassifier{}
}

type categoryScore struct {
	category ai.Category
	raw      float64
	matched  []string
}

// Classify lower-cases the prompt once and counts keyword substring hits
// per category. The raw score is the match ratio plus 0.1 per hit, capped
// at 1.0. The ratio and the bonus can together exceed 1 before the cap;
// that is deliberate, a prompt saturated with one category's vocabulary
// should max out.
func (c *HeuristicClassifier) Classify(prompt string) *Classification {
	lower := strings.ToLower(prompt)

	scores := make([]categoryScore, 0, len(ai.ClassifiableCategories))
	for _, category := range ai.ClassifiableCategories {
		profile := ai.CategoryProfiles[category]

		var matched []string
		for _, keyword := range profile.Keywords {
			if strings.Contains(lower, keyword) {
				matched = append(matched, keyword)
			}
		}

		ratio := 0.0
		if len(profile.Keywords) > 0 {
			ratio = float64(len(matched)) / float64(len(profile.Keywords))
		}
		raw := math.Min(1.0, ratio+0.1*float64(len(matched)))

		scores = append(scores, categoryScore{category: category, raw: raw, matched: matched})
	}

	// Ties keep the earlier category; the slice follows declaration order.
	bestIdx := 0
	for i := 1; i < len(scores); i++ {
		if scores[i].raw > scores[bestIdx].raw {
			bestIdx = i
		}
	}
	best := scores[bestIdx]

	if best.raw == 0 {
		return &Classification{
			Category:   ai.CategoryUnknown,
			Confidence: 0.1,
			Method:     MethodHeuristic,
			Reasoning:  "no category keywords matched",
		}
	}

	runnerUp := 0.0
	for i, s := range scores {
		if i != bestIdx && s.raw > runnerUp {
			runnerUp = s.raw
		}
	}

	confidence := best.raw
	gap := best.raw - runnerUp
	if gap > 0.3 {
		confidence += 0.2
	}
	if gap > 0.5 {
		confidence += 0.1
	}
	confidence = math.Max(0, math.Min(0.9, confidence))

	return &Classification{
		Category:        best.category,
		Confidence:      confidence,
		Method:          MethodHeuristic,
		MatchedKeywords: best.matched,
		Reasoning: fmt.Sprintf("matched %d of %d %s keywords: %s",
			len(best.matched), len(ai.CategoryProfiles[best.category].Keywords),
			best.category, strings.Join(best.matched, ", ")),
	}
}
