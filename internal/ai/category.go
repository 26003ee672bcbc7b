// Package ai provides the model registry and prompt routing core.
// It holds the category taxonomy, priority presets, model descriptors,
// the keyword classifier, and the multi-criteria routing engine.
package ai

import "strings"

// Category is a semantic label for a prompt, drawn from a fixed closed set.
type Category string

const (
	CategoryCode          Category = "code"
	CategorySummarize     Category = "summarize"
	CategoryQA            Category = "qa"
	CategoryCreative      Category = "creative"
	CategoryMathReasoning Category = "math_reasoning"
	CategoryUnknown       Category = "unknown"
)

// Categories lists every category in declaration order. The order is part of
// the contract: classifier and engine tie-breaks follow it.
var Categories = []Category{
	CategoryCode,
	CategorySummarize,
	CategoryQA,
	CategoryCreative,
	CategoryMathReasoning,
	CategoryUnknown,
}

// ClassifiableCategories is the subset the keyword classifier scores.
// Unknown is never scored; it is the result of scoring nothing.
var ClassifiableCategories = []Category{
	CategoryCode,
	CategorySummarize,
	CategoryQA,
	CategoryCreative,
	CategoryMathReasoning,
}

// ParseCategory maps a string to a Category, case-insensitively.
// Unrecognized values map to CategoryUnknown.
func ParseCategory(s string) Category {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "code":
		return CategoryCode
	case "summarize", "summarization":
		return CategorySummarize
	case "qa", "question_answering":
		return CategoryQA
	case "creative":
		return CategoryCreative
	case "math_reasoning", "math":
		return CategoryMathReasoning
	default:
		return CategoryUnknown
	}
}

// IsValid reports whether c is a member of the closed category set.
func (c Category) IsValid() bool {
	for _, known := range Categories {
		if c == known {
			return true
		}
	}
	return false
}

// CategoryProfile carries the static, read-only knowledge about a category:
// the keywords the keyword classifier matches on, example prompts, and the
// output size the category typically needs.
type CategoryProfile struct {
	EstimatedOutputTokens int
	Keywords              []string
	Examples              []string
}

// CategoryProfiles maps each classifiable category to its profile. Keywords
// are matched as lowercase substrings; keep entries lowercase. List sizes
// feed the classifier's match ratio, so additions shift confidence.
var CategoryProfiles = map[Category]CategoryProfile{
	CategoryCode: {
		EstimatedOutputTokens: 1200,
		Keywords: []string{
			"code", "function", "write", "implement", "debug", "program",
			"script", "algorithm", "python", "javascript", "class", "bug",
		},
		Examples: []string{
			"Write a Python function to sort a list",
			"Debug this JavaScript code",
			"Implement a binary search in Go",
		},
	},
	CategorySummarize: {
		EstimatedOutputTokens: 600,
		Keywords: []string{
			"summarize", "summary", "tldr", "key points", "main points",
			"condense",
		},
		Examples: []string{
			"Summarize the key points of machine learning",
			"Give me a TLDR of this article",
		},
	},
	CategoryQA: {
		EstimatedOutputTokens: 800,
		Keywords: []string{
			"what is", "how does", "why is", "explain", "hello",
			"how are you",
		},
		Examples: []string{
			"What is the capital of France?",
			"Hello, how are you?",
		},
	},
	CategoryCreative: {
		EstimatedOutputTokens: 1500,
		Keywords: []string{
			"story", "poem", "creative", "imagine", "fiction", "character",
			"lyrics", "haiku",
		},
		Examples: []string{
			"Write a short story about a robot",
			"Compose a haiku about autumn",
		},
	},
	CategoryMathReasoning: {
		EstimatedOutputTokens: 1800,
		Keywords: []string{
			"solve", "calculate", "equation", "proof", "probability",
			"physics", "=", "+", "x",
		},
		Examples: []string{
			"Solve: 2x + 5 = 13",
			"Calculate the probability of rolling two sixes",
		},
	},
}

// EstimatedOutputTokens returns the profile's output estimate, or 0 for
// categories without a profile (Unknown).
func (c Category) EstimatedOutputTokens() int {
	return CategoryProfiles[c].EstimatedOutputTokens
}
