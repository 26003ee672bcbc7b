package classify

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/irfndi/modelmux/internal/ai"
	"github.com/irfndi/modelmux/internal/ai/llm"
)

const (
	classifierMaxTokens   = 200
	classifierTemperature = 0.1

	classifierSystemPrompt = "You are a prompt classification expert. " +
		"Classify prompts precisely and reply with the requested JSON only."
)

// The classifier taxonomy is deliberately narrower than the category enum:
// math-heavy prompts are caught by the keyword scorer, so the model is never
// asked to produce that label.
const classifierPromptTemplate = `Classify the following prompt into exactly one of these categories: CODE, SUMMARIZE, QA, CREATIVE.

Prompt:
"""
%s
"""

Reply with JSON only, using this schema:
{"category": "CODE|SUMMARIZE|QA|CREATIVE", "confidence": 0.0-1.0, "reasoning": "one short sentence"}`

// Replies arrive wrapped in prose or markdown fences often enough that we
// just grab everything between the first '{' and the last '}'.
var jsonBlockRe = regexp.MustCompile(`\{[\s\S]*\}`)

// ModelClassifier asks a designated backend to label the prompt. Transport
// failures surface as ClassificationError; malformed replies decay to
// UNKNOWN with low confidence so a chatty backend cannot break routing.
type ModelClassifier struct {
	client llm.Client
	logger *zap.Logger
}

func NewModelClassifier(client llm.Client) *ModelClassifier {
	return &ModelClassifier{
		client: client,
		logger: zap.NewNop(),
	}
}

func (c *ModelClassifier) SetLogger(logger *zap.Logger) {
	c.logger = logger
}

// ModelName returns the wire-level name of the classifier backend.
func (c *ModelClassifier) ModelName() string {
	return c.client.ModelName()
}

func (c *ModelClassifier) Classify(ctx context.Context, prompt string) (*Classification, error) {
	startTime := time.Now()

	result, err := c.client.Generate(ctx, fmt.Sprintf(classifierPromptTemplate, prompt), llm.GenerateOptions{
		MaxTokens:    classifierMaxTokens,
		Temperature:  classifierTemperature,
		SystemPrompt: classifierSystemPrompt,
	})
	if err != nil {
		return nil, &ClassificationError{ModelKey: c.client.ModelName(), Err: err}
	}

	classification := c.parseReply(result.Content)
	classification.Method = MethodModel
	classification.ModelUsed = c.client.ModelName()
	classification.LatencyMs = time.Since(startTime).Milliseconds()
	classification.RawResponse = result.Content

	c.logger.Debug("Model classification complete",
		zap.String("category", string(classification.Category)),
		zap.Float64("confidence", classification.Confidence),
		zap.Int64("latency_ms", classification.LatencyMs))

	return classification, nil
}

type classifierReply struct {
	Category   *string  `json:"category"`
	Confidence *float64 `json:"confidence"`
	Reasoning  *string  `json:"reasoning"`
}

func (c *ModelClassifier) parseReply(content string) *Classification {
	block := jsonBlockRe.FindString(strings.TrimSpace(content))
	if block == "" {
		return unknownClassification("no JSON object in classifier reply")
	}

	var reply classifierReply
	if err := json.Unmarshal([]byte(block), &reply); err != nil {
		return unknownClassification(fmt.Sprintf("classifier reply is not valid JSON: %v", err))
	}
	if reply.Category == nil || reply.Confidence == nil || reply.Reasoning == nil {
		return unknownClassification("classifier reply is missing required fields")
	}

	return &Classification{
		Category:   ai.ParseCategory(*reply.Category),
		Confidence: math.Max(0, math.Min(1, *reply.Confidence)),
		Reasoning:  *reply.Reasoning,
	}
}

func unknownClassification(reason string) *Classification {
	return &Classification{
		Category:   ai.CategoryUnknown,
		Confidence: 0.1,
		Reasoning:  reason,
	}
}
