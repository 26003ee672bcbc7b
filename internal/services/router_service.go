package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/irfndi/modelmux/internal/ai"
	"github.com/irfndi/modelmux/internal/ai/classify"
	"github.com/irfndi/modelmux/internal/ai/llm"
	"github.com/irfndi/modelmux/internal/analytics"
)

const (
	// StaticFallbackKey is the model tried once after any backend failure.
	StaticFallbackKey = "gpt-4o-mini"

	defaultTimeoutMs = 30_000
	minTimeoutMs     = 5_000
	maxTimeoutMs     = 120_000

	fallbackTemperature = 0.7
	// fallbackCostPer1kTokens prices fallback completions; the primary
	// model's accounting does not apply to the emergency path.
	fallbackCostPer1kTokens = 0.00015

	// maxResponseChars bounds response text before sentence-aware truncation.
	maxResponseChars = 3000
)

// generationProfile is the sampling budget applied per category.
type generationProfile struct {
	Temperature float64
	MaxTokens   int
}

var generationProfiles = map[ai.Category]generationProfile{
	ai.CategoryCode:          {Temperature: 0.1, MaxTokens: 2000},
	ai.CategorySummarize:     {Temperature: 0.3, MaxTokens: 1500},
	ai.CategoryQA:            {Temperature: 0.2, MaxTokens: 2000},
	ai.CategoryCreative:      {Temperature: 0.8, MaxTokens: 2500},
	ai.CategoryMathReasoning: {Temperature: 0.1, MaxTokens: 3000},
	ai.CategoryUnknown:       {Temperature: 0.5, MaxTokens: 1500},
}

// generationFor returns the category's sampling profile. When the category
// typically produces more output than the baseline budget, the budget is
// doubled, never dropping below 1500 tokens.
func generationFor(category ai.Category) generationProfile {
	profile, ok := generationProfiles[category]
	if !ok {
		profile = generationProfiles[ai.CategoryUnknown]
	}
	if est := category.EstimatedOutputTokens(); est > profile.MaxTokens {
		granted := 2 * profile.MaxTokens
		if granted < 1500 {
			granted = 1500
		}
		profile.MaxTokens = granted
	}
	return profile
}

// Classifier labels prompts. The hybrid classifier satisfies this.
type Classifier interface {
	Classify(ctx context.Context, prompt string) *classify.HybridResult
}

// ClientResolver resolves a backend client by model key or wire name.
type ClientResolver interface {
	ForModel(idOrName string) (llm.Client, error)
}

// Archiver persists request outcomes durably. Archiving is best-effort;
// the service never fails a request over it.
type Archiver interface {
	ArchiveRequest(ctx context.Context, entry analytics.RequestLogEntry) error
}

// RoutePromptRequest is one routing request. Preset is optional and
// defaults to the service's configured preset.
type RoutePromptRequest struct {
	Prompt    string
	Preset    ai.Preset
	UserID    string
	SessionID string
}

// RouterResponse is the full outcome of a routed generation.
type RouterResponse struct {
	Text                     string              `json:"text"`
	ModelUsed                string              `json:"model_used"`
	Category                 ai.Category         `json:"category"`
	ClassificationConfidence float64             `json:"classification_confidence"`
	Decision                 *ai.RoutingDecision `json:"decision"`
	ActualCostUsd            float64             `json:"actual_cost_usd"`
	ActualLatencyMs          float64             `json:"actual_latency_ms"`
	CostSavingsUsd           float64             `json:"cost_savings_usd"`
	Timestamp                time.Time           `json:"timestamp"`
	WasTruncated             bool                `json:"was_truncated"`
}

// RouterServiceConfig carries the tunable parts of the router service.
type RouterServiceConfig struct {
	// RequestTimeoutMs bounds each backend call, clamped to [5000, 120000].
	RequestTimeoutMs int
	DefaultPreset    ai.Preset
}

// DefaultRouterServiceConfig returns the production defaults.
func DefaultRouterServiceConfig() RouterServiceConfig {
	return RouterServiceConfig{
		RequestTimeoutMs: defaultTimeoutMs,
		DefaultPreset:    ai.PresetBalanced,
	}
}

// RouterService orchestrates classification, model selection, generation,
// fallback and outcome accounting.
type RouterService struct {
	config     RouterServiceConfig
	registry   *ai.Registry
	router     *ai.Router
	classifier Classifier
	clients    ClientResolver
	requestLog *analytics.RequestLog
	archive    Archiver
	logger     *zap.Logger
}

// RouterServiceOption customizes the router service.
type RouterServiceOption func(*RouterService)

// WithArchiver attaches a durable archive for request outcomes.
func WithArchiver(archive Archiver) RouterServiceOption {
	return func(s *RouterService) {
		s.archive = archive
	}
}

// NewRouterService wires the routing pipeline together.
func NewRouterService(
	config RouterServiceConfig,
	registry *ai.Registry,
	router *ai.Router,
	classifier Classifier,
	clients ClientResolver,
	requestLog *analytics.RequestLog,
	logger *zap.Logger,
	opts ...RouterServiceOption,
) *RouterService {
	if config.RequestTimeoutMs <= 0 {
		config.RequestTimeoutMs = defaultTimeoutMs
	}
	if config.RequestTimeoutMs < minTimeoutMs {
		config.RequestTimeoutMs = minTimeoutMs
	}
	if config.RequestTimeoutMs > maxTimeoutMs {
		config.RequestTimeoutMs = maxTimeoutMs
	}
	if config.DefaultPreset == "" {
		config.DefaultPreset = ai.PresetBalanced
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &RouterService{
		config:     config,
		registry:   registry,
		router:     router,
		classifier: classifier,
		clients:    clients,
		requestLog: requestLog,
		logger:     logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RoutePrompt classifies the prompt, selects a model, generates a
// completion and records the outcome. Backend failures mark the model
// unavailable and fall through to the static fallback once.
func (s *RouterService) RoutePrompt(ctx context.Context, req RoutePromptRequest) (*RouterResponse, error) {
	if strings.TrimSpace(req.Prompt) == "" {
		return nil, &InputError{Field: "prompt", Reason: "must not be empty"}
	}
	if req.Preset == "" {
		req.Preset = s.config.DefaultPreset
	}

	start := time.Now()
	classification := s.classifyPrompt(ctx, req.Prompt)

	decision, err := s.router.Route(ai.RoutingRequest{
		Prompt:    req.Prompt,
		Category:  classification.Category,
		Preset:    req.Preset,
		UserID:    req.UserID,
		SessionID: req.SessionID,
	})
	if err != nil {
		s.logger.Warn("routing failed",
			zap.String("category", string(classification.Category)),
			zap.Error(err))
		s.logOutcome(ctx, analytics.RequestLogEntry{
			Prompt:                   req.Prompt,
			Category:                 classification.Category,
			LatencyMs:                elapsedMs(start),
			ClassificationMethod:     classification.FinalMethod,
			ClassificationConfidence: classification.Confidence,
			Preset:                   req.Preset,
			UserID:                   req.UserID,
			SessionID:                req.SessionID,
			Error:                    err.Error(),
		})
		return nil, err
	}

	client, err := s.clients.ForModel(decision.SelectedKey)
	if err != nil {
		return s.fallbackGenerate(ctx, req, classification, decision, start, err)
	}

	profile := generationFor(classification.Category)
	result, err := client.Generate(ctx, req.Prompt, llm.GenerateOptions{
		MaxTokens:   profile.MaxTokens,
		Temperature: profile.Temperature,
		TimeoutMs:   s.config.RequestTimeoutMs,
	})
	if err != nil {
		return s.fallbackGenerate(ctx, req, classification, decision, start, err)
	}

	text, truncated := truncateResponse(result.Content)
	actualCost := result.CostUsd.InexactFloat64()
	totalMs := elapsedMs(start)

	s.logOutcome(ctx, analytics.RequestLogEntry{
		Prompt:                   req.Prompt,
		Category:                 classification.Category,
		SelectedKey:              decision.SelectedKey,
		Provider:                 decision.Provider,
		CostUsd:                  actualCost,
		LatencyMs:                totalMs,
		QualityScore:             s.qualityPrior(decision.SelectedKey, classification.Category),
		ClassificationMethod:     classification.FinalMethod,
		ClassificationConfidence: classification.Confidence,
		Preset:                   req.Preset,
		UserID:                   req.UserID,
		SessionID:                req.SessionID,
	})

	return &RouterResponse{
		Text:                     text,
		ModelUsed:                decision.SelectedKey,
		Category:                 classification.Category,
		ClassificationConfidence: classification.Confidence,
		Decision:                 decision,
		ActualCostUsd:            actualCost,
		ActualLatencyMs:          totalMs,
		CostSavingsUsd:           s.costSavings(classification.Category, actualCost),
		Timestamp:                result.Timestamp,
		WasTruncated:             truncated,
	}, nil
}

// classifyPrompt never fails: a classifier that cannot produce a result
// routes the prompt as unknown at half confidence.
func (s *RouterService) classifyPrompt(ctx context.Context, prompt string) *classify.HybridResult {
	result := s.classifier.Classify(ctx, prompt)
	if result == nil {
		s.logger.Warn("classifier returned no result, routing as unknown")
		return &classify.HybridResult{
			Classification: classify.Classification{
				Category:   ai.CategoryUnknown,
				Confidence: 0.5,
				Method:     classify.MethodHeuristic,
				Reasoning:  "classification unavailable",
			},
			FinalMethod: classify.FinalHeuristicFallback,
		}
	}
	return result
}

// fallbackGenerate handles a failed primary backend: mark it unavailable,
// try the static fallback once, and account for either outcome.
func (s *RouterService) fallbackGenerate(
	ctx context.Context,
	req RoutePromptRequest,
	classification *classify.HybridResult,
	decision *ai.RoutingDecision,
	start time.Time,
	cause error,
) (*RouterResponse, error) {
	s.logger.Warn("backend failed, marking model unavailable",
		zap.String("model", decision.SelectedKey),
		zap.Error(cause))
	if err := s.registry.MarkUnavailable(decision.SelectedKey); err != nil {
		s.logger.Warn("could not mark model unavailable",
			zap.String("model", decision.SelectedKey),
			zap.Error(err))
	}

	// A failed primary that is itself the static fallback gets no retry.
	if decision.SelectedKey == StaticFallbackKey {
		return nil, s.failExhausted(ctx, req, classification, decision, start, cause)
	}

	client, err := s.clients.ForModel(StaticFallbackKey)
	if err != nil {
		s.logger.Error("static fallback unavailable", zap.Error(err))
		return nil, s.failExhausted(ctx, req, classification, decision, start, cause)
	}

	profile := generationFor(classification.Category)
	result, err := client.Generate(ctx, req.Prompt, llm.GenerateOptions{
		MaxTokens:   profile.MaxTokens,
		Temperature: fallbackTemperature,
		TimeoutMs:   defaultTimeoutMs,
	})
	if err != nil {
		s.logger.Error("static fallback failed", zap.Error(err))
		return nil, s.failExhausted(ctx, req, classification, decision, start, cause)
	}

	text, truncated := truncateResponse(result.Content)
	actualCost := assumedFallbackCost(result)
	totalMs := elapsedMs(start)

	s.logOutcome(ctx, analytics.RequestLogEntry{
		Prompt:                   req.Prompt,
		Category:                 classification.Category,
		SelectedKey:              StaticFallbackKey,
		Provider:                 string(client.Provider()),
		CostUsd:                  actualCost,
		LatencyMs:                totalMs,
		QualityScore:             s.qualityPrior(StaticFallbackKey, classification.Category),
		ClassificationMethod:     classification.FinalMethod,
		ClassificationConfidence: classification.Confidence,
		Preset:                   req.Preset,
		UserID:                   req.UserID,
		SessionID:                req.SessionID,
	})

	return &RouterResponse{
		Text:                     text,
		ModelUsed:                StaticFallbackKey,
		Category:                 classification.Category,
		ClassificationConfidence: classification.Confidence,
		Decision:                 decision,
		ActualCostUsd:            actualCost,
		ActualLatencyMs:          totalMs,
		CostSavingsUsd:           s.costSavings(classification.Category, actualCost),
		Timestamp:                result.Timestamp,
		WasTruncated:             truncated,
	}, nil
}

// failExhausted records the terminal failure and builds the error carrying
// the primary failure's message.
func (s *RouterService) failExhausted(
	ctx context.Context,
	req RoutePromptRequest,
	classification *classify.HybridResult,
	decision *ai.RoutingDecision,
	start time.Time,
	cause error,
) error {
	exhausted := &FallbackExhaustedError{
		SelectedKey: decision.SelectedKey,
		FallbackKey: StaticFallbackKey,
		Message:     cause.Error(),
	}
	s.logOutcome(ctx, analytics.RequestLogEntry{
		Prompt:                   req.Prompt,
		Category:                 classification.Category,
		SelectedKey:              decision.SelectedKey,
		Provider:                 decision.Provider,
		LatencyMs:                elapsedMs(start),
		ClassificationMethod:     classification.FinalMethod,
		ClassificationConfidence: classification.Confidence,
		Preset:                   req.Preset,
		UserID:                   req.UserID,
		SessionID:                req.SessionID,
		Error:                    exhausted.Error(),
	})
	return exhausted
}

// logOutcome appends to the in-memory log and archives best-effort.
func (s *RouterService) logOutcome(ctx context.Context, entry analytics.RequestLogEntry) {
	entry = s.requestLog.Append(entry)
	if s.archive == nil {
		return
	}
	if err := s.archive.ArchiveRequest(ctx, entry); err != nil {
		s.logger.Warn("request archive failed",
			zap.String("entry_id", entry.ID),
			zap.Error(err))
	}
}

// costSavings compares actual spend to the category's most expensive
// model at a 1k token notional. A reporting sentinel, not economics.
func (s *RouterService) costSavings(category ai.Category, actualCost float64) float64 {
	ceiling := s.router.MaxCategoryCost(category) / 1000
	savings := ceiling - actualCost
	if savings < 0 {
		return 0
	}
	return savings
}

func (s *RouterService) qualityPrior(key string, category ai.Category) float64 {
	model, ok := s.registry.Get(key)
	if !ok {
		return 0
	}
	return model.QualityPrior(category)
}

// assumedFallbackCost prices a fallback completion at the flat per-1k rate.
func assumedFallbackCost(result *llm.GenerateResult) float64 {
	tokens := decimal.NewFromInt(int64(result.InputTokens + result.OutputTokens))
	rate := decimal.NewFromFloat(fallbackCostPer1kTokens)
	return tokens.Mul(rate).Div(decimal.NewFromInt(1000)).InexactFloat64()
}

// truncateResponse cuts over-long text at the last sentence or line break
// inside the limit, when that break sits past 80% of it. Otherwise the
// text passes through whole.
func truncateResponse(text string) (string, bool) {
	if len(text) <= maxResponseChars {
		return text, false
	}
	head := text[:maxResponseChars]
	cut := strings.LastIndexByte(head, '.')
	if nl := strings.LastIndexByte(head, '\n'); nl > cut {
		cut = nl
	}
	if float64(cut) > 0.8*float64(maxResponseChars) {
		return text[:cut+1] + "…", true
	}
	return text, false
}

func elapsedMs(start time.Time) float64 {
	return float64(time.Since(start).Milliseconds())
}

// InputError reports a caller mistake, an empty prompt or unusable option.
type InputError struct {
	Field  string
	Reason string
}

func (e *InputError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// FallbackExhaustedError means the selected backend and the static
// fallback both failed. Message preserves the primary failure.
type FallbackExhaustedError struct {
	SelectedKey string
	FallbackKey string
	Message     string
}

func (e *FallbackExhaustedError) Error() string {
	return fmt.Sprintf("generation failed on %s and fallback %s: %s",
		e.SelectedKey, e.FallbackKey, e.Message)
}
