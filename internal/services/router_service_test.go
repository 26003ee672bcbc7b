package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/irfndi/modelmux/internal/ai"
	"github.com/irfndi/modelmux/internal/ai/classify"
	"github.com/irfndi/modelmux/internal/ai/llm"
	"github.com/irfndi/modelmux/internal/analytics"
)

// failingBackend stands in for a model classifier that is offline, so
// insufficient heuristic results degrade deterministically.
type failingBackend struct{}

func (b *failingBackend) Classify(ctx context.Context, prompt string) (*classify.Classification, error) {
	return nil, errors.New("classifier backend offline")
}

type stubClient struct {
	provider  llm.Provider
	modelName string
	content   string
	inTokens  int
	outTokens int
	cost      decimal.Decimal
	err       error

	mu      sync.Mutex
	prompts []string
	opts    []llm.GenerateOptions
}

func (c *stubClient) Generate(ctx context.Context, prompt string, opts llm.GenerateOptions) (*llm.GenerateResult, error) {
	c.mu.Lock()
	c.prompts = append(c.prompts, prompt)
	c.opts = append(c.opts, opts)
	c.mu.Unlock()

	if c.err != nil {
		return nil, c.err
	}
	return &llm.GenerateResult{
		Content:      c.content,
		InputTokens:  c.inTokens,
		OutputTokens: c.outTokens,
		CostUsd:      c.cost,
		LatencyMs:    42,
		Timestamp:    time.Now().UTC(),
	}, nil
}

func (c *stubClient) IsAvailable(ctx context.Context) bool { return true }
func (c *stubClient) Provider() llm.Provider               { return c.provider }
func (c *stubClient) ModelName() string                    { return c.modelName }
func (c *stubClient) Close() error                         { return nil }

func (c *stubClient) callCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.prompts)
}

func (c *stubClient) lastOpts(t *testing.T) llm.GenerateOptions {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	require.NotEmpty(t, c.opts)
	return c.opts[len(c.opts)-1]
}

type stubResolver struct {
	clients map[string]*stubClient
}

func (r *stubResolver) ForModel(idOrName string) (llm.Client, error) {
	client, ok := r.clients[idOrName]
	if !ok {
		return nil, fmt.Errorf("no client configured for %s", idOrName)
	}
	return client, nil
}

type captureArchiver struct {
	mu      sync.Mutex
	entries []analytics.RequestLogEntry
	err     error
}

func (a *captureArchiver) ArchiveRequest(ctx context.Context, entry analytics.RequestLogEntry) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.err != nil {
		return a.err
	}
	a.entries = append(a.entries, entry)
	return nil
}

type serviceFixture struct {
	registry *ai.Registry
	resolver *stubResolver
	log      *analytics.RequestLog
	service  *RouterService

	claude *stubClient
	gpt5   *stubClient
	mini   *stubClient
	gemini *stubClient
	oss    *stubClient
}

func newServiceFixture(t *testing.T, opts ...RouterServiceOption) *serviceFixture {
	t.Helper()

	models, err := ai.LoadCatalog()
	require.NoError(t, err)
	registry, err := ai.NewRegistry(models)
	require.NoError(t, err)
	router := ai.NewRouter(registry)

	f := &serviceFixture{
		registry: registry,
		log:      analytics.NewRequestLog(0),
		claude: &stubClient{
			provider: llm.ProviderAnthropic, modelName: "claude-3-7-sonnet-20250219",
			content: "Claude answer", inTokens: 120, outTokens: 300,
			cost: decimal.NewFromFloat(0.003),
		},
		gpt5: &stubClient{
			provider: llm.ProviderOpenAI, modelName: "gpt-5",
			content: "GPT-5 answer", inTokens: 100, outTokens: 250,
			cost: decimal.NewFromFloat(0.008),
		},
		mini: &stubClient{
			provider: llm.ProviderOpenAI, modelName: "gpt-4o-mini",
			content: "Mini answer", inTokens: 100, outTokens: 50,
			cost: decimal.NewFromFloat(0.00005),
		},
		gemini: &stubClient{
			provider: llm.ProviderGoogle, modelName: "gemini-1.5-flash",
			content: "Gemini answer", inTokens: 80, outTokens: 60,
			cost: decimal.NewFromFloat(0.00003),
		},
		oss: &stubClient{
			provider: llm.ProviderHuggingFace, modelName: "openai/gpt-oss-20b",
			content: "OSS answer", inTokens: 90, outTokens: 200,
			cost: decimal.Zero,
		},
	}
	f.resolver = &stubResolver{clients: map[string]*stubClient{
		"claude-3-7-sonnet-20250219": f.claude,
		"gpt-5":                      f.gpt5,
		"gpt-4o-mini":                f.mini,
		"gemini-1.5-flash":           f.gemini,
		"gpt-oss-20b":                f.oss,
	}}

	classifier := classify.NewHybridClassifier(&failingBackend{})
	f.service = NewRouterService(
		DefaultRouterServiceConfig(),
		registry,
		router,
		classifier,
		f.resolver,
		f.log,
		zap.NewNop(),
		opts...,
	)
	return f
}

func TestRoutePromptCodeBalanced(t *testing.T) {
	f := newServiceFixture(t)

	resp, err := f.service.RoutePrompt(context.Background(), RoutePromptRequest{
		Prompt: "Write a Python function to sort a list",
	})
	require.NoError(t, err)

	assert.Equal(t, "claude-3-7-sonnet-20250219", resp.ModelUsed)
	assert.Equal(t, ai.CategoryCode, resp.Category)
	assert.InDelta(t, 0.85, resp.ClassificationConfidence, 0.0001)
	assert.Equal(t, "Claude answer", resp.Text)
	assert.False(t, resp.WasTruncated)
	assert.Equal(t, "claude-3-7-sonnet-20250219", resp.Decision.SelectedKey)
	assert.Equal(t, "gpt-5", resp.Decision.FallbackKey)
	assert.InDelta(t, 0.003, resp.ActualCostUsd, 1e-9)
	// CODE ceiling is $10/M input, $0.01 at the 1k notional.
	assert.InDelta(t, 0.007, resp.CostSavingsUsd, 1e-9)

	require.Equal(t, 1, f.claude.callCount())
	opts := f.claude.lastOpts(t)
	assert.Equal(t, 2000, opts.MaxTokens)
	assert.InDelta(t, 0.1, opts.Temperature, 1e-9)
	assert.Equal(t, 30_000, opts.TimeoutMs)

	require.Equal(t, 1, f.log.Len())
	entry := f.log.RecentLogs(1)[0]
	assert.Equal(t, "claude-3-7-sonnet-20250219", entry.SelectedKey)
	assert.Equal(t, "anthropic", entry.Provider)
	assert.Equal(t, classify.FinalHeuristicOnly, entry.ClassificationMethod)
	assert.Equal(t, ai.PresetBalanced, entry.Preset)
	assert.InDelta(t, 0.98, entry.QualityScore, 1e-9)
	assert.Empty(t, entry.Error)
}

func TestRoutePromptSummarizeCost(t *testing.T) {
	f := newServiceFixture(t)

	resp, err := f.service.RoutePrompt(context.Background(), RoutePromptRequest{
		Prompt: "Summarize the key points of machine learning",
		Preset: ai.PresetCost,
	})
	require.NoError(t, err)

	assert.Equal(t, "gpt-oss-20b", resp.ModelUsed)
	assert.Equal(t, ai.CategorySummarize, resp.Category)
	assert.InDelta(t, 0.8333, resp.ClassificationConfidence, 0.001)
	assert.Equal(t, "OSS answer", resp.Text)
	assert.Zero(t, resp.ActualCostUsd)
	// Free model: the full $0.01 notional counts as saved.
	assert.InDelta(t, 0.01, resp.CostSavingsUsd, 1e-9)

	opts := f.oss.lastOpts(t)
	assert.Equal(t, 1500, opts.MaxTokens)
	assert.InDelta(t, 0.3, opts.Temperature, 1e-9)
}

func TestRoutePromptMathQuality(t *testing.T) {
	f := newServiceFixture(t)

	resp, err := f.service.RoutePrompt(context.Background(), RoutePromptRequest{
		Prompt: "Solve: 2x + 5 = 13",
		Preset: ai.PresetQuality,
	})
	require.NoError(t, err)

	assert.Equal(t, "gpt-5", resp.ModelUsed)
	assert.Equal(t, ai.CategoryMathReasoning, resp.Category)
	assert.InDelta(t, 0.9, resp.ClassificationConfidence, 1e-9)
	assert.Equal(t, "claude-3-7-sonnet-20250219", resp.Decision.FallbackKey)

	opts := f.gpt5.lastOpts(t)
	assert.Equal(t, 3000, opts.MaxTokens)
	assert.InDelta(t, 0.1, opts.Temperature, 1e-9)
	assert.Zero(t, f.claude.callCount())
}

func TestRoutePromptQALatency(t *testing.T) {
	f := newServiceFixture(t)

	resp, err := f.service.RoutePrompt(context.Background(), RoutePromptRequest{
		Prompt: "Hello, how are you?",
		Preset: ai.PresetLatency,
	})
	require.NoError(t, err)

	assert.Equal(t, "gemini-1.5-flash", resp.ModelUsed)
	assert.Equal(t, ai.CategoryQA, resp.Category)
	assert.Equal(t, "Gemini answer", resp.Text)

	opts := f.gemini.lastOpts(t)
	assert.Equal(t, 2000, opts.MaxTokens)
	assert.InDelta(t, 0.2, opts.Temperature, 1e-9)
}

func TestRoutePromptBackendFailureFallsBack(t *testing.T) {
	f := newServiceFixture(t)
	f.gpt5.err = errors.New("upstream 500")

	// The classifier backend is down, so this degrades to the keyword
	// label at half confidence before routing.
	resp, err := f.service.RoutePrompt(context.Background(), RoutePromptRequest{
		Prompt: "Explain quantum physics in simple terms",
		Preset: ai.PresetQuality,
	})
	require.NoError(t, err)

	assert.Equal(t, ai.CategoryMathReasoning, resp.Category)
	assert.InDelta(t, 0.2111, resp.ClassificationConfidence, 0.001)
	assert.Equal(t, "gpt-4o-mini", resp.ModelUsed)
	assert.Equal(t, "Mini answer", resp.Text)
	// The decision still names the model that was tried first.
	assert.Equal(t, "gpt-5", resp.Decision.SelectedKey)

	// Assumed flat rate: 150 tokens at 0.00015 per 1k.
	assert.InDelta(t, 0.0000225, resp.ActualCostUsd, 1e-12)

	opts := f.mini.lastOpts(t)
	assert.InDelta(t, 0.7, opts.Temperature, 1e-9)
	assert.Equal(t, 3000, opts.MaxTokens)
	assert.Equal(t, 30_000, opts.TimeoutMs)

	model, ok := f.registry.Get("gpt-5")
	require.True(t, ok)
	assert.False(t, model.Available)

	// While gpt-5 is out, the same prompt routes to the other reasoner.
	resp2, err := f.service.RoutePrompt(context.Background(), RoutePromptRequest{
		Prompt: "Explain quantum physics in simple terms",
		Preset: ai.PresetQuality,
	})
	require.NoError(t, err)
	assert.Equal(t, "claude-3-7-sonnet-20250219", resp2.ModelUsed)

	// Reset restores eligibility; gpt-5 is selected again.
	f.registry.ResetAll()
	resp3, err := f.service.RoutePrompt(context.Background(), RoutePromptRequest{
		Prompt: "Explain quantum physics in simple terms",
		Preset: ai.PresetQuality,
	})
	require.NoError(t, err)
	assert.Equal(t, "gpt-5", resp3.Decision.SelectedKey)
	assert.Equal(t, "gpt-4o-mini", resp3.ModelUsed)

	entry := f.log.RecentLogs(1)[0]
	assert.Equal(t, "gpt-4o-mini", entry.SelectedKey)
	assert.Equal(t, classify.FinalHeuristicFallback, entry.ClassificationMethod)
}

func TestRoutePromptHugeContext(t *testing.T) {
	f := newServiceFixture(t)

	resp, err := f.service.RoutePrompt(context.Background(), RoutePromptRequest{
		Prompt: strings.Repeat("a", 1_000_000),
	})
	require.NoError(t, err)

	assert.Equal(t, ai.CategoryUnknown, resp.Category)
	assert.Equal(t, "gemini-1.5-flash", resp.ModelUsed)
	assert.Equal(t, 1.0, resp.Decision.Confidence)
	assert.Empty(t, resp.Decision.Alternatives)

	opts := f.gemini.lastOpts(t)
	assert.Equal(t, 1500, opts.MaxTokens)
	assert.InDelta(t, 0.5, opts.Temperature, 1e-9)
}

func TestRoutePromptEmptyPrompt(t *testing.T) {
	f := newServiceFixture(t)

	for _, prompt := range []string{"", "   ", "\n\t"} {
		_, err := f.service.RoutePrompt(context.Background(), RoutePromptRequest{Prompt: prompt})

		var inputErr *InputError
		require.ErrorAs(t, err, &inputErr, "prompt %q", prompt)
		assert.Equal(t, "prompt", inputErr.Field)
	}
	assert.Equal(t, 0, f.log.Len())
}

func TestRoutePromptNoCandidates(t *testing.T) {
	f := newServiceFixture(t)
	require.NoError(t, f.registry.MarkUnavailable("claude-3-7-sonnet-20250219"))
	require.NoError(t, f.registry.MarkUnavailable("gpt-5"))

	_, err := f.service.RoutePrompt(context.Background(), RoutePromptRequest{
		Prompt: "Write a Python function to sort a list",
	})

	var noCandidates *ai.NoCandidatesError
	require.ErrorAs(t, err, &noCandidates)
	assert.Equal(t, ai.CategoryCode, noCandidates.Category)

	require.Equal(t, 1, f.log.Len())
	entry := f.log.RecentLogs(1)[0]
	assert.NotEmpty(t, entry.Error)
	assert.Empty(t, entry.SelectedKey)
}

func TestRoutePromptFallbackExhausted(t *testing.T) {
	f := newServiceFixture(t)
	f.gpt5.err = errors.New("upstream 500")
	f.mini.err = errors.New("mini offline")

	_, err := f.service.RoutePrompt(context.Background(), RoutePromptRequest{
		Prompt: "Solve: 2x + 5 = 13",
		Preset: ai.PresetQuality,
	})

	var exhausted *FallbackExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.Equal(t, "gpt-5", exhausted.SelectedKey)
	assert.Equal(t, "gpt-4o-mini", exhausted.FallbackKey)
	// The error keeps the primary failure, not the fallback's.
	assert.Equal(t, "upstream 500", exhausted.Message)
	assert.Contains(t, err.Error(), "upstream 500")

	model, ok := f.registry.Get("gpt-5")
	require.True(t, ok)
	assert.False(t, model.Available)

	require.Equal(t, 1, f.log.Len())
	assert.Contains(t, f.log.RecentLogs(1)[0].Error, "upstream 500")
}

func TestRoutePromptNoSameModelRetry(t *testing.T) {
	f := newServiceFixture(t)
	// Leave only the static fallback eligible for QA.
	for _, key := range []string{"claude-3-7-sonnet-20250219", "gpt-5", "gemini-1.5-flash", "gpt-oss-20b"} {
		require.NoError(t, f.registry.MarkUnavailable(key))
	}
	f.mini.err = errors.New("mini offline")

	_, err := f.service.RoutePrompt(context.Background(), RoutePromptRequest{
		Prompt: "Hello, how are you?",
	})

	var exhausted *FallbackExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.Equal(t, "gpt-4o-mini", exhausted.SelectedKey)
	assert.Equal(t, 1, f.mini.callCount())
}

func TestRoutePromptClientResolutionFailure(t *testing.T) {
	f := newServiceFixture(t)
	delete(f.resolver.clients, "claude-3-7-sonnet-20250219")

	resp, err := f.service.RoutePrompt(context.Background(), RoutePromptRequest{
		Prompt: "Write a Python function to sort a list",
	})
	require.NoError(t, err)

	assert.Equal(t, "gpt-4o-mini", resp.ModelUsed)

	model, ok := f.registry.Get("claude-3-7-sonnet-20250219")
	require.True(t, ok)
	assert.False(t, model.Available)
}

func TestRoutePromptArchivesOutcomes(t *testing.T) {
	archive := &captureArchiver{}
	f := newServiceFixture(t, WithArchiver(archive))

	_, err := f.service.RoutePrompt(context.Background(), RoutePromptRequest{
		Prompt:    "Hello, how are you?",
		UserID:    "user-7",
		SessionID: "session-9",
	})
	require.NoError(t, err)

	archive.mu.Lock()
	defer archive.mu.Unlock()
	require.Len(t, archive.entries, 1)
	assert.NotEmpty(t, archive.entries[0].ID)
	assert.Equal(t, "user-7", archive.entries[0].UserID)
	assert.Equal(t, "session-9", archive.entries[0].SessionID)
}

func TestRoutePromptArchiveErrorDoesNotFail(t *testing.T) {
	archive := &captureArchiver{err: errors.New("archive down")}
	f := newServiceFixture(t, WithArchiver(archive))

	resp, err := f.service.RoutePrompt(context.Background(), RoutePromptRequest{
		Prompt: "Hello, how are you?",
	})
	require.NoError(t, err)
	assert.NotNil(t, resp)
	assert.Equal(t, 1, f.log.Len())
}

func TestRouterServiceTimeoutClamping(t *testing.T) {
	tests := []struct {
		name      string
		timeoutMs int
		want      int
	}{
		{"zero uses default", 0, 30_000},
		{"below floor clamps up", 1_000, 5_000},
		{"above ceiling clamps down", 500_000, 120_000},
		{"in range passes through", 45_000, 45_000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newServiceFixture(t)
			f.service = NewRouterService(
				RouterServiceConfig{RequestTimeoutMs: tt.timeoutMs},
				f.registry,
				ai.NewRouter(f.registry),
				classify.NewHybridClassifier(&failingBackend{}),
				f.resolver,
				f.log,
				nil,
			)

			_, err := f.service.RoutePrompt(context.Background(), RoutePromptRequest{
				Prompt: "Hello, how are you?",
				Preset: ai.PresetLatency,
			})
			require.NoError(t, err)
			assert.Equal(t, tt.want, f.gemini.lastOpts(t).TimeoutMs)
		})
	}
}

func TestGenerationFor(t *testing.T) {
	tests := []struct {
		category        ai.Category
		wantTemperature float64
		wantMaxTokens   int
	}{
		{ai.CategoryCode, 0.1, 2000},
		{ai.CategorySummarize, 0.3, 1500},
		{ai.CategoryQA, 0.2, 2000},
		{ai.CategoryCreative, 0.8, 2500},
		{ai.CategoryMathReasoning, 0.1, 3000},
		{ai.CategoryUnknown, 0.5, 1500},
		{ai.Category("bogus"), 0.5, 1500},
	}

	for _, tt := range tests {
		t.Run(string(tt.category), func(t *testing.T) {
			profile := generationFor(tt.category)
			assert.InDelta(t, tt.wantTemperature, profile.Temperature, 1e-9)
			assert.Equal(t, tt.wantMaxTokens, profile.MaxTokens)
		})
	}
}

func TestTruncateResponse(t *testing.T) {
	t.Run("short text passes through", func(t *testing.T) {
		text, truncated := truncateResponse("short answer.")
		assert.Equal(t, "short answer.", text)
		assert.False(t, truncated)
	})

	t.Run("exactly at limit passes through", func(t *testing.T) {
		in := strings.Repeat("a", maxResponseChars)
		text, truncated := truncateResponse(in)
		assert.Equal(t, in, text)
		assert.False(t, truncated)
	})

	t.Run("cuts at late sentence boundary", func(t *testing.T) {
		in := strings.Repeat("a", 2500) + ". " + strings.Repeat("b", 1000)
		text, truncated := truncateResponse(in)
		assert.True(t, truncated)
		assert.Equal(t, strings.Repeat("a", 2500)+".…", text)
	})

	t.Run("cuts at late newline", func(t *testing.T) {
		in := strings.Repeat("a", 2600) + "\n" + strings.Repeat("b", 1000)
		text, truncated := truncateResponse(in)
		assert.True(t, truncated)
		assert.Equal(t, strings.Repeat("a", 2600)+"\n…", text)
	})

	t.Run("early boundary leaves text whole", func(t *testing.T) {
		in := strings.Repeat("a", 1000) + ". " + strings.Repeat("b", 3000)
		text, truncated := truncateResponse(in)
		assert.False(t, truncated)
		assert.Equal(t, in, text)
	})

	t.Run("no boundary leaves text whole", func(t *testing.T) {
		in := strings.Repeat("a", 5000)
		text, truncated := truncateResponse(in)
		assert.False(t, truncated)
		assert.Equal(t, in, text)
	})
}

func TestAssumedFallbackCost(t *testing.T) {
	cost := assumedFallbackCost(&llm.GenerateResult{InputTokens: 100, OutputTokens: 50})
	assert.InDelta(t, 0.0000225, cost, 1e-12)

	assert.Zero(t, assumedFallbackCost(&llm.GenerateResult{}))
}

func TestRoutePromptTruncatesLongCompletions(t *testing.T) {
	f := newServiceFixture(t)
	f.gemini.content = strings.Repeat("word ", 580) + "End of thought." + strings.Repeat(" more", 40)

	resp, err := f.service.RoutePrompt(context.Background(), RoutePromptRequest{
		Prompt: "Hello, how are you?",
		Preset: ai.PresetLatency,
	})
	require.NoError(t, err)

	assert.True(t, resp.WasTruncated)
	assert.True(t, strings.HasSuffix(resp.Text, "…"))
	assert.LessOrEqual(t, len(resp.Text), maxResponseChars+len("…"))
}
