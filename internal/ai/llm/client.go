// Package llm provides uniform clients for remote LLM providers.
// OpenAI, Anthropic, Google and Hugging Face sit behind a single Generate
// interface with per-call options, usage accounting and typed errors.
package llm

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/irfndi/modelmux/internal/ai"
)

// Provider represents an LLM provider type
type Provider string

const (
	ProviderOpenAI      Provider = "openai"
	ProviderAnthropic   Provider = "anthropic"
	ProviderGoogle      Provider = "google"
	ProviderHuggingFace Provider = "huggingface"
)

// IsValid reports whether the provider is one of the supported backends.
func (p Provider) IsValid() bool {
	switch p {
	case ProviderOpenAI, ProviderAnthropic, ProviderGoogle, ProviderHuggingFace:
		return true
	}
	return false
}

// GenerateOptions carries per-call generation parameters. MaxTokens and
// Temperature are always set by callers; the pointer fields are passed
// through only when non-nil.
type GenerateOptions struct {
	MaxTokens   int
	Temperature float64
	// TimeoutMs bounds the call end to end. Zero means the client default.
	TimeoutMs        int
	SystemPrompt     string
	TopP             *float64
	FrequencyPenalty *float64
	PresencePenalty  *float64
	StopSequences    []string
	JSONMode         bool
}

// GenerateResult is the uniform completion result across providers.
type GenerateResult struct {
	Content      string          `json:"content"`
	InputTokens  int             `json:"input_tokens"`
	OutputTokens int             `json:"output_tokens"`
	CostUsd      decimal.Decimal `json:"cost_usd"`
	LatencyMs    int64           `json:"latency_ms"`
	Timestamp    time.Time       `json:"timestamp"`
}

// ClientConfig holds configuration for LLM clients
type ClientConfig struct {
	APIKey      string
	BaseURL     string
	HTTPTimeout time.Duration
	MaxRetries  int
	Model       *ai.Model // Optional: for cost calculation and wire names
}

// Client is the interface for LLM inference clients
type Client interface {
	// Generate sends a prompt and returns the completion
	Generate(ctx context.Context, prompt string, opts GenerateOptions) (*GenerateResult, error)

	// IsAvailable reports whether the backend currently answers
	IsAvailable(ctx context.Context) bool

	// Provider returns the provider type
	Provider() Provider

	// ModelName returns the wire-level model name
	ModelName() string

	// Close releases any resources
	Close() error
}

// ClientFactory creates and caches LLM clients. A client is cached under
// both the registry key and the provider model name; resolution accepts
// either.
type ClientFactory struct {
	registry *ai.Registry
	configs  map[Provider]ClientConfig

	mu    sync.RWMutex
	cache map[string]Client
}

// NewClientFactory creates a new client factory
func NewClientFactory(registry *ai.Registry) *ClientFactory {
	return &ClientFactory{
		registry: registry,
		configs:  make(map[Provider]ClientConfig),
		cache:    make(map[string]Client),
	}
}

// Configure sets configuration for a provider. Providers without
// credentials are simply never configured.
func (f *ClientFactory) Configure(provider Provider, config ClientConfig) {
	f.configs[provider] = config
}

// Configured reports whether the provider has a configuration.
func (f *ClientFactory) Configured(provider Provider) bool {
	_, ok := f.configs[provider]
	return ok
}

// Create builds an unconfigured-cache client for the given provider and
// model descriptor.
func (f *ClientFactory) Create(provider Provider, model ai.Model) (Client, error) {
	config, ok := f.configs[provider]
	if !ok {
		return nil, ErrProviderNotConfigured{Provider: provider}
	}
	m := model
	config.Model = &m

	switch provider {
	case ProviderOpenAI:
		return NewOpenAIClient(config), nil
	case ProviderAnthropic:
		return NewAnthropicClient(config), nil
	case ProviderGoogle:
		return NewGoogleClient(config), nil
	case ProviderHuggingFace:
		return NewHuggingFaceClient(config), nil
	default:
		return nil, ErrUnsupportedProvider{Provider: provider}
	}
}

// ForModel resolves a client by registry key or provider model name,
// creating and caching it on first use. Two concurrent misses may both
// build a client; only the first inserted is retained.
func (f *ClientFactory) ForModel(idOrName string) (Client, error) {
	f.mu.RLock()
	if c, ok := f.cache[idOrName]; ok {
		f.mu.RUnlock()
		return c, nil
	}
	f.mu.RUnlock()

	model, ok := f.registry.Get(idOrName)
	if !ok {
		return nil, &ai.UnknownModelError{Key: idOrName}
	}

	created, err := f.Create(Provider(model.Provider), model)
	if err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if existing, ok := f.cache[model.Key]; ok {
		_ = created.Close()
		return existing, nil
	}
	f.cache[model.Key] = created
	f.cache[model.ProviderModelName] = created
	return created, nil
}

// Close closes every cached client.
func (f *ClientFactory) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	var firstErr error
	closed := make(map[Client]bool, len(f.cache))
	for _, c := range f.cache {
		if closed[c] {
			continue
		}
		closed[c] = true
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	f.cache = make(map[string]Client)
	return firstErr
}

// Error types

// ErrProviderNotConfigured indicates a provider has no credentials
type ErrProviderNotConfigured struct {
	Provider Provider
}

func (e ErrProviderNotConfigured) Error() string {
	return "provider not configured: " + string(e.Provider)
}

// ErrUnsupportedProvider indicates an unsupported provider
type ErrUnsupportedProvider struct {
	Provider Provider
}

func (e ErrUnsupportedProvider) Error() string {
	return "unsupported provider: " + string(e.Provider)
}

// ErrRateLimited indicates rate limiting from the provider
type ErrRateLimited struct {
	Provider   Provider
	RetryAfter time.Duration
}

func (e ErrRateLimited) Error() string {
	return "rate limited by " + string(e.Provider) + ", retry after " + e.RetryAfter.String()
}

// ErrContextLengthExceeded indicates the context length was exceeded
type ErrContextLengthExceeded struct {
	Provider    Provider
	MaxTokens   int
	InputTokens int
}

func (e ErrContextLengthExceeded) Error() string {
	return fmt.Sprintf("context length exceeded: max %d, input %d", e.MaxTokens, e.InputTokens)
}

// ErrContentFiltered indicates content was filtered by the provider
type ErrContentFiltered struct {
	Provider Provider
	Reason   string
}

func (e ErrContentFiltered) Error() string {
	return "content filtered by " + string(e.Provider) + ": " + e.Reason
}

// ErrEmptyResponse indicates the provider returned no choices or text
type ErrEmptyResponse struct {
	Provider Provider
}

func (e ErrEmptyResponse) Error() string {
	return "empty response from " + string(e.Provider)
}
