package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	AnthropicDefaultBaseURL = "https://api.anthropic.com/v1"
	AnthropicDefaultTimeout = 120 * time.Second
	AnthropicVersion        = "2023-06-01"
)

type AnthropicClient struct {
	config     ClientConfig
	httpClient *http.Client
	logger     *zap.Logger
}

func NewAnthropicClient(config ClientConfig) *AnthropicClient {
	timeout := config.HTTPTimeout
	if timeout == 0 {
		timeout = AnthropicDefaultTimeout
	}

	baseURL := config.BaseURL
	if baseURL == "" {
		baseURL = AnthropicDefaultBaseURL
	}

	return &AnthropicClient{
		config: ClientConfig{
			APIKey:      config.APIKey,
			BaseURL:     baseURL,
			HTTPTimeout: timeout,
			MaxRetries:  config.MaxRetries,
			Model:       config.Model,
		},
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: zap.NewNop(),
	}
}

func (c *AnthropicClient) SetLogger(logger *zap.Logger) {
	c.logger = logger
}

func (c *AnthropicClient) Provider() Provider {
	return ProviderAnthropic
}

func (c *AnthropicClient) ModelName() string {
	if c.config.Model != nil {
		return c.config.Model.ProviderModelName
	}
	return ""
}

func (c *AnthropicClient) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

type anthropicRequest struct {
	Model         string             `json:"model"`
	Messages      []anthropicMessage `json:"messages"`
	System        string             `json:"system,omitempty"`
	MaxTokens     int                `json:"max_tokens"`
	Temperature   *float64           `json:"temperature,omitempty"`
	TopP          *float64           `json:"top_p,omitempty"`
	StopSequences []string           `json:"stop_sequences,omitempty"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicContent struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

type anthropicResponse struct {
	ID         string             `json:"id"`
	Model      string             `json:"model"`
	Content    []anthropicContent `json:"content"`
	StopReason string             `json:"stop_reason"`
	Usage      anthropicUsage     `json:"usage"`
}

type anthropicUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

type anthropicError struct {
	Type  string `json:"type"`
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

func (c *AnthropicClient) Generate(ctx context.Context, prompt string, opts GenerateOptions) (*GenerateResult, error) {
	startTime := time.Now()

	ctx, cancel := withCallTimeout(ctx, opts)
	defer cancel()

	maxTokens := opts.MaxTokens
	if maxTokens == 0 {
		maxTokens = 4096
	}

	anthropicReq := &anthropicRequest{
		Model:         c.ModelName(),
		Messages:      []anthropicMessage{{Role: "user", Content: prompt}},
		System:        opts.SystemPrompt,
		MaxTokens:     maxTokens,
		Temperature:   &opts.Temperature,
		TopP:          opts.TopP,
		StopSequences: opts.StopSequences,
	}

	body, err := json.Marshal(anthropicReq)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.BaseURL+"/messages", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", c.config.APIKey)
	httpReq.Header.Set("anthropic-version", AnthropicVersion)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, c.handleErrorResponse(resp.StatusCode, respBody)
	}

	var anthropicResp anthropicResponse
	if err := json.Unmarshal(respBody, &anthropicResp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}

	return c.convertResponse(prompt, &anthropicResp, time.Since(startTime).Milliseconds())
}

func (c *AnthropicClient) IsAvailable(ctx context.Context) bool {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.config.BaseURL+"/models", nil)
	if err != nil {
		return false
	}
	httpReq.Header.Set("x-api-key", c.config.APIKey)
	httpReq.Header.Set("anthropic-version", AnthropicVersion)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return false
	}
	defer func() { _ = resp.Body.Close() }()
	return resp.StatusCode == http.StatusOK
}

func (c *AnthropicClient) convertResponse(prompt string, resp *anthropicResponse, latencyMs int64) (*GenerateResult, error) {
	var text strings.Builder
	for _, content := range resp.Content {
		if content.Type == "text" {
			text.WriteString(content.Text)
		}
	}
	if text.Len() == 0 {
		return nil, ErrEmptyResponse{Provider: ProviderAnthropic}
	}

	inputTokens := resp.Usage.InputTokens
	outputTokens := resp.Usage.OutputTokens
	if inputTokens == 0 {
		inputTokens = estimateTokens(prompt)
	}
	if outputTokens == 0 {
		outputTokens = estimateTokens(text.String())
	}

	result := &GenerateResult{
		Content:      text.String(),
		InputTokens:  inputTokens,
		OutputTokens: outputTokens,
		LatencyMs:    latencyMs,
		Timestamp:    time.Now().UTC(),
	}
	if c.config.Model != nil {
		result.CostUsd = c.config.Model.CostFor(inputTokens, outputTokens)
	}
	return result, nil
}

func (c *AnthropicClient) handleErrorResponse(statusCode int, body []byte) error {
	var apiErr anthropicError
	if err := json.Unmarshal(body, &apiErr); err != nil {
		return fmt.Errorf("anthropic API error (status %d): %s", statusCode, string(body))
	}

	switch statusCode {
	case http.StatusTooManyRequests:
		return ErrRateLimited{Provider: ProviderAnthropic, RetryAfter: 30 * time.Second}
	case http.StatusBadRequest:
		if strings.Contains(apiErr.Error.Message, "prompt is too long") {
			return ErrContextLengthExceeded{Provider: ProviderAnthropic}
		}
	case http.StatusForbidden:
		return ErrContentFiltered{Provider: ProviderAnthropic, Reason: apiErr.Error.Message}
	}

	return fmt.Errorf("anthropic API error: %s (type: %s)", apiErr.Error.Message, apiErr.Error.Type)
}
