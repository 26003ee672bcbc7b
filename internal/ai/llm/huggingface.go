package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
)

const (
	HuggingFaceDefaultBaseURL = "https://router.huggingface.co/v1"
	HuggingFaceDefaultTimeout = 120 * time.Second
)

// HuggingFaceClient talks to the Hugging Face inference router, which exposes
// an OpenAI-compatible chat completions surface for hosted open-weight models.
type HuggingFaceClient struct {
	config     ClientConfig
	httpClient *http.Client
	logger     *zap.Logger
}

func NewHuggingFaceClient(config ClientConfig) *HuggingFaceClient {
	timeout := config.HTTPTimeout
	if timeout == 0 {
		timeout = HuggingFaceDefaultTimeout
	}

	baseURL := config.BaseURL
	if baseURL == "" {
		baseURL = HuggingFaceDefaultBaseURL
	}

	return &HuggingFaceClient{
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

func (c *HuggingFaceClient) SetLogger(logger *zap.Logger) {
	c.logger = logger
}

func (c *HuggingFaceClient) Provider() Provider {
	return ProviderHuggingFace
}

func (c *HuggingFaceClient) ModelName() string {
	if c.config.Model != nil {
		return c.config.Model.ProviderModelName
	}
	return ""
}

func (c *HuggingFaceClient) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

type hfRequest struct {
	Model          string                `json:"model"`
	Messages       []hfMessage           `json:"messages"`
	MaxTokens      int                   `json:"max_tokens,omitempty"`
	Temperature    *float64              `json:"temperature,omitempty"`
	TopP           *float64              `json:"top_p,omitempty"`
	Stop           []string              `json:"stop,omitempty"`
	ResponseFormat *openAIResponseFormat `json:"response_format,omitempty"`
}

type hfMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type hfResponse struct {
	ID      string     `json:"id"`
	Model   string     `json:"model"`
	Choices []hfChoice `json:"choices"`
	Usage   hfUsage    `json:"usage"`
}

type hfChoice struct {
	Index        int       `json:"index"`
	Message      hfMessage `json:"message"`
	FinishReason string    `json:"finish_reason"`
}

type hfUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type hfError struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    string `json:"code"`
	} `json:"error"`
}

func (c *HuggingFaceClient) Generate(ctx context.Context, prompt string, opts GenerateOptions) (*GenerateResult, error) {
	startTime := time.Now()

	ctx, cancel := withCallTimeout(ctx, opts)
	defer cancel()

	messages := make([]hfMessage, 0, 2)
	if opts.SystemPrompt != "" {
		messages = append(messages, hfMessage{Role: "system", Content: opts.SystemPrompt})
	}
	messages = append(messages, hfMessage{Role: "user", Content: prompt})

	hfReq := &hfRequest{
		Model:       c.ModelName(),
		Messages:    messages,
		MaxTokens:   opts.MaxTokens,
		Temperature: &opts.Temperature,
		TopP:        opts.TopP,
		Stop:        opts.StopSequences,
	}
	if opts.JSONMode {
		hfReq.ResponseFormat = &openAIResponseFormat{Type: "json_object"}
	}

	body, err := json.Marshal(hfReq)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.BaseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	if c.config.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	}

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

	var hfResp hfResponse
	if err := json.Unmarshal(respBody, &hfResp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}

	return c.convertResponse(prompt, &hfResp, time.Since(startTime).Milliseconds())
}

func (c *HuggingFaceClient) IsAvailable(ctx context.Context) bool {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.config.BaseURL+"/models", nil)
	if err != nil {
		return false
	}
	if c.config.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return false
	}
	defer func() { _ = resp.Body.Close() }()
	return resp.StatusCode == http.StatusOK
}

func (c *HuggingFaceClient) convertResponse(prompt string, resp *hfResponse, latencyMs int64) (*GenerateResult, error) {
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return nil, ErrEmptyResponse{Provider: ProviderHuggingFace}
	}
	content := resp.Choices[0].Message.Content

	inputTokens := resp.Usage.PromptTokens
	outputTokens := resp.Usage.CompletionTokens
	if inputTokens == 0 {
		inputTokens = estimateTokens(prompt)
	}
	if outputTokens == 0 {
		outputTokens = estimateTokens(content)
	}

	result := &GenerateResult{
		Content:      content,
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

func (c *HuggingFaceClient) handleErrorResponse(statusCode int, body []byte) error {
	var apiErr hfError
	if err := json.Unmarshal(body, &apiErr); err != nil {
		return fmt.Errorf("HuggingFace API error (status %d): %s", statusCode, string(body))
	}

	if statusCode == http.StatusTooManyRequests {
		return ErrRateLimited{Provider: ProviderHuggingFace, RetryAfter: 30 * time.Second}
	}

	return fmt.Errorf("HuggingFace API error: %s (type: %s, code: %s)", apiErr.Error.Message, apiErr.Error.Type, apiErr.Error.Code)
}
