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
	OpenAIDefaultBaseURL = "https://api.openai.com/v1"
	OpenAIDefaultTimeout = 60 * time.Second
)

type OpenAIClient struct {
	config     ClientConfig
	httpClient *http.Client
	logger     *zap.Logger
}

func NewOpenAIClient(config ClientConfig) *OpenAIClient {
	timeout := config.HTTPTimeout
	if timeout == 0 {
		timeout = OpenAIDefaultTimeout
	}

	baseURL := config.BaseURL
	if baseURL == "" {
		baseURL = OpenAIDefaultBaseURL
	}

	return &OpenAIClient{
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

func (c *OpenAIClient) SetLogger(logger *zap.Logger) {
	c.logger = logger
}

func (c *OpenAIClient) Provider() Provider {
	return ProviderOpenAI
}

func (c *OpenAIClient) ModelName() string {
	if c.config.Model != nil {
		return c.config.Model.ProviderModelName
	}
	return ""
}

func (c *OpenAIClient) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

type openAIRequest struct {
	Model            string                `json:"model"`
	Messages         []openAIMessage       `json:"messages"`
	MaxTokens        int                   `json:"max_tokens,omitempty"`
	Temperature      *float64              `json:"temperature,omitempty"`
	TopP             *float64              `json:"top_p,omitempty"`
	FrequencyPenalty *float64              `json:"frequency_penalty,omitempty"`
	PresencePenalty  *float64              `json:"presence_penalty,omitempty"`
	Stop             []string              `json:"stop,omitempty"`
	ResponseFormat   *openAIResponseFormat `json:"response_format,omitempty"`
}

type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIResponseFormat struct {
	Type string `json:"type"`
}

type openAIResponse struct {
	ID      string         `json:"id"`
	Model   string         `json:"model"`
	Choices []openAIChoice `json:"choices"`
	Usage   openAIUsage    `json:"usage"`
}

type openAIChoice struct {
	Index        int           `json:"index"`
	Message      openAIMessage `json:"message"`
	FinishReason string        `json:"finish_reason"`
}

type openAIUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type openAIError struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Param   string `json:"param"`
		Code    string `json:"code"`
	} `json:"error"`
}

func (c *OpenAIClient) Generate(ctx context.Context, prompt string, opts GenerateOptions) (*GenerateResult, error) {
	startTime := time.Now()

	ctx, cancel := withCallTimeout(ctx, opts)
	defer cancel()

	messages := make([]openAIMessage, 0, 2)
	if opts.SystemPrompt != "" {
		messages = append(messages, openAIMessage{Role: "system", Content: opts.SystemPrompt})
	}
	messages = append(messages, openAIMessage{Role: "user", Content: prompt})

	openAIReq := &openAIRequest{
		Model:            c.ModelName(),
		Messages:         messages,
		MaxTokens:        opts.MaxTokens,
		Temperature:      &opts.Temperature,
		TopP:             opts.TopP,
		FrequencyPenalty: opts.FrequencyPenalty,
		PresencePenalty:  opts.PresencePenalty,
		Stop:             opts.StopSequences,
	}
	if opts.JSONMode {
		openAIReq.ResponseFormat = &openAIResponseFormat{Type: "json_object"}
	}

	body, err := json.Marshal(openAIReq)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.BaseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.config.APIKey)

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

	var openAIResp openAIResponse
	if err := json.Unmarshal(respBody, &openAIResp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}

	return c.convertResponse(prompt, &openAIResp, time.Since(startTime).Milliseconds())
}

func (c *OpenAIClient) IsAvailable(ctx context.Context) bool {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.config.BaseURL+"/models", nil)
	if err != nil {
		return false
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.config.APIKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return false
	}
	defer func() { _ = resp.Body.Close() }()
	return resp.StatusCode == http.StatusOK
}

func (c *OpenAIClient) convertResponse(prompt string, resp *openAIResponse, latencyMs int64) (*GenerateResult, error) {
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return nil, ErrEmptyResponse{Provider: ProviderOpenAI}
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

func (c *OpenAIClient) handleErrorResponse(statusCode int, body []byte) error {
	var apiErr openAIError
	if err := json.Unmarshal(body, &apiErr); err != nil {
		return fmt.Errorf("OpenAI API error (status %d): %s", statusCode, string(body))
	}

	switch statusCode {
	case http.StatusTooManyRequests:
		return ErrRateLimited{Provider: ProviderOpenAI, RetryAfter: 30 * time.Second}
	case http.StatusBadRequest:
		if apiErr.Error.Code == "context_length_exceeded" {
			return ErrContextLengthExceeded{Provider: ProviderOpenAI}
		}
	case http.StatusForbidden:
		if apiErr.Error.Type == "content_filter" {
			return ErrContentFiltered{Provider: ProviderOpenAI, Reason: apiErr.Error.Message}
		}
	}

	return fmt.Errorf("OpenAI API error: %s (type: %s, code: %s)", apiErr.Error.Message, apiErr.Error.Type, apiErr.Error.Code)
}
