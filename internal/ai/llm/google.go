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
	GoogleDefaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"
	GoogleDefaultTimeout = 60 * time.Second
)

type GoogleClient struct {
	config     ClientConfig
	httpClient *http.Client
	logger     *zap.Logger
}

func NewGoogleClient(config ClientConfig) *GoogleClient {
	timeout := config.HTTPTimeout
	if timeout == 0 {
		timeout = GoogleDefaultTimeout
	}

	baseURL := config.BaseURL
	if baseURL == "" {
		baseURL = GoogleDefaultBaseURL
	}

	return &GoogleClient{
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

func (c *GoogleClient) SetLogger(logger *zap.Logger) {
	c.logger = logger
}

func (c *GoogleClient) Provider() Provider {
	return ProviderGoogle
}

func (c *GoogleClient) ModelName() string {
	if c.config.Model != nil {
		return c.config.Model.ProviderModelName
	}
	return ""
}

func (c *GoogleClient) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

type geminiRequest struct {
	Contents          []geminiContent         `json:"contents"`
	SystemInstruction *geminiContent          `json:"systemInstruction,omitempty"`
	GenerationConfig  *geminiGenerationConfig `json:"generationConfig,omitempty"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiGenerationConfig struct {
	Temperature      *float64 `json:"temperature,omitempty"`
	MaxOutputTokens  int      `json:"maxOutputTokens,omitempty"`
	TopP             *float64 `json:"topP,omitempty"`
	StopSequences    []string `json:"stopSequences,omitempty"`
	ResponseMimeType string   `json:"responseMimeType,omitempty"`
}

type geminiResponse struct {
	Candidates     []geminiCandidate     `json:"candidates"`
	UsageMetadata  geminiUsageMetadata   `json:"usageMetadata"`
	PromptFeedback *geminiPromptFeedback `json:"promptFeedback,omitempty"`
}

type geminiCandidate struct {
	Content      geminiContent `json:"content"`
	FinishReason string        `json:"finishReason"`
}

type geminiUsageMetadata struct {
	PromptTokenCount     int `json:"promptTokenCount"`
	CandidatesTokenCount int `json:"candidatesTokenCount"`
	TotalTokenCount      int `json:"totalTokenCount"`
}

type geminiPromptFeedback struct {
	BlockReason string `json:"blockReason,omitempty"`
}

type geminiError struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

func (c *GoogleClient) Generate(ctx context.Context, prompt string, opts GenerateOptions) (*GenerateResult, error) {
	startTime := time.Now()

	ctx, cancel := withCallTimeout(ctx, opts)
	defer cancel()

	geminiReq := &geminiRequest{
		Contents: []geminiContent{
			{Role: "user", Parts: []geminiPart{{Text: prompt}}},
		},
		GenerationConfig: &geminiGenerationConfig{
			Temperature:     &opts.Temperature,
			MaxOutputTokens: opts.MaxTokens,
			TopP:            opts.TopP,
			StopSequences:   opts.StopSequences,
		},
	}
	if opts.SystemPrompt != "" {
		geminiReq.SystemInstruction = &geminiContent{Parts: []geminiPart{{Text: opts.SystemPrompt}}}
	}
	if opts.JSONMode {
		geminiReq.GenerationConfig.ResponseMimeType = "application/json"
	}

	body, err := json.Marshal(geminiReq)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s:generateContent?key=%s", c.config.BaseURL, c.ModelName(), c.config.APIKey)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

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

	var geminiResp geminiResponse
	if err := json.Unmarshal(respBody, &geminiResp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}

	return c.convertResponse(prompt, &geminiResp, time.Since(startTime).Milliseconds())
}

func (c *GoogleClient) IsAvailable(ctx context.Context) bool {
	url := fmt.Sprintf("%s/models?key=%s", c.config.BaseURL, c.config.APIKey)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return false
	}
	defer func() { _ = resp.Body.Close() }()
	return resp.StatusCode == http.StatusOK
}

func (c *GoogleClient) convertResponse(prompt string, resp *geminiResponse, latencyMs int64) (*GenerateResult, error) {
	if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
		return nil, ErrContentFiltered{Provider: ProviderGoogle, Reason: resp.PromptFeedback.BlockReason}
	}

	var content strings.Builder
	if len(resp.Candidates) > 0 {
		for _, part := range resp.Candidates[0].Content.Parts {
			content.WriteString(part.Text)
		}
	}
	if content.Len() == 0 {
		return nil, ErrEmptyResponse{Provider: ProviderGoogle}
	}

	inputTokens := resp.UsageMetadata.PromptTokenCount
	outputTokens := resp.UsageMetadata.CandidatesTokenCount
	if inputTokens == 0 {
		inputTokens = estimateTokens(prompt)
	}
	if outputTokens == 0 {
		outputTokens = estimateTokens(content.String())
	}

	result := &GenerateResult{
		Content:      content.String(),
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

func (c *GoogleClient) handleErrorResponse(statusCode int, body []byte) error {
	var apiErr geminiError
	if err := json.Unmarshal(body, &apiErr); err != nil {
		return fmt.Errorf("Gemini API error (status %d): %s", statusCode, string(body))
	}

	switch statusCode {
	case http.StatusTooManyRequests:
		return ErrRateLimited{Provider: ProviderGoogle, RetryAfter: 30 * time.Second}
	case http.StatusBadRequest:
		if strings.Contains(apiErr.Error.Message, "exceeds the maximum number of tokens") {
			return ErrContextLengthExceeded{Provider: ProviderGoogle}
		}
	}

	return fmt.Errorf("Gemini API error: %s (status: %s)", apiErr.Error.Message, apiErr.Error.Status)
}
