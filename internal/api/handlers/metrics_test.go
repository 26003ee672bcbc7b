package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/irfndi/modelmux/internal/ai"
	"github.com/irfndi/modelmux/internal/analytics"
)

func newTestUsageLog() *analytics.RequestLog {
	log := analytics.NewRequestLog(10)
	log.Append(analytics.RequestLogEntry{
		Prompt:      "Write a Python function",
		Category:    ai.CategoryCode,
		SelectedKey: "claude-3-7-sonnet-20250219",
		Provider:    "anthropic",
		CostUsd:     0.0042,
		LatencyMs:   1200,
	})
	log.Append(analytics.RequestLogEntry{
		Prompt:      "What is the capital of France?",
		Category:    ai.CategoryQA,
		SelectedKey: "gpt-4o-mini",
		Provider:    "openai",
		CostUsd:     0.0001,
		LatencyMs:   400,
	})
	log.Append(analytics.RequestLogEntry{
		Prompt:      "Summarize this article",
		Category:    ai.CategorySummarize,
		SelectedKey: "gpt-4o-mini",
		Provider:    "openai",
		CostUsd:     0.0002,
		LatencyMs:   500,
	})
	return log
}

func TestMetricsHandler_GetMetrics(t *testing.T) {
	gin.SetMode(gin.TestMode)

	handler := NewMetricsHandler(newTestUsageLog())

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/metrics", nil)

	handler.GetMetrics(c)

	assert.Equal(t, http.StatusOK, w.Code)

	var metrics analytics.Metrics
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &metrics))
	assert.Equal(t, 3, metrics.TotalRequests)
	assert.InDelta(t, 0.0045, metrics.TotalCostUsd, 1e-9)
	assert.Equal(t, 2, metrics.RequestsByModel["gpt-4o-mini"])
	assert.Equal(t, 1, metrics.RequestsByCategory[ai.CategoryCode])
}

func TestMetricsHandler_GetLogs(t *testing.T) {
	gin.SetMode(gin.TestMode)

	t.Run("returns newest entries first with a limit", func(t *testing.T) {
		handler := NewMetricsHandler(newTestUsageLog())

		w := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(w)
		c.Request = httptest.NewRequest(http.MethodGet, "/logs?limit=2", nil)

		handler.GetLogs(c)

		assert.Equal(t, http.StatusOK, w.Code)

		var resp struct {
			Logs  []analytics.RequestLogEntry `json:"logs"`
			Count int                         `json:"count"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, 2, resp.Count)
		require.Len(t, resp.Logs, 2)
		assert.Equal(t, "Summarize this article", resp.Logs[0].Prompt)
		assert.Equal(t, "What is the capital of France?", resp.Logs[1].Prompt)
	})

	t.Run("defaults to fifty entries", func(t *testing.T) {
		handler := NewMetricsHandler(newTestUsageLog())

		w := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(w)
		c.Request = httptest.NewRequest(http.MethodGet, "/logs", nil)

		handler.GetLogs(c)

		assert.Equal(t, http.StatusOK, w.Code)

		var resp struct {
			Logs  []analytics.RequestLogEntry `json:"logs"`
			Count int                         `json:"count"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, 3, resp.Count)
	})

	t.Run("rejects non-numeric limits", func(t *testing.T) {
		handler := NewMetricsHandler(newTestUsageLog())

		w := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(w)
		c.Request = httptest.NewRequest(http.MethodGet, "/logs?limit=abc", nil)

		handler.GetLogs(c)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, w.Body.String(), "limit must be a positive integer")
	})

	t.Run("rejects non-positive limits", func(t *testing.T) {
		handler := NewMetricsHandler(newTestUsageLog())

		w := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(w)
		c.Request = httptest.NewRequest(http.MethodGet, "/logs?limit=0", nil)

		handler.GetLogs(c)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestMetricsHandler_ResetMetrics(t *testing.T) {
	gin.SetMode(gin.TestMode)

	usage := newTestUsageLog()
	require.Equal(t, 3, usage.Len())

	handler := NewMetricsHandler(usage)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/metrics/reset", nil)

	handler.ResetMetrics(c)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Metrics reset")
	assert.Equal(t, 0, usage.Len())

	metrics := usage.Metrics()
	assert.Equal(t, 0, metrics.TotalRequests)
}
