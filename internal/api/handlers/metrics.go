package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/irfndi/modelmux/internal/analytics"
)

const defaultLogLimit = 50

// UsageLog is the analytics surface behind the metrics endpoints.
type UsageLog interface {
	Metrics() analytics.Metrics
	RecentLogs(n int) []analytics.RequestLogEntry
	ResetMetrics()
}

type MetricsHandler struct {
	usage UsageLog
}

func NewMetricsHandler(usage UsageLog) *MetricsHandler {
	return &MetricsHandler{
		usage: usage,
	}
}

func (h *MetricsHandler) GetMetrics(c *gin.Context) {
	c.JSON(http.StatusOK, h.usage.Metrics())
}

// GetLogs returns recent request log entries, newest first. The limit
// query parameter caps the page size and defaults to 50.
func (h *MetricsHandler) GetLogs(c *gin.Context) {
	limit := defaultLogLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		limit = n
	}

	logs := h.usage.RecentLogs(limit)
	c.JSON(http.StatusOK, gin.H{"logs": logs, "count": len(logs)})
}

func (h *MetricsHandler) ResetMetrics(c *gin.Context) {
	h.usage.ResetMetrics()
	c.JSON(http.StatusOK, gin.H{"message": "Metrics reset"})
}
