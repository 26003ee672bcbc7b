// Package analytics keeps an in-memory log of routing outcomes and
// aggregates them into usage metrics. Entries live in a bounded buffer;
// nothing here touches durable storage.
package analytics

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/irfndi/modelmux/internal/ai"
)

// DefaultCapacity bounds the request log. Oldest entries are evicted first.
const DefaultCapacity = 1000

// sufficientConfidence is the threshold a classification must clear to
// count as accurate in the aggregate metrics.
const sufficientConfidence = 0.6

// RequestLogEntry records one routed request, successful or not.
type RequestLogEntry struct {
	ID                       string      `json:"id"`
	Prompt                   string      `json:"prompt"`
	Category                 ai.Category `json:"category"`
	SelectedKey              string      `json:"selected_key"`
	Provider                 string      `json:"provider"`
	CostUsd                  float64     `json:"cost_usd"`
	LatencyMs                float64     `json:"latency_ms"`
	QualityScore             float64     `json:"quality_score"`
	ClassificationMethod     string      `json:"classification_method"`
	ClassificationConfidence float64     `json:"classification_confidence"`
	Preset                   ai.Preset   `json:"priority_preset"`
	Timestamp                time.Time   `json:"timestamp"`
	UserID                   string      `json:"user_id,omitempty"`
	SessionID                string      `json:"session_id,omitempty"`
	Error                    string      `json:"error,omitempty"`
}

// Metrics is an aggregate view over every entry currently in the log.
type Metrics struct {
	TotalRequests          int                 `json:"total_requests"`
	TotalCostUsd           float64             `json:"total_cost_usd"`
	AvgLatencyMs           float64             `json:"avg_latency_ms"`
	RequestsByModel        map[string]int      `json:"requests_by_model"`
	RequestsByCategory     map[ai.Category]int `json:"requests_by_category"`
	EstimatedSavingsUsd    float64             `json:"estimated_savings_usd"`
	ClassificationAccuracy float64             `json:"classification_accuracy"`
}

// RequestLog is a mutex-guarded bounded buffer of request outcomes.
type RequestLog struct {
	mu       sync.RWMutex
	capacity int
	entries  []RequestLogEntry
}

// NewRequestLog creates a request log. A non-positive capacity falls back
// to DefaultCapacity.
func NewRequestLog(capacity int) *RequestLog {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &RequestLog{
		capacity: capacity,
		entries:  make([]RequestLogEntry, 0, capacity),
	}
}

// Append records an outcome, assigning an ID and timestamp when the caller
// left them empty. Append and eviction happen under one lock.
func (l *RequestLog) Append(entry RequestLogEntry) RequestLogEntry {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.entries = append(l.entries, entry)
	if len(l.entries) > l.capacity {
		l.entries = l.entries[len(l.entries)-l.capacity:]
	}
	return entry
}

// RecentLogs returns up to n entries, newest first. A non-positive n or one
// beyond the current size returns everything.
func (l *RequestLog) RecentLogs(n int) []RequestLogEntry {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if n <= 0 || n > len(l.entries) {
		n = len(l.entries)
	}

	out := make([]RequestLogEntry, n)
	for i := 0; i < n; i++ {
		out[i] = l.entries[len(l.entries)-1-i]
	}
	return out
}

// Len reports how many entries are currently retained.
func (l *RequestLog) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

// Metrics aggregates the retained entries in one pass. Failed requests
// count toward totals like any other outcome.
func (l *RequestLog) Metrics() Metrics {
	l.mu.RLock()
	defer l.mu.RUnlock()

	m := Metrics{
		RequestsByModel:    make(map[string]int),
		RequestsByCategory: make(map[ai.Category]int),
	}
	if len(l.entries) == 0 {
		return m
	}

	var latencySum float64
	var accurate int
	for _, entry := range l.entries {
		m.TotalRequests++
		m.TotalCostUsd += entry.CostUsd
		latencySum += entry.LatencyMs
		if entry.SelectedKey != "" {
			m.RequestsByModel[entry.SelectedKey]++
		}
		m.RequestsByCategory[entry.Category]++
		if entry.ClassificationConfidence > sufficientConfidence {
			accurate++
		}
	}

	m.AvgLatencyMs = latencySum / float64(m.TotalRequests)
	// Naive savings estimate: a flat 20% of observed spend.
	m.EstimatedSavingsUsd = 0.2 * m.TotalCostUsd
	m.ClassificationAccuracy = float64(accurate) / float64(m.TotalRequests)
	return m
}

// ResetMetrics clears the log. Aggregates derive from retained entries, so
// clearing them resets both.
func (l *RequestLog) ResetMetrics() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = make([]RequestLogEntry, 0, l.capacity)
}
