package database

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// SlowQuery aggregates the executions of one normalized statement that
// crossed the logging threshold.
type SlowQuery struct {
	Query       string        `json:"query"`
	Table       string        `json:"table"`
	AvgDuration time.Duration `json:"avg_duration"`
	LastSeen    time.Time     `json:"last_seen"`
	Count       int           `json:"count"`
}

// SlowQueryLog keeps a bounded in-memory aggregate of slow archive
// statements, keyed by normalized query text. Oldest entries are evicted
// once the cap is reached.
type SlowQueryLog struct {
	mu         sync.RWMutex
	entries    map[string]*SlowQuery
	maxEntries int
	threshold  time.Duration
	logger     *zap.Logger
}

// NewSlowQueryLog creates a slow query log. Non-positive arguments fall
// back to a 250ms threshold and 100 tracked statements.
func NewSlowQueryLog(threshold time.Duration, maxEntries int, logger *zap.Logger) *SlowQueryLog {
	if threshold <= 0 {
		threshold = 250 * time.Millisecond
	}
	if maxEntries <= 0 {
		maxEntries = 100
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SlowQueryLog{
		entries:    make(map[string]*SlowQuery),
		maxEntries: maxEntries,
		threshold:  threshold,
		logger:     logger,
	}
}

// Observe records one execution. Statements faster than the threshold are
// ignored.
func (l *SlowQueryLog) Observe(query string, duration time.Duration) {
	if duration < l.threshold {
		return
	}

	key := hashStatement(query)
	table := tableForStatement(query)

	l.logger.Warn("Slow archive query",
		zap.String("table", table),
		zap.Duration("duration", duration),
		zap.String("query", truncateSQL(query)),
	)

	l.mu.Lock()
	defer l.mu.Unlock()

	if existing, ok := l.entries[key]; ok {
		existing.AvgDuration = (existing.AvgDuration*time.Duration(existing.Count) + duration) / time.Duration(existing.Count+1)
		existing.Count++
		existing.LastSeen = time.Now()
		return
	}

	l.entries[key] = &SlowQuery{
		Query:       truncateSQL(query),
		Table:       table,
		AvgDuration: duration,
		LastSeen:    time.Now(),
		Count:       1,
	}
	if len(l.entries) > l.maxEntries {
		l.evictOldest()
	}
}

// Snapshot returns a copy of every tracked statement.
func (l *SlowQueryLog) Snapshot() []SlowQuery {
	l.mu.RLock()
	defer l.mu.RUnlock()

	result := make([]SlowQuery, 0, len(l.entries))
	for _, q := range l.entries {
		result = append(result, *q)
	}
	return result
}

// ByTable returns the tracked statements touching one table.
func (l *SlowQueryLog) ByTable(table string) []SlowQuery {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var result []SlowQuery
	for _, q := range l.entries {
		if q.Table == table {
			result = append(result, *q)
		}
	}
	return result
}

// Reset drops every tracked statement.
func (l *SlowQueryLog) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = make(map[string]*SlowQuery)
}

func (l *SlowQueryLog) evictOldest() {
	var oldestKey string
	var oldestTime time.Time

	for key, q := range l.entries {
		if oldestTime.IsZero() || q.LastSeen.Before(oldestTime) {
			oldestTime = q.LastSeen
			oldestKey = key
		}
	}
	if oldestKey != "" {
		delete(l.entries, oldestKey)
	}
}

func hashStatement(query string) string {
	normalized := strings.ToLower(strings.TrimSpace(query))
	normalized = strings.Join(strings.Fields(normalized), " ")
	hash := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(hash[:])
}

func tableForStatement(query string) string {
	query = strings.ToLower(query)

	keywords := []string{"from", "into", "update", "table"}
	for _, keyword := range keywords {
		idx := strings.Index(query, keyword)
		if idx < 0 {
			continue
		}
		rest := strings.TrimSpace(query[idx+len(keyword):])
		parts := strings.Fields(rest)
		// CREATE TABLE IF NOT EXISTS puts qualifiers before the name.
		for len(parts) > 0 && (parts[0] == "if" || parts[0] == "not" || parts[0] == "exists") {
			parts = parts[1:]
		}
		if len(parts) > 0 {
			return strings.Trim(parts[0], "()\",;")
		}
	}
	return "unknown"
}

// InstrumentedPool wraps a DBPool and feeds statement timings into a
// SlowQueryLog. Timings cover statement issue, not row consumption.
type InstrumentedPool struct {
	pool    DBPool
	slowLog *SlowQueryLog
}

// NewInstrumentedPool wraps pool so every statement is observed by slowLog.
func NewInstrumentedPool(pool DBPool, slowLog *SlowQueryLog) *InstrumentedPool {
	return &InstrumentedPool{pool: pool, slowLog: slowLog}
}

func (p *InstrumentedPool) Query(ctx context.Context, query string, args ...any) (Rows, error) {
	start := time.Now()
	rows, err := p.pool.Query(ctx, query, args...)
	p.slowLog.Observe(query, time.Since(start))
	return rows, err
}

func (p *InstrumentedPool) QueryRow(ctx context.Context, query string, args ...any) Row {
	start := time.Now()
	row := p.pool.QueryRow(ctx, query, args...)
	p.slowLog.Observe(query, time.Since(start))
	return row
}

func (p *InstrumentedPool) Exec(ctx context.Context, query string, args ...any) (Result, error) {
	start := time.Now()
	result, err := p.pool.Exec(ctx, query, args...)
	p.slowLog.Observe(query, time.Since(start))
	return result, err
}
