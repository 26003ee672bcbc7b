package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/irfndi/modelmux/internal/ai"
	"github.com/irfndi/modelmux/internal/analytics"
)

// requestLogSchema is portable across PostgreSQL and SQLite. Column types
// stick to the overlap both drivers handle natively.
const requestLogSchema = `
	CREATE TABLE IF NOT EXISTS request_log (
		id TEXT PRIMARY KEY,
		prompt TEXT NOT NULL,
		category TEXT NOT NULL,
		selected_key TEXT NOT NULL DEFAULT '',
		provider TEXT NOT NULL DEFAULT '',
		cost_usd NUMERIC(14, 8) NOT NULL DEFAULT 0,
		latency_ms DOUBLE PRECISION NOT NULL DEFAULT 0,
		quality_score DOUBLE PRECISION NOT NULL DEFAULT 0,
		classification_method TEXT NOT NULL DEFAULT '',
		classification_confidence DOUBLE PRECISION NOT NULL DEFAULT 0,
		preset TEXT NOT NULL DEFAULT '',
		user_id TEXT,
		session_id TEXT,
		error_message TEXT,
		created_at TIMESTAMP NOT NULL
	)`

const requestLogCreatedAtIndex = `
	CREATE INDEX IF NOT EXISTS idx_request_log_created_at
	ON request_log (created_at)`

// RequestArchive persists routing outcomes so analytics survive restarts.
// It mirrors the in-memory request log and is written best-effort by the
// routing service.
type RequestArchive struct {
	pool DBPool
}

// NewRequestArchive creates a repository over any DBPool implementation.
func NewRequestArchive(pool DBPool) *RequestArchive {
	return &RequestArchive{pool: pool}
}

// EnsureSchema creates the request_log table and its indexes when missing.
func (r *RequestArchive) EnsureSchema(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, requestLogSchema); err != nil {
		return fmt.Errorf("failed to create request_log table: %w", err)
	}
	if _, err := r.pool.Exec(ctx, requestLogCreatedAtIndex); err != nil {
		return fmt.Errorf("failed to create request_log index: %w", err)
	}
	return nil
}

// ArchiveRequest inserts one routing outcome. The entry is expected to carry
// the identity assigned by the in-memory log.
func (r *RequestArchive) ArchiveRequest(ctx context.Context, entry analytics.RequestLogEntry) error {
	if entry.ID == "" {
		return fmt.Errorf("request log entry is missing an id")
	}
	createdAt := entry.Timestamp
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	query := `
		INSERT INTO request_log (
			id, prompt, category, selected_key, provider,
			cost_usd, latency_ms, quality_score,
			classification_method, classification_confidence, preset,
			user_id, session_id, error_message, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`

	_, err := r.pool.Exec(ctx, query,
		entry.ID,
		entry.Prompt,
		string(entry.Category),
		entry.SelectedKey,
		entry.Provider,
		decimal.NewFromFloat(entry.CostUsd),
		entry.LatencyMs,
		entry.QualityScore,
		entry.ClassificationMethod,
		entry.ClassificationConfidence,
		string(entry.Preset),
		nullIfEmpty(entry.UserID),
		nullIfEmpty(entry.SessionID),
		nullIfEmpty(entry.Error),
		createdAt,
	)
	if err != nil {
		return fmt.Errorf("failed to archive request %s: %w", entry.ID, err)
	}
	return nil
}

// GetRecentRequests returns up to limit archived entries, newest first.
func (r *RequestArchive) GetRecentRequests(ctx context.Context, limit int) ([]analytics.RequestLogEntry, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT id, prompt, category, selected_key, provider,
			cost_usd, latency_ms, quality_score,
			classification_method, classification_confidence, preset,
			user_id, session_id, error_message, created_at
		FROM request_log
		ORDER BY created_at DESC
		LIMIT $1`

	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []analytics.RequestLogEntry
	for rows.Next() {
		var (
			entry     analytics.RequestLogEntry
			category  string
			preset    string
			cost      decimal.Decimal
			userID    sql.NullString
			sessionID sql.NullString
			errMsg    sql.NullString
		)
		err := rows.Scan(
			&entry.ID,
			&entry.Prompt,
			&category,
			&entry.SelectedKey,
			&entry.Provider,
			&cost,
			&entry.LatencyMs,
			&entry.QualityScore,
			&entry.ClassificationMethod,
			&entry.ClassificationConfidence,
			&preset,
			&userID,
			&sessionID,
			&errMsg,
			&entry.Timestamp,
		)
		if err != nil {
			return nil, err
		}
		entry.Category = ai.Category(category)
		entry.Preset = ai.Preset(preset)
		entry.CostUsd = cost.InexactFloat64()
		entry.UserID = userID.String
		entry.SessionID = sessionID.String
		entry.Error = errMsg.String
		entries = append(entries, entry)
	}

	return entries, rows.Err()
}

// GetCostForPeriod sums archived spend inside [startDate, endDate), optionally
// scoped to one user.
func (r *RequestArchive) GetCostForPeriod(ctx context.Context, startDate, endDate time.Time, userID *string) (decimal.Decimal, error) {
	var cost decimal.Decimal

	if userID != nil {
		query := `
			SELECT COALESCE(SUM(cost_usd), 0)
			FROM request_log
			WHERE created_at >= $1 AND created_at < $2 AND user_id = $3`
		err := r.pool.QueryRow(ctx, query, startDate, endDate, userID).Scan(&cost)
		return cost, err
	}

	query := `
		SELECT COALESCE(SUM(cost_usd), 0)
		FROM request_log
		WHERE created_at >= $1 AND created_at < $2`
	err := r.pool.QueryRow(ctx, query, startDate, endDate).Scan(&cost)
	return cost, err
}

// GetDailyCost sums archived spend for the calendar day containing date.
func (r *RequestArchive) GetDailyCost(ctx context.Context, date time.Time, userID *string) (decimal.Decimal, error) {
	startOfDay := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, date.Location())
	endOfDay := startOfDay.Add(24 * time.Hour)
	return r.GetCostForPeriod(ctx, startOfDay, endOfDay, userID)
}

// GetMonthlyCost sums archived spend for the calendar month containing date.
func (r *RequestArchive) GetMonthlyCost(ctx context.Context, date time.Time, userID *string) (decimal.Decimal, error) {
	startOfMonth := time.Date(date.Year(), date.Month(), 1, 0, 0, 0, 0, date.Location())
	endOfMonth := startOfMonth.AddDate(0, 1, 0)
	return r.GetCostForPeriod(ctx, startOfMonth, endOfMonth, userID)
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
