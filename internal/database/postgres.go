package database

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/irfndi/modelmux/internal/config"
)

// PostgresDB wraps a PostgreSQL connection pool.
type PostgresDB struct {
	Pool   *pgxpool.Pool
	logger *zap.Logger
}

// Ensure PostgresDB implements Database interface.
var _ Database = (*PostgresDB)(nil)

const maxAllowedPoolConns int32 = 10000

// NewPostgresConnection creates a new PostgreSQL connection with the default
// context.
func NewPostgresConnection(cfg *config.DatabaseConfig, logger *zap.Logger) (*PostgresDB, error) {
	return NewPostgresConnectionWithContext(context.Background(), cfg, logger)
}

// NewPostgresConnectionWithContext creates a new PostgreSQL connection with a
// specified context. Connection establishment retries with exponential
// backoff before giving up.
func NewPostgresConnectionWithContext(ctx context.Context, cfg *config.DatabaseConfig, logger *zap.Logger) (*PostgresDB, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	poolConfig, err := buildPGXPoolConfig(cfg)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	var pool *pgxpool.Pool
	for attempts := 0; attempts < 3; attempts++ {
		pool, err = pgxpool.NewWithConfig(ctx, poolConfig)
		if err == nil {
			break
		}
		logger.Warn("Database connection attempt failed",
			zap.Int("attempt", attempts+1),
			zap.Error(err),
		)
		if attempts < 2 {
			backoffDuration := time.Duration(1<<uint(attempts)) * time.Second
			time.Sleep(backoffDuration)
		}
	}

	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool after retries: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger.Info("Successfully connected to PostgreSQL")

	return &PostgresDB{Pool: pool, logger: logger}, nil
}

// Close closes the database connection pool.
func (db *PostgresDB) Close() error {
	if db.Pool != nil {
		db.Pool.Close()
		if db.logger != nil {
			db.logger.Info("PostgreSQL connection closed")
		}
	}
	return nil
}

// HealthCheck verifies the database connection.
func (db *PostgresDB) HealthCheck(ctx context.Context) error {
	if db == nil || db.Pool == nil {
		return fmt.Errorf("postgres pool is not initialized")
	}
	return db.Pool.Ping(ctx)
}

// Query executes a query that returns rows.
func (db *PostgresDB) Query(ctx context.Context, query string, args ...any) (Rows, error) {
	if db == nil || db.Pool == nil {
		return nil, fmt.Errorf("postgres pool is not initialized")
	}

	rows, err := db.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return PgxRows{Rows: rows}, nil
}

// QueryRow executes a query that returns a single row.
func (db *PostgresDB) QueryRow(ctx context.Context, query string, args ...any) Row {
	if db == nil || db.Pool == nil {
		return nil
	}

	return PgxRow{Row: db.Pool.QueryRow(ctx, query, args...)}
}

// Exec executes a query without returning rows.
func (db *PostgresDB) Exec(ctx context.Context, query string, args ...any) (Result, error) {
	if db == nil || db.Pool == nil {
		return nil, fmt.Errorf("postgres pool is not initialized")
	}

	tag, err := db.Pool.Exec(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return PgxResult{CommandTag: tag}, nil
}

func (db *PostgresDB) IsReady() bool {
	return db != nil && db.Pool != nil
}

func buildPGXPoolConfig(cfg *config.DatabaseConfig) (*pgxpool.Config, error) {
	var dsn string

	// Host doubling as a full connection string is a common deployment
	// shortcut; honor it before the discrete fields.
	if strings.HasPrefix(cfg.Host, "postgres://") || strings.HasPrefix(cfg.Host, "postgresql://") {
		dsn = cfg.Host
	} else if cfg.DatabaseURL != "" {
		dsn = cfg.DatabaseURL
	} else {
		dsn = fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, cfg.SSLMode)
	}

	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		poolConfig.MaxConns = clampToSafePoolSize(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		poolConfig.MinConns = clampToSafePoolSize(cfg.MaxIdleConns)
	}

	if poolConfig.MinConns > 0 && poolConfig.MaxConns > 0 && poolConfig.MinConns > poolConfig.MaxConns {
		return nil, fmt.Errorf("invalid pool sizing: min_conns (%d) > max_conns (%d)", poolConfig.MinConns, poolConfig.MaxConns)
	}

	if cfg.ConnMaxLifetime != "" {
		duration, err := time.ParseDuration(cfg.ConnMaxLifetime)
		if err != nil {
			return nil, fmt.Errorf("failed to parse ConnMaxLifetime: %w", err)
		}
		poolConfig.MaxConnLifetime = duration
	}

	if cfg.ConnMaxIdleTime != "" {
		duration, err := time.ParseDuration(cfg.ConnMaxIdleTime)
		if err != nil {
			return nil, fmt.Errorf("failed to parse ConnMaxIdleTime: %w", err)
		}
		poolConfig.MaxConnIdleTime = duration
	}

	poolConfig.ConnConfig.RuntimeParams["application_name"] = "modelmux"
	poolConfig.ConnConfig.Tracer = &PostgresSentryTracer{}

	return poolConfig, nil
}

func clampToSafePoolSize(value int) int32 {
	requested := int64(value)
	if requested <= 0 {
		return 0
	}

	if requested > int64(math.MaxInt32) || requested > int64(maxAllowedPoolConns) {
		return maxAllowedPoolConns
	}

	return int32(requested)
}

// PostgresSentryTracer reports query failures to Sentry and leaves
// breadcrumbs for successful statements. It is a no-op when Sentry is not
// initialised.
type PostgresSentryTracer struct{}

type pgxQuerySpanKey struct{}

func (t *PostgresSentryTracer) TraceQueryStart(ctx context.Context, _ *pgx.Conn, data pgx.TraceQueryStartData) context.Context {
	span := sentry.StartSpan(ctx, "db.sql.query")
	span.Description = truncateSQL(data.SQL)
	return context.WithValue(span.Context(), pgxQuerySpanKey{}, span)
}

func (t *PostgresSentryTracer) TraceQueryEnd(ctx context.Context, _ *pgx.Conn, data pgx.TraceQueryEndData) {
	span, ok := ctx.Value(pgxQuerySpanKey{}).(*sentry.Span)
	if !ok || span == nil {
		return
	}
	if data.Err != nil {
		span.Status = sentry.SpanStatusInternalError
		sentry.CaptureException(data.Err)
	} else {
		span.Status = sentry.SpanStatusOK
	}
	span.Finish()
}

func truncateSQL(query string) string {
	const maxLen = 200
	query = strings.Join(strings.Fields(query), " ")
	if len(query) > maxLen {
		return query[:maxLen]
	}
	return query
}
