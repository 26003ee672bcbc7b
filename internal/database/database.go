// Package database provides the optional durable archive for routing
// outcomes, backed by either PostgreSQL or SQLite behind a shared
// driver-agnostic query interface.
package database

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/irfndi/modelmux/internal/config"
)

// Database abstracts both PostgreSQL and SQLite connections.
// Use this interface for all database operations to keep the archive
// driver-agnostic.
type Database interface {
	DBPool
	Close() error
	IsReady() bool
	HealthCheck(ctx context.Context) error
}

// DBType enumerates supported database drivers.
type DBType string

const (
	DBTypeSQLite   DBType = "sqlite"
	DBTypePostgres DBType = "postgres"
)

// NewDatabaseConnection creates a database connection based on the driver
// configuration. It supports both SQLite and PostgreSQL drivers.
func NewDatabaseConnection(cfg *config.DatabaseConfig, logger *zap.Logger) (Database, error) {
	return NewDatabaseConnectionWithContext(context.Background(), cfg, logger)
}

// NewDatabaseConnectionWithContext creates a database connection with a
// specified context.
func NewDatabaseConnectionWithContext(ctx context.Context, cfg *config.DatabaseConfig, logger *zap.Logger) (Database, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	switch driver {
	case "sqlite", "sqlite3":
		path := cfg.SQLitePath
		if path == "" {
			path = "modelmux.db"
		}
		logger.Info("Connecting to SQLite archive", zap.String("path", path))
		return NewSQLiteConnection(path)

	case "postgres", "postgresql", "pgx":
		logger.Info("Connecting to PostgreSQL archive",
			zap.String("host", cfg.Host),
			zap.Int("port", cfg.Port),
			zap.String("dbname", cfg.DBName),
		)
		return NewPostgresConnectionWithContext(ctx, cfg, logger)

	default:
		return nil, fmt.Errorf("unsupported database driver: %s (supported: sqlite, postgres)", driver)
	}
}

// DetectDBType detects the database type from the driver string.
func DetectDBType(driver string) DBType {
	driver = strings.ToLower(strings.TrimSpace(driver))
	switch driver {
	case "sqlite", "sqlite3":
		return DBTypeSQLite
	case "postgres", "postgresql", "pgx":
		return DBTypePostgres
	default:
		return DBTypeSQLite
	}
}

// NormalizeDriver normalizes the driver string to a canonical form.
func NormalizeDriver(driver string) string {
	return string(DetectDBType(driver))
}
