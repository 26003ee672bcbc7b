package database

import (
	"context"

	"github.com/pashagolub/pgxmock/v3"
)

// MockDBPool adapts a pgxmock pool to the DBPool interface for repository
// tests.
type MockDBPool struct {
	mock pgxmock.PgxPoolIface
}

func NewMockDBPool(mock pgxmock.PgxPoolIface) *MockDBPool {
	return &MockDBPool{mock: mock}
}

func (m *MockDBPool) Query(ctx context.Context, query string, args ...any) (Rows, error) {
	rows, err := m.mock.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return PgxRows{Rows: rows}, nil
}

func (m *MockDBPool) QueryRow(ctx context.Context, query string, args ...any) Row {
	return PgxRow{Row: m.mock.QueryRow(ctx, query, args...)}
}

func (m *MockDBPool) Exec(ctx context.Context, query string, args ...any) (Result, error) {
	tag, err := m.mock.Exec(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return PgxResult{CommandTag: tag}, nil
}

func (m *MockDBPool) Close() {
	m.mock.Close()
}

func (m *MockDBPool) ExpectationsWereMet() error {
	return m.mock.ExpectationsWereMet()
}
