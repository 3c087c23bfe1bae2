package driven

import (
	"context"

	"github.com/h10086733/es-admin-sub000/internal/core/domain"
)

// IDQuery selects one page of rows by ascending id
type IDQuery struct {
	Table    string
	IDColumn string
	// AfterID is the exclusive lower bound. Nil means unbounded.
	AfterID *int64
	Limit   int
}

// TimeIDQuery selects one page of rows by ascending (modify_time, id)
type TimeIDQuery struct {
	Table            string
	IDColumn         string
	ModifyTimeColumn string
	// After is the exclusive lower bound. Nil means unbounded.
	After *domain.TimeIDCursor
	Limit int
}

// RowStore reads form tables from the relational database (PostgreSQL or MySQL).
// Implementations must close every result set before returning.
type RowStore interface {
	// TableExists checks whether table is present in the current schema
	TableExists(ctx context.Context, table string) (bool, error)

	// EnsureIndex creates the named index on table if it does not exist
	EnsureIndex(ctx context.Context, table, name string, columns ...string) error

	// ColumnIsTemporal reports whether column has a date or timestamp type.
	// A missing column reports false.
	ColumnIsTemporal(ctx context.Context, table, column string) (bool, error)

	// Count returns the number of rows in table
	Count(ctx context.Context, table string) (int64, error)

	// FetchAfterID returns up to q.Limit rows with id > q.AfterID ordered by id
	FetchAfterID(ctx context.Context, q IDQuery) ([]domain.Row, error)

	// FetchAfterTimeID returns up to q.Limit rows past q.After ordered by (modify_time, id).
	// Rows with a NULL modify time are never returned.
	FetchAfterTimeID(ctx context.Context, q TimeIDQuery) ([]domain.Row, error)

	// LoadNames reads an id -> display name map from a reference table
	LoadNames(ctx context.Context, table, idColumn, nameColumn string) (map[string]string, error)

	// Ping checks if the database is reachable
	Ping(ctx context.Context) error
}
