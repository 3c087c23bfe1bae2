package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/h10086733/es-admin-sub000/internal/core/domain"
	"github.com/h10086733/es-admin-sub000/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.RowStore = (*RowStore)(nil)

// cursorTimeLayout is how time bounds are bound as parameters. Sending a
// string keeps drivers from converting the value between time zones.
const cursorTimeLayout = "2006-01-02 15:04:05.000000"

// RowStore implements driven.RowStore on PostgreSQL or MySQL
type RowStore struct {
	db *DB
}

// NewRowStore creates a new RowStore
func NewRowStore(db *DB) *RowStore {
	return &RowStore{db: db}
}

// TableExists checks whether table is present in the current schema
func (s *RowStore) TableExists(ctx context.Context, table string) (bool, error) {
	if err := validate(table); err != nil {
		return false, err
	}

	var n int64
	if err := s.db.QueryRowContext(ctx, s.db.dialect.tableExists, table).Scan(&n); err != nil {
		return false, fmt.Errorf("check table %s: %w", table, err)
	}
	return n > 0, nil
}

// EnsureIndex creates the named index on table if it does not exist
func (s *RowStore) EnsureIndex(ctx context.Context, table, name string, columns ...string) error {
	if len(columns) == 0 {
		return fmt.Errorf("%w: index %s has no columns", domain.ErrInvalidInput, name)
	}
	if err := validate(append([]string{table, name}, columns...)...); err != nil {
		return err
	}

	d := s.db.dialect
	if d.indexExists != "" {
		var n int64
		if err := s.db.QueryRowContext(ctx, d.indexExists, table, name).Scan(&n); err != nil {
			return fmt.Errorf("check index %s: %w", name, err)
		}
		if n > 0 {
			return nil
		}
	}

	if _, err := s.db.ExecContext(ctx, d.createIndex(table, name, columns)); err != nil {
		return fmt.Errorf("create index %s on %s: %w", name, table, err)
	}
	return nil
}

// ColumnIsTemporal reports whether column is a date, datetime or timestamp column.
// Time bounds compare correctly only against those; a text column holding
// dates would compare the bound as a string.
func (s *RowStore) ColumnIsTemporal(ctx context.Context, table, column string) (bool, error) {
	if err := validate(table, column); err != nil {
		return false, err
	}

	var dataType string
	err := s.db.QueryRowContext(ctx, s.db.dialect.columnType, table, column).Scan(&dataType)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("column type %s.%s: %w", table, column, err)
	}
	return temporalType(dataType), nil
}

// Count returns the number of rows in table
func (s *RowStore) Count(ctx context.Context, table string) (int64, error) {
	if err := validate(table); err != nil {
		return 0, err
	}

	var n int64
	query := "SELECT COUNT(*) FROM " + s.db.dialect.quote(table)
	if err := s.db.QueryRowContext(ctx, query).Scan(&n); err != nil {
		return 0, fmt.Errorf("count %s: %w", table, err)
	}
	return n, nil
}

// FetchAfterID returns up to q.Limit rows with id > q.AfterID ordered by id
func (s *RowStore) FetchAfterID(ctx context.Context, q driven.IDQuery) ([]domain.Row, error) {
	if err := validate(q.Table, q.IDColumn); err != nil {
		return nil, err
	}

	d := s.db.dialect
	id := d.quote(q.IDColumn)
	query := "SELECT * FROM " + d.quote(q.Table)
	var args []any
	if q.AfterID != nil {
		args = append(args, *q.AfterID)
		query += " WHERE " + id + " > " + d.placeholder(len(args))
	}
	args = append(args, q.Limit)
	query += " ORDER BY " + id + " LIMIT " + d.placeholder(len(args))

	return s.query(ctx, query, args...)
}

// FetchAfterTimeID returns up to q.Limit rows past q.After ordered by
// (modify_time, id). Rows with a NULL modify time are never returned.
func (s *RowStore) FetchAfterTimeID(ctx context.Context, q driven.TimeIDQuery) ([]domain.Row, error) {
	if err := validate(q.Table, q.IDColumn, q.ModifyTimeColumn); err != nil {
		return nil, err
	}

	d := s.db.dialect
	id := d.quote(q.IDColumn)
	mt := d.quote(q.ModifyTimeColumn)
	query := "SELECT * FROM " + d.quote(q.Table) + " WHERE " + mt + " IS NOT NULL"
	var args []any
	if q.After != nil {
		bound := q.After.LastModifyTime.Format(cursorTimeLayout)
		args = append(args, bound, bound, q.After.LastID)
		query += fmt.Sprintf(" AND (%s > %s OR (%s = %s AND %s > %s))",
			mt, d.placeholder(1), mt, d.placeholder(2), id, d.placeholder(3))
	}
	args = append(args, q.Limit)
	query += " ORDER BY " + mt + ", " + id + " LIMIT " + d.placeholder(len(args))

	return s.query(ctx, query, args...)
}

// LoadNames reads an id -> display name map from a reference table
func (s *RowStore) LoadNames(ctx context.Context, table, idColumn, nameColumn string) (map[string]string, error) {
	if err := validate(table, idColumn, nameColumn); err != nil {
		return nil, err
	}

	d := s.db.dialect
	query := fmt.Sprintf("SELECT %s, %s FROM %s", d.quote(idColumn), d.quote(nameColumn), d.quote(table))
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("load names from %s: %w", table, err)
	}
	defer rows.Close()

	names := make(map[string]string)
	for rows.Next() {
		var id, name any
		if err := rows.Scan(&id, &name); err != nil {
			return nil, fmt.Errorf("scan %s: %w", table, err)
		}
		key := domain.ValueOf(id).String()
		if key == "" {
			continue
		}
		names[key] = domain.ValueOf(name).String()
	}
	return names, rows.Err()
}

// Ping checks if the database is reachable
func (s *RowStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *RowStore) query(ctx context.Context, query string, args ...any) ([]domain.Row, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()
	return scanRows(rows)
}

// scanRows reads every remaining row in column order.
func scanRows(rows *sql.Rows) ([]domain.Row, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var out []domain.Row
	for rows.Next() {
		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan row %d: %w", len(out), err)
		}
		out = append(out, domain.NewRow(columns, values))
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
