package mocks

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/h10086733/es-admin-sub000/internal/core/domain"
	"github.com/h10086733/es-admin-sub000/internal/core/ports/driven"
)

// MockRowStore is an in-memory RowStore. Tables are plain row slices; the
// fetch methods honour the same ordering and bounds as the SQL adapter.
type MockRowStore struct {
	mu      sync.Mutex
	tables  map[string][]domain.Row
	indexes map[string][]string
	names   map[string]map[string]string

	// Call counters (for test assertions)
	IDFetches     int
	TimeIDFetches int

	// Custom behavior hooks (optional)
	EnsureIndexFn      func(table, name string, columns []string) error
	CountFn            func(table string) (int64, error)
	ColumnIsTemporalFn func(table, column string) (bool, error)
	FetchAfterIDFn     func(q driven.IDQuery) ([]domain.Row, error)
	FetchAfterTimeIDFn func(q driven.TimeIDQuery) ([]domain.Row, error)
	LoadNamesFn        func(table, idColumn, nameColumn string) (map[string]string, error)
}

// NewMockRowStore creates an empty store.
func NewMockRowStore() *MockRowStore {
	return &MockRowStore{
		tables:  make(map[string][]domain.Row),
		indexes: make(map[string][]string),
		names:   make(map[string]map[string]string),
	}
}

// CreateTable registers an empty table.
func (m *MockRowStore) CreateTable(table string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tables[table]; !ok {
		m.tables[table] = nil
	}
}

// Put inserts a row, replacing any existing row with the same id.
func (m *MockRowStore) Put(table, idColumn string, row domain.Row) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, _ := row.ID(idColumn)
	rows := m.tables[table]
	for i, existing := range rows {
		if eid, _ := existing.ID(idColumn); eid == id {
			rows[i] = row
			return
		}
	}
	m.tables[table] = append(rows, row)
}

// SetNames sets the reference map returned by LoadNames for table.
func (m *MockRowStore) SetNames(table string, names map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.names[table] = names
}

// Indexes returns the index names created on table.
func (m *MockRowStore) Indexes(table string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.indexes[table]...)
}

func (m *MockRowStore) TableExists(ctx context.Context, table string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.tables[table]
	return ok, nil
}

func (m *MockRowStore) EnsureIndex(ctx context.Context, table, name string, columns ...string) error {
	if m.EnsureIndexFn != nil {
		if err := m.EnsureIndexFn(table, name, columns); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tables[table]; !ok {
		return fmt.Errorf("table %s: %w", table, domain.ErrTableNotFound)
	}
	for _, existing := range m.indexes[table] {
		if existing == name {
			return nil
		}
	}
	m.indexes[table] = append(m.indexes[table], name)
	return nil
}

// ColumnIsTemporal reports true unless ColumnIsTemporalFn says otherwise.
func (m *MockRowStore) ColumnIsTemporal(ctx context.Context, table, column string) (bool, error) {
	if m.ColumnIsTemporalFn != nil {
		return m.ColumnIsTemporalFn(table, column)
	}
	return true, nil
}

func (m *MockRowStore) Count(ctx context.Context, table string) (int64, error) {
	if m.CountFn != nil {
		return m.CountFn(table)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.tables[table])), nil
}

func (m *MockRowStore) FetchAfterID(ctx context.Context, q driven.IDQuery) ([]domain.Row, error) {
	m.mu.Lock()
	m.IDFetches++
	m.mu.Unlock()
	if m.FetchAfterIDFn != nil {
		return m.FetchAfterIDFn(q)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Row
	for _, row := range m.tables[q.Table] {
		id, ok := row.ID(q.IDColumn)
		if !ok {
			continue
		}
		if q.AfterID != nil && id <= *q.AfterID {
			continue
		}
		out = append(out, row)
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, _ := out[i].ID(q.IDColumn)
		b, _ := out[j].ID(q.IDColumn)
		return a < b
	})
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func (m *MockRowStore) FetchAfterTimeID(ctx context.Context, q driven.TimeIDQuery) ([]domain.Row, error) {
	m.mu.Lock()
	m.TimeIDFetches++
	m.mu.Unlock()
	if m.FetchAfterTimeIDFn != nil {
		return m.FetchAfterTimeIDFn(q)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Row
	for _, row := range m.tables[q.Table] {
		id, ok := row.ID(q.IDColumn)
		if !ok {
			continue
		}
		mt, ok := row.Get(q.ModifyTimeColumn).AsTime()
		if !ok {
			continue
		}
		if q.After != nil && !q.After.After(mt, id) {
			continue
		}
		out = append(out, row)
	}
	sort.SliceStable(out, func(i, j int) bool {
		ti, _ := out[i].Get(q.ModifyTimeColumn).AsTime()
		tj, _ := out[j].Get(q.ModifyTimeColumn).AsTime()
		if !ti.Equal(tj) {
			return ti.Before(tj)
		}
		a, _ := out[i].ID(q.IDColumn)
		b, _ := out[j].ID(q.IDColumn)
		return a < b
	})
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func (m *MockRowStore) LoadNames(ctx context.Context, table, idColumn, nameColumn string) (map[string]string, error) {
	if m.LoadNamesFn != nil {
		return m.LoadNamesFn(table, idColumn, nameColumn)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	names, ok := m.names[table]
	if !ok {
		return nil, fmt.Errorf("table %s: %w", table, domain.ErrTableNotFound)
	}
	out := make(map[string]string, len(names))
	for k, v := range names {
		out[k] = v
	}
	return out, nil
}

func (m *MockRowStore) Ping(ctx context.Context) error {
	return nil
}

var _ driven.RowStore = (*MockRowStore)(nil)
