package mocks

import (
	"context"
	"sort"
	"sync"

	"github.com/h10086733/es-admin-sub000/internal/core/domain"
	"github.com/h10086733/es-admin-sub000/internal/core/ports/driven"
)

// MockSearchIndex is an in-memory SearchIndex keyed by index then document id
type MockSearchIndex struct {
	mu       sync.RWMutex
	indexes  map[string]map[string]*domain.Document
	mappings map[string]domain.IndexMapping

	// Requests counts Bulk calls, including failed ones
	Requests int

	// Custom behavior hooks (optional). BulkFn runs before the documents are
	// stored; returning an error drops the whole request.
	EnsureIndexFn func(index string) error
	BulkFn        func(index string, docs []*domain.Document) (*driven.BulkResponse, error)
	RefreshFn     func(index string) error
	AllIDsFn      func(index string) ([]int64, error)
	HealthFn      func() error
}

// NewMockSearchIndex creates an empty index set.
func NewMockSearchIndex() *MockSearchIndex {
	return &MockSearchIndex{
		indexes:  make(map[string]map[string]*domain.Document),
		mappings: make(map[string]domain.IndexMapping),
	}
}

func (m *MockSearchIndex) EnsureIndex(ctx context.Context, index string, mapping domain.IndexMapping) error {
	if m.EnsureIndexFn != nil {
		if err := m.EnsureIndexFn(index); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.indexes[index]; !ok {
		m.indexes[index] = make(map[string]*domain.Document)
		m.mappings[index] = mapping
	}
	return nil
}

func (m *MockSearchIndex) Bulk(ctx context.Context, index string, docs []*domain.Document) (*driven.BulkResponse, error) {
	m.mu.Lock()
	m.Requests++
	m.mu.Unlock()

	resp := &driven.BulkResponse{}
	if m.BulkFn != nil {
		r, err := m.BulkFn(index, docs)
		if err != nil {
			return nil, err
		}
		if r != nil {
			resp = r
		}
	}
	failed := make(map[string]bool)
	for _, item := range resp.Failures() {
		failed[item.DocumentID] = true
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.indexes[index] == nil {
		m.indexes[index] = make(map[string]*domain.Document)
	}
	if len(resp.Items) == 0 {
		for _, doc := range docs {
			resp.Items = append(resp.Items, driven.BulkItemResult{DocumentID: doc.ID, Status: 200})
		}
	}
	for _, doc := range docs {
		if !failed[doc.ID] {
			m.indexes[index][doc.ID] = doc
		}
	}
	return resp, nil
}

func (m *MockSearchIndex) Refresh(ctx context.Context, index string) error {
	if m.RefreshFn != nil {
		return m.RefreshFn(index)
	}
	return nil
}

func (m *MockSearchIndex) AllIDs(ctx context.Context, index string, pageSize int) ([]int64, error) {
	if m.AllIDsFn != nil {
		return m.AllIDsFn(index)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]int64, 0, len(m.indexes[index]))
	for _, doc := range m.indexes[index] {
		ids = append(ids, doc.RowID)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func (m *MockSearchIndex) LatestCursor(ctx context.Context, index string) (*domain.TimeIDCursor, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var latest *domain.TimeIDCursor
	for _, doc := range m.indexes[index] {
		v, ok := doc.Fields.Get(domain.MetaModifyTime)
		if !ok {
			continue
		}
		t, ok := v.AsTime()
		if !ok {
			continue
		}
		if latest == nil {
			latest = &domain.TimeIDCursor{LastModifyTime: t, LastID: doc.RowID}
			continue
		}
		latest.Advance(t, doc.RowID)
	}
	return latest, nil
}

func (m *MockSearchIndex) HealthCheck(ctx context.Context) error {
	if m.HealthFn != nil {
		return m.HealthFn()
	}
	return nil
}

// Seed stores documents directly, bypassing Bulk.
func (m *MockSearchIndex) Seed(index string, docs ...*domain.Document) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.indexes[index] == nil {
		m.indexes[index] = make(map[string]*domain.Document)
	}
	for _, doc := range docs {
		m.indexes[index][doc.ID] = doc
	}
}

// Document returns a stored document.
func (m *MockSearchIndex) Document(index, id string) (*domain.Document, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	doc, ok := m.indexes[index][id]
	return doc, ok
}

// Count returns the number of documents in index.
func (m *MockSearchIndex) Count(index string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.indexes[index])
}

// HasIndex reports whether index was created.
func (m *MockSearchIndex) HasIndex(index string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.indexes[index]
	return ok
}

// Mapping returns the mapping an index was created with.
func (m *MockSearchIndex) Mapping(index string) domain.IndexMapping {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.mappings[index]
}

var _ driven.SearchIndex = (*MockSearchIndex)(nil)
