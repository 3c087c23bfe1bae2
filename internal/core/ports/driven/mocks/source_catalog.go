package mocks

import (
	"context"
	"sort"
	"sync"

	"github.com/h10086733/es-admin-sub000/internal/core/domain"
	"github.com/h10086733/es-admin-sub000/internal/core/ports/driven"
)

// MockSourceCatalog is an in-memory SourceCatalog
type MockSourceCatalog struct {
	mu      sync.RWMutex
	sources map[string]*domain.Source
}

// NewMockSourceCatalog creates a catalog holding sources.
func NewMockSourceCatalog(sources ...*domain.Source) *MockSourceCatalog {
	m := &MockSourceCatalog{sources: make(map[string]*domain.Source)}
	for _, s := range sources {
		m.sources[s.ID] = s
	}
	return m
}

// Add registers a source.
func (m *MockSourceCatalog) Add(source *domain.Source) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sources[source.ID] = source
}

func (m *MockSourceCatalog) Get(ctx context.Context, id string) (*domain.Source, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sources[id]
	if !ok {
		return nil, domain.ErrSourceNotFound
	}
	return s, nil
}

func (m *MockSourceCatalog) List(ctx context.Context) ([]*domain.Source, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*domain.Source, 0, len(m.sources))
	for _, s := range m.sources {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

var _ driven.SourceCatalog = (*MockSourceCatalog)(nil)
