package mocks

import (
	"sync"
	"time"

	"github.com/h10086733/es-admin-sub000/internal/core/domain"
	"github.com/h10086733/es-admin-sub000/internal/core/ports/driven"
)

// MockMetricsRecorder records calls for assertions
type MockMetricsRecorder struct {
	mu       sync.Mutex
	Indexed  map[string]int
	Failed   map[string]int
	Started  int
	Finished map[string]domain.SyncStatus
}

// NewMockMetricsRecorder creates an empty recorder.
func NewMockMetricsRecorder() *MockMetricsRecorder {
	return &MockMetricsRecorder{
		Indexed:  make(map[string]int),
		Failed:   make(map[string]int),
		Finished: make(map[string]domain.SyncStatus),
	}
}

func (m *MockMetricsRecorder) RecordRows(sourceID string, strategy domain.StrategyKind, indexed, failed int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Indexed[sourceID] += indexed
	m.Failed[sourceID] += failed
}

func (m *MockMetricsRecorder) RunStarted(sourceID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Started++
}

func (m *MockMetricsRecorder) RunFinished(sourceID string, status domain.SyncStatus, elapsed time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Finished[sourceID] = status
}

// Status returns the last recorded terminal status for a source.
func (m *MockMetricsRecorder) Status(sourceID string) domain.SyncStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Finished[sourceID]
}

var _ driven.MetricsRecorder = (*MockMetricsRecorder)(nil)
