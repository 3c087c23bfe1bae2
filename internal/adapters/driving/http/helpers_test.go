package http

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/h10086733/es-admin-sub000/internal/core/domain"
	"github.com/h10086733/es-admin-sub000/internal/core/ports/driven/mocks"
	"github.com/h10086733/es-admin-sub000/internal/core/ports/driving"
)

// Mock services for testing

type mockTracker struct {
	mu      sync.Mutex
	started []string
	startFn func(sourceID string, fullSync bool) (string, error)
	tasks   map[string]domain.ProgressSnapshot
	results map[string]*domain.SyncResult
	subs    map[string]*mockSubscription
}

func newMockTracker() *mockTracker {
	return &mockTracker{
		tasks:   make(map[string]domain.ProgressSnapshot),
		results: make(map[string]*domain.SyncResult),
		subs:    make(map[string]*mockSubscription),
	}
}

func (m *mockTracker) Start(ctx context.Context, sourceID string, fullSync bool) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.startFn != nil {
		taskID, err := m.startFn(sourceID, fullSync)
		if err != nil {
			return "", err
		}
		m.started = append(m.started, sourceID)
		return taskID, nil
	}
	m.started = append(m.started, sourceID)
	return "task-" + sourceID, nil
}

func (m *mockTracker) Get(taskID string) (domain.ProgressSnapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	snap, ok := m.tasks[taskID]
	if !ok {
		return domain.ProgressSnapshot{}, domain.ErrNotFound
	}
	return snap, nil
}

func (m *mockTracker) Result(taskID string) (*domain.SyncResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tasks[taskID]; !ok {
		return nil, domain.ErrNotFound
	}
	return m.results[taskID], nil
}

func (m *mockTracker) Subscribe(taskID string) (driving.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sub, ok := m.subs[taskID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return sub, nil
}

type mockSubscription struct {
	ch     chan domain.TaskEvent
	once   sync.Once
	closed chan struct{}
}

func newMockSubscription(events ...domain.TaskEvent) *mockSubscription {
	s := &mockSubscription{ch: make(chan domain.TaskEvent, len(events)+1), closed: make(chan struct{})}
	for _, ev := range events {
		s.ch <- ev
	}
	return s
}

func (s *mockSubscription) Events() <-chan domain.TaskEvent { return s.ch }

func (s *mockSubscription) Close() {
	s.once.Do(func() { close(s.closed) })
}

func (s *mockSubscription) isClosed() bool {
	select {
	case <-s.closed:
		return true
	default:
		return false
	}
}

type testServer struct {
	server   *Server
	handler  http.Handler
	catalog  *mocks.MockSourceCatalog
	tracker  *mockTracker
	verifier *mocks.MockTokenVerifier
}

func leaveSource() *domain.Source {
	return &domain.Source{
		ID:       "leave",
		Name:     "Leave Request",
		Table:    "form_leave",
		AutoSync: true,
		Fields: []domain.Field{
			{Name: "title", Type: domain.FieldTypeText, Label: "Title"},
		},
		SubTables: []domain.SubTable{{Name: "items", Table: "form_leave_items"}},
	}
}

// newTestServer builds a server; withAuth installs the mock verifier with an
// "admin-token" and a "member-token".
func newTestServer(t *testing.T, withAuth bool, checks map[string]Pinger) *testServer {
	t.Helper()
	ts := &testServer{
		catalog:  mocks.NewMockSourceCatalog(leaveSource(), &domain.Source{ID: "expense", Table: "form_expense"}),
		tracker:  newMockTracker(),
		verifier: mocks.NewMockTokenVerifier(),
	}
	ts.verifier.Tokens["admin-token"] = &domain.TokenClaims{UserID: "u1", Role: domain.RoleAdmin}
	ts.verifier.Tokens["member-token"] = &domain.TokenClaims{UserID: "u2", Role: domain.RoleMember}

	deps := Deps{
		Catalog: ts.catalog,
		Tracker: ts.tracker,
		Checks:  checks,
		Metrics: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("es_sync_active_runs 0\n"))
		}),
	}
	if withAuth {
		deps.Verifier = ts.verifier
	}

	cfg := DefaultConfig()
	cfg.Version = "1.2.3"
	cfg.StreamIdleTimeout = 200 * time.Millisecond
	ts.server = NewServer(cfg, deps)
	ts.handler = ts.server.Handler()
	return ts
}

var errBoom = errors.New("boom")
