package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/h10086733/es-admin-sub000/internal/core/domain"
	"github.com/h10086733/es-admin-sub000/internal/core/ports/driving"
)

const (
	// DefaultTaskRetention is how long a finished task stays pollable
	DefaultTaskRetention = 5 * time.Minute

	// SubscriberBuffer is the per-subscriber event buffer. When full, the
	// oldest event is dropped so the run never blocks on a slow reader.
	SubscriberBuffer = 16
)

// TaskTracker launches sync runs in the background and tracks their
// progress by task id.
type TaskTracker struct {
	orchestrator driving.SyncOrchestrator
	baseCtx      context.Context
	retention    time.Duration
	logger       *slog.Logger

	mu     sync.Mutex
	tasks  map[string]*task
	active map[string]string // source id -> task id
	wg     sync.WaitGroup
}

// TaskTrackerConfig holds dependencies for TaskTracker.
type TaskTrackerConfig struct {
	Orchestrator driving.SyncOrchestrator
	// BaseContext is the parent of every run. Runs are detached from the
	// request that started them.
	BaseContext context.Context
	Retention   time.Duration
	Logger      *slog.Logger
}

// NewTaskTracker creates a new task tracker.
func NewTaskTracker(cfg TaskTrackerConfig) *TaskTracker {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	baseCtx := cfg.BaseContext
	if baseCtx == nil {
		baseCtx = context.Background()
	}
	retention := cfg.Retention
	if retention <= 0 {
		retention = DefaultTaskRetention
	}

	return &TaskTracker{
		orchestrator: cfg.Orchestrator,
		baseCtx:      baseCtx,
		retention:    retention,
		logger:       logger,
		tasks:        make(map[string]*task),
		active:       make(map[string]string),
	}
}

// Start launches a sync for sourceID and returns its task id immediately.
func (t *TaskTracker) Start(ctx context.Context, sourceID string, fullSync bool) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	t.mu.Lock()
	if existing, ok := t.active[sourceID]; ok {
		t.mu.Unlock()
		return "", fmt.Errorf("source %s (task %s): %w", sourceID, existing, domain.ErrSyncInProgress)
	}
	taskID := uuid.New().String()
	tk := &task{
		id:       taskID,
		sourceID: sourceID,
		progress: domain.NewSyncProgress(taskID, sourceID),
		subs:     make(map[*subscription]struct{}),
	}
	t.tasks[taskID] = tk
	t.active[sourceID] = taskID
	t.wg.Add(1)
	t.mu.Unlock()

	t.logger.Info("sync task started", "task_id", taskID, "source_id", sourceID, "full_sync", fullSync)

	go t.run(tk, fullSync)
	return taskID, nil
}

func (t *TaskTracker) run(tk *task, fullSync bool) {
	defer t.wg.Done()

	var (
		result *domain.SyncResult
		err    error
	)
	func() {
		defer func() {
			if rec := recover(); rec != nil {
				err = fmt.Errorf("sync panicked: %v", rec)
				t.logger.Error("sync task panicked", "task_id", tk.id, "panic", rec)
			}
		}()
		result, err = t.orchestrator.SyncSource(t.baseCtx, tk.sourceID, driving.SyncOptions{
			FullSync:   fullSync,
			Progress:   tk.progress,
			OnProgress: tk.publish,
		})
	}()

	if result == nil {
		msg := "sync failed"
		if err != nil {
			msg = err.Error()
		}
		result = domain.NewSyncResult(tk.sourceID, false, msg, domain.SyncStats{}, 0)
	}
	if !tk.progress.Status().Terminal() {
		if err != nil || !result.Success {
			tk.progress.Fail(result.Message)
		} else {
			tk.progress.Complete(result.Message)
		}
	}
	tk.finish(result)

	t.mu.Lock()
	if t.active[tk.sourceID] == tk.id {
		delete(t.active, tk.sourceID)
	}
	t.mu.Unlock()

	t.logger.Info("sync task finished",
		"task_id", tk.id,
		"source_id", tk.sourceID,
		"success", result.Success,
		"retention_seconds", t.retention.Seconds(),
	)

	time.AfterFunc(t.retention, func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		delete(t.tasks, tk.id)
	})
}

// Get returns the current progress of a task.
func (t *TaskTracker) Get(taskID string) (domain.ProgressSnapshot, error) {
	tk, err := t.lookup(taskID)
	if err != nil {
		return domain.ProgressSnapshot{}, err
	}
	return tk.progress.Snapshot(), nil
}

// Result returns the terminal result of a task, or nil while it runs.
func (t *TaskTracker) Result(taskID string) (*domain.SyncResult, error) {
	tk, err := t.lookup(taskID)
	if err != nil {
		return nil, err
	}
	tk.mu.Lock()
	defer tk.mu.Unlock()
	return tk.result, nil
}

// Subscribe attaches a live subscriber. The current snapshot is delivered
// first; a finished task delivers its terminal event and closes.
func (t *TaskTracker) Subscribe(taskID string) (driving.Subscription, error) {
	tk, err := t.lookup(taskID)
	if err != nil {
		return nil, err
	}
	return tk.subscribe(), nil
}

// Wait blocks until every started run has finished.
func (t *TaskTracker) Wait() {
	t.wg.Wait()
}

func (t *TaskTracker) lookup(taskID string) (*task, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	tk, ok := t.tasks[taskID]
	if !ok {
		return nil, fmt.Errorf("task %s: %w", taskID, domain.ErrNotFound)
	}
	return tk, nil
}

// task is one tracked run. mu guards subs, result and done.
type task struct {
	id       string
	sourceID string
	progress *domain.SyncProgress

	mu     sync.Mutex
	subs   map[*subscription]struct{}
	result *domain.SyncResult
	done   bool
}

func (tk *task) publish(snap domain.ProgressSnapshot) {
	tk.mu.Lock()
	defer tk.mu.Unlock()
	if tk.done {
		return
	}
	ev := domain.TaskEvent{Type: domain.TaskEventProgress, Snapshot: snap}
	for sub := range tk.subs {
		sub.push(ev)
	}
}

func (tk *task) finish(result *domain.SyncResult) {
	tk.mu.Lock()
	defer tk.mu.Unlock()
	tk.result = result
	tk.done = true
	ev := tk.terminalEvent()
	for sub := range tk.subs {
		sub.push(ev)
		sub.closeLocked()
	}
	tk.subs = make(map[*subscription]struct{})
}

// terminalEvent must be called with tk.mu held.
func (tk *task) terminalEvent() domain.TaskEvent {
	typ := domain.TaskEventComplete
	if tk.result == nil || !tk.result.Success {
		typ = domain.TaskEventError
	}
	return domain.TaskEvent{Type: typ, Snapshot: tk.progress.Snapshot(), Result: tk.result}
}

func (tk *task) subscribe() *subscription {
	tk.mu.Lock()
	defer tk.mu.Unlock()
	sub := &subscription{task: tk, ch: make(chan domain.TaskEvent, SubscriberBuffer)}
	if tk.done {
		sub.push(tk.terminalEvent())
		sub.closeLocked()
		return sub
	}
	sub.push(domain.TaskEvent{Type: domain.TaskEventProgress, Snapshot: tk.progress.Snapshot()})
	tk.subs[sub] = struct{}{}
	return sub
}

// subscription is a bounded, drop-oldest event feed. Writes and close
// happen under the owning task's mutex.
type subscription struct {
	task   *task
	ch     chan domain.TaskEvent
	closed bool
}

func (s *subscription) Events() <-chan domain.TaskEvent {
	return s.ch
}

// Close detaches the subscriber from its task.
func (s *subscription) Close() {
	s.task.mu.Lock()
	defer s.task.mu.Unlock()
	delete(s.task.subs, s)
	s.closeLocked()
}

func (s *subscription) push(ev domain.TaskEvent) {
	if s.closed {
		return
	}
	for {
		select {
		case s.ch <- ev:
			return
		default:
		}
		select {
		case <-s.ch:
		default:
		}
	}
}

func (s *subscription) closeLocked() {
	if s.closed {
		return
	}
	s.closed = true
	close(s.ch)
}

var _ driving.TaskTracker = (*TaskTracker)(nil)
