package driving

import (
	"context"

	"github.com/h10086733/es-admin-sub000/internal/core/domain"
)

// SyncOptions controls a single run
type SyncOptions struct {
	// FullSync walks the whole table by id instead of syncing changes only
	FullSync bool

	// Progress receives live counters. Optional.
	Progress *domain.SyncProgress

	// OnProgress is called after every batch. Optional; must not block.
	OnProgress func(domain.ProgressSnapshot)
}

// SyncOrchestrator coordinates relational-to-index synchronization
type SyncOrchestrator interface {
	// SyncSource runs one sync for a source, including its child tables
	SyncSource(ctx context.Context, sourceID string, opts SyncOptions) (*domain.SyncResult, error)

	// SyncAll runs a sync for every source in the catalog, one after another
	SyncAll(ctx context.Context, fullSync bool) ([]*domain.SyncResult, error)
}

// Subscription is a live feed of task events
type Subscription interface {
	// Events delivers the current snapshot first, then one event per batch,
	// and is closed after the terminal event
	Events() <-chan domain.TaskEvent

	// Close detaches the subscriber; the run is unaffected
	Close()
}

// TaskTracker runs syncs in the background and exposes their progress
type TaskTracker interface {
	// Start launches a run and returns its task id without waiting for it
	Start(ctx context.Context, sourceID string, fullSync bool) (string, error)

	// Get returns the current snapshot of a task
	Get(taskID string) (domain.ProgressSnapshot, error)

	// Result returns the terminal result of a finished task, or nil while running
	Result(taskID string) (*domain.SyncResult, error)

	// Subscribe attaches a live subscriber to a task
	Subscribe(taskID string) (Subscription, error)
}

// Scheduler manages periodic sync scheduling
type Scheduler interface {
	// Start begins the sync scheduler
	Start(ctx context.Context) error

	// Stop stops the sync scheduler and waits for the current cycle
	Stop()
}
