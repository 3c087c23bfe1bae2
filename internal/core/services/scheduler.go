package services

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/h10086733/es-admin-sub000/internal/core/domain"
	"github.com/h10086733/es-admin-sub000/internal/core/ports/driven"
	"github.com/h10086733/es-admin-sub000/internal/core/ports/driving"
)

// SchedulerLockName is the distributed lock held during one scheduling cycle
const SchedulerLockName = "scheduler"

// Scheduler periodically starts incremental syncs for every source flagged
// auto_sync. Runs go through the TaskTracker so they are pollable like
// manually triggered ones.
//
// For multi-instance deployments, configure a DistributedLock to prevent
// duplicate runs across instances.
type Scheduler struct {
	catalog driven.SourceCatalog
	tracker driving.TaskTracker
	lock    driven.DistributedLock
	logger  *slog.Logger

	// Internal state
	mu       sync.RWMutex
	running  bool
	stopCh   chan struct{}
	doneCh   chan struct{}
	interval time.Duration

	// Lock configuration
	lockTTL      time.Duration
	lockRequired bool
}

// SchedulerConfig holds configuration for the scheduler.
type SchedulerConfig struct {
	Catalog      driven.SourceCatalog
	Tracker      driving.TaskTracker
	Lock         driven.DistributedLock // Optional: distributed lock for multi-instance coordination
	Logger       *slog.Logger
	Interval     time.Duration // How often to start syncs (default: 1h)
	LockTTL      time.Duration // TTL for the distributed lock (default: 60s)
	LockRequired bool          // If true, skip the cycle when the lock backend errors
}

// NewScheduler creates a new scheduler.
func NewScheduler(cfg SchedulerConfig) *Scheduler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	interval := cfg.Interval
	if interval == 0 {
		interval = time.Hour
	}

	lockTTL := cfg.LockTTL
	if lockTTL == 0 {
		lockTTL = 60 * time.Second
	}

	return &Scheduler{
		catalog:      cfg.Catalog,
		tracker:      cfg.Tracker,
		lock:         cfg.Lock,
		logger:       logger,
		interval:     interval,
		lockTTL:      lockTTL,
		lockRequired: cfg.LockRequired || cfg.Lock != nil,
	}
}

// Start begins the scheduler loop.
// It runs until Stop is called or context is cancelled.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = true
	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})
	s.mu.Unlock()

	s.logger.Info("scheduler starting", "interval", s.interval)

	go s.run(ctx)

	return nil
}

// Stop gracefully stops the scheduler.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	close(s.stopCh)
	s.mu.Unlock()

	<-s.doneCh

	s.mu.Lock()
	s.running = false
	s.mu.Unlock()

	s.logger.Info("scheduler stopped")
}

func (s *Scheduler) run(ctx context.Context) {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	// Run immediately on start
	s.RunOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler context cancelled")
			return
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.RunOnce(ctx)
		}
	}
}

// RunOnce starts an incremental sync for every auto_sync source and returns
// the started task ids. Sources that are already syncing are skipped.
func (s *Scheduler) RunOnce(ctx context.Context) []string {
	if s.lock != nil {
		acquired, err := s.lock.Acquire(ctx, SchedulerLockName, s.lockTTL)
		if err != nil {
			s.logger.Warn("failed to acquire scheduler lock", "error", err)
			if s.lockRequired {
				return nil
			}
		} else if !acquired {
			s.logger.Debug("scheduler lock held by another instance, skipping cycle")
			return nil
		} else {
			defer func() {
				if err := s.lock.Release(ctx, SchedulerLockName); err != nil {
					s.logger.Warn("failed to release scheduler lock", "error", err)
				}
			}()
		}
	}

	sources, err := s.catalog.List(ctx)
	if err != nil {
		s.logger.Error("failed to list sources", "error", err)
		return nil
	}

	var started []string
	for _, source := range sources {
		if !source.AutoSync {
			continue
		}

		taskID, err := s.tracker.Start(ctx, source.ID, false)
		if errors.Is(err, domain.ErrSyncInProgress) {
			s.logger.Debug("source already syncing, skipping", "source_id", source.ID)
			continue
		}
		if err != nil {
			s.logger.Error("failed to start scheduled sync", "source_id", source.ID, "error", err)
			continue
		}

		s.logger.Info("started scheduled sync", "source_id", source.ID, "task_id", taskID)
		started = append(started, taskID)
	}
	return started
}

var _ driving.Scheduler = (*Scheduler)(nil)
