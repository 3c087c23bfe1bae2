package domain

import (
	"strings"
	"sync"
	"time"
)

// SyncStatus represents the current state of a sync run
type SyncStatus string

const (
	SyncStatusPreparing SyncStatus = "preparing"
	SyncStatusRunning   SyncStatus = "running"
	SyncStatusCompleted SyncStatus = "completed"
	SyncStatusFailed    SyncStatus = "failed"
)

// Terminal reports whether the status ends a run.
func (s SyncStatus) Terminal() bool {
	return s == SyncStatusCompleted || s == SyncStatusFailed
}

// SyncStats holds row counters for a sync run
type SyncStats struct {
	Processed int `json:"processed"`
	Indexed   int `json:"indexed"`
	Failed    int `json:"failed"`
	Skipped   int `json:"skipped"`
}

// Add accumulates other into s.
func (s *SyncStats) Add(other SyncStats) {
	s.Processed += other.Processed
	s.Indexed += other.Indexed
	s.Failed += other.Failed
	s.Skipped += other.Skipped
}

// SyncResult is the terminal, immutable summary of one run
type SyncResult struct {
	SourceID       string        `json:"source_id"`
	Success        bool          `json:"success"`
	Message        string        `json:"message"`
	Strategy       StrategyKind  `json:"strategy,omitempty"`
	Stats          SyncStats     `json:"stats"`
	Elapsed        time.Duration `json:"-"`
	ElapsedSeconds float64       `json:"elapsed_seconds"`
	Rate           float64       `json:"rows_per_second"`
	Children       []*SyncResult `json:"children,omitempty"`
}

// Count returns the number of rows processed.
func (r *SyncResult) Count() int {
	return r.Stats.Processed
}

// NewSyncResult fills in elapsed time and throughput.
func NewSyncResult(sourceID string, success bool, message string, stats SyncStats, elapsed time.Duration) *SyncResult {
	return &SyncResult{
		SourceID:       sourceID,
		Success:        success,
		Message:        message,
		Stats:          stats,
		Elapsed:        elapsed,
		ElapsedSeconds: elapsed.Seconds(),
		Rate:           rate(stats.Processed, elapsed),
	}
}

func rate(count int, elapsed time.Duration) float64 {
	if elapsed <= 0 {
		return 0
	}
	return float64(count) / elapsed.Seconds()
}

// MergeResults combines a main-table result with its child-table results.
// Elapsed is the maximum, not the sum, since child passes may overlap.
func MergeResults(main *SyncResult, children ...*SyncResult) *SyncResult {
	if len(children) == 0 {
		return main
	}
	merged := &SyncResult{
		SourceID: main.SourceID,
		Success:  main.Success,
		Strategy: main.Strategy,
		Stats:    main.Stats,
		Elapsed:  main.Elapsed,
		Children: children,
	}
	messages := []string{main.Message}
	for _, child := range children {
		merged.Stats.Add(child.Stats)
		if child.Elapsed > merged.Elapsed {
			merged.Elapsed = child.Elapsed
		}
		merged.Success = merged.Success && child.Success
		if child.Message != "" {
			messages = append(messages, child.Message)
		}
	}
	merged.Message = strings.Join(messages, "; ")
	merged.ElapsedSeconds = merged.Elapsed.Seconds()
	merged.Rate = rate(merged.Stats.Processed, merged.Elapsed)
	return merged
}

// ProgressSnapshot is a consistent, immutable copy of a run's progress
type ProgressSnapshot struct {
	TaskID           string     `json:"task_id"`
	SourceID         string     `json:"source_id"`
	Status           SyncStatus `json:"status"`
	Processed        int        `json:"processed"`
	Total            int64      `json:"total"`
	SuccessCount     int        `json:"success_count"`
	FailureCount     int        `json:"failure_count"`
	ElapsedSeconds   float64    `json:"elapsed_seconds"`
	CurrentItemLabel string     `json:"current_item_label"`
	StartedAt        time.Time  `json:"started_at"`
	Message          string     `json:"message,omitempty"`
}

// SyncProgress is the mutable state of one in-flight run. It is written by
// the run's own goroutine and read concurrently by pollers and subscribers;
// every access goes through the mutex.
type SyncProgress struct {
	mu          sync.RWMutex
	taskID      string
	sourceID    string
	status      SyncStatus
	processed   int
	total       int64
	success     int
	failure     int
	currentItem string
	message     string
	startedAt   time.Time
	finishedAt  time.Time
	now         func() time.Time
}

// NewSyncProgress creates progress in the preparing state.
func NewSyncProgress(taskID, sourceID string) *SyncProgress {
	return newSyncProgress(taskID, sourceID, time.Now)
}

func newSyncProgress(taskID, sourceID string, now func() time.Time) *SyncProgress {
	return &SyncProgress{
		taskID:    taskID,
		sourceID:  sourceID,
		status:    SyncStatusPreparing,
		startedAt: now(),
		now:       now,
	}
}

// SetStatus moves the run to status.
func (p *SyncProgress) SetStatus(status SyncStatus) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.status = status
}

// SetTotal records the expected number of rows.
func (p *SyncProgress) SetTotal(total int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.total = total
}

// AddTotal grows the expected number of rows (child tables).
func (p *SyncProgress) AddTotal(n int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.total += n
}

// SetCurrentItem records a label for what the run is working on.
func (p *SyncProgress) SetCurrentItem(label string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.currentItem = label
}

// Advance adds one batch's counters.
func (p *SyncProgress) Advance(processed, succeeded, failed int, label string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.processed += processed
	p.success += succeeded
	p.failure += failed
	if label != "" {
		p.currentItem = label
	}
}

// Complete marks the run completed.
func (p *SyncProgress) Complete(message string) {
	p.finish(SyncStatusCompleted, message)
}

// Fail marks the run failed.
func (p *SyncProgress) Fail(message string) {
	p.finish(SyncStatusFailed, message)
}

func (p *SyncProgress) finish(status SyncStatus, message string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.status = status
	p.message = message
	p.finishedAt = p.now()
}

// Status returns the current status.
func (p *SyncProgress) Status() SyncStatus {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.status
}

// FinishedAt returns when the run reached a terminal state, or zero.
func (p *SyncProgress) FinishedAt() time.Time {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.finishedAt
}

// Snapshot returns a consistent copy of the progress.
func (p *SyncProgress) Snapshot() ProgressSnapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()
	end := p.now()
	if !p.finishedAt.IsZero() {
		end = p.finishedAt
	}
	return ProgressSnapshot{
		TaskID:           p.taskID,
		SourceID:         p.sourceID,
		Status:           p.status,
		Processed:        p.processed,
		Total:            p.total,
		SuccessCount:     p.success,
		FailureCount:     p.failure,
		ElapsedSeconds:   end.Sub(p.startedAt).Seconds(),
		CurrentItemLabel: p.currentItem,
		StartedAt:        p.startedAt,
		Message:          p.message,
	}
}

// TaskEventType names a progress stream event
type TaskEventType string

const (
	TaskEventProgress TaskEventType = "progress"
	TaskEventComplete TaskEventType = "complete"
	TaskEventError    TaskEventType = "error"
)

// TaskEvent is one message pushed to task subscribers
type TaskEvent struct {
	Type     TaskEventType    `json:"type"`
	Snapshot ProgressSnapshot `json:"progress"`
	Result   *SyncResult      `json:"result,omitempty"`
}
