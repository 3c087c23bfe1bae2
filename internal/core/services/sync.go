package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/h10086733/es-admin-sub000/internal/core/domain"
	"github.com/h10086733/es-admin-sub000/internal/core/ports/driven"
	"github.com/h10086733/es-admin-sub000/internal/core/ports/driving"
)

const (
	DefaultBatchSize        = 1000
	DefaultScrollPageSize   = 5000
	DefaultProgressLogEvery = 10
	DefaultLockTTL          = 10 * time.Minute
)

// SyncLockName returns the distributed lock held while a source syncs.
func SyncLockName(sourceID string) string {
	return "sync:" + sourceID
}

// SyncOrchestrator coordinates the relational-to-index sync of one source.
// Each call to SyncSource runs:
//  1. Resolve the source and check its table
//  2. Acquire the per-source lock
//  3. Ensure supporting table indexes and pick a strategy
//  4. Ensure the search index and preload reference names
//  5. Drive the batch loop: fetch, build, bulk index, report progress
//  6. Repeat 3-5 for every child table
//  7. Merge the results
type SyncOrchestrator struct {
	catalog          driven.SourceCatalog
	store            driven.RowStore
	index            driven.SearchIndex
	lock             driven.DistributedLock
	metrics          driven.MetricsRecorder
	reference        ReferenceConfig
	indexPrefix      string
	batchSize        int
	bulkSize         int
	maxFailures      int
	scrollPageSize   int
	progressLogEvery int
	lockTTL          time.Duration
	logger           *slog.Logger
}

// SyncOrchestratorConfig holds dependencies for SyncOrchestrator.
type SyncOrchestratorConfig struct {
	Catalog driven.SourceCatalog
	Store   driven.RowStore
	Index   driven.SearchIndex
	Lock    driven.DistributedLock
	Metrics driven.MetricsRecorder

	Reference   ReferenceConfig
	IndexPrefix string

	BatchSize              int
	BulkSize               int
	MaxConsecutiveFailures int
	ScrollPageSize         int
	ProgressLogEvery       int
	LockTTL                time.Duration

	Logger *slog.Logger
}

// NewSyncOrchestrator creates a new sync orchestrator.
func NewSyncOrchestrator(cfg SyncOrchestratorConfig) *SyncOrchestrator {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	metrics := cfg.Metrics
	if metrics == nil {
		metrics = noopMetrics{}
	}

	o := &SyncOrchestrator{
		catalog:          cfg.Catalog,
		store:            cfg.Store,
		index:            cfg.Index,
		lock:             cfg.Lock,
		metrics:          metrics,
		reference:        cfg.Reference,
		indexPrefix:      cfg.IndexPrefix,
		batchSize:        cfg.BatchSize,
		bulkSize:         cfg.BulkSize,
		maxFailures:      cfg.MaxConsecutiveFailures,
		scrollPageSize:   cfg.ScrollPageSize,
		progressLogEvery: cfg.ProgressLogEvery,
		lockTTL:          cfg.LockTTL,
		logger:           logger,
	}
	if o.batchSize <= 0 {
		o.batchSize = DefaultBatchSize
	}
	if o.scrollPageSize <= 0 {
		o.scrollPageSize = DefaultScrollPageSize
	}
	if o.progressLogEvery <= 0 {
		o.progressLogEvery = DefaultProgressLogEvery
	}
	if o.lockTTL <= 0 {
		o.lockTTL = DefaultLockTTL
	}
	return o
}

// run carries the per-call state shared by the main and child passes.
type run struct {
	progress *domain.SyncProgress
	notify   func()
	refs     *ReferenceCache
	lockName string
}

// SyncSource synchronizes a single source and its child tables.
// A failed run returns a result with Success false together with the error.
func (o *SyncOrchestrator) SyncSource(ctx context.Context, sourceID string, opts driving.SyncOptions) (*domain.SyncResult, error) {
	startTime := time.Now()

	progress := opts.Progress
	if progress == nil {
		progress = domain.NewSyncProgress("", sourceID)
	}
	r := &run{
		progress: progress,
		lockName: SyncLockName(sourceID),
		notify: func() {
			if opts.OnProgress != nil {
				opts.OnProgress(progress.Snapshot())
			}
		},
	}

	o.logger.Info("starting sync", "source_id", sourceID, "full_sync", opts.FullSync)
	o.metrics.RunStarted(sourceID)

	// Step 1: Resolve source and table
	source, err := o.catalog.Get(ctx, sourceID)
	if err != nil {
		if !errors.Is(err, domain.ErrSourceNotFound) {
			err = fmt.Errorf("%w: %v", domain.ErrSourceNotFound, err)
		}
		return o.failSync(r, sourceID, startTime, fmt.Errorf("source %s: %w", sourceID, err))
	}
	if err := source.Validate(); err != nil {
		return o.failSync(r, sourceID, startTime, err)
	}
	if err := o.checkTable(ctx, source.Table); err != nil {
		return o.failSync(r, sourceID, startTime, err)
	}

	// Step 2: Per-source lock
	acquired, err := o.lock.Acquire(ctx, r.lockName, o.lockTTL)
	if err != nil {
		return o.failSync(r, sourceID, startTime, fmt.Errorf("failed to acquire lock %s: %w", r.lockName, err))
	}
	if !acquired {
		return o.failSync(r, sourceID, startTime, fmt.Errorf("source %s: %w", sourceID, domain.ErrSyncInProgress))
	}
	defer func() {
		if err := o.lock.Release(context.WithoutCancel(ctx), r.lockName); err != nil {
			o.logger.Warn("failed to release sync lock", "lock", r.lockName, "error", err)
		}
	}()
	stopKeepAlive := o.keepLock(ctx, r.lockName)
	defer stopKeepAlive()

	progress.SetStatus(domain.SyncStatusRunning)
	if total, err := o.store.Count(ctx, source.Table); err != nil {
		o.logger.Warn("failed to count rows", "source_id", sourceID, "table", source.Table, "error", err)
	} else {
		progress.SetTotal(total)
	}
	r.notify()

	// Step 3: Reference names, once for every pass
	r.refs = LoadReferenceCache(ctx, o.store, o.reference, o.logger)

	// Steps 4-5: Main table
	main, err := o.syncTable(ctx, r, source, opts.FullSync)
	if err != nil {
		return o.failSync(r, sourceID, startTime, err)
	}

	// Step 6: Child tables
	children := make([]*domain.SyncResult, 0, len(source.SubTables))
	for _, sub := range source.SubTables {
		child := source.ChildSource(sub)
		childResult, err := o.syncChild(ctx, r, child, opts.FullSync)
		if err != nil {
			o.logger.Error("child table sync failed",
				"source_id", sourceID,
				"child_id", child.ID,
				"table", child.Table,
				"error", err,
			)
		}
		children = append(children, childResult)
	}

	// Step 7: Merge
	result := domain.MergeResults(main, children...)
	if !result.Success {
		progress.Fail(result.Message)
		o.metrics.RunFinished(sourceID, domain.SyncStatusFailed, result.Elapsed)
		r.notify()
		return result, fmt.Errorf("source %s: %s", sourceID, result.Message)
	}

	progress.Complete(result.Message)
	o.metrics.RunFinished(sourceID, domain.SyncStatusCompleted, result.Elapsed)
	r.notify()

	o.logger.Info("sync completed",
		"source_id", sourceID,
		"strategy", result.Strategy,
		"duration_seconds", result.ElapsedSeconds,
		"processed", result.Stats.Processed,
		"indexed", result.Stats.Indexed,
		"failed", result.Stats.Failed,
		"skipped", result.Stats.Skipped,
		"rows_per_second", result.Rate,
	)
	return result, nil
}

// SyncAll synchronizes every source in the catalog, one after another.
func (o *SyncOrchestrator) SyncAll(ctx context.Context, fullSync bool) ([]*domain.SyncResult, error) {
	sources, err := o.catalog.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list sources: %w", err)
	}

	results := make([]*domain.SyncResult, 0, len(sources))
	for _, source := range sources {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		result, err := o.SyncSource(ctx, source.ID, driving.SyncOptions{FullSync: fullSync})
		if err != nil {
			o.logger.Error("sync failed", "source_id", source.ID, "error", err)
		}
		results = append(results, result)
	}
	return results, nil
}

func (o *SyncOrchestrator) checkTable(ctx context.Context, table string) error {
	exists, err := o.store.TableExists(ctx, table)
	if err != nil {
		return fmt.Errorf("failed to check table %s: %w", table, err)
	}
	if !exists {
		return fmt.Errorf("table %s: %w", table, domain.ErrTableNotFound)
	}
	return nil
}

// syncChild runs one child table pass. Failures become a failed child result.
func (o *SyncOrchestrator) syncChild(ctx context.Context, r *run, child *domain.Source, fullSync bool) (*domain.SyncResult, error) {
	startTime := time.Now()
	err := o.checkTable(ctx, child.Table)
	if err == nil {
		if total, countErr := o.store.Count(ctx, child.Table); countErr == nil {
			r.progress.AddTotal(total)
		}
		var result *domain.SyncResult
		result, err = o.syncTable(ctx, r, child, fullSync)
		if err == nil {
			return result, nil
		}
	}
	return domain.NewSyncResult(child.ID, false, fmt.Sprintf("%s: %v", child.ID, err), domain.SyncStats{}, time.Since(startTime)), err
}

// selectStrategy ensures the table indexes and picks the pagination strategy.
// A failed composite index downgrades an incremental run to the diff scan.
func (o *SyncOrchestrator) selectStrategy(ctx context.Context, source *domain.Source, fullSync bool) domain.StrategyKind {
	idIndex := fmt.Sprintf("idx_%s_%s", source.Table, source.IDCol())
	if err := o.store.EnsureIndex(ctx, source.Table, idIndex, source.IDCol()); err != nil {
		o.logger.Warn("failed to ensure id index", "table", source.Table, "index", idIndex, "error", err)
	}
	if fullSync {
		return domain.StrategyFull
	}

	composite := fmt.Sprintf("idx_%s_mtime_id", source.Table)
	if err := o.store.EnsureIndex(ctx, source.Table, composite, source.ModifyTimeCol(), source.IDCol()); err != nil {
		o.logger.Warn("composite index unavailable, falling back to diff scan",
			"table", source.Table,
			"index", composite,
			"error", err,
		)
		return domain.StrategyIncrementalDiff
	}

	// Time bounds only order correctly against a native date column
	temporal, err := o.store.ColumnIsTemporal(ctx, source.Table, source.ModifyTimeCol())
	if err != nil {
		o.logger.Warn("failed to inspect modify time column, falling back to diff scan",
			"table", source.Table,
			"column", source.ModifyTimeCol(),
			"error", err,
		)
		return domain.StrategyIncrementalDiff
	}
	if !temporal {
		o.logger.Info("modify time column is not a date type, using diff scan",
			"table", source.Table,
			"column", source.ModifyTimeCol(),
		)
		return domain.StrategyIncrementalDiff
	}
	return domain.StrategyIncrementalIndexed
}

// syncTable runs the batch loop for one table.
func (o *SyncOrchestrator) syncTable(ctx context.Context, r *run, source *domain.Source, fullSync bool) (*domain.SyncResult, error) {
	startTime := time.Now()
	indexName := source.IndexName(o.indexPrefix)

	kind := o.selectStrategy(ctx, source, fullSync)

	if err := o.index.EnsureIndex(ctx, indexName, Mapping(source)); err != nil {
		return nil, fmt.Errorf("%w: index %s: %v", domain.ErrIndexUnavailable, indexName, err)
	}

	strategy, err := NewBatchStrategy(kind, StrategyConfig{
		Store:            o.store,
		Index:            o.index,
		Source:           source,
		IndexName:        indexName,
		BatchSize:        o.batchSize,
		ScrollPageSize:   o.scrollPageSize,
		ProgressLogEvery: o.progressLogEvery,
		Logger:           o.logger,
	})
	if err != nil {
		return nil, err
	}
	if err := strategy.Prepare(ctx); err != nil {
		return nil, err
	}

	builder := NewDocumentBuilder(source, indexName, NewFieldFormatter(source, r.refs))
	indexer := NewBulkIndexer(BulkIndexerConfig{
		Index:                  o.index,
		BulkSize:               o.bulkSize,
		MaxConsecutiveFailures: o.maxFailures,
		Logger:                 o.logger,
	})

	o.logger.Info("syncing table",
		"source_id", source.ID,
		"table", source.Table,
		"index", indexName,
		"strategy", kind,
	)

	var stats domain.SyncStats
	batches := 0
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		batch, err := strategy.Next(ctx)
		if err != nil {
			return nil, err
		}
		stats.Skipped += batch.Scanned - len(batch.Rows)

		if len(batch.Rows) > 0 {
			docs, unbuildable := builder.BuildAll(batch.Rows)
			bulk, err := indexer.Index(ctx, indexName, docs)

			processed := len(batch.Rows)
			failed := bulk.Failed + unbuildable
			stats.Processed += processed
			stats.Indexed += bulk.Indexed
			stats.Failed += failed

			o.metrics.RecordRows(source.ID, kind, bulk.Indexed, failed)
			r.progress.Advance(processed, bulk.Indexed, failed, itemLabel(source, batch.Rows))
			r.notify()

			if err != nil {
				return nil, err
			}
		}

		batches++
		if batches%o.progressLogEvery == 0 {
			elapsed := time.Since(startTime)
			o.logger.Info("sync progress",
				"source_id", source.ID,
				"batches", batches,
				"processed", stats.Processed,
				"rows_per_second", float64(stats.Processed)/elapsed.Seconds(),
				"cursor", strategy.Cursor().String(),
			)
		}

		if batch.Done {
			break
		}
	}

	if err := o.index.Refresh(ctx, indexName); err != nil {
		o.logger.Warn("failed to refresh index", "index", indexName, "error", err)
	}

	message := fmt.Sprintf("%s: %d rows synced, %d failed", source.ID, stats.Indexed, stats.Failed)
	result := domain.NewSyncResult(source.ID, true, message, stats, time.Since(startTime))
	result.Strategy = kind
	return result, nil
}

// keepLock extends the lock every third of its TTL until the returned func
// is called. Slow phases such as the id export keep the lock alive too.
func (o *SyncOrchestrator) keepLock(ctx context.Context, name string) func() {
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(o.lockTTL / 3)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := o.lock.Extend(ctx, name, o.lockTTL); err != nil && ctx.Err() == nil {
					o.logger.Warn("failed to extend sync lock", "lock", name, "error", err)
				}
			}
		}
	}()
	return func() {
		cancel()
		<-done
	}
}

// failSync marks a sync as failed and returns the result.
func (o *SyncOrchestrator) failSync(r *run, sourceID string, startTime time.Time, err error) (*domain.SyncResult, error) {
	elapsed := time.Since(startTime)

	o.logger.Error("sync failed", "source_id", sourceID, "duration_seconds", elapsed.Seconds(), "error", err)

	r.progress.Fail(err.Error())
	o.metrics.RunFinished(sourceID, domain.SyncStatusFailed, elapsed)
	r.notify()

	return domain.NewSyncResult(sourceID, false, err.Error(), domain.SyncStats{}, elapsed), err
}

// itemLabel names the last row of a batch, e.g. "form_leave#1042".
func itemLabel(source *domain.Source, rows []domain.Row) string {
	id, _ := rows[len(rows)-1].ID(source.IDCol())
	return fmt.Sprintf("%s#%d", source.Table, id)
}

type noopMetrics struct{}

func (noopMetrics) RecordRows(string, domain.StrategyKind, int, int) {}
func (noopMetrics) RunStarted(string) {}
func (noopMetrics) RunFinished(string, domain.SyncStatus, time.Duration) {}

var _ driving.SyncOrchestrator = (*SyncOrchestrator)(nil)
