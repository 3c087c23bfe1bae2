package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/h10086733/es-admin-sub000/internal/core/domain"
	"github.com/h10086733/es-admin-sub000/internal/core/ports/driven"
)

// Batch is one bounded page produced by a strategy
type Batch struct {
	// Rows to index. For the diff strategy this excludes rows already indexed.
	Rows []domain.Row
	// Scanned is the number of rows read from the store for this page
	Scanned int
	// Done is set on the last page
	Done bool
}

// BatchStrategy produces successive batches of unseen rows for one source.
// Strategies are single-use and not safe for concurrent calls.
type BatchStrategy interface {
	Kind() domain.StrategyKind

	// Prepare loads whatever state the strategy needs before the first batch
	Prepare(ctx context.Context) error

	// Next returns the next batch and advances the cursor
	Next(ctx context.Context) (*Batch, error)

	// Cursor returns the current resume position
	Cursor() domain.Cursor
}

// StrategyConfig holds dependencies for a BatchStrategy.
type StrategyConfig struct {
	Store            driven.RowStore
	Index            driven.SearchIndex
	Source           *domain.Source
	IndexName        string
	BatchSize        int
	ScrollPageSize   int
	ProgressLogEvery int
	Logger           *slog.Logger
}

// NewBatchStrategy creates the strategy for kind.
func NewBatchStrategy(kind domain.StrategyKind, cfg StrategyConfig) (BatchStrategy, error) {
	if cfg.BatchSize <= 0 {
		return nil, fmt.Errorf("%w: batch size must be positive", domain.ErrInvalidInput)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	switch kind {
	case domain.StrategyFull:
		return newIDStrategy(cfg), nil
	case domain.StrategyIncrementalIndexed:
		return &timeIDStrategy{cfg: cfg}, nil
	case domain.StrategyIncrementalDiff:
		return &diffStrategy{cfg: cfg, scan: newIDStrategy(cfg)}, nil
	default:
		return nil, fmt.Errorf("%w: unknown strategy %q", domain.ErrInvalidInput, kind)
	}
}

// idStrategy walks the table by ascending id.
type idStrategy struct {
	cfg    StrategyConfig
	cursor domain.IDCursor
	done   bool
}

func newIDStrategy(cfg StrategyConfig) *idStrategy {
	return &idStrategy{cfg: cfg}
}

func (s *idStrategy) Kind() domain.StrategyKind { return domain.StrategyFull }
func (s *idStrategy) Prepare(ctx context.Context) error { return nil }
func (s *idStrategy) Cursor() domain.Cursor { return s.cursor }

func (s *idStrategy) Next(ctx context.Context) (*Batch, error) {
	if s.done {
		return &Batch{Done: true}, nil
	}

	src := s.cfg.Source
	rows, err := s.cfg.Store.FetchAfterID(ctx, driven.IDQuery{
		Table:    src.Table,
		IDColumn: src.IDCol(),
		AfterID:  s.cursor.LastID,
		Limit:    s.cfg.BatchSize,
	})
	if err != nil {
		return nil, fmt.Errorf("fetch %s after %s: %w", src.Table, s.cursor, err)
	}
	if len(rows) == 0 {
		s.done = true
		return &Batch{Done: true}, nil
	}

	lastID, ok := rows[len(rows)-1].ID(src.IDCol())
	if !ok {
		return nil, fmt.Errorf("fetch %s: last row has no integer %s", src.Table, src.IDCol())
	}
	prev := s.cursor.String()
	if !s.cursor.Advance(lastID) {
		return nil, fmt.Errorf("%w: %s returned id %d at %s", domain.ErrCursorStalled, src.Table, lastID, prev)
	}

	s.done = len(rows) < s.cfg.BatchSize
	return &Batch{Rows: rows, Scanned: len(rows), Done: s.done}, nil
}

// timeIDStrategy seeks on (modify_time, id), resuming from the newest
// document already in the index.
type timeIDStrategy struct {
	cfg    StrategyConfig
	cursor *domain.TimeIDCursor
	done   bool
}

func (s *timeIDStrategy) Kind() domain.StrategyKind { return domain.StrategyIncrementalIndexed }

func (s *timeIDStrategy) Prepare(ctx context.Context) error {
	latest, err := s.cfg.Index.LatestCursor(ctx, s.cfg.IndexName)
	if err != nil {
		return fmt.Errorf("read latest cursor from %s: %w", s.cfg.IndexName, err)
	}
	s.cursor = latest
	if latest == nil {
		s.cfg.Logger.Info("index has no cursor, starting from the beginning",
			"source_id", s.cfg.Source.ID,
			"index", s.cfg.IndexName,
		)
	} else {
		s.cfg.Logger.Info("resuming from index cursor",
			"source_id", s.cfg.Source.ID,
			"cursor", latest.String(),
		)
	}
	return nil
}

func (s *timeIDStrategy) Cursor() domain.Cursor {
	if s.cursor == nil {
		return domain.TimeIDCursor{}
	}
	return *s.cursor
}

func (s *timeIDStrategy) Next(ctx context.Context) (*Batch, error) {
	if s.done {
		return &Batch{Done: true}, nil
	}

	src := s.cfg.Source
	var after *domain.TimeIDCursor
	if s.cursor != nil {
		c := *s.cursor
		after = &c
	}
	rows, err := s.cfg.Store.FetchAfterTimeID(ctx, driven.TimeIDQuery{
		Table:            src.Table,
		IDColumn:         src.IDCol(),
		ModifyTimeColumn: src.ModifyTimeCol(),
		After:            after,
		Limit:            s.cfg.BatchSize,
	})
	if err != nil {
		return nil, fmt.Errorf("fetch %s after %s: %w", src.Table, s.Cursor(), err)
	}
	if len(rows) == 0 {
		s.done = true
		return &Batch{Done: true}, nil
	}

	last := rows[len(rows)-1]
	lastID, ok := last.ID(src.IDCol())
	if !ok {
		return nil, fmt.Errorf("fetch %s: last row has no integer %s", src.Table, src.IDCol())
	}
	lastTime, ok := last.Get(src.ModifyTimeCol()).AsTime()
	if !ok {
		return nil, fmt.Errorf("fetch %s: last row has no %s", src.Table, src.ModifyTimeCol())
	}

	if s.cursor == nil {
		s.cursor = &domain.TimeIDCursor{LastModifyTime: lastTime, LastID: lastID}
	} else if !s.cursor.Advance(lastTime, lastID) {
		return nil, fmt.Errorf("%w: %s returned (%s,%d) at %s", domain.ErrCursorStalled,
			src.Table, lastTime.Format(domain.CanonicalTimeLayout), lastID, s.cursor)
	}

	s.done = len(rows) < s.cfg.BatchSize
	return &Batch{Rows: rows, Scanned: len(rows), Done: s.done}, nil
}

// diffStrategy scans by id and keeps only rows whose id is not yet indexed.
type diffStrategy struct {
	cfg       StrategyConfig
	scan      *idStrategy
	known     domain.DiffState
	pages     int
	scanned   int
	kept      int
	startedAt time.Time
}

func (s *diffStrategy) Kind() domain.StrategyKind { return domain.StrategyIncrementalDiff }
func (s *diffStrategy) Cursor() domain.Cursor { return s.known }

func (s *diffStrategy) Prepare(ctx context.Context) error {
	start := time.Now()
	ids, err := s.cfg.Index.AllIDs(ctx, s.cfg.IndexName, s.cfg.ScrollPageSize)
	if err != nil {
		return fmt.Errorf("export ids from %s: %w", s.cfg.IndexName, err)
	}
	s.known = domain.NewDiffState(ids)
	s.startedAt = time.Now()

	s.cfg.Logger.Info("exported indexed ids",
		"source_id", s.cfg.Source.ID,
		"index", s.cfg.IndexName,
		"known_ids", len(s.known.KnownIDs),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return nil
}

func (s *diffStrategy) Next(ctx context.Context) (*Batch, error) {
	if s.known.KnownIDs == nil {
		return nil, fmt.Errorf("diff strategy for %s used before Prepare", s.cfg.Source.ID)
	}

	page, err := s.scan.Next(ctx)
	if err != nil {
		return nil, err
	}

	idCol := s.cfg.Source.IDCol()
	fresh := make([]domain.Row, 0, len(page.Rows))
	for _, row := range page.Rows {
		id, ok := row.ID(idCol)
		if ok && s.known.Contains(id) {
			continue
		}
		fresh = append(fresh, row)
	}

	s.pages++
	s.scanned += page.Scanned
	s.kept += len(fresh)
	if s.cfg.ProgressLogEvery > 0 && s.pages%s.cfg.ProgressLogEvery == 0 {
		elapsed := time.Since(s.startedAt).Seconds()
		var rate float64
		if elapsed > 0 {
			rate = float64(s.scanned) / elapsed
		}
		s.cfg.Logger.Info("diff scan progress",
			"source_id", s.cfg.Source.ID,
			"pages", s.pages,
			"scanned", s.scanned,
			"new_rows", s.kept,
			"rows_per_second", rate,
			"cursor", s.scan.Cursor().String(),
		)
	}

	return &Batch{Rows: fresh, Scanned: page.Scanned, Done: page.Done}, nil
}
