package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hashicorp/go-multierror"

	"github.com/h10086733/es-admin-sub000/internal/core/domain"
	"github.com/h10086733/es-admin-sub000/internal/core/ports/driven"
)

const (
	// DefaultBulkSize is the maximum number of documents per bulk request
	DefaultBulkSize = 500
)

// BulkStats counts documents handled by a BulkIndexer
type BulkStats struct {
	Attempted int
	Indexed   int
	Failed    int
}

// Add accumulates other into s.
func (s *BulkStats) Add(other BulkStats) {
	s.Attempted += other.Attempted
	s.Indexed += other.Indexed
	s.Failed += other.Failed
}

// BulkIndexer writes documents in size-bounded bulk requests. Failed
// requests and rejected items are counted, not returned. When
// MaxConsecutiveFailures is set, a run that fails that many requests in a
// row gives up with ErrIndexUnavailable.
// One BulkIndexer serves one run and is not safe for concurrent use.
type BulkIndexer struct {
	index       driven.SearchIndex
	bulkSize    int
	maxFailures int
	consecutive int
	logger      *slog.Logger
}

// BulkIndexerConfig holds dependencies for BulkIndexer.
type BulkIndexerConfig struct {
	Index    driven.SearchIndex
	BulkSize int
	// MaxConsecutiveFailures of zero or less never gives up
	MaxConsecutiveFailures int
	Logger                 *slog.Logger
}

// NewBulkIndexer creates a new bulk indexer.
func NewBulkIndexer(cfg BulkIndexerConfig) *BulkIndexer {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	bulkSize := cfg.BulkSize
	if bulkSize <= 0 {
		bulkSize = DefaultBulkSize
	}
	return &BulkIndexer{
		index:       cfg.Index,
		bulkSize:    bulkSize,
		maxFailures: cfg.MaxConsecutiveFailures,
		logger:      logger,
	}
}

// Index writes docs to index. The returned error is non-nil only for context
// cancellation or when the index is unreachable (domain.ErrIndexUnavailable).
func (b *BulkIndexer) Index(ctx context.Context, index string, docs []*domain.Document) (BulkStats, error) {
	var stats BulkStats
	for start := 0; start < len(docs); start += b.bulkSize {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		end := start + b.bulkSize
		if end > len(docs) {
			end = len(docs)
		}
		chunk := docs[start:end]

		chunkStats, err := b.send(ctx, index, chunk)
		stats.Add(chunkStats)
		if err != nil {
			return stats, err
		}
	}
	return stats, nil
}

func (b *BulkIndexer) send(ctx context.Context, index string, chunk []*domain.Document) (BulkStats, error) {
	stats := BulkStats{Attempted: len(chunk)}

	resp, err := b.index.Bulk(ctx, index, chunk)
	if err != nil {
		if ctx.Err() != nil {
			return stats, ctx.Err()
		}
		b.consecutive++
		stats.Failed = len(chunk)
		b.logger.Error("bulk request failed",
			"index", index,
			"documents", len(chunk),
			"consecutive_failures", b.consecutive,
			"error", err,
		)
		if b.maxFailures > 0 && b.consecutive >= b.maxFailures {
			return stats, fmt.Errorf("%w: %d consecutive bulk requests to %s failed: %v",
				domain.ErrIndexUnavailable, b.consecutive, index, err)
		}
		return stats, nil
	}
	b.consecutive = 0

	var itemErrs *multierror.Error
	for _, item := range resp.Failures() {
		itemErrs = multierror.Append(itemErrs, fmt.Errorf("document %s: status %d: %s", item.DocumentID, item.Status, item.Error))
	}
	failed := 0
	if itemErrs != nil {
		failed = itemErrs.Len()
		b.logger.Warn("bulk request partially failed",
			"index", index,
			"documents", len(chunk),
			"failed", failed,
			"error", itemErrs.ErrorOrNil(),
		)
	}
	if failed > len(chunk) {
		failed = len(chunk)
	}
	stats.Failed = failed
	stats.Indexed = len(chunk) - failed
	return stats, nil
}
