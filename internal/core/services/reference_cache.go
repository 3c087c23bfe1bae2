package services

import (
	"context"
	"log/slog"

	"github.com/h10086733/es-admin-sub000/internal/core/domain"
	"github.com/h10086733/es-admin-sub000/internal/core/ports/driven"
)

// ReferenceConfig names the table that maps member ids to display names.
// An empty Table disables resolution.
type ReferenceConfig struct {
	Table      string
	IDColumn   string
	NameColumn string
}

// ReferenceCache maps member ids to display names for one run.
// It is never mutated after construction and is safe for concurrent reads.
type ReferenceCache struct {
	names map[string]string
}

// NewReferenceCache wraps a pre-built id -> name map.
func NewReferenceCache(names map[string]string) *ReferenceCache {
	if names == nil {
		names = map[string]string{}
	}
	return &ReferenceCache{names: names}
}

// LoadReferenceCache reads the reference table once. Load failures are
// logged and produce an empty cache, so ids fall back to their raw form.
func LoadReferenceCache(ctx context.Context, store driven.RowStore, cfg ReferenceConfig, logger *slog.Logger) *ReferenceCache {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Table == "" {
		return NewReferenceCache(nil)
	}

	names, err := store.LoadNames(ctx, cfg.Table, cfg.IDColumn, cfg.NameColumn)
	if err != nil {
		logger.Warn("failed to load reference names, ids will not be resolved",
			"table", cfg.Table,
			"error", err,
		)
		return NewReferenceCache(nil)
	}

	logger.Debug("reference cache loaded", "table", cfg.Table, "entries", len(names))
	return NewReferenceCache(names)
}

// Resolve returns the display name for a reference value, or the raw id as a
// string when the cache has no entry.
func (c *ReferenceCache) Resolve(v domain.Value) string {
	raw := v.String()
	if name, ok := c.names[raw]; ok {
		return name
	}
	return raw
}

// Len returns the number of cached entries.
func (c *ReferenceCache) Len() int {
	return len(c.names)
}
