package driven

import (
	"context"

	"github.com/h10086733/es-admin-sub000/internal/core/domain"
)

// SourceCatalog resolves form definitions (YAML file)
type SourceCatalog interface {
	// Get retrieves a source by ID. Returns domain.ErrSourceNotFound if absent.
	Get(ctx context.Context, id string) (*domain.Source, error)

	// List retrieves all sources
	List(ctx context.Context) ([]*domain.Source, error)
}
