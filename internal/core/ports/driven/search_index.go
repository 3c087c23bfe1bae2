package driven

import (
	"context"

	"github.com/h10086733/es-admin-sub000/internal/core/domain"
)

// BulkItemResult is the outcome of one document in a bulk request
type BulkItemResult struct {
	DocumentID string
	Status     int
	Error      string
}

// Failed reports whether the item was rejected.
func (r BulkItemResult) Failed() bool {
	return r.Error != "" || r.Status >= 300
}

// BulkResponse is the per-item outcome of a bulk request
type BulkResponse struct {
	Items []BulkItemResult
}

// Failures returns the rejected items.
func (r *BulkResponse) Failures() []BulkItemResult {
	var out []BulkItemResult
	for _, item := range r.Items {
		if item.Failed() {
			out = append(out, item)
		}
	}
	return out
}

// SearchIndex handles document indexing (Elasticsearch / OpenSearch)
type SearchIndex interface {
	// EnsureIndex creates index with mapping if it does not exist
	EnsureIndex(ctx context.Context, index string, mapping domain.IndexMapping) error

	// Bulk upserts documents. A non-nil error means the request as a whole
	// failed (transport or server error); item failures are in the response.
	Bulk(ctx context.Context, index string, docs []*domain.Document) (*BulkResponse, error)

	// Refresh makes recent writes visible to search
	Refresh(ctx context.Context, index string) error

	// AllIDs exports every indexed row id, paging pageSize documents at a time
	AllIDs(ctx context.Context, index string, pageSize int) ([]int64, error)

	// LatestCursor returns the greatest (modify_time, row id) present in index,
	// or nil when the index holds no documents with a modify time
	LatestCursor(ctx context.Context, index string) (*domain.TimeIDCursor, error)

	// HealthCheck verifies the search cluster is available
	HealthCheck(ctx context.Context) error
}
