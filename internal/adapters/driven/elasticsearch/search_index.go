package elasticsearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/h10086733/es-admin-sub000/internal/core/domain"
	"github.com/h10086733/es-admin-sub000/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.SearchIndex = (*SearchIndex)(nil)

// scrollKeepAlive is how long the cluster keeps a scroll context between pages
const scrollKeepAlive = "1m"

// SearchIndex implements driven.SearchIndex over the Elasticsearch REST API.
// OpenSearch speaks the same subset.
type SearchIndex struct {
	baseURL    string
	username   string
	password   string
	httpClient *http.Client
}

// NewSearchIndex creates a new Elasticsearch-backed SearchIndex
func NewSearchIndex(cfg Config) (*SearchIndex, error) {
	baseURL, err := validateEndpoint(cfg.BaseURL)
	if err != nil {
		return nil, err
	}
	return &SearchIndex{
		baseURL:  baseURL,
		username: cfg.Username,
		password: cfg.Password,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
	}, nil
}

// EnsureIndex creates index with mapping if it does not exist
func (s *SearchIndex) EnsureIndex(ctx context.Context, index string, mapping domain.IndexMapping) error {
	path := "/" + url.PathEscape(index)

	resp, err := s.do(ctx, http.MethodHead, path, "", nil)
	if err != nil {
		return fmt.Errorf("check index %s: %w", index, err)
	}
	resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		return nil
	case http.StatusNotFound:
	default:
		return fmt.Errorf("check index %s failed: %s", index, resp.Status)
	}

	body, err := json.Marshal(map[string]any{"mappings": mapping})
	if err != nil {
		return err
	}

	resp, err = s.do(ctx, http.MethodPut, path, "application/json", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create index %s: %w", index, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		respBody, _ := io.ReadAll(resp.Body)
		// Another instance created it between HEAD and PUT
		if resp.StatusCode == http.StatusBadRequest && bytes.Contains(respBody, []byte("resource_already_exists_exception")) {
			return nil
		}
		return fmt.Errorf("create index %s failed: %s - %s", index, resp.Status, string(respBody))
	}
	return nil
}

type bulkAction struct {
	Index bulkTarget `json:"index"`
}

type bulkTarget struct {
	Index string `json:"_index"`
	ID    string `json:"_id"`
}

type bulkResponse struct {
	Errors bool                         `json:"errors"`
	Items  []map[string]bulkItemOutcome `json:"items"`
}

type bulkItemOutcome struct {
	ID     string          `json:"_id"`
	Status int             `json:"status"`
	Error  json.RawMessage `json:"error,omitempty"`
}

type itemError struct {
	Type   string `json:"type"`
	Reason string `json:"reason"`
}

// Bulk upserts documents through one _bulk request. Documents are written
// with index actions so replays overwrite.
func (s *SearchIndex) Bulk(ctx context.Context, index string, docs []*domain.Document) (*driven.BulkResponse, error) {
	if len(docs) == 0 {
		return &driven.BulkResponse{}, nil
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, doc := range docs {
		if err := enc.Encode(bulkAction{Index: bulkTarget{Index: index, ID: doc.ID}}); err != nil {
			return nil, err
		}
		if err := enc.Encode(doc.Fields); err != nil {
			return nil, fmt.Errorf("encode document %s: %w", doc.ID, err)
		}
	}

	resp, err := s.do(ctx, http.MethodPost, "/_bulk", "application/x-ndjson", &buf)
	if err != nil {
		return nil, fmt.Errorf("bulk request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, errorFromResponse("bulk request", resp)
	}

	var parsed bulkResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode bulk response: %w", err)
	}

	out := &driven.BulkResponse{Items: make([]driven.BulkItemResult, 0, len(parsed.Items))}
	for _, entry := range parsed.Items {
		for _, item := range entry {
			out.Items = append(out.Items, driven.BulkItemResult{
				DocumentID: item.ID,
				Status:     item.Status,
				Error:      describeItemError(item.Error),
			})
		}
	}
	return out, nil
}

func describeItemError(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var e itemError
	if err := json.Unmarshal(raw, &e); err != nil || e.Type == "" {
		return string(raw)
	}
	if e.Reason == "" {
		return e.Type
	}
	return e.Type + ": " + e.Reason
}

// Refresh makes recent writes visible to search
func (s *SearchIndex) Refresh(ctx context.Context, index string) error {
	resp, err := s.do(ctx, http.MethodPost, "/"+url.PathEscape(index)+"/_refresh", "", nil)
	if err != nil {
		return fmt.Errorf("refresh %s: %w", index, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return errorFromResponse("refresh "+index, resp)
	}
	return nil
}

type searchResponse struct {
	ScrollID string `json:"_scroll_id"`
	Hits     struct {
		Hits []searchHit `json:"hits"`
	} `json:"hits"`
}

type searchHit struct {
	ID     string `json:"_id"`
	Source struct {
		RowID      json.Number `json:"_row_id"`
		ModifyTime string      `json:"_modify_time"`
	} `json:"_source"`
}

// AllIDs exports every indexed row id with the scroll API, pageSize hits per page.
// A missing index has no ids.
func (s *SearchIndex) AllIDs(ctx context.Context, index string, pageSize int) ([]int64, error) {
	query := map[string]any{
		"size":    pageSize,
		"_source": []string{domain.MetaRowID},
		"sort":    []string{"_doc"},
	}
	body, err := json.Marshal(query)
	if err != nil {
		return nil, err
	}

	path := "/" + url.PathEscape(index) + "/_search?scroll=" + scrollKeepAlive
	page, found, err := s.search(ctx, path, body)
	if err != nil || !found {
		return nil, err
	}

	scrollID := page.ScrollID
	defer s.clearScroll(scrollID)

	var ids []int64
	for len(page.Hits.Hits) > 0 {
		for _, hit := range page.Hits.Hits {
			id, err := hit.Source.RowID.Int64()
			if err != nil {
				return nil, fmt.Errorf("document %s has no usable %s: %w", hit.ID, domain.MetaRowID, err)
			}
			ids = append(ids, id)
		}

		body, err := json.Marshal(map[string]string{"scroll": scrollKeepAlive, "scroll_id": scrollID})
		if err != nil {
			return nil, err
		}
		if page, _, err = s.search(ctx, "/_search/scroll", body); err != nil {
			return nil, err
		}
		if page.ScrollID != "" {
			scrollID = page.ScrollID
		}
	}
	return ids, nil
}

// clearScroll releases the scroll context. Failures only delay cleanup on
// the cluster, which expires it after scrollKeepAlive anyway.
func (s *SearchIndex) clearScroll(scrollID string) {
	if scrollID == "" {
		return
	}
	body, err := json.Marshal(map[string][]string{"scroll_id": {scrollID}})
	if err != nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	resp, err := s.do(ctx, http.MethodDelete, "/_search/scroll", "application/json", bytes.NewReader(body))
	if err != nil {
		return
	}
	resp.Body.Close()
}

// search posts a query. found is false when the index does not exist.
func (s *SearchIndex) search(ctx context.Context, path string, body []byte) (*searchResponse, bool, error) {
	resp, err := s.do(ctx, http.MethodPost, path, "application/json", bytes.NewReader(body))
	if err != nil {
		return nil, false, fmt.Errorf("search: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound && !strings.HasPrefix(path, "/_search/scroll") {
		return nil, false, nil
	}
	if resp.StatusCode >= 400 {
		return nil, false, errorFromResponse("search", resp)
	}

	var parsed searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, false, fmt.Errorf("decode search response: %w", err)
	}
	return &parsed, true, nil
}

// LatestCursor returns the greatest (modify_time, row id) present in index,
// or nil when the index holds no documents with a modify time
func (s *SearchIndex) LatestCursor(ctx context.Context, index string) (*domain.TimeIDCursor, error) {
	query := map[string]any{
		"size":    1,
		"_source": []string{domain.MetaModifyTime, domain.MetaRowID},
		"query":   map[string]any{"exists": map[string]string{"field": domain.MetaModifyTime}},
		"sort": []map[string]string{
			{domain.MetaModifyTime: "desc"},
			{domain.MetaRowID: "desc"},
		},
	}
	body, err := json.Marshal(query)
	if err != nil {
		return nil, err
	}

	page, found, err := s.search(ctx, "/"+url.PathEscape(index)+"/_search", body)
	if err != nil || !found || len(page.Hits.Hits) == 0 {
		return nil, err
	}

	hit := page.Hits.Hits[0]
	modified, err := domain.ParseCanonicalTime(hit.Source.ModifyTime)
	if err != nil {
		return nil, fmt.Errorf("document %s has malformed %s: %w", hit.ID, domain.MetaModifyTime, err)
	}
	id, err := hit.Source.RowID.Int64()
	if err != nil {
		return nil, fmt.Errorf("document %s has no usable %s: %w", hit.ID, domain.MetaRowID, err)
	}
	return &domain.TimeIDCursor{LastModifyTime: modified, LastID: id}, nil
}

// HealthCheck verifies the search cluster is available
func (s *SearchIndex) HealthCheck(ctx context.Context) error {
	resp, err := s.do(ctx, http.MethodGet, "/_cluster/health", "", nil)
	if err != nil {
		return fmt.Errorf("search health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("search cluster unhealthy: %s", resp.Status)
	}

	var health struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		return fmt.Errorf("decode cluster health: %w", err)
	}
	if health.Status == "red" {
		return fmt.Errorf("search cluster unhealthy: status %s", health.Status)
	}
	return nil
}
