package elasticsearch

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/h10086733/es-admin-sub000/internal/core/domain"
)

func newTestIndex(t *testing.T, handler http.HandlerFunc) *SearchIndex {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	idx, err := NewSearchIndex(Config{BaseURL: srv.URL + "/", Username: "elastic", Password: "changeme", Timeout: 5 * time.Second})
	require.NoError(t, err)
	return idx
}

func TestValidateEndpoint(t *testing.T) {
	tests := []struct {
		name      string
		endpoint  string
		want      string
		wantError bool
	}{
		{name: "valid http endpoint", endpoint: "http://localhost:9200", want: "http://localhost:9200"},
		{name: "valid https endpoint", endpoint: "https://search.example.com:9243", want: "https://search.example.com:9243"},
		{name: "strips trailing slash", endpoint: "http://localhost:9200/", want: "http://localhost:9200"},
		{name: "rejects empty string", endpoint: "", wantError: true},
		{name: "rejects file scheme", endpoint: "file:///etc/passwd", wantError: true},
		{name: "rejects no scheme", endpoint: "localhost:9200", wantError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := validateEndpoint(tt.endpoint)
			if tt.wantError {
				if err == nil {
					t.Errorf("validateEndpoint(%q) expected error, got nil", tt.endpoint)
				}
				return
			}
			if err != nil {
				t.Errorf("validateEndpoint(%q) unexpected error: %v", tt.endpoint, err)
				return
			}
			if got != tt.want {
				t.Errorf("validateEndpoint(%q) = %q, want %q", tt.endpoint, got, tt.want)
			}
		})
	}
}

func TestEnsureIndex_CreatesMissingIndex(t *testing.T) {
	var created atomic.Bool
	idx := newTestIndex(t, func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "elastic", user)
		assert.Equal(t, "changeme", pass)
		assert.Equal(t, "/form_leave", r.URL.Path)

		switch r.Method {
		case http.MethodHead:
			w.WriteHeader(http.StatusNotFound)
		case http.MethodPut:
			var body struct {
				Mappings domain.IndexMapping `json:"mappings"`
			}
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, "long", body.Mappings.Properties[domain.MetaRowID].Type)
			created.Store(true)
			w.Write([]byte(`{"acknowledged":true}`))
		}
	})

	mapping := domain.IndexMapping{Properties: map[string]domain.FieldMapping{domain.MetaRowID: {Type: "long"}}}
	require.NoError(t, idx.EnsureIndex(context.Background(), "form_leave", mapping))
	assert.True(t, created.Load())
}

func TestEnsureIndex_ExistingIndex(t *testing.T) {
	idx := newTestIndex(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodHead {
			t.Errorf("unexpected %s", r.Method)
		}
		w.WriteHeader(http.StatusOK)
	})

	require.NoError(t, idx.EnsureIndex(context.Background(), "form_leave", domain.IndexMapping{}))
}

func TestEnsureIndex_CreateRace(t *testing.T) {
	idx := newTestIndex(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":{"type":"resource_already_exists_exception"},"status":400}`))
	})

	require.NoError(t, idx.EnsureIndex(context.Background(), "form_leave", domain.IndexMapping{}))
}

func TestEnsureIndex_ServerError(t *testing.T) {
	idx := newTestIndex(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	assert.Error(t, idx.EnsureIndex(context.Background(), "form_leave", domain.IndexMapping{}))
}

func testDocument(id string, rowID int64, title string) *domain.Document {
	doc := &domain.Document{ID: id, Index: "form_leave", RowID: rowID}
	doc.Fields.Set("Title", domain.StringValue(title))
	doc.Fields.Set(domain.MetaRowID, domain.IntValue(rowID))
	return doc
}

func TestBulk_EncodesNDJSONAndParsesItems(t *testing.T) {
	idx := newTestIndex(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/_bulk", r.URL.Path)
		assert.Equal(t, "application/x-ndjson", r.Header.Get("Content-Type"))

		var lines []string
		scanner := bufio.NewScanner(r.Body)
		for scanner.Scan() {
			lines = append(lines, scanner.Text())
		}
		if !assert.Len(t, lines, 4) {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		assert.JSONEq(t, `{"index":{"_index":"form_leave","_id":"leave_1"}}`, lines[0])
		assert.Equal(t, `{"Title":"Annual","_row_id":1}`, lines[1])
		assert.JSONEq(t, `{"index":{"_index":"form_leave","_id":"leave_2"}}`, lines[2])

		w.Write([]byte(`{"took":3,"errors":true,"items":[
			{"index":{"_id":"leave_1","status":201}},
			{"index":{"_id":"leave_2","status":400,"error":{"type":"mapper_parsing_exception","reason":"failed to parse field [Days]"}}}
		]}`))
	})

	resp, err := idx.Bulk(context.Background(), "form_leave", []*domain.Document{
		testDocument("leave_1", 1, "Annual"),
		testDocument("leave_2", 2, "Sick"),
	})
	require.NoError(t, err)
	require.Len(t, resp.Items, 2)
	assert.False(t, resp.Items[0].Failed())

	failures := resp.Failures()
	require.Len(t, failures, 1)
	assert.Equal(t, "leave_2", failures[0].DocumentID)
	assert.Equal(t, "mapper_parsing_exception: failed to parse field [Days]", failures[0].Error)
}

func TestBulk_NonFiniteFloatIsSentAsNull(t *testing.T) {
	var lines []string
	idx := newTestIndex(t, func(w http.ResponseWriter, r *http.Request) {
		scanner := bufio.NewScanner(r.Body)
		for scanner.Scan() {
			lines = append(lines, scanner.Text())
		}
		w.Write([]byte(`{"took":1,"errors":false,"items":[
			{"index":{"_id":"leave_1","status":201}},
			{"index":{"_id":"leave_2","status":201}}
		]}`))
	})

	broken := testDocument("leave_2", 2, "Sick")
	broken.Fields.Set("Days", domain.FloatValue(math.NaN()))

	resp, err := idx.Bulk(context.Background(), "form_leave", []*domain.Document{
		testDocument("leave_1", 1, "Annual"),
		broken,
	})
	require.NoError(t, err)
	assert.Empty(t, resp.Failures())
	require.Len(t, lines, 4)
	assert.Equal(t, `{"Title":"Sick","_row_id":2,"Days":null}`, lines[3])
}

func TestBulk_Empty(t *testing.T) {
	idx := newTestIndex(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected for an empty batch")
	})

	resp, err := idx.Bulk(context.Background(), "form_leave", nil)
	require.NoError(t, err)
	assert.Empty(t, resp.Items)
}

func TestBulk_RequestFailure(t *testing.T) {
	idx := newTestIndex(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":"es_rejected_execution_exception"}`))
	})

	_, err := idx.Bulk(context.Background(), "form_leave", []*domain.Document{testDocument("leave_1", 1, "x")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")
}

func TestRefresh(t *testing.T) {
	var called atomic.Bool
	idx := newTestIndex(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/form_leave/_refresh", r.URL.Path)
		called.Store(true)
		w.Write([]byte(`{}`))
	})

	require.NoError(t, idx.Refresh(context.Background(), "form_leave"))
	assert.True(t, called.Load())
}

func TestAllIDs_ScrollsEveryPage(t *testing.T) {
	var cleared atomic.Bool
	idx := newTestIndex(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/form_leave/_search":
			assert.Equal(t, "1m", r.URL.Query().Get("scroll"))
			var body map[string]any
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, float64(2), body["size"])
			w.Write([]byte(`{"_scroll_id":"s1","hits":{"hits":[
				{"_id":"leave_1","_source":{"_row_id":1}},
				{"_id":"leave_2","_source":{"_row_id":2}}]}}`))
		case r.URL.Path == "/_search/scroll" && r.Method == http.MethodPost:
			raw, _ := io.ReadAll(r.Body)
			if strings.Contains(string(raw), `"s1"`) {
				w.Write([]byte(`{"_scroll_id":"s2","hits":{"hits":[{"_id":"leave_5","_source":{"_row_id":5}}]}}`))
				return
			}
			w.Write([]byte(`{"_scroll_id":"s2","hits":{"hits":[]}}`))
		case r.URL.Path == "/_search/scroll" && r.Method == http.MethodDelete:
			cleared.Store(true)
			w.Write([]byte(`{"succeeded":true}`))
		default:
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
		}
	})

	ids, err := idx.AllIDs(context.Background(), "form_leave", 2)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2, 5}, ids)
	assert.True(t, cleared.Load())
}

func TestAllIDs_MissingIndex(t *testing.T) {
	idx := newTestIndex(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	ids, err := idx.AllIDs(context.Background(), "form_gone", 100)
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestLatestCursor(t *testing.T) {
	idx := newTestIndex(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/form_leave/_search", r.URL.Path)
		raw, _ := io.ReadAll(r.Body)
		assert.Contains(t, string(raw), `"sort":[{"_modify_time":"desc"},{"_row_id":"desc"}]`)
		w.Write([]byte(`{"hits":{"hits":[{"_id":"leave_9","_source":{"_modify_time":"2024-03-01T09:30:00.500","_row_id":9}}]}}`))
	})

	cursor, err := idx.LatestCursor(context.Background(), "form_leave")
	require.NoError(t, err)
	require.NotNil(t, cursor)
	assert.Equal(t, int64(9), cursor.LastID)
	assert.True(t, cursor.LastModifyTime.Equal(time.Date(2024, 3, 1, 9, 30, 0, 500000000, time.UTC)))
}

func TestLatestCursor_EmptyIndex(t *testing.T) {
	idx := newTestIndex(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"hits":{"hits":[]}}`))
	})

	cursor, err := idx.LatestCursor(context.Background(), "form_leave")
	require.NoError(t, err)
	assert.Nil(t, cursor)
}

func TestLatestCursor_MalformedTime(t *testing.T) {
	idx := newTestIndex(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"hits":{"hits":[{"_id":"leave_9","_source":{"_modify_time":"yesterday","_row_id":9}}]}}`))
	})

	_, err := idx.LatestCursor(context.Background(), "form_leave")
	assert.Error(t, err)
}

func TestHealthCheck(t *testing.T) {
	var status atomic.Value
	status.Store("green")
	idx := newTestIndex(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/_cluster/health", r.URL.Path)
		w.Write([]byte(`{"cluster_name":"forms","status":"` + status.Load().(string) + `"}`))
	})

	require.NoError(t, idx.HealthCheck(context.Background()))

	status.Store("red")
	assert.Error(t, idx.HealthCheck(context.Background()))
}
