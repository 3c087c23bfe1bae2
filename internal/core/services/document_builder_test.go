package services

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/h10086733/es-admin-sub000/internal/core/domain"
)

func newTestBuilder(source *domain.Source) *DocumentBuilder {
	refs := NewReferenceCache(map[string]string{"42": "Alice"})
	b := NewDocumentBuilder(source, "form_1001", NewFieldFormatter(source, refs))
	b.now = func() time.Time { return baseTime }
	return b
}

func TestDocumentBuilder_Build(t *testing.T) {
	source := leaveSource()
	b := newTestBuilder(source)

	row := domain.Row{
		{Name: "id", Value: domain.IntValue(7)},
		{Name: "title", Value: domain.StringValue("Trip")},
		{Name: "days", Value: domain.FloatValue(2.5)},
		{Name: "start_date", Value: domain.StringValue("2024-03-04")},
		{Name: "create_by", Value: domain.IntValue(42)},
		{Name: "modify_by", Value: domain.StringValue("99")},
		{Name: "status", Value: domain.StringValue("approved")},
		{Name: "modify_time", Value: domain.TimeValue(baseTime)},
		{Name: "note", Value: domain.Null},
	}

	doc, err := b.Build(row)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if doc.ID != "1001_7" || doc.RowID != 7 || doc.Index != "form_1001" || doc.SourceID != "1001" {
		t.Errorf("unexpected document identity: %+v", doc)
	}

	var keys []string
	for _, f := range doc.Fields.Fields() {
		keys = append(keys, f.Key)
	}
	wantKeys := []string{
		"Title", "Days", "Start Date",
		"create_by", "Creator",
		"modify_by", "Editor",
		"note",
		"_primary_field_1", "_primary_value_1",
		"_primary_field_2", "_primary_value_2",
		"_source_id", "_table_name", "_sync_time", "_row_id", "_modify_time",
	}
	if strings.Join(keys, ",") != strings.Join(wantKeys, ",") {
		t.Fatalf("unexpected keys:\n got %v\nwant %v", keys, wantKeys)
	}

	checks := map[string]string{
		"Start Date":       "2024-03-04T00:00:00.000",
		"create_by":        "42",
		"Creator":          "Alice",
		"modify_by":        "99",
		"Editor":           "99",
		"_primary_field_1": "Title",
		"_primary_value_1": "Trip",
		"_primary_field_2": "Creator",
		"_primary_value_2": "Alice",
		"_source_id":       "1001",
		"_table_name":      "form_leave",
		"_sync_time":       "2024-03-01T09:00:00.000",
		"_row_id":          "7",
		"_modify_time":     "2024-03-01T09:00:00.000",
	}
	for key, want := range checks {
		v, ok := doc.Fields.Get(key)
		if !ok {
			t.Errorf("missing key %s", key)
			continue
		}
		if v.String() != want {
			t.Errorf("%s = %q, want %q", key, v.String(), want)
		}
	}
	if doc.Fields.Has("status") || doc.Fields.Has("id") || doc.Fields.Has("modify_time") {
		t.Error("hidden columns must not be copied")
	}
}

func TestDocumentBuilder_JSONKeepsOrder(t *testing.T) {
	b := newTestBuilder(&domain.Source{ID: "9", Table: "form_x"})
	doc, err := b.Build(domain.Row{
		{Name: "id", Value: domain.IntValue(1)},
		{Name: "zeta", Value: domain.StringValue("z")},
		{Name: "alpha", Value: domain.IntValue(3)},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	body, err := json.Marshal(doc.Fields)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	if !strings.HasPrefix(string(body), `{"zeta":"z","alpha":3,"_source_id":"9"`) {
		t.Errorf("unexpected body: %s", body)
	}
}

func TestDocumentBuilder_PrimaryFieldsCapped(t *testing.T) {
	source := &domain.Source{ID: "5", Table: "form_wide"}
	var fields []string
	row := domain.Row{{Name: "id", Value: domain.IntValue(1)}}
	for i := 0; i < 9; i++ {
		name := string(rune('a' + i))
		fields = append(fields, name)
		row = append(row, domain.Column{Name: name, Value: domain.StringValue(name)})
	}
	source.Views = []domain.View{{Name: "v", Fields: fields}}

	doc, err := newTestBuilder(source).Build(row)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !doc.Fields.Has("_primary_field_6") || doc.Fields.Has("_primary_field_7") {
		t.Error("primary display pairs should be capped at 6")
	}
}

func TestDocumentBuilder_MalformedDateDegrades(t *testing.T) {
	b := newTestBuilder(leaveSource())
	doc, err := b.Build(domain.Row{
		{Name: "id", Value: domain.IntValue(3)},
		{Name: "start_date", Value: domain.StringValue("2024-02-31")},
	})
	if err != nil {
		t.Fatalf("malformed date must not fail the row: %v", err)
	}
	v, _ := doc.Fields.Get("Start Date")
	if v.Kind != domain.KindString || v.Str != "2024-02-31" {
		t.Errorf("expected original string, got %+v", v)
	}
}

func TestDocumentBuilder_BuildAllSkipsRowsWithoutID(t *testing.T) {
	b := newTestBuilder(leaveSource())
	docs, skipped := b.BuildAll([]domain.Row{
		formRow(1, "a", baseTime),
		{{Name: "title", Value: domain.StringValue("no id")}},
		formRow(2, "b", baseTime),
	})
	if len(docs) != 2 || skipped != 1 {
		t.Errorf("expected 2 docs and 1 skipped, got %d and %d", len(docs), skipped)
	}
}

func TestMapping(t *testing.T) {
	m := Mapping(leaveSource())

	tests := []struct {
		key  string
		typ  string
		form string
	}{
		{"Title", "text", ""},
		{"Days", "double", ""},
		{"Start Date", "date", DateFormats},
		{"create_by", "keyword", ""},
		{"Creator", "text", ""},
		{"modify_by", "keyword", ""},
		{"Editor", "text", ""},
		{"_row_id", "long", ""},
		{"_source_id", "keyword", ""},
		{"_modify_time", "date", DateFormats},
		{"_primary_value_6", "text", ""},
	}
	for _, tt := range tests {
		fm, ok := m.Properties[tt.key]
		if !ok {
			t.Errorf("missing mapping for %s", tt.key)
			continue
		}
		if fm.Type != tt.typ || fm.Format != tt.form {
			t.Errorf("%s mapped as %s (%s), want %s (%s)", tt.key, fm.Type, fm.Format, tt.typ, tt.form)
		}
	}
	if _, ok := m.Properties["Title"].Fields["keyword"]; !ok {
		t.Error("text fields need a keyword subfield")
	}
}
