package services

import (
	"testing"
	"time"

	"github.com/h10086733/es-admin-sub000/internal/core/domain"
)

func TestNormalizeDate(t *testing.T) {
	tests := []struct {
		name string
		in   domain.Value
		want string
		kind domain.ValueKind
	}{
		{"date only", domain.StringValue("2024-03-01"), "2024-03-01T00:00:00.000", domain.KindTime},
		{"date time", domain.StringValue("2024-03-01 08:30:15"), "2024-03-01T08:30:15.000", domain.KindTime},
		{"fraction", domain.StringValue("2024-03-01 08:30:15.25"), "2024-03-01T08:30:15.250", domain.KindTime},
		{"iso separator", domain.StringValue("2024-03-01T08:30:15"), "2024-03-01T08:30:15.000", domain.KindTime},
		{"invalid month", domain.StringValue("2024-13-01"), "2024-13-01", domain.KindString},
		{"invalid day", domain.StringValue("2024-02-30 10:00:00"), "2024-02-30 10:00:00", domain.KindString},
		{"not a date", domain.StringValue("hello"), "hello", domain.KindString},
		{"number", domain.IntValue(20240301), "20240301", domain.KindInt},
		{"typed time", domain.TimeValue(time.Date(2024, 3, 1, 1, 2, 3, 4000000, time.UTC)), "2024-03-01T01:02:03.004", domain.KindTime},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NormalizeDate(tt.in)
			if got.Kind != tt.kind {
				t.Errorf("expected kind %d, got %d", tt.kind, got.Kind)
			}
			if got.String() != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got.String())
			}
		})
	}
}

func TestFieldFormatter(t *testing.T) {
	source := leaveSource()
	source.IDColumn = "row_id"
	f := NewFieldFormatter(source, NewReferenceCache(map[string]string{"42": "Alice"}))

	for _, col := range []string{"id", "status", "flow_status", "deleted", "create_time", "modify_time", "row_id"} {
		if !f.Hidden(col) {
			t.Errorf("expected %s to be hidden", col)
		}
	}
	if f.Hidden("title") {
		t.Error("title should not be hidden")
	}

	if f.Label("title") != "Title" || f.Label("unknown_col") != "unknown_col" {
		t.Errorf("unexpected labels: %s, %s", f.Label("title"), f.Label("unknown_col"))
	}

	tests := []struct {
		column string
		label  string
		ok     bool
	}{
		{"create_by", "Creator", true},
		{"modify_by", "Editor", true},
		{"approve_by", "Approver", true},
		{"ratify_by", "Ratifier", true},
		{"title", "", false},
	}
	for _, tt := range tests {
		label, ok := f.ReferenceLabel(tt.column)
		if label != tt.label || ok != tt.ok {
			t.Errorf("ReferenceLabel(%s) = (%q, %v), want (%q, %v)", tt.column, label, ok, tt.label, tt.ok)
		}
	}

	if got := f.Resolve(domain.IntValue(42)); got.String() != "Alice" {
		t.Errorf("expected Alice, got %s", got.String())
	}
	if got := f.Resolve(domain.Null); !got.IsNull() {
		t.Errorf("expected null, got %v", got)
	}
}
