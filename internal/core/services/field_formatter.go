package services

import (
	"regexp"

	"github.com/h10086733/es-admin-sub000/internal/core/domain"
)

// hiddenColumns are bookkeeping columns never copied into a document body.
// The row id and modify time still reach the document as metadata.
var hiddenColumns = []string{"id", "status", "flow_status", "deleted", "create_time", "modify_time"}

// referenceColumns are audit columns whose values are member ids.
var referenceColumns = map[string]string{
	"create_by":  "Creator",
	"modify_by":  "Last Modifier",
	"approve_by": "Approver",
	"ratify_by":  "Ratifier",
}

var dateLikePattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}([ T]\d{2}:\d{2}:\d{2}(\.\d+)?)?$`)

// FieldFormatter is the pure value layer of document building: labels,
// hidden fields, reference resolution and date normalization.
type FieldFormatter struct {
	labels map[string]string
	hidden map[string]bool
	refs   *ReferenceCache
}

// NewFieldFormatter builds a formatter for one source and run.
func NewFieldFormatter(source *domain.Source, refs *ReferenceCache) *FieldFormatter {
	if refs == nil {
		refs = NewReferenceCache(nil)
	}
	hidden := make(map[string]bool, len(hiddenColumns)+2)
	for _, c := range hiddenColumns {
		hidden[c] = true
	}
	hidden[source.IDCol()] = true
	hidden[source.ModifyTimeCol()] = true

	return &FieldFormatter{
		labels: source.Labels(),
		hidden: hidden,
		refs:   refs,
	}
}

// Hidden reports whether column is a system column.
func (f *FieldFormatter) Hidden(column string) bool {
	return f.hidden[column]
}

// Label returns the display label of column, or the column name itself.
func (f *FieldFormatter) Label(column string) string {
	if label, ok := f.labels[column]; ok {
		return label
	}
	return column
}

// ReferenceLabel returns the label under which a resolved reference is
// stored. ok is false for ordinary columns.
func (f *FieldFormatter) ReferenceLabel(column string) (string, bool) {
	fallback, ok := referenceColumns[column]
	if !ok {
		return "", false
	}
	if label, ok := f.labels[column]; ok {
		return label, true
	}
	return fallback, true
}

// Resolve maps a reference id to a display name.
func (f *FieldFormatter) Resolve(v domain.Value) domain.Value {
	if v.IsNull() {
		return domain.Null
	}
	return domain.StringValue(f.refs.Resolve(v))
}

// Format normalizes one column value.
func (f *FieldFormatter) Format(v domain.Value) domain.Value {
	return NormalizeDate(v)
}

// NormalizeDate converts typed times and date-like strings to a time value,
// which encodes in the canonical layout. Anything else, including strings
// that look like dates but do not parse, is returned unchanged.
func NormalizeDate(v domain.Value) domain.Value {
	switch v.Kind {
	case domain.KindTime:
		return v
	case domain.KindString:
		if !dateLikePattern.MatchString(v.Str) {
			return v
		}
		if t, ok := domain.ParseDateTime(v.Str); ok {
			return domain.TimeValue(t)
		}
		return v
	default:
		return v
	}
}
