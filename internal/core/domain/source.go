package domain

import (
	"fmt"
	"regexp"
	"strings"
)

// Default column names used when a source does not configure them.
const (
	DefaultIDColumn         = "id"
	DefaultModifyTimeColumn = "modify_time"
)

// FieldType is the declared type of a form field
type FieldType string

const (
	FieldTypeText     FieldType = "text"
	FieldTypeNumber   FieldType = "number"
	FieldTypeInteger  FieldType = "integer"
	FieldTypeDate     FieldType = "date"
	FieldTypeDateTime FieldType = "datetime"
	FieldTypeMember   FieldType = "member"
)

// Field describes one column of a form table
type Field struct {
	Name  string    `json:"name" yaml:"name"`
	Type  FieldType `json:"type" yaml:"type"`
	Label string    `json:"label" yaml:"label"`
}

// View is a configured list view of a form. The first view's field list
// drives the primary display fields of every document.
type View struct {
	Name   string   `json:"name" yaml:"name"`
	Fields []string `json:"fields" yaml:"fields"`
}

// SubTable describes a child/detail table owned by a form
type SubTable struct {
	Name         string  `json:"name" yaml:"name"`
	Table        string  `json:"table" yaml:"table"`
	ParentColumn string  `json:"parent_column,omitempty" yaml:"parent_column"`
	Fields       []Field `json:"fields" yaml:"fields"`
}

// Source is a relational table designated for synchronization into the index.
// It is immutable for the duration of one run.
type Source struct {
	ID               string     `json:"id" yaml:"id"`
	Name             string     `json:"name" yaml:"name"`
	Table            string     `json:"table" yaml:"table"`
	IDColumn         string     `json:"id_column,omitempty" yaml:"id_column"`
	ModifyTimeColumn string     `json:"modify_time_column,omitempty" yaml:"modify_time_column"`
	AutoSync         bool       `json:"auto_sync" yaml:"auto_sync"`
	Fields           []Field    `json:"fields" yaml:"fields"`
	Views            []View     `json:"views,omitempty" yaml:"views"`
	SubTables        []SubTable `json:"sub_tables,omitempty" yaml:"sub_tables"`

	// ParentID is set on derived child sources only
	ParentID string `json:"parent_id,omitempty" yaml:"-"`
}

var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ValidIdentifier reports whether name is safe to splice into SQL as a table or column name.
func ValidIdentifier(name string) bool {
	return identifierPattern.MatchString(name)
}

// IDCol returns the configured id column or the default.
func (s *Source) IDCol() string {
	if s.IDColumn == "" {
		return DefaultIDColumn
	}
	return s.IDColumn
}

// ModifyTimeCol returns the configured modify-time column or the default.
func (s *Source) ModifyTimeCol() string {
	if s.ModifyTimeColumn == "" {
		return DefaultModifyTimeColumn
	}
	return s.ModifyTimeColumn
}

// Validate checks that the source can be synchronized safely.
func (s *Source) Validate() error {
	if s.ID == "" {
		return fmt.Errorf("%w: source id is required", ErrInvalidInput)
	}
	for _, ident := range []string{s.Table, s.IDCol(), s.ModifyTimeCol()} {
		if !ValidIdentifier(ident) {
			return fmt.Errorf("%w: source %s: invalid identifier %q", ErrInvalidInput, s.ID, ident)
		}
	}
	seen := make(map[string]bool, len(s.SubTables))
	for _, sub := range s.SubTables {
		if sub.Name == "" || seen[sub.Name] {
			return fmt.Errorf("%w: source %s: sub table names must be unique and non-empty", ErrInvalidInput, s.ID)
		}
		seen[sub.Name] = true
		if !ValidIdentifier(sub.Table) {
			return fmt.Errorf("%w: source %s: invalid sub table %q", ErrInvalidInput, s.ID, sub.Table)
		}
	}
	return nil
}

// Labels maps raw column names to display labels. Fields without a label are omitted.
func (s *Source) Labels() map[string]string {
	labels := make(map[string]string, len(s.Fields))
	for _, f := range s.Fields {
		if f.Label != "" {
			labels[f.Name] = f.Label
		}
	}
	return labels
}

// Field looks up a field definition by column name.
func (s *Source) Field(name string) (Field, bool) {
	for _, f := range s.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// PrimaryDisplayFields returns the first configured view's field list, or nil.
func (s *Source) PrimaryDisplayFields() []string {
	if len(s.Views) == 0 {
		return nil
	}
	return s.Views[0].Fields
}

// IndexName returns the search index that holds this source's documents.
func (s *Source) IndexName(prefix string) string {
	return strings.ToLower(prefix + s.ID)
}

// ChildSource derives the source used for one child table pass. The derived
// id keeps parent and child documents from ever sharing an id or index.
func (s *Source) ChildSource(sub SubTable) *Source {
	return &Source{
		ID:               s.ID + "_" + sub.Name,
		Name:             s.Name + " / " + sub.Name,
		Table:            sub.Table,
		IDColumn:         s.IDColumn,
		ModifyTimeColumn: s.ModifyTimeColumn,
		Fields:           sub.Fields,
		ParentID:         s.ID,
	}
}

// IsChild reports whether this source was derived from a sub table.
func (s *Source) IsChild() bool {
	return s.ParentID != ""
}
