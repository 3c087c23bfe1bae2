package domain

import (
	"bytes"
	"encoding/json"
	"strconv"
	"time"
)

// Engine metadata keys added to every document
const (
	MetaSourceID      = "_source_id"
	MetaTableName     = "_table_name"
	MetaSyncTime      = "_sync_time"
	MetaRowID         = "_row_id"
	MetaModifyTime    = "_modify_time"
	MetaPrimaryField  = "_primary_field_"
	MetaPrimaryValue  = "_primary_value_"
	MaxPrimaryDisplay = 6
)

// DocField is a (key, value) pair of a document
type DocField struct {
	Key   string
	Value Value
}

// OrderedFields is a document body that keeps insertion order.
// Setting an existing key replaces its value in place.
type OrderedFields struct {
	fields []DocField
	index  map[string]int
}

// Set adds or replaces key.
func (o *OrderedFields) Set(key string, v Value) {
	if o.index == nil {
		o.index = make(map[string]int)
	}
	if i, ok := o.index[key]; ok {
		o.fields[i].Value = v
		return
	}
	o.index[key] = len(o.fields)
	o.fields = append(o.fields, DocField{Key: key, Value: v})
}

// Get returns the value stored under key.
func (o *OrderedFields) Get(key string) (Value, bool) {
	i, ok := o.index[key]
	if !ok {
		return Null, false
	}
	return o.fields[i].Value, true
}

// Has reports whether key is present.
func (o *OrderedFields) Has(key string) bool {
	_, ok := o.index[key]
	return ok
}

// Len returns the number of fields.
func (o *OrderedFields) Len() int { return len(o.fields) }

// Fields returns the pairs in insertion order.
func (o *OrderedFields) Fields() []DocField {
	out := make([]DocField, len(o.fields))
	copy(out, o.fields)
	return out
}

// MarshalJSON writes a JSON object whose keys follow insertion order.
func (o OrderedFields) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, f := range o.fields {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(f.Key)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		val, err := f.Value.MarshalJSON()
		if err != nil {
			return nil, err
		}
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Document is the search-index representation of one row
type Document struct {
	ID       string
	Index    string
	SourceID string
	RowID    int64
	Fields   OrderedFields
	SyncTime time.Time
}

// DocumentID returns the stable id for a row. Replays overwrite rather than duplicate.
func DocumentID(sourceID string, rowID int64) string {
	return sourceID + "_" + strconv.FormatInt(rowID, 10)
}

// IndexMapping is the field mapping used when creating an index
type IndexMapping struct {
	Properties map[string]FieldMapping `json:"properties"`
}

// FieldMapping describes how one document key is indexed
type FieldMapping struct {
	Type            string                  `json:"type"`
	Format          string                  `json:"format,omitempty"`
	IgnoreMalformed bool                    `json:"ignore_malformed,omitempty"`
	IgnoreAbove     int                     `json:"ignore_above,omitempty"`
	Fields          map[string]FieldMapping `json:"fields,omitempty"`
}
