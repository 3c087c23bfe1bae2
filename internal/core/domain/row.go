package domain

import (
	"encoding/json"
	"math"
	"strconv"
	"time"
)

// ValueKind enumerates the scalar kinds a column value can take
type ValueKind int

const (
	KindNull ValueKind = iota
	KindString
	KindInt
	KindFloat
	KindTime
)

// Value is a loosely-typed scalar read from the relational store or
// written into a document.
type Value struct {
	Kind  ValueKind
	Str   string
	Int   int64
	Float float64
	Time  time.Time
}

// Null is the null value
var Null = Value{Kind: KindNull}

func StringValue(s string) Value { return Value{Kind: KindString, Str: s} }
func IntValue(i int64) Value { return Value{Kind: KindInt, Int: i} }
func FloatValue(f float64) Value { return Value{Kind: KindFloat, Float: f} }
func TimeValue(t time.Time) Value { return Value{Kind: KindTime, Time: t} }
func (v Value) IsNull() bool { return v.Kind == KindNull }
func (v Value) IsNumber() bool { return v.Kind == KindInt || v.Kind == KindFloat }

// ValueOf converts a driver value into a Value. Unknown types degrade to
// their string form.
func ValueOf(raw any) Value {
	switch x := raw.(type) {
	case nil:
		return Null
	case string:
		return StringValue(x)
	case []byte:
		return StringValue(string(x))
	case int:
		return IntValue(int64(x))
	case int8:
		return IntValue(int64(x))
	case int16:
		return IntValue(int64(x))
	case int32:
		return IntValue(int64(x))
	case int64:
		return IntValue(x)
	case uint8:
		return IntValue(int64(x))
	case uint16:
		return IntValue(int64(x))
	case uint32:
		return IntValue(int64(x))
	case uint64:
		return IntValue(int64(x))
	case float32:
		return FloatValue(float64(x))
	case float64:
		return FloatValue(x)
	case bool:
		if x {
			return IntValue(1)
		}
		return IntValue(0)
	case time.Time:
		return TimeValue(x)
	case Value:
		return x
	default:
		b, err := json.Marshal(x)
		if err != nil {
			return Null
		}
		return StringValue(string(b))
	}
}

// String renders the value for display. Null renders as the empty string.
func (v Value) String() string {
	switch v.Kind {
	case KindString:
		return v.Str
	case KindInt:
		return strconv.FormatInt(v.Int, 10)
	case KindFloat:
		return strconv.FormatFloat(v.Float, 'f', -1, 64)
	case KindTime:
		return v.Time.Format(CanonicalTimeLayout)
	default:
		return ""
	}
}

// AsInt64 interprets the value as an integer id.
func (v Value) AsInt64() (int64, bool) {
	switch v.Kind {
	case KindInt:
		return v.Int, true
	case KindFloat:
		return int64(v.Float), v.Float == float64(int64(v.Float))
	case KindString:
		i, err := strconv.ParseInt(v.Str, 10, 64)
		return i, err == nil
	default:
		return 0, false
	}
}

// MarshalJSON encodes the value as its natural JSON scalar.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.Kind {
	case KindString:
		return json.Marshal(v.Str)
	case KindInt:
		return []byte(strconv.FormatInt(v.Int, 10)), nil
	case KindFloat:
		if math.IsNaN(v.Float) || math.IsInf(v.Float, 0) {
			return []byte("null"), nil
		}
		return json.Marshal(v.Float)
	case KindTime:
		return json.Marshal(v.Time.Format(CanonicalTimeLayout))
	default:
		return []byte("null"), nil
	}
}

// CanonicalTimeLayout is the extended ISO layout every date is normalized to
const CanonicalTimeLayout = "2006-01-02T15:04:05.000"

// ParseCanonicalTime parses a value written with CanonicalTimeLayout. The
// result carries no zone; wall-clock fields are preserved as UTC.
func ParseCanonicalTime(s string) (time.Time, error) {
	return time.Parse(CanonicalTimeLayout, s)
}

// DateLayouts are the string forms a date column may hold. A fractional
// second after the seconds field is accepted by every layout that has one.
var DateLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// ParseDateTime parses s with the first matching layout in DateLayouts.
func ParseDateTime(s string) (time.Time, bool) {
	for _, layout := range DateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// AsTime interprets the value as a timestamp. Strings are accepted in any
// of DateLayouts.
func (v Value) AsTime() (time.Time, bool) {
	switch v.Kind {
	case KindTime:
		return v.Time, true
	case KindString:
		return ParseDateTime(v.Str)
	default:
		return time.Time{}, false
	}
}

// Column is one named value of a row
type Column struct {
	Name  string
	Value Value
}

// Row is one relational record in column order. Rows exist only for the
// duration of a batch.
type Row []Column

// Get returns the value of a column, or Null when absent.
func (r Row) Get(name string) Value {
	for _, c := range r {
		if c.Name == name {
			return c.Value
		}
	}
	return Null
}

// ID returns the row's integer id from idColumn.
func (r Row) ID(idColumn string) (int64, bool) {
	return r.Get(idColumn).AsInt64()
}

// NewRow builds a row from parallel column and value slices.
func NewRow(columns []string, values []any) Row {
	row := make(Row, 0, len(columns))
	for i, name := range columns {
		var raw any
		if i < len(values) {
			raw = values[i]
		}
		row = append(row, Column{Name: name, Value: ValueOf(raw)})
	}
	return row
}
