package services

import (
	"fmt"
	"strconv"
	"time"

	"github.com/h10086733/es-admin-sub000/internal/core/domain"
)

// DateFormats lists the input formats accepted by date fields in the index
const DateFormats = "strict_date_optional_time||yyyy-MM-dd HH:mm:ss||yyyy-MM-dd||epoch_millis"

// DocumentBuilder turns rows of one source into search documents
type DocumentBuilder struct {
	source    *domain.Source
	index     string
	formatter *FieldFormatter
	primary   []string
	now       func() time.Time
}

// NewDocumentBuilder creates a builder writing to index.
func NewDocumentBuilder(source *domain.Source, index string, formatter *FieldFormatter) *DocumentBuilder {
	primary := source.PrimaryDisplayFields()
	if len(primary) > domain.MaxPrimaryDisplay {
		primary = primary[:domain.MaxPrimaryDisplay]
	}
	return &DocumentBuilder{
		source:    source,
		index:     index,
		formatter: formatter,
		primary:   primary,
		now:       time.Now,
	}
}

// Build converts one row. It fails only when the row has no integer id.
func (b *DocumentBuilder) Build(row domain.Row) (*domain.Document, error) {
	rowID, ok := row.ID(b.source.IDCol())
	if !ok {
		return nil, fmt.Errorf("row in %s has no integer %s", b.source.Table, b.source.IDCol())
	}
	syncTime := b.now()

	var fields domain.OrderedFields
	for _, col := range row {
		if b.formatter.Hidden(col.Name) {
			continue
		}
		if label, ok := b.formatter.ReferenceLabel(col.Name); ok {
			fields.Set(col.Name, col.Value)
			fields.Set(label, b.formatter.Resolve(col.Value))
			continue
		}
		fields.Set(b.formatter.Label(col.Name), b.formatter.Format(col.Value))
	}

	for i, name := range b.primary {
		n := strconv.Itoa(i + 1)
		fields.Set(domain.MetaPrimaryField+n, domain.StringValue(b.displayName(name)))
		fields.Set(domain.MetaPrimaryValue+n, b.primaryValue(row, name))
	}

	fields.Set(domain.MetaSourceID, domain.StringValue(b.source.ID))
	fields.Set(domain.MetaTableName, domain.StringValue(b.source.Table))
	fields.Set(domain.MetaSyncTime, domain.TimeValue(syncTime))
	fields.Set(domain.MetaRowID, domain.IntValue(rowID))
	fields.Set(domain.MetaModifyTime, NormalizeDate(row.Get(b.source.ModifyTimeCol())))

	return &domain.Document{
		ID:       domain.DocumentID(b.source.ID, rowID),
		Index:    b.index,
		SourceID: b.source.ID,
		RowID:    rowID,
		Fields:   fields,
		SyncTime: syncTime,
	}, nil
}

func (b *DocumentBuilder) displayName(column string) string {
	if label, ok := b.formatter.ReferenceLabel(column); ok {
		return label
	}
	return b.formatter.Label(column)
}

func (b *DocumentBuilder) primaryValue(row domain.Row, name string) domain.Value {
	v := row.Get(name)
	if _, ok := b.formatter.ReferenceLabel(name); ok {
		return b.formatter.Resolve(v)
	}
	return b.formatter.Format(v)
}

// BuildAll converts a batch. Rows that cannot be built are counted in skipped.
func (b *DocumentBuilder) BuildAll(rows []domain.Row) (docs []*domain.Document, skipped int) {
	docs = make([]*domain.Document, 0, len(rows))
	for _, row := range rows {
		doc, err := b.Build(row)
		if err != nil {
			skipped++
			continue
		}
		docs = append(docs, doc)
	}
	return docs, skipped
}

// Mapping returns the index mapping for documents built from source.
func Mapping(source *domain.Source) domain.IndexMapping {
	formatter := NewFieldFormatter(source, nil)
	props := map[string]domain.FieldMapping{
		domain.MetaSourceID:   keywordMapping(),
		domain.MetaTableName:  keywordMapping(),
		domain.MetaSyncTime:   dateMapping(),
		domain.MetaRowID:      {Type: "long"},
		domain.MetaModifyTime: dateMapping(),
	}
	for i := 1; i <= domain.MaxPrimaryDisplay; i++ {
		n := strconv.Itoa(i)
		props[domain.MetaPrimaryField+n] = keywordMapping()
		props[domain.MetaPrimaryValue+n] = textMapping()
	}

	for _, f := range source.Fields {
		if formatter.Hidden(f.Name) {
			continue
		}
		if label, ok := formatter.ReferenceLabel(f.Name); ok {
			props[f.Name] = keywordMapping()
			props[label] = textMapping()
			continue
		}
		props[formatter.Label(f.Name)] = fieldMapping(f.Type)
	}
	return domain.IndexMapping{Properties: props}
}

func fieldMapping(t domain.FieldType) domain.FieldMapping {
	switch t {
	case domain.FieldTypeNumber:
		return domain.FieldMapping{Type: "double", IgnoreMalformed: true}
	case domain.FieldTypeInteger:
		return domain.FieldMapping{Type: "long", IgnoreMalformed: true}
	case domain.FieldTypeDate, domain.FieldTypeDateTime:
		return dateMapping()
	case domain.FieldTypeMember:
		return keywordMapping()
	default:
		return textMapping()
	}
}

func keywordMapping() domain.FieldMapping {
	return domain.FieldMapping{Type: "keyword"}
}

func dateMapping() domain.FieldMapping {
	return domain.FieldMapping{Type: "date", Format: DateFormats, IgnoreMalformed: true}
}

func textMapping() domain.FieldMapping {
	return domain.FieldMapping{
		Type: "text",
		Fields: map[string]domain.FieldMapping{
			"keyword": {Type: "keyword", IgnoreAbove: 256},
		},
	}
}
