package services

import (
	"time"

	"github.com/h10086733/es-admin-sub000/internal/core/domain"
	"github.com/h10086733/es-admin-sub000/internal/core/ports/driven/mocks"
)

var baseTime = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

func leaveSource() *domain.Source {
	return &domain.Source{
		ID:    "1001",
		Name:  "Leave requests",
		Table: "form_leave",
		Fields: []domain.Field{
			{Name: "title", Type: domain.FieldTypeText, Label: "Title"},
			{Name: "days", Type: domain.FieldTypeNumber, Label: "Days"},
			{Name: "start_date", Type: domain.FieldTypeDate, Label: "Start Date"},
			{Name: "create_by", Type: domain.FieldTypeMember},
			{Name: "modify_by", Type: domain.FieldTypeMember, Label: "Editor"},
		},
		Views: []domain.View{
			{Name: "default", Fields: []string{"title", "create_by"}},
		},
	}
}

func formRow(id int64, title string, modified time.Time) domain.Row {
	mt := domain.Null
	if !modified.IsZero() {
		mt = domain.TimeValue(modified)
	}
	return domain.Row{
		{Name: "id", Value: domain.IntValue(id)},
		{Name: "title", Value: domain.StringValue(title)},
		{Name: "modify_time", Value: mt},
	}
}

// seedRows inserts rows with ids first..last, all modified at the same instant.
func seedRows(store *mocks.MockRowStore, table string, first, last int64, modified time.Time) {
	store.CreateTable(table)
	for id := first; id <= last; id++ {
		store.Put(table, "id", formRow(id, "row", modified))
	}
}

func rowIDs(rows []domain.Row) []int64 {
	ids := make([]int64, 0, len(rows))
	for _, r := range rows {
		id, _ := r.ID("id")
		ids = append(ids, id)
	}
	return ids
}
