package sqlstore

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/h10086733/es-admin-sub000/internal/core/domain"
	"github.com/h10086733/es-admin-sub000/internal/core/ports/driven"
)

func setupRowStore(t *testing.T, driver Driver) (*RowStore, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	db, err := New(sqlDB, driver)
	require.NoError(t, err)
	return NewRowStore(db), mock
}

func q(s string) string {
	return regexp.QuoteMeta(s)
}

func TestNew_UnsupportedDriver(t *testing.T) {
	sqlDB, _, err := sqlmock.New()
	require.NoError(t, err)
	defer sqlDB.Close()

	_, err = New(sqlDB, Driver("oracle"))
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestMySQLDSN_ForcesParseTime(t *testing.T) {
	dsn, err := mysqlDSN("sync:secret@tcp(localhost:3306)/forms")
	require.NoError(t, err)
	assert.Contains(t, dsn, "parseTime=true")

	_, err = mysqlDSN("not a dsn")
	assert.Error(t, err)
}

func TestRowStore_TableExists(t *testing.T) {
	store, mock := setupRowStore(t, DriverPostgres)

	mock.ExpectQuery(q(postgresDialect.tableExists)).
		WithArgs("form_leave").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectQuery(q(postgresDialect.tableExists)).
		WithArgs("form_gone").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))

	exists, err := store.TableExists(context.Background(), "form_leave")
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = store.TableExists(context.Background(), "form_gone")
	require.NoError(t, err)
	assert.False(t, exists)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRowStore_RejectsUnsafeIdentifiers(t *testing.T) {
	store, mock := setupRowStore(t, DriverPostgres)
	ctx := context.Background()

	_, err := store.TableExists(ctx, "form; DROP TABLE users")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = store.FetchAfterID(ctx, driven.IDQuery{Table: "form_leave", IDColumn: "id\"--", Limit: 10})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	err = store.EnsureIndex(ctx, "form_leave", "idx bad", "id")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	err = store.EnsureIndex(ctx, "form_leave", "idx_form_leave_id")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRowStore_EnsureIndex_Postgres(t *testing.T) {
	store, mock := setupRowStore(t, DriverPostgres)

	mock.ExpectExec(q(`CREATE INDEX IF NOT EXISTS "idx_form_leave_mtime_id" ON "form_leave" ("modify_time", "id")`)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := store.EnsureIndex(context.Background(), "form_leave", "idx_form_leave_mtime_id", "modify_time", "id")
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRowStore_EnsureIndex_MySQL(t *testing.T) {
	store, mock := setupRowStore(t, DriverMySQL)
	ctx := context.Background()

	// Existing index: no DDL
	mock.ExpectQuery(q(mysqlDialect.indexExists)).
		WithArgs("form_leave", "idx_form_leave_id").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	// Missing index: created
	mock.ExpectQuery(q(mysqlDialect.indexExists)).
		WithArgs("form_leave", "idx_form_leave_mtime_id").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectExec(q("CREATE INDEX `idx_form_leave_mtime_id` ON `form_leave` (`modify_time`, `id`)")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, store.EnsureIndex(ctx, "form_leave", "idx_form_leave_id", "id"))
	require.NoError(t, store.EnsureIndex(ctx, "form_leave", "idx_form_leave_mtime_id", "modify_time", "id"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRowStore_EnsureIndex_Error(t *testing.T) {
	store, mock := setupRowStore(t, DriverPostgres)

	mock.ExpectExec("CREATE INDEX").WillReturnError(errors.New("permission denied"))

	err := store.EnsureIndex(context.Background(), "form_leave", "idx_form_leave_id", "id")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "permission denied")
}

func TestRowStore_ColumnIsTemporal(t *testing.T) {
	tests := []struct {
		name     string
		driver   Driver
		dataType string
		want     bool
	}{
		{"postgres timestamp", DriverPostgres, "timestamp without time zone", true},
		{"postgres timestamptz", DriverPostgres, "timestamp with time zone", true},
		{"postgres date", DriverPostgres, "date", true},
		{"postgres varchar", DriverPostgres, "character varying", false},
		{"mysql datetime", DriverMySQL, "datetime", true},
		{"mysql timestamp", DriverMySQL, "TIMESTAMP", true},
		{"mysql varchar", DriverMySQL, "varchar", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, mock := setupRowStore(t, tt.driver)
			mock.ExpectQuery(q(store.db.dialect.columnType)).
				WithArgs("form_leave", "modify_time").
				WillReturnRows(sqlmock.NewRows([]string{"data_type"}).AddRow(tt.dataType))

			got, err := store.ColumnIsTemporal(context.Background(), "form_leave", "modify_time")
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestRowStore_ColumnIsTemporal_MissingColumn(t *testing.T) {
	store, mock := setupRowStore(t, DriverPostgres)
	mock.ExpectQuery(q(postgresDialect.columnType)).
		WithArgs("form_leave", "modify_time").
		WillReturnRows(sqlmock.NewRows([]string{"data_type"}))

	got, err := store.ColumnIsTemporal(context.Background(), "form_leave", "modify_time")
	require.NoError(t, err)
	assert.False(t, got)

	mock.ExpectQuery(q(postgresDialect.columnType)).
		WillReturnError(errors.New("connection reset"))
	_, err = store.ColumnIsTemporal(context.Background(), "form_leave", "modify_time")
	assert.Error(t, err)
}

func TestRowStore_Count(t *testing.T) {
	store, mock := setupRowStore(t, DriverMySQL)

	mock.ExpectQuery(q("SELECT COUNT(*) FROM `form_leave`")).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(42))

	n, err := store.Count(context.Background(), "form_leave")
	require.NoError(t, err)
	assert.Equal(t, int64(42), n)
}

func TestRowStore_FetchAfterID_Unbounded(t *testing.T) {
	store, mock := setupRowStore(t, DriverPostgres)
	modified := time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)

	mock.ExpectQuery(q(`SELECT * FROM "form_leave" ORDER BY "id" LIMIT $1`)).
		WithArgs(2).
		WillReturnRows(sqlmock.NewRows([]string{"id", "title", "modify_time"}).
			AddRow(int64(1), []byte("Annual"), modified).
			AddRow(int64(2), nil, modified))

	rows, err := store.FetchAfterID(context.Background(), driven.IDQuery{
		Table: "form_leave", IDColumn: "id", Limit: 2,
	})
	require.NoError(t, err)
	require.Len(t, rows, 2)

	id, ok := rows[0].ID("id")
	assert.True(t, ok)
	assert.Equal(t, int64(1), id)
	assert.Equal(t, "Annual", rows[0].Get("title").String())
	assert.True(t, rows[1].Get("title").IsNull())

	ts, ok := rows[0].Get("modify_time").AsTime()
	assert.True(t, ok)
	assert.True(t, ts.Equal(modified))

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRowStore_FetchAfterID_NegativeBound(t *testing.T) {
	store, mock := setupRowStore(t, DriverMySQL)
	after := int64(-5)

	mock.ExpectQuery(q("SELECT * FROM `form_leave` WHERE `id` > ? ORDER BY `id` LIMIT ?")).
		WithArgs(int64(-5), 10).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(-4)))

	rows, err := store.FetchAfterID(context.Background(), driven.IDQuery{
		Table: "form_leave", IDColumn: "id", AfterID: &after, Limit: 10,
	})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRowStore_FetchAfterTimeID(t *testing.T) {
	store, mock := setupRowStore(t, DriverPostgres)
	cursor := &domain.TimeIDCursor{
		LastModifyTime: time.Date(2024, 3, 1, 9, 30, 0, 123000000, time.UTC),
		LastID:         7,
	}

	mock.ExpectQuery(q(`SELECT * FROM "form_leave" WHERE "modify_time" IS NOT NULL` +
		` AND ("modify_time" > $1 OR ("modify_time" = $2 AND "id" > $3))` +
		` ORDER BY "modify_time", "id" LIMIT $4`)).
		WithArgs("2024-03-01 09:30:00.123000", "2024-03-01 09:30:00.123000", int64(7), 100).
		WillReturnRows(sqlmock.NewRows([]string{"id", "modify_time"}).
			AddRow(int64(8), cursor.LastModifyTime))

	rows, err := store.FetchAfterTimeID(context.Background(), driven.TimeIDQuery{
		Table: "form_leave", IDColumn: "id", ModifyTimeColumn: "modify_time",
		After: cursor, Limit: 100,
	})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRowStore_FetchAfterTimeID_Unbounded(t *testing.T) {
	store, mock := setupRowStore(t, DriverMySQL)

	mock.ExpectQuery(q("SELECT * FROM `form_leave` WHERE `modify_time` IS NOT NULL ORDER BY `modify_time`, `id` LIMIT ?")).
		WithArgs(100).
		WillReturnRows(sqlmock.NewRows([]string{"id", "modify_time"}))

	rows, err := store.FetchAfterTimeID(context.Background(), driven.TimeIDQuery{
		Table: "form_leave", IDColumn: "id", ModifyTimeColumn: "modify_time", Limit: 100,
	})
	require.NoError(t, err)
	assert.Empty(t, rows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRowStore_FetchError(t *testing.T) {
	store, mock := setupRowStore(t, DriverPostgres)

	mock.ExpectQuery("SELECT").WillReturnError(errors.New("connection reset"))

	_, err := store.FetchAfterID(context.Background(), driven.IDQuery{Table: "form_leave", IDColumn: "id", Limit: 1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset")
}

func TestRowStore_LoadNames(t *testing.T) {
	store, mock := setupRowStore(t, DriverPostgres)

	mock.ExpectQuery(q(`SELECT "id", "name" FROM "sys_user"`)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).
			AddRow(int64(1), "Alice").
			AddRow("u-2", []byte("Bob")).
			AddRow(nil, "Nobody"))

	names, err := store.LoadNames(context.Background(), "sys_user", "id", "name")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"1": "Alice", "u-2": "Bob"}, names)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRowStore_Ping(t *testing.T) {
	sqlDB, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	defer sqlDB.Close()

	db, err := New(sqlDB, DriverPostgres)
	require.NoError(t, err)

	mock.ExpectPing()
	assert.NoError(t, NewRowStore(db).Ping(context.Background()))
}
