package engine

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tordrt/dyntable/internal/db"
	"github.com/tordrt/dyntable/internal/errs"
	"github.com/tordrt/dyntable/internal/logging"
	"github.com/tordrt/dyntable/internal/schema"
)

type testEngines struct {
	tables  *TableEngine
	records *RecordEngine
	raw     *RawExecutor
}

func newTestEngines(t *testing.T) *testEngines {
	t.Helper()

	logger := logging.Discard()
	pool, err := db.Open(context.Background(), db.SQLite, filepath.Join(t.TempDir(), "dyntable.db"), db.Options{Logger: logger})
	require.NoError(t, err)
	t.Cleanup(func() { _ = pool.Close() })

	return &testEngines{
		tables:  NewTableEngine(pool, logger),
		records: NewRecordEngine(pool, logger),
		raw:     NewRawExecutor(pool, logger),
	}
}

func widgetsSpec() schema.TableSpec {
	return schema.TableSpec{
		TableName: "widgets",
		Columns: []schema.ColumnDefinition{
			{Name: "label", Type: "string", Nullable: true},
			{Name: "count", Type: "integer", Nullable: true},
		},
	}
}

func (e *testEngines) createWidgets(t *testing.T) {
	t.Helper()
	_, err := e.tables.CreateTable(context.Background(), widgetsSpec(), schema.DefaultCreateOptions())
	require.NoError(t, err)
}

func (e *testEngines) insert(t *testing.T, table string, record map[string]any) string {
	t.Helper()
	rows, err := e.records.Insert(context.Background(), table, record)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	id, ok := rows[0].Get(schema.IDColumn)
	require.True(t, ok)
	return id.(string)
}

func requireCode(t *testing.T, err error, kind error, code errs.Code) {
	t.Helper()
	require.Error(t, err)
	assert.True(t, errors.Is(err, kind), "expected kind %v, got %v", kind, err)
	assert.Equal(t, code, errs.CodeOf(err))
}

func TestWidgetsLifecycle(t *testing.T) {
	ctx := context.Background()
	e := newTestEngines(t)

	desc, err := e.tables.CreateTable(ctx, widgetsSpec(), schema.DefaultCreateOptions())
	require.NoError(t, err)
	assert.Equal(t, "Table 'widgets' created successfully", desc.Message)
	assert.Len(t, desc.Columns, 5)

	live, err := e.tables.DescribeTable(ctx, "widgets")
	require.NoError(t, err)
	assert.Equal(t, []string{"id", "label", "count", "created_at", "updated_at"}, live.ColumnNames())

	inserted, err := e.records.Insert(ctx, "widgets", map[string]any{"label": "a", "count": 5})
	require.NoError(t, err)
	require.Len(t, inserted, 1)

	idValue, ok := inserted[0].Get("id")
	require.True(t, ok)
	id := idValue.(string)
	_, err = uuid.Parse(id)
	require.NoError(t, err, "generated id must be a UUID")

	got, err := e.records.Get(ctx, "widgets", id)
	require.NoError(t, err)
	assert.Equal(t, []string{"id", "label", "count", "created_at", "updated_at"}, rowColumns(got))
	label, _ := got.Get("label")
	count, _ := got.Get("count")
	assert.Equal(t, "a", label)
	assert.Equal(t, int64(5), count)

	createdAt, _ := got.Get("created_at")
	_, isTime := createdAt.(time.Time)
	assert.True(t, isTime, "created_at should be a time.Time, got %T", createdAt)

	fixed := time.Date(2030, 1, 2, 3, 4, 5, 0, time.UTC)
	e.records.now = func() time.Time { return fixed }

	updated, err := e.records.Update(ctx, "widgets", id, map[string]any{"count": 6})
	require.NoError(t, err)
	count, _ = updated.Get("count")
	label, _ = updated.Get("label")
	assert.Equal(t, int64(6), count)
	assert.Equal(t, "a", label, "fields not in the patch are untouched")

	updatedAt, _ := updated.Get("updated_at")
	if ts, ok := updatedAt.(time.Time); assert.True(t, ok, "updated_at should be a time.Time, got %T", updatedAt) {
		assert.True(t, fixed.Equal(ts), "updated_at = %v, want %v", ts, fixed)
	}

	n, err := e.records.Delete(ctx, "widgets", id)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, err = e.records.Get(ctx, "widgets", id)
	requireCode(t, err, errs.ErrNotFound, errs.CodeNotFound)

	_, err = e.records.Delete(ctx, "widgets", id)
	requireCode(t, err, errs.ErrNotFound, errs.CodeNotFound)

	detail, err := e.tables.DropTable(ctx, "widgets")
	require.NoError(t, err)
	assert.Equal(t, "Table 'widgets' dropped successfully", detail)

	_, err = e.tables.DescribeTable(ctx, "widgets")
	requireCode(t, err, errs.ErrNotFound, errs.CodeTableNotFound)
}

func TestCreateTableFailures(t *testing.T) {
	ctx := context.Background()
	e := newTestEngines(t)
	e.createWidgets(t)

	_, err := e.tables.CreateTable(ctx, widgetsSpec(), schema.DefaultCreateOptions())
	requireCode(t, err, errs.ErrConflict, errs.CodeTableAlreadyExists)

	_, err = e.tables.CreateTable(ctx, schema.TableSpec{
		TableName: "single",
		Columns:   []schema.ColumnDefinition{{Name: "only", Type: "string", Nullable: true}},
	}, schema.DefaultCreateOptions())
	requireCode(t, err, errs.ErrInvalidInput, errs.CodeInsufficientColumns)

	_, err = e.tables.CreateTable(ctx, schema.TableSpec{
		TableName: "things",
		Columns: []schema.ColumnDefinition{
			{Name: "a", Type: "string", Nullable: true},
			{Name: "b", Type: "blob", Nullable: true},
		},
	}, schema.DefaultCreateOptions())
	requireCode(t, err, errs.ErrInvalidInput, errs.CodeUnsupportedType)

	tables, err := e.tables.ListTables(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"widgets"}, tables, "failed creates must not leave tables behind")

	_, err = e.tables.CreateTable(ctx, schema.TableSpec{
		TableName: "bad-name",
		Columns:   widgetsSpec().Columns,
	}, schema.DefaultCreateOptions())
	requireCode(t, err, errs.ErrInvalidInput, errs.CodeInvalidIdentifier)

	_, err = e.tables.DropTable(ctx, "missing")
	requireCode(t, err, errs.ErrNotFound, errs.CodeTableNotFound)
}

func TestInsertRejectsUnknownColumns(t *testing.T) {
	ctx := context.Background()
	e := newTestEngines(t)
	e.createWidgets(t)

	_, err := e.records.Insert(ctx, "widgets", map[string]any{"label": "a", "nope": 1, "also": 2})
	requireCode(t, err, errs.ErrInvalidInput, errs.CodeInvalidColumns)
	assert.Contains(t, err.Error(), "also, nope")

	n, err := e.records.Count(ctx, "widgets")
	require.NoError(t, err)
	assert.Equal(t, int64(0), n, "rejected inserts must not write")

	_, err = e.records.Insert(ctx, "missing", map[string]any{"label": "a"})
	requireCode(t, err, errs.ErrNotFound, errs.CodeTableNotFound)
}

func TestInsertIgnoresSystemColumns(t *testing.T) {
	ctx := context.Background()
	e := newTestEngines(t)
	e.createWidgets(t)

	rows, err := e.records.Insert(ctx, "widgets", map[string]any{
		"id":         "caller-chosen",
		"created_at": "2001-01-01 00:00:00",
		"label":      "b",
	})
	require.NoError(t, err)

	id, _ := rows[0].Get("id")
	assert.NotEqual(t, "caller-chosen", id)
	_, hasCreated := rows[0].Get("created_at")
	assert.False(t, hasCreated)

	// System keys match regardless of case
	rows, err = e.records.Insert(ctx, "widgets", map[string]any{
		"ID":         "caller-chosen",
		"Created_At": "2001-01-01 00:00:00",
		"label":      "c",
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"id", "label"}, rowColumns(rows[0]))

	got, err := e.records.Update(ctx, "widgets", e.insert(t, "widgets", map[string]any{"label": "d"}),
		map[string]any{"UPDATED_AT": "x", "label": "e"})
	require.NoError(t, err)
	label, _ := got.Get("label")
	assert.Equal(t, "e", label)
}

func TestUpdateFailures(t *testing.T) {
	ctx := context.Background()
	e := newTestEngines(t)
	e.createWidgets(t)
	id := e.insert(t, "widgets", map[string]any{"label": "a", "count": 1})

	_, err := e.records.Update(ctx, "widgets", uuid.NewString(), map[string]any{"count": 2})
	requireCode(t, err, errs.ErrNotFound, errs.CodeNotFound)

	_, err = e.records.Update(ctx, "widgets", "not-a-uuid", map[string]any{"count": 2})
	requireCode(t, err, errs.ErrNotFound, errs.CodeNotFound)

	_, err = e.records.Update(ctx, "widgets", id, map[string]any{"id": uuid.NewString(), "updated_at": "x"})
	requireCode(t, err, errs.ErrInvalidInput, errs.CodeNoValidFields)

	_, err = e.records.Update(ctx, "widgets", id, map[string]any{"bogus": 1})
	requireCode(t, err, errs.ErrInvalidInput, errs.CodeInvalidColumns)

	got, err := e.records.Get(ctx, "widgets", id)
	require.NoError(t, err)
	count, _ := got.Get("count")
	assert.Equal(t, int64(1), count)
}

func TestUpdateSameValuesStillMatches(t *testing.T) {
	ctx := context.Background()
	e := newTestEngines(t)
	e.createWidgets(t)
	id := e.insert(t, "widgets", map[string]any{"label": "a", "count": 1})

	_, err := e.records.Update(ctx, "widgets", id, map[string]any{"count": 1})
	require.NoError(t, err)
}

func TestListOrderingAndPagination(t *testing.T) {
	ctx := context.Background()
	e := newTestEngines(t)
	e.createWidgets(t)
	for _, n := range []int{3, 1, 2} {
		e.insert(t, "widgets", map[string]any{"label": "w", "count": n})
	}

	counts := func(rows []schema.Row) []int64 {
		out := make([]int64, len(rows))
		for i, row := range rows {
			v, _ := row.Get("count")
			out[i] = v.(int64)
		}
		return out
	}

	rows, err := e.records.List(ctx, "widgets", ListOptions{OrderBy: "count", Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2, 3}, counts(rows))

	rows, err = e.records.List(ctx, "widgets", ListOptions{OrderBy: "count", OrderDirection: "DESC", Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, []int64{3, 2}, counts(rows))

	rows, err = e.records.List(ctx, "widgets", ListOptions{OrderBy: "count", Skip: 2, Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, []int64{3}, counts(rows))

	rows, err = e.records.List(ctx, "widgets", DefaultListOptions())
	require.NoError(t, err)
	assert.Len(t, rows, 3)

	rows, err = e.records.List(ctx, "widgets", ListOptions{OrderBy: "count", Skip: 10, Limit: 10})
	require.NoError(t, err)
	assert.NotNil(t, rows)
	assert.Empty(t, rows)
}

func TestListRejectsBadOptions(t *testing.T) {
	ctx := context.Background()
	e := newTestEngines(t)
	e.createWidgets(t)

	tests := []struct {
		name string
		opts ListOptions
		code errs.Code
	}{
		{name: "unknown order column", opts: ListOptions{OrderBy: "nope", Limit: 10}, code: errs.CodeInvalidColumn},
		{name: "bad direction", opts: ListOptions{OrderBy: "count", OrderDirection: "sideways", Limit: 10}, code: errs.CodeInvalidDirection},
		{name: "negative skip", opts: ListOptions{Skip: -1, Limit: 10}, code: errs.CodeInvalidPagination},
		{name: "negative limit", opts: ListOptions{Limit: -1}, code: errs.CodeInvalidPagination},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.records.List(ctx, "widgets", tt.opts)
			requireCode(t, err, errs.ErrInvalidInput, tt.code)
		})
	}
}

func TestTableWithoutTimestamps(t *testing.T) {
	ctx := context.Background()
	e := newTestEngines(t)

	spec := widgetsSpec()
	spec.TableName = "plain"
	_, err := e.tables.CreateTable(ctx, spec, schema.CreateOptions{GenerateTimestamps: false})
	require.NoError(t, err)

	live, err := e.tables.DescribeTable(ctx, "plain")
	require.NoError(t, err)
	assert.Equal(t, []string{"id", "label", "count"}, live.ColumnNames())

	id := e.insert(t, "plain", map[string]any{"label": "x"})

	// Defaults to ordering by id when there is no created_at
	rows, err := e.records.List(ctx, "plain", ListOptions{Limit: 10})
	require.NoError(t, err)
	require.Len(t, rows, 1)

	updated, err := e.records.Update(ctx, "plain", id, map[string]any{"label": "y"})
	require.NoError(t, err)
	label, _ := updated.Get("label")
	assert.Equal(t, "y", label)

	// Timestamp keys are dropped even though the table has no such columns
	updated, err = e.records.Update(ctx, "plain", id, map[string]any{"label": "z", "created_at": "2001-01-01 00:00:00"})
	require.NoError(t, err)
	label, _ = updated.Get("label")
	assert.Equal(t, "z", label)
	_, hasCreated := updated.Get("created_at")
	assert.False(t, hasCreated)

	_, err = e.records.Update(ctx, "plain", id, map[string]any{"updated_at": "2001-01-01 00:00:00"})
	requireCode(t, err, errs.ErrInvalidInput, errs.CodeNoValidFields)

	e.insert(t, "plain", map[string]any{"label": "w", "updated_at": "2001-01-01 00:00:00"})
}

func TestTypedColumns(t *testing.T) {
	ctx := context.Background()
	e := newTestEngines(t)

	_, err := e.tables.CreateTable(ctx, schema.TableSpec{
		TableName: "events",
		Columns: []schema.ColumnDefinition{
			{Name: "name", Type: "string", Nullable: false, Unique: true},
			{Name: "active", Type: "boolean", Nullable: true},
			{Name: "score", Type: "float", Nullable: true},
			{Name: "at", Type: "datetime", Nullable: true},
		},
	}, schema.DefaultCreateOptions())
	require.NoError(t, err)

	at := time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC)
	id := e.insert(t, "events", map[string]any{"name": "launch", "active": true, "score": 1.5, "at": at})

	got, err := e.records.Get(ctx, "events", id)
	require.NoError(t, err)

	active, _ := got.Get("active")
	score, _ := got.Get("score")
	gotAt, _ := got.Get("at")
	assert.Equal(t, true, active)
	assert.Equal(t, 1.5, score)
	if ts, ok := gotAt.(time.Time); assert.True(t, ok, "at should be a time.Time, got %T", gotAt) {
		assert.True(t, at.Equal(ts))
	}

	live, err := e.tables.DescribeTable(ctx, "events")
	require.NoError(t, err)
	name, _ := live.Column("name")
	assert.True(t, name.IsUnique)
	assert.False(t, name.Nullable)

	// Unique and NOT NULL violations surface as backend errors
	_, err = e.records.Insert(ctx, "events", map[string]any{"name": "launch"})
	requireCode(t, err, errs.ErrBackend, errs.CodeBackendError)

	_, err = e.records.Insert(ctx, "events", map[string]any{"score": 2.0})
	requireCode(t, err, errs.ErrBackend, errs.CodeBackendError)

	n, err := e.records.Count(ctx, "events")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestRawExecutor(t *testing.T) {
	ctx := context.Background()
	e := newTestEngines(t)
	e.createWidgets(t)
	e.insert(t, "widgets", map[string]any{"label": "a", "count": 1})
	e.insert(t, "widgets", map[string]any{"label": "b", "count": 2})

	res, err := e.raw.Execute(ctx, `SELECT label, count FROM widgets ORDER BY count`)
	require.NoError(t, err)
	require.True(t, res.ReturnsRows())
	assert.Equal(t, []string{"label", "count"}, res.Columns)
	require.Len(t, res.Rows, 2)
	label, _ := res.Rows[0].Get("label")
	assert.Equal(t, "a", label)

	res, err = e.raw.Execute(ctx, `UPDATE widgets SET count = count + 10`)
	require.NoError(t, err)
	require.False(t, res.ReturnsRows())
	assert.Equal(t, int64(2), *res.RowsAffected)

	res, err = e.raw.Execute(ctx, `UPDATE widgets SET label = 'returning soon' WHERE count = 11`)
	require.NoError(t, err)
	require.False(t, res.ReturnsRows())
	assert.Equal(t, int64(1), *res.RowsAffected)

	res, err = e.raw.Execute(ctx, `SELECT * FROM widgets WHERE count > 100`)
	require.NoError(t, err)
	assert.NotNil(t, res.Rows)
	assert.Empty(t, res.Rows)
	encoded, err := json.Marshal(res)
	require.NoError(t, err)
	assert.JSONEq(t, `{"columns":["id","label","count","created_at","updated_at"],"rows":[]}`, string(encoded))

	res, err = e.raw.Execute(ctx, `WITH doomed AS (SELECT id FROM widgets) DELETE FROM widgets WHERE id IN (SELECT id FROM doomed)`)
	require.NoError(t, err)
	require.False(t, res.ReturnsRows())
	assert.Equal(t, int64(2), *res.RowsAffected)

	n, err := e.records.Count(ctx, "widgets")
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)

	_, err = e.raw.Execute(ctx, "   ")
	requireCode(t, err, errs.ErrInvalidInput, errs.CodeEmptyStatement)

	_, err = e.raw.Execute(ctx, `SELEC nonsense`)
	requireCode(t, err, errs.ErrBackend, errs.CodeBackendError)
}

func TestIdentifierAllowlistOnEveryEntryPoint(t *testing.T) {
	ctx := context.Background()
	e := newTestEngines(t)
	bad := `widgets"; DROP TABLE x; --`

	_, err := e.tables.DescribeTable(ctx, bad)
	requireCode(t, err, errs.ErrInvalidInput, errs.CodeInvalidIdentifier)
	_, err = e.tables.DropTable(ctx, bad)
	requireCode(t, err, errs.ErrInvalidInput, errs.CodeInvalidIdentifier)
	_, err = e.records.Insert(ctx, bad, map[string]any{"a": 1})
	requireCode(t, err, errs.ErrInvalidInput, errs.CodeInvalidIdentifier)
	_, err = e.records.List(ctx, bad, DefaultListOptions())
	requireCode(t, err, errs.ErrInvalidInput, errs.CodeInvalidIdentifier)
	_, err = e.records.Get(ctx, bad, uuid.NewString())
	requireCode(t, err, errs.ErrInvalidInput, errs.CodeInvalidIdentifier)
	_, err = e.records.Update(ctx, bad, uuid.NewString(), map[string]any{"a": 1})
	requireCode(t, err, errs.ErrInvalidInput, errs.CodeInvalidIdentifier)
	_, err = e.records.Delete(ctx, bad, uuid.NewString())
	requireCode(t, err, errs.ErrInvalidInput, errs.CodeInvalidIdentifier)
}

func rowColumns(row schema.Row) []string {
	names := make([]string, len(row))
	for i, f := range row {
		names[i] = f.Column
	}
	return names
}
