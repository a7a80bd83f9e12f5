package engine

import (
	"context"
	"database/sql"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tordrt/dyntable/internal/db"
	"github.com/tordrt/dyntable/internal/errs"
	"github.com/tordrt/dyntable/internal/schema"
)

// ListOptions controls pagination and ordering of List
type ListOptions struct {
	Skip           int
	Limit          int
	OrderBy        string
	OrderDirection string
}

// DefaultListOptions returns the options applied when a caller gives none
func DefaultListOptions() ListOptions {
	return ListOptions{
		Skip:           0,
		Limit:          100,
		OrderBy:        schema.CreatedAtColumn,
		OrderDirection: "asc",
	}
}

// RecordEngine runs row-level operations against dynamically defined tables
type RecordEngine struct {
	pool   *db.Pool
	logger *slog.Logger
	now    func() time.Time
}

// NewRecordEngine creates a record engine on top of pool
func NewRecordEngine(pool *db.Pool, logger *slog.Logger) *RecordEngine {
	if logger == nil {
		logger = slog.Default()
	}
	return &RecordEngine{pool: pool, logger: logger, now: time.Now}
}

// Insert adds one record. Keys that are not columns of the table are
// rejected; id and timestamps are owned by the engine and dropped from the
// input. The inserted values, including the generated id, are returned.
func (r *RecordEngine) Insert(ctx context.Context, tableName string, record map[string]any) ([]schema.Row, error) {
	table, err := loadTable(ctx, r.pool, tableName)
	if err != nil {
		return nil, err
	}
	if err := requireIdentity(table); err != nil {
		return nil, err
	}
	if err := checkColumns(table, record); err != nil {
		return nil, err
	}

	values := stripSystemColumns(record)
	values[schema.IDColumn] = uuid.New().String()

	stmt, columns := buildInsert(r.pool.Dialect(), table, values)
	err = r.pool.WithTx(ctx, func(tx *sql.Tx) error {
		r.logger.DebugContext(ctx, "executing statement", "statement", stmt.query)
		_, err := tx.ExecContext(ctx, stmt.query, stmt.args...)
		return err
	})
	if err != nil {
		return nil, errs.Backend("insert", err)
	}

	row := make(schema.Row, 0, len(columns))
	for _, name := range columns {
		row = append(row, schema.Field{Column: name, Value: values[name]})
	}
	return []schema.Row{row}, nil
}

// List returns one page of records ordered by a column of the table
func (r *RecordEngine) List(ctx context.Context, tableName string, opts ListOptions) ([]schema.Row, error) {
	table, err := loadTable(ctx, r.pool, tableName)
	if err != nil {
		return nil, err
	}

	if opts.OrderBy == "" {
		opts.OrderBy = schema.IDColumn
		if table.HasColumn(schema.CreatedAtColumn) {
			opts.OrderBy = schema.CreatedAtColumn
		}
	}
	if !table.HasColumn(opts.OrderBy) {
		return nil, errs.Invalid(errs.CodeInvalidColumn,
			"invalid order_by column: '%s' does not exist in table '%s'", opts.OrderBy, tableName)
	}

	direction := strings.ToLower(opts.OrderDirection)
	if direction == "" {
		direction = "asc"
	}
	if direction != "asc" && direction != "desc" {
		return nil, errs.Invalid(errs.CodeInvalidDirection,
			"invalid order direction: '%s' (must be 'asc' or 'desc')", opts.OrderDirection)
	}

	if opts.Skip < 0 || opts.Limit < 0 {
		return nil, errs.Invalid(errs.CodeInvalidPagination, "skip and limit must not be negative")
	}

	stmt := buildSelectPage(r.pool.Dialect(), table, opts.OrderBy, direction, opts.Skip, opts.Limit)
	return r.query(ctx, table, stmt)
}

// Get returns the record with the given id
func (r *RecordEngine) Get(ctx context.Context, tableName, id string) (schema.Row, error) {
	table, err := loadTable(ctx, r.pool, tableName)
	if err != nil {
		return nil, err
	}
	if err := requireIdentity(table); err != nil {
		return nil, err
	}
	return r.fetch(ctx, table, id)
}

// Update applies patch to the record with the given id and returns the
// record as stored afterwards. Unknown keys are rejected; id, created_at
// and updated_at are ignored. updated_at is reset when the table has it.
func (r *RecordEngine) Update(ctx context.Context, tableName, id string, patch map[string]any) (schema.Row, error) {
	table, err := loadTable(ctx, r.pool, tableName)
	if err != nil {
		return nil, err
	}
	if err := requireIdentity(table); err != nil {
		return nil, err
	}
	if err := checkColumns(table, patch); err != nil {
		return nil, err
	}

	values := stripSystemColumns(patch)
	if len(values) == 0 {
		return nil, errs.Invalid(errs.CodeNoValidFields, "no valid fields to update")
	}

	key, ok := canonicalID(id)
	if !ok {
		return nil, errs.RowNotFound(tableName, id)
	}

	var updatedAt any
	if table.HasColumn(schema.UpdatedAtColumn) {
		updatedAt = r.now().UTC()
	}

	stmt := buildUpdate(r.pool.Dialect(), table, values, updatedAt, key)
	err = r.pool.WithTx(ctx, func(tx *sql.Tx) error {
		r.logger.DebugContext(ctx, "executing statement", "statement", stmt.query)
		res, err := tx.ExecContext(ctx, stmt.query, stmt.args...)
		if err != nil {
			return err
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if affected == 0 {
			return errs.RowNotFound(tableName, id)
		}
		return nil
	})
	if err != nil {
		return nil, errs.Backend("update", err)
	}

	// Not every backend can return the updated row inline
	return r.fetch(ctx, table, key)
}

// Delete removes the record with the given id and returns the number of rows removed
func (r *RecordEngine) Delete(ctx context.Context, tableName, id string) (int64, error) {
	table, err := loadTable(ctx, r.pool, tableName)
	if err != nil {
		return 0, err
	}
	if err := requireIdentity(table); err != nil {
		return 0, err
	}

	key, ok := canonicalID(id)
	if !ok {
		return 0, errs.RowNotFound(tableName, id)
	}

	var affected int64
	stmt := buildDelete(r.pool.Dialect(), table.Name, key)
	err = r.pool.WithTx(ctx, func(tx *sql.Tx) error {
		r.logger.DebugContext(ctx, "executing statement", "statement", stmt.query)
		res, err := tx.ExecContext(ctx, stmt.query, stmt.args...)
		if err != nil {
			return err
		}
		affected, err = res.RowsAffected()
		if err != nil {
			return err
		}
		if affected == 0 {
			return errs.RowNotFound(tableName, id)
		}
		return nil
	})
	if err != nil {
		return 0, errs.Backend("delete", err)
	}
	return affected, nil
}

// Count returns the number of records in a table
func (r *RecordEngine) Count(ctx context.Context, tableName string) (int64, error) {
	table, err := loadTable(ctx, r.pool, tableName)
	if err != nil {
		return 0, err
	}

	var count int64
	err = r.pool.WithConn(ctx, func(q db.Queryer) error {
		return q.QueryRowContext(ctx, buildCount(r.pool.Dialect(), table.Name)).Scan(&count)
	})
	if err != nil {
		return 0, errs.Backend("count", err)
	}
	return count, nil
}

// fetch reads one row by id; zero rows is NotFound
func (r *RecordEngine) fetch(ctx context.Context, table *schema.LiveTable, id string) (schema.Row, error) {
	key, ok := canonicalID(id)
	if !ok {
		return nil, errs.RowNotFound(table.Name, id)
	}

	rows, err := r.query(ctx, table, buildSelectByID(r.pool.Dialect(), table, key))
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, errs.RowNotFound(table.Name, id)
	}
	return rows[0], nil
}

func (r *RecordEngine) query(ctx context.Context, table *schema.LiveTable, stmt statement) ([]schema.Row, error) {
	var result []schema.Row
	err := r.pool.WithConn(ctx, func(q db.Queryer) error {
		r.logger.DebugContext(ctx, "executing statement", "statement", stmt.query)
		rows, err := q.QueryContext(ctx, stmt.query, stmt.args...)
		if err != nil {
			return err
		}
		defer rows.Close()

		result, err = scanRows(rows, r.pool.Dialect(), table)
		return err
	})
	if err != nil {
		return nil, errs.Backend("select", err)
	}
	return result, nil
}

// checkColumns rejects keys that are not columns of the table. System keys
// are left to stripSystemColumns, whatever their case and whether or not the
// table has timestamps.
func checkColumns(table *schema.LiveTable, record map[string]any) error {
	var invalid []string
	for key := range record {
		if !schema.IsSystemColumn(key) && !table.HasColumn(key) {
			invalid = append(invalid, key)
		}
	}
	if len(invalid) > 0 {
		sort.Strings(invalid)
		return errs.Invalid(errs.CodeInvalidColumns, "invalid columns: %s", strings.Join(invalid, ", "))
	}
	return nil
}

// stripSystemColumns copies record without id, created_at and updated_at
func stripSystemColumns(record map[string]any) map[string]any {
	values := make(map[string]any, len(record)+1)
	for key, v := range record {
		if schema.IsSystemColumn(key) {
			continue
		}
		values[key] = v
	}
	return values
}

func requireIdentity(table *schema.LiveTable) error {
	if !table.HasColumn(schema.IDColumn) {
		return errs.Invalid(errs.CodeInvalidColumn, "table '%s' has no '%s' column", table.Name, schema.IDColumn)
	}
	return nil
}
