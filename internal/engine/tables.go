// Package engine builds and runs the statements behind every data-API operation.
//
// Table and column names cannot be bind parameters, so every entry point
// validates them with the schema identifier checks and quotes them with the
// backend dialect before they reach a statement. Values are always bound.
package engine

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/tordrt/dyntable/internal/db"
	"github.com/tordrt/dyntable/internal/errs"
	"github.com/tordrt/dyntable/internal/schema"
)

// TableDescriptor describes a freshly created table
type TableDescriptor struct {
	Message string                    `json:"message"`
	Columns []schema.ColumnDefinition `json:"columns"`
}

// TableEngine creates, drops and describes tables
type TableEngine struct {
	pool   *db.Pool
	logger *slog.Logger
}

// NewTableEngine creates a table engine on top of pool
func NewTableEngine(pool *db.Pool, logger *slog.Logger) *TableEngine {
	if logger == nil {
		logger = slog.Default()
	}
	return &TableEngine{pool: pool, logger: logger}
}

// CreateTable creates a table with a generated UUID primary key followed by
// the caller's columns and, when requested, created_at/updated_at.
func (e *TableEngine) CreateTable(ctx context.Context, spec schema.TableSpec, opts schema.CreateOptions) (*TableDescriptor, error) {
	if err := schema.ValidateTableName(spec.TableName); err != nil {
		return nil, err
	}

	exists, err := e.pool.TableExists(ctx, spec.TableName)
	if err != nil {
		return nil, errs.Backend("table lookup", err)
	}
	if exists {
		return nil, errs.TableAlreadyExists(spec.TableName)
	}

	if len(spec.Columns) <= 1 {
		return nil, errs.Invalid(errs.CodeInsufficientColumns,
			"table must have more than one column. Current column count: %d", len(spec.Columns))
	}

	ddl, columns, err := buildCreateTable(e.pool.Dialect(), spec, opts)
	if err != nil {
		return nil, err
	}

	e.logger.DebugContext(ctx, "executing statement", "statement", ddl)
	err = e.pool.WithTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, ddl)
		return err
	})
	if err != nil {
		return nil, errs.Backend("create table", err)
	}

	e.logger.InfoContext(ctx, "table created", "table", spec.TableName, "columns", len(columns))
	return &TableDescriptor{
		Message: fmt.Sprintf("Table '%s' created successfully", spec.TableName),
		Columns: columns,
	}, nil
}

// DropTable drops an existing table
func (e *TableEngine) DropTable(ctx context.Context, tableName string) (string, error) {
	if err := schema.ValidateTableName(tableName); err != nil {
		return "", err
	}

	exists, err := e.pool.TableExists(ctx, tableName)
	if err != nil {
		return "", errs.Backend("table lookup", err)
	}
	if !exists {
		return "", errs.TableNotFound(tableName)
	}

	// IF EXISTS covers a concurrent drop between the check and here
	ddl := buildDropTable(e.pool.Dialect(), tableName)
	e.logger.DebugContext(ctx, "executing statement", "statement", ddl)
	err = e.pool.WithTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, ddl)
		return err
	})
	if err != nil {
		return "", errs.Backend("drop table", err)
	}

	e.logger.InfoContext(ctx, "table dropped", "table", tableName)
	return fmt.Sprintf("Table '%s' dropped successfully", tableName), nil
}

// DescribeTable returns the live column set of a table
func (e *TableEngine) DescribeTable(ctx context.Context, tableName string) (*schema.LiveTable, error) {
	return loadTable(ctx, e.pool, tableName)
}

// ListTables returns the names of every table in the active schema
func (e *TableEngine) ListTables(ctx context.Context) ([]string, error) {
	tables, err := e.pool.ListTables(ctx)
	if err != nil {
		return nil, errs.Backend("list tables", err)
	}
	if tables == nil {
		tables = []string{}
	}
	return tables, nil
}

// loadTable runs the checks every table-scoped operation starts with:
// identifier allowlist, existence, then a fresh catalog read.
func loadTable(ctx context.Context, pool *db.Pool, tableName string) (*schema.LiveTable, error) {
	if err := schema.ValidateTableName(tableName); err != nil {
		return nil, err
	}

	exists, err := pool.TableExists(ctx, tableName)
	if err != nil {
		return nil, errs.Backend("table lookup", err)
	}
	if !exists {
		return nil, errs.TableNotFound(tableName)
	}

	table, err := pool.LoadTable(ctx, tableName)
	if err != nil {
		return nil, errs.Backend("load table", err)
	}
	if table == nil {
		return nil, errs.TableNotFound(tableName)
	}
	return table, nil
}
