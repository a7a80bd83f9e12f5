package db

import (
	"context"

	"github.com/tordrt/dyntable/internal/schema"
)

// MySQLIntrospector reads table metadata from information_schema
type MySQLIntrospector struct {
	schemaName string
}

// NewMySQLIntrospector creates an introspector bound to a MySQL database
func NewMySQLIntrospector(schemaName string) *MySQLIntrospector {
	return &MySQLIntrospector{schemaName: schemaName}
}

// TableExists reports whether a base table exists in the database
func (e *MySQLIntrospector) TableExists(ctx context.Context, q Queryer, tableName string) (bool, error) {
	query := `
		SELECT COUNT(*)
		FROM information_schema.tables
		WHERE table_schema = ? AND table_name = ? AND table_type = 'BASE TABLE'
	`

	var count int
	if err := q.QueryRowContext(ctx, query, e.schemaName, tableName).Scan(&count); err != nil {
		return false, err
	}
	return count > 0, nil
}

// ListTables returns the base tables in the database
func (e *MySQLIntrospector) ListTables(ctx context.Context, q Queryer) ([]string, error) {
	query := `
		SELECT table_name
		FROM information_schema.tables
		WHERE table_schema = ? AND table_type = 'BASE TABLE'
		ORDER BY table_name
	`

	rows, err := q.QueryContext(ctx, query, e.schemaName)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tables []string
	for rows.Next() {
		var tableName string
		if err := rows.Scan(&tableName); err != nil {
			return nil, err
		}
		tables = append(tables, tableName)
	}

	return tables, rows.Err()
}

// LoadTable extracts column information for a table
func (e *MySQLIntrospector) LoadTable(ctx context.Context, q Queryer, tableName string) (*schema.LiveTable, error) {
	query := `
		SELECT
			c.column_name,
			c.column_type,
			c.is_nullable,
			c.column_key
		FROM information_schema.columns c
		WHERE c.table_schema = ? AND c.table_name = ?
		ORDER BY c.ordinal_position
	`

	rows, err := q.QueryContext(ctx, query, e.schemaName, tableName)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var columns []schema.Column
	for rows.Next() {
		var col schema.Column
		var nullable string
		var columnKey string

		if err := rows.Scan(&col.Name, &col.Type, &nullable, &columnKey); err != nil {
			return nil, err
		}

		col.Nullable = (nullable == "YES")
		col.PrimaryKey = (columnKey == "PRI")
		col.IsUnique = (columnKey == "UNI")
		columns = append(columns, col)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if len(columns) == 0 {
		return nil, nil
	}
	return &schema.LiveTable{Name: tableName, Columns: columns}, nil
}
