package db

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/tordrt/dyntable/internal/schema"
)

// SQLiteIntrospector reads table metadata from sqlite_master and PRAGMAs
type SQLiteIntrospector struct{}

// NewSQLiteIntrospector creates a new SQLite introspector
func NewSQLiteIntrospector() *SQLiteIntrospector {
	return &SQLiteIntrospector{}
}

// TableExists reports whether a table exists. SQLite table names are case-insensitive.
func (e *SQLiteIntrospector) TableExists(ctx context.Context, q Queryer, tableName string) (bool, error) {
	query := `
		SELECT COUNT(*)
		FROM sqlite_master
		WHERE type = 'table' AND name = ? COLLATE NOCASE
	`

	var count int
	if err := q.QueryRowContext(ctx, query, tableName).Scan(&count); err != nil {
		return false, err
	}
	return count > 0, nil
}

// ListTables returns user tables, skipping SQLite internals
func (e *SQLiteIntrospector) ListTables(ctx context.Context, q Queryer) ([]string, error) {
	query := `
		SELECT name
		FROM sqlite_master
		WHERE type = 'table' AND name NOT LIKE 'sqlite_%'
		ORDER BY name
	`

	rows, err := q.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tableList []string
	for rows.Next() {
		var tableName string
		if err := rows.Scan(&tableName); err != nil {
			return nil, err
		}
		tableList = append(tableList, tableName)
	}

	return tableList, rows.Err()
}

// LoadTable extracts column information for a table
func (e *SQLiteIntrospector) LoadTable(ctx context.Context, q Queryer, tableName string) (*schema.LiveTable, error) {
	query := fmt.Sprintf("PRAGMA table_info(%s)", sqliteDialect{}.QuoteIdent(tableName))

	rows, err := q.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var columns []schema.Column
	for rows.Next() {
		var cid int
		var name, colType string
		var notNull, pk int
		var defaultValue sql.NullString

		if err := rows.Scan(&cid, &name, &colType, &notNull, &defaultValue, &pk); err != nil {
			return nil, err
		}

		columns = append(columns, schema.Column{
			Name:       name,
			Type:       colType,
			Nullable:   notNull == 0 && pk == 0,
			PrimaryKey: pk > 0,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	// Release the cursor before issuing the index PRAGMAs on the same connection
	rows.Close()

	if len(columns) == 0 {
		return nil, nil
	}

	uniqueColumns, err := e.uniqueColumns(ctx, q, tableName)
	if err != nil {
		return nil, fmt.Errorf("failed to extract unique constraints: %w", err)
	}
	for i := range columns {
		columns[i].IsUnique = uniqueColumns[columns[i].Name]
	}

	return &schema.LiveTable{Name: tableName, Columns: columns}, nil
}

// uniqueColumns returns the columns covered by a single-column UNIQUE constraint
func (e *SQLiteIntrospector) uniqueColumns(ctx context.Context, q Queryer, tableName string) (map[string]bool, error) {
	query := fmt.Sprintf("PRAGMA index_list(%s)", sqliteDialect{}.QuoteIdent(tableName))

	rows, err := q.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}

	var uniqueIndexes []string
	for rows.Next() {
		var seq int
		var name, origin string
		var unique, partial int

		if err := rows.Scan(&seq, &name, &unique, &origin, &partial); err != nil {
			rows.Close()
			return nil, err
		}

		// origin "u" is a UNIQUE constraint, "pk" the primary key
		if unique == 1 && origin == "u" {
			uniqueIndexes = append(uniqueIndexes, name)
		}
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	result := make(map[string]bool)
	for _, name := range uniqueIndexes {
		indexColumns, err := e.indexColumns(ctx, q, name)
		if err != nil {
			return nil, err
		}
		if len(indexColumns) == 1 {
			result[indexColumns[0]] = true
		}
	}
	return result, nil
}

func (e *SQLiteIntrospector) indexColumns(ctx context.Context, q Queryer, indexName string) ([]string, error) {
	query := fmt.Sprintf("PRAGMA index_info(%s)", sqliteDialect{}.QuoteIdent(indexName))

	rows, err := q.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var columns []string
	for rows.Next() {
		var seqno, cid int
		var colName sql.NullString

		if err := rows.Scan(&seqno, &cid, &colName); err != nil {
			return nil, err
		}
		if colName.Valid {
			columns = append(columns, colName.String)
		}
	}

	return columns, rows.Err()
}
