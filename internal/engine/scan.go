package engine

import (
	"database/sql"
	"encoding/json"

	"github.com/google/uuid"

	"github.com/tordrt/dyntable/internal/db"
	"github.com/tordrt/dyntable/internal/schema"
)

// scanRows materializes every row, pairing values with column names.
// table may be nil for statements that do not target a single table.
func scanRows(rows *sql.Rows, d db.Dialect, table *schema.LiveTable) ([]schema.Row, error) {
	names, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	columns := make([]schema.Column, len(names))
	for i, name := range names {
		if table != nil {
			if col, ok := table.Column(name); ok {
				columns[i] = col
				continue
			}
		}
		columns[i] = schema.Column{Name: name}
	}

	result := make([]schema.Row, 0)
	for rows.Next() {
		values := make([]any, len(names))
		ptrs := make([]any, len(names))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}

		row := make(schema.Row, len(names))
		for i, name := range names {
			row[i] = schema.Field{Column: name, Value: d.NormalizeValue(columns[i], values[i])}
		}
		result = append(result, row)
	}

	return result, rows.Err()
}

// bindValue converts decoded JSON values into types every driver accepts
func bindValue(v any) any {
	if n, ok := v.(json.Number); ok {
		if i, err := n.Int64(); err == nil {
			return i
		}
		if f, err := n.Float64(); err == nil {
			return f
		}
		return n.String()
	}
	return v
}

// canonicalID normalizes a record id. Ids that are not UUIDs cannot exist.
func canonicalID(id string) (string, bool) {
	parsed, err := uuid.Parse(id)
	if err != nil {
		return "", false
	}
	return parsed.String(), true
}
