package schema

import (
	"bytes"
	"encoding/json"
	"strings"
)

// System-owned column names
const (
	IDColumn        = "id"
	CreatedAtColumn = "created_at"
	UpdatedAtColumn = "updated_at"
)

// ColumnDefinition is a caller-submitted column of a table to create
type ColumnDefinition struct {
	Name       string `json:"name"`
	Type       string `json:"type"`
	Nullable   bool   `json:"nullable"`
	Unique     bool   `json:"unique"`
	PrimaryKey bool   `json:"primary_key"` // accepted for compatibility, never applied
}

// UnmarshalJSON defaults Nullable to true when the field is absent.
func (c *ColumnDefinition) UnmarshalJSON(data []byte) error {
	type plain ColumnDefinition
	def := plain{Nullable: true}
	if err := json.Unmarshal(data, &def); err != nil {
		return err
	}
	*c = ColumnDefinition(def)
	return nil
}

// TableSpec describes a table to create
type TableSpec struct {
	TableName string             `json:"table_name"`
	Columns   []ColumnDefinition `json:"columns"`
}

// CreateOptions controls the synthetic columns added to a new table.
// The identity column is always generated.
type CreateOptions struct {
	GenerateTimestamps bool
}

// DefaultCreateOptions returns the options used when none are given
func DefaultCreateOptions() CreateOptions {
	return CreateOptions{GenerateTimestamps: true}
}

// Column is a column of a live table as reported by the catalog
type Column struct {
	Name       string `json:"name"`
	Type       string `json:"type"`
	Nullable   bool   `json:"nullable"`
	IsUnique   bool   `json:"unique"`
	PrimaryKey bool   `json:"primary_key"`
}

// LiveTable is the column set of an existing table, freshly read from the catalog
type LiveTable struct {
	Name    string   `json:"table_name"`
	Columns []Column `json:"columns"`
}

// ColumnNames returns column names in catalog order
func (t *LiveTable) ColumnNames() []string {
	names := make([]string, len(t.Columns))
	for i, col := range t.Columns {
		names[i] = col.Name
	}
	return names
}

// Column looks up a column by exact name
func (t *LiveTable) Column(name string) (Column, bool) {
	for _, col := range t.Columns {
		if col.Name == name {
			return col, true
		}
	}
	return Column{}, false
}

// HasColumn reports whether the table has a column with the given name
func (t *LiveTable) HasColumn(name string) bool {
	_, ok := t.Column(name)
	return ok
}

// IsSystemColumn reports whether name is owned by the engine rather than callers
func IsSystemColumn(name string) bool {
	switch strings.ToLower(name) {
	case IDColumn, CreatedAtColumn, UpdatedAtColumn:
		return true
	}
	return false
}

// Field is one column/value pair of a Row
type Field struct {
	Column string
	Value  any
}

// Row is a record in column order
type Row []Field

// Get returns the value of a column
func (r Row) Get(column string) (any, bool) {
	for _, f := range r {
		if f.Column == column {
			return f.Value, true
		}
	}
	return nil, false
}

// Map returns the row as an unordered map
func (r Row) Map() map[string]any {
	m := make(map[string]any, len(r))
	for _, f := range r {
		m[f.Column] = f.Value
	}
	return m
}

// MarshalJSON encodes the row as an object whose keys keep column order
func (r Row) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, f := range r {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(f.Column)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(f.Value)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
