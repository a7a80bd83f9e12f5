// Package formatter renders live tables and record sets for the CLI.
package formatter

import (
	"fmt"
	"io"
	"time"

	"github.com/tordrt/dyntable/internal/schema"
)

// Formatter renders command output in one human-readable style
type Formatter interface {
	Table(t *schema.LiveTable) error
	Tables(names []string) error
	Rows(rows []schema.Row) error
	Message(msg string) error
}

// New returns the formatter for format ("text" or "markdown")
func New(format string, w io.Writer) (Formatter, error) {
	switch format {
	case "text":
		return NewTextFormatter(w), nil
	case "markdown":
		return NewMarkdownFormatter(w), nil
	default:
		return nil, fmt.Errorf("invalid format: %s (must be 'text' or 'markdown')", format)
	}
}

// rowColumns returns the column order of a record set, taken from its first row
func rowColumns(rows []schema.Row) []string {
	if len(rows) == 0 {
		return nil
	}
	columns := make([]string, len(rows[0]))
	for i, f := range rows[0] {
		columns[i] = f.Column
	}
	return columns
}

// formatValue renders one cell
func formatValue(v any) string {
	switch val := v.(type) {
	case nil:
		return "NULL"
	case time.Time:
		return val.Format(time.RFC3339Nano)
	case string:
		return val
	default:
		return fmt.Sprint(val)
	}
}

// constraints lists the column flags worth showing next to its type
func constraints(col schema.Column) []string {
	var out []string
	if col.PrimaryKey {
		out = append(out, "PK")
	}
	if col.IsUnique {
		out = append(out, "UNIQUE")
	}
	if !col.Nullable {
		out = append(out, "NOT NULL")
	}
	return out
}
