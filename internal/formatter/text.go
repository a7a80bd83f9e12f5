package formatter

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/tordrt/dyntable/internal/schema"
)

// TextFormatter formats output as compact text
type TextFormatter struct {
	writer io.Writer
}

// NewTextFormatter creates a new text formatter
func NewTextFormatter(w io.Writer) *TextFormatter {
	return &TextFormatter{writer: w}
}

// Table writes one column per line under a TABLE header
func (f *TextFormatter) Table(table *schema.LiveTable) error {
	var pk []string
	for _, col := range table.Columns {
		if col.PrimaryKey {
			pk = append(pk, col.Name)
		}
	}

	pkStr := ""
	if len(pk) > 0 {
		pkStr = fmt.Sprintf(" (PK: %s)", strings.Join(pk, ", "))
	}
	if _, err := fmt.Fprintf(f.writer, "TABLE %s%s\n", table.Name, pkStr); err != nil {
		return err
	}

	for _, col := range table.Columns {
		if _, err := fmt.Fprintf(f.writer, "  %s\n", f.formatColumn(col)); err != nil {
			return err
		}
	}
	return nil
}

// Tables writes one table name per line
func (f *TextFormatter) Tables(names []string) error {
	for _, name := range names {
		if _, err := fmt.Fprintln(f.writer, name); err != nil {
			return err
		}
	}
	return nil
}

// Rows writes an aligned grid with a header line
func (f *TextFormatter) Rows(rows []schema.Row) error {
	if len(rows) == 0 {
		_, err := fmt.Fprintln(f.writer, "(0 rows)")
		return err
	}

	tw := tabwriter.NewWriter(f.writer, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, strings.Join(rowColumns(rows), "\t"))
	for _, row := range rows {
		cells := make([]string, len(row))
		for i, field := range row {
			cells[i] = formatValue(field.Value)
		}
		_, _ = fmt.Fprintln(tw, strings.Join(cells, "\t"))
	}
	return tw.Flush()
}

// Message writes msg on its own line
func (f *TextFormatter) Message(msg string) error {
	_, err := fmt.Fprintln(f.writer, msg)
	return err
}

func (f *TextFormatter) formatColumn(col schema.Column) string {
	parts := []string{col.Name + ":", col.Type}
	for _, c := range constraints(col) {
		if c == "PK" {
			continue // already in the header
		}
		parts = append(parts, c)
	}
	return strings.Join(parts, " ")
}
