package formatter

import (
	"fmt"
	"io"
	"strings"

	"github.com/tordrt/dyntable/internal/schema"
)

// MarkdownFormatter formats output as markdown
type MarkdownFormatter struct {
	writer io.Writer
}

// NewMarkdownFormatter creates a new markdown formatter
func NewMarkdownFormatter(w io.Writer) *MarkdownFormatter {
	return &MarkdownFormatter{writer: w}
}

// Table writes a heading and a bullet per column
func (f *MarkdownFormatter) Table(table *schema.LiveTable) error {
	_, _ = fmt.Fprintf(f.writer, "## %s\n\n", table.Name)
	_, _ = fmt.Fprintln(f.writer, "### Columns")
	_, _ = fmt.Fprintln(f.writer)

	for _, col := range table.Columns {
		constraintStr := strings.Join(constraints(col), ", ")
		if constraintStr != "" {
			_, _ = fmt.Fprintf(f.writer, "- **%s:** %s, %s\n", col.Name, col.Type, constraintStr)
		} else {
			_, _ = fmt.Fprintf(f.writer, "- **%s:** %s\n", col.Name, col.Type)
		}
	}
	_, err := fmt.Fprintln(f.writer)
	return err
}

// Tables writes a bullet list of table names
func (f *MarkdownFormatter) Tables(names []string) error {
	_, _ = fmt.Fprintln(f.writer, "# Tables")
	_, _ = fmt.Fprintln(f.writer)
	for _, name := range names {
		_, _ = fmt.Fprintf(f.writer, "- %s\n", name)
	}
	_, err := fmt.Fprintln(f.writer)
	return err
}

// Rows writes a pipe table
func (f *MarkdownFormatter) Rows(rows []schema.Row) error {
	if len(rows) == 0 {
		_, err := fmt.Fprintln(f.writer, "_No rows._")
		return err
	}

	columns := rowColumns(rows)
	_, _ = fmt.Fprintf(f.writer, "| %s |\n", strings.Join(columns, " | "))

	sep := make([]string, len(columns))
	for i := range sep {
		sep[i] = "---"
	}
	_, _ = fmt.Fprintf(f.writer, "|%s|\n", strings.Join(sep, "|"))

	for _, row := range rows {
		cells := make([]string, len(row))
		for i, field := range row {
			cells[i] = escapeCell(formatValue(field.Value))
		}
		_, _ = fmt.Fprintf(f.writer, "| %s |\n", strings.Join(cells, " | "))
	}
	return nil
}

// Message writes msg as a paragraph
func (f *MarkdownFormatter) Message(msg string) error {
	_, err := fmt.Fprintf(f.writer, "%s\n", msg)
	return err
}

func escapeCell(s string) string {
	s = strings.ReplaceAll(s, "|", `\|`)
	return strings.ReplaceAll(s, "\n", " ")
}
