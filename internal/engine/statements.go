package engine

import (
	"fmt"
	"strings"

	"github.com/tordrt/dyntable/internal/db"
	"github.com/tordrt/dyntable/internal/errs"
	"github.com/tordrt/dyntable/internal/schema"
)

// statement is a query with its bind arguments
type statement struct {
	query string
	args  []any
}

// params hands out dialect placeholders in order
type params struct {
	dialect db.Dialect
	args    []any
}

func (p *params) add(v any) string {
	p.args = append(p.args, v)
	return p.dialect.Placeholder(len(p.args))
}

// quoteList quotes column names and joins them with commas
func quoteList(d db.Dialect, names []string) string {
	quoted := make([]string, len(names))
	for i, name := range names {
		quoted[i] = d.QuoteIdent(name)
	}
	return strings.Join(quoted, ", ")
}

// buildCreateTable validates the caller columns and renders CREATE TABLE.
// It returns the statement and the descriptor of every column in table order.
func buildCreateTable(d db.Dialect, spec schema.TableSpec, opts schema.CreateOptions) (string, []schema.ColumnDefinition, error) {
	defs := []string{
		fmt.Sprintf("%s %s NOT NULL PRIMARY KEY", d.QuoteIdent(schema.IDColumn), d.IdentityType()),
	}
	descriptor := []schema.ColumnDefinition{
		{Name: schema.IDColumn, Type: "uuid", PrimaryKey: true, Nullable: false},
	}

	seen := make(map[string]bool, len(spec.Columns))
	for _, col := range spec.Columns {
		if err := schema.ValidateColumnName(col.Name); err != nil {
			return "", nil, err
		}
		key := strings.ToLower(col.Name)
		if schema.IsSystemColumn(col.Name) {
			return "", nil, errs.Invalid(errs.CodeInvalidColumns, "column name '%s' is reserved", col.Name)
		}
		if seen[key] {
			return "", nil, errs.Invalid(errs.CodeInvalidColumns, "duplicate column name '%s'", col.Name)
		}
		seen[key] = true

		lt, err := schema.ParseLogicalType(col.Type)
		if err != nil {
			return "", nil, err
		}

		def := d.QuoteIdent(col.Name) + " " + d.NativeType(lt)
		if !col.Nullable {
			def += " NOT NULL"
		}
		if col.Unique {
			def += " UNIQUE"
		}
		defs = append(defs, def)

		descriptor = append(descriptor, schema.ColumnDefinition{
			Name:     col.Name,
			Type:     string(lt),
			Nullable: col.Nullable,
			Unique:   col.Unique,
		})
	}

	if opts.GenerateTimestamps {
		for _, name := range []string{schema.CreatedAtColumn, schema.UpdatedAtColumn} {
			defs = append(defs, fmt.Sprintf("%s %s NOT NULL DEFAULT %s",
				d.QuoteIdent(name), d.TimestampType(), d.CurrentTimestamp()))
			descriptor = append(descriptor, schema.ColumnDefinition{
				Name: name,
				Type: string(schema.TypeDatetime),
			})
		}
	}

	query := fmt.Sprintf("CREATE TABLE %s (\n\t%s\n)", d.QuoteIdent(spec.TableName), strings.Join(defs, ",\n\t"))
	return query, descriptor, nil
}

func buildDropTable(d db.Dialect, tableName string) string {
	return "DROP TABLE IF EXISTS " + d.QuoteIdent(tableName)
}

// buildInsert renders INSERT for the given values, in live column order
func buildInsert(d db.Dialect, table *schema.LiveTable, values map[string]any) (statement, []string) {
	p := &params{dialect: d}
	var columns, markers []string
	for _, col := range table.Columns {
		v, ok := values[col.Name]
		if !ok {
			continue
		}
		columns = append(columns, col.Name)
		markers = append(markers, p.add(bindValue(v)))
	}

	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		d.QuoteIdent(table.Name), quoteList(d, columns), strings.Join(markers, ", "))
	return statement{query: query, args: p.args}, columns
}

func buildSelectPage(d db.Dialect, table *schema.LiveTable, orderBy, direction string, skip, limit int) statement {
	p := &params{dialect: d}
	query := fmt.Sprintf("SELECT %s FROM %s ORDER BY %s %s LIMIT %s OFFSET %s",
		quoteList(d, table.ColumnNames()),
		d.QuoteIdent(table.Name),
		d.QuoteIdent(orderBy),
		strings.ToUpper(direction),
		p.add(limit),
		p.add(skip),
	)
	return statement{query: query, args: p.args}
}

func buildSelectByID(d db.Dialect, table *schema.LiveTable, id string) statement {
	p := &params{dialect: d}
	query := fmt.Sprintf("SELECT %s FROM %s WHERE %s = %s",
		quoteList(d, table.ColumnNames()),
		d.QuoteIdent(table.Name),
		d.QuoteIdent(schema.IDColumn),
		p.add(id),
	)
	return statement{query: query, args: p.args}
}

// buildUpdate renders UPDATE ... WHERE id. When updatedAt is non-nil the
// updated_at column is set to it.
func buildUpdate(d db.Dialect, table *schema.LiveTable, values map[string]any, updatedAt any, id string) statement {
	p := &params{dialect: d}
	var assignments []string
	for _, col := range table.Columns {
		v, ok := values[col.Name]
		if !ok {
			continue
		}
		assignments = append(assignments, d.QuoteIdent(col.Name)+" = "+p.add(bindValue(v)))
	}
	if updatedAt != nil {
		assignments = append(assignments, d.QuoteIdent(schema.UpdatedAtColumn)+" = "+p.add(updatedAt))
	}

	query := fmt.Sprintf("UPDATE %s SET %s WHERE %s = %s",
		d.QuoteIdent(table.Name),
		strings.Join(assignments, ", "),
		d.QuoteIdent(schema.IDColumn),
		p.add(id),
	)
	return statement{query: query, args: p.args}
}

func buildDelete(d db.Dialect, tableName, id string) statement {
	p := &params{dialect: d}
	query := fmt.Sprintf("DELETE FROM %s WHERE %s = %s",
		d.QuoteIdent(tableName), d.QuoteIdent(schema.IDColumn), p.add(id))
	return statement{query: query, args: p.args}
}

func buildCount(d db.Dialect, tableName string) string {
	return "SELECT COUNT(*) FROM " + d.QuoteIdent(tableName)
}
