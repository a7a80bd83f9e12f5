package engine

import (
	"context"
	"database/sql"
	"encoding/json"
	"log/slog"
	"regexp"
	"strings"

	"github.com/tordrt/dyntable/internal/db"
	"github.com/tordrt/dyntable/internal/errs"
	"github.com/tordrt/dyntable/internal/schema"
)

// RawResult is the outcome of a raw statement: either a row set or an
// affected-row count.
type RawResult struct {
	Columns      []string
	Rows         []schema.Row
	RowsAffected *int64
}

// ReturnsRows reports whether the statement produced a row set
func (r RawResult) ReturnsRows() bool {
	return r.RowsAffected == nil
}

// MarshalJSON encodes either {"columns", "rows"} or {"rows_affected"}.
// An empty row set still carries both keys.
func (r RawResult) MarshalJSON() ([]byte, error) {
	if !r.ReturnsRows() {
		return json.Marshal(struct {
			RowsAffected int64 `json:"rows_affected"`
		}{*r.RowsAffected})
	}

	columns, rows := r.Columns, r.Rows
	if columns == nil {
		columns = []string{}
	}
	if rows == nil {
		rows = []schema.Row{}
	}
	return json.Marshal(struct {
		Columns []string     `json:"columns"`
		Rows    []schema.Row `json:"rows"`
	}{columns, rows})
}

// RawExecutor runs caller-supplied SQL verbatim. Nothing is validated or
// sanitized, so it must only be handed to trusted callers.
type RawExecutor struct {
	pool   *db.Pool
	logger *slog.Logger
}

// NewRawExecutor creates a raw statement executor on top of pool
func NewRawExecutor(pool *db.Pool, logger *slog.Logger) *RawExecutor {
	if logger == nil {
		logger = slog.Default()
	}
	return &RawExecutor{pool: pool, logger: logger}
}

// Execute runs one statement inside a transaction
func (x *RawExecutor) Execute(ctx context.Context, query string) (*RawResult, error) {
	if strings.TrimSpace(query) == "" {
		return nil, errs.Invalid(errs.CodeEmptyStatement, "SQL statement must not be empty")
	}

	x.logger.WarnContext(ctx, "executing raw statement", "statement", query)

	result := &RawResult{}
	err := x.pool.WithTx(ctx, func(tx *sql.Tx) error {
		if !returnsRows(query, x.pool.Dialect().Backend()) {
			res, err := tx.ExecContext(ctx, query)
			if err != nil {
				return err
			}
			affected, err := res.RowsAffected()
			if err != nil {
				return err
			}
			result.RowsAffected = &affected
			return nil
		}

		rows, err := tx.QueryContext(ctx, query)
		if err != nil {
			return err
		}
		defer rows.Close()

		if result.Columns, err = rows.Columns(); err != nil {
			return err
		}
		result.Rows, err = scanRows(rows, x.pool.Dialect(), nil)
		return err
	})
	if err != nil {
		return nil, errs.Backend("raw statement", err)
	}
	return result, nil
}

// rowKeywords are leading keywords of statements that produce a row set
var rowKeywords = map[string]bool{
	"SELECT":   true,
	"WITH":     true,
	"VALUES":   true,
	"SHOW":     true,
	"EXPLAIN":  true,
	"PRAGMA":   true,
	"TABLE":    true,
	"DESCRIBE": true,
	"DESC":     true,
}

// mainKeywords start the statement that follows a WITH clause. The value
// reports whether that statement produces a row set.
var mainKeywords = map[string]bool{
	"SELECT":  true,
	"VALUES":  true,
	"TABLE":   true,
	"INSERT":  false,
	"UPDATE":  false,
	"DELETE":  false,
	"MERGE":   false,
	"REPLACE": false,
}

// returnsRows classifies a statement by its leading keyword, the statement
// after a WITH clause, or a top-level RETURNING clause.
func returnsRows(query string, backend db.Backend) bool {
	words := statementWords(query, backend == db.MySQL)
	if len(words) == 0 {
		return false
	}
	for _, w := range words {
		if w.depth == 0 && w.text == "RETURNING" {
			return true
		}
	}

	if words[0].text != "WITH" {
		return rowKeywords[words[0].text]
	}
	for _, w := range words[1:] {
		if w.depth != 0 {
			continue
		}
		if rows, ok := mainKeywords[w.text]; ok {
			return rows
		}
	}
	return true
}

type sqlWord struct {
	text  string
	depth int
}

var dollarTag = regexp.MustCompile(`^\$([A-Za-z_][A-Za-z0-9_]*)?\$`)

// statementWords returns the upper-cased words of query with their
// parenthesis depth. Comments, string literals and quoted identifiers are
// skipped. mysql enables backslash escapes and # comments.
func statementWords(query string, mysql bool) []sqlWord {
	var (
		words []sqlWord
		depth int
	)
	for i := 0; i < len(query); {
		c := query[i]
		switch {
		case strings.HasPrefix(query[i:], "--") || (mysql && c == '#'):
			end := strings.IndexByte(query[i:], '\n')
			if end < 0 {
				return words
			}
			i += end + 1
		case strings.HasPrefix(query[i:], "/*"):
			end := strings.Index(query[i+2:], "*/")
			if end < 0 {
				return words
			}
			i += end + 4
		case c == '\'' || c == '"' || c == '`':
			i = skipQuoted(query, i, mysql && c != '`')
		case c == '$':
			tag := dollarTag.FindString(query[i:])
			if tag == "" {
				i++
				continue
			}
			end := strings.Index(query[i+len(tag):], tag)
			if end < 0 {
				return words
			}
			i += 2*len(tag) + end
		case c == '(':
			depth++
			i++
		case c == ')':
			if depth > 0 {
				depth--
			}
			i++
		case isWordByte(c):
			start := i
			for i < len(query) && (isWordByte(query[i]) || query[i] == '$') {
				i++
			}
			words = append(words, sqlWord{text: strings.ToUpper(query[start:i]), depth: depth})
		default:
			i++
		}
	}
	return words
}

// skipQuoted returns the index just past the quoted run starting at i.
// A doubled quote is an escaped quote.
func skipQuoted(query string, i int, backslashEscapes bool) int {
	quote := query[i]
	for j := i + 1; j < len(query); j++ {
		switch {
		case backslashEscapes && query[j] == '\\':
			j++
		case query[j] == quote:
			if j+1 < len(query) && query[j+1] == quote {
				j++
				continue
			}
			return j + 1
		}
	}
	return len(query)
}

func isWordByte(c byte) bool {
	return c == '_' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' || c >= 0x80
}
