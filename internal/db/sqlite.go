package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/tordrt/dyntable/internal/schema"
)

// openSQLite opens a SQLite database file with the driver selected at build time
func openSQLite(_ context.Context, path string, opts Options) (*Pool, error) {
	if path == "" {
		return nil, fmt.Errorf("database file path is required")
	}

	opts.Logger.Debug("opening sqlite database", "path", path, "driver", sqliteDriverType)
	db, err := sql.Open(sqliteDriverName, sqliteDSN(path))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	configureSQLPool(db, opts)

	return &Pool{
		db:      db,
		dialect: sqliteDialect{},
		catalog: NewSQLiteIntrospector(),
	}, nil
}

type sqliteDialect struct{}

func (sqliteDialect) Backend() Backend { return SQLite }

func (sqliteDialect) QuoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func (sqliteDialect) Placeholder(int) string { return "?" }

func (sqliteDialect) NativeType(lt schema.LogicalType) string {
	switch lt {
	case schema.TypeString:
		return "TEXT"
	case schema.TypeInteger:
		return "INTEGER"
	case schema.TypeBoolean:
		return "BOOLEAN"
	case schema.TypeDatetime:
		return "TIMESTAMP"
	case schema.TypeFloat:
		return "REAL"
	}
	return ""
}

func (sqliteDialect) IdentityType() string     { return "TEXT" }
func (sqliteDialect) TimestampType() string    { return "TIMESTAMP" }
func (sqliteDialect) CurrentTimestamp() string { return "CURRENT_TIMESTAMP" }

// NormalizeValue applies the declared column type, since SQLite stores
// booleans as integers and timestamps as text.
func (sqliteDialect) NormalizeValue(col schema.Column, v any) any {
	declared := strings.ToUpper(col.Type)
	switch {
	case strings.HasPrefix(declared, "BOOL"):
		if n, ok := v.(int64); ok {
			return n != 0
		}
	case strings.HasPrefix(declared, "TIMESTAMP"), strings.HasPrefix(declared, "DATETIME"), declared == "DATE":
		if s, ok := v.(string); ok {
			if t, ok := parseTimestamp(s); ok {
				return t
			}
		}
	}
	return normalizeCommon(v)
}
