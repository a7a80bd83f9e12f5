package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/go-sql-driver/mysql"

	"github.com/tordrt/dyntable/internal/schema"
)

// openMySQL opens a MySQL pool. The DSN is rewritten so DATETIME values scan
// as time.Time and UPDATE reports matched rather than changed rows.
func openMySQL(_ context.Context, connString string, opts Options) (*Pool, error) {
	cfg, err := mysql.ParseDSN(connString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}
	if cfg.DBName == "" {
		return nil, fmt.Errorf("connection string must name a database")
	}
	cfg.ParseTime = true
	cfg.ClientFoundRows = true

	connector, err := mysql.NewConnector(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db := sql.OpenDB(connector)
	configureSQLPool(db, opts)

	return &Pool{
		db:      db,
		dialect: mysqlDialect{},
		catalog: NewMySQLIntrospector(cfg.DBName),
	}, nil
}

type mysqlDialect struct{}

func (mysqlDialect) Backend() Backend { return MySQL }

func (mysqlDialect) QuoteIdent(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}

func (mysqlDialect) Placeholder(int) string { return "?" }

func (mysqlDialect) NativeType(lt schema.LogicalType) string {
	switch lt {
	case schema.TypeString:
		return "VARCHAR(255)"
	case schema.TypeInteger:
		return "BIGINT"
	case schema.TypeBoolean:
		return "BOOLEAN"
	case schema.TypeDatetime:
		return "DATETIME(6)"
	case schema.TypeFloat:
		return "DOUBLE"
	}
	return ""
}

func (mysqlDialect) IdentityType() string     { return "CHAR(36)" }
func (mysqlDialect) TimestampType() string    { return "DATETIME(6)" }
func (mysqlDialect) CurrentTimestamp() string { return "CURRENT_TIMESTAMP(6)" }

// NormalizeValue turns BOOLEAN (stored as tinyint(1)) back into bool
func (mysqlDialect) NormalizeValue(col schema.Column, v any) any {
	if strings.HasPrefix(strings.ToLower(col.Type), "tinyint(1)") {
		if n, ok := v.(int64); ok {
			return n != 0
		}
	}
	return normalizeCommon(v)
}
