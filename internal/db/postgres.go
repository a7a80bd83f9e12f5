package db

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"

	"github.com/tordrt/dyntable/internal/schema"
)

// openPostgres builds a pgxpool sized from opts and exposes it as *sql.DB
func openPostgres(ctx context.Context, connString string, opts Options) (*Pool, error) {
	cfg, err := postgresConfig(connString, opts)
	if err != nil {
		return nil, err
	}

	pgPool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB := stdlib.OpenDBFromPool(pgPool)
	// Idle connections live in pgxpool so every checkout goes through BeforeAcquire
	sqlDB.SetMaxIdleConns(0)

	return &Pool{
		db:      sqlDB,
		dialect: postgresDialect{},
		catalog: NewPostgresIntrospector(opts.Schema),
		onClose: pgPool.Close,
	}, nil
}

// postgresConfig parses connString and applies the pool and schema settings.
// Statements are issued unqualified, so the session search_path is pinned to
// opts.Schema, the same schema the catalog queries read.
func postgresConfig(connString string, opts Options) (*pgxpool.Config, error) {
	cfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}

	cfg.MaxConns = int32(opts.maxConns())
	cfg.MinConns = int32(opts.PoolSize)
	cfg.MaxConnLifetime = opts.PoolRecycle
	cfg.MaxConnIdleTime = 5 * time.Minute
	cfg.HealthCheckPeriod = time.Minute

	if opts.Schema != "" {
		cfg.ConnConfig.RuntimeParams["search_path"] = pgx.Identifier{opts.Schema}.Sanitize()
	}

	// Liveness check before a pooled connection is handed out
	cfg.BeforeAcquire = func(ctx context.Context, conn *pgx.Conn) bool {
		return conn.Ping(ctx) == nil
	}
	return cfg, nil
}

type postgresDialect struct{}

func (postgresDialect) Backend() Backend { return Postgres }

func (postgresDialect) QuoteIdent(name string) string {
	return pgx.Identifier{name}.Sanitize()
}

func (postgresDialect) Placeholder(n int) string {
	return fmt.Sprintf("$%d", n)
}

func (postgresDialect) NativeType(lt schema.LogicalType) string {
	switch lt {
	case schema.TypeString:
		return "VARCHAR"
	case schema.TypeInteger:
		return "BIGINT"
	case schema.TypeBoolean:
		return "BOOLEAN"
	case schema.TypeDatetime:
		return "TIMESTAMPTZ"
	case schema.TypeFloat:
		return "DOUBLE PRECISION"
	}
	return ""
}

func (postgresDialect) IdentityType() string     { return "UUID" }
func (postgresDialect) TimestampType() string    { return "TIMESTAMPTZ" }
func (postgresDialect) CurrentTimestamp() string { return "CURRENT_TIMESTAMP" }

func (postgresDialect) NormalizeValue(_ schema.Column, v any) any {
	if b, ok := v.([16]byte); ok {
		return uuid.UUID(b).String()
	}
	return normalizeCommon(v)
}
