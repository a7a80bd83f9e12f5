package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/tordrt/dyntable/internal/schema"
)

// Options configures the connection pool.
//
// The pool keeps up to PoolSize idle connections and opens at most
// PoolSize+MaxOverflow in total. Zero values fall back to DefaultOptions.
type Options struct {
	// Schema is the PostgreSQL schema tables live in. Defaults to "public".
	// Ignored for MySQL (the DSN's database is used) and SQLite.
	Schema string

	PoolSize    int
	MaxOverflow int

	// PoolTimeout bounds the wait for a pooled connection under saturation
	PoolTimeout time.Duration

	// PoolRecycle is the maximum lifetime of a connection before it is replaced
	PoolRecycle time.Duration

	Logger *slog.Logger
}

// DefaultOptions returns the pool settings used when none are given
func DefaultOptions() Options {
	return Options{
		Schema:      "public",
		PoolSize:    5,
		MaxOverflow: 10,
		PoolTimeout: 30 * time.Second,
		PoolRecycle: 30 * time.Minute,
	}
}

func (o Options) withDefaults() Options {
	def := DefaultOptions()
	if o.Schema == "" {
		o.Schema = def.Schema
	}
	if o.PoolSize <= 0 {
		o.PoolSize = def.PoolSize
	}
	if o.MaxOverflow < 0 {
		o.MaxOverflow = 0
	}
	if o.PoolTimeout <= 0 {
		o.PoolTimeout = def.PoolTimeout
	}
	if o.PoolRecycle <= 0 {
		o.PoolRecycle = def.PoolRecycle
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

func (o Options) maxConns() int {
	return o.PoolSize + o.MaxOverflow
}

// Queryer is satisfied by *sql.DB, *sql.Conn and *sql.Tx
type Queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Introspector reads live table metadata from a backend catalog
type Introspector interface {
	TableExists(ctx context.Context, q Queryer, name string) (bool, error)
	LoadTable(ctx context.Context, q Queryer, name string) (*schema.LiveTable, error)
	ListTables(ctx context.Context, q Queryer) ([]string, error)
}

// ErrPoolTimeout is returned when no connection became available within PoolTimeout
var ErrPoolTimeout = errors.New("timed out waiting for a pooled connection")

// Pool is a bounded connection pool bound to one backend
type Pool struct {
	db      *sql.DB
	dialect Dialect
	catalog Introspector
	timeout time.Duration
	logger  *slog.Logger
	onClose func()
}

// Open connects to the backend and verifies the connection
func Open(ctx context.Context, backend Backend, dsn string, opts Options) (*Pool, error) {
	opts = opts.withDefaults()

	var (
		pool *Pool
		err  error
	)
	switch backend {
	case Postgres:
		pool, err = openPostgres(ctx, dsn, opts)
	case MySQL:
		pool, err = openMySQL(ctx, dsn, opts)
	case SQLite:
		pool, err = openSQLite(ctx, dsn, opts)
	default:
		return nil, fmt.Errorf("unsupported database type: %s", backend)
	}
	if err != nil {
		return nil, err
	}
	pool.timeout = opts.PoolTimeout
	pool.logger = opts.Logger.With("backend", string(backend))

	// Test the connection
	if err := pool.db.PingContext(ctx); err != nil {
		_ = pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	pool.logger.Debug("connection pool opened",
		"pool_size", opts.PoolSize,
		"max_overflow", opts.MaxOverflow,
		"pool_timeout", opts.PoolTimeout,
		"pool_recycle", opts.PoolRecycle,
	)
	return pool, nil
}

// configureSQLPool applies pool limits to a database/sql handle
func configureSQLPool(db *sql.DB, opts Options) {
	db.SetMaxOpenConns(opts.maxConns())
	db.SetMaxIdleConns(opts.PoolSize)
	db.SetConnMaxLifetime(opts.PoolRecycle)
}

// Close releases every connection. Safe to call once at shutdown.
func (p *Pool) Close() error {
	err := p.db.Close()
	if p.onClose != nil {
		p.onClose()
	}
	return err
}

// Dialect returns the statement dialect of the backend
func (p *Pool) Dialect() Dialect {
	return p.dialect
}

// Logger returns the pool's logger
func (p *Pool) Logger() *slog.Logger {
	return p.logger
}

// DB returns the underlying handle
func (p *Pool) DB() *sql.DB {
	return p.db
}

// acquire takes a dedicated connection, waiting at most p.timeout
func (p *Pool) acquire(ctx context.Context) (*sql.Conn, error) {
	acquireCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	conn, err := p.db.Conn(acquireCtx)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return nil, fmt.Errorf("%w after %s", ErrPoolTimeout, p.timeout)
		}
		return nil, fmt.Errorf("failed to acquire connection: %w", err)
	}
	return conn, nil
}

// WithConn runs fn on a pooled connection outside a transaction.
// The connection is released when fn returns.
func (p *Pool) WithConn(ctx context.Context, fn func(q Queryer) error) error {
	conn, err := p.acquire(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = conn.Close() }()

	return fn(conn)
}

// WithTx runs fn inside a transaction on one pooled connection. The
// transaction is committed when fn returns nil and rolled back otherwise,
// including when fn panics. The connection is always released.
func (p *Pool) WithTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	conn, err := p.acquire(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = conn.Close() }()

	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if r := recover(); r != nil {
			_ = tx.Rollback()
			panic(r)
		}
	}()

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			p.logger.WarnContext(ctx, "rollback failed", "error", rbErr)
		}
		p.logger.DebugContext(ctx, "transaction rolled back", "error", err)
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// TableExists reports whether a table is present in the catalog
func (p *Pool) TableExists(ctx context.Context, name string) (bool, error) {
	var exists bool
	err := p.WithConn(ctx, func(q Queryer) error {
		var err error
		exists, err = p.catalog.TableExists(ctx, q, name)
		return err
	})
	return exists, err
}

// LoadTable reads the live column set of a table. It returns a nil table
// and nil error when the catalog reports no columns for name.
func (p *Pool) LoadTable(ctx context.Context, name string) (*schema.LiveTable, error) {
	var table *schema.LiveTable
	err := p.WithConn(ctx, func(q Queryer) error {
		var err error
		table, err = p.catalog.LoadTable(ctx, q, name)
		return err
	})
	return table, err
}

// ListTables returns the user tables of the active schema, sorted by name
func (p *Pool) ListTables(ctx context.Context) ([]string, error) {
	var tables []string
	err := p.WithConn(ctx, func(q Queryer) error {
		var err error
		tables, err = p.catalog.ListTables(ctx, q)
		return err
	})
	return tables, err
}
