package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
	"github.com/tordrt/dyntable"
	"github.com/tordrt/dyntable/internal/config"
	"github.com/tordrt/dyntable/internal/formatter"
	"github.com/tordrt/dyntable/internal/logging"
	"github.com/tordrt/dyntable/internal/result"
)

// app carries the settings and streams shared by every command
type app struct {
	cfg    config.Config
	format string

	stdout io.Writer
	stderr io.Writer
	logger *slog.Logger
}

func newRootCmd(cfg config.Config, stdout, stderr io.Writer) *cobra.Command {
	a := &app{cfg: cfg, stdout: stdout, stderr: stderr, logger: logging.Discard()}

	rootCmd := &cobra.Command{
		Use:   "dyntable",
		Short: "Define tables and manage their records at runtime",
		Long: `dyntable creates tables with caller-chosen columns in PostgreSQL, MySQL, or SQLite
and reads and writes their records without any compile-time model. Every table
gets a generated UUID "id" column and, unless disabled, created_at/updated_at.`,
		SilenceErrors:     true,
		SilenceUsage:      true,
		PersistentPreRunE: a.setup,
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&a.cfg.DatabaseURL, "database-url", cfg.DatabaseURL, "Database URL (postgres://, mysql:// or sqlite://)")
	pf.StringVarP(&a.cfg.Schema, "schema", "s", cfg.Schema, "PostgreSQL schema name")
	pf.IntVar(&a.cfg.PoolSize, "pool-size", cfg.PoolSize, "Persistent connections kept in the pool")
	pf.IntVar(&a.cfg.MaxOverflow, "max-overflow", cfg.MaxOverflow, "Extra connections opened under load")
	pf.DurationVar(&a.cfg.PoolTimeout, "pool-timeout", cfg.PoolTimeout, "Maximum wait for a free connection")
	pf.DurationVar(&a.cfg.PoolRecycle, "pool-recycle", cfg.PoolRecycle, "Maximum connection lifetime")
	pf.StringVar(&a.cfg.LogLevel, "log-level", cfg.LogLevel, "Log level: debug, info, warn or error")
	pf.StringVar(&a.cfg.LogFormat, "log-format", cfg.LogFormat, "Log format: text or json")
	pf.BoolVar(&a.cfg.AllowRawSQL, "allow-raw-sql", cfg.AllowRawSQL, "Enable the exec command")
	pf.StringVarP(&a.format, "format", "f", "json", "Output format: json, text or markdown")

	rootCmd.AddCommand(
		a.createTableCmd(),
		a.dropTableCmd(),
		a.describeCmd(),
		a.tablesCmd(),
		a.insertCmd(),
		a.listCmd(),
		a.countCmd(),
		a.getCmd(),
		a.updateCmd(),
		a.deleteCmd(),
		a.execCmd(),
	)
	return rootCmd
}

// setup validates settings and installs the logger before any command runs
func (a *app) setup(_ *cobra.Command, _ []string) error {
	switch a.format {
	case "json", "text", "markdown":
	default:
		return fmt.Errorf("invalid format: %s (must be 'json', 'text' or 'markdown')", a.format)
	}

	level, err := logging.ParseLevel(a.cfg.LogLevel)
	if err != nil {
		return err
	}
	logFormat, err := logging.ParseFormat(a.cfg.LogFormat)
	if err != nil {
		return err
	}
	a.logger = logging.New(a.stderr, level, logFormat)

	return a.cfg.Validate()
}

// withService opens a Service for the duration of fn
func (a *app) withService(ctx context.Context, fn func(svc *dyntable.Service) error) error {
	svc, err := dyntable.Open(ctx, a.cfg.DatabaseURL, &dyntable.Options{
		Schema:      a.cfg.Schema,
		PoolSize:    a.cfg.PoolSize,
		MaxOverflow: a.cfg.MaxOverflow,
		PoolTimeout: a.cfg.PoolTimeout,
		PoolRecycle: a.cfg.PoolRecycle,
		AllowRawSQL: a.cfg.AllowRawSQL,
		Logger:      a.logger,
	})
	if err != nil {
		return err
	}
	defer func() {
		if err := svc.Close(); err != nil {
			a.logger.Warn("failed to close connection pool", "error", err)
		}
	}()

	return fn(svc)
}

// render writes value as a JSON envelope, or hands a formatter to human for
// text and markdown output.
func (a *app) render(value any, human func(f formatter.Formatter) error) error {
	if a.format == "json" {
		enc := json.NewEncoder(a.stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(result.Success(value).Envelope())
	}

	f, err := formatter.New(a.format, a.stdout)
	if err != nil {
		return err
	}
	return human(f)
}

// exitCode maps an error to the process exit status of its status class
func exitCode(err error) int {
	switch result.StatusOf(err) {
	case result.StatusOK:
		return 0
	case result.StatusBadRequest:
		return 2
	case result.StatusNotFound:
		return 3
	case result.StatusConflict:
		return 4
	case result.StatusForbidden:
		return 5
	default:
		return 1
	}
}

// run executes the CLI and returns the process exit status
func run(ctx context.Context, args []string, getenv func(string) string, stdin io.Reader, stdout, stderr io.Writer) int {
	cfg, err := config.FromEnv(getenv)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "error: %v\n", err)
		return 1
	}

	rootCmd := newRootCmd(cfg, stdout, stderr)
	rootCmd.SetArgs(args)
	rootCmd.SetIn(stdin)
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		_, _ = fmt.Fprintf(stderr, "error: %v\n", err)
		return exitCode(err)
	}
	return 0
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	code := run(ctx, os.Args[1:], os.Getenv, os.Stdin, os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}
