package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"github.com/tordrt/dyntable"
	"github.com/tordrt/dyntable/internal/engine"
	"github.com/tordrt/dyntable/internal/errs"
	"github.com/tordrt/dyntable/internal/formatter"
	"github.com/tordrt/dyntable/internal/schema"
)

func (a *app) createTableCmd() *cobra.Command {
	var (
		columns      []string
		specFile     string
		noTimestamps bool
	)

	cmd := &cobra.Command{
		Use:   "create-table <name>",
		Short: "Create a table with an id column and the given columns",
		Example: `  dyntable create-table widgets --column label:string --column count:integer:notnull
  dyntable create-table widgets --file widgets.json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			spec, err := buildTableSpec(args[0], columns, specFile)
			if err != nil {
				return err
			}
			opts := schema.DefaultCreateOptions()
			opts.GenerateTimestamps = !noTimestamps

			return a.withService(cmd.Context(), func(svc *dyntable.Service) error {
				desc, err := svc.CreateTable(cmd.Context(), spec, opts)
				if err != nil {
					return err
				}
				return a.render(desc, func(f formatter.Formatter) error {
					return f.Message(desc.Message)
				})
			})
		},
	}

	cmd.Flags().StringArrayVarP(&columns, "column", "c", nil, "Column as name:type[:notnull][:unique] (repeatable)")
	cmd.Flags().StringVar(&specFile, "file", "", "JSON file with a columns array")
	cmd.Flags().BoolVar(&noTimestamps, "no-timestamps", false, "Do not add created_at/updated_at")
	return cmd
}

func (a *app) dropTableCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "drop-table <name>",
		Short: "Drop a table and all of its records",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withService(cmd.Context(), func(svc *dyntable.Service) error {
				resp, err := svc.DropTable(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return a.render(resp, func(f formatter.Formatter) error {
					return f.Message(resp.Detail)
				})
			})
		},
	}
}

func (a *app) describeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "describe <name>",
		Short: "Show the live columns of a table",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withService(cmd.Context(), func(svc *dyntable.Service) error {
				table, err := svc.DescribeTable(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return a.render(table, func(f formatter.Formatter) error {
					return f.Table(table)
				})
			})
		},
	}
}

func (a *app) tablesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tables",
		Short: "List the tables of the active schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withService(cmd.Context(), func(svc *dyntable.Service) error {
				names, err := svc.Tables(cmd.Context())
				if err != nil {
					return err
				}
				return a.render(names, func(f formatter.Formatter) error {
					return f.Tables(names)
				})
			})
		},
	}
}

func (a *app) insertCmd() *cobra.Command {
	var data string

	cmd := &cobra.Command{
		Use:     "insert <table>",
		Short:   "Insert a record",
		Example: `  dyntable insert widgets --data '{"label": "a", "count": 5}'`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			record, err := decodeRecord(data, cmd.InOrStdin())
			if err != nil {
				return err
			}
			return a.withService(cmd.Context(), func(svc *dyntable.Service) error {
				resp, err := svc.Insert(cmd.Context(), args[0], record)
				if err != nil {
					return err
				}
				return a.render(resp, func(f formatter.Formatter) error {
					return f.Rows(resp.Data)
				})
			})
		},
	}

	cmd.Flags().StringVarP(&data, "data", "d", "", `Record as a JSON object ("-" reads stdin)`)
	_ = cmd.MarkFlagRequired("data")
	return cmd
}

func (a *app) listCmd() *cobra.Command {
	opts := engine.DefaultListOptions()
	opts.OrderBy = ""

	cmd := &cobra.Command{
		Use:   "list <table>",
		Short: "List a page of records",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withService(cmd.Context(), func(svc *dyntable.Service) error {
				resp, err := svc.List(cmd.Context(), args[0], opts)
				if err != nil {
					return err
				}
				return a.render(resp, func(f formatter.Formatter) error {
					return f.Rows(resp.Data)
				})
			})
		},
	}

	cmd.Flags().IntVar(&opts.Skip, "skip", opts.Skip, "Records to skip")
	cmd.Flags().IntVar(&opts.Limit, "limit", opts.Limit, "Maximum records to return")
	cmd.Flags().StringVar(&opts.OrderBy, "order-by", "", "Column to sort by (default created_at, or id without timestamps)")
	cmd.Flags().StringVar(&opts.OrderDirection, "order-direction", opts.OrderDirection, "Sort direction: asc or desc")
	return cmd
}

func (a *app) countCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "count <table>",
		Short: "Count the records of a table",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withService(cmd.Context(), func(svc *dyntable.Service) error {
				n, err := svc.Count(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return a.render(map[string]int64{"count": n}, func(f formatter.Formatter) error {
					return f.Message(strconv.FormatInt(n, 10))
				})
			})
		},
	}
}

func (a *app) getCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <table> <id>",
		Short: "Fetch one record by id",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withService(cmd.Context(), func(svc *dyntable.Service) error {
				resp, err := svc.Get(cmd.Context(), args[0], args[1])
				if err != nil {
					return err
				}
				return a.render(resp, func(f formatter.Formatter) error {
					return f.Rows([]schema.Row{resp.Data})
				})
			})
		},
	}
}

func (a *app) updateCmd() *cobra.Command {
	var data string

	cmd := &cobra.Command{
		Use:     "update <table> <id>",
		Short:   "Patch one record by id",
		Example: `  dyntable update widgets 0b9f... --data '{"count": 6}'`,
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			patch, err := decodeRecord(data, cmd.InOrStdin())
			if err != nil {
				return err
			}
			return a.withService(cmd.Context(), func(svc *dyntable.Service) error {
				resp, err := svc.Update(cmd.Context(), args[0], args[1], patch)
				if err != nil {
					return err
				}
				return a.render(resp, func(f formatter.Formatter) error {
					return f.Rows([]schema.Row{resp.Data})
				})
			})
		},
	}

	cmd.Flags().StringVarP(&data, "data", "d", "", `Fields to change as a JSON object ("-" reads stdin)`)
	_ = cmd.MarkFlagRequired("data")
	return cmd
}

func (a *app) deleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <table> <id>",
		Short: "Delete one record by id",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withService(cmd.Context(), func(svc *dyntable.Service) error {
				resp, err := svc.Delete(cmd.Context(), args[0], args[1])
				if err != nil {
					return err
				}
				return a.render(resp, func(f formatter.Formatter) error {
					return f.Message(resp.Detail)
				})
			})
		},
	}
}

func (a *app) execCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "exec <sql>",
		Short: "Run one SQL statement verbatim (requires --allow-raw-sql)",
		Long: `Run one SQL statement inside a transaction. The statement is not validated
in any way. Pass "-" to read it from stdin.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := args[0]
			if query == "-" {
				raw, err := io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return fmt.Errorf("failed to read statement: %w", err)
				}
				query = string(raw)
			}

			return a.withService(cmd.Context(), func(svc *dyntable.Service) error {
				raw, err := svc.Raw()
				if err != nil {
					return err
				}
				res, err := raw.Execute(cmd.Context(), query)
				if err != nil {
					return err
				}
				return a.render(res, func(f formatter.Formatter) error {
					if res.ReturnsRows() {
						return f.Rows(res.Rows)
					}
					return f.Message(fmt.Sprintf("%d row(s) affected", *res.RowsAffected))
				})
			})
		},
	}
}

// buildTableSpec merges columns from a JSON file with --column flags.
// File columns come first.
func buildTableSpec(name string, columnFlags []string, specFile string) (schema.TableSpec, error) {
	spec := schema.TableSpec{TableName: name}

	if specFile != "" {
		raw, err := os.ReadFile(specFile)
		if err != nil {
			return spec, fmt.Errorf("failed to read %s: %w", specFile, err)
		}
		var fromFile schema.TableSpec
		if err := json.Unmarshal(raw, &fromFile); err != nil {
			return spec, errs.Invalid(errs.CodeInvalidColumns, "invalid table file %s: %v", specFile, err)
		}
		spec.Columns = append(spec.Columns, fromFile.Columns...)
	}

	for _, flag := range columnFlags {
		col, err := parseColumnFlag(flag)
		if err != nil {
			return spec, err
		}
		spec.Columns = append(spec.Columns, col)
	}
	return spec, nil
}

// parseColumnFlag parses name:type[:notnull][:unique]
func parseColumnFlag(s string) (schema.ColumnDefinition, error) {
	parts := strings.Split(s, ":")
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return schema.ColumnDefinition{}, errs.Invalid(errs.CodeInvalidColumn,
			"invalid column %q (expected name:type[:notnull][:unique])", s)
	}

	col := schema.ColumnDefinition{Name: parts[0], Type: parts[1], Nullable: true}
	for _, mod := range parts[2:] {
		switch strings.ToLower(mod) {
		case "notnull":
			col.Nullable = false
		case "unique":
			col.Unique = true
		default:
			return schema.ColumnDefinition{}, errs.Invalid(errs.CodeInvalidColumn,
				"invalid column modifier %q in %q (must be notnull or unique)", mod, s)
		}
	}
	return col, nil
}

// decodeRecord parses a JSON object, keeping numbers exact. "-" reads stdin.
func decodeRecord(data string, stdin io.Reader) (map[string]any, error) {
	raw := []byte(data)
	if data == "-" {
		var err error
		if raw, err = io.ReadAll(stdin); err != nil {
			return nil, fmt.Errorf("failed to read record: %w", err)
		}
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var record map[string]any
	if err := dec.Decode(&record); err != nil {
		return nil, errs.Invalid(errs.CodeInvalidColumns, "record must be a JSON object: %v", err)
	}
	if record == nil {
		return nil, errs.Invalid(errs.CodeInvalidColumns, "record must be a JSON object")
	}
	return record, nil
}
