package main

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ajitpratap0/arrowhouse/pkg/chclient"
	"github.com/ajitpratap0/arrowhouse/pkg/chtype"
	"github.com/ajitpratap0/arrowhouse/pkg/compression"
	"github.com/ajitpratap0/arrowhouse/pkg/config"
	"github.com/ajitpratap0/arrowhouse/pkg/errors"
	"github.com/ajitpratap0/arrowhouse/pkg/frame"
	"github.com/ajitpratap0/arrowhouse/pkg/logger"
	"github.com/ajitpratap0/arrowhouse/pkg/table"
	"github.com/ajitpratap0/arrowhouse/pkg/transcode"
)

// tableFlags describe a table derived from an Arrow file.
type tableFlags struct {
	name       string
	nullable   []string
	defaults   []string
	primaryKey []string
}

func (f *tableFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.name, "table", "t", "", "ClickHouse table name, optionally db.table (required)")
	cmd.Flags().StringSliceVar(&f.nullable, "nullable", nil, "Columns to store as Nullable; a struct name covers its fields")
	cmd.Flags().StringSliceVar(&f.defaults, "default-column", nil, "Extra table column as name=Type, e.g. source=LowCardinality(String)")
	cmd.Flags().StringSliceVar(&f.primaryKey, "primary-key", nil, "Primary key columns")
	_ = cmd.MarkFlagRequired("table")
}

// options builds TableOptions. With insert.nullable set and no explicit
// list, every derived column that can be Nullable is made Nullable.
func (f *tableFlags) options(schema frame.Schema, allNullable bool) (table.TableOptions, error) {
	opts := table.TableOptions{Nullable: f.nullable}
	for _, d := range f.defaults {
		spec, err := parseColumnSpec(d)
		if err != nil {
			return table.TableOptions{}, err
		}
		opts.Defaults = append(opts.Defaults, spec)
	}
	if allNullable && len(opts.Nullable) == 0 {
		specs, err := transcode.DeriveRemoteSchema(schema)
		if err != nil {
			return table.TableOptions{}, err
		}
		for _, s := range specs {
			if s.Type.Kind != chtype.KindArray {
				opts.Nullable = append(opts.Nullable, s.Name)
			}
		}
	}
	return opts, nil
}

func parseColumnSpec(s string) (transcode.FlatColumnSpec, error) {
	name, typ, ok := strings.Cut(s, "=")
	if !ok || name == "" {
		return transcode.FlatColumnSpec{}, errors.Newf(errors.ErrorTypeConfig, "column %q must be name=Type", s)
	}
	rt, err := chtype.Parse(typ)
	if err != nil {
		return transcode.FlatColumnSpec{}, errors.InColumn(err, name)
	}
	return transcode.NewFlatColumnSpec(name, rt), nil
}

func (g *globalFlags) deriveTable(path string, tf *tableFlags) (*table.Table, []*frame.Frame, error) {
	schema, frames, err := readArrow(path)
	if err != nil {
		return nil, nil, err
	}
	opts, err := tf.options(schema, g.cfg.Insert.Nullable)
	if err != nil {
		return nil, nil, err
	}
	tb, err := table.FromSchema(tf.name, schema, opts)
	if err != nil {
		return nil, nil, err
	}
	return tb, frames, nil
}

func (g *globalFlags) createOptions(tf *tableFlags) table.CreateOptions {
	return table.CreateOptions{
		PrimaryKey:  tf.primaryKey,
		IfNotExists: g.cfg.Insert.IfNotExists,
		Engine:      g.cfg.Insert.Engine,
	}
}

func (g *globalFlags) decodeOptions() transcode.Options {
	return transcode.Options{PreserveCategorical: g.cfg.Query.PreserveCategorical}
}

func newSchemaCommand(g *globalFlags) *cobra.Command {
	tf := &tableFlags{}
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "schema <file.arrow>",
		Short: "Print the ClickHouse table derived from an Arrow file",
		Long: `Derive the flat ClickHouse columns for an Arrow IPC stream file and print
the CREATE TABLE statement, or the column list with --json. Compressed
files (.gz, .lz4, .zst, .sz, .s2) are read transparently.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tb, _, err := g.deriveTable(args[0], tf)
			if err != nil {
				return err
			}
			if asJSON {
				return writeColumnsJSON(cmd.OutOrStdout(), tb)
			}
			q, err := tb.CreateQuery(g.createOptions(tf))
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), q)
			return nil
		},
	}
	tf.register(cmd)
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print columns as JSON")
	return cmd
}

func newCreateCommand(g *globalFlags) *cobra.Command {
	tf := &tableFlags{}

	cmd := &cobra.Command{
		Use:   "create <file.arrow>",
		Short: "Create a ClickHouse table for an Arrow file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tb, _, err := g.deriveTable(args[0], tf)
			if err != nil {
				return err
			}
			ctx := logger.ContextWith(cmd.Context(), logger.TableKey, tb.Name)
			return g.connect(ctx, func(c *chclient.Client) error {
				return tb.Create(ctx, c, g.createOptions(tf))
			})
		},
	}
	tf.register(cmd)
	return cmd
}

func newLoadCommand(g *globalFlags) *cobra.Command {
	tf := &tableFlags{}
	var create bool
	var values []string

	cmd := &cobra.Command{
		Use:   "load <file.arrow>",
		Short: "Insert an Arrow file into a ClickHouse table",
		Long: `Insert every record batch of an Arrow IPC stream file. Without --create the
table must exist and its column types drive the encoding. Table columns the
file does not carry need a constant value given with --set name=value
(null for NULL).

Example:
  arrowhouse load events.arrow.zst --table analytics.events --set source=api`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := logger.ContextWith(cmd.Context(), logger.OperationKey, "load")
			ctx = logger.ContextWith(ctx, logger.TableKey, tf.name)
			derived, frames, err := g.deriveTable(args[0], tf)
			if err != nil {
				return err
			}
			return g.connect(ctx, func(c *chclient.Client) error {
				tb := derived
				if create {
					if err := tb.Create(ctx, c, g.createOptions(tf)); err != nil {
						return err
					}
				} else if tb, err = table.FromServer(ctx, c, tf.name); err != nil {
					return err
				}

				defaults, err := parseValues(tb, values)
				if err != nil {
					return err
				}
				opts := table.InsertOptions{BatchRows: g.cfg.Insert.BatchRows, Defaults: defaults}

				rows := 0
				for _, fr := range frames {
					if err := tb.Insert(ctx, c, fr, opts); err != nil {
						return err
					}
					rows += fr.NumRows()
				}
				logger.WithContext(ctx).Info("loaded arrow file",
					zap.String("file", args[0]),
					zap.String("table", tb.Name),
					zap.Int("record_batches", len(frames)),
					zap.Int("rows", rows))
				return nil
			})
		},
	}
	tf.register(cmd)
	cmd.Flags().BoolVar(&create, "create", false, "Create the table from the file schema first")
	cmd.Flags().StringSliceVar(&values, "set", nil, "Constant value for a table column missing from the file, as name=value")
	return cmd
}

// parseValues converts name=value pairs to Go values of the column's
// local type.
func parseValues(tb *table.Table, pairs []string) (map[string]interface{}, error) {
	out := make(map[string]interface{}, len(pairs))
	for _, p := range pairs {
		name, raw, ok := strings.Cut(p, "=")
		if !ok || name == "" {
			return nil, errors.Newf(errors.ErrorTypeConfig, "value %q must be name=value", p)
		}
		spec, ok := tb.Column(name)
		if !ok {
			return nil, errors.Newf(errors.ErrorTypeSchemaConflict, "%q is not a column of table %s", name, tb.Name).
				WithColumn(name)
		}
		v, err := parseValue(spec, raw)
		if err != nil {
			return nil, errors.InColumn(err, name)
		}
		out[name] = v
	}
	return out, nil
}

func parseValue(spec transcode.FlatColumnSpec, raw string) (interface{}, error) {
	if raw == "null" && spec.Nullable {
		return nil, nil
	}
	lt, err := transcode.ToLocal(spec.Type, transcode.Options{})
	if err != nil {
		return nil, err
	}
	base := lt.StripNullable()

	bad := func(err error) error {
		return errors.Wrap(err, errors.ErrorTypeValidation, "invalid value").
			WithDetail("value", raw).WithDataType(spec.Type.String())
	}
	switch base.Kind {
	case frame.KindInt:
		if base.Signed {
			v, err := strconv.ParseInt(raw, 10, base.Bits)
			if err != nil {
				return nil, bad(err)
			}
			return v, nil
		}
		v, err := strconv.ParseUint(raw, 10, base.Bits)
		if err != nil {
			return nil, bad(err)
		}
		return v, nil
	case frame.KindFloat:
		v, err := strconv.ParseFloat(raw, base.Bits)
		if err != nil {
			return nil, bad(err)
		}
		return v, nil
	case frame.KindBool:
		v, err := strconv.ParseBool(raw)
		if err != nil {
			return nil, bad(err)
		}
		return v, nil
	case frame.KindString:
		return raw, nil
	}
	return nil, errors.Newf(errors.ErrorTypeUnsupportedType, "constant values are not supported for %s", spec.Type).
		WithDataType(spec.Type.String())
}

func newDumpCommand(g *globalFlags) *cobra.Command {
	var name, where, query, out, algorithm string
	var columns []string

	cmd := &cobra.Command{
		Use:   "dump",
		Short: "Write a ClickHouse table or query result to an Arrow file",
		Long: `Read a table (or the result of --query) into a dataframe and write it as an
Arrow IPC stream. The output extension selects compression.

Example:
  arrowhouse dump --table analytics.events --where "day = today()" --out events.arrow.zst`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if (name == "") == (query == "") {
				return errors.New(errors.ErrorTypeConfig, "exactly one of --table and --query is required")
			}
			alg := compression.FromPath(out)
			if algorithm != "" {
				var err error
				if alg, err = compression.Parse(algorithm); err != nil {
					return err
				}
			}
			ctx := logger.ContextWith(cmd.Context(), logger.OperationKey, "dump")
			if name != "" {
				ctx = logger.ContextWith(ctx, logger.TableKey, name)
			}
			return g.connect(ctx, func(c *chclient.Client) error {
				fr, err := g.read(ctx, c, name, query, columns, where)
				if err != nil {
					return err
				}
				if err := writeArrow(out, fr, alg); err != nil {
					return err
				}
				logger.WithContext(ctx).Info("wrote arrow file",
					zap.String("file", out),
					zap.String("compression", string(alg)),
					zap.Int("rows", fr.NumRows()),
					zap.Int("columns", len(fr.Columns)))
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&name, "table", "t", "", "Table to read")
	cmd.Flags().StringSliceVar(&columns, "columns", nil, "Flat columns to read, all when empty")
	cmd.Flags().StringVar(&where, "where", "", "WHERE clause for --table")
	cmd.Flags().StringVarP(&query, "query", "q", "", "Query to run instead of reading a table")
	cmd.Flags().StringVarP(&out, "out", "o", "", "Output Arrow file (required)")
	cmd.Flags().StringVar(&algorithm, "compression", "", "Compression (none, gzip, snappy, s2, lz4, zstd); default from the file extension")
	_ = cmd.MarkFlagRequired("out")
	return cmd
}

func (g *globalFlags) read(ctx context.Context, c *chclient.Client, name, query string, columns []string, where string) (*frame.Frame, error) {
	if query != "" {
		return table.Query(ctx, c, query, nil, g.decodeOptions())
	}
	tb, err := table.FromServer(ctx, c, name)
	if err != nil {
		return nil, err
	}
	return tb.Select(ctx, c, columns, where, g.decodeOptions())
}

func newDescribeCommand(g *globalFlags) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "describe <table>",
		Short: "Show the columns of a ClickHouse table and their dataframe types",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return g.connect(ctx, func(c *chclient.Client) error {
				tb, err := table.FromServer(ctx, c, args[0])
				if err != nil {
					return err
				}
				if asJSON {
					return writeColumnsJSON(cmd.OutOrStdout(), tb)
				}
				return writeColumnsText(cmd.OutOrStdout(), tb, g.decodeOptions())
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print columns as JSON")
	return cmd
}

type columnDoc struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Nullable bool   `json:"nullable"`
}

type tableDoc struct {
	Table   string      `json:"table"`
	Columns []columnDoc `json:"columns"`
}

func writeColumnsJSON(w io.Writer, tb *table.Table) error {
	doc := tableDoc{Table: tb.Name, Columns: make([]columnDoc, len(tb.Columns))}
	for i, c := range tb.Columns {
		doc.Columns[i] = columnDoc{Name: c.Name, Type: c.Type.String(), Nullable: c.Nullable}
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeInternal, "failed to encode columns")
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

// writeColumnsText prints one line per flat column with the local type it
// decodes to.
func writeColumnsText(w io.Writer, tb *table.Table, opts transcode.Options) error {
	for _, c := range tb.Columns {
		local := "unsupported"
		if lt, err := transcode.ToLocal(c.Type, opts); err == nil {
			local = lt.String()
		}
		if _, err := fmt.Fprintf(w, "%s\t%s\t%s\n", c.Name, c.Type, local); err != nil {
			return err
		}
	}
	return nil
}

func newConfigCommand(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "config <out.yaml>",
		Short: "Write the effective configuration as YAML",
		Long: `Write the configuration after defaults, the --config file and ARROWHOUSE_*
environment overrides have been applied. The output is a valid --config file.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return config.Save(args[0], g.cfg)
		},
	}
}
