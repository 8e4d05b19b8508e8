// Package table ties the transcoding core to a ClickHouse table: it
// derives table definitions from dataframe schemas, renders CREATE TABLE,
// inserts frames in batches and reads query results back into frames.
package table

import (
	"context"
	"sort"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/ajitpratap0/arrowhouse/pkg/errors"
	"github.com/ajitpratap0/arrowhouse/pkg/frame"
	"github.com/ajitpratap0/arrowhouse/pkg/logger"
	"github.com/ajitpratap0/arrowhouse/pkg/observability"
	stringpool "github.com/ajitpratap0/arrowhouse/pkg/strings"
	"github.com/ajitpratap0/arrowhouse/pkg/transcode"
)

// DefaultBatchRows is the insert batch size used when none is given.
const DefaultBatchRows = 200000

// Client is the ClickHouse access the table layer needs. *chclient.Client
// implements it.
type Client interface {
	Exec(ctx context.Context, query string, args ...interface{}) error
	Insert(ctx context.Context, table string, batch *transcode.Batch) error
	Select(ctx context.Context, query string, args ...interface{}) ([]*transcode.Buffer, error)
	Describe(ctx context.Context, table string) ([]transcode.FlatColumnSpec, error)
}

// Table is a ClickHouse table definition: a name and its flat columns in
// declaration order.
type Table struct {
	Name    string
	Columns []transcode.FlatColumnSpec
}

// TableOptions adjusts a table derived from a dataframe schema.
type TableOptions struct {
	// Nullable lists columns to store as nullable. A struct name makes
	// every leaf under it nullable.
	Nullable []string
	// Defaults are extra table columns the dataframe does not carry.
	Defaults []transcode.FlatColumnSpec
}

// FromSchema derives a table definition from a local schema.
func FromSchema(name string, schema frame.Schema, opts TableOptions) (*Table, error) {
	logger.Debug("deriving table from schema", zap.String("table", name), zap.Int("fields", len(schema)))

	specs, err := transcode.DeriveRemoteSchema(schema)
	if err != nil {
		return nil, err
	}
	specs = append(specs, opts.Defaults...)

	seen := make(map[string]struct{}, len(specs))
	for _, s := range specs {
		if _, dup := seen[s.Name]; dup {
			return nil, errors.Newf(errors.ErrorTypeSchemaConflict, "column %q is declared twice", s.Name).
				WithColumn(s.Name)
		}
		seen[s.Name] = struct{}{}
	}

	for _, n := range opts.Nullable {
		matched := false
		for i, s := range specs {
			if s.Name != n && !hasPathPrefix(s.Name, n) {
				continue
			}
			matched = true
			rt, err := s.Type.AsNullable()
			if err != nil {
				return nil, errors.InColumn(err, s.Name)
			}
			specs[i] = transcode.NewFlatColumnSpec(s.Name, rt)
		}
		if !matched {
			return nil, errors.Newf(errors.ErrorTypeValidation, "nullable column %q is not in the table", n).
				WithColumn(n)
		}
	}

	return &Table{Name: name, Columns: specs}, nil
}

func hasPathPrefix(name, prefix string) bool {
	return strings.HasPrefix(name, prefix+frame.Separator)
}

// FromServer reads a table definition with DESCRIBE TABLE.
func FromServer(ctx context.Context, client Client, name string) (*Table, error) {
	logger.WithContext(ctx).Debug("retrieving table information", zap.String("table", name))
	specs, err := client.Describe(ctx, name)
	if err != nil {
		return nil, err
	}
	return &Table{Name: name, Columns: specs}, nil
}

// Column looks up a flat column by name.
func (t *Table) Column(name string) (transcode.FlatColumnSpec, bool) {
	for _, c := range t.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return transcode.FlatColumnSpec{}, false
}

// Schema regroups the table columns into a local schema.
func (t *Table) Schema(opts transcode.Options) (frame.Schema, error) {
	return transcode.GroupFlatColumns(t.Columns, opts)
}

// CreateOptions controls CREATE TABLE rendering.
type CreateOptions struct {
	// PrimaryKey names the key columns, in order.
	PrimaryKey []string
	// IfNotExists adds IF NOT EXISTS.
	IfNotExists bool
	// Engine is the engine clause, MergeTree() when empty.
	Engine string
	// Suffix is appended to the statement verbatim (PARTITION BY, SETTINGS ...).
	Suffix string
}

// CreateQuery renders the CREATE TABLE statement. Primary key columns must
// exist and must not be nullable. Without a primary key, MergeTree family
// engines get an empty sorting key.
func (t *Table) CreateQuery(opts CreateOptions) (string, error) {
	if len(t.Columns) == 0 {
		return "", errors.New(errors.ErrorTypeValidation, "table has no columns").WithDetail("table", t.Name)
	}
	keys := make([]string, len(opts.PrimaryKey))
	for i, k := range opts.PrimaryKey {
		col, ok := t.Column(k)
		if !ok {
			return "", errors.Newf(errors.ErrorTypeValidation, "invalid primary key %q", k).
				WithColumn(k).WithDetail("table", t.Name)
		}
		if col.Nullable {
			return "", errors.Newf(errors.ErrorTypeValidation, "primary key %q is nullable", k).
				WithColumn(k).WithDataType(col.Type.String())
		}
		keys[i] = stringpool.QuoteIdentifier(k)
	}
	engine := opts.Engine
	if engine == "" {
		engine = "MergeTree()"
	}

	b := stringpool.GetBuilder(stringpool.Medium)
	defer stringpool.PutBuilder(b, stringpool.Medium)

	b.WriteString("CREATE TABLE ")
	if opts.IfNotExists {
		b.WriteString("IF NOT EXISTS ")
	}
	b.WriteString(stringpool.QuoteTable(t.Name))
	b.WriteString(" (\n")
	for i, c := range t.Columns {
		b.WriteString("  ")
		b.WriteString(stringpool.QuoteIdentifier(c.Name))
		b.WriteByte(' ')
		b.WriteString(c.Type.String())
		if i < len(t.Columns)-1 {
			b.WriteByte(',')
		}
		b.WriteByte('\n')
	}
	b.WriteString(") ENGINE = ")
	b.WriteString(engine)
	switch {
	case len(keys) > 0:
		b.WriteString(" PRIMARY KEY (")
		b.WriteString(stringpool.JoinPooled(keys, ", "))
		b.WriteByte(')')
	case strings.Contains(engine, "MergeTree"):
		// MergeTree engines require a sorting key
		b.WriteString(" ORDER BY tuple()")
	}
	if opts.Suffix != "" {
		b.WriteByte('\n')
		b.WriteString(opts.Suffix)
	}
	return b.String(), nil
}

// Create runs the CREATE TABLE statement.
func (t *Table) Create(ctx context.Context, client Client, opts CreateOptions) error {
	return observability.Trace(ctx, "table.create", func(ctx context.Context) error {
		query, err := t.CreateQuery(opts)
		if err != nil {
			return err
		}
		logger.WithContext(ctx).Debug("creating table", zap.String("table", t.Name), zap.Int("columns", len(t.Columns)))
		return client.Exec(ctx, query)
	}, attribute.String("table", t.Name))
}

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
