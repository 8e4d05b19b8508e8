package table

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/ajitpratap0/arrowhouse/pkg/errors"
	"github.com/ajitpratap0/arrowhouse/pkg/frame"
	"github.com/ajitpratap0/arrowhouse/pkg/logger"
	"github.com/ajitpratap0/arrowhouse/pkg/metrics"
	"github.com/ajitpratap0/arrowhouse/pkg/observability"
	stringpool "github.com/ajitpratap0/arrowhouse/pkg/strings"
	"github.com/ajitpratap0/arrowhouse/pkg/transcode"
)

// Query runs query and decodes the result into a frame. overrides maps
// flat result column names to the local type to decode them as; other
// columns use the default mapping.
func Query(ctx context.Context, client Client, query string, overrides map[string]frame.ColumnType, opts transcode.Options) (*frame.Frame, error) {
	var out *frame.Frame
	err := observability.Trace(ctx, "table.query", func(ctx context.Context) error {
		bufs, err := client.Select(ctx, query)
		if err != nil {
			return err
		}

		timer := metrics.NewTimer()
		f, err := transcode.DecodeFrame(bufs, overrides, opts)
		metrics.ObserveStage("decode", timer.Stop(), err)
		if err != nil {
			return err
		}
		out = f
		return nil
	})
	if err != nil {
		return nil, err
	}
	logger.WithContext(ctx).Debug("query decoded", zap.Int("rows", out.NumRows()), zap.Int("columns", len(out.Columns)))
	return out, nil
}

// Query runs query against the table and decodes result columns that
// match table columns with the table's types, so for example a column
// declared Bool comes back as Bool even when the query reads it as UInt8.
func (t *Table) Query(ctx context.Context, client Client, query string, opts transcode.Options) (*frame.Frame, error) {
	overrides := make(map[string]frame.ColumnType, len(t.Columns))
	for _, c := range t.Columns {
		lt, err := transcode.ToLocal(c.Type, opts)
		if err != nil {
			// columns of unmapped types cannot be selected either
			continue
		}
		overrides[c.Name] = lt
	}

	ctx, span := observability.StartSpan(ctx, "table.select", attribute.String("table", t.Name))
	f, err := Query(ctx, client, query, overrides, opts)
	span.Finish(err)
	if err != nil {
		return nil, err
	}
	metrics.RowsDecoded.WithLabelValues(t.Name).Add(float64(f.NumRows()))
	return f, nil
}

// Select reads whole columns of the table. An empty column list selects
// every column the table declares.
func (t *Table) Select(ctx context.Context, client Client, columns []string, where string, opts transcode.Options) (*frame.Frame, error) {
	if len(columns) == 0 {
		for _, c := range t.Columns {
			columns = append(columns, c.Name)
		}
	}
	for _, c := range columns {
		if _, ok := t.Column(c); !ok {
			return nil, errors.Newf(errors.ErrorTypeSchemaConflict, "%q is not a column of table %s", c, t.Name).
				WithColumn(c)
		}
	}
	return t.Query(ctx, client, SelectQuery(t.Name, columns, where), opts)
}

// SelectQuery renders SELECT for flat column names with an optional WHERE
// clause.
func SelectQuery(table string, columns []string, where string) string {
	quoted := make([]string, len(columns))
	for i, c := range columns {
		quoted[i] = stringpool.QuoteIdentifier(c)
	}
	q := "SELECT " + stringpool.JoinPooled(quoted, ", ") + " FROM " + stringpool.QuoteTable(table)
	if where != "" {
		q += " WHERE " + where
	}
	return q
}
