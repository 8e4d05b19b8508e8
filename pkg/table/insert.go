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
	"github.com/ajitpratap0/arrowhouse/pkg/transcode"
)

// InsertOptions controls Insert.
type InsertOptions struct {
	// BatchRows caps the rows per insert batch, DefaultBatchRows when zero.
	BatchRows int
	// Defaults are constant values for table columns missing from the
	// frame. A nil value inserts NULL.
	Defaults map[string]interface{}
}

// Insert encodes f into batches and sends them to the table.
//
// Every flattened frame column must be a table column, and the frame
// together with opts.Defaults must cover all table columns. All batches
// are encoded before the first one is sent, so an encoding failure sends
// nothing.
func (t *Table) Insert(ctx context.Context, client Client, f *frame.Frame, opts InsertOptions) error {
	return observability.Trace(ctx, "table.insert", func(ctx context.Context) error {
		log := logger.WithContext(ctx).With(zap.String("table", t.Name))
		log.Debug("inserting dataframe", zap.Int("rows", f.NumRows()), zap.Int("columns", len(f.Columns)))

		timer := metrics.NewTimer()
		batches, err := t.encode(f, opts)
		metrics.ObserveStage("encode", timer.Stop(), err)
		if err != nil {
			return err
		}

		tracker := metrics.NewThroughputTracker(t.Name, "insert")
		for _, b := range batches {
			log.Debug("inserting block", zap.Int("rows", b.Rows))
			if err := client.Insert(ctx, t.Name, b); err != nil {
				return err
			}
			metrics.RowsEncoded.WithLabelValues(t.Name).Add(float64(b.Rows))
			tracker.Increment(int64(b.Rows))
		}
		tracker.GetAndReset()
		log.Debug("finished inserting dataframe", zap.Int("batches", len(batches)))
		return nil
	}, attribute.String("table", t.Name), attribute.Int("rows", f.NumRows()))
}

// Batches encodes f the way Insert does without sending anything.
func (t *Table) Batches(f *frame.Frame, opts InsertOptions) ([]*transcode.Batch, error) {
	return t.encode(f, opts)
}

func (t *Table) encode(f *frame.Frame, opts InsertOptions) ([]*transcode.Batch, error) {
	if err := f.Validate(); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeEncoding, "invalid frame")
	}

	leaves := transcode.FlattenFrame(f)
	specs := make([]transcode.FlatColumnSpec, len(leaves))
	present := make(map[string]struct{}, len(leaves))
	for i, leaf := range leaves {
		spec, ok := t.Column(leaf.Path)
		if !ok {
			return nil, errors.Newf(errors.ErrorTypeSchemaConflict, "%q is not a column of table %s", leaf.Path, t.Name).
				WithColumn(leaf.Path)
		}
		specs[i] = spec
		present[leaf.Path] = struct{}{}
	}

	var defaults []transcode.FlatColumnSpec
	missing := make(map[string]struct{})
	for _, c := range t.Columns {
		if _, ok := present[c.Name]; ok {
			continue
		}
		if _, ok := opts.Defaults[c.Name]; !ok {
			missing[c.Name] = struct{}{}
			continue
		}
		defaults = append(defaults, c)
	}
	if len(missing) > 0 {
		names := sortedKeys(missing)
		return nil, errors.Newf(errors.ErrorTypeSchemaConflict, "missing table columns %v", names).
			WithColumn(names[0]).WithDetail("table", t.Name)
	}
	for name := range opts.Defaults {
		if _, ok := t.Column(name); !ok {
			return nil, errors.Newf(errors.ErrorTypeSchemaConflict, "default for unknown column %q", name).
				WithColumn(name)
		}
	}

	batchRows := opts.BatchRows
	if batchRows <= 0 {
		batchRows = DefaultBatchRows
	}

	rows := f.NumRows()
	var batches []*transcode.Batch
	for start := 0; start < rows; start += batchRows {
		end := start + batchRows
		if end > rows {
			end = rows
		}
		batch, err := transcode.EncodeFrame(f.Slice(start, end), specs)
		if err != nil {
			return nil, err
		}
		for _, d := range defaults {
			buf, err := constantBuffer(d, opts.Defaults[d.Name], end-start)
			if err != nil {
				return nil, err
			}
			batch.Columns = append(batch.Columns, buf)
		}
		batches = append(batches, batch)
	}
	return batches, nil
}

// constantBuffer encodes a default value repeated n times.
func constantBuffer(spec transcode.FlatColumnSpec, value interface{}, n int) (*transcode.Buffer, error) {
	lt, err := transcode.ToLocal(spec.Type, transcode.Options{})
	if err != nil {
		return nil, errors.InColumn(err, spec.Name)
	}
	col, err := frame.Constant(spec.Name, lt, value, n)
	if err != nil {
		return nil, err
	}
	return transcode.Encode(col, spec.Type)
}
