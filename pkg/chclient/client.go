package chclient

import (
	"context"
	"reflect"

	"go.uber.org/zap"

	"github.com/ajitpratap0/arrowhouse/pkg/chtype"
	"github.com/ajitpratap0/arrowhouse/pkg/config"
	"github.com/ajitpratap0/arrowhouse/pkg/errors"
	"github.com/ajitpratap0/arrowhouse/pkg/logger"
	"github.com/ajitpratap0/arrowhouse/pkg/metrics"
	stringpool "github.com/ajitpratap0/arrowhouse/pkg/strings"
	"github.com/ajitpratap0/arrowhouse/pkg/transcode"
)

// Client runs DDL, inserts encoded batches and reads query results back
// into transcode buffers.
type Client struct {
	conn    Conn
	retry   *RetryPolicy
	logger  *zap.Logger
	tracked bool
}

// Option configures a Client.
type Option func(*Client)

// WithRetryPolicy replaces the default retry policy.
func WithRetryPolicy(rp *RetryPolicy) Option {
	return func(c *Client) { c.retry = rp }
}

// WithLogger sets the logger used by the client.
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// New wraps an open connection.
func New(conn Conn, opts ...Option) *Client {
	c := &Client{
		conn:   conn,
		retry:  NewRetryPolicy(1, 0),
		logger: logger.With(zap.String("component", "chclient")),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Open dials ClickHouse and pings it, retrying connection failures.
func Open(ctx context.Context, cfg *config.Config) (*Client, error) {
	conn, err := Dial(cfg.ClickHouse)
	if err != nil {
		return nil, err
	}
	c := New(conn, WithRetryPolicy(RetryPolicyFromConfig(cfg.Reliability)))
	if err := c.Ping(ctx); err != nil {
		_ = conn.Close()
		return nil, err
	}
	metrics.ActiveConnections.Inc()
	c.tracked = true
	c.logger.Info("connected to ClickHouse",
		zap.Strings("addr", cfg.ClickHouse.Addr),
		zap.String("database", cfg.ClickHouse.Database),
		zap.String("compression", cfg.ClickHouse.Compression))
	return c, nil
}

// Close releases the connection.
func (c *Client) Close() error {
	if c.tracked {
		metrics.ActiveConnections.Dec()
		c.tracked = false
	}
	return c.conn.Close()
}

// Ping checks the server is reachable.
func (c *Client) Ping(ctx context.Context) error {
	return c.retry.Execute(ctx, func() error {
		return classify(c.conn.Ping(ctx), "ping failed")
	})
}

// Exec runs a statement that returns no rows. Connection failures are
// retried, so statements should be idempotent.
func (c *Client) Exec(ctx context.Context, query string, args ...interface{}) error {
	timer := metrics.NewTimer()
	err := c.retry.Execute(ctx, func() error {
		return classify(c.conn.Exec(ctx, query, args...), "statement failed")
	})
	metrics.ObserveStage("exec", timer.Stop(), err)
	if err != nil {
		logger.WithContext(ctx).Error("statement failed", zap.String("query", query), zap.Error(err))
		return err
	}
	c.logger.Debug("statement executed", zap.String("query", query))
	return nil
}

// Insert sends one encoded batch to table. The column list is taken from
// the batch, so the table may have further columns with defaults. Inserts
// are not retried.
func (c *Client) Insert(ctx context.Context, table string, batch *transcode.Batch) error {
	query := InsertQuery(table, batch.Names())
	timer := metrics.NewTimer()
	err := c.insert(ctx, query, batch)
	metrics.ObserveStage("send", timer.Stop(), err)

	status := "success"
	if err != nil {
		status = "failure"
	}
	metrics.BatchesSent.WithLabelValues(table, status).Inc()
	if err != nil {
		return err
	}
	c.logger.Debug("batch sent", zap.String("table", table), zap.Int("rows", batch.Rows))
	return nil
}

func (c *Client) insert(ctx context.Context, query string, batch *transcode.Batch) error {
	b, err := c.conn.PrepareBatch(ctx, query)
	if err != nil {
		return classify(err, "failed to prepare insert")
	}
	for i, col := range batch.Columns {
		if err := appendColumn(b.Column(i), col); err != nil {
			_ = b.Abort()
			return errors.Wrap(err, errors.ErrorTypeEncoding, "driver rejected column").
				WithColumn(col.Name).WithDataType(col.Type.String())
		}
	}
	if err := b.Send(); err != nil {
		return classify(err, "failed to send insert batch")
	}
	return nil
}

// Select runs query and returns one buffer per result column, typed from
// the result metadata.
func (c *Client) Select(ctx context.Context, query string, args ...interface{}) ([]*transcode.Buffer, error) {
	timer := metrics.NewTimer()
	bufs, err := c.selectBuffers(ctx, query, args...)
	metrics.ObserveStage("query", timer.Stop(), err)
	if err != nil {
		logger.WithContext(ctx).Error("query failed", zap.String("query", query), zap.Error(err))
		return nil, err
	}
	rows := 0
	if len(bufs) > 0 {
		rows = bufs[0].Len()
	}
	c.logger.Debug("query finished", zap.Int("columns", len(bufs)), zap.Int("rows", rows))
	return bufs, nil
}

func (c *Client) selectBuffers(ctx context.Context, query string, args ...interface{}) ([]*transcode.Buffer, error) {
	var rows Rows
	err := c.retry.Execute(ctx, func() error {
		var err error
		rows, err = c.conn.Query(ctx, query, args...)
		return classify(err, "query failed")
	})
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	types := rows.ColumnTypes()
	builders := make([]*builder, len(types))
	dest := make([]interface{}, len(types))
	for i, ct := range types {
		rt, err := chtype.Parse(ct.DatabaseTypeName())
		if err != nil {
			return nil, errors.InColumn(err, ct.Name())
		}
		if builders[i], err = newBuilder(ct.Name(), rt); err != nil {
			return nil, err
		}
		dest[i] = reflect.New(ct.ScanType()).Interface()
	}

	for rows.Next() {
		if err := rows.Scan(dest...); err != nil {
			return nil, classify(err, "failed to scan row")
		}
		for i, d := range dest {
			if err := builders[i].append(reflect.ValueOf(d).Elem().Interface()); err != nil {
				return nil, err
			}
		}
	}
	if err := rows.Err(); err != nil {
		return nil, classify(err, "failed to read result")
	}

	bufs := make([]*transcode.Buffer, len(builders))
	for i, b := range builders {
		bufs[i] = b.finish()
	}
	return bufs, nil
}

// Describe returns the column specs of an existing table in declaration
// order.
func (c *Client) Describe(ctx context.Context, table string) ([]transcode.FlatColumnSpec, error) {
	bufs, err := c.Select(ctx, "DESCRIBE TABLE "+stringpool.QuoteTable(table))
	if err != nil {
		return nil, err
	}
	var names, types []string
	for _, b := range bufs {
		switch b.Name {
		case "name":
			names, _ = b.Data.([]string)
		case "type":
			types, _ = b.Data.([]string)
		}
	}
	if names == nil || types == nil || len(names) != len(types) {
		return nil, errors.Newf(errors.ErrorTypeQuery, "unexpected DESCRIBE result for table %s", table)
	}

	specs := make([]transcode.FlatColumnSpec, len(names))
	for i := range names {
		rt, err := chtype.Parse(types[i])
		if err != nil {
			return nil, errors.InColumn(err, names[i])
		}
		specs[i] = transcode.NewFlatColumnSpec(names[i], rt)
	}
	return specs, nil
}

// InsertQuery renders the INSERT statement for a batch with an explicit
// column list.
func InsertQuery(table string, columns []string) string {
	quoted := make([]string, len(columns))
	for i, name := range columns {
		quoted[i] = stringpool.QuoteIdentifier(name)
	}
	return "INSERT INTO " + stringpool.QuoteTable(table) + " (" + stringpool.JoinPooled(quoted, ", ") + ")"
}
