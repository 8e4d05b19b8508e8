// Package chclient moves transcode buffers over the ClickHouse native
// protocol using clickhouse-go.
package chclient

import (
	"context"
	"crypto/tls"
	stderrors "errors"
	"io"
	"net"
	"reflect"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"github.com/ajitpratap0/arrowhouse/pkg/config"
	"github.com/ajitpratap0/arrowhouse/pkg/errors"
)

// Conn is the part of a ClickHouse connection the client needs.
type Conn interface {
	Exec(ctx context.Context, query string, args ...interface{}) error
	Query(ctx context.Context, query string, args ...interface{}) (Rows, error)
	PrepareBatch(ctx context.Context, query string) (Batch, error)
	Ping(ctx context.Context) error
	Close() error
}

// Rows iterates a query result.
type Rows interface {
	Next() bool
	Scan(dest ...interface{}) error
	ColumnTypes() []ColumnType
	Err() error
	Close() error
}

// ColumnType describes one result column.
type ColumnType interface {
	Name() string
	DatabaseTypeName() string
	ScanType() reflect.Type
}

// Batch is a prepared INSERT.
type Batch interface {
	Column(i int) BatchColumn
	Send() error
	Abort() error
}

// BatchColumn receives the values of one insert column.
type BatchColumn interface {
	Append(v interface{}) error
	AppendRow(v interface{}) error
}

// Dial opens a native protocol connection pool. No round trip is made;
// use Ping to check the server is reachable.
func Dial(cfg config.ClickHouseConfig) (Conn, error) {
	opts := &clickhouse.Options{
		Addr: cfg.Addr,
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
		},
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		MaxOpenConns: cfg.MaxOpenConns,
		MaxIdleConns: cfg.MaxIdleConns,
		Settings:     clickhouse.Settings(cfg.Settings),
		Debug:        cfg.Debug,
	}
	switch cfg.Compression {
	case "lz4":
		opts.Compression = &clickhouse.Compression{Method: clickhouse.CompressionLZ4}
	case "zstd":
		opts.Compression = &clickhouse.Compression{Method: clickhouse.CompressionZSTD}
	}

	conn, err := clickhouse.Open(opts)
	if err != nil {
		return nil, classify(err, "failed to open ClickHouse connection")
	}
	return &nativeConn{conn: conn}, nil
}

// nativeConn adapts driver.Conn to Conn.
type nativeConn struct {
	conn driver.Conn
}

func (c *nativeConn) Exec(ctx context.Context, query string, args ...interface{}) error {
	return c.conn.Exec(ctx, query, args...)
}

func (c *nativeConn) Query(ctx context.Context, query string, args ...interface{}) (Rows, error) {
	rows, err := c.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return &nativeRows{rows: rows}, nil
}

func (c *nativeConn) PrepareBatch(ctx context.Context, query string) (Batch, error) {
	b, err := c.conn.PrepareBatch(ctx, query)
	if err != nil {
		return nil, err
	}
	return &nativeBatch{batch: b}, nil
}

func (c *nativeConn) Ping(ctx context.Context) error {
	return c.conn.Ping(ctx)
}

func (c *nativeConn) Close() error {
	return c.conn.Close()
}

type nativeRows struct {
	rows driver.Rows
}

func (r *nativeRows) Next() bool                     { return r.rows.Next() }
func (r *nativeRows) Scan(dest ...interface{}) error { return r.rows.Scan(dest...) }
func (r *nativeRows) Err() error                     { return r.rows.Err() }
func (r *nativeRows) Close() error                   { return r.rows.Close() }

func (r *nativeRows) ColumnTypes() []ColumnType {
	types := r.rows.ColumnTypes()
	out := make([]ColumnType, len(types))
	for i, t := range types {
		out[i] = t
	}
	return out
}

type nativeBatch struct {
	batch driver.Batch
}

func (b *nativeBatch) Column(i int) BatchColumn { return b.batch.Column(i) }
func (b *nativeBatch) Send() error              { return b.batch.Send() }
func (b *nativeBatch) Abort() error             { return b.batch.Abort() }

// classify maps driver failures onto error types: server exceptions are
// query errors, everything on the transport path is a connection error.
func classify(err error, message string) error {
	if err == nil {
		return nil
	}
	var exc *clickhouse.Exception
	if stderrors.As(err, &exc) {
		return errors.Wrap(err, errors.ErrorTypeQuery, message).
			WithDetail("code", exc.Code).
			WithDetail("server_error", exc.Name)
	}

	var netErr net.Error
	var tlsErr *tls.RecordHeaderError
	switch {
	case stderrors.As(err, &netErr),
		stderrors.As(err, &tlsErr),
		stderrors.Is(err, io.EOF),
		stderrors.Is(err, io.ErrUnexpectedEOF),
		stderrors.Is(err, clickhouse.ErrAcquireConnTimeout):
		return errors.Wrap(err, errors.ErrorTypeConnection, message)
	case stderrors.Is(err, context.DeadlineExceeded), stderrors.Is(err, context.Canceled):
		return errors.Wrap(err, errors.ErrorTypeConnection, message).WithDetail("timeout", true)
	}
	if _, ok := errors.As(err); ok {
		return err
	}
	return errors.Wrap(err, errors.ErrorTypeQuery, message)
}
