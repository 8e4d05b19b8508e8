package chclient

import (
	"context"
	"reflect"

	"github.com/ajitpratap0/arrowhouse/pkg/chtype"
)

type fakeColumnType struct {
	name     string
	dbType   string
	scanType reflect.Type
}

func (c fakeColumnType) Name() string             { return c.name }
func (c fakeColumnType) DatabaseTypeName() string { return c.dbType }
func (c fakeColumnType) ScanType() reflect.Type   { return c.scanType }

// column builds result metadata the way the driver reports it.
func column(name, dbType string) fakeColumnType {
	return fakeColumnType{name: name, dbType: dbType, scanType: goType(chtype.MustParse(dbType))}
}

type fakeRows struct {
	types  []ColumnType
	values [][]interface{}
	pos    int
	closed bool
	err    error
}

func (r *fakeRows) Next() bool {
	if r.pos >= len(r.values) {
		return false
	}
	r.pos++
	return true
}

func (r *fakeRows) Scan(dest ...interface{}) error {
	row := r.values[r.pos-1]
	for i, d := range dest {
		target := reflect.ValueOf(d).Elem()
		if row[i] == nil {
			target.Set(reflect.Zero(target.Type()))
			continue
		}
		target.Set(reflect.ValueOf(row[i]))
	}
	return nil
}

func (r *fakeRows) ColumnTypes() []ColumnType { return r.types }
func (r *fakeRows) Err() error                { return r.err }
func (r *fakeRows) Close() error              { r.closed = true; return nil }

type fakeColumn struct {
	appended []interface{}
	rows     []interface{}
	err      error
}

func (c *fakeColumn) Append(v interface{}) error {
	if c.err != nil {
		return c.err
	}
	c.appended = append(c.appended, v)
	return nil
}

func (c *fakeColumn) AppendRow(v interface{}) error {
	if c.err != nil {
		return c.err
	}
	c.rows = append(c.rows, v)
	return nil
}

type fakeBatch struct {
	query   string
	columns map[int]*fakeColumn
	sent    bool
	aborted bool
	sendErr error
}

func (b *fakeBatch) Column(i int) BatchColumn {
	if b.columns[i] == nil {
		b.columns[i] = &fakeColumn{}
	}
	return b.columns[i]
}

func (b *fakeBatch) Send() error {
	if b.sendErr != nil {
		return b.sendErr
	}
	b.sent = true
	return nil
}

func (b *fakeBatch) Abort() error { b.aborted = true; return nil }

type fakeConn struct {
	execs     []string
	execErrs  []error
	pingErrs  []error
	pings     int
	queries   []string
	rows      *fakeRows
	queryErr  error
	batches   []*fakeBatch
	columnErr error
	sendErr   error
	closed    bool
}

func (c *fakeConn) Exec(_ context.Context, query string, _ ...interface{}) error {
	c.execs = append(c.execs, query)
	if len(c.execErrs) > 0 {
		err := c.execErrs[0]
		c.execErrs = c.execErrs[1:]
		return err
	}
	return nil
}

func (c *fakeConn) Query(_ context.Context, query string, _ ...interface{}) (Rows, error) {
	c.queries = append(c.queries, query)
	if c.queryErr != nil {
		return nil, c.queryErr
	}
	return c.rows, nil
}

func (c *fakeConn) PrepareBatch(_ context.Context, query string) (Batch, error) {
	b := &fakeBatch{query: query, columns: map[int]*fakeColumn{}, sendErr: c.sendErr}
	if c.columnErr != nil {
		b.columns[0] = &fakeColumn{err: c.columnErr}
	}
	c.batches = append(c.batches, b)
	return b, nil
}

func (c *fakeConn) Ping(context.Context) error {
	c.pings++
	if len(c.pingErrs) > 0 {
		err := c.pingErrs[0]
		c.pingErrs = c.pingErrs[1:]
		return err
	}
	return nil
}

func (c *fakeConn) Close() error { c.closed = true; return nil }
