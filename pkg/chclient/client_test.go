package chclient

import (
	"context"
	stderrors "errors"
	"io"
	"net"
	"reflect"
	"testing"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/ajitpratap0/arrowhouse/pkg/chtype"
	"github.com/ajitpratap0/arrowhouse/pkg/errors"
	"github.com/ajitpratap0/arrowhouse/pkg/frame"
	"github.com/ajitpratap0/arrowhouse/pkg/transcode"
)

func ptr[T any](v T) *T { return &v }

func newTestClient(t *testing.T, conn Conn) *Client {
	t.Helper()
	rp := NewRetryPolicy(3, time.Millisecond)
	rp.RandomizeFactor = 0
	return New(conn, WithRetryPolicy(rp), WithLogger(zaptest.NewLogger(t)))
}

func scalarBuffer(name, typ string, data interface{}) *transcode.Buffer {
	return &transcode.Buffer{Name: name, Type: chtype.MustParse(typ), Data: data}
}

func TestInsertSendsTypedColumns(t *testing.T) {
	batch := &transcode.Batch{
		Rows: 3,
		Columns: []*transcode.Buffer{
			scalarBuffer("id", "Int32", []int32{1, 2, 3}),
			{
				Name:  "name",
				Type:  chtype.MustParse("Nullable(String)"),
				Valid: []bool{true, false, true},
				Elem:  scalarBuffer("", "String", []string{"a", "", "c"}),
			},
			scalarBuffer("flag", "Bool", []uint8{1, 0, 1}),
			{
				Name:    "tags",
				Type:    chtype.MustParse("Array(Int32)"),
				Offsets: []uint64{0, 2, 2, 3},
				Elem:    scalarBuffer("", "Int32", []int32{1, 2, 3}),
			},
			{
				Name: "cat",
				Type: chtype.MustParse("LowCardinality(String)"),
				Keys: []uint32{0, 1, 0},
				Dict: scalarBuffer("", "String", []string{"x", "y"}),
			},
			{
				Name:   "rec",
				Type:   chtype.MustParse("Tuple(a Int8)"),
				Fields: []*transcode.Buffer{scalarBuffer("a", "Int8", []int8{7, 8, 9})},
			},
		},
	}
	for _, col := range batch.Columns {
		require.NoError(t, col.Validate())
	}

	conn := &fakeConn{}
	c := newTestClient(t, conn)
	require.NoError(t, c.Insert(context.Background(), "db.events", batch))

	require.Len(t, conn.batches, 1)
	b := conn.batches[0]
	assert.Equal(t, "INSERT INTO `db`.`events` (`id`, `name`, `flag`, `tags`, `cat`, `rec`)", b.query)
	assert.True(t, b.sent)

	assert.Equal(t, []interface{}{[]int32{1, 2, 3}}, b.columns[0].appended)
	assert.Equal(t, []interface{}{[]*string{ptr("a"), nil, ptr("c")}}, b.columns[1].appended)
	assert.Equal(t, []interface{}{[]bool{true, false, true}}, b.columns[2].appended)
	assert.Equal(t, []interface{}{[][]int32{{1, 2}, {}, {3}}}, b.columns[3].appended)
	assert.Equal(t, []interface{}{[]string{"x", "y", "x"}}, b.columns[4].appended)
	assert.Empty(t, b.columns[5].appended)
	assert.Equal(t, []interface{}{
		map[string]interface{}{"a": int8(7)},
		map[string]interface{}{"a": int8(8)},
		map[string]interface{}{"a": int8(9)},
	}, b.columns[5].rows)
}

func TestInsertAbortsWhenDriverRejectsColumn(t *testing.T) {
	conn := &fakeConn{columnErr: stderrors.New("clickhouse [Append]: converting string to Int32 is unsupported")}
	c := newTestClient(t, conn)

	batch := &transcode.Batch{Rows: 1, Columns: []*transcode.Buffer{scalarBuffer("id", "Int32", []int32{1})}}
	err := c.Insert(context.Background(), "events", batch)
	require.Error(t, err)

	e, ok := errors.As(err)
	require.True(t, ok)
	assert.Equal(t, errors.ErrorTypeEncoding, e.Type)
	assert.Equal(t, "id", e.Column)
	assert.True(t, conn.batches[0].aborted)
	assert.False(t, conn.batches[0].sent)
}

func TestInsertIsNotRetried(t *testing.T) {
	conn := &fakeConn{sendErr: io.EOF}
	c := newTestClient(t, conn)

	batch := &transcode.Batch{Rows: 1, Columns: []*transcode.Buffer{scalarBuffer("id", "Int32", []int32{1})}}
	err := c.Insert(context.Background(), "events", batch)
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeConnection))
	assert.Len(t, conn.batches, 1)
}

func TestSelectBuildsBuffers(t *testing.T) {
	u1, u2 := uuid.New(), uuid.New()
	rows := &fakeRows{
		types: []ColumnType{
			column("id", "Int32"),
			column("name", "Nullable(String)"),
			column("cat", "LowCardinality(Nullable(String))"),
			column("tags", "Array(Nullable(Int16))"),
			column("ok", "Bool"),
			column("uid", "UUID"),
			column("pt", "Tuple(x Int32, y String)"),
		},
		values: [][]interface{}{
			{int32(1), ptr("a"), ptr("x"), []*int16{ptr(int16(1)), nil}, true, u1,
				map[string]interface{}{"x": int32(1), "y": "p"}},
			{int32(2), (*string)(nil), (*string)(nil), []*int16{}, false, u2,
				map[string]interface{}{"x": int32(2), "y": "q"}},
			{int32(3), ptr("c"), ptr("x"), []*int16{ptr(int16(3))}, true, u1,
				map[string]interface{}{"x": int32(3), "y": "r"}},
		},
	}
	conn := &fakeConn{rows: rows}
	c := newTestClient(t, conn)

	bufs, err := c.Select(context.Background(), "SELECT * FROM events")
	require.NoError(t, err)
	require.Len(t, bufs, 7)
	assert.True(t, rows.closed)
	for _, b := range bufs {
		require.NoError(t, b.Validate(), b.Name)
		assert.Equal(t, 3, b.Len(), b.Name)
	}

	assert.Equal(t, []int32{1, 2, 3}, bufs[0].Data)

	assert.Equal(t, []bool{true, false, true}, bufs[1].Valid)
	assert.Equal(t, []string{"a", "", "c"}, bufs[1].Elem.Data)

	assert.Equal(t, []uint32{1, 0, 1}, bufs[2].Keys)
	assert.Equal(t, []bool{false, true}, bufs[2].Dict.Valid)
	assert.Equal(t, []string{"", "x"}, bufs[2].Dict.Elem.Data)

	assert.Equal(t, []uint64{0, 2, 2, 3}, bufs[3].Offsets)
	assert.Equal(t, []bool{true, false, true}, bufs[3].Elem.Valid)
	assert.Equal(t, []int16{1, 0, 3}, bufs[3].Elem.Elem.Data)

	assert.Equal(t, []uint8{1, 0, 1}, bufs[4].Data)
	assert.Equal(t, []uuid.UUID{u1, u2, u1}, bufs[5].Data)

	require.Len(t, bufs[6].Fields, 2)
	assert.Equal(t, []int32{1, 2, 3}, bufs[6].Fields[0].Data)
	assert.Equal(t, []string{"p", "q", "r"}, bufs[6].Fields[1].Data)

	f, err := transcode.DecodeFrame(bufs, map[string]frame.ColumnType{"uid": frame.UUID()}, transcode.Options{})
	require.NoError(t, err)
	assert.Equal(t, 3, f.NumRows())
	name, ok := f.Column("name")
	require.True(t, ok)
	assert.Equal(t, 1, name.NullCount())
}

func TestSelectAcceptsSliceTuples(t *testing.T) {
	rows := &fakeRows{
		types: []ColumnType{fakeColumnType{
			name:     "pt",
			dbType:   "Tuple(x Int32, y String)",
			scanType: reflect.TypeOf([]interface{}{}),
		}},
		values: [][]interface{}{{[]interface{}{int32(5), "z"}}},
	}
	c := newTestClient(t, &fakeConn{rows: rows})

	bufs, err := c.Select(context.Background(), "SELECT pt FROM t")
	require.NoError(t, err)
	assert.Equal(t, []int32{5}, bufs[0].Fields[0].Data)
	assert.Equal(t, []string{"z"}, bufs[0].Fields[1].Data)
}

func TestSelectErrors(t *testing.T) {
	t.Run("unsupported column", func(t *testing.T) {
		rows := &fakeRows{types: []ColumnType{column("id", "Int32"), column("d", "Date")}}
		c := newTestClient(t, &fakeConn{rows: rows})

		_, err := c.Select(context.Background(), "SELECT id, d FROM t")
		require.Error(t, err)
		e, ok := errors.As(err)
		require.True(t, ok)
		assert.Equal(t, errors.ErrorTypeUnsupportedType, e.Type)
		assert.Equal(t, "d", e.Column)
	})

	t.Run("connection failure is retried", func(t *testing.T) {
		conn := &fakeConn{queryErr: &net.OpError{Op: "dial", Net: "tcp", Err: stderrors.New("connection refused")}}
		c := newTestClient(t, conn)

		_, err := c.Select(context.Background(), "SELECT 1")
		require.Error(t, err)
		assert.True(t, errors.IsType(err, errors.ErrorTypeConnection))
		assert.Len(t, conn.queries, 3)
	})

	t.Run("server exception is not retried", func(t *testing.T) {
		conn := &fakeConn{queryErr: &clickhouse.Exception{Code: 60, Name: "DB::Exception", Message: "Table default.t does not exist"}}
		c := newTestClient(t, conn)

		_, err := c.Select(context.Background(), "SELECT 1 FROM t")
		require.Error(t, err)
		e, ok := errors.As(err)
		require.True(t, ok)
		assert.Equal(t, errors.ErrorTypeQuery, e.Type)
		assert.EqualValues(t, 60, e.Details["code"])
		assert.Len(t, conn.queries, 1)
	})

	t.Run("value of wrong Go type", func(t *testing.T) {
		rows := &fakeRows{
			types:  []ColumnType{fakeColumnType{name: "n", dbType: "Int8", scanType: goType(chtype.Int64)}},
			values: [][]interface{}{{int64(1000)}},
		}
		c := newTestClient(t, &fakeConn{rows: rows})

		_, err := c.Select(context.Background(), "SELECT n FROM t")
		require.Error(t, err)
		e, ok := errors.As(err)
		require.True(t, ok)
		assert.Equal(t, errors.ErrorTypeDecoding, e.Type)
		assert.Equal(t, "n", e.Column)
	})
}

func TestDescribe(t *testing.T) {
	rows := &fakeRows{
		types: []ColumnType{column("name", "String"), column("type", "String"), column("default_type", "String")},
		values: [][]interface{}{
			{"id", "Int32", ""},
			{"s.x", "Nullable(String)", ""},
			{"c", "LowCardinality(String)", "DEFAULT"},
		},
	}
	conn := &fakeConn{rows: rows}
	c := newTestClient(t, conn)

	specs, err := c.Describe(context.Background(), "analytics.events")
	require.NoError(t, err)
	assert.Equal(t, []string{"DESCRIBE TABLE `analytics`.`events`"}, conn.queries)

	require.Len(t, specs, 3)
	assert.Equal(t, "id", specs[0].Name)
	assert.True(t, specs[0].Type.Equal(chtype.Int32))
	assert.Equal(t, "s.x", specs[1].Name)
	assert.True(t, specs[1].Nullable)
	assert.Equal(t, "LowCardinality(String)", specs[2].Type.String())
}

func TestExecRetriesConnectionErrors(t *testing.T) {
	conn := &fakeConn{execErrs: []error{io.EOF, nil}}
	c := newTestClient(t, conn)

	require.NoError(t, c.Exec(context.Background(), "CREATE TABLE IF NOT EXISTS t (x Int8) ENGINE = Memory"))
	assert.Len(t, conn.execs, 2)
}

func TestPingAndClose(t *testing.T) {
	conn := &fakeConn{pingErrs: []error{io.ErrUnexpectedEOF}}
	c := newTestClient(t, conn)

	require.NoError(t, c.Ping(context.Background()))
	assert.Equal(t, 2, conn.pings)
	require.NoError(t, c.Close())
	assert.True(t, conn.closed)
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want errors.ErrorType
	}{
		{"server exception", &clickhouse.Exception{Code: 62, Name: "DB::Exception"}, errors.ErrorTypeQuery},
		{"network", &net.OpError{Op: "read", Net: "tcp", Err: stderrors.New("reset")}, errors.ErrorTypeConnection},
		{"eof", io.EOF, errors.ErrorTypeConnection},
		{"deadline", context.DeadlineExceeded, errors.ErrorTypeConnection},
		{"acquire timeout", clickhouse.ErrAcquireConnTimeout, errors.ErrorTypeConnection},
		{"other", stderrors.New("clickhouse: unexpected packet"), errors.ErrorTypeQuery},
		{"structured", errors.New(errors.ErrorTypeDecoding, "bad"), errors.ErrorTypeDecoding},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, errors.TypeOf(classify(tt.err, "failed")))
		})
	}
	assert.NoError(t, classify(nil, "failed"))
}

func TestInsertQuery(t *testing.T) {
	assert.Equal(t, "INSERT INTO `t` (`a`, `s.x`)", InsertQuery("t", []string{"a", "s.x"}))
}
