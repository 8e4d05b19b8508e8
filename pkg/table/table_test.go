package table

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/arrowhouse/pkg/chtype"
	"github.com/ajitpratap0/arrowhouse/pkg/errors"
	"github.com/ajitpratap0/arrowhouse/pkg/frame"
	"github.com/ajitpratap0/arrowhouse/pkg/transcode"
)

type fakeClient struct {
	execs     []string
	inserted  []*transcode.Batch
	tables    []string
	selects   []string
	result    []*transcode.Buffer
	described []transcode.FlatColumnSpec
	insertErr error
}

func (c *fakeClient) Exec(_ context.Context, query string, _ ...interface{}) error {
	c.execs = append(c.execs, query)
	return nil
}

func (c *fakeClient) Insert(_ context.Context, table string, batch *transcode.Batch) error {
	if c.insertErr != nil {
		return c.insertErr
	}
	c.tables = append(c.tables, table)
	c.inserted = append(c.inserted, batch)
	return nil
}

func (c *fakeClient) Select(_ context.Context, query string, _ ...interface{}) ([]*transcode.Buffer, error) {
	c.selects = append(c.selects, query)
	return c.result, nil
}

func (c *fakeClient) Describe(_ context.Context, table string) ([]transcode.FlatColumnSpec, error) {
	c.selects = append(c.selects, "DESCRIBE "+table)
	return c.described, nil
}

func spec(name, typ string) transcode.FlatColumnSpec {
	return transcode.NewFlatColumnSpec(name, chtype.MustParse(typ))
}

func columnStrings(tb *Table) []string {
	out := make([]string, len(tb.Columns))
	for i, c := range tb.Columns {
		out[i] = c.Name + " " + c.Type.String()
	}
	return out
}

func eventSchema() frame.Schema {
	return frame.Schema{
		{Name: "id", Type: frame.Int(64, true)},
		{Name: "name", Type: frame.String()},
		{Name: "s", Type: frame.StructOf(
			frame.Field{Name: "x", Type: frame.Int(32, true)},
			frame.Field{Name: "y", Type: frame.Categorical()},
		)},
		{Name: "tags", Type: frame.ListOf(frame.Int(32, true))},
	}
}

func TestFromSchema(t *testing.T) {
	tb, err := FromSchema("events", eventSchema(), TableOptions{
		Nullable: []string{"name", "s"},
		Defaults: []transcode.FlatColumnSpec{spec("source", "LowCardinality(String)")},
	})
	require.NoError(t, err)

	assert.Equal(t, []string{
		"id Int64",
		"name Nullable(String)",
		"s.x Nullable(Int32)",
		"s.y LowCardinality(Nullable(String))",
		"tags Array(Int32)",
		"source LowCardinality(String)",
	}, columnStrings(tb))
	assert.True(t, tb.Columns[1].Nullable)
	assert.False(t, tb.Columns[0].Nullable)

	schema, err := tb.Schema(transcode.Options{PreserveCategorical: true})
	require.NoError(t, err)
	assert.Equal(t, []string{"id", "name", "s", "tags", "source"}, schema.Names())
}

func TestFromSchemaErrors(t *testing.T) {
	tests := []struct {
		name string
		opts TableOptions
		want errors.ErrorType
	}{
		{"unknown nullable column", TableOptions{Nullable: []string{"missing"}}, errors.ErrorTypeValidation},
		{"nullable array", TableOptions{Nullable: []string{"tags"}}, errors.ErrorTypeUnsupportedType},
		{"default shadows column", TableOptions{Defaults: []transcode.FlatColumnSpec{spec("s.x", "Int32")}}, errors.ErrorTypeSchemaConflict},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := FromSchema("events", eventSchema(), tt.opts)
			require.Error(t, err)
			assert.Equal(t, tt.want, errors.TypeOf(err))
		})
	}
}

func TestCreateQuery(t *testing.T) {
	tb := &Table{Name: "events", Columns: []transcode.FlatColumnSpec{
		spec("id", "Int64"),
		spec("s.x", "Nullable(String)"),
	}}

	q, err := tb.CreateQuery(CreateOptions{
		PrimaryKey:  []string{"id"},
		IfNotExists: true,
		Suffix:      "SETTINGS index_granularity = 8192",
	})
	require.NoError(t, err)
	assert.Equal(t, "CREATE TABLE IF NOT EXISTS `events` (\n"+
		"  `id` Int64,\n"+
		"  `s.x` Nullable(String)\n"+
		") ENGINE = MergeTree() PRIMARY KEY (`id`)\n"+
		"SETTINGS index_granularity = 8192", q)

	q, err = (&Table{Name: "db.t", Columns: []transcode.FlatColumnSpec{spec("a", "UInt8")}}).
		CreateQuery(CreateOptions{Engine: "ReplacingMergeTree()"})
	require.NoError(t, err)
	assert.Equal(t, "CREATE TABLE `db`.`t` (\n  `a` UInt8\n) ENGINE = ReplacingMergeTree() ORDER BY tuple()", q)

	q, err = (&Table{Name: "t", Columns: []transcode.FlatColumnSpec{spec("a", "UInt8")}}).
		CreateQuery(CreateOptions{Engine: "Memory"})
	require.NoError(t, err)
	assert.Equal(t, "CREATE TABLE `t` (\n  `a` UInt8\n) ENGINE = Memory", q)
}

func TestCreateQueryRejectsBadPrimaryKeys(t *testing.T) {
	tb := &Table{Name: "events", Columns: []transcode.FlatColumnSpec{
		spec("id", "Int64"),
		spec("name", "Nullable(String)"),
	}}

	for _, key := range []string{"missing", "name"} {
		_, err := tb.CreateQuery(CreateOptions{PrimaryKey: []string{"id", key}})
		require.Error(t, err, key)
		e, ok := errors.As(err)
		require.True(t, ok)
		assert.Equal(t, errors.ErrorTypeValidation, e.Type)
		assert.Equal(t, key, e.Column)
	}

	_, err := (&Table{Name: "empty"}).CreateQuery(CreateOptions{})
	assert.True(t, errors.IsType(err, errors.ErrorTypeValidation))
}

func TestCreateExecutes(t *testing.T) {
	client := &fakeClient{}
	tb := &Table{Name: "events", Columns: []transcode.FlatColumnSpec{spec("id", "Int64")}}

	require.NoError(t, tb.Create(context.Background(), client, CreateOptions{PrimaryKey: []string{"id"}}))
	require.Len(t, client.execs, 1)
	assert.Contains(t, client.execs[0], "CREATE TABLE `events`")

	require.Error(t, tb.Create(context.Background(), client, CreateOptions{PrimaryKey: []string{"nope"}}))
	assert.Len(t, client.execs, 1)
}

func TestFromServer(t *testing.T) {
	client := &fakeClient{described: []transcode.FlatColumnSpec{spec("id", "Int64"), spec("s.x", "Bool")}}

	tb, err := FromServer(context.Background(), client, "events")
	require.NoError(t, err)
	assert.Equal(t, "events", tb.Name)
	assert.Equal(t, []string{"id Int64", "s.x Bool"}, columnStrings(tb))
}
