package transcode

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/arrowhouse/pkg/chtype"
	"github.com/ajitpratap0/arrowhouse/pkg/errors"
	"github.com/ajitpratap0/arrowhouse/pkg/frame"
)

func specStrings(specs []FlatColumnSpec) []string {
	out := make([]string, len(specs))
	for i, s := range specs {
		out[i] = s.Name + " " + s.Type.String()
	}
	return out
}

func TestDeriveRemoteSchemaFlattensStructs(t *testing.T) {
	schema := frame.Schema{
		{Name: "id", Type: frame.Int(64, false)},
		{Name: "user", Type: frame.StructOf(
			frame.Field{Name: "name", Type: frame.String()},
			frame.Field{Name: "address", Type: frame.StructOf(
				frame.Field{Name: "city", Type: frame.Categorical()},
				frame.Field{Name: "zip", Type: frame.NullableOf(frame.Int(32, true))},
			)},
		)},
		{Name: "tags", Type: frame.ListOf(frame.String())},
	}

	specs, err := DeriveRemoteSchema(schema)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"id UInt64",
		"user.name String",
		"user.address.city LowCardinality(String)",
		"user.address.zip Nullable(Int32)",
		"tags Array(String)",
	}, specStrings(specs))
	assert.False(t, specs[0].Nullable)
	assert.True(t, specs[3].Nullable)
}

func TestDeriveRemoteSchemaPushesStructNullability(t *testing.T) {
	schema := frame.Schema{
		{Name: "s", Type: frame.NullableOf(frame.StructOf(
			frame.Field{Name: "a", Type: frame.Int(8, true)},
			frame.Field{Name: "c", Type: frame.Categorical()},
		))},
	}

	specs, err := DeriveRemoteSchema(schema)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"s.a Nullable(Int8)",
		"s.c LowCardinality(Nullable(String))",
	}, specStrings(specs))
}

func TestDeriveRemoteSchemaErrors(t *testing.T) {
	tests := []struct {
		name    string
		schema  frame.Schema
		errType errors.ErrorType
	}{
		{
			"duplicate names",
			frame.Schema{{Name: "a", Type: frame.Bool()}, {Name: "a", Type: frame.Bool()}},
			errors.ErrorTypeSchemaConflict,
		},
		{
			"dotted name",
			frame.Schema{{Name: "a.b", Type: frame.Bool()}},
			errors.ErrorTypeSchemaConflict,
		},
		{
			"unsupported width",
			frame.Schema{{Name: "a", Type: frame.Int(128, true)}},
			errors.ErrorTypeUnsupportedType,
		},
		{
			"list of list",
			frame.Schema{{Name: "a", Type: frame.ListOf(frame.ListOf(frame.Bool()))}},
			errors.ErrorTypeUnsupportedType,
		},
		{
			"nullable list",
			frame.Schema{{Name: "a", Type: frame.NullableOf(frame.ListOf(frame.Bool()))}},
			errors.ErrorTypeUnsupportedType,
		},
		{
			"list under nullable struct",
			frame.Schema{{Name: "s", Type: frame.NullableOf(frame.StructOf(
				frame.Field{Name: "l", Type: frame.ListOf(frame.Bool())},
			))}},
			errors.ErrorTypeUnsupportedType,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DeriveRemoteSchema(tt.schema)
			require.Error(t, err)
			assert.True(t, errors.IsType(err, tt.errType), "got %v", err)
		})
	}
}

func TestGroupFlatColumns(t *testing.T) {
	specs := []FlatColumnSpec{
		NewFlatColumnSpec("id", chtype.UInt64),
		NewFlatColumnSpec("user.name", chtype.String),
		NewFlatColumnSpec("tags", chtype.MustParse("Array(String)")),
		NewFlatColumnSpec("user.age", chtype.MustParse("Nullable(UInt8)")),
	}

	schema, err := GroupFlatColumns(specs, Options{})
	require.NoError(t, err)
	require.Len(t, schema, 3)
	assert.Equal(t, []string{"id", "user", "tags"}, schema.Names())
	assert.Equal(t, "Struct{name: String, age: Nullable(UInt8)}", schema[1].Type.String())
}

func TestGroupFlatColumnsConflicts(t *testing.T) {
	tests := []struct {
		name  string
		names []string
	}{
		{"leaf then prefix", []string{"a", "a.b"}},
		{"prefix then leaf", []string{"a.b", "a"}},
		{"duplicate", []string{"x", "x"}},
		{"empty segment", []string{"a..b"}},
		{"trailing separator", []string{"a."}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			specs := make([]FlatColumnSpec, len(tt.names))
			for i, n := range tt.names {
				specs[i] = NewFlatColumnSpec(n, chtype.Int32)
			}
			_, err := GroupFlatColumns(specs, Options{})
			require.Error(t, err)
			assert.True(t, errors.IsType(err, errors.ErrorTypeSchemaConflict), "got %v", err)
		})
	}
}

func TestSchemaRoundTrip(t *testing.T) {
	schema := frame.Schema{
		{Name: "a", Type: frame.Int(32, true)},
		{Name: "b", Type: frame.StructOf(
			frame.Field{Name: "x", Type: frame.NullableOf(frame.Float(64))},
			frame.Field{Name: "y", Type: frame.StructOf(frame.Field{Name: "z", Type: frame.ListOf(frame.Int(16, false))})},
		)},
		{Name: "c", Type: frame.NullableOf(frame.Categorical())},
	}

	specs, err := DeriveRemoteSchema(schema)
	require.NoError(t, err)
	back, err := GroupFlatColumns(specs, Options{PreserveCategorical: true})
	require.NoError(t, err)
	assert.True(t, back.Equal(schema), "got %v", back)
}
