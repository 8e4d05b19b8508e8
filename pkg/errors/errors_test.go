package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrapPreservesContext(t *testing.T) {
	inner := New(ErrorTypeDecoding, "key out of range").WithColumn("tags").WithDataType("LowCardinality(String)")
	outer := Wrap(inner, ErrorTypeQuery, "failed to read result")

	require.NotNil(t, outer)
	assert.Equal(t, "tags", outer.Column)
	assert.Equal(t, "LowCardinality(String)", outer.DataType)
	assert.Equal(t, inner.Stack, outer.Stack)
	assert.True(t, stderrors.Is(outer, inner))
	assert.Nil(t, Wrap(nil, ErrorTypeQuery, "ignored"))
}

func TestInColumn(t *testing.T) {
	err := InColumn(New(ErrorTypeEncoding, "bad uuid"), "b")
	err = InColumn(err, "a")

	var e *Error
	require.True(t, stderrors.As(err, &e))
	assert.Equal(t, "a.b", e.Column)

	plain := fmt.Errorf("plain")
	assert.Equal(t, plain, InColumn(plain, "a"))
}

func TestWithColumnIgnoresEmpty(t *testing.T) {
	err := New(ErrorTypeEncoding, "x").WithColumn("")
	assert.Empty(t, err.Column)
	assert.Equal(t, "encoding: x", err.Error())
}

func TestIsTypeThroughFmtWrap(t *testing.T) {
	err := fmt.Errorf("insert failed: %w", New(ErrorTypeSchemaConflict, "duplicate column"))
	assert.True(t, IsType(err, ErrorTypeSchemaConflict))
	assert.False(t, IsType(err, ErrorTypeEncoding))
	assert.NotEmpty(t, New(ErrorTypeInternal, "x").Stack)
}
