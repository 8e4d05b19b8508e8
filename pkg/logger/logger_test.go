package logger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestNewRejectsBadLevel(t *testing.T) {
	_, err := New(Config{Level: "loud"})
	require.Error(t, err)
}

func TestNewDefaults(t *testing.T) {
	l, err := New(Config{})
	require.NoError(t, err)
	assert.True(t, l.Core().Enabled(zapcore.InfoLevel))
	assert.False(t, l.Core().Enabled(zapcore.DebugLevel))
}

func TestWithContextAddsFields(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	Set(zap.New(core))
	t.Cleanup(func() { Set(nil) })

	ctx := ContextWith(context.Background(), TableKey, "events")
	ctx = ContextWith(ctx, OperationKey, "insert")
	WithContext(ctx).Info("sent")

	entries := logs.All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "events", fields["table"])
	assert.Equal(t, "insert", fields["operation"])
	assert.NotContains(t, fields, "query_id")
}

func TestGetWithoutInitIsNop(t *testing.T) {
	Set(nil)
	assert.NotPanics(t, func() { Get().Info("dropped") })
}
