package observability

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/ajitpratap0/arrowhouse/pkg/errors"
)

func installRecorder(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	rec := tracetest.NewSpanRecorder()
	SetTracerProvider(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec)))
	t.Cleanup(func() { _ = Shutdown(context.Background()) })
	return rec
}

func TestTraceRecordsStructuredErrors(t *testing.T) {
	rec := installRecorder(t)

	err := Trace(context.Background(), "insert", func(ctx context.Context) error {
		return errors.New(errors.ErrorTypeEncoding, "too long").WithColumn("code")
	}, attribute.String("table", "events"))
	require.Error(t, err)

	spans := rec.Ended()
	require.Len(t, spans, 1)
	span := spans[0]
	assert.Equal(t, "insert", span.Name())
	assert.Equal(t, codes.Error, span.Status().Code)

	attrs := map[attribute.Key]string{}
	for _, kv := range span.Attributes() {
		attrs[kv.Key] = kv.Value.Emit()
	}
	assert.Equal(t, "events", attrs["table"])
	assert.Equal(t, "encoding", attrs["error.type"])
	assert.Equal(t, "code", attrs["error.column"])
}

func TestTraceSuccess(t *testing.T) {
	rec := installRecorder(t)

	err := Trace(context.Background(), "query", func(ctx context.Context) error { return nil })
	require.NoError(t, err)

	spans := rec.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, codes.Ok, spans[0].Status().Code)
}

func TestInitTracingDisabled(t *testing.T) {
	require.NoError(t, InitTracing(TracingConfig{Enabled: false}))
}

func TestInitTracingStdout(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, InitTracing(TracingConfig{
		Enabled:      true,
		ServiceName:  "arrowhouse-test",
		SamplingRate: 1,
		ExporterType: "stdout",
		Writer:       &out,
	}))

	_, span := StartSpan(context.Background(), "create")
	span.Finish(nil)
	require.NoError(t, Shutdown(context.Background()))
	assert.Contains(t, out.String(), "create")
}
