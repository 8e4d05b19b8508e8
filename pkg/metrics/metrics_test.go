package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/ajitpratap0/arrowhouse/pkg/errors"
)

func TestObserveStageCountsErrorsByType(t *testing.T) {
	before := testutil.ToFloat64(Errors.WithLabelValues("encode", string(errors.ErrorTypeEncoding)))

	ObserveStage("encode", time.Millisecond, nil)
	ObserveStage("encode", time.Millisecond, errors.New(errors.ErrorTypeEncoding, "bad uuid"))

	after := testutil.ToFloat64(Errors.WithLabelValues("encode", string(errors.ErrorTypeEncoding)))
	assert.Equal(t, before+1, after)
}

func TestThroughputTracker(t *testing.T) {
	tracker := NewThroughputTracker("events", "insert")
	tracker.Increment(100)
	time.Sleep(10 * time.Millisecond)

	rate := tracker.GetAndReset()
	assert.Greater(t, rate, 0.0)
	assert.Equal(t, rate, testutil.ToFloat64(Throughput.WithLabelValues("events", "insert")))
	assert.Equal(t, int64(0), tracker.count)
}

func TestTimer(t *testing.T) {
	timer := NewTimer()
	time.Sleep(time.Millisecond)
	assert.GreaterOrEqual(t, timer.Stop(), time.Millisecond)
}
