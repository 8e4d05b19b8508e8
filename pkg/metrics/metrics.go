// Package metrics exposes Prometheus collectors for transcoding and
// ClickHouse round trips.
//
// # Basic Usage
//
//	timer := metrics.NewTimer()
//	batch, err := transcode.EncodeFrame(f, specs)
//	metrics.ObserveStage("encode", timer.Stop(), err)
//	metrics.RowsEncoded.WithLabelValues("events").Add(float64(batch.Rows))
//
// All collectors are registered with the default registry on import.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/ajitpratap0/arrowhouse/pkg/errors"
)

var (
	// RowsEncoded counts rows converted into ClickHouse column buffers.
	// Labels: table
	RowsEncoded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "arrowhouse_rows_encoded_total",
			Help: "Total number of rows encoded for insertion",
		},
		[]string{"table"},
	)

	// RowsDecoded counts rows rebuilt from query results.
	// Labels: table
	RowsDecoded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "arrowhouse_rows_decoded_total",
			Help: "Total number of rows decoded from query results",
		},
		[]string{"table"},
	)

	// BatchesSent counts insert batches by outcome.
	// Labels: table, status (success/failure)
	BatchesSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "arrowhouse_batches_sent_total",
			Help: "Total number of insert batches sent",
		},
		[]string{"table", "status"},
	)

	// StageLatency tracks how long each stage of a round trip takes.
	// Labels: stage (derive/encode/decode/send/query)
	StageLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "arrowhouse_stage_duration_seconds",
			Help: "Duration of transcoding and transport stages in seconds",
			Buckets: []float64{
				0.0001, // 100μs - schema work
				0.001,  // 1ms - small batches
				0.01,   // 10ms
				0.1,    // 100ms - network round trips
				1,      // 1s - large batches
				10,     // 10s
				60,     // 1m - bulk loads
			},
		},
		[]string{"stage"},
	)

	// Errors counts failures by error category.
	// Labels: stage, type
	Errors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "arrowhouse_errors_total",
			Help: "Total number of failures by stage and error type",
		},
		[]string{"stage", "type"},
	)

	// ActiveConnections tracks open ClickHouse connections.
	ActiveConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "arrowhouse_active_connections",
			Help: "Number of open ClickHouse connections",
		},
	)

	// Throughput tracks rows per second.
	// Labels: table, direction (insert/query)
	Throughput = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "arrowhouse_throughput_rows_per_second",
			Help: "Current throughput in rows per second",
		},
		[]string{"table", "direction"},
	)
)

// ObserveStage records the duration of a stage and, when err is non-nil,
// counts it under its error type.
func ObserveStage(stage string, d time.Duration, err error) {
	StageLatency.WithLabelValues(stage).Observe(d.Seconds())
	if err != nil {
		Errors.WithLabelValues(stage, string(errors.TypeOf(err))).Inc()
	}
}

// Timer measures the duration of one operation.
type Timer struct {
	start time.Time
}

// NewTimer starts timing immediately.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// Stop returns the elapsed duration since creation. It may be called more
// than once.
func (t *Timer) Stop() time.Duration {
	return time.Since(t.start)
}

// ThroughputTracker tracks rows per second over time windows. Safe for
// concurrent use.
type ThroughputTracker struct {
	mu        sync.Mutex
	count     int64
	lastReset time.Time
	table     string
	direction string
}

// NewThroughputTracker creates a tracker for one table and direction.
func NewThroughputTracker(table, direction string) *ThroughputTracker {
	return &ThroughputTracker{
		lastReset: time.Now(),
		table:     table,
		direction: direction,
	}
}

// Increment adds n to the row count.
func (t *ThroughputTracker) Increment(n int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.count += n
}

// GetAndReset computes rows per second since the last reset, publishes it
// and starts a new window.
func (t *ThroughputTracker) GetAndReset() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	elapsed := time.Since(t.lastReset).Seconds()
	if elapsed == 0 {
		return 0
	}
	throughput := float64(t.count) / elapsed

	t.count = 0
	t.lastReset = time.Now()
	Throughput.WithLabelValues(t.table, t.direction).Set(throughput)
	return throughput
}
