// Package observe holds the OpenTelemetry instruments for mtprompt. Metrics
// are exported to Prometheus through InitProvider; tests should build their
// own Metrics with NewMetrics and a ManualReader-backed provider.
package observe

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/samcharles93/mtprompt"

// Compose outcome labels.
const (
	StatusOK      = "ok"
	StatusInvalid = "invalid"
	StatusError   = "error"
)

// Metrics holds the instruments. All fields are safe for concurrent use.
type Metrics struct {
	// ComposeDuration tracks Compose latency in seconds.
	ComposeDuration metric.Float64Histogram

	// ComposeRequests counts Compose calls by "status".
	ComposeRequests metric.Int64Counter

	// ComposedRows counts virtual-token rows returned, i.e. batch * T.
	ComposedRows metric.Int64Counter

	// TableBuilds counts table constructions by "init_mode" and "status".
	TableBuilds metric.Int64Counter
}

// Compose runs well under a millisecond for small tables.
var latencyBuckets = []float64{
	0.0001, 0.00025, 0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.5,
}

func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.ComposeDuration, err = m.Float64Histogram("mtprompt.compose.duration",
		metric.WithDescription("Latency of composing task-conditioned prompts."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.ComposeRequests, err = m.Int64Counter("mtprompt.compose.requests",
		metric.WithDescription("Compose calls by status."),
	); err != nil {
		return nil, err
	}
	if met.ComposedRows, err = m.Int64Counter("mtprompt.compose.rows",
		metric.WithDescription("Virtual-token rows produced by Compose."),
	); err != nil {
		return nil, err
	}
	if met.TableBuilds, err = m.Int64Counter("mtprompt.table.builds",
		metric.WithDescription("Prompt table constructions by init mode and status."),
	); err != nil {
		return nil, err
	}
	return met, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns a process-wide Metrics bound to the global meter
// provider at first use.
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// RecordCompose records one Compose call.
func (m *Metrics) RecordCompose(ctx context.Context, elapsed time.Duration, rows int, status string) {
	attrs := metric.WithAttributes(attribute.String("status", status))
	m.ComposeDuration.Record(ctx, elapsed.Seconds(), attrs)
	m.ComposeRequests.Add(ctx, 1, attrs)
	if rows > 0 {
		m.ComposedRows.Add(ctx, int64(rows))
	}
}

// RecordTableBuild records one table construction.
func (m *Metrics) RecordTableBuild(ctx context.Context, initMode, status string) {
	m.TableBuilds.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("init_mode", initMode),
			attribute.String("status", status),
		),
	)
}
