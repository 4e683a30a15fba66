package observe

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func newTestMetrics(t *testing.T) (*Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	m, err := NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m, reader
}

func collect(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	return rm
}

func findMetric(rm metricdata.ResourceMetrics, name string) *metricdata.Metrics {
	for _, sm := range rm.ScopeMetrics {
		for i := range sm.Metrics {
			if sm.Metrics[i].Name == name {
				return &sm.Metrics[i]
			}
		}
	}
	return nil
}

func TestRecordCompose(t *testing.T) {
	t.Parallel()
	m, reader := newTestMetrics(t)
	ctx := context.Background()
	m.RecordCompose(ctx, 2*time.Millisecond, 8, StatusOK)
	m.RecordCompose(ctx, time.Millisecond, 4, StatusOK)
	m.RecordCompose(ctx, time.Microsecond, 0, StatusInvalid)

	rm := collect(t, reader)

	hist := findMetric(rm, "mtprompt.compose.duration")
	if hist == nil {
		t.Fatal("compose duration not recorded")
	}
	h, ok := hist.Data.(metricdata.Histogram[float64])
	if !ok {
		t.Fatalf("duration data is %T", hist.Data)
	}
	var count uint64
	for _, dp := range h.DataPoints {
		count += dp.Count
	}
	if count != 3 {
		t.Fatalf("histogram count = %d, want 3", count)
	}

	reqs := findMetric(rm, "mtprompt.compose.requests")
	if reqs == nil {
		t.Fatal("compose requests not recorded")
	}
	byStatus := map[string]int64{}
	for _, dp := range reqs.Data.(metricdata.Sum[int64]).DataPoints {
		status, _ := dp.Attributes.Value(attribute.Key("status"))
		byStatus[status.AsString()] = dp.Value
	}
	if byStatus[StatusOK] != 2 || byStatus[StatusInvalid] != 1 {
		t.Fatalf("requests by status = %v", byStatus)
	}

	rows := findMetric(rm, "mtprompt.compose.rows")
	if rows == nil {
		t.Fatal("composed rows not recorded")
	}
	if got := rows.Data.(metricdata.Sum[int64]).DataPoints[0].Value; got != 12 {
		t.Fatalf("rows = %d, want 12", got)
	}
}

func TestRecordTableBuild(t *testing.T) {
	t.Parallel()
	m, reader := newTestMetrics(t)
	m.RecordTableBuild(context.Background(), "EXACT_SOURCE_TASK", StatusOK)

	builds := findMetric(collect(t, reader), "mtprompt.table.builds")
	if builds == nil {
		t.Fatal("table builds not recorded")
	}
	dps := builds.Data.(metricdata.Sum[int64]).DataPoints
	if len(dps) != 1 || dps[0].Value != 1 {
		t.Fatalf("data points = %+v", dps)
	}
	mode, _ := dps[0].Attributes.Value(attribute.Key("init_mode"))
	if mode.AsString() != "EXACT_SOURCE_TASK" {
		t.Fatalf("init_mode = %q", mode.AsString())
	}
}

// InitProvider swaps the OTel globals, so this test is not parallel.
func TestInitProviderServesPrometheus(t *testing.T) {
	ctx := context.Background()
	p, err := InitProvider(ctx, ProviderConfig{ServiceVersion: "test"})
	if err != nil {
		t.Fatalf("InitProvider: %v", err)
	}
	t.Cleanup(func() { _ = p.Shutdown(context.Background()) })

	m, err := NewMetrics(p.MeterProvider)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	m.RecordTableBuild(ctx, "RANDOM", StatusOK)

	srv := httptest.NewServer(p.MetricsHandler())
	t.Cleanup(srv.Close)
	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if !strings.Contains(string(body), "mtprompt") {
		t.Fatalf("metrics output missing mtprompt series:\n%s", body)
	}

	_, span := StartSpan(ctx, "test")
	defer span.End()
	if !span.SpanContext().HasTraceID() {
		t.Fatal("span from the SDK tracer has no trace id")
	}
}
