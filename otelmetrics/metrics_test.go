package otelmetrics

import (
	"context"
	"testing"
	"time"

	"go.opentelemetry.io/otel"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/zoobzio/ambient"
)

// setupProvider creates a Provider backed by a manual reader.
func setupProvider(t *testing.T) (*Provider, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() {
		if err := mp.Shutdown(context.Background()); err != nil {
			t.Logf("Error shutting down meter provider: %v", err)
		}
	})

	p, err := New(mp.Meter("test"))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return p, reader
}

// collect gathers all metrics from the reader.
func collect(t *testing.T, reader *sdkmetric.ManualReader) *metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect failed: %v", err)
	}
	return &rm
}

// findMetric finds a metric by name in the collected data.
func findMetric(rm *metricdata.ResourceMetrics, name string) *metricdata.Metrics {
	for _, sm := range rm.ScopeMetrics {
		for i := range sm.Metrics {
			if sm.Metrics[i].Name == name {
				return &sm.Metrics[i]
			}
		}
	}
	return nil
}

// sum returns the total of an int64 counter.
func sum(t *testing.T, rm *metricdata.ResourceMetrics, name string) int64 {
	t.Helper()
	m := findMetric(rm, name)
	if m == nil {
		t.Fatalf("metric %s not found", name)
	}
	data, ok := m.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("metric %s is %T, not an int64 sum", name, m.Data)
	}
	var total int64
	for _, dp := range data.DataPoints {
		total += dp.Value
	}
	return total
}

func TestProvider_RecordsCounters(t *testing.T) {
	p, reader := setupProvider(t)

	p.OnUpdate("theme")
	p.OnUpdate("theme")
	p.OnSubscribe("theme")
	p.OnDelivery("theme", 3, 2*time.Millisecond)
	p.OnCallbackPanic("theme")
	p.OnPrune("theme", 10)
	p.OnDepthExceeded("theme")

	rm := collect(t, reader)

	tests := map[string]int64{
		MetricUpdates:       2,
		MetricSubscriptions: 1,
		MetricDeliveries:    3,
		MetricPanics:        1,
		MetricPruned:        10,
		MetricDepthExceeded: 1,
	}
	for name, want := range tests {
		if got := sum(t, rm, name); got != want {
			t.Errorf("%s = %d, want %d", name, got, want)
		}
	}

	m := findMetric(rm, MetricDeliveryTime)
	if m == nil {
		t.Fatal("delivery latency histogram not found")
	}
	hist, ok := m.Data.(metricdata.Histogram[float64])
	if !ok {
		t.Fatalf("expected float64 histogram, got %T", m.Data)
	}
	if len(hist.DataPoints) != 1 || hist.DataPoints[0].Count != 1 {
		t.Errorf("expected one latency observation, got %+v", hist.DataPoints)
	}
}

func TestProvider_WiredIntoContext(t *testing.T) {
	p, reader := setupProvider(t)
	ctx := context.Background()

	c := ambient.New(ambient.WithMetrics(p))
	k := ambient.NewKey("theme", "light")
	ambient.ObserveFunc(ctx, c, k, func(_ context.Context, _, _ string) {})
	ambient.Set(ctx, c, k, "dark")

	rm := collect(t, reader)
	if got := sum(t, rm, MetricUpdates); got != 1 {
		t.Errorf("expected 1 update, got %d", got)
	}
	if got := sum(t, rm, MetricDeliveries); got != 1 {
		t.Errorf("expected 1 delivery, got %d", got)
	}
}

func TestNewDefault_UsesGlobalProvider(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	original := otel.GetMeterProvider()
	otel.SetMeterProvider(mp)
	t.Cleanup(func() {
		otel.SetMeterProvider(original)
		_ = mp.Shutdown(context.Background())
	})

	provider := NewDefault()
	if _, isNoop := provider.(ambient.NoOpMetricsProvider); isNoop {
		t.Fatal("expected real provider, got no-op")
	}

	provider.OnUpdate("k")
	if got := sum(t, collect(t, reader), MetricUpdates); got != 1 {
		t.Errorf("expected 1 update, got %d", got)
	}
}
