package otel

import (
	"context"
	"sync"
	"testing"

	"github.com/zengzjie/food-delivery-sass/auth"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

type fakeSource struct {
	mu       sync.RWMutex
	snapshot auth.MetricsSnapshot
	dropped  uint64
}

func (f *fakeSource) MetricsSnapshot() auth.MetricsSnapshot {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := auth.MetricsSnapshot{
		Counters:   make(map[auth.MetricID]uint64, len(f.snapshot.Counters)),
		Histograms: make(map[auth.MetricID][]uint64, len(f.snapshot.Histograms)),
	}
	for k, v := range f.snapshot.Counters {
		out.Counters[k] = v
	}
	for k, buckets := range f.snapshot.Histograms {
		next := make([]uint64, len(buckets))
		copy(next, buckets)
		out.Histograms[k] = next
	}
	return out
}

func (f *fakeSource) AuditDropped() uint64 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.dropped
}

func TestExporterRegistersAndCollects(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	meter := provider.Meter("fd-auth-test")

	src := &fakeSource{
		snapshot: auth.MetricsSnapshot{
			Counters: map[auth.MetricID]uint64{
				auth.MetricLoginSuccess:   3,
				auth.MetricGateSuperseded: 2,
				auth.MetricLogout:         5,
			},
			Histograms: map[auth.MetricID][]uint64{
				auth.MetricAuthorizeLatency: {1, 1, 1, 1, 1, 1, 1, 1},
			},
		},
		dropped: 1,
	}

	exp, err := NewOTelExporterFromSource(meter, src)
	if err != nil {
		t.Fatalf("NewOTelExporterFromSource failed: %v", err)
	}
	defer func() {
		if err := exp.Close(); err != nil {
			t.Fatalf("Close failed: %v", err)
		}
	}()

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect failed: %v", err)
	}
	if len(rm.ScopeMetrics) == 0 {
		t.Fatal("expected collected metrics, got none")
	}
	if got := sumValue(t, rm, "fd_auth_login_total", attribute.String("result", "success")); got != 3 {
		t.Fatalf("login success = %d, want 3", got)
	}
	if got := sumValue(t, rm, "fd_auth_gate_decisions_total", attribute.String("outcome", "superseded")); got != 2 {
		t.Fatalf("gate superseded = %d, want 2", got)
	}
	if got := sumValue(t, rm, "fd_auth_logout_total"); got != 5 {
		t.Fatalf("logout = %d, want 5", got)
	}
	if got := sumValue(t, rm, "fd_auth_audit_dropped_total"); got != 1 {
		t.Fatalf("audit dropped = %d, want 1", got)
	}
	if got := gaugeValue(t, rm, "fd_auth_authorize_latency_seconds_bucket", attribute.String("le", "+Inf")); got != 8 {
		t.Fatalf("+Inf bucket = %d, want 8", got)
	}
}

// sumValue returns the data point of counter name whose attribute set is
// exactly attrs.
func sumValue(t *testing.T, rm metricdata.ResourceMetrics, name string, attrs ...attribute.KeyValue) int64 {
	t.Helper()
	want := attribute.NewSet(attrs...)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			if !ok {
				t.Fatalf("%s: unexpected data %T", name, m.Data)
			}
			for _, dp := range sum.DataPoints {
				if dp.Attributes.Equals(&want) {
					return dp.Value
				}
			}
		}
	}
	t.Fatalf("metric %s %v not collected", name, attrs)
	return 0
}

func gaugeValue(t *testing.T, rm metricdata.ResourceMetrics, name string, attrs ...attribute.KeyValue) int64 {
	t.Helper()
	want := attribute.NewSet(attrs...)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			g, ok := m.Data.(metricdata.Gauge[int64])
			if !ok {
				t.Fatalf("%s: unexpected data %T", name, m.Data)
			}
			for _, dp := range g.DataPoints {
				if dp.Attributes.Equals(&want) {
					return dp.Value
				}
			}
		}
	}
	t.Fatalf("gauge %s %v not collected", name, attrs)
	return 0
}

func TestExporterRejectsNilSource(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	meter := provider.Meter("fd-auth-test")

	if _, err := NewOTelExporterFromSource(meter, nil); err == nil {
		t.Fatal("expected error for nil source")
	}
}

func TestExporterConcurrentCollectNoPanic(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	meter := provider.Meter("fd-auth-test")

	src := &fakeSource{
		snapshot: auth.MetricsSnapshot{
			Counters: map[auth.MetricID]uint64{
				auth.MetricLoginSuccess: 1,
			},
			Histograms: map[auth.MetricID][]uint64{
				auth.MetricAuthorizeLatency: {1, 0, 0, 0, 0, 0, 0, 0},
			},
		},
	}

	exp, err := NewOTelExporterFromSource(meter, src)
	if err != nil {
		t.Fatalf("NewOTelExporterFromSource failed: %v", err)
	}
	defer func() {
		if err := exp.Close(); err != nil {
			t.Fatalf("Close failed: %v", err)
		}
	}()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(v uint64) {
			defer wg.Done()
			src.mu.Lock()
			src.snapshot.Counters[auth.MetricLoginSuccess] = v
			src.mu.Unlock()

			var rm metricdata.ResourceMetrics
			_ = reader.Collect(context.Background(), &rm)
		}(uint64(i + 1))
	}
	wg.Wait()
}
