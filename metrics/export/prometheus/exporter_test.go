package prometheus

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/zengzjie/food-delivery-sass/auth"
)

type fakeSource struct {
	snapshot auth.MetricsSnapshot
	dropped  uint64
}

func (f fakeSource) MetricsSnapshot() auth.MetricsSnapshot { return f.snapshot }
func (f fakeSource) AuditDropped() uint64                  { return f.dropped }

func TestRenderEmptyWhenMetricsDisabled(t *testing.T) {
	exp := NewPrometheusExporterFromSource(fakeSource{
		snapshot: auth.MetricsSnapshot{
			Counters:   map[auth.MetricID]uint64{},
			Histograms: map[auth.MetricID][]uint64{},
		},
		dropped: 0,
	})

	if got := exp.Render(); got != "" {
		t.Fatalf("expected empty output for disabled metrics, got:\n%s", got)
	}
}

func TestRenderDeterministicIncludesCounterAndHistogram(t *testing.T) {
	exp := NewPrometheusExporterFromSource(fakeSource{
		snapshot: auth.MetricsSnapshot{
			Counters: map[auth.MetricID]uint64{
				auth.MetricLoginSuccess: 7,
			},
			Histograms: map[auth.MetricID][]uint64{
				auth.MetricAuthorizeLatency: {1, 2, 3, 4, 5, 6, 7, 8},
			},
			HistogramSums: map[auth.MetricID]time.Duration{
				auth.MetricAuthorizeLatency: 1500 * time.Millisecond,
			},
		},
		dropped: 2,
	})

	out := exp.Render()
	if !strings.Contains(out, `fd_auth_login_total{result="success"} 7`) {
		t.Fatalf("expected login_success counter in output, got:\n%s", out)
	}
	if !strings.Contains(out, "fd_auth_authorize_latency_seconds_bucket{le=\"0.005\"} 1") {
		t.Fatalf("expected first histogram bucket in output, got:\n%s", out)
	}
	if !strings.Contains(out, "fd_auth_authorize_latency_seconds_bucket{le=\"+Inf\"} 36") {
		t.Fatalf("expected +Inf cumulative bucket in output, got:\n%s", out)
	}
	if !strings.Contains(out, "fd_auth_authorize_latency_seconds_sum 1.5") {
		t.Fatalf("expected histogram sum in seconds, got:\n%s", out)
	}
	if !strings.Contains(out, "fd_auth_audit_dropped_total 2") {
		t.Fatalf("expected audit dropped counter in output, got:\n%s", out)
	}
}

func TestHandlerNoContentWhenDisabled(t *testing.T) {
	exp := NewPrometheusExporterFromSource(fakeSource{})
	rec := httptest.NewRecorder()
	exp.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusNoContent || rec.Body.Len() != 0 {
		t.Fatalf("expected empty 204, got %d %q", rec.Code, rec.Body.String())
	}
}

func TestHandlerWritesPrometheusContentType(t *testing.T) {
	exp := NewPrometheusExporterFromSource(fakeSource{
		snapshot: auth.MetricsSnapshot{
			Counters:   map[auth.MetricID]uint64{auth.MetricLoginSuccess: 1},
			Histograms: map[auth.MetricID][]uint64{},
		},
	})

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	exp.Handler().ServeHTTP(rec, req)

	if got := rec.Header().Get("Content-Type"); got != ContentType {
		t.Fatalf("expected prometheus content type, got %q", got)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestRenderGateOutcomes(t *testing.T) {
	exp := NewPrometheusExporterFromSource(fakeSource{
		snapshot: auth.MetricsSnapshot{
			Counters: map[auth.MetricID]uint64{
				auth.MetricGateSuperseded:      4,
				auth.MetricGateExpired:         2,
				auth.MetricRefreshRotationLost: 1,
			},
			Histograms: map[auth.MetricID][]uint64{},
		},
	})

	out := exp.Render()
	for _, want := range []string{
		`fd_auth_gate_decisions_total{outcome="superseded"} 4`,
		`fd_auth_gate_decisions_total{outcome="expired"} 2`,
		`fd_auth_gate_decisions_total{outcome="forbidden"} 0`,
		`fd_auth_refresh_total{result="rotation_lost"} 1`,
		"fd_auth_logout_total 0",
		"fd_auth_authorize_latency_seconds_count 0",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in output, got:\n%s", want, out)
		}
	}
	if n := strings.Count(out, "# TYPE fd_auth_gate_decisions_total counter"); n != 1 {
		t.Fatalf("gate family header written %d times", n)
	}
}

func BenchmarkRender(b *testing.B) {
	exp := NewPrometheusExporterFromSource(fakeSource{
		snapshot: auth.MetricsSnapshot{
			Counters: map[auth.MetricID]uint64{
				auth.MetricLoginSuccess:         1000,
				auth.MetricLoginFailure:         40,
				auth.MetricRefreshSuccess:       800,
				auth.MetricRefreshFailure:       10,
				auth.MetricSessionCreated:       800,
				auth.MetricGateSuperseded:       20,
				auth.MetricPasswordResetFailure: 3,
			},
			Histograms: map[auth.MetricID][]uint64{
				auth.MetricAuthorizeLatency: {10, 20, 30, 40, 50, 60, 70, 80},
			},
		},
		dropped: 0,
	})

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = exp.Render()
	}
}
