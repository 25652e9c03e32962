package prometheus

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	goGuard "github.com/MrEthical07/goGuard"
)

type fakeSource struct {
	snapshot goGuard.MetricsSnapshot
	dropped  uint64
}

func (f fakeSource) MetricsSnapshot() goGuard.MetricsSnapshot { return f.snapshot }
func (f fakeSource) AuditDropped() uint64                     { return f.dropped }

type fakeSessionSource struct {
	fakeSource
	active int
}

func (f fakeSessionSource) ActiveSessions() int { return f.active }

func emptySnapshot() goGuard.MetricsSnapshot {
	return goGuard.MetricsSnapshot{
		Counters:   map[goGuard.MetricID]uint64{},
		Histograms: map[goGuard.MetricID][]uint64{},
	}
}

func TestRenderEmptyWhenMetricsDisabled(t *testing.T) {
	exp := NewExporterFromSource(fakeSource{snapshot: emptySnapshot()})

	if got := exp.Render(); got != "" {
		t.Fatalf("expected empty output for disabled metrics, got:\n%s", got)
	}
}

func TestRenderIncludesCounterAndHistogram(t *testing.T) {
	exp := NewExporterFromSource(fakeSource{
		snapshot: goGuard.MetricsSnapshot{
			Counters: map[goGuard.MetricID]uint64{
				goGuard.MetricLoginSuccess: 7,
				goGuard.MetricOTPExhausted: 1,
			},
			Histograms: map[goGuard.MetricID][]uint64{
				goGuard.MetricLoginLatency: {1, 2, 3, 4, 5, 6, 7, 8},
			},
		},
		dropped: 2,
	})

	out := exp.Render()
	for _, want := range []string{
		"goguard_login_success_total 7",
		"goguard_otp_exhausted_total 1",
		"goguard_registration_success_total 0",
		"goguard_login_latency_seconds_bucket{le=\"0.005\"} 1",
		"goguard_login_latency_seconds_bucket{le=\"+Inf\"} 36",
		"goguard_login_latency_seconds_count 36",
		"goguard_audit_dropped_total 2",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in output, got:\n%s", want, out)
		}
	}
	if strings.Contains(out, "goguard_sessions_active") {
		t.Fatal("gauge rendered for a source without session counts")
	}
}

func TestRenderSkipsHistogramWhenDisabled(t *testing.T) {
	snap := emptySnapshot()
	snap.Counters[goGuard.MetricLoginSuccess] = 1
	out := NewExporterFromSource(fakeSource{snapshot: snap}).Render()
	if strings.Contains(out, "goguard_login_latency_seconds") {
		t.Fatalf("unexpected histogram output:\n%s", out)
	}
}

func TestRenderSessionGauge(t *testing.T) {
	snap := emptySnapshot()
	snap.Counters[goGuard.MetricSessionOpened] = 4
	exp := NewExporterFromSource(fakeSessionSource{fakeSource: fakeSource{snapshot: snap}, active: 3})

	out := exp.Render()
	if !strings.Contains(out, "# TYPE goguard_sessions_active gauge\ngoguard_sessions_active 3\n") {
		t.Fatalf("expected sessions gauge, got:\n%s", out)
	}
}

func TestHandlerWritesPrometheusContentType(t *testing.T) {
	snap := emptySnapshot()
	snap.Counters[goGuard.MetricLoginSuccess] = 1
	exp := NewExporterFromSource(fakeSource{snapshot: snap})

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	exp.Handler().ServeHTTP(rec, req)

	if got := rec.Header().Get("Content-Type"); !strings.Contains(got, "text/plain") {
		t.Fatalf("expected prometheus content type, got %q", got)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("closed") }

func TestWriteToReportsWriterError(t *testing.T) {
	snap := emptySnapshot()
	snap.Counters[goGuard.MetricLoginSuccess] = 1
	exp := NewExporterFromSource(fakeSource{snapshot: snap})

	if _, err := exp.WriteTo(failingWriter{}); err == nil {
		t.Fatal("expected the writer error to surface")
	}

	var b strings.Builder
	n, err := exp.WriteTo(&b)
	if err != nil || n != int64(b.Len()) {
		t.Fatalf("WriteTo = (%d, %v), buffer holds %d bytes", n, err, b.Len())
	}
}

func BenchmarkRender(b *testing.B) {
	exp := NewExporterFromSource(fakeSource{
		snapshot: goGuard.MetricsSnapshot{
			Counters: map[goGuard.MetricID]uint64{
				goGuard.MetricLoginSuccess:         1000,
				goGuard.MetricLoginFailure:         40,
				goGuard.MetricOTPIssued:            800,
				goGuard.MetricOTPRejected:          10,
				goGuard.MetricSessionOpened:        800,
				goGuard.MetricSessionClosed:        20,
				goGuard.MetricPasswordResetFailure: 3,
			},
			Histograms: map[goGuard.MetricID][]uint64{
				goGuard.MetricLoginLatency: {10, 20, 30, 40, 50, 60, 70, 80},
			},
		},
	})

	b.ReportAllocs()
	for b.Loop() {
		_, _ = exp.WriteTo(io.Discard)
	}
}
