package prometheus

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	goGate "github.com/MrEthical07/goGate"
)

type fakeSource struct {
	snapshot goGate.MetricsSnapshot
	dropped  uint64
}

func (f fakeSource) MetricsSnapshot() goGate.MetricsSnapshot { return f.snapshot }

func (f fakeSource) AuditDropped() uint64 { return f.dropped }

func gather(t *testing.T, c *Collector) map[string]*dto.MetricFamily {
	t.Helper()
	reg := prometheus.NewRegistry()
	if err := reg.Register(c); err != nil {
		t.Fatalf("register: %v", err)
	}
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	out := make(map[string]*dto.MetricFamily, len(families))
	for _, f := range families {
		out[f.GetName()] = f
	}
	return out
}

func TestCollectEmptyWhenMetricsDisabled(t *testing.T) {
	c := NewCollectorFromSource(fakeSource{snapshot: goGate.MetricsSnapshot{
		Counters:   map[goGate.MetricID]uint64{},
		Histograms: map[goGate.MetricID][]uint64{},
	}})

	if got := gather(t, c); len(got) != 0 {
		t.Fatalf("expected no families for disabled metrics, got %d", len(got))
	}
}

func TestCollectCountersAndHistogram(t *testing.T) {
	c := NewCollectorFromSource(fakeSource{snapshot: goGate.MetricsSnapshot{
		Counters: map[goGate.MetricID]uint64{
			goGate.MetricTokenIssued:  7,
			goGate.MetricRateLimitHit: 2,
		},
		Histograms: map[goGate.MetricID][]uint64{
			goGate.MetricRateLimitLatency: {1, 2, 3, 4, 5, 6, 7, 8},
		},
	}, dropped: 5})

	families := gather(t, c)

	issued := families["gogate_token_issued_total"]
	if issued == nil || issued.GetType() != dto.MetricType_COUNTER {
		t.Fatalf("missing token issued counter: %v", issued)
	}
	if v := issued.GetMetric()[0].GetCounter().GetValue(); v != 7 {
		t.Fatalf("expected 7 issued, got %v", v)
	}
	if v := families["gogate_rate_limit_hit_total"].GetMetric()[0].GetCounter().GetValue(); v != 2 {
		t.Fatalf("expected 2 hits, got %v", v)
	}

	hist := families["gogate_rate_limit_latency_seconds"]
	if hist == nil {
		t.Fatal("missing rate limit latency histogram")
	}
	h := hist.GetMetric()[0].GetHistogram()
	if h.GetSampleCount() != 36 {
		t.Fatalf("expected 36 samples, got %d", h.GetSampleCount())
	}
	first := h.GetBucket()[0]
	if first.GetUpperBound() != 0.005 || first.GetCumulativeCount() != 1 {
		t.Fatalf("unexpected first bucket %v", first)
	}
	last := h.GetBucket()[len(h.GetBucket())-1]
	if last.GetUpperBound() != 0.5 || last.GetCumulativeCount() != 28 {
		t.Fatalf("unexpected last finite bucket %v", last)
	}

	if v := families["gogate_audit_dropped_total"].GetMetric()[0].GetCounter().GetValue(); v != 5 {
		t.Fatalf("expected 5 dropped audit events, got %v", v)
	}

	if _, ok := families["gogate_refresh_latency_seconds"]; ok {
		t.Fatal("histograms absent from the snapshot must not be emitted")
	}
}

func TestHandlerServesExposition(t *testing.T) {
	c := NewCollectorFromSource(fakeSource{snapshot: goGate.MetricsSnapshot{
		Counters:   map[goGate.MetricID]uint64{goGate.MetricSessionCreated: 1},
		Histograms: map[goGate.MetricID][]uint64{},
	}})

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if got := rec.Header().Get("Content-Type"); !strings.Contains(got, "text/plain") {
		t.Fatalf("expected text exposition, got %q", got)
	}
	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), "gogate_session_created_total 1") {
		t.Fatalf("expected session counter in body, got:\n%s", body)
	}
}

func BenchmarkCollect(b *testing.B) {
	c := NewCollectorFromSource(fakeSource{snapshot: goGate.MetricsSnapshot{
		Counters: map[goGate.MetricID]uint64{
			goGate.MetricTokenIssued:      1000,
			goGate.MetricTokenRefreshed:   800,
			goGate.MetricSessionCreated:   800,
			goGate.MetricRateLimitAllowed: 5000,
		},
		Histograms: map[goGate.MetricID][]uint64{
			goGate.MetricRateLimitLatency: {10, 20, 30, 40, 50, 60, 70, 80},
		},
	}})
	reg := prometheus.NewRegistry()
	reg.MustRegister(c)

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = reg.Gather()
	}
}
