package goGate

import (
	"sync"
	"testing"
	"time"
)

func TestMetricsDisabledNoIncrement(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: false})
	m.Inc(MetricTokenIssued)

	if got := m.Value(MetricTokenIssued); got != 0 {
		t.Fatalf("expected 0, got %d", got)
	}
	if snap := m.Snapshot(); len(snap.Counters) != 0 || len(snap.Histograms) != 0 {
		t.Fatalf("disabled snapshot must be empty, got %+v", snap)
	}
}

func TestMetricsNilIsNoOp(t *testing.T) {
	var m *Metrics
	m.Inc(MetricTokenIssued)
	m.Add(MetricCleanupRemoved, 3)
	m.Observe(MetricRefreshLatency, time.Millisecond)
	if m.Value(MetricTokenIssued) != 0 || m.Enabled() {
		t.Fatal("nil metrics must read as zero and disabled")
	}
}

func TestMetricsEnabledIncrementAndAdd(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: true})
	m.Inc(MetricSessionCreated)
	m.Inc(MetricSessionCreated)
	m.Add(MetricSessionCreated, 5)

	if got := m.Value(MetricSessionCreated); got != 7 {
		t.Fatalf("expected 7, got %d", got)
	}
}

func TestMetricsConcurrentIncrementSafe(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: true})

	const goroutines = 32
	const perG = 4000

	var wg sync.WaitGroup
	wg.Add(goroutines)
	for i := 0; i < goroutines; i++ {
		go func() {
			defer wg.Done()
			for j := 0; j < perG; j++ {
				m.Inc(MetricRateLimitAllowed)
			}
		}()
	}
	wg.Wait()

	want := uint64(goroutines * perG)
	if got := m.Value(MetricRateLimitAllowed); got != want {
		t.Fatalf("expected %d, got %d", want, got)
	}
}

func TestMetricsHistogramBucketCorrectness(t *testing.T) {
	m := NewMetrics(MetricsConfig{
		Enabled:                 true,
		EnableLatencyHistograms: true,
	})

	observations := []time.Duration{
		5 * time.Millisecond,
		10 * time.Millisecond,
		25 * time.Millisecond,
		50 * time.Millisecond,
		100 * time.Millisecond,
		250 * time.Millisecond,
		500 * time.Millisecond,
		700 * time.Millisecond,
	}

	for _, d := range observations {
		m.Observe(MetricRateLimitLatency, d)
	}

	snap := m.Snapshot()
	buckets := snap.Histograms[MetricRateLimitLatency]
	if len(buckets) != 8 {
		t.Fatalf("expected 8 buckets, got %d", len(buckets))
	}
	for i, v := range buckets {
		if v != 1 {
			t.Fatalf("bucket %d expected 1, got %d", i, v)
		}
	}
}

func TestMetricsSnapshotSeparatesCountersFromHistograms(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: true})
	m.Inc(MetricRateLimitHit)
	m.Observe(MetricRefreshLatency, time.Millisecond)

	snap := m.Snapshot()
	if snap.Counters[MetricRateLimitHit] != 1 {
		t.Fatalf("expected 1 hit, got %d", snap.Counters[MetricRateLimitHit])
	}
	if _, ok := snap.Counters[MetricRefreshLatency]; ok {
		t.Fatal("histogram ids must not appear as counters")
	}
	if len(snap.Histograms) != 0 {
		t.Fatal("histograms must stay empty unless latency is enabled")
	}
}
