package telemetry

import (
	"testing"
	"time"
)

func TestMetricsSummaryEmpty(t *testing.T) {
	m := NewMetrics(Thresholds{})
	if got := m.Summary("nothing"); got.Count != 0 {
		t.Fatalf("expected zero-value summary, got %+v", got)
	}
}

func TestMetricsSummaryPercentiles(t *testing.T) {
	m := NewMetrics(Thresholds{})
	for i := 1; i <= 100; i++ {
		m.Record("op", time.Duration(i)*time.Millisecond)
	}
	summary := m.Summary("op")
	if summary.Count != 100 {
		t.Fatalf("expected 100 samples, got %d", summary.Count)
	}
	if summary.P50 <= 0 || summary.P95 < summary.P50 || summary.P99 < summary.P95 {
		t.Fatalf("expected increasing percentiles, got %+v", summary)
	}
}

func TestMetricsRingCapacityEviction(t *testing.T) {
	m := NewMetrics(Thresholds{})
	for i := 0; i < ringCapacity+50; i++ {
		m.Record("op", time.Duration(i)*time.Millisecond)
	}
	if got := m.Summary("op").Count; got != ringCapacity {
		t.Fatalf("expected ring to cap at %d samples, got %d", ringCapacity, got)
	}
}

func TestMetricsTimeHelper(t *testing.T) {
	m := NewMetrics(Thresholds{})
	done := m.Time("timed-op")
	done()
	if got := m.Summary("timed-op").Count; got != 1 {
		t.Fatalf("expected 1 sample recorded via Time helper, got %d", got)
	}
}
