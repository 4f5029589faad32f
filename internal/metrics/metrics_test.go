package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecorderCounts(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := New(reg)

	r.SymbolCollected("success")
	r.SymbolCollected("success")
	r.SymbolCollected("failed")
	r.Breakthrough("1w", "single")
	r.CacheSize(10, 2)

	if got := testutil.ToFloat64(r.symbolsCollected.WithLabelValues("success")); got != 2 {
		t.Fatalf("expected 2 successes, got %v", got)
	}
	if got := testutil.ToFloat64(r.breakthroughs.WithLabelValues("1w", "single")); got != 1 {
		t.Fatalf("expected 1 breakthrough, got %v", got)
	}
	if got := testutil.ToFloat64(r.cacheRecords); got != 10 {
		t.Fatalf("expected 10 records, got %v", got)
	}
}

func TestNilRecorderIsNoop(t *testing.T) {
	var r *Recorder
	r.SymbolCollected("success")
	r.CandlePage("1w")
	r.TickDuration(0.1)
	r.SnapshotError()
}
