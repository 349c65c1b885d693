package progress

import (
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestItemBytesAggregatesMonotonically(t *testing.T) {
	r := NewReporter(true, false, nil)
	r.BeginAction("copy", 2)

	r.ItemBytes("a.bin", 100, 200)
	r.ItemBytes("b.bin", 50, 50)
	r.ItemBytes("a.bin", 200, 200)
	// Stale event out of order for a path must not decrease the total.
	r.ItemBytes("a.bin", 150, 200)

	if got := r.BytesWritten(); got != 250 {
		t.Fatalf("BytesWritten() = %d, want 250", got)
	}
	r.FinishAction()
}

func TestItemBytesConcurrent(t *testing.T) {
	r := NewReporter(true, false, nil)
	r.BeginAction("copy", 8)

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			path := string(rune('a'+w)) + ".bin"
			for b := int64(1); b <= 100; b++ {
				r.ItemBytes(path, b, 100)
			}
		}(w)
	}
	wg.Wait()

	if got := r.BytesWritten(); got != 800 {
		t.Fatalf("BytesWritten() = %d, want 800", got)
	}
}

func TestPhaseTimingsOnlyWithDiag(t *testing.T) {
	r := NewReporter(true, false, nil)
	r.BeginPhase("scan")
	r.EndPhase()
	if len(r.PhaseTimings()) != 0 {
		t.Fatal("timings captured without diag")
	}

	r = NewReporter(true, true, nil)
	r.BeginPhase("scan")
	r.EndPhase()
	r.BeginPhase("enrich")
	r.EndPhase()
	timings := r.PhaseTimings()
	if len(timings) != 2 || timings[0].Phase != "scan" || timings[1].Phase != "enrich" {
		t.Fatalf("timings = %+v", timings)
	}
}

func TestMetricsCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.CacheHit("hasheous")
	m.CacheHit("hasheous")
	m.CacheMiss("igdb")
	m.NetLookup("igdb")
	m.AddBytesWritten(1024)

	if got := testutil.ToFloat64(m.cacheOps.WithLabelValues("hasheous", "hit")); got != 2 {
		t.Errorf("cache hits = %v", got)
	}
	if got := testutil.ToFloat64(m.netLookups.WithLabelValues("igdb")); got != 1 {
		t.Errorf("net lookups = %v", got)
	}
	if got := testutil.ToFloat64(m.bytesWritten); got != 1024 {
		t.Errorf("bytes written = %v", got)
	}
}
