package telemetry

import (
	"bytes"
	"log"
	"strings"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestCountersAddStoreSnapshot(t *testing.T) {
	c := NewCounters()
	c.Add(MetricHits, 2)
	c.Add(MetricHits, 3)
	c.Store(MetricTickMillis, 7)
	c.Store(MetricTickMillis, 4)
	c.Add("", 1)

	want := map[string]uint64{MetricHits: 5, MetricTickMillis: 4}
	if diff := cmp.Diff(want, c.Snapshot()); diff != "" {
		t.Fatalf("snapshot mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{MetricHits, MetricTickMillis}, c.Keys()); diff != "" {
		t.Fatalf("keys mismatch (-want +got):\n%s", diff)
	}
	if got := c.Load(MetricCombos); got != 0 {
		t.Fatalf("unset counter = %d", got)
	}
}

func TestCountersConcurrentAdd(t *testing.T) {
	c := NewCounters()
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 1000; j++ {
				c.Add(MetricTicks, 1)
			}
		}()
	}
	wg.Wait()
	if got := c.Load(MetricTicks); got != 16000 {
		t.Fatalf("expected 16000 ticks, got %d", got)
	}
}

func TestNilCountersAreInert(t *testing.T) {
	var c *Counters
	c.Add(MetricHits, 1)
	c.Store(MetricHits, 1)
	if c.Load(MetricHits) != 0 || c.Snapshot() != nil {
		t.Fatal("nil counters should report nothing")
	}
}

func TestWrapLoggerExposesStandardLogger(t *testing.T) {
	var buf bytes.Buffer
	std := log.New(&buf, "", 0)
	logger := WrapLogger(std)
	logger.Printf("hooked pid %d", 42)
	if !strings.Contains(buf.String(), "hooked pid 42") {
		t.Fatalf("unexpected output %q", buf.String())
	}
	provider, ok := logger.(interface{ StandardLogger() *log.Logger })
	if !ok || provider.StandardLogger() != std {
		t.Fatal("wrapped logger does not expose the standard logger")
	}
}
