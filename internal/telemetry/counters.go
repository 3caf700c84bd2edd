package telemetry

import (
	"sort"
	"sync"
	"sync/atomic"
)

const (
	MetricTicks            = "ticks"
	MetricHits             = "hits"
	MetricAdvantages       = "advantages"
	MetricCombos           = "combos"
	MetricResolveMisses    = "resolve_misses"
	MetricResolveFallbacks = "resolve_fallbacks"
	MetricSnapshotRejects  = "snapshot_rejects"
	MetricTickMillis       = "tick_millis"
	MetricTickOverruns     = "tick_overruns"
	MetricFramesBroadcast  = "frames_broadcast"
	MetricBytesBroadcast   = "bytes_broadcast"
	MetricSubscribers      = "subscribers"
)

// Counters is the in-process Metrics implementation. Keys are created on
// first use; Snapshot returns a stable copy for diagnostics.
type Counters struct {
	mu     sync.RWMutex
	values map[string]*atomic.Uint64
}

func NewCounters() *Counters {
	return &Counters{values: make(map[string]*atomic.Uint64)}
}

func (c *Counters) counter(key string) *atomic.Uint64 {
	c.mu.RLock()
	v, ok := c.values[key]
	c.mu.RUnlock()
	if ok {
		return v
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if v, ok = c.values[key]; ok {
		return v
	}
	v = new(atomic.Uint64)
	c.values[key] = v
	return v
}

func (c *Counters) Add(key string, delta uint64) {
	if c == nil || key == "" {
		return
	}
	c.counter(key).Add(delta)
}

func (c *Counters) Store(key string, value uint64) {
	if c == nil || key == "" {
		return
	}
	c.counter(key).Store(value)
}

// Load returns the current value for key, zero if never set.
func (c *Counters) Load(key string) uint64 {
	if c == nil {
		return 0
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	if v, ok := c.values[key]; ok {
		return v.Load()
	}
	return 0
}

// Snapshot copies every counter.
func (c *Counters) Snapshot() map[string]uint64 {
	if c == nil {
		return nil
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]uint64, len(c.values))
	for k, v := range c.values {
		out[k] = v.Load()
	}
	return out
}

// Keys lists the known counter names in order.
func (c *Counters) Keys() []string {
	snapshot := c.Snapshot()
	keys := make([]string, 0, len(snapshot))
	for k := range snapshot {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
