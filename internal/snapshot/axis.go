package snapshot

import (
	"context"
	"math"
	"time"

	"tvc-hud/watcher/internal/memport"
)

// DefaultYCandidates lists vertical-position offsets in preference order.
var DefaultYCandidates = []uint32{0xF4, 0xEC, 0xE8, 0xF8, 0xFC}

const (
	DefaultAxisWindow   = 1200 * time.Millisecond
	DefaultAxisInterval = time.Second / 120

	minAxisSamples = 10
)

// AxisPicker chooses which candidate offset holds a fighter's vertical
// position by watching all of them for a short window.
type AxisPicker struct {
	Port       memport.Port
	Candidates []uint32
	Window     time.Duration
	Interval   time.Duration
	// Sleep waits between samples; nil means no wait.
	Sleep func(context.Context, time.Duration) bool
}

func NewAxisPicker(port memport.Port) *AxisPicker {
	return &AxisPicker{
		Port:       port,
		Candidates: DefaultYCandidates,
		Window:     DefaultAxisWindow,
		Interval:   DefaultAxisInterval,
		Sleep:      SleepContext,
	}
}

// SleepContext sleeps for d, returning false if ctx ends first.
func SleepContext(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func (p *AxisPicker) samples() int {
	if p.Interval <= 0 {
		return 0
	}
	return int(p.Window / p.Interval)
}

// Pick samples addr and returns the winning offset. Cancelling ctx cuts the
// window short; too few samples select the first candidate.
func (p *AxisPicker) Pick(ctx context.Context, addr uint32) uint32 {
	if len(p.Candidates) == 0 {
		return 0
	}
	n := p.samples()
	xs := make([]float64, 0, n)
	ys := make([][]float64, len(p.Candidates))
	for i := 0; i < n; i++ {
		if ctx.Err() != nil {
			break
		}
		xs = append(xs, p.sample(addr+OffsetX))
		for j, off := range p.Candidates {
			ys[j] = append(ys[j], p.sample(addr+off))
		}
		if p.Sleep != nil && i < n-1 && !p.Sleep(ctx, p.Interval) {
			break
		}
	}
	if len(xs) < minAxisSamples {
		return p.Candidates[0]
	}

	best := p.Candidates[0]
	bestScore := math.Inf(-1)
	for j, off := range p.Candidates {
		score := AxisScore(ys[j], xs)
		if score > bestScore {
			best, bestScore = off, score
		}
	}
	return best
}

func (p *AxisPicker) sample(addr uint32) float64 {
	v, ok := p.Port.ReadF32(addr)
	if !ok {
		return 0
	}
	return float64(v)
}

// AxisScore rewards a steady series with little drift that is not tightly
// coupled to horizontal motion.
func AxisScore(ys, xs []float64) float64 {
	v := variance(ys)
	s := math.Abs(slope(ys))
	r := math.Abs(correlation(ys, xs))
	return 0.6/(1+v) + 0.3/(1+s) + 0.1/(1+r)
}

func mean(vals []float64) float64 {
	var sum float64
	for _, v := range vals {
		sum += v
	}
	return sum / float64(len(vals))
}

func variance(vals []float64) float64 {
	n := len(vals)
	if n < 2 {
		return 0
	}
	m := mean(vals)
	var acc float64
	for _, v := range vals {
		acc += (v - m) * (v - m)
	}
	return acc / float64(n-1)
}

func slope(vals []float64) float64 {
	if len(vals) < 2 {
		return 0
	}
	return (vals[len(vals)-1] - vals[0]) / float64(len(vals)-1)
}

func correlation(a, b []float64) float64 {
	n := len(a)
	if n < 2 || n != len(b) {
		return 0
	}
	ma, mb := mean(a), mean(b)
	var num, da, db float64
	for i := range a {
		num += (a[i] - ma) * (b[i] - mb)
		da += (a[i] - ma) * (a[i] - ma)
		db += (b[i] - mb) * (b[i] - mb)
	}
	if da == 0 || db == 0 {
		return 0
	}
	return num / (math.Sqrt(da) * math.Sqrt(db))
}
