// Package resolve turns slot pointers into fighter base addresses. Slot
// contents are unstable: they may be null, point at a wrapper one hop away
// from the fighter, or briefly hold garbage during scene changes. The
// resolver validates every candidate against the fighter's health block and
// bridges short gaps with a last-known-good address.
package resolve

import (
	"time"

	"tvc-hud/watcher/internal/memport"
	"tvc-hud/watcher/logging"
)

const (
	OffsetHealthMax = 0x24
	OffsetHealthCur = 0x28
	OffsetHealthAux = 0x2C
)

// DefaultBadPointers are slot values known to never address a fighter.
var DefaultBadPointers = []uint32{0x00000000, 0x80520000}

// DefaultIndirectProbes are the offsets inside a wrapper object that may
// hold the real fighter pointer.
var DefaultIndirectProbes = []uint32{0x10, 0x18, 0x1C, 0x20}

const DefaultTTL = time.Second

// Slot is a fixed guest address holding a pointer to one fighter.
type Slot struct {
	Label   string `json:"label"`
	Address uint32 `json:"address"`
	Team    int    `json:"team"`
	Leader  bool   `json:"leader,omitempty"`
}

// HealthBounds limits plausible maximum health values.
type HealthBounds struct {
	Min uint32 `json:"min"`
	Max uint32 `json:"max"`
}

func DefaultHealthBounds() HealthBounds {
	return HealthBounds{Min: 10000, Max: 60000}
}

// Admit reports whether a health triplet looks like a live fighter.
func (b HealthBounds) Admit(max, cur uint32, aux *uint32) bool {
	if max < b.Min || max > b.Max {
		return false
	}
	if cur > max {
		return false
	}
	if aux != nil && *aux > max {
		return false
	}
	return true
}

// Valid reads the health block at base and checks it against the bounds.
// The auxiliary value is optional; the other two must be readable.
func (b HealthBounds) Valid(port memport.Port, base uint32) bool {
	max, ok := port.ReadU32(base + OffsetHealthMax)
	if !ok {
		return false
	}
	cur, ok := port.ReadU32(base + OffsetHealthCur)
	if !ok {
		return false
	}
	var aux *uint32
	if v, ok := port.ReadU32(base + OffsetHealthAux); ok {
		aux = &v
	}
	return b.Admit(max, cur, aux)
}

// Source names how an address was obtained.
type Source string

const (
	SourceNone     Source = ""
	SourceDirect   Source = "direct"
	SourceIndirect Source = "indirect"
	SourceCached   Source = "cached"
)

// Result is the outcome of one resolution. Fresh is true only when the
// address was validated against live memory during this call.
type Result struct {
	Address uint32 `json:"address"`
	OK      bool   `json:"ok"`
	Fresh   bool   `json:"fresh"`
	Source  Source `json:"source,omitempty"`
}

// Handle is the last validated address for a slot.
type Handle struct {
	Slot        Slot
	Address     uint32
	ValidatedAt time.Time
	Expiry      time.Time
}

type Options struct {
	Bounds         HealthBounds
	BadPointers    []uint32
	IndirectProbes []uint32
	TTL            time.Duration
	Clock          logging.Clock
}

// Resolver is owned by the poll goroutine and is not safe for concurrent use.
type Resolver struct {
	port    memport.Port
	bounds  HealthBounds
	bad     map[uint32]struct{}
	probes  []uint32
	ttl     time.Duration
	clock   logging.Clock
	handles map[uint32]*Handle
}

func New(port memport.Port, opts Options) *Resolver {
	if opts.Bounds == (HealthBounds{}) {
		opts.Bounds = DefaultHealthBounds()
	}
	if opts.BadPointers == nil {
		opts.BadPointers = DefaultBadPointers
	}
	if opts.IndirectProbes == nil {
		opts.IndirectProbes = DefaultIndirectProbes
	}
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	if opts.Clock == nil {
		opts.Clock = logging.SystemClock{}
	}
	bad := make(map[uint32]struct{}, len(opts.BadPointers))
	for _, p := range opts.BadPointers {
		bad[p] = struct{}{}
	}
	return &Resolver{
		port:    port,
		bounds:  opts.Bounds,
		bad:     bad,
		probes:  append([]uint32(nil), opts.IndirectProbes...),
		ttl:     opts.TTL,
		clock:   opts.Clock,
		handles: make(map[uint32]*Handle),
	}
}

func (r *Resolver) usable(ptr uint32) bool {
	if _, bad := r.bad[ptr]; bad {
		return false
	}
	return r.port.InRange(ptr)
}

// Resolve never fails loudly; an exhausted resolution returns OK=false.
func (r *Resolver) Resolve(slot Slot) Result {
	now := r.clock.Now()
	raw, ok := r.port.ReadU32(slot.Address)
	if !ok || !r.usable(raw) {
		return r.cached(slot, now)
	}

	if r.bounds.Valid(r.port, raw) {
		r.accept(slot, raw, now)
		return Result{Address: raw, OK: true, Fresh: true, Source: SourceDirect}
	}

	for _, off := range r.probes {
		candidate, ok := r.port.ReadU32(raw + off)
		if !ok || !r.usable(candidate) {
			continue
		}
		if r.bounds.Valid(r.port, candidate) {
			r.accept(slot, candidate, now)
			return Result{Address: candidate, OK: true, Fresh: true, Source: SourceIndirect}
		}
	}

	return r.cached(slot, now)
}

func (r *Resolver) accept(slot Slot, addr uint32, now time.Time) {
	r.handles[slot.Address] = &Handle{
		Slot:        slot,
		Address:     addr,
		ValidatedAt: now,
		Expiry:      now.Add(r.ttl),
	}
}

func (r *Resolver) cached(slot Slot, now time.Time) Result {
	h, ok := r.handles[slot.Address]
	if !ok || !now.Before(h.Expiry) {
		return Result{}
	}
	return Result{Address: h.Address, OK: true, Source: SourceCached}
}

// Handle returns a copy of the cached handle for slot.
func (r *Resolver) Handle(slot Slot) (Handle, bool) {
	h, ok := r.handles[slot.Address]
	if !ok {
		return Handle{}, false
	}
	return *h, true
}
