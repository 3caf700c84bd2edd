package memport

import (
	"encoding/binary"
	"math"
)

// MaxFloatMagnitude bounds float reads; larger or non-finite values are
// treated as misses because they are almost always misread integers.
const MaxFloatMagnitude = 1e8

// Bus implements Port over a Backend, rejecting reads outside its regions.
type Bus struct {
	backend Backend
	regions []Region
}

// NewBus wraps backend. A nil or empty regions slice selects DefaultRegions.
func NewBus(backend Backend, regions []Region) *Bus {
	if len(regions) == 0 {
		regions = DefaultRegions()
	}
	copied := make([]Region, len(regions))
	copy(copied, regions)
	return &Bus{backend: backend, regions: copied}
}

// Regions returns a copy of the readable ranges.
func (b *Bus) Regions() []Region {
	out := make([]Region, len(b.regions))
	copy(out, b.regions)
	return out
}

func (b *Bus) InRange(addr uint32) bool {
	return b.spanInRange(addr, 1)
}

func (b *Bus) spanInRange(addr uint32, size uint32) bool {
	for _, r := range b.regions {
		if r.Contains(addr, size) {
			return true
		}
	}
	return false
}

func (b *Bus) read(addr uint32, buf []byte) bool {
	if b == nil || b.backend == nil {
		return false
	}
	if !b.spanInRange(addr, uint32(len(buf))) {
		return false
	}
	return b.backend.ReadMemory(addr, buf)
}

func (b *Bus) ReadU8(addr uint32) (uint8, bool) {
	var buf [1]byte
	if !b.read(addr, buf[:]) {
		return 0, false
	}
	return buf[0], true
}

func (b *Bus) ReadU32(addr uint32) (uint32, bool) {
	var buf [4]byte
	if !b.read(addr, buf[:]) {
		return 0, false
	}
	return binary.BigEndian.Uint32(buf[:]), true
}

func (b *Bus) ReadF32(addr uint32) (float32, bool) {
	raw, ok := b.ReadU32(addr)
	if !ok {
		return 0, false
	}
	f := math.Float32frombits(raw)
	if math.IsNaN(float64(f)) || math.IsInf(float64(f), 0) || math.Abs(float64(f)) > MaxFloatMagnitude {
		return 0, false
	}
	return f, true
}

// Reachable reports whether at least one word in any region can be read.
// It is the one-time precondition check performed before polling starts.
func Reachable(p Port, probe uint32) bool {
	if p == nil || !p.InRange(probe) {
		return false
	}
	_, ok := p.ReadU32(probe)
	return ok
}
