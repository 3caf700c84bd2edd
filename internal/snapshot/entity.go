// Package snapshot extracts validated per-fighter state from guest memory.
package snapshot

import (
	"math"

	"tvc-hud/watcher/internal/memport"
	"tvc-hud/watcher/internal/resolve"
)

const (
	OffsetCharacterID = 0x14
	OffsetLastDamage  = 0x40
	OffsetX           = 0xF0
	OffsetStateA      = 0x062
	OffsetStateB      = 0x063

	// MaxPlausibleValue bounds damage and meter reads.
	MaxPlausibleValue = 200000
)

// Entity is one fighter as observed on one tick. Nil pointers mark fields
// that could not be read.
type Entity struct {
	Address       uint32   `json:"address"`
	CharacterID   *uint32  `json:"characterId,omitempty"`
	Name          string   `json:"name"`
	HealthCurrent uint32   `json:"healthCurrent"`
	HealthMax     uint32   `json:"healthMax"`
	HealthAux     *uint32  `json:"healthAux,omitempty"`
	Meter         *uint32  `json:"meter,omitempty"`
	X             *float32 `json:"x,omitempty"`
	Y             *float32 `json:"y,omitempty"`
	StateA        *uint8   `json:"stateA,omitempty"`
	StateB        *uint8   `json:"stateB,omitempty"`
	LastDamage    *uint32  `json:"lastDamage,omitempty"`
}

// Reader builds entities from a port. It owns the meter cache and must be
// used from a single goroutine.
type Reader struct {
	port   memport.Port
	bounds resolve.HealthBounds
	meters *MeterCache
}

func NewReader(port memport.Port, bounds resolve.HealthBounds) *Reader {
	if bounds == (resolve.HealthBounds{}) {
		bounds = resolve.DefaultHealthBounds()
	}
	return &Reader{port: port, bounds: bounds, meters: NewMeterCache(port)}
}

// Meters exposes the meter cache so callers can drop entries when a slot
// moves to a new address.
func (r *Reader) Meters() *MeterCache {
	return r.meters
}

// Read returns nil, false when the health block fails admission.
func (r *Reader) Read(addr, yOffset uint32) (*Entity, bool) {
	max, ok := r.port.ReadU32(addr + resolve.OffsetHealthMax)
	if !ok {
		return nil, false
	}
	cur, ok := r.port.ReadU32(addr + resolve.OffsetHealthCur)
	if !ok {
		return nil, false
	}
	aux := r.u32(addr + resolve.OffsetHealthAux)
	if !r.bounds.Admit(max, cur, aux) {
		return nil, false
	}

	e := &Entity{
		Address:       addr,
		HealthMax:     max,
		HealthCurrent: cur,
		HealthAux:     aux,
		CharacterID:   r.u32(addr + OffsetCharacterID),
		X:             r.f32(addr + OffsetX),
		StateA:        r.u8(addr + OffsetStateA),
		StateB:        r.u8(addr + OffsetStateB),
	}
	e.Name = CharacterName(e.CharacterID)
	if yOffset != 0 {
		e.Y = r.f32(addr + yOffset)
	}
	if last := r.u32(addr + OffsetLastDamage); last != nil && *last <= MaxPlausibleValue {
		e.LastDamage = last
	}
	if v := r.u32(r.meters.Address(addr)); v != nil && *v <= MaxPlausibleValue {
		e.Meter = v
	}
	return e, true
}

func (r *Reader) u32(addr uint32) *uint32 {
	v, ok := r.port.ReadU32(addr)
	if !ok {
		return nil
	}
	return &v
}

func (r *Reader) f32(addr uint32) *float32 {
	v, ok := r.port.ReadF32(addr)
	if !ok {
		return nil
	}
	return &v
}

func (r *Reader) u8(addr uint32) *uint8 {
	v, ok := r.port.ReadU8(addr)
	if !ok {
		return nil
	}
	return &v
}

// Dist2 is the squared planar distance between two entities, +Inf when
// either position is incomplete.
func Dist2(a, b *Entity) float64 {
	if a == nil || b == nil || a.X == nil || a.Y == nil || b.X == nil || b.Y == nil {
		return math.Inf(1)
	}
	dx := float64(*a.X) - float64(*b.X)
	dy := float64(*a.Y) - float64(*b.Y)
	return dx*dx + dy*dy
}
