// Package event turns successive fighter snapshots into hit events.
package event

import (
	"math"

	"tvc-hud/watcher/internal/snapshot"
)

const DefaultMinHitDamage = 10

// Signal names the evidence a hit was derived from.
type Signal string

const (
	SignalDamageField Signal = "damage_field"
	SignalHealthDrop  Signal = "health_drop"
)

// Hit is a detected damage event against one fighter.
type Hit struct {
	Damage       uint32 `json:"damage"`
	HealthBefore uint32 `json:"healthBefore"`
	HealthAfter  uint32 `json:"healthAfter"`
	Signal       Signal `json:"signal"`
}

// Detector compares snapshots of the same address across ticks. Observe
// keeps the previous snapshot per address; Detect is the pure comparison.
type Detector struct {
	MinHitDamage uint32
	previous     map[uint32]*snapshot.Entity
}

func NewDetector(minHitDamage uint32) *Detector {
	return &Detector{MinHitDamage: minHitDamage, previous: make(map[uint32]*snapshot.Entity)}
}

// Detect reports a hit between prev and cur. The damage field is trusted
// first; the health drop is only consulted when that field is silent.
func (d *Detector) Detect(prev, cur *snapshot.Entity) (Hit, bool) {
	if prev == nil || cur == nil {
		return Hit{}, false
	}
	hit := Hit{HealthBefore: prev.HealthCurrent, HealthAfter: cur.HealthCurrent}
	switch {
	case cur.LastDamage != nil && prev.LastDamage != nil && *cur.LastDamage > 0 && *cur.LastDamage != *prev.LastDamage:
		hit.Damage = *cur.LastDamage
		hit.Signal = SignalDamageField
	case cur.HealthCurrent < prev.HealthCurrent:
		hit.Damage = prev.HealthCurrent - cur.HealthCurrent
		hit.Signal = SignalHealthDrop
	default:
		return Hit{}, false
	}
	if hit.Damage < d.MinHitDamage {
		return Hit{}, false
	}
	return hit, true
}

// Observe runs Detect against the snapshot last seen at cur.Address and
// records cur for the next call. The first snapshot at an address never
// produces a hit.
func (d *Detector) Observe(cur *snapshot.Entity) (Hit, bool) {
	if cur == nil {
		return Hit{}, false
	}
	prev := d.previous[cur.Address]
	d.previous[cur.Address] = cur
	if prev == nil {
		return Hit{}, false
	}
	return d.Detect(prev, cur)
}

// Previous returns the last snapshot recorded for addr.
func (d *Detector) Previous(addr uint32) *snapshot.Entity {
	return d.previous[addr]
}

// Forget drops the snapshot history for addr.
func (d *Detector) Forget(addr uint32) {
	delete(d.previous, addr)
}

// HealthBefore falls back to reconstructing the pre-hit health from the
// current value when no earlier reading exists.
func HealthBefore(prev *snapshot.Entity, cur *snapshot.Entity, damage uint32) uint32 {
	if prev != nil {
		return prev.HealthCurrent
	}
	if cur == nil {
		return damage
	}
	return cur.HealthCurrent + damage
}

// Candidate is a fighter that may have landed a hit.
type Candidate struct {
	Label  string
	Team   int
	Entity *snapshot.Entity
}

// Attribution names the attacker chosen for a hit.
type Attribution struct {
	Label   string  `json:"label"`
	Address uint32  `json:"address"`
	Dist2   float64 `json:"dist2"`
}

// Attribute picks the closest opponent of victim. Opponents farther than
// maxDist2 are discarded. The first candidate wins ties.
func Attribute(victim Candidate, candidates []Candidate, maxDist2 float64) (Attribution, bool) {
	best := math.Inf(1)
	var chosen *Candidate
	for i := range candidates {
		c := &candidates[i]
		if c.Team == victim.Team || c.Entity == nil {
			continue
		}
		d := snapshot.Dist2(victim.Entity, c.Entity)
		if d < best {
			best = d
			chosen = c
		}
	}
	if chosen == nil || best > maxDist2 {
		return Attribution{}, false
	}
	return Attribution{Label: chosen.Label, Address: chosen.Entity.Address, Dist2: best}, true
}

const DefaultMeterDeltaMin = 5

// GuessTeam compares per-team meter gains over one tick. The team whose
// meter grew more is guessed as the attacker when the gap is at least min.
func GuessTeam(delta0, delta1, min int64) (int, bool) {
	gap := delta0 - delta1
	if gap < 0 {
		gap = -gap
	}
	if gap < min {
		return 0, false
	}
	if delta0 > delta1 {
		return 0, true
	}
	return 1, true
}
