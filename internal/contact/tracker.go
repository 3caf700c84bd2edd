// Package contact measures frame advantage. Each ordered attacker/victim
// pair owns a contact window that opens when the two interact, arms once
// real pressure is seen, records the first tick each side can act again
// and finalizes the difference.
package contact

import "math"

const (
	DefaultTimeoutTicks = 30
	// DefaultMaxDist2 is the squared distance inside which two fighters
	// count as interacting.
	DefaultMaxDist2 = 250.0 * 250.0
)

// Observation is one side of a pair on one tick. A nil State means the
// state byte could not be read.
type Observation struct {
	Address uint32
	State   *uint8
}

// Window is the per-pair record. Use openWindow to build one; it is the only
// way fields are reset.
type Window struct {
	Active           bool    `json:"active"`
	ContactTick      uint64  `json:"contactTick"`
	LastTouchTick    uint64  `json:"lastTouchTick"`
	Armed            bool    `json:"armed"`
	AttackerEverBusy bool    `json:"attackerEverBusy"`
	VictimEverBusy   bool    `json:"victimEverBusy"`
	AttackerFreeTick *uint64 `json:"attackerFreeTick,omitempty"`
	VictimFreeTick   *uint64 `json:"victimFreeTick,omitempty"`
	Done             bool    `json:"done"`
	AdvantageFrames  *int64  `json:"advantageFrames,omitempty"`
	FinalizedTick    *uint64 `json:"finalizedTick,omitempty"`
}

func openWindow(tick uint64) Window {
	return Window{Active: true, ContactTick: tick, LastTouchTick: tick}
}

// Result is a finalized advantage for one pair.
type Result struct {
	Attacker      uint32 `json:"attacker"`
	Victim        uint32 `json:"victim"`
	Frames        int64  `json:"frames"`
	FinalizedTick uint64 `json:"finalizedTick"`
}

type Options struct {
	Codes        Codes
	MaxDist2     float64
	TimeoutTicks uint64
}

type pairKey struct {
	attacker uint32
	victim   uint32
}

// Tracker holds every pair's window. It is owned by one goroutine.
type Tracker struct {
	codes            Codes
	attackerRecovery []Recovery
	victimRecovery   []Recovery
	maxDist2         float64
	timeout          uint64
	windows          map[pairKey]*Window
	order            []pairKey
}

func NewTracker(opts Options) *Tracker {
	if opts.Codes.Attacking == nil && opts.Codes.Locked == nil {
		opts.Codes = DefaultCodes()
	}
	if opts.MaxDist2 == 0 {
		opts.MaxDist2 = DefaultMaxDist2
	}
	if opts.TimeoutTicks == 0 {
		opts.TimeoutTicks = DefaultTimeoutTicks
	}
	return &Tracker{
		codes:            opts.Codes,
		attackerRecovery: AttackerRecovery(opts.Codes),
		victimRecovery:   VictimRecovery(opts.Codes),
		maxDist2:         opts.MaxDist2,
		timeout:          opts.TimeoutTicks,
		windows:          make(map[pairKey]*Window),
	}
}

func (t *Tracker) window(attacker, victim uint32) *Window {
	key := pairKey{attacker: attacker, victim: victim}
	w, ok := t.windows[key]
	if !ok {
		w = new(Window)
		t.windows[key] = w
		t.order = append(t.order, key)
	}
	return w
}

func (t *Tracker) busy(state *uint8) bool {
	return state != nil && *state != t.codes.Idle
}

// Update advances the pair's window by one tick. It returns the result when
// this call finalized the window.
func (t *Tracker) Update(atk, vic Observation, dist2 float64, tick uint64) (Result, bool) {
	w := t.window(atk.Address, vic.Address)

	near := !math.IsInf(dist2, 0) && !math.IsNaN(dist2) && dist2 <= t.maxDist2
	interacting := near || t.busy(atk.State) || t.busy(vic.State)

	if interacting {
		if !w.Active || w.Done {
			*w = openWindow(tick)
		} else {
			w.LastTouchTick = tick
		}
	}

	var finalized bool
	if w.Active && !w.Done {
		if t.busy(atk.State) {
			w.AttackerEverBusy = true
		}
		if t.busy(vic.State) {
			w.VictimEverBusy = true
		}
		if !w.Armed && atk.State != nil && vic.State != nil &&
			t.codes.IsAttacking(*atk.State) && t.codes.IsLocked(*vic.State) {
			w.Armed = true
		}
		if w.Armed {
			stampFree(&w.AttackerFreeTick, w.AttackerEverBusy, atk.State, t.attackerRecovery, tick)
			stampFree(&w.VictimFreeTick, w.VictimEverBusy, vic.State, t.victimRecovery, tick)
		}
		if w.AttackerFreeTick != nil && w.VictimFreeTick != nil {
			frames := int64(*w.VictimFreeTick) - int64(*w.AttackerFreeTick)
			at := tick
			w.AdvantageFrames = &frames
			w.FinalizedTick = &at
			w.Done = true
			finalized = true
		}
	}

	if w.Active && tick > w.LastTouchTick && tick-w.LastTouchTick > t.timeout {
		w.Active = false
	}

	if !finalized {
		return Result{}, false
	}
	return Result{Attacker: atk.Address, Victim: vic.Address, Frames: *w.AdvantageFrames, FinalizedTick: tick}, true
}

func stampFree(slot **uint64, everBusy bool, state *uint8, table []Recovery, tick uint64) {
	if *slot != nil || !everBusy || state == nil {
		return
	}
	if _, ok := FirstMatch(table, *state); ok {
		at := tick
		*slot = &at
	}
}

// Contact hard-resets the pair's window on a confirmed hit.
func (t *Tracker) Contact(attacker, victim uint32, tick uint64) {
	*t.window(attacker, victim) = openWindow(tick)
}

// MostRecentFinalized returns the done window with the greatest finalize
// tick. Earlier-created pairs win ties.
func (t *Tracker) MostRecentFinalized() (Result, bool) {
	var best Result
	found := false
	for _, key := range t.order {
		w := t.windows[key]
		if !w.Done || w.AdvantageFrames == nil || w.FinalizedTick == nil {
			continue
		}
		if !found || *w.FinalizedTick > best.FinalizedTick {
			best = Result{Attacker: key.attacker, Victim: key.victim, Frames: *w.AdvantageFrames, FinalizedTick: *w.FinalizedTick}
			found = true
		}
	}
	return best, found
}

// Window returns a copy of the pair's window.
func (t *Tracker) Window(attacker, victim uint32) (Window, bool) {
	w, ok := t.windows[pairKey{attacker: attacker, victim: victim}]
	if !ok {
		return Window{}, false
	}
	return *w, true
}

// Len reports how many pairs have been seen.
func (t *Tracker) Len() int {
	return len(t.order)
}
