package contact

import (
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
)

const (
	attackerAddr = 0x80A00000
	victimAddr   = 0x80B00000
)

var far = math.Inf(1)

func state(v uint8) *uint8 { return &v }

func obs(addr uint32, s *uint8) Observation {
	return Observation{Address: addr, State: s}
}

type step struct {
	tick     uint64
	atk, vic *uint8
	dist2    float64
}

func run(tr *Tracker, steps []step) []Result {
	var out []Result
	for _, s := range steps {
		if res, ok := tr.Update(obs(attackerAddr, s.atk), obs(victimAddr, s.vic), s.dist2, s.tick); ok {
			out = append(out, res)
		}
	}
	return out
}

// scenarioB arms at 100, frees the attacker at 130 and the victim at 145.
func scenarioB() []step {
	var steps []step
	steps = append(steps, step{tick: 100, atk: state(0), vic: state(8), dist2: far})
	for tick := uint64(101); tick < 130; tick++ {
		steps = append(steps, step{tick: tick, atk: state(32), vic: state(8), dist2: far})
	}
	for tick := uint64(130); tick < 145; tick++ {
		steps = append(steps, step{tick: tick, atk: state(160), vic: state(8), dist2: far})
	}
	steps = append(steps, step{tick: 145, atk: state(160), vic: state(168), dist2: far})
	return steps
}

func TestAttackAgainstIdleVictimNeverArms(t *testing.T) {
	tr := NewTracker(Options{})
	var steps []step
	for tick := uint64(100); tick <= 140; tick++ {
		atk := state(0)
		if tick > 110 {
			atk = state(160)
		}
		steps = append(steps, step{tick: tick, atk: atk, vic: state(160), dist2: 100})
	}
	if results := run(tr, steps); len(results) != 0 {
		t.Fatalf("expected no finalized results, got %+v", results)
	}
	w, ok := tr.Window(attackerAddr, victimAddr)
	if !ok {
		t.Fatalf("expected window to exist")
	}
	if w.Armed || w.Done {
		t.Fatalf("expected unarmed open window, got %+v", w)
	}
}

func TestAdvantageFinalizesPositive(t *testing.T) {
	tr := NewTracker(Options{})
	results := run(tr, scenarioB())
	want := []Result{{Attacker: attackerAddr, Victim: victimAddr, Frames: 15, FinalizedTick: 145}}
	if diff := cmp.Diff(want, results); diff != "" {
		t.Fatalf("unexpected results (-want +got):\n%s", diff)
	}
	w, _ := tr.Window(attackerAddr, victimAddr)
	if w.AttackerFreeTick == nil || *w.AttackerFreeTick != 130 {
		t.Fatalf("expected attacker free at 130, got %v", w.AttackerFreeTick)
	}
	if w.VictimFreeTick == nil || *w.VictimFreeTick != 145 {
		t.Fatalf("expected victim free at 145, got %v", w.VictimFreeTick)
	}
	got, ok := tr.MostRecentFinalized()
	if !ok || got != want[0] {
		t.Fatalf("expected most recent %+v, got %+v ok=%v", want[0], got, ok)
	}
}

func TestAdvantageKeepsNegativeSign(t *testing.T) {
	tr := NewTracker(Options{})
	steps := []step{{tick: 100, atk: state(32), vic: state(8), dist2: far}}
	for tick := uint64(101); tick < 105; tick++ {
		steps = append(steps, step{tick: tick, atk: state(32), vic: state(40), dist2: far})
	}
	for tick := uint64(105); tick < 112; tick++ {
		steps = append(steps, step{tick: tick, atk: state(32), vic: state(168), dist2: far})
	}
	steps = append(steps, step{tick: 112, atk: state(160), vic: state(168), dist2: far})

	results := run(tr, steps)
	if len(results) != 1 || results[0].Frames != -7 {
		t.Fatalf("expected a single -7 result, got %+v", results)
	}
}

func TestFinalizationIsSingleShot(t *testing.T) {
	tr := NewTracker(Options{})
	run(tr, scenarioB())
	before, _ := tr.Window(attackerAddr, victimAddr)

	for tick := uint64(146); tick < 170; tick++ {
		if res, ok := tr.Update(obs(attackerAddr, state(160)), obs(victimAddr, state(160)), far, tick); ok {
			t.Fatalf("unexpected second finalization %+v", res)
		}
	}
	after, _ := tr.Window(attackerAddr, victimAddr)
	if !after.Done || *after.AdvantageFrames != 15 || *after.FinalizedTick != 145 {
		t.Fatalf("expected finalized result to be retained, got %+v", after)
	}
	if diff := cmp.Diff(before.AdvantageFrames, after.AdvantageFrames); diff != "" {
		t.Fatalf("advantage changed after finalization:\n%s", diff)
	}
}

func TestArmingIsMonotonic(t *testing.T) {
	tr := NewTracker(Options{})
	tr.Update(obs(attackerAddr, state(0)), obs(victimAddr, state(8)), far, 10)
	for tick := uint64(11); tick < 30; tick++ {
		tr.Update(obs(attackerAddr, state(99)), obs(victimAddr, state(99)), far, tick)
		w, _ := tr.Window(attackerAddr, victimAddr)
		if !w.Armed {
			t.Fatalf("tick %d: expected window to stay armed", tick)
		}
	}
}

func TestTimeoutAndReopen(t *testing.T) {
	tr := NewTracker(Options{})
	tr.Update(obs(attackerAddr, state(160)), obs(victimAddr, state(160)), 100, 10)

	for tick := uint64(11); tick <= 40; tick++ {
		tr.Update(obs(attackerAddr, state(160)), obs(victimAddr, state(160)), far, tick)
	}
	if w, _ := tr.Window(attackerAddr, victimAddr); !w.Active {
		t.Fatalf("expected window to be active 30 ticks after last touch")
	}

	tr.Update(obs(attackerAddr, state(160)), obs(victimAddr, state(160)), far, 41)
	if w, _ := tr.Window(attackerAddr, victimAddr); w.Active {
		t.Fatalf("expected window to time out 31 ticks after last touch")
	}

	tr.Update(obs(attackerAddr, state(160)), obs(victimAddr, state(160)), 100, 50)
	got, _ := tr.Window(attackerAddr, victimAddr)
	if diff := cmp.Diff(openWindow(50), got); diff != "" {
		t.Fatalf("expected a fresh window (-want +got):\n%s", diff)
	}
}

func TestMissingStateSuppressesArming(t *testing.T) {
	tr := NewTracker(Options{})
	for tick := uint64(1); tick < 20; tick++ {
		tr.Update(obs(attackerAddr, nil), obs(victimAddr, state(8)), far, tick)
	}
	w, _ := tr.Window(attackerAddr, victimAddr)
	if w.Armed || w.AttackerEverBusy {
		t.Fatalf("expected missing attacker state to block arming, got %+v", w)
	}
	if !w.VictimEverBusy {
		t.Fatalf("expected victim to be marked busy")
	}
}

func TestContactResetsWindow(t *testing.T) {
	tr := NewTracker(Options{})
	run(tr, scenarioB())
	tr.Contact(attackerAddr, victimAddr, 200)
	got, _ := tr.Window(attackerAddr, victimAddr)
	if diff := cmp.Diff(openWindow(200), got); diff != "" {
		t.Fatalf("expected contact to reset the window (-want +got):\n%s", diff)
	}
	if _, ok := tr.MostRecentFinalized(); ok {
		t.Fatalf("expected no finalized window after reset")
	}
}

func TestMostRecentFinalizedPrefersFirstPairOnTie(t *testing.T) {
	tr := NewTracker(Options{})
	other := uint32(0x80C00000)
	for _, s := range scenarioB() {
		tr.Update(obs(attackerAddr, s.atk), obs(victimAddr, s.vic), s.dist2, s.tick)
		tr.Update(obs(other, s.atk), obs(victimAddr, s.vic), s.dist2, s.tick)
	}
	got, ok := tr.MostRecentFinalized()
	if !ok || got.Attacker != attackerAddr {
		t.Fatalf("expected first-created pair to win tie, got %+v ok=%v", got, ok)
	}
	if tr.Len() != 2 {
		t.Fatalf("expected 2 pairs, got %d", tr.Len())
	}
}

func TestTrackerIsDeterministic(t *testing.T) {
	first := run(NewTracker(Options{}), scenarioB())
	second := run(NewTracker(Options{}), scenarioB())
	if diff := cmp.Diff(first, second); diff != "" {
		t.Fatalf("fresh trackers disagree (-first +second):\n%s", diff)
	}
}

func TestRecoveryTablesFirstMatch(t *testing.T) {
	codes := DefaultCodes()
	codes.Movement = []uint8{64}

	cases := []struct {
		name  string
		table []Recovery
		value uint8
		tag   string
		ok    bool
	}{
		{name: "attacker special end", table: AttackerRecovery(codes), value: 128, tag: "special_end", ok: true},
		{name: "attacker movement", table: AttackerRecovery(codes), value: 64, tag: "movement", ok: true},
		{name: "attacker engaged", table: AttackerRecovery(codes), value: 168, tag: "engaged", ok: true},
		{name: "attacker idle", table: AttackerRecovery(codes), value: 160, tag: "idle", ok: true},
		{name: "attacker still attacking", table: AttackerRecovery(codes), value: 32},
		{name: "victim engaged", table: VictimRecovery(codes), value: 168, tag: "engaged", ok: true},
		{name: "victim ignores special end", table: VictimRecovery(codes), value: 128},
		{name: "default movement is empty", table: VictimRecovery(DefaultCodes()), value: 64},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tag, ok := FirstMatch(tc.table, tc.value)
			if ok != tc.ok || tag != tc.tag {
				t.Fatalf("expected (%q,%v), got (%q,%v)", tc.tag, tc.ok, tag, ok)
			}
		})
	}
}
