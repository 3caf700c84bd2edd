package poll

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"tvc-hud/watcher/internal/contact"
	"tvc-hud/watcher/internal/event"
	"tvc-hud/watcher/internal/memport"
	"tvc-hud/watcher/internal/resolve"
	"tvc-hud/watcher/internal/snapshot"
	"tvc-hud/watcher/internal/telemetry"
	"tvc-hud/watcher/logging"
	loggingCombat "tvc-hud/watcher/logging/combat"
	loggingLifecycle "tvc-hud/watcher/logging/lifecycle"
)

const (
	slotP1   = 0x80001000
	slotP2   = 0x80001010
	fighterA = 0x80A00000
	fighterB = 0x80B00000
)

type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type capturePublisher struct {
	mu     sync.Mutex
	events []logging.Event
}

func (p *capturePublisher) Publish(_ context.Context, event logging.Event) {
	p.mu.Lock()
	p.events = append(p.events, event)
	p.mu.Unlock()
}

func (p *capturePublisher) ofType(t logging.EventType) []logging.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []logging.Event
	for _, e := range p.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

type harness struct {
	img     *memport.Image
	clock   *manualClock
	pub     *capturePublisher
	metrics *telemetry.Counters
	loop    *Loop
}

func putFighter(img *memport.Image, base uint32, x float32, hp uint32) {
	img.PutU32(base+resolve.OffsetHealthMax, 42000)
	img.PutU32(base+resolve.OffsetHealthCur, hp)
	img.PutU32(base+resolve.OffsetHealthAux, hp)
	img.PutU32(base+snapshot.OffsetCharacterID, 12)
	img.PutF32(base+snapshot.OffsetX, x)
	img.PutF32(base+0xF4, 0)
	img.PutU8(base+snapshot.OffsetStateA, 160)
	img.PutU32(base+snapshot.OffsetMeterPrimary, 1000)
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	img := memport.NewImage()
	img.PutU32(slotP1, fighterA)
	img.PutU32(slotP2, fighterB)
	putFighter(img, fighterA, 0, 42000)
	putFighter(img, fighterB, 100, 40000)

	h := &harness{
		img:     img,
		clock:   &manualClock{now: time.Unix(1_700_000_000, 0)},
		pub:     &capturePublisher{},
		metrics: telemetry.NewCounters(),
	}
	h.loop = NewLoop(Config{
		TickRate: 30,
		Slots: []resolve.Slot{
			{Label: "P1-C1", Address: slotP1, Team: 0, Leader: true},
			{Label: "P2-C1", Address: slotP2, Team: 1, Leader: true},
		},
		Bounds:        resolve.DefaultHealthBounds(),
		MinHitDamage:  event.DefaultMinHitDamage,
		MaxDist2:      250 * 250,
		MeterDeltaMin: event.DefaultMeterDeltaMin,
		Codes:         contact.DefaultCodes(),
		ContactTicks:  contact.DefaultTimeoutTicks,
		ComboTimeout:  600 * time.Millisecond,
	}, Deps{
		Port:      img.Port(),
		Publisher: h.pub,
		Metrics:   h.metrics,
		Clock:     h.clock,
	}, Hooks{})
	return h
}

func (h *harness) setState(base uint32, v uint8) {
	h.img.PutU8(base+snapshot.OffsetStateA, v)
}

func TestStepResolvesSlots(t *testing.T) {
	h := newHarness(t)
	frame := h.loop.Step(context.Background(), 1)

	if len(frame.Slots) != 2 {
		t.Fatalf("expected 2 slots, got %d", len(frame.Slots))
	}
	p1, _ := frame.Slot("P1-C1")
	if !p1.Resolved || !p1.Fresh || p1.Address != fighterA || p1.YOffset != 0xF4 || p1.Entity == nil {
		t.Fatalf("unexpected P1 slot %+v", p1)
	}
	if len(frame.Hits) != 0 {
		t.Fatalf("expected no hits on the first tick, got %+v", frame.Hits)
	}
	if got := len(h.pub.ofType(loggingLifecycle.EventSlotResolved)); got != 2 {
		t.Fatalf("expected 2 slot resolved events, got %d", got)
	}
	if frame.LabelFor(fighterB) != "P2-C1" {
		t.Fatalf("expected label lookup for fighter B")
	}
	if diff := cmp.Diff(map[int]uint32{0: 1000, 1: 1000}, frame.Meters); diff != "" {
		t.Fatalf("unexpected meters (-want +got):\n%s", diff)
	}
}

func TestStepDetectsAttributedHit(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.loop.Step(ctx, 1)

	h.img.PutU32(fighterB+resolve.OffsetHealthCur, 38800)
	h.img.PutU32(fighterA+snapshot.OffsetMeterPrimary, 1100)
	frame := h.loop.Step(ctx, 2)

	team := 0
	want := []HitRecord{{
		Tick:          2,
		Time:          h.clock.Now(),
		Victim:        "P2-C1",
		VictimAddress: fighterB,
		VictimName:    "Ryu",
		Hit:           event.Hit{Damage: 1200, HealthBefore: 40000, HealthAfter: 38800, Signal: event.SignalHealthDrop},
		Attacker:      &event.Attribution{Label: "P1-C1", Address: fighterA, Dist2: 10000},
		AttackerName:  "Ryu",
		TeamGuess:     &team,
	}}
	if diff := cmp.Diff(want, frame.Hits); diff != "" {
		t.Fatalf("unexpected hits (-want +got):\n%s", diff)
	}

	hits := h.pub.ofType(loggingCombat.EventHit)
	if len(hits) != 1 {
		t.Fatalf("expected one hit event, got %d", len(hits))
	}
	if hits[0].Actor != logging.FighterRef("P1-C1", fighterA) {
		t.Fatalf("expected attacker actor, got %+v", hits[0].Actor)
	}
	if h.metrics.Load(telemetry.MetricHits) != 1 {
		t.Fatalf("expected hit counter to be 1")
	}
	if len(frame.Combos) != 1 || frame.Combos[0].Total != 1200 {
		t.Fatalf("expected an open combo, got %+v", frame.Combos)
	}

	w, ok := h.loop.Contacts().Window(fighterA, fighterB)
	if !ok || !w.Active || w.ContactTick != 2 {
		t.Fatalf("expected hit to open the contact window at tick 2, got %+v ok=%v", w, ok)
	}
}

func TestStepKeepsHistoryAcrossSlotSwap(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.loop.Step(ctx, 1)

	h.img.PutU32(slotP1, fighterB)
	h.img.PutU32(slotP2, fighterA)
	h.img.PutU32(fighterA+resolve.OffsetHealthCur, 37000)
	frame := h.loop.Step(ctx, 2)

	if len(frame.Hits) != 1 {
		t.Fatalf("expected one hit on the swap tick, got %d", len(frame.Hits))
	}
	got := frame.Hits[0]
	if got.Victim != "P2-C1" || got.VictimAddress != fighterA {
		t.Fatalf("unexpected victim %s @%08X", got.Victim, got.VictimAddress)
	}
	if got.Hit.Damage != 5000 || got.Hit.HealthBefore != 42000 || got.Hit.HealthAfter != 37000 {
		t.Fatalf("unexpected hit %+v", got.Hit)
	}
	if h.loop.detector.Previous(fighterB) == nil {
		t.Fatal("history of the fighter moved into P1-C1 was dropped")
	}
}

func TestStepForgetsAbandonedAddress(t *testing.T) {
	const fighterC = 0x80C00000
	h := newHarness(t)
	ctx := context.Background()
	h.loop.Step(ctx, 1)
	if h.loop.detector.Previous(fighterB) == nil {
		t.Fatal("expected history for fighter B after the first tick")
	}

	putFighter(h.img, fighterC, 100, 40000)
	h.img.PutU32(slotP2, fighterC)
	h.loop.Step(ctx, 2)

	if h.loop.detector.Previous(fighterB) != nil {
		t.Fatal("expected history for the abandoned address to be forgotten")
	}
	if h.loop.detector.Previous(fighterC) == nil {
		t.Fatal("expected history for the new address")
	}
}

func TestStepFinalizesAdvantage(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.loop.Step(ctx, 1)

	h.setState(fighterA, 0)
	h.setState(fighterB, 8)
	h.loop.Step(ctx, 2)
	h.setState(fighterA, 32)
	for tick := uint64(3); tick < 10; tick++ {
		h.loop.Step(ctx, tick)
	}
	h.setState(fighterA, 160)
	for tick := uint64(10); tick < 15; tick++ {
		if frame := h.loop.Step(ctx, tick); frame.Advantage != nil {
			t.Fatalf("tick %d: unexpected early advantage %+v", tick, frame.Advantage)
		}
	}
	h.setState(fighterB, 168)
	frame := h.loop.Step(ctx, 15)

	want := &contact.Result{Attacker: fighterA, Victim: fighterB, Frames: 5, FinalizedTick: 15}
	if diff := cmp.Diff(want, frame.Advantage); diff != "" {
		t.Fatalf("unexpected advantage (-want +got):\n%s", diff)
	}
	events := h.pub.ofType(loggingCombat.EventAdvantage)
	if len(events) != 1 {
		t.Fatalf("expected one advantage event, got %d", len(events))
	}
	payload, ok := events[0].Payload.(loggingCombat.AdvantagePayload)
	if !ok || payload.Frames != 5 {
		t.Fatalf("unexpected advantage payload %+v", events[0].Payload)
	}
}

func TestStepExpiresCombos(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.loop.Step(ctx, 1)
	h.img.PutU32(fighterB+resolve.OffsetHealthCur, 39000)
	h.loop.Step(ctx, 2)

	h.clock.Advance(700 * time.Millisecond)
	frame := h.loop.Step(ctx, 3)
	if len(frame.Finished) != 1 || frame.Finished[0].Hits != 1 || frame.Finished[0].Total != 1000 {
		t.Fatalf("expected one finished combo, got %+v", frame.Finished)
	}
	if len(frame.Combos) != 0 {
		t.Fatalf("expected no active combos, got %+v", frame.Combos)
	}
	if got := len(h.pub.ofType(loggingCombat.EventCombo)); got != 1 {
		t.Fatalf("expected one combo event, got %d", got)
	}
}

func TestStepReportsLostSlotOnce(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.loop.Step(ctx, 1)

	h.img.PutU32(slotP2, 0)
	frame := h.loop.Step(ctx, 2)
	p2, _ := frame.Slot("P2-C1")
	if !p2.Resolved || p2.Fresh || p2.Source != resolve.SourceCached {
		t.Fatalf("expected cached resolution within TTL, got %+v", p2)
	}

	h.clock.Advance(2 * time.Second)
	frame = h.loop.Step(ctx, 3)
	p2, _ = frame.Slot("P2-C1")
	if p2.Resolved || p2.Entity != nil {
		t.Fatalf("expected slot to be absent after TTL, got %+v", p2)
	}
	h.loop.Step(ctx, 4)
	if got := len(h.pub.ofType(loggingLifecycle.EventSlotLost)); got != 1 {
		t.Fatalf("expected a single slot lost event, got %d", got)
	}
	if h.metrics.Load(telemetry.MetricResolveFallbacks) != 1 {
		t.Fatalf("expected one fallback, got %d", h.metrics.Load(telemetry.MetricResolveFallbacks))
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	h := newHarness(t)
	h.loop.cfg.TickRate = 200
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	frames := make(chan Frame, 1)
	h.loop.hooks.AfterStep = func(f Frame) {
		select {
		case frames <- f:
		default:
		}
	}

	done := make(chan error, 1)
	go func() { done <- h.loop.Run(ctx) }()

	select {
	case f := <-frames:
		if f.Tick == 0 {
			t.Fatalf("expected ticks to start at 1")
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for a frame")
	}
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("run did not stop after cancel")
	}
}
