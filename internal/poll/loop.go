// Package poll drives the watcher: one goroutine resolves every slot,
// snapshots the fighters, detects hits and advances the contact windows
// once per tick, then hands an immutable Frame to its hooks.
package poll

import (
	"context"
	"time"

	"tvc-hud/watcher/internal/combo"
	"tvc-hud/watcher/internal/contact"
	"tvc-hud/watcher/internal/event"
	"tvc-hud/watcher/internal/memport"
	"tvc-hud/watcher/internal/resolve"
	"tvc-hud/watcher/internal/snapshot"
	"tvc-hud/watcher/internal/telemetry"
	"tvc-hud/watcher/logging"
	loggingCombat "tvc-hud/watcher/logging/combat"
	loggingLifecycle "tvc-hud/watcher/logging/lifecycle"
	loggingSimulation "tvc-hud/watcher/logging/simulation"
)

// Deps are the collaborators a loop needs.
type Deps struct {
	Port      memport.Port
	Publisher logging.Publisher
	Logger    telemetry.Logger
	Metrics   telemetry.Metrics
	Clock     logging.Clock
}

// Config tunes detection and timing.
type Config struct {
	TickRate      int
	Slots         []resolve.Slot
	Resolver      resolve.Options
	Bounds        resolve.HealthBounds
	MinHitDamage  uint32
	MaxDist2      float64
	MeterDeltaMin int64
	Codes         contact.Codes
	ContactTicks  uint64
	ComboTimeout  time.Duration
	YCandidates   []uint32
	AxisWindow    time.Duration
	AxisInterval  time.Duration
}

// Hooks observe the loop.
type Hooks struct {
	AfterStep func(Frame)
}

// Loop owns every piece of per-session state. It is not safe for concurrent
// use; Run and Step must be called from one goroutine.
type Loop struct {
	cfg       Config
	deps      Deps
	hooks     Hooks
	resolver  *resolve.Resolver
	reader    *snapshot.Reader
	axis      *snapshot.AxisPicker
	detector  *event.Detector
	contacts  *contact.Tracker
	combos    *combo.Tracker
	lastAddr  map[string]uint32
	lost      map[string]bool
	yOffsets  map[uint32]uint32
	meterPrev map[int]uint32
	meterNow  map[int]uint32
	released  []uint32
	tick      uint64
}

func NewLoop(cfg Config, deps Deps, hooks Hooks) *Loop {
	if deps.Publisher == nil {
		deps.Publisher = logging.NopPublisher()
	}
	if deps.Metrics == nil {
		deps.Metrics = telemetry.NopMetrics()
	}
	if deps.Clock == nil {
		deps.Clock = logging.SystemClock{}
	}
	if cfg.TickRate <= 0 {
		cfg.TickRate = 30
	}
	if cfg.MaxDist2 <= 0 {
		cfg.MaxDist2 = contact.DefaultMaxDist2
	}
	resolverOpts := cfg.Resolver
	resolverOpts.Bounds = cfg.Bounds
	resolverOpts.Clock = deps.Clock

	axis := snapshot.NewAxisPicker(deps.Port)
	if len(cfg.YCandidates) > 0 {
		axis.Candidates = append([]uint32(nil), cfg.YCandidates...)
	}
	axis.Window = cfg.AxisWindow
	if cfg.AxisInterval > 0 {
		axis.Interval = cfg.AxisInterval
	}

	return &Loop{
		cfg:      cfg,
		deps:     deps,
		hooks:    hooks,
		resolver: resolve.New(deps.Port, resolverOpts),
		reader:   snapshot.NewReader(deps.Port, cfg.Bounds),
		axis:     axis,
		detector: event.NewDetector(cfg.MinHitDamage),
		contacts: contact.NewTracker(contact.Options{
			Codes:        cfg.Codes,
			MaxDist2:     cfg.MaxDist2,
			TimeoutTicks: cfg.ContactTicks,
		}),
		combos:    combo.NewTracker(cfg.ComboTimeout),
		lastAddr:  make(map[string]uint32),
		lost:      make(map[string]bool),
		yOffsets:  make(map[uint32]uint32),
		meterPrev: make(map[int]uint32),
		meterNow:  make(map[int]uint32),
	}
}

// Contacts exposes the contact tracker for inspection.
func (l *Loop) Contacts() *contact.Tracker {
	return l.contacts
}

// Tick returns the last tick stepped.
func (l *Loop) Tick() uint64 {
	return l.tick
}

// Step runs one tick and returns its frame. AfterStep is not invoked; Run
// does that.
func (l *Loop) Step(ctx context.Context, tick uint64) Frame {
	l.tick = tick
	start := l.deps.Clock.Now()
	frame := Frame{Tick: tick, Time: start, Slots: make([]SlotFrame, 0, len(l.cfg.Slots))}

	for _, slot := range l.cfg.Slots {
		frame.Slots = append(frame.Slots, l.resolveSlot(ctx, slot, tick))
	}
	l.forgetReleased(frame.Slots)

	for i := range frame.Slots {
		sf := &frame.Slots[i]
		if !sf.Resolved {
			continue
		}
		entity, ok := l.reader.Read(sf.Address, sf.YOffset)
		if !ok {
			l.deps.Metrics.Add(telemetry.MetricSnapshotRejects, 1)
			continue
		}
		sf.Entity = entity
	}

	l.updateMeters(frame.Slots)

	for _, done := range l.combos.Expire(start) {
		l.publishCombo(ctx, tick, done)
		frame.Finished = append(frame.Finished, done)
	}

	frame.Hits = l.detectHits(ctx, tick, start, frame.Slots)
	l.updateContacts(ctx, tick, frame.Slots)

	if res, ok := l.contacts.MostRecentFinalized(); ok {
		frame.Advantage = &res
	}
	frame.Combos = l.combos.Active()
	frame.Meters = make(map[int]uint32, len(l.meterNow))
	for team, v := range l.meterNow {
		frame.Meters[team] = v
	}
	frame.Duration = l.deps.Clock.Now().Sub(start)
	l.deps.Metrics.Add(telemetry.MetricTicks, 1)
	return frame
}

func (l *Loop) resolveSlot(ctx context.Context, slot resolve.Slot, tick uint64) SlotFrame {
	res := l.resolver.Resolve(slot)
	sf := SlotFrame{
		Label:    slot.Label,
		Team:     slot.Team,
		Address:  res.Address,
		Resolved: res.OK,
		Fresh:    res.Fresh,
		Source:   res.Source,
	}
	ref := logging.SlotRef(slot.Label)

	if !res.OK {
		l.deps.Metrics.Add(telemetry.MetricResolveMisses, 1)
		if last, ok := l.lastAddr[slot.Label]; ok && !l.lost[slot.Label] {
			l.lost[slot.Label] = true
			loggingLifecycle.SlotLost(ctx, l.deps.Publisher, tick, ref, loggingLifecycle.SlotLostPayload{
				LastAddress: loggingLifecycle.Hex(last),
			}, nil)
		}
		return sf
	}
	if res.Source == resolve.SourceCached {
		l.deps.Metrics.Add(telemetry.MetricResolveFallbacks, 1)
	}

	last, seen := l.lastAddr[slot.Label]
	if !seen || last != res.Address {
		payload := loggingLifecycle.SlotResolvedPayload{Address: loggingLifecycle.Hex(res.Address)}
		if seen {
			payload.Previous = loggingLifecycle.Hex(last)
			l.released = append(l.released, last)
		}
		l.lastAddr[slot.Label] = res.Address
		l.reader.Meters().Drop(res.Address)
		l.yOffsets[res.Address] = l.axis.Pick(ctx, res.Address)
		loggingLifecycle.SlotResolved(ctx, l.deps.Publisher, tick, ref, payload, nil)
		loggingLifecycle.AxisSelected(ctx, l.deps.Publisher, tick, ref, loggingLifecycle.AxisSelectedPayload{
			Address: loggingLifecycle.Hex(res.Address),
			Offset:  loggingLifecycle.Hex(l.yOffsets[res.Address]),
		}, nil)
	}
	l.lost[slot.Label] = false
	sf.YOffset = l.yOffsets[res.Address]
	return sf
}

// updateMeters tracks the team meter carried by each team's leader slot.
// forgetReleased drops hit history for addresses a slot moved away from,
// unless another slot resolved to them this tick. History follows the
// fighter's address, so a tag that swaps two slots keeps both histories.
func (l *Loop) forgetReleased(slots []SlotFrame) {
	for _, addr := range l.released {
		held := false
		for _, sf := range slots {
			if sf.Resolved && sf.Address == addr {
				held = true
				break
			}
		}
		if !held {
			l.detector.Forget(addr)
		}
	}
	l.released = l.released[:0]
}

func (l *Loop) updateMeters(slots []SlotFrame) {
	for team, v := range l.meterNow {
		l.meterPrev[team] = v
	}
	for i, sf := range slots {
		if !l.cfg.Slots[i].Leader || sf.Entity == nil || sf.Entity.Meter == nil {
			continue
		}
		l.meterNow[sf.Team] = *sf.Entity.Meter
	}
}

func (l *Loop) teamGuess() *int {
	delta := func(team int) int64 {
		return int64(l.meterNow[team]) - int64(l.meterPrev[team])
	}
	team, ok := event.GuessTeam(delta(0), delta(1), l.cfg.MeterDeltaMin)
	if !ok {
		return nil
	}
	return &team
}

func (l *Loop) detectHits(ctx context.Context, tick uint64, now time.Time, slots []SlotFrame) []HitRecord {
	var hits []HitRecord
	for i, sf := range slots {
		if sf.Entity == nil {
			continue
		}
		prev := l.detector.Previous(sf.Address)
		hit, ok := l.detector.Observe(sf.Entity)
		if !ok {
			continue
		}
		hit.HealthBefore = event.HealthBefore(prev, sf.Entity, hit.Damage)

		record := HitRecord{
			Tick:          tick,
			Time:          now,
			Victim:        sf.Label,
			VictimAddress: sf.Address,
			VictimName:    sf.Entity.Name,
			Hit:           hit,
			TeamGuess:     l.teamGuess(),
		}

		candidates := make([]event.Candidate, 0, len(slots))
		for j, other := range slots {
			if j == i || other.Entity == nil {
				continue
			}
			candidates = append(candidates, event.Candidate{Label: other.Label, Team: other.Team, Entity: other.Entity})
		}
		victim := event.Candidate{Label: sf.Label, Team: sf.Team, Entity: sf.Entity}
		var attackerRef logging.EntityRef
		var attackerLabel *string
		if attr, ok := event.Attribute(victim, candidates, l.cfg.MaxDist2); ok {
			record.Attacker = &attr
			attackerRef = logging.FighterRef(attr.Label, attr.Address)
			label := attr.Label
			attackerLabel = &label
			for _, other := range slots {
				if other.Label == attr.Label && other.Entity != nil {
					record.AttackerName = other.Entity.Name
				}
			}
			l.contacts.Contact(attr.Address, sf.Address, tick)
		}
		hits = append(hits, record)

		payload := loggingCombat.HitPayload{
			Damage:       hit.Damage,
			HealthBefore: hit.HealthBefore,
			HealthAfter:  hit.HealthAfter,
			Signal:       string(hit.Signal),
			TeamGuess:    record.TeamGuess,
		}
		if record.Attacker != nil {
			d2 := record.Attacker.Dist2
			payload.Dist2 = &d2
		}
		loggingCombat.Hit(ctx, l.deps.Publisher, tick, attackerRef, logging.FighterRef(sf.Label, sf.Address), payload, nil)
		l.deps.Metrics.Add(telemetry.MetricHits, 1)

		l.combos.Add(now, combo.Hit{
			Victim:       sf.Address,
			VictimLabel:  sf.Label,
			VictimName:   sf.Entity.Name,
			Attacker:     attackerLabel,
			TeamGuess:    record.TeamGuess,
			Damage:       hit.Damage,
			HealthBefore: hit.HealthBefore,
			HealthAfter:  hit.HealthAfter,
		})
	}
	return hits
}

// updateContacts advances every ordered pair of opposing fighters.
func (l *Loop) updateContacts(ctx context.Context, tick uint64, slots []SlotFrame) {
	for _, atk := range slots {
		if atk.Entity == nil {
			continue
		}
		for _, vic := range slots {
			if vic.Entity == nil || vic.Team == atk.Team {
				continue
			}
			res, finalized := l.contacts.Update(
				contact.Observation{Address: atk.Address, State: atk.Entity.StateA},
				contact.Observation{Address: vic.Address, State: vic.Entity.StateA},
				snapshot.Dist2(atk.Entity, vic.Entity),
				tick,
			)
			if !finalized {
				continue
			}
			l.deps.Metrics.Add(telemetry.MetricAdvantages, 1)
			loggingCombat.Advantage(ctx, l.deps.Publisher, tick,
				logging.FighterRef(atk.Label, atk.Address),
				logging.FighterRef(vic.Label, vic.Address),
				loggingCombat.AdvantagePayload{Frames: res.Frames, FinalizedTick: res.FinalizedTick},
				nil,
			)
		}
	}
}

func (l *Loop) publishCombo(ctx context.Context, tick uint64, s combo.Summary) {
	l.deps.Metrics.Add(telemetry.MetricCombos, 1)
	loggingCombat.Combo(ctx, l.deps.Publisher, tick, logging.FighterRef(s.VictimLabel, s.Victim), loggingCombat.ComboPayload{
		Hits:           s.Hits,
		Total:          s.Total,
		HealthStart:    s.HealthStart,
		HealthEnd:      s.HealthEnd,
		DurationMillis: s.Duration.Milliseconds(),
		TeamGuess:      s.TeamGuess,
		Attacker:       s.Attacker,
	}, nil)
}

// Run ticks at the configured rate until ctx ends. Cancellation is observed
// only between ticks.
func (l *Loop) Run(ctx context.Context) error {
	interval := time.Second / time.Duration(l.cfg.TickRate)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var tick uint64
	var streak uint64
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
		tick++
		frame := l.Step(ctx, tick)
		l.deps.Metrics.Store(telemetry.MetricTickMillis, uint64(frame.Duration.Milliseconds()))

		if frame.Duration > interval {
			streak++
			l.deps.Metrics.Add(telemetry.MetricTickOverruns, 1)
			loggingSimulation.TickBudgetOverrun(ctx, l.deps.Publisher, tick, loggingSimulation.TickBudgetOverrunPayload{
				DurationMillis: frame.Duration.Milliseconds(),
				BudgetMillis:   interval.Milliseconds(),
				Ratio:          float64(frame.Duration) / float64(interval),
				Streak:         streak,
			}, nil)
		} else {
			streak = 0
		}

		if l.hooks.AfterStep != nil {
			l.hooks.AfterStep(frame)
		}
	}
}
