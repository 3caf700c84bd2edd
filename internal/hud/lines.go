// Package hud renders frames in the terminal. Line formatting is kept apart
// from drawing so it can be checked without a screen.
package hud

import (
	"fmt"
	"strings"

	"tvc-hud/watcher/internal/contact"
	"tvc-hud/watcher/internal/poll"
	"tvc-hud/watcher/internal/snapshot"
)

const DefaultLogLines = 60

// Model is the text state of the HUD. It is owned by the HUD goroutine.
type Model struct {
	slots     []string
	advantage string
	log       []string
	maxLog    int
	tick      uint64
}

func NewModel(logLines int) *Model {
	if logLines <= 0 {
		logLines = DefaultLogLines
	}
	return &Model{maxLog: logLines, advantage: "advantage: --"}
}

// Apply folds one frame into the model. Slot lines are replaced, hit lines
// are appended and the oldest are dropped past the log limit.
func (m *Model) Apply(frame poll.Frame) {
	m.tick = frame.Tick
	m.slots = m.slots[:0]
	for _, s := range frame.Slots {
		m.slots = append(m.slots, SlotLine(s))
	}
	if frame.Advantage != nil {
		m.advantage = AdvantageLine(frame, *frame.Advantage)
	}
	for _, h := range frame.Hits {
		m.log = append(m.log, HitLine(h))
	}
	for _, c := range frame.Finished {
		m.log = append(m.log, ComboLine(c.VictimLabel, c.Hits, c.Total, c.HealthStart, c.HealthEnd, c.Duration.Milliseconds()))
	}
	if over := len(m.log) - m.maxLog; over > 0 {
		m.log = append(m.log[:0], m.log[over:]...)
	}
}

// Header returns the status lines drawn above the hit log.
func (m *Model) Header() []string {
	out := make([]string, 0, len(m.slots)+2)
	out = append(out, fmt.Sprintf("tick %d", m.tick))
	out = append(out, m.slots...)
	out = append(out, m.advantage)
	return out
}

// Log returns the hit log, oldest first.
func (m *Model) Log() []string {
	return append([]string(nil), m.log...)
}

// SlotLine formats one slot: label, name, health, meter, position and the
// two state bytes.
func SlotLine(s poll.SlotFrame) string {
	if !s.Resolved {
		return fmt.Sprintf("%-6s unresolved", s.Label)
	}
	e := s.Entity
	if e == nil {
		return fmt.Sprintf("%-6s @%08X no data", s.Label, s.Address)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%-6s %-12s HP %5d/%-5d", s.Label, e.Name, e.HealthCurrent, e.HealthMax)
	if e.Meter != nil {
		fmt.Fprintf(&b, " M %5d %3d%%", *e.Meter, uint64(*e.Meter)*100/snapshot.FullMeter)
	} else {
		b.WriteString(" M     ?    ")
	}
	fmt.Fprintf(&b, " X %s Y %s", floatField(e.X), floatField(e.Y))
	fmt.Fprintf(&b, " S %s/%s", byteField(e.StateA), byteField(e.StateB))
	if !s.Fresh {
		b.WriteString(" (cached)")
	}
	return b.String()
}

// AdvantageLine names the pair by slot label when the frame still has them.
func AdvantageLine(frame poll.Frame, r contact.Result) string {
	atk := frame.LabelFor(r.Attacker)
	if atk == "" {
		atk = fmt.Sprintf("%08X", r.Attacker)
	}
	vic := frame.LabelFor(r.Victim)
	if vic == "" {
		vic = fmt.Sprintf("%08X", r.Victim)
	}
	return fmt.Sprintf("advantage: %s vs %s %+d (tick %d)", atk, vic, r.Frames, r.FinalizedTick)
}

// HitLine formats one surfaced hit for the rolling log.
func HitLine(h poll.HitRecord) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %-6s %-12s -%d HP %d->%d",
		h.Time.Format("15:04:05.000"), h.Victim, h.VictimName,
		h.Hit.Damage, h.Hit.HealthBefore, h.Hit.HealthAfter)
	if h.Attacker != nil {
		fmt.Fprintf(&b, " by %s", h.Attacker.Label)
		if h.AttackerName != "" {
			fmt.Fprintf(&b, " (%s)", h.AttackerName)
		}
	}
	if h.TeamGuess != nil {
		fmt.Fprintf(&b, " team?P%d", *h.TeamGuess+1)
	}
	return b.String()
}

func ComboLine(victim string, hits int, total, start, end uint32, millis int64) string {
	return fmt.Sprintf("combo on %s: %d hits %d dmg %d->%d in %dms", victim, hits, total, start, end, millis)
}

func floatField(v *float32) string {
	if v == nil {
		return "?"
	}
	return fmt.Sprintf("%.1f", *v)
}

func byteField(v *uint8) string {
	if v == nil {
		return "??"
	}
	return fmt.Sprintf("%02X", *v)
}
