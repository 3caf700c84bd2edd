package poll

import (
	"time"

	"tvc-hud/watcher/internal/combo"
	"tvc-hud/watcher/internal/contact"
	"tvc-hud/watcher/internal/event"
	"tvc-hud/watcher/internal/resolve"
	"tvc-hud/watcher/internal/snapshot"
)

// Frame is everything observed on one tick. A frame is built fresh and never
// mutated after it is handed to hooks, so consumers may keep it.
type Frame struct {
	Tick      uint64          `json:"tick"`
	Time      time.Time       `json:"time"`
	Slots     []SlotFrame     `json:"slots"`
	Hits      []HitRecord     `json:"hits,omitempty"`
	Advantage *contact.Result `json:"advantage,omitempty"`
	Combos    []combo.Summary `json:"combos,omitempty"`
	Finished  []combo.Summary `json:"finished,omitempty"`
	Meters    map[int]uint32  `json:"meters,omitempty"`
	Duration  time.Duration   `json:"duration"`
}

// SlotFrame is one slot's view for the tick. Entity is nil when the slot did
// not resolve or its snapshot failed admission.
type SlotFrame struct {
	Label    string           `json:"label"`
	Team     int              `json:"team"`
	Address  uint32           `json:"address,omitempty"`
	Resolved bool             `json:"resolved"`
	Fresh    bool             `json:"fresh"`
	Source   resolve.Source   `json:"source,omitempty"`
	YOffset  uint32           `json:"yOffset,omitempty"`
	Entity   *snapshot.Entity `json:"entity,omitempty"`
}

// HitRecord is a surfaced hit with attribution.
type HitRecord struct {
	Tick          uint64             `json:"tick"`
	Time          time.Time          `json:"time"`
	Victim        string             `json:"victim"`
	VictimAddress uint32             `json:"victimAddress"`
	VictimName    string             `json:"victimName"`
	Hit           event.Hit          `json:"hit"`
	Attacker      *event.Attribution `json:"attacker,omitempty"`
	AttackerName  string             `json:"attackerName,omitempty"`
	TeamGuess     *int               `json:"teamGuess,omitempty"`
}

// Slot returns the frame entry for label.
func (f Frame) Slot(label string) (SlotFrame, bool) {
	for _, s := range f.Slots {
		if s.Label == label {
			return s, true
		}
	}
	return SlotFrame{}, false
}

// LabelFor maps a resolved address back to its slot label.
func (f Frame) LabelFor(addr uint32) string {
	for _, s := range f.Slots {
		if s.Resolved && s.Address == addr {
			return s.Label
		}
	}
	return ""
}
