// Package combo groups consecutive hits against one victim. A combo ends
// when the victim goes ComboTimeout of wall-clock time without a new hit.
package combo

import (
	"time"
)

const DefaultTimeout = 600 * time.Millisecond

// Summary describes a combo in progress or a finished one.
type Summary struct {
	Victim      uint32        `json:"victim"`
	VictimLabel string        `json:"victimLabel"`
	VictimName  string        `json:"victimName,omitempty"`
	Attacker    *string       `json:"attacker,omitempty"`
	TeamGuess   *int          `json:"teamGuess,omitempty"`
	Hits        int           `json:"hits"`
	Total       uint32        `json:"total"`
	HealthStart uint32        `json:"healthStart"`
	HealthEnd   uint32        `json:"healthEnd"`
	Start       time.Time     `json:"start"`
	Last        time.Time     `json:"last"`
	Duration    time.Duration `json:"duration"`
}

// Hit is what the tracker needs to know about one landed hit.
type Hit struct {
	Victim       uint32
	VictimLabel  string
	VictimName   string
	Attacker     *string
	TeamGuess    *int
	Damage       uint32
	HealthBefore uint32
	HealthAfter  uint32
}

// Tracker is owned by the poll goroutine.
type Tracker struct {
	timeout time.Duration
	active  map[uint32]*Summary
	order   []uint32
}

func NewTracker(timeout time.Duration) *Tracker {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Tracker{timeout: timeout, active: make(map[uint32]*Summary)}
}

// Add folds a hit into the victim's combo, starting one if needed. The
// attacker and team guess are those of the opening hit.
func (t *Tracker) Add(now time.Time, hit Hit) Summary {
	s, ok := t.active[hit.Victim]
	if !ok {
		s = &Summary{
			Victim:      hit.Victim,
			VictimLabel: hit.VictimLabel,
			VictimName:  hit.VictimName,
			Attacker:    hit.Attacker,
			TeamGuess:   hit.TeamGuess,
			HealthStart: hit.HealthBefore,
			Start:       now,
		}
		t.active[hit.Victim] = s
		t.order = append(t.order, hit.Victim)
	}
	s.Hits++
	s.Total += hit.Damage
	s.HealthEnd = hit.HealthAfter
	s.Last = now
	s.Duration = s.Last.Sub(s.Start)
	return *s
}

// Expire closes every combo idle for longer than the timeout and returns
// their summaries in the order the combos began.
func (t *Tracker) Expire(now time.Time) []Summary {
	var done []Summary
	kept := t.order[:0]
	for _, victim := range t.order {
		s := t.active[victim]
		if now.Sub(s.Last) > t.timeout {
			done = append(done, *s)
			delete(t.active, victim)
			continue
		}
		kept = append(kept, victim)
	}
	t.order = kept
	return done
}

// Active lists combos still running, oldest first.
func (t *Tracker) Active() []Summary {
	out := make([]Summary, 0, len(t.order))
	for _, victim := range t.order {
		out = append(out, *t.active[victim])
	}
	return out
}
