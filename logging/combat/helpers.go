package combat

import (
	"context"

	"tvc-hud/watcher/logging"
)

const (
	// EventHit is emitted when a fighter takes a confirmed hit.
	EventHit logging.EventType = "combat.hit"
	// EventAdvantage is emitted when a contact window finalizes a frame advantage.
	EventAdvantage logging.EventType = "combat.advantage"
	// EventCombo is emitted when a combo window closes.
	EventCombo logging.EventType = "combat.combo"
)

// HitPayload captures the damage applied to a single victim.
type HitPayload struct {
	Damage       uint32   `json:"damage"`
	HealthBefore uint32   `json:"healthBefore"`
	HealthAfter  uint32   `json:"healthAfter"`
	Signal       string   `json:"signal"`
	Dist2        *float64 `json:"dist2,omitempty"`
	TeamGuess    *int     `json:"teamGuess,omitempty"`
}

// AdvantagePayload captures a finalized frame advantage for an attacker/victim pair.
type AdvantagePayload struct {
	Frames        int64  `json:"frames"`
	FinalizedTick uint64 `json:"finalizedTick"`
}

// ComboPayload summarizes a finished combo against one victim.
type ComboPayload struct {
	Hits           int     `json:"hits"`
	Total          uint32  `json:"total"`
	HealthStart    uint32  `json:"healthStart"`
	HealthEnd      uint32  `json:"healthEnd"`
	DurationMillis int64   `json:"durationMillis"`
	TeamGuess      *int    `json:"teamGuess,omitempty"`
	Attacker       *string `json:"attacker,omitempty"`
}

// Hit publishes a hit event. actor is the attributed attacker and may be empty.
func Hit(ctx context.Context, pub logging.Publisher, tick uint64, actor logging.EntityRef, victim logging.EntityRef, payload HitPayload, extra map[string]any) {
	if pub == nil {
		return
	}
	event := logging.Event{
		Type:     EventHit,
		Tick:     tick,
		Actor:    actor,
		Targets:  []logging.EntityRef{victim},
		Severity: logging.SeverityInfo,
		Category: logging.CategoryCombat,
		Payload:  payload,
		Extra:    extra,
	}
	pub.Publish(ctx, event)
}

// Advantage publishes a finalized frame advantage.
func Advantage(ctx context.Context, pub logging.Publisher, tick uint64, attacker logging.EntityRef, victim logging.EntityRef, payload AdvantagePayload, extra map[string]any) {
	if pub == nil {
		return
	}
	event := logging.Event{
		Type:     EventAdvantage,
		Tick:     tick,
		Actor:    attacker,
		Targets:  []logging.EntityRef{victim},
		Severity: logging.SeverityInfo,
		Category: logging.CategoryCombat,
		Payload:  payload,
		Extra:    extra,
	}
	pub.Publish(ctx, event)
}

// Combo publishes a combo summary.
func Combo(ctx context.Context, pub logging.Publisher, tick uint64, victim logging.EntityRef, payload ComboPayload, extra map[string]any) {
	if pub == nil {
		return
	}
	event := logging.Event{
		Type:     EventCombo,
		Tick:     tick,
		Actor:    victim,
		Severity: logging.SeverityInfo,
		Category: logging.CategoryCombat,
		Payload:  payload,
		Extra:    extra,
	}
	pub.Publish(ctx, event)
}
