package lifecycle

import (
	"context"
	"fmt"

	"tvc-hud/watcher/logging"
)

const (
	// EventSlotResolved is emitted when a slot resolves to a new address.
	EventSlotResolved logging.EventType = "lifecycle.slot_resolved"
	// EventSlotLost is emitted when a previously resolved slot stops resolving.
	EventSlotLost logging.EventType = "lifecycle.slot_lost"
	// EventAxisSelected is emitted after the vertical offset is chosen for an address.
	EventAxisSelected logging.EventType = "lifecycle.axis_selected"
)

// SlotResolvedPayload captures the new and previous addresses of a slot.
type SlotResolvedPayload struct {
	Address  string `json:"address"`
	Previous string `json:"previous,omitempty"`
}

// SlotLostPayload captures the address a slot last resolved to.
type SlotLostPayload struct {
	LastAddress string `json:"lastAddress"`
}

// AxisSelectedPayload captures the vertical offset chosen for an address.
type AxisSelectedPayload struct {
	Address string `json:"address"`
	Offset  string `json:"offset"`
}

// Hex formats a guest address the way lifecycle payloads carry them.
func Hex(v uint32) string {
	return fmt.Sprintf("0x%08X", v)
}

// SlotResolved publishes a slot resolution change.
func SlotResolved(ctx context.Context, pub logging.Publisher, tick uint64, slot logging.EntityRef, payload SlotResolvedPayload, extra map[string]any) {
	publish(ctx, pub, EventSlotResolved, logging.SeverityInfo, tick, slot, payload, extra)
}

// SlotLost publishes a slot that no longer resolves.
func SlotLost(ctx context.Context, pub logging.Publisher, tick uint64, slot logging.EntityRef, payload SlotLostPayload, extra map[string]any) {
	publish(ctx, pub, EventSlotLost, logging.SeverityWarn, tick, slot, payload, extra)
}

// AxisSelected publishes the vertical offset chosen for a slot's address.
func AxisSelected(ctx context.Context, pub logging.Publisher, tick uint64, slot logging.EntityRef, payload AxisSelectedPayload, extra map[string]any) {
	publish(ctx, pub, EventAxisSelected, logging.SeverityDebug, tick, slot, payload, extra)
}

func publish(ctx context.Context, pub logging.Publisher, eventType logging.EventType, severity logging.Severity, tick uint64, slot logging.EntityRef, payload any, extra map[string]any) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     eventType,
		Tick:     tick,
		Actor:    slot,
		Severity: severity,
		Category: logging.CategoryLifecycle,
		Payload:  payload,
		Extra:    extra,
	})
}
