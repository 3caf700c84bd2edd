package dolphin

import (
	"context"
	"errors"
	"time"

	"tvc-hud/watcher/internal/memport"
	"tvc-hud/watcher/internal/telemetry"
)

// DefaultHookInterval matches the emulator attach retry cadence.
const DefaultHookInterval = 200 * time.Millisecond

// Hook retries Attach until it succeeds or ctx ends. Platform errors other
// than ErrNotHooked end the wait immediately.
func Hook(ctx context.Context, interval time.Duration, logger telemetry.Logger) (*Process, error) {
	if interval <= 0 {
		interval = DefaultHookInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	announced := false
	for {
		proc, err := Attach()
		if err == nil {
			if logger != nil {
				logger.Printf("[dolphin] hooked pid=%d regions=%d", proc.PID(), len(proc.Spans()))
			}
			return proc, nil
		}
		if !errors.Is(err, memport.ErrNotHooked) {
			return nil, err
		}
		if !announced && logger != nil {
			logger.Printf("[dolphin] waiting for emulator process")
			announced = true
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}
