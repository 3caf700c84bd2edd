package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"tvc-hud/watcher/internal/contact"
	"tvc-hud/watcher/internal/event"
	"tvc-hud/watcher/internal/observability"
	"tvc-hud/watcher/internal/resolve"
	"tvc-hud/watcher/internal/snapshot"
	"tvc-hud/watcher/internal/telemetry"
	"tvc-hud/watcher/logging"
)

var ErrInvalid = errors.New("config: invalid")

const (
	envPollHz              = "POLL_HZ"
	envMinHitDamage        = "MIN_HIT_DAMAGE"
	envMaxContactDist      = "MAX_CONTACT_DIST"
	envContactTimeoutTicks = "CONTACT_TIMEOUT_TICKS"
	envResolverTTLSeconds  = "RESOLVER_TTL_SECONDS"
	envListen              = "WATCHER_LISTEN"
	envHUD                 = "WATCHER_HUD"
	envPprof               = "WATCHER_PPROF"

	DefaultPollHz                 = 30
	DefaultMaxInteractionDistance = 250.0
	DefaultListen                 = ":8090"
	DefaultAxisSampleMillis       = 1200
	DefaultAxisSampleHz           = 120
	DefaultHitLogLines            = 60
)

// Config is the watcher's JSON configuration document.
type Config struct {
	PollHz                 int                  `json:"pollHz" jsonschema:"minimum=1,maximum=240,description=Poll ticks per second"`
	MinHitDamage           uint32               `json:"minHitDamage" jsonschema:"description=Smallest damage reported as a hit"`
	MaxInteractionDistance float64              `json:"maxInteractionDistance" jsonschema:"exclusiveMinimum=0,description=Distance within which two fighters interact"`
	ContactTimeoutTicks    uint64               `json:"contactTimeoutTicks" jsonschema:"minimum=1"`
	ResolverTTLSeconds     float64              `json:"resolverTtlSeconds" jsonschema:"exclusiveMinimum=0,description=How long a last-known-good address is served"`
	HealthMaxBounds        resolve.HealthBounds `json:"healthMaxBounds"`
	BadPointers            []uint32             `json:"badPointers"`
	IndirectProbes         []uint32             `json:"indirectProbes"`
	YCandidates            []uint32             `json:"yCandidates"`
	AxisSampleMillis       int                  `json:"axisSampleMillis" jsonschema:"minimum=0"`
	AxisSampleHz           int                  `json:"axisSampleHz" jsonschema:"minimum=1"`
	Slots                  []resolve.Slot       `json:"slots"`
	StateCodes             contact.Codes        `json:"stateCodes"`
	ComboTimeoutMillis     int                  `json:"comboTimeoutMillis" jsonschema:"minimum=1"`
	MeterDeltaMin          int64                `json:"meterDeltaMin" jsonschema:"minimum=0"`
	HitLogLines            int                  `json:"hitLogLines" jsonschema:"minimum=1"`
	Listen                 string               `json:"listen,omitempty" jsonschema:"description=HTTP listen address; empty disables the server"`
	HUD                    bool                 `json:"hud"`
	Logging                logging.Config       `json:"logging"`
	Observability          observability.Config `json:"observability"`
}

// DefaultSlots are the four team slots of the US build.
func DefaultSlots() []resolve.Slot {
	return []resolve.Slot{
		{Label: "P1-C1", Address: 0x803C9FCC, Team: 0, Leader: true},
		{Label: "P1-C2", Address: 0x803C9FDC, Team: 0},
		{Label: "P2-C1", Address: 0x803C9FD4, Team: 1, Leader: true},
		{Label: "P2-C2", Address: 0x803C9FE4, Team: 1},
	}
}

func Default() Config {
	return Config{
		PollHz:                 DefaultPollHz,
		MinHitDamage:           event.DefaultMinHitDamage,
		MaxInteractionDistance: DefaultMaxInteractionDistance,
		ContactTimeoutTicks:    contact.DefaultTimeoutTicks,
		ResolverTTLSeconds:     resolve.DefaultTTL.Seconds(),
		HealthMaxBounds:        resolve.DefaultHealthBounds(),
		BadPointers:            append([]uint32(nil), resolve.DefaultBadPointers...),
		IndirectProbes:         append([]uint32(nil), resolve.DefaultIndirectProbes...),
		YCandidates:            append([]uint32(nil), snapshot.DefaultYCandidates...),
		AxisSampleMillis:       DefaultAxisSampleMillis,
		AxisSampleHz:           DefaultAxisSampleHz,
		Slots:                  DefaultSlots(),
		StateCodes:             contact.DefaultCodes(),
		ComboTimeoutMillis:     600,
		MeterDeltaMin:          event.DefaultMeterDeltaMin,
		HitLogLines:            DefaultHitLogLines,
		Listen:                 DefaultListen,
		Logging:                logging.DefaultConfig(),
	}
}

// Load reads a JSON document layered over Default. Unknown fields are
// rejected so typos surface at startup.
func Load(path string) (Config, error) {
	cfg := Default()
	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("config: read %s: %w", path, err)
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return cfg, fmt.Errorf("config: decode %s: %w", path, err)
	}
	return cfg, nil
}

// LookupFunc matches os.LookupEnv.
type LookupFunc func(string) (string, bool)

// ApplyEnv overrides fields from the environment. Unparseable values are
// reported and ignored.
func (c *Config) ApplyEnv(lookup LookupFunc, logger telemetry.Logger) {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	warn := func(key, raw string, err error) {
		if logger != nil {
			logger.Printf("[config] ignoring %s=%q: %v", key, raw, err)
		}
	}

	if raw, ok := lookup(envPollHz); ok && raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil {
			c.PollHz = parsed
		} else {
			warn(envPollHz, raw, err)
		}
	}
	if raw, ok := lookup(envMinHitDamage); ok && raw != "" {
		if parsed, err := strconv.ParseUint(raw, 10, 32); err == nil {
			c.MinHitDamage = uint32(parsed)
		} else {
			warn(envMinHitDamage, raw, err)
		}
	}
	if raw, ok := lookup(envMaxContactDist); ok && raw != "" {
		if parsed, err := strconv.ParseFloat(raw, 64); err == nil {
			c.MaxInteractionDistance = parsed
		} else {
			warn(envMaxContactDist, raw, err)
		}
	}
	if raw, ok := lookup(envContactTimeoutTicks); ok && raw != "" {
		if parsed, err := strconv.ParseUint(raw, 10, 64); err == nil {
			c.ContactTimeoutTicks = parsed
		} else {
			warn(envContactTimeoutTicks, raw, err)
		}
	}
	if raw, ok := lookup(envResolverTTLSeconds); ok && raw != "" {
		if parsed, err := strconv.ParseFloat(raw, 64); err == nil {
			c.ResolverTTLSeconds = parsed
		} else {
			warn(envResolverTTLSeconds, raw, err)
		}
	}
	if raw, ok := lookup(envListen); ok {
		c.Listen = strings.TrimSpace(raw)
	}
	if raw, ok := lookup(envHUD); ok && raw != "" {
		if parsed, err := strconv.ParseBool(raw); err == nil {
			c.HUD = parsed
		} else {
			warn(envHUD, raw, err)
		}
	}
	if raw, ok := lookup(envPprof); ok && raw != "" {
		if parsed, err := strconv.ParseBool(raw); err == nil {
			c.Observability.EnablePprof = parsed
		} else {
			warn(envPprof, raw, err)
		}
	}
}

// Validate reports the first field that cannot drive the watcher.
func (c Config) Validate() error {
	switch {
	case c.PollHz <= 0 || c.PollHz > 240:
		return fmt.Errorf("%w: pollHz %d outside [1,240]", ErrInvalid, c.PollHz)
	case c.MaxInteractionDistance <= 0:
		return fmt.Errorf("%w: maxInteractionDistance must be positive", ErrInvalid)
	case c.ContactTimeoutTicks == 0:
		return fmt.Errorf("%w: contactTimeoutTicks must be positive", ErrInvalid)
	case c.ResolverTTLSeconds <= 0:
		return fmt.Errorf("%w: resolverTtlSeconds must be positive", ErrInvalid)
	case c.HealthMaxBounds.Min == 0 || c.HealthMaxBounds.Min > c.HealthMaxBounds.Max:
		return fmt.Errorf("%w: healthMaxBounds [%d,%d]", ErrInvalid, c.HealthMaxBounds.Min, c.HealthMaxBounds.Max)
	case len(c.YCandidates) == 0:
		return fmt.Errorf("%w: yCandidates is empty", ErrInvalid)
	case c.AxisSampleHz <= 0 || c.AxisSampleMillis < 0:
		return fmt.Errorf("%w: axis sampling %dms @ %dHz", ErrInvalid, c.AxisSampleMillis, c.AxisSampleHz)
	case len(c.Slots) == 0:
		return fmt.Errorf("%w: no slots", ErrInvalid)
	case c.ComboTimeoutMillis <= 0:
		return fmt.Errorf("%w: comboTimeoutMillis must be positive", ErrInvalid)
	case c.HitLogLines <= 0:
		return fmt.Errorf("%w: hitLogLines must be positive", ErrInvalid)
	}

	labels := make(map[string]struct{}, len(c.Slots))
	for _, slot := range c.Slots {
		if slot.Label == "" {
			return fmt.Errorf("%w: slot at 0x%08X has no label", ErrInvalid, slot.Address)
		}
		if _, dup := labels[slot.Label]; dup {
			return fmt.Errorf("%w: duplicate slot label %q", ErrInvalid, slot.Label)
		}
		labels[slot.Label] = struct{}{}
		if slot.Team != 0 && slot.Team != 1 {
			return fmt.Errorf("%w: slot %q team %d not 0 or 1", ErrInvalid, slot.Label, slot.Team)
		}
	}
	return nil
}

// MaxDist2 is the squared interaction distance.
func (c Config) MaxDist2() float64 {
	return c.MaxInteractionDistance * c.MaxInteractionDistance
}

func (c Config) TickInterval() time.Duration {
	if c.PollHz <= 0 {
		return time.Second / DefaultPollHz
	}
	return time.Second / time.Duration(c.PollHz)
}

func (c Config) ResolverTTL() time.Duration {
	return time.Duration(c.ResolverTTLSeconds * float64(time.Second))
}

func (c Config) ComboTimeout() time.Duration {
	return time.Duration(c.ComboTimeoutMillis) * time.Millisecond
}

func (c Config) AxisWindow() time.Duration {
	return time.Duration(c.AxisSampleMillis) * time.Millisecond
}

func (c Config) AxisInterval() time.Duration {
	if c.AxisSampleHz <= 0 {
		return time.Second / DefaultAxisSampleHz
	}
	return time.Second / time.Duration(c.AxisSampleHz)
}
