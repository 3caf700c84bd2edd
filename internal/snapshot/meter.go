package snapshot

import "tvc-hud/watcher/internal/memport"

const (
	OffsetMeterPrimary   = 0x4C
	OffsetMeterSecondary = 0x9380 + 0x4C

	// FullMeter is the value a full meter bar reads as.
	FullMeter = 50000
)

// MeterCache remembers which bank holds the meter for each fighter base.
type MeterCache struct {
	port  memport.Port
	addrs map[uint32]uint32
}

func NewMeterCache(port memport.Port) *MeterCache {
	return &MeterCache{port: port, addrs: make(map[uint32]uint32)}
}

// Address picks and caches the meter address for base. A bank reading the
// full-meter value wins, then the first plausible bank, then the primary.
func (c *MeterCache) Address(base uint32) uint32 {
	if addr, ok := c.addrs[base]; ok {
		return addr
	}
	candidates := [2]uint32{base + OffsetMeterPrimary, base + OffsetMeterSecondary}
	chosen := candidates[0]
	found := false
	for _, addr := range candidates {
		if v, ok := c.port.ReadU32(addr); ok && v == FullMeter {
			chosen, found = addr, true
			break
		}
	}
	if !found {
		for _, addr := range candidates {
			if v, ok := c.port.ReadU32(addr); ok && v <= MaxPlausibleValue {
				chosen = addr
				break
			}
		}
	}
	c.addrs[base] = chosen
	return chosen
}

// Drop forgets the choice for base.
func (c *MeterCache) Drop(base uint32) {
	delete(c.addrs, base)
}
