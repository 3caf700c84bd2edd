// Package dolphin attaches to a running Dolphin emulator and exposes its
// guest RAM as a memport.Backend.
package dolphin

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"tvc-hud/watcher/internal/memport"
)

// ProcessNames are the comm values a Dolphin process reports. The kernel
// truncates comm to 15 bytes, so dolphin-emu-nogui shows up as dolphin-emu-nog.
var ProcessNames = []string{"dolphin-emu", "dolphin-emu-qt2", "dolphin-emu-wx", "dolphin-emu-nog"}

const (
	mem1FileOffset = 0x0
	mem2FileOffset = 0x2040000
	mem1MinSize    = 0x1800000
	mem2MinSize    = 0x4000000
)

// Mapping is one line of /proc/<pid>/maps.
type Mapping struct {
	Start  uint64
	End    uint64
	Offset uint64
	Path   string
}

func (m Mapping) Size() uint64 {
	return m.End - m.Start
}

// Span binds a guest region to the host address it is mapped at.
type Span struct {
	Region memport.Region
	Host   uint64
}

// ParseMaps reads the /proc/<pid>/maps format.
func ParseMaps(r io.Reader) ([]Mapping, error) {
	var out []Mapping
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 5 {
			continue
		}
		bounds := strings.SplitN(fields[0], "-", 2)
		if len(bounds) != 2 {
			return nil, fmt.Errorf("dolphin: malformed maps range %q", fields[0])
		}
		start, err := strconv.ParseUint(bounds[0], 16, 64)
		if err != nil {
			return nil, fmt.Errorf("dolphin: parse maps start: %w", err)
		}
		end, err := strconv.ParseUint(bounds[1], 16, 64)
		if err != nil {
			return nil, fmt.Errorf("dolphin: parse maps end: %w", err)
		}
		offset, err := strconv.ParseUint(fields[2], 16, 64)
		if err != nil {
			return nil, fmt.Errorf("dolphin: parse maps offset: %w", err)
		}
		path := ""
		if len(fields) >= 6 {
			path = strings.Join(fields[5:], " ")
		}
		out = append(out, Mapping{Start: start, End: end, Offset: offset, Path: path})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("dolphin: read maps: %w", err)
	}
	return out, nil
}

func isGuestMapping(path string) bool {
	return strings.Contains(path, "dolphin-emu.") || strings.Contains(path, "dolphinmem")
}

// LocateRAM finds the shared-memory mappings backing MEM1 and MEM2. MEM2 is
// optional since GameCube titles never map it.
func LocateRAM(mappings []Mapping) ([]Span, error) {
	var spans []Span
	var haveMEM1, haveMEM2 bool
	for _, m := range mappings {
		if !isGuestMapping(m.Path) {
			continue
		}
		switch {
		case !haveMEM1 && m.Offset == mem1FileOffset && m.Size() >= mem1MinSize:
			spans = append(spans, Span{Region: memport.MEM1, Host: m.Start})
			haveMEM1 = true
		case !haveMEM2 && m.Offset == mem2FileOffset && m.Size() >= mem2MinSize:
			spans = append(spans, Span{Region: memport.MEM2, Host: m.Start})
			haveMEM2 = true
		}
	}
	if !haveMEM1 {
		return nil, memport.ErrNotHooked
	}
	return spans, nil
}

// translate maps a guest span onto the host. ok is false when the span
// crosses a region boundary or no region holds it.
func translate(spans []Span, addr uint32, size int) (uint64, bool) {
	for _, s := range spans {
		if s.Region.Contains(addr, uint32(size)) {
			return s.Host + uint64(addr-s.Region.Lo), true
		}
	}
	return 0, false
}

// Regions returns the guest regions covered by spans.
func Regions(spans []Span) []memport.Region {
	out := make([]memport.Region, 0, len(spans))
	for _, s := range spans {
		out = append(out, s.Region)
	}
	return out
}
