//go:build linux

package dolphin

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"

	"tvc-hud/watcher/internal/memport"
)

// Process reads guest RAM out of a Dolphin process with process_vm_readv.
type Process struct {
	pid   int
	spans []Span
}

// Attach finds the first Dolphin process exposing guest RAM.
func Attach() (*Process, error) {
	pids, err := findProcesses("/proc")
	if err != nil {
		return nil, err
	}
	for _, pid := range pids {
		spans, err := spansFor(pid)
		if err != nil {
			continue
		}
		return &Process{pid: pid, spans: spans}, nil
	}
	return nil, memport.ErrNotHooked
}

func findProcesses(root string) ([]int, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("dolphin: list processes: %w", err)
	}
	var pids []int
	for _, entry := range entries {
		pid, err := strconv.Atoi(entry.Name())
		if err != nil {
			continue
		}
		comm, err := os.ReadFile(filepath.Join(root, entry.Name(), "comm"))
		if err != nil {
			continue
		}
		name := strings.TrimSpace(string(comm))
		for _, candidate := range ProcessNames {
			if name == candidate {
				pids = append(pids, pid)
				break
			}
		}
	}
	return pids, nil
}

func spansFor(pid int) ([]Span, error) {
	f, err := os.Open(filepath.Join("/proc", strconv.Itoa(pid), "maps"))
	if err != nil {
		return nil, err
	}
	defer f.Close()
	mappings, err := ParseMaps(f)
	if err != nil {
		return nil, err
	}
	return LocateRAM(mappings)
}

func (p *Process) PID() int {
	return p.pid
}

func (p *Process) Spans() []Span {
	out := make([]Span, len(p.spans))
	copy(out, p.spans)
	return out
}

// Port wraps the process in a Bus limited to the mapped regions.
func (p *Process) Port() *memport.Bus {
	return memport.NewBus(p, Regions(p.spans))
}

func (p *Process) ReadMemory(addr uint32, buf []byte) bool {
	if len(buf) == 0 {
		return false
	}
	host, ok := translate(p.spans, addr, len(buf))
	if !ok {
		return false
	}
	local := []unix.Iovec{{Base: &buf[0]}}
	local[0].SetLen(len(buf))
	remote := []unix.RemoteIovec{{Base: uintptr(host), Len: len(buf)}}
	n, err := unix.ProcessVMReadv(p.pid, local, remote, 0)
	return err == nil && n == len(buf)
}
