// Package memport defines the read-only view of emulated guest memory the
// watcher polls. Every read may miss; a miss is reported through the ok
// result and is never an error.
package memport

import (
	"errors"
)

var (
	// ErrNotHooked is returned when no emulator process exposes guest memory.
	ErrNotHooked = errors.New("memport: emulator not hooked")
	// ErrUnsupported is returned by backends that cannot run on this platform.
	ErrUnsupported = errors.New("memport: backend unsupported on this platform")
)

// Port reads big-endian guest values. Implementations must be safe to call
// from the single poll goroutine; they need not be safe for concurrent use.
type Port interface {
	ReadU32(addr uint32) (uint32, bool)
	ReadF32(addr uint32) (float32, bool)
	ReadU8(addr uint32) (uint8, bool)
	InRange(addr uint32) bool
}

// Backend copies raw guest bytes starting at addr into buf. It reports false
// when the full span could not be read.
type Backend interface {
	ReadMemory(addr uint32, buf []byte) bool
}

// BackendFunc adapts a function into a Backend.
type BackendFunc func(addr uint32, buf []byte) bool

func (f BackendFunc) ReadMemory(addr uint32, buf []byte) bool {
	if f == nil {
		return false
	}
	return f(addr, buf)
}

// Region is a half-open guest address range [Lo, Hi).
type Region struct {
	Name string `json:"name"`
	Lo   uint32 `json:"lo"`
	Hi   uint32 `json:"hi"`
}

// Contains reports whether the whole span [addr, addr+size) lies inside r.
func (r Region) Contains(addr uint32, size uint32) bool {
	if addr < r.Lo || addr >= r.Hi {
		return false
	}
	return uint64(addr)+uint64(size) <= uint64(r.Hi)
}

// Size returns the region length in bytes.
func (r Region) Size() uint32 {
	if r.Hi <= r.Lo {
		return 0
	}
	return r.Hi - r.Lo
}

var (
	// MEM1 is the 24 MiB main RAM of the Wii/GameCube guest.
	MEM1 = Region{Name: "MEM1", Lo: 0x80000000, Hi: 0x81800000}
	// MEM2 is the 64 MiB extended RAM of the Wii guest.
	MEM2 = Region{Name: "MEM2", Lo: 0x90000000, Hi: 0x94000000}
)

// DefaultRegions returns the guest RAM ranges that pointers may land in.
func DefaultRegions() []Region {
	return []Region{MEM1, MEM2}
}
