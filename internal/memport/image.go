package memport

import (
	"encoding/binary"
	"math"
	"sync"
)

const pageBits = 12

// Image is a sparse in-memory guest RAM. Unwritten bytes are unmapped and
// reads touching them miss, which lets tests model transient failures.
// Image is safe for concurrent use so a test can mutate memory while a
// loop polls it.
type Image struct {
	mu    sync.RWMutex
	pages map[uint32]*page
}

type page struct {
	data  [1 << pageBits]byte
	valid [1 << pageBits]bool
}

func NewImage() *Image {
	return &Image{pages: make(map[uint32]*page)}
}

// Port returns a Bus over the image restricted to regions.
func (m *Image) Port(regions ...Region) *Bus {
	return NewBus(m, regions)
}

func (m *Image) ReadMemory(addr uint32, buf []byte) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for i := range buf {
		a := addr + uint32(i)
		p, ok := m.pages[a>>pageBits]
		if !ok {
			return false
		}
		off := a & (1<<pageBits - 1)
		if !p.valid[off] {
			return false
		}
		buf[i] = p.data[off]
	}
	return true
}

// Write stores raw bytes at addr.
func (m *Image) Write(addr uint32, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, b := range data {
		a := addr + uint32(i)
		p, ok := m.pages[a>>pageBits]
		if !ok {
			p = &page{}
			m.pages[a>>pageBits] = p
		}
		off := a & (1<<pageBits - 1)
		p.data[off] = b
		p.valid[off] = true
	}
}

// Unmap makes size bytes at addr unreadable.
func (m *Image) Unmap(addr uint32, size uint32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := uint32(0); i < size; i++ {
		a := addr + i
		if p, ok := m.pages[a>>pageBits]; ok {
			p.valid[a&(1<<pageBits-1)] = false
		}
	}
}

func (m *Image) PutU8(addr uint32, v uint8) {
	m.Write(addr, []byte{v})
}

func (m *Image) PutU32(addr uint32, v uint32) {
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], v)
	m.Write(addr, buf[:])
}

func (m *Image) PutF32(addr uint32, v float32) {
	m.PutU32(addr, math.Float32bits(v))
}
