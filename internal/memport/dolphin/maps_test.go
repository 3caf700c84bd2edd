package dolphin

import (
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"tvc-hud/watcher/internal/memport"
)

const sampleMaps = `55d1c0a00000-55d1c0b00000 r-xp 00000000 fd:01 1234 /usr/bin/dolphin-emu
7f0000000000-7f0002000000 rw-s 00000000 00:19 77 /dev/shm/dolphin-emu.1234 (deleted)
7f0004000000-7f0008000000 rw-s 02040000 00:19 77 /dev/shm/dolphin-emu.1234 (deleted)
7f1000000000-7f1000021000 rw-p 00000000 00:00 0
`

func TestParseMaps(t *testing.T) {
	got, err := ParseMaps(strings.NewReader(sampleMaps))
	if err != nil {
		t.Fatalf("parse maps: %v", err)
	}
	if len(got) != 4 {
		t.Fatalf("expected 4 mappings, got %d", len(got))
	}
	want := Mapping{Start: 0x7f0004000000, End: 0x7f0008000000, Offset: 0x2040000, Path: "/dev/shm/dolphin-emu.1234 (deleted)"}
	if diff := cmp.Diff(want, got[2]); diff != "" {
		t.Fatalf("unexpected mapping (-want +got):\n%s", diff)
	}
	if got[3].Path != "" {
		t.Fatalf("expected anonymous mapping, got %q", got[3].Path)
	}
}

func TestLocateRAM(t *testing.T) {
	mappings, err := ParseMaps(strings.NewReader(sampleMaps))
	if err != nil {
		t.Fatalf("parse maps: %v", err)
	}
	spans, err := LocateRAM(mappings)
	if err != nil {
		t.Fatalf("locate: %v", err)
	}
	want := []Span{
		{Region: memport.MEM1, Host: 0x7f0000000000},
		{Region: memport.MEM2, Host: 0x7f0004000000},
	}
	if diff := cmp.Diff(want, spans); diff != "" {
		t.Fatalf("unexpected spans (-want +got):\n%s", diff)
	}

	host, ok := translate(spans, 0x90000010, 4)
	if !ok || host != 0x7f0004000010 {
		t.Fatalf("expected MEM2 translation, got 0x%x ok=%v", host, ok)
	}
	if _, ok := translate(spans, 0x817FFFFF, 4); ok {
		t.Fatalf("expected boundary-crossing read to fail")
	}
}

func TestLocateRAMWithoutEmulator(t *testing.T) {
	_, err := LocateRAM([]Mapping{{Start: 0, End: 0x3000000, Path: "/usr/lib/libc.so.6"}})
	if !errors.Is(err, memport.ErrNotHooked) {
		t.Fatalf("expected ErrNotHooked, got %v", err)
	}
}
