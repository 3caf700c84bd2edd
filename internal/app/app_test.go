package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"tvc-hud/watcher/internal/config"
	"tvc-hud/watcher/internal/memport"
	"tvc-hud/watcher/internal/poll"
	"tvc-hud/watcher/internal/resolve"
	"tvc-hud/watcher/internal/snapshot"
	"tvc-hud/watcher/internal/telemetry"
)

const (
	slotP1   = 0x80001000
	slotP2   = 0x80001010
	fighterA = 0x80A00000
	fighterB = 0x80B00000
)

func noEnv(string) (string, bool) { return "", false }

func quietLogger() telemetry.Logger {
	return telemetry.WrapLogger(log.New(io.Discard, "", 0))
}

func guestImage() *memport.Image {
	img := memport.NewImage()
	img.PutU32(slotP1, fighterA)
	img.PutU32(slotP2, fighterB)
	for i, base := range []uint32{fighterA, fighterB} {
		img.PutU32(base+resolve.OffsetHealthMax, 42000)
		img.PutU32(base+resolve.OffsetHealthCur, 42000)
		img.PutU32(base+snapshot.OffsetCharacterID, 12)
		img.PutF32(base+snapshot.OffsetX, float32(i*100))
		img.PutF32(base+0xF4, 0)
	}
	return img
}

func writeConfig(t *testing.T, doc map[string]any) string {
	t.Helper()
	data, err := json.Marshal(doc)
	if err != nil {
		t.Fatalf("marshal config: %v", err)
	}
	path := filepath.Join(t.TempDir(), "watcher.json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func testConfigPath(t *testing.T) string {
	return writeConfig(t, map[string]any{
		"pollHz":           60,
		"axisSampleMillis": 0,
		"slots": []map[string]any{
			{"label": "P1-C1", "address": slotP1, "team": 0, "leader": true},
			{"label": "P2-C1", "address": slotP2, "team": 1, "leader": true},
		},
	})
}

func TestRunServesFramesUntilCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	addrs := make(chan net.Addr, 1)
	frames := make(chan poll.Frame, 64)
	result := make(chan error, 1)
	go func() {
		result <- Run(ctx, Config{
			Logger:     quietLogger(),
			ConfigPath: testConfigPath(t),
			Lookup:     noEnv,
			Port:       guestImage().Port(),
			Listen:     "127.0.0.1:0",
			Sinks:      []string{"memory"},
			Ready:      func(addr net.Addr) { addrs <- addr },
			AfterStep: func(frame poll.Frame) {
				select {
				case frames <- frame:
				default:
				}
			},
		})
	}()

	var addr net.Addr
	select {
	case addr = <-addrs:
	case err := <-result:
		t.Fatalf("Run returned early: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("server never became ready")
	}

	select {
	case frame := <-frames:
		p1, ok := frame.Slot("P1-C1")
		if !ok || !p1.Resolved || p1.Address != fighterA {
			t.Fatalf("unexpected P1 slot %+v", p1)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no frame observed")
	}

	url := fmt.Sprintf("http://%s/frame", addr)
	deadline := time.Now().Add(5 * time.Second)
	for {
		resp, err := http.Get(url)
		if err != nil {
			t.Fatalf("GET /frame: %v", err)
		}
		var frame poll.Frame
		decodeErr := json.NewDecoder(resp.Body).Decode(&frame)
		resp.Body.Close()
		if resp.StatusCode == http.StatusOK {
			if decodeErr != nil {
				t.Fatalf("decode frame: %v", decodeErr)
			}
			if frame.Tick == 0 || len(frame.Slots) != 2 {
				t.Fatalf("unexpected served frame tick=%d slots=%d", frame.Tick, len(frame.Slots))
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("/frame still %d", resp.StatusCode)
		}
		time.Sleep(20 * time.Millisecond)
	}

	cancel()
	select {
	case err := <-result:
		if err != nil {
			t.Fatalf("Run returned %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not stop after cancel")
	}
}

func TestRunFailsWhenMemoryUnreachable(t *testing.T) {
	err := Run(context.Background(), Config{
		Logger:     quietLogger(),
		ConfigPath: testConfigPath(t),
		Lookup:     noEnv,
		Port:       memport.NewImage().Port(),
		Sinks:      []string{"memory"},
	})
	if !errors.Is(err, ErrUnreachable) {
		t.Fatalf("expected ErrUnreachable, got %v", err)
	}
}

func TestRunRejectsBadConfiguration(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{
			name: "unknown sink",
			cfg:  Config{Sinks: []string{"syslog"}},
		},
		{
			name: "invalid poll rate",
			cfg:  Config{ConfigPath: writeConfig(t, map[string]any{"pollHz": 0})},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.cfg.Logger = quietLogger()
			tt.cfg.Lookup = noEnv
			tt.cfg.Port = guestImage().Port()
			err := Run(context.Background(), tt.cfg)
			if !errors.Is(err, config.ErrInvalid) {
				t.Fatalf("expected config.ErrInvalid, got %v", err)
			}
		})
	}
}

func TestLoadConfigOverrides(t *testing.T) {
	cfg, err := loadConfig(Config{
		Lookup:      noEnv,
		Listen:      "127.0.0.1:9999",
		HUD:         true,
		JSONLogPath: filepath.Join(t.TempDir(), "events.jsonl"),
	}, quietLogger())
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if cfg.Listen != "127.0.0.1:9999" || !cfg.HUD {
		t.Fatalf("flags not applied: listen=%q hud=%v", cfg.Listen, cfg.HUD)
	}
	if cfg.Logging.HasSink("console") {
		t.Fatalf("console sink should be disabled under the HUD, got %v", cfg.Logging.EnabledSinks)
	}
	if !cfg.Logging.HasSink("json") {
		t.Fatalf("json sink not enabled: %v", cfg.Logging.EnabledSinks)
	}
}
