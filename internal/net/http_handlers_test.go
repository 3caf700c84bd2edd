package net

import (
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"testing"

	"tvc-hud/watcher/internal/net/ws"
	"tvc-hud/watcher/internal/observability"
	"tvc-hud/watcher/internal/poll"
	"tvc-hud/watcher/internal/telemetry"
	"tvc-hud/watcher/logging"
)

func newTestHandler(hub *ws.Hub, counters *telemetry.Counters) http.Handler {
	return NewHTTPHandler(hub, HTTPHandlerConfig{
		Logger:   log.New(io.Discard, "", 0),
		TickRate: 30,
		Counters: counters,
		RouterStats: func() logging.RouterStats {
			return logging.RouterStats{EventsTotal: 12, DroppedTotal: 1}
		},
	})
}

func TestHealth(t *testing.T) {
	handler := newTestHandler(ws.NewHub(ws.HubConfig{}), telemetry.NewCounters())
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/health", nil))
	if resp.Code != http.StatusOK || resp.Body.String() != "ok" {
		t.Fatalf("unexpected health response %d %q", resp.Code, resp.Body.String())
	}
}

func TestDiagnosticsReportsCounters(t *testing.T) {
	hub := ws.NewHub(ws.HubConfig{Logger: log.New(io.Discard, "", 0)})
	hub.Broadcast(poll.Frame{Tick: 77})
	counters := telemetry.NewCounters()
	counters.Add(telemetry.MetricHits, 3)

	resp := httptest.NewRecorder()
	newTestHandler(hub, counters).ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/diagnostics", nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200 OK, got %d", resp.Code)
	}
	if contentType := resp.Header().Get("Content-Type"); contentType != "application/json" {
		t.Fatalf("expected Content-Type application/json, got %q", contentType)
	}

	var payload struct {
		Status    string            `json:"status"`
		TickRate  int               `json:"tickRate"`
		LastTick  uint64            `json:"lastTick"`
		Telemetry map[string]uint64 `json:"telemetry"`
		Logging   map[string]uint64 `json:"logging"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &payload); err != nil {
		t.Fatalf("failed to decode diagnostics: %v", err)
	}
	if payload.Status != "ok" || payload.TickRate != 30 || payload.LastTick != 77 {
		t.Fatalf("unexpected diagnostics %+v", payload)
	}
	if payload.Telemetry[telemetry.MetricHits] != 3 {
		t.Fatalf("expected hit counter in diagnostics, got %v", payload.Telemetry)
	}
	if payload.Logging["eventsTotal"] != 12 || payload.Logging["droppedTotal"] != 1 {
		t.Fatalf("expected router stats, got %v", payload.Logging)
	}
}

func TestFrameEndpoint(t *testing.T) {
	hub := ws.NewHub(ws.HubConfig{Logger: log.New(io.Discard, "", 0)})
	handler := newTestHandler(hub, telemetry.NewCounters())

	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/frame", nil))
	if resp.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 before the first frame, got %d", resp.Code)
	}

	hub.Broadcast(poll.Frame{Tick: 5})
	resp = httptest.NewRecorder()
	handler.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/frame", nil))
	var frame poll.Frame
	if err := json.Unmarshal(resp.Body.Bytes(), &frame); err != nil {
		t.Fatalf("decode frame: %v", err)
	}
	if frame.Tick != 5 {
		t.Fatalf("expected tick 5, got %d", frame.Tick)
	}
}

func TestPprofIsOptIn(t *testing.T) {
	hub := ws.NewHub(ws.HubConfig{Logger: log.New(io.Discard, "", 0)})
	for _, enabled := range []bool{false, true} {
		handler := NewHTTPHandler(hub, HTTPHandlerConfig{
			Logger:        log.New(io.Discard, "", 0),
			Counters:      telemetry.NewCounters(),
			Observability: observability.Config{EnablePprof: enabled},
		})
		resp := httptest.NewRecorder()
		handler.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/debug/pprof/", nil))
		want := http.StatusNotFound
		if enabled {
			want = http.StatusOK
		}
		if resp.Code != want {
			t.Fatalf("pprof enabled=%v: status %d, want %d", enabled, resp.Code, want)
		}
	}
}
