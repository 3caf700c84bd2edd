package net

import (
	"encoding/json"
	"log"
	nethttp "net/http"
	"time"

	"tvc-hud/watcher/internal/net/ws"
	"tvc-hud/watcher/internal/observability"
	"tvc-hud/watcher/internal/telemetry"
	"tvc-hud/watcher/logging"
)

type HTTPHandlerConfig struct {
	Logger        *log.Logger
	TickRate      int
	Counters      *telemetry.Counters
	// RouterStats reports logging router throughput; optional.
	RouterStats   func() logging.RouterStats
	Observability observability.Config
}

func NewHTTPHandler(hub *ws.Hub, cfg HTTPHandlerConfig) nethttp.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = log.Default()
	}

	mux := nethttp.NewServeMux()

	mux.HandleFunc("/health", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.Write([]byte("ok"))
	})

	mux.HandleFunc("/diagnostics", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		payload := struct {
			Status      string               `json:"status"`
			ServerTime  int64                `json:"serverTime"`
			TickRate    int                  `json:"tickRate"`
			Subscribers int                  `json:"subscribers"`
			LastTick    uint64               `json:"lastTick"`
			Telemetry   map[string]uint64    `json:"telemetry"`
			Logging     *logging.RouterStats `json:"logging,omitempty"`
		}{
			Status:      "ok",
			ServerTime:  time.Now().UnixMilli(),
			TickRate:    cfg.TickRate,
			Subscribers: hub.Subscribers(),
			Telemetry:   cfg.Counters.Snapshot(),
		}
		if latest, ok := hub.Latest(); ok {
			payload.LastTick = latest.Tick
		}
		if cfg.RouterStats != nil {
			stats := cfg.RouterStats()
			payload.Logging = &stats
		}
		writeJSON(w, logger, payload)
	})

	mux.HandleFunc("/frame", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		latest, ok := hub.Latest()
		if !ok {
			httpError(w, "no frame yet", nethttp.StatusServiceUnavailable)
			return
		}
		writeJSON(w, logger, latest)
	})

	wsHandler := ws.NewHandler(hub, ws.HandlerConfig{Logger: logger})
	mux.HandleFunc("/ws", wsHandler.Handle)

	cfg.Observability.Register(mux)

	return mux
}

func writeJSON(w nethttp.ResponseWriter, logger *log.Logger, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		logger.Printf("failed to encode response: %v", err)
		httpError(w, "failed to encode", nethttp.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(data)
}

func httpError(w nethttp.ResponseWriter, msg string, code int) {
	nethttp.Error(w, msg, code)
}
