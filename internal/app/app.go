package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/gdamore/tcell/v2"

	"tvc-hud/watcher/internal/config"
	"tvc-hud/watcher/internal/hud"
	"tvc-hud/watcher/internal/memport"
	"tvc-hud/watcher/internal/memport/dolphin"
	servernet "tvc-hud/watcher/internal/net"
	"tvc-hud/watcher/internal/net/ws"
	"tvc-hud/watcher/internal/poll"
	"tvc-hud/watcher/internal/resolve"
	"tvc-hud/watcher/internal/telemetry"
	"tvc-hud/watcher/logging"
	loggingSinks "tvc-hud/watcher/logging/sinks"
)

// ErrUnreachable is returned when the memory port cannot read the first
// slot pointer before polling starts.
var ErrUnreachable = errors.New("app: guest memory unreachable")

const (
	frameBuffer     = 8
	shutdownTimeout = 2 * time.Second
)

type Config struct {
	Logger     telemetry.Logger
	ConfigPath string
	// Lookup replaces os.LookupEnv for environment overrides.
	Lookup config.LookupFunc
	// Port skips hooking the emulator when set.
	Port memport.Port
	// Listen and Sinks override the document when non-empty.
	Listen      string
	Sinks       []string
	JSONLogPath string
	HUD         bool
	// Screen replaces the terminal screen when the HUD is enabled.
	Screen tcell.Screen
	Stdout io.Writer
	// Ready is called with the bound address once the HTTP server listens.
	Ready func(net.Addr)
	// AfterStep observes every frame after the hub and HUD were offered it.
	AfterStep func(poll.Frame)
}

// Run loads configuration, hooks guest memory and polls it until ctx is
// cancelled or the HUD is closed.
func Run(ctx context.Context, cfg Config) error {
	telemetryLogger := cfg.Logger
	if telemetryLogger == nil {
		telemetryLogger = telemetry.WrapLogger(log.Default())
	}

	fallbackLogger := log.Default()
	if provider, ok := telemetryLogger.(interface{ StandardLogger() *log.Logger }); ok {
		if candidate := provider.StandardLogger(); candidate != nil {
			fallbackLogger = candidate
		}
	}

	watcherCfg, err := loadConfig(cfg, telemetryLogger)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sinks, closeSinks, err := buildSinks(cfg, watcherCfg)
	if err != nil {
		return err
	}
	defer closeSinks()

	router, err := logging.NewRouter(watcherCfg.Logging, logging.SystemClock{}, fallbackLogger, sinks)
	if err != nil {
		return fmt.Errorf("failed to construct logging router: %w", err)
	}
	defer func() {
		closeCtx, done := context.WithTimeout(context.Background(), shutdownTimeout)
		defer done()
		if cerr := router.Close(closeCtx); cerr != nil {
			telemetryLogger.Printf("failed to close logging router: %v", cerr)
		}
	}()

	port := cfg.Port
	if port == nil {
		proc, err := dolphin.Hook(ctx, dolphin.DefaultHookInterval, telemetryLogger)
		if err != nil {
			return fmt.Errorf("failed to hook emulator: %w", err)
		}
		telemetryLogger.Printf("hooked emulator pid %d", proc.PID())
		port = proc.Port()
	}
	if !memport.Reachable(port, watcherCfg.Slots[0].Address) {
		return fmt.Errorf("%w: slot %s at 0x%08X", ErrUnreachable, watcherCfg.Slots[0].Label, watcherCfg.Slots[0].Address)
	}

	counters := telemetry.NewCounters()
	hub := ws.NewHub(ws.HubConfig{TickRate: watcherCfg.PollHz, Logger: fallbackLogger, Metrics: counters})
	hubFrames := make(chan poll.Frame, frameBuffer)
	offers := []func(poll.Frame){ws.Offer(hubFrames)}

	hubDone := make(chan struct{})
	go func() {
		defer close(hubDone)
		hub.Run(ctx, hubFrames)
	}()
	defer func() { <-hubDone }()
	defer cancel()

	hudDone := make(chan error, 1)
	if watcherCfg.HUD {
		screen := cfg.Screen
		if screen == nil {
			screen, err = tcell.NewScreen()
			if err != nil {
				return fmt.Errorf("failed to create terminal screen: %w", err)
			}
		}
		if err := screen.Init(); err != nil {
			return fmt.Errorf("failed to init terminal screen: %w", err)
		}
		hudFrames := make(chan poll.Frame, frameBuffer)
		offers = append(offers, ws.Offer(hudFrames))
		display := hud.New(screen, watcherCfg.HitLogLines)
		go func() { hudDone <- display.Run(ctx, hudFrames, cancel) }()
	} else {
		hudDone <- nil
	}

	if watcherCfg.Listen != "" {
		listener, err := net.Listen("tcp", watcherCfg.Listen)
		if err != nil {
			return fmt.Errorf("failed to listen on %s: %w", watcherCfg.Listen, err)
		}
		handler := servernet.NewHTTPHandler(hub, servernet.HTTPHandlerConfig{
			Logger:        fallbackLogger,
			TickRate:      watcherCfg.PollHz,
			Counters:      counters,
			RouterStats:   router.Stats,
			Observability: watcherCfg.Observability,
		})
		srv := &http.Server{Handler: handler, ReadHeaderTimeout: 5 * time.Second}
		telemetryLogger.Printf("watcher listening on %s", listener.Addr())
		if cfg.Ready != nil {
			cfg.Ready(listener.Addr())
		}
		go func() {
			if err := srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
				telemetryLogger.Printf("server failed: %v", err)
				cancel()
			}
		}()
		defer func() {
			shutdownCtx, done := context.WithTimeout(context.Background(), shutdownTimeout)
			defer done()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				telemetryLogger.Printf("server shutdown: %v", err)
			}
		}()
	}

	loop := poll.NewLoop(loopConfig(watcherCfg), poll.Deps{
		Port:      port,
		Publisher: router,
		Logger:    telemetryLogger,
		Metrics:   counters,
		Clock:     logging.SystemClock{},
	}, poll.Hooks{
		AfterStep: func(frame poll.Frame) {
			for _, offer := range offers {
				offer(frame)
			}
			if cfg.AfterStep != nil {
				cfg.AfterStep(frame)
			}
		},
	})

	telemetryLogger.Printf("polling %d slots at %d Hz", len(watcherCfg.Slots), watcherCfg.PollHz)
	err = loop.Run(ctx)
	cancel()
	if hudErr := <-hudDone; hudErr != nil {
		telemetryLogger.Printf("hud stopped: %v", hudErr)
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("poll loop failed: %w", err)
	}
	return nil
}

func loadConfig(cfg Config, logger telemetry.Logger) (config.Config, error) {
	watcherCfg := config.Default()
	if cfg.ConfigPath != "" {
		loaded, err := config.Load(cfg.ConfigPath)
		if err != nil {
			return watcherCfg, err
		}
		watcherCfg = loaded
	}
	watcherCfg.ApplyEnv(cfg.Lookup, logger)

	if cfg.Listen != "" {
		watcherCfg.Listen = cfg.Listen
	}
	if cfg.HUD {
		watcherCfg.HUD = true
	}
	if len(cfg.Sinks) > 0 {
		watcherCfg.Logging.EnabledSinks = cfg.Sinks
	}
	if cfg.JSONLogPath != "" {
		watcherCfg.Logging.JSON.FilePath = cfg.JSONLogPath
		if !watcherCfg.Logging.HasSink("json") {
			watcherCfg.Logging.EnabledSinks = append(watcherCfg.Logging.EnabledSinks, "json")
		}
	}
	if watcherCfg.HUD && watcherCfg.Logging.HasSink("console") {
		// The console sink would draw over the HUD.
		var kept []string
		for _, name := range watcherCfg.Logging.EnabledSinks {
			if name != "console" {
				kept = append(kept, name)
			}
		}
		if len(kept) == 0 {
			kept = []string{"memory"}
		}
		watcherCfg.Logging.EnabledSinks = kept
	}

	if err := watcherCfg.Validate(); err != nil {
		return watcherCfg, err
	}
	return watcherCfg, nil
}

// buildSinks only constructs the sinks the router will use so the json sink
// does not create an unused file.
func buildSinks(cfg Config, watcherCfg config.Config) (map[string]logging.Sink, func(), error) {
	stdout := cfg.Stdout
	if stdout == nil {
		stdout = os.Stdout
	}
	logCfg := watcherCfg.Logging
	enabled := func(name string) bool {
		return len(logCfg.EnabledSinks) == 0 || logCfg.HasSink(name)
	}

	sinks := map[string]logging.Sink{}
	closeFn := func() {}
	if enabled("console") {
		sinks["console"] = loggingSinks.NewConsole(stdout)
	}
	if enabled("memory") {
		sinks["memory"] = loggingSinks.NewMemory()
	}
	if enabled("json") && logCfg.JSON.FilePath != "" {
		file, err := os.OpenFile(logCfg.JSON.FilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, closeFn, fmt.Errorf("failed to open json log: %w", err)
		}
		sinks["json"] = loggingSinks.NewJSON(file, logCfg.JSON.FlushInterval)
		closeFn = func() { file.Close() }
	}
	for _, name := range logCfg.EnabledSinks {
		if _, ok := sinks[name]; !ok {
			return nil, closeFn, fmt.Errorf("%w: logging sink %q unavailable", config.ErrInvalid, strings.TrimSpace(name))
		}
	}
	return sinks, closeFn, nil
}

func loopConfig(c config.Config) poll.Config {
	return poll.Config{
		TickRate: c.PollHz,
		Slots:    c.Slots,
		Resolver: resolve.Options{
			Bounds:         c.HealthMaxBounds,
			BadPointers:    c.BadPointers,
			IndirectProbes: c.IndirectProbes,
			TTL:            c.ResolverTTL(),
		},
		Bounds:        c.HealthMaxBounds,
		MinHitDamage:  c.MinHitDamage,
		MaxDist2:      c.MaxDist2(),
		MeterDeltaMin: c.MeterDeltaMin,
		Codes:         c.StateCodes,
		ContactTicks:  c.ContactTimeoutTicks,
		ComboTimeout:  c.ComboTimeout(),
		YCandidates:   c.YCandidates,
		AxisWindow:    c.AxisWindow(),
		AxisInterval:  c.AxisInterval(),
	}
}
