package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"tvc-hud/watcher/internal/app"
	"tvc-hud/watcher/internal/telemetry"
)

func main() {
	var (
		configPath  = flag.String("config", "", "path to a JSON configuration document")
		listen      = flag.String("listen", "", "HTTP listen address (overrides the document)")
		hud         = flag.Bool("hud", false, "draw the terminal HUD")
		sinks       = flag.String("sinks", "", "comma separated logging sinks (console,json,memory)")
		jsonLogPath = flag.String("json-log", "", "write structured events to this file")
	)
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := app.Config{
		Logger:      telemetry.WrapLogger(log.Default()),
		ConfigPath:  *configPath,
		Listen:      *listen,
		HUD:         *hud,
		JSONLogPath: *jsonLogPath,
	}
	if *sinks != "" {
		for _, name := range strings.Split(*sinks, ",") {
			if name = strings.TrimSpace(name); name != "" {
				cfg.Sinks = append(cfg.Sinks, name)
			}
		}
	}

	if err := app.Run(ctx, cfg); err != nil {
		log.Fatalf("%v", err)
	}
}
