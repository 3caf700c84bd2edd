package observability

import (
	nethttp "net/http"
	"net/http/pprof"
)

// Config captures opt-in observability toggles that wire into the HTTP server.
type Config struct {
	EnablePprof bool `json:"enablePprof,omitempty" jsonschema:"description=Serve runtime profiles under /debug/pprof/"`
}

// Register mounts the enabled debug endpoints on mux.
func (c Config) Register(mux *nethttp.ServeMux) {
	if !c.EnablePprof {
		return
	}
	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
}
