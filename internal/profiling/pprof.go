// Package profiling serves pprof endpoints and ships continuous profiles to
// Pyroscope. Both are off unless enabled in config.
package profiling

import (
	"context"
	"errors"
	"net/http"
	"net/http/pprof"
	"time"

	"github.com/THIS-Institute/thiscovery-surveys/internal/config"
	"github.com/THIS-Institute/thiscovery-surveys/internal/logger"
)

// PprofServer serves /debug/pprof on localhost.
type PprofServer struct {
	srv *http.Server
	log logger.Logger
}

// StartPprofServer starts the pprof server when cfg.PprofEnabled is set and
// returns nil otherwise. It binds to localhost only.
func StartPprofServer(cfg config.ProfilingConfig, log logger.Logger) *PprofServer {
	if !cfg.PprofEnabled {
		return nil
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)

	addr := "localhost:" + cfg.PprofPort
	p := &PprofServer{
		srv: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
		log: log,
	}

	go func() {
		log.Info("Starting pprof server", logger.String("address", addr))
		if err := p.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("pprof server error", logger.Error(err))
		}
	}()
	return p
}

// Stop shuts the pprof server down.
func (p *PprofServer) Stop(ctx context.Context) error {
	if p == nil {
		return nil
	}
	return p.srv.Shutdown(ctx)
}
