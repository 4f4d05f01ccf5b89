// Package server implements the debug/status HTTP server of SPEC_FULL.md
// §2.2/§6: /healthz, /metrics, and /stats, mounted on a chi router. It never
// participates in the lookup/execute/store protocol; it is a read-only
// window onto a running Engine, started by `mem serve`.
//
// Grounded on allaspectsdev-tokenman's internal/proxy/server.go: the same
// chi.NewRouter + middleware.RealIP/middleware.Recoverer shape, an
// http.Server wrapper exposing Start/Shutdown, and a Router accessor for
// tests.
package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"memo/internal/metrics"
)

// StatsSource supplies the live engine state the /stats endpoint reports.
// *memo.Engine satisfies this interface; it is defined here (rather than
// imported) so this package never imports the root package, avoiding an
// import cycle with cmd/mem, which imports both.
type StatsSource interface {
	Failed() bool
	RunID() string
	Cwd() string
	StoreDir() string
	InFlight() int64
}

// Server is the debug/status HTTP server.
type Server struct {
	router  chi.Router
	addr    string
	httpSrv *http.Server
}

// New builds a Server bound to addr, backed by source for /stats.
func New(addr string, source StatsSource) *Server {
	r := chi.NewRouter()

	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", handleHealthz)
	r.Handle("/metrics", metrics.Handler())
	r.Get("/stats", handleStats(source))

	return &Server{
		router: r,
		addr:   addr,
		httpSrv: &http.Server{
			Addr:    addr,
			Handler: r,
		},
	}
}

// Router returns the underlying chi.Router, useful for tests and additional
// route mounting by the caller.
func (s *Server) Router() chi.Router { return s.router }

// Start begins listening for HTTP connections on the configured address. It
// blocks until the server is shut down or encounters a fatal error.
func (s *Server) Start() error {
	err := s.httpSrv.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown gracefully stops the server, waiting for in-flight requests to
// complete within ctx's deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpSrv.Shutdown(ctx)
}

func handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

type statsResponse struct {
	Failed    bool   `json:"failed"`
	RunID     string `json:"run_id"`
	Cwd       string `json:"cwd"`
	StoreDir  string `json:"store_dir"`
	InFlight  int64  `json:"in_flight"`
	Timestamp string `json:"timestamp"`
}

func handleStats(source StatsSource) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := statsResponse{
			Failed:    source.Failed(),
			RunID:     source.RunID(),
			Cwd:       source.Cwd(),
			StoreDir:  source.StoreDir(),
			InFlight:  source.InFlight(),
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		}
		w.Header().Set("Content-Type", "application/json")
		if resp.Failed {
			w.WriteHeader(http.StatusServiceUnavailable)
		} else {
			w.WriteHeader(http.StatusOK)
		}
		_ = json.NewEncoder(w).Encode(resp)
	}
}
